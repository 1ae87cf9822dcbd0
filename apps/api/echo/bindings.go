package echoapi

import (
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/trezcool/companion/core"
)

var orderingParam = "ordering"

// Ordering binds `?ordering=field,-other` ("-" for descending).
type Ordering struct {
	Orderings []core.Ordering
}

func (ord *Ordering) Bind(ctx echo.Context, defaults ...core.Ordering) {
	val := ctx.QueryParam(orderingParam)
	if val == "" {
		ord.Orderings = defaults
		return
	}

	for _, field := range strings.Split(val, ",") {
		field = strings.TrimSpace(field)
		descending := strings.HasPrefix(field, "-")
		if descending {
			field = field[1:] // drop "-"
		}
		if field == "" {
			continue
		}
		ord.Orderings = append(ord.Orderings, core.Ordering{Field: field, Ascending: !descending})
	}
}

// RequestFilter binds the query of role request listings.
type RequestFilter struct {
	Status string `query:"status"`
}
