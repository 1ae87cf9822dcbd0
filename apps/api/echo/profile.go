package echoapi

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/companion/core"
	"github.com/trezcool/companion/core/user"
)

type profileApi struct {
	profiles *user.Service
}

func registerProfileAPI(g *echo.Group, auth *authenticator, deps ServerDeps) {
	api := profileApi{profiles: deps.Profiles}

	pg := g.Group("/profiles", append(auth.middleware(), adminMiddleware())...)
	pg.GET("", api.query)
	pg.GET("/:id", api.retrieve)
}

// query lists the profiles, oldest first. `role` filters on a comma separated list of roles.
func (api *profileApi) query(ctx echo.Context) error {
	var roles []user.Role
	if val := ctx.QueryParam("role"); val != "" {
		for _, s := range strings.Split(val, ",") {
			role, err := user.ParseRole(s)
			if err != nil {
				return core.NewValidationError(nil, core.FieldError{Field: "role", Error: "unknown role " + strings.TrimSpace(s)})
			}
			roles = append(roles, role)
		}
	}

	profiles, err := api.profiles.QueryAll(ctx.Request().Context(), roles...)
	if err != nil {
		return errors.Wrap(err, "querying profiles")
	}
	if profiles == nil {
		profiles = []user.Profile{}
	}
	return ctx.JSON(http.StatusOK, profiles)
}

func (api *profileApi) retrieve(ctx echo.Context) error {
	p, err := api.profiles.GetProfile(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, p)
}
