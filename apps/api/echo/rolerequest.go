package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/companion/core"
	"github.com/trezcool/companion/core/gate"
	"github.com/trezcool/companion/core/rolerequest"
	"github.com/trezcool/companion/core/user"
)

const (
	contextRoleKey = "targetRole"

	errReconcileIncomplete = "reconciliation incomplete"
)

// newest first
var defaultRequestOrdering = core.Ordering{Field: "timestamp", Ascending: false}

type roleRequestApi struct {
	gate     *gate.Gate
	profiles *user.Service
	validate *validator.Validate
	logger   core.Logger
	metrics  *Metrics
}

func registerRoleRequestAPI(g *echo.Group, auth *authenticator, deps ServerDeps) {
	api := roleRequestApi{
		gate:     deps.Gate,
		profiles: deps.Profiles,
		validate: deps.Validate,
		logger:   deps.Logger,
		metrics:  deps.Metrics,
	}

	rg := g.Group("/role-requests", auth.middleware()...)
	rg.POST("/reconcile", api.reconcile, adminMiddleware())

	tg := rg.Group("/:role", targetRoleMiddleware())
	tg.POST("", api.create)
	tg.GET("", api.query, adminMiddleware())
	tg.GET("/:id", api.retrieve, adminMiddleware())
	tg.POST("/:id/decision", api.decide, adminMiddleware())
}

// targetRoleMiddleware resolves the `:role` path segment (teacher|admin) into the requested user.Role.
func targetRoleMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			role, err := user.ParseRole(ctx.Param("role"))
			if err != nil || rolerequest.Collection(role) == "" {
				return errHttpNotFound
			}
			ctx.Set(contextRoleKey, role)
			return next(ctx)
		}
	}
}

func contextRole(ctx echo.Context) user.Role {
	role, _ := ctx.Get(contextRoleKey).(user.Role)
	return role
}

// Handlers

func (api *roleRequestApi) create(ctx echo.Context) error {
	var data NewRoleRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewRoleRequest")
	}
	data.Details = core.CleanString(data.Details)

	claims, err := getContextClaims(ctx)
	if err != nil {
		return err
	}
	c := ctx.Request().Context()

	// requester details come from the profile; the token is enough when it cannot be read
	name, email := "", claims.Email
	if p, err := api.profiles.GetProfile(c, claims.Subject); err == nil {
		name, email = p.Name, p.Email
	} else {
		api.logger.Warn("role request from "+claims.Subject+" without profile", err)
	}

	id, err := api.gate.RequestRoleChange(c, claims.Subject, name, email, data.Details, contextRole(ctx))
	if err != nil {
		return errors.Wrap(err, "requesting role change")
	}
	return ctx.JSON(http.StatusCreated, echo.Map{"id": id})
}

func (api *roleRequestApi) query(ctx echo.Context) error {
	var filter RequestFilter
	if err := ctx.Bind(&filter); err != nil {
		return ctx.JSON(http.StatusOK, []rolerequest.RoleRequest{})
	}
	ordering := new(Ordering)
	ordering.Bind(ctx, defaultRequestOrdering)

	var (
		reqs []rolerequest.RoleRequest
		err  error
	)
	role := contextRole(ctx)
	switch rolerequest.Status(filter.Status) {
	case "":
		reqs, err = api.gate.ListRequests(ctx.Request().Context(), role)
	case rolerequest.StatusPending:
		reqs, err = api.gate.PendingRequests(ctx.Request().Context(), role)
	default:
		return core.NewValidationError(nil, core.FieldError{Field: "status", Error: "only pending can be filtered"})
	}
	if err != nil {
		return errors.Wrap(err, "querying role requests")
	}

	if reqs == nil {
		reqs = []rolerequest.RoleRequest{}
	}
	rolerequest.Sort(reqs, ordering.Orderings)
	return ctx.JSON(http.StatusOK, reqs)
}

func (api *roleRequestApi) retrieve(ctx echo.Context) error {
	req, err := api.gate.GetRequest(ctx.Request().Context(), contextRole(ctx), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "getting role request")
	}
	return ctx.JSON(http.StatusOK, req)
}

func (api *roleRequestApi) decide(ctx echo.Context) error {
	var data DecisionRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to DecisionRequest")
	}
	if err := api.validate.Struct(data); err != nil {
		return err
	}

	role := contextRole(ctx)
	req, err := api.gate.DecideRequest(ctx.Request().Context(), ctx.Param("id"), role, *data.Approved)
	api.metrics.decisionDone(role.String(), decisionOutcome(*data.Approved, err))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, req)
}

// reconcile reports the repaired count even when some profiles could not be repaired.
func (api *roleRequestApi) reconcile(ctx echo.Context) error {
	repaired, err := api.gate.Reconcile(ctx.Request().Context())
	if err != nil {
		api.logger.Error("reconciling role requests", err, contextProfile(ctx))
		return ctx.JSON(http.StatusInternalServerError, echo.Map{"repaired": repaired, "error": errReconcileIncomplete})
	}
	return ctx.JSON(http.StatusOK, echo.Map{"repaired": repaired})
}

func decisionOutcome(approved bool, err error) string {
	var cerr *gate.ConsistencyError
	switch {
	case errors.As(err, &cerr):
		return "inconsistent"
	case err != nil:
		return "failed"
	case approved:
		return string(rolerequest.StatusApproved)
	default:
		return string(rolerequest.StatusRejected)
	}
}

type (
	NewRoleRequest struct {
		Details string `json:"details"`
	}

	DecisionRequest struct {
		Approved *bool `json:"approved" validate:"required"`
	}
)
