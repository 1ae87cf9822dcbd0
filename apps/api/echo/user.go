package echoapi

import (
	"context"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/companion/core"
	"github.com/trezcool/companion/core/gate"
	"github.com/trezcool/companion/core/user"
)

const passwordResetMessage = "If the email address supplied is associated with an account on this system, " +
	"an email will arrive in your inbox shortly with instructions to reset your password."

// passwordResetter is implemented by providers accepting reset tokens issued by the app itself.
type passwordResetter interface {
	ResetPassword(ctx context.Context, uid, token, password string) error
}

type userApi struct {
	gate     *gate.Gate
	auth     *authenticator
	resetter passwordResetter // nil when the provider mails its own reset flow
	validate *validator.Validate
	logger   core.Logger
	metrics  *Metrics
}

func registerUserAPI(g *echo.Group, auth *authenticator, deps ServerDeps) {
	api := userApi{
		gate:     deps.Gate,
		auth:     auth,
		validate: deps.Validate,
		logger:   deps.Logger,
		metrics:  deps.Metrics,
	}
	if r, ok := deps.Gate.Provider().(passwordResetter); ok {
		api.resetter = r
	}

	ag := g.Group("/auth")

	// un-authed endpoints
	ag.POST("/register", api.register)
	ag.POST("/login", api.login)
	ag.POST("/password-reset", api.resetPassword)
	if api.resetter != nil {
		ag.POST("/password-reset-confirm", api.confirmPasswordReset)
	}

	// authed endpoints
	sg := ag.Group("", auth.middleware()...)
	sg.POST("/logout", api.logout)
	sg.GET("/me", api.me)
}

// Handlers

func (api *userApi) register(ctx echo.Context) error {
	var data gate.Registration
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to Registration")
	}

	sess, err := api.gate.Register(ctx.Request().Context(), data)
	if err != nil {
		if errors.Is(err, gate.ErrProfilePending) {
			return ctx.JSON(http.StatusAccepted, echo.Map{"error": gate.ErrProfilePending.Error()})
		}
		return err
	}

	resp, err := api.sessionResponse(sess)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusCreated, resp)
}

func (api *userApi) login(ctx echo.Context) error {
	var data LoginRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to LoginRequest")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	sess := api.gate.Login(ctx.Request().Context(), data.Email, data.Password)
	if sess.State == gate.LoginFailed {
		api.metrics.loginDone("failed", "")
		return sess.Err
	}
	api.metrics.loginDone("success", sess.Route())

	resp, err := api.sessionResponse(sess)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, resp)
}

func (api *userApi) logout(ctx echo.Context) error {
	if err := api.auth.revoke(ctx); err != nil {
		return err
	}
	return ctx.NoContent(http.StatusNoContent)
}

// me routes the token's identity again, picking up role changes granted since login.
func (api *userApi) me(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return err
	}
	sess := api.gate.Resume(ctx.Request().Context(), claims.Identity())
	resp, err := api.sessionResponse(sess)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, resp)
}

func (api *userApi) resetPassword(ctx echo.Context) error {
	var data PasswordResetRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to PasswordResetRequest")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	if err := api.gate.SendPasswordReset(ctx.Request().Context(), data.Email); err != nil {
		// do not return errors to attackers
		api.logger.Error("requesting password reset", errors.Wrap(err, "requesting password reset"))
	}
	return ctx.JSON(http.StatusOK, SuccessResponse{Success: passwordResetMessage})
}

func (api *userApi) confirmPasswordReset(ctx echo.Context) error {
	var data PasswordResetConfirmRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to PasswordResetConfirmRequest")
	}
	if err := api.validate.Struct(data); err != nil {
		return err
	}

	if err := api.resetter.ResetPassword(ctx.Request().Context(), data.UID, data.Token, data.Password); err != nil {
		return errors.Wrap(err, "resetting password")
	}
	return ctx.JSON(http.StatusOK, SuccessResponse{Success: "Password has been reset with the new password."})
}

func (api *userApi) sessionResponse(sess gate.Session) (SessionResponse, error) {
	token, err := api.auth.GenerateToken(api.auth.NewClaims(sess))
	if err != nil {
		return SessionResponse{}, errors.Wrap(err, "generating token")
	}
	return SessionResponse{Token: token, Route: sess.Route(), Profile: sess.Profile}, nil
}

type (
	LoginRequest struct {
		Email    string `json:"email" validate:"required"`
		Password string `json:"password" validate:"required"`
	}

	SessionResponse struct {
		Token   string        `json:"token"`
		Route   string        `json:"route"`
		Profile *user.Profile `json:"profile,omitempty"`
	}

	PasswordResetRequest struct {
		Email string `json:"email" validate:"required,email"`
	}

	PasswordResetConfirmRequest struct {
		UID             string `json:"uid" validate:"required"`
		Token           string `json:"token" validate:"required"`
		Password        string `json:"password" validate:"required"`
		PasswordConfirm string `json:"password_confirm" validate:"eqfield=Password"`
	}

	SuccessResponse struct {
		Success string `json:"success"`
	}
)

func (lr *LoginRequest) Validate(validate *validator.Validate) error {
	lr.Email = core.CleanString(lr.Email, true /* lower */)
	return validate.Struct(lr)
}

func (pr *PasswordResetRequest) Validate(validate *validator.Validate) error {
	pr.Email = core.CleanString(pr.Email, true /* lower */)
	return validate.Struct(pr)
}
