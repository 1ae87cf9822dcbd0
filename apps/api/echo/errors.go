package echoapi

import (
	"net/http"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"

	"github.com/trezcool/companion/core"
	"github.com/trezcool/companion/core/course"
	"github.com/trezcool/companion/core/gate"
	"github.com/trezcool/companion/core/identity"
	"github.com/trezcool/companion/core/rolerequest"
	"github.com/trezcool/companion/core/user"
)

// newAppHTTPErrorHandler returns a custom echo.HTTPErrorHandler that knows how to handle our errors.
// signalShutdown is called in order to gracefully shutdown the Server whenever a core.shutdown error is caught.
func newAppHTTPErrorHandler(logger core.Logger, translator ut.Translator, signalShutdown func()) echo.HTTPErrorHandler {
	return func(err error, ctx echo.Context) {
		var (
			code    int
			message interface{}

			herr  *echo.HTTPError
			verrs validator.ValidationErrors
			verr  *core.ValidationError
			aerr  *identity.AuthError
			cerr  *gate.ConsistencyError
		)

		switch {
		case errors.As(err, &herr):
			if herr == middleware.ErrJWTMissing {
				code = http.StatusUnauthorized
				message = herr.Message
				break
			}
			if herr.Internal != nil {
				if ierr, ok := herr.Internal.(*echo.HTTPError); ok {
					herr = ierr
				}
			}
			code = herr.Code
			message = herr.Message
		case errors.As(err, &verrs):
			code = http.StatusBadRequest
			message = core.FieldErrors(verrs, translator)
		case errors.As(err, &verr):
			if verr.Fields != nil {
				fldErrs := make(map[string]string, len(verr.Fields))
				for _, fErr := range verr.Fields {
					fldErrs[fErr.Field] = fErr.Error
				}
				message = fldErrs
			} else {
				message = verr.Error()
			}
			code = http.StatusBadRequest
		case errors.As(err, &aerr):
			code = http.StatusBadRequest
			if aerr.Reason == identity.ReasonUnavailable {
				code = http.StatusServiceUnavailable
				logger.Error("identity provider unavailable", err, contextProfile(ctx))
			}
			message = aerr.Reason
		case errors.Is(err, identity.ErrInvalidToken), errors.Is(err, identity.ErrTokenExpired):
			code = http.StatusBadRequest
			message = errors.Cause(err).Error()
		case errors.Is(err, rolerequest.ErrNotFound), errors.Is(err, user.ErrNotFound), errors.Is(err, course.ErrNotFound):
			code = http.StatusNotFound
			message = errors.Cause(err).Error()
		case errors.Is(err, course.ErrNotTeacher):
			code = http.StatusForbidden
			message = course.ErrNotTeacher.Error()
		case errors.Is(err, rolerequest.ErrAlreadyResolved):
			code = http.StatusConflict
			message = rolerequest.ErrAlreadyResolved.Error()
		case errors.Is(err, gate.ErrInvalidTargetRole), errors.Is(err, rolerequest.ErrInvalidRole):
			code = http.StatusBadRequest
			message = gate.ErrInvalidTargetRole.Error()
		case errors.As(err, &cerr):
			code = http.StatusInternalServerError
			message = echo.Map{"error": cerr.Error(), "request_id": cerr.RequestID, "user_id": cerr.UserID}
			logger.Error("role request approved without role grant", cerr, contextProfile(ctx))
		default: // any other error is a server error
			code = http.StatusInternalServerError
			msg := http.StatusText(http.StatusInternalServerError)
			message = msg
			logger.Error(msg, errors.Wrap(err, msg), contextProfile(ctx))

			// shutting down...
			if core.IsShutdown(err) {
				signalShutdown()
			}
		}

		if ctx.Echo().Debug && cerr == nil {
			message = err.Error()
		}
		if m, ok := message.(string); ok {
			message = echo.Map{"error": m}
		}

		// Send response
		if !ctx.Response().Committed {
			if ctx.Request().Method == http.MethodHead { // Issue #608
				err = ctx.NoContent(code)
			} else {
				err = ctx.JSON(code, message)
			}
			if err != nil {
				ctx.Echo().Logger.Error(err)
			}
		}
	}
}

// contextProfile is the acting profile attached to error reports, built from the token claims.
func contextProfile(ctx echo.Context) user.Profile {
	var p user.Profile
	if claims, err := getContextClaims(ctx); err == nil {
		p.ID = claims.Subject
		p.Email = claims.Email
		p.Role = claims.Role
	}
	return p
}
