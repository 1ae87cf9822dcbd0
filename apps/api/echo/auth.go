package echoapi

import (
	"net/http"
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"

	"github.com/trezcool/companion/core"
	"github.com/trezcool/companion/core/gate"
	"github.com/trezcool/companion/core/identity"
	"github.com/trezcool/companion/core/user"
)

const (
	contextTokenKey = "userToken"
	tokenAudience   = "companion-app"
)

var (
	errUnauthorized  = echo.NewHTTPError(http.StatusUnauthorized, "user not authenticated")
	errTokenRevoked  = echo.NewHTTPError(http.StatusUnauthorized, "token has been revoked")
	errHttpForbidden = echo.NewHTTPError(http.StatusForbidden, "permission denied")
	errHttpNotFound  = echo.NewHTTPError(http.StatusNotFound, "not found")
)

// Claims represents the authorization claims transmitted via a JWT.
type Claims struct {
	jwt.StandardClaims
	Email     string    `json:"email,omitempty"`
	Role      user.Role `json:"role,omitempty"`
	IsStudent bool      `json:"is_student,omitempty"` // -> STUDENT DASHBOARD
	IsTeacher bool      `json:"is_teacher,omitempty"` // -> TEACHER DASHBOARD
	IsAdmin   bool      `json:"is_admin,omitempty"`   // -> ADMIN DASHBOARD
}

// authenticator issues the session tokens and guards the authed endpoints.
type authenticator struct {
	conf     *core.Config
	denylist identity.Denylist
	jwtConf  middleware.JWTConfig
}

func newAuthenticator(conf *core.Config, denylist identity.Denylist) *authenticator {
	return &authenticator{
		conf:     conf,
		denylist: denylist,
		jwtConf: middleware.JWTConfig{
			SigningKey:    []byte(conf.Server.JWTSecret),
			SigningMethod: middleware.AlgorithmHS256,
			ContextKey:    contextTokenKey,
			Claims:        new(Claims),
		},
	}
}

// sessionRole is the role granted by a routed session. The student fallback grants STUDENT.
func sessionRole(sess gate.Session) user.Role {
	switch sess.State {
	case gate.RoutedAdmin:
		return user.RoleAdmin
	case gate.RoutedTeacher:
		return user.RoleTeacher
	default:
		return user.RoleStudent
	}
}

// NewClaims returns the claims of a routed session.
func (a *authenticator) NewClaims(sess gate.Session) *Claims {
	now := core.NowFunc()
	role := sessionRole(sess)
	return &Claims{
		StandardClaims: jwt.StandardClaims{
			Id:        uuid.New().String(),
			Issuer:    a.conf.AppName,
			Subject:   sess.Identity.ID,
			Audience:  tokenAudience,
			ExpiresAt: now.Add(a.conf.Server.JWTExpiration).Unix(),
			IssuedAt:  now.Unix(),
		},
		Email:     sess.Identity.Email,
		Role:      role,
		IsStudent: role == user.RoleStudent,
		IsTeacher: role == user.RoleTeacher,
		IsAdmin:   role == user.RoleAdmin,
	}
}

// GenerateToken generates a signed JWT token string representing the user Claims.
func (a *authenticator) GenerateToken(claims *Claims) (string, error) {
	method := jwt.GetSigningMethod(a.jwtConf.SigningMethod)
	token := jwt.NewWithClaims(method, claims)

	ss, err := token.SignedString(a.jwtConf.SigningKey)
	if err != nil {
		return "", errors.Wrap(err, "signing token")
	}
	return ss, nil
}

// middleware checks the bearer token then rejects the revoked ones.
func (a *authenticator) middleware() []echo.MiddlewareFunc {
	return []echo.MiddlewareFunc{middleware.JWTWithConfig(a.jwtConf), a.revocationMiddleware}
}

func (a *authenticator) revocationMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		if a.denylist == nil {
			return next(ctx)
		}
		claims, err := getContextClaims(ctx)
		if err != nil {
			return err
		}
		revoked, err := a.denylist.IsRevoked(ctx.Request().Context(), claims.Id)
		if err != nil {
			return errors.Wrap(err, "checking token revocation")
		}
		if revoked {
			return errTokenRevoked
		}
		return next(ctx)
	}
}

// revoke denies the token of the request until it expires.
func (a *authenticator) revoke(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return err
	}
	if a.denylist == nil || claims.Id == "" {
		return nil
	}
	expiresAt := core.EpochMillis(time.Unix(claims.ExpiresAt, 0))
	return errors.Wrap(a.denylist.Revoke(ctx.Request().Context(), claims.Id, expiresAt), "revoking token")
}

func getContextClaims(ctx echo.Context) (Claims, error) {
	if token, ok := ctx.Get(contextTokenKey).(*jwt.Token); ok {
		if claims, ok := token.Claims.(*Claims); ok {
			return *claims, nil
		}
	}
	return Claims{}, errUnauthorized
}

func (c Claims) Identity() identity.Identity {
	return identity.Identity{ID: c.Subject, Email: c.Email}
}
