package identity

import (
	"context"
	"fmt"
)

// Failure reasons reported by the providers. Hosted providers may report others; they are passed through verbatim.
const (
	ReasonEmailExists     = "EMAIL_EXISTS"
	ReasonEmailNotFound   = "EMAIL_NOT_FOUND"
	ReasonInvalidPassword = "INVALID_PASSWORD"
	ReasonInvalidEmail    = "INVALID_EMAIL"
	ReasonWeakPassword    = "WEAK_PASSWORD"
	ReasonUnavailable     = "UNAVAILABLE"
)

// Identity is the authenticated principal issued by the credential service.
type Identity struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

func (id Identity) IsZero() bool { return id.ID == "" }

// Provider checks credentials against a credential service. It keeps no session state and never retries.
type Provider interface {
	SignUp(ctx context.Context, email, password string) (Identity, error)
	SignIn(ctx context.Context, email, password string) (Identity, error)
	// SendPasswordReset mails reset instructions. Unknown emails are not reported.
	SendPasswordReset(ctx context.Context, email string) error
}

// AuthError is a credential failure: invalid credentials, duplicate account or unreachable provider.
type AuthError struct {
	Reason  string // provider code, e.g. EMAIL_EXISTS
	Message string // raw provider message
	Err     error
}

func NewAuthError(reason string, err ...error) *AuthError {
	aerr := &AuthError{Reason: reason, Message: reason}
	if len(err) > 0 {
		aerr.Err = err[0]
	}
	return aerr
}

func (e *AuthError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Reason, e.Err)
	}
	return e.Reason
}

func (e *AuthError) Unwrap() error { return e.Err }

// Denylist keeps the ids of revoked session tokens until they expire.
type Denylist interface {
	Revoke(ctx context.Context, tokenID string, expiresAt int64) error
	IsRevoked(ctx context.Context, tokenID string) (bool, error)
}
