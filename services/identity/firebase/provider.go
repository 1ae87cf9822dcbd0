// Package firebase is an identity.Provider backed by the Firebase Identity Toolkit REST API.
package firebase

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-resty/resty/v2"
	"github.com/pkg/errors"

	"github.com/trezcool/companion/core"
	"github.com/trezcool/companion/core/identity"
)

const (
	signUpPath      = "/accounts:signUp"
	signInPath      = "/accounts:signInWithPassword"
	sendOobCodePath = "/accounts:sendOobCode"

	passwordResetRequest = "PASSWORD_RESET"
)

var errNotConfigured = errors.New("firebase API key is not configured")

type (
	Provider struct {
		client *resty.Client
		apiKey string
		logger core.Logger
	}

	credentialsBody struct {
		Email             string `json:"email"`
		Password          string `json:"password"`
		ReturnSecureToken bool   `json:"returnSecureToken"`
	}

	oobCodeBody struct {
		RequestType string `json:"requestType"`
		Email       string `json:"email"`
	}

	accountResponse struct {
		LocalID string `json:"localId"`
		Email   string `json:"email"`
		IDToken string `json:"idToken"`
	}

	errorResponse struct {
		Error struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
)

var _ identity.Provider = (*Provider)(nil)

func NewProvider(conf *core.Config, logger core.Logger) *Provider {
	client := resty.New().
		SetBaseURL(strings.TrimRight(conf.Firebase.BaseURL, "/")).
		SetTimeout(conf.Firebase.Timeout).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")
	if conf.Firebase.ProjectID != "" {
		client.SetHeader("X-Firebase-Project", conf.Firebase.ProjectID)
	}
	if logger == nil {
		logger = core.NopLogger{}
	}
	return &Provider{client: client, apiKey: conf.Firebase.APIKey, logger: logger}
}

func (p *Provider) SignUp(ctx context.Context, email, password string) (identity.Identity, error) {
	return p.account(ctx, signUpPath, email, password)
}

func (p *Provider) SignIn(ctx context.Context, email, password string) (identity.Identity, error) {
	return p.account(ctx, signInPath, email, password)
}

func (p *Provider) SendPasswordReset(ctx context.Context, email string) error {
	_, err := p.post(ctx, sendOobCodePath, oobCodeBody{RequestType: passwordResetRequest, Email: email}, nil)
	var aerr *identity.AuthError
	if errors.As(err, &aerr) && aerr.Reason == identity.ReasonEmailNotFound {
		return nil
	}
	return err
}

func (p *Provider) account(ctx context.Context, path, email, password string) (identity.Identity, error) {
	var acc accountResponse
	body := credentialsBody{Email: email, Password: password, ReturnSecureToken: true}
	if _, err := p.post(ctx, path, body, &acc); err != nil {
		return identity.Identity{}, err
	}
	if acc.LocalID == "" {
		return identity.Identity{}, identity.NewAuthError(identity.ReasonUnavailable, errors.New("response without localId"))
	}
	if acc.Email == "" {
		acc.Email = email
	}
	return identity.Identity{ID: acc.LocalID, Email: acc.Email}, nil
}

// post sends body to path and decodes a successful response into result.
// Every failure is an *identity.AuthError: provider codes are kept verbatim, transport failures are UNAVAILABLE.
func (p *Provider) post(ctx context.Context, path string, body, result interface{}) (*resty.Response, error) {
	if p.apiKey == "" {
		return nil, identity.NewAuthError(identity.ReasonUnavailable, errNotConfigured)
	}

	var errResp errorResponse
	req := p.client.R().
		SetContext(ctx).
		SetQueryParam("key", p.apiKey).
		SetBody(body).
		SetError(&errResp)
	if result != nil {
		req.SetResult(result)
	}

	resp, err := req.Post(path)
	if err != nil {
		p.logger.Warn("firebase request failed: "+path, err)
		return resp, identity.NewAuthError(identity.ReasonUnavailable, errors.Wrap(err, path))
	}
	if resp.IsError() {
		return resp, authError(resp.StatusCode(), errResp)
	}
	return resp, nil
}

// authError turns `{"error": {"message": "WEAK_PASSWORD : Password should be at least 6 characters"}}`
// into an AuthError with reason WEAK_PASSWORD and the raw message.
func authError(status int, errResp errorResponse) *identity.AuthError {
	msg := errResp.Error.Message
	if msg == "" {
		msg = http.StatusText(status)
		if status >= http.StatusInternalServerError {
			return &identity.AuthError{Reason: identity.ReasonUnavailable, Message: msg}
		}
	}
	reason := msg
	if i := strings.Index(msg, " : "); i >= 0 {
		reason = msg[:i]
	}
	return &identity.AuthError{Reason: strings.TrimSpace(reason), Message: msg}
}
