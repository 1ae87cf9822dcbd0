package identity

import (
	"context"
	"net/mail"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/pmezard/go-difflib/difflib"
	"golang.org/x/crypto/bcrypt"

	"github.com/trezcool/companion/core"
)

var (
	// errors
	ErrCredentialNotFound = errors.New("credential not found")
	ErrCredentialExists   = errors.New("a credential with this email already exists")

	pwdMinLen   = 6
	pwdMaxBytes = 72 // bcrypt input limit
	pwdMaxSim   = .7
)

type (
	// Credential is the account record of the local provider, keyed by email.
	Credential struct {
		Email        string `json:"email" db:"email"`
		IdentityID   string `json:"identityId" db:"identity_id"`
		PasswordHash []byte `json:"passwordHash" db:"password_hash"`
		CreatedAt    int64  `json:"createdAt" db:"created_at"`
		LastLogin    int64  `json:"lastLogin" db:"last_login"`
	}

	CredentialRepository interface {
		// CreateCredential fails with ErrCredentialExists when the email is taken.
		CreateCredential(ctx context.Context, cred Credential) error
		GetCredentialByEmail(ctx context.Context, email string) (Credential, error)
		GetCredentialByIdentityID(ctx context.Context, identityID string) (Credential, error)
		UpdateCredential(ctx context.Context, cred Credential) error
	}

	// LocalProvider is a self-hosted credential service storing bcrypt hashes.
	LocalProvider struct {
		repo     CredentialRepository
		mailSvc  core.EmailService
		validate *validator.Validate
		tokens   tokenGenerator
	}

	resetMailData struct {
		Name  string
		Email string
		UID   string
		Token string
	}
)

var _ Provider = (*LocalProvider)(nil)

func (c *Credential) SetPassword(pwd string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(pwd), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	c.PasswordHash = hash
	return nil
}

func (c *Credential) CheckPassword(pwd string) error {
	return bcrypt.CompareHashAndPassword(c.PasswordHash, []byte(pwd))
}

func (c Credential) Identity() Identity {
	return Identity{ID: c.IdentityID, Email: c.Email}
}

func NewLocalProvider(
	repo CredentialRepository,
	mailSvc core.EmailService,
	validate *validator.Validate,
	conf *core.Config,
) *LocalProvider {
	return &LocalProvider{
		repo:     repo,
		mailSvc:  mailSvc,
		validate: validate,
		tokens:   newTokenGenerator(conf),
	}
}

func (p *LocalProvider) SignUp(ctx context.Context, email, password string) (Identity, error) {
	email = core.CleanString(email, true /* lower */)
	if err := p.validate.Var(email, "required,email"); err != nil {
		return Identity{}, NewAuthError(ReasonInvalidEmail)
	}
	if IsWeakPassword(password, email) {
		return Identity{}, NewAuthError(ReasonWeakPassword)
	}

	now := core.NowMillis()
	cred := Credential{
		Email:      email,
		IdentityID: uuid.New().String(),
		CreatedAt:  now,
		LastLogin:  now,
	}
	if err := cred.SetPassword(password); err != nil {
		return Identity{}, errors.Wrap(err, "hashing password")
	}
	if err := p.repo.CreateCredential(ctx, cred); err != nil {
		if errors.Cause(err) == ErrCredentialExists {
			return Identity{}, NewAuthError(ReasonEmailExists)
		}
		return Identity{}, NewAuthError(ReasonUnavailable, err)
	}
	return cred.Identity(), nil
}

func (p *LocalProvider) SignIn(ctx context.Context, email, password string) (Identity, error) {
	cred, err := p.repo.GetCredentialByEmail(ctx, core.CleanString(email, true /* lower */))
	if err != nil {
		if errors.Cause(err) == ErrCredentialNotFound {
			return Identity{}, NewAuthError(ReasonEmailNotFound)
		}
		return Identity{}, NewAuthError(ReasonUnavailable, err)
	}
	if err = cred.CheckPassword(password); err != nil {
		return Identity{}, NewAuthError(ReasonInvalidPassword)
	}

	cred.LastLogin = core.NowMillis()
	if err = p.repo.UpdateCredential(ctx, cred); err != nil {
		return Identity{}, NewAuthError(ReasonUnavailable, err)
	}
	return cred.Identity(), nil
}

// SendPasswordReset mails a reset link to the owner of email. Unknown emails are silently accepted.
func (p *LocalProvider) SendPasswordReset(ctx context.Context, email string) error {
	cred, err := p.repo.GetCredentialByEmail(ctx, core.CleanString(email, true /* lower */))
	if err != nil {
		if errors.Cause(err) == ErrCredentialNotFound {
			return nil
		}
		return NewAuthError(ReasonUnavailable, err)
	}

	token, err := p.tokens.makeToken(cred)
	if err != nil {
		return errors.Wrap(err, "making password reset token")
	}
	p.mailSvc.SendMessages(&core.EmailMessage{
		To:           []mail.Address{{Address: cred.Email}},
		Subject:      "Password Reset",
		TemplateName: "password_reset",
		TemplateData: resetMailData{
			Name:  emailName(cred.Email),
			Email: cred.Email,
			UID:   EncodeUID(cred),
			Token: token,
		},
	})
	return nil
}

// ResetPassword consumes a token issued by SendPasswordReset.
func (p *LocalProvider) ResetPassword(ctx context.Context, uid, token, password string) error {
	identityID, err := decodeUID(uid)
	if err != nil {
		return ErrInvalidToken
	}
	cred, err := p.repo.GetCredentialByIdentityID(ctx, identityID)
	if err != nil {
		if errors.Cause(err) == ErrCredentialNotFound {
			return ErrInvalidToken
		}
		return errors.Wrap(err, "getting credential")
	}
	if err = p.tokens.verifyToken(cred, token); err != nil {
		return err
	}
	return p.setPassword(ctx, cred, password)
}

// SetPassword replaces the password of the account registered with email, without any token.
func (p *LocalProvider) SetPassword(ctx context.Context, email, password string) error {
	cred, err := p.repo.GetCredentialByEmail(ctx, core.CleanString(email, true /* lower */))
	if err != nil {
		return errors.Wrap(err, "getting credential")
	}
	return p.setPassword(ctx, cred, password)
}

func (p *LocalProvider) setPassword(ctx context.Context, cred Credential, password string) error {
	if IsWeakPassword(password, cred.Email) {
		return NewAuthError(ReasonWeakPassword)
	}
	if err := cred.SetPassword(password); err != nil {
		return errors.Wrap(err, "hashing password")
	}
	return errors.Wrap(p.repo.UpdateCredential(ctx, cred), "updating credential")
}

// IsWeakPassword reports passwords shorter than 6 characters, longer than 72 bytes
// or too similar to the account email.
func IsWeakPassword(pwd, email string) bool {
	if len([]rune(pwd)) < pwdMinLen || len(pwd) > pwdMaxBytes {
		return true
	}
	if email == "" {
		return false
	}
	ratio := difflib.NewMatcher(strings.Split(strings.ToLower(pwd), ""), strings.Split(email, "")).QuickRatio()
	return ratio >= pwdMaxSim
}

func emailName(email string) string {
	if i := strings.IndexByte(email, '@'); i > 0 {
		return email[:i]
	}
	return email
}
