package testutil

import (
	"context"
	"testing"
	"time"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/companion/core"
	"github.com/trezcool/companion/core/course"
	"github.com/trezcool/companion/core/gate"
	"github.com/trezcool/companion/core/identity"
	"github.com/trezcool/companion/core/rolerequest"
	"github.com/trezcool/companion/core/user"
	emailsvc "github.com/trezcool/companion/services/email"
	inmemdb "github.com/trezcool/companion/storage/database/inmem"
)

// Stack is an in-memory application: local credentials, profiles, role requests, courses and the gate over them.
type Stack struct {
	Conf        *core.Config
	DB          *inmemdb.DB
	Validate    *validator.Validate
	Translator  ut.Translator
	MailSvc     *emailsvc.ConsoleService
	Provider    *identity.LocalProvider
	ProfileRepo user.Repository
	Profiles    *user.Service
	Requests    rolerequest.Repository
	Denylist    identity.Denylist
	Courses     *course.Service
	Gate        *gate.Gate
}

// Option customizes the gate dependencies before the gate is built.
type Option func(*Stack, *gate.Deps)

func NewConfig() *core.Config {
	return &core.Config{
		AppName:                   "Companion",
		Env:                       "TEST",
		TestMode:                  true,
		SecretKey:                 "secret",
		DefaultFromEmail:          "noreply@localhost",
		FrontendBaseURL:           "http://localhost:8080",
		PasswordResetTimeoutDelta: 24 * time.Hour,
		StorageBackend:            "memory",
		IdentityBackend:           "local",
		Server: core.ServerConfig{
			Address:         ":0",
			Host:            "localhost",
			JWTSecret:       "secret",
			JWTExpiration:   time.Hour,
			ShutdownTimeout: time.Second,
		},
	}
}

func NewStack(t *testing.T, opts ...Option) *Stack {
	t.Helper()

	conf := NewConfig()
	db := inmemdb.Open()
	translator := core.NewTranslator()
	s := &Stack{
		Conf:        conf,
		DB:          db,
		Translator:  translator,
		Validate:    core.NewValidator(translator),
		MailSvc:     emailsvc.NewConsoleServiceMock(conf),
		ProfileRepo: inmemdb.NewProfileRepository(db),
		Requests:    inmemdb.NewRoleRequestRepository(db),
		Denylist:    inmemdb.NewDenylist(db),
	}
	s.Profiles = user.NewService(s.ProfileRepo)
	s.Courses = course.NewService(inmemdb.NewCourseRepository(db), s.Validate)
	s.Provider = identity.NewLocalProvider(inmemdb.NewCredentialRepository(db), s.MailSvc, s.Validate, conf)

	deps := gate.Deps{
		Provider: s.Provider,
		Profiles: s.Profiles,
		Requests: s.Requests,
		Validate: s.Validate,
		MailSvc:  s.MailSvc,
	}
	for _, opt := range opts {
		opt(s, &deps)
	}
	g, err := gate.New(deps)
	require.NoError(t, err)
	s.Gate = g
	return s
}

// CreateAccount signs up email and stores a profile with role, bypassing self-registration.
func CreateAccount(t *testing.T, s *Stack, name, email, pwd string, role user.Role) user.Profile {
	t.Helper()
	ctx := context.Background()
	id, err := s.Provider.SignUp(ctx, email, pwd)
	require.NoError(t, err)
	p, err := s.Profiles.CreateProfile(ctx, id.ID, name, email, role)
	require.NoError(t, err)
	return p
}

// SubmitRequest files a pending request of p for role.
func SubmitRequest(t *testing.T, s *Stack, p user.Profile, role user.Role) string {
	t.Helper()
	id, err := s.Gate.RequestRoleChange(context.Background(), p.ID, p.Name, p.Email, "details", role)
	require.NoError(t, err)
	return id
}
