package gate

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/companion/core"
	"github.com/trezcool/companion/core/identity"
	"github.com/trezcool/companion/core/rolerequest"
	"github.com/trezcool/companion/core/user"
	"github.com/trezcool/companion/storage/database/inmem"
)

// countingProvider is an in-process credential service counting its calls.
type countingProvider struct {
	mu       sync.Mutex
	accounts map[string]fakeAccount // {email: account}
	signUps  int
	signIns  int
	resets   int
	err      error // returned by every call when set
}

type fakeAccount struct {
	id  string
	pwd string
}

var _ identity.Provider = (*countingProvider)(nil)

func newCountingProvider() *countingProvider {
	return &countingProvider{accounts: make(map[string]fakeAccount)}
}

func (p *countingProvider) SignUp(_ context.Context, email, password string) (identity.Identity, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.signUps++
	if p.err != nil {
		return identity.Identity{}, p.err
	}
	if _, ok := p.accounts[email]; ok {
		return identity.Identity{}, identity.NewAuthError(identity.ReasonEmailExists)
	}
	acc := fakeAccount{id: uuid.New().String(), pwd: password}
	p.accounts[email] = acc
	return identity.Identity{ID: acc.id, Email: email}, nil
}

func (p *countingProvider) SignIn(_ context.Context, email, password string) (identity.Identity, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.signIns++
	if p.err != nil {
		return identity.Identity{}, p.err
	}
	acc, ok := p.accounts[email]
	if !ok {
		return identity.Identity{}, identity.NewAuthError(identity.ReasonEmailNotFound)
	}
	if acc.pwd != password {
		return identity.Identity{}, identity.NewAuthError(identity.ReasonInvalidPassword)
	}
	return identity.Identity{ID: acc.id, Email: email}, nil
}

func (p *countingProvider) SendPasswordReset(context.Context, string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.resets++
	return p.err
}

func (p *countingProvider) calls() (signUps, signIns int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.signUps, p.signIns
}

// flakyProfiles counts reads and fails the operations it is told to.
type flakyProfiles struct {
	user.Repository

	mu         sync.Mutex
	gets       int
	getErr     error
	upsertErr  error
	setRoleErr error
	failOnce   bool // setRoleErr is cleared after its first use
}

func (r *flakyProfiles) GetProfile(ctx context.Context, id string) (user.Profile, error) {
	r.mu.Lock()
	r.gets++
	err := r.getErr
	r.mu.Unlock()
	if err != nil {
		return user.Profile{}, err
	}
	return r.Repository.GetProfile(ctx, id)
}

func (r *flakyProfiles) UpsertProfile(ctx context.Context, p user.Profile) error {
	if r.upsertErr != nil {
		return r.upsertErr
	}
	return r.Repository.UpsertProfile(ctx, p)
}

func (r *flakyProfiles) SetProfileRole(ctx context.Context, id string, role user.Role) error {
	r.mu.Lock()
	err := r.setRoleErr
	if r.failOnce {
		r.setRoleErr = nil
	}
	r.mu.Unlock()
	if err != nil {
		return err
	}
	return r.Repository.SetProfileRole(ctx, id, role)
}

func (r *flakyProfiles) profileReads() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.gets
}

// plainRequests hides the rolerequest.Granter capability of the wrapped repository.
type plainRequests struct {
	rolerequest.Repository
}

type sentMails struct {
	mu   sync.Mutex
	msgs []*core.EmailMessage
}

func (s *sentMails) SendMessages(messages ...*core.EmailMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.msgs = append(s.msgs, messages...)
}

type fixture struct {
	gate     *Gate
	provider *countingProvider
	profiles *flakyProfiles
	requests rolerequest.Repository
	mails    *sentMails
}

type fixtureOption func(*Deps, *fixture)

func withoutGranter() fixtureOption {
	return func(deps *Deps, f *fixture) {
		deps.Requests = plainRequests{f.requests}
	}
}

func newFixture(t *testing.T, opts ...fixtureOption) *fixture {
	t.Helper()

	db := inmemdb.Open()
	f := &fixture{
		provider: newCountingProvider(),
		profiles: &flakyProfiles{Repository: inmemdb.NewProfileRepository(db)},
		requests: inmemdb.NewRoleRequestRepository(db),
		mails:    new(sentMails),
	}
	deps := Deps{
		Provider: f.provider,
		Profiles: user.NewService(f.profiles),
		Requests: f.requests,
		Validate: core.NewValidator(core.NewTranslator()),
		MailSvc:  f.mails,
	}
	for _, opt := range opts {
		opt(&deps, f)
	}

	g, err := New(deps)
	require.NoError(t, err)
	f.gate = g
	return f
}

// createProfile stores a profile with a role, bypassing registration.
func (f *fixture) createProfile(t *testing.T, id, name, email string, role user.Role) user.Profile {
	t.Helper()
	p, err := f.gate.profiles.CreateProfile(context.Background(), id, name, email, role)
	require.NoError(t, err)
	return p
}

// createAccount registers credentials with the provider and a profile with the given role.
func (f *fixture) createAccount(t *testing.T, name, email, pwd string, role user.Role) identity.Identity {
	t.Helper()
	id, err := f.provider.SignUp(context.Background(), email, pwd)
	require.NoError(t, err)
	f.createProfile(t, id.ID, name, email, role)
	return id
}
