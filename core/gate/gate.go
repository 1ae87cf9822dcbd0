package gate

import (
	"context"
	"fmt"
	"net/mail"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	"github.com/trezcool/companion/core"
	"github.com/trezcool/companion/core/identity"
	"github.com/trezcool/companion/core/rolerequest"
	"github.com/trezcool/companion/core/user"
)

var (
	// errors
	ErrProfilePending    = errors.New("registration successful but failed to create profile, please log in")
	ErrInvalidTargetRole = errors.New("only TEACHER and ADMIN roles can be requested")
)

// ConsistencyError reports an approved request whose role was not granted.
// The request stays approved: Reconcile repairs the profile later.
type ConsistencyError struct {
	RequestID string
	UserID    string
	Role      user.Role
	Err       error
}

func (e *ConsistencyError) Error() string {
	return fmt.Sprintf("request %s approved but role %s not granted to %s: %v", e.RequestID, e.Role, e.UserID, e.Err)
}

func (e *ConsistencyError) Unwrap() error { return e.Err }

type (
	Deps struct {
		Provider identity.Provider
		Profiles *user.Service
		Requests rolerequest.Repository
		Validate *validator.Validate
		Logger   core.Logger
		MailSvc  core.EmailService // optional, sends decision notices
	}

	// Gate is the stateless orchestrator of login, registration and role requests.
	// Every call re-reads the stores; nothing is cached between calls.
	Gate struct {
		provider identity.Provider
		profiles *user.Service
		stores   map[user.Role]*rolerequest.Store
		validate *validator.Validate
		logger   core.Logger
		mailSvc  core.EmailService
	}

	// Registration is the self-registration form.
	Registration struct {
		Name            string `json:"name" validate:"notblank"`
		Email           string `json:"email" validate:"required,email"`
		Password        string `json:"password" validate:"min=6"`
		PasswordConfirm string `json:"password_confirm" validate:"eqfield=Password"`
	}

	decisionMailData struct {
		Name     string
		Role     user.Role
		Status   rolerequest.Status
		Approved bool
	}
)

func New(deps Deps) (*Gate, error) {
	g := &Gate{
		provider: deps.Provider,
		profiles: deps.Profiles,
		stores:   make(map[user.Role]*rolerequest.Store, 2),
		validate: deps.Validate,
		logger:   deps.Logger,
		mailSvc:  deps.MailSvc,
	}
	if g.logger == nil {
		g.logger = core.NopLogger{}
	}
	for _, role := range []user.Role{user.RoleTeacher, user.RoleAdmin} {
		store, err := rolerequest.NewStore(deps.Requests, role)
		if err != nil {
			return nil, errors.Wrap(err, "creating role request store")
		}
		g.stores[role] = store
	}
	return g, nil
}

func (g *Gate) Provider() identity.Provider { return g.provider }

func (g *Gate) store(role user.Role) (*rolerequest.Store, error) {
	if store, ok := g.stores[role]; ok {
		return store, nil
	}
	return nil, errors.Wrapf(ErrInvalidTargetRole, "%q", role)
}

// Login authenticates the credentials then routes the session by profile role.
// A provider failure ends in LoginFailed with the provider error verbatim and no profile lookup.
func (g *Gate) Login(ctx context.Context, email, password string) Session {
	sess := Session{State: Authenticating}

	id, err := g.provider.SignIn(ctx, email, password)
	if err != nil {
		sess.State = LoginFailed
		sess.Err = err
		return sess
	}
	return g.Resume(ctx, id)
}

// Resume routes an already authenticated identity.
// When the profile cannot be read the session falls back to the student dashboard.
func (g *Gate) Resume(ctx context.Context, id identity.Identity) Session {
	sess := Session{State: Authenticating, Identity: id}

	p, err := g.profiles.GetProfile(ctx, id.ID)
	if err != nil {
		g.logger.Warn(fmt.Sprintf("profile of %s unavailable, routing to %s dashboard", id.ID, RouteStudent), err)
		sess.State = RoutedStudent
		return sess
	}
	sess.Profile = &p
	sess.State = RouteFor(p.Role)
	return sess
}

// Logout ends the session.
func (g *Gate) Logout(Session) Session {
	return Session{State: Unauthenticated}
}

// Register validates the form locally, creates the account then a STUDENT profile.
// Validation failures are returned as validator.ValidationErrors and never reach the provider.
// When the profile cannot be written the account is kept and ErrProfilePending is returned.
func (g *Gate) Register(ctx context.Context, reg Registration) (Session, error) {
	reg.Name = core.CleanString(reg.Name)
	reg.Email = core.CleanString(reg.Email, true /* lower */)
	if err := g.validate.Struct(reg); err != nil {
		return Session{State: Unauthenticated}, err
	}

	id, err := g.provider.SignUp(ctx, reg.Email, reg.Password)
	if err != nil {
		return Session{State: Unauthenticated, Err: err}, err
	}

	p, err := g.profiles.CreateProfile(ctx, id.ID, reg.Name, reg.Email, user.RoleStudent)
	if err != nil {
		g.logger.Error(fmt.Sprintf("creating profile of %s", id.ID), err)
		return Session{State: Unauthenticated, Identity: id, Err: ErrProfilePending}, ErrProfilePending
	}
	return Session{State: RoutedStudent, Identity: id, Profile: &p}, nil
}

// SendPasswordReset asks the provider to mail reset instructions.
func (g *Gate) SendPasswordReset(ctx context.Context, email string) error {
	return g.provider.SendPasswordReset(ctx, core.CleanString(email, true /* lower */))
}

// RequestRoleChange files a pending request in the collection of targetRole.
// Any authenticated identity may ask for any requestable role, duplicates included.
func (g *Gate) RequestRoleChange(ctx context.Context, userID, name, email, details string, targetRole user.Role) (string, error) {
	store, err := g.store(targetRole)
	if err != nil {
		return "", err
	}
	return store.Submit(ctx, userID, name, email, details)
}

// DecideRequest approves or rejects a pending request. Approval grants targetRole to the requester.
// Backends implementing rolerequest.Granter apply both writes atomically. Otherwise the status is
// written first and a failed grant is reported as *ConsistencyError.
func (g *Gate) DecideRequest(ctx context.Context, requestID string, targetRole user.Role, approved bool) (rolerequest.RoleRequest, error) {
	store, err := g.store(targetRole)
	if err != nil {
		return rolerequest.RoleRequest{}, err
	}

	req, err := store.GetByID(ctx, requestID)
	if err != nil {
		return rolerequest.RoleRequest{}, err
	}
	if !req.IsPending() {
		return req, errors.Wrapf(rolerequest.ErrAlreadyResolved, "request %s is %s", req.ID, req.Status)
	}

	switch {
	case !approved:
		if err = store.SetStatus(ctx, req.ID, rolerequest.StatusRejected); err != nil {
			return req, err
		}
		req.Status = rolerequest.StatusRejected

	default:
		if granter, ok := store.Granter(); ok {
			if err = granter.ResolveAndGrant(ctx, store.CollectionName(), req.ID, targetRole); err != nil {
				return req, errors.Wrap(err, "approving role request")
			}
			req.Status = rolerequest.StatusApproved
			break
		}

		if err = store.SetStatus(ctx, req.ID, rolerequest.StatusApproved); err != nil {
			return req, err
		}
		req.Status = rolerequest.StatusApproved
		if err = g.profiles.SetRole(ctx, req.UserID, targetRole); err != nil {
			cerr := &ConsistencyError{RequestID: req.ID, UserID: req.UserID, Role: targetRole, Err: err}
			g.logger.Error(cerr.Error(), cerr)
			return req, cerr
		}
	}

	g.notifyDecision(req)
	return req, nil
}

// Reconcile grants the requested role to every requester of an approved request whose profile
// still holds a lower role. It returns the number of repaired profiles, also when some could not be
// repaired. Requests whose requester has no profile are skipped.
func (g *Gate) Reconcile(ctx context.Context) (int, error) {
	var (
		repaired int
		lastErr  error
	)
	for _, role := range []user.Role{user.RoleTeacher, user.RoleAdmin} {
		reqs, err := g.stores[role].QueryAll(ctx)
		if err != nil {
			return repaired, err
		}
		for _, req := range reqs {
			if req.Status != rolerequest.StatusApproved {
				continue
			}
			p, err := g.profiles.GetProfile(ctx, req.UserID)
			if errors.Is(err, user.ErrNotFound) {
				g.logger.Warn(fmt.Sprintf("reconcile: skipping request %s, %s has no profile", req.ID, req.UserID), err)
				continue
			}
			if err != nil {
				g.logger.Warn(fmt.Sprintf("reconcile: profile of %s unavailable", req.UserID), err)
				lastErr = err
				continue
			}
			if p.Role.Priority() >= role.Priority() {
				continue
			}
			if err = g.profiles.SetRole(ctx, p.ID, role); err != nil {
				g.logger.Error(fmt.Sprintf("reconcile: granting %s to %s", role, p.ID), err)
				lastErr = err
				continue
			}
			g.logger.Info(fmt.Sprintf("reconcile: granted %s to %s (request %s)", role, p.ID, req.ID))
			repaired++
		}
	}
	return repaired, errors.Wrap(lastErr, "reconciling role requests")
}

// ListRequests returns every request of the collection of targetRole.
func (g *Gate) ListRequests(ctx context.Context, targetRole user.Role) ([]rolerequest.RoleRequest, error) {
	store, err := g.store(targetRole)
	if err != nil {
		return nil, err
	}
	return store.QueryAll(ctx)
}

// PendingRequests returns the requests of targetRole waiting for a decision.
func (g *Gate) PendingRequests(ctx context.Context, targetRole user.Role) ([]rolerequest.RoleRequest, error) {
	reqs, err := g.ListRequests(ctx, targetRole)
	if err != nil {
		return nil, err
	}
	return rolerequest.FilterPending(reqs), nil
}

func (g *Gate) GetRequest(ctx context.Context, targetRole user.Role, requestID string) (rolerequest.RoleRequest, error) {
	store, err := g.store(targetRole)
	if err != nil {
		return rolerequest.RoleRequest{}, err
	}
	return store.GetByID(ctx, requestID)
}

func (g *Gate) notifyDecision(req rolerequest.RoleRequest) {
	if g.mailSvc == nil || req.Email == "" {
		return
	}
	g.mailSvc.SendMessages(&core.EmailMessage{
		To:           []mail.Address{{Name: req.Name, Address: req.Email}},
		Subject:      "Role Request " + string(req.Status),
		TemplateName: "role_request_decision",
		TemplateData: decisionMailData{
			Name:     req.Name,
			Role:     req.RequestedRole,
			Status:   req.Status,
			Approved: req.Status == rolerequest.StatusApproved,
		},
	})
}
