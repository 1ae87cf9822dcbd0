package rolerequest

import (
	"context"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/trezcool/companion/core"
	"github.com/trezcool/companion/core/user"
)

var (
	// errors
	ErrNotFound        = errors.New("role request not found")
	ErrAlreadyResolved = errors.New("role request already resolved")
	ErrInvalidRole     = errors.New("role cannot be requested")
)

type (
	// Repository persists role requests, one collection per requestable role.
	// Failures other than ErrNotFound and ErrAlreadyResolved are reported as *core.StoreError.
	Repository interface {
		InsertRequest(ctx context.Context, collection string, r RoleRequest) error
		QueryAllRequests(ctx context.Context, collection string) ([]RoleRequest, error)
		GetRequest(ctx context.Context, collection, id string) (RoleRequest, error)
		// ResolveRequest sets the status only while the stored one is pending.
		// A resolved request yields ErrAlreadyResolved and is left untouched.
		ResolveRequest(ctx context.Context, collection, id string, status Status) error
	}

	// Granter is implemented by backends able to approve a request and grant its role in one atomic write.
	Granter interface {
		// ResolveAndGrant marks the request approved and sets the requester's profile role to role.
		// Nothing is written when it fails: ErrNotFound, ErrAlreadyResolved, user.ErrNotFound or a store error.
		ResolveAndGrant(ctx context.Context, collection, id string, role user.Role) error
	}

	// Store is the Role-Request Store of one target role.
	Store struct {
		repo       Repository
		role       user.Role
		collection string
	}
)

func NewStore(repo Repository, role user.Role) (*Store, error) {
	collection := Collection(role)
	if collection == "" {
		return nil, errors.Wrapf(ErrInvalidRole, "%q", role)
	}
	return &Store{repo: repo, role: role, collection: collection}, nil
}

func (s *Store) Role() user.Role { return s.role }

func (s *Store) CollectionName() string { return s.collection }

// Granter returns the atomic approve-and-grant capability of the backend, if any.
func (s *Store) Granter() (Granter, bool) {
	g, ok := s.repo.(Granter)
	return g, ok
}

// Submit creates a pending request and returns its fresh id.
func (s *Store) Submit(ctx context.Context, userID, name, email, details string) (string, error) {
	r := RoleRequest{
		ID:            uuid.New().String(),
		UserID:        userID,
		Name:          core.CleanString(name),
		Email:         core.CleanString(email, true /* lower */),
		Details:       core.CleanString(details),
		RequestedRole: s.role,
		Status:        StatusPending,
		Timestamp:     core.NowMillis(),
	}
	if err := s.repo.InsertRequest(ctx, s.collection, r); err != nil {
		return "", errors.Wrap(err, "submitting role request")
	}
	return r.ID, nil
}

// QueryAll returns an unordered snapshot of every request of the collection, pending and resolved.
func (s *Store) QueryAll(ctx context.Context) ([]RoleRequest, error) {
	reqs, err := s.repo.QueryAllRequests(ctx, s.collection)
	if err != nil {
		return nil, errors.Wrap(err, "querying role requests")
	}
	return reqs, nil
}

func (s *Store) GetByID(ctx context.Context, id string) (RoleRequest, error) {
	r, err := s.repo.GetRequest(ctx, s.collection, id)
	if err != nil {
		return RoleRequest{}, errors.Wrap(err, "getting role request")
	}
	return r, nil
}

// SetStatus resolves a pending request. Status never moves back to pending nor changes once resolved.
func (s *Store) SetStatus(ctx context.Context, id string, status Status) error {
	if !status.IsResolved() {
		return errors.Wrapf(errInvalidStatus, "%q", status)
	}
	return errors.Wrap(s.repo.ResolveRequest(ctx, s.collection, id, status), "setting role request status")
}
