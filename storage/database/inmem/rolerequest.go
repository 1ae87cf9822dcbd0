package inmemdb

import (
	"context"

	"github.com/trezcool/companion/core/rolerequest"
	"github.com/trezcool/companion/core/user"
)

type roleRequestRepository struct {
	db *DB
}

var (
	_ rolerequest.Repository = (*roleRequestRepository)(nil)
	_ rolerequest.Granter    = (*roleRequestRepository)(nil)
)

// NewRoleRequestRepository returns a repository that also implements rolerequest.Granter.
func NewRoleRequestRepository(db *DB) rolerequest.Repository {
	return &roleRequestRepository{db: db}
}

func (repo *roleRequestRepository) InsertRequest(_ context.Context, collection string, r rolerequest.RoleRequest) error {
	repo.db.Lock()
	defer repo.db.Unlock()
	repo.db.collection(collection)[r.ID] = r
	return nil
}

func (repo *roleRequestRepository) QueryAllRequests(_ context.Context, collection string) ([]rolerequest.RoleRequest, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	coll := repo.db.requests[collection]
	reqs := make([]rolerequest.RoleRequest, 0, len(coll))
	for _, r := range coll {
		reqs = append(reqs, r)
	}
	return reqs, nil
}

func (repo *roleRequestRepository) GetRequest(_ context.Context, collection, id string) (rolerequest.RoleRequest, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if r, ok := repo.db.requests[collection][id]; ok {
		return r, nil
	}
	return rolerequest.RoleRequest{}, rolerequest.ErrNotFound
}

func (repo *roleRequestRepository) ResolveRequest(_ context.Context, collection, id string, status rolerequest.Status) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	_, err := repo.resolve(collection, id, status)
	return err
}

func (repo *roleRequestRepository) ResolveAndGrant(_ context.Context, collection, id string, role user.Role) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	r, ok := repo.db.requests[collection][id]
	if !ok {
		return rolerequest.ErrNotFound
	}
	if !r.IsPending() {
		return rolerequest.ErrAlreadyResolved
	}
	p, ok := repo.db.users[r.UserID]
	if !ok {
		return user.ErrNotFound
	}

	r.Status = rolerequest.StatusApproved
	p.Role = role
	repo.db.requests[collection][id] = r
	repo.db.users[p.ID] = p
	return nil
}

// resolve must be called with the write lock held.
func (repo *roleRequestRepository) resolve(collection, id string, status rolerequest.Status) (rolerequest.RoleRequest, error) {
	r, ok := repo.db.requests[collection][id]
	if !ok {
		return rolerequest.RoleRequest{}, rolerequest.ErrNotFound
	}
	if !r.IsPending() {
		return r, rolerequest.ErrAlreadyResolved
	}
	r.Status = status
	repo.db.requests[collection][id] = r
	return r, nil
}
