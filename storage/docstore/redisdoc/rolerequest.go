package redisdoc

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"

	"github.com/trezcool/companion/core"
	"github.com/trezcool/companion/core/rolerequest"
	"github.com/trezcool/companion/core/user"
)

type roleRequestRepository struct {
	client *redis.Client
}

var (
	_ rolerequest.Repository = (*roleRequestRepository)(nil)
	_ rolerequest.Granter    = (*roleRequestRepository)(nil)
)

// NewRoleRequestRepository returns a repository that also implements rolerequest.Granter.
func NewRoleRequestRepository(client *redis.Client) rolerequest.Repository {
	return &roleRequestRepository{client: client}
}

func (repo *roleRequestRepository) InsertRequest(ctx context.Context, collection string, r rolerequest.RoleRequest) error {
	_, err := repo.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		return putDoc(ctx, pipe, collection, r.ID, r)
	})
	return core.NewStoreError("inserting role request", err)
}

func (repo *roleRequestRepository) QueryAllRequests(ctx context.Context, collection string) ([]rolerequest.RoleRequest, error) {
	var reqs []rolerequest.RoleRequest
	err := queryAll(ctx, repo.client, collection, func(data []byte) error {
		var r rolerequest.RoleRequest
		if err := json.Unmarshal(data, &r); err != nil {
			return err
		}
		reqs = append(reqs, r)
		return nil
	})
	if err != nil {
		return nil, core.NewStoreError("querying role requests", err)
	}
	return reqs, nil
}

func (repo *roleRequestRepository) GetRequest(ctx context.Context, collection, id string) (rolerequest.RoleRequest, error) {
	var r rolerequest.RoleRequest
	found, err := getDoc(ctx, repo.client, docKey(collection, id), &r)
	if err != nil {
		return rolerequest.RoleRequest{}, core.NewStoreError("getting role request", err)
	}
	if !found {
		return rolerequest.RoleRequest{}, rolerequest.ErrNotFound
	}
	return r, nil
}

func (repo *roleRequestRepository) ResolveRequest(ctx context.Context, collection, id string, status rolerequest.Status) error {
	key := docKey(collection, id)
	err := watch(ctx, repo.client, func(tx *redis.Tx) error {
		r, err := getPending(ctx, tx, key)
		if err != nil {
			return err
		}
		r.Status = status
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			return putDoc(ctx, pipe, collection, id, r)
		})
		return err
	}, key)
	return storeError("resolving role request", err)
}

// ResolveAndGrant approves the request and writes the requester's role in one MULTI/EXEC,
// watching both documents.
func (repo *roleRequestRepository) ResolveAndGrant(ctx context.Context, collection, id string, role user.Role) error {
	key := docKey(collection, id)
	r, err := repo.GetRequest(ctx, collection, id)
	if err != nil {
		return err
	}
	profileKey := docKey(usersCollection, r.UserID)

	err = watch(ctx, repo.client, func(tx *redis.Tx) error {
		r, err := getPending(ctx, tx, key)
		if err != nil {
			return err
		}
		var p user.Profile
		found, err := getDoc(ctx, tx, profileKey, &p)
		if err != nil {
			return err
		}
		if !found {
			return user.ErrNotFound
		}

		r.Status = rolerequest.StatusApproved
		p.Role = role
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			if err := putDoc(ctx, pipe, collection, id, r); err != nil {
				return err
			}
			return putDoc(ctx, pipe, usersCollection, p.ID, p)
		})
		return err
	}, key, profileKey)
	return storeError("approving role request", err)
}

func getPending(ctx context.Context, tx *redis.Tx, key string) (rolerequest.RoleRequest, error) {
	var r rolerequest.RoleRequest
	found, err := getDoc(ctx, tx, key, &r)
	if err != nil {
		return r, err
	}
	if !found {
		return r, rolerequest.ErrNotFound
	}
	if !r.IsPending() {
		return r, rolerequest.ErrAlreadyResolved
	}
	return r, nil
}

// storeError labels err as a store failure unless it is one of the domain sentinels.
func storeError(op string, err error) error {
	switch err {
	case nil, rolerequest.ErrNotFound, rolerequest.ErrAlreadyResolved, user.ErrNotFound:
		return err
	}
	return core.NewStoreError(op, err)
}
