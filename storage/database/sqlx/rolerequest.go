package sqlxrepos

import (
	"context"
	"database/sql"

	"github.com/pkg/errors"

	"github.com/trezcool/companion/core"
	"github.com/trezcool/companion/core/rolerequest"
	"github.com/trezcool/companion/core/user"
)

const requestColumns = "id, user_id, name, email, details, requested_role, status, timestamp"

type (
	roleRequestRepository struct {
		db core.DB
	}

	requestRow struct {
		Collection string `db:"collection"`
		rolerequest.RoleRequest
	}
)

var (
	_ rolerequest.Repository = (*roleRequestRepository)(nil)
	_ rolerequest.Granter    = (*roleRequestRepository)(nil)
)

// NewRoleRequestRepository returns a repository that also implements rolerequest.Granter.
func NewRoleRequestRepository(db core.DB) rolerequest.Repository {
	return &roleRequestRepository{db: db}
}

func (repo *roleRequestRepository) InsertRequest(ctx context.Context, collection string, r rolerequest.RoleRequest) error {
	_, err := repo.db.NamedExecContext(ctx, `
		INSERT INTO role_requests (collection, id, user_id, name, email, details, requested_role, status, timestamp)
		VALUES (:collection, :id, :user_id, :name, :email, :details, :requested_role, :status, :timestamp)`,
		requestRow{Collection: collection, RoleRequest: r})
	return core.NewStoreError("inserting role request", err)
}

func (repo *roleRequestRepository) QueryAllRequests(ctx context.Context, collection string) ([]rolerequest.RoleRequest, error) {
	reqs := make([]rolerequest.RoleRequest, 0)
	q := "SELECT " + requestColumns + " FROM role_requests WHERE collection = $1"
	if err := repo.db.SelectContext(ctx, &reqs, q, collection); err != nil {
		return nil, core.NewStoreError("querying role requests", err)
	}
	return reqs, nil
}

func (repo *roleRequestRepository) GetRequest(ctx context.Context, collection, id string) (rolerequest.RoleRequest, error) {
	return getRequest(ctx, repo.db, collection, id, false)
}

func (repo *roleRequestRepository) ResolveRequest(ctx context.Context, collection, id string, status rolerequest.Status) error {
	return withTx(ctx, repo.db, "resolving role request", func(tx core.DBExecutor) error {
		if _, err := getPending(ctx, tx, collection, id); err != nil {
			return err
		}
		return setStatus(ctx, tx, collection, id, status)
	})
}

// ResolveAndGrant locks the request and the requester's profile, then writes both in one transaction.
func (repo *roleRequestRepository) ResolveAndGrant(ctx context.Context, collection, id string, role user.Role) error {
	return withTx(ctx, repo.db, "approving role request", func(tx core.DBExecutor) error {
		r, err := getPending(ctx, tx, collection, id)
		if err != nil {
			return err
		}
		if _, err = getProfile(ctx, tx, r.UserID, true); err != nil {
			return err
		}
		if err = setStatus(ctx, tx, collection, id, rolerequest.StatusApproved); err != nil {
			return err
		}
		return setProfileRole(ctx, tx, r.UserID, role)
	})
}

func getRequest(ctx context.Context, db core.DBExecutor, collection, id string, forUpdate bool) (rolerequest.RoleRequest, error) {
	q := "SELECT " + requestColumns + " FROM role_requests WHERE collection = $1 AND id = $2"
	if forUpdate {
		q += " FOR UPDATE"
	}
	var r rolerequest.RoleRequest
	if err := db.GetContext(ctx, &r, q, collection, id); err != nil {
		if err == sql.ErrNoRows {
			return rolerequest.RoleRequest{}, rolerequest.ErrNotFound
		}
		return rolerequest.RoleRequest{}, core.NewStoreError("getting role request", err)
	}
	return r, nil
}

func getPending(ctx context.Context, db core.DBExecutor, collection, id string) (rolerequest.RoleRequest, error) {
	r, err := getRequest(ctx, db, collection, id, true)
	if err != nil {
		return r, err
	}
	if !r.IsPending() {
		return r, rolerequest.ErrAlreadyResolved
	}
	return r, nil
}

func setStatus(ctx context.Context, db core.DBExecutor, collection, id string, status rolerequest.Status) error {
	_, err := db.ExecContext(ctx,
		"UPDATE role_requests SET status = $1 WHERE collection = $2 AND id = $3 AND status = $4",
		status, collection, id, rolerequest.StatusPending)
	return core.NewStoreError("setting role request status", err)
}

// withTx runs fn in a transaction, committed only when fn succeeds.
func withTx(ctx context.Context, db core.DB, op string, fn func(tx core.DBExecutor) error) error {
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return core.NewStoreError(op, err)
	}
	if err = fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return core.NewStoreError(op, errors.Wrap(tx.Commit(), "committing"))
}
