package sqlxrepos

import (
	"context"
	"database/sql"

	"github.com/lib/pq"

	"github.com/trezcool/companion/core"
	"github.com/trezcool/companion/core/identity"
)

const (
	credentialColumns = "email, identity_id, password_hash, created_at, last_login"

	uniqueViolation = pq.ErrorCode("23505")
)

type credentialRepository struct {
	db core.DB
}

var (
	_ identity.CredentialRepository = (*credentialRepository)(nil)
	_ identity.Denylist             = (*credentialRepository)(nil)
)

func NewCredentialRepository(db core.DB) identity.CredentialRepository {
	return &credentialRepository{db: db}
}

// NewDenylist returns the revoked tokens table; expired rows are deleted on write.
func NewDenylist(db core.DB) identity.Denylist {
	return &credentialRepository{db: db}
}

func (repo *credentialRepository) CreateCredential(ctx context.Context, cred identity.Credential) error {
	_, err := repo.db.NamedExecContext(ctx, `
		INSERT INTO credentials (email, identity_id, password_hash, created_at, last_login)
		VALUES (:email, :identity_id, :password_hash, :created_at, :last_login)`, cred)
	if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == uniqueViolation {
		return identity.ErrCredentialExists
	}
	return core.NewStoreError("creating credential", err)
}

func (repo *credentialRepository) GetCredentialByEmail(ctx context.Context, email string) (identity.Credential, error) {
	return repo.getCredential(ctx, "email", email)
}

func (repo *credentialRepository) GetCredentialByIdentityID(ctx context.Context, identityID string) (identity.Credential, error) {
	return repo.getCredential(ctx, "identity_id", identityID)
}

func (repo *credentialRepository) getCredential(ctx context.Context, column, value string) (identity.Credential, error) {
	var cred identity.Credential
	q := "SELECT " + credentialColumns + " FROM credentials WHERE " + column + " = $1"
	if err := repo.db.GetContext(ctx, &cred, q, value); err != nil {
		if err == sql.ErrNoRows {
			return identity.Credential{}, identity.ErrCredentialNotFound
		}
		return identity.Credential{}, core.NewStoreError("getting credential", err)
	}
	return cred, nil
}

func (repo *credentialRepository) UpdateCredential(ctx context.Context, cred identity.Credential) error {
	res, err := repo.db.NamedExecContext(ctx, `
		UPDATE credentials SET password_hash = :password_hash, last_login = :last_login
		WHERE email = :email`, cred)
	if err != nil {
		return core.NewStoreError("updating credential", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return core.NewStoreError("updating credential", err)
	} else if n == 0 {
		return identity.ErrCredentialNotFound
	}
	return nil
}

func (repo *credentialRepository) Revoke(ctx context.Context, tokenID string, expiresAt int64) error {
	now := core.NowMillis()
	if _, err := repo.db.ExecContext(ctx, "DELETE FROM revoked_tokens WHERE expires_at <= $1", now); err != nil {
		return core.NewStoreError("pruning revoked tokens", err)
	}
	_, err := repo.db.ExecContext(ctx, `
		INSERT INTO revoked_tokens (token_id, expires_at) VALUES ($1, $2)
		ON CONFLICT (token_id) DO UPDATE SET expires_at = EXCLUDED.expires_at`, tokenID, expiresAt)
	return core.NewStoreError("revoking token", err)
}

func (repo *credentialRepository) IsRevoked(ctx context.Context, tokenID string) (bool, error) {
	var revoked bool
	err := repo.db.GetContext(ctx, &revoked,
		"SELECT EXISTS (SELECT 1 FROM revoked_tokens WHERE token_id = $1 AND expires_at > $2)",
		tokenID, core.NowMillis())
	if err != nil {
		return false, core.NewStoreError("checking revoked token", err)
	}
	return revoked, nil
}
