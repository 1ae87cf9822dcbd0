package inmemdb

import (
	"context"

	"github.com/trezcool/companion/core"
	"github.com/trezcool/companion/core/identity"
)

type credentialRepository struct {
	db *DB
}

var (
	_ identity.CredentialRepository = (*credentialRepository)(nil)
	_ identity.Denylist             = (*credentialRepository)(nil)
)

func NewCredentialRepository(db *DB) identity.CredentialRepository {
	return &credentialRepository{db: db}
}

// NewDenylist returns the revoked tokens list; expired entries are dropped on write.
func NewDenylist(db *DB) identity.Denylist {
	return &credentialRepository{db: db}
}

func (repo *credentialRepository) CreateCredential(_ context.Context, cred identity.Credential) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	if _, ok := repo.db.credentials[cred.Email]; ok {
		return identity.ErrCredentialExists
	}
	repo.db.credentials[cred.Email] = cred
	return nil
}

func (repo *credentialRepository) GetCredentialByEmail(_ context.Context, email string) (identity.Credential, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if cred, ok := repo.db.credentials[email]; ok {
		return cred, nil
	}
	return identity.Credential{}, identity.ErrCredentialNotFound
}

func (repo *credentialRepository) GetCredentialByIdentityID(_ context.Context, identityID string) (identity.Credential, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	for _, cred := range repo.db.credentials {
		if cred.IdentityID == identityID {
			return cred, nil
		}
	}
	return identity.Credential{}, identity.ErrCredentialNotFound
}

func (repo *credentialRepository) UpdateCredential(_ context.Context, cred identity.Credential) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	if _, ok := repo.db.credentials[cred.Email]; !ok {
		return identity.ErrCredentialNotFound
	}
	repo.db.credentials[cred.Email] = cred
	return nil
}

func (repo *credentialRepository) Revoke(_ context.Context, tokenID string, expiresAt int64) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	now := core.NowMillis()
	for id, exp := range repo.db.revoked {
		if exp <= now {
			delete(repo.db.revoked, id)
		}
	}
	repo.db.revoked[tokenID] = expiresAt
	return nil
}

func (repo *credentialRepository) IsRevoked(_ context.Context, tokenID string) (bool, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	exp, ok := repo.db.revoked[tokenID]
	return ok && exp > core.NowMillis(), nil
}
