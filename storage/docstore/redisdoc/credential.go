package redisdoc

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/trezcool/companion/core"
	"github.com/trezcool/companion/core/identity"
)

const (
	credentialsCollection = "credentials"
	identityIndex         = "credentials:identities" // hash {identity id: email}
	revokedPrefix         = "revokedTokens/"
)

type credentialRepository struct {
	client *redis.Client
}

var (
	_ identity.CredentialRepository = (*credentialRepository)(nil)
	_ identity.Denylist             = (*credentialRepository)(nil)
)

func NewCredentialRepository(client *redis.Client) identity.CredentialRepository {
	return &credentialRepository{client: client}
}

// NewDenylist returns the revoked tokens list. Entries expire with their token.
func NewDenylist(client *redis.Client) identity.Denylist {
	return &credentialRepository{client: client}
}

func (repo *credentialRepository) CreateCredential(ctx context.Context, cred identity.Credential) error {
	key := docKey(credentialsCollection, cred.Email)
	err := watch(ctx, repo.client, func(tx *redis.Tx) error {
		n, err := tx.Exists(ctx, key).Result()
		if err != nil {
			return err
		}
		if n > 0 {
			return identity.ErrCredentialExists
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, identityIndex, cred.IdentityID, cred.Email)
			return putDoc(ctx, pipe, credentialsCollection, cred.Email, cred)
		})
		return err
	}, key)
	if err == identity.ErrCredentialExists {
		return err
	}
	return core.NewStoreError("creating credential", err)
}

func (repo *credentialRepository) GetCredentialByEmail(ctx context.Context, email string) (identity.Credential, error) {
	var cred identity.Credential
	found, err := getDoc(ctx, repo.client, docKey(credentialsCollection, email), &cred)
	if err != nil {
		return cred, core.NewStoreError("getting credential", err)
	}
	if !found {
		return cred, identity.ErrCredentialNotFound
	}
	return cred, nil
}

func (repo *credentialRepository) GetCredentialByIdentityID(ctx context.Context, identityID string) (identity.Credential, error) {
	email, err := repo.client.HGet(ctx, identityIndex, identityID).Result()
	if err == redis.Nil {
		return identity.Credential{}, identity.ErrCredentialNotFound
	}
	if err != nil {
		return identity.Credential{}, core.NewStoreError("getting credential", err)
	}
	return repo.GetCredentialByEmail(ctx, email)
}

func (repo *credentialRepository) UpdateCredential(ctx context.Context, cred identity.Credential) error {
	key := docKey(credentialsCollection, cred.Email)
	err := watch(ctx, repo.client, func(tx *redis.Tx) error {
		n, err := tx.Exists(ctx, key).Result()
		if err != nil {
			return err
		}
		if n == 0 {
			return identity.ErrCredentialNotFound
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			return putDoc(ctx, pipe, credentialsCollection, cred.Email, cred)
		})
		return err
	}, key)
	if err == identity.ErrCredentialNotFound {
		return err
	}
	return core.NewStoreError("updating credential", err)
}

func (repo *credentialRepository) Revoke(ctx context.Context, tokenID string, expiresAt int64) error {
	ttl := time.Duration(expiresAt-core.NowMillis()) * time.Millisecond
	if ttl <= 0 {
		return nil // already expired
	}
	return core.NewStoreError("revoking token", repo.client.Set(ctx, revokedPrefix+tokenID, expiresAt, ttl).Err())
}

func (repo *credentialRepository) IsRevoked(ctx context.Context, tokenID string) (bool, error) {
	n, err := repo.client.Exists(ctx, revokedPrefix+tokenID).Result()
	if err != nil {
		return false, core.NewStoreError("checking revoked token", err)
	}
	return n > 0, nil
}
