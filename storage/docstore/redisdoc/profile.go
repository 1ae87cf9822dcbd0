package redisdoc

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"

	"github.com/trezcool/companion/core"
	"github.com/trezcool/companion/core/user"
)

const usersCollection = "users"

type profileRepository struct {
	client *redis.Client
}

var _ user.Repository = (*profileRepository)(nil)

func NewProfileRepository(client *redis.Client) user.Repository {
	return &profileRepository{client: client}
}

func (repo *profileRepository) UpsertProfile(ctx context.Context, p user.Profile) error {
	_, err := repo.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		return putDoc(ctx, pipe, usersCollection, p.ID, p)
	})
	return core.NewStoreError("upserting profile", err)
}

func (repo *profileRepository) GetProfile(ctx context.Context, id string) (user.Profile, error) {
	var p user.Profile
	found, err := getDoc(ctx, repo.client, docKey(usersCollection, id), &p)
	if err != nil {
		return user.Profile{}, core.NewStoreError("getting profile", err)
	}
	if !found {
		return user.Profile{}, user.ErrNotFound
	}
	return p, nil
}

func (repo *profileRepository) SetProfileRole(ctx context.Context, id string, role user.Role) error {
	key := docKey(usersCollection, id)
	err := watch(ctx, repo.client, func(tx *redis.Tx) error {
		var p user.Profile
		found, err := getDoc(ctx, tx, key, &p)
		if err != nil {
			return err
		}
		if !found {
			return user.ErrNotFound
		}
		p.Role = role
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			return putDoc(ctx, pipe, usersCollection, id, p)
		})
		return err
	}, key)
	if err == user.ErrNotFound {
		return err
	}
	return core.NewStoreError("setting profile role", err)
}

func (repo *profileRepository) QueryAllProfiles(ctx context.Context) ([]user.Profile, error) {
	var profiles []user.Profile
	err := queryAll(ctx, repo.client, usersCollection, func(data []byte) error {
		var p user.Profile
		if err := json.Unmarshal(data, &p); err != nil {
			return err
		}
		profiles = append(profiles, p)
		return nil
	})
	if err != nil {
		return nil, core.NewStoreError("querying profiles", err)
	}
	return profiles, nil
}
