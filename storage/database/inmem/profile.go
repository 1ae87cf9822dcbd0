package inmemdb

import (
	"context"

	"github.com/trezcool/companion/core/user"
)

type profileRepository struct {
	db *DB
}

var _ user.Repository = (*profileRepository)(nil)

func NewProfileRepository(db *DB) user.Repository {
	return &profileRepository{db: db}
}

func (repo *profileRepository) UpsertProfile(_ context.Context, p user.Profile) error {
	repo.db.Lock()
	defer repo.db.Unlock()
	repo.db.users[p.ID] = p
	return nil
}

func (repo *profileRepository) GetProfile(_ context.Context, id string) (user.Profile, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if p, ok := repo.db.users[id]; ok {
		return p, nil
	}
	return user.Profile{}, user.ErrNotFound
}

func (repo *profileRepository) SetProfileRole(_ context.Context, id string, role user.Role) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	p, ok := repo.db.users[id]
	if !ok {
		return user.ErrNotFound
	}
	p.Role = role
	repo.db.users[id] = p
	return nil
}

func (repo *profileRepository) QueryAllProfiles(_ context.Context) ([]user.Profile, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	profiles := make([]user.Profile, 0, len(repo.db.users))
	for _, p := range repo.db.users {
		profiles = append(profiles, p)
	}
	return profiles, nil
}
