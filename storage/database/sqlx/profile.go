package sqlxrepos

import (
	"context"
	"database/sql"

	"github.com/trezcool/companion/core"
	"github.com/trezcool/companion/core/user"
)

type profileRepository struct {
	db core.DB
}

var _ user.Repository = (*profileRepository)(nil)

func NewProfileRepository(db core.DB) user.Repository {
	return &profileRepository{db: db}
}

func (repo *profileRepository) UpsertProfile(ctx context.Context, p user.Profile) error {
	_, err := repo.db.NamedExecContext(ctx, `
		INSERT INTO users (id, name, email, role, photo_url, created_at)
		VALUES (:id, :name, :email, :role, :photo_url, :created_at)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			email = EXCLUDED.email,
			role = EXCLUDED.role,
			photo_url = EXCLUDED.photo_url,
			created_at = EXCLUDED.created_at`, p)
	return core.NewStoreError("upserting profile", err)
}

func (repo *profileRepository) GetProfile(ctx context.Context, id string) (user.Profile, error) {
	return getProfile(ctx, repo.db, id, false)
}

func (repo *profileRepository) SetProfileRole(ctx context.Context, id string, role user.Role) error {
	return setProfileRole(ctx, repo.db, id, role)
}

func (repo *profileRepository) QueryAllProfiles(ctx context.Context) ([]user.Profile, error) {
	profiles := make([]user.Profile, 0)
	if err := repo.db.SelectContext(ctx, &profiles, "SELECT "+profileColumns+" FROM users"); err != nil {
		return nil, core.NewStoreError("querying profiles", err)
	}
	return profiles, nil
}

const profileColumns = "id, name, email, role, photo_url, created_at"

func getProfile(ctx context.Context, db core.DBExecutor, id string, forUpdate bool) (user.Profile, error) {
	q := "SELECT " + profileColumns + " FROM users WHERE id = $1"
	if forUpdate {
		q += " FOR UPDATE"
	}
	var p user.Profile
	if err := db.GetContext(ctx, &p, q, id); err != nil {
		if err == sql.ErrNoRows {
			return user.Profile{}, user.ErrNotFound
		}
		return user.Profile{}, core.NewStoreError("getting profile", err)
	}
	return p, nil
}

func setProfileRole(ctx context.Context, db core.DBExecutor, id string, role user.Role) error {
	res, err := db.ExecContext(ctx, "UPDATE users SET role = $1 WHERE id = $2", role, id)
	if err != nil {
		return core.NewStoreError("setting profile role", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return core.NewStoreError("setting profile role", err)
	} else if n == 0 {
		return user.ErrNotFound
	}
	return nil
}
