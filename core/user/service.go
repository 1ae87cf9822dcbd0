package user

import (
	"context"
	"sort"

	"github.com/pkg/errors"

	"github.com/trezcool/companion/core"
)

var (
	// errors
	ErrNotFound = errors.New("profile not found")
)

type (
	// Repository persists profiles in the `users` collection.
	// Failures other than a missing document are reported as *core.StoreError.
	Repository interface {
		// UpsertProfile writes the whole document, replacing any existing one.
		UpsertProfile(ctx context.Context, p Profile) error
		GetProfile(ctx context.Context, id string) (Profile, error)
		// SetProfileRole updates the role field only. ErrNotFound when the document is absent.
		SetProfileRole(ctx context.Context, id string, role Role) error
		QueryAllProfiles(ctx context.Context) ([]Profile, error)
	}

	Service struct {
		repo Repository
	}
)

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// CreateProfile writes a new profile at identityID. An existing profile is overwritten, not merged.
func (svc *Service) CreateProfile(ctx context.Context, identityID, name, email string, role Role) (Profile, error) {
	p := Profile{
		ID:        identityID,
		Name:      core.CleanString(name),
		Email:     core.CleanString(email, true /* lower */),
		Role:      role,
		CreatedAt: core.NowMillis(),
	}
	if err := svc.repo.UpsertProfile(ctx, p); err != nil {
		return Profile{}, errors.Wrap(err, "creating profile")
	}
	return p, nil
}

func (svc *Service) GetProfile(ctx context.Context, identityID string) (Profile, error) {
	p, err := svc.repo.GetProfile(ctx, identityID)
	if err != nil {
		return Profile{}, errors.Wrap(err, "getting profile")
	}
	return p, nil
}

// UpdateProfile overwrites the full record keyed by p.ID.
func (svc *Service) UpdateProfile(ctx context.Context, p Profile) error {
	if p.CreatedAt == 0 {
		p.CreatedAt = core.NowMillis()
	}
	return errors.Wrap(svc.repo.UpsertProfile(ctx, p), "updating profile")
}

func (svc *Service) SetRole(ctx context.Context, identityID string, role Role) error {
	if !role.IsValid() {
		return errors.Wrapf(errUnknownRole, "%q", role)
	}
	return errors.Wrap(svc.repo.SetProfileRole(ctx, identityID, role), "setting profile role")
}

// QueryAll returns the profiles holding one of roles, every profile when roles is empty. Oldest first.
func (svc *Service) QueryAll(ctx context.Context, roles ...Role) ([]Profile, error) {
	profiles, err := svc.repo.QueryAllProfiles(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "querying profiles")
	}
	if len(roles) > 0 {
		kept := profiles[:0]
		for _, p := range profiles {
			if hasRole(p, roles) {
				kept = append(kept, p)
			}
		}
		profiles = kept
	}
	sort.SliceStable(profiles, func(i, j int) bool {
		if profiles[i].CreatedAt != profiles[j].CreatedAt {
			return profiles[i].CreatedAt < profiles[j].CreatedAt
		}
		return profiles[i].ID < profiles[j].ID
	})
	return profiles, nil
}

func hasRole(p Profile, roles []Role) bool {
	for _, r := range roles {
		if p.Role == r {
			return true
		}
	}
	return false
}
