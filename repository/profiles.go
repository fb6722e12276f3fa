package repository

import (
	"context"
	"database/sql"
	stderrors "errors"
	"time"

	"github.com/goliatone/go-errors"
	"github.com/google/uuid"
	auth "github.com/tupahub/go-auth"
	"github.com/uptrace/bun"
)

// ErrProfileNotFound is returned when no profile exists for an id.
var ErrProfileNotFound = errors.New("profile not found", errors.CategoryNotFound).
	WithTextCode("PROFILE_NOT_FOUND").
	WithCode(errors.CodeNotFound)

var _ auth.ProfileRepository = (*ProfileRepository)(nil)

// ProfileRepository implements auth.ProfileRepository using Bun.
type ProfileRepository struct {
	db *bun.DB
}

// NewProfileRepository creates a new repository.
func NewProfileRepository(db *bun.DB) *ProfileRepository {
	return &ProfileRepository{db: db}
}

// CreateTable creates the profiles table when missing.
func (r *ProfileRepository) CreateTable(ctx context.Context) error {
	_, err := r.db.NewCreateTable().
		Model((*auth.Profile)(nil)).
		IfNotExists().
		Exec(ctx)
	return err
}

// Upsert implements auth.ProfileRepository. A row with the same id is
// replaced in place; created_at is kept.
func (r *ProfileRepository) Upsert(ctx context.Context, profile *auth.Profile) error {
	if profile == nil {
		return auth.ErrInvalidProfile
	}

	if profile.UpdatedAt == nil {
		now := time.Now()
		profile.UpdatedAt = &now
	}

	_, err := r.db.NewInsert().
		Model(profile).
		On("CONFLICT (id) DO UPDATE").
		Set("email = EXCLUDED.email").
		Set("full_name = EXCLUDED.full_name").
		Set("avatar_url = EXCLUDED.avatar_url").
		Set("role = EXCLUDED.role").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)

	return err
}

// GetByID returns the profile for id.
func (r *ProfileRepository) GetByID(ctx context.Context, id uuid.UUID) (*auth.Profile, error) {
	profile := new(auth.Profile)
	err := r.db.NewSelect().
		Model(profile).
		Where("?TableAlias.id = ?", id).
		Scan(ctx)
	if err != nil {
		if stderrors.Is(err, sql.ErrNoRows) {
			return nil, ErrProfileNotFound
		}
		return nil, err
	}
	return profile, nil
}

// Count returns the number of stored profiles.
func (r *ProfileRepository) Count(ctx context.Context) (int, error) {
	return r.db.NewSelect().
		Model((*auth.Profile)(nil)).
		Count(ctx)
}
