package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/taxinsta/dispatch/internal/models"
	"github.com/taxinsta/dispatch/pkg/utils"
)

// ProfileRepository fronts the profile collaborator: the core reads role to
// authorize operations and writes it only through the admin role change.
type ProfileRepository interface {
	Create(ctx context.Context, profile *models.Profile) error
	GetByID(ctx context.Context, id string) (*models.Profile, error)
	UpdateRole(ctx context.Context, id string, role models.Role) error
	ListByRole(ctx context.Context, role models.Role) ([]*models.Profile, error)
}

type profileRepository struct {
	db *sqlx.DB
}

func NewProfileRepository(db *sqlx.DB) ProfileRepository {
	return &profileRepository{db: db}
}

func (r *profileRepository) Create(ctx context.Context, profile *models.Profile) error {
	if profile.ID == "" {
		profile.ID = utils.GenerateID()
	}
	profile.CreatedAt = time.Now()
	profile.UpdatedAt = profile.CreatedAt

	query := `
		INSERT INTO profiles (id, display_name, phone, role, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := r.db.ExecContext(ctx, query,
		profile.ID, profile.DisplayName, profile.Phone, profile.Role,
		profile.CreatedAt, profile.UpdatedAt)
	return err
}

func (r *profileRepository) GetByID(ctx context.Context, id string) (*models.Profile, error) {
	var profile models.Profile
	query := `SELECT * FROM profiles WHERE id = $1`
	err := r.db.GetContext(ctx, &profile, query, id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return &profile, err
}

func (r *profileRepository) UpdateRole(ctx context.Context, id string, role models.Role) error {
	query := `UPDATE profiles SET role = $1, updated_at = $2 WHERE id = $3`
	_, err := r.db.ExecContext(ctx, query, role, time.Now(), id)
	return err
}

func (r *profileRepository) ListByRole(ctx context.Context, role models.Role) ([]*models.Profile, error) {
	var profiles []*models.Profile
	query := `SELECT * FROM profiles WHERE role = $1 ORDER BY created_at ASC`
	err := r.db.SelectContext(ctx, &profiles, query, role)
	return profiles, err
}
