package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/sakif/snuffspec/internal/apperror"
	"github.com/sakif/snuffspec/internal/model"
	"github.com/sakif/snuffspec/internal/repository"
)

var _ repository.ProfileRepository = (*DB)(nil)

// CreateProfile inserts a profile for an existing identity.
// A second profile for the same identity is a Conflict.
func (db *DB) CreateProfile(ctx context.Context, profile *model.UserProfile) error {
	now := db.now()
	profile.CreatedAt = now
	profile.UpdatedAt = now

	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO user_profiles (id, full_name, role, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?)`,
		profile.ID,
		profile.FullName,
		string(profile.Role),
		profile.CreatedAt,
		profile.UpdatedAt,
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") ||
			strings.Contains(err.Error(), "PRIMARY KEY") {
			return apperror.Conflict("user profile", profile.ID)
		}
		return fmt.Errorf("sqlite: creating profile %s: %w", profile.ID, err)
	}
	return nil
}

// GetProfile returns apperror.ErrNotFound when the identity has no profile.
func (db *DB) GetProfile(ctx context.Context, id string) (*model.UserProfile, error) {
	var (
		p    model.UserProfile
		role string
	)
	err := db.conn.QueryRowContext(ctx,
		`SELECT id, full_name, role, created_at, updated_at
		 FROM user_profiles WHERE id = ?`,
		id,
	).Scan(&p.ID, &p.FullName, &role, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("user profile", id)
		}
		return nil, fmt.Errorf("sqlite: getting profile %s: %w", id, err)
	}
	p.Role = model.Role(role)
	return &p, nil
}

func (db *DB) ListProfiles(ctx context.Context) ([]model.UserProfile, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT id, full_name, role, created_at, updated_at
		 FROM user_profiles
		 ORDER BY created_at DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing profiles: %w", err)
	}
	defer rows.Close()

	var profiles []model.UserProfile
	for rows.Next() {
		var (
			p    model.UserProfile
			role string
		)
		if err := rows.Scan(&p.ID, &p.FullName, &role, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("sqlite: scanning profile row: %w", err)
		}
		p.Role = model.Role(role)
		profiles = append(profiles, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating profiles: %w", err)
	}
	return profiles, nil
}

func (db *DB) UpdateRole(ctx context.Context, id string, role model.Role) error {
	result, err := db.conn.ExecContext(ctx,
		`UPDATE user_profiles SET role = ?, updated_at = ? WHERE id = ?`,
		string(role), db.now(), id,
	)
	if err != nil {
		return fmt.Errorf("sqlite: updating role for %s: %w", id, err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return apperror.NotFound("user profile", id)
	}
	return nil
}

func (db *DB) DeleteProfile(ctx context.Context, id string) error {
	result, err := db.conn.ExecContext(ctx, `DELETE FROM user_profiles WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("sqlite: deleting profile %s: %w", id, err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return apperror.NotFound("user profile", id)
	}
	return nil
}

func (db *DB) CountProfiles(ctx context.Context) (int, error) {
	var n int
	if err := db.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM user_profiles`).Scan(&n); err != nil {
		return 0, fmt.Errorf("sqlite: counting profiles: %w", err)
	}
	return n, nil
}
