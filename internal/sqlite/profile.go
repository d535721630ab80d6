package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/rpggio/lullaby/internal/domain/profile"
	"github.com/rpggio/lullaby/internal/repository"
)

// ProfileRepository implements profile.Repository for SQLite
type ProfileRepository struct {
	db *DB
}

var _ profile.Repository = (*ProfileRepository)(nil)

// NewProfileRepository creates a new ProfileRepository
func NewProfileRepository(db *DB) *ProfileRepository {
	return &ProfileRepository{db: db}
}

// Create creates a new profile
func (r *ProfileRepository) Create(ctx context.Context, p *profile.Profile) error {
	query := `
		INSERT INTO profiles (id, name, birth_date, created_at, edited_at)
		VALUES (?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, query,
		p.ID,
		p.Name,
		nullableNanos(p.BirthDate),
		toNanos(p.CreatedAt),
		toNanos(p.EditedAt),
	)
	if err != nil {
		if cerr := constraintErr(err); cerr != nil {
			return cerr
		}
		return fmt.Errorf("failed to create profile: %w", err)
	}

	r.db.notify("profiles")
	return nil
}

// Get retrieves a profile by ID
func (r *ProfileRepository) Get(ctx context.Context, id string) (*profile.Profile, error) {
	query := `
		SELECT id, name, birth_date, created_at, edited_at
		FROM profiles
		WHERE id = ?
	`

	p, err := scanProfile(r.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get profile: %w", err)
	}
	return p, nil
}

// List returns all profiles, oldest first
func (r *ProfileRepository) List(ctx context.Context) ([]profile.Profile, error) {
	query := `
		SELECT id, name, birth_date, created_at, edited_at
		FROM profiles
		ORDER BY created_at ASC, id ASC
	`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list profiles: %w", err)
	}
	defer rows.Close()

	var profiles []profile.Profile
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan profile: %w", err)
		}
		profiles = append(profiles, *p)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating profile rows: %w", err)
	}

	return profiles, nil
}

// Update overwrites a profile's mutable fields
func (r *ProfileRepository) Update(ctx context.Context, p *profile.Profile) error {
	query := `
		UPDATE profiles
		SET name = ?, birth_date = ?, edited_at = ?
		WHERE id = ?
	`

	result, err := r.db.ExecContext(ctx, query, p.Name, nullableNanos(p.BirthDate), toNanos(p.EditedAt), p.ID)
	if err != nil {
		return fmt.Errorf("failed to update profile: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return repository.ErrNotFound
	}

	r.db.notify("profiles")
	return nil
}

func scanProfile(row rowScanner) (*profile.Profile, error) {
	var (
		p                 profile.Profile
		birth             sql.NullInt64
		createdAt, edited int64
	)
	if err := row.Scan(&p.ID, &p.Name, &birth, &createdAt, &edited); err != nil {
		return nil, err
	}
	p.CreatedAt = fromNanos(createdAt)
	p.EditedAt = fromNanos(edited)
	if birth.Valid {
		t := fromNanos(birth.Int64)
		p.BirthDate = &t
	}
	return &p, nil
}
