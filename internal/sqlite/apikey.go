package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rpggio/lullaby/internal/repository"
)

// APIKeyRepository implements repository.APIKeyRepository for SQLite
type APIKeyRepository struct {
	db *DB
}

var _ repository.APIKeyRepository = (*APIKeyRepository)(nil)

// NewAPIKeyRepository creates a new APIKeyRepository
func NewAPIKeyRepository(db *DB) *APIKeyRepository {
	return &APIKeyRepository{db: db}
}

// Create stores a hashed key for a caregiver
func (r *APIKeyRepository) Create(ctx context.Context, keyHash, caregiverID, description string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO api_keys (key_hash, caregiver_id, description, created_at)
		VALUES (?, ?, ?, ?)
	`, keyHash, caregiverID, description, toNanos(time.Now()))
	if err != nil {
		if cerr := constraintErr(err); cerr != nil {
			return cerr
		}
		return fmt.Errorf("failed to create api key: %w", err)
	}
	return nil
}

// CaregiverForKey resolves a hashed key and stamps its last use
func (r *APIKeyRepository) CaregiverForKey(ctx context.Context, keyHash string) (string, error) {
	var caregiverID string
	err := r.db.QueryRowContext(ctx, `SELECT caregiver_id FROM api_keys WHERE key_hash = ?`, keyHash).Scan(&caregiverID)
	if err == sql.ErrNoRows {
		return "", repository.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to look up api key: %w", err)
	}

	if _, err := r.db.ExecContext(ctx, `UPDATE api_keys SET last_used = ? WHERE key_hash = ?`, toNanos(time.Now()), keyHash); err != nil {
		return "", fmt.Errorf("failed to stamp api key: %w", err)
	}
	return caregiverID, nil
}
