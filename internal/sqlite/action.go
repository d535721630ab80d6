package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/rpggio/lullaby/internal/domain/action"
	"github.com/rpggio/lullaby/internal/domain/actionlog"
	"github.com/rpggio/lullaby/internal/repository"
)

// ActionRepository implements repository.ActionRepository for SQLite
type ActionRepository struct {
	db *DB
}

var _ repository.ActionRepository = (*ActionRepository)(nil)

// NewActionRepository creates a new ActionRepository
func NewActionRepository(db *DB) *ActionRepository {
	return &ActionRepository{db: db}
}

const actionColumns = `
	id, profile_id, category, start_date, end_date,
	diaper_type, feeding_type, bottle_type, bottle_volume,
	latitude, longitude, place_name, updated_at
`

// ListByProfile returns every action of a profile, newest start first
func (r *ActionRepository) ListByProfile(ctx context.Context, profileID string) ([]action.Snapshot, error) {
	query := `SELECT ` + actionColumns + ` FROM actions WHERE profile_id = ? ORDER BY start_date DESC, id ASC`
	return r.query(ctx, query, profileID)
}

// ListAll returns every action of every profile
func (r *ActionRepository) ListAll(ctx context.Context) ([]action.Snapshot, error) {
	query := `SELECT ` + actionColumns + ` FROM actions ORDER BY profile_id, start_date DESC, id ASC`
	return r.query(ctx, query)
}

func (r *ActionRepository) query(ctx context.Context, query string, args ...any) ([]action.Snapshot, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list actions: %w", err)
	}
	defer rows.Close()

	var out []action.Snapshot
	for rows.Next() {
		s, err := scanAction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating action rows: %w", err)
	}
	return out, nil
}

// Apply writes a reconciliation change set in one transaction and records a
// tombstone for every deleted action. An insert whose id belongs to another
// profile moves that row to profileID.
func (r *ActionRepository) Apply(ctx context.Context, profileID string, changes actionlog.ChangeSet) error {
	if changes.IsEmpty() {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, s := range changes.Inserts {
		if err := insertAction(ctx, tx, profileID, s); err != nil {
			return err
		}
	}
	for _, s := range changes.Updates {
		if err := updateAction(ctx, tx, profileID, s); err != nil {
			return err
		}
	}
	deletedAt := changes.DeletedAt
	if deletedAt.IsZero() {
		deletedAt = time.Now()
	}
	for _, id := range changes.Deletes {
		if _, err := tx.ExecContext(ctx, `DELETE FROM actions WHERE id = ? AND profile_id = ?`, id, profileID); err != nil {
			return fmt.Errorf("failed to delete action: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO action_tombstones (action_id, profile_id, deleted_at) VALUES (?, ?, ?)
			ON CONFLICT(action_id) DO UPDATE SET deleted_at = excluded.deleted_at
		`, id, profileID, toNanos(deletedAt)); err != nil {
			return fmt.Errorf("failed to record tombstone: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit actions: %w", err)
	}
	r.db.notify("actions")
	return nil
}

func insertAction(ctx context.Context, tx *sql.Tx, profileID string, s action.Snapshot) error {
	lat, lon, place := locationColumns(s.Location)
	_, err := tx.ExecContext(ctx, `
		INSERT INTO actions (`+actionColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
		    profile_id = excluded.profile_id,
		    category = excluded.category,
		    start_date = excluded.start_date,
		    end_date = excluded.end_date,
		    diaper_type = excluded.diaper_type,
		    feeding_type = excluded.feeding_type,
		    bottle_type = excluded.bottle_type,
		    bottle_volume = excluded.bottle_volume,
		    latitude = excluded.latitude,
		    longitude = excluded.longitude,
		    place_name = excluded.place_name,
		    updated_at = excluded.updated_at
	`,
		s.ID,
		profileID,
		s.Category,
		toNanos(s.StartDate),
		nullableNanos(s.EndDate),
		s.DiaperType,
		s.FeedingType,
		s.BottleType,
		nullableInt(s.BottleVolume),
		lat, lon, place,
		toNanos(s.UpdatedAt),
	)
	if err != nil {
		if cerr := constraintErr(err); cerr != nil {
			return cerr
		}
		return fmt.Errorf("failed to insert action: %w", err)
	}
	// a re-inserted id is no longer deleted
	if _, err := tx.ExecContext(ctx, `DELETE FROM action_tombstones WHERE action_id = ?`, s.ID); err != nil {
		return fmt.Errorf("failed to clear tombstone: %w", err)
	}
	return nil
}

func updateAction(ctx context.Context, tx *sql.Tx, profileID string, s action.Snapshot) error {
	lat, lon, place := locationColumns(s.Location)
	result, err := tx.ExecContext(ctx, `
		UPDATE actions
		SET category = ?, start_date = ?, end_date = ?,
		    diaper_type = ?, feeding_type = ?, bottle_type = ?, bottle_volume = ?,
		    latitude = ?, longitude = ?, place_name = ?, updated_at = ?
		WHERE id = ? AND profile_id = ?
	`,
		s.Category,
		toNanos(s.StartDate),
		nullableNanos(s.EndDate),
		s.DiaperType,
		s.FeedingType,
		s.BottleType,
		nullableInt(s.BottleVolume),
		lat, lon, place,
		toNanos(s.UpdatedAt),
		s.ID,
		profileID,
	)
	if err != nil {
		return fmt.Errorf("failed to update action: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// ListTombstones returns pending deletions for a profile
func (r *ActionRepository) ListTombstones(ctx context.Context, profileID string) ([]action.Tombstone, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT action_id, profile_id, deleted_at
		FROM action_tombstones
		WHERE profile_id = ?
		ORDER BY deleted_at ASC
	`, profileID)
	if err != nil {
		return nil, fmt.Errorf("failed to list tombstones: %w", err)
	}
	defer rows.Close()

	var out []action.Tombstone
	for rows.Next() {
		var t action.Tombstone
		var deletedAt int64
		if err := rows.Scan(&t.ActionID, &t.ProfileID, &deletedAt); err != nil {
			return nil, fmt.Errorf("failed to scan tombstone: %w", err)
		}
		t.DeletedAt = fromNanos(deletedAt)
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating tombstone rows: %w", err)
	}
	return out, nil
}

// ClearTombstones forgets deletions that reached the remote backend
func (r *ActionRepository) ClearTombstones(ctx context.Context, profileID string, actionIDs []string) error {
	if len(actionIDs) == 0 {
		return nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(actionIDs)), ",")
	args := make([]any, 0, len(actionIDs)+1)
	args = append(args, profileID)
	for _, id := range actionIDs {
		args = append(args, id)
	}
	query := `DELETE FROM action_tombstones WHERE profile_id = ? AND action_id IN (` + placeholders + `)`
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to clear tombstones: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAction(row rowScanner) (action.Snapshot, error) {
	var (
		s              action.Snapshot
		start, updated int64
		end, volume    sql.NullInt64
		lat, lon       sql.NullFloat64
		place          sql.NullString
	)
	if err := row.Scan(
		&s.ID,
		&s.ProfileID,
		&s.Category,
		&start,
		&end,
		&s.DiaperType,
		&s.FeedingType,
		&s.BottleType,
		&volume,
		&lat,
		&lon,
		&place,
		&updated,
	); err != nil {
		return action.Snapshot{}, fmt.Errorf("failed to scan action: %w", err)
	}

	s.StartDate = fromNanos(start)
	s.UpdatedAt = fromNanos(updated)
	if end.Valid {
		t := fromNanos(end.Int64)
		s.EndDate = &t
	}
	if volume.Valid {
		v := int(volume.Int64)
		s.BottleVolume = &v
	}
	if lat.Valid && lon.Valid {
		s.Location = &action.Location{Latitude: lat.Float64, Longitude: lon.Float64, PlaceName: place.String}
	}
	return s, nil
}

func locationColumns(loc *action.Location) (any, any, any) {
	if loc == nil {
		return nil, nil, nil
	}
	return loc.Latitude, loc.Longitude, loc.PlaceName
}

func toNanos(t time.Time) int64 {
	return t.UnixNano()
}

func fromNanos(n int64) time.Time {
	return time.Unix(0, n).UTC()
}

func nullableNanos(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UnixNano()
}

func nullableInt(v *int) any {
	if v == nil {
		return nil
	}
	return *v
}
