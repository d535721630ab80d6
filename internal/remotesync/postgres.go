package remotesync

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS remote_profiles (
	id         TEXT PRIMARY KEY,
	name       TEXT NOT NULL,
	birth_date TIMESTAMPTZ,
	created_at TIMESTAMPTZ NOT NULL,
	edited_at  TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS remote_actions (
	id            TEXT PRIMARY KEY,
	profile_id    TEXT NOT NULL REFERENCES remote_profiles(id) ON DELETE CASCADE,
	category      TEXT NOT NULL,
	start_date    TIMESTAMPTZ NOT NULL,
	end_date      TIMESTAMPTZ,
	diaper_type   TEXT NOT NULL DEFAULT '',
	feeding_type  TEXT NOT NULL DEFAULT '',
	bottle_type   TEXT NOT NULL DEFAULT '',
	bottle_volume INTEGER,
	latitude      DOUBLE PRECISION,
	longitude     DOUBLE PRECISION,
	place_name    TEXT NOT NULL DEFAULT '',
	updated_at    TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS remote_actions_profile_idx ON remote_actions (profile_id);
`

// PostgresBackend stores the remote copy in a self-hosted Postgres.
// Upserts never overwrite a row whose stored timestamp is newer.
type PostgresBackend struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

var _ Backend = (*PostgresBackend)(nil)

// NewPostgresBackend connects to dsn and creates the tables if needed.
func NewPostgresBackend(ctx context.Context, dsn string, logger *slog.Logger) (*PostgresBackend, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("remotesync: parse postgres DSN: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("remotesync: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("remotesync: ping postgres: %w", err)
	}
	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("remotesync: create schema: %w", err)
	}
	return &PostgresBackend{pool: pool, logger: logger}, nil
}

// Close releases the pool.
func (b *PostgresBackend) Close() {
	b.pool.Close()
}

func (b *PostgresBackend) FetchProfiles(ctx context.Context) ([]RemoteProfile, error) {
	rows, err := b.pool.Query(ctx, `SELECT id, name, birth_date, created_at, edited_at FROM remote_profiles ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("remotesync: query profiles: %w", err)
	}
	defer rows.Close()

	var out []RemoteProfile
	for rows.Next() {
		var p RemoteProfile
		if err := rows.Scan(&p.ID, &p.Name, &p.BirthDate, &p.CreatedAt, &p.EditedAt); err != nil {
			return nil, fmt.Errorf("remotesync: scan profile: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (b *PostgresBackend) FetchActions(ctx context.Context) ([]RemoteAction, error) {
	rows, err := b.pool.Query(ctx, `
		SELECT id, profile_id, category, start_date, end_date, diaper_type, feeding_type,
		       bottle_type, bottle_volume, latitude, longitude, place_name, updated_at
		FROM remote_actions
		ORDER BY profile_id, start_date DESC, id`)
	if err != nil {
		return nil, fmt.Errorf("remotesync: query actions: %w", err)
	}
	defer rows.Close()

	var out []RemoteAction
	for rows.Next() {
		var (
			a      RemoteAction
			volume *int32
		)
		if err := rows.Scan(&a.ID, &a.ProfileID, &a.Category, &a.StartDate, &a.EndDate,
			&a.DiaperType, &a.FeedingType, &a.BottleType, &volume,
			&a.Latitude, &a.Longitude, &a.PlaceName, &a.UpdatedAt); err != nil {
			return nil, fmt.Errorf("remotesync: scan action: %w", err)
		}
		if volume != nil {
			v := int(*volume)
			a.BottleVolume = &v
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (b *PostgresBackend) SyncProfiles(ctx context.Context, upserts []RemoteProfile) error {
	if len(upserts) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, p := range upserts {
		batch.Queue(`
			INSERT INTO remote_profiles (id, name, birth_date, created_at, edited_at)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (id) DO UPDATE
			SET name = excluded.name, birth_date = excluded.birth_date, edited_at = excluded.edited_at
			WHERE remote_profiles.edited_at <= excluded.edited_at`,
			p.ID, p.Name, p.BirthDate, p.CreatedAt, p.EditedAt)
	}
	if err := b.pool.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("remotesync: upsert profiles: %w", err)
	}
	return nil
}

func (b *PostgresBackend) SyncActions(ctx context.Context, profileID string, upserts []RemoteAction, deleteIDs []string) error {
	if len(upserts) == 0 && len(deleteIDs) == 0 {
		return nil
	}
	return pgx.BeginFunc(ctx, b.pool, func(tx pgx.Tx) error {
		for _, a := range upserts {
			var volume *int32
			if a.BottleVolume != nil {
				v := int32(*a.BottleVolume)
				volume = &v
			}
			if _, err := tx.Exec(ctx, `
				INSERT INTO remote_actions (id, profile_id, category, start_date, end_date, diaper_type,
					feeding_type, bottle_type, bottle_volume, latitude, longitude, place_name, updated_at)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
				ON CONFLICT (id) DO UPDATE
				SET category = excluded.category, start_date = excluded.start_date, end_date = excluded.end_date,
				    diaper_type = excluded.diaper_type, feeding_type = excluded.feeding_type,
				    bottle_type = excluded.bottle_type, bottle_volume = excluded.bottle_volume,
				    latitude = excluded.latitude, longitude = excluded.longitude,
				    place_name = excluded.place_name, updated_at = excluded.updated_at
				WHERE remote_actions.updated_at <= excluded.updated_at`,
				a.ID, profileID, a.Category, a.StartDate, a.EndDate, a.DiaperType, a.FeedingType,
				a.BottleType, volume, a.Latitude, a.Longitude, a.PlaceName, a.UpdatedAt); err != nil {
				return fmt.Errorf("remotesync: upsert action %s: %w", a.ID, err)
			}
		}
		if len(deleteIDs) > 0 {
			if _, err := tx.Exec(ctx, `DELETE FROM remote_actions WHERE profile_id = $1 AND id = ANY($2)`, profileID, deleteIDs); err != nil {
				return fmt.Errorf("remotesync: delete actions: %w", err)
			}
		}
		return nil
	})
}
