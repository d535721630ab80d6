package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/rpggio/lullaby/internal/changefeed"
	"github.com/rpggio/lullaby/internal/repository"
	msqlite "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

//go:embed schema.sql
var schemaSQL string

// Schema version tracking:
// 1 - profiles, actions, tombstones, activity log, api keys
const currentSchemaVersion = 1

// ErrNoFile is returned by DataVersion for in-memory databases.
var ErrNoFile = errors.New("database has no backing file")

// DB wraps a SQLite database connection. Each DB is one persistence context
// with its own context id; every DB opened on the same file shares a
// container id.
type DB struct {
	*sql.DB
	path     string
	identity changefeed.Identity

	mu        sync.RWMutex
	publisher changefeed.Publisher
}

// New opens the database at path, or a private in-memory database for
// ":memory:".
func New(path string) (*DB, error) {
	memory := isMemoryPath(path)

	dsn := ":memory:"
	containerID := "memory:" + uuid.NewString()
	if memory {
		path = ""
	} else {
		abs, err := filepath.Abs(path)
		if err != nil {
			return nil, fmt.Errorf("resolving database path: %w", err)
		}
		path = abs
		dsn = "file:" + abs
		containerID = abs
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite has one writer; a single connection also keeps :memory: alive.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db, memory); err != nil {
		db.Close()
		return nil, err
	}

	return &DB{
		DB:   db,
		path: path,
		identity: changefeed.Identity{
			ContainerID: containerID,
			ContextID:   uuid.Must(uuid.NewV7()).String(),
		},
	}, nil
}

func applyPragmas(db *sql.DB, memory bool) error {
	pragmas := []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	if !memory {
		pragmas = append(pragmas, "PRAGMA journal_mode = WAL", "PRAGMA synchronous = NORMAL")
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}
	return nil
}

// RunMigrations creates the schema and records its version. It is safe to
// call on an already migrated database.
func (db *DB) RunMigrations() error {
	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}
	if version > currentSchemaVersion {
		return fmt.Errorf("database schema version %d is newer than supported %d", version, currentSchemaVersion)
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
		return fmt.Errorf("failed to set schema version: %w", err)
	}
	return nil
}

// Path returns the absolute database path, or "" for in-memory databases.
func (db *DB) Path() string {
	return db.path
}

// Identity returns the container and context ids used on change events.
func (db *DB) Identity() changefeed.Identity {
	return db.identity
}

// SetPublisher routes commit notifications to p.
func (db *DB) SetPublisher(p changefeed.Publisher) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.publisher = p
}

func (db *DB) notify(entity string) {
	db.mu.RLock()
	p := db.publisher
	db.mu.RUnlock()
	if p == nil {
		return
	}
	p.Publish(changefeed.Event{
		Source:      changefeed.SourceLocal,
		ContainerID: db.identity.ContainerID,
		ContextID:   db.identity.ContextID,
		Entity:      entity,
	})
}

// DataVersion reads PRAGMA data_version on the pool's only connection. The
// value moves when another connection commits, never for this DB's own
// commits.
func (db *DB) DataVersion(ctx context.Context) (int64, error) {
	if db.path == "" {
		return 0, ErrNoFile
	}
	var v int64
	if err := db.QueryRowContext(ctx, "PRAGMA data_version").Scan(&v); err != nil {
		return 0, fmt.Errorf("reading data version: %w", err)
	}
	return v, nil
}

func isMemoryPath(path string) bool {
	return path == "" || strings.HasPrefix(path, ":memory:")
}

// constraintErr maps a failed constraint to its repository error, or returns
// nil when err is not a constraint failure.
func constraintErr(err error) error {
	var se *msqlite.Error
	if !errors.As(err, &se) {
		return nil
	}
	switch se.Code() {
	case sqlite3.SQLITE_CONSTRAINT_FOREIGNKEY:
		return repository.ErrForeignKeyViolation
	case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
		return repository.ErrConflict
	}
	return nil
}
