// Package state persists the set of resource records per environment in a
// local sqlite database. The database is the single source of truth for what
// the orchestrator believes exists; every mutation is one transaction, so a
// crash leaves either the old or the new state, never half of one.
package state

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/google/uuid"

	"github.com/stackctl-io/stackctl/internal/resource"

	// SQLite driver
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// ErrCorrupt reports that the persisted state cannot be read. Operator
// intervention is required; nothing attempts automatic recovery.
var ErrCorrupt = errors.New("state store is corrupt")

// Deployment statuses tracked alongside the resource records.
const (
	StatusInProgress = "in_progress"
	StatusCompleted  = "completed"
	StatusDestroying = "destroying"
	StatusFailed     = "failed"
)

// Deployment is one environment's bookkeeping row.
type Deployment struct {
	Environment  string
	DeploymentID string
	Status       string
	CreatedAt    time.Time
}

// Store is a sqlite-backed record store.
type Store struct {
	db   *sql.DB
	path string
}

// Open opens (creating if needed) the database at path and brings the schema
// up to date.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create state directory: %w", err)
		}
	}

	dsn := fmt.Sprintf("%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)&_txlock=immediate", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open state database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to open state database: %w", err)
	}

	s := &Store{db: db, path: path}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string { return s.path }

func (s *Store) migrate() error {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to load schema migrations: %w", err)
	}
	driver, err := sqlite3.WithInstance(s.db, &sqlite3.Config{})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("failed to prepare schema migrations: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("%w: schema migration failed: %v", ErrCorrupt, err)
	}
	return nil
}

// Load returns every record for an environment in insertion order. An
// environment that was never deployed yields an empty slice.
func (s *Store) Load(ctx context.Context, environment string) ([]resource.Record, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT kind, provider_id, created_at, attributes
		FROM resources
		WHERE environment = ?
		ORDER BY id`,
		environment)
	if err != nil {
		return nil, fmt.Errorf("failed to load records for %s: %w", environment, err)
	}
	defer rows.Close()

	var records []resource.Record
	for rows.Next() {
		var (
			kind, providerID, createdAt string
			attrs                       sql.NullString
		)
		if err := rows.Scan(&kind, &providerID, &createdAt, &attrs); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
		}

		rec := resource.Record{
			Kind:        resource.Kind(kind),
			ProviderID:  providerID,
			Environment: environment,
		}
		if !rec.Kind.Valid() {
			return nil, fmt.Errorf("%w: unknown resource kind %q", ErrCorrupt, kind)
		}
		rec.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt)
		if err != nil {
			return nil, fmt.Errorf("%w: bad created_at %q: %v", ErrCorrupt, createdAt, err)
		}
		if attrs.Valid && attrs.String != "" {
			if err := json.Unmarshal([]byte(attrs.String), &rec.Attributes); err != nil {
				return nil, fmt.Errorf("%w: bad attributes for %s %s: %v", ErrCorrupt, kind, providerID, err)
			}
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to load records for %s: %w", environment, err)
	}
	return records, nil
}

// Append durably persists one new record.
func (s *Store) Append(ctx context.Context, environment string, rec resource.Record) error {
	attrs, err := json.Marshal(rec.Attributes)
	if err != nil {
		return fmt.Errorf("failed to encode attributes: %w", err)
	}
	createdAt := rec.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO resources (environment, kind, provider_id, created_at, attributes)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (environment, kind, provider_id) DO UPDATE SET attributes = excluded.attributes`,
		environment, string(rec.Kind), rec.ProviderID, createdAt.Format(time.RFC3339Nano), string(attrs))
	if err != nil {
		return fmt.Errorf("failed to append %s record: %w", rec.Kind, err)
	}
	return nil
}

// Remove durably deletes one record.
func (s *Store) Remove(ctx context.Context, environment string, kind resource.Kind, providerID string) error {
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM resources
		WHERE environment = ? AND kind = ? AND provider_id = ?`,
		environment, string(kind), providerID)
	if err != nil {
		return fmt.Errorf("failed to remove %s record: %w", kind, err)
	}
	return nil
}

// Exists reports whether at least one record is present for the environment.
func (s *Store) Exists(ctx context.Context, environment string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM resources WHERE environment = ?`, environment).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("failed to query records for %s: %w", environment, err)
	}
	return n > 0, nil
}

// BeginDeployment records that a mutating operation is underway for the
// environment, minting a deployment id on first contact.
func (s *Store) BeginDeployment(ctx context.Context, environment, status string) (string, error) {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	id := uuid.NewString()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO deployments (environment, deployment_id, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (environment) DO UPDATE SET status = excluded.status, updated_at = excluded.updated_at`,
		environment, id, status, now, now)
	if err != nil {
		return "", fmt.Errorf("failed to record deployment for %s: %w", environment, err)
	}

	err = s.db.QueryRowContext(ctx,
		`SELECT deployment_id FROM deployments WHERE environment = ?`, environment).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("failed to read deployment id for %s: %w", environment, err)
	}
	return id, nil
}

// SetDeploymentStatus updates the bookkeeping status for an environment.
func (s *Store) SetDeploymentStatus(ctx context.Context, environment, status string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE deployments SET status = ?, updated_at = ? WHERE environment = ?`,
		status, time.Now().UTC().Format(time.RFC3339Nano), environment)
	if err != nil {
		return fmt.Errorf("failed to update deployment status for %s: %w", environment, err)
	}
	return nil
}

// RemoveDeployment drops the bookkeeping row once an environment is fully
// destroyed.
func (s *Store) RemoveDeployment(ctx context.Context, environment string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM deployments WHERE environment = ?`, environment)
	if err != nil {
		return fmt.Errorf("failed to remove deployment for %s: %w", environment, err)
	}
	return nil
}

// Environments lists every known environment, newest first.
func (s *Store) Environments(ctx context.Context) ([]Deployment, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT environment, deployment_id, status, created_at
		FROM deployments
		ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list environments: %w", err)
	}
	defer rows.Close()

	var deployments []Deployment
	for rows.Next() {
		var d Deployment
		var createdAt string
		if err := rows.Scan(&d.Environment, &d.DeploymentID, &d.Status, &createdAt); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
		}
		d.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
		deployments = append(deployments, d)
	}
	return deployments, rows.Err()
}
