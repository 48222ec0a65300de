package pkgstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS packages (
  id TEXT PRIMARY KEY,
  name TEXT NOT NULL,
  version TEXT NOT NULL,
  installer_path TEXT NOT NULL DEFAULT '',
  script_text TEXT NOT NULL DEFAULT '',
  user_notes TEXT NOT NULL DEFAULT '',
  status TEXT NOT NULL DEFAULT 'pending',
  progress INTEGER NOT NULL DEFAULT 0,
  status_message TEXT NOT NULL DEFAULT '',
  created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
  updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_packages_created_at ON packages (created_at DESC);
`

const packageColumns = `id, name, version, installer_path, script_text, user_notes, status, progress, status_message, created_at, updated_at`

// PostgresStore keeps packages in a Postgres table through the pgx driver.
type PostgresStore struct {
	db         *sql.DB
	schemaOnce sync.Once
	schemaErr  error
}

// OpenPostgres opens dsn with the pgx driver and verifies the connection.
func OpenPostgres(ctx context.Context, dsn string) (*PostgresStore, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("pkgstore: open db: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("pkgstore: ping db: %w", err)
	}
	return NewPostgresStore(db), nil
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) ensureSchema(ctx context.Context) error {
	s.schemaOnce.Do(func() {
		_, s.schemaErr = s.db.ExecContext(ctx, postgresSchema)
	})
	return s.schemaErr
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPackage(row rowScanner) (Package, error) {
	var p Package
	var status string
	err := row.Scan(&p.ID, &p.Name, &p.Version, &p.InstallerPath, &p.ScriptText, &p.UserNotes,
		&status, &p.Progress, &p.StatusMessage, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Package{}, ErrNotFound
	}
	if err != nil {
		return Package{}, err
	}
	p.Status = Status(status)
	return p, nil
}

func (s *PostgresStore) Create(ctx context.Context, p Package) (Package, error) {
	if err := s.ensureSchema(ctx); err != nil {
		return Package{}, err
	}
	p, err := prepareNew(p, time.Now())
	if err != nil {
		return Package{}, err
	}
	_, err = s.db.ExecContext(ctx, `
INSERT INTO packages (`+packageColumns+`)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
		p.ID, p.Name, p.Version, p.InstallerPath, p.ScriptText, p.UserNotes,
		string(p.Status), p.Progress, p.StatusMessage, p.CreatedAt, p.UpdatedAt)
	if err != nil {
		return Package{}, fmt.Errorf("pkgstore: insert: %w", err)
	}
	return p, nil
}

func (s *PostgresStore) Get(ctx context.Context, id string) (Package, error) {
	if err := s.ensureSchema(ctx); err != nil {
		return Package{}, err
	}
	return scanPackage(s.db.QueryRowContext(ctx, `SELECT `+packageColumns+` FROM packages WHERE id = $1`, id))
}

func (s *PostgresStore) List(ctx context.Context, limit, offset int) ([]Package, error) {
	if err := s.ensureSchema(ctx); err != nil {
		return nil, err
	}
	limit, offset = normalizePage(limit, offset)
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+packageColumns+` FROM packages ORDER BY created_at DESC, id LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []Package{}
	for rows.Next() {
		p, err := scanPackage(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *PostgresStore) Update(ctx context.Context, p Package) (Package, error) {
	if err := check(p); err != nil {
		return Package{}, err
	}
	if err := s.ensureSchema(ctx); err != nil {
		return Package{}, err
	}
	row := s.db.QueryRowContext(ctx, `
UPDATE packages SET name=$2, version=$3, installer_path=$4, script_text=$5, user_notes=$6,
  status=$7, progress=$8, status_message=$9, updated_at=NOW()
WHERE id=$1
RETURNING `+packageColumns,
		p.ID, p.Name, p.Version, p.InstallerPath, p.ScriptText, p.UserNotes,
		string(p.Status), p.Progress, p.StatusMessage)
	return scanPackage(row)
}

func (s *PostgresStore) SetProgress(ctx context.Context, id string, pr Progress) (Package, error) {
	p, err := s.Get(ctx, id)
	if err != nil {
		return Package{}, err
	}
	if p, err = applyProgress(p, pr); err != nil {
		return Package{}, err
	}
	row := s.db.QueryRowContext(ctx, `
UPDATE packages SET status=$2, progress=$3, status_message=$4, updated_at=NOW()
WHERE id=$1
RETURNING `+packageColumns, id, string(p.Status), p.Progress, p.StatusMessage)
	return scanPackage(row)
}

func (s *PostgresStore) Delete(ctx context.Context, id string) error {
	if err := s.ensureSchema(ctx); err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM packages WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) Close() error { return s.db.Close() }
