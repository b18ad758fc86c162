package docstore

import (
	"context"
	"crypto/sha1"
	"database/sql"
	"embed"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"
)

//go:embed migrations/*.up.sql
var migrationFiles embed.FS

// Postgres stores the document as a row keyed by path. The revision token is
// the SHA-1 of the stored bytes and writes are conditioned on it.
type Postgres struct {
	db   *sql.DB
	path string
}

func OpenPostgres(ctx context.Context, databaseURL string) (*sql.DB, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	db.SetConnMaxIdleTime(5 * time.Minute)
	db.SetConnMaxLifetime(30 * time.Minute)
	db.SetMaxIdleConns(5)
	db.SetMaxOpenConns(10)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}
	return db, nil
}

func NewPostgres(db *sql.DB, path string) *Postgres {
	return &Postgres{db: db, path: path}
}

func revisionOf(raw []byte) string {
	sum := sha1.Sum(raw)
	return hex.EncodeToString(sum[:])
}

// Ensure inserts seed when no document exists at the configured path.
func (p *Postgres) Ensure(ctx context.Context, seed []byte) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO cms_documents(path, content, revision) VALUES($1, $2, $3)
		ON CONFLICT (path) DO NOTHING
	`, p.path, string(seed), revisionOf(seed))
	if err != nil {
		return fmt.Errorf("seed document: %w", err)
	}
	return nil
}

func (p *Postgres) Read(ctx context.Context) (Snapshot, error) {
	var content, revision string
	err := p.db.QueryRowContext(ctx, `SELECT content, revision FROM cms_documents WHERE path = $1`, p.path).Scan(&content, &revision)
	if errors.Is(err, sql.ErrNoRows) {
		return Snapshot{}, fmt.Errorf("%w: %s", ErrNotFound, p.path)
	}
	if err != nil {
		return Snapshot{}, fmt.Errorf("read document: %w", err)
	}
	return decodeSnapshot([]byte(content), revision)
}

func (p *Postgres) Write(ctx context.Context, req WriteRequest) (Commit, error) {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return Commit{}, fmt.Errorf("begin write tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	revision := revisionOf(req.Content)
	var result sql.Result
	if req.Revision == "" {
		result, err = tx.ExecContext(ctx, `
			INSERT INTO cms_documents(path, content, revision) VALUES($1, $2, $3)
			ON CONFLICT (path) DO NOTHING
		`, p.path, string(req.Content), revision)
	} else {
		result, err = tx.ExecContext(ctx, `
			UPDATE cms_documents SET content = $2, revision = $3, updated_at = NOW()
			WHERE path = $1 AND revision = $4
		`, p.path, string(req.Content), revision, req.Revision)
	}
	if err != nil {
		return Commit{}, fmt.Errorf("write document: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return Commit{}, fmt.Errorf("write document: %w", err)
	}
	if affected == 0 {
		return Commit{}, fmt.Errorf("%w: expected %s", ErrConflict, shortRevision(req.Revision))
	}

	commitID := uuid.NewString()
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO cms_commits(id, path, revision, message) VALUES($1, $2, $3, $4)
	`, commitID, p.path, revision, req.Message); err != nil {
		return Commit{}, fmt.Errorf("record commit: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return Commit{}, fmt.Errorf("commit write tx: %w", err)
	}
	return Commit{ID: commitID, Revision: revision}, nil
}

// ApplyMigrations runs the embedded schema migrations that have not been
// recorded yet.
func ApplyMigrations(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version TEXT PRIMARY KEY,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`); err != nil {
		return fmt.Errorf("ensure schema_migrations: %w", err)
	}

	files, err := migrationNames()
	if err != nil {
		return err
	}
	for _, name := range files {
		var exists bool
		if err := db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM schema_migrations WHERE version=$1)`, name).Scan(&exists); err != nil {
			return fmt.Errorf("check migration %s: %w", name, err)
		}
		if exists {
			continue
		}

		contents, err := migrationFiles.ReadFile("migrations/" + name)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", name, err)
		}
		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin migration tx %s: %w", name, err)
		}
		if _, err := tx.ExecContext(ctx, string(contents)); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("execute migration %s: %w", name, err)
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO schema_migrations(version) VALUES($1)`, name); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("record migration %s: %w", name, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %s: %w", name, err)
		}
	}
	return nil
}

func migrationNames() ([]string, error) {
	entries, err := fs.ReadDir(migrationFiles, "migrations")
	if err != nil {
		return nil, fmt.Errorf("read migrations dir: %w", err)
	}
	var names []string
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".up.sql") {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}
