package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

type Dialect string

const (
	DialectSQLite   Dialect = "sqlite3"
	DialectPostgres Dialect = "postgres"
)

// DB is a connection pool plus the SQL dialect spoken by it.
type DB struct {
	*sql.DB
	Dialect Dialect
}

// DBTX is satisfied by *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Open connects to the database named by url. Accepted forms are
// postgres://..., postgresql://..., sqlite://path, sqlite:///abs/path and a bare file path.
func Open(ctx context.Context, url string) (*DB, error) {
	dialect, dsn, err := parseURL(url)
	if err != nil {
		return nil, err
	}
	if dialect == DialectSQLite {
		if dir := filepath.Dir(dsn); dir != "." && dir != "" {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("mkdir data dir: %w", err)
			}
		}
		dsn = fmt.Sprintf("file:%s?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000&_txlock=immediate", dsn)
	}
	db, err := sql.Open(string(dialect), dsn)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	if dialect == DialectSQLite {
		if _, err := db.ExecContext(ctx, `PRAGMA synchronous=NORMAL; PRAGMA temp_store=MEMORY;`); err != nil {
			_ = db.Close()
			return nil, err
		}
	}
	return &DB{DB: db, Dialect: dialect}, nil
}

func parseURL(url string) (Dialect, string, error) {
	url = strings.TrimSpace(url)
	switch {
	case url == "":
		return "", "", fmt.Errorf("database url is empty")
	case strings.HasPrefix(url, "postgres://"), strings.HasPrefix(url, "postgresql://"):
		return DialectPostgres, url, nil
	case strings.HasPrefix(url, "sqlite://"):
		path := strings.TrimPrefix(url, "sqlite://")
		if path == "" {
			return "", "", fmt.Errorf("sqlite url has no path")
		}
		return DialectSQLite, path, nil
	case strings.Contains(url, "://"):
		return "", "", fmt.Errorf("unsupported database url scheme in %q", url)
	default:
		return DialectSQLite, url, nil
	}
}

// Rebind rewrites ? placeholders into the dialect's bind syntax.
func (d Dialect) Rebind(query string) string {
	if d != DialectPostgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Migrate creates the schema if it does not exist yet.
func (d *DB) Migrate(ctx context.Context) error {
	for _, stmt := range schema(d.Dialect) {
		if _, err := d.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate failed: %w", err)
		}
	}
	return nil
}

func schema(d Dialect) []string {
	pk, ts, num, boolTrue := "INTEGER PRIMARY KEY AUTOINCREMENT", "DATETIME", "REAL", "1"
	if d == DialectPostgres {
		pk, ts, num, boolTrue = "BIGSERIAL PRIMARY KEY", "TIMESTAMPTZ", "DOUBLE PRECISION", "TRUE"
	}
	return []string{
		`CREATE TABLE IF NOT EXISTS users (
			id ` + pk + `,
			email TEXT NOT NULL UNIQUE,
			password_hash TEXT NOT NULL,
			role TEXT NOT NULL,
			is_active BOOLEAN NOT NULL DEFAULT ` + boolTrue + `,
			created_at ` + ts + ` NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS servers (
			id ` + pk + `,
			server_id TEXT NOT NULL UNIQUE,
			name TEXT NOT NULL,
			ip TEXT NOT NULL,
			environment TEXT NOT NULL,
			owner TEXT NOT NULL,
			created_at ` + ts + ` NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS metrics (
			id ` + pk + `,
			server_fk BIGINT NOT NULL REFERENCES servers(id),
			ts ` + ts + ` NOT NULL,
			cpu_percent ` + num + ` NOT NULL,
			ram_percent ` + num + ` NOT NULL,
			disk_percent ` + num + ` NOT NULL,
			uptime_seconds BIGINT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS alerts (
			id ` + pk + `,
			server_id TEXT NOT NULL,
			ts ` + ts + ` NOT NULL,
			level TEXT NOT NULL,
			message TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_metrics_server_ts ON metrics(server_fk, ts DESC, id DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_alerts_ts ON alerts(ts DESC, id DESC)`,
	}
}

// WithTx runs fn inside a transaction. The transaction commits when fn
// returns nil and rolls back on any error or panic.
func (d *DB) WithTx(ctx context.Context, fn func(r *Repository) error) error {
	tx, err := d.BeginTx(ctx, nil)
	if err != nil {
		return dbError("begin transaction", err)
	}
	defer tx.Rollback()
	if err := fn(NewRepository(tx, d.Dialect)); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return dbError("commit transaction", err)
	}
	return nil
}

// Repository returns a repository bound to the pool (no transaction).
func (d *DB) Repository() *Repository {
	return NewRepository(d.DB, d.Dialect)
}
