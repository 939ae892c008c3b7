package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"dtp-ingest/config"
	"dtp-ingest/core/utils"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

const (
	driverPostgres = "postgres"
	driverSQLite   = "sqlite"
)

// DB wraps the sql handle with the dialect it speaks. Queries are written
// once in `?` placeholder style and rebound to `$n` for postgres.
type DB struct {
	*sql.DB
	driver string
}

// NewDB opens the configured database. A non-empty db_path selects the
// embedded sqlite driver regardless of db_driver, which is how tests and
// single-host installs run without a postgres instance.
func NewDB(cfg *config.AppConfig, logger *utils.Logger) (*DB, error) {
	if cfg.DBPath != "" || cfg.DBDriver == driverSQLite {
		path := cfg.DBPath
		if path == "" {
			path = "dtp.db"
		}
		db, err := sql.Open("sqlite", path)
		if err != nil {
			return nil, fmt.Errorf("open sqlite %s: %w", path, err)
		}
		// A single connection keeps concurrent statements from tripping
		// over SQLITE_BUSY.
		db.SetMaxOpenConns(1)
		logger.Printf("using sqlite database at %s", path)
		return &DB{DB: db, driver: driverSQLite}, nil
	}

	db, err := sql.Open("pgx", cfg.DBURL)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	logger.Printf("connected to postgres")
	return &DB{DB: db, driver: driverPostgres}, nil
}

func (d *DB) Postgres() bool {
	return d.driver == driverPostgres
}

// Rebind converts `?` placeholders to the `$n` form postgres expects.
// For sqlite the query passes through unchanged.
func (d *DB) Rebind(query string) string {
	if d.driver != driverPostgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			fmt.Fprintf(&b, "$%d", n)
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}

func (d *DB) ExecRebound(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return d.ExecContext(ctx, d.Rebind(query), args...)
}

func (d *DB) QueryRebound(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return d.QueryContext(ctx, d.Rebind(query), args...)
}

func (d *DB) QueryRowRebound(ctx context.Context, query string, args ...any) *sql.Row {
	return d.QueryRowContext(ctx, d.Rebind(query), args...)
}
