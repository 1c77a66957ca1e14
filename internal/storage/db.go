// Package storage persists extracted products and job status for the flyer extractor.
package storage

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	"github.com/spherical/flyer-extractor/internal/config"
	"github.com/spherical/flyer-extractor/internal/domain"
	"github.com/spherical/flyer-extractor/internal/observability"
)

// Common errors
var (
	ErrNotFound = errors.New("record not found")
)

//go:embed schema_sqlite.sql
var sqliteSchema string

//go:embed schema_postgres.sql
var postgresSchema string

// DB represents a database connection interface.
type DB interface {
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// Options selects and tunes the catalog backend.
type Options struct {
	Driver          string // memory, sqlite or postgres
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	Logger          *observability.Logger
}

// OptionsFromConfig maps the database section of cfg onto Options.
func OptionsFromConfig(cfg *config.Config, logger *observability.Logger) Options {
	opts := Options{
		Driver: cfg.Database.Driver,
		DSN:    cfg.DatabaseDSN(),
		Logger: logger,
	}
	if cfg.Database.Driver == "postgres" {
		opts.MaxOpenConns = cfg.Database.Postgres.MaxOpenConns
		opts.MaxIdleConns = cfg.Database.Postgres.MaxIdleConns
		opts.ConnMaxLifetime = cfg.Database.Postgres.ConnMaxLifetime
	} else {
		opts.MaxOpenConns = cfg.Database.SQLite.MaxOpenConns
	}
	return opts
}

// New opens the catalog selected by opts.Driver and applies the schema for SQL drivers.
func New(ctx context.Context, opts Options) (domain.Catalog, error) {
	if opts.Driver == "memory" {
		return NewMemoryStore(), nil
	}
	return Open(ctx, opts)
}

// Open connects to a SQL database, applies the schema and returns a store over it.
func Open(ctx context.Context, opts Options) (*SQLStore, error) {
	driverName, err := driverFor(opts.Driver)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open(driverName, opts.DSN)
	if err != nil {
		return nil, domain.PersistenceError("open database", err)
	}

	if driverName == "sqlite3" {
		// One connection keeps :memory: databases shared and serializes writers.
		db.SetMaxOpenConns(1)
	} else {
		if opts.MaxOpenConns > 0 {
			db.SetMaxOpenConns(opts.MaxOpenConns)
		}
		if opts.MaxIdleConns > 0 {
			db.SetMaxIdleConns(opts.MaxIdleConns)
		}
		if opts.ConnMaxLifetime > 0 {
			db.SetConnMaxLifetime(opts.ConnMaxLifetime)
		}
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, domain.PersistenceError("ping database", err)
	}

	store := NewSQLStore(db, driverName, opts.Logger)
	if err := store.Migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

func driverFor(name string) (string, error) {
	switch name {
	case "sqlite", "sqlite3", "":
		return "sqlite3", nil
	case "postgres", "postgresql":
		return "postgres", nil
	default:
		return "", domain.ConfigError(fmt.Sprintf("unsupported database driver: %s", name), nil)
	}
}

// rebind rewrites ? placeholders as $n for postgres.
func rebind(driver, query string) string {
	if driver != "postgres" {
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
