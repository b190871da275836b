package repository

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/lib/pq"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// Dialect selects the SQL flavour of a database handle.
type Dialect string

const (
	DialectPostgres Dialect = "postgres"
	DialectSQLite   Dialect = "sqlite"
)

// ParseDialect maps a driver name to a Dialect.
func ParseDialect(driver string) (Dialect, error) {
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "", "postgres", "postgresql":
		return DialectPostgres, nil
	case "sqlite", "sqlite3":
		return DialectSQLite, nil
	default:
		return "", fmt.Errorf("unsupported database driver %q", driver)
	}
}

// timestamp returns the placeholder for a timestamp parameter whose type
// the planner cannot infer from context.
func (d Dialect) timestamp(placeholder string) string {
	if d == DialectPostgres {
		return placeholder + "::timestamptz"
	}
	return placeholder
}

// Config holds database connection settings.
type Config struct {
	Driver   string
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
	// Path is the SQLite database file, or ":memory:".
	Path string
}

// sqlitePragmas are applied to every SQLite connection.
var sqlitePragmas = []string{
	"PRAGMA journal_mode=WAL",
	"PRAGMA synchronous=NORMAL",
	"PRAGMA foreign_keys=ON",
	"PRAGMA busy_timeout=5000",
}

// NewDB opens and pings the configured database.
func NewDB(ctx context.Context, cfg Config) (*sql.DB, Dialect, error) {
	dialect, err := ParseDialect(cfg.Driver)
	if err != nil {
		return nil, "", err
	}

	var db *sql.DB
	switch dialect {
	case DialectSQLite:
		path := cfg.Path
		if path == "" {
			path = ":memory:"
		}
		// Timestamps are stored as sortable UTC text; lock deadline
		// comparisons in SQL depend on it.
		db, err = sql.Open("sqlite", path+"?_time_format=sqlite")
		if err != nil {
			return nil, "", fmt.Errorf("failed to open sqlite database: %w", err)
		}
		// Every :memory: connection is a separate database.
		db.SetMaxOpenConns(1)
		for _, pragma := range sqlitePragmas {
			if _, err := db.ExecContext(ctx, pragma); err != nil {
				db.Close()
				return nil, "", fmt.Errorf("failed to set pragma %q: %w", pragma, err)
			}
		}
	default:
		db, err = sql.Open("postgres", postgresDSN(cfg))
		if err != nil {
			return nil, "", fmt.Errorf("failed to open postgres database: %w", err)
		}
		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(5 * time.Minute)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, "", fmt.Errorf("failed to ping database: %w", err)
	}
	return db, dialect, nil
}

func postgresDSN(cfg Config) string {
	sslMode := cfg.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(cfg.User, cfg.Password),
		Host:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Path:     "/" + cfg.DBName,
		RawQuery: url.Values{"sslmode": {sslMode}}.Encode(),
	}
	return u.String()
}

//go:embed schema/*.sql
var schemaFS embed.FS

// Migrate creates the tables used by the repositories if they do not
// exist yet.
func Migrate(ctx context.Context, db *sql.DB, dialect Dialect) error {
	schema, err := schemaFS.ReadFile("schema/" + string(dialect) + ".sql")
	if err != nil {
		return fmt.Errorf("failed to read %s schema: %w", dialect, err)
	}
	for _, stmt := range strings.Split(string(schema), ";") {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema: %w", err)
		}
	}
	return nil
}

// inTx runs fn inside a transaction and commits it if fn succeeds.
func inTx(ctx context.Context, db *sql.DB, fn func(tx *sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// isUniqueViolation reports whether err is a unique constraint failure on
// either backend.
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) {
		return liteErr.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE
	}
	return false
}

// utc normalizes an optional timestamp before it is bound or returned.
func utc(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := t.UTC()
	return &v
}
