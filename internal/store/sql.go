package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/licenseiq/licenseiq/internal/config"
	"github.com/licenseiq/licenseiq/internal/types"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

// SQLStore is the relational rule store. It runs the same SQL on SQLite
// and PostgreSQL; only placeholders and connection setup differ.
type SQLStore struct {
	db      *sql.DB
	dialect string
}

// Open creates the store selected by the database config.
func Open(cfg config.DatabaseConfig) (*SQLStore, error) {
	switch cfg.Driver {
	case config.DriverPostgres:
		return NewPostgresStore(cfg.DSN)
	case config.DriverSQLite, "":
		return NewSQLiteStore(cfg.Path)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
}

// NewSQLiteStore creates a new SQLite-backed store.
// It initializes the database with WAL mode, applies pragmas, and runs migrations.
func NewSQLiteStore(dbPath string) (*SQLStore, error) {
	// Ensure parent directory exists
	if dir := filepath.Dir(dbPath); dir != "." && dir != "" && dbPath != ":memory:" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// A single connection serializes writers and keeps :memory: databases
	// from splitting across pool connections.
	db.SetMaxOpenConns(1)

	if err := enablePragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable pragmas: %w", err)
	}

	if err := RunMigrations(db, "sqlite"); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLStore{db: db, dialect: config.DriverSQLite}, nil
}

// NewPostgresStore creates a new PostgreSQL-backed store using the pgx driver.
func NewPostgresStore(dsn string) (*SQLStore, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(db, "postgres"); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLStore{db: db, dialect: config.DriverPostgres}, nil
}

// enablePragmas sets SQLite pragmas for optimal performance and safety.
func enablePragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
		"PRAGMA synchronous=NORMAL",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("execute %s: %w", pragma, err)
		}
	}

	return nil
}

// Close closes the database connection
func (s *SQLStore) Close() error {
	return s.db.Close()
}

// GetStats returns aggregate store statistics
func (s *SQLStore) GetStats(ctx context.Context) (*types.StoreStats, error) {
	var stats types.StoreStats

	err := s.db.QueryRowContext(ctx, s.rebind(`
		SELECT
			COUNT(*),
			COALESCE(SUM(CASE WHEN validation_status = ? THEN 1 ELSE 0 END), 0)
		FROM rule_definitions
	`), string(types.StatusPending)).Scan(&stats.RuleCount, &stats.PendingRuleCount)
	if err != nil {
		return nil, fmt.Errorf("count rules: %w", err)
	}

	err = s.db.QueryRowContext(ctx, s.rebind(`
		SELECT COUNT(*) FROM pending_term_mappings WHERE status = ?
	`), string(types.MappingConfirmed)).Scan(&stats.ConfirmedTermsCount)
	if err != nil {
		return nil, fmt.Errorf("count term mappings: %w", err)
	}

	return &stats, nil
}

// rebind rewrites ? placeholders to $n for PostgreSQL.
func (s *SQLStore) rebind(query string) string {
	if s.dialect != config.DriverPostgres {
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

// timeLayout is fixed-width so stored timestamps sort correctly as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
