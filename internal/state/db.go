package state

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/elys-network/stratvault/internal/logger"
	"github.com/elys-network/stratvault/internal/types"
	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/rs/zerolog"
	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

var (
	ErrUnsupportedDriver = errors.Join(types.ErrConfiguration, errors.New("unsupported database driver"))
	ErrNotFound          = errors.New("record not found")
)

// DBConfig holds database connection parameters.
type DBConfig struct {
	Driver   string // "postgres" or "sqlite"
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string // "disable", "require", "verify-full", etc.
	Path     string // SQLite file, ":memory:" for a throwaway database
}

// Store persists rebalance snapshots and the keeper run counter.
type Store struct {
	db     *sql.DB
	driver string
	log    zerolog.Logger
}

// Open connects to the configured database and verifies the connection.
func Open(cfg DBConfig) (*Store, error) {
	driver := strings.ToLower(cfg.Driver)
	if driver == "" {
		driver = DriverPostgres
	}

	var dsn string
	switch driver {
	case DriverPostgres:
		dsn = fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.DBName, cfg.SSLMode)
	case DriverSQLite:
		if cfg.Path == "" {
			return nil, fmt.Errorf("%w: sqlite needs a path", ErrUnsupportedDriver)
		}
		dsn = cfg.Path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedDriver, cfg.Driver)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}

	if driver == DriverSQLite {
		// one writer; also keeps ":memory:" databases on a single connection
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(25)
		db.SetConnMaxLifetime(5 * time.Minute)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	s := &Store{db: db, driver: driver, log: logger.GetForComponent("state")}
	s.log.Info().Str("driver", driver).Msg("Successfully connected to the database")
	return s, nil
}

// Close closes the database connection pool.
func (s *Store) Close() {
	if s == nil || s.db == nil {
		return
	}
	s.log.Info().Msg("Closing database connection...")
	if err := s.db.Close(); err != nil {
		s.log.Error().Err(err).Msg("Error closing database connection")
	}
}

// Driver returns the database driver name.
func (s *Store) Driver() string {
	return s.driver
}

// Ping tests if the database connection is healthy
func (s *Store) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}
	return nil
}

// EnsureSchema applies the necessary DDL to create tables if they don't exist.
func (s *Store) EnsureSchema() error {
	serial, amount, jsonType := "BIGSERIAL PRIMARY KEY", "NUMERIC(78, 0)", "JSONB"
	if s.driver == DriverSQLite {
		serial, amount, jsonType = "INTEGER PRIMARY KEY AUTOINCREMENT", "TEXT", "TEXT"
	}

	stmts := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS rebalance_snapshots (
			snapshot_id %[1]s,
			rebalance_id VARCHAR(64) NOT NULL UNIQUE,
			rebalance_number INTEGER NOT NULL,
			vault_address VARCHAR(42) NOT NULL,
			underlying VARCHAR(42) NOT NULL,
			snapshot_unix_ms BIGINT NOT NULL,
			from_strategy VARCHAR(66) NOT NULL,
			to_strategy VARCHAR(66) NOT NULL,
			value_before_ut %[2]s NOT NULL,
			value_after_ut %[2]s NOT NULL,
			idle_after_ut %[2]s NOT NULL,
			total_supply %[2]s NOT NULL,
			receipts %[3]s
		)`, serial, amount, jsonType),
		`CREATE INDEX IF NOT EXISTS idx_rebalance_snapshots_timestamp ON rebalance_snapshots(snapshot_unix_ms DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_rebalance_snapshots_vault ON rebalance_snapshots(vault_address, rebalance_number DESC)`,

		// Run counter table for persistent keeper run tracking
		`CREATE TABLE IF NOT EXISTS run_counter (
			id INTEGER PRIMARY KEY DEFAULT 1,
			current_run INTEGER NOT NULL DEFAULT 0,
			updated_unix_ms BIGINT NOT NULL DEFAULT 0,
			CONSTRAINT single_row_check CHECK (id = 1)
		)`,
		`INSERT INTO run_counter (id, current_run) VALUES (1, 0) ON CONFLICT (id) DO NOTHING`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to execute schema DDL: %w", err)
		}
	}
	s.log.Info().Msg("Database schema ensured")
	return nil
}

// Reset drops every table owned by the store.
func (s *Store) Reset() error {
	for _, table := range []string{"rebalance_snapshots", "run_counter"} {
		if _, err := s.db.Exec("DROP TABLE IF EXISTS " + table); err != nil {
			return fmt.Errorf("failed to drop %s: %w", table, err)
		}
	}
	s.log.Warn().Msg("Database tables dropped")
	return nil
}
