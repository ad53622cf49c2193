// ./internal/state/db.go
package state

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/rs/zerolog/log"
)

// DB is a global database connection pool.
var DB *sql.DB

// DBConfig holds database connection parameters.
type DBConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string // "disable", "require", "verify-full", etc.
}

// InitDB initializes the database connection pool.
func InitDB(cfg DBConfig) error {
	psqlInfo := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.DBName, cfg.SSLMode)

	var err error
	DB, err = sql.Open("postgres", psqlInfo)
	if err != nil {
		return fmt.Errorf("failed to open database connection: %w", err)
	}

	DB.SetMaxOpenConns(25)
	DB.SetMaxIdleConns(25)
	DB.SetConnMaxLifetime(5 * time.Minute)

	err = DB.Ping()
	if err != nil {
		DB.Close()
		return fmt.Errorf("failed to ping database: %w", err)
	}

	log.Info().Msg("Successfully connected to the PostgreSQL database!")
	return nil
}

// CloseDB closes the database connection pool.
func CloseDB() {
	if DB != nil {
		log.Info().Msg("Closing database connection...")
		if err := DB.Close(); err != nil {
			log.Error().Err(err).Msg("Error closing database connection")
		}
	}
}

// EnsureSchema applies the necessary DDL to create tables if they don't exist.
func EnsureSchema() error {
	if DB == nil {
		return fmt.Errorf("database not initialized")
	}

	schemaSQL := `
		CREATE TABLE IF NOT EXISTS protocol_parameters (
			params_id SERIAL PRIMARY KEY,
			version INTEGER NOT NULL DEFAULT 1,
			is_active BOOLEAN NOT NULL DEFAULT FALSE,
			activated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
			created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
			params JSONB NOT NULL,
			CONSTRAINT uq_protocol_parameters_version UNIQUE (version)
		);
		CREATE INDEX IF NOT EXISTS idx_protocol_parameters_active ON protocol_parameters(is_active, activated_at DESC);

		CREATE TABLE IF NOT EXISTS operation_events (
			event_id UUID PRIMARY KEY,
			event_timestamp TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
			block_height BIGINT NOT NULL,
			kind VARCHAR(50) NOT NULL,
			user_address VARCHAR(64),
			pair_id INTEGER,
			payload JSONB
		);
		CREATE INDEX IF NOT EXISTS idx_operation_events_timestamp ON operation_events(event_timestamp DESC);
		CREATE INDEX IF NOT EXISTS idx_operation_events_kind ON operation_events(kind);
		CREATE INDEX IF NOT EXISTS idx_operation_events_user ON operation_events(user_address);

		CREATE TABLE IF NOT EXISTS buyback_executions (
			execution_id SERIAL PRIMARY KEY,
			executed_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
			block_height BIGINT NOT NULL,
			spend_wei NUMERIC(40, 0) NOT NULL,
			expected_tokens_rao NUMERIC(40, 0) NOT NULL,
			actual_tokens_rao NUMERIC(40, 0) NOT NULL,
			slippage NUMERIC(20, 0) NOT NULL,
			missed_windows BIGINT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_buyback_executions_block ON buyback_executions(block_height DESC);

		CREATE TABLE IF NOT EXISTS breaker_trips (
			trip_id SERIAL PRIMARY KEY,
			tripped_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
			block_height BIGINT NOT NULL,
			utilization NUMERIC(20, 0) NOT NULL,
			resolved BOOLEAN NOT NULL DEFAULT FALSE,
			resolved_at TIMESTAMPTZ
		);
		CREATE INDEX IF NOT EXISTS idx_breaker_trips_unresolved ON breaker_trips(resolved, tripped_at DESC);

		CREATE TABLE IF NOT EXISTS protocol_snapshots (
			snapshot_id SERIAL PRIMARY KEY,
			snapshot_timestamp TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
			block_height BIGINT NOT NULL,
			stats JSONB NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_protocol_snapshots_timestamp ON protocol_snapshots(snapshot_timestamp DESC);
	`
	_, err := DB.Exec(schemaSQL)
	if err != nil {
		return fmt.Errorf("failed to execute schema DDL: %w", err)
	}
	log.Info().Msg("Database schema ensured.")
	return nil
}

// TestDBConnection tests if the database connection is healthy
func TestDBConnection() error {
	if DB == nil {
		return fmt.Errorf("database connection is nil")
	}

	// Use a short timeout context for health checks
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := DB.PingContext(ctx)
	if err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}

	return nil
}
