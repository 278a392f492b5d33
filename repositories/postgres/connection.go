package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/upb/llm-failover/config"
	"go.uber.org/zap"
)

// DB wraps the sql.DB connection pool
type DB struct {
	*sql.DB
	logger *zap.Logger
}

// NewDB creates a new database connection pool
func NewDB(cfg config.DatabaseConfig, logger *zap.Logger) (*DB, error) {
	dsn := cfg.DSN()

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	// Verify connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logger.Info("database connection established",
		zap.String("connection", cfg.LogString()))

	return &DB{
		DB:     db,
		logger: logger,
	}, nil
}

// Close closes the database connection pool
func (db *DB) Close() error {
	db.logger.Info("closing database connection")
	return db.DB.Close()
}

// HealthCheck performs a health check on the database
func (db *DB) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("database health check failed: %w", err)
	}

	// Check if we can query
	var result int
	if err := db.QueryRowContext(ctx, "SELECT 1").Scan(&result); err != nil {
		return fmt.Errorf("database query check failed: %w", err)
	}

	return nil
}

// Stats returns database connection pool statistics
func (db *DB) Stats() sql.DBStats {
	return db.DB.Stats()
}

const switchEventSchema = `
		CREATE TABLE IF NOT EXISTS provider_switch_events (
			id UUID PRIMARY KEY,
			platform VARCHAR(100) NOT NULL,
			previous_provider_id BIGINT,
			new_provider_id BIGINT,
			reason VARCHAR(50) NOT NULL,
			details JSONB,
			occurred_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
		CREATE INDEX IF NOT EXISTS idx_switch_events_platform ON provider_switch_events(platform);
		CREATE INDEX IF NOT EXISTS idx_switch_events_occurred_at ON provider_switch_events(occurred_at);
`

// InitSchema initializes the database schema
func (db *DB) InitSchema(ctx context.Context) error {
	schema := `
		-- Providers table (reference data, owned by configuration)
		CREATE TABLE IF NOT EXISTS providers (
			platform VARCHAR(100) NOT NULL,
			id BIGINT NOT NULL,
			name VARCHAR(255) NOT NULL,
			level INTEGER NOT NULL DEFAULT 0,
			enabled BOOLEAN NOT NULL DEFAULT true,
			connectivity_check BOOLEAN NOT NULL DEFAULT true,
			api_url TEXT NOT NULL,
			api_key TEXT NOT NULL DEFAULT '',
			model VARCHAR(255) NOT NULL DEFAULT '',
			proxy_address TEXT,
			proxy_type VARCHAR(20),
			updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (platform, id)
		);

		-- Latest connectivity result per provider
		CREATE TABLE IF NOT EXISTS connectivity_results (
			platform VARCHAR(100) NOT NULL,
			provider_id BIGINT NOT NULL,
			provider_name VARCHAR(255) NOT NULL DEFAULT '',
			status SMALLINT NOT NULL,
			sub_status VARCHAR(50) NOT NULL DEFAULT '',
			latency_ms BIGINT NOT NULL DEFAULT 0,
			last_checked TIMESTAMP,
			http_code INTEGER,
			message TEXT NOT NULL DEFAULT '',
			PRIMARY KEY (platform, provider_id)
		);

		-- Indexes for performance
		CREATE INDEX IF NOT EXISTS idx_providers_platform_level ON providers(platform, level, id);
	` + switchEventSchema

	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	db.logger.Info("database schema initialized successfully")
	return nil
}

// InitAuditSchema initializes the switch event table only.
// Use for the separate audit database when DATABASE_URL_AUDIT is set.
func (db *DB) InitAuditSchema(ctx context.Context) error {
	if _, err := db.ExecContext(ctx, switchEventSchema); err != nil {
		return fmt.Errorf("failed to initialize audit schema: %w", err)
	}
	db.logger.Info("audit schema initialized successfully")
	return nil
}
