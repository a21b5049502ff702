package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/orgforge/agentplane/config"
	"go.uber.org/zap"
)

// DB wraps the sql.DB connection pool
type DB struct {
	*sql.DB
	logger *zap.Logger
}

// NewDB creates a new database connection pool
func NewDB(cfg config.DatabaseConfig, logger *zap.Logger) (*DB, error) {
	db, err := sql.Open("postgres", cfg.DSN())
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

	var result int
	if err := db.QueryRowContext(ctx, "SELECT 1").Scan(&result); err != nil {
		return fmt.Errorf("database query check failed: %w", err)
	}

	return nil
}

// InitSchema initializes the database schema
func (db *DB) InitSchema(ctx context.Context) error {
	schema := `
		-- Organizations table (written upstream, read here)
		CREATE TABLE IF NOT EXISTS organizations (
			id UUID PRIMARY KEY,
			name VARCHAR(255) NOT NULL,
			slug VARCHAR(100) NOT NULL UNIQUE,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		);

		-- Roles table (written by the org-chart surface, read here)
		CREATE TABLE IF NOT EXISTS org_roles (
			id UUID PRIMARY KEY,
			org_id UUID NOT NULL REFERENCES organizations(id) ON DELETE CASCADE,
			name VARCHAR(255) NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			persona TEXT NOT NULL DEFAULT '',
			kind VARCHAR(20) NOT NULL DEFAULT 'specialist',
			is_active BOOLEAN NOT NULL DEFAULT true,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		);

		-- Model configurations; NULL org_id marks a global config
		CREATE TABLE IF NOT EXISTS model_configs (
			id UUID PRIMARY KEY,
			org_id UUID REFERENCES organizations(id) ON DELETE CASCADE,
			provider VARCHAR(50) NOT NULL,
			model_id VARCHAR(255) NOT NULL,
			display_name VARCHAR(255) NOT NULL DEFAULT ''
		);

		-- Role to model bindings; at most one per role
		CREATE TABLE IF NOT EXISTS model_assignments (
			id UUID PRIMARY KEY,
			role_id UUID NOT NULL UNIQUE REFERENCES org_roles(id) ON DELETE CASCADE,
			model_config_id UUID NOT NULL REFERENCES model_configs(id) ON DELETE CASCADE
		);

		-- Tenant subscriptions and quota state
		CREATE TABLE IF NOT EXISTS org_subscriptions (
			id UUID PRIMARY KEY,
			org_id UUID NOT NULL UNIQUE REFERENCES organizations(id) ON DELETE CASCADE,
			plan VARCHAR(50) NOT NULL DEFAULT 'free',
			current_token_usage BIGINT NOT NULL DEFAULT 0,
			token_quota_monthly BIGINT NOT NULL DEFAULT 0,
			quota_reset_date TIMESTAMP,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		);

		-- Agent tasks
		CREATE TABLE IF NOT EXISTS agent_tasks (
			id UUID PRIMARY KEY,
			org_id UUID NOT NULL REFERENCES organizations(id) ON DELETE CASCADE,
			role_id UUID REFERENCES org_roles(id) ON DELETE SET NULL,
			title VARCHAR(500) NOT NULL,
			input TEXT NOT NULL,
			status VARCHAR(20) NOT NULL DEFAULT 'pending',
			output TEXT,
			execution_time_ms BIGINT,
			token_count BIGINT,
			cost_cents BIGINT,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
		CREATE INDEX IF NOT EXISTS idx_agent_tasks_role_created
			ON agent_tasks(role_id, created_at DESC);

		-- Append-only token usage ledger
		CREATE TABLE IF NOT EXISTS token_usage (
			id UUID PRIMARY KEY,
			org_id UUID NOT NULL REFERENCES organizations(id) ON DELETE CASCADE,
			role_id UUID REFERENCES org_roles(id) ON DELETE SET NULL,
			model_config_id UUID REFERENCES model_configs(id) ON DELETE SET NULL,
			provider VARCHAR(50) NOT NULL,
			model_id VARCHAR(255) NOT NULL,
			input_tokens BIGINT NOT NULL DEFAULT 0,
			output_tokens BIGINT NOT NULL DEFAULT 0,
			total_tokens BIGINT NOT NULL DEFAULT 0,
			cost_cents BIGINT NOT NULL DEFAULT 0,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
		CREATE INDEX IF NOT EXISTS idx_token_usage_org_created
			ON token_usage(org_id, created_at DESC);
	`

	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	db.logger.Info("database schema initialized")
	return nil
}
