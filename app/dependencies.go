package app

import (
	"context"
	"fmt"

	"github.com/orgforge/agentplane/config"
	"github.com/orgforge/agentplane/middleware"
	"github.com/orgforge/agentplane/repositories"
	"github.com/orgforge/agentplane/repositories/postgres"
	"github.com/orgforge/agentplane/services/delegation"
	"github.com/orgforge/agentplane/services/providers"
	"github.com/orgforge/agentplane/services/providers/openai"
	"github.com/orgforge/agentplane/services/providers/openrouter"
	"github.com/orgforge/agentplane/services/quota"
	"github.com/orgforge/agentplane/services/router"
	"github.com/orgforge/agentplane/services/standup"
	"github.com/orgforge/agentplane/services/tasks"
	"go.uber.org/zap"
)

// Dependencies holds all application dependencies. This is the central
// wiring point for dependency injection.
type Dependencies struct {
	// Infrastructure
	Config *config.Config
	DB     *postgres.DB
	Logger *zap.Logger

	// Repository layer
	RepoFactory *postgres.RepositoryFactory
	Repos       *repositories.Repositories

	// Provider layer
	Catalog  *providers.Catalog
	Registry *providers.Registry

	// Services
	QuotaManager *quota.Manager
	Router       *router.Service
	Delegation   *delegation.Engine
	Standup      *standup.Orchestrator
	Tasks        *tasks.Service

	// Auth
	AuthMiddleware *middleware.AuthMiddleware
}

// NewDependencies creates and wires up all application dependencies.
func NewDependencies(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Dependencies, error) {
	deps := &Dependencies{
		Config: cfg,
		Logger: logger,
	}

	if err := deps.initDatabase(ctx, cfg); err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	deps.initRepositories()

	if err := deps.initProviders(cfg); err != nil {
		return nil, fmt.Errorf("failed to initialize providers: %w", err)
	}

	deps.initServices()
	deps.initAuth(cfg)

	logger.Info("all dependencies initialized successfully")
	return deps, nil
}

// initDatabase initializes the PostgreSQL database connection and factory
func (d *Dependencies) initDatabase(ctx context.Context, cfg *config.Config) error {
	factory, err := postgres.NewRepositoryFactory(cfg, d.Logger)
	if err != nil {
		return fmt.Errorf("failed to create repository factory: %w", err)
	}

	d.RepoFactory = factory
	d.DB = factory.GetDB()

	if err := d.DB.PingContext(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}

	d.Logger.Info("database connection established",
		zap.String("connection", cfg.Database.LogString()))

	return nil
}

// initRepositories initializes all repository instances
func (d *Dependencies) initRepositories() {
	d.Repos = d.RepoFactory.NewRepositories()
	d.Logger.Info("repositories initialized")
}

// initProviders builds the price catalog and binds chat clients to the
// provider identifiers model configs dispatch on. Anthropic models are
// served through OpenRouter: the same client is registered under the
// "anthropic" identifier with anthropic catalog pricing.
func (d *Dependencies) initProviders(cfg *config.Config) error {
	d.Catalog = providers.NewCatalog(d.Logger)
	registry := providers.NewRegistry()

	if cfg.Providers.OpenAI.APIKey != "" {
		adapter, err := openai.NewAdapter(cfg.Providers.OpenAI, d.Catalog, d.Logger)
		if err != nil {
			return fmt.Errorf("failed to create openai adapter: %w", err)
		}
		if err := registry.Register("openai", adapter); err != nil {
			return err
		}
		d.Logger.Info("registered openai provider")
	}

	if cfg.Providers.OpenRouter.APIKey != "" {
		adapter, err := openrouter.NewAdapter(cfg.Providers.OpenRouter, d.Catalog, d.Logger)
		if err != nil {
			return fmt.Errorf("failed to create openrouter adapter: %w", err)
		}
		if err := registry.Register("openrouter", adapter); err != nil {
			return err
		}
		if err := registry.Register("anthropic", adapter.ForCatalogProvider("anthropic")); err != nil {
			return err
		}
		d.Logger.Info("registered openrouter provider", zap.Strings("identifiers", []string{"openrouter", "anthropic"}))
	}

	if registry.Count() == 0 {
		d.Logger.Warn("no LLM providers configured")
	}

	d.Registry = registry
	return nil
}

// initServices wires the service layer on top of repositories and the
// provider registry.
func (d *Dependencies) initServices() {
	d.QuotaManager = quota.NewManager(d.Repos.Subscriptions, d.Logger)
	d.Router = router.NewService(d.Repos, d.QuotaManager, d.Registry, d.Logger)
	d.Delegation = delegation.NewEngine(d.Repos.Roles, d.Router, d.Logger)
	d.Standup = standup.NewOrchestrator(d.Repos.Roles, d.Repos.Tasks, d.Router, d.Logger)
	d.Tasks = tasks.NewService(d.Repos.Tasks, d.Router, d.Logger)

	d.Logger.Info("services initialized")
}

func (d *Dependencies) initAuth(cfg *config.Config) {
	if cfg.Auth.JWTSecret == "" {
		d.Logger.Warn("JWT secret not configured, protected routes will reject all requests")
	}
	validator := middleware.NewJWTValidator(cfg.Auth)
	d.AuthMiddleware = middleware.NewAuthMiddleware(validator, d.Logger)
}

// Close gracefully shuts down all dependencies
func (d *Dependencies) Close(_ context.Context) error {
	d.Logger.Info("shutting down dependencies")

	var errs []error

	if d.RepoFactory != nil {
		if err := d.RepoFactory.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close database: %w", err))
		} else {
			d.Logger.Info("database connection closed")
		}
	}

	if d.Logger != nil {
		_ = d.Logger.Sync()
	}

	if len(errs) > 0 {
		return fmt.Errorf("errors during shutdown: %v", errs)
	}

	return nil
}
