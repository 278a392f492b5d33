package app

import (
	"context"
	"fmt"
	"time"

	"github.com/upb/llm-failover/config"
	"github.com/upb/llm-failover/internal/observability"
	"github.com/upb/llm-failover/internal/runtimeconfig"
	"github.com/upb/llm-failover/middleware"
	"github.com/upb/llm-failover/models"
	"github.com/upb/llm-failover/repositories"
	"github.com/upb/llm-failover/repositories/memory"
	"github.com/upb/llm-failover/repositories/postgres"
	"github.com/upb/llm-failover/services/audit"
	"github.com/upb/llm-failover/services/connectivity"
	"github.com/upb/llm-failover/services/providers"
	"github.com/upb/llm-failover/services/providers/anthropic"
	"github.com/upb/llm-failover/services/providers/gemini"
	"github.com/upb/llm-failover/services/providers/openai"
	"github.com/upb/llm-failover/services/routing"
	"github.com/upb/llm-failover/utils"
	"go.uber.org/zap"
)

// auditStopTimeout bounds how long Close waits for queued switch events
const auditStopTimeout = 5 * time.Second

// Dependencies holds all application dependencies.
// This is the central wiring point for dependency injection.
type Dependencies struct {
	// Infrastructure
	Config    *config.Config
	DB        *postgres.DB // nil when running on in-memory repositories
	Logger    *zap.Logger
	StartedAt time.Time

	// Repository Factory
	RepoFactory *postgres.RepositoryFactory

	// Repositories
	Providers    repositories.ProviderRepository
	Results      repositories.ResultRepository
	SwitchEvents repositories.SwitchEventRepository
	TxManager    repositories.TransactionManager

	// Runtime settings and outbound transport
	Settings         *runtimeconfig.Manager
	ProviderRegistry *providers.Registry
	Transports       *providers.TransportPool

	// Connectivity core
	Metrics      *observability.InMemoryMetrics
	Store        *connectivity.Store
	Scheduler    *connectivity.Scheduler
	Router       *routing.RoutingService
	Notifier     *routing.Notifier
	Audit        *audit.AuditService
	Connectivity *connectivity.Service

	// Auth
	AuthMiddleware *middleware.AuthMiddleware

	closed bool
}

// NewDependencies creates and wires up all application dependencies.
func NewDependencies(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Dependencies, error) {
	deps := &Dependencies{
		Config:    cfg,
		Logger:    logger,
		StartedAt: time.Now(),
	}

	// Initialize storage
	if err := deps.initStorage(ctx, cfg); err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	// Past this point a failure releases everything started so far: storage,
	// transports, the auto-test ticker and the audit workers.

	// Seed provider reference data
	if err := deps.seedProviders(ctx, cfg); err != nil {
		_ = deps.Close(ctx)
		return nil, fmt.Errorf("failed to seed providers: %w", err)
	}

	// Initialize provider registry and transports
	if err := deps.initProviders(cfg); err != nil {
		_ = deps.Close(ctx)
		return nil, fmt.Errorf("failed to initialize providers: %w", err)
	}

	// Initialize connectivity core
	if err := deps.initConnectivity(ctx, cfg); err != nil {
		_ = deps.Close(ctx)
		return nil, fmt.Errorf("failed to initialize connectivity: %w", err)
	}

	// Initialize auth
	if err := deps.initAuth(cfg); err != nil {
		_ = deps.Close(ctx)
		return nil, fmt.Errorf("failed to initialize auth: %w", err)
	}

	logger.Info("all dependencies initialized successfully",
		zap.Bool("postgres", deps.DB != nil),
		zap.Bool("auth_enabled", deps.AuthMiddleware.Enabled()),
		zap.Bool("auto_connectivity_test", deps.Connectivity.GetAutoTestEnabled()))
	return deps, nil
}

// initStorage connects to PostgreSQL when configured and falls back to in-memory repositories
func (d *Dependencies) initStorage(ctx context.Context, cfg *config.Config) error {
	if !cfg.Database.Enabled() {
		d.Providers = memory.NewProviderRepository()
		d.Results = memory.NewResultRepository()
		d.SwitchEvents = memory.NewSwitchEventRepository(0)
		d.Logger.Info("database not configured, using in-memory repositories")
		return nil
	}

	factory, err := postgres.NewRepositoryFactory(cfg, d.Logger)
	if err != nil {
		return fmt.Errorf("failed to create repository factory: %w", err)
	}

	if err := factory.InitSchema(ctx); err != nil {
		_ = factory.Close()
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	d.RepoFactory = factory
	d.DB = factory.GetDB()

	repos := factory.NewRepositories()
	d.Providers = repos.Providers
	d.Results = repos.Results
	d.SwitchEvents = repos.SwitchEvents
	d.TxManager = factory.GetTransactionManager()

	d.Logger.Info("repositories initialized",
		zap.String("connection", cfg.Database.LogString()),
		zap.Bool("separate_audit_db", cfg.AuditDatabase != nil))
	return nil
}

// seedProviders loads the optional providers file into the provider repository
func (d *Dependencies) seedProviders(ctx context.Context, cfg *config.Config) error {
	if cfg.Connectivity.ProvidersFile == "" {
		return nil
	}

	seed, err := LoadProviderSeed(cfg.Connectivity.ProvidersFile)
	if err != nil {
		return err
	}

	for _, p := range seed {
		if err := d.Providers.Upsert(ctx, p); err != nil {
			return fmt.Errorf("failed to store provider %d: %w", p.ID, err)
		}
	}

	d.Logger.Info("providers seeded",
		zap.String("file", cfg.Connectivity.ProvidersFile),
		zap.Int("count", len(seed)))
	return nil
}

// initProviders builds the probe adapter registry and the proxy-aware transport pool
func (d *Dependencies) initProviders(cfg *config.Config) error {
	registry, err := providers.NewRegistryBuilder().
		WithAdapter(anthropic.NewAnthropicAdapter(cfg.Connectivity.AnthropicVersion)).
		WithAdapter(openai.NewOpenAIAdapter(string(models.PlatformCodex))).
		WithAdapter(openai.NewOpenAIAdapter("custom")).
		WithAdapter(gemini.NewGeminiAdapter()).
		Build()
	if err != nil {
		return fmt.Errorf("failed to build adapter registry: %w", err)
	}
	d.ProviderRegistry = registry

	settings := cfg.Settings.AppSettings()
	d.Settings = runtimeconfig.NewManager(settings, validateSettings, d.Logger)
	d.Transports = providers.NewTransportPool(settings, d.Logger)

	d.Settings.Subscribe(func(previous, current models.AppSettings) {
		if d.Transports.UpdateSettings(current) {
			d.Logger.Info("outbound proxy policy changed",
				zap.Bool("proxy_configured", current.ProxyAddress != ""),
				zap.String("proxy_type", current.ProxyType))
		}
	})

	d.Logger.Info("probe adapters registered",
		zap.Strings("channels", registry.ListAdapters()))
	return nil
}

// initConnectivity wires prober, store, scheduler, router, notifier and audit recorder
func (d *Dependencies) initConnectivity(ctx context.Context, cfg *config.Config) error {
	d.Metrics = observability.NewInMemoryMetrics()
	d.Store = connectivity.NewStore(cfg.Connectivity.HistorySize)

	if err := connectivity.WarmStore(ctx, d.Results, d.Store, d.Logger); err != nil {
		// stale results are an optimisation; an empty store starts everyone as Missing
		d.Logger.Warn("failed to restore connectivity results", zap.Error(err))
	}

	prober := connectivity.NewProber(connectivity.ProberConfig{
		Timeout:         cfg.Connectivity.ProbeTimeout,
		BodySampleBytes: cfg.Connectivity.BodySampleBytes,
	}, d.ProviderRegistry, d.Transports, d.Logger)

	recorder := connectivity.NewRepositoryRecorder(d.Results, d.TxManager, d.Logger)

	d.Scheduler = connectivity.NewScheduler(connectivity.SchedulerConfig{
		Interval:       cfg.Connectivity.SweepInterval,
		MaxConcurrency: cfg.Connectivity.MaxConcurrency,
		Thresholds: connectivity.Thresholds{
			SlowLatency: cfg.Connectivity.SlowLatencyThreshold,
		},
	}, prober, d.Store, d.Providers, nil, recorder, d.Metrics, d.Logger)

	d.Audit = audit.NewAuditService(d.SwitchEvents, d.Logger, audit.Config{
		BufferSize:  cfg.Audit.BufferSize,
		WorkerCount: cfg.Audit.WorkerCount,
	})
	if err := d.Audit.Start(); err != nil {
		return fmt.Errorf("failed to start audit service: %w", err)
	}

	d.Notifier = routing.NewNotifier(d.Settings, d.Logger, routing.NewLogSink(d.Logger), d.Audit)
	d.Router = routing.NewRoutingService(d.Providers, d.Store, d.Settings, d.Notifier, d.Metrics, d.Logger)
	d.Scheduler.SetRouter(d.Router)

	d.Connectivity = connectivity.NewService(d.Scheduler, d.Store, d.Providers, d.Router, d.Settings, d.Logger)

	// auto_connectivity_test follows the settings document
	d.Settings.Subscribe(func(previous, current models.AppSettings) {
		if previous.AutoConnectivityTest != current.AutoConnectivityTest {
			d.Scheduler.SetAutoTestEnabled(current.AutoConnectivityTest)
		}
	})
	if d.Settings.Current().AutoConnectivityTest {
		d.Scheduler.SetAutoTestEnabled(true)
	}

	return nil
}

// initAuth enables bearer token checks on mutating endpoints when a secret is configured
func (d *Dependencies) initAuth(cfg *config.Config) error {
	if cfg.Auth.JWTSecret == "" {
		d.Logger.Warn("auth JWT secret not configured, mutating endpoints are unauthenticated")
		d.AuthMiddleware = middleware.NewAuthMiddleware(nil, d.Logger)
		return nil
	}

	validator, err := middleware.NewHMACValidator(cfg.Auth.JWTSecret, cfg.Auth.Issuer)
	if err != nil {
		return err
	}
	d.AuthMiddleware = middleware.NewAuthMiddleware(validator, d.Logger)
	d.Logger.Info("bearer token auth enabled", zap.String("issuer", cfg.Auth.Issuer))
	return nil
}

func validateSettings(s models.AppSettings) error {
	return utils.ValidateStruct(&s)
}

// Close gracefully shuts down all dependencies
func (d *Dependencies) Close(ctx context.Context) error {
	if d.closed {
		return nil
	}
	d.closed = true

	d.Logger.Info("shutting down dependencies")

	var errs []error

	// Stop periodic sweeps before the recorder goes away
	if d.Scheduler != nil {
		d.Scheduler.Stop()
	}

	timeout := auditStopTimeout
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining > 0 && remaining < timeout {
			timeout = remaining
		}
	}
	if d.Audit != nil && d.Audit.GetStats().Started {
		if err := d.Audit.Stop(timeout); err != nil {
			errs = append(errs, fmt.Errorf("failed to stop audit service: %w", err))
		}
	}

	if d.Transports != nil {
		d.Transports.Close()
	}

	if err := d.closeStorage(); err != nil {
		errs = append(errs, fmt.Errorf("failed to close database: %w", err))
	}

	// Sync logger
	if d.Logger != nil {
		_ = d.Logger.Sync()
	}

	if len(errs) > 0 {
		return fmt.Errorf("errors during shutdown: %v", errs)
	}

	return nil
}

func (d *Dependencies) closeStorage() error {
	if d.RepoFactory == nil {
		return nil
	}
	err := d.RepoFactory.Close()
	d.RepoFactory = nil
	if err == nil {
		d.Logger.Info("database connection closed")
	}
	return err
}
