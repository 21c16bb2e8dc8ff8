package app

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/upb/model-router/config"
	"github.com/upb/model-router/internal/observability"
	"github.com/upb/model-router/repositories"
	"github.com/upb/model-router/repositories/postgres"
	"github.com/upb/model-router/services/audit"
	"github.com/upb/model-router/services/credentials"
	"github.com/upb/model-router/services/executor"
	"github.com/upb/model-router/services/generation"
	"github.com/upb/model-router/services/health"
	"github.com/upb/model-router/services/providers"
	"github.com/upb/model-router/services/providers/anthropic"
	"github.com/upb/model-router/services/providers/gemini"
	"github.com/upb/model-router/services/providers/openai"
	"github.com/upb/model-router/services/registry"
	"github.com/upb/model-router/services/routing"
	"go.uber.org/zap"
)

const auditDrainTimeout = 10 * time.Second

// Dependencies holds all application dependencies.
// This is the central wiring point for dependency injection.
type Dependencies struct {
	// Infrastructure
	Config *config.Config
	DB     *postgres.DB // nil when persistence is disabled
	Logger *zap.Logger

	// Repository Factory
	RepoFactory *postgres.RepositoryFactory

	// Repositories
	Generations repositories.GenerationRepository

	// Routing
	Models      *registry.Registry
	Credentials *credentials.Checker
	Providers   *providers.Registry
	Tracker     *health.Tracker
	Router      *routing.RoutingService
	Generation  *generation.Service

	// Audit is nil when persistence is disabled
	Audit *audit.AuditService

	// Metrics is nil when METRICS_ENABLED is false
	Metrics *observability.PrometheusMetrics
}

// Option customizes dependency construction
type Option func(*options)

type options struct {
	credentialSource credentials.Source
	providers        *providers.Registry
}

// WithCredentialSource replaces the environment as the credential source
func WithCredentialSource(source credentials.Source) Option {
	return func(o *options) {
		o.credentialSource = source
	}
}

// WithProviders replaces the provider registry built from configuration
func WithProviders(reg *providers.Registry) Option {
	return func(o *options) {
		o.providers = reg
	}
}

// NewDependencies creates and wires up all application dependencies.
func NewDependencies(ctx context.Context, cfg *config.Config, logger *zap.Logger, opts ...Option) (*Dependencies, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	deps := &Dependencies{
		Config: cfg,
		Logger: logger,
	}

	if cfg.Observability.MetricsEnabled {
		deps.Metrics = observability.NewPrometheusMetrics(cfg.Observability.MetricsNamespace, prometheus.NewRegistry())
	}

	if err := deps.initRegistry(cfg); err != nil {
		return nil, fmt.Errorf("failed to load model registry: %w", err)
	}

	deps.Credentials = credentials.NewChecker(o.credentialSource)

	if o.providers != nil {
		deps.Providers = o.providers
	} else if err := deps.initProviders(cfg); err != nil {
		return nil, fmt.Errorf("failed to initialize providers: %w", err)
	}

	if err := deps.initRouter(cfg); err != nil {
		return nil, fmt.Errorf("failed to initialize router: %w", err)
	}

	if cfg.Database != nil {
		if err := deps.initDatabase(ctx, cfg); err != nil {
			return nil, fmt.Errorf("failed to initialize database: %w", err)
		}
		if err := deps.initAudit(cfg); err != nil {
			_ = deps.closeDatabase()
			return nil, fmt.Errorf("failed to start audit service: %w", err)
		}
	} else {
		logger.Info("no database configured, generation audit disabled")
	}

	deps.initGeneration(cfg)

	logger.Info("all dependencies initialized successfully",
		zap.Int("models", deps.Models.Len()),
		zap.Int("providers", deps.Providers.Len()),
		zap.Int("available_models", len(deps.Router.ListAvailableModels())))
	return deps, nil
}

// initRegistry loads the model table from file or the embedded default
func (d *Dependencies) initRegistry(cfg *config.Config) error {
	var (
		models *registry.Registry
		err    error
	)
	if cfg.Router.RegistryFile != "" {
		models, err = registry.LoadFile(cfg.Router.RegistryFile)
	} else {
		models, err = registry.Default()
	}
	if err != nil {
		return err
	}
	if !models.Has(cfg.Router.DefaultModel) {
		return fmt.Errorf("default model %q is not registered", cfg.Router.DefaultModel)
	}

	d.Models = models
	d.Logger.Info("model registry loaded",
		zap.Int("models", models.Len()),
		zap.String("source", registrySource(cfg)))
	return nil
}

// initProviders builds one adapter per provider tag
func (d *Dependencies) initProviders(cfg *config.Config) error {
	endpoints := map[registry.Provider]config.ProviderEndpoint{
		registry.ProviderOpenAI:     cfg.Providers.OpenAI,
		registry.ProviderAnthropic:  cfg.Providers.Anthropic,
		registry.ProviderGoogle:     cfg.Providers.Gemini,
		registry.ProviderDeepSeek:   cfg.Providers.DeepSeek,
		registry.ProviderOpenRouter: cfg.Providers.OpenRouter,
		registry.ProviderOllama:     cfg.Providers.Ollama,
	}

	configs := make(map[registry.Provider]providers.ProviderConfig, len(endpoints))
	for tag, ep := range endpoints {
		configs[tag] = providers.ProviderConfig{
			BaseURL:     ep.BaseURL,
			Timeout:     cfg.Providers.HTTPTimeout,
			Headers:     ep.Headers,
			Credentials: d.Credentials,
		}
	}

	reg, err := providers.NewRegistryBuilder().
		WithProviderBuilder(registry.ProviderOpenAI, openai.Build).
		WithProviderBuilder(registry.ProviderDeepSeek, openai.Build).
		WithProviderBuilder(registry.ProviderOpenRouter, openai.Build).
		WithProviderBuilder(registry.ProviderOllama, openai.Build).
		WithProviderBuilder(registry.ProviderAnthropic, anthropic.Build).
		WithProviderBuilder(registry.ProviderGoogle, gemini.Build).
		Build(configs)
	if err != nil {
		return err
	}

	for _, tag := range reg.ListProviders() {
		d.Logger.Info("provider registered",
			zap.String("provider", string(tag)),
			zap.Bool("has_credential", d.Credentials.HasCredential(tag)))
	}

	d.Providers = reg
	return nil
}

// initRouter builds the health tracker and the routing service
func (d *Dependencies) initRouter(cfg *config.Config) error {
	routingConfig := routing.RoutingConfig{
		Executor: executor.Config{
			MaxAttempts:       cfg.Router.MaxAttempts,
			BaseDelay:         cfg.Router.BaseDelay,
			TimeoutPerAttempt: cfg.Router.AttemptTimeout,
			MaxJitter:         cfg.Router.MaxJitter,
		},
		MaxOuterRetries:       cfg.Router.MaxOuterRetries,
		OuterBackoff:          cfg.Router.OuterBackoff,
		DeprioritizeUnhealthy: cfg.Router.DeprioritizeUnhealthy,
	}
	if err := routingConfig.Validate(); err != nil {
		return err
	}

	var routerOpts []routing.Option
	if d.Metrics != nil {
		routerOpts = append(routerOpts, routing.WithMetrics(d.Metrics))
	}

	d.Tracker = health.NewTracker()
	d.Router = routing.NewRoutingService(routingConfig, d.Models, d.Providers, d.Credentials, d.Tracker, d.Logger, routerOpts...)
	return nil
}

// initDatabase opens PostgreSQL and creates the generation schema
func (d *Dependencies) initDatabase(ctx context.Context, cfg *config.Config) error {
	factory, err := postgres.NewRepositoryFactory(*cfg.Database, d.Logger)
	if err != nil {
		return fmt.Errorf("failed to create repository factory: %w", err)
	}

	if err := factory.InitSchema(ctx); err != nil {
		_ = factory.Close()
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	d.RepoFactory = factory
	d.DB = factory.GetDB()
	d.Generations = factory.NewRepositories().Generations

	d.Logger.Info("database connection established",
		zap.String("connection", cfg.Database.LogString()))
	return nil
}

// initAudit starts the async writer over the generation repository
func (d *Dependencies) initAudit(cfg *config.Config) error {
	svc := audit.NewAuditService(d.Generations, d.Logger, audit.Config{
		BufferSize:  cfg.Audit.BufferSize,
		WorkerCount: cfg.Audit.Workers,
	})
	if err := svc.Start(); err != nil {
		return err
	}
	d.Audit = svc
	return nil
}

func (d *Dependencies) initGeneration(cfg *config.Config) {
	// A typed nil would defeat the service's nil check
	var recorder generation.Recorder
	if d.Audit != nil {
		recorder = d.Audit
	}

	var metrics observability.Metrics = observability.NopMetrics{}
	if d.Metrics != nil {
		metrics = d.Metrics
	}

	d.Generation = generation.NewService(d.Router, recorder, metrics, generation.Config{
		DefaultModel: cfg.Router.DefaultModel,
		IncludeTrail: cfg.Router.IncludeTrail,
	}, d.Logger)
}

// AuditEnabled reports whether generation records are persisted
func (d *Dependencies) AuditEnabled() bool {
	return d.Generations != nil
}

// SQLDB returns the raw connection pool for health checks, or nil
func (d *Dependencies) SQLDB() *sql.DB {
	if d.DB == nil {
		return nil
	}
	return d.DB.DB
}

// Close gracefully shuts down all dependencies
func (d *Dependencies) Close(ctx context.Context) error {
	d.Logger.Info("shutting down dependencies")

	var errs []error

	// Drain queued audit records before the database goes away
	if d.Audit != nil {
		timeout := auditDrainTimeout
		if deadline, ok := ctx.Deadline(); ok {
			timeout = time.Until(deadline)
		}
		if err := d.Audit.Stop(timeout); err != nil {
			errs = append(errs, fmt.Errorf("failed to stop audit service: %w", err))
		}
	}

	if err := d.closeDatabase(); err != nil {
		errs = append(errs, err)
	}

	if d.Logger != nil {
		_ = d.Logger.Sync()
	}

	if len(errs) > 0 {
		return fmt.Errorf("errors during shutdown: %v", errs)
	}

	return nil
}

func (d *Dependencies) closeDatabase() error {
	if d.RepoFactory == nil {
		return nil
	}
	if err := d.RepoFactory.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	d.Logger.Info("database connection closed")
	return nil
}

func registrySource(cfg *config.Config) string {
	if cfg.Router.RegistryFile != "" {
		return cfg.Router.RegistryFile
	}
	return "embedded"
}
