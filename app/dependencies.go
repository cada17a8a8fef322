package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/upb/omniagent/config"
	"github.com/upb/omniagent/internal/health"
	"github.com/upb/omniagent/internal/observability"
	"github.com/upb/omniagent/internal/router"
	"github.com/upb/omniagent/internal/telemetry"
	"github.com/upb/omniagent/repositories/postgres"
	"github.com/upb/omniagent/services/audit"
	"github.com/upb/omniagent/services/chat"
	"github.com/upb/omniagent/services/providers"
	"github.com/upb/omniagent/services/providers/ollama"
	"github.com/upb/omniagent/services/providers/openai"
	"github.com/upb/omniagent/services/session"
)

// auditStopTimeout bounds how long Close waits for queued routing events.
const auditStopTimeout = 5 * time.Second

// Dependencies holds all application dependencies. This is the central
// wiring point for dependency injection.
type Dependencies struct {
	// Infrastructure
	Config *config.Config
	Logger *zap.Logger

	// Routing engine
	Catalog     router.Catalog
	Router      *router.Router
	Coordinator *router.FallbackCoordinator
	Health      *health.Monitor
	Backends    *providers.Registry

	// Usage accounting
	Telemetry       *telemetry.Counter
	Metrics         *observability.Metrics
	MetricsRegistry *prometheus.Registry

	// Services
	Sessions *session.Store
	Chat     *chat.Service

	// Routing event log, nil unless DATABASE_URL is set
	RepoFactory *postgres.RepositoryFactory
	DB          *postgres.DB
	Audit       *audit.Service
}

// NewDependencies creates and wires up all application dependencies.
func NewDependencies(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Dependencies, error) {
	var factory *postgres.RepositoryFactory
	if cfg.Database.Enabled() {
		f, err := postgres.NewRepositoryFactory(ctx, cfg.Database, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize database: %w", err)
		}
		factory = f
	} else {
		logger.Info("DATABASE_URL not set, routing event log disabled")
	}

	deps, err := newDependencies(cfg, logger, factory)
	if err != nil {
		if factory != nil {
			_ = factory.Close()
		}
		return nil, err
	}
	return deps, nil
}

// newDependencies wires everything except the database connection, which
// is opened by the caller so tests can supply a mock.
func newDependencies(cfg *config.Config, logger *zap.Logger, factory *postgres.RepositoryFactory) (*Dependencies, error) {
	deps := &Dependencies{
		Config:  cfg,
		Logger:  logger,
		Catalog: cfg.Backends.Catalog(),
	}

	deps.initHealth(cfg)

	if err := deps.initBackends(cfg); err != nil {
		return nil, fmt.Errorf("failed to initialize backends: %w", err)
	}

	if err := deps.initMetrics(); err != nil {
		return nil, fmt.Errorf("failed to initialize metrics: %w", err)
	}

	if factory != nil {
		if err := deps.initEventLog(cfg, factory); err != nil {
			return nil, fmt.Errorf("failed to initialize routing event log: %w", err)
		}
	}

	deps.Router = router.New(deps.Catalog)
	deps.Coordinator = router.NewFallbackCoordinator(deps.Catalog, cfg.Backends.Timeout, deps.Health, logger)
	deps.Sessions = session.NewStore(cfg.Session.Mode())

	var events chat.EventRecorder
	if deps.Audit != nil {
		events = deps.Audit
	}
	deps.Chat = chat.NewService(
		deps.Router,
		deps.Coordinator,
		deps.Health,
		deps.Backends,
		[]telemetry.Recorder{deps.Telemetry, deps.Metrics},
		events,
		logger,
	)

	logger.Info("all dependencies initialized successfully",
		zap.String("local_text", deps.Catalog.LocalText),
		zap.String("local_vision", deps.Catalog.LocalVision),
		zap.Strings("runtimes", deps.Backends.ListProviders()),
		zap.String("cloud_key", cfg.Backends.KeyHint()))
	return deps, nil
}

// initHealth builds the availability monitor over the local runtime
func (d *Dependencies) initHealth(cfg *config.Config) {
	probe := health.NewHTTPProbe(cfg.Backends.OllamaBaseURL, &http.Client{Timeout: cfg.Health.ProbeTimeout})
	d.Health = health.NewMonitor(probe, health.Config{
		TTL:          cfg.Health.CacheTTL,
		ProbeTimeout: cfg.Health.ProbeTimeout,
		CloudAPIKey:  cfg.Backends.APIKey,
	}, d.Logger)
}

// initBackends registers the local runtime and the cloud provider the
// credential belongs to.
func (d *Dependencies) initBackends(cfg *config.Config) error {
	registry := providers.NewRegistry()

	local := ollama.NewAdapter(providers.ProviderConfig{
		BaseURL: cfg.Backends.OllamaBaseURL,
		Timeout: cfg.Backends.Timeout,
	})
	if err := registry.RegisterProvider(local); err != nil {
		return err
	}

	keyProvider, usable := health.InspectCredential(cfg.Backends.APIKey)
	cloudConfig := providers.ProviderConfig{
		APIKey:  cfg.Backends.APIKey,
		Timeout: cfg.Backends.Timeout,
	}
	switch {
	case !usable:
		d.Logger.Warn("no usable cloud credential, routing stays local",
			zap.String("cloud_key", cfg.Backends.KeyHint()))
	case keyProvider == router.KeyProviderOpenRouter:
		cloudConfig.BaseURL = cfg.Backends.OpenRouterBaseURL
		if err := registry.RegisterProvider(openai.NewOpenRouterAdapter(cloudConfig)); err != nil {
			return err
		}
	default:
		cloudConfig.BaseURL = cfg.Backends.OpenAIBaseURL
		if err := registry.RegisterProvider(openai.NewOpenAIAdapter(cloudConfig)); err != nil {
			return err
		}
	}

	d.Backends = registry
	return nil
}

// initMetrics creates the usage counter and its Prometheus exporter
func (d *Dependencies) initMetrics() error {
	d.Telemetry = telemetry.NewCounter()
	d.MetricsRegistry = prometheus.NewRegistry()
	d.MetricsRegistry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	metrics, err := observability.NewMetrics(d.MetricsRegistry, d.Telemetry)
	if err != nil {
		return err
	}
	d.Metrics = metrics
	return nil
}

// initEventLog starts the asynchronous routing event writer
func (d *Dependencies) initEventLog(cfg *config.Config, factory *postgres.RepositoryFactory) error {
	repos := factory.NewRepositories()
	svc := audit.NewService(repos.RoutingEvents, d.Logger, audit.Config{
		BufferSize:  cfg.Database.AuditBufferSize,
		WorkerCount: cfg.Database.AuditWorkers,
	})
	if err := svc.Start(); err != nil {
		return err
	}

	d.RepoFactory = factory
	d.DB = factory.DB()
	d.Audit = svc
	return nil
}

// Close gracefully shuts down all dependencies
func (d *Dependencies) Close(ctx context.Context) error {
	d.Logger.Info("shutting down dependencies")

	var errs []error

	if d.Audit != nil {
		timeout := auditStopTimeout
		if deadline, ok := ctx.Deadline(); ok {
			timeout = time.Until(deadline)
		}
		if err := d.Audit.Stop(timeout); err != nil {
			errs = append(errs, fmt.Errorf("failed to stop routing event log: %w", err))
		}
	}

	if d.RepoFactory != nil {
		if err := d.RepoFactory.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close database: %w", err))
		} else {
			d.Logger.Info("database connection closed")
		}
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
