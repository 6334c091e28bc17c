package manager

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/cuemby/burrow/pkg/clock"
	"github.com/cuemby/burrow/pkg/config"
	"github.com/cuemby/burrow/pkg/deploy"
	"github.com/cuemby/burrow/pkg/events"
	"github.com/cuemby/burrow/pkg/health"
	"github.com/cuemby/burrow/pkg/hostagent"
	"github.com/cuemby/burrow/pkg/log"
	"github.com/cuemby/burrow/pkg/metrics"
	"github.com/cuemby/burrow/pkg/provider"
	"github.com/cuemby/burrow/pkg/providers/endpoint"
	"github.com/cuemby/burrow/pkg/query"
	"github.com/cuemby/burrow/pkg/rbac"
	"github.com/cuemby/burrow/pkg/reconciler"
	"github.com/cuemby/burrow/pkg/resources"
	"github.com/cuemby/burrow/pkg/scheduler"
	"github.com/cuemby/burrow/pkg/schema"
	"github.com/cuemby/burrow/pkg/security"
	"github.com/cuemby/burrow/pkg/storage"
	"github.com/rs/zerolog"
)

// collectInterval is how often health gauges are refreshed
const collectInterval = 30 * time.Second

// Manager is the control plane of one Burrow installation
type Manager struct {
	store       storage.Store
	resolver    *resources.Resolver
	schemas     *schema.Registry
	providers   *provider.Registry
	tasks       *scheduler.TaskManager
	broker      *events.Broker
	health      *health.Manager
	deployer    *deploy.Deployer
	permissions *rbac.Resolver
	queries     *query.Service
	reconciler  *reconciler.Reconciler
	collector   *metrics.Collector
	logger      zerolog.Logger
}

// Option customizes a manager
type Option func(*options)

type options struct {
	clock     clock.Clock
	agent     hostagent.Agent
	identity  func(storage.Store) rbac.Identity
	providers []provider.Provider
}

// WithClock replaces the wall clock used by the task scheduler
func WithClock(clk clock.Clock) Option {
	return func(o *options) { o.clock = clk }
}

// WithHostAgent replaces the local host agent
func WithHostAgent(agent hostagent.Agent) Option {
	return func(o *options) { o.agent = agent }
}

// WithIdentity replaces the store-backed identity collaborator
func WithIdentity(identity func(storage.Store) rbac.Identity) Option {
	return func(o *options) { o.identity = identity }
}

// WithProviders registers providers after the built-in endpoint provider
func WithProviders(providers ...provider.Provider) Option {
	return func(o *options) { o.providers = append(o.providers, providers...) }
}

// NewManager opens the datastore in cfg.DataDir and wires every component
func NewManager(cfg *config.Config, opts ...Option) (*Manager, error) {
	o := options{
		clock: clock.Real(),
		agent: hostagent.NewLocal(),
		identity: func(s storage.Store) rbac.Identity {
			return rbac.NewStoreIdentity(s)
		},
	}
	for _, opt := range opts {
		opt(&o)
	}

	if err := os.MkdirAll(cfg.DataDir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	store, err := storage.NewBoltStore(cfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to create store: %w", err)
	}

	m, err := wire(cfg, store, o)
	if err != nil {
		store.Close()
		return nil, err
	}
	return m, nil
}

func wire(cfg *config.Config, store storage.Store, o options) (*Manager, error) {
	salt, err := security.LoadOrCreateSalt(cfg.DataDir)
	if err != nil {
		return nil, err
	}
	sealer, err := security.NewConfigSealerFromPassphrase(cfg.Sealing.Passphrase, salt)
	if err != nil {
		return nil, fmt.Errorf("failed to create config sealer: %w", err)
	}
	configs := security.NewConfigStore(store, sealer)

	schemas := schema.NewRegistry()
	if err := endpoint.RegisterSchemas(schemas); err != nil {
		return nil, fmt.Errorf("failed to register endpoint schemas: %w", err)
	}

	providers := provider.NewRegistry(schemas)
	all := append([]provider.Provider{endpoint.New(configs, schemas)}, o.providers...)
	for _, p := range all {
		if err := providers.Register(p); err != nil {
			return nil, err
		}
	}

	agent := hostagent.Deduplicate(o.agent)
	tasks := scheduler.NewTaskManager(scheduler.NewScheduler(o.clock))

	broker := events.NewBroker()
	broker.Start()

	healthMgr := health.NewManager(store, providers, agent, tasks, broker, health.Config{
		ServiceHealthHour: cfg.Health.ServiceHealthHour,
		RetryDelay:        cfg.Health.RetryDelay,
		CheckTimeout:      cfg.Health.CheckTimeout,
	})
	deployer := deploy.NewDeployer(store, providers, agent, healthMgr, configs, broker)
	permissions := rbac.NewResolver(store, o.identity(store))

	m := &Manager{
		store:       store,
		resolver:    resources.NewResolver(store),
		schemas:     schemas,
		providers:   providers,
		tasks:       tasks,
		broker:      broker,
		health:      healthMgr,
		deployer:    deployer,
		permissions: permissions,
		queries:     query.NewService(store, providers, healthMgr, permissions),
		reconciler:  reconciler.NewReconciler(store, healthMgr, deployer, cfg.Health.RescanInterval),
		collector:   metrics.NewCollector(healthMgr, collectInterval),
		logger:      log.WithComponent("manager"),
	}

	metrics.RegisterComponent(metrics.ComponentStorage, true, "bolt store open")
	metrics.RegisterComponent(metrics.ComponentProviders, true, fmt.Sprintf("%d providers registered", len(all)))
	metrics.RegisterComponent(metrics.ComponentScheduler, false, "not started")
	metrics.RegisterComponent(metrics.ComponentReconciler, false, "not started")

	m.logger.Info().
		Str("data_dir", cfg.DataDir).
		Int("providers", len(all)).
		Msg("Manager initialized")
	return m, nil
}

// Start begins the re-scan loop and metrics collection. The first re-scan
// re-arms the health checks of every existing resource.
func (m *Manager) Start() {
	m.reconciler.Start()
	m.collector.Start()
	metrics.UpdateComponent(metrics.ComponentScheduler, true, "running")
	metrics.UpdateComponent(metrics.ComponentReconciler, true, "running")
	m.logger.Info().Msg("Manager started")
}

// Shutdown stops background work and closes the store. Running deployments
// are waited for until ctx is done.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.reconciler.Stop()
	m.collector.Stop()
	metrics.UpdateComponent(metrics.ComponentReconciler, false, "stopped")

	done := make(chan struct{})
	go func() {
		m.deployer.Wait()
		close(done)
	}()

	var err error
	select {
	case <-done:
	case <-ctx.Done():
		err = fmt.Errorf("deployments still running: %w", ctx.Err())
		m.logger.Warn().Err(err).Msg("Shutting down with deployments in flight")
	}

	m.tasks.StopAll()
	metrics.UpdateComponent(metrics.ComponentScheduler, false, "stopped")

	m.broker.Stop()
	if closeErr := m.store.Close(); closeErr != nil && err == nil {
		err = closeErr
	}
	metrics.UpdateComponent(metrics.ComponentStorage, false, "closed")
	return err
}

// Events returns the event broker
func (m *Manager) Events() *events.Broker { return m.broker }

// Health returns the health manager
func (m *Manager) Health() *health.Manager { return m.health }

// Providers returns the provider registry
func (m *Manager) Providers() *provider.Registry { return m.providers }

// Schemas returns the schema registry providers validate against
func (m *Manager) Schemas() *schema.Registry { return m.schemas }

// Store returns the datastore
func (m *Manager) Store() storage.Store { return m.store }

// Rescan runs one re-scan cycle immediately
func (m *Manager) Rescan(ctx context.Context) error {
	return m.reconciler.Reconcile(ctx)
}
