package reconciler

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cuemby/burrow/pkg/log"
	"github.com/cuemby/burrow/pkg/metrics"
	"github.com/cuemby/burrow/pkg/storage"
	"github.com/cuemby/burrow/pkg/types"
	"github.com/rs/zerolog"
)

// HealthChecker is the part of the health manager the re-scan drives
type HealthChecker interface {
	CheckResourceAvailability(ctx context.Context, resourceID uint64) (types.HealthStatus, error)
	ScheduleResourceChecks(ctx context.Context, resourceID uint64) error
	UnarmedChecks(ctx context.Context, resourceID uint64) ([]types.CheckType, error)
}

// DeploymentTracker reports resources that are still being set up
type DeploymentTracker interface {
	IsDeploying(resourceID uint64) bool
}

// Reconciler periodically re-checks every resource
type Reconciler struct {
	store    storage.Store
	health   HealthChecker
	deploys  DeploymentTracker
	interval time.Duration
	logger   zerolog.Logger

	mu       sync.Mutex
	started  atomic.Bool
	stopCh   chan struct{}
	doneCh   chan struct{}
	stopOnce sync.Once
}

// NewReconciler creates a re-scan loop. deploys may be nil.
func NewReconciler(store storage.Store, health HealthChecker, deploys DeploymentTracker, interval time.Duration) *Reconciler {
	return &Reconciler{
		store:    store,
		health:   health,
		deploys:  deploys,
		interval: interval,
		logger:   log.WithComponent("reconciler"),
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Start begins the re-scan loop. It may only be called once.
func (r *Reconciler) Start() {
	if r.started.Swap(true) {
		return
	}
	go r.run()
}

// Stop stops the loop and waits for a running cycle to finish
func (r *Reconciler) Stop() {
	r.stopOnce.Do(func() {
		close(r.stopCh)
		if r.started.Load() {
			<-r.doneCh
		}
	})
}

// run is the main re-scan loop
func (r *Reconciler) run() {
	defer close(r.doneCh)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		select {
		case <-r.stopCh:
			cancel()
		case <-ctx.Done():
		}
	}()

	r.rescan(ctx)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.rescan(ctx)
		case <-r.stopCh:
			return
		}
	}
}

func (r *Reconciler) rescan(ctx context.Context) {
	if err := r.Reconcile(ctx); err != nil {
		r.logger.Error().Err(err).Msg("Re-scan failed")
	}
}

// Reconcile performs one re-scan cycle
func (r *Reconciler) Reconcile(ctx context.Context) error {
	timer := metrics.NewTimer()
	defer func() {
		timer.ObserveDuration(metrics.RescanDuration)
		metrics.RescanCyclesTotal.Inc()
	}()

	r.mu.Lock()
	defer r.mu.Unlock()

	all, err := r.store.ListResources()
	if err != nil {
		return fmt.Errorf("failed to list resources: %w", err)
	}

	var checked, rearmed int
	for _, res := range all {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if r.deploys != nil && r.deploys.IsDeploying(res.ID) {
			continue
		}

		logger := log.WithResourceID(r.logger, res.ID)
		if _, err := r.health.CheckResourceAvailability(ctx, res.ID); err != nil {
			logger.Error().Err(err).Msg("Availability check failed")
			continue
		}
		checked++

		missing, err := r.health.UnarmedChecks(ctx, res.ID)
		if err != nil {
			logger.Error().Err(err).Msg("Failed to inspect health check chains")
			continue
		}
		if len(missing) == 0 {
			continue
		}
		if err := r.health.ScheduleResourceChecks(ctx, res.ID); err != nil {
			logger.Error().Err(err).Msg("Failed to re-arm health checks")
			continue
		}
		logger.Info().Interface("checks", missing).Msg("Re-armed health checks")
		rearmed++
	}

	r.logger.Debug().
		Int("resources", len(all)).
		Int("checked", checked).
		Int("rearmed", rearmed).
		Dur("duration", timer.Duration()).
		Msg("Re-scan complete")
	return nil
}
