package health

import (
	"context"
	"fmt"
	"time"

	"github.com/cuemby/burrow/pkg/clock"
	apperrors "github.com/cuemby/burrow/pkg/errors"
	"github.com/cuemby/burrow/pkg/events"
	"github.com/cuemby/burrow/pkg/hostagent"
	"github.com/cuemby/burrow/pkg/log"
	"github.com/cuemby/burrow/pkg/metrics"
	"github.com/cuemby/burrow/pkg/provider"
	"github.com/cuemby/burrow/pkg/resources"
	"github.com/cuemby/burrow/pkg/scheduler"
	"github.com/cuemby/burrow/pkg/storage"
	"github.com/cuemby/burrow/pkg/types"
	"github.com/rs/zerolog"
)

// Config tunes the health manager
type Config struct {
	// ServiceHealthHour is the hour of day service health checks are due
	ServiceHealthHour int

	// RetryDelay is the minimum gap before a continuing check chain fires again
	RetryDelay time.Duration

	// CheckTimeout bounds a single scheduled check; zero means no limit
	CheckTimeout time.Duration
}

// DefaultConfig returns the default health manager settings
func DefaultConfig() Config {
	return Config{
		ServiceHealthHour: 3,
		RetryDelay:        15 * time.Minute,
		CheckTimeout:      5 * time.Minute,
	}
}

// Manager evaluates and records resource health and keeps the periodic
// checks of every resource armed.
type Manager struct {
	store     storage.Store
	resolver  *resources.Resolver
	providers *provider.Registry
	agent     hostagent.Agent
	tasks     *scheduler.TaskManager
	clock     clock.Clock
	broker    *events.Broker
	config    Config
	logger    zerolog.Logger
}

// NewManager creates a health manager. broker may be nil.
func NewManager(
	store storage.Store,
	providers *provider.Registry,
	agent hostagent.Agent,
	tasks *scheduler.TaskManager,
	broker *events.Broker,
	config Config,
) *Manager {
	return &Manager{
		store:     store,
		resolver:  resources.NewResolver(store),
		providers: providers,
		agent:     agent,
		tasks:     tasks,
		clock:     tasks.Scheduler().Clock(),
		broker:    broker,
		config:    config,
		logger:    log.WithComponent("health"),
	}
}

// TaskKey is the task manager key of a resource's check chain
func TaskKey(resourceID uint64, checkType types.CheckType) string {
	return fmt.Sprintf("%d/%s", resourceID, checkType)
}

// CheckResourceAvailability runs the availability check and records Up or
// Down. A resource that was Corrupt also gets an immediate service health check.
func (m *Manager) CheckResourceAvailability(ctx context.Context, resourceID uint64) (types.HealthStatus, error) {
	ref, err := m.resolver.ByID(resourceID)
	if err != nil {
		return 0, err
	}

	prev, err := m.record(resourceID, types.CheckAvailability)
	if err != nil {
		return 0, err
	}

	timer := metrics.NewTimer()
	checkErr := m.providers.CheckResource(ctx, ref, types.CheckAvailability)
	timer.ObserveDurationVec(metrics.HealthCheckDuration, string(types.CheckAvailability))

	status := types.HealthUp
	if checkErr != nil {
		status = types.HealthDown
	}
	if err := m.save(ref, prev, status, checkErr); err != nil {
		return 0, err
	}

	if prev.Status == types.HealthCorrupt {
		m.logger.Info().
			Uint64("resource_id", resourceID).
			Msg("Resource was corrupt, scheduling immediate service health check")
		m.tasks.ScheduleAtTimeOrNow(TaskKey(resourceID, types.CheckServiceHealth), m.clock.Now(),
			m.chainCallback(resourceID, types.CheckServiceHealth, m.serviceHealthSchedule()))
	}

	return status, nil
}

// CheckResourceHealth runs a service health or data integrity check. It
// returns whether the periodic chain for that check should continue: false
// when the resource is Down or the check failed, true when it passed or the
// resource is still being deployed.
func (m *Manager) CheckResourceHealth(ctx context.Context, resourceID uint64, checkType types.CheckType) (bool, error) {
	if checkType == types.CheckAvailability {
		return false, apperrors.Invalid("availability is checked with CheckResourceAvailability")
	}

	ref, err := m.resolver.ByID(resourceID)
	if err != nil {
		return false, err
	}

	availability, err := m.record(resourceID, types.CheckAvailability)
	if err != nil {
		return false, err
	}

	switch availability.Status {
	case types.HealthDown:
		metrics.HealthChecksTotal.WithLabelValues(string(checkType), metrics.ResultSkipped).Inc()
		return false, nil
	case types.HealthInDeployment:
		metrics.HealthChecksTotal.WithLabelValues(string(checkType), metrics.ResultSkipped).Inc()
		return true, nil
	}

	prev, err := m.record(resourceID, checkType)
	if err != nil {
		return false, err
	}

	timer := metrics.NewTimer()
	checkErr := m.runCheck(ctx, ref, checkType)
	timer.ObserveDurationVec(metrics.HealthCheckDuration, string(checkType))

	status := types.HealthUp
	if checkErr != nil {
		status = types.HealthCorrupt
	}
	if err := m.save(ref, prev, status, checkErr); err != nil {
		return false, err
	}
	return checkErr == nil, nil
}

func (m *Manager) runCheck(ctx context.Context, ref *types.ResourceReference, checkType types.CheckType) error {
	if checkType == types.CheckServiceHealth {
		_, td, err := m.providers.FindTypeDefinition(ref)
		if err != nil {
			return err
		}
		for _, module := range td.RequiredModules {
			if err := m.agent.EnsureModuleIsInstalled(ctx, ref.HostID, module); err != nil {
				return fmt.Errorf("module %s: %w", module, err)
			}
		}
	}
	return m.providers.CheckResource(ctx, ref, checkType)
}

// RequestHealthStatus aggregates every check into the worst status. A
// resource without records is still being deployed.
func (m *Manager) RequestHealthStatus(ctx context.Context, resourceID uint64) (types.HealthStatus, error) {
	records, err := m.store.ListHealthRecords(resourceID)
	if err != nil {
		return 0, err
	}
	return Aggregate(records), nil
}

// Aggregate returns the worst status of records, or InDeployment when there are none
func Aggregate(records []*types.HealthRecord) types.HealthStatus {
	if len(records) == 0 {
		return types.HealthInDeployment
	}
	worst := types.HealthUp
	for _, r := range records {
		worst = types.Worse(worst, r.Status)
	}
	return worst
}

// ScheduleResourceChecks arms the service health chain and, when the
// provider declares one, the data integrity chain.
func (m *Manager) ScheduleResourceChecks(ctx context.Context, resourceID uint64) error {
	ref, err := m.resolver.ByID(resourceID)
	if err != nil {
		return err
	}

	if err := m.arm(resourceID, types.CheckServiceHealth, m.serviceHealthSchedule(), false); err != nil {
		return err
	}

	schedule, err := m.providers.DataIntegrityCheckSchedule(ref)
	if err != nil {
		return err
	}
	if schedule != nil {
		if err := m.arm(resourceID, types.CheckDataIntegrity, *schedule, false); err != nil {
			return err
		}
	}
	return nil
}

// UnscheduleResourceChecks cancels every pending check of a resource
func (m *Manager) UnscheduleResourceChecks(resourceID uint64) {
	for _, ct := range types.CheckTypes {
		m.tasks.Stop(TaskKey(resourceID, ct))
	}
}

// IsScheduled reports whether a check chain is armed for the resource
func (m *Manager) IsScheduled(resourceID uint64, checkType types.CheckType) bool {
	return m.tasks.IsScheduled(TaskKey(resourceID, checkType))
}

// UnarmedChecks lists the chains a resource should have armed but does not:
// service health always, data integrity when its provider declares a
// schedule. A chain that ended on a failed check shows up here.
func (m *Manager) UnarmedChecks(ctx context.Context, resourceID uint64) ([]types.CheckType, error) {
	ref, err := m.resolver.ByID(resourceID)
	if err != nil {
		return nil, err
	}

	var missing []types.CheckType
	if !m.IsScheduled(resourceID, types.CheckServiceHealth) {
		missing = append(missing, types.CheckServiceHealth)
	}

	schedule, err := m.providers.DataIntegrityCheckSchedule(ref)
	if err != nil {
		return nil, err
	}
	if schedule != nil && !m.IsScheduled(resourceID, types.CheckDataIntegrity) {
		missing = append(missing, types.CheckDataIntegrity)
	}
	return missing, nil
}

// UpdateHealth records a status decided outside of a provider check, such
// as InDeployment at the start of a deployment or Corrupt after it failed.
func (m *Manager) UpdateHealth(ctx context.Context, resourceID uint64, checkType types.CheckType, status types.HealthStatus, diagnostics string) error {
	prev, err := m.record(resourceID, checkType)
	if err != nil {
		return err
	}

	record := *prev
	record.Status = status
	record.Log = diagnostics
	if status == types.HealthUp {
		record.LastSuccessfulCheck = m.clock.Now()
	}
	if err := m.store.PutHealthRecord(&record); err != nil {
		return fmt.Errorf("failed to save health record: %w", err)
	}
	m.transitioned(resourceID, checkType, prev.Status, status, diagnostics)
	return nil
}

// HealthSummary counts resources per aggregated status
func (m *Manager) HealthSummary(ctx context.Context) (map[types.HealthStatus]int, error) {
	all, err := m.store.ListResources()
	if err != nil {
		return nil, err
	}

	counts := make(map[types.HealthStatus]int)
	for _, res := range all {
		status, err := m.RequestHealthStatus(ctx, res.ID)
		if err != nil {
			return nil, err
		}
		counts[status]++
	}
	return counts, nil
}

func (m *Manager) serviceHealthSchedule() types.Schedule {
	return types.Daily(m.config.ServiceHealthHour)
}

// arm schedules the next run of a check chain relative to its last success.
// Continuations never fire sooner than RetryDelay from now.
func (m *Manager) arm(resourceID uint64, checkType types.CheckType, schedule types.Schedule, continuation bool) error {
	rec, err := m.record(resourceID, checkType)
	if err != nil {
		return err
	}

	at := m.tasks.Scheduler().DueTime(rec.LastSuccessfulCheck, schedule)
	if continuation {
		earliest := m.clock.Now().Add(m.config.RetryDelay)
		if at.Before(earliest) {
			at = earliest
		}
	}

	m.tasks.ScheduleAtTimeOrNow(TaskKey(resourceID, checkType), at, m.chainCallback(resourceID, checkType, schedule))
	return nil
}

func (m *Manager) chainCallback(resourceID uint64, checkType types.CheckType, schedule types.Schedule) func() {
	return func() {
		logger := log.WithResourceID(m.logger, resourceID)

		ctx := context.Background()
		if m.config.CheckTimeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, m.config.CheckTimeout)
			defer cancel()
		}

		cont, err := m.CheckResourceHealth(ctx, resourceID, checkType)
		if err != nil {
			if apperrors.IsCode(err, apperrors.CodeNotFound) {
				logger.Info().Str("check", string(checkType)).Msg("Resource gone, check chain ended")
				return
			}
			logger.Error().Err(err).Str("check", string(checkType)).Msg("Scheduled check failed")
			cont = true
		}

		if !cont {
			logger.Info().Str("check", string(checkType)).Msg("Check chain stopped until re-armed")
			return
		}
		if err := m.arm(resourceID, checkType, schedule, true); err != nil {
			logger.Error().Err(err).Str("check", string(checkType)).Msg("Failed to re-arm check")
		}
	}
}

// record returns the stored record, or a fresh InDeployment one
func (m *Manager) record(resourceID uint64, checkType types.CheckType) (*types.HealthRecord, error) {
	rec, err := m.store.GetHealthRecord(resourceID, checkType)
	if apperrors.IsCode(err, apperrors.CodeNotFound) {
		return &types.HealthRecord{
			ResourceID: resourceID,
			CheckType:  checkType,
			Status:     types.HealthInDeployment,
		}, nil
	}
	return rec, err
}

func (m *Manager) save(ref *types.ResourceReference, prev *types.HealthRecord, status types.HealthStatus, checkErr error) error {
	record := *prev
	record.Status = status
	record.Log = ""

	result := metrics.ResultSuccess
	if checkErr != nil {
		result = metrics.ResultFailure
		record.Log = checkErr.Error()
	} else {
		record.LastSuccessfulCheck = m.clock.Now()
	}
	metrics.HealthChecksTotal.WithLabelValues(string(prev.CheckType), result).Inc()

	if err := m.store.PutHealthRecord(&record); err != nil {
		return fmt.Errorf("failed to save health record: %w", err)
	}

	m.transitioned(ref.ID, prev.CheckType, prev.Status, status, record.Log)
	return nil
}

func (m *Manager) transitioned(resourceID uint64, checkType types.CheckType, from, to types.HealthStatus, diagnostics string) {
	if from == to {
		return
	}

	metrics.HealthTransitionsTotal.WithLabelValues(string(checkType), to.String()).Inc()

	logger := log.WithResourceID(m.logger, resourceID)
	event := logger.Info()
	if to == types.HealthDown || to == types.HealthCorrupt {
		event = logger.Warn().Str("log", diagnostics)
	}
	event.Str("check", string(checkType)).
		Str("from", from.String()).
		Str("to", to.String()).
		Msg("Health status changed")

	m.broker.Publish(&events.Event{
		Type:       events.EventResourceHealthChanged,
		ResourceID: resourceID,
		Message:    fmt.Sprintf("%s: %s -> %s", checkType, from, to),
		Metadata: map[string]string{
			"check_type": string(checkType),
			"previous":   from.String(),
			"status":     to.String(),
		},
	})
}
