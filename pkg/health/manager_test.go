package health

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/cuemby/burrow/pkg/clock"
	apperrors "github.com/cuemby/burrow/pkg/errors"
	"github.com/cuemby/burrow/pkg/events"
	"github.com/cuemby/burrow/pkg/hostagent/hostagenttest"
	"github.com/cuemby/burrow/pkg/provider"
	"github.com/cuemby/burrow/pkg/provider/providertest"
	"github.com/cuemby/burrow/pkg/scheduler"
	"github.com/cuemby/burrow/pkg/storage"
	"github.com/cuemby/burrow/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var start = time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)

type fixture struct {
	store    *storage.BoltStore
	clock    *clock.FakeClock
	tasks    *scheduler.TaskManager
	provider *providertest.MockProvider
	agent    *hostagenttest.Fake
	broker   *events.Broker
	mgr      *Manager
	host     *types.Host
	resource *types.Resource
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	store, err := storage.NewBoltStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	host := &types.Host{Hostname: "node1"}
	require.NoError(t, store.CreateHost(host))
	hs := &types.HostStorage{HostID: host.ID, Path: "/srv/pool1", FileSystemType: "ext4"}
	require.NoError(t, store.CreateHostStorage(hs))
	group := &types.ResourceGroup{Name: "lab"}
	require.NoError(t, store.CreateResourceGroup(group))
	res := &types.Resource{
		Name:                 "web1",
		ResourceGroupID:      group.ID,
		ResourceProviderName: "vm",
		ResourceTypeName:     "qemu",
		StorageID:            hs.ID,
	}
	require.NoError(t, store.CreateResource(res))

	p := providertest.NewMockProvider("vm", provider.TypeDefinition{
		TypeName:        "qemu",
		SchemaName:      "qemu",
		FileSystemType:  "ext4",
		RequiredModules: []string{"qemu-system"},
	})
	registry := provider.NewRegistry(providertest.TypeValidator{})
	require.NoError(t, registry.Register(p))

	clk := clock.Fake(start)
	tasks := scheduler.NewTaskManager(scheduler.NewScheduler(clk, scheduler.WithJitter(func() time.Duration { return 0 })))
	t.Cleanup(tasks.StopAll)

	broker := events.NewBroker()
	broker.Start()
	t.Cleanup(broker.Stop)

	agent := hostagenttest.NewFake()
	cfg := Config{ServiceHealthHour: 3, RetryDelay: 15 * time.Minute}

	return &fixture{
		store:    store,
		clock:    clk,
		tasks:    tasks,
		provider: p,
		agent:    agent,
		broker:   broker,
		mgr:      NewManager(store, registry, agent, tasks, broker, cfg),
		host:     host,
		resource: res,
	}
}

func (f *fixture) setStatus(t *testing.T, ct types.CheckType, status types.HealthStatus, lastSuccess time.Time) {
	t.Helper()
	require.NoError(t, f.store.PutHealthRecord(&types.HealthRecord{
		ResourceID:          f.resource.ID,
		CheckType:           ct,
		Status:              status,
		LastSuccessfulCheck: lastSuccess,
	}))
}

func (f *fixture) status(t *testing.T, ct types.CheckType) *types.HealthRecord {
	t.Helper()
	rec, err := f.store.GetHealthRecord(f.resource.ID, ct)
	require.NoError(t, err)
	return rec
}

func TestRequestHealthStatusWithoutRecords(t *testing.T) {
	f := newFixture(t)

	status, err := f.mgr.RequestHealthStatus(context.Background(), f.resource.ID)
	require.NoError(t, err)
	assert.Equal(t, types.HealthInDeployment, status)
}

func TestRequestHealthStatusIsWorst(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.setStatus(t, types.CheckAvailability, types.HealthUp, start)
	f.setStatus(t, types.CheckServiceHealth, types.HealthUp, start)
	status, err := f.mgr.RequestHealthStatus(ctx, f.resource.ID)
	require.NoError(t, err)
	assert.Equal(t, types.HealthUp, status)

	f.setStatus(t, types.CheckDataIntegrity, types.HealthCorrupt, time.Time{})
	f.setStatus(t, types.CheckAvailability, types.HealthDown, start)
	status, err = f.mgr.RequestHealthStatus(ctx, f.resource.ID)
	require.NoError(t, err)
	assert.Equal(t, types.HealthCorrupt, status)
}

func TestAggregate(t *testing.T) {
	tests := []struct {
		name     string
		statuses []types.HealthStatus
		want     types.HealthStatus
	}{
		{"none", nil, types.HealthInDeployment},
		{"all up", []types.HealthStatus{types.HealthUp, types.HealthUp}, types.HealthUp},
		{"deploying", []types.HealthStatus{types.HealthUp, types.HealthInDeployment}, types.HealthInDeployment},
		{"down beats deploying", []types.HealthStatus{types.HealthInDeployment, types.HealthDown}, types.HealthDown},
		{"corrupt beats down", []types.HealthStatus{types.HealthCorrupt, types.HealthDown, types.HealthUp}, types.HealthCorrupt},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var records []*types.HealthRecord
			for _, s := range tt.statuses {
				records = append(records, &types.HealthRecord{Status: s})
			}
			assert.Equal(t, tt.want, Aggregate(records))
		})
	}
}

func TestCheckResourceAvailability(t *testing.T) {
	ctx := context.Background()

	t.Run("success is up", func(t *testing.T) {
		f := newFixture(t)
		f.provider.On("CheckResource", mock.Anything, mock.Anything, types.CheckAvailability).Return(nil).Once()

		status, err := f.mgr.CheckResourceAvailability(ctx, f.resource.ID)
		require.NoError(t, err)
		assert.Equal(t, types.HealthUp, status)

		rec := f.status(t, types.CheckAvailability)
		assert.Equal(t, types.HealthUp, rec.Status)
		assert.True(t, rec.LastSuccessfulCheck.Equal(start))
		assert.Empty(t, rec.Log)
	})

	t.Run("failure is down", func(t *testing.T) {
		f := newFixture(t)
		f.setStatus(t, types.CheckAvailability, types.HealthUp, start.Add(-time.Hour))
		f.provider.On("CheckResource", mock.Anything, mock.Anything, types.CheckAvailability).
			Return(errors.New("connection refused")).Once()

		status, err := f.mgr.CheckResourceAvailability(ctx, f.resource.ID)
		require.NoError(t, err)
		assert.Equal(t, types.HealthDown, status)

		rec := f.status(t, types.CheckAvailability)
		assert.Equal(t, types.HealthDown, rec.Status)
		assert.Contains(t, rec.Log, "connection refused")
		assert.True(t, rec.LastSuccessfulCheck.Equal(start.Add(-time.Hour)))
		assert.False(t, f.mgr.IsScheduled(f.resource.ID, types.CheckServiceHealth))
	})

	t.Run("panic is down", func(t *testing.T) {
		f := newFixture(t)
		f.provider.On("CheckResource", mock.Anything, mock.Anything, types.CheckAvailability).
			Run(func(mock.Arguments) { panic("boom") }).Return(nil).Once()

		status, err := f.mgr.CheckResourceAvailability(ctx, f.resource.ID)
		require.NoError(t, err)
		assert.Equal(t, types.HealthDown, status)
		assert.Contains(t, f.status(t, types.CheckAvailability).Log, "boom")
	})

	t.Run("unknown resource", func(t *testing.T) {
		f := newFixture(t)

		_, err := f.mgr.CheckResourceAvailability(ctx, 999)
		assert.True(t, apperrors.IsCode(err, apperrors.CodeNotFound))
	})
}

func TestCorruptRecoveryRunsServiceHealth(t *testing.T) {
	f := newFixture(t)
	f.setStatus(t, types.CheckAvailability, types.HealthCorrupt, time.Time{})
	f.provider.On("CheckResource", mock.Anything, mock.Anything, types.CheckAvailability).Return(nil).Once()
	f.provider.On("CheckResource", mock.Anything, mock.Anything, types.CheckServiceHealth).Return(nil).Once()

	status, err := f.mgr.CheckResourceAvailability(context.Background(), f.resource.ID)
	require.NoError(t, err)
	assert.Equal(t, types.HealthUp, status)

	// The fake clock runs immediate tasks synchronously.
	f.provider.AssertExpectations(t)
	assert.Equal(t, types.HealthUp, f.status(t, types.CheckServiceHealth).Status)
	assert.Equal(t, 1, f.agent.Installs(f.host.ID, "qemu-system"))

	fireAt, ok := f.tasks.FireTime(TaskKey(f.resource.ID, types.CheckServiceHealth))
	require.True(t, ok)
	assert.Equal(t, time.Date(2026, 1, 11, 3, 0, 0, 0, time.UTC), fireAt)
}

func TestCheckResourceHealthSkips(t *testing.T) {
	ctx := context.Background()

	t.Run("down stops the chain", func(t *testing.T) {
		f := newFixture(t)
		f.setStatus(t, types.CheckAvailability, types.HealthDown, time.Time{})

		cont, err := f.mgr.CheckResourceHealth(ctx, f.resource.ID, types.CheckServiceHealth)
		require.NoError(t, err)
		assert.False(t, cont)
		f.provider.AssertNotCalled(t, "CheckResource", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("in deployment continues", func(t *testing.T) {
		f := newFixture(t)
		f.setStatus(t, types.CheckAvailability, types.HealthInDeployment, time.Time{})

		cont, err := f.mgr.CheckResourceHealth(ctx, f.resource.ID, types.CheckDataIntegrity)
		require.NoError(t, err)
		assert.True(t, cont)
		f.provider.AssertNotCalled(t, "CheckResource", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("missing availability counts as in deployment", func(t *testing.T) {
		f := newFixture(t)

		cont, err := f.mgr.CheckResourceHealth(ctx, f.resource.ID, types.CheckServiceHealth)
		require.NoError(t, err)
		assert.True(t, cont)
		f.provider.AssertNotCalled(t, "CheckResource", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("availability is rejected", func(t *testing.T) {
		f := newFixture(t)

		_, err := f.mgr.CheckResourceHealth(ctx, f.resource.ID, types.CheckAvailability)
		assert.True(t, apperrors.IsCode(err, apperrors.CodeInvalid))
	})
}

func TestCheckResourceHealth(t *testing.T) {
	ctx := context.Background()

	t.Run("success is up", func(t *testing.T) {
		f := newFixture(t)
		f.setStatus(t, types.CheckAvailability, types.HealthUp, start)
		f.provider.On("CheckResource", mock.Anything, mock.Anything, types.CheckDataIntegrity).Return(nil).Once()

		cont, err := f.mgr.CheckResourceHealth(ctx, f.resource.ID, types.CheckDataIntegrity)
		require.NoError(t, err)
		assert.True(t, cont)
		assert.Equal(t, types.HealthUp, f.status(t, types.CheckDataIntegrity).Status)
		assert.Zero(t, f.agent.Installs(f.host.ID, "qemu-system"))
	})

	t.Run("failure is corrupt", func(t *testing.T) {
		f := newFixture(t)
		f.setStatus(t, types.CheckAvailability, types.HealthUp, start)
		f.provider.On("CheckResource", mock.Anything, mock.Anything, types.CheckServiceHealth).
			Return(errors.New("disk full")).Once()

		cont, err := f.mgr.CheckResourceHealth(ctx, f.resource.ID, types.CheckServiceHealth)
		require.NoError(t, err)
		assert.False(t, cont)

		rec := f.status(t, types.CheckServiceHealth)
		assert.Equal(t, types.HealthCorrupt, rec.Status)
		assert.Contains(t, rec.Log, "disk full")
	})

	t.Run("missing module is corrupt", func(t *testing.T) {
		f := newFixture(t)
		f.setStatus(t, types.CheckAvailability, types.HealthUp, start)
		f.agent.FailModule("qemu-system", errors.New("package not found"))

		cont, err := f.mgr.CheckResourceHealth(ctx, f.resource.ID, types.CheckServiceHealth)
		require.NoError(t, err)
		assert.False(t, cont)
		assert.Equal(t, types.HealthCorrupt, f.status(t, types.CheckServiceHealth).Status)
		f.provider.AssertNotCalled(t, "CheckResource", mock.Anything, mock.Anything, mock.Anything)
	})
}

func TestScheduleResourceChecksOverdueFiresNow(t *testing.T) {
	f := newFixture(t)
	f.setStatus(t, types.CheckAvailability, types.HealthUp, start)
	f.provider.On("CheckResource", mock.Anything, mock.Anything, types.CheckServiceHealth).Return(nil).Once()

	require.NoError(t, f.mgr.ScheduleResourceChecks(context.Background(), f.resource.ID))

	f.provider.AssertExpectations(t)
	assert.True(t, f.mgr.IsScheduled(f.resource.ID, types.CheckServiceHealth))
	assert.False(t, f.mgr.IsScheduled(f.resource.ID, types.CheckDataIntegrity))

	// Next run is due the following day and fires exactly once.
	f.provider.On("CheckResource", mock.Anything, mock.Anything, types.CheckServiceHealth).Return(nil).Once()
	f.clock.Advance(14*time.Hour + time.Minute)
	f.provider.AssertExpectations(t)
	assert.True(t, f.status(t, types.CheckServiceHealth).LastSuccessfulCheck.Equal(time.Date(2026, 1, 11, 3, 0, 0, 0, time.UTC)))
}

func TestScheduleResourceChecksNotDue(t *testing.T) {
	f := newFixture(t)
	f.provider.Schedule = &types.Schedule{Type: types.ScheduleWeekly, Counter: 2}
	f.setStatus(t, types.CheckAvailability, types.HealthUp, start)
	f.setStatus(t, types.CheckServiceHealth, types.HealthUp, start.Add(-time.Hour))
	f.setStatus(t, types.CheckDataIntegrity, types.HealthUp, start.Add(-24*time.Hour))

	require.NoError(t, f.mgr.ScheduleResourceChecks(context.Background(), f.resource.ID))

	sh, ok := f.tasks.FireTime(TaskKey(f.resource.ID, types.CheckServiceHealth))
	require.True(t, ok)
	assert.Equal(t, time.Date(2026, 1, 11, 3, 0, 0, 0, time.UTC), sh)

	di, ok := f.tasks.FireTime(TaskKey(f.resource.ID, types.CheckDataIntegrity))
	require.True(t, ok)
	assert.Equal(t, start.Add(13*24*time.Hour), di)

	f.provider.AssertNotCalled(t, "CheckResource", mock.Anything, mock.Anything, mock.Anything)
}

func TestChainRetriesWhileInDeployment(t *testing.T) {
	f := newFixture(t)

	require.NoError(t, f.mgr.ScheduleResourceChecks(context.Background(), f.resource.ID))

	fireAt, ok := f.tasks.FireTime(TaskKey(f.resource.ID, types.CheckServiceHealth))
	require.True(t, ok)
	assert.Equal(t, start.Add(15*time.Minute), fireAt)

	f.setStatus(t, types.CheckAvailability, types.HealthUp, start)
	f.provider.On("CheckResource", mock.Anything, mock.Anything, types.CheckServiceHealth).Return(nil).Once()
	f.clock.Advance(15 * time.Minute)

	f.provider.AssertExpectations(t)
	fireAt, ok = f.tasks.FireTime(TaskKey(f.resource.ID, types.CheckServiceHealth))
	require.True(t, ok)
	assert.Equal(t, time.Date(2026, 1, 11, 3, 0, 0, 0, time.UTC), fireAt)
}

func TestChainEndsOnFailure(t *testing.T) {
	f := newFixture(t)
	f.setStatus(t, types.CheckAvailability, types.HealthUp, start)
	f.provider.On("CheckResource", mock.Anything, mock.Anything, types.CheckServiceHealth).
		Return(errors.New("service crashed")).Once()

	require.NoError(t, f.mgr.ScheduleResourceChecks(context.Background(), f.resource.ID))

	assert.False(t, f.mgr.IsScheduled(f.resource.ID, types.CheckServiceHealth))
	assert.Equal(t, types.HealthCorrupt, f.status(t, types.CheckServiceHealth).Status)
}

func TestChainEndsWhenResourceDeleted(t *testing.T) {
	f := newFixture(t)

	require.NoError(t, f.mgr.ScheduleResourceChecks(context.Background(), f.resource.ID))
	require.NoError(t, f.store.DeleteResource(f.resource.ID))

	f.clock.Advance(15 * time.Minute)
	assert.False(t, f.mgr.IsScheduled(f.resource.ID, types.CheckServiceHealth))
	assert.Zero(t, f.tasks.Count())
}

func TestUnscheduleResourceChecks(t *testing.T) {
	f := newFixture(t)
	f.provider.Schedule = &types.Schedule{Type: types.ScheduleWeekly, Counter: 1}

	require.NoError(t, f.mgr.ScheduleResourceChecks(context.Background(), f.resource.ID))
	assert.Equal(t, 2, f.tasks.Count())

	f.mgr.UnscheduleResourceChecks(f.resource.ID)
	assert.Zero(t, f.tasks.Count())

	f.clock.Advance(48 * time.Hour)
	f.provider.AssertNotCalled(t, "CheckResource", mock.Anything, mock.Anything, mock.Anything)
}

func TestUpdateHealthPublishesTransition(t *testing.T) {
	f := newFixture(t)
	sub := f.broker.Subscribe(events.EventResourceHealthChanged)
	defer f.broker.Unsubscribe(sub)

	err := f.mgr.UpdateHealth(context.Background(), f.resource.ID, types.CheckAvailability, types.HealthCorrupt, "image missing")
	require.NoError(t, err)

	rec := f.status(t, types.CheckAvailability)
	assert.Equal(t, types.HealthCorrupt, rec.Status)
	assert.Equal(t, "image missing", rec.Log)

	select {
	case ev := <-sub:
		assert.Equal(t, f.resource.ID, ev.ResourceID)
		assert.Equal(t, "availability", ev.Metadata["check_type"])
		assert.Equal(t, "in_deployment", ev.Metadata["previous"])
		assert.Equal(t, "corrupt", ev.Metadata["status"])
	case <-time.After(time.Second):
		t.Fatal("no health_changed event")
	}
}

func TestHealthSummary(t *testing.T) {
	f := newFixture(t)

	other := &types.Resource{
		Name:                 "web2",
		ResourceGroupID:      f.resource.ResourceGroupID,
		ResourceProviderName: "vm",
		ResourceTypeName:     "qemu",
		StorageID:            f.resource.StorageID,
	}
	require.NoError(t, f.store.CreateResource(other))
	f.setStatus(t, types.CheckAvailability, types.HealthUp, start)

	summary, err := f.mgr.HealthSummary(context.Background())
	require.NoError(t, err)
	assert.Equal(t, map[types.HealthStatus]int{
		types.HealthUp:           1,
		types.HealthInDeployment: 1,
	}, summary)
}

func TestUnarmedChecks(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	missing, err := f.mgr.UnarmedChecks(ctx, f.resource.ID)
	require.NoError(t, err)
	assert.Equal(t, []types.CheckType{types.CheckServiceHealth}, missing)

	f.provider.Schedule = &types.Schedule{Type: types.ScheduleWeekly, Counter: 1}
	f.setStatus(t, types.CheckAvailability, types.HealthUp, start)
	f.setStatus(t, types.CheckServiceHealth, types.HealthUp, start.Add(-time.Hour))
	f.setStatus(t, types.CheckDataIntegrity, types.HealthCorrupt, start.Add(-24*time.Hour))
	f.tasks.ScheduleAtTimeOrNow(TaskKey(f.resource.ID, types.CheckServiceHealth), start.Add(time.Hour), func() {})

	missing, err = f.mgr.UnarmedChecks(ctx, f.resource.ID)
	require.NoError(t, err)
	assert.Equal(t, []types.CheckType{types.CheckDataIntegrity}, missing)

	require.NoError(t, f.mgr.ScheduleResourceChecks(ctx, f.resource.ID))
	missing, err = f.mgr.UnarmedChecks(ctx, f.resource.ID)
	require.NoError(t, err)
	assert.Empty(t, missing)

	_, err = f.mgr.UnarmedChecks(ctx, 999)
	assert.True(t, apperrors.IsCode(err, apperrors.CodeNotFound))
}
