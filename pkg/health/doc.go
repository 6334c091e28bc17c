/*
Package health tracks the health of managed resources.

Every resource has up to three independent health records, one per check
type, each holding the latest status, the time of the last successful check
and the diagnostics of the latest failure:

	availability    Up or Down; Corrupt only after a failed deployment
	service_health  Up or Corrupt; daily at the configured hour
	data_integrity  Up or Corrupt; on the provider's own schedule

A record starts out as InDeployment and has no terminal state. The status
reported for a resource is the worst of its records under the order

	Up < InDeployment < Down < Corrupt

# Check chains

Service health and data integrity checks perpetuate themselves. When a
scheduled check fires, the manager runs it and, if the result says the
chain should continue, re-arms it relative to the new last successful check.
A failed check ends its chain until something re-arms it, normally the
re-scan job in pkg/reconciler or a successful availability check of a
resource that was Corrupt.

Checks of a resource that is Down are skipped and end the chain. Checks of
a resource that is still InDeployment are skipped but the chain continues,
no sooner than Config.RetryDelay from now.

# Usage

	tasks := scheduler.NewTaskManager(scheduler.NewScheduler(clock.Real()))
	mgr := health.NewManager(store, providers, agent, tasks, broker, health.DefaultConfig())

	status, err := mgr.CheckResourceAvailability(ctx, resourceID)
	if err != nil {
		return err
	}
	if status == types.HealthUp {
		err = mgr.ScheduleResourceChecks(ctx, resourceID)
	}

Provider errors and panics never escape the manager: they become Down or
Corrupt records with the failure captured in the record log.
*/
package health
