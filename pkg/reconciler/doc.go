/*
Package reconciler runs the periodic re-scan of all resources.

Health check chains live in memory only. After a restart, or after a chain
ended because a check failed, nothing would ever check the resource again.
The re-scan closes that gap: on every cycle it runs an availability check
for each resource and re-arms the resource's periodic checks when any
chain it should have (service health, and data integrity when the
provider schedules one) is not armed.

	┌──────────────────────────────┐
	│  Re-scan loop (Interval)     │
	└──────────────┬───────────────┘
	               │ for each resource
	               ▼
	  deploying? ──yes──▶ skip
	               │ no
	               ▼
	  CheckResourceAvailability
	               │
	               ▼
	  any chain unarmed? ──yes──▶ ScheduleResourceChecks

Resources with a deployment or rehost in flight are skipped so the
re-scan never races the provider that is still setting them up.

A cycle runs once when the reconciler starts and then on every tick. The
duration of each cycle is recorded in burrow_rescan_duration_seconds and
the number of cycles in burrow_rescan_cycles_total.
*/
package reconciler
