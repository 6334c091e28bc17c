/*
Package scheduler provides the in-memory timer registry that drives periodic
health checks.

Tasks are one-shot callbacks keyed by a numeric TaskID. Nothing is persisted:
after a restart the reconciler re-arms every resource.

# Overdue protection

Periodic work is expressed as a types.Schedule relative to the last
successful run:

	daily  (AtHour h)   first h:jitter strictly after lastSuccess, jitter in [0, 60m)
	weekly (Counter n)  lastSuccess + n*7d

When the computed time is not in the future the task fires immediately, so a
check missed while the process was down is caught up instead of skipped:

	s := scheduler.NewScheduler(clock.Real())
	s.ScheduleWithOverdueProtection(record.LastSuccessfulCheck, types.Daily(3), run)

# TaskManager

TaskManager layers entity keys on top of the scheduler and guarantees at most
one live task per key. Scheduling a key again stops the previous timer, and a
superseded callback that races with its replacement is dropped.

	tm := scheduler.NewTaskManager(s)
	tm.ScheduleAtTimeOrNow("42/service_health", time.Now(), check)

Time is read through clock.Clock; tests use clock.Fake and Advance.
*/
package scheduler
