package scheduler

import (
	"math/rand/v2"
	"sync"
	"time"

	"github.com/cuemby/burrow/pkg/clock"
	"github.com/cuemby/burrow/pkg/log"
	"github.com/cuemby/burrow/pkg/metrics"
	"github.com/cuemby/burrow/pkg/types"
	"github.com/rs/zerolog"
)

// TaskID identifies a pending one-shot task
type TaskID uint64

// maxJitter bounds the random offset added to daily schedules
const maxJitter = time.Hour

// Scheduler runs one-shot callbacks at a point in time. Tasks live only in
// memory; a task is removed from the registry before its callback runs.
type Scheduler struct {
	clock  clock.Clock
	jitter func() time.Duration
	logger zerolog.Logger

	mu     sync.Mutex
	nextID TaskID
	tasks  map[TaskID]*task
}

type task struct {
	fireAt time.Time
	timer  clock.Timer
}

// Option configures a Scheduler
type Option func(*Scheduler)

// WithJitter overrides the random offset applied to daily schedules
func WithJitter(jitter func() time.Duration) Option {
	return func(s *Scheduler) {
		s.jitter = jitter
	}
}

// NewScheduler creates a scheduler driven by clk
func NewScheduler(clk clock.Clock, opts ...Option) *Scheduler {
	s := &Scheduler{
		clock:  clk,
		jitter: randomJitter,
		logger: log.WithComponent("scheduler"),
		tasks:  make(map[TaskID]*task),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Clock returns the clock the scheduler runs on
func (s *Scheduler) Clock() clock.Clock {
	return s.clock
}

// ScheduleAtTimeOrNow runs fn at the given time, or as soon as possible if
// that time has already passed.
func (s *Scheduler) ScheduleAtTimeOrNow(at time.Time, fn func()) TaskID {
	s.mu.Lock()
	s.nextID++
	id := s.nextID
	t := &task{fireAt: at}
	s.tasks[id] = t
	s.updateGaugeLocked()
	s.mu.Unlock()

	delay := at.Sub(s.clock.Now())
	if delay < 0 {
		delay = 0
	}

	// The clock may run the callback before AfterFunc returns, so the
	// timer is attached only if the task is still registered.
	timer := s.clock.AfterFunc(delay, func() { s.fire(id, fn) })

	s.mu.Lock()
	if current, ok := s.tasks[id]; ok && current == t {
		t.timer = timer
	}
	s.mu.Unlock()

	return id
}

// ScheduleWithOverdueProtection runs fn when schedule is next due after
// lastSuccess. A task that is already overdue fires now instead of being
// skipped.
func (s *Scheduler) ScheduleWithOverdueProtection(lastSuccess time.Time, schedule types.Schedule, fn func()) TaskID {
	return s.ScheduleAtTimeOrNow(s.DueTime(lastSuccess, schedule), fn)
}

// DueTime returns when schedule is next due after lastSuccess, clamped to
// the current time. Daily schedules receive a random jitter.
func (s *Scheduler) DueTime(lastSuccess time.Time, schedule types.Schedule) time.Time {
	var jitter time.Duration
	if schedule.Type == types.ScheduleDaily {
		jitter = s.jitter()
	}

	due := NextDueTime(lastSuccess, schedule, jitter)
	now := s.clock.Now()
	if !due.After(now) {
		s.logger.Debug().
			Time("due", due).
			Time("last_success", lastSuccess).
			Msg("Task overdue, firing now")
		return now
	}
	return due
}

// Stop cancels a pending task. Unknown or already fired tasks are ignored.
func (s *Scheduler) Stop(id TaskID) {
	s.mu.Lock()
	t, ok := s.tasks[id]
	if ok {
		delete(s.tasks, id)
		s.updateGaugeLocked()
	}
	s.mu.Unlock()

	if ok && t.timer != nil {
		t.timer.Stop()
	}
}

// StopAll cancels every pending task
func (s *Scheduler) StopAll() {
	s.mu.Lock()
	pending := s.tasks
	s.tasks = make(map[TaskID]*task)
	s.updateGaugeLocked()
	s.mu.Unlock()

	for _, t := range pending {
		if t.timer != nil {
			t.timer.Stop()
		}
	}
}

// Pending returns the number of tasks waiting to fire
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tasks)
}

// FireTime returns when a pending task is due
func (s *Scheduler) FireTime(id TaskID) (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	if !ok {
		return time.Time{}, false
	}
	return t.fireAt, true
}

func (s *Scheduler) fire(id TaskID, fn func()) {
	s.mu.Lock()
	if _, ok := s.tasks[id]; !ok {
		s.mu.Unlock()
		return
	}
	delete(s.tasks, id)
	s.updateGaugeLocked()
	s.mu.Unlock()

	fn()
}

func (s *Scheduler) updateGaugeLocked() {
	metrics.ScheduledTasks.Set(float64(len(s.tasks)))
}

// NextDueTime computes when schedule is next due after lastSuccess.
//
// Daily: the first AtHour:jitter strictly after lastSuccess, so the result
// is never more than 24h after lastSuccess. Weekly: lastSuccess plus
// Counter weeks (at least one).
func NextDueTime(lastSuccess time.Time, schedule types.Schedule, jitter time.Duration) time.Time {
	switch schedule.Type {
	case types.ScheduleWeekly:
		weeks := schedule.Counter
		if weeks < 1 {
			weeks = 1
		}
		return lastSuccess.Add(time.Duration(weeks) * 7 * 24 * time.Hour)
	default:
		y, m, d := lastSuccess.Date()
		dayStart := time.Date(y, m, d, 0, 0, 0, 0, lastSuccess.Location())
		due := dayStart.Add(time.Duration(schedule.AtHour)*time.Hour + jitter)
		if !due.After(lastSuccess) {
			due = due.Add(24 * time.Hour)
		}
		return due
	}
}

func randomJitter() time.Duration {
	return time.Duration(rand.IntN(int(maxJitter/time.Minute))) * time.Minute
}
