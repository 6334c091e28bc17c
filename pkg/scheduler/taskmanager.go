package scheduler

import (
	"sync"
	"time"

	"github.com/cuemby/burrow/pkg/types"
)

// TaskManager keeps at most one live task per entity key. Scheduling a key
// again supersedes the task already pending for it.
type TaskManager struct {
	scheduler *Scheduler

	mu    sync.Mutex
	tasks map[string]*managedTask
}

type managedTask struct {
	id TaskID
}

// NewTaskManager creates a task manager on top of s
func NewTaskManager(s *Scheduler) *TaskManager {
	return &TaskManager{
		scheduler: s,
		tasks:     make(map[string]*managedTask),
	}
}

// Scheduler returns the underlying scheduler
func (m *TaskManager) Scheduler() *Scheduler {
	return m.scheduler
}

// ScheduleAtTimeOrNow replaces the task for key with one firing at the given time
func (m *TaskManager) ScheduleAtTimeOrNow(key string, at time.Time, fn func()) {
	m.schedule(key, fn, func(wrapped func()) TaskID {
		return m.scheduler.ScheduleAtTimeOrNow(at, wrapped)
	})
}

// ScheduleWithOverdueProtection replaces the task for key with one firing
// when schedule is next due after lastSuccess
func (m *TaskManager) ScheduleWithOverdueProtection(key string, lastSuccess time.Time, schedule types.Schedule, fn func()) {
	m.schedule(key, fn, func(wrapped func()) TaskID {
		return m.scheduler.ScheduleWithOverdueProtection(lastSuccess, schedule, wrapped)
	})
}

func (m *TaskManager) schedule(key string, fn func(), arm func(func()) TaskID) {
	entry := &managedTask{}

	m.mu.Lock()
	prev, hadPrev := m.tasks[key]
	var prevID TaskID
	if hadPrev {
		prevID = prev.id
	}
	m.tasks[key] = entry
	m.mu.Unlock()

	if hadPrev && prevID != 0 {
		m.scheduler.Stop(prevID)
	}

	wrapped := func() {
		m.mu.Lock()
		if m.tasks[key] != entry {
			m.mu.Unlock()
			return
		}
		delete(m.tasks, key)
		m.mu.Unlock()

		fn()
	}

	id := arm(wrapped)

	m.mu.Lock()
	entry.id = id
	m.mu.Unlock()
}

// Stop cancels the task for key. It reports whether one was pending.
func (m *TaskManager) Stop(key string) bool {
	m.mu.Lock()
	entry, ok := m.tasks[key]
	if ok {
		delete(m.tasks, key)
	}
	m.mu.Unlock()

	if ok && entry.id != 0 {
		m.scheduler.Stop(entry.id)
	}
	return ok
}

// IsScheduled reports whether a task is pending for key
func (m *TaskManager) IsScheduled(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.tasks[key]
	return ok
}

// FireTime returns when the task for key is due
func (m *TaskManager) FireTime(key string) (time.Time, bool) {
	m.mu.Lock()
	entry, ok := m.tasks[key]
	var id TaskID
	if ok {
		id = entry.id
	}
	m.mu.Unlock()
	if !ok {
		return time.Time{}, false
	}
	return m.scheduler.FireTime(id)
}

// Count returns the number of keys with a pending task
func (m *TaskManager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.tasks)
}

// StopAll cancels every task owned by the manager
func (m *TaskManager) StopAll() {
	m.mu.Lock()
	tasks := m.tasks
	m.tasks = make(map[string]*managedTask)
	m.mu.Unlock()

	for _, entry := range tasks {
		if entry.id != 0 {
			m.scheduler.Stop(entry.id)
		}
	}
}
