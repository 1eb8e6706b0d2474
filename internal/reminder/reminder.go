// Package reminder schedules "due soon" alerts for tasks that ask for one.
package reminder

import (
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"todosync/backend"
	"todosync/internal/notification"
	"todosync/internal/synchronizer"
	"todosync/internal/utils"
)

// DefaultLead is how long before the due time a reminder fires.
const DefaultLead = 5 * time.Minute

// Config holds the reminder configuration
type Config struct {
	Enabled bool
	Lead    time.Duration
}

// Scheduler arms one timer per eligible task and records fired reminders so
// they are not repeated across restarts.
type Scheduler struct {
	config   Config
	db       *sql.DB
	notifier notification.NotificationManager
	now      func() time.Time

	mu     sync.Mutex
	timers map[int64]*armed
	closed bool
}

type armed struct {
	timer *time.Timer
	due   time.Time
}

// New opens the fired-reminder log at dbPath (":memory:" is accepted).
func New(cfg Config, dbPath string, notifier notification.NotificationManager) (*Scheduler, error) {
	if notifier == nil {
		return nil, errors.New("notifier is required")
	}
	if cfg.Lead <= 0 {
		cfg.Lead = DefaultLead
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS fired_reminders (
			task_id INTEGER NOT NULL,
			due TEXT NOT NULL,
			fired_at TEXT NOT NULL,
			PRIMARY KEY (task_id, due)
		)
	`)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create fired_reminders table: %w", err)
	}

	return &Scheduler{
		config:   cfg,
		db:       db,
		notifier: notifier,
		now:      time.Now,
		timers:   make(map[int64]*armed),
	}, nil
}

// Close stops all timers and releases resources
func (s *Scheduler) Close() error {
	s.mu.Lock()
	s.closed = true
	for id, a := range s.timers {
		a.timer.Stop()
		delete(s.timers, id)
	}
	s.mu.Unlock()

	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// HandleEvent keeps timers in line with the synchronizer's collection.
func (s *Scheduler) HandleEvent(e synchronizer.Event) {
	if !s.config.Enabled {
		return
	}
	switch e.Kind {
	case synchronizer.EventTaskUpserted:
		s.arm(e.Task)
	case synchronizer.EventTaskRemoved:
		s.cancel(e.Task.ID)
	default:
		s.Resync(e.Tasks)
	}
}

// Resync arms reminders for tasks and cancels timers of tasks no longer present.
func (s *Scheduler) Resync(tasks []backend.Task) {
	present := make(map[int64]bool, len(tasks))
	for _, t := range tasks {
		present[t.ID] = true
		s.arm(t)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for id, a := range s.timers {
		if !present[id] {
			a.timer.Stop()
			delete(s.timers, id)
		}
	}
}

// Armed returns the number of pending timers.
func (s *Scheduler) Armed() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers)
}

func (s *Scheduler) arm(t backend.Task) {
	due, ok := DueTime(t)
	if !ok || t.Completed || !t.ReminderSet {
		s.cancel(t.ID)
		return
	}

	now := s.now()
	if !due.After(now) {
		s.cancel(t.ID)
		return
	}
	if fired, err := s.hasFired(t.ID, due); err != nil || fired {
		if err != nil {
			utils.Warnf("Reminder log lookup failed: %v", err)
		}
		return
	}

	delay := due.Add(-s.config.Lead).Sub(now)
	if delay < 0 {
		delay = 0
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	if existing, ok := s.timers[t.ID]; ok {
		if existing.due.Equal(due) {
			return
		}
		existing.timer.Stop()
	}

	task := t
	s.timers[t.ID] = &armed{
		due:   due,
		timer: time.AfterFunc(delay, func() { s.fire(task, due) }),
	}
	utils.Debugf("Reminder for task %d armed in %s", t.ID, delay.Round(time.Second))
}

func (s *Scheduler) cancel(id int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a, ok := s.timers[id]; ok {
		a.timer.Stop()
		delete(s.timers, id)
	}
}

func (s *Scheduler) fire(t backend.Task, due time.Time) {
	s.mu.Lock()
	a, ok := s.timers[t.ID]
	if !ok || !a.due.Equal(due) || s.closed {
		s.mu.Unlock()
		return
	}
	delete(s.timers, t.ID)
	s.mu.Unlock()

	if fired, err := s.hasFired(t.ID, due); err == nil && fired {
		return
	}
	if _, err := s.db.Exec(
		"INSERT OR IGNORE INTO fired_reminders (task_id, due, fired_at) VALUES (?, ?, ?)",
		t.ID, due.Format(time.RFC3339), s.now().UTC().Format(time.RFC3339),
	); err != nil {
		utils.Warnf("Could not record reminder for task %d: %v", t.ID, err)
	}

	if err := s.notifier.Send(notification.ReminderNotification(t)); err != nil {
		utils.Warnf("Reminder notification failed: %v", err)
	}
}

func (s *Scheduler) hasFired(id int64, due time.Time) (bool, error) {
	var count int
	err := s.db.QueryRow(
		"SELECT COUNT(*) FROM fired_reminders WHERE task_id = ? AND due = ?",
		id, due.Format(time.RFC3339),
	).Scan(&count)
	return count > 0, err
}

// DueTime combines a task's dueDate and timeSlot in local time. A missing
// time slot means the start of the day.
func DueTime(t backend.Task) (time.Time, bool) {
	if t.DueDate == "" {
		return time.Time{}, false
	}
	value, layout := t.DueDate, utils.DateLayout
	if t.TimeSlot != "" {
		value += " " + t.TimeSlot
		layout += " " + utils.TimeSlotLayout
	}
	due, err := time.ParseInLocation(layout, value, time.Local)
	if err != nil {
		return time.Time{}, false
	}
	return due, true
}

// DueSoon returns open tasks with a reminder whose due time falls within
// (now, now+window].
func DueSoon(tasks []backend.Task, now time.Time, window time.Duration) []backend.Task {
	result := []backend.Task{}
	for _, t := range tasks {
		if t.Completed || !t.ReminderSet {
			continue
		}
		due, ok := DueTime(t)
		if !ok || !due.After(now) || due.Sub(now) > window {
			continue
		}
		result = append(result, t)
	}
	return result
}
