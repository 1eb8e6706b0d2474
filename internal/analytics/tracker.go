package analytics

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"todosync/internal/utils"
)

// Error categories stored with failed runs.
const (
	ErrorValidation = "validation"
	ErrorNotFound   = "not_found"
	ErrorRemote     = "remote"
	ErrorCache      = "cache"
	ErrorTimeout    = "timeout"
	ErrorUnknown    = "unknown"
)

// Tracker records command runs.
type Tracker struct {
	db      *sql.DB
	enabled bool
	now     func() time.Time
	mu      sync.Mutex
}

// NewTracker opens the database at dbPath. A disabled tracker still opens
// it so stats can be shown, but records nothing.
func NewTracker(dbPath string, enabled bool) (*Tracker, error) {
	db, err := openDB(dbPath)
	if err != nil {
		return nil, err
	}
	return &Tracker{db: db, enabled: enabled, now: time.Now}, nil
}

// Enabled reports whether runs are recorded.
func (t *Tracker) Enabled() bool {
	return t.enabled
}

// Close closes the database connection
func (t *Tracker) Close() error {
	if t.db != nil {
		return t.db.Close()
	}
	return nil
}

// Track records a finished command. start is when it began, err its outcome.
func (t *Tracker) Track(command, mode string, flags []string, start time.Time, err error) error {
	if !t.enabled {
		return nil
	}

	event := Event{
		Timestamp:  t.now().Unix(),
		Command:    command,
		Mode:       mode,
		Success:    err == nil,
		DurationMs: t.now().Sub(start).Milliseconds(),
		ErrorType:  categorizeError(err),
	}
	if len(flags) > 0 {
		data, _ := json.Marshal(flags)
		event.Flags = string(data)
	}
	return t.logEvent(event)
}

// logEvent records an event to the database
func (t *Tracker) logEvent(event Event) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	_, err := t.db.Exec(`
		INSERT INTO events (timestamp, command, mode, success, duration_ms, error_type, flags)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, event.Timestamp, event.Command, nullString(event.Mode), boolToInt(event.Success),
		event.DurationMs, nullString(event.ErrorType), nullString(event.Flags))
	return err
}

// Events returns recorded runs, oldest first.
func (t *Tracker) Events() ([]Event, error) {
	rows, err := t.db.Query(`
		SELECT id, timestamp, command, mode, success, duration_ms, error_type, flags
		FROM events ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var events []Event
	for rows.Next() {
		var (
			e                      Event
			success                int
			mode, errorType, flags sql.NullString
		)
		if err := rows.Scan(&e.ID, &e.Timestamp, &e.Command, &mode, &success, &e.DurationMs, &errorType, &flags); err != nil {
			return nil, err
		}
		e.Mode = mode.String
		e.Success = success == 1
		e.ErrorType = errorType.String
		e.Flags = flags.String
		events = append(events, e)
	}
	return events, rows.Err()
}

// Stats aggregates runs per command, most used first.
func (t *Tracker) Stats() ([]CommandStats, error) {
	rows, err := t.db.Query(`
		SELECT command,
		       COUNT(*),
		       SUM(success),
		       SUM(CASE WHEN mode = 'OFFLINE' THEN 1 ELSE 0 END),
		       AVG(duration_ms),
		       (SELECT error_type FROM events e2
		         WHERE e2.command = events.command AND e2.success = 0
		         ORDER BY e2.id DESC LIMIT 1)
		FROM events
		GROUP BY command
		ORDER BY COUNT(*) DESC, command`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	stats := []CommandStats{}
	for rows.Next() {
		var (
			s         CommandStats
			lastError sql.NullString
		)
		if err := rows.Scan(&s.Command, &s.Runs, &s.Succeeded, &s.Offline, &s.AvgDurationMs, &lastError); err != nil {
			return nil, err
		}
		s.LastError = lastError.String
		stats = append(stats, s)
	}
	return stats, rows.Err()
}

// Cleanup removes events older than the specified retention period.
// Returns the number of deleted events.
func (t *Tracker) Cleanup(retentionDays int) (int64, error) {
	cutoff := t.now().Unix() - int64(retentionDays*86400)

	result, err := t.db.Exec("DELETE FROM events WHERE timestamp < ?", cutoff)
	if err != nil {
		return 0, err
	}
	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, err
	}
	if deleted > 0 {
		_, _ = t.db.Exec("VACUUM")
	}
	return deleted, nil
}

// categorizeError maps err onto the shared error taxonomy.
func categorizeError(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, context.DeadlineExceeded):
		return ErrorTimeout
	case errors.Is(err, utils.ErrValidation):
		return ErrorValidation
	case errors.Is(err, utils.ErrNotFound):
		return ErrorNotFound
	case errors.Is(err, utils.ErrRemoteUnavailable):
		return ErrorRemote
	case errors.Is(err, utils.ErrCacheCorrupt):
		return ErrorCache
	default:
		return ErrorUnknown
	}
}

// nullString returns nil for empty strings, otherwise the string pointer
func nullString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// boolToInt converts a bool to 1 (true) or 0 (false)
func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
