// Package analytics keeps local SQLite statistics about command usage:
// success rates, durations, failure categories and how often the task store
// was unreachable.
package analytics

import "os"

// EnvEnabled overrides analytics.enabled when set.
const EnvEnabled = "TODOSYNC_ANALYTICS_ENABLED"

// Event represents one command run.
type Event struct {
	ID         int64
	Timestamp  int64
	Command    string
	Mode       string // ONLINE or OFFLINE when the command finished; empty if it never connected
	Success    bool
	DurationMs int64
	ErrorType  string
	Flags      string // JSON list of flag names
}

// CommandStats aggregates the events of one command.
type CommandStats struct {
	Command       string  `json:"command"`
	Runs          int     `json:"runs"`
	Succeeded     int     `json:"succeeded"`
	Offline       int     `json:"offline"`
	AvgDurationMs float64 `json:"avgDurationMs"`
	LastError     string  `json:"lastError,omitempty"`
}

// SuccessRate returns the share of successful runs in percent.
func (s CommandStats) SuccessRate() int {
	if s.Runs == 0 {
		return 0
	}
	return s.Succeeded * 100 / s.Runs
}

// IsEnabledFromEnv returns the effective enabled state. The environment
// variable wins over the config value.
func IsEnabledFromEnv(configEnabled bool, getenv func(string) string) bool {
	if getenv == nil {
		getenv = os.Getenv
	}
	switch getenv(EnvEnabled) {
	case "":
		return configEnabled
	case "true", "1":
		return true
	default:
		return false
	}
}
