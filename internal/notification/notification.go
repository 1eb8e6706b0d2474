// Package notification delivers user-facing alerts (reminders, task saved or
// updated, connectivity changes) to the desktop and a log file.
package notification

import (
	"runtime"
	"time"
)

// NotificationType identifies the type of notification
type NotificationType string

const (
	NotifyReminder     NotificationType = "reminder"
	NotifyTaskSaved    NotificationType = "task_saved"
	NotifyTaskUpdated  NotificationType = "task_updated"
	NotifyConnectivity NotificationType = "connectivity"
	NotifyTest         NotificationType = "test"
)

// Notification represents a notification to be sent
type Notification struct {
	Type      NotificationType
	Title     string
	Message   string
	Timestamp time.Time
	Metadata  map[string]string
}

// NotificationManager is the interface for managing notifications
type NotificationManager interface {
	Send(n Notification) error
	Close() error
	ChannelCount() int
}

// NotificationChannel is the interface for a notification channel
type NotificationChannel interface {
	Send(n Notification) error
	Close() error
}

// Config holds the notification configuration
type Config struct {
	Enabled         bool
	OSNotification  OSNotificationConfig
	LogNotification LogNotificationConfig
}

// OSNotificationConfig holds OS notification configuration
type OSNotificationConfig struct {
	Enabled        bool
	OnReminder     bool
	OnTaskChange   bool
	OnConnectivity bool
}

// LogNotificationConfig holds log notification configuration
type LogNotificationConfig struct {
	Enabled   bool
	Path      string
	MaxSizeMB int
}

// CommandExecutor is the interface for executing system commands
type CommandExecutor interface {
	Execute(cmd string, args ...string) error
}

// MockCommandExecutor is a mock implementation of CommandExecutor for testing
type MockCommandExecutor struct {
	ExecuteFunc func(cmd string, args ...string) error
}

// Execute implements CommandExecutor
func (m *MockCommandExecutor) Execute(cmd string, args ...string) error {
	if m.ExecuteFunc != nil {
		return m.ExecuteFunc(cmd, args...)
	}
	return nil
}

// options are shared by the manager and the channels it builds.
type options struct {
	executor CommandExecutor
	platform string
	now      func() time.Time
}

// Option customizes NewManager and NewOSNotificationChannel.
type Option func(*options)

func newOptions(opts []Option) options {
	o := options{executor: execCommand{}, platform: runtime.GOOS, now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// WithCommandExecutor replaces the runner used for desktop notifications.
func WithCommandExecutor(executor CommandExecutor) Option {
	return func(o *options) { o.executor = executor }
}

// WithPlatform overrides runtime.GOOS when choosing the notification command.
func WithPlatform(platform string) Option {
	return func(o *options) { o.platform = platform }
}

// WithClock overrides the timestamp source used when a notification has none.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}
