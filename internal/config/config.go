// Package config handles application configuration
package config

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

//go:embed config.sample.yaml
var sampleConfig string

// GetSampleConfig returns the embedded sample configuration content
func GetSampleConfig() string {
	return sampleConfig
}

// appName names the XDG subdirectories.
const appName = "todosync"

// Defaults for settings that are absent from the config file.
const (
	DefaultRemoteURL           = "http://127.0.0.1:5000/tasks"
	DefaultToggleAction        = "toggle"
	DefaultAddressing          = "id"
	DefaultMaxRetries          = 3
	DefaultCacheBackend        = "sqlite"
	DefaultConflictResolution  = "remote_wins"
	DefaultInsertPosition      = "append"
	DefaultOfflineMode         = "auto"
	DefaultConnectivityTimeout = "5s"
	DefaultRequestTimeout      = "10s"
	DefaultPollInterval        = "15s"
	DefaultFailureThreshold    = 1
	DefaultReminderLead        = "5m"
	DefaultHistoryLimit        = 50
	DefaultRetentionDays       = 90
)

// Config represents the application configuration
type Config struct {
	Remote        RemoteConfig       `yaml:"remote"`
	Cache         CacheConfig        `yaml:"cache"`
	Sync          SyncConfig         `yaml:"sync"`
	Reminder      ReminderConfig     `yaml:"reminder"`
	Notifications NotificationConfig `yaml:"notifications"`
	History       HistoryConfig      `yaml:"history"`
	Logging       LoggingConfig      `yaml:"logging"`
	Analytics     AnalyticsConfig    `yaml:"analytics"`
}

// RemoteConfig describes the remote task store
type RemoteConfig struct {
	URL          string `yaml:"url"`
	ToggleAction string `yaml:"toggle_action"` // toggle, complete
	Addressing   string `yaml:"addressing"`    // id, index
	MaxRetries   *int   `yaml:"max_retries"`
}

// CacheConfig selects the local cache backend
type CacheConfig struct {
	Backend string `yaml:"backend"` // sqlite, file
	Path    string `yaml:"path"`
}

// SyncConfig holds synchronization settings
type SyncConfig struct {
	ConflictResolution  string `yaml:"conflict_resolution"` // remote_wins, replay
	InsertPosition      string `yaml:"insert_position"`     // append, prepend
	OfflineMode         string `yaml:"offline_mode"`        // auto, online, offline
	ConnectivityTimeout string `yaml:"connectivity_timeout"`
	RequestTimeout      string `yaml:"request_timeout"`
	PollInterval        string `yaml:"poll_interval"`
	FailureThreshold    int    `yaml:"failure_threshold"`
}

// ReminderConfig holds reminder settings
type ReminderConfig struct {
	Enabled *bool  `yaml:"enabled"`
	Lead    string `yaml:"lead"`
}

// NotificationConfig holds notification settings
type NotificationConfig struct {
	OSNotification  *bool  `yaml:"os_notification"`
	OnChange        *bool  `yaml:"on_change"`
	OnConnectivity  bool   `yaml:"on_connectivity"`
	LogNotification bool   `yaml:"log_notification"`
	LogPath         string `yaml:"log_path"`
}

// HistoryConfig holds activity history settings
type HistoryConfig struct {
	Limit int `yaml:"limit"`
}

// AnalyticsConfig holds local command statistics settings
type AnalyticsConfig struct {
	Enabled       bool `yaml:"enabled"`
	RetentionDays int  `yaml:"retention_days"`
}

// LoggingConfig holds logging settings
type LoggingConfig struct {
	BackgroundEnabled *bool `yaml:"background_enabled"` // Controls background log file creation (default: true)
}

// DefaultConfig returns a config with sensible defaults
func DefaultConfig() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// Load loads configuration from the specified path, or the default XDG path if empty.
// If the config file doesn't exist, it creates one from the sample.
func Load(configPath string) (*Config, error) {
	if configPath == "" {
		configPath = DefaultConfigPath()
	}

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		if err := writeSample(configPath); err != nil {
			return nil, fmt.Errorf("failed to create default config: %w", err)
		}
		return DefaultConfig(), nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse reads YAML config data and fills in defaults.
func Parse(data []byte) (*Config, error) {
	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("invalid YAML in config file: %w", err)
	}
	cfg.applyDefaults()
	return cfg, nil
}

// DefaultConfigPath returns $XDG_CONFIG_HOME/todosync/config.yaml.
func DefaultConfigPath() string {
	return filepath.Join(GetConfigDir(), "config.yaml")
}

// writeSample copies the embedded sample config to path.
func writeSample(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(sampleConfig), 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.Remote.URL == "" {
		c.Remote.URL = DefaultRemoteURL
	}
	if c.Remote.ToggleAction == "" {
		c.Remote.ToggleAction = DefaultToggleAction
	}
	if c.Remote.Addressing == "" {
		c.Remote.Addressing = DefaultAddressing
	}
	if c.Cache.Backend == "" {
		c.Cache.Backend = DefaultCacheBackend
	}
	if c.Cache.Path == "" {
		if c.Cache.Backend == "file" {
			c.Cache.Path = filepath.Join(GetDataDir(), "cache")
		} else {
			c.Cache.Path = filepath.Join(GetDataDir(), "cache.db")
		}
	}
	c.Cache.Path = ExpandPath(c.Cache.Path)
	if c.Notifications.LogPath == "" {
		c.Notifications.LogPath = filepath.Join(GetDataDir(), "notifications.log")
	}
	c.Notifications.LogPath = ExpandPath(c.Notifications.LogPath)
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if !strings.HasPrefix(c.Remote.URL, "http://") && !strings.HasPrefix(c.Remote.URL, "https://") {
		return fmt.Errorf("invalid remote.url: %q (must be an http or https URL)", c.Remote.URL)
	}
	if err := oneOf("remote.toggle_action", c.Remote.ToggleAction, "toggle", "complete"); err != nil {
		return err
	}
	if err := oneOf("remote.addressing", c.Remote.Addressing, "id", "index"); err != nil {
		return err
	}
	if c.Remote.MaxRetries != nil && *c.Remote.MaxRetries < 0 {
		return fmt.Errorf("remote.max_retries must not be negative, got %d", *c.Remote.MaxRetries)
	}
	if err := oneOf("cache.backend", c.Cache.Backend, "sqlite", "file"); err != nil {
		return err
	}
	if err := oneOf("sync.conflict_resolution", c.GetConflictResolution(), "remote_wins", "replay"); err != nil {
		return err
	}
	if err := oneOf("sync.insert_position", c.GetInsertPosition(), "append", "prepend"); err != nil {
		return err
	}
	if err := oneOf("sync.offline_mode", c.GetOfflineMode(), "auto", "online", "offline"); err != nil {
		return err
	}
	if c.Sync.FailureThreshold < 0 {
		return fmt.Errorf("sync.failure_threshold must not be negative, got %d", c.Sync.FailureThreshold)
	}
	if c.Analytics.RetentionDays < 0 {
		return fmt.Errorf("analytics.retention_days must not be negative, got %d", c.Analytics.RetentionDays)
	}
	if c.History.Limit < 0 {
		return fmt.Errorf("history.limit must not be negative, got %d", c.History.Limit)
	}

	durations := map[string]string{
		"sync.connectivity_timeout": c.Sync.ConnectivityTimeout,
		"sync.request_timeout":      c.Sync.RequestTimeout,
		"sync.poll_interval":        c.Sync.PollInterval,
		"reminder.lead":             c.Reminder.Lead,
	}
	for key, value := range durations {
		if value == "" {
			continue
		}
		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("invalid duration for %s: %q", key, value)
		}
		if d <= 0 {
			return fmt.Errorf("%s must be positive, got %q", key, value)
		}
	}
	return nil
}

func oneOf(key, value string, allowed ...string) error {
	for _, a := range allowed {
		if value == a {
			return nil
		}
	}
	return fmt.Errorf("invalid %s: %q (must be one of: %s)", key, value, strings.Join(allowed, ", "))
}

// ApplyFlags applies CLI flag overrides to the configuration
func (c *Config) ApplyFlags(offline bool) {
	if offline {
		c.Sync.OfflineMode = "offline"
	}
}

// GetMaxRetries returns the GET retry count for HTTP 429 and 503. Defaults to 3.
func (c *Config) GetMaxRetries() int {
	if c.Remote.MaxRetries == nil {
		return DefaultMaxRetries
	}
	return *c.Remote.MaxRetries
}

// GetConflictResolution returns the reconnection policy. Defaults to "remote_wins".
func (c *Config) GetConflictResolution() string {
	if c.Sync.ConflictResolution == "" {
		return DefaultConflictResolution
	}
	return c.Sync.ConflictResolution
}

// GetInsertPosition returns where new tasks go. Defaults to "append".
func (c *Config) GetInsertPosition() string {
	if c.Sync.InsertPosition == "" {
		return DefaultInsertPosition
	}
	return c.Sync.InsertPosition
}

// GetOfflineMode returns the offline mode setting.
// Returns "auto" as default if not configured.
func (c *Config) GetOfflineMode() string {
	if c.Sync.OfflineMode == "" {
		return DefaultOfflineMode
	}
	return c.Sync.OfflineMode
}

// GetConnectivityTimeout returns the probe timeout. Defaults to 5s.
func (c *Config) GetConnectivityTimeout() time.Duration {
	return durationOr(c.Sync.ConnectivityTimeout, DefaultConnectivityTimeout)
}

// GetRequestTimeout returns the per-request timeout. Defaults to 10s.
func (c *Config) GetRequestTimeout() time.Duration {
	return durationOr(c.Sync.RequestTimeout, DefaultRequestTimeout)
}

// GetPollInterval returns how often watch probes the store. Defaults to 15s.
func (c *Config) GetPollInterval() time.Duration {
	return durationOr(c.Sync.PollInterval, DefaultPollInterval)
}

// GetFailureThreshold returns the failed probes before the store counts as down.
func (c *Config) GetFailureThreshold() int {
	if c.Sync.FailureThreshold <= 0 {
		return DefaultFailureThreshold
	}
	return c.Sync.FailureThreshold
}

// IsReminderEnabled returns true unless reminder.enabled is false.
func (c *Config) IsReminderEnabled() bool {
	return boolOr(c.Reminder.Enabled, true)
}

// GetReminderLead returns how long before the due time a reminder fires.
func (c *Config) GetReminderLead() time.Duration {
	return durationOr(c.Reminder.Lead, DefaultReminderLead)
}

// IsOSNotificationEnabled returns true unless notifications.os_notification is false.
func (c *Config) IsOSNotificationEnabled() bool {
	return boolOr(c.Notifications.OSNotification, true)
}

// IsChangeNotificationEnabled returns true unless notifications.on_change is false.
func (c *Config) IsChangeNotificationEnabled() bool {
	return boolOr(c.Notifications.OnChange, true)
}

// GetHistoryLimit returns the number of kept history entries. Defaults to 50.
func (c *Config) GetHistoryLimit() int {
	if c.History.Limit <= 0 {
		return DefaultHistoryLimit
	}
	return c.History.Limit
}

// IsBackgroundLoggingEnabled returns true if background logging is enabled.
// Background logging creates PID-specific log files in /tmp for background processes.
// Returns true (default) if not configured.
func (c *Config) IsBackgroundLoggingEnabled() bool {
	return boolOr(c.Logging.BackgroundEnabled, true)
}

// GetRetentionDays returns how long command statistics are kept. Defaults to 90.
func (c *Config) GetRetentionDays() int {
	if c.Analytics.RetentionDays <= 0 {
		return DefaultRetentionDays
	}
	return c.Analytics.RetentionDays
}

// AnalyticsDBPath returns the command statistics database location.
func (c *Config) AnalyticsDBPath() string {
	return filepath.Join(GetDataDir(), "analytics.db")
}

// ReminderDBPath returns the fired-reminder log location.
func (c *Config) ReminderDBPath() string {
	return filepath.Join(GetDataDir(), "reminders.db")
}

func durationOr(value, fallback string) time.Duration {
	if value != "" {
		if d, err := time.ParseDuration(value); err == nil && d > 0 {
			return d
		}
	}
	d, _ := time.ParseDuration(fallback)
	return d
}

func boolOr(value *bool, fallback bool) bool {
	if value == nil {
		return fallback
	}
	return *value
}

// getXDGDir returns a directory path following XDG spec.
// envVar is the XDG environment variable (e.g., "XDG_CONFIG_HOME").
// fallbackPath is the relative path from home (e.g., ".config").
func getXDGDir(envVar, fallbackPath string) string {
	if xdgDir := os.Getenv(envVar); xdgDir != "" {
		return filepath.Join(xdgDir, appName)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", fallbackPath, appName)
	}
	return filepath.Join(home, fallbackPath, appName)
}

// GetConfigDir returns the configuration directory following XDG spec
func GetConfigDir() string {
	return getXDGDir("XDG_CONFIG_HOME", ".config")
}

// GetDataDir returns the data directory following XDG spec
func GetDataDir() string {
	return getXDGDir("XDG_DATA_HOME", filepath.Join(".local", "share"))
}

// ExpandPath expands ~ and environment variables in a path
func ExpandPath(path string) string {
	if path == "" {
		return path
	}

	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err == nil {
			path = filepath.Join(home, path[2:])
		}
	}

	return os.ExpandEnv(path)
}
