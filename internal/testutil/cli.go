// Package testutil provides shared test utilities for CLI testing across packages.
// This enables co-located CLI tests while maintaining consistent test infrastructure.
package testutil

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"todosync/cmd/todosync/cmd"
	"todosync/internal/credentials"
	"todosync/internal/notification"
	"todosync/internal/testutil/mockstore"
)

// CLITest provides a test helper for running CLI commands in isolation
// against a mock task store.
type CLITest struct {
	t          *testing.T
	cfg        *cmd.Config
	tmpDir     string
	configPath string
	settings   map[string]string

	// Store is the mock task store the config points at.
	Store *mockstore.Store
	// Keyring replaces the OS keyring.
	Keyring *credentials.MockKeyring
}

// testConfig is rendered with the store URL, the cache settings, the sync
// settings, the notification log path and the analytics switch.
const testConfig = `remote:
  url: %q
  max_retries: 0
cache:
  backend: %s
  path: %q
sync:
  offline_mode: %s
  conflict_resolution: %s
  insert_position: %s
  connectivity_timeout: 2s
  request_timeout: 5s
  poll_interval: 50ms
reminder:
  enabled: true
notifications:
  os_notification: false
  log_notification: true
  log_path: %q
logging:
  background_enabled: false
analytics:
  enabled: %s
`

// NewCLITest creates a CLI test helper with an isolated sqlite cache and a
// fresh mock store.
func NewCLITest(t *testing.T) *CLITest {
	t.Helper()

	tmpDir := t.TempDir()
	store := mockstore.NewStore()
	t.Cleanup(store.Close)

	c := &CLITest{
		t:          t,
		tmpDir:     tmpDir,
		configPath: filepath.Join(tmpDir, "config.yaml"),
		Store:      store,
		Keyring:    credentials.NewMockKeyring(),
		settings: map[string]string{
			"cache.backend":            "sqlite",
			"cache.path":               filepath.Join(tmpDir, "data", "cache.db"),
			"sync.offline_mode":        "auto",
			"sync.conflict_resolution": "remote_wins",
			"sync.insert_position":     "append",
			"analytics.enabled":        "false",
		},
	}
	c.cfg = &cmd.Config{
		NoPrompt:   true,
		ConfigPath: c.configPath,
		Stdin:      strings.NewReader(""),
		Keyring:    c.Keyring,
		Getenv:     func(string) string { return "" },
		DataDir:    filepath.Join(tmpDir, "data"),
	}
	c.writeConfig()
	return c
}

// NewCLITestWithFileCache uses the JSON file cache instead of sqlite.
func NewCLITestWithFileCache(t *testing.T) *CLITest {
	t.Helper()
	c := NewCLITest(t)
	c.SetConfigValue("cache.backend", "file")
	c.SetConfigValue("cache.path", filepath.Join(c.tmpDir, "cache"))
	return c
}

// NewCLITestWithNotifier injects a notification manager, e.g. one backed by
// notification.MockCommandExecutor.
func NewCLITestWithNotifier(t *testing.T, n notification.NotificationManager) *CLITest {
	t.Helper()
	c := NewCLITest(t)
	c.cfg.Notifier = n
	return c
}

// Config returns the cmd.Config for direct manipulation.
func (c *CLITest) Config() *cmd.Config {
	return c.cfg
}

// TmpDir returns the temporary directory used by this test.
func (c *CLITest) TmpDir() string {
	return c.tmpDir
}

// ConfigPath returns the path to the config file.
func (c *CLITest) ConfigPath() string {
	return c.configPath
}

// NotificationLogPath returns where notifications are logged.
func (c *CLITest) NotificationLogPath() string {
	return filepath.Join(c.tmpDir, "notifications.log")
}

// SetConfigValue changes one of the templated settings (cache.backend,
// cache.path, sync.offline_mode, sync.conflict_resolution,
// sync.insert_position, analytics.enabled) and rewrites the config file.
func (c *CLITest) SetConfigValue(key, value string) {
	c.t.Helper()
	if _, ok := c.settings[key]; !ok {
		c.t.Fatalf("unsupported config key %q", key)
	}
	c.settings[key] = value
	c.writeConfig()
}

// SetFullConfig replaces the config file content entirely.
func (c *CLITest) SetFullConfig(yamlContent string) {
	c.t.Helper()
	if err := os.WriteFile(c.configPath, []byte(yamlContent), 0644); err != nil {
		c.t.Fatalf("failed to write config file: %v", err)
	}
}

// SetStdin feeds prompt answers and disables --no-prompt.
func (c *CLITest) SetStdin(input string) {
	c.cfg.Stdin = strings.NewReader(input)
	c.cfg.NoPrompt = false
}

func (c *CLITest) writeConfig() {
	c.t.Helper()
	content := fmt.Sprintf(testConfig,
		c.Store.URL(),
		c.settings["cache.backend"],
		c.settings["cache.path"],
		c.settings["sync.offline_mode"],
		c.settings["sync.conflict_resolution"],
		c.settings["sync.insert_position"],
		c.NotificationLogPath(),
		c.settings["analytics.enabled"],
	)
	c.SetFullConfig(content)
}

// Execute runs a CLI command with the given arguments and returns stdout, stderr, and exit code.
func (c *CLITest) Execute(args ...string) (stdout, stderr string, exitCode int) {
	c.t.Helper()

	var stdoutBuf, stderrBuf bytes.Buffer
	// Commands write parsed flags into the Config, so each run gets a copy.
	cfg := *c.cfg
	exitCode = cmd.Execute(args, &stdoutBuf, &stderrBuf, &cfg)
	return stdoutBuf.String(), stderrBuf.String(), exitCode
}

// MustExecute runs a CLI command and fails the test if exit code is non-zero.
func (c *CLITest) MustExecute(args ...string) string {
	c.t.Helper()

	stdout, stderr, exitCode := c.Execute(args...)
	if exitCode != 0 {
		c.t.Fatalf("expected exit code 0, got %d: stdout=%s stderr=%s", exitCode, stdout, stderr)
	}
	return stdout
}

// ExecuteAndFail runs a CLI command and fails the test if exit code is zero.
func (c *CLITest) ExecuteAndFail(args ...string) (stdout, stderr string) {
	c.t.Helper()

	stdout, stderr, exitCode := c.Execute(args...)
	if exitCode == 0 {
		c.t.Fatalf("expected non-zero exit code, got 0: stdout=%s", stdout)
	}
	return stdout, stderr
}

// AssertContains fails the test if output doesn't contain expected string.
func AssertContains(t *testing.T, output, expected string) {
	t.Helper()
	if !strings.Contains(output, expected) {
		t.Errorf("expected output to contain %q, got:\n%s", expected, output)
	}
}

// AssertNotContains fails the test if output contains unexpected string.
func AssertNotContains(t *testing.T, output, unexpected string) {
	t.Helper()
	if strings.Contains(output, unexpected) {
		t.Errorf("expected output NOT to contain %q, got:\n%s", unexpected, output)
	}
}

// AssertExitCode fails the test if exit code doesn't match expected.
func AssertExitCode(t *testing.T, got, want int) {
	t.Helper()
	if got != want {
		t.Errorf("expected exit code %d, got %d", want, got)
	}
}

// AssertResultCode verifies the "result" field of JSON output.
func AssertResultCode(t *testing.T, output, expectedCode string) {
	t.Helper()
	want := fmt.Sprintf(`"result":%q`, expectedCode)
	if !strings.Contains(output, want) {
		t.Errorf("expected result code %q\nFull output:\n%s", expectedCode, output)
	}
}

// Result code constants for convenience.
const (
	ResultActionCompleted = cmd.ResultActionCompleted
	ResultInfoOnly        = cmd.ResultInfoOnly
	ResultError           = cmd.ResultError
)
