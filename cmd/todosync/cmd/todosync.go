package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"todosync/backend"
	"todosync/backend/file"
	"todosync/backend/remote"
	"todosync/backend/sqlite"
	"todosync/internal/config"
	"todosync/internal/connectivity"
	"todosync/internal/credentials"
	"todosync/internal/history"
	"todosync/internal/notification"
	"todosync/internal/reminder"
	"todosync/internal/synchronizer"
	"todosync/internal/utils"
)

// Version is set at build time
var Version = "dev"

// Result codes for JSON output
const (
	ResultActionCompleted = "ACTION_COMPLETED"
	ResultInfoOnly        = "INFO_ONLY"
	ResultError           = "ERROR"
)

// Config holds process-level settings and test injection points. Application
// settings live in the YAML file at ConfigPath.
type Config struct {
	ConfigPath string // empty means $XDG_CONFIG_HOME/todosync/config.yaml
	NoPrompt   bool
	Verbose    bool
	Offline    bool

	Stdin    io.Reader           // prompt input; defaults to os.Stdin
	Keyring  credentials.Keyring // defaults to the OS keyring
	Getenv   func(string) string // defaults to os.Getenv
	Notifier notification.NotificationManager
	DataDir  string // reminder and analytics databases; defaults to the XDG data dir

	mode string // connectivity mode the last command finished in
}

// Execute runs the CLI with the given arguments and IO writers
func Execute(args []string, stdout, stderr io.Writer, cfg *Config) int {
	if cfg == nil {
		cfg = &Config{}
	}
	logger := utils.GetLogger()
	logger.SetOutput(stderr)
	defer logger.SetOutput(nil)

	rootCmd := NewTodoSync(stdout, stderr, cfg)
	rootCmd.SetArgs(args)
	rootCmd.SetOut(stdout)
	rootCmd.SetErr(stderr)

	start := time.Now()
	executed, err := rootCmd.ExecuteC()
	trackCommand(cfg, executed, args, start, err)
	if err != nil {
		if containsJSONFlag(args) {
			outputErrorJSON(err, stdout)
		} else {
			_, _ = fmt.Fprintln(stderr, "Error:", err)
		}
		return 1
	}
	return 0
}

// containsJSONFlag checks if args contain --json flag
func containsJSONFlag(args []string) bool {
	for _, arg := range args {
		if arg == "--json" {
			return true
		}
	}
	return false
}

// NewTodoSync creates the root command with injectable IO
func NewTodoSync(stdout, stderr io.Writer, cfg *Config) *cobra.Command {
	root := &cobra.Command{
		Use:     "todosync",
		Short:   "A task list that keeps working offline",
		Long:    "todosync manages a task list stored on a remote task store, with a local cache that keeps every command working while the store is unreachable.",
		Version: Version,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if v, _ := cmd.Flags().GetBool("verbose"); v {
				cfg.Verbose = true
			}
			if v, _ := cmd.Flags().GetBool("offline"); v {
				cfg.Offline = true
			}
			if v, _ := cmd.Flags().GetBool("no-prompt"); v {
				cfg.NoPrompt = true
			}
			if path, _ := cmd.Flags().GetString("config"); path != "" {
				cfg.ConfigPath = path
			}
			utils.SetVerboseMode(cfg.Verbose)
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().String("config", "", "Path to config file")
	root.PersistentFlags().Bool("offline", false, "Work from the local cache without contacting the task store")
	root.PersistentFlags().BoolP("no-prompt", "y", false, "Disable interactive prompts")
	root.PersistentFlags().BoolP("verbose", "V", false, "Enable verbose/debug output")
	root.PersistentFlags().Bool("json", false, "Output in JSON format")

	root.AddCommand(
		newListCmd(stdout, cfg),
		newAddCmd(stdout, cfg),
		newToggleCmd(stdout, cfg),
		newDeleteCmd(stdout, cfg),
		newEditCmd(stdout, cfg),
		newReorderCmd(stdout, cfg),
		newSummaryCmd(stdout, cfg),
		newExportCmd(stdout, cfg),
		newImportCmd(stdout, cfg),
		newHistoryCmd(stdout, cfg),
		newRemindersCmd(stdout, cfg),
		newSyncCmd(stdout, cfg),
		newStatusCmd(stdout, cfg),
		newWatchCmd(stdout, stderr, cfg),
		newTUICmd(cfg),
		newCredentialsCmd(stdout, stderr, cfg),
		newStatsCmd(stdout, cfg),
	)
	return root
}

// app is the wired object graph for one command.
type app struct {
	opts      *Config
	cfg       *config.Config
	cache     backend.LocalCache
	fileCache *file.Cache
	remote    *remote.Store
	prober    connectivity.Prober
	notifier  notification.NotificationManager
	history   *history.Recorder
	reminders *reminder.Scheduler
	sync      *synchronizer.Synchronizer
	in        io.Reader
}

// appOptions selects optional components.
type appOptions struct {
	reminders bool // long-running commands arm reminder timers
}

func newApp(opts *Config, ao appOptions) (*app, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, err
	}
	cfg.ApplyFlags(opts.Offline)
	if err := cfg.Validate(); err != nil {
		return nil, utils.WrapWithSuggestion(err, "Fix the value in "+configPathFor(opts))
	}

	a := &app{opts: opts, cfg: cfg}
	if err := a.openCache(); err != nil {
		return nil, err
	}

	a.remote, err = remote.New(remote.Config{
		URL:          cfg.Remote.URL,
		Token:        a.credentials().Token(context.Background(), cfg.Remote.URL),
		ToggleAction: backend.Action(cfg.Remote.ToggleAction),
		Addressing:   backend.Addressing(cfg.Remote.Addressing),
		MaxRetries:   cfg.GetMaxRetries(),
	})
	if err != nil {
		a.Close()
		return nil, err
	}

	a.prober, err = connectivity.ForMode(cfg.GetOfflineMode(), cfg.Remote.URL, cfg.GetConnectivityTimeout())
	if err != nil {
		a.Close()
		return nil, err
	}
	if cfg.GetOfflineMode() == connectivity.ModeAuto {
		breaker := connectivity.NewCircuitBreaker(cfg.GetFailureThreshold(), connectivity.DefaultCooldown)
		a.prober = breaker.Guard(a.prober)
	}

	a.notifier = opts.Notifier
	if a.notifier == nil {
		a.notifier, err = notification.NewManager(&notification.Config{
			Enabled: true,
			OSNotification: notification.OSNotificationConfig{
				Enabled:        cfg.IsOSNotificationEnabled(),
				OnReminder:     true,
				OnTaskChange:   cfg.IsChangeNotificationEnabled(),
				OnConnectivity: cfg.Notifications.OnConnectivity,
			},
			LogNotification: notification.LogNotificationConfig{
				Enabled: cfg.Notifications.LogNotification,
				Path:    cfg.Notifications.LogPath,
			},
		})
		if err != nil {
			a.Close()
			return nil, err
		}
	}

	policy, err := synchronizer.ParseConflictPolicy(cfg.GetConflictResolution())
	if err != nil {
		a.Close()
		return nil, err
	}
	insert, err := synchronizer.ParseInsertPosition(cfg.GetInsertPosition())
	if err != nil {
		a.Close()
		return nil, err
	}

	a.history = history.New(a.cache, cfg.GetHistoryLimit())
	syncOpts := []synchronizer.Option{
		synchronizer.WithProber(a.prober),
		synchronizer.WithConflictPolicy(policy),
		synchronizer.WithInsertPosition(insert),
		synchronizer.WithRequestTimeout(cfg.GetRequestTimeout()),
		synchronizer.WithListener(a.history),
		synchronizer.WithListener(notification.NewTaskListener(a.notifier)),
	}

	if ao.reminders && cfg.IsReminderEnabled() {
		a.reminders, err = reminder.New(reminder.Config{
			Enabled: true,
			Lead:    cfg.GetReminderLead(),
		}, a.reminderDBPath(), a.notifier)
		if err != nil {
			a.Close()
			return nil, err
		}
		syncOpts = append(syncOpts, synchronizer.WithListener(a.reminders))
	}

	a.sync = synchronizer.New(a.remote, a.cache, syncOpts...)
	utils.Debugf("Started %s against %s (cache: %s %s)", a.sync.Mode(), cfg.Remote.URL, cfg.Cache.Backend, cfg.Cache.Path)
	return a, nil
}

func (a *app) openCache() error {
	switch a.cfg.Cache.Backend {
	case "file":
		fc, err := file.New(file.Config{Dir: a.cfg.Cache.Path})
		if err != nil {
			return fmt.Errorf("failed to open file cache: %w", err)
		}
		a.fileCache = fc
		a.cache = fc
	default:
		if err := os.MkdirAll(filepath.Dir(a.cfg.Cache.Path), 0755); err != nil {
			return fmt.Errorf("failed to create cache directory: %w", err)
		}
		sc, err := sqlite.New(a.cfg.Cache.Path)
		if err != nil {
			return fmt.Errorf("failed to open cache database: %w", err)
		}
		a.cache = sc
	}
	return nil
}

func (a *app) reminderDBPath() string {
	path := a.cfg.ReminderDBPath()
	if a.opts.DataDir != "" {
		path = filepath.Join(a.opts.DataDir, "reminders.db")
	}
	_ = os.MkdirAll(filepath.Dir(path), 0755)
	return path
}

func (a *app) credentials() *credentials.Manager {
	return newCredentialManager(a.opts)
}

func newCredentialManager(opts *Config) *credentials.Manager {
	var mopts []credentials.ManagerOption
	if opts.Keyring != nil {
		mopts = append(mopts, credentials.WithKeyring(opts.Keyring))
	}
	if opts.Getenv != nil {
		mopts = append(mopts, credentials.WithEnv(opts.Getenv))
	}
	return credentials.NewManager(mopts...)
}

// Close releases everything newApp opened.
func (a *app) Close() {
	if a.reminders != nil {
		_ = a.reminders.Close()
	}
	if a.notifier != nil && a.opts.Notifier == nil {
		_ = a.notifier.Close()
	}
	if a.remote != nil {
		_ = a.remote.Close()
	}
	if a.cache != nil {
		_ = a.cache.Close()
	}
}

// stdin is shared by every prompt of one command run.
func (a *app) stdin() io.Reader {
	if a.in == nil {
		src := a.opts.Stdin
		if src == nil {
			src = os.Stdin
		}
		a.in = utils.NewLineReader(src)
	}
	return a.in
}

func configPathFor(opts *Config) string {
	if opts.ConfigPath != "" {
		return opts.ConfigPath
	}
	return config.DefaultConfigPath()
}

// withApp wires the app, runs fn and closes it.
func withApp(opts *Config, ao appOptions, fn func(a *app) error) error {
	a, err := newApp(opts, ao)
	if err != nil {
		return err
	}
	defer a.Close()
	err = fn(a)
	opts.mode = a.sync.Mode().String()
	return err
}

// JSON output structures
type taskJSON struct {
	Position int    `json:"position"`
	ID       int64  `json:"id"`
	Text     string `json:"text"`
	Created  string `json:"createdDate,omitempty"`
	Done     bool   `json:"completed"`
	Category string `json:"category,omitempty"`
	Priority string `json:"priority,omitempty"`
	DueDate  string `json:"dueDate,omitempty"`
	TimeSlot string `json:"timeSlot,omitempty"`
	Reminder bool   `json:"reminderSet,omitempty"`
}

type errorResponse struct {
	Error      string `json:"error"`
	Suggestion string `json:"suggestion,omitempty"`
	Code       int    `json:"code"`
	Result     string `json:"result"`
}

func toJSON(t backend.Task, position int) taskJSON {
	return taskJSON{
		Position: position,
		ID:       t.ID,
		Text:     t.Text,
		Created:  t.CreatedDate,
		Done:     t.Completed,
		Category: t.Category,
		Priority: t.Priority,
		DueDate:  t.DueDate,
		TimeSlot: t.TimeSlot,
		Reminder: t.ReminderSet,
	}
}

func tasksToJSON(tasks []backend.Task, positions map[int64]int) []taskJSON {
	out := make([]taskJSON, 0, len(tasks))
	for i, t := range tasks {
		pos := i
		if p, ok := positions[t.ID]; ok {
			pos = p
		}
		out = append(out, toJSON(t, pos))
	}
	return out
}

func writeJSON(w io.Writer, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintln(w, string(data))
	return nil
}

// outputErrorJSON outputs error in JSON format
func outputErrorJSON(err error, stdout io.Writer) {
	response := errorResponse{
		Error:  err.Error(),
		Code:   1,
		Result: ResultError,
	}
	var ews *utils.ErrorWithSuggestion
	if errors.As(err, &ews) {
		response.Error = ews.Err.Error()
		response.Suggestion = ews.Suggestion
	}
	_ = writeJSON(stdout, response)
}

func jsonFlag(cmd *cobra.Command) bool {
	v, _ := cmd.Flags().GetBool("json")
	return v
}

// offlineNote is appended to action output when a change was only saved locally.
func offlineNote(a *app) string {
	if a.sync.Mode() == synchronizer.ModeOffline {
		return " (saved offline, will sync when the task store is reachable)"
	}
	return ""
}

func quote(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `\"`) + `"`
}
