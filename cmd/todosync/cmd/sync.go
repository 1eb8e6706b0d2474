package cmd

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"todosync/backend"
	"todosync/internal/config"
	"todosync/internal/connectivity"
	"todosync/internal/credentials"
	"todosync/internal/reminder"
	"todosync/internal/shutdown"
	"todosync/internal/synchronizer"
	"todosync/internal/tui"
	"todosync/internal/utils"
	"todosync/internal/views"
	"todosync/internal/watcher"
)

func newSyncCmd(stdout io.Writer, cfg *Config) *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Reconcile the local cache with the task store",
		Long: `Reconcile with the task store now.

With sync.conflict_resolution: replay, changes made offline are sent to the
store first. With remote_wins they are discarded. Either way the local cache
is then replaced by the store's list.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cfg, appOptions{}, func(a *app) error {
				ctx := cmd.Context()
				pending, err := a.sync.Pending(ctx)
				if err != nil {
					return err
				}
				if err := a.sync.Sync(ctx); err != nil {
					return err
				}
				tasks := a.sync.Tasks()

				verb := "discarded"
				if a.cfg.GetConflictResolution() == string(synchronizer.PolicyReplay) {
					verb = "replayed"
				}
				if jsonFlag(cmd) {
					return writeJSON(stdout, struct {
						Pending int    `json:"pending"`
						Policy  string `json:"policy"`
						Count   int    `json:"count"`
						Result  string `json:"result"`
					}{pending, a.cfg.GetConflictResolution(), len(tasks), ResultActionCompleted})
				}
				if pending > 0 {
					_, _ = fmt.Fprintf(stdout, "%d offline change(s) %s\n", pending, verb)
				}
				_, _ = fmt.Fprintf(stdout, "Synced %d task(s) from %s\n", len(tasks), a.cfg.Remote.URL)
				return nil
			})
		},
	}
}

func newStatusCmd(stdout io.Writer, cfg *Config) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show connectivity and pending offline changes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cfg, appOptions{}, func(a *app) error {
				ctx := cmd.Context()
				if _, err := a.sync.Load(ctx); err != nil {
					return err
				}
				pending, err := a.sync.Pending(ctx)
				if err != nil {
					return err
				}
				token, err := a.credentials().Get(ctx, a.cfg.Remote.URL)
				if err != nil {
					return err
				}

				status := struct {
					Mode        string `json:"mode"`
					URL         string `json:"url"`
					OfflineMode string `json:"offlineMode"`
					Cache       string `json:"cache"`
					CachePath   string `json:"cachePath"`
					Pending     int    `json:"pending"`
					Policy      string `json:"policy"`
					Insert      string `json:"insertPosition"`
					Token       string `json:"token"`
					Result      string `json:"result"`
				}{
					Mode:        a.sync.Mode().String(),
					URL:         a.cfg.Remote.URL,
					OfflineMode: a.cfg.GetOfflineMode(),
					Cache:       a.cfg.Cache.Backend,
					CachePath:   a.cfg.Cache.Path,
					Pending:     pending,
					Policy:      a.cfg.GetConflictResolution(),
					Insert:      a.cfg.GetInsertPosition(),
					Token:       string(token.Source),
					Result:      ResultInfoOnly,
				}
				if jsonFlag(cmd) {
					return writeJSON(stdout, status)
				}
				_, _ = fmt.Fprintf(stdout, "Mode:            %s\n", status.Mode)
				_, _ = fmt.Fprintf(stdout, "Task store:      %s\n", status.URL)
				_, _ = fmt.Fprintf(stdout, "Offline mode:    %s\n", status.OfflineMode)
				_, _ = fmt.Fprintf(stdout, "Cache:           %s (%s)\n", status.Cache, status.CachePath)
				_, _ = fmt.Fprintf(stdout, "Pending changes: %d\n", status.Pending)
				_, _ = fmt.Fprintf(stdout, "On reconnect:    %s\n", status.Policy)
				_, _ = fmt.Fprintf(stdout, "New tasks:       %s\n", status.Insert)
				_, _ = fmt.Fprintf(stdout, "API token:       %s\n", status.Token)
				return nil
			})
		},
	}
}

func newHistoryCmd(stdout io.Writer, cfg *Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent changes, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			clearAll, _ := cmd.Flags().GetBool("clear")
			return withApp(cfg, appOptions{}, func(a *app) error {
				ctx := cmd.Context()
				if clearAll {
					if err := a.history.Clear(ctx); err != nil {
						return err
					}
					_, _ = fmt.Fprintln(stdout, "History cleared")
					return nil
				}

				entries, err := a.history.Entries(ctx)
				if err != nil {
					return err
				}
				if jsonFlag(cmd) {
					return writeJSON(stdout, struct {
						Entries interface{} `json:"entries"`
						Result  string      `json:"result"`
					}{entries, ResultInfoOnly})
				}
				if len(entries) == 0 {
					_, _ = fmt.Fprintln(stdout, "No history yet")
					return nil
				}
				for _, e := range entries {
					_, _ = fmt.Fprintln(stdout, e.String())
				}
				return nil
			})
		},
	}
	cmd.Flags().Bool("clear", false, "Forget all recorded changes")
	return cmd
}

func newRemindersCmd(stdout io.Writer, cfg *Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reminders",
		Short: "List open tasks with a reminder due soon",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			within, _ := cmd.Flags().GetDuration("within")
			return withApp(cfg, appOptions{}, func(a *app) error {
				tasks, err := a.sync.Load(cmd.Context())
				if err != nil {
					return err
				}
				due := reminder.DueSoon(tasks, time.Now(), within)
				if jsonFlag(cmd) {
					return writeJSON(stdout, struct {
						Tasks  []taskJSON `json:"tasks"`
						Count  int        `json:"count"`
						Result string     `json:"result"`
					}{tasksToJSON(due, views.Positions(tasks)), len(due), ResultInfoOnly})
				}
				if len(due) == 0 {
					_, _ = fmt.Fprintf(stdout, "No reminders due within %s\n", within)
					return nil
				}
				views.Render(stdout, due, views.RenderOptions{Positions: views.Positions(tasks)})
				return nil
			})
		},
	}
	cmd.Flags().Duration("within", 24*time.Hour, "How far ahead to look")
	return cmd
}

// lockedWriter serializes output from the watch goroutines.
type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (l *lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}

func newWatchCmd(stdout, stderr io.Writer, cfg *Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Keep the cache in sync, follow connectivity and fire reminders",
		Long: `Run in the foreground until interrupted.

The task store is polled every sync.poll_interval. Losing or regaining it
switches modes, and regaining it reconciles offline changes. Reminders fire
shortly before tasks are due. With the file cache, edits made to the cache
by other processes are picked up.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			timeout, _ := cmd.Flags().GetDuration("timeout")
			return withApp(cfg, appOptions{reminders: true}, func(a *app) error {
				return runWatch(cmd, a, &lockedWriter{w: stdout}, stderr, timeout)
			})
		},
	}
	cmd.Flags().Duration("timeout", 0, "Stop after this long (0 runs until interrupted)")
	return cmd
}

func runWatch(cmd *cobra.Command, a *app, out io.Writer, stderr io.Writer, timeout time.Duration) error {
	bl, err := utils.NewBackgroundLoggerWithEnabled(a.cfg.IsBackgroundLoggingEnabled())
	if err != nil {
		utils.Warnf("Background log unavailable: %v", err)
	}
	utils.GetLogger().SetOutput(io.MultiWriter(stderr, bl.Writer()))
	if bl.IsEnabled() {
		utils.Debugf("Logging to %s", bl.GetLogPath())
	}

	sm := shutdown.NewManager()
	sm.HandleSignals()
	sm.RegisterCleanup("background log", func(context.Context) error {
		bl.Close()
		return nil
	})

	defer func() {
		sm.Shutdown()
		_ = sm.Wait(context.Background())
	}()

	ctx := sm.Context()
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	last, err := a.sync.Load(ctx)
	if err != nil {
		return err
	}
	var lastMu sync.Mutex
	_, _ = fmt.Fprintf(out, "Watching %s [%s], %s\n", a.cfg.Remote.URL, a.sync.Mode(), views.FormatSummary(views.Summarize(last)))

	reload := func(reason string) {
		tasks, err := a.sync.Load(ctx)
		if err != nil {
			utils.Warnf("Reload after %s failed: %v", reason, err)
			return
		}
		lastMu.Lock()
		defer lastMu.Unlock()
		if sameTasks(last, tasks) {
			return
		}
		last = tasks
		_, _ = fmt.Fprintf(out, "Tasks changed (%s): %s\n", reason, views.FormatSummary(views.Summarize(tasks)))
	}

	if a.fileCache != nil {
		w, err := watcher.New(watcher.DefaultConfig(a.fileCache.Dir(), func() { reload("cache edited") },
			filepath.Base(a.fileCache.Path(backend.KeyTasks))))
		if err != nil {
			return err
		}
		if err := w.Start(); err != nil {
			return err
		}
		sm.RegisterCleanup("cache watcher", func(context.Context) error {
			w.Stop()
			return nil
		})
	}

	monitor := connectivity.NewMonitor(a.prober, a.sync, a.cfg.GetPollInterval())
	monitor.OnChange(func(online bool) {
		mode := synchronizer.ModeOffline
		if online {
			mode = synchronizer.ModeOnline
		}
		_, _ = fmt.Fprintf(out, "Mode: %s\n", mode)
	})

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		monitor.Run(ctx)
	}()
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(a.cfg.GetPollInterval())
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				reload("poll")
			}
		}
	}()

	<-ctx.Done()
	wg.Wait()
	sm.Shutdown()
	if err := sm.Wait(context.Background()); err != nil {
		return err
	}
	_, _ = fmt.Fprintln(out, "Stopped watching")
	return nil
}

func sameTasks(a, b []backend.Task) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func newTUICmd(cfg *Config) *cobra.Command {
	return &cobra.Command{
		Use:   "tui",
		Short: "Open the interactive task list",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cfg, appOptions{reminders: true}, func(a *app) error {
				// Log lines would corrupt the alt screen.
				utils.GetLogger().SetOutput(io.Discard)
				p := tea.NewProgram(tui.New(a.sync), tea.WithAltScreen(), tea.WithContext(cmd.Context()))
				_, err := p.Run()
				return err
			})
		},
	}
}

func newCredentialsCmd(stdout, stderr io.Writer, cfg *Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "credentials",
		Short: "Manage the task store API token",
		Long: fmt.Sprintf(`Store, show or remove the API token sent to the task store.

Tokens are kept in the system keyring under the store URL. When the keyring
has none, %s is used.`, credentials.EnvToken),
	}
	cmd.PersistentFlags().String("account", "", "Store URL the token belongs to (default: remote.url from the config)")

	handler := func(cmd *cobra.Command) (*credentials.CLIHandler, string, error) {
		account, _ := cmd.Flags().GetString("account")
		if account == "" {
			c, err := config.Load(cfg.ConfigPath)
			if err != nil {
				return nil, "", err
			}
			account = c.Remote.URL
		}
		stdin := cfg.Stdin
		if stdin == nil {
			stdin = cmd.InOrStdin()
		}
		return credentials.NewCLIHandler(newCredentialManager(cfg), stdin, stdout, stderr), account, nil
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "set",
			Short: "Prompt for a token and store it in the system keyring",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				h, account, err := handler(cmd)
				if err != nil {
					return err
				}
				return h.Set(account)
			},
		},
		&cobra.Command{
			Use:   "get",
			Short: "Show where the token comes from",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				h, account, err := handler(cmd)
				if err != nil {
					return err
				}
				return h.Get(account, jsonFlag(cmd))
			},
		},
		&cobra.Command{
			Use:   "delete",
			Short: "Remove the token from the system keyring",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				h, account, err := handler(cmd)
				if err != nil {
					return err
				}
				return h.Delete(account)
			},
		},
	)
	return cmd
}
