package cmd

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"todosync/internal/analytics"
	"todosync/internal/config"
	"todosync/internal/utils"
)

func analyticsDBPath(opts *Config, c *config.Config) string {
	if opts.DataDir != "" {
		return filepath.Join(opts.DataDir, "analytics.db")
	}
	return c.AnalyticsDBPath()
}

// trackCommand records a finished command when analytics are enabled.
// Failures to record are only logged.
func trackCommand(opts *Config, executed *cobra.Command, args []string, start time.Time, runErr error) {
	if executed == nil || executed == executed.Root() {
		return
	}
	if help, _ := executed.Flags().GetBool("help"); help {
		return
	}
	c, err := config.Load(opts.ConfigPath)
	if err != nil || !analytics.IsEnabledFromEnv(c.Analytics.Enabled, opts.Getenv) {
		return
	}

	tracker, err := analytics.NewTracker(analyticsDBPath(opts, c), true)
	if err != nil {
		utils.Debugf("Analytics unavailable: %v", err)
		return
	}
	defer func() { _ = tracker.Close() }()

	command := strings.TrimPrefix(executed.CommandPath(), executed.Root().Name()+" ")
	if err := tracker.Track(command, opts.mode, flagNames(args), start, runErr); err != nil {
		utils.Debugf("Could not record analytics: %v", err)
	}
}

// flagNames returns the flags present in args without their values.
func flagNames(args []string) []string {
	var names []string
	for _, arg := range args {
		if arg == "--" {
			break
		}
		if !strings.HasPrefix(arg, "-") || arg == "-" {
			continue
		}
		name, _, _ := strings.Cut(arg, "=")
		names = append(names, name)
	}
	return names
}

func newStatsCmd(stdout io.Writer, cfg *Config) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show local command statistics",
		Long: fmt.Sprintf(`Show how often each command ran, how often it succeeded and how many runs
happened offline. Statistics are only recorded with analytics.enabled: true
or %s=true, and are kept for analytics.retention_days.`, analytics.EnvEnabled),
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := config.Load(cfg.ConfigPath)
			if err != nil {
				return err
			}
			enabled := analytics.IsEnabledFromEnv(c.Analytics.Enabled, cfg.Getenv)

			tracker, err := analytics.NewTracker(analyticsDBPath(cfg, c), enabled)
			if err != nil {
				return err
			}
			defer func() { _ = tracker.Close() }()

			if deleted, err := tracker.Cleanup(c.GetRetentionDays()); err != nil {
				utils.Warnf("Could not prune old statistics: %v", err)
			} else if deleted > 0 {
				utils.Debugf("Pruned %d event(s) older than %d days", deleted, c.GetRetentionDays())
			}

			stats, err := tracker.Stats()
			if err != nil {
				return err
			}
			if jsonFlag(cmd) {
				return writeJSON(stdout, struct {
					Enabled  bool                     `json:"enabled"`
					Commands []analytics.CommandStats `json:"commands"`
					Result   string                   `json:"result"`
				}{enabled, stats, ResultInfoOnly})
			}

			if len(stats) == 0 {
				if !enabled {
					_, _ = fmt.Fprintf(stdout, "Command statistics are off. Set analytics.enabled: true in %s or %s=true\n",
						configPathFor(cfg), analytics.EnvEnabled)
					return nil
				}
				_, _ = fmt.Fprintln(stdout, "No commands recorded yet")
				return nil
			}

			_, _ = fmt.Fprintf(stdout, "%-18s %5s %8s %8s %9s  %s\n", "COMMAND", "RUNS", "SUCCESS", "OFFLINE", "AVG", "LAST ERROR")
			for _, s := range stats {
				avg := time.Duration(s.AvgDurationMs * float64(time.Millisecond)).Round(time.Millisecond)
				_, _ = fmt.Fprintf(stdout, "%-18s %5d %7d%% %8d %9s  %s\n",
					s.Command, s.Runs, s.SuccessRate(), s.Offline, avg, s.LastError)
			}
			return nil
		},
	}
}
