package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"todosync/backend"
	"todosync/internal/markdown"
	"todosync/internal/utils"
)

func newExportCmd(stdout io.Writer, cfg *Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write all tasks as a markdown checklist or JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			format, _ := cmd.Flags().GetString("format")
			output, _ := cmd.Flags().GetString("output")
			if jsonFlag(cmd) {
				format = "json"
			}
			if format != "markdown" && format != "json" {
				return utils.WrapWithSuggestion(
					fmt.Errorf("%w: unknown format %q", utils.ErrValidation, format),
					"Use --format markdown or --format json",
				)
			}

			return withApp(cfg, appOptions{}, func(a *app) error {
				tasks, err := a.sync.Load(cmd.Context())
				if err != nil {
					return err
				}

				w := stdout
				if output != "" {
					f, err := os.Create(output)
					if err != nil {
						return fmt.Errorf("failed to create %s: %w", output, err)
					}
					defer func() { _ = f.Close() }()
					w = f
				}

				if format == "json" {
					enc := json.NewEncoder(w)
					enc.SetIndent("", "  ")
					if err := enc.Encode(tasks); err != nil {
						return err
					}
				} else if err := markdown.Write(w, "Tasks", tasks); err != nil {
					return err
				}

				if output != "" {
					_, _ = fmt.Fprintf(stdout, "Exported %d task(s) to %s\n", len(tasks), output)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringP("format", "f", "markdown", "Output format (markdown, json)")
	cmd.Flags().StringP("output", "o", "", "Write to this file instead of stdout")
	return cmd
}

func newImportCmd(stdout io.Writer, cfg *Config) *cobra.Command {
	return &cobra.Command{
		Use:   "import <file>",
		Short: "Add every task from a markdown checklist",
		Long: `Add every checklist entry from a markdown file ("-" reads stdin).
Checked entries are added and then marked completed. Metadata tokens are
!priority, @YYYY-MM-DD or @YYYY-MM-DDTHH:MM, #category and +remind.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cfg, appOptions{}, func(a *app) error {
				var r io.Reader
				if args[0] == "-" {
					r = a.stdin()
				} else {
					f, err := os.Open(args[0])
					if err != nil {
						return utils.WrapWithSuggestion(err, "Check the file path")
					}
					defer func() { _ = f.Close() }()
					r = f
				}

				items, err := markdown.Parse(r)
				if err != nil {
					return fmt.Errorf("failed to read checklist: %w", err)
				}
				if err := validateItems(items, time.Now()); err != nil {
					return err
				}

				added := make([]backend.Task, 0, len(items))
				for _, item := range items {
					task, err := a.sync.Add(cmd.Context(), item.Task)
					if err != nil {
						return fmt.Errorf("imported %d of %d task(s): %w", len(added), len(items), err)
					}
					if item.Completed {
						if _, err := a.sync.Toggle(cmd.Context(), backend.ByID(task.ID)); err != nil {
							return fmt.Errorf("imported %d of %d task(s): %w", len(added), len(items), err)
						}
					}
					added = append(added, *task)
				}

				if jsonFlag(cmd) {
					out := make([]taskJSON, len(added))
					for i, t := range added {
						out[i] = toJSON(findByID(a.sync.Tasks(), t.ID, t), position(a, t.ID))
					}
					return writeJSON(stdout, struct {
						Tasks  []taskJSON `json:"tasks"`
						Count  int        `json:"count"`
						Mode   string     `json:"mode"`
						Result string     `json:"result"`
					}{out, len(out), a.sync.Mode().String(), ResultActionCompleted})
				}
				if len(added) == 0 {
					_, _ = fmt.Fprintln(stdout, "No checklist entries found")
					return nil
				}
				_, _ = fmt.Fprintf(stdout, "Imported %d task(s)%s\n", len(added), offlineNote(a))
				return nil
			})
		},
	}
}

// validateItems checks every entry up front so a bad line adds nothing.
func validateItems(items []markdown.Item, now time.Time) error {
	for i := range items {
		t := &items[i].Task
		due, err := utils.ParseDueDate(t.DueDate, now)
		if err != nil {
			return fmt.Errorf("entry %q: %w", t.Text, err)
		}
		t.DueDate = due
		if t.TimeSlot, err = utils.ValidateTimeSlot(t.TimeSlot); err != nil {
			return fmt.Errorf("entry %q: %w", t.Text, err)
		}
		t.Category = strings.TrimSpace(t.Category)
	}
	return nil
}
