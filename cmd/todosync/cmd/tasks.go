package cmd

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"todosync/backend"
	"todosync/internal/cli/prompt"
	"todosync/internal/utils"
	"todosync/internal/views"
)

func newListCmd(stdout io.Writer, cfg *Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List tasks",
		Long:    "List tasks in order. Numbers are positions in the full list and stay valid as --index refs after filtering.",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			statusFlag, _ := cmd.Flags().GetString("status")
			search, _ := cmd.Flags().GetString("search")
			group, _ := cmd.Flags().GetBool("group")
			showIDs, _ := cmd.Flags().GetBool("ids")

			status, err := views.ParseStatus(statusFlag)
			if err != nil {
				return err
			}

			return withApp(cfg, appOptions{}, func(a *app) error {
				all, err := a.sync.Load(cmd.Context())
				if err != nil {
					return err
				}
				tasks := views.Apply(all, views.Query{Status: status, Search: search})
				positions := views.Positions(all)
				summary := views.Summarize(all)

				if jsonFlag(cmd) {
					return writeJSON(stdout, struct {
						Tasks   []taskJSON    `json:"tasks"`
						Count   int           `json:"count"`
						Mode    string        `json:"mode"`
						Summary views.Summary `json:"summary"`
						Result  string        `json:"result"`
					}{tasksToJSON(tasks, positions), len(tasks), a.sync.Mode().String(), summary, ResultInfoOnly})
				}

				if len(tasks) == 0 {
					if len(all) == 0 {
						_, _ = fmt.Fprintln(stdout, "No tasks yet. Add one with 'todosync add'")
					} else {
						_, _ = fmt.Fprintln(stdout, "No tasks match")
					}
					return nil
				}

				opts := views.RenderOptions{ShowIDs: showIDs, Positions: positions}
				if group {
					views.RenderGroups(stdout, views.GroupByCategory(tasks), opts)
				} else {
					views.Render(stdout, tasks, opts)
				}
				_, _ = fmt.Fprintf(stdout, "\n%s [%s]\n", views.FormatSummary(summary), a.sync.Mode())
				return nil
			})
		},
	}
	cmd.Flags().StringP("status", "s", string(views.StatusAll), "Filter by status (all, active, completed)")
	cmd.Flags().StringP("search", "q", "", "Only show tasks whose text contains this (case-insensitive)")
	cmd.Flags().BoolP("group", "g", false, "Group tasks into today, upcoming, completed, priority and other")
	cmd.Flags().Bool("ids", false, "Show task ids")
	return cmd
}

func newAddCmd(stdout io.Writer, cfg *Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "add [text]...",
		Short: "Add a task",
		Long:  "Add a task. Without text, each field is asked for in turn.",
		RunE: func(cmd *cobra.Command, args []string) error {
			var input backend.NewTask
			if len(args) > 0 || cfg.NoPrompt || jsonFlag(cmd) {
				var err error
				if input, err = newTaskFromFlags(cmd, strings.Join(args, " ")); err != nil {
					return err
				}
			}

			return withApp(cfg, appOptions{}, func(a *app) error {
				if input.Text == "" {
					adder := &prompt.InteractiveAdder{Reader: a.stdin(), Writer: stdout}
					fields, err := adder.Run()
					if err != nil {
						return err
					}
					input = *fields
				}
				task, err := a.sync.Add(cmd.Context(), input)
				if err != nil {
					return err
				}
				if jsonFlag(cmd) {
					return writeJSON(stdout, struct {
						Task   taskJSON `json:"task"`
						Mode   string   `json:"mode"`
						Result string   `json:"result"`
					}{toJSON(*task, position(a, task.ID)), a.sync.Mode().String(), ResultActionCompleted})
				}
				_, _ = fmt.Fprintf(stdout, "Task added: %s (id %d)%s\n", quote(task.Text), task.ID, offlineNote(a))
				return nil
			})
		},
	}
	cmd.Flags().StringP("category", "c", "", "Category (today, upcoming or any label)")
	cmd.Flags().StringP("priority", "p", "", "Priority (low, medium, high)")
	cmd.Flags().String("due", "", "Due date (YYYY-MM-DD, today, tomorrow, +3d, +1w)")
	cmd.Flags().String("time", "", "Due time slot (HH:MM)")
	cmd.Flags().Bool("remind", false, "Send a reminder shortly before the due time")
	return cmd
}

// newTaskFromFlags validates add input the same way the store would reject it.
func newTaskFromFlags(cmd *cobra.Command, text string) (backend.NewTask, error) {
	text, err := utils.NormalizeText(text)
	if err != nil {
		return backend.NewTask{}, err
	}
	category, _ := cmd.Flags().GetString("category")
	priorityFlag, _ := cmd.Flags().GetString("priority")
	dueFlag, _ := cmd.Flags().GetString("due")
	timeFlag, _ := cmd.Flags().GetString("time")
	remind, _ := cmd.Flags().GetBool("remind")

	priority, err := utils.ValidatePriority(priorityFlag)
	if err != nil {
		return backend.NewTask{}, err
	}
	due, err := utils.ParseDueDate(dueFlag, time.Now())
	if err != nil {
		return backend.NewTask{}, err
	}
	slot, err := utils.ValidateTimeSlot(timeFlag)
	if err != nil {
		return backend.NewTask{}, err
	}
	if slot != "" && due == "" {
		due = backend.Today(time.Now())
	}
	if remind && due == "" {
		return backend.NewTask{}, utils.WrapWithSuggestion(
			fmt.Errorf("%w: --remind needs a due date", utils.ErrValidation),
			"Add --due and optionally --time",
		)
	}

	return backend.NewTask{
		Text:        text,
		Category:    strings.TrimSpace(category),
		Priority:    priority,
		DueDate:     due,
		TimeSlot:    slot,
		ReminderSet: remind,
	}, nil
}

func newToggleCmd(stdout io.Writer, cfg *Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "toggle [ref]",
		Aliases: []string{"done"},
		Short:   "Mark a task completed, or reopen it",
		Long: `Toggle a task's completed flag. [ref] is a task id, a position with --index,
or text matching the task. Without a ref the task is picked interactively.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cfg, appOptions{}, func(a *app) error {
				ref, target, err := refOrSelect(cmd, a, args, backend.ActionToggle, stdout)
				if errors.Is(err, utils.ErrNotFound) {
					return noMatch(cmd, stdout, a, err)
				}
				if err != nil {
					return err
				}
				ok, err := a.sync.Toggle(cmd.Context(), ref)
				if err != nil {
					return err
				}
				if !ok {
					return noMatch(cmd, stdout, a, utils.ErrTaskNotFound(ref.String()))
				}

				updated := findByID(a.sync.Tasks(), target.ID, target)
				if jsonFlag(cmd) {
					return actionJSON(stdout, a, updated)
				}
				verb := "reopened"
				if updated.Completed {
					verb = "completed"
				}
				_, _ = fmt.Fprintf(stdout, "Task %s: %s%s\n", verb, quote(updated.Text), offlineNote(a))
				return nil
			})
		},
	}
	cmd.Flags().BoolP("index", "i", false, "Treat <ref> as a zero-based position")
	return cmd
}

func newDeleteCmd(stdout io.Writer, cfg *Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "delete [ref]",
		Aliases: []string{"rm"},
		Short:   "Delete a task",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cfg, appOptions{}, func(a *app) error {
				ref, target, err := refOrSelect(cmd, a, args, backend.ActionDelete, stdout)
				if errors.Is(err, utils.ErrNotFound) {
					return noMatch(cmd, stdout, a, err)
				}
				if err != nil {
					return err
				}
				if !cfg.NoPrompt && !jsonFlag(cmd) {
					question := fmt.Sprintf("Delete %s?", quote(target.Text))
					if !utils.PromptYesNoWithReader(question, a.stdin(), stdout) {
						_, _ = fmt.Fprintln(stdout, "Cancelled")
						return nil
					}
				}

				ok, err := a.sync.Delete(cmd.Context(), ref)
				if err != nil {
					return err
				}
				if !ok {
					return noMatch(cmd, stdout, a, utils.ErrTaskNotFound(ref.String()))
				}
				if jsonFlag(cmd) {
					return actionJSON(stdout, a, target)
				}
				_, _ = fmt.Fprintf(stdout, "Task deleted: %s%s\n", quote(target.Text), offlineNote(a))
				return nil
			})
		},
	}
	cmd.Flags().BoolP("index", "i", false, "Treat <ref> as a zero-based position")
	return cmd
}

func newEditCmd(stdout io.Writer, cfg *Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "edit [ref] [new text]...",
		Short: "Change a task's text or details",
		Long: `Change a task. New text replaces the old one, and --category, --priority,
--due, --time and --remind change those fields. Fields not given are kept;
an empty value such as --due "" clears one.

Without a ref an open task is picked interactively, and with neither new
text nor field flags the new text is asked for.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			update, err := updateFromFlags(cmd)
			if err != nil {
				return err
			}
			if len(args) > 1 || (update.IsEmpty() && (cfg.NoPrompt || jsonFlag(cmd))) {
				text := ""
				if len(args) > 1 {
					text = strings.Join(args[1:], " ")
				}
				if text, err = utils.NormalizeText(text); err != nil {
					return err
				}
				update.Text = &text
			}

			return withApp(cfg, appOptions{}, func(a *app) error {
				ref, target, err := refOrSelect(cmd, a, args[:min(len(args), 1)], backend.ActionEdit, stdout)
				if errors.Is(err, utils.ErrNotFound) {
					return noMatch(cmd, stdout, a, err)
				}
				if err != nil {
					return err
				}
				if update.IsEmpty() {
					text, err := askText(a, stdout, fmt.Sprintf("New text for %s: ", quote(target.Text)))
					if err != nil {
						return err
					}
					update.Text = &text
				}
				if err := completeUpdate(&update, target); err != nil {
					return err
				}

				ok, err := a.sync.EditFields(cmd.Context(), ref, update)
				if err != nil {
					return err
				}
				if !ok {
					return noMatch(cmd, stdout, a, utils.ErrTaskNotFound(ref.String()))
				}

				updated := findByID(a.sync.Tasks(), target.ID, target)
				if jsonFlag(cmd) {
					return actionJSON(stdout, a, updated)
				}
				if updated.Text != target.Text {
					_, _ = fmt.Fprintf(stdout, "Task updated: %s -> %s%s\n", quote(target.Text), quote(updated.Text), offlineNote(a))
				} else {
					_, _ = fmt.Fprintf(stdout, "Task updated: %s%s\n", quote(updated.Text), offlineNote(a))
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolP("index", "i", false, "Treat <ref> as a zero-based position")
	cmd.Flags().StringP("category", "c", "", "New category (empty clears it)")
	cmd.Flags().StringP("priority", "p", "", "New priority: low, medium, high (empty clears it)")
	cmd.Flags().String("due", "", "New due date: YYYY-MM-DD, today, tomorrow, +3d (empty clears it)")
	cmd.Flags().String("time", "", "New due time slot HH:MM (empty clears it)")
	cmd.Flags().Bool("remind", false, "Turn the reminder on, or off with --remind=false")
	return cmd
}

// updateFromFlags collects the field flags that were given on the command line.
func updateFromFlags(cmd *cobra.Command) (backend.TaskUpdate, error) {
	var update backend.TaskUpdate
	flags := cmd.Flags()

	if flags.Changed("category") {
		v, _ := flags.GetString("category")
		v = strings.TrimSpace(v)
		update.Category = &v
	}
	if flags.Changed("priority") {
		v, _ := flags.GetString("priority")
		p, err := utils.ValidatePriority(v)
		if err != nil {
			return update, err
		}
		update.Priority = &p
	}
	if flags.Changed("due") {
		v, _ := flags.GetString("due")
		due, err := utils.ParseDueDate(v, time.Now())
		if err != nil {
			return update, err
		}
		update.DueDate = &due
	}
	if flags.Changed("time") {
		v, _ := flags.GetString("time")
		slot, err := utils.ValidateTimeSlot(v)
		if err != nil {
			return update, err
		}
		update.TimeSlot = &slot
	}
	if flags.Changed("remind") {
		v, _ := flags.GetBool("remind")
		update.ReminderSet = &v
	}
	return update, nil
}

// completeUpdate applies the add rules to the edited task: a time slot without
// a date means today, and a reminder needs a due date.
func completeUpdate(update *backend.TaskUpdate, target backend.Task) error {
	merged := update.Apply(target)
	if merged.TimeSlot != "" && merged.DueDate == "" {
		today := backend.Today(time.Now())
		update.DueDate = &today
		merged.DueDate = today
	}
	if merged.ReminderSet && merged.DueDate == "" {
		return utils.WrapWithSuggestion(
			fmt.Errorf("%w: a reminder needs a due date", utils.ErrValidation),
			"Add --due, or turn the reminder off with --remind=false",
		)
	}
	return nil
}

// noMatch reports a ref that resolves to no task. Nothing changed, so this is
// informational and not a failure.
func noMatch(cmd *cobra.Command, stdout io.Writer, a *app, err error) error {
	msg := err.Error()
	var withSuggestion *utils.ErrorWithSuggestion
	if errors.As(err, &withSuggestion) {
		msg = withSuggestion.Err.Error()
	}
	if jsonFlag(cmd) {
		return writeJSON(stdout, struct {
			Message string `json:"message"`
			Mode    string `json:"mode"`
			Result  string `json:"result"`
		}{msg, a.sync.Mode().String(), ResultInfoOnly})
	}
	_, _ = fmt.Fprintf(stdout, "Nothing changed: %s\n", msg)
	return nil
}

func newReorderCmd(stdout io.Writer, cfg *Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reorder <ref>...",
		Short: "Change the order of tasks",
		Long: `Move the given tasks to the front of the list in the given order.
Unlisted tasks keep their relative order after them.

With --to, a single task is moved to that position instead.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			to, _ := cmd.Flags().GetInt("to")
			if cmd.Flags().Changed("to") && len(args) != 1 {
				return fmt.Errorf("%w: --to moves exactly one task", utils.ErrValidation)
			}

			return withApp(cfg, appOptions{}, func(a *app) error {
				tasks, err := a.sync.Load(cmd.Context())
				if err != nil {
					return err
				}

				ids := make([]int64, 0, len(args))
				var missing []string
				for _, arg := range args {
					ref, err := parseRef(cmd, arg)
					if err != nil && !errors.Is(err, utils.ErrNotFound) {
						return err
					}
					idx := ref.Resolve(tasks)
					if err != nil || idx < 0 {
						missing = append(missing, arg)
						continue
					}
					ids = append(ids, tasks[idx].ID)
				}
				if len(ids) == 0 {
					return noMatch(cmd, stdout, a, utils.ErrTaskNotFound(strings.Join(missing, ", ")))
				}
				if len(missing) > 0 {
					utils.Warnf("Ignoring refs that match no task: %s", strings.Join(missing, ", "))
				}
				if cmd.Flags().Changed("to") {
					ids = moveTo(backend.IDs(tasks), ids[0], to)
				}

				changed, err := a.sync.Reorder(cmd.Context(), ids)
				if err != nil {
					return err
				}
				if jsonFlag(cmd) {
					result := ResultActionCompleted
					if !changed {
						result = ResultInfoOnly
					}
					return writeJSON(stdout, struct {
						Changed bool    `json:"changed"`
						Order   []int64 `json:"order"`
						Mode    string  `json:"mode"`
						Result  string  `json:"result"`
					}{changed, backend.IDs(a.sync.Tasks()), a.sync.Mode().String(), result})
				}
				if !changed {
					_, _ = fmt.Fprintln(stdout, "Order unchanged")
					return nil
				}
				_, _ = fmt.Fprintf(stdout, "Tasks reordered%s\n", offlineNote(a))
				return nil
			})
		},
	}
	cmd.Flags().BoolP("index", "i", false, "Treat refs as zero-based positions")
	cmd.Flags().Int("to", 0, "Move a single task to this zero-based position")
	return cmd
}

// moveTo returns order with id moved to position to, clamped to the list.
func moveTo(order []int64, id int64, to int) []int64 {
	out := make([]int64, 0, len(order))
	for _, o := range order {
		if o != id {
			out = append(out, o)
		}
	}
	if to < 0 {
		to = 0
	}
	if to > len(out) {
		to = len(out)
	}
	out = append(out, 0)
	copy(out[to+1:], out[to:])
	out[to] = id
	return out
}

// parseRef reads a numeric ref as an id, or as a position with --index.
func parseRef(cmd *cobra.Command, arg string) (backend.Ref, error) {
	byIndex, _ := cmd.Flags().GetBool("index")
	if byIndex {
		n, err := strconv.Atoi(strings.TrimSpace(arg))
		if err != nil {
			return backend.Ref{}, fmt.Errorf("%w: position must be a number: %s", utils.ErrValidation, arg)
		}
		return backend.ByIndex(n), nil
	}
	id, err := strconv.ParseInt(strings.TrimSpace(arg), 10, 64)
	if err != nil {
		return backend.Ref{}, utils.ErrTaskNotFound(arg)
	}
	return backend.ByID(id), nil
}

// resolveRef turns user input into a ref against the loaded list. Non-numeric
// input is matched against task text: an exact match wins, a single partial
// match is used, several partial matches prompt for a choice.
func resolveRef(cmd *cobra.Command, a *app, arg string, stdout io.Writer) (backend.Ref, backend.Task, error) {
	tasks, err := a.sync.Load(cmd.Context())
	if err != nil {
		return backend.Ref{}, backend.Task{}, err
	}

	byIndex, _ := cmd.Flags().GetBool("index")
	if _, numErr := strconv.ParseInt(strings.TrimSpace(arg), 10, 64); byIndex || numErr == nil {
		ref, err := parseRef(cmd, arg)
		if err != nil {
			return backend.Ref{}, backend.Task{}, err
		}
		idx := ref.Resolve(tasks)
		if idx < 0 {
			return backend.Ref{}, backend.Task{}, utils.ErrTaskNotFound(ref.String())
		}
		return ref, tasks[idx], nil
	}

	matches := matchText(tasks, arg)
	switch len(matches) {
	case 0:
		return backend.Ref{}, backend.Task{}, utils.ErrTaskNotFound(quote(arg))
	case 1:
		return backend.ByID(matches[0].ID), matches[0], nil
	}

	if a.opts.NoPrompt || jsonFlag(cmd) {
		return backend.Ref{}, backend.Task{}, utils.WrapWithSuggestion(
			fmt.Errorf("%w: %d tasks match %s", utils.ErrValidation, len(matches), quote(arg)),
			"Use the task id from 'todosync list --ids'",
		)
	}
	idx, err := utils.PromptSelectionWithReader(matches, "Select task", a.stdin(), stdout, func(i int, t backend.Task) {
		_, _ = fmt.Fprintf(stdout, "  %d: %s (id %d)\n", i+1, t.Text, t.ID)
	})
	if err != nil {
		if errors.Is(err, utils.ErrSelectionCancelled) {
			return backend.Ref{}, backend.Task{}, fmt.Errorf("cancelled")
		}
		return backend.Ref{}, backend.Task{}, err
	}
	return backend.ByID(matches[idx].ID), matches[idx], nil
}

// refOrSelect resolves args as a ref, or lets the user pick a task when args
// is empty.
func refOrSelect(cmd *cobra.Command, a *app, args []string, action backend.Action, stdout io.Writer) (backend.Ref, backend.Task, error) {
	if len(args) > 0 {
		return resolveRef(cmd, a, strings.Join(args, " "), stdout)
	}

	tasks, err := a.sync.Load(cmd.Context())
	if err != nil {
		return backend.Ref{}, backend.Task{}, err
	}
	selector := &prompt.TaskSelector{
		Tasks:    prompt.FilterTasksByAction(tasks, action, false),
		Prompt:   fmt.Sprintf("Select a task to %s:", action),
		Reader:   a.stdin(),
		Writer:   stdout,
		NoPrompt: a.opts.NoPrompt || jsonFlag(cmd),
	}
	t, err := selector.Run()
	switch {
	case errors.Is(err, prompt.ErrNoPromptMode):
		return backend.Ref{}, backend.Task{}, utils.WrapWithSuggestion(
			fmt.Errorf("%w: no task given", utils.ErrValidation),
			fmt.Sprintf("Pass a task id or text, e.g. 'todosync %s 3'", cmd.Name()),
		)
	case errors.Is(err, prompt.ErrNoTasks), errors.Is(err, prompt.ErrNoMatches):
		return backend.Ref{}, backend.Task{}, utils.ErrTaskNotFound(err.Error())
	case errors.Is(err, prompt.ErrSelectionCancelled):
		return backend.Ref{}, backend.Task{}, fmt.Errorf("cancelled")
	case err != nil:
		return backend.Ref{}, backend.Task{}, err
	}
	return backend.ByID(t.ID), *t, nil
}

// askText reads one line of task text, re-asking while it is blank.
func askText(a *app, stdout io.Writer, label string) (string, error) {
	scanner := bufio.NewScanner(a.stdin())
	for {
		_, _ = fmt.Fprint(stdout, label)
		if !scanner.Scan() {
			return "", utils.ErrEmptyText()
		}
		if text, err := utils.NormalizeText(scanner.Text()); err == nil {
			return text, nil
		}
		_, _ = fmt.Fprintln(stdout, "Task text cannot be empty.")
	}
}

func matchText(tasks []backend.Task, query string) []backend.Task {
	q := strings.ToLower(strings.TrimSpace(query))
	for _, t := range tasks {
		if strings.ToLower(t.Text) == q {
			return []backend.Task{t}
		}
	}
	return views.Search(tasks, query)
}

func findByID(tasks []backend.Task, id int64, fallback backend.Task) backend.Task {
	for _, t := range tasks {
		if t.ID == id {
			return t
		}
	}
	return fallback
}

func position(a *app, id int64) int {
	for i, t := range a.sync.Tasks() {
		if t.ID == id {
			return i
		}
	}
	return -1
}

func actionJSON(stdout io.Writer, a *app, t backend.Task) error {
	return writeJSON(stdout, struct {
		Task   taskJSON `json:"task"`
		Mode   string   `json:"mode"`
		Result string   `json:"result"`
	}{toJSON(t, position(a, t.ID)), a.sync.Mode().String(), ResultActionCompleted})
}

func newSummaryCmd(stdout io.Writer, cfg *Config) *cobra.Command {
	return &cobra.Command{
		Use:   "summary",
		Short: "Show how many tasks are completed",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cfg, appOptions{}, func(a *app) error {
				tasks, err := a.sync.Load(cmd.Context())
				if err != nil {
					return err
				}
				s := views.Summarize(tasks)
				if jsonFlag(cmd) {
					return writeJSON(stdout, struct {
						views.Summary
						Result string `json:"result"`
					}{s, ResultInfoOnly})
				}
				_, _ = fmt.Fprintln(stdout, views.FormatSummary(s))
				return nil
			})
		},
	}
}
