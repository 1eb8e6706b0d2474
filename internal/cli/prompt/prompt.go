// Package prompt handles interactive prompts with no-prompt mode support.
// It provides filter-then-pick task selection and an interactive add form
// with field validation.
package prompt

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"todosync/backend"
	"todosync/internal/utils"
	"todosync/internal/views"
)

// Sentinel errors for prompt operations.
var (
	ErrSelectionCancelled = utils.ErrSelectionCancelled
	ErrNoPromptMode       = errors.New("interactive prompts disabled (--no-prompt / -y)")
	ErrNoTasks            = errors.New("no tasks available")
	ErrNoMatches          = errors.New("no tasks match the filter")
)

// TaskSelector asks for filter text, then for a number from the matches.
type TaskSelector struct {
	Tasks    []backend.Task
	Prompt   string
	Reader   io.Reader
	Writer   io.Writer
	NoPrompt bool
}

// Run executes the task selection prompt.
// If NoPrompt is true, returns ErrNoPromptMode.
// If there is exactly one task, auto-selects it.
func (s *TaskSelector) Run() (*backend.Task, error) {
	if s.NoPrompt {
		return nil, ErrNoPromptMode
	}
	if len(s.Tasks) == 0 {
		return nil, ErrNoTasks
	}
	if len(s.Tasks) == 1 {
		return &s.Tasks[0], nil
	}

	writer := s.Writer
	if writer == nil {
		writer = io.Discard
	}
	scanner := bufio.NewScanner(s.Reader)

	_, _ = fmt.Fprintf(writer, "%s\nFilter (or press Enter to show all): ", s.Prompt)
	if !scanner.Scan() {
		return nil, ErrSelectionCancelled
	}
	filtered := views.Search(s.Tasks, strings.TrimSpace(scanner.Text()))

	if len(filtered) == 0 {
		return nil, ErrNoMatches
	}
	if len(filtered) == 1 {
		_, _ = fmt.Fprintf(writer, "Auto-selected: %s\n", filtered[0].Text)
		return &filtered[0], nil
	}

	for i, t := range filtered {
		_, _ = fmt.Fprintf(writer, "  %d) %s\n", i+1, formatTaskLine(t))
	}

	_, _ = fmt.Fprintf(writer, "Select (0 to cancel): ")
	if !scanner.Scan() {
		return nil, ErrSelectionCancelled
	}

	input := strings.TrimSpace(scanner.Text())
	num, err := strconv.Atoi(input)
	if err != nil {
		return nil, fmt.Errorf("invalid selection: %s", input)
	}
	if num == 0 {
		return nil, ErrSelectionCancelled
	}
	if num < 1 || num > len(filtered) {
		return nil, fmt.Errorf("selection out of range: %d", num)
	}
	return &filtered[num-1], nil
}

// formatTaskLine shows text followed by status, priority, due and category.
func formatTaskLine(t backend.Task) string {
	meta := []string{"open"}
	if t.Completed {
		meta[0] = "done"
	}
	if t.Priority != "" {
		meta = append(meta, t.Priority)
	}
	if t.DueDate != "" {
		meta = append(meta, strings.TrimSpace("due: "+t.DueDate+" "+t.TimeSlot))
	}
	if t.Category != "" {
		meta = append(meta, "category: "+t.Category)
	}
	return fmt.Sprintf("%s [%s]", t.Text, strings.Join(meta, ", "))
}

// FilterTasksByAction returns the tasks worth offering for action. Edits
// offer open tasks only; toggle and delete offer everything. showAll
// disables the filtering.
func FilterTasksByAction(tasks []backend.Task, action backend.Action, showAll bool) []backend.Task {
	if showAll || action != backend.ActionEdit {
		return backend.Clone(tasks)
	}
	return views.FilterByStatus(tasks, views.StatusActive)
}

// InteractiveAdder provides sequential field prompts with validation
// for adding a task when no text is provided.
type InteractiveAdder struct {
	Reader   io.Reader
	Writer   io.Writer
	NoPrompt bool
	Now      func() time.Time
}

// Run prompts for text (required), category, priority, due date, time slot
// and, when a due date was given, a reminder.
func (a *InteractiveAdder) Run() (*backend.NewTask, error) {
	if a.NoPrompt {
		return nil, ErrNoPromptMode
	}

	writer := a.Writer
	if writer == nil {
		writer = io.Discard
	}
	now := a.Now
	if now == nil {
		now = time.Now
	}

	scanner := bufio.NewScanner(a.Reader)
	ask := func(label string) (string, bool) {
		_, _ = fmt.Fprint(writer, label)
		if !scanner.Scan() {
			return "", false
		}
		return strings.TrimSpace(scanner.Text()), true
	}
	// askValid re-asks until check accepts the input or it is left empty.
	askValid := func(label string, check func(string) (string, error)) string {
		for {
			input, ok := ask(label)
			if !ok || input == "" {
				return ""
			}
			value, err := check(input)
			if err == nil {
				return value
			}
			var ews *utils.ErrorWithSuggestion
			if errors.As(err, &ews) {
				_, _ = fmt.Fprintf(writer, "%v. %s\n", ews.Err, ews.Suggestion)
			} else {
				_, _ = fmt.Fprintln(writer, err)
			}
		}
	}

	task := &backend.NewTask{}
	for {
		text, ok := ask("Task (required): ")
		if !ok {
			return nil, errors.New("no input for task text")
		}
		if text != "" {
			task.Text = text
			break
		}
		_, _ = fmt.Fprintln(writer, "Task text cannot be empty.")
	}

	task.Category, _ = ask("Category (today, upcoming, optional): ")
	task.Priority = askValid("Priority (low, medium, high, optional): ", utils.ValidatePriority)
	task.DueDate = askValid("Due date (YYYY-MM-DD, today, tomorrow, +Nd, optional): ", func(s string) (string, error) {
		return utils.ParseDueDate(s, now())
	})
	task.TimeSlot = askValid("Time (HH:MM, optional): ", utils.ValidateTimeSlot)
	if task.TimeSlot != "" && task.DueDate == "" {
		task.DueDate = backend.Today(now())
	}

	if task.DueDate != "" {
		answer, _ := ask("Remind me before it is due? (y/N): ")
		switch strings.ToLower(answer) {
		case "y", "yes":
			task.ReminderSet = true
		}
	}
	return task, nil
}
