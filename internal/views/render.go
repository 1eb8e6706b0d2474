package views

import (
	"fmt"
	"io"
	"strings"

	"todosync/backend"
)

// RenderOptions controls the plain-text listing.
type RenderOptions struct {
	ShowIDs bool
	// Positions maps each rendered task to its index in the full collection,
	// so numbers stay usable as refs after filtering. Nil numbers 0..n-1.
	Positions map[int64]int
}

// Render writes one line per task.
func Render(w io.Writer, tasks []backend.Task, opts RenderOptions) {
	for i, t := range tasks {
		pos := i
		if p, ok := opts.Positions[t.ID]; ok {
			pos = p
		}
		_, _ = fmt.Fprintf(w, "%3d. %s\n", pos, formatLine(t, opts.ShowIDs))
	}
}

// RenderGroups writes each group under a heading.
func RenderGroups(w io.Writer, groups []Group, opts RenderOptions) {
	for i, g := range groups {
		if i > 0 {
			_, _ = fmt.Fprintln(w)
		}
		_, _ = fmt.Fprintf(w, "%s (%d)\n", strings.ToUpper(g.Name), len(g.Tasks))
		Render(w, g.Tasks, opts)
	}
}

// Positions indexes tasks by id for RenderOptions.
func Positions(tasks []backend.Task) map[int64]int {
	m := make(map[int64]int, len(tasks))
	for i, t := range tasks {
		m[t.ID] = i
	}
	return m
}

// formatLine renders status, text and the optional fields of a task.
func formatLine(t backend.Task, showID bool) string {
	parts := []string{formatStatus(t.Completed), t.Text}
	if t.Category != "" {
		parts = append(parts, fmt.Sprintf("{%s}", t.Category))
	}
	if t.Priority != "" {
		parts = append(parts, fmt.Sprintf("[%s]", t.Priority))
	}
	if due := formatDue(t); due != "" {
		parts = append(parts, "due "+due)
	}
	if t.ReminderSet {
		parts = append(parts, "(reminder)")
	}
	if showID {
		parts = append(parts, fmt.Sprintf("#%d", t.ID))
	}
	return strings.Join(parts, " ")
}

func formatStatus(completed bool) string {
	if completed {
		return "[DONE]"
	}
	return "[TODO]"
}

func formatDue(t backend.Task) string {
	return strings.TrimSpace(t.DueDate + " " + t.TimeSlot)
}

// FormatSummary renders a summary the way the progress bar labels it.
func FormatSummary(s Summary) string {
	return fmt.Sprintf("%d/%d completed (%d%%)", s.Completed, s.Total, s.Percent)
}
