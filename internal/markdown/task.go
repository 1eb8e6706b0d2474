// Package markdown reads and writes task lists as markdown checklists, used by
// the export and import commands.
//
// One task per line, for example "- [x] Call the bank !high @2026-03-01T14:00
// #today +remind".
package markdown

import (
	"bufio"
	"io"
	"regexp"
	"strings"

	"todosync/backend"
)

// Item is one parsed checklist line.
type Item struct {
	Task      backend.NewTask
	Completed bool
}

var (
	linePattern     = regexp.MustCompile(`^\s*[-*]\s+\[(.)\]\s+(.*)$`)
	priorityPattern = regexp.MustCompile(`(?i)(?:^|\s)!(low|medium|high)\b`)
	duePattern      = regexp.MustCompile(`(?:^|\s)@(\d{4}-\d{2}-\d{2})(?:T(\d{2}:\d{2}))?\b`)
	categoryPattern = regexp.MustCompile(`(?:^|\s)#([\w-]+)`)
	remindPattern   = regexp.MustCompile(`(?:^|\s)\+remind\b`)
)

// ParseStatusChar reports whether a checkbox character marks a finished task.
func ParseStatusChar(char string) bool {
	return strings.EqualFold(char, "x")
}

// FormatStatusChar renders the checkbox character for a task.
func FormatStatusChar(completed bool) string {
	if completed {
		return "x"
	}
	return " "
}

// ParseTaskText extracts the text and metadata tokens from a checklist entry.
// Only the first category token is kept; the rest stay stripped.
func ParseTaskText(text string) backend.NewTask {
	var task backend.NewTask

	if m := priorityPattern.FindStringSubmatch(text); m != nil {
		task.Priority = strings.ToLower(m[1])
		text = priorityPattern.ReplaceAllString(text, "")
	}
	if m := duePattern.FindStringSubmatch(text); m != nil {
		task.DueDate = m[1]
		task.TimeSlot = m[2]
		text = duePattern.ReplaceAllString(text, "")
	}
	if m := categoryPattern.FindStringSubmatch(text); m != nil {
		task.Category = m[1]
		text = categoryPattern.ReplaceAllString(text, "")
	}
	if remindPattern.MatchString(text) {
		task.ReminderSet = true
		text = remindPattern.ReplaceAllString(text, "")
	}

	task.Text = strings.Join(strings.Fields(text), " ")
	return task
}

// FormatTaskText renders a task as checklist text with its metadata tokens.
func FormatTaskText(t backend.Task) string {
	parts := []string{t.Text}
	if t.Priority != "" {
		parts = append(parts, "!"+t.Priority)
	}
	if t.DueDate != "" {
		due := "@" + t.DueDate
		if t.TimeSlot != "" {
			due += "T" + t.TimeSlot
		}
		parts = append(parts, due)
	}
	if t.Category != "" {
		parts = append(parts, "#"+strings.ReplaceAll(t.Category, " ", "-"))
	}
	if t.ReminderSet {
		parts = append(parts, "+remind")
	}
	return strings.Join(parts, " ")
}

// Write renders tasks as a checklist under an optional heading.
func Write(w io.Writer, title string, tasks []backend.Task) error {
	var sb strings.Builder
	if title != "" {
		sb.WriteString("# ")
		sb.WriteString(title)
		sb.WriteString("\n\n")
	}
	for _, t := range tasks {
		sb.WriteString("- [")
		sb.WriteString(FormatStatusChar(t.Completed))
		sb.WriteString("] ")
		sb.WriteString(FormatTaskText(t))
		sb.WriteString("\n")
	}
	_, err := io.WriteString(w, sb.String())
	return err
}

// Parse reads every checklist line from r. Headings, prose and entries with
// no text left after stripping metadata are skipped.
func Parse(r io.Reader) ([]Item, error) {
	var items []Item
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		m := linePattern.FindStringSubmatch(scanner.Text())
		if m == nil {
			continue
		}
		task := ParseTaskText(m[2])
		if task.Text == "" {
			continue
		}
		items = append(items, Item{Task: task, Completed: ParseStatusChar(m[1])})
	}
	return items, scanner.Err()
}
