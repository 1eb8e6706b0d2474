package prompt

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"todosync/backend"
)

func sampleTasks() []backend.Task {
	return []backend.Task{
		{ID: 1, Text: "Buy groceries", Priority: "medium", DueDate: "2026-02-15", TimeSlot: "09:00"},
		{ID: 2, Text: "Fix bug in parser", Priority: "high", Category: "today"},
		{ID: 3, Text: "Write documentation"},
		{ID: 4, Text: "Buy milk", Priority: "low"},
		{ID: 5, Text: "Deploy to production", Completed: true},
	}
}

// =============================================================================
// TaskSelector
// =============================================================================

func TestTaskSelectorFiltersThenSelects(t *testing.T) {
	t.Run("filters by typed input", func(t *testing.T) {
		selector := &TaskSelector{
			Tasks:  sampleTasks(),
			Prompt: "Select task:",
			Reader: strings.NewReader("buy\n2\n"),
		}

		selected, err := selector.Run()
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if selected.ID != 4 {
			t.Errorf("expected task 4 (Buy milk), got %d (%s)", selected.ID, selected.Text)
		}
	})

	t.Run("case insensitive filtering", func(t *testing.T) {
		selector := &TaskSelector{
			Tasks:  sampleTasks(),
			Reader: strings.NewReader("BUY\n1\n"),
		}

		selected, err := selector.Run()
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if selected.ID != 1 {
			t.Errorf("expected task 1, got %d", selected.ID)
		}
	})

	t.Run("empty filter shows all", func(t *testing.T) {
		var out bytes.Buffer
		selector := &TaskSelector{
			Tasks:  sampleTasks(),
			Reader: strings.NewReader("\n5\n"),
			Writer: &out,
		}

		selected, err := selector.Run()
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if selected.ID != 5 {
			t.Errorf("expected task 5, got %d", selected.ID)
		}
		if !strings.Contains(out.String(), "5) Deploy to production [done]") {
			t.Errorf("expected numbered listing, got:\n%s", out.String())
		}
	})

	t.Run("single match auto-selects", func(t *testing.T) {
		var out bytes.Buffer
		selector := &TaskSelector{
			Tasks:  sampleTasks(),
			Reader: strings.NewReader("parser\n"),
			Writer: &out,
		}

		selected, err := selector.Run()
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if selected.ID != 2 {
			t.Errorf("expected task 2, got %d", selected.ID)
		}
		if !strings.Contains(out.String(), "Auto-selected: Fix bug in parser") {
			t.Errorf("expected auto-select message, got:\n%s", out.String())
		}
	})
}

func TestTaskSelectorEdgeCases(t *testing.T) {
	tests := []struct {
		name    string
		tasks   []backend.Task
		input   string
		wantErr error
		errText string
	}{
		{name: "no tasks", tasks: nil, input: "", wantErr: ErrNoTasks},
		{name: "no matches", tasks: sampleTasks(), input: "zzz\n", wantErr: ErrNoMatches},
		{name: "zero cancels", tasks: sampleTasks(), input: "\n0\n", wantErr: ErrSelectionCancelled},
		{name: "input ends at filter", tasks: sampleTasks(), input: "", wantErr: ErrSelectionCancelled},
		{name: "input ends at selection", tasks: sampleTasks(), input: "buy\n", wantErr: ErrSelectionCancelled},
		{name: "not a number", tasks: sampleTasks(), input: "\nabc\n", errText: "invalid selection"},
		{name: "out of range", tasks: sampleTasks(), input: "\n9\n", errText: "out of range"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			selector := &TaskSelector{Tasks: tt.tasks, Reader: strings.NewReader(tt.input)}
			_, err := selector.Run()
			if err == nil {
				t.Fatal("expected an error")
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("expected %v, got %v", tt.wantErr, err)
			}
			if tt.errText != "" && !strings.Contains(err.Error(), tt.errText) {
				t.Errorf("expected error containing %q, got %v", tt.errText, err)
			}
		})
	}
}

func TestTaskSelectorNoPromptMode(t *testing.T) {
	selector := &TaskSelector{Tasks: sampleTasks(), NoPrompt: true}
	if _, err := selector.Run(); !errors.Is(err, ErrNoPromptMode) {
		t.Fatalf("expected ErrNoPromptMode, got %v", err)
	}
}

func TestTaskSelectorSingleTaskSkipsPrompt(t *testing.T) {
	tasks := sampleTasks()[:1]
	selector := &TaskSelector{Tasks: tasks, Reader: strings.NewReader("")}
	selected, err := selector.Run()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if selected.ID != 1 {
		t.Errorf("expected task 1, got %d", selected.ID)
	}
}

func TestFormatTaskLine(t *testing.T) {
	tests := []struct {
		task backend.Task
		want string
	}{
		{backend.Task{Text: "Plain"}, "Plain [open]"},
		{backend.Task{Text: "Done", Completed: true}, "Done [done]"},
		{
			backend.Task{Text: "Call", Priority: "high", DueDate: "2026-03-01", TimeSlot: "14:00", Category: "upcoming"},
			"Call [open, high, due: 2026-03-01 14:00, category: upcoming]",
		},
		{backend.Task{Text: "Pay", DueDate: "2026-03-01"}, "Pay [open, due: 2026-03-01]"},
	}

	for _, tt := range tests {
		if got := formatTaskLine(tt.task); got != tt.want {
			t.Errorf("formatTaskLine(%q) = %q, want %q", tt.task.Text, got, tt.want)
		}
	}
}

// =============================================================================
// FilterTasksByAction
// =============================================================================

func TestFilterTasksByAction(t *testing.T) {
	tasks := sampleTasks()

	if got := FilterTasksByAction(tasks, backend.ActionEdit, false); len(got) != 4 {
		t.Errorf("edit should offer 4 open tasks, got %d", len(got))
	}
	if got := FilterTasksByAction(tasks, backend.ActionToggle, false); len(got) != 5 {
		t.Errorf("toggle should offer all 5 tasks, got %d", len(got))
	}
	if got := FilterTasksByAction(tasks, backend.ActionDelete, false); len(got) != 5 {
		t.Errorf("delete should offer all 5 tasks, got %d", len(got))
	}
	if got := FilterTasksByAction(tasks, backend.ActionEdit, true); len(got) != 5 {
		t.Errorf("showAll should offer all 5 tasks, got %d", len(got))
	}

	got := FilterTasksByAction(tasks, backend.ActionToggle, false)
	got[0].Text = "changed"
	if tasks[0].Text == "changed" {
		t.Error("filtered tasks should not alias the input")
	}
}

// =============================================================================
// InteractiveAdder
// =============================================================================

var fixedNow = func() time.Time { return time.Date(2026, 3, 10, 8, 0, 0, 0, time.Local) }

func TestInteractiveAdderAllFields(t *testing.T) {
	adder := &InteractiveAdder{
		Reader: strings.NewReader("Call the bank\ntoday\nHIGH\ntomorrow\n14:30\ny\n"),
		Now:    fixedNow,
	}

	task, err := adder.Run()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := backend.NewTask{
		Text:        "Call the bank",
		Category:    "today",
		Priority:    "high",
		DueDate:     "2026-03-11",
		TimeSlot:    "14:30",
		ReminderSet: true,
	}
	if *task != want {
		t.Errorf("got %+v, want %+v", *task, want)
	}
}

func TestInteractiveAdderTextOnly(t *testing.T) {
	var out bytes.Buffer
	adder := &InteractiveAdder{
		Reader: strings.NewReader("Water plants\n\n\n\n\n"),
		Writer: &out,
		Now:    fixedNow,
	}

	task, err := adder.Run()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if *task != (backend.NewTask{Text: "Water plants"}) {
		t.Errorf("expected text only, got %+v", *task)
	}
	if strings.Contains(out.String(), "Remind me") {
		t.Error("reminder question should be skipped without a due date")
	}
}

func TestInteractiveAdderRepromptsInvalidInput(t *testing.T) {
	var out bytes.Buffer
	adder := &InteractiveAdder{
		// blank text, bad priority, bad date, bad time, then valid answers
		Reader: strings.NewReader("\nFile taxes\n\nurgent\nlow\n2026-13-40\n2026-04-15\n25:00\n\nn\n"),
		Writer: &out,
		Now:    fixedNow,
	}

	task, err := adder.Run()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if task.Text != "File taxes" || task.Priority != "low" || task.DueDate != "2026-04-15" {
		t.Errorf("unexpected task %+v", *task)
	}
	if task.TimeSlot != "" || task.ReminderSet {
		t.Errorf("expected no time slot or reminder, got %+v", *task)
	}

	output := out.String()
	for _, want := range []string{"Task text cannot be empty.", "Priority must be one of", "Use date format", "Use 24-hour format"} {
		if !strings.Contains(output, want) {
			t.Errorf("expected output to contain %q, got:\n%s", want, output)
		}
	}
}

func TestInteractiveAdderTimeSlotDefaultsDueDateToToday(t *testing.T) {
	adder := &InteractiveAdder{
		Reader: strings.NewReader("Stand-up\n\n\n\n09:30\n\n"),
		Now:    fixedNow,
	}

	task, err := adder.Run()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if task.DueDate != "2026-03-10" || task.TimeSlot != "09:30" {
		t.Errorf("expected today at 09:30, got %+v", *task)
	}
}

func TestInteractiveAdderNoInput(t *testing.T) {
	adder := &InteractiveAdder{Reader: strings.NewReader("")}
	if _, err := adder.Run(); err == nil {
		t.Fatal("expected an error when input ends before the task text")
	}
}

func TestInteractiveAdderNoPromptMode(t *testing.T) {
	adder := &InteractiveAdder{NoPrompt: true}
	if _, err := adder.Run(); !errors.Is(err, ErrNoPromptMode) {
		t.Fatalf("expected ErrNoPromptMode, got %v", err)
	}
}
