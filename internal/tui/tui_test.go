package tui_test

import (
	"bytes"
	"context"
	"io"
	"sync"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/x/exp/teatest"

	"todosync/backend"
	"todosync/internal/synchronizer"
	"todosync/internal/tui"
	"todosync/internal/utils"
)

// sendKeyAndWait sends a key message and waits briefly for processing.
func sendKeyAndWait(tm *teatest.TestModel, key tea.KeyMsg) {
	tm.Send(key)
	time.Sleep(20 * time.Millisecond)
}

// sendRunesAndWait sends a rune key message and waits briefly for processing.
func sendRunesAndWait(tm *teatest.TestModel, runes []rune) {
	sendKeyAndWait(tm, tea.KeyMsg{Type: tea.KeyRunes, Runes: runes})
}

func typeText(tm *teatest.TestModel, text string) {
	for _, r := range text {
		tm.Send(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{r}})
	}
}

// fakeBackend implements tui.Backend over an in-memory list.
type fakeBackend struct {
	mu     sync.Mutex
	tasks  []backend.Task
	mode   synchronizer.Mode
	nextID int64
	orders [][]int64
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		mode:   synchronizer.ModeOnline,
		nextID: 4,
		tasks: []backend.Task{
			{ID: 1, Text: "Review PR", Category: "work"},
			{ID: 2, Text: "Write tests", Completed: true},
			{ID: 3, Text: "Buy groceries", DueDate: "2026-03-30", TimeSlot: "18:00"},
		},
	}
}

func (f *fakeBackend) Load(context.Context) ([]backend.Task, error) {
	return f.Tasks(), nil
}

func (f *fakeBackend) Add(_ context.Context, input backend.NewTask) (*backend.Task, error) {
	text, err := utils.NormalizeText(input.Text)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	task := backend.Task{ID: f.nextID, Text: text}
	f.nextID++
	f.tasks = append(f.tasks, task)
	return &task, nil
}

func (f *fakeBackend) update(ref backend.Ref, fn func(i int)) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	i := ref.Resolve(f.tasks)
	if i < 0 {
		return false
	}
	fn(i)
	return true
}

func (f *fakeBackend) Toggle(_ context.Context, ref backend.Ref) (bool, error) {
	return f.update(ref, func(i int) { f.tasks[i].Completed = !f.tasks[i].Completed }), nil
}

func (f *fakeBackend) Delete(_ context.Context, ref backend.Ref) (bool, error) {
	return f.update(ref, func(i int) { f.tasks = append(f.tasks[:i], f.tasks[i+1:]...) }), nil
}

func (f *fakeBackend) Edit(_ context.Context, ref backend.Ref, text string) (bool, error) {
	text, err := utils.NormalizeText(text)
	if err != nil {
		return false, err
	}
	return f.update(ref, func(i int) { f.tasks[i].Text = text }), nil
}

func (f *fakeBackend) Reorder(_ context.Context, ids []int64) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.orders = append(f.orders, ids)
	byID := map[int64]backend.Task{}
	for _, t := range f.tasks {
		byID[t.ID] = t
	}
	out := make([]backend.Task, 0, len(ids))
	for _, id := range ids {
		out = append(out, byID[id])
	}
	f.tasks = out
	return true, nil
}

func (f *fakeBackend) Tasks() []backend.Task {
	f.mu.Lock()
	defer f.mu.Unlock()
	return backend.Clone(f.tasks)
}

func (f *fakeBackend) Mode() synchronizer.Mode {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.mode
}

func (f *fakeBackend) texts() []string {
	var out []string
	for _, t := range f.Tasks() {
		out = append(out, t.Text)
	}
	return out
}

// start launches the TUI and waits until the first frame shows every want
// (the first task when none are given).
func start(t *testing.T, fb *fakeBackend, want ...string) *teatest.TestModel {
	t.Helper()
	if len(want) == 0 {
		want = []string{"Review PR"}
	}
	tm := teatest.NewTestModel(t, tui.New(fb), teatest.WithInitialTermSize(100, 30))
	teatest.WaitFor(t, tm.Output(), func(out []byte) bool {
		for _, w := range want {
			if !bytes.Contains(out, []byte(w)) {
				return false
			}
		}
		return true
	}, teatest.WithDuration(2*time.Second))
	return tm
}

func finish(t *testing.T, tm *teatest.TestModel) {
	t.Helper()
	sendRunesAndWait(tm, []rune{'q'})
	if _, err := io.ReadAll(tm.FinalOutput(t, teatest.WithFinalTimeout(time.Second))); err != nil {
		t.Fatalf("failed to read output: %v", err)
	}
}

func TestTUILaunchShowsTasksBadgeAndSummary(t *testing.T) {
	tm := start(t, newFakeBackend(), "ONLINE", "1/3 completed (33%)", "Buy groceries", "{work}")
	finish(t, tm)
}

func TestTUIOfflineBadge(t *testing.T) {
	fb := newFakeBackend()
	fb.mode = synchronizer.ModeOffline
	finish(t, start(t, fb, "OFFLINE", "Review PR"))
}

func TestTUIAddTask(t *testing.T) {
	fb := newFakeBackend()
	tm := start(t, fb)

	sendRunesAndWait(tm, []rune{'a'})
	typeText(tm, "Buy milk")
	sendKeyAndWait(tm, tea.KeyMsg{Type: tea.KeyEnter})

	teatest.WaitFor(t, tm.Output(), func(out []byte) bool {
		return bytes.Contains(out, []byte("Task Saved!"))
	}, teatest.WithDuration(2*time.Second))
	finish(t, tm)

	texts := fb.texts()
	if texts[len(texts)-1] != "Buy milk" {
		t.Errorf("expected new task last, got %v", texts)
	}
}

func TestTUIBlankAddShowsError(t *testing.T) {
	fb := newFakeBackend()
	tm := start(t, fb)

	sendRunesAndWait(tm, []rune{'a'})
	typeText(tm, "   ")
	sendKeyAndWait(tm, tea.KeyMsg{Type: tea.KeyEnter})

	teatest.WaitFor(t, tm.Output(), func(out []byte) bool {
		return bytes.Contains(out, []byte("task text is empty"))
	}, teatest.WithDuration(2*time.Second))
	finish(t, tm)

	if len(fb.Tasks()) != 3 {
		t.Errorf("blank add must not change the list")
	}
}

func TestTUIToggleTask(t *testing.T) {
	fb := newFakeBackend()
	tm := start(t, fb)

	sendRunesAndWait(tm, []rune{' '})
	teatest.WaitFor(t, tm.Output(), func(out []byte) bool {
		return bytes.Contains(out, []byte("2/3 completed (67%)"))
	}, teatest.WithDuration(2*time.Second))
	finish(t, tm)

	if !fb.Tasks()[0].Completed {
		t.Error("expected first task to be completed")
	}
}

func TestTUIEditTask(t *testing.T) {
	fb := newFakeBackend()
	tm := start(t, fb)

	sendRunesAndWait(tm, []rune{'e'})
	for range "Review PR" {
		tm.Send(tea.KeyMsg{Type: tea.KeyBackspace})
	}
	typeText(tm, "Merge PR")
	sendKeyAndWait(tm, tea.KeyMsg{Type: tea.KeyEnter})

	teatest.WaitFor(t, tm.Output(), func(out []byte) bool {
		return bytes.Contains(out, []byte("Task Updated!"))
	}, teatest.WithDuration(2*time.Second))
	finish(t, tm)

	if got := fb.Tasks()[0].Text; got != "Merge PR" {
		t.Errorf("expected edited text, got %q", got)
	}
}

func TestTUIDeleteRequiresConfirm(t *testing.T) {
	fb := newFakeBackend()
	tm := start(t, fb)

	sendRunesAndWait(tm, []rune{'d'})
	sendRunesAndWait(tm, []rune{'n'})
	sendRunesAndWait(tm, []rune{'d'})
	sendRunesAndWait(tm, []rune{'y'})

	teatest.WaitFor(t, tm.Output(), func(out []byte) bool {
		return bytes.Contains(out, []byte("Task deleted"))
	}, teatest.WithDuration(2*time.Second))
	finish(t, tm)

	if texts := fb.texts(); len(texts) != 2 || texts[0] != "Write tests" {
		t.Errorf("expected only the first task deleted, got %v", texts)
	}
}

func TestTUIMoveTaskDown(t *testing.T) {
	fb := newFakeBackend()
	tm := start(t, fb)

	sendRunesAndWait(tm, []rune{'J'})
	time.Sleep(50 * time.Millisecond)
	finish(t, tm)

	if texts := fb.texts(); texts[0] != "Write tests" || texts[1] != "Review PR" {
		t.Errorf("expected first two tasks swapped, got %v", texts)
	}
}

func TestTUIStatusFilterAndSearch(t *testing.T) {
	fb := newFakeBackend()
	tm := start(t, fb)

	sendRunesAndWait(tm, []rune{'f'})
	sendRunesAndWait(tm, []rune{'f'})
	teatest.WaitFor(t, tm.Output(), func(out []byte) bool {
		return bytes.Contains(out, []byte("Tasks (completed)"))
	}, teatest.WithDuration(2*time.Second))

	sendRunesAndWait(tm, []rune{'f'})
	sendRunesAndWait(tm, []rune{'/'})
	typeText(tm, "groc")
	sendKeyAndWait(tm, tea.KeyMsg{Type: tea.KeyEnter})
	teatest.WaitFor(t, tm.Output(), func(out []byte) bool {
		return bytes.Contains(out, []byte("Search: groc"))
	}, teatest.WithDuration(2*time.Second))

	finish(t, tm)
}

func TestTUIHelp(t *testing.T) {
	tm := start(t, newFakeBackend())
	sendRunesAndWait(tm, []rune{'?'})
	teatest.WaitFor(t, tm.Output(), func(out []byte) bool {
		return bytes.Contains(out, []byte("Key Bindings"))
	}, teatest.WithDuration(2*time.Second))
	sendRunesAndWait(tm, []rune{'x'})
	finish(t, tm)
}
