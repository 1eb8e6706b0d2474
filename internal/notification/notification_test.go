package notification

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"todosync/backend"
	"todosync/internal/synchronizer"
)

type recordingManager struct {
	mu   sync.Mutex
	sent []Notification
}

func (r *recordingManager) Send(n Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, n)
	return nil
}

func (r *recordingManager) Close() error      { return nil }
func (r *recordingManager) ChannelCount() int { return 1 }

func TestOSNotificationLinux(t *testing.T) {
	var gotCmd string
	var gotArgs []string
	executor := &MockCommandExecutor{ExecuteFunc: func(cmd string, args ...string) error {
		gotCmd = cmd
		gotArgs = args
		return nil
	}}

	ch := NewOSNotificationChannel(&OSNotificationConfig{Enabled: true, OnReminder: true}, WithCommandExecutor(executor), WithPlatform("linux"))
	if err := ch.Send(Notification{Type: NotifyReminder, Title: "Reminder!", Message: "soon"}); err != nil {
		t.Fatalf("Send: %v", err)
	}

	if gotCmd != "notify-send" {
		t.Errorf("cmd = %q, want notify-send", gotCmd)
	}
	if len(gotArgs) != 3 || gotArgs[1] != "Reminder!" || gotArgs[2] != "soon" {
		t.Errorf("args = %v", gotArgs)
	}
}

func TestOSNotificationDarwinEscapes(t *testing.T) {
	var script string
	executor := &MockCommandExecutor{ExecuteFunc: func(cmd string, args ...string) error {
		script = args[len(args)-1]
		return nil
	}}

	ch := NewOSNotificationChannel(&OSNotificationConfig{Enabled: true, OnTaskChange: true}, WithCommandExecutor(executor), WithPlatform("darwin"))
	_ = ch.Send(Notification{Type: NotifyTaskSaved, Title: "Task Saved!", Message: `"Buy milk" added.`})

	if !strings.Contains(script, `\"Buy milk\" added.`) {
		t.Errorf("quotes should be escaped in %q", script)
	}
}

func TestOSNotificationTypeFiltering(t *testing.T) {
	calls := 0
	executor := &MockCommandExecutor{ExecuteFunc: func(string, ...string) error {
		calls++
		return nil
	}}

	ch := NewOSNotificationChannel(&OSNotificationConfig{Enabled: true, OnReminder: true}, WithCommandExecutor(executor), WithPlatform("linux"))
	_ = ch.Send(Notification{Type: NotifyTaskUpdated})
	_ = ch.Send(Notification{Type: NotifyConnectivity})
	_ = ch.Send(Notification{Type: NotifyReminder})
	_ = ch.Send(Notification{Type: NotifyTest})

	if calls != 2 {
		t.Errorf("expected reminder and test to be sent, got %d calls", calls)
	}
}

func TestLogNotificationChannel(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "notifications.log")
	mgr, err := NewManager(&Config{Enabled: true, LogNotification: LogNotificationConfig{Enabled: true, Path: path}})
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	defer func() { _ = mgr.Close() }()

	ts := time.Date(2026, 3, 30, 10, 30, 0, 0, time.UTC)
	if err := mgr.Send(Notification{Type: NotifyTaskSaved, Title: "Task Saved!", Message: "added", Timestamp: ts}); err != nil {
		t.Fatalf("Send: %v", err)
	}

	entries, err := ReadLog(path)
	if err != nil {
		t.Fatalf("ReadLog: %v", err)
	}
	want := "2026-03-30T10:30:00Z [TASK_SAVED] Task Saved! - added"
	if len(entries) != 1 || entries[0] != want {
		t.Errorf("entries = %q, want %q", entries, want)
	}
}

func TestLogLineIncludesMetadata(t *testing.T) {
	n := ReminderNotification(backend.Task{ID: 7, Text: "Pay rent", DueDate: "2026-04-01"})
	n.Timestamp = time.Date(2026, 4, 1, 8, 55, 0, 0, time.UTC)
	n.Metadata["list"] = "home"

	want := "2026-04-01T08:55:00Z [REMINDER] Reminder! - \"Pay rent\" is due soon at 2026-04-01! (list=home task_id=7)\n"
	if got := formatLogLine(n); got != want {
		t.Errorf("formatLogLine() = %q, want %q", got, want)
	}
}

func TestLogNotificationRotates(t *testing.T) {
	path := filepath.Join(t.TempDir(), "notifications.log")
	if err := os.WriteFile(path, make([]byte, 1<<20), 0644); err != nil {
		t.Fatal(err)
	}

	ch := NewLogNotificationChannel(&LogNotificationConfig{Enabled: true, Path: path, MaxSizeMB: 1})
	if err := ch.Send(Notification{Type: NotifyTaskUpdated, Title: "Task Updated!", Message: "updated"}); err != nil {
		t.Fatalf("Send: %v", err)
	}

	if info, err := os.Stat(path + ".old"); err != nil || info.Size() != 1<<20 {
		t.Fatalf("expected the full log moved to .old, stat err=%v", err)
	}
	entries, err := ReadLog(path)
	if err != nil || len(entries) != 1 {
		t.Fatalf("expected one entry in the fresh log, got %q (err=%v)", entries, err)
	}
}

func TestManagerStampsMissingTimestamp(t *testing.T) {
	path := filepath.Join(t.TempDir(), "notifications.log")
	at := time.Date(2026, 5, 2, 7, 0, 0, 0, time.UTC)
	mgr, err := NewManager(&Config{Enabled: true, LogNotification: LogNotificationConfig{Enabled: true, Path: path}},
		WithClock(func() time.Time { return at }))
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}

	if err := mgr.Send(Notification{Type: NotifyConnectivity, Title: "Back online", Message: "ok"}); err != nil {
		t.Fatalf("Send: %v", err)
	}
	entries, _ := ReadLog(path)
	if len(entries) != 1 || !strings.HasPrefix(entries[0], "2026-05-02T07:00:00Z [CONNECTIVITY]") {
		t.Errorf("entries = %q", entries)
	}
}

func TestManagerDisabledSendsNothing(t *testing.T) {
	calls := 0
	executor := &MockCommandExecutor{ExecuteFunc: func(string, ...string) error {
		calls++
		return nil
	}}

	mgr, _ := NewManager(&Config{Enabled: false, OSNotification: OSNotificationConfig{Enabled: true}}, WithCommandExecutor(executor))
	_ = mgr.Send(Notification{Type: NotifyTest})

	if calls != 0 || mgr.ChannelCount() != 0 {
		t.Errorf("disabled manager should not send (calls=%d, channels=%d)", calls, mgr.ChannelCount())
	}
}

func TestTaskListenerMessages(t *testing.T) {
	rec := &recordingManager{}
	l := NewTaskListener(rec)

	l.HandleEvent(synchronizer.Event{Kind: synchronizer.EventTaskUpserted, Action: backend.ActionAdd, Task: backend.Task{Text: "Buy milk"}})
	l.HandleEvent(synchronizer.Event{Kind: synchronizer.EventTaskUpserted, Action: backend.ActionAdd, Task: backend.Task{Text: "Call", ReminderSet: true}})
	l.HandleEvent(synchronizer.Event{Kind: synchronizer.EventTaskUpserted, Action: backend.ActionToggle, Task: backend.Task{Text: "Buy milk"}})
	l.HandleEvent(synchronizer.Event{Kind: synchronizer.EventTaskRemoved, Action: backend.ActionDelete})
	l.HandleEvent(synchronizer.Event{Kind: synchronizer.EventReloaded})
	l.HandleEvent(synchronizer.Event{Kind: synchronizer.EventModeChanged, Mode: synchronizer.ModeOffline})

	if len(rec.sent) != 4 {
		t.Fatalf("sent %d notifications, want 4: %+v", len(rec.sent), rec.sent)
	}
	if rec.sent[0].Title != "Task Saved!" || rec.sent[0].Message != `"Buy milk" added.` {
		t.Errorf("add: %+v", rec.sent[0])
	}
	if rec.sent[1].Message != "Task added with reminder." {
		t.Errorf("add with reminder: %+v", rec.sent[1])
	}
	if rec.sent[2].Title != "Task Updated!" {
		t.Errorf("toggle: %+v", rec.sent[2])
	}
	if rec.sent[3].Type != NotifyConnectivity || rec.sent[3].Title != "Offline" {
		t.Errorf("mode change: %+v", rec.sent[3])
	}
}

func TestReminderNotification(t *testing.T) {
	n := ReminderNotification(backend.Task{ID: 4, Text: "Go to the bank", TimeSlot: "11:00"})
	if n.Title != "Reminder!" || n.Message != `"Go to the bank" is due soon at 11:00!` {
		t.Errorf("got %+v", n)
	}
}
