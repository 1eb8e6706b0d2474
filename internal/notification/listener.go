package notification

import (
	"fmt"

	"todosync/backend"
	"todosync/internal/synchronizer"
)

// NewTaskListener turns synchronizer events into "Task Saved!" and
// "Task Updated!" notifications, plus connectivity changes.
func NewTaskListener(m NotificationManager) synchronizer.Listener {
	return synchronizer.ListenerFunc(func(e synchronizer.Event) {
		n, ok := forEvent(e)
		if !ok {
			return
		}
		_ = m.Send(n)
	})
}

func forEvent(e synchronizer.Event) (Notification, bool) {
	switch e.Kind {
	case synchronizer.EventTaskUpserted:
		switch e.Action {
		case backend.ActionAdd:
			msg := fmt.Sprintf("%q added.", e.Task.Text)
			if e.Task.ReminderSet {
				msg = "Task added with reminder."
			}
			return Notification{Type: NotifyTaskSaved, Title: "Task Saved!", Message: msg, Metadata: taskMetadata(e.Task)}, true
		case backend.ActionToggle, backend.ActionComplete, backend.ActionEdit:
			return Notification{Type: NotifyTaskUpdated, Title: "Task Updated!", Message: fmt.Sprintf("%q updated.", e.Task.Text), Metadata: taskMetadata(e.Task)}, true
		}
	case synchronizer.EventModeChanged:
		if e.Mode == synchronizer.ModeOffline {
			return Notification{Type: NotifyConnectivity, Title: "Offline", Message: "Task store unreachable; changes are saved locally."}, true
		}
		return Notification{Type: NotifyConnectivity, Title: "Back online", Message: "Task store reachable again."}, true
	}
	return Notification{}, false
}

// ReminderNotification builds the alert sent shortly before a task is due.
func ReminderNotification(t backend.Task) Notification {
	at := t.TimeSlot
	if at == "" {
		at = t.DueDate
	}
	return Notification{
		Type:     NotifyReminder,
		Title:    "Reminder!",
		Message:  fmt.Sprintf("%q is due soon at %s!", t.Text, at),
		Metadata: taskMetadata(t),
	}
}

func taskMetadata(t backend.Task) map[string]string {
	return map[string]string{"task_id": fmt.Sprint(t.ID)}
}
