package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// Task represents a single todo item.
type Task struct {
	ID          int64
	Text        string
	CreatedDate string // YYYY-MM-DD
	Completed   bool
	Category    string
	Priority    string // low, medium, high
	DueDate     string // YYYY-MM-DD
	TimeSlot    string // HH:MM
	ReminderSet bool
}

// taskJSON is the canonical wire form written by this module.
type taskJSON struct {
	ID          int64  `json:"id"`
	Text        string `json:"text"`
	CreatedDate string `json:"createdDate"`
	Completed   bool   `json:"completed"`
	Category    string `json:"category,omitempty"`
	Priority    string `json:"priority,omitempty"`
	DueDate     string `json:"dueDate,omitempty"`
	TimeSlot    string `json:"timeSlot,omitempty"`
	ReminderSet bool   `json:"reminderSet,omitempty"`
}

// taskAliases lists field spellings used by the other store and client variants.
type taskAliases struct {
	Title       string `json:"title"`
	Task        string `json:"task"`
	Date        string `json:"date"`
	CreatedDate string `json:"created_date"`
	DueDate     string `json:"due_date"`
	TimeSlot    string `json:"time_slot"`
	ReminderSet *bool  `json:"reminder_set"`
}

// MarshalJSON writes the canonical form.
func (t Task) MarshalJSON() ([]byte, error) {
	return json.Marshal(taskJSON(t))
}

// UnmarshalJSON accepts the canonical form plus the title/task/date/snake_case
// spellings served by older store variants.
func (t *Task) UnmarshalJSON(data []byte) error {
	var canon taskJSON
	if err := json.Unmarshal(data, &canon); err != nil {
		return err
	}
	var alt taskAliases
	if err := json.Unmarshal(data, &alt); err != nil {
		return err
	}

	*t = Task(canon)
	if t.Text == "" {
		t.Text = firstNonEmpty(alt.Title, alt.Task)
	}
	if t.CreatedDate == "" {
		t.CreatedDate = firstNonEmpty(alt.Date, alt.CreatedDate)
	}
	if t.DueDate == "" {
		t.DueDate = alt.DueDate
	}
	if t.TimeSlot == "" {
		t.TimeSlot = alt.TimeSlot
	}
	if !t.ReminderSet && alt.ReminderSet != nil {
		t.ReminderSet = *alt.ReminderSet
	}
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// NewTask carries user input for an add action.
type NewTask struct {
	Text        string
	Category    string
	Priority    string
	DueDate     string
	TimeSlot    string
	ReminderSet bool
}

// TaskUpdate is a partial edit. Nil fields keep the task's current value; a
// pointer to "" clears a field.
type TaskUpdate struct {
	Text        *string
	Category    *string
	Priority    *string
	DueDate     *string
	TimeSlot    *string
	ReminderSet *bool
}

// IsEmpty reports whether u changes nothing.
func (u TaskUpdate) IsEmpty() bool {
	return u.Text == nil && u.Category == nil && u.Priority == nil &&
		u.DueDate == nil && u.TimeSlot == nil && u.ReminderSet == nil
}

// Apply returns t's fields with u laid over them.
func (u TaskUpdate) Apply(t Task) NewTask {
	out := NewTask{
		Text:        t.Text,
		Category:    t.Category,
		Priority:    t.Priority,
		DueDate:     t.DueDate,
		TimeSlot:    t.TimeSlot,
		ReminderSet: t.ReminderSet,
	}
	if u.Text != nil {
		out.Text = *u.Text
	}
	if u.Category != nil {
		out.Category = *u.Category
	}
	if u.Priority != nil {
		out.Priority = *u.Priority
	}
	if u.DueDate != nil {
		out.DueDate = *u.DueDate
	}
	if u.TimeSlot != nil {
		out.TimeSlot = *u.TimeSlot
	}
	if u.ReminderSet != nil {
		out.ReminderSet = *u.ReminderSet
	}
	return out
}

// Ref points at a task either by id or by zero-based position.
type Ref struct {
	ID      int64
	Index   int
	ByIndex bool
}

// ByID references a task by its id.
func ByID(id int64) Ref {
	return Ref{ID: id}
}

// ByIndex references a task by its position in the collection.
func ByIndex(index int) Ref {
	return Ref{Index: index, ByIndex: true}
}

// String renders the reference for messages.
func (r Ref) String() string {
	if r.ByIndex {
		return fmt.Sprintf("index %d", r.Index)
	}
	return fmt.Sprintf("id %d", r.ID)
}

// Resolve returns the position of the referenced task in tasks, or -1.
func (r Ref) Resolve(tasks []Task) int {
	if r.ByIndex {
		if r.Index < 0 || r.Index >= len(tasks) {
			return -1
		}
		return r.Index
	}
	for i, t := range tasks {
		if t.ID == r.ID {
			return i
		}
	}
	return -1
}

// RemoteStore is the remote source of truth (the /tasks HTTP endpoint).
// Apply returns the store's post-mutation collection.
type RemoteStore interface {
	Fetch(ctx context.Context) ([]Task, error)
	Apply(ctx context.Context, m Mutation) ([]Task, error)
	Close() error
}

// Addressing selects how mutations reference tasks on the wire.
type Addressing string

const (
	AddressByID    Addressing = "id"
	AddressByIndex Addressing = "index"
)

// Positional is implemented by remote stores that can report their addressing.
type Positional interface {
	Addressing() Addressing
}

// LocalCache is a durable key-value store. Get reports ok=false for missing keys.
type LocalCache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Put(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	Close() error
}

// Cache keys.
const (
	KeyTasks      = "tasks"
	KeyPending    = "pending"
	KeyPendingIDs = "pending-ids" // offline id -> store id for a partly replayed journal
	KeyHistory    = "history"
)

// Today returns now's local date in the wire format.
func Today(now time.Time) string {
	return now.Format("2006-01-02")
}

// NewOfflineID derives an id from the clock, bumped until it is unused in tasks.
func NewOfflineID(now time.Time, tasks []Task) int64 {
	id := now.UnixMilli()
	for containsID(tasks, id) {
		id++
	}
	return id
}

func containsID(tasks []Task, id int64) bool {
	for _, t := range tasks {
		if t.ID == id {
			return true
		}
	}
	return false
}

// Normalize enforces id uniqueness on a decoded collection. Tasks with a zero or
// duplicate id get a fresh clock-derived id. A nil slice becomes empty.
func Normalize(tasks []Task, now time.Time) []Task {
	taken := make(map[int64]bool, len(tasks))
	for _, t := range tasks {
		taken[t.ID] = true
	}

	out := make([]Task, 0, len(tasks))
	seen := make(map[int64]bool, len(tasks))
	next := now.UnixMilli()
	for _, t := range tasks {
		if t.ID == 0 || seen[t.ID] {
			for taken[next] {
				next++
			}
			t.ID = next
			taken[next] = true
		}
		seen[t.ID] = true
		out = append(out, t)
	}
	return out
}

// Clone returns an independent copy of tasks.
func Clone(tasks []Task) []Task {
	out := make([]Task, len(tasks))
	copy(out, tasks)
	return out
}

// IDs returns the ids of tasks in order.
func IDs(tasks []Task) []int64 {
	ids := make([]int64, len(tasks))
	for i, t := range tasks {
		ids[i] = t.ID
	}
	return ids
}
