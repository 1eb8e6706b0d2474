package backend

import "encoding/json"

// Action names a POST action understood by the remote store.
type Action string

const (
	ActionAdd      Action = "add"
	ActionEdit     Action = "edit"
	ActionToggle   Action = "toggle"
	ActionComplete Action = "complete"
	ActionDelete   Action = "delete"
	ActionReorder  Action = "reorder"
)

// Mutation is one user-initiated change. It marshals to the POST body sent to the
// remote store and is journaled in the local cache while offline.
type Mutation struct {
	Action Action
	Ref    Ref
	Task   NewTask // add: the new task; edit: the task's full field set after the change
	Order  []int64 // reorder

	// Position is the referenced task's index in the snapshot the mutation was
	// resolved against. Index-addressed stores are sent this instead of the id.
	Position int
}

// mutationJSON mirrors the remote store's POST body. Text is sent as both
// "task" and "title" since store variants read one or the other.
type mutationJSON struct {
	Action      Action  `json:"action"`
	ID          *int64  `json:"id,omitempty"`
	Index       *int    `json:"index,omitempty"`
	Task        string  `json:"task,omitempty"`
	Title       string  `json:"title,omitempty"`
	Category    string  `json:"category,omitempty"`
	Priority    string  `json:"priority,omitempty"`
	DueDate     string  `json:"due_date,omitempty"`
	TimeSlot    string  `json:"time_slot,omitempty"`
	ReminderSet *bool   `json:"reminder_set,omitempty"`
	Tasks       []int64 `json:"tasks,omitempty"`
}

// editJSON is the edit body. Every field is sent, empty or not, so a store
// that overwrites fields on edit ends up with exactly the edited task.
type editJSON struct {
	Action      Action `json:"action"`
	ID          *int64 `json:"id,omitempty"`
	Index       *int   `json:"index,omitempty"`
	Task        string `json:"task"`
	Title       string `json:"title"`
	Category    string `json:"category"`
	Priority    string `json:"priority"`
	DueDate     string `json:"due_date"`
	TimeSlot    string `json:"time_slot"`
	ReminderSet bool   `json:"reminder_set"`
}

// MarshalJSON renders the store's POST body.
func (m Mutation) MarshalJSON() ([]byte, error) {
	body := mutationJSON{Action: m.Action}

	switch m.Action {
	case ActionAdd, ActionEdit:
		body.Task = m.Task.Text
		body.Title = m.Task.Text
		body.Category = m.Task.Category
		body.Priority = m.Task.Priority
		body.DueDate = m.Task.DueDate
		body.TimeSlot = m.Task.TimeSlot
		reminder := m.Task.ReminderSet
		body.ReminderSet = &reminder
	case ActionReorder:
		body.Tasks = m.Order
		if body.Tasks == nil {
			body.Tasks = []int64{}
		}
	}

	if m.Action != ActionAdd && m.Action != ActionReorder {
		if m.Ref.ByIndex {
			index := m.Ref.Index
			body.Index = &index
		} else {
			id := m.Ref.ID
			body.ID = &id
		}
	}

	if m.Action == ActionEdit {
		return json.Marshal(editJSON{
			Action:      body.Action,
			ID:          body.ID,
			Index:       body.Index,
			Task:        body.Task,
			Title:       body.Title,
			Category:    body.Category,
			Priority:    body.Priority,
			DueDate:     body.DueDate,
			TimeSlot:    body.TimeSlot,
			ReminderSet: m.Task.ReminderSet,
		})
	}
	return json.Marshal(body)
}

// UnmarshalJSON reads a body written by MarshalJSON (used for the offline journal).
func (m *Mutation) UnmarshalJSON(data []byte) error {
	var body mutationJSON
	if err := json.Unmarshal(data, &body); err != nil {
		return err
	}

	*m = Mutation{
		Action: body.Action,
		Task: NewTask{
			Text:     firstNonEmpty(body.Title, body.Task),
			Category: body.Category,
			Priority: body.Priority,
			DueDate:  body.DueDate,
			TimeSlot: body.TimeSlot,
		},
		Order: body.Tasks,
	}
	if body.ReminderSet != nil {
		m.Task.ReminderSet = *body.ReminderSet
	}
	switch {
	case body.Index != nil:
		m.Ref = ByIndex(*body.Index)
	case body.ID != nil:
		m.Ref = ByID(*body.ID)
	}
	return nil
}
