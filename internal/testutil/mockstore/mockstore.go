// Package mockstore provides an httptest stand-in for the remote /tasks endpoint.
package mockstore

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"time"

	"todosync/backend"
)

// Store simulates the remote /tasks endpoint. It issues sequential ids
// starting at 1 and appends new tasks, like the reference store.
type Store struct {
	server *httptest.Server

	mu          sync.Mutex
	tasks       []backend.Task
	nextID      int64
	byIndex     bool
	failStatus  int
	failAfter   int
	failNext    int
	rateLimited int
	omitTasks   bool
	hold        chan struct{}
	held        chan struct{}
	requestLog  []string
	requestIDs  []string
	bodies      []string
	authHeaders []string
}

// NewStore starts a mock store. Call Close when done.
func NewStore() *Store {
	m := &Store{nextID: 1}
	m.server = httptest.NewServer(http.HandlerFunc(m.handler))
	return m
}

// NewIndexStore starts a store that omits ids and addresses tasks by
// position, like the original Flask variant.
func NewIndexStore() *Store {
	m := NewStore()
	m.byIndex = true
	return m
}

// Close shuts the server down.
func (m *Store) Close() {
	m.mu.Lock()
	if m.hold != nil {
		close(m.hold)
		m.hold = nil
	}
	m.mu.Unlock()
	m.server.Close()
}

// URL returns the /tasks endpoint.
func (m *Store) URL() string {
	return m.server.URL + "/tasks"
}

// Seed replaces the store's contents. Ids of zero are assigned.
func (m *Store) Seed(tasks ...backend.Task) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tasks = nil
	for _, t := range tasks {
		if t.ID == 0 {
			t.ID = m.nextID
		}
		if t.ID >= m.nextID {
			m.nextID = t.ID + 1
		}
		m.tasks = append(m.tasks, t)
	}
}

// Tasks returns a copy of the store's contents.
func (m *Store) Tasks() []backend.Task {
	m.mu.Lock()
	defer m.mu.Unlock()
	return backend.Clone(m.tasks)
}

// SetFailing makes every request answer with status. Zero restores service.
func (m *Store) SetFailing(status int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failStatus = status
	m.failNext = 0
}

// FailAfter lets n more requests through and then fails every request with status.
func (m *Store) FailAfter(n, status int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failAfter = n
	m.failNext = status
}

// SetRateLimited answers the next n requests with 429.
func (m *Store) SetRateLimited(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rateLimited = n
}

// SetOmitTasks makes POST responses carry an empty body.
func (m *Store) SetOmitTasks(omit bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.omitTasks = omit
}

// Hold blocks the next POST until Release is called. The returned channel is
// closed once that request has been received.
func (m *Store) Hold() <-chan struct{} {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hold = make(chan struct{})
	m.held = make(chan struct{})
	return m.held
}

// Release unblocks a held request.
func (m *Store) Release() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.hold != nil {
		close(m.hold)
		m.hold = nil
	}
}

// GetRequestLog returns "METHOD action" entries in arrival order.
func (m *Store) GetRequestLog() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.requestLog...)
}

// RequestIDs returns the X-Request-ID header of every request.
func (m *Store) RequestIDs() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.requestIDs...)
}

// Bodies returns the raw POST bodies in arrival order.
func (m *Store) Bodies() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.bodies...)
}

// AuthHeaders returns the Authorization header of every request.
func (m *Store) AuthHeaders() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.authHeaders...)
}

type mockRequest struct {
	Action      backend.Action `json:"action"`
	ID          *int64         `json:"id"`
	Index       *int           `json:"index"`
	Task        string         `json:"task"`
	Title       string         `json:"title"`
	Category    string         `json:"category"`
	Priority    string         `json:"priority"`
	DueDate     string         `json:"due_date"`
	TimeSlot    string         `json:"time_slot"`
	ReminderSet bool           `json:"reminder_set"`
	Tasks       []int64        `json:"tasks"`
}

func (m *Store) handler(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/tasks" {
		http.NotFound(w, r)
		return
	}

	var req mockRequest
	var body []byte
	if r.Method == http.MethodPost {
		var err error
		if body, err = io.ReadAll(r.Body); err == nil {
			err = json.Unmarshal(body, &req)
		}
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
	}

	m.mu.Lock()
	entry := r.Method
	if req.Action != "" {
		entry += " " + string(req.Action)
	}
	m.requestLog = append(m.requestLog, entry)
	m.requestIDs = append(m.requestIDs, r.Header.Get("X-Request-ID"))
	if body != nil {
		m.bodies = append(m.bodies, string(bytes.TrimSpace(body)))
	}
	m.authHeaders = append(m.authHeaders, r.Header.Get("Authorization"))

	if m.rateLimited > 0 {
		m.rateLimited--
		m.mu.Unlock()
		w.Header().Set("Retry-After", "0")
		w.WriteHeader(http.StatusTooManyRequests)
		return
	}
	if m.failNext != 0 {
		if m.failAfter == 0 {
			m.failStatus = m.failNext
			m.failNext = 0
		} else {
			m.failAfter--
		}
	}
	if m.failStatus != 0 {
		status := m.failStatus
		m.mu.Unlock()
		w.WriteHeader(status)
		return
	}

	hold, held := m.hold, m.held
	if r.Method == http.MethodPost && held != nil {
		m.held = nil
		m.mu.Unlock()
		close(held)
		<-hold
		m.mu.Lock()
	}
	defer m.mu.Unlock()

	switch r.Method {
	case http.MethodHead:
		w.WriteHeader(http.StatusOK)
		return
	case http.MethodGet:
		m.writeTasks(w)
		return
	case http.MethodPost:
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	if status := m.apply(req); status != http.StatusOK {
		w.WriteHeader(status)
		return
	}
	if m.omitTasks {
		w.WriteHeader(http.StatusOK)
		return
	}
	m.writeTasks(w)
}

// apply runs a POST action against the store. Called with mu held.
func (m *Store) apply(req mockRequest) int {
	if req.Action == backend.ActionAdd {
		text := req.Title
		if text == "" {
			text = req.Task
		}
		m.tasks = append(m.tasks, backend.Task{
			ID:          m.nextID,
			Text:        text,
			CreatedDate: time.Now().Format("2006-01-02"),
			Category:    req.Category,
			Priority:    req.Priority,
			DueDate:     req.DueDate,
			TimeSlot:    req.TimeSlot,
			ReminderSet: req.ReminderSet,
		})
		m.nextID++
		return http.StatusOK
	}

	if req.Action == backend.ActionReorder {
		byID := make(map[int64]backend.Task, len(m.tasks))
		for _, t := range m.tasks {
			byID[t.ID] = t
		}
		reordered := make([]backend.Task, 0, len(m.tasks))
		for _, id := range req.Tasks {
			if t, ok := byID[id]; ok {
				reordered = append(reordered, t)
				delete(byID, id)
			}
		}
		for _, t := range m.tasks {
			if _, ok := byID[t.ID]; ok {
				reordered = append(reordered, t)
			}
		}
		m.tasks = reordered
		return http.StatusOK
	}

	idx := m.resolve(req)
	if idx < 0 {
		return http.StatusNotFound
	}

	switch req.Action {
	case backend.ActionToggle, backend.ActionComplete:
		m.tasks[idx].Completed = !m.tasks[idx].Completed
	case backend.ActionEdit:
		text := req.Title
		if text == "" {
			text = req.Task
		}
		m.tasks[idx].Text = text
		m.tasks[idx].Category = req.Category
		m.tasks[idx].Priority = req.Priority
		m.tasks[idx].DueDate = req.DueDate
		m.tasks[idx].TimeSlot = req.TimeSlot
		m.tasks[idx].ReminderSet = req.ReminderSet
	case backend.ActionDelete:
		m.tasks = append(m.tasks[:idx], m.tasks[idx+1:]...)
	default:
		return http.StatusBadRequest
	}
	return http.StatusOK
}

func (m *Store) resolve(req mockRequest) int {
	if m.byIndex {
		if req.Index == nil {
			return -1
		}
		return backend.ByIndex(*req.Index).Resolve(m.tasks)
	}
	if req.ID == nil {
		return -1
	}
	return backend.ByID(*req.ID).Resolve(m.tasks)
}

func (m *Store) writeTasks(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")

	if !m.byIndex {
		tasks := m.tasks
		if tasks == nil {
			tasks = []backend.Task{}
		}
		_ = json.NewEncoder(w).Encode(map[string][]backend.Task{"tasks": tasks})
		return
	}

	// The index-based variant serves {task, date, completed} without ids.
	out := make([]map[string]interface{}, len(m.tasks))
	for i, t := range m.tasks {
		out[i] = map[string]interface{}{"task": t.Text, "date": t.CreatedDate, "completed": t.Completed}
	}
	_ = json.NewEncoder(w).Encode(map[string]interface{}{"tasks": out})
}

// String describes the store for failure messages.
func (m *Store) String() string {
	return fmt.Sprintf("Store(%s, %d tasks)", m.URL(), len(m.Tasks()))
}
