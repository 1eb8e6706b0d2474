// Package views derives read-only projections of a task collection: status
// filters, text search, completion summary and category groups.
package views

import (
	"fmt"
	"math"
	"strings"

	"todosync/backend"
)

// Status selects tasks by completion.
type Status string

const (
	StatusAll       Status = "all"
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
)

// ParseStatus accepts all, active and completed (plus the done/pending
// aliases). Empty means all.
func ParseStatus(s string) (Status, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "all":
		return StatusAll, nil
	case "active", "pending", "todo":
		return StatusActive, nil
	case "completed", "done":
		return StatusCompleted, nil
	default:
		return "", fmt.Errorf("invalid status %q (expected all, active or completed)", s)
	}
}

// Next cycles all -> active -> completed -> all.
func (s Status) Next() Status {
	switch s {
	case StatusAll:
		return StatusActive
	case StatusActive:
		return StatusCompleted
	default:
		return StatusAll
	}
}

// FilterByStatus returns the tasks matching status, in order.
func FilterByStatus(tasks []backend.Task, status Status) []backend.Task {
	result := make([]backend.Task, 0, len(tasks))
	for _, t := range tasks {
		switch status {
		case StatusActive:
			if t.Completed {
				continue
			}
		case StatusCompleted:
			if !t.Completed {
				continue
			}
		}
		result = append(result, t)
	}
	return result
}

// Search returns tasks whose text contains query, ignoring case. An empty
// query matches everything.
func Search(tasks []backend.Task, query string) []backend.Task {
	q := strings.ToLower(strings.TrimSpace(query))
	result := make([]backend.Task, 0, len(tasks))
	for _, t := range tasks {
		if q == "" || strings.Contains(strings.ToLower(t.Text), q) {
			result = append(result, t)
		}
	}
	return result
}

// Query combines a status filter and a search string.
type Query struct {
	Status Status
	Search string
}

// Apply filters by status, then search.
func Apply(tasks []backend.Task, q Query) []backend.Task {
	return Search(FilterByStatus(tasks, q.Status), q.Search)
}

// Summary is the completion summary of a collection.
type Summary struct {
	Total     int `json:"total"`
	Completed int `json:"completed"`
	Percent   int `json:"percent"`
}

// Summarize counts completed tasks. Percent is round(100*completed/total),
// and 0 for an empty collection.
func Summarize(tasks []backend.Task) Summary {
	s := Summary{Total: len(tasks)}
	for _, t := range tasks {
		if t.Completed {
			s.Completed++
		}
	}
	if s.Total > 0 {
		s.Percent = int(math.Round(100 * float64(s.Completed) / float64(s.Total)))
	}
	return s
}
