package views

import (
	"strings"

	"todosync/backend"
)

// Group names.
const (
	GroupToday     = "today"
	GroupUpcoming  = "upcoming"
	GroupCompleted = "completed"
	GroupPriority  = "priority"
	GroupOther     = "other"
)

var groupOrder = []string{GroupToday, GroupUpcoming, GroupCompleted, GroupPriority, GroupOther}

// Group is a named slice of tasks.
type Group struct {
	Name  string         `json:"name"`
	Tasks []backend.Task `json:"tasks"`
}

// GroupByCategory sorts every task into exactly one group. Completed wins,
// then the today/upcoming category, then high priority. Empty groups are
// omitted.
func GroupByCategory(tasks []backend.Task) []Group {
	buckets := make(map[string][]backend.Task, len(groupOrder))
	for _, t := range tasks {
		name := groupFor(t)
		buckets[name] = append(buckets[name], t)
	}

	groups := make([]Group, 0, len(buckets))
	for _, name := range groupOrder {
		if len(buckets[name]) > 0 {
			groups = append(groups, Group{Name: name, Tasks: buckets[name]})
		}
	}
	return groups
}

func groupFor(t backend.Task) string {
	switch {
	case t.Completed:
		return GroupCompleted
	case strings.EqualFold(t.Category, GroupToday):
		return GroupToday
	case strings.EqualFold(t.Category, GroupUpcoming):
		return GroupUpcoming
	case strings.EqualFold(t.Priority, "high"):
		return GroupPriority
	default:
		return GroupOther
	}
}
