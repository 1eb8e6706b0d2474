package synchronizer

import (
	"todosync/backend"
)

// insertTask places t according to pos. tasks is not modified.
func insertTask(tasks []backend.Task, t backend.Task, pos InsertPosition) []backend.Task {
	out := make([]backend.Task, 0, len(tasks)+1)
	if pos == InsertPrepend {
		out = append(out, t)
		return append(out, tasks...)
	}
	out = append(out, tasks...)
	return append(out, t)
}

// applyLocal runs a toggle, edit, delete or reorder against tasks. It returns
// the new collection and the affected task. ok is false when the reference
// does not resolve. tasks is not modified.
func applyLocal(tasks []backend.Task, m backend.Mutation) (out []backend.Task, affected backend.Task, ok bool) {
	if m.Action == backend.ActionReorder {
		return reorderIDs(tasks, m.Order), backend.Task{}, true
	}

	idx := m.Ref.Resolve(tasks)
	if idx < 0 {
		return tasks, backend.Task{}, false
	}

	out = backend.Clone(tasks)
	switch m.Action {
	case backend.ActionToggle, backend.ActionComplete:
		out[idx].Completed = !out[idx].Completed
		affected = out[idx]
	case backend.ActionEdit:
		out[idx].Text = m.Task.Text
		out[idx].Category = m.Task.Category
		out[idx].Priority = m.Task.Priority
		out[idx].DueDate = m.Task.DueDate
		out[idx].TimeSlot = m.Task.TimeSlot
		out[idx].ReminderSet = m.Task.ReminderSet
		affected = out[idx]
	case backend.ActionDelete:
		affected = out[idx]
		out = append(out[:idx], out[idx+1:]...)
	default:
		return tasks, backend.Task{}, false
	}
	return out, affected, true
}

// reorderIDs puts the listed ids first, in order. Unknown and repeated ids are
// ignored; unlisted tasks follow in their existing relative order.
func reorderIDs(tasks []backend.Task, ids []int64) []backend.Task {
	pos := make(map[int64]int, len(tasks))
	for i, t := range tasks {
		pos[t.ID] = i
	}

	out := make([]backend.Task, 0, len(tasks))
	used := make([]bool, len(tasks))
	for _, id := range ids {
		i, ok := pos[id]
		if !ok || used[i] {
			continue
		}
		used[i] = true
		out = append(out, tasks[i])
	}
	for i, t := range tasks {
		if !used[i] {
			out = append(out, t)
		}
	}
	return out
}

// sameOrder reports whether a and b list the same ids in the same order.
func sameOrder(a, b []backend.Task) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].ID != b[i].ID {
			return false
		}
	}
	return true
}

// findCreated locates the task an add produced: the last task in after whose
// id is absent from before, preferring one whose text matches.
func findCreated(before, after []backend.Task, text string) (backend.Task, bool) {
	seen := make(map[int64]bool, len(before))
	for _, t := range before {
		seen[t.ID] = true
	}

	var fallback *backend.Task
	for i := len(after) - 1; i >= 0; i-- {
		if seen[after[i].ID] {
			continue
		}
		if after[i].Text == text {
			return after[i], true
		}
		if fallback == nil {
			fallback = &after[i]
		}
	}
	if fallback != nil {
		return *fallback, true
	}
	return backend.Task{}, false
}

// locate finds a task by id, falling back to its previous position for stores
// whose ids are synthesized per response.
func locate(tasks []backend.Task, id int64, position int) (backend.Task, bool) {
	if i := backend.ByID(id).Resolve(tasks); i >= 0 {
		return tasks[i], true
	}
	if i := backend.ByIndex(position).Resolve(tasks); i >= 0 {
		return tasks[i], true
	}
	return backend.Task{}, false
}
