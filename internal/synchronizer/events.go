package synchronizer

import "todosync/backend"

// EventKind identifies what changed.
type EventKind int

const (
	// EventTaskUpserted follows add, toggle and edit.
	EventTaskUpserted EventKind = iota
	EventTaskRemoved
	EventReordered
	// EventReloaded follows a load or reconcile; Source says where the list came from.
	EventReloaded
	EventModeChanged
)

// String returns a short name for the kind.
func (k EventKind) String() string {
	switch k {
	case EventTaskUpserted:
		return "upserted"
	case EventTaskRemoved:
		return "removed"
	case EventReordered:
		return "reordered"
	case EventReloaded:
		return "reloaded"
	case EventModeChanged:
		return "mode"
	default:
		return "unknown"
	}
}

// Source is where a reloaded collection was read from.
type Source string

const (
	SourceRemote Source = "remote"
	SourceCache  Source = "cache"
)

// Event describes a committed state change.
type Event struct {
	Kind   EventKind
	Action backend.Action // upserted/removed/reordered: the user action
	Task   backend.Task   // upserted/removed: the affected task
	Tasks  []backend.Task // the collection after the change
	Source Source         // reloaded only
	Mode   Mode
}

// Listener receives events synchronously once state is committed. Listeners
// must not call back into the synchronizer's operations.
type Listener interface {
	HandleEvent(Event)
}

// ListenerFunc adapts a function to Listener.
type ListenerFunc func(Event)

// HandleEvent calls f.
func (f ListenerFunc) HandleEvent(e Event) {
	f(e)
}
