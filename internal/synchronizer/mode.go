package synchronizer

import "fmt"

// Mode is the synchronizer's connectivity state.
type Mode int

const (
	ModeOnline Mode = iota
	ModeOffline
)

// String returns ONLINE or OFFLINE.
func (m Mode) String() string {
	if m == ModeOffline {
		return "OFFLINE"
	}
	return "ONLINE"
}

// ConflictPolicy decides what happens to offline changes on reconnection.
type ConflictPolicy string

const (
	// PolicyRemoteWins discards offline changes and reloads from the store.
	PolicyRemoteWins ConflictPolicy = "remote_wins"
	// PolicyReplay sends journaled offline changes to the store, then reloads.
	PolicyReplay ConflictPolicy = "replay"
)

// ParseConflictPolicy validates a sync.conflict_resolution value. Empty means remote_wins.
func ParseConflictPolicy(s string) (ConflictPolicy, error) {
	switch ConflictPolicy(s) {
	case "", PolicyRemoteWins:
		return PolicyRemoteWins, nil
	case PolicyReplay:
		return PolicyReplay, nil
	default:
		return "", fmt.Errorf("invalid conflict_resolution %q (expected remote_wins or replay)", s)
	}
}

// InsertPosition decides where a newly added task goes.
type InsertPosition string

const (
	InsertAppend  InsertPosition = "append"
	InsertPrepend InsertPosition = "prepend"
)

// ParseInsertPosition validates a sync.insert_position value. Empty means append.
func ParseInsertPosition(s string) (InsertPosition, error) {
	switch InsertPosition(s) {
	case "", InsertAppend:
		return InsertAppend, nil
	case InsertPrepend:
		return InsertPrepend, nil
	default:
		return "", fmt.Errorf("invalid insert_position %q (expected append or prepend)", s)
	}
}
