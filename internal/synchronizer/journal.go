package synchronizer

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"todosync/backend"
	"todosync/internal/utils"
)

// journalEntry is one offline change awaiting replay.
type journalEntry struct {
	Mutation backend.Mutation `json:"mutation"`
	LocalID  int64            `json:"localId,omitempty"` // add: the offline-assigned id
	Position int              `json:"position"`
	At       time.Time        `json:"at"`
}

func (s *Synchronizer) readJournal(ctx context.Context) ([]journalEntry, error) {
	data, ok, err := s.cache.Get(ctx, backend.KeyPending)
	if err != nil {
		return nil, fmt.Errorf("failed to read pending changes: %w", err)
	}
	if !ok {
		return nil, nil
	}

	var entries []journalEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		s.log.Warn("%v", fmt.Errorf("%w: %s: %v (dropping pending changes)", utils.ErrCacheCorrupt, backend.KeyPending, err))
		return nil, nil
	}
	return entries, nil
}

func (s *Synchronizer) writeJournal(ctx context.Context, entries []journalEntry) error {
	if len(entries) == 0 {
		return s.cache.Delete(ctx, backend.KeyPending)
	}
	data, err := json.Marshal(entries)
	if err != nil {
		return err
	}
	return s.cache.Put(ctx, backend.KeyPending, data)
}

// readAssigned returns the offline-to-store id map left by a partial replay.
func (s *Synchronizer) readAssigned(ctx context.Context) map[int64]int64 {
	assigned := make(map[int64]int64)
	data, ok, err := s.cache.Get(ctx, backend.KeyPendingIDs)
	if err != nil || !ok {
		return assigned
	}
	var pairs map[string]int64
	if err := json.Unmarshal(data, &pairs); err != nil {
		s.log.Warn("%v", fmt.Errorf("%w: %s: %v", utils.ErrCacheCorrupt, backend.KeyPendingIDs, err))
		return assigned
	}
	for local, remote := range pairs {
		if id, err := strconv.ParseInt(local, 10, 64); err == nil {
			assigned[id] = remote
		}
	}
	return assigned
}

func (s *Synchronizer) writeAssigned(ctx context.Context, assigned map[int64]int64) error {
	if len(assigned) == 0 {
		return s.cache.Delete(ctx, backend.KeyPendingIDs)
	}
	pairs := make(map[string]int64, len(assigned))
	for local, remote := range assigned {
		pairs[strconv.FormatInt(local, 10)] = remote
	}
	data, err := json.Marshal(pairs)
	if err != nil {
		return err
	}
	return s.cache.Put(ctx, backend.KeyPendingIDs, data)
}

// clearJournal drops pending changes and their id map.
func (s *Synchronizer) clearJournal(ctx context.Context) error {
	if err := s.writeJournal(ctx, nil); err != nil {
		return err
	}
	return s.writeAssigned(ctx, nil)
}

func (s *Synchronizer) appendJournal(ctx context.Context, entry journalEntry) error {
	entries, err := s.readJournal(ctx)
	if err != nil {
		return err
	}
	return s.writeJournal(ctx, append(entries, entry))
}

// remapEntries rewrites offline ids in entries to the ids the store already
// assigned, so a later replay can still address those tasks.
func remapEntries(entries []journalEntry, mapID func(int64) int64) []journalEntry {
	out := make([]journalEntry, len(entries))
	for i, entry := range entries {
		m := entry.Mutation
		switch {
		case m.Action == backend.ActionAdd:
		case m.Action == backend.ActionReorder:
			order := make([]int64, len(m.Order))
			for j, id := range m.Order {
				order[j] = mapID(id)
			}
			m.Order = order
		case !m.Ref.ByIndex:
			m.Ref = backend.ByID(mapID(m.Ref.ID))
		}
		entry.Mutation = m
		out[i] = entry
	}
	return out
}

// replay sends journaled changes to the store in order. Tasks created offline
// are tracked so later changes to them reach the id the store assigned. If a
// step fails, it and the remaining entries stay journaled with the ids
// assigned so far.
func (s *Synchronizer) replay(ctx context.Context, gen uint64) error {
	entries, err := s.readJournal(ctx)
	if err != nil || len(entries) == 0 {
		return err
	}

	positional := false
	if p, ok := s.remote.(backend.Positional); ok {
		positional = p.Addressing() == backend.AddressByIndex
	}

	snapshot, err := s.callRemote(ctx, gen, s.remote.Fetch)
	if err != nil {
		return fmt.Errorf("replaying %d pending changes: %w", len(entries), err)
	}

	assigned := s.readAssigned(ctx)
	mapID := func(id int64) int64 {
		if remoteID, ok := assigned[id]; ok {
			return remoteID
		}
		return id
	}

	for i, entry := range entries {
		m := entry.Mutation

		switch {
		case m.Action == backend.ActionAdd:
		case m.Action == backend.ActionReorder:
			order := make([]int64, len(m.Order))
			for j, id := range m.Order {
				order[j] = mapID(id)
			}
			m.Order = order
		case positional:
			m.Position = entry.Position
		default:
			m.Ref = backend.ByID(mapID(m.Ref.ID))
			idx := m.Ref.Resolve(snapshot)
			if idx < 0 {
				s.log.Warn("Skipping pending %s: task %d no longer exists on the store", m.Action, m.Ref.ID)
				continue
			}
			m.Position = idx
		}

		after, err := s.callRemote(ctx, gen, func(ctx context.Context) ([]backend.Task, error) {
			return s.remote.Apply(ctx, m)
		})
		if err != nil {
			if jerr := s.writeJournal(ctx, remapEntries(entries[i:], mapID)); jerr != nil {
				s.log.Warn("Could not save remaining pending changes: %v", jerr)
			}
			if jerr := s.writeAssigned(ctx, assigned); jerr != nil {
				s.log.Warn("Could not save ids of replayed tasks: %v", jerr)
			}
			return fmt.Errorf("replaying %d pending changes: %w", len(entries)-i, err)
		}

		if m.Action == backend.ActionAdd && entry.LocalID != 0 {
			if created, ok := findCreated(snapshot, after, m.Task.Text); ok {
				assigned[entry.LocalID] = created.ID
			}
		}
		snapshot = after
	}

	s.log.Info("Replayed %d pending changes", len(entries))
	return s.clearJournal(ctx)
}
