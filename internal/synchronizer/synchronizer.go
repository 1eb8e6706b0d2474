// Package synchronizer owns the in-memory task collection and keeps it
// consistent with the remote task store and the local cache.
package synchronizer

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"todosync/backend"
	"todosync/internal/connectivity"
	"todosync/internal/utils"
)

// DefaultRequestTimeout bounds every remote call.
const DefaultRequestTimeout = 10 * time.Second

// Option configures a Synchronizer.
type Option func(*Synchronizer)

// WithProber checks reachability before every store-touching operation.
// Without one the synchronizer trusts the last SetOnline signal.
func WithProber(p connectivity.Prober) Option {
	return func(s *Synchronizer) { s.prober = p }
}

// WithConflictPolicy sets the reconnection policy.
func WithConflictPolicy(p ConflictPolicy) Option {
	return func(s *Synchronizer) { s.policy = p }
}

// WithInsertPosition sets where added tasks go.
func WithInsertPosition(p InsertPosition) Option {
	return func(s *Synchronizer) { s.insert = p }
}

// WithRequestTimeout bounds each remote call.
func WithRequestTimeout(d time.Duration) Option {
	return func(s *Synchronizer) { s.timeout = d }
}

// WithListener registers an event listener.
func WithListener(l Listener) Option {
	return func(s *Synchronizer) { s.listeners = append(s.listeners, l) }
}

// WithClock overrides time.Now for ids and dates.
func WithClock(now func() time.Time) Option {
	return func(s *Synchronizer) { s.now = now }
}

// WithLogger overrides the global logger.
func WithLogger(l *utils.Logger) Option {
	return func(s *Synchronizer) { s.log = l }
}

// Synchronizer reconciles the task collection between memory, the remote
// store and the local cache. Operations are serialized; mode and generation
// live under a separate lock so connectivity signals never wait on a remote call.
type Synchronizer struct {
	remote    backend.RemoteStore
	cache     backend.LocalCache
	prober    connectivity.Prober
	policy    ConflictPolicy
	insert    InsertPosition
	timeout   time.Duration
	listeners []Listener
	now       func() time.Time
	log       *utils.Logger

	opMu   sync.Mutex
	loaded bool

	stateMu          sync.RWMutex
	tasks            []backend.Task
	mode             Mode
	generation       uint64
	pendingReconnect bool
}

// New creates a synchronizer. remote and cache must not be nil. When a prober
// is configured the initial mode comes from a startup probe.
func New(remote backend.RemoteStore, cache backend.LocalCache, opts ...Option) *Synchronizer {
	s := &Synchronizer{
		remote:  remote,
		cache:   cache,
		policy:  PolicyRemoteWins,
		insert:  InsertAppend,
		timeout: DefaultRequestTimeout,
		now:     time.Now,
		log:     utils.GetLogger(),
		tasks:   []backend.Task{},
		mode:    ModeOnline,
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.prober != nil && !s.prober.Probe(context.Background()) {
		s.mode = ModeOffline
	}
	// Changes journaled by an earlier process are reconciled like a reconnect.
	if n, err := s.Pending(context.Background()); err == nil && n > 0 {
		s.pendingReconnect = true
	}
	return s
}

// Tasks returns a copy of the in-memory collection.
func (s *Synchronizer) Tasks() []backend.Task {
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()
	return backend.Clone(s.tasks)
}

// Mode returns the current connectivity mode.
func (s *Synchronizer) Mode() Mode {
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()
	return s.mode
}

// Pending returns the number of journaled offline changes.
func (s *Synchronizer) Pending(ctx context.Context) (int, error) {
	entries, err := s.readJournal(ctx)
	return len(entries), err
}

// SetOnline is the connectivity signal. Going from offline to online
// reconciles immediately according to the conflict policy.
func (s *Synchronizer) SetOnline(ctx context.Context, online bool) error {
	if !s.setMode(online) {
		return nil
	}
	if !online {
		return nil
	}

	s.opMu.Lock()
	defer s.opMu.Unlock()
	if !s.takeReconnect() {
		return nil
	}
	return s.reconcile(ctx)
}

// Sync forces a reconcile with the remote store.
func (s *Synchronizer) Sync(ctx context.Context) error {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	s.probe(ctx)
	if s.Mode() == ModeOffline {
		return utils.WrapWithSuggestion(
			fmt.Errorf("%w: cannot sync while offline", utils.ErrRemoteUnavailable),
			"Check that the task store is reachable, or review sync.offline_mode in the config",
		)
	}
	s.takeReconnect()
	return s.reconcile(ctx)
}

// Load populates the collection from the reachable store. A remote failure
// falls back to the cache; only cache I/O errors are returned.
func (s *Synchronizer) Load(ctx context.Context) ([]backend.Task, error) {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	s.probe(ctx)
	if s.takeReconnect() {
		err := s.reconcile(ctx)
		if err == nil {
			return s.Tasks(), nil
		}
		s.log.Warn("Reconnect failed: %v", err)
	}
	if err := s.load(ctx); err != nil {
		return nil, err
	}
	return s.Tasks(), nil
}

// load reads from the remote store when online, else the cache. Called with opMu held.
func (s *Synchronizer) load(ctx context.Context) error {
	mode, gen := s.modeAndGeneration()
	if mode == ModeOnline {
		tasks, err := s.callRemote(ctx, gen, s.remote.Fetch)
		if err == nil {
			s.commitRemote(ctx, tasks)
			s.emit(Event{Kind: EventReloaded, Tasks: tasks, Source: SourceRemote, Mode: mode})
			return nil
		}
		s.log.Warn("Remote load failed, using local cache: %v", err)
	}

	tasks, err := s.readTasks(ctx)
	if err != nil {
		return err
	}
	s.commit(tasks)
	s.emit(Event{Kind: EventReloaded, Tasks: tasks, Source: SourceCache, Mode: s.Mode()})
	return nil
}

// begin prepares an operation: probe, run a pending reconcile, make sure the
// collection has been loaded once. Called with opMu held.
func (s *Synchronizer) begin(ctx context.Context) error {
	s.probe(ctx)
	if s.takeReconnect() {
		if err := s.reconcile(ctx); err != nil {
			s.log.Warn("Reconnect failed: %v", err)
		}
	}
	if !s.loaded {
		return s.load(ctx)
	}
	return nil
}

// Add creates a task from input and persists it. Blank text is rejected with
// utils.ErrValidation and nothing changes.
func (s *Synchronizer) Add(ctx context.Context, input backend.NewTask) (*backend.Task, error) {
	text, err := utils.NormalizeText(input.Text)
	if err != nil {
		return nil, err
	}
	input.Text = text

	s.opMu.Lock()
	defer s.opMu.Unlock()

	if err := s.begin(ctx); err != nil {
		return nil, err
	}

	m := backend.Mutation{Action: backend.ActionAdd, Task: input}
	mode, gen := s.modeAndGeneration()

	if mode == ModeOnline {
		before := s.Tasks()
		tasks, err := s.callRemote(ctx, gen, func(ctx context.Context) ([]backend.Task, error) {
			return s.remote.Apply(ctx, m)
		})
		if err != nil {
			return nil, err
		}

		created, ok := findCreated(before, tasks, text)
		if !ok {
			return nil, fmt.Errorf("%w: store did not return the added task", utils.ErrRemoteUnavailable)
		}
		if s.insert == InsertPrepend && len(tasks) > 1 && tasks[0].ID != created.ID {
			order := reorderIDs(tasks, []int64{created.ID})
			reordered, err := s.callRemote(ctx, gen, func(ctx context.Context) ([]backend.Task, error) {
				return s.remote.Apply(ctx, backend.Mutation{Action: backend.ActionReorder, Order: backend.IDs(order)})
			})
			if err != nil {
				s.log.Warn("Task added but could not be moved to the top: %v", err)
			} else {
				tasks = reordered
			}
		}

		s.commitRemote(ctx, tasks)
		s.emit(Event{Kind: EventTaskUpserted, Action: backend.ActionAdd, Task: created, Tasks: tasks, Mode: mode})
		return &created, nil
	}

	tasks, err := s.readTasks(ctx)
	if err != nil {
		return nil, err
	}
	now := s.now()
	task := backend.Task{
		ID:          backend.NewOfflineID(now, tasks),
		Text:        text,
		CreatedDate: backend.Today(now),
		Category:    input.Category,
		Priority:    input.Priority,
		DueDate:     input.DueDate,
		TimeSlot:    input.TimeSlot,
		ReminderSet: input.ReminderSet,
	}
	tasks = insertTask(tasks, task, s.insert)

	if err := s.commitOffline(ctx, tasks, journalEntry{Mutation: m, LocalID: task.ID}); err != nil {
		return nil, err
	}
	s.emit(Event{Kind: EventTaskUpserted, Action: backend.ActionAdd, Task: task, Tasks: tasks, Mode: mode})
	return &task, nil
}

// Toggle flips a task's completed flag. It returns false when ref does not resolve.
func (s *Synchronizer) Toggle(ctx context.Context, ref backend.Ref) (bool, error) {
	return s.mutate(ctx, ref, backend.Mutation{Action: backend.ActionToggle}, backend.TaskUpdate{})
}

// Delete removes a task. It returns false when ref does not resolve.
func (s *Synchronizer) Delete(ctx context.Context, ref backend.Ref) (bool, error) {
	return s.mutate(ctx, ref, backend.Mutation{Action: backend.ActionDelete}, backend.TaskUpdate{})
}

// Edit replaces a task's text. Blank text is rejected with utils.ErrValidation.
// It returns false when ref does not resolve.
func (s *Synchronizer) Edit(ctx context.Context, ref backend.Ref, text string) (bool, error) {
	return s.EditFields(ctx, ref, backend.TaskUpdate{Text: &text})
}

// EditFields changes the fields set in update and keeps the rest. A text
// change must not be blank, and an empty update is rejected; both fail with
// utils.ErrValidation. It returns false when ref does not resolve.
func (s *Synchronizer) EditFields(ctx context.Context, ref backend.Ref, update backend.TaskUpdate) (bool, error) {
	if update.IsEmpty() {
		return false, fmt.Errorf("%w: nothing to change", utils.ErrValidation)
	}
	if update.Text != nil {
		text, err := utils.NormalizeText(*update.Text)
		if err != nil {
			return false, err
		}
		update.Text = &text
	}
	return s.mutate(ctx, ref, backend.Mutation{Action: backend.ActionEdit}, update)
}

// Reorder moves the listed ids to the front in the given order. Unknown and
// repeated ids are ignored. It returns false when the order would not change.
func (s *Synchronizer) Reorder(ctx context.Context, ids []int64) (bool, error) {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	if err := s.begin(ctx); err != nil {
		return false, err
	}

	mode, gen := s.modeAndGeneration()
	if mode == ModeOnline {
		current := s.Tasks()
		order := reorderIDs(current, ids)
		if sameOrder(current, order) {
			return false, nil
		}

		m := backend.Mutation{Action: backend.ActionReorder, Order: backend.IDs(order)}
		tasks, err := s.callRemote(ctx, gen, func(ctx context.Context) ([]backend.Task, error) {
			return s.remote.Apply(ctx, m)
		})
		if err != nil {
			return false, err
		}
		s.commitRemote(ctx, tasks)
		s.emit(Event{Kind: EventReordered, Action: backend.ActionReorder, Tasks: tasks, Mode: mode})
		return true, nil
	}

	current, err := s.readTasks(ctx)
	if err != nil {
		return false, err
	}
	order := reorderIDs(current, ids)
	if sameOrder(current, order) {
		return false, nil
	}

	m := backend.Mutation{Action: backend.ActionReorder, Order: backend.IDs(order)}
	if err := s.commitOffline(ctx, order, journalEntry{Mutation: m}); err != nil {
		return false, err
	}
	s.emit(Event{Kind: EventReordered, Action: backend.ActionReorder, Tasks: order, Mode: mode})
	return true, nil
}

// mutate runs a ref-addressed toggle, edit or delete. update is only read for edits.
func (s *Synchronizer) mutate(ctx context.Context, ref backend.Ref, m backend.Mutation, update backend.TaskUpdate) (bool, error) {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	if err := s.begin(ctx); err != nil {
		return false, err
	}

	kind := EventTaskUpserted
	if m.Action == backend.ActionDelete {
		kind = EventTaskRemoved
	}

	mode, gen := s.modeAndGeneration()
	if mode == ModeOnline {
		current := s.Tasks()
		idx := ref.Resolve(current)
		if idx < 0 {
			return false, nil
		}
		target := current[idx]
		m = addressed(m, update, target, idx)

		tasks, err := s.callRemote(ctx, gen, func(ctx context.Context) ([]backend.Task, error) {
			return s.remote.Apply(ctx, m)
		})
		if err != nil {
			return false, err
		}
		s.commitRemote(ctx, tasks)

		affected := target
		if kind == EventTaskUpserted {
			if updated, ok := locate(tasks, target.ID, idx); ok {
				affected = updated
			}
		}
		s.emit(Event{Kind: kind, Action: m.Action, Task: affected, Tasks: tasks, Mode: mode})
		return true, nil
	}

	current, err := s.readTasks(ctx)
	if err != nil {
		return false, err
	}
	idx := ref.Resolve(current)
	if idx < 0 {
		return false, nil
	}
	m = addressed(m, update, current[idx], idx)

	tasks, affected, _ := applyLocal(current, m)
	if err := s.commitOffline(ctx, tasks, journalEntry{Mutation: m, Position: idx}); err != nil {
		return false, err
	}
	s.emit(Event{Kind: kind, Action: m.Action, Task: affected, Tasks: tasks, Mode: mode})
	return true, nil
}

// addressed points m at target by id and position. Edits carry the target's
// full field set with update applied.
func addressed(m backend.Mutation, update backend.TaskUpdate, target backend.Task, idx int) backend.Mutation {
	m.Ref = backend.ByID(target.ID)
	m.Position = idx
	if m.Action == backend.ActionEdit {
		m.Task = update.Apply(target)
	}
	return m
}

// reconcile brings memory and cache in line with the store after a
// reconnection. Called with opMu held.
func (s *Synchronizer) reconcile(ctx context.Context) error {
	_, gen := s.modeAndGeneration()

	if s.policy == PolicyReplay {
		if err := s.replay(ctx, gen); err != nil {
			s.markReconnect()
			return err
		}
	} else if err := s.clearJournal(ctx); err != nil {
		s.log.Warn("Could not clear pending changes: %v", err)
	}

	tasks, err := s.callRemote(ctx, gen, s.remote.Fetch)
	if err != nil {
		s.markReconnect()
		return err
	}
	s.commitRemote(ctx, tasks)
	s.emit(Event{Kind: EventReloaded, Tasks: tasks, Source: SourceRemote, Mode: ModeOnline})
	return nil
}

// callRemote runs fn under the request timeout. A response that arrives after
// a mode transition is discarded with utils.ErrStaleResponse.
func (s *Synchronizer) callRemote(ctx context.Context, gen uint64, fn func(context.Context) ([]backend.Task, error)) ([]backend.Task, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	tasks, err := fn(ctx)
	if s.currentGeneration() != gen {
		s.log.Warn("Discarding task store response received after a connectivity change")
		return nil, utils.ErrStaleResponse
	}
	if err != nil {
		return nil, err
	}
	return tasks, nil
}

// commit replaces the in-memory collection.
func (s *Synchronizer) commit(tasks []backend.Task) {
	if tasks == nil {
		tasks = []backend.Task{}
	}
	s.stateMu.Lock()
	s.tasks = backend.Clone(tasks)
	s.stateMu.Unlock()
	s.loaded = true
}

// commitRemote adopts the store's collection and mirrors it into the cache.
// A cache failure here is logged only; memory follows the store.
func (s *Synchronizer) commitRemote(ctx context.Context, tasks []backend.Task) {
	s.commit(tasks)
	if err := s.writeTasks(ctx, tasks); err != nil {
		s.log.Warn("Task store updated but local cache write failed: %v", err)
	}
}

// commitOffline writes tasks to the cache, journals the change and adopts tasks.
func (s *Synchronizer) commitOffline(ctx context.Context, tasks []backend.Task, entry journalEntry) error {
	if err := s.writeTasks(ctx, tasks); err != nil {
		return err
	}
	entry.At = s.now()
	if err := s.appendJournal(ctx, entry); err != nil {
		s.log.Warn("Saved locally but could not journal the change: %v", err)
	}
	s.commit(tasks)
	return nil
}

// readTasks returns the cached collection. Corrupt contents read as empty.
func (s *Synchronizer) readTasks(ctx context.Context) ([]backend.Task, error) {
	data, ok, err := s.cache.Get(ctx, backend.KeyTasks)
	if err != nil {
		return nil, fmt.Errorf("failed to read local cache: %w", err)
	}
	if !ok {
		return []backend.Task{}, nil
	}

	var tasks []backend.Task
	if err := json.Unmarshal(data, &tasks); err != nil {
		s.log.Warn("%v", fmt.Errorf("%w: %s: %v (treating as empty)", utils.ErrCacheCorrupt, backend.KeyTasks, err))
		return []backend.Task{}, nil
	}
	return backend.Normalize(tasks, s.now()), nil
}

func (s *Synchronizer) writeTasks(ctx context.Context, tasks []backend.Task) error {
	if tasks == nil {
		tasks = []backend.Task{}
	}
	data, err := json.Marshal(tasks)
	if err != nil {
		return err
	}
	if err := s.cache.Put(ctx, backend.KeyTasks, data); err != nil {
		return fmt.Errorf("failed to write local cache: %w", err)
	}
	return nil
}

// probe refreshes the mode from the prober, if one is configured.
func (s *Synchronizer) probe(ctx context.Context) {
	if s.prober == nil {
		return
	}
	s.setMode(s.prober.Probe(ctx))
}

// setMode records a connectivity signal and reports whether the mode changed.
func (s *Synchronizer) setMode(online bool) bool {
	next := ModeOffline
	if online {
		next = ModeOnline
	}

	s.stateMu.Lock()
	if s.mode == next {
		s.stateMu.Unlock()
		return false
	}
	s.mode = next
	s.generation++
	if next == ModeOnline {
		s.pendingReconnect = true
	}
	tasks := backend.Clone(s.tasks)
	s.stateMu.Unlock()

	s.log.Debug("Connectivity changed: now %s", next)
	s.emit(Event{Kind: EventModeChanged, Tasks: tasks, Mode: next})
	return true
}

func (s *Synchronizer) takeReconnect() bool {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	pending := s.pendingReconnect && s.mode == ModeOnline
	s.pendingReconnect = false
	return pending
}

func (s *Synchronizer) markReconnect() {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	s.pendingReconnect = true
}

func (s *Synchronizer) modeAndGeneration() (Mode, uint64) {
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()
	return s.mode, s.generation
}

func (s *Synchronizer) currentGeneration() uint64 {
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()
	return s.generation
}

func (s *Synchronizer) emit(e Event) {
	for _, l := range s.listeners {
		l.HandleEvent(e)
	}
}
