// Package board owns the in-memory task collection and keeps it synchronized
// with the remote fragment store. Mutations are applied through a narrow set
// of entry points; the rendering layer and the tool bridge both read through
// the same query accessors and never touch raw collection state.
//
// The consistency model is "eventually reconciled": overlapping mutations
// race at the remote store, and any divergence is corrected by an
// authoritative full reload, never by speculative retries or field-level
// rollback.
package board

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"fragboard/internal/codec"
	"fragboard/internal/fragment"
	"fragboard/internal/observability"
	"fragboard/internal/sortkey"
	"fragboard/pkg/models"
)

var (
	// ErrSyncUnavailable marks a failed remote call. The local cache is
	// either untouched (loads) or reconciled by reload (moves).
	ErrSyncUnavailable = errors.New("board sync unavailable")

	// ErrNotFound marks a task ID absent from the cache.
	ErrNotFound = errors.New("task not found")
)

// Config selects which fragments belong to this board.
type Config struct {
	Workspace    string
	FragmentType string
	ListLimit    int
}

// Fields carries the optional task fields for create and update calls. Nil
// pointers leave the corresponding field unchanged (update) or defaulted
// (create).
type Fields struct {
	Title    *string
	Summary  *string
	Tags     []string
	Status   *models.Status
	Priority *models.Priority
	Body     *string
}

// Engine is the sync engine. One instance owns the board's task cache.
type Engine struct {
	mu     sync.Mutex
	store  fragment.Store
	alloc  *sortkey.Allocator
	cfg    Config
	events observability.EventLog
	cache  []models.Task
}

// New creates an Engine. events may be nil to disable event logging.
func New(store fragment.Store, alloc *sortkey.Allocator, cfg Config, events observability.EventLog) *Engine {
	if events == nil {
		events = observability.Nop()
	}
	return &Engine{store: store, alloc: alloc, cfg: cfg, events: events}
}

// Reconfigure swaps the board selection settings. The cache keeps its current
// contents until the next Load.
func (e *Engine) Reconfigure(cfg Config) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cfg = cfg
}

func (e *Engine) listOptions() fragment.ListOptions {
	return fragment.ListOptions{
		Workspace: e.cfg.Workspace,
		Type:      e.cfg.FragmentType,
		Limit:     e.cfg.ListLimit,
	}
}

// Load fetches all board fragments and replaces the cache wholesale. On
// transport failure the cache is left unchanged and the error wraps
// ErrSyncUnavailable.
func (e *Engine) Load(ctx context.Context) error {
	e.mu.Lock()
	opts := e.listOptions()
	e.mu.Unlock()

	frags, err := e.store.List(ctx, opts)
	if err != nil {
		e.logSyncFailure("load", err)
		return fmt.Errorf("loading board: %w: %v", ErrSyncUnavailable, err)
	}

	e.mu.Lock()
	e.cache = tasksFromFragments(frags)
	n := len(e.cache)
	e.mu.Unlock()

	_ = e.events.Write(observability.Event{
		Level: "INFO", Type: observability.EventSyncReloaded,
		Message: "board reloaded",
		Data:    map[string]any{"tasks": n},
	})
	return nil
}

// ReloadIfChanged fetches the board and replaces the cache only when the
// fetched list differs from the cached one, reporting whether it did. Used by
// the silent poller to avoid redundant re-renders and cross-frame pushes.
func (e *Engine) ReloadIfChanged(ctx context.Context) (bool, error) {
	e.mu.Lock()
	opts := e.listOptions()
	e.mu.Unlock()

	frags, err := e.store.List(ctx, opts)
	if err != nil {
		return false, fmt.Errorf("silent reload: %w: %v", ErrSyncUnavailable, err)
	}
	fresh := tasksFromFragments(frags)

	e.mu.Lock()
	defer e.mu.Unlock()
	if sameTasks(e.cache, fresh) {
		return false, nil
	}
	e.cache = fresh
	return true, nil
}

// Create encodes the fields, stores a new fragment, and appends the returned
// task (with its server-assigned ID) to the cache. The sort key is allocated
// at the end of the target status column.
func (e *Engine) Create(ctx context.Context, f Fields) (*models.Task, error) {
	title := strings.TrimSpace(deref(f.Title))
	if title == "" {
		return nil, fmt.Errorf("creating task: title must not be empty")
	}

	status := models.StatusTodo
	if f.Status != nil {
		status = *f.Status
	}
	priority := models.PriorityMedium
	if f.Priority != nil {
		priority = *f.Priority
	}

	e.mu.Lock()
	prev := e.lastSortInGroupLocked(status, "")
	key := e.alloc.Allocate(prev, nil)
	opts := e.listOptions()
	e.mu.Unlock()

	raw := codec.Encode(status, priority, key, deref(f.Body))
	frag := fragment.Fragment{
		Workspace: opts.Workspace,
		Type:      opts.Type,
		Title:     title,
		Summary:   deref(f.Summary),
		Content:   raw,
		Tags:      models.NormalizeTags(f.Tags),
	}

	created, err := e.store.Create(ctx, frag)
	if err != nil {
		e.logSyncFailure("create", err)
		return nil, fmt.Errorf("creating task: %w: %v", ErrSyncUnavailable, err)
	}
	if created.Content == "" {
		created.Content = raw
	}
	task := taskFromFragment(*created)

	e.mu.Lock()
	e.cache = append(e.cache, task)
	e.mu.Unlock()

	_ = e.events.Write(observability.Event{
		Level: "INFO", Type: observability.EventTaskCreated,
		Message: "task created",
		Data:    map[string]any{"id": task.ID, "status": string(status)},
	})
	return &task, nil
}

// Update re-encodes the task with the given fields and pushes it to the
// store; on success the cached task is patched in place so derived state
// reflects the change without another round trip. The task's status group
// position (sort key) is preserved.
func (e *Engine) Update(ctx context.Context, id string, f Fields) (*models.Task, error) {
	e.mu.Lock()
	idx := e.indexOfLocked(id)
	if idx < 0 {
		e.mu.Unlock()
		return nil, fmt.Errorf("updating task %s: %w", id, ErrNotFound)
	}
	current := e.cache[idx]
	e.mu.Unlock()

	parsed := codec.Decode(current.RawContent)
	if f.Status != nil {
		parsed.Status = *f.Status
	}
	if f.Priority != nil {
		parsed.Priority = *f.Priority
	}
	if f.Body != nil {
		parsed.Body = *f.Body
	}

	next := current
	if f.Title != nil && strings.TrimSpace(*f.Title) != "" {
		next.Title = strings.TrimSpace(*f.Title)
	}
	if f.Summary != nil {
		next.Summary = *f.Summary
	}
	if f.Tags != nil {
		next.Tags = models.NormalizeTags(f.Tags)
	}
	next.RawContent = codec.EncodeParsed(parsed)

	if _, err := e.store.Update(ctx, id, e.fragmentFromTask(next)); err != nil {
		e.logSyncFailure("update", err)
		return nil, fmt.Errorf("updating task %s: %w: %v", id, ErrSyncUnavailable, err)
	}

	e.mu.Lock()
	if idx := e.indexOfLocked(id); idx >= 0 {
		e.cache[idx] = next
	}
	e.mu.Unlock()

	_ = e.events.Write(observability.Event{
		Level: "INFO", Type: observability.EventTaskUpdated,
		Message: "task updated",
		Data:    map[string]any{"id": id},
	})
	return &next, nil
}

// MoveOrReorder moves a task to newStatus at dropIndex within that status
// group. The new sort key comes from the neighbors at the drop position,
// excluding the task being moved. When neither status nor sort key would
// change, no remote call is issued. The local mutation is committed before
// the remote call; if the store rejects it, the optimistic state is discarded
// by an authoritative reload.
func (e *Engine) MoveOrReorder(ctx context.Context, id string, newStatus models.Status, dropIndex int) error {
	e.mu.Lock()
	idx := e.indexOfLocked(id)
	if idx < 0 {
		e.mu.Unlock()
		return fmt.Errorf("moving task %s: %w", id, ErrNotFound)
	}
	task := e.cache[idx]
	parsed := codec.Decode(task.RawContent)

	group := e.groupLocked(newStatus, id)
	if dropIndex < 0 {
		dropIndex = 0
	}
	if dropIndex > len(group) {
		dropIndex = len(group)
	}

	var prev, next *int
	if dropIndex > 0 {
		k := codec.Decode(group[dropIndex-1].RawContent).Sort
		prev = &k
	}
	if dropIndex < len(group) {
		k := codec.Decode(group[dropIndex].RawContent).Sort
		next = &k
	}
	newKey := e.alloc.Allocate(prev, next)

	if newStatus == parsed.Status && newKey == parsed.Sort {
		e.mu.Unlock()
		return nil
	}

	oldStatus := parsed.Status
	parsed.Status = newStatus
	parsed.Sort = newKey
	task.RawContent = codec.EncodeParsed(parsed)

	// Optimistic commit: the board reflects the move before the store
	// confirms it.
	e.cache[idx] = task
	e.mu.Unlock()

	if _, err := e.store.Update(ctx, id, e.fragmentFromTask(task)); err != nil {
		e.logSyncFailure("move", err)
		// Discard the optimistic state and resynchronize with ground truth.
		if lerr := e.Load(ctx); lerr != nil {
			return fmt.Errorf("moving task %s: %w: %v (reload also failed: %v)", id, ErrSyncUnavailable, err, lerr)
		}
		return fmt.Errorf("moving task %s: %w: %v", id, ErrSyncUnavailable, err)
	}

	_ = e.events.Write(observability.Event{
		Level: "INFO", Type: observability.EventTaskMoved,
		Message: "task moved",
		Data: map[string]any{
			"id": id, "from": string(oldStatus), "to": string(newStatus), "sort": newKey,
		},
	})
	return nil
}

// SoftDelete marks a task deleted. The fragment stays in the remote store;
// every listing, grouping, count, and neighbor calculation excludes it from
// then on.
func (e *Engine) SoftDelete(ctx context.Context, id string) error {
	deleted := models.StatusDeleted
	if _, err := e.Update(ctx, id, Fields{Status: &deleted}); err != nil {
		return fmt.Errorf("deleting task: %w", err)
	}
	_ = e.events.Write(observability.Event{
		Level: "INFO", Type: observability.EventTaskDeleted,
		Message: "task soft-deleted",
		Data:    map[string]any{"id": id},
	})
	return nil
}

// Get returns the cached task with the given ID, including soft-deleted
// tasks: a deleted task is hidden from views but remains fetchable by ID.
func (e *Engine) Get(id string) (*models.Task, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if idx := e.indexOfLocked(id); idx >= 0 {
		t := e.cache[idx]
		return &t, nil
	}
	return nil, fmt.Errorf("getting task %s: %w", id, ErrNotFound)
}

// Tasks returns the non-deleted tasks in cache order.
func (e *Engine) Tasks() []models.Task {
	e.mu.Lock()
	defer e.mu.Unlock()
	var out []models.Task
	for _, t := range e.cache {
		if codec.Decode(t.RawContent).Status != models.StatusDeleted {
			out = append(out, t)
		}
	}
	return out
}

// Grouped partitions the non-deleted cache by status, each group ordered
// ascending by sort key. Unrecognized statuses decode to todo, so every
// visible task lands in exactly one column.
func (e *Engine) Grouped() map[models.Status][]models.Task {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make(map[models.Status][]models.Task, len(models.BoardStatuses))
	for _, s := range models.BoardStatuses {
		out[s] = e.groupLocked(s, "")
	}
	return out
}

// Counts returns per-column task counts, excluding deleted tasks.
func (e *Engine) Counts() map[models.Status]int {
	grouped := e.Grouped()
	out := make(map[models.Status]int, len(grouped))
	for s, tasks := range grouped {
		out[s] = len(tasks)
	}
	return out
}

// ContextDigest renders a text digest of all non-deleted tasks grouped by
// status, pushed to the embedded agent surface as board context.
func (e *Engine) ContextDigest() string {
	grouped := e.Grouped()

	var b strings.Builder
	total := 0
	for _, s := range models.BoardStatuses {
		total += len(grouped[s])
	}
	fmt.Fprintf(&b, "Task board (%d tasks)\n", total)

	for _, s := range models.BoardStatuses {
		fmt.Fprintf(&b, "\n## %s (%d)\n", statusLabel(s), len(grouped[s]))
		for _, t := range grouped[s] {
			p := codec.Decode(t.RawContent)
			fmt.Fprintf(&b, "- %s: %s [%s]", t.ID, t.Title, p.Priority)
			if t.Summary != "" {
				fmt.Fprintf(&b, " — %s", t.Summary)
			}
			b.WriteByte('\n')
		}
	}
	return b.String()
}

// --- internals ---

// groupLocked returns the non-deleted tasks whose effective status is s,
// excluding excludeID, ordered ascending by sort key. Callers hold e.mu.
func (e *Engine) groupLocked(s models.Status, excludeID string) []models.Task {
	type entry struct {
		task models.Task
		sort int
	}
	var entries []entry
	for _, t := range e.cache {
		if t.ID == excludeID {
			continue
		}
		p := codec.Decode(t.RawContent)
		if p.Status == models.StatusDeleted {
			continue
		}
		if p.Status == s {
			entries = append(entries, entry{t, p.Sort})
		}
	}
	sort.SliceStable(entries, func(i, j int) bool { return entries[i].sort < entries[j].sort })

	out := make([]models.Task, len(entries))
	for i, en := range entries {
		out[i] = en.task
	}
	return out
}

// lastSortInGroupLocked returns a pointer to the highest sort key in the
// status group (excluding excludeID), or nil when the group is empty.
func (e *Engine) lastSortInGroupLocked(s models.Status, excludeID string) *int {
	group := e.groupLocked(s, excludeID)
	if len(group) == 0 {
		return nil
	}
	k := codec.Decode(group[len(group)-1].RawContent).Sort
	return &k
}

func (e *Engine) indexOfLocked(id string) int {
	for i, t := range e.cache {
		if t.ID == id {
			return i
		}
	}
	return -1
}

func (e *Engine) fragmentFromTask(t models.Task) fragment.Fragment {
	e.mu.Lock()
	opts := e.listOptions()
	e.mu.Unlock()
	return fragment.Fragment{
		ID:        t.ID,
		Workspace: opts.Workspace,
		Type:      opts.Type,
		Title:     t.Title,
		Summary:   t.Summary,
		Content:   t.RawContent,
		Tags:      t.Tags,
	}
}

func (e *Engine) logSyncFailure(op string, err error) {
	_ = e.events.Write(observability.Event{
		Level: "ERROR", Type: observability.EventSyncFailed,
		Message: "remote call failed",
		Data:    map[string]any{"op": op, "error": err.Error()},
	})
}

func taskFromFragment(f fragment.Fragment) models.Task {
	return models.Task{
		ID:         f.ID,
		Title:      f.Title,
		Summary:    f.Summary,
		Tags:       f.Tags,
		RawContent: f.Content,
	}
}

func tasksFromFragments(frags []fragment.Fragment) []models.Task {
	out := make([]models.Task, len(frags))
	for i, f := range frags {
		out[i] = taskFromFragment(f)
	}
	return out
}

func sameTasks(a, b []models.Task) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].ID != b[i].ID || a[i].RawContent != b[i].RawContent ||
			a[i].Title != b[i].Title || a[i].Summary != b[i].Summary ||
			!sameStrings(a[i].Tags, b[i].Tags) {
			return false
		}
	}
	return true
}

func sameStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func statusLabel(s models.Status) string {
	switch s {
	case models.StatusTodo:
		return "To Do"
	case models.StatusInProgress:
		return "In Progress"
	case models.StatusDone:
		return "Done"
	default:
		return string(s)
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
