package goals

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Registry is the in-memory working set of the goal graph. All mutation goes
// through its methods; callers receive Clone() snapshots, never live
// pointers. A configured Store is consulted on cache misses and written
// behind asynchronously, best-effort.
type Registry struct {
	mu sync.RWMutex

	goals map[string]*Goal
	edges []DependencyEdge
	store Store

	subscribers map[int]chan Event
	nextSubID   int
}

func NewRegistry() *Registry {
	return &Registry{
		goals:       make(map[string]*Goal),
		subscribers: make(map[int]chan Event),
	}
}

// SetStore attaches the durable store and rehydrates the dependency edge
// overlay from it. Goals themselves come back lazily, on Get misses and
// on List.
func (r *Registry) SetStore(store Store) {
	r.mu.Lock()
	r.store = store
	r.mu.Unlock()
	if store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	edges, err := store.ListEdges(ctx)
	if err != nil || len(edges) == 0 {
		return
	}
	r.mu.Lock()
	if len(r.edges) == 0 {
		r.edges = append([]DependencyEdge(nil), edges...)
	}
	r.mu.Unlock()
}

// Subscribe returns a channel of registry events and a cancel func.
// Slow consumers drop events rather than blocking mutation.
func (r *Registry) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, 256)
	r.mu.Lock()
	r.nextSubID++
	id := r.nextSubID
	r.subscribers[id] = ch
	r.mu.Unlock()

	return ch, func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		if c, ok := r.subscribers[id]; ok {
			delete(r.subscribers, id)
			close(c)
		}
	}
}

// Insert adds a new goal, linking it under its parent when ParentID is set.
// Missing id and timestamps are filled in.
func (r *Registry) Insert(g Goal) Goal {
	now := time.Now().UTC()
	if strings.TrimSpace(g.ID) == "" {
		g.ID = uuid.NewString()
	}
	if g.Kind == "" {
		g.Kind = KindGoal
	}
	if g.Priority == "" {
		g.Priority = PriorityLater
	}
	if g.State == "" {
		g.State = StateDraft
	}
	g.Progress = ClampProgress(g.Progress)
	if g.CreatedAt.IsZero() {
		g.CreatedAt = now
	}
	if g.UpdatedAt.IsZero() {
		g.UpdatedAt = now
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if g.ParentID != "" {
		if parent, ok := r.goals[g.ParentID]; ok {
			g.OrderIndex = len(parent.ChildIDs)
			parent.ChildIDs = append(parent.ChildIDs, g.ID)
			parent.UpdatedAt = now
			r.persistLocked(parent.Clone())
		}
	}

	stored := g.Clone()
	r.goals[g.ID] = &stored
	r.persistLocked(g.Clone())
	r.publishLocked(Event{Type: EventGoalCreated, GoalID: g.ID, Title: g.Title, At: now})
	return g
}

// Get resolves a goal from the working set first, then the durable store.
func (r *Registry) Get(id string) (Goal, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return Goal{}, ErrNotFound
	}
	r.mu.RLock()
	g, ok := r.goals[id]
	var snapshot Goal
	if ok {
		snapshot = g.Clone()
	}
	store := r.store
	r.mu.RUnlock()
	if ok {
		return snapshot, nil
	}
	if store == nil {
		return Goal{}, ErrNotFound
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	persisted, err := store.GetGoal(ctx, id)
	if err != nil {
		if errors.Is(err, ErrStoreNotFound) {
			return Goal{}, ErrNotFound
		}
		return Goal{}, err
	}
	r.mu.Lock()
	cached := persisted.Clone()
	r.goals[persisted.ID] = &cached
	r.mu.Unlock()
	return persisted.Clone(), nil
}

// Resolve looks up each id, silently skipping any that cannot be found.
func (r *Registry) Resolve(ids []string) []Goal {
	out := make([]Goal, 0, len(ids))
	for _, id := range ids {
		if g, err := r.Get(id); err == nil {
			out = append(out, g)
		}
	}
	return out
}

// Update applies fn to the goal under the registry lock, clamps progress,
// stamps UpdatedAt, persists, and publishes evt when non-empty. fn runs
// against a scratch copy: a callback that mutates and then fails leaves
// the working set untouched.
func (r *Registry) Update(id string, evt EventType, fn func(*Goal) error) (Goal, error) {
	id = strings.TrimSpace(id)
	now := time.Now().UTC()

	r.mu.Lock()
	defer r.mu.Unlock()

	g, ok := r.goals[id]
	if !ok {
		return Goal{}, ErrNotFound
	}
	next := g.Clone()
	if err := fn(&next); err != nil {
		return Goal{}, err
	}
	next.Progress = ClampProgress(next.Progress)
	next.UpdatedAt = now
	*g = next
	r.persistLocked(g.Clone())
	if evt != "" {
		r.publishLocked(Event{Type: evt, GoalID: g.ID, Title: g.Title, At: now})
	}
	return g.Clone(), nil
}

// ReplaceSessions swaps a goal's session links in one commit. UpdatedAt is
// stamped only when stamp is true, so a no-op maintainer pass leaves the
// goal untouched.
func (r *Registry) ReplaceSessions(id string, links []SessionLink, stamp bool) (Goal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	g, ok := r.goals[strings.TrimSpace(id)]
	if !ok {
		return Goal{}, ErrNotFound
	}
	g.Sessions = append([]SessionLink(nil), links...)
	if stamp {
		g.UpdatedAt = time.Now().UTC()
		r.persistLocked(g.Clone())
		r.publishLocked(Event{Type: EventSessionsChanged, GoalID: g.ID, Title: g.Title, At: g.UpdatedAt})
	}
	return g.Clone(), nil
}

// Children returns a goal's children in child-list order.
func (r *Registry) Children(id string) []Goal {
	r.mu.RLock()
	defer r.mu.RUnlock()
	g, ok := r.goals[strings.TrimSpace(id)]
	if !ok {
		return nil
	}
	out := make([]Goal, 0, len(g.ChildIDs))
	for _, cid := range g.ChildIDs {
		if c, ok := r.goals[cid]; ok {
			out = append(out, c.Clone())
		}
	}
	return out
}

// List returns up to limit goals, newest first. limit <= 0 means all.
// Persisted goals absent from the working set are merged in and cached,
// so a restarted process still lists what the store holds; on a store
// conflict the working set wins.
func (r *Registry) List(limit int) []Goal {
	r.mu.RLock()
	store := r.store
	out := make([]Goal, 0, len(r.goals))
	for _, g := range r.goals {
		out = append(out, g.Clone())
	}
	r.mu.RUnlock()

	if store != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		persisted, err := store.ListGoals(ctx, 0)
		cancel()
		if err == nil {
			merged := make(map[string]Goal, len(persisted)+len(out))
			for _, g := range persisted {
				merged[g.ID] = g
			}
			for _, g := range out {
				merged[g.ID] = g
			}
			out = out[:0]
			r.mu.Lock()
			for _, g := range merged {
				if _, ok := r.goals[g.ID]; !ok {
					cached := g.Clone()
					r.goals[g.ID] = &cached
				}
				out = append(out, g)
			}
			r.mu.Unlock()
		}
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out
}

// ActiveGoals returns active, unfinished goals for the maintainer.
func (r *Registry) ActiveGoals() []Goal {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Goal, 0)
	for _, g := range r.goals {
		if g.State == StateActive && g.Progress < 1.0 {
			out = append(out, g.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// Delete removes a goal and, depth-first, all of its descendants, along with
// every dependency edge touching them. It returns the deleted ids, children
// before parents.
func (r *Registry) Delete(id string) ([]string, error) {
	id = strings.TrimSpace(id)
	now := time.Now().UTC()

	r.mu.Lock()
	defer r.mu.Unlock()

	target, ok := r.goals[id]
	if !ok {
		return nil, ErrNotFound
	}

	var order []string
	var walk func(gid string)
	walk = func(gid string) {
		g, ok := r.goals[gid]
		if !ok {
			return
		}
		for _, cid := range g.ChildIDs {
			walk(cid)
		}
		order = append(order, gid)
	}
	walk(id)

	if target.ParentID != "" {
		if parent, ok := r.goals[target.ParentID]; ok {
			parent.ChildIDs = removeID(parent.ChildIDs, id)
			parent.UpdatedAt = now
			r.persistLocked(parent.Clone())
		}
	}

	doomed := make(map[string]bool, len(order))
	for _, gid := range order {
		doomed[gid] = true
	}
	kept := r.edges[:0]
	for _, e := range r.edges {
		if doomed[e.PrerequisiteID] || doomed[e.DependentID] {
			continue
		}
		kept = append(kept, e)
	}
	changedEdges := len(kept) != len(r.edges)
	r.edges = append([]DependencyEdge(nil), kept...)

	title := target.Title
	for _, gid := range order {
		delete(r.goals, gid)
		r.persistDeleteLocked(gid)
	}
	if changedEdges {
		r.persistEdgesLocked()
	}
	r.publishLocked(Event{Type: EventGoalDeleted, GoalID: id, Title: title, At: now})
	return order, nil
}

// Reparent moves a child under a new parent, appending it after the parent's
// existing children.
func (r *Registry) Reparent(childID, newParentID string) error {
	now := time.Now().UTC()

	r.mu.Lock()
	defer r.mu.Unlock()

	child, ok := r.goals[strings.TrimSpace(childID)]
	if !ok {
		return ErrNotFound
	}
	parent, ok := r.goals[strings.TrimSpace(newParentID)]
	if !ok {
		return ErrNotFound
	}
	if child.ParentID == parent.ID {
		return nil
	}
	if old, ok := r.goals[child.ParentID]; ok {
		old.ChildIDs = removeID(old.ChildIDs, child.ID)
		old.UpdatedAt = now
		r.persistLocked(old.Clone())
	}
	child.ParentID = parent.ID
	child.OrderIndex = len(parent.ChildIDs)
	child.UpdatedAt = now
	parent.ChildIDs = append(parent.ChildIDs, child.ID)
	parent.UpdatedAt = now
	r.persistLocked(child.Clone())
	r.persistLocked(parent.Clone())
	return nil
}

// Reorder assigns order indexes following the given id list, skipping
// unresolved ids, and returns how many goals were repositioned.
func (r *Registry) Reorder(ids []string) int {
	now := time.Now().UTC()

	r.mu.Lock()
	defer r.mu.Unlock()

	count := 0
	for i, id := range ids {
		g, ok := r.goals[strings.TrimSpace(id)]
		if !ok {
			continue
		}
		if g.OrderIndex != i {
			g.OrderIndex = i
			g.UpdatedAt = now
			r.persistLocked(g.Clone())
		}
		count++
	}
	if count > 0 {
		r.publishLocked(Event{Type: EventGoalUpdated, GoalID: "", Detail: "reordered", At: now})
	}
	return count
}

func (r *Registry) publishLocked(evt Event) {
	for _, ch := range r.subscribers {
		select {
		case ch <- evt:
		default:
		}
	}
}

func (r *Registry) persistLocked(g Goal) {
	store := r.store
	if store == nil {
		return
	}
	go func(snapshot Goal) {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = store.SaveGoal(ctx, snapshot)
	}(g)
}

func (r *Registry) persistDeleteLocked(id string) {
	store := r.store
	if store == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = store.DeleteGoal(ctx, id)
	}()
}

func (r *Registry) persistEdgesLocked() {
	store := r.store
	if store == nil {
		return
	}
	edges := append([]DependencyEdge(nil), r.edges...)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = store.ReplaceEdges(ctx, edges)
	}()
}

// StampRevision appends a revision entry to the goal. Callers run it inside
// a registry Update.
func (g *Goal) StampRevision(summary, rationale string, snap *Snapshot, at time.Time) {
	g.Revisions = append(g.Revisions, Revision{
		ID:        uuid.NewString(),
		Summary:   summary,
		Rationale: rationale,
		At:        at,
		Snapshot:  snap,
	})
}

func removeID(ids []string, id string) []string {
	out := ids[:0]
	for _, v := range ids {
		if v == id {
			continue
		}
		out = append(out, v)
	}
	return append([]string(nil), out...)
}
