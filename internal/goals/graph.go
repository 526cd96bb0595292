package goals

import (
	"fmt"
	"sort"
	"strings"
)

// AddEdge records a dependency edge. Self-loops, duplicates, and edges whose
// endpoints are unknown are rejected; the return value reports whether the
// edge was added.
func (r *Registry) AddEdge(e DependencyEdge) bool {
	e.PrerequisiteID = strings.TrimSpace(e.PrerequisiteID)
	e.DependentID = strings.TrimSpace(e.DependentID)
	if e.Kind == "" {
		e.Kind = DepFinishToStart
	}
	if e.PrerequisiteID == "" || e.DependentID == "" || e.PrerequisiteID == e.DependentID {
		return false
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.goals[e.PrerequisiteID]; !ok {
		return false
	}
	if _, ok := r.goals[e.DependentID]; !ok {
		return false
	}
	for _, existing := range r.edges {
		if existing.PrerequisiteID == e.PrerequisiteID && existing.DependentID == e.DependentID {
			return false
		}
	}
	r.edges = append(r.edges, e)
	r.persistEdgesLocked()
	return true
}

// Edges returns a snapshot of all dependency edges.
func (r *Registry) Edges() []DependencyEdge {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]DependencyEdge(nil), r.edges...)
}

// EdgesTouching returns edges where the goal appears on either side.
func (r *Registry) EdgesTouching(id string) []DependencyEdge {
	id = strings.TrimSpace(id)
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]DependencyEdge, 0)
	for _, e := range r.edges {
		if e.PrerequisiteID == id || e.DependentID == id {
			out = append(out, e)
		}
	}
	return out
}

// RetargetEdges re-points every edge referencing fromID at toID, dropping
// self-loops and duplicates produced by the rewrite.
func (r *Registry) RetargetEdges(fromID, toID string) {
	fromID = strings.TrimSpace(fromID)
	toID = strings.TrimSpace(toID)
	if fromID == "" || toID == "" || fromID == toID {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	seen := make(map[string]bool, len(r.edges))
	out := r.edges[:0]
	for _, e := range r.edges {
		if e.PrerequisiteID == fromID {
			e.PrerequisiteID = toID
		}
		if e.DependentID == fromID {
			e.DependentID = toID
		}
		if e.PrerequisiteID == e.DependentID {
			continue
		}
		key := e.PrerequisiteID + "->" + e.DependentID
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, e)
	}
	r.edges = append([]DependencyEdge(nil), out...)
	r.persistEdgesLocked()
}

// TopologicalOrder orders all goals so that every prerequisite precedes its
// dependents. It returns an error when the dependency overlay contains a
// cycle. Ties break on goal id for determinism.
func (r *Registry) TopologicalOrder() ([]string, error) {
	r.mu.RLock()
	nodes := make([]string, 0, len(r.goals))
	for id := range r.goals {
		nodes = append(nodes, id)
	}
	edges := append([]DependencyEdge(nil), r.edges...)
	r.mu.RUnlock()

	return topoSort(nodes, edges)
}

func topoSort(nodes []string, edges []DependencyEdge) ([]string, error) {
	indegree := make(map[string]int, len(nodes))
	for _, id := range nodes {
		indegree[id] = 0
	}
	dependents := make(map[string][]string, len(edges))
	for _, e := range edges {
		if _, ok := indegree[e.PrerequisiteID]; !ok {
			continue
		}
		if _, ok := indegree[e.DependentID]; !ok {
			continue
		}
		dependents[e.PrerequisiteID] = append(dependents[e.PrerequisiteID], e.DependentID)
		indegree[e.DependentID]++
	}

	ready := make([]string, 0, len(nodes))
	for id, deg := range indegree {
		if deg == 0 {
			ready = append(ready, id)
		}
	}
	sort.Strings(ready)

	order := make([]string, 0, len(nodes))
	for len(ready) > 0 {
		id := ready[0]
		ready = ready[1:]
		order = append(order, id)
		next := dependents[id]
		sort.Strings(next)
		for _, dep := range next {
			indegree[dep]--
			if indegree[dep] == 0 {
				ready = append(ready, dep)
			}
		}
	}

	if len(order) != len(nodes) {
		return nil, fmt.Errorf("dependency graph contains a cycle (%d of %d goals ordered)", len(order), len(nodes))
	}
	return order, nil
}
