package breakdown

import (
	"errors"
	"testing"

	"github.com/waypointhq/waypoint/internal/goals"
)

func TestBuildMaterializesTreeAndEdges(t *testing.T) {
	r := goals.NewRegistry()
	root := r.Insert(goals.Goal{Title: "Launch", Category: "work", Autopilot: true})
	b := NewBuilder(r)

	nodes := []ProposedNode{
		{Title: "Plan", Difficulty: "easy"},
		{Title: "Build", Difficulty: "hard", DependsOn: []string{"Plan"}, Children: []ProposedNode{
			{Title: "Backend", Difficulty: "medium"},
			{Title: "Frontend", DependsOn: []string{"Backend"}},
		}},
		{Title: "Ship", DependsOn: []string{"Build", "missing-label"}},
	}

	res, err := b.Build(root.ID, nodes)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if len(res.CreatedIDs) != 5 {
		t.Fatalf("created %d goals, want 5", len(res.CreatedIDs))
	}
	if res.AtomicTasks != 4 {
		t.Fatalf("atomic tasks = %d, want 4", res.AtomicTasks)
	}
	// Plan->Build, Backend->Frontend, Build->Ship; missing-label skipped.
	if res.EdgeCount != 3 {
		t.Fatalf("edge count = %d, want 3", res.EdgeCount)
	}

	buildID := res.Slugs["build"]
	built, err := r.Get(buildID)
	if err != nil {
		t.Fatalf("Get(build) error = %v", err)
	}
	if built.Priority != goals.PriorityNow {
		t.Fatalf("hard task priority = %q, want %q", built.Priority, goals.PriorityNow)
	}
	if !built.HasBreakdown {
		t.Fatalf("parent with children HasBreakdown = false, want true")
	}
	if built.Category != "work" || !built.Autopilot {
		t.Fatalf("child category/autopilot = (%q, %v), want inherited (\"work\", true)", built.Category, built.Autopilot)
	}
	if len(built.ChildIDs) != 2 {
		t.Fatalf("build children = %d, want 2", len(built.ChildIDs))
	}

	gotRoot, _ := r.Get(root.ID)
	if !gotRoot.HasBreakdown {
		t.Fatalf("root HasBreakdown = false, want true")
	}
}

func TestBuildOutputIsAcyclic(t *testing.T) {
	r := goals.NewRegistry()
	root := r.Insert(goals.Goal{Title: "Root"})
	b := NewBuilder(r)

	// Forward and backward references between siblings.
	nodes := []ProposedNode{
		{Title: "One", DependsOn: []string{"Three"}},
		{Title: "Two", DependsOn: []string{"One"}},
		{Title: "Three"},
	}
	if _, err := b.Build(root.ID, nodes); err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if _, err := r.TopologicalOrder(); err != nil {
		t.Fatalf("TopologicalOrder() error = %v, want acyclic graph", err)
	}
}

func TestBuildSiblingSlugCollisions(t *testing.T) {
	r := goals.NewRegistry()
	root := r.Insert(goals.Goal{Title: "Root"})
	b := NewBuilder(r)

	res, err := b.Build(root.ID, []ProposedNode{
		{Title: "Plan"}, {Title: "Plan"}, {Title: "Plan"},
	})
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	for _, slug := range []string{"plan", "plan-2", "plan-3"} {
		if _, ok := res.Slugs[slug]; !ok {
			t.Fatalf("missing slug %q in %v", slug, res.Slugs)
		}
	}
}

func TestBuildSkipsSelfDependency(t *testing.T) {
	r := goals.NewRegistry()
	root := r.Insert(goals.Goal{Title: "Root"})
	b := NewBuilder(r)

	res, err := b.Build(root.ID, []ProposedNode{
		{Title: "Loop", DependsOn: []string{"Loop"}},
	})
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if res.EdgeCount != 0 {
		t.Fatalf("edge count = %d, want 0", res.EdgeCount)
	}
}

func TestBuildRejectsLockedRoot(t *testing.T) {
	r := goals.NewRegistry()
	root := r.Insert(goals.Goal{Title: "Frozen", Locked: true})
	b := NewBuilder(r)

	_, err := b.Build(root.ID, []ProposedNode{{Title: "Task"}})
	if !errors.Is(err, goals.ErrStateConflict) {
		t.Fatalf("Build() error = %v, want ErrStateConflict", err)
	}
}

func TestParseProposalToleratesFencing(t *testing.T) {
	raw := "Here is the plan:\n```json\n{\"tasks\":[{\"title\":\"Only\"}]}\n```\nDone."
	nodes, err := ParseProposal(raw)
	if err != nil {
		t.Fatalf("ParseProposal() error = %v", err)
	}
	if len(nodes) != 1 || nodes[0].Title != "Only" {
		t.Fatalf("nodes = %+v, want one titled %q", nodes, "Only")
	}
}

func TestParseProposalBareArray(t *testing.T) {
	nodes, err := ParseProposal(`[{"title":"A"},{"title":"B"}]`)
	if err != nil {
		t.Fatalf("ParseProposal() error = %v", err)
	}
	if len(nodes) != 2 {
		t.Fatalf("len(nodes) = %d, want 2", len(nodes))
	}
}
