package merge

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/waypointhq/waypoint/internal/goals"
)

func TestMergePrecedenceRules(t *testing.T) {
	r := goals.NewRegistry()
	primary := r.Insert(goals.Goal{Title: "A", Priority: goals.PriorityLater, Progress: 0.3, State: goals.StateDraft})
	donor := r.Insert(goals.Goal{Title: "B", Priority: goals.PriorityNow, Progress: 0.9, State: goals.StateActive, Content: "donor notes"})

	outcome, err := NewReconciler(r).Merge(context.Background(), []string{primary.ID, donor.ID})
	if err != nil {
		t.Fatalf("Merge() error = %v", err)
	}
	if !outcome.Success || outcome.MergedCount != 1 {
		t.Fatalf("outcome = %+v, want success with 1 merged", outcome)
	}

	got, err := r.Get(primary.ID)
	if err != nil {
		t.Fatalf("Get(primary) error = %v", err)
	}
	if got.Priority != goals.PriorityNow {
		t.Fatalf("Priority = %q, want %q", got.Priority, goals.PriorityNow)
	}
	if got.Progress != 0.9 {
		t.Fatalf("Progress = %v, want 0.9", got.Progress)
	}
	if got.State != goals.StateActive {
		t.Fatalf("State = %q, want %q", got.State, goals.StateActive)
	}
	if !strings.Contains(got.Content, `Merged from "B"`) || !strings.Contains(got.Content, "donor notes") {
		t.Fatalf("Content = %q, want donor content with provenance header", got.Content)
	}

	if _, err := r.Get(donor.ID); !errors.Is(err, goals.ErrNotFound) {
		t.Fatalf("Get(donor) error = %v, want ErrNotFound", err)
	}
}

func TestMergeNeedsTwoResolvableTargets(t *testing.T) {
	r := goals.NewRegistry()
	only := r.Insert(goals.Goal{Title: "Lonely"})

	_, err := NewReconciler(r).Merge(context.Background(), []string{only.ID, "ghost-1", "ghost-2"})
	if !errors.Is(err, goals.ErrInsufficientTargets) {
		t.Fatalf("Merge() error = %v, want ErrInsufficientTargets", err)
	}
}

func TestMergeRejectsLockedParticipantsNamingTitles(t *testing.T) {
	r := goals.NewRegistry()
	a := r.Insert(goals.Goal{Title: "Open"})
	b := r.Insert(goals.Goal{Title: "Frozen", Locked: true})

	_, err := NewReconciler(r).Merge(context.Background(), []string{a.ID, b.ID})
	if !errors.Is(err, goals.ErrStateConflict) {
		t.Fatalf("Merge() error = %v, want ErrStateConflict", err)
	}
	if !strings.Contains(err.Error(), "Frozen") {
		t.Fatalf("error %q does not name the locked goal", err)
	}

	// Precondition failure must leave both goals untouched.
	if _, err := r.Get(b.ID); err != nil {
		t.Fatalf("Get(locked) error = %v, want donor intact", err)
	}
}

func TestMergeReparentsChildrenAndRetargetsEdges(t *testing.T) {
	r := goals.NewRegistry()
	primary := r.Insert(goals.Goal{Title: "Primary"})
	primaryChild := r.Insert(goals.Goal{Title: "PC", ParentID: primary.ID})
	donor := r.Insert(goals.Goal{Title: "Donor"})
	donorChild := r.Insert(goals.Goal{Title: "DC", ParentID: donor.ID})
	outsider := r.Insert(goals.Goal{Title: "Outsider"})
	r.AddEdge(goals.DependencyEdge{PrerequisiteID: outsider.ID, DependentID: donor.ID})

	outcome, err := NewReconciler(r).Merge(context.Background(), []string{primary.ID, donor.ID})
	if err != nil {
		t.Fatalf("Merge() error = %v", err)
	}
	if outcome.MergedCount != 1 {
		t.Fatalf("MergedCount = %d, want 1", outcome.MergedCount)
	}

	got, _ := r.Get(primary.ID)
	if len(got.ChildIDs) != 2 || got.ChildIDs[0] != primaryChild.ID || got.ChildIDs[1] != donorChild.ID {
		t.Fatalf("ChildIDs = %v, want [%s %s]", got.ChildIDs, primaryChild.ID, donorChild.ID)
	}

	edges := r.EdgesTouching(primary.ID)
	if len(edges) != 1 || edges[0].PrerequisiteID != outsider.ID {
		t.Fatalf("edges = %v, want one retargeted edge from outsider", edges)
	}

	movedChild, _ := r.Get(donorChild.ID)
	if movedChild.ParentID != primary.ID {
		t.Fatalf("donor child parent = %q, want %q", movedChild.ParentID, primary.ID)
	}
}

func TestMergeDeduplicatesSessionLinks(t *testing.T) {
	r := goals.NewRegistry()
	start := time.Now().Add(time.Hour)
	primary := r.Insert(goals.Goal{Title: "P", Sessions: []goals.SessionLink{{ExternalID: "shared", Start: start}}})
	donor := r.Insert(goals.Goal{Title: "D", Sessions: []goals.SessionLink{
		{ExternalID: "shared", Start: start},
		{ExternalID: "fresh", Start: start.Add(time.Hour)},
	}})

	if _, err := NewReconciler(r).Merge(context.Background(), []string{primary.ID, donor.ID}); err != nil {
		t.Fatalf("Merge() error = %v", err)
	}

	got, _ := r.Get(primary.ID)
	if len(got.Sessions) != 2 {
		t.Fatalf("sessions = %d, want 2 (deduplicated by external id)", len(got.Sessions))
	}
}

func TestMergeEarliestTargetDateWins(t *testing.T) {
	r := goals.NewRegistry()
	later := time.Date(2026, 12, 1, 0, 0, 0, 0, time.UTC)
	sooner := time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)
	primary := r.Insert(goals.Goal{Title: "P", TargetDate: &later})
	donor := r.Insert(goals.Goal{Title: "D", TargetDate: &sooner})

	if _, err := NewReconciler(r).Merge(context.Background(), []string{primary.ID, donor.ID}); err != nil {
		t.Fatalf("Merge() error = %v", err)
	}

	got, _ := r.Get(primary.ID)
	if got.TargetDate == nil || !got.TargetDate.Equal(sooner) {
		t.Fatalf("TargetDate = %v, want %v", got.TargetDate, sooner)
	}
}

func TestMergeAppendsConsolidationRevision(t *testing.T) {
	r := goals.NewRegistry()
	primary := r.Insert(goals.Goal{Title: "Keep"})
	donor := r.Insert(goals.Goal{Title: "Fold"})

	if _, err := NewReconciler(r).Merge(context.Background(), []string{primary.ID, donor.ID}); err != nil {
		t.Fatalf("Merge() error = %v", err)
	}

	got, _ := r.Get(primary.ID)
	found := false
	for _, rev := range got.Revisions {
		if strings.Contains(rev.Summary, "Fold") {
			found = true
		}
	}
	if !found {
		t.Fatalf("revisions %v do not record the absorbed donor", got.Revisions)
	}
}
