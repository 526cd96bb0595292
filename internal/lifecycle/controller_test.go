package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/waypointhq/waypoint/internal/goals"
	"github.com/waypointhq/waypoint/internal/oracle"
)

type stubGenerator struct {
	mu      sync.Mutex
	reply   string
	err     error
	prompts []string
}

func (s *stubGenerator) Complete(_ context.Context, req oracle.GenerateRequest) (string, error) {
	s.mu.Lock()
	s.prompts = append(s.prompts, req.UserPrompt)
	s.mu.Unlock()
	if s.err != nil {
		return "", s.err
	}
	return s.reply, nil
}

type stubScheduler struct {
	mu         sync.Mutex
	slots      []oracle.ProposedSlot
	proposeErr error
	createErr  error
	created    int
	deleted    []string
}

func (s *stubScheduler) ProposeSessions(context.Context, oracle.ScheduleRequest) ([]oracle.ProposedSlot, error) {
	if s.proposeErr != nil {
		return nil, s.proposeErr
	}
	return s.slots, nil
}

func (s *stubScheduler) CreateEntry(context.Context, oracle.CalendarEntry) (string, error) {
	if s.createErr != nil {
		return "", s.createErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.created++
	return fmt.Sprintf("ext-%d", s.created), nil
}

func (s *stubScheduler) DeleteEntry(_ context.Context, externalID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deleted = append(s.deleted, externalID)
	return nil
}

func futureSlots(n int) []oracle.ProposedSlot {
	slots := make([]oracle.ProposedSlot, 0, n)
	start := time.Now().UTC().Add(24 * time.Hour).Truncate(time.Minute)
	for i := 0; i < n; i++ {
		slots = append(slots, oracle.ProposedSlot{
			Title:           "Session",
			Start:           start.Add(time.Duration(i) * 24 * time.Hour),
			DurationMinutes: 60,
		})
	}
	return slots
}

func TestActivateWithZeroSlotsLeavesGoalUntouched(t *testing.T) {
	r := goals.NewRegistry()
	g := r.Insert(goals.Goal{Title: "Stuck"})
	c := NewController(r, &stubGenerator{reply: `{"summary":"ok"}`}, &stubScheduler{})

	_, err := c.Activate(context.Background(), g.ID)
	if !errors.Is(err, goals.ErrActivationFailed) {
		t.Fatalf("Activate() error = %v, want ErrActivationFailed", err)
	}

	got, _ := r.Get(g.ID)
	if got.State != goals.StateDraft {
		t.Fatalf("State = %q, want %q", got.State, goals.StateDraft)
	}
	if len(got.Sessions) != 0 {
		t.Fatalf("sessions = %d, want 0", len(got.Sessions))
	}
	if len(got.Revisions) != 0 {
		t.Fatalf("revisions = %d, want 0", len(got.Revisions))
	}
}

func TestActivateCommitsSessionsAndStampsRevision(t *testing.T) {
	r := goals.NewRegistry()
	g := r.Insert(goals.Goal{Title: "Go time"})
	sched := &stubScheduler{slots: futureSlots(2)}
	c := NewController(r, &stubGenerator{reply: `{"summary":"ok"}`}, sched)

	got, err := c.Activate(context.Background(), g.ID)
	if err != nil {
		t.Fatalf("Activate() error = %v", err)
	}
	if got.State != goals.StateActive {
		t.Fatalf("State = %q, want %q", got.State, goals.StateActive)
	}
	if len(got.Sessions) != 2 {
		t.Fatalf("sessions = %d, want 2", len(got.Sessions))
	}
	if len(got.Revisions) != 1 || got.Revisions[0].Summary != "Activated" {
		t.Fatalf("revisions = %+v, want one Activated entry", got.Revisions)
	}
}

func TestActivateRejectsLockedGoal(t *testing.T) {
	r := goals.NewRegistry()
	g := r.Insert(goals.Goal{Title: "Frozen", Locked: true})
	c := NewController(r, &stubGenerator{}, &stubScheduler{slots: futureSlots(1)})

	if _, err := c.Activate(context.Background(), g.ID); !errors.Is(err, goals.ErrStateConflict) {
		t.Fatalf("Activate() error = %v, want ErrStateConflict", err)
	}
}

func TestDeactivateReleasesAllSessions(t *testing.T) {
	r := goals.NewRegistry()
	g := r.Insert(goals.Goal{
		Title: "Active",
		State: goals.StateActive,
		Sessions: []goals.SessionLink{
			{ExternalID: "a"}, {ExternalID: "b"},
		},
	})
	sched := &stubScheduler{}
	c := NewController(r, &stubGenerator{reply: `{"summary":"ok"}`}, sched)

	got, err := c.Deactivate(context.Background(), g.ID)
	if err != nil {
		t.Fatalf("Deactivate() error = %v", err)
	}
	if got.State != goals.StateDraft {
		t.Fatalf("State = %q, want %q", got.State, goals.StateDraft)
	}
	if len(got.Sessions) != 0 {
		t.Fatalf("sessions = %d, want 0", len(got.Sessions))
	}
	if len(sched.deleted) != 2 {
		t.Fatalf("external deletes = %d, want 2", len(sched.deleted))
	}
}

func TestCompletePinsProgressAndReleasesSessions(t *testing.T) {
	r := goals.NewRegistry()
	g := r.Insert(goals.Goal{
		Title:    "Almost done",
		State:    goals.StateActive,
		Progress: 0.7,
		Sessions: []goals.SessionLink{{ExternalID: "x"}},
	})
	sched := &stubScheduler{}
	c := NewController(r, &stubGenerator{reply: `{"summary":"done"}`}, sched)

	got, err := c.Complete(context.Background(), g.ID)
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if got.State != goals.StateCompleted {
		t.Fatalf("State = %q, want %q", got.State, goals.StateCompleted)
	}
	if got.Progress != 1.0 {
		t.Fatalf("Progress = %v, want 1.0", got.Progress)
	}
	if len(got.Sessions) != 0 {
		t.Fatalf("sessions = %d, want 0", len(got.Sessions))
	}
	if len(sched.deleted) != 1 {
		t.Fatalf("external deletes = %d, want 1", len(sched.deleted))
	}
}

func TestLockWithFailingOracleStillLocks(t *testing.T) {
	r := goals.NewRegistry()
	g := r.Insert(goals.Goal{Title: "Snapshot me", Content: "body"})
	c := NewController(r, &stubGenerator{err: errors.New("oracle down")}, &stubScheduler{})

	got, err := c.Lock(context.Background(), g.ID)
	if err != nil {
		t.Fatalf("Lock() error = %v", err)
	}
	if !got.Locked {
		t.Fatalf("Locked = false, want true")
	}
	if got.LockedSnapshot == nil {
		t.Fatalf("LockedSnapshot = nil, want snapshot")
	}
	if got.LockedSnapshot.Summary != "" {
		t.Fatalf("snapshot summary = %q, want empty on oracle failure", got.LockedSnapshot.Summary)
	}
	if got.LastError == "" {
		t.Fatalf("LastError empty, want recorded oracle failure")
	}
}

func TestUnlockIsIdempotent(t *testing.T) {
	r := goals.NewRegistry()
	g := r.Insert(goals.Goal{Title: "Never locked"})
	c := NewController(r, &stubGenerator{}, &stubScheduler{})

	got, err := c.Unlock(context.Background(), g.ID)
	if err != nil {
		t.Fatalf("Unlock() error = %v", err)
	}
	if got.Locked {
		t.Fatalf("Locked = true, want false")
	}
	if len(got.Revisions) != 0 {
		t.Fatalf("revisions = %d, want 0 (no-op unlock must not stamp)", len(got.Revisions))
	}
}

func TestUnlockClearsLockAndStampsOnce(t *testing.T) {
	r := goals.NewRegistry()
	g := r.Insert(goals.Goal{Title: "Locked"})
	c := NewController(r, &stubGenerator{err: errors.New("down")}, &stubScheduler{})

	if _, err := c.Lock(context.Background(), g.ID); err != nil {
		t.Fatalf("Lock() error = %v", err)
	}
	got, err := c.Unlock(context.Background(), g.ID)
	if err != nil {
		t.Fatalf("Unlock() error = %v", err)
	}
	if got.Locked || got.LockedSnapshot != nil {
		t.Fatalf("goal still carries lock state: locked=%v snapshot=%v", got.Locked, got.LockedSnapshot)
	}
	if len(got.Revisions) != 2 {
		t.Fatalf("revisions = %d, want 2 (lock + unlock)", len(got.Revisions))
	}
}

func TestRegenerateReplacesStructuredChildren(t *testing.T) {
	r := goals.NewRegistry()
	g := r.Insert(goals.Goal{Title: "Reframe", Content: "old"})
	stale := r.Insert(goals.Goal{Title: "Old phase", Kind: goals.KindPhase, ParentID: g.ID})
	kept := r.Insert(goals.Goal{Title: "Real subgoal", ParentID: g.ID})

	gen := &stubGenerator{reply: `{"content":"fresh","phases":[{"title":"P1"},{"title":"P2"}],"metrics":[{"title":"M1"}],"slices":[]}`}
	c := NewController(r, gen, &stubScheduler{})

	got, err := c.Regenerate(context.Background(), g.ID, "")
	if err != nil {
		t.Fatalf("Regenerate() error = %v", err)
	}
	if got.Content != "fresh" {
		t.Fatalf("Content = %q, want %q", got.Content, "fresh")
	}

	if _, err := r.Get(stale.ID); !errors.Is(err, goals.ErrNotFound) {
		t.Fatalf("stale phase still present, want deleted")
	}
	if _, err := r.Get(kept.ID); err != nil {
		t.Fatalf("plain subgoal was deleted, want kept")
	}

	phases, metrics := 0, 0
	for _, child := range r.Children(g.ID) {
		switch child.Kind {
		case goals.KindPhase:
			phases++
		case goals.KindMetric:
			metrics++
		}
	}
	if phases != 2 || metrics != 1 {
		t.Fatalf("structured children = (%d phases, %d metrics), want (2, 1)", phases, metrics)
	}

	last := got.Revisions[len(got.Revisions)-1]
	if last.Rationale != "AI provided refreshed framing." {
		t.Fatalf("revision rationale = %q, want %q", last.Rationale, "AI provided refreshed framing.")
	}
}

func TestRegenerateRejectsLockedGoal(t *testing.T) {
	r := goals.NewRegistry()
	g := r.Insert(goals.Goal{Title: "Frozen", Locked: true})
	c := NewController(r, &stubGenerator{reply: `{"content":"x"}`}, &stubScheduler{})

	if _, err := c.Regenerate(context.Background(), g.ID, ""); !errors.Is(err, goals.ErrStateConflict) {
		t.Fatalf("Regenerate() error = %v, want ErrStateConflict", err)
	}
}

func TestCreateUsesOracleFraming(t *testing.T) {
	r := goals.NewRegistry()
	gen := &stubGenerator{reply: `{"title":"Sharper","content":"clear outcome","category":"health","priority":"now"}`}
	c := NewController(r, gen, &stubScheduler{})

	got, err := c.Create(context.Background(), CreateInput{Title: "vague idea"})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if got.Title != "Sharper" || got.Category != "health" || got.Priority != goals.PriorityNow {
		t.Fatalf("framed goal = %+v, want oracle framing applied", got)
	}
}

func TestCreateSurvivesOracleFailure(t *testing.T) {
	r := goals.NewRegistry()
	c := NewController(r, &stubGenerator{err: errors.New("down")}, &stubScheduler{})

	got, err := c.Create(context.Background(), CreateInput{Title: "keep me"})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if got.Title != "keep me" {
		t.Fatalf("Title = %q, want caller title preserved", got.Title)
	}
	if !strings.Contains(got.LastError, "framing") {
		t.Fatalf("LastError = %q, want framing failure recorded", got.LastError)
	}
}

func TestCreateRequiresTitle(t *testing.T) {
	r := goals.NewRegistry()
	c := NewController(r, &stubGenerator{}, &stubScheduler{})

	if _, err := c.Create(context.Background(), CreateInput{}); !errors.Is(err, goals.ErrInvalidParameters) {
		t.Fatalf("Create() error = %v, want ErrInvalidParameters", err)
	}
}

func TestDeleteCascadesAndReleasesSessions(t *testing.T) {
	r := goals.NewRegistry()
	parent := r.Insert(goals.Goal{Title: "Parent", Sessions: []goals.SessionLink{{ExternalID: "p1"}}})
	r.Insert(goals.Goal{Title: "Child", ParentID: parent.ID, Sessions: []goals.SessionLink{{ExternalID: "c1"}}})
	sched := &stubScheduler{}
	c := NewController(r, &stubGenerator{}, sched)

	count, err := c.Delete(context.Background(), parent.ID)
	if err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if count != 2 {
		t.Fatalf("deleted = %d, want 2", count)
	}
	if len(sched.deleted) != 2 {
		t.Fatalf("external deletes = %d, want 2", len(sched.deleted))
	}
}
