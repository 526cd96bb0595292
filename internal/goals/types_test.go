package goals

import (
	"testing"
	"time"
)

func TestClampProgress(t *testing.T) {
	cases := []struct {
		in   float64
		want float64
	}{
		{-0.5, 0},
		{0, 0},
		{0.42, 0.42},
		{1, 1},
		{1.7, 1},
	}
	for _, tc := range cases {
		if got := ClampProgress(tc.in); got != tc.want {
			t.Fatalf("ClampProgress(%v) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestPriorityUrgencyOrder(t *testing.T) {
	if PriorityNow.Urgency() <= PriorityNext.Urgency() {
		t.Fatalf("now urgency %d, next urgency %d, want now > next", PriorityNow.Urgency(), PriorityNext.Urgency())
	}
	if PriorityNext.Urgency() <= PriorityLater.Urgency() {
		t.Fatalf("next urgency %d, later urgency %d, want next > later", PriorityNext.Urgency(), PriorityLater.Urgency())
	}
}

func TestSessionLinkConcluded(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	past := SessionLink{Start: now.Add(-2 * time.Hour), End: now.Add(-time.Hour)}
	if !past.Concluded(now) {
		t.Fatalf("past session Concluded = false, want true")
	}

	future := SessionLink{Start: now.Add(time.Hour), End: now.Add(2 * time.Hour)}
	if future.Concluded(now) {
		t.Fatalf("future session Concluded = true, want false")
	}

	openEnded := SessionLink{Start: now.Add(-time.Minute)}
	if !openEnded.Concluded(now) {
		t.Fatalf("started open-ended session Concluded = false, want true")
	}
}

func TestGoalCloneIsIndependent(t *testing.T) {
	target := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	g := Goal{
		ID:         "g1",
		ChildIDs:   []string{"c1"},
		Revisions:  []Revision{{Summary: "Created"}},
		Sessions:   []SessionLink{{ExternalID: "s1"}},
		TargetDate: &target,
	}

	clone := g.Clone()
	clone.ChildIDs[0] = "other"
	clone.Revisions[0].Summary = "changed"
	clone.Sessions[0].ExternalID = "changed"
	*clone.TargetDate = target.AddDate(1, 0, 0)

	if g.ChildIDs[0] != "c1" {
		t.Fatalf("ChildIDs[0] = %q, want %q", g.ChildIDs[0], "c1")
	}
	if g.Revisions[0].Summary != "Created" {
		t.Fatalf("Revisions[0].Summary = %q, want %q", g.Revisions[0].Summary, "Created")
	}
	if g.Sessions[0].ExternalID != "s1" {
		t.Fatalf("Sessions[0].ExternalID = %q, want %q", g.Sessions[0].ExternalID, "s1")
	}
	if !g.TargetDate.Equal(target) {
		t.Fatalf("TargetDate = %v, want %v", g.TargetDate, target)
	}
}
