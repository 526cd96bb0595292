package merge

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/waypointhq/waypoint/internal/goals"
)

// Reconciler folds a list of goals into the first one under deterministic
// precedence rules. Donors are absorbed left-to-right and deleted.
type Reconciler struct {
	registry *goals.Registry
}

func NewReconciler(registry *goals.Registry) *Reconciler {
	return &Reconciler{registry: registry}
}

// Outcome describes what a merge did.
type Outcome struct {
	Success      bool   `json:"success"`
	PrimaryID    string `json:"primary_id"`
	PrimaryTitle string `json:"primary_title"`
	MergedCount  int    `json:"merged_count"`
	Message      string `json:"message"`
}

// Merge absorbs every resolvable donor into the primary (the first
// resolvable id). It requires at least two resolvable participants and
// no locked ones; both checks run before any mutation. A merge where
// every donor slips away mid-flight reports success=false rather than
// an error.
func (r *Reconciler) Merge(ctx context.Context, ids []string) (Outcome, error) {
	participants := r.registry.Resolve(ids)
	if len(participants) < 2 {
		return Outcome{}, fmt.Errorf("%w: merge needs at least 2 resolvable goals, got %d", goals.ErrInsufficientTargets, len(participants))
	}

	var lockedTitles []string
	for _, g := range participants {
		if g.Locked {
			lockedTitles = append(lockedTitles, g.Title)
		}
	}
	if len(lockedTitles) > 0 {
		return Outcome{}, fmt.Errorf("%w: locked goals cannot be merged: %s", goals.ErrStateConflict, strings.Join(lockedTitles, ", "))
	}

	primary := participants[0]
	donors := participants[1:]

	// Cross-participant resolutions are computed up front so donor order
	// cannot change them.
	resolvedState := resolveState(participants)
	resolvedTarget := earliestTargetDate(participants)

	merged := 0
	for _, donor := range donors {
		// Re-read: an earlier donor merge or a concurrent delete may have
		// invalidated the snapshot.
		fresh, err := r.registry.Get(donor.ID)
		if err != nil {
			continue
		}
		if err := r.absorb(primary.ID, fresh); err != nil {
			continue
		}
		merged++
	}

	if merged == 0 {
		return Outcome{
			Success:      false,
			PrimaryID:    primary.ID,
			PrimaryTitle: primary.Title,
			Message:      "no goals could be merged",
		}, nil
	}

	final, err := r.registry.Update(primary.ID, goals.EventGoalMerged, func(g *goals.Goal) error {
		g.State = resolvedState
		if resolvedTarget != nil && (g.TargetDate == nil || resolvedTarget.Before(*g.TargetDate)) {
			t := *resolvedTarget
			g.TargetDate = &t
		}
		return nil
	})
	if err != nil {
		return Outcome{}, err
	}

	return Outcome{
		Success:      true,
		PrimaryID:    final.ID,
		PrimaryTitle: final.Title,
		MergedCount:  merged,
		Message:      fmt.Sprintf("merged %d goals into %q", merged, final.Title),
	}, nil
}

// absorb folds one donor into the primary and deletes it.
func (r *Reconciler) absorb(primaryID string, donor goals.Goal) error {
	// Reparent first so the donor's delete cascade finds no children.
	for _, childID := range donor.ChildIDs {
		if err := r.registry.Reparent(childID, primaryID); err != nil {
			return fmt.Errorf("reparent child %s: %w", childID, err)
		}
	}
	r.registry.RetargetEdges(donor.ID, primaryID)

	_, err := r.registry.Update(primaryID, "", func(g *goals.Goal) error {
		if content := strings.TrimSpace(donor.Content); content != "" {
			if g.Content != "" {
				g.Content += "\n\n"
			}
			g.Content += fmt.Sprintf("--- Merged from %q ---\n%s", donor.Title, content)
		}
		if donor.Priority.Urgency() > g.Priority.Urgency() {
			g.Priority = donor.Priority
		}
		if donor.Progress > g.Progress {
			g.Progress = donor.Progress
		}

		existing := make(map[string]bool, len(g.Sessions))
		for _, l := range g.Sessions {
			existing[l.ExternalID] = true
		}
		for _, l := range donor.Sessions {
			if existing[l.ExternalID] {
				continue
			}
			existing[l.ExternalID] = true
			g.Sessions = append(g.Sessions, l)
		}

		g.Revisions = append(g.Revisions, donor.Revisions...)
		g.StampRevision(
			fmt.Sprintf("Absorbed %q", donor.Title),
			"Consolidated duplicate goals into one.",
			nil,
			time.Now().UTC(),
		)
		return nil
	})
	if err != nil {
		return err
	}

	_, err = r.registry.Delete(donor.ID)
	return err
}

// resolveState picks the dominant activation state across participants:
// Active > Completed > Draft > Archived. The primary's own state is the
// fallback when no participant dominates.
func resolveState(participants []goals.Goal) goals.ActivationState {
	rank := map[goals.ActivationState]int{
		goals.StateActive:    3,
		goals.StateCompleted: 2,
		goals.StateDraft:     1,
		goals.StateArchived:  0,
	}
	best := participants[0].State
	for _, g := range participants[1:] {
		if rank[g.State] > rank[best] {
			best = g.State
		}
	}
	return best
}

func earliestTargetDate(participants []goals.Goal) *time.Time {
	var earliest *time.Time
	for _, g := range participants {
		if g.TargetDate == nil {
			continue
		}
		if earliest == nil || g.TargetDate.Before(*earliest) {
			t := *g.TargetDate
			earliest = &t
		}
	}
	return earliest
}
