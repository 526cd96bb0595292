package lifecycle

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/waypointhq/waypoint/internal/goals"
	"github.com/waypointhq/waypoint/internal/oracle"
)

// Controller owns the activation state machine for a single goal and the
// async side effects around it: scheduling, snapshotting and regeneration.
// Guard violations fail before any mutation.
type Controller struct {
	registry  *goals.Registry
	generator oracle.Generative
	scheduler oracle.Scheduler

	sessionTarget int
	horizon       time.Duration
}

type Option func(*Controller)

// WithSessionTarget sets how many sessions activation asks for.
func WithSessionTarget(n int) Option {
	return func(c *Controller) {
		if n > 0 {
			c.sessionTarget = n
		}
	}
}

// WithHorizon sets the scheduling window passed to the oracle.
func WithHorizon(d time.Duration) Option {
	return func(c *Controller) {
		if d > 0 {
			c.horizon = d
		}
	}
}

func NewController(registry *goals.Registry, generator oracle.Generative, scheduler oracle.Scheduler, opts ...Option) *Controller {
	c := &Controller{
		registry:      registry,
		generator:     generator,
		scheduler:     scheduler,
		sessionTarget: 3,
		horizon:       7 * 24 * time.Hour,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// CreateInput carries the caller-provided fields for a new goal.
type CreateInput struct {
	Title     string
	Content   string
	Category  string
	Priority  goals.Priority
	Autopilot bool
}

type framing struct {
	Title    string `json:"title"`
	Content  string `json:"content"`
	Category string `json:"category"`
	Priority string `json:"priority"`
}

// Create inserts a new draft goal. The generative oracle is asked for a
// sharper framing first; oracle failure is soft and the caller's fields
// are used as-is, with the failure recorded on the goal.
func (c *Controller) Create(ctx context.Context, in CreateInput) (goals.Goal, error) {
	if strings.TrimSpace(in.Title) == "" {
		return goals.Goal{}, fmt.Errorf("%w: title is required", goals.ErrInvalidParameters)
	}

	g := goals.Goal{
		Title:     strings.TrimSpace(in.Title),
		Content:   in.Content,
		Category:  in.Category,
		Priority:  in.Priority,
		Autopilot: in.Autopilot,
		State:     goals.StateDraft,
	}

	if c.generator != nil {
		raw, err := c.generator.Complete(ctx, oracle.GenerateRequest{
			SystemPrompt: framingSystemPrompt,
			UserPrompt:   fmt.Sprintf("Title: %s\nNotes: %s", g.Title, g.Content),
		})
		if err == nil {
			var f framing
			if body, jerr := oracle.ExtractJSON(raw); jerr == nil && json.Unmarshal([]byte(body), &f) == nil {
				applyFraming(&g, f)
			} else {
				g.LastError = "goal framing: " + oracle.ErrMalformedResponse.Error()
			}
		} else {
			g.LastError = "goal framing: " + err.Error()
			log.Printf("lifecycle: framing oracle failed for %q: %v", g.Title, err)
		}
	}

	return c.registry.Insert(g), nil
}

func applyFraming(g *goals.Goal, f framing) {
	if t := strings.TrimSpace(f.Title); t != "" {
		g.Title = t
	}
	if strings.TrimSpace(f.Content) != "" {
		g.Content = f.Content
	}
	if strings.TrimSpace(f.Category) != "" {
		g.Category = f.Category
	}
	if p := parsePriority(f.Priority); p != "" {
		g.Priority = p
	}
}

func parsePriority(s string) goals.Priority {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "now":
		return goals.PriorityNow
	case "next":
		return goals.PriorityNext
	case "later":
		return goals.PriorityLater
	default:
		return ""
	}
}

// Activate moves a draft or archived goal to active. It requires at least
// one proposed session from the scheduling oracle; with zero proposals the
// goal is left untouched and ErrActivationFailed is returned.
func (c *Controller) Activate(ctx context.Context, id string) (goals.Goal, error) {
	g, err := c.registry.Get(id)
	if err != nil {
		return goals.Goal{}, err
	}
	if g.Locked {
		return goals.Goal{}, fmt.Errorf("%w: goal %q is locked", goals.ErrStateConflict, g.Title)
	}
	if g.State != goals.StateDraft && g.State != goals.StateArchived {
		return goals.Goal{}, fmt.Errorf("%w: cannot activate a %s goal", goals.ErrStateConflict, g.State)
	}

	slots, err := c.scheduler.ProposeSessions(ctx, oracle.ScheduleRequest{
		GoalID:  g.ID,
		Title:   g.Title,
		Content: g.Content,
		Busy:    c.busyWindows(),
		Horizon: c.horizon,
		Count:   c.sessionTarget,
	})
	if err != nil {
		return goals.Goal{}, fmt.Errorf("%w: propose sessions: %v", goals.ErrActivationFailed, err)
	}
	links := c.commitSlots(ctx, g.Title, slots)
	if len(links) == 0 {
		return goals.Goal{}, fmt.Errorf("%w: scheduler proposed no usable sessions", goals.ErrActivationFailed)
	}

	updated, err := c.registry.Update(g.ID, goals.EventGoalActivated, func(g *goals.Goal) error {
		if g.Locked {
			return fmt.Errorf("%w: goal %q is locked", goals.ErrStateConflict, g.Title)
		}
		if g.State != goals.StateDraft && g.State != goals.StateArchived {
			return fmt.Errorf("%w: cannot activate a %s goal", goals.ErrStateConflict, g.State)
		}
		g.State = goals.StateActive
		g.Sessions = append(g.Sessions, links...)
		g.StampRevision("Activated", fmt.Sprintf("Scheduled %d work sessions.", len(links)), nil, time.Now().UTC())
		return nil
	})
	if err != nil {
		// State changed between read and commit; release what we created.
		c.releaseExternal(links)
		return goals.Goal{}, err
	}

	c.refreshInsightAsync(updated.ID)
	return updated, nil
}

// commitSlots creates calendar entries for proposed slots, skipping any
// the external side rejects.
func (c *Controller) commitSlots(ctx context.Context, title string, slots []oracle.ProposedSlot) []goals.SessionLink {
	links := make([]goals.SessionLink, 0, len(slots))
	for _, slot := range slots {
		entryTitle := slot.Title
		if strings.TrimSpace(entryTitle) == "" {
			entryTitle = "Work session: " + title
		}
		externalID, err := c.scheduler.CreateEntry(ctx, oracle.CalendarEntry{
			Title: entryTitle,
			Start: slot.Start,
			End:   slot.End(),
			Note:  slot.Note,
		})
		if err != nil {
			log.Printf("lifecycle: create calendar entry failed: %v", err)
			continue
		}
		links = append(links, goals.SessionLink{
			ExternalID: externalID,
			Title:      entryTitle,
			Start:      slot.Start,
			End:        slot.End(),
			Status:     "scheduled",
		})
	}
	return links
}

func (c *Controller) busyWindows() []oracle.BusyWindow {
	now := time.Now().UTC()
	var busy []oracle.BusyWindow
	for _, g := range c.registry.List(0) {
		for _, l := range g.UpcomingSessions(now) {
			busy = append(busy, oracle.BusyWindow{Start: l.Start, End: l.End})
		}
	}
	return busy
}

// Deactivate releases every session link and returns the goal to draft.
// External deletes are best-effort; local links are removed regardless.
func (c *Controller) Deactivate(ctx context.Context, id string) (goals.Goal, error) {
	g, err := c.registry.Get(id)
	if err != nil {
		return goals.Goal{}, err
	}
	if g.Locked {
		return goals.Goal{}, fmt.Errorf("%w: goal %q is locked", goals.ErrStateConflict, g.Title)
	}
	if g.State != goals.StateActive {
		return goals.Goal{}, fmt.Errorf("%w: cannot deactivate a %s goal", goals.ErrStateConflict, g.State)
	}

	c.releaseExternal(g.Sessions)
	return c.registry.Update(g.ID, goals.EventGoalDeactivated, func(g *goals.Goal) error {
		if g.Locked {
			return fmt.Errorf("%w: goal %q is locked", goals.ErrStateConflict, g.Title)
		}
		g.State = goals.StateDraft
		g.Sessions = nil
		g.StampRevision("Deactivated", "Returned to draft and released scheduled sessions.", nil, time.Now().UTC())
		return nil
	})
}

// Complete marks the goal finished: progress pinned to 1.0, sessions
// released, revision stamped. The insight refresh never blocks it.
func (c *Controller) Complete(ctx context.Context, id string) (goals.Goal, error) {
	g, err := c.registry.Get(id)
	if err != nil {
		return goals.Goal{}, err
	}
	if g.Locked {
		return goals.Goal{}, fmt.Errorf("%w: goal %q is locked", goals.ErrStateConflict, g.Title)
	}

	c.releaseExternal(g.Sessions)
	updated, err := c.registry.Update(g.ID, goals.EventGoalCompleted, func(g *goals.Goal) error {
		if g.Locked {
			return fmt.Errorf("%w: goal %q is locked", goals.ErrStateConflict, g.Title)
		}
		g.State = goals.StateCompleted
		g.Progress = 1.0
		g.Sessions = nil
		g.StampRevision("Completed", "Marked done and released scheduled sessions.", nil, time.Now().UTC())
		return nil
	})
	if err != nil {
		return goals.Goal{}, err
	}
	c.refreshInsightAsync(updated.ID)
	return updated, nil
}

// Archive parks the goal without touching its sessions or progress.
func (c *Controller) Archive(ctx context.Context, id string) (goals.Goal, error) {
	return c.registry.Update(strings.TrimSpace(id), goals.EventGoalArchived, func(g *goals.Goal) error {
		if g.Locked {
			return fmt.Errorf("%w: goal %q is locked", goals.ErrStateConflict, g.Title)
		}
		if g.State == goals.StateArchived {
			return fmt.Errorf("%w: goal is already archived", goals.ErrStateConflict)
		}
		g.State = goals.StateArchived
		g.StampRevision("Archived", "Moved to the archive.", nil, time.Now().UTC())
		return nil
	})
}

// Lock freezes the goal behind a snapshot. The snapshot summary comes from
// the generative oracle when it answers; failure leaves the summary empty
// but still locks.
func (c *Controller) Lock(ctx context.Context, id string) (goals.Goal, error) {
	g, err := c.registry.Get(id)
	if err != nil {
		return goals.Goal{}, err
	}
	if g.Locked {
		return goals.Goal{}, fmt.Errorf("%w: goal %q is already locked", goals.ErrStateConflict, g.Title)
	}

	summary := ""
	var oracleErr error
	if c.generator != nil {
		raw, err := c.generator.Complete(ctx, oracle.GenerateRequest{
			SystemPrompt: insightSystemPrompt,
			UserPrompt:   fmt.Sprintf("Title: %s\nContent: %s\nProgress: %.0f%%", g.Title, g.Content, g.Progress*100),
		})
		if err != nil {
			oracleErr = err
			log.Printf("lifecycle: lock summary oracle failed for %s: %v", g.ID, err)
		} else if body, jerr := oracle.ExtractJSON(raw); jerr == nil {
			var out struct {
				Summary string `json:"summary"`
			}
			if json.Unmarshal([]byte(body), &out) == nil {
				summary = out.Summary
			}
		}
	}

	return c.registry.Update(g.ID, goals.EventGoalLocked, func(g *goals.Goal) error {
		if g.Locked {
			return fmt.Errorf("%w: goal %q is already locked", goals.ErrStateConflict, g.Title)
		}
		now := time.Now().UTC()
		g.Locked = true
		g.LockedSnapshot = goals.SnapshotOf(*g, summary, now)
		if oracleErr != nil {
			g.LastError = "lock summary: " + oracleErr.Error()
		}
		g.StampRevision("Locked", "Captured a snapshot and locked the goal.", g.LockedSnapshot, now)
		return nil
	})
}

// Unlock clears the locked flag. Unlocking an unlocked goal is a no-op
// with no revision.
func (c *Controller) Unlock(ctx context.Context, id string) (goals.Goal, error) {
	g, err := c.registry.Get(id)
	if err != nil {
		return goals.Goal{}, err
	}
	if !g.Locked {
		return g, nil
	}
	return c.registry.Update(g.ID, goals.EventGoalUnlocked, func(g *goals.Goal) error {
		if !g.Locked {
			return nil
		}
		g.Locked = false
		g.LockedSnapshot = nil
		g.StampRevision("Unlocked", "Released the lock.", nil, time.Now().UTC())
		return nil
	})
}

type refreshedFraming struct {
	Title    string `json:"title"`
	Content  string `json:"content"`
	Category string `json:"category"`
	Priority string `json:"priority"`
	Phases   []struct {
		Title string `json:"title"`
	} `json:"phases"`
	Metrics []struct {
		Title string `json:"title"`
	} `json:"metrics"`
	Slices []struct {
		Title string `json:"title"`
	} `json:"slices"`
}

// Regenerate asks the generative oracle for a refreshed framing seeded
// with the current title and content, then replaces the goal's framing
// fields and its structured children. Old phase/metric/slice children are
// removed before the new set is inserted so no stale leftovers survive.
func (c *Controller) Regenerate(ctx context.Context, id, guidance string) (goals.Goal, error) {
	g, err := c.registry.Get(id)
	if err != nil {
		return goals.Goal{}, err
	}
	if g.Locked {
		return goals.Goal{}, fmt.Errorf("%w: goal %q is locked", goals.ErrStateConflict, g.Title)
	}

	userPrompt := fmt.Sprintf("Title: %s\nContent: %s", g.Title, g.Content)
	if strings.TrimSpace(guidance) != "" {
		userPrompt += "\nGuidance: " + guidance
	}
	raw, err := c.generator.Complete(ctx, oracle.GenerateRequest{
		SystemPrompt: regenerateSystemPrompt,
		UserPrompt:   userPrompt,
	})
	if err != nil {
		c.recordError(g.ID, "regenerate: "+err.Error())
		return goals.Goal{}, fmt.Errorf("regenerate goal: %w", err)
	}
	body, err := oracle.ExtractJSON(raw)
	if err != nil {
		c.recordError(g.ID, "regenerate: "+err.Error())
		return goals.Goal{}, fmt.Errorf("regenerate goal: %w", err)
	}
	var rf refreshedFraming
	if err := json.Unmarshal([]byte(body), &rf); err != nil {
		c.recordError(g.ID, "regenerate: "+err.Error())
		return goals.Goal{}, fmt.Errorf("regenerate goal: %w", oracle.ErrMalformedResponse)
	}

	for _, child := range c.registry.Children(g.ID) {
		if child.Kind == goals.KindPhase || child.Kind == goals.KindMetric || child.Kind == goals.KindSlice {
			if _, err := c.registry.Delete(child.ID); err != nil {
				log.Printf("lifecycle: drop stale %s %s: %v", child.Kind, child.ID, err)
			}
		}
	}
	insertStructured := func(kind goals.GoalKind, title string) {
		if strings.TrimSpace(title) == "" {
			return
		}
		c.registry.Insert(goals.Goal{
			Title:    title,
			Kind:     kind,
			ParentID: g.ID,
			Category: g.Category,
			Priority: g.Priority,
		})
	}
	for _, p := range rf.Phases {
		insertStructured(goals.KindPhase, p.Title)
	}
	for _, m := range rf.Metrics {
		insertStructured(goals.KindMetric, m.Title)
	}
	for _, s := range rf.Slices {
		insertStructured(goals.KindSlice, s.Title)
	}

	return c.registry.Update(g.ID, goals.EventGoalRegenerated, func(g *goals.Goal) error {
		if g.Locked {
			return fmt.Errorf("%w: goal %q is locked", goals.ErrStateConflict, g.Title)
		}
		applyFraming(g, framing{Title: rf.Title, Content: rf.Content, Category: rf.Category, Priority: rf.Priority})
		g.LastError = ""
		g.StampRevision("Regenerated", "AI provided refreshed framing.", nil, time.Now().UTC())
		return nil
	})
}

// Delete removes the goal and all descendants, releasing their scheduled
// sessions externally first, best-effort.
func (c *Controller) Delete(ctx context.Context, id string) (int, error) {
	g, err := c.registry.Get(id)
	if err != nil {
		return 0, err
	}

	var links []goals.SessionLink
	var collect func(g goals.Goal)
	collect = func(g goals.Goal) {
		links = append(links, g.Sessions...)
		for _, child := range c.registry.Children(g.ID) {
			collect(child)
		}
	}
	collect(g)
	c.releaseExternal(links)

	deleted, err := c.registry.Delete(g.ID)
	if err != nil {
		return 0, err
	}
	return len(deleted), nil
}

func (c *Controller) releaseExternal(links []goals.SessionLink) {
	if c.scheduler == nil {
		return
	}
	for _, l := range links {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := c.scheduler.DeleteEntry(ctx, l.ExternalID); err != nil {
			log.Printf("lifecycle: delete calendar entry %s: %v", l.ExternalID, err)
		}
		cancel()
	}
}

// refreshInsightAsync updates the goal's mirror insight in the background.
// Failures land in LastError and never roll anything back.
func (c *Controller) refreshInsightAsync(id string) {
	if c.generator == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		g, err := c.registry.Get(id)
		if err != nil {
			return
		}
		raw, err := c.generator.Complete(ctx, oracle.GenerateRequest{
			SystemPrompt: insightSystemPrompt,
			UserPrompt:   fmt.Sprintf("Title: %s\nContent: %s\nState: %s\nProgress: %.0f%%", g.Title, g.Content, g.State, g.Progress*100),
		})
		if err != nil {
			c.recordError(id, "insight refresh: "+err.Error())
			return
		}
		body, err := oracle.ExtractJSON(raw)
		if err != nil {
			c.recordError(id, "insight refresh: "+err.Error())
			return
		}
		var out struct {
			Summary string `json:"summary"`
		}
		if err := json.Unmarshal([]byte(body), &out); err != nil || strings.TrimSpace(out.Summary) == "" {
			c.recordError(id, "insight refresh: "+oracle.ErrMalformedResponse.Error())
			return
		}
		_, _ = c.registry.Update(id, "", func(g *goals.Goal) error {
			g.InsightSummary = out.Summary
			g.LastError = ""
			return nil
		})
	}()
}

func (c *Controller) recordError(id, msg string) {
	_, _ = c.registry.Update(id, "", func(g *goals.Goal) error {
		g.LastError = msg
		return nil
	})
}

const framingSystemPrompt = `You turn a rough goal idea into a sharp, outcome-oriented framing.
Reply with one JSON object: {"title": string, "content": string, "category": string, "priority": "now"|"next"|"later"}.`

const insightSystemPrompt = `You summarize the state of a goal in one or two sentences.
Reply with one JSON object: {"summary": string}.`

const regenerateSystemPrompt = `You refresh the framing of an existing goal and propose its structure.
Reply with one JSON object: {"title": string, "content": string, "category": string, "priority": "now"|"next"|"later",
"phases": [{"title": string}], "metrics": [{"title": string}], "slices": [{"title": string}]}.`
