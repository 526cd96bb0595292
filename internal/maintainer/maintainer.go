package maintainer

import (
	"context"
	"log"
	"sort"
	"time"

	"github.com/waypointhq/waypoint/internal/goals"
	"github.com/waypointhq/waypoint/internal/observability"
	"github.com/waypointhq/waypoint/internal/oracle"
)

// Maintainer keeps every active goal's pool of upcoming sessions above a
// minimum: concluded sessions are purged, deficits are topped up from the
// scheduling oracle. Each iteration commits its changes atomically per
// goal, so cancellation between goals never leaves a half-filled deficit.
type Maintainer struct {
	registry  *goals.Registry
	scheduler oracle.Scheduler
	metrics   *observability.Metrics

	minUpcoming int
	horizon     time.Duration
}

type Option func(*Maintainer)

// WithMinUpcoming sets the session floor per active goal.
func WithMinUpcoming(n int) Option {
	return func(m *Maintainer) {
		if n > 0 {
			m.minUpcoming = n
		}
	}
}

// WithHorizon sets the scheduling window passed to the oracle.
func WithHorizon(d time.Duration) Option {
	return func(m *Maintainer) {
		if d > 0 {
			m.horizon = d
		}
	}
}

// WithMetrics wires session create/purge counters.
func WithMetrics(metrics *observability.Metrics) Option {
	return func(m *Maintainer) {
		m.metrics = metrics
	}
}

func New(registry *goals.Registry, scheduler oracle.Scheduler, opts ...Option) *Maintainer {
	m := &Maintainer{
		registry:    registry,
		scheduler:   scheduler,
		minUpcoming: 3,
		horizon:     7 * 24 * time.Hour,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Start runs the maintenance loop until ctx is cancelled.
func (m *Maintainer) Start(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		log.Printf("maintainer: started, interval %s", interval)
		for {
			select {
			case <-ctx.Done():
				log.Printf("maintainer: stopped")
				return
			case <-ticker.C:
				created, purged := m.RunOnce(ctx, time.Now().UTC())
				if created > 0 || purged > 0 {
					log.Printf("maintainer: created %d sessions, purged %d", created, purged)
				}
			}
		}
	}()
}

// RunOnce performs one maintenance pass over all active, unfinished
// goals and reports how many sessions were created and purged.
func (m *Maintainer) RunOnce(ctx context.Context, now time.Time) (created, purged int) {
	defer func() {
		if m.metrics == nil {
			return
		}
		m.metrics.SessionsMaintained.WithLabelValues("created").Add(float64(created))
		m.metrics.SessionsMaintained.WithLabelValues("purged").Add(float64(purged))
	}()
	for _, g := range m.registry.ActiveGoals() {
		if ctx.Err() != nil {
			return created, purged
		}
		c, p := m.maintainGoal(ctx, g, now)
		created += c
		purged += p
	}
	return created, purged
}

func (m *Maintainer) maintainGoal(ctx context.Context, g goals.Goal, now time.Time) (created, purged int) {
	upcoming := make([]goals.SessionLink, 0, len(g.Sessions))
	for _, l := range g.Sessions {
		if l.Concluded(now) {
			// Best-effort external cleanup; the local link goes either way.
			if err := m.scheduler.DeleteEntry(ctx, l.ExternalID); err != nil {
				log.Printf("maintainer: delete entry %s: %v", l.ExternalID, err)
			}
			purged++
			continue
		}
		upcoming = append(upcoming, l)
	}

	deficit := m.minUpcoming - len(upcoming)
	if deficit > 0 {
		fresh := m.fillDeficit(ctx, g, upcoming, deficit, now)
		upcoming = append(upcoming, fresh...)
		created = len(fresh)
	}

	if created == 0 && purged == 0 {
		return 0, 0
	}
	if _, err := m.registry.ReplaceSessions(g.ID, upcoming, true); err != nil {
		log.Printf("maintainer: commit sessions for %s: %v", g.ID, err)
	}
	return created, purged
}

// fillDeficit asks the oracle for fresh slots and keeps up to deficit
// future, non-colliding ones in chronological order. The collision key
// is the start time truncated to the minute.
func (m *Maintainer) fillDeficit(ctx context.Context, g goals.Goal, upcoming []goals.SessionLink, deficit int, now time.Time) []goals.SessionLink {
	busy := make([]oracle.BusyWindow, 0, len(upcoming))
	taken := make(map[time.Time]bool, len(upcoming))
	for _, l := range upcoming {
		busy = append(busy, oracle.BusyWindow{Start: l.Start, End: l.End})
		taken[l.Start.UTC().Truncate(time.Minute)] = true
	}

	slots, err := m.scheduler.ProposeSessions(ctx, oracle.ScheduleRequest{
		GoalID:  g.ID,
		Title:   g.Title,
		Content: g.Content,
		Busy:    busy,
		Horizon: m.horizon,
		Count:   deficit,
	})
	if err != nil {
		log.Printf("maintainer: propose sessions for %s: %v", g.ID, err)
		return nil
	}
	sort.Slice(slots, func(i, j int) bool {
		return slots[i].Start.Before(slots[j].Start)
	})

	links := make([]goals.SessionLink, 0, deficit)
	for _, slot := range slots {
		if len(links) >= deficit {
			break
		}
		if !slot.Start.After(now) {
			continue
		}
		key := slot.Start.UTC().Truncate(time.Minute)
		if taken[key] {
			continue
		}
		title := slot.Title
		if title == "" {
			title = "Work session: " + g.Title
		}
		externalID, err := m.scheduler.CreateEntry(ctx, oracle.CalendarEntry{
			Title: title,
			Start: slot.Start,
			End:   slot.End(),
			Note:  slot.Note,
		})
		if err != nil {
			log.Printf("maintainer: create entry for %s: %v", g.ID, err)
			continue
		}
		taken[key] = true
		links = append(links, goals.SessionLink{
			ExternalID: externalID,
			Title:      title,
			Start:      slot.Start,
			End:        slot.End(),
			Status:     "scheduled",
		})
	}
	return links
}
