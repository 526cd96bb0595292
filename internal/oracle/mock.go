package oracle

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
)

// MockGenerative returns deterministic canned JSON so the service runs
// end to end without a model endpoint.
type MockGenerative struct{}

func NewMockGenerative() *MockGenerative {
	return &MockGenerative{}
}

func (m *MockGenerative) Complete(ctx context.Context, req GenerateRequest) (string, error) {
	prompt := strings.ToLower(req.SystemPrompt + " " + req.UserPrompt)
	switch {
	case strings.Contains(prompt, "break") && strings.Contains(prompt, "task"):
		return `{"tasks":[` +
			`{"id":"plan","title":"Plan the approach","description":"Outline the main steps.","estimated_effort":"1h","difficulty":"easy"},` +
			`{"id":"build","title":"Do the core work","description":"Execute the main steps.","estimated_effort":"4h","difficulty":"medium","depends_on":["plan"]},` +
			`{"id":"review","title":"Review and wrap up","description":"Check the result and close out.","estimated_effort":"1h","difficulty":"easy","depends_on":["build"]}` +
			`]}`, nil
	case strings.Contains(prompt, "insight") || strings.Contains(prompt, "summar"):
		return `{"summary":"Steady progress. Keep the next session focused on the earliest open task."}`, nil
	case strings.Contains(prompt, "phases") || strings.Contains(prompt, "structure"):
		return `{"content":"A refreshed framing of the goal with clear phases and measures.",` +
			`"phases":[{"title":"Foundation"},{"title":"Execution"},{"title":"Polish"}],` +
			`"metrics":[{"title":"Weekly check-in done"}],` +
			`"slices":[{"title":"First small win"}]}`, nil
	default:
		return `{"title":"","content":"A concrete, outcome-oriented framing of this goal.","category":"personal","priority":"next"}`, nil
	}
}

// MockScheduler proposes evenly spaced one-hour sessions starting the
// next morning, skipping any busy windows it is given and never reaching
// past the requested horizon.
type MockScheduler struct{}

func NewMockScheduler() *MockScheduler {
	return &MockScheduler{}
}

func (m *MockScheduler) ProposeSessions(ctx context.Context, req ScheduleRequest) ([]ProposedSlot, error) {
	count := req.Count
	if count <= 0 {
		count = 3
	}
	horizon := req.Horizon
	if horizon <= 0 {
		horizon = 7 * 24 * time.Hour
	}

	now := time.Now().UTC()
	edge := now.Add(horizon)
	start := now.Truncate(time.Hour).Add(24 * time.Hour)
	start = time.Date(start.Year(), start.Month(), start.Day(), 9, 0, 0, 0, time.UTC)

	slots := make([]ProposedSlot, 0, count)
	cursor := start
	for len(slots) < count && cursor.Before(edge) {
		if overlapsBusy(cursor, cursor.Add(time.Hour), req.Busy) {
			cursor = cursor.Add(time.Hour)
			continue
		}
		slots = append(slots, ProposedSlot{
			Title:           "Work session: " + req.Title,
			Start:           cursor,
			DurationMinutes: 60,
		})
		cursor = cursor.Add(24 * time.Hour)
	}
	return slots, nil
}

func (m *MockScheduler) CreateEntry(ctx context.Context, entry CalendarEntry) (string, error) {
	return "mock-cal-" + uuid.NewString(), nil
}

func (m *MockScheduler) DeleteEntry(ctx context.Context, externalID string) error {
	return nil
}

func overlapsBusy(start, end time.Time, busy []BusyWindow) bool {
	for _, w := range busy {
		if start.Before(w.End) && w.Start.Before(end) {
			return true
		}
	}
	return false
}
