package oracle

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestExtractJSON(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"bare object", `{"a":1}`, `{"a":1}`},
		{"markdown fence", "```json\n{\"a\":1}\n```", `{"a":1}`},
		{"preamble and trailer", `Sure! Here you go: {"a":1} hope that helps`, `{"a":1}`},
		{"nested braces", `x {"a":{"b":2}} y`, `{"a":{"b":2}}`},
	}
	for _, tc := range cases {
		got, err := ExtractJSON(tc.in)
		if err != nil {
			t.Fatalf("%s: ExtractJSON() error = %v", tc.name, err)
		}
		if got != tc.want {
			t.Fatalf("%s: ExtractJSON() = %q, want %q", tc.name, got, tc.want)
		}
	}
}

func TestExtractJSONRejectsNoObject(t *testing.T) {
	for _, in := range []string{"", "no json here", "} backwards {"} {
		if _, err := ExtractJSON(in); !errors.Is(err, ErrMalformedResponse) {
			t.Fatalf("ExtractJSON(%q) error = %v, want ErrMalformedResponse", in, err)
		}
	}
}

func TestMockGenerativeRepliesAreParseable(t *testing.T) {
	gen := NewMockGenerative()
	prompts := []string{
		"Break this goal into tasks.",
		"Summarize the state of this goal.",
		"Propose phases and structure for this goal.",
		"Frame this goal.",
	}
	for _, prompt := range prompts {
		raw, err := gen.Complete(context.Background(), GenerateRequest{UserPrompt: prompt})
		if err != nil {
			t.Fatalf("Complete(%q) error = %v", prompt, err)
		}
		body, err := ExtractJSON(raw)
		if err != nil {
			t.Fatalf("ExtractJSON(%q reply) error = %v", prompt, err)
		}
		var obj map[string]any
		if err := json.Unmarshal([]byte(body), &obj); err != nil {
			t.Fatalf("reply for %q is not valid JSON: %v", prompt, err)
		}
	}
}

func TestMockSchedulerProposesFutureNonOverlappingSlots(t *testing.T) {
	sched := NewMockScheduler()
	slots, err := sched.ProposeSessions(context.Background(), ScheduleRequest{
		Title: "Train",
		Count: 3,
	})
	if err != nil {
		t.Fatalf("ProposeSessions() error = %v", err)
	}
	if len(slots) != 3 {
		t.Fatalf("len(slots) = %d, want 3", len(slots))
	}
	now := time.Now()
	for i, slot := range slots {
		if !slot.Start.After(now) {
			t.Fatalf("slot %d starts in the past: %v", i, slot.Start)
		}
		if i > 0 && !slot.Start.After(slots[i-1].Start) {
			t.Fatalf("slots not chronological: %v then %v", slots[i-1].Start, slot.Start)
		}
	}
}

func TestMockSchedulerAvoidsBusyWindows(t *testing.T) {
	sched := NewMockScheduler()
	first, err := sched.ProposeSessions(context.Background(), ScheduleRequest{Title: "T", Count: 1})
	if err != nil {
		t.Fatalf("ProposeSessions() error = %v", err)
	}

	busy := []BusyWindow{{Start: first[0].Start, End: first[0].End()}}
	slots, err := sched.ProposeSessions(context.Background(), ScheduleRequest{Title: "T", Count: 1, Busy: busy})
	if err != nil {
		t.Fatalf("ProposeSessions() with busy error = %v", err)
	}
	if slots[0].Start.Equal(first[0].Start) {
		t.Fatalf("proposed slot collides with busy window at %v", slots[0].Start)
	}
}

func TestMockSchedulerStaysWithinHorizon(t *testing.T) {
	sched := NewMockScheduler()
	horizon := 48 * time.Hour
	slots, err := sched.ProposeSessions(context.Background(), ScheduleRequest{
		Title:   "Tight window",
		Count:   10,
		Horizon: horizon,
	})
	if err != nil {
		t.Fatalf("ProposeSessions() error = %v", err)
	}
	if len(slots) == 0 {
		t.Fatalf("no slots proposed inside a %s window", horizon)
	}
	edge := time.Now().UTC().Add(horizon)
	for i, slot := range slots {
		if !slot.Start.Before(edge) {
			t.Fatalf("slot %d at %v lands past the %s horizon", i, slot.Start, horizon)
		}
	}
}

func TestProposedSlotEndDefaultsToOneHour(t *testing.T) {
	start := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	slot := ProposedSlot{Start: start}
	if got := slot.End(); !got.Equal(start.Add(time.Hour)) {
		t.Fatalf("End() = %v, want %v", got, start.Add(time.Hour))
	}
}

func TestNewGenerativeModeSelection(t *testing.T) {
	if _, err := NewGenerative(Config{Mode: "http"}); err == nil {
		t.Fatalf("http mode without URL: error = nil, want error")
	}
	if _, err := NewGenerative(Config{Mode: "teleport"}); err == nil || !strings.Contains(err.Error(), "unsupported") {
		t.Fatalf("unknown mode error = %v, want unsupported mode error", err)
	}

	gen, err := NewGenerative(Config{Mode: "auto"})
	if err != nil {
		t.Fatalf("auto mode error = %v", err)
	}
	if _, ok := gen.(*MockGenerative); !ok {
		t.Fatalf("auto mode without URL = %T, want *MockGenerative", gen)
	}

	gen, err = NewGenerative(Config{Mode: "auto", GenerativeURL: "http://localhost:9/x"})
	if err != nil {
		t.Fatalf("auto mode with URL error = %v", err)
	}
	if _, ok := gen.(*GenerativeHTTP); !ok {
		t.Fatalf("auto mode with URL = %T, want *GenerativeHTTP", gen)
	}
}
