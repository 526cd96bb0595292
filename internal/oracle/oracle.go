package oracle

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// GenerateRequest is the normalized request sent to the generative oracle.
type GenerateRequest struct {
	SystemPrompt string `json:"system_prompt"`
	UserPrompt   string `json:"user_prompt"`
}

// Generative produces free text expected to contain one JSON object
// matching a per-operation schema.
type Generative interface {
	Complete(ctx context.Context, req GenerateRequest) (string, error)
}

// BusyWindow is an occupied time range the scheduler must plan around.
type BusyWindow struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// ScheduleRequest asks the scheduling oracle for work-session proposals.
type ScheduleRequest struct {
	GoalID  string        `json:"goal_id"`
	Title   string        `json:"title"`
	Content string        `json:"content,omitempty"`
	Busy    []BusyWindow  `json:"busy,omitempty"`
	Horizon time.Duration `json:"horizon"`
	Count   int           `json:"count,omitempty"`
}

// ProposedSlot is one scheduling suggestion.
type ProposedSlot struct {
	Title           string    `json:"title"`
	Start           time.Time `json:"start_time"`
	DurationMinutes int       `json:"duration_minutes"`
	Note            string    `json:"note,omitempty"`
}

func (s ProposedSlot) End() time.Time {
	minutes := s.DurationMinutes
	if minutes <= 0 {
		minutes = 60
	}
	return s.Start.Add(time.Duration(minutes) * time.Minute)
}

// CalendarEntry is an opaque-id calendar record created for a session link.
type CalendarEntry struct {
	Title string    `json:"title"`
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
	Note  string    `json:"note,omitempty"`
}

// Scheduler is the scheduling oracle plus its create/delete primitive.
type Scheduler interface {
	ProposeSessions(ctx context.Context, req ScheduleRequest) ([]ProposedSlot, error)
	CreateEntry(ctx context.Context, entry CalendarEntry) (string, error)
	DeleteEntry(ctx context.Context, externalID string) error
}

// ErrMalformedResponse marks an oracle payload with no parsable JSON object.
var ErrMalformedResponse = errors.New("oracle response contains no JSON object")

// Config controls oracle adapter construction.
type Config struct {
	Mode          string
	GenerativeURL string
	SchedulerURL  string
	Timeout       time.Duration
	MaxAttempts   int
	RetryBase     time.Duration
	RetryCap      time.Duration

	// OnError, when set, observes every failed call attempt with the
	// oracle name and a machine-readable failure code.
	OnError func(oracle, code string)
}

func (cfg Config) withDefaults() Config {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.RetryBase <= 0 {
		cfg.RetryBase = 250 * time.Millisecond
	}
	if cfg.RetryCap <= 0 {
		cfg.RetryCap = 4 * time.Second
	}
	return cfg
}

// NewGenerative builds a generative oracle client for the configured mode.
func NewGenerative(cfg Config) (Generative, error) {
	cfg = cfg.withDefaults()
	mode := strings.ToLower(strings.TrimSpace(cfg.Mode))
	if mode == "" {
		mode = "auto"
	}
	switch mode {
	case "auto":
		if strings.TrimSpace(cfg.GenerativeURL) != "" {
			return NewGenerativeHTTP(cfg), nil
		}
		return NewMockGenerative(), nil
	case "http":
		if strings.TrimSpace(cfg.GenerativeURL) == "" {
			return nil, errors.New("generative oracle url is required for http mode")
		}
		return NewGenerativeHTTP(cfg), nil
	case "mock":
		return NewMockGenerative(), nil
	default:
		return nil, fmt.Errorf("unsupported oracle mode %q", cfg.Mode)
	}
}

// NewScheduler builds a scheduling oracle client for the configured mode.
func NewScheduler(cfg Config) (Scheduler, error) {
	cfg = cfg.withDefaults()
	mode := strings.ToLower(strings.TrimSpace(cfg.Mode))
	if mode == "" {
		mode = "auto"
	}
	switch mode {
	case "auto":
		if strings.TrimSpace(cfg.SchedulerURL) != "" {
			return NewSchedulerHTTP(cfg), nil
		}
		return NewMockScheduler(), nil
	case "http":
		if strings.TrimSpace(cfg.SchedulerURL) == "" {
			return nil, errors.New("scheduler oracle url is required for http mode")
		}
		return NewSchedulerHTTP(cfg), nil
	case "mock":
		return NewMockScheduler(), nil
	default:
		return nil, fmt.Errorf("unsupported oracle mode %q", cfg.Mode)
	}
}
