package goals

import "time"

type ActivationState string

const (
	StateDraft     ActivationState = "draft"
	StateActive    ActivationState = "active"
	StateCompleted ActivationState = "completed"
	StateArchived  ActivationState = "archived"
)

type Priority string

const (
	PriorityNow   Priority = "now"
	PriorityNext  Priority = "next"
	PriorityLater Priority = "later"
)

// Urgency orders priorities for merge precedence. Higher wins.
func (p Priority) Urgency() int {
	switch p {
	case PriorityNow:
		return 2
	case PriorityNext:
		return 1
	default:
		return 0
	}
}

// GoalKind separates user goals from the structured sub-objects that
// regeneration produces and replaces wholesale.
type GoalKind string

const (
	KindGoal   GoalKind = "goal"
	KindPhase  GoalKind = "phase"
	KindMetric GoalKind = "metric"
	KindSlice  GoalKind = "slice"
)

type DependencyKind string

const (
	DepFinishToStart  DependencyKind = "finish_to_start"
	DepStartToStart   DependencyKind = "start_to_start"
	DepFinishToFinish DependencyKind = "finish_to_finish"
)

// DependencyEdge is a directed prerequisite->dependent relation overlaid on
// the tree; edges may cross branches.
type DependencyEdge struct {
	PrerequisiteID string         `json:"prerequisite_id"`
	DependentID    string         `json:"dependent_id"`
	Kind           DependencyKind `json:"kind"`
}

// Revision is an append-only log entry recording a state change.
type Revision struct {
	ID        string    `json:"id"`
	Summary   string    `json:"summary"`
	Rationale string    `json:"rationale"`
	At        time.Time `json:"at"`
	Snapshot  *Snapshot `json:"snapshot,omitempty"`
}

// SessionLink pairs a goal with an externally scheduled time block.
type SessionLink struct {
	ExternalID string    `json:"external_id"`
	Title      string    `json:"title,omitempty"`
	Start      time.Time `json:"start"`
	End        time.Time `json:"end"`
	Status     string    `json:"status,omitempty"`
}

// Concluded reports whether the session is in the past relative to now.
// A session with no end is concluded once its start has passed.
func (l SessionLink) Concluded(now time.Time) bool {
	if !l.End.IsZero() {
		return !l.End.After(now)
	}
	return !l.Start.After(now)
}

// Snapshot is an immutable capture of a goal's key fields.
type Snapshot struct {
	Title    string    `json:"title"`
	Content  string    `json:"content"`
	Category string    `json:"category"`
	Priority Priority  `json:"priority"`
	Progress float64   `json:"progress"`
	Summary  string    `json:"summary,omitempty"`
	At       time.Time `json:"at"`
}

type Goal struct {
	ID       string          `json:"id"`
	Title    string          `json:"title"`
	Content  string          `json:"content"`
	Category string          `json:"category,omitempty"`
	Kind     GoalKind        `json:"kind"`
	Priority Priority        `json:"priority"`
	State    ActivationState `json:"state"`
	Locked   bool            `json:"locked"`
	Progress float64         `json:"progress"`

	ParentID     string   `json:"parent_id,omitempty"`
	ChildIDs     []string `json:"child_ids,omitempty"`
	OrderIndex   int      `json:"order_index"`
	HasBreakdown bool     `json:"has_breakdown,omitempty"`
	Autopilot    bool     `json:"autopilot,omitempty"`

	TargetDate     *time.Time    `json:"target_date,omitempty"`
	Revisions      []Revision    `json:"revisions,omitempty"`
	Sessions       []SessionLink `json:"sessions,omitempty"`
	LockedSnapshot *Snapshot     `json:"locked_snapshot,omitempty"`

	InsightSummary string `json:"insight_summary,omitempty"`
	LastError      string `json:"last_error,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (g Goal) Clone() Goal {
	out := g
	if g.ChildIDs != nil {
		out.ChildIDs = make([]string, len(g.ChildIDs))
		copy(out.ChildIDs, g.ChildIDs)
	}
	if g.Revisions != nil {
		out.Revisions = make([]Revision, len(g.Revisions))
		copy(out.Revisions, g.Revisions)
	}
	if g.Sessions != nil {
		out.Sessions = make([]SessionLink, len(g.Sessions))
		copy(out.Sessions, g.Sessions)
	}
	if g.TargetDate != nil {
		t := *g.TargetDate
		out.TargetDate = &t
	}
	if g.LockedSnapshot != nil {
		s := *g.LockedSnapshot
		out.LockedSnapshot = &s
	}
	return out
}

// UpcomingSessions returns sessions strictly in the future, oldest first.
func (g Goal) UpcomingSessions(now time.Time) []SessionLink {
	out := make([]SessionLink, 0, len(g.Sessions))
	for _, l := range g.Sessions {
		if !l.Concluded(now) {
			out = append(out, l)
		}
	}
	return out
}

// SnapshotOf captures the lockable fields of a goal.
func SnapshotOf(g Goal, summary string, at time.Time) *Snapshot {
	return &Snapshot{
		Title:    g.Title,
		Content:  g.Content,
		Category: g.Category,
		Priority: g.Priority,
		Progress: g.Progress,
		Summary:  summary,
		At:       at,
	}
}

// ClampProgress keeps progress inside [0, 1].
func ClampProgress(p float64) float64 {
	if p < 0 {
		return 0
	}
	if p > 1 {
		return 1
	}
	return p
}

type EventType string

const (
	EventGoalCreated     EventType = "goal_created"
	EventGoalUpdated     EventType = "goal_updated"
	EventGoalActivated   EventType = "goal_activated"
	EventGoalDeactivated EventType = "goal_deactivated"
	EventGoalCompleted   EventType = "goal_completed"
	EventGoalArchived    EventType = "goal_archived"
	EventGoalLocked      EventType = "goal_locked"
	EventGoalUnlocked    EventType = "goal_unlocked"
	EventGoalRegenerated EventType = "goal_regenerated"
	EventGoalBrokenDown  EventType = "goal_broken_down"
	EventGoalMerged      EventType = "goal_merged"
	EventGoalDeleted     EventType = "goal_deleted"
	EventSessionsChanged EventType = "sessions_changed"
)

// Event is published on every registry mutation for stream consumers.
type Event struct {
	Type   EventType `json:"type"`
	GoalID string    `json:"goal_id"`
	Title  string    `json:"title,omitempty"`
	Detail string    `json:"detail,omitempty"`
	At     time.Time `json:"at"`
}
