package action

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/waypointhq/waypoint/internal/breakdown"
	"github.com/waypointhq/waypoint/internal/goals"
	"github.com/waypointhq/waypoint/internal/lifecycle"
	"github.com/waypointhq/waypoint/internal/merge"
	"github.com/waypointhq/waypoint/internal/observability"
	"github.com/waypointhq/waypoint/internal/oracle"
)

// Router is the top-level command dispatcher: it resolves targets,
// validates availability and parameters, and delegates to the controller
// that owns the operation. It holds no state of its own beyond routing.
type Router struct {
	registry   *goals.Registry
	controller *lifecycle.Controller
	builder    *breakdown.Builder
	reconciler *merge.Reconciler
	generator  oracle.Generative
	metrics    *observability.Metrics
}

func NewRouter(
	registry *goals.Registry,
	controller *lifecycle.Controller,
	builder *breakdown.Builder,
	reconciler *merge.Reconciler,
	generator oracle.Generative,
	metrics *observability.Metrics,
) *Router {
	return &Router{
		registry:   registry,
		controller: controller,
		builder:    builder,
		reconciler: reconciler,
		generator:  generator,
		metrics:    metrics,
	}
}

// Execute runs one action. Validation failures (unknown type, bad
// parameters, unresolved target, unavailable action) return an error
// before any mutation; failures inside the delegated operation come back
// as a Result with Success=false.
func (r *Router) Execute(ctx context.Context, a Action) (Result, error) {
	started := time.Now()
	res, err := r.execute(ctx, a)
	if r.metrics != nil {
		outcome := "ok"
		if err != nil {
			outcome = "invalid"
		} else if !res.Success {
			outcome = "failed"
		}
		r.metrics.ActionsTotal.WithLabelValues(string(a.Type), outcome).Inc()
		r.metrics.ObserveActionLatency(time.Since(started))
		r.metrics.ActiveGoals.Set(float64(len(r.registry.ActiveGoals())))
	}
	return res, err
}

// ExecuteAll runs a batch best-effort: every action yields exactly one
// result, and a failing item never aborts the rest.
func (r *Router) ExecuteAll(ctx context.Context, actions []Action) []Result {
	out := make([]Result, 0, len(actions))
	for _, a := range actions {
		res, err := r.Execute(ctx, a)
		if err != nil {
			res = Result{Success: false, Message: err.Error()}
		}
		out = append(out, res)
	}
	return out
}

func (r *Router) execute(ctx context.Context, a Action) (Result, error) {
	if err := a.Validate(); err != nil {
		return Result{}, err
	}

	switch a.Type {
	case TypeCreateGoal:
		return r.createGoal(ctx, a)
	case TypeChat:
		return r.chat(ctx, a)
	case TypeMergeGoals:
		return r.mergeGoals(ctx, a)
	case TypeReorderGoals:
		count := r.registry.Reorder(a.TargetIDs)
		return Result{
			Success: true,
			Message: fmt.Sprintf("reordered %d of %d goals", count, len(a.TargetIDs)),
			Data:    map[string]any{"count": count},
		}, nil
	case TypeBulkDelete, TypeBulkArchive, TypeBulkComplete:
		return r.bulk(ctx, a)
	}

	target, err := r.registry.Get(a.TargetID)
	if err != nil {
		return Result{}, err
	}
	// Unlock is the idempotent escape hatch and is always reachable.
	if a.Type != TypeUnlockGoal && !IsAvailable(target, a.Type) {
		if target.Locked {
			return Result{}, fmt.Errorf("%w: goal %q is locked", goals.ErrStateConflict, target.Title)
		}
		return Result{}, fmt.Errorf("%w: action %s is not available for a %s goal", goals.ErrStateConflict, a.Type, target.State)
	}

	return r.dispatchTargeted(ctx, a, target)
}

func (r *Router) dispatchTargeted(ctx context.Context, a Action, target goals.Goal) (Result, error) {
	wrap := func(verb string, g goals.Goal, err error) (Result, error) {
		if err != nil {
			return Result{Success: false, Message: err.Error()}, nil
		}
		return Result{
			Success: true,
			Message: fmt.Sprintf("%s goal %q", verb, g.Title),
			Data:    map[string]any{"goal_id": g.ID},
		}, nil
	}

	switch a.Type {
	case TypeUpdateGoal:
		return r.updateGoal(a, target)
	case TypeActivateGoal:
		g, err := r.controller.Activate(ctx, target.ID)
		return wrap("activated", g, err)
	case TypeDeactivateGoal:
		g, err := r.controller.Deactivate(ctx, target.ID)
		return wrap("deactivated", g, err)
	case TypeCompleteGoal:
		g, err := r.controller.Complete(ctx, target.ID)
		return wrap("completed", g, err)
	case TypeArchiveGoal:
		g, err := r.controller.Archive(ctx, target.ID)
		return wrap("archived", g, err)
	case TypeLockGoal:
		g, err := r.controller.Lock(ctx, target.ID)
		return wrap("locked", g, err)
	case TypeUnlockGoal:
		g, err := r.controller.Unlock(ctx, target.ID)
		return wrap("unlocked", g, err)
	case TypeRegenerateGoal:
		guidance, _ := a.Params.String("guidance")
		g, err := r.controller.Regenerate(ctx, target.ID, guidance)
		return wrap("regenerated", g, err)
	case TypeBreakDownGoal:
		return r.breakDown(ctx, a, target)
	case TypeDeleteGoal:
		count, err := r.controller.Delete(ctx, target.ID)
		if err != nil {
			return Result{Success: false, Message: err.Error()}, nil
		}
		return Result{
			Success: true,
			Message: fmt.Sprintf("deleted goal %q and %d descendants", target.Title, count-1),
			Data:    map[string]any{"deleted": count},
		}, nil
	default:
		return Result{}, fmt.Errorf("%w: unknown action type %q", goals.ErrInvalidParameters, a.Type)
	}
}

func (r *Router) createGoal(ctx context.Context, a Action) (Result, error) {
	title, _ := a.Params.String("title")
	content, _ := a.Params.String("content")
	category, _ := a.Params.String("category")
	autopilot, _ := a.Params.Bool("autopilot")

	priority := goals.PriorityLater
	if s, ok := a.Params.String("priority"); ok {
		p, err := parsePriority(s)
		if err != nil {
			return Result{}, err
		}
		priority = p
	}

	g, err := r.controller.Create(ctx, lifecycle.CreateInput{
		Title:     title,
		Content:   content,
		Category:  category,
		Priority:  priority,
		Autopilot: autopilot,
	})
	if err != nil {
		return Result{Success: false, Message: err.Error()}, nil
	}
	return Result{
		Success: true,
		Message: fmt.Sprintf("created goal %q", g.Title),
		Data:    map[string]any{"goal_id": g.ID},
	}, nil
}

func (r *Router) updateGoal(a Action, target goals.Goal) (Result, error) {
	// Parse everything up front so a bad parameter mutates nothing.
	var priority goals.Priority
	if s, ok := a.Params.String("priority"); ok {
		p, err := parsePriority(s)
		if err != nil {
			return Result{}, err
		}
		priority = p
	}
	var targetDate *time.Time
	if s, ok := a.Params.String("target_date"); ok {
		t, err := parseDate(s)
		if err != nil {
			return Result{}, err
		}
		targetDate = &t
	}

	g, err := r.registry.Update(target.ID, goals.EventGoalUpdated, func(g *goals.Goal) error {
		if g.Locked {
			return fmt.Errorf("%w: goal %q is locked", goals.ErrStateConflict, g.Title)
		}
		if s, ok := a.Params.String("title"); ok && strings.TrimSpace(s) != "" {
			g.Title = strings.TrimSpace(s)
		}
		if s, ok := a.Params.String("content"); ok {
			g.Content = s
		}
		if s, ok := a.Params.String("category"); ok {
			g.Category = s
		}
		if priority != "" {
			g.Priority = priority
		}
		if p, ok := a.Params.Float64("progress"); ok {
			g.Progress = goals.ClampProgress(p)
		}
		if targetDate != nil {
			g.TargetDate = targetDate
		}
		return nil
	})
	if err != nil {
		return Result{Success: false, Message: err.Error()}, nil
	}
	return Result{
		Success: true,
		Message: fmt.Sprintf("updated goal %q", g.Title),
		Data:    map[string]any{"goal_id": g.ID},
	}, nil
}

func (r *Router) breakDown(ctx context.Context, a Action, target goals.Goal) (Result, error) {
	userPrompt := fmt.Sprintf("Title: %s\nContent: %s", target.Title, target.Content)
	if guidance, ok := a.Params.String("guidance"); ok && strings.TrimSpace(guidance) != "" {
		userPrompt += "\nGuidance: " + guidance
	}
	raw, err := r.generator.Complete(ctx, oracle.GenerateRequest{
		SystemPrompt: breakdownSystemPrompt,
		UserPrompt:   userPrompt,
	})
	if err != nil {
		return Result{Success: false, Message: fmt.Sprintf("break down goal: %v", err)}, nil
	}
	nodes, err := breakdown.ParseProposal(raw)
	if err != nil {
		return Result{Success: false, Message: fmt.Sprintf("break down goal: %v", err)}, nil
	}
	res, err := r.builder.Build(target.ID, nodes)
	if err != nil {
		return Result{Success: false, Message: err.Error()}, nil
	}
	return Result{
		Success: true,
		Message: fmt.Sprintf("broke down goal %q into %d tasks (%d atomic, %d dependencies)", target.Title, len(res.CreatedIDs), res.AtomicTasks, res.EdgeCount),
		Data: map[string]any{
			"created_ids":  res.CreatedIDs,
			"edge_count":   res.EdgeCount,
			"atomic_tasks": res.AtomicTasks,
		},
	}, nil
}

func (r *Router) mergeGoals(ctx context.Context, a Action) (Result, error) {
	outcome, err := r.reconciler.Merge(ctx, a.TargetIDs)
	if err != nil {
		return Result{}, err
	}
	return Result{
		Success: outcome.Success,
		Message: outcome.Message,
		Data: map[string]any{
			"primary_id":   outcome.PrimaryID,
			"merged_count": outcome.MergedCount,
		},
	}, nil
}

// bulk runs the underlying single-goal operation per id, skipping
// unresolved ids silently and aggregating a count.
func (r *Router) bulk(ctx context.Context, a Action) (Result, error) {
	var (
		verb   string
		single Type
		apply  func(ctx context.Context, id string) error
	)
	switch a.Type {
	case TypeBulkDelete:
		verb, single = "deleted", TypeDeleteGoal
		apply = func(ctx context.Context, id string) error {
			_, err := r.controller.Delete(ctx, id)
			return err
		}
	case TypeBulkArchive:
		verb, single = "archived", TypeArchiveGoal
		apply = func(ctx context.Context, id string) error {
			_, err := r.controller.Archive(ctx, id)
			return err
		}
	default:
		verb, single = "completed", TypeCompleteGoal
		apply = func(ctx context.Context, id string) error {
			_, err := r.controller.Complete(ctx, id)
			return err
		}
	}

	count := 0
	for _, id := range a.TargetIDs {
		g, err := r.registry.Get(id)
		if err != nil {
			continue
		}
		if !IsAvailable(g, single) {
			continue
		}
		if err := apply(ctx, g.ID); err != nil {
			continue
		}
		count++
	}
	return Result{
		Success: true,
		Message: fmt.Sprintf("%s %d of %d goals", verb, count, len(a.TargetIDs)),
		Data:    map[string]any{"count": count},
	}, nil
}

func (r *Router) chat(ctx context.Context, a Action) (Result, error) {
	message, _ := a.Params.String("message")
	reply, err := r.generator.Complete(ctx, oracle.GenerateRequest{
		SystemPrompt: chatSystemPrompt,
		UserPrompt:   message,
	})
	if err != nil {
		return Result{Success: false, Message: fmt.Sprintf("chat: %v", err)}, nil
	}
	return Result{Success: true, Message: reply}, nil
}

func parsePriority(s string) (goals.Priority, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "now":
		return goals.PriorityNow, nil
	case "next":
		return goals.PriorityNext, nil
	case "later":
		return goals.PriorityLater, nil
	default:
		return "", fmt.Errorf("%w: unknown priority %q", goals.ErrInvalidParameters, s)
	}
}

func parseDate(s string) (time.Time, error) {
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: unparsable target_date %q", goals.ErrInvalidParameters, s)
}

const breakdownSystemPrompt = `You break a goal down into concrete tasks.
Reply with one JSON object: {"tasks": [{"id": string, "title": string, "description": string,
"estimated_effort": string, "difficulty": "easy"|"medium"|"hard", "depends_on": [string], "children": [...]}]}.`

const chatSystemPrompt = `You are a focused goal-planning assistant. Answer briefly and concretely.`
