package action

import (
	"encoding/json"
	"fmt"

	"github.com/waypointhq/waypoint/internal/goals"
)

// Type identifies one routable action.
type Type string

const (
	TypeCreateGoal     Type = "create_goal"
	TypeUpdateGoal     Type = "update_goal"
	TypeActivateGoal   Type = "activate_goal"
	TypeDeactivateGoal Type = "deactivate_goal"
	TypeCompleteGoal   Type = "complete_goal"
	TypeArchiveGoal    Type = "archive_goal"
	TypeLockGoal       Type = "lock_goal"
	TypeUnlockGoal     Type = "unlock_goal"
	TypeRegenerateGoal Type = "regenerate_goal"
	TypeBreakDownGoal  Type = "break_down_goal"
	TypeDeleteGoal     Type = "delete_goal"
	TypeMergeGoals     Type = "merge_goals"
	TypeReorderGoals   Type = "reorder_goals"
	TypeBulkDelete     Type = "bulk_delete"
	TypeBulkArchive    Type = "bulk_archive"
	TypeBulkComplete   Type = "bulk_complete"
	TypeChat           Type = "chat"
)

// Action is the envelope emitted by the chat/AI layer.
type Action struct {
	Type      Type     `json:"type"`
	TargetID  string   `json:"target_id,omitempty"`
	TargetIDs []string `json:"target_ids,omitempty"`
	Params    Params   `json:"parameters,omitempty"`
}

// Result is the uniform outcome wrapper for every executed action.
type Result struct {
	Success bool           `json:"success"`
	Message string         `json:"message"`
	Data    map[string]any `json:"data,omitempty"`
}

// Parse decodes and validates one action envelope.
func Parse(data []byte) (Action, error) {
	var a Action
	if err := json.Unmarshal(data, &a); err != nil {
		return Action{}, fmt.Errorf("%w: %v", goals.ErrInvalidParameters, err)
	}
	if err := a.Validate(); err != nil {
		return Action{}, err
	}
	return a, nil
}

// singleTarget maps action types that require exactly one target id.
var singleTarget = map[Type]bool{
	TypeUpdateGoal:     true,
	TypeActivateGoal:   true,
	TypeDeactivateGoal: true,
	TypeCompleteGoal:   true,
	TypeArchiveGoal:    true,
	TypeLockGoal:       true,
	TypeUnlockGoal:     true,
	TypeRegenerateGoal: true,
	TypeBreakDownGoal:  true,
	TypeDeleteGoal:     true,
}

// multiTarget maps action types that operate on an explicit id list.
var multiTarget = map[Type]bool{
	TypeMergeGoals:   true,
	TypeReorderGoals: true,
	TypeBulkDelete:   true,
	TypeBulkArchive:  true,
	TypeBulkComplete: true,
}

type fieldSpec struct {
	key      string
	kind     ValueKind
	required bool
}

// schemas declares the parameter contract per action type. Keys outside
// the schema are tolerated and ignored.
var schemas = map[Type][]fieldSpec{
	TypeCreateGoal: {
		{key: "title", kind: KindString, required: true},
		{key: "content", kind: KindString},
		{key: "category", kind: KindString},
		{key: "priority", kind: KindString},
		{key: "autopilot", kind: KindBool},
	},
	TypeUpdateGoal: {
		{key: "title", kind: KindString},
		{key: "content", kind: KindString},
		{key: "category", kind: KindString},
		{key: "priority", kind: KindString},
		{key: "progress", kind: KindNumber},
		{key: "target_date", kind: KindString},
	},
	TypeBreakDownGoal: {
		{key: "guidance", kind: KindString},
	},
	TypeRegenerateGoal: {
		{key: "guidance", kind: KindString},
	},
	TypeChat: {
		{key: "message", kind: KindString, required: true},
	},
}

// Validate checks the envelope shape and parameter schema. It never
// touches entity state.
func (a Action) Validate() error {
	if !singleTarget[a.Type] && !multiTarget[a.Type] &&
		a.Type != TypeCreateGoal && a.Type != TypeChat {
		return fmt.Errorf("%w: unknown action type %q", goals.ErrInvalidParameters, a.Type)
	}
	if singleTarget[a.Type] && a.TargetID == "" {
		return fmt.Errorf("%w: action %s requires target_id", goals.ErrInvalidParameters, a.Type)
	}
	if multiTarget[a.Type] && len(a.TargetIDs) == 0 {
		return fmt.Errorf("%w: action %s requires target_ids", goals.ErrInvalidParameters, a.Type)
	}

	for _, spec := range schemas[a.Type] {
		v, ok := a.Params[spec.key]
		if !ok || v.Kind == KindNull {
			if spec.required {
				return fmt.Errorf("%w: action %s requires parameter %q", goals.ErrInvalidParameters, a.Type, spec.key)
			}
			continue
		}
		if err := expectKind(spec.key, v, spec.kind); err != nil {
			return fmt.Errorf("%w: action %s: %v", goals.ErrInvalidParameters, a.Type, err)
		}
	}
	return nil
}
