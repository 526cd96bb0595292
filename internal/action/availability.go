package action

import "github.com/waypointhq/waypoint/internal/goals"

// availableByState lists the mutating actions each activation state
// exposes when the goal is not locked. Derived, never stored.
var availableByState = map[goals.ActivationState][]Type{
	goals.StateDraft: {
		TypeActivateGoal, TypeLockGoal, TypeRegenerateGoal,
		TypeBreakDownGoal, TypeUpdateGoal, TypeDeleteGoal, TypeMergeGoals,
	},
	goals.StateActive: {
		TypeDeactivateGoal, TypeCompleteGoal, TypeArchiveGoal,
		TypeLockGoal, TypeUpdateGoal, TypeBreakDownGoal,
		TypeDeleteGoal, TypeMergeGoals,
	},
	goals.StateCompleted: {
		TypeArchiveGoal, TypeDeleteGoal, TypeMergeGoals,
	},
	goals.StateArchived: {
		TypeActivateGoal, TypeDeleteGoal,
	},
}

// AvailableActions returns the action set the goal currently exposes.
// A locked goal exposes only unlock.
func AvailableActions(g goals.Goal) []Type {
	if g.Locked {
		return []Type{TypeUnlockGoal}
	}
	out := make([]Type, len(availableByState[g.State]))
	copy(out, availableByState[g.State])
	return out
}

// IsAvailable reports whether the action type is allowed against the
// goal in its current state.
func IsAvailable(g goals.Goal, t Type) bool {
	for _, allowed := range AvailableActions(g) {
		if allowed == t {
			return true
		}
	}
	return false
}
