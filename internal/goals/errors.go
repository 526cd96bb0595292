package goals

import "errors"

var (
	// ErrNotFound means target resolution failed in both the working set
	// and the durable store.
	ErrNotFound = errors.New("goal not found")
	// ErrStateConflict means the goal exists but its state or lock forbids
	// the requested action.
	ErrStateConflict = errors.New("state conflict")
	// ErrInvalidParameters means the action's parameter bag failed schema
	// validation before any mutation.
	ErrInvalidParameters = errors.New("invalid parameters")
	// ErrInsufficientTargets means a bulk or merge action resolved fewer
	// than two targets.
	ErrInsufficientTargets = errors.New("insufficient targets")
	// ErrActivationFailed means the scheduling oracle proposed zero
	// sessions; the goal is left untouched.
	ErrActivationFailed = errors.New("activation failed")
)
