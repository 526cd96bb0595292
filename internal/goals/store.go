package goals

import (
	"context"
	"errors"
)

var ErrStoreNotFound = errors.New("goal not found in store")

// Store is the durable side of the entity graph. The registry treats it as
// a black box and never blocks a mutation on it.
type Store interface {
	SaveGoal(ctx context.Context, g Goal) error
	GetGoal(ctx context.Context, id string) (Goal, error)
	DeleteGoal(ctx context.Context, id string) error
	ListGoals(ctx context.Context, limit int) ([]Goal, error)
	ReplaceEdges(ctx context.Context, edges []DependencyEdge) error
	ListEdges(ctx context.Context) ([]DependencyEdge, error)
	Close() error
}
