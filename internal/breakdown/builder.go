package breakdown

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/waypointhq/waypoint/internal/goals"
	"github.com/waypointhq/waypoint/internal/oracle"
)

// ProposedNode is one entry of an AI-proposed task list, possibly nested.
type ProposedNode struct {
	ID              string         `json:"id,omitempty"`
	Title           string         `json:"title"`
	Description     string         `json:"description,omitempty"`
	EstimatedEffort string         `json:"estimated_effort,omitempty"`
	Difficulty      string         `json:"difficulty,omitempty"`
	DependsOn       []string       `json:"depends_on,omitempty"`
	Children        []ProposedNode `json:"children,omitempty"`
}

// Result reports what one build materialized.
type Result struct {
	CreatedIDs  []string          `json:"created_ids"`
	EdgeCount   int               `json:"edge_count"`
	AtomicTasks int               `json:"atomic_tasks"`
	Slugs       map[string]string `json:"slugs"`
}

// Builder materializes proposed task lists as goal sub-trees with
// cross-node dependency edges.
type Builder struct {
	registry *goals.Registry
}

func NewBuilder(registry *goals.Registry) *Builder {
	return &Builder{registry: registry}
}

// ParseProposal extracts and decodes a breakdown proposal from a raw
// oracle reply. It accepts either {"tasks": [...]} or a bare array.
func ParseProposal(raw string) ([]ProposedNode, error) {
	objStart := strings.Index(raw, "{")
	arrStart := strings.Index(raw, "[")
	if arrStart >= 0 && (objStart < 0 || arrStart < objStart) {
		// A bare JSON array with no object wrapper.
		end := strings.LastIndex(raw, "]")
		if end < arrStart {
			return nil, oracle.ErrMalformedResponse
		}
		var nodes []ProposedNode
		if err := json.Unmarshal([]byte(raw[arrStart:end+1]), &nodes); err != nil {
			return nil, fmt.Errorf("decode proposal: %w", oracle.ErrMalformedResponse)
		}
		return nodes, nil
	}

	body, err := oracle.ExtractJSON(raw)
	if err != nil {
		return nil, err
	}
	var wrapped struct {
		Tasks []ProposedNode `json:"tasks"`
	}
	if err := json.Unmarshal([]byte(body), &wrapped); err != nil {
		return nil, fmt.Errorf("decode proposal: %w", oracle.ErrMalformedResponse)
	}
	return wrapped.Tasks, nil
}

type buildNode struct {
	slug      string
	goalID    string
	dependsOn []string
}

// Build creates a goal sub-tree under rootID from the proposed nodes, in
// two passes. The first pass materializes goals depth-first and assigns
// each node a unique slug. The second pass resolves dependency labels
// against the slug index, so forward references to siblings work. Edges
// never form a cycle within one build because they only point into the
// index built in pass one.
func (b *Builder) Build(rootID string, nodes []ProposedNode) (Result, error) {
	root, err := b.registry.Get(rootID)
	if err != nil {
		return Result{}, err
	}
	if root.Locked {
		return Result{}, fmt.Errorf("%w: goal %q is locked", goals.ErrStateConflict, root.Title)
	}
	if len(nodes) == 0 {
		return Result{}, fmt.Errorf("%w: proposal contains no tasks", goals.ErrInvalidParameters)
	}

	res := Result{Slugs: make(map[string]string)}
	slugs := newSlugSet()
	var built []buildNode

	var materialize func(parentID string, nodes []ProposedNode)
	materialize = func(parentID string, nodes []ProposedNode) {
		for _, node := range nodes {
			label := node.ID
			if strings.TrimSpace(label) == "" {
				label = node.Title
			}
			slug := slugs.claim(label)

			created := b.registry.Insert(goals.Goal{
				Title:     strings.TrimSpace(node.Title),
				Content:   buildContent(node),
				Category:  root.Category,
				Autopilot: root.Autopilot,
				Priority:  difficultyPriority(node.Difficulty),
				ParentID:  parentID,
			})

			res.CreatedIDs = append(res.CreatedIDs, created.ID)
			res.Slugs[slug] = created.ID
			built = append(built, buildNode{slug: slug, goalID: created.ID, dependsOn: node.DependsOn})

			if len(node.Children) == 0 {
				res.AtomicTasks++
				continue
			}
			materialize(created.ID, node.Children)
			_, _ = b.registry.Update(created.ID, "", func(g *goals.Goal) error {
				g.HasBreakdown = true
				return nil
			})
		}
	}
	materialize(root.ID, nodes)

	for _, node := range built {
		for _, label := range node.dependsOn {
			prereqID, ok := res.Slugs[Slugify(label)]
			if !ok || prereqID == node.goalID {
				continue
			}
			if b.registry.AddEdge(goals.DependencyEdge{
				PrerequisiteID: prereqID,
				DependentID:    node.goalID,
			}) {
				res.EdgeCount++
			}
		}
	}

	_, err = b.registry.Update(root.ID, goals.EventGoalBrokenDown, func(g *goals.Goal) error {
		g.HasBreakdown = true
		return nil
	})
	if err != nil {
		return Result{}, err
	}
	return res, nil
}

func difficultyPriority(difficulty string) goals.Priority {
	switch strings.ToLower(strings.TrimSpace(difficulty)) {
	case "hard":
		return goals.PriorityNow
	case "medium":
		return goals.PriorityNext
	default:
		return goals.PriorityLater
	}
}

func buildContent(node ProposedNode) string {
	content := strings.TrimSpace(node.Description)
	if effort := strings.TrimSpace(node.EstimatedEffort); effort != "" {
		if content != "" {
			content += "\n\n"
		}
		content += "Estimated effort: " + effort
	}
	return content
}
