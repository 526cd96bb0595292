package httpapi

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/waypointhq/waypoint/internal/action"
)

func (s *Server) handleListGoals(w http.ResponseWriter, r *http.Request) {
	limit := 100
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			respondError(w, http.StatusBadRequest, "invalid_request", "limit must be a positive integer")
			return
		}
		if n > 500 {
			n = 500
		}
		limit = n
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"goals": s.registry.List(limit),
	})
}

func (s *Server) handleGetGoal(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(chi.URLParam(r, "id"))
	if id == "" {
		respondError(w, http.StatusBadRequest, "invalid_goal_id", "missing goal id")
		return
	}

	g, err := s.registry.Get(id)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"goal":              g,
		"available_actions": action.AvailableActions(g),
		"edges":             s.registry.EdgesTouching(g.ID),
	})
}

func (s *Server) handleGoalChildren(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(chi.URLParam(r, "id"))
	if id == "" {
		respondError(w, http.StatusBadRequest, "invalid_goal_id", "missing goal id")
		return
	}
	if _, err := s.registry.Get(id); err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"goal_id":  id,
		"children": s.registry.Children(id),
	})
}

// handleGoalOrder exposes a topological ordering of the dependency
// overlay. A cycle comes back as a conflict so callers can surface it.
func (s *Server) handleGoalOrder(w http.ResponseWriter, _ *http.Request) {
	order, err := s.registry.TopologicalOrder()
	if err != nil {
		respondError(w, http.StatusConflict, "dependency_cycle", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"order": order,
	})
}
