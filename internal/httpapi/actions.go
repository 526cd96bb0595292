package httpapi

import (
	"net/http"

	"github.com/waypointhq/waypoint/internal/action"
)

func (s *Server) handleExecuteAction(w http.ResponseWriter, r *http.Request) {
	var a action.Action
	if err := decodeJSON(r, &a); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	res, err := s.actions.Execute(r.Context(), a)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, res)
}

type batchRequest struct {
	Actions []action.Action `json:"actions"`
}

func (s *Server) handleExecuteBatch(w http.ResponseWriter, r *http.Request) {
	var req batchRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if len(req.Actions) == 0 {
		respondError(w, http.StatusBadRequest, "invalid_request", "actions list is empty")
		return
	}

	results := s.actions.ExecuteAll(r.Context(), req.Actions)
	respondJSON(w, http.StatusOK, map[string]any{
		"results": results,
	})
}
