package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/waypointhq/waypoint/internal/action"
	"github.com/waypointhq/waypoint/internal/config"
	"github.com/waypointhq/waypoint/internal/goals"
	"github.com/waypointhq/waypoint/internal/observability"
	"github.com/waypointhq/waypoint/internal/oracle"
)

type Server struct {
	cfg      config.Config
	registry *goals.Registry
	actions  *action.Router
	metrics  *observability.Metrics
	upgrader websocket.Upgrader
}

func New(cfg config.Config, registry *goals.Registry, actions *action.Router, metrics *observability.Metrics) *Server {
	return &Server{
		cfg:      cfg,
		registry: registry,
		actions:  actions,
		metrics:  metrics,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				// Default: only allow browser websocket connections from the
				// same origin, in case the service is ever exposed beyond
				// localhost.
				if cfg.AllowAnyOrigin {
					return true
				}
				origin := strings.TrimSpace(r.Header.Get("Origin"))
				if origin == "" {
					// Non-browser clients often omit Origin. Allow them.
					return true
				}
				u, err := url.Parse(origin)
				if err != nil {
					return false
				}
				if u.Scheme != "http" && u.Scheme != "https" {
					return false
				}
				return strings.EqualFold(u.Host, r.Host)
			},
		},
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		observability.MetricsHandler().ServeHTTP(w, r)
	})

	r.Post("/v1/actions", s.handleExecuteAction)
	r.Post("/v1/actions/batch", s.handleExecuteBatch)
	r.Get("/v1/goals", s.handleListGoals)
	r.Get("/v1/goals/order", s.handleGoalOrder)
	r.Get("/v1/goals/{id}", s.handleGetGoal)
	r.Get("/v1/goals/{id}/children", s.handleGoalChildren)
	r.Get("/v1/events/ws", s.handleEventsWS)

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
	})
}

func (s *Server) handleReady(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status": "ready",
		"goals":  len(s.registry.List(0)),
	})
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

var errEmptyBody = errors.New("empty body")

func decodeJSON(r *http.Request, out any) error {
	if r.Body == nil {
		return errEmptyBody
	}
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(out); err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "eof") {
			return errEmptyBody
		}
		return err
	}
	return nil
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, errorResponse{Error: message, Code: code})
}

// respondDomainError maps sentinel errors onto HTTP statuses.
func respondDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, goals.ErrNotFound):
		respondError(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, goals.ErrStateConflict):
		respondError(w, http.StatusConflict, "state_conflict", err.Error())
	case errors.Is(err, goals.ErrActivationFailed):
		respondError(w, http.StatusConflict, "activation_failed", err.Error())
	case errors.Is(err, goals.ErrInvalidParameters):
		respondError(w, http.StatusBadRequest, "invalid_parameters", err.Error())
	case errors.Is(err, goals.ErrInsufficientTargets):
		respondError(w, http.StatusBadRequest, "insufficient_targets", err.Error())
	case errors.Is(err, oracle.ErrMalformedResponse):
		respondError(w, http.StatusBadGateway, "oracle_failed", err.Error())
	default:
		respondError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}
