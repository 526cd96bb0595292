package httpapi

import (
	"net/http"
	"time"
)

// handleEventsWS streams goal registry events to the client until it
// disconnects. Slow clients miss events rather than blocking mutation.
func (s *Server) handleEventsWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	events, cancel := s.registry.Subscribe()
	defer cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		// Drain the read side to notice the client going away.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-done:
			return
		case <-r.Context().Done():
			return
		case evt, ok := <-events:
			if !ok {
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := conn.WriteJSON(evt); err != nil {
				return
			}
			if s.metrics != nil {
				s.metrics.GoalEvents.WithLabelValues(string(evt.Type)).Inc()
			}
		}
	}
}
