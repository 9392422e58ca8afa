package api

import (
	"encoding/json"
	"net/http"
)

const welcomeMessage = "Welcome to Infernum!"

type healthResponse struct {
	Status string `json:"status"`
	State  string `json:"state"`
}

func (s *Server) handleWelcome(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(welcomeMessage))
}

// handleHealthz reports unavailable once the engine worker has exited.
func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{Status: "ok", State: s.engine.State().String()}
	status := http.StatusOK

	select {
	case <-s.engine.Done():
		resp.Status = "unavailable"
		status = http.StatusServiceUnavailable
	default:
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		s.logger.Error("encode healthz response", "error", err)
	}
}
