package api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/seantiz/infernum/internal/engine"
)

type stateResponse struct {
	State   string `json:"state"`
	Pending int    `json:"pending"`
}

func (s *Server) handleGetState(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, stateResponse{
		State:   s.engine.State().String(),
		Pending: s.engine.Pending(),
	})
}

// handleStreamState streams engine state transitions as server-sent events.
// The current state is sent first. The stream ends with a "done" event once
// the engine or the HTTP server shuts down.
func (s *Server) handleStreamState(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	// Disable write timeout for long-lived SSE connections.
	rc := http.NewResponseController(w)
	if err := rc.SetWriteDeadline(time.Time{}); err != nil {
		s.logger.Error("set write deadline for SSE", "error", err)
	}

	// Subscribe before reading the current state so no transition is missed.
	ch, unsub := s.engine.Broker().Subscribe()
	defer unsub()
	stateStreamClients.Inc()
	defer stateStreamClients.Dec()

	w.WriteHeader(http.StatusOK)
	flusher, canFlush := w.(http.Flusher)

	if err := writeStateEvent(w, s.engine.State()); err != nil {
		return
	}
	if canFlush {
		flusher.Flush()
	}

	for {
		select {
		case st, ok := <-ch:
			if !ok {
				writeDone(w, flusher, canFlush, "engine stopped")
				return
			}
			if err := writeStateEvent(w, st); err != nil {
				return // Write failed (e.g. client gone).
			}
			if canFlush {
				flusher.Flush()
			}
		case <-s.stopping:
			writeDone(w, flusher, canFlush, "server shutting down")
			return
		case <-r.Context().Done():
			return // Client disconnected.
		}
	}
}

func writeDone(w http.ResponseWriter, flusher http.Flusher, canFlush bool, reason string) {
	_ = writeSSEEvent(w, "done", reason)
	if canFlush {
		flusher.Flush()
	}
}

func writeStateEvent(w http.ResponseWriter, st engine.State) error {
	return writeSSEEvent(w, "state", fmt.Sprintf(`{"state":%q}`, st.String()))
}

// writeSSEEvent writes a named SSE event (event: <type>\ndata: <data>\n\n).
func writeSSEEvent(w http.ResponseWriter, eventType, data string) error {
	if _, err := fmt.Fprintf(w, "event: %s\n", eventType); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
		return err
	}
	return nil
}
