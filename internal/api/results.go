package api

import (
	"context"
	"net/http"

	"github.com/seantiz/infernum/internal/backend"
	"github.com/seantiz/infernum/internal/engine"
	"github.com/seantiz/infernum/internal/imageio"
	"github.com/seantiz/infernum/internal/model"
)

const noResultMessage = "no result available"

// inferenceResult is the payload of a successful GET /v1/results.
type inferenceResult struct {
	ID        uint64       `json:"id"`
	RecordID  string       `json:"record_id,omitempty"`
	Prompt    string       `json:"prompt"`
	ImageSize imageio.Size `json:"image_size"`
	// StartTime is the Unix time in nanoseconds at which the model started.
	StartTime int64  `json:"start_time"`
	Duration  string `json:"duration"`
	Response  string `json:"response"`
}

type resultResponse struct {
	Status   string           `json:"status"`
	Response *inferenceResult `json:"response,omitempty"`
	ID       uint64           `json:"id,omitempty"`
	Message  string           `json:"message,omitempty"`
}

// handleResults dequeues at most one completed response. Every poll is
// answered with 200; the body's status says which of the three outcomes
// occurred.
func (s *Server) handleResults(w http.ResponseWriter, r *http.Request) {
	res := s.engine.TryPollResponse()
	resultPollsTotal.WithLabelValues(res.Status.String()).Inc()

	switch res.Status {
	case engine.PollSuccess:
		resp := res.Response
		recordID := s.finishRecord(r.Context(), resp)
		s.logger.Info("result delivered", "id", resp.ID, "duration_ms", resp.Duration.Milliseconds())

		s.writeJSON(w, http.StatusOK, resultResponse{
			Status: "success",
			Response: &inferenceResult{
				ID:        resp.ID,
				RecordID:  recordID,
				Prompt:    resp.Metadata.Prompt,
				ImageSize: resp.Metadata.ImageSize,
				StartTime: resp.StartTime.UnixNano(),
				Duration:  resp.Duration.String(),
				Response:  resp.Result.Text,
			},
		})

	case engine.PollError:
		s.finishRecord(r.Context(), res.Response)
		s.logger.Warn("inference failed", "id", res.Response.ID, "error", res.Err)

		s.writeJSON(w, http.StatusOK, resultResponse{
			Status:  "error",
			ID:      res.Response.ID,
			Message: res.Err.Error(),
		})

	default:
		s.writeJSON(w, http.StatusOK, resultResponse{
			Status:  res.State.String(),
			Message: noResultMessage,
		})
	}
}

// finishRecord stores the outcome of resp on its history record and returns
// the record id. Store failures are logged; the result is still delivered.
func (s *Server) finishRecord(ctx context.Context, resp *engine.Response[backend.Response, backend.Metadata]) string {
	recordID, ok := s.untrackRecord(resp.ID)
	if !ok {
		s.logger.Warn("no record for result", "id", resp.ID)
		return ""
	}

	started := resp.StartTime.UTC()
	durationMS := resp.Duration.Milliseconds()
	finished := started.Add(resp.Duration)
	rec := &model.Record{
		ID:         recordID,
		Status:     model.StatusCompleted,
		Response:   resp.Result.Text,
		DurationMS: &durationMS,
		StartedAt:  &started,
		FinishedAt: &finished,
	}
	if resp.Err != nil {
		rec.Status = model.StatusFailed
		rec.Response = ""
		rec.Error = resp.Err.Error()
	}

	if err := s.store.FinishRecord(ctx, rec); err != nil {
		s.logger.Error("finish record", "record_id", recordID, "error", err)
	}
	return recordID
}

