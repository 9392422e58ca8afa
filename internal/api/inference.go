package api

import (
	"encoding/json"
	"errors"
	"io/fs"
	"net/http"
	"strings"
	"time"

	"github.com/seantiz/infernum/internal/backend"
	"github.com/seantiz/infernum/internal/engine"
	"github.com/seantiz/infernum/internal/imageio"
	"github.com/seantiz/infernum/internal/model"
)

const maxBodySize = 1 << 20 // 1 MB

// inferenceRequest is the JSON body for POST /v1/inference.
type inferenceRequest struct {
	Prompt    string `json:"prompt"`
	ImagePath string `json:"image_path"`
}

type scheduledResponse struct {
	Status   string `json:"status"`
	ID       uint64 `json:"id"`
	RecordID string `json:"record_id"`
}

func (s *Server) handleInference(w http.ResponseWriter, r *http.Request) {
	var req inferenceRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.rejectSubmission(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	if strings.TrimSpace(req.Prompt) == "" {
		s.rejectSubmission(w, http.StatusBadRequest, "prompt is required")
		return
	}
	if req.ImagePath == "" {
		s.rejectSubmission(w, http.StatusBadRequest, "image_path is required")
		return
	}

	if s.settings.RejectWhenBusy && s.busy() {
		s.logger.Debug("rejecting inference, engine busy", "state", s.engine.State().String())
		s.rejectSubmission(w, http.StatusConflict, "engine is still processing")
		return
	}

	img, err := imageio.Read(req.ImagePath)
	if err != nil {
		s.rejectSubmission(w, http.StatusBadRequest, imageErrorMessage(err))
		return
	}

	rec := &model.Record{
		ID:          model.NewID(),
		RequestID:   s.nextRequestID.Add(1),
		Model:       s.settings.Model,
		Status:      model.StatusPending,
		Prompt:      req.Prompt,
		ImageWidth:  img.Size.Width,
		ImageHeight: img.Size.Height,
		CreatedAt:   time.Now().UTC(),
	}
	if err := s.store.CreateRecord(r.Context(), rec); err != nil {
		s.logger.Error("create record", "error", err)
		s.rejectSubmission(w, http.StatusInternalServerError, "failed to record inference")
		return
	}

	// The mapping must exist before the worker can finish the request.
	s.trackRecord(rec.RequestID, rec.ID)

	err = s.engine.ScheduleWithID(rec.RequestID, backend.Request{
		Prompt:    req.Prompt,
		Image:     img,
		SampleLen: s.settings.SampleLen,
	})
	if err != nil {
		s.untrackRecord(rec.RequestID)
		s.abandonRecord(r, rec, err)
		if errors.Is(err, engine.ErrWorkerUnavailable) || errors.Is(err, engine.ErrQueueFull) {
			s.rejectSubmission(w, http.StatusServiceUnavailable, err.Error())
			return
		}
		s.logger.Error("schedule inference", "error", err)
		s.rejectSubmission(w, http.StatusInternalServerError, "failed to schedule inference")
		return
	}

	submissionsTotal.WithLabelValues(submissionScheduled).Inc()
	s.logger.Info("scheduled inference", "id", rec.RequestID, "record_id", rec.ID, "image_size", img.Size.String())

	s.writeJSON(w, http.StatusOK, scheduledResponse{
		Status:   "scheduled",
		ID:       rec.RequestID,
		RecordID: rec.ID,
	})
}

// rejectSubmission writes an error answer to an inference submission and
// counts it under the result its status stands for.
func (s *Server) rejectSubmission(w http.ResponseWriter, status int, msg string) {
	result := submissionFailed
	switch status {
	case http.StatusBadRequest:
		result = submissionInvalid
	case http.StatusConflict:
		result = submissionBusy
	case http.StatusServiceUnavailable:
		result = submissionUnavailable
	}
	submissionsTotal.WithLabelValues(result).Inc()
	s.writeError(w, status, msg)
}

// busy reports whether the engine is running or holding work.
func (s *Server) busy() bool {
	return s.engine.State() != engine.StateIdle || s.engine.Pending() > 0
}

func (s *Server) abandonRecord(r *http.Request, rec *model.Record, cause error) {
	rec.Status = model.StatusAbandoned
	rec.Error = cause.Error()
	if err := s.store.FinishRecord(r.Context(), rec); err != nil {
		s.logger.Error("abandon record", "record_id", rec.ID, "error", err)
	}
}

func imageErrorMessage(err error) string {
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return "image not found"
	case errors.Is(err, imageio.ErrUnsupportedFormat):
		return err.Error()
	default:
		return "failed to read image: " + err.Error()
	}
}

func (s *Server) trackRecord(requestID uint64, recordID string) {
	s.recordsMu.Lock()
	defer s.recordsMu.Unlock()
	s.records[requestID] = recordID
}

func (s *Server) untrackRecord(requestID uint64) (string, bool) {
	s.recordsMu.Lock()
	defer s.recordsMu.Unlock()
	id, ok := s.records[requestID]
	delete(s.records, requestID)
	return id, ok
}
