package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/seantiz/infernum/internal/model"
	"github.com/seantiz/infernum/internal/store"
)

const (
	defaultListLimit = 20
	maxListLimit     = 100
)

// listRecordsResponse wraps the paginated list response.
type listRecordsResponse struct {
	Records []*model.Record `json:"records"`
	Total   int             `json:"total"`
	Limit   int             `json:"limit"`
	Offset  int             `json:"offset"`
}

func (s *Server) handleGetRecord(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	rec, err := s.store.GetRecord(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		s.writeError(w, http.StatusNotFound, "record not found")
		return
	}
	if err != nil {
		s.logger.Error("get record", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to get record")
		return
	}

	s.writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleListRecords(w http.ResponseWriter, r *http.Request) {
	limit := parseIntQuery(r, "limit", defaultListLimit)
	offset := parseIntQuery(r, "offset", 0)

	if limit <= 0 || limit > maxListLimit {
		limit = defaultListLimit
	}
	if offset < 0 {
		offset = 0
	}

	records, total, err := s.store.ListRecords(r.Context(), limit, offset)
	if err != nil {
		s.logger.Error("list records", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to list records")
		return
	}

	if records == nil {
		records = []*model.Record{}
	}

	s.writeJSON(w, http.StatusOK, listRecordsResponse{
		Records: records,
		Total:   total,
		Limit:   limit,
		Offset:  offset,
	})
}
