package api

import (
	"net/http"

	"github.com/seantiz/infernum/internal/backend"
)

type modelsResponse struct {
	Active string              `json:"active"`
	Models []backend.ModelInfo `json:"models"`
}

func (s *Server) handleListModels(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, modelsResponse{
		Active: s.settings.Model,
		Models: s.registry.List(),
	})
}
