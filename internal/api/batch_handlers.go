package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/vrsandeep/inkbridge/internal/models"
)

func (s *Server) handleCreateBatch(w http.ResponseWriter, r *http.Request) {
	var req models.BatchRequest
	if err := decodeJSON(w, r, &req); err != nil {
		RespondWithError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Mode == models.BatchUpload && req.TargetPath == "" {
		req.TargetPath = s.app.Config().Device.UploadPath
	}
	if err := s.app.Batches().Validate(req); err != nil {
		RespondWithError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.app.Pipeline().Preflight(); err != nil {
		s.respondWithFailure(w, r, err)
		return
	}

	status, err := s.app.Batches().Start(req)
	if err != nil {
		s.respondWithFailure(w, r, err)
		return
	}
	RespondWithJSON(w, http.StatusAccepted, status)
}

func (s *Server) handleGetBatch(w http.ResponseWriter, r *http.Request) {
	status, err := s.app.Batches().Get(chi.URLParam(r, "batchID"))
	if err != nil {
		s.respondWithFailure(w, r, err)
		return
	}
	RespondWithJSON(w, http.StatusOK, status)
}
