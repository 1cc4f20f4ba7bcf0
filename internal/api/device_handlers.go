package api

import (
	"net/http"

	"github.com/vrsandeep/inkbridge/internal/models"
)

type createFolderRequest struct {
	Path string `json:"path"`
	Name string `json:"name"`
}

func (s *Server) handleListDeviceFiles(w http.ResponseWriter, r *http.Request) {
	dir := r.URL.Query().Get("path")
	if dir == "" {
		dir = "/"
	}
	files, err := s.app.Device().ListFiles(r.Context(), dir)
	if err != nil {
		s.respondWithFailure(w, r, err)
		return
	}
	if files == nil {
		files = []models.DeviceFile{}
	}
	RespondWithJSON(w, http.StatusOK, files)
}

func (s *Server) handleCreateDeviceFolder(w http.ResponseWriter, r *http.Request) {
	var req createFolderRequest
	if err := decodeJSON(w, r, &req); err != nil {
		RespondWithError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Name == "" {
		RespondWithError(w, http.StatusBadRequest, "name is required")
		return
	}
	if err := s.app.Device().CreateFolder(r.Context(), req.Path, req.Name); err != nil {
		s.respondWithFailure(w, r, err)
		return
	}
	RespondWithJSON(w, http.StatusCreated, map[string]string{"status": "created"})
}
