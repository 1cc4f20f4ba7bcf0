package api

import (
	"io"
	"mime"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/vrsandeep/inkbridge/internal/models"
)

type createJobRequest struct {
	ArchiveID string                     `json:"archiveId"`
	Settings  *models.ConversionSettings `json:"settings"`
}

type uploadJobRequest struct {
	TargetPath string `json:"targetPath"`
}

// handleCreateJob starts a conversion. Missing settings fall back to the
// defaults.
func (s *Server) handleCreateJob(w http.ResponseWriter, r *http.Request) {
	var req createJobRequest
	if err := decodeJSON(w, r, &req); err != nil {
		RespondWithError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.ArchiveID == "" {
		RespondWithError(w, http.StatusBadRequest, "archiveId is required")
		return
	}
	settings := models.DefaultSettings()
	if req.Settings != nil {
		settings = *req.Settings
	}

	job, err := s.app.Jobs().Start(req.ArchiveID, settings)
	if err != nil {
		s.respondWithFailure(w, r, err)
		return
	}
	RespondWithJSON(w, http.StatusAccepted, job)
}

func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	RespondWithJSON(w, http.StatusOK, s.app.Jobs().List())
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	job, err := s.app.Jobs().Snapshot(chi.URLParam(r, "jobID"))
	if err != nil {
		s.respondWithFailure(w, r, err)
		return
	}
	RespondWithJSON(w, http.StatusOK, job)
}

// handleGetJobFrame serves the latest converted frame of a running job.
func (s *Server) handleGetJobFrame(w http.ResponseWriter, r *http.Request) {
	path, _, err := s.app.Jobs().LiveFrame(chi.URLParam(r, "jobID"))
	if err != nil {
		s.respondWithFailure(w, r, err)
		return
	}
	w.Header().Set("Cache-Control", "no-store")
	http.ServeFile(w, r, path)
}

// handleDownloadJob streams the converted file. The job is gone once the
// response has been written, whether or not the client read all of it.
func (s *Server) handleDownloadJob(w http.ResponseWriter, r *http.Request) {
	body, name, size, err := s.app.Jobs().StreamArtifact(chi.URLParam(r, "jobID"))
	if err != nil {
		s.respondWithFailure(w, r, err)
		return
	}
	defer body.Close()

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": name}))
	w.Header().Set("Content-Length", strconv.FormatInt(size, 10))
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, body); err != nil {
		s.log.Warnf("Download of %s interrupted: %v", name, err)
	}
}

// handleUploadJob pushes a completed job's file to the device.
func (s *Server) handleUploadJob(w http.ResponseWriter, r *http.Request) {
	var req uploadJobRequest
	if r.ContentLength != 0 {
		if err := decodeJSON(w, r, &req); err != nil {
			RespondWithError(w, http.StatusBadRequest, err.Error())
			return
		}
	}
	if req.TargetPath == "" {
		req.TargetPath = s.app.Config().Device.UploadPath
	}

	artifact, err := s.app.Jobs().TakeArtifact(chi.URLParam(r, "jobID"))
	if err != nil {
		s.respondWithFailure(w, r, err)
		return
	}
	defer artifact.Dispose()

	if err := s.app.Uploader().Upload(r.Context(), artifact.Path, artifact.Name, req.TargetPath); err != nil {
		s.respondWithFailure(w, r, err)
		return
	}
	RespondWithJSON(w, http.StatusOK, map[string]any{
		"name":       artifact.Name,
		"size":       artifact.Size,
		"targetPath": req.TargetPath,
	})
}
