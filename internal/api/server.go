// It defines the API server, sets up the routes (endpoints)
// using chi, and links them to the handler functions.

package api

import (
	"io/fs"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/vrsandeep/inkbridge/internal/assets"
	"github.com/vrsandeep/inkbridge/internal/core"
)

// Server holds the dependencies for our API.
type Server struct {
	app *core.App
	log *zap.SugaredLogger
}

// NewServer creates a new Server instance.
func NewServer(app *core.App) *Server {
	return &Server{app: app, log: app.Logger().Named("api")}
}

// Router sets up and returns the main router for the application.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(RequestLogger(s.log))
	r.Use(middleware.Recoverer) // Recovers from panics

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", s.handleHealth)

		// Archive server passthrough
		r.Get("/archives", s.handleSearchArchives)
		r.Get("/archives/{archiveID}", s.handleGetArchive)
		r.Get("/archives/{archiveID}/thumbnail", s.handleArchiveThumbnail)
		r.Get("/tags", s.handleListTags)

		// Conversion jobs
		r.Post("/jobs", s.handleCreateJob)
		r.Get("/jobs", s.handleListJobs)
		r.Get("/jobs/{jobID}", s.handleGetJob)
		r.Get("/jobs/{jobID}/frame", s.handleGetJobFrame)
		r.Get("/jobs/{jobID}/download", s.handleDownloadJob)
		r.With(s.RequireDevice).Post("/jobs/{jobID}/upload", s.handleUploadJob)

		// Batches
		r.Post("/batches", s.handleCreateBatch)
		r.Get("/batches/{batchID}", s.handleGetBatch)

		// Device
		r.Route("/device", func(r chi.Router) {
			r.Use(s.RequireDevice)
			r.Get("/files", s.handleListDeviceFiles)
			r.Post("/folders", s.handleCreateDeviceFolder)
		})
	})

	// WebSocket route
	r.Get("/ws/progress", func(w http.ResponseWriter, r *http.Request) {
		s.app.WsHub().ServeWs(w, r)
	})

	webFS, err := fs.Sub(assets.WebFS, "web")
	if err != nil {
		s.log.Fatalf("Failed to create web sub-filesystem: %v", err)
	}
	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		http.ServeFileFS(w, r, webFS, "index.html")
	})

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.app.Pipeline().Preflight(); err != nil {
		s.log.Warnf("Health check failed: %v", err)
		RespondWithJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "degraded", "error": "Converter is not available"})
		return
	}
	RespondWithJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
