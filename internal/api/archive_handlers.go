package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
)

// handleSearchArchives proxies a paginated archive search.
func (s *Server) handleSearchArchives(w http.ResponseWriter, r *http.Request) {
	start, _ := strconv.Atoi(r.URL.Query().Get("start"))
	if start < 0 {
		start = 0
	}
	result, err := s.app.Archives().Search(r.Context(), r.URL.Query().Get("q"), start)
	if err != nil {
		s.respondWithFailure(w, r, err)
		return
	}
	RespondWithJSON(w, http.StatusOK, result)
}

func (s *Server) handleGetArchive(w http.ResponseWriter, r *http.Request) {
	meta, err := s.app.Archives().GetMetadata(r.Context(), chi.URLParam(r, "archiveID"))
	if err != nil {
		s.respondWithFailure(w, r, err)
		return
	}
	RespondWithJSON(w, http.StatusOK, meta)
}

func (s *Server) handleListTags(w http.ResponseWriter, r *http.Request) {
	minWeight, err := strconv.Atoi(r.URL.Query().Get("minweight"))
	if err != nil || minWeight < 1 {
		minWeight = 1
	}
	stats, err := s.app.Archives().TagStats(r.Context(), minWeight)
	if err != nil {
		s.respondWithFailure(w, r, err)
		return
	}
	RespondWithJSON(w, http.StatusOK, stats)
}
