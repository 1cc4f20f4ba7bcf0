// A fake archive server used by the client, resolver and pipeline tests.

package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/vrsandeep/inkbridge/internal/models"
)

// FakeArchive is one archive served by FakeArchiveServer.
type FakeArchive struct {
	Meta            models.ArchiveMetadata
	Pages           [][]byte
	PageContentType string // defaults to image/png
	Raw             []byte
	RawContentType  string
	// StalePageList makes non-forced page listings return only the first
	// page, like a server whose extraction cache is out of date.
	StalePageList bool
}

// FakeArchiveServer mimics the archive server API.
type FakeArchiveServer struct {
	*httptest.Server

	mu       sync.Mutex
	archives map[string]*FakeArchive
	hits     map[string]int
	// PageFailures makes the next N requests for a page path fail with 500.
	PageFailures map[string]int
}

// NewFakeArchiveServer starts a fake server; it is closed on test cleanup.
func NewFakeArchiveServer(t *testing.T, archives ...*FakeArchive) *FakeArchiveServer {
	t.Helper()
	s := &FakeArchiveServer{
		archives:     make(map[string]*FakeArchive),
		hits:         make(map[string]int),
		PageFailures: make(map[string]int),
	}
	for _, a := range archives {
		s.archives[a.Meta.ArcID] = a
	}

	r := chi.NewRouter()
	r.Get("/api/archives/{id}/metadata", s.handleMetadata)
	r.Get("/api/archives/{id}/files", s.handleFiles)
	r.Get("/api/archives/{id}/page", s.handlePage)
	r.Get("/api/archives/{id}/download", s.handleDownload)
	r.Get("/api/archives/{id}/thumbnail", s.handleThumbnail)
	r.Get("/api/search", s.handleSearch)
	r.Get("/api/database/stats", func(w http.ResponseWriter, r *http.Request) {
		s.hit("stats")
		writeJSON(w, []models.TagStat{{Namespace: "artist", Text: "someone", Weight: 3}})
	})

	s.Server = httptest.NewServer(r)
	t.Cleanup(s.Close)
	return s
}

// Hits returns how many times a route key was requested. Keys are
// "metadata:<id>", "files:<id>", "files-force:<id>", "page:<id>",
// "download:<id>", "thumbnail:<id>", "search" and "stats".
func (s *FakeArchiveServer) Hits(key string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hits[key]
}

func (s *FakeArchiveServer) hit(key string) {
	s.mu.Lock()
	s.hits[key]++
	s.mu.Unlock()
}

func (s *FakeArchiveServer) archive(w http.ResponseWriter, r *http.Request) *FakeArchive {
	s.mu.Lock()
	a, ok := s.archives[chi.URLParam(r, "id")]
	s.mu.Unlock()
	if !ok {
		http.Error(w, `{"error":"not found"}`, http.StatusNotFound)
		return nil
	}
	return a
}

func (s *FakeArchiveServer) handleMetadata(w http.ResponseWriter, r *http.Request) {
	s.hit("metadata:" + chi.URLParam(r, "id"))
	if a := s.archive(w, r); a != nil {
		writeJSON(w, a.Meta)
	}
}

func (s *FakeArchiveServer) handleFiles(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	force := r.URL.Query().Get("force") == "true"
	if force {
		s.hit("files-force:" + id)
	} else {
		s.hit("files:" + id)
	}
	a := s.archive(w, r)
	if a == nil {
		return
	}
	count := len(a.Pages)
	if a.StalePageList && !force && count > 1 {
		count = 1
	}
	pages := make([]string, 0, count)
	for i := 0; i < count; i++ {
		pages = append(pages, fmt.Sprintf("./api/archives/%s/page?path=%03d.png", id, i+1))
	}
	writeJSON(w, map[string]any{"job": 0, "pages": pages})
}

func (s *FakeArchiveServer) handlePage(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	s.hit("page:" + id)
	a := s.archive(w, r)
	if a == nil {
		return
	}
	path := r.URL.Query().Get("path")

	s.mu.Lock()
	failures := s.PageFailures[path]
	if failures > 0 {
		s.PageFailures[path] = failures - 1
	}
	s.mu.Unlock()
	if failures > 0 {
		http.Error(w, "temporarily unavailable", http.StatusInternalServerError)
		return
	}

	index, _ := strconv.Atoi(strings.TrimSuffix(path, ".png"))
	if index < 1 || index > len(a.Pages) {
		http.Error(w, "no such page", http.StatusNotFound)
		return
	}
	contentType := a.PageContentType
	if contentType == "" {
		contentType = "image/png"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(a.Pages[index-1])))
	w.Write(a.Pages[index-1])
}

func (s *FakeArchiveServer) handleDownload(w http.ResponseWriter, r *http.Request) {
	s.hit("download:" + chi.URLParam(r, "id"))
	a := s.archive(w, r)
	if a == nil {
		return
	}
	if a.Raw == nil {
		http.Error(w, "no raw file", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", a.RawContentType)
	w.Write(a.Raw)
}

// handleThumbnail serves the first page as the thumbnail.
func (s *FakeArchiveServer) handleThumbnail(w http.ResponseWriter, r *http.Request) {
	s.hit("thumbnail:" + chi.URLParam(r, "id"))
	a := s.archive(w, r)
	if a == nil {
		return
	}
	if len(a.Pages) == 0 {
		http.Error(w, `{"error":"no thumbnail"}`, http.StatusNotFound)
		return
	}
	contentType := a.PageContentType
	if contentType == "" {
		contentType = "image/png"
	}
	w.Header().Set("Content-Type", contentType)
	w.Write(a.Pages[0])
}

func (s *FakeArchiveServer) handleSearch(w http.ResponseWriter, r *http.Request) {
	s.hit("search")
	s.mu.Lock()
	var data []models.ArchiveMetadata
	for _, a := range s.archives {
		data = append(data, a.Meta)
	}
	s.mu.Unlock()
	writeJSON(w, models.SearchResult{Data: data, RecordsFiltered: len(data), RecordsTotal: len(data)})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}
