package api

import (
	"io"
	"mime"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/vrsandeep/inkbridge/internal/fetcher"
)

// handleArchiveThumbnail proxies an archive's thumbnail so browsers never
// need the archive server's credential.
func (s *Server) handleArchiveThumbnail(w http.ResponseWriter, r *http.Request) {
	stream, err := s.app.Archives().Thumbnail(r.Context(), chi.URLParam(r, "archiveID"))
	if err != nil {
		s.respondWithFailure(w, r, err)
		return
	}
	defer stream.Body.Close()

	// The server reports some errors as a 200 with an HTML or JSON body.
	if fetcher.IsErrorContentType(stream.ContentType) {
		s.log.Warnf("Thumbnail for %s came back as %q", chi.URLParam(r, "archiveID"), stream.ContentType)
		RespondWithError(w, http.StatusBadGateway, "Archive server returned an error page")
		return
	}

	contentType := stream.ContentType
	if mediaType, _, err := mime.ParseMediaType(contentType); err == nil {
		contentType = mediaType
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	if strings.HasPrefix(contentType, "image/") {
		w.Header().Set("Cache-Control", "public, max-age=86400") // 1 day
	}

	if _, err := io.Copy(w, stream.Body); err != nil {
		// Response already started, can't send error
		s.log.Debugf("Error copying thumbnail: %v", err)
	}
}
