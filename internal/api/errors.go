package api

import (
	"errors"
	"net/http"

	"github.com/vrsandeep/inkbridge/internal/batch"
	"github.com/vrsandeep/inkbridge/internal/converter"
	"github.com/vrsandeep/inkbridge/internal/device"
	"github.com/vrsandeep/inkbridge/internal/jobs"
	"github.com/vrsandeep/inkbridge/internal/lrr"
)

// respondWithFailure maps domain errors to a status code and a message
// safe to show to callers. The full error is logged.
func (s *Server) respondWithFailure(w http.ResponseWriter, r *http.Request, err error) {
	code, message := http.StatusInternalServerError, "Internal server error"

	var upstream *lrr.StatusError
	var deviceErr *device.StatusError
	switch {
	case errors.Is(err, jobs.ErrJobNotFound):
		code, message = http.StatusNotFound, "Job not found"
	case errors.Is(err, batch.ErrBatchNotFound):
		code, message = http.StatusNotFound, "Batch not found"
	case errors.Is(err, jobs.ErrArtifactUnavailable):
		code, message = http.StatusConflict, "Converted file is not available"
	case errors.Is(err, jobs.ErrNoLiveFrame):
		code, message = http.StatusNotFound, "No converted frame yet"
	case errors.Is(err, converter.ErrToolMissing):
		code, message = http.StatusServiceUnavailable, "Converter is not available"
	case errors.Is(err, device.ErrConflict):
		code, message = http.StatusConflict, "File already exists on device"
	case errors.As(err, &upstream):
		if upstream.Code == http.StatusNotFound {
			code, message = http.StatusNotFound, "Archive not found"
		} else {
			code, message = http.StatusBadGateway, "Archive server request failed"
		}
	case errors.As(err, &deviceErr):
		code, message = http.StatusBadGateway, "Device request failed"
	}

	if code >= http.StatusInternalServerError {
		s.log.Errorf("%s %s: %v", r.Method, r.URL.Path, err)
	} else {
		s.log.Debugf("%s %s: %v", r.Method, r.URL.Path, err)
	}
	RespondWithError(w, code, message)
}
