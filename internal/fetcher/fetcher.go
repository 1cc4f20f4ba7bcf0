// Package fetcher downloads single pages from the archive server with
// bounded retries.
package fetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"go.uber.org/zap"

	"github.com/vrsandeep/inkbridge/internal/lrr"
	"github.com/vrsandeep/inkbridge/internal/models"
)

// ErrDisguisedResponse is returned when the server answers a page request
// with an HTML or JSON body, which is how it reports errors behind a 200.
var ErrDisguisedResponse = errors.New("page response is not an image")

// PageSource is the part of the archive server client the fetcher needs.
type PageSource interface {
	DownloadPage(ctx context.Context, ref models.PageRef) (*lrr.Stream, error)
}

// Page is one downloaded page image.
type Page struct {
	Data        []byte
	ContentType string
}

// Fetcher fetches pages with a fixed attempt ceiling and linear backoff.
type Fetcher struct {
	source   PageSource
	attempts int
	backoff  time.Duration
	log      *zap.SugaredLogger
	sleep    func(ctx context.Context, d time.Duration) error
}

// New creates a Fetcher. attempts below 1 are treated as 1.
func New(source PageSource, attempts int, backoff time.Duration, log *zap.SugaredLogger) *Fetcher {
	if attempts < 1 {
		attempts = 1
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Fetcher{
		source:   source,
		attempts: attempts,
		backoff:  backoff,
		log:      log,
		sleep:    sleepContext,
	}
}

// Fetch downloads one page. Transport errors, non-2xx answers and
// disguised error pages all count as failed attempts; after the last
// attempt the most recent error is returned.
func (f *Fetcher) Fetch(ctx context.Context, ref models.PageRef) (*Page, error) {
	var lastErr error
	for attempt := 1; attempt <= f.attempts; attempt++ {
		page, err := f.fetchOnce(ctx, ref)
		if err == nil {
			return page, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			break
		}
		if attempt < f.attempts {
			f.log.Debugf("Page fetch attempt %d/%d for %s failed: %v", attempt, f.attempts, ref, err)
			if err := f.sleep(ctx, time.Duration(attempt)*f.backoff); err != nil {
				lastErr = err
				break
			}
		}
	}
	return nil, fmt.Errorf("failed to fetch page %s after %d attempts: %w", ref, f.attempts, lastErr)
}

func (f *Fetcher) fetchOnce(ctx context.Context, ref models.PageRef) (*Page, error) {
	stream, err := f.source.DownloadPage(ctx, ref)
	if err != nil {
		return nil, err
	}
	defer stream.Body.Close()

	if IsErrorContentType(stream.ContentType) {
		return nil, fmt.Errorf("%w: content type %q", ErrDisguisedResponse, stream.ContentType)
	}

	data, err := io.ReadAll(stream.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read page body: %w", err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("empty page body")
	}

	contentType := stream.ContentType
	if contentType == "" {
		// No declared type; trust the bytes instead.
		detected := mimetype.Detect(data)
		if IsErrorContentType(detected.String()) {
			return nil, fmt.Errorf("%w: body sniffed as %s", ErrDisguisedResponse, detected.String())
		}
		contentType = detected.String()
	}

	return &Page{Data: data, ContentType: contentType}, nil
}

// IsErrorContentType reports whether a declared content type signals an
// HTML or JSON body.
func IsErrorContentType(contentType string) bool {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mediaType = strings.ToLower(strings.TrimSpace(contentType))
	}
	switch {
	case mediaType == "text/html", mediaType == "application/xhtml+xml":
		return true
	case mediaType == "application/json", strings.HasSuffix(mediaType, "+json"):
		return true
	case mediaType == "text/plain":
		return true
	}
	return false
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
