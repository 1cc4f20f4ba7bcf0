// Package lrr talks to the LANraragi-compatible archive server.
package lrr

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"
	"resty.dev/v3"

	"github.com/vrsandeep/inkbridge/internal/models"
)

// Stream is an open response body together with its declared content type.
// The caller must close Body.
type Stream struct {
	Body        io.ReadCloser
	ContentType string
	Size        int64
}

// StatusError is returned when the server answers with a non-2xx status.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("archive server returned status %d: %s", e.Code, e.Body)
}

// Client is the archive server API client.
type Client struct {
	client *resty.Client
	pages  *cache.Cache
}

// Options configure a Client.
type Options struct {
	BaseURL      string
	APIKey       string
	Timeout      time.Duration
	PageCacheTTL time.Duration
}

// New creates a client for the server at opts.BaseURL. The API key is an
// opaque credential forwarded as a bearer token.
func New(opts Options) *Client {
	client := resty.New()
	client.SetBaseURL(strings.TrimRight(opts.BaseURL, "/"))
	if opts.Timeout > 0 {
		client.SetTimeout(opts.Timeout)
	}
	if opts.APIKey != "" {
		client.SetAuthToken(base64.StdEncoding.EncodeToString([]byte(opts.APIKey)))
	}
	ttl := opts.PageCacheTTL
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &Client{
		client: client,
		pages:  cache.New(ttl, 2*ttl),
	}
}

// Close releases the underlying HTTP client.
func (c *Client) Close() error {
	return c.client.Close()
}

// GetMetadata fetches the metadata of one archive.
func (c *Client) GetMetadata(ctx context.Context, id string) (models.ArchiveMetadata, error) {
	var meta models.ArchiveMetadata
	resp, err := c.jsonRequest(ctx).
		SetPathParam("id", id).
		SetResult(&meta).
		Get("/api/archives/{id}/metadata")
	if err != nil {
		return meta, fmt.Errorf("metadata request failed: %w", err)
	}
	if resp.IsError() {
		return meta, &StatusError{Code: resp.StatusCode(), Body: truncate(resp.String(), 200)}
	}
	if meta.ArcID == "" {
		meta.ArcID = id
	}
	return meta, nil
}

type filesResponse struct {
	Pages []string `json:"pages"`
	Job   int      `json:"job"`
}

// GetPages returns the page references of an archive. Lists are cached per
// archive; force bypasses the cache and asks the server to re-extract.
func (c *Client) GetPages(ctx context.Context, id string, force bool) ([]models.PageRef, error) {
	if !force {
		if cached, ok := c.pages.Get(id); ok {
			return cached.([]models.PageRef), nil
		}
	}

	var files filesResponse
	resp, err := c.jsonRequest(ctx).
		SetPathParam("id", id).
		SetQueryParam("force", strconv.FormatBool(force)).
		SetResult(&files).
		Get("/api/archives/{id}/files")
	if err != nil {
		return nil, fmt.Errorf("page list request failed: %w", err)
	}
	if resp.IsError() {
		return nil, &StatusError{Code: resp.StatusCode(), Body: truncate(resp.String(), 200)}
	}

	refs := make([]models.PageRef, 0, len(files.Pages))
	refs = append(refs, files.Pages...)
	c.pages.SetDefault(id, refs)
	return refs, nil
}

// InvalidatePages drops the cached page list of an archive.
func (c *Client) InvalidatePages(id string) {
	c.pages.Delete(id)
}

// DownloadPage opens the image behind a page reference.
func (c *Client) DownloadPage(ctx context.Context, ref models.PageRef) (*Stream, error) {
	return c.stream(ctx, resolveRef(ref))
}

// DownloadArchive opens the raw archive file.
func (c *Client) DownloadArchive(ctx context.Context, id string) (*Stream, error) {
	return c.stream(ctx, "/api/archives/"+url.PathEscape(id)+"/download")
}

// Thumbnail opens the cover thumbnail of an archive.
func (c *Client) Thumbnail(ctx context.Context, id string) (*Stream, error) {
	return c.stream(ctx, "/api/archives/"+url.PathEscape(id)+"/thumbnail")
}

func (c *Client) stream(ctx context.Context, target string) (*Stream, error) {
	resp, err := c.client.R().
		SetContext(ctx).
		SetDoNotParseResponse(true).
		Get(target)
	if err != nil {
		return nil, fmt.Errorf("request for %s failed: %w", target, err)
	}
	if resp.IsError() {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		resp.Body.Close()
		return nil, &StatusError{Code: resp.StatusCode(), Body: string(body)}
	}
	return &Stream{
		Body:        resp.Body,
		ContentType: resp.Header().Get("Content-Type"),
		Size:        resp.RawResponse.ContentLength,
	}, nil
}

// Search runs a paginated archive search.
func (c *Client) Search(ctx context.Context, query string, start int) (models.SearchResult, error) {
	var result models.SearchResult
	resp, err := c.jsonRequest(ctx).
		SetQueryParams(map[string]string{
			"filter": query,
			"start":  strconv.Itoa(start),
			"sortby": "title",
			"order":  "asc",
		}).
		SetResult(&result).
		Get("/api/search")
	if err != nil {
		return result, fmt.Errorf("search request failed: %w", err)
	}
	if resp.IsError() {
		return result, &StatusError{Code: resp.StatusCode(), Body: truncate(resp.String(), 200)}
	}
	return result, nil
}

// TagStats returns tag statistics with at least minWeight occurrences.
func (c *Client) TagStats(ctx context.Context, minWeight int) ([]models.TagStat, error) {
	var stats []models.TagStat
	resp, err := c.jsonRequest(ctx).
		SetQueryParam("minweight", strconv.Itoa(minWeight)).
		SetResult(&stats).
		Get("/api/database/stats")
	if err != nil {
		return nil, fmt.Errorf("tag stats request failed: %w", err)
	}
	if resp.IsError() {
		return nil, &StatusError{Code: resp.StatusCode(), Body: truncate(resp.String(), 200)}
	}
	return stats, nil
}

// jsonRequest forces JSON decoding of the reply. Reverse proxies in front
// of the server sometimes strip or rewrite the content type.
func (c *Client) jsonRequest(ctx context.Context) *resty.Request {
	return c.client.R().
		SetContext(ctx).
		SetForceResponseContentType("application/json")
}

// resolveRef turns the server's relative page paths ("./api/...") into
// paths resty can join with the base URL. Absolute URLs pass through.
func resolveRef(ref models.PageRef) string {
	if strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://") {
		return ref
	}
	ref = strings.TrimPrefix(ref, ".")
	if !strings.HasPrefix(ref, "/") {
		ref = "/" + ref
	}
	return ref
}

// PageLabel derives a human label for a page reference: the file name from
// a "path" query parameter when present, else the last path segment.
func PageLabel(ref models.PageRef, index int) string {
	if u, err := url.Parse(ref); err == nil {
		if p := u.Query().Get("path"); p != "" {
			return lastSegment(p)
		}
		if seg := lastSegment(u.Path); seg != "" && seg != "page" {
			return seg
		}
	}
	return fmt.Sprintf("Page %d", index+1)
}

func lastSegment(p string) string {
	p = strings.TrimRight(p, "/")
	if i := strings.LastIndex(p, "/"); i >= 0 {
		return p[i+1:]
	}
	return p
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
