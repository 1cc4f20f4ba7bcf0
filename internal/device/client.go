// Package device talks to the e-ink reader's HTTP file API.
package device

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"resty.dev/v3"

	"github.com/vrsandeep/inkbridge/internal/models"
	"github.com/vrsandeep/inkbridge/internal/util"
)

// ErrConflict is returned when the device refuses a write because the
// target already exists.
var ErrConflict = errors.New("file already exists on device")

// StatusError is a non-2xx device answer.
type StatusError struct {
	Op   string
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("device %s failed with status %d: %s", e.Op, e.Code, e.Body)
}

// Client is the device API client.
type Client struct {
	client *resty.Client
}

// NewClient creates a client for the device at baseURL. Uploads of large
// files over the device's access point are slow, so timeout should be
// generous.
func NewClient(baseURL string, timeout time.Duration) *Client {
	client := resty.New()
	client.SetBaseURL(strings.TrimRight(baseURL, "/"))
	if timeout > 0 {
		client.SetTimeout(timeout)
	}
	return &Client{client: client}
}

// Close releases the underlying HTTP client.
func (c *Client) Close() error {
	return c.client.Close()
}

// ListFiles lists one device directory.
func (c *Client) ListFiles(ctx context.Context, dir string) ([]models.DeviceFile, error) {
	var files []models.DeviceFile
	resp, err := c.jsonRequest(ctx).
		SetQueryParam("path", util.DevicePath(dir)).
		SetResult(&files).
		Get("/api/files")
	if err != nil {
		return nil, fmt.Errorf("list request failed: %w", err)
	}
	if resp.IsError() {
		return nil, statusError("list", resp)
	}
	return files, nil
}

// CreateFolder creates name inside parent.
func (c *Client) CreateFolder(ctx context.Context, parent, name string) error {
	folder := util.SanitizeName(name)
	if folder == "" {
		return fmt.Errorf("invalid folder name %q", name)
	}
	resp, err := c.client.R().
		SetContext(ctx).
		SetFormData(map[string]string{
			"name": folder,
			"path": util.DevicePath(parent),
		}).
		Post("/mkdir")
	if err != nil {
		return fmt.Errorf("mkdir request failed: %w", err)
	}
	if resp.IsError() {
		return statusError("mkdir", resp)
	}
	return nil
}

// UploadFile uploads the local file at filePath as fileName into
// targetPath.
func (c *Client) UploadFile(ctx context.Context, filePath, fileName, targetPath string) error {
	f, err := os.Open(filePath)
	if err != nil {
		return err
	}
	defer f.Close()

	resp, err := c.client.R().
		SetContext(ctx).
		SetQueryParam("path", util.DevicePath(targetPath)).
		SetFileReader("file", fileName, f).
		Post("/upload")
	if err != nil {
		return fmt.Errorf("upload request failed: %w", err)
	}
	if resp.IsError() {
		return statusError("upload", resp)
	}
	// Some firmware answers 200 with an error message in the body.
	if isConflict(resp.StatusCode(), resp.String()) {
		return statusError("upload", resp)
	}
	return nil
}

// DeleteFile deletes one file on the device.
func (c *Client) DeleteFile(ctx context.Context, filePath string) error {
	resp, err := c.client.R().
		SetContext(ctx).
		SetFormData(map[string]string{
			"path": util.DevicePath(filePath),
			"type": "file",
		}).
		Post("/delete")
	if err != nil {
		return fmt.Errorf("delete request failed: %w", err)
	}
	if resp.IsError() {
		return statusError("delete", resp)
	}
	return nil
}

// jsonRequest decodes the reply as JSON whatever content type the
// firmware declares. A body that does not parse fails the request.
func (c *Client) jsonRequest(ctx context.Context) *resty.Request {
	return c.client.R().
		SetContext(ctx).
		SetForceResponseContentType("application/json")
}

func statusError(op string, resp *resty.Response) error {
	body := strings.TrimSpace(resp.String())
	if len(body) > 200 {
		body = body[:200]
	}
	err := &StatusError{Op: op, Code: resp.StatusCode(), Body: body}
	if isConflict(err.Code, body) {
		return fmt.Errorf("%w: %w", ErrConflict, err)
	}
	return err
}
