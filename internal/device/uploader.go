package device

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"path"
	"regexp"

	"go.uber.org/zap"

	"github.com/vrsandeep/inkbridge/internal/util"
)

var conflictWording = regexp.MustCompile(`(?i)(already exists|file exists|conflict)`)

func isConflict(status int, body string) bool {
	return status == http.StatusConflict || conflictWording.MatchString(body)
}

// FileAPI is the part of the device client the uploader needs.
type FileAPI interface {
	UploadFile(ctx context.Context, filePath, fileName, targetPath string) error
	DeleteFile(ctx context.Context, filePath string) error
}

// Uploader pushes converted files to the device, replacing files that
// already exist.
type Uploader struct {
	api FileAPI
	log *zap.SugaredLogger
}

// NewUploader creates an Uploader.
func NewUploader(api FileAPI, log *zap.SugaredLogger) *Uploader {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Uploader{api: api, log: log}
}

// Upload uploads filePath as fileName into targetPath. When the device
// reports a conflict the existing file is deleted and the upload retried
// once. A failed retry carries both the retry error and the original
// conflict. Any other failure is returned as is.
func (u *Uploader) Upload(ctx context.Context, filePath, fileName, targetPath string) error {
	err := u.api.UploadFile(ctx, filePath, fileName, targetPath)
	if err == nil || !errors.Is(err, ErrConflict) {
		return err
	}

	existing := path.Join(util.DevicePath(targetPath), fileName)
	u.log.Infof("Replacing %s on device", existing)
	if delErr := u.api.DeleteFile(ctx, existing); delErr != nil {
		return errors.Join(err, delErr)
	}
	if retryErr := u.api.UploadFile(ctx, filePath, fileName, targetPath); retryErr != nil {
		return fmt.Errorf("upload retry after replacing %s failed: %w", existing, errors.Join(retryErr, err))
	}
	return nil
}
