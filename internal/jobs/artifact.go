package jobs

import (
	"fmt"
	"io"
	"os"
	"sync"
)

// Artifact owns one converted output file and the workspace it lives in.
// Dispose removes the workspace; it is safe to call more than once and
// the artifact cannot be opened afterwards.
type Artifact struct {
	Path string
	Name string
	Size int64

	workspace string
	mu        sync.Mutex
	disposed  bool
}

// NewArtifact wraps the file at path. workspace is removed on Dispose; when
// empty only the file itself is removed.
func NewArtifact(path, name, workspace string) (*Artifact, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("artifact file: %w", err)
	}
	return &Artifact{Path: path, Name: name, Size: info.Size(), workspace: workspace}, nil
}

// Open opens the artifact file for reading.
func (a *Artifact) Open() (*os.File, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.disposed {
		return nil, ErrArtifactUnavailable
	}
	return os.Open(a.Path)
}

// Dispose deletes the backing files.
func (a *Artifact) Dispose() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.disposed {
		return nil
	}
	a.disposed = true
	if a.workspace != "" {
		return os.RemoveAll(a.workspace)
	}
	err := os.Remove(a.Path)
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

// Disposed reports whether Dispose has run.
func (a *Artifact) Disposed() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.disposed
}

// disposingReader disposes its artifact when closed.
type disposingReader struct {
	*os.File
	artifact *Artifact
	once     sync.Once
}

func (r *disposingReader) Close() error {
	err := r.File.Close()
	r.once.Do(func() {
		if derr := r.artifact.Dispose(); err == nil {
			err = derr
		}
	})
	return err
}

var _ io.ReadCloser = (*disposingReader)(nil)
