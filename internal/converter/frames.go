package converter

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/vrsandeep/inkbridge/internal/images"
	"github.com/vrsandeep/inkbridge/internal/models"
)

// PreviewDir holds the copy of the latest accepted frame.
const PreviewDir = ".preview"

// WatchOptions configure a FrameWatcher.
type WatchOptions struct {
	// SkipDirs are directory names never descended into.
	SkipDirs     []string
	PollInterval time.Duration
	// MinAge is how long a file must sit unmodified before it is read.
	MinAge time.Duration
}

type candidate struct {
	path    string
	key     string
	modTime time.Time
}

// FrameWatcher finds frames the converter writes into its workspace. A
// frame is accepted once: it must be unseen (path, mtime and size), old
// enough and completely written. Accepted frames are copied into
// PreviewDir and reported as frame events.
//
// Scan can be called any number of times; the watcher remembers what it
// has already reported.
type FrameWatcher struct {
	root     string
	opts     WatchOptions
	seen     map[string]bool
	preview  string
	accepted int
	now      func() time.Time
	log      *zap.SugaredLogger
}

// NewFrameWatcher creates a watcher for root.
func NewFrameWatcher(root string, opts WatchOptions, log *zap.SugaredLogger) *FrameWatcher {
	if opts.PollInterval <= 0 {
		opts.PollInterval = 500 * time.Millisecond
	}
	if !slices.Contains(opts.SkipDirs, PreviewDir) {
		opts.SkipDirs = append(opts.SkipDirs, PreviewDir)
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &FrameWatcher{
		root: root,
		opts: opts,
		seen: make(map[string]bool),
		now:  time.Now,
		log:  log,
	}
}

// Run scans on every poll tick and whenever fsnotify reports a change,
// until ctx is done. A last scan picks up frames written just before exit.
func (w *FrameWatcher) Run(ctx context.Context, reporter models.Reporter) {
	notify, err := fsnotify.NewWatcher()
	if err != nil {
		w.log.Debugf("fsnotify unavailable, polling only: %v", err)
	} else {
		defer notify.Close()
	}
	var events <-chan fsnotify.Event
	var errs <-chan error
	if notify != nil {
		events, errs = notify.Events, notify.Errors
	}

	ticker := time.NewTicker(w.opts.PollInterval)
	defer ticker.Stop()

	w.scan(reporter, notify)
	for {
		select {
		case <-ctx.Done():
			w.scan(reporter, notify)
			return
		case <-ticker.C:
			w.scan(reporter, notify)
		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			if ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) {
				w.scan(reporter, notify)
			}
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			w.log.Debugf("fsnotify error: %v", err)
		}
	}
}

// Scan runs one detection pass and returns the number of accepted frames.
func (w *FrameWatcher) Scan(reporter models.Reporter) int {
	return w.scan(reporter, nil)
}

func (w *FrameWatcher) scan(reporter models.Reporter, notify *fsnotify.Watcher) int {
	if reporter == nil {
		reporter = models.NopReporter
	}
	candidates := w.candidates(notify)
	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].modTime.Before(candidates[j].modTime)
	})

	accepted := 0
	for _, c := range candidates {
		if _, complete := images.CheckComplete(c.path); !complete {
			continue
		}
		preview, err := w.copyToPreview(c.path)
		if err != nil {
			w.log.Debugf("Failed to copy frame %s: %v", c.path, err)
			continue
		}
		w.seen[c.key] = true
		if w.preview != "" && w.preview != preview {
			os.Remove(w.preview)
		}
		w.preview = preview
		accepted++
		reporter.Report(models.Event{Kind: models.EventFrame, Path: preview, Label: filepath.Base(c.path)})
	}
	return accepted
}

// candidates walks the workspace for unseen frames that are old enough.
// Directories found on the way are added to notify.
func (w *FrameWatcher) candidates(notify *fsnotify.Watcher) []candidate {
	var out []candidate
	now := w.now()
	filepath.WalkDir(w.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			// Files vanish while the converter cleans up.
			return nil
		}
		if d.IsDir() {
			if path != w.root && slices.Contains(w.opts.SkipDirs, d.Name()) {
				return filepath.SkipDir
			}
			if notify != nil {
				notify.Add(path)
			}
			return nil
		}
		if !images.IsFrameName(d.Name()) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		key := fmt.Sprintf("%s|%d|%d", path, info.ModTime().UnixNano(), info.Size())
		if w.seen[key] || now.Sub(info.ModTime()) < w.opts.MinAge {
			return nil
		}
		out = append(out, candidate{path: path, key: key, modTime: info.ModTime()})
		return nil
	})
	return out
}

func (w *FrameWatcher) copyToPreview(src string) (string, error) {
	dir := filepath.Join(w.root, PreviewDir)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", err
	}
	in, err := os.Open(src)
	if err != nil {
		return "", err
	}
	defer in.Close()

	dst := filepath.Join(dir, fmt.Sprintf("frame_%06d%s", w.accepted+1, filepath.Ext(src)))
	out, err := os.Create(dst)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(dst)
		return "", err
	}
	if err := out.Close(); err != nil {
		os.Remove(dst)
		return "", err
	}
	w.accepted++
	return dst, nil
}
