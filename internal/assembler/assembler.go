// Package assembler downloads page images and packs them into a single
// zip container the converter can read.
package assembler

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/mholt/archives"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/vrsandeep/inkbridge/internal/fetcher"
	"github.com/vrsandeep/inkbridge/internal/images"
	"github.com/vrsandeep/inkbridge/internal/lrr"
	"github.com/vrsandeep/inkbridge/internal/models"
)

// StagingDir is the workspace subdirectory holding downloaded pages.
const StagingDir = "pages"

// ErrNoPages is returned when there is nothing to assemble.
var ErrNoPages = errors.New("no pages to assemble")

// PageFetcher fetches one page image.
type PageFetcher interface {
	Fetch(ctx context.Context, ref models.PageRef) (*fetcher.Page, error)
}

// Options tune one assembly.
type Options struct {
	// Name is the container file name without extension.
	Name string
	// CoverFirst prepends a rotated copy of the first page.
	CoverFirst bool
}

// Assembler turns page references into a packed container.
type Assembler struct {
	fetcher    PageFetcher
	normalizer images.Normalizer
	workers    int
	log        *zap.SugaredLogger
}

// New creates an Assembler downloading with at most workers pages in flight.
func New(f PageFetcher, normalizer images.Normalizer, workers int, log *zap.SugaredLogger) *Assembler {
	if workers < 1 {
		workers = 1
	}
	if normalizer == nil {
		normalizer = images.NewNormalizer()
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Assembler{fetcher: f, normalizer: normalizer, workers: workers, log: log}
}

// Assemble downloads refs into dir, normalizes every page and packs them
// in their original order into dir/<name>.cbz. Every downloaded page emits
// a page_done event; the packed container emits cbz_ready.
func (a *Assembler) Assemble(ctx context.Context, refs []models.PageRef, dir string, opts Options, reporter models.Reporter) (string, error) {
	if len(refs) == 0 {
		return "", ErrNoPages
	}
	if reporter == nil {
		reporter = models.NopReporter
	}

	staging := filepath.Join(dir, StagingDir)
	if err := os.MkdirAll(staging, 0755); err != nil {
		return "", fmt.Errorf("failed to create staging directory: %w", err)
	}

	total := len(refs)
	normalized := make([]string, total)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.workers)
	for i, ref := range refs {
		g.Go(func() error {
			page, err := a.fetcher.Fetch(gctx, ref)
			if err != nil {
				return fmt.Errorf("page %d: %w", i+1, err)
			}
			out, err := a.normalizer.Normalize(page.Data)
			if err != nil {
				return fmt.Errorf("page %d: %w", i+1, err)
			}
			name := filepath.Join(staging, fmt.Sprintf("page_%04d.jpg", i+1))
			if err := os.WriteFile(name, out, 0644); err != nil {
				return fmt.Errorf("page %d: %w", i+1, err)
			}
			normalized[i] = name
			reporter.Report(models.Event{Kind: models.EventPageDone, Index: i, Total: total, Label: lrr.PageLabel(ref, i)})
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return "", err
	}

	return a.Package(ctx, normalized, dir, opts, reporter)
}

// Package packs already normalized page files, in the given order, into
// dir/<name>.cbz and verifies the packed count. With CoverFirst a rotated
// copy of the first page is prepended.
func (a *Assembler) Package(ctx context.Context, files []string, dir string, opts Options, reporter models.Reporter) (string, error) {
	if len(files) == 0 {
		return "", ErrNoPages
	}
	if reporter == nil {
		reporter = models.NopReporter
	}

	entries := files
	if opts.CoverFirst {
		reporter.Report(models.StageEvent(models.StageCoverPrep, "Preparing rotated cover"))
		cover, err := a.prepareCover(files[0], filepath.Dir(files[0]))
		if err != nil {
			return "", err
		}
		entries = append([]string{cover}, files...)
	}

	name := opts.Name
	if name == "" {
		name = "input"
	}
	container := filepath.Join(dir, name+".cbz")
	if err := Pack(ctx, entries, container); err != nil {
		return "", err
	}

	packed, err := CountEntries(ctx, container)
	if err != nil {
		return "", err
	}
	if packed != len(entries) {
		return "", fmt.Errorf("container holds %d pages, expected %d", packed, len(entries))
	}

	a.log.Debugf("Packed %d pages into %s", packed, container)
	reporter.Report(models.Event{Kind: models.EventCbzReady, Total: len(files)})
	return container, nil
}

func (a *Assembler) prepareCover(firstPage, staging string) (string, error) {
	data, err := os.ReadFile(firstPage)
	if err != nil {
		return "", err
	}
	cover, err := images.RotatedCover(data)
	if err != nil {
		return "", err
	}
	path := filepath.Join(staging, "page_0000.jpg")
	if err := os.WriteFile(path, cover, 0644); err != nil {
		return "", err
	}
	return path, nil
}

// Pack zips files into dest. Entries are named 0001.jpg, 0002.jpg... so the
// converter sees them in the given order.
func Pack(ctx context.Context, files []string, dest string) error {
	names := make(map[string]string, len(files))
	for i, f := range files {
		names[f] = fmt.Sprintf("%04d%s", i+1, filepath.Ext(f))
	}
	infos, err := archives.FilesFromDisk(ctx, nil, names)
	if err != nil {
		return fmt.Errorf("failed to stat pages: %w", err)
	}

	out, err := os.Create(dest)
	if err != nil {
		return fmt.Errorf("failed to create container: %w", err)
	}
	if err := (archives.Zip{}).Archive(ctx, out, infos); err != nil {
		out.Close()
		os.Remove(dest)
		return fmt.Errorf("failed to pack container: %w", err)
	}
	return out.Close()
}

// CountEntries counts the regular files inside a zip container.
func CountEntries(ctx context.Context, container string) (int, error) {
	f, err := os.Open(container)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	count := 0
	err = (archives.Zip{}).Extract(ctx, f, func(ctx context.Context, info archives.FileInfo) error {
		if !info.IsDir() {
			count++
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to read container: %w", err)
	}
	return count, nil
}
