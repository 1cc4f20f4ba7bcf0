// Package resolver produces the local container the converter runs on. It
// tries an ordered chain of strategies until one yields a container.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/vrsandeep/inkbridge/internal/assembler"
	"github.com/vrsandeep/inkbridge/internal/images"
	"github.com/vrsandeep/inkbridge/internal/lrr"
	"github.com/vrsandeep/inkbridge/internal/models"
)

var (
	// ErrNoPages is returned when the last strategy resolves zero pages.
	ErrNoPages = errors.New("archive has no pages")
	// ErrNotContainer marks a raw download that is not a usable container.
	ErrNotContainer = errors.New("download is not an archive container")
)

// ArchiveSource is the part of the archive server client the resolver uses.
type ArchiveSource interface {
	GetPages(ctx context.Context, id string, force bool) ([]models.PageRef, error)
	DownloadArchive(ctx context.Context, id string) (*lrr.Stream, error)
}

// ContainerBuilder packs pages into a container.
type ContainerBuilder interface {
	Assemble(ctx context.Context, refs []models.PageRef, dir string, opts assembler.Options, reporter models.Reporter) (string, error)
	Package(ctx context.Context, files []string, dir string, opts assembler.Options, reporter models.Reporter) (string, error)
}

// Job is the input of one resolution.
type Job struct {
	Meta      models.ArchiveMetadata
	Settings  models.ConversionSettings
	Workspace string
	// Name is the container file name without extension.
	Name string
}

func (j *Job) packOptions() assembler.Options {
	return assembler.Options{Name: j.Name, CoverFirst: j.Settings.IsLandscape()}
}

// Strategy is one way of obtaining a container. Resolve returns an empty
// path and no error to let the next strategy try; an error is fatal.
type Strategy interface {
	Name() string
	Applies(job *Job) bool
	Resolve(ctx context.Context, job *Job, reporter models.Reporter) (string, error)
}

// Result is a resolved container together with the settings derived for it.
type Result struct {
	ContainerPath string
	Strategy      string
	Settings      models.ConversionSettings
}

// Resolver runs the strategy chain.
type Resolver struct {
	source     ArchiveSource
	builder    ContainerBuilder
	normalizer images.Normalizer
	strategies []Strategy
	log        *zap.SugaredLogger
}

// New creates a Resolver with the default chain: extract-pages,
// archive-download, page-assembly.
func New(source ArchiveSource, builder ContainerBuilder, log *zap.SugaredLogger) *Resolver {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	r := &Resolver{
		source:     source,
		builder:    builder,
		normalizer: images.NewNormalizer(),
		log:        log,
	}
	r.strategies = []Strategy{
		&extractPages{r: r},
		&archiveDownload{r: r},
		&pageAssembly{r: r},
	}
	return r
}

// WithStrategies replaces the chain. Used by tests to exercise one strategy.
func (r *Resolver) WithStrategies(strategies ...Strategy) *Resolver {
	r.strategies = strategies
	return r
}

// Resolve derives the job's settings and obtains a container in workspace.
// state must be the same value for every resolution of one job.
func (r *Resolver) Resolve(ctx context.Context, meta models.ArchiveMetadata, settings models.ConversionSettings, workspace, name string, state *State, reporter models.Reporter) (*Result, error) {
	if reporter == nil {
		reporter = models.NopReporter
	}

	pageCount := meta.PageCount
	if settings.IsPortrait() && pageCount <= 0 {
		refs, err := r.source.GetPages(ctx, meta.ArcID, false)
		if err != nil {
			return nil, fmt.Errorf("failed to count pages: %w", err)
		}
		pageCount = len(refs)
	}
	resolved := ResolveSettings(settings, pageCount, state)
	if state != nil && state.PortraitOverride {
		r.log.Warnf("Archive %s: portrait mode replaced the requested page selection %q with all %d pages", meta.ArcID, settings.DontSplit, pageCount)
	}

	job := &Job{Meta: meta, Settings: resolved, Workspace: workspace, Name: name}
	for _, s := range r.strategies {
		if !s.Applies(job) {
			continue
		}
		path, err := s.Resolve(ctx, job, reporter)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", s.Name(), err)
		}
		if path == "" {
			r.log.Debugf("Archive %s: strategy %s produced no container", meta.ArcID, s.Name())
			continue
		}
		if _, err := os.Stat(path); err != nil {
			return nil, fmt.Errorf("%s: container missing: %w", s.Name(), err)
		}
		r.log.Infof("Archive %s: input resolved via %s", meta.ArcID, s.Name())
		return &Result{ContainerPath: path, Strategy: s.Name(), Settings: resolved}, nil
	}
	return nil, ErrNoPages
}

func (r *Resolver) assemble(ctx context.Context, job *Job, refs []models.PageRef, reporter models.Reporter) (string, error) {
	labels := make([]string, len(refs))
	for i, ref := range refs {
		labels[i] = lrr.PageLabel(ref, i)
	}
	reporter.Report(models.Event{Kind: models.EventPages, Total: len(refs), Labels: labels})
	reporter.Report(models.StageEvent(models.StageBuildingInput, fmt.Sprintf("Downloading %d pages", len(refs))))
	return r.builder.Assemble(ctx, refs, job.Workspace, job.packOptions(), reporter)
}
