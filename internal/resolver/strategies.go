package resolver

import (
	"context"
	"errors"
	"slices"
	"strings"

	"github.com/vrsandeep/inkbridge/internal/models"
)

// Strategy names, as reported in Result.Strategy.
const (
	StrategyExtractPages    = "extract-pages"
	StrategyArchiveDownload = "archive-download"
	StrategyPageAssembly    = "page-assembly"
)

// DirectExtensions are the source extensions worth a raw download attempt.
var DirectExtensions = []string{"zip", "cbz", "rar", "cbr", "7z", "cb7", "pdf"}

// extractPages assembles from the page list when extraction is requested.
// A list of one page or less is not trusted.
type extractPages struct{ r *Resolver }

func (s *extractPages) Name() string { return StrategyExtractPages }

func (s *extractPages) Applies(job *Job) bool { return job.Settings.ExtractPages }

func (s *extractPages) Resolve(ctx context.Context, job *Job, reporter models.Reporter) (string, error) {
	reporter.Report(models.StageEvent(models.StageFetchingPages, "Fetching page list"))
	refs, err := s.r.source.GetPages(ctx, job.Meta.ArcID, false)
	if err != nil {
		s.r.log.Warnf("Archive %s: page list failed: %v", job.Meta.ArcID, err)
		return "", nil
	}
	if len(refs) <= 1 && job.Meta.PageCount > 1 {
		s.r.log.Debugf("Archive %s: cached list has %d pages, expected %d; refreshing", job.Meta.ArcID, len(refs), job.Meta.PageCount)
		refs, err = s.r.source.GetPages(ctx, job.Meta.ArcID, true)
		if err != nil {
			s.r.log.Warnf("Archive %s: page list refresh failed: %v", job.Meta.ArcID, err)
			return "", nil
		}
	}
	if len(refs) <= 1 {
		return "", nil
	}
	return s.r.assemble(ctx, job, refs, reporter)
}

// archiveDownload uses the raw archive when the source is a container type.
type archiveDownload struct{ r *Resolver }

func (s *archiveDownload) Name() string { return StrategyArchiveDownload }

func (s *archiveDownload) Applies(job *Job) bool {
	ext := strings.ToLower(strings.TrimPrefix(job.Meta.Extension, "."))
	return slices.Contains(DirectExtensions, ext)
}

func (s *archiveDownload) Resolve(ctx context.Context, job *Job, reporter models.Reporter) (string, error) {
	reporter.Report(models.StageEvent(models.StageArchiveDownload, "Downloading archive"))
	path, err := s.r.download(ctx, job, reporter)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		if errors.Is(err, ErrNotContainer) {
			s.r.log.Infof("Archive %s: %v; falling back to page assembly", job.Meta.ArcID, err)
		} else {
			s.r.log.Warnf("Archive %s: direct download failed: %v", job.Meta.ArcID, err)
		}
		return "", nil
	}
	return path, nil
}

// pageAssembly always assembles from a freshly extracted page list.
type pageAssembly struct{ r *Resolver }

func (s *pageAssembly) Name() string { return StrategyPageAssembly }

func (s *pageAssembly) Applies(*Job) bool { return true }

func (s *pageAssembly) Resolve(ctx context.Context, job *Job, reporter models.Reporter) (string, error) {
	reporter.Report(models.StageEvent(models.StageFetchingPages, "Fetching page list"))
	refs, err := s.r.source.GetPages(ctx, job.Meta.ArcID, true)
	if err != nil {
		return "", err
	}
	if len(refs) == 0 {
		return "", ErrNoPages
	}
	return s.r.assemble(ctx, job, refs, reporter)
}
