// Package pipeline runs one archive through metadata lookup, input
// resolution and the external converter.
package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/vrsandeep/inkbridge/internal/converter"
	"github.com/vrsandeep/inkbridge/internal/jobs"
	"github.com/vrsandeep/inkbridge/internal/models"
	"github.com/vrsandeep/inkbridge/internal/resolver"
	"github.com/vrsandeep/inkbridge/internal/util"
)

// MetadataSource looks up archive metadata.
type MetadataSource interface {
	GetMetadata(ctx context.Context, id string) (models.ArchiveMetadata, error)
}

// InputResolver obtains the converter input for an archive.
type InputResolver interface {
	Resolve(ctx context.Context, meta models.ArchiveMetadata, settings models.ConversionSettings, workspace, name string, state *resolver.State, reporter models.Reporter) (*resolver.Result, error)
}

// Tool runs the converter in a workspace.
type Tool interface {
	Preflight() error
	Run(ctx context.Context, workspace string, flags []string, reporter models.Reporter) (*converter.Output, error)
}

// Pipeline implements jobs.Runner.
type Pipeline struct {
	meta     MetadataSource
	resolver InputResolver
	tool     Tool
	workDir  string
	log      *zap.SugaredLogger
}

// New creates a Pipeline. Workspaces are created under workDir, or the OS
// temp dir when it is empty.
func New(meta MetadataSource, r InputResolver, tool Tool, workDir string, log *zap.SugaredLogger) *Pipeline {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Pipeline{meta: meta, resolver: r, tool: tool, workDir: workDir, log: log}
}

// Preflight fails when the converter is missing or the work directory is
// not usable.
func (p *Pipeline) Preflight() error {
	if err := p.tool.Preflight(); err != nil {
		return err
	}
	if p.workDir != "" {
		if err := util.ValidateWorkDir(p.workDir); err != nil {
			return fmt.Errorf("work directory: %w", err)
		}
	}
	return nil
}

// Run converts one archive. On success the returned artifact owns the
// job's workspace; on failure the workspace is already gone.
func (p *Pipeline) Run(ctx context.Context, archiveID string, settings models.ConversionSettings, reporter models.Reporter) (artifact *jobs.Artifact, err error) {
	if reporter == nil {
		reporter = models.NopReporter
	}

	reporter.Report(models.StageEvent(models.StageMetadata, "Fetching archive metadata"))
	meta, err := p.meta.GetMetadata(ctx, archiveID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch metadata: %w", err)
	}
	if meta.ArcID == "" {
		meta.ArcID = archiveID
	}

	workspace, err := os.MkdirTemp(p.workDir, "job-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create workspace: %w", err)
	}
	defer func() {
		if err != nil {
			if rmErr := os.RemoveAll(workspace); rmErr != nil {
				p.log.Warnf("Failed to remove workspace %s: %v", workspace, rmErr)
			}
		}
	}()

	result, err := p.resolver.Resolve(ctx, meta, settings, workspace, "", &resolver.State{}, reporter)
	if err != nil {
		return nil, err
	}

	reporter.Report(models.StageEvent(models.StageConvert, "Converting with cbz2xtc"))
	out, err := p.tool.Run(ctx, workspace, converter.Flags(result.Settings), reporter)
	if err != nil {
		return nil, err
	}
	if out.Summary != "" {
		p.log.Debugf("Archive %s: %s", archiveID, out.Summary)
	}

	name := util.DownloadName(meta, filepath.Ext(out.Path))
	return jobs.NewArtifact(out.Path, name, workspace)
}
