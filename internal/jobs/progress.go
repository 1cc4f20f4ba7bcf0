package jobs

import (
	"fmt"
	"time"

	"github.com/vrsandeep/inkbridge/internal/models"
)

// ProgressPolicy holds the thresholds used to turn events into a
// completion fraction.
type ProgressPolicy struct {
	// PageCeiling is the share of the bar page downloads can fill.
	PageCeiling float64
	// ToolFloor is the minimum once the converter runs.
	ToolFloor float64
	// DownloadFloor is the minimum once a raw archive download starts.
	DownloadFloor float64
	// RunningFloor is the minimum once the job leaves the queue.
	RunningFloor float64
}

// DefaultPolicy returns the stock thresholds.
func DefaultPolicy() ProgressPolicy {
	return ProgressPolicy{
		PageCeiling:   0.7,
		ToolFloor:     0.85,
		DownloadFloor: 0.35,
		RunningFloor:  0.1,
	}
}

func (p ProgressPolicy) stageFloor(stage string) float64 {
	switch stage {
	case models.StageMetadata, models.StageFetchingPages, models.StageBuildingInput:
		return p.RunningFloor
	case models.StageArchiveDownload:
		return p.DownloadFloor
	case models.StageCoverPrep:
		return p.PageCeiling
	case models.StageConvert:
		return p.ToolFloor
	}
	return 0
}

// apply folds one pipeline event into job. Terminal jobs are frozen.
func apply(job *models.ConversionJob, e models.Event, policy ProgressPolicy, now time.Time) {
	if job.Status.IsTerminal() {
		return
	}

	switch e.Kind {
	case models.EventStage:
		job.Stage = e.Stage
		if e.Message != "" {
			job.Message = e.Message
		}
		raise(job, policy.stageFloor(e.Stage))

	case models.EventPages:
		growPages(job, e.Total, e.Labels)
		job.Message = fmt.Sprintf("Found %d pages", job.TotalPages)

	case models.EventPageDone:
		growPages(job, e.Total, nil)
		if e.Index >= 0 && e.Index < len(job.Pages) {
			page := &job.Pages[e.Index]
			if e.Label != "" {
				page.Label = e.Label
			}
			if !page.Done {
				page.Done = true
				job.CompletedPages++
			}
		}
		if job.TotalPages > 0 {
			job.Message = fmt.Sprintf("Downloaded %d of %d pages", job.CompletedPages, job.TotalPages)
			if job.Stage != models.StageConvert {
				fraction := float64(job.CompletedPages) / float64(job.TotalPages) * policy.PageCeiling
				raise(job, min(policy.PageCeiling, fraction))
			}
		}

	case models.EventCbzReady:
		job.Message = fmt.Sprintf("Input ready with %d pages", e.Total)
		raise(job, policy.PageCeiling)

	case models.EventFrame:
		job.ConvertedFrameVersion++
		job.CurrentPagePath = e.Path
		job.CurrentConvertedFrameLabel = e.Label
		job.FrameUpdatedAt = now

	case models.EventLog:
		if e.Message != "" {
			job.Message = e.Message
		}
	}
	job.UpdatedAt = now
}

// growPages extends the page list to total entries. It never shrinks.
func growPages(job *models.ConversionJob, total int, labels []string) {
	if total > job.TotalPages {
		job.TotalPages = total
	}
	for len(job.Pages) < job.TotalPages {
		job.Pages = append(job.Pages, models.PageStatus{Label: fmt.Sprintf("Page %d", len(job.Pages)+1)})
	}
	for i, label := range labels {
		if i < len(job.Pages) && label != "" && !job.Pages[i].Done {
			job.Pages[i].Label = label
		}
	}
}

func raise(job *models.ConversionJob, floor float64) {
	if floor > 1 {
		floor = 1
	}
	if floor > job.Progress {
		job.Progress = floor
	}
}

func markRunning(job *models.ConversionJob, policy ProgressPolicy, now time.Time) {
	if job.Status != models.JobQueued {
		return
	}
	job.Status = models.JobRunning
	job.Message = "Starting conversion"
	raise(job, policy.RunningFloor)
	job.UpdatedAt = now
}

func markCompleted(job *models.ConversionJob, artifact *Artifact, now time.Time) {
	if job.Status.IsTerminal() {
		return
	}
	job.Status = models.JobCompleted
	job.Stage = models.StageCompleted
	job.Progress = 1
	job.Message = "Conversion complete"
	job.DownloadName = artifact.Name
	job.FileSize = artifact.Size
	job.UpdatedAt = now
}

func markFailed(job *models.ConversionJob, err error, now time.Time) {
	if job.Status.IsTerminal() {
		return
	}
	job.Status = models.JobFailed
	job.Stage = models.StageFailed
	job.Error = err.Error()
	job.Message = err.Error()
	job.UpdatedAt = now
}
