// Package batch converts many archives with bounded concurrency and, in
// upload mode, pushes the results to the device one at a time.
package batch

import (
	"context"
	"maps"
	"slices"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/vrsandeep/inkbridge/internal/jobs"
	"github.com/vrsandeep/inkbridge/internal/models"
)

// Failure phases.
const (
	PhaseConvert = "convert"
	PhaseUpload  = "upload"
)

// Converter runs single conversion jobs.
type Converter interface {
	Run(ctx context.Context, archiveID string, settings models.ConversionSettings) (models.ConversionJob, error)
	TakeArtifact(jobID string) (*jobs.Artifact, error)
}

// Uploader pushes one file to the device.
type Uploader interface {
	Upload(ctx context.Context, filePath, fileName, targetPath string) error
}

// Scheduler runs batches.
type Scheduler struct {
	converter Converter
	uploader  Uploader
	workers   int
	now       func() time.Time
	log       *zap.SugaredLogger
}

// NewScheduler creates a Scheduler. uploader may be nil when upload mode
// is not used. workers is the default conversion concurrency.
func NewScheduler(converter Converter, uploader Uploader, workers int, log *zap.SugaredLogger) *Scheduler {
	if workers < 1 {
		workers = 1
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Scheduler{converter: converter, uploader: uploader, workers: workers, now: time.Now, log: log}
}

type pendingUpload struct {
	archiveID string
	jobID     string
	artifact  *jobs.Artifact
}

// Run converts every archive of req and returns the final status once all
// conversions and uploads have settled. A failing archive never stops the
// others. onChange, when set, receives a snapshot after every change.
//
// In download mode converted jobs stay in the job registry for the caller
// to collect. In upload mode each artifact is taken from its job, uploaded
// by a single sequential worker and disposed.
func (s *Scheduler) Run(ctx context.Context, batchID string, req models.BatchRequest, onChange func(models.BatchStatus)) models.BatchStatus {
	t := newTracker(batchID, req, s.now(), onChange)

	workers := req.Workers
	if workers < 1 {
		workers = s.workers
	}

	var uploads chan pendingUpload
	uploadsDone := make(chan struct{})
	if req.Mode == models.BatchUpload {
		uploads = make(chan pendingUpload, len(req.ArchiveIDs))
		go func() {
			defer close(uploadsDone)
			s.uploadLoop(ctx, req.TargetPath, uploads, t)
		}()
	} else {
		close(uploadsDone)
	}

	s.log.Infof("Batch %s: %d archives, %d workers, mode %s", batchID, len(req.ArchiveIDs), workers, req.Mode)
	var g errgroup.Group
	g.SetLimit(workers)
	for _, archiveID := range req.ArchiveIDs {
		g.Go(func() error {
			job, err := s.converter.Run(ctx, archiveID, req.Settings)
			if err != nil {
				s.log.Warnf("Batch %s: archive %s failed: %v", batchID, archiveID, err)
				t.fail(archiveID, job.JobID, PhaseConvert, err)
				return nil
			}
			t.converted(archiveID, job.JobID)

			if uploads != nil {
				artifact, err := s.converter.TakeArtifact(job.JobID)
				if err != nil {
					t.fail(archiveID, job.JobID, PhaseUpload, err)
					return nil
				}
				uploads <- pendingUpload{archiveID: archiveID, jobID: job.JobID, artifact: artifact}
			}
			return nil
		})
	}
	g.Wait()

	if uploads != nil {
		close(uploads)
	}
	<-uploadsDone
	return t.finish(s.now())
}

func (s *Scheduler) uploadLoop(ctx context.Context, target string, uploads <-chan pendingUpload, t *tracker) {
	for u := range uploads {
		var err error
		if s.uploader == nil {
			err = errNoUploader
		} else {
			err = s.uploader.Upload(ctx, u.artifact.Path, u.artifact.Name, target)
		}
		if disposeErr := u.artifact.Dispose(); disposeErr != nil {
			s.log.Warnf("Failed to dispose artifact of job %s: %v", u.jobID, disposeErr)
		}
		if err != nil {
			s.log.Warnf("Upload of %s failed: %v", u.artifact.Name, err)
			t.fail(u.archiveID, u.jobID, PhaseUpload, err)
			continue
		}
		s.log.Infof("Uploaded %s to %s", u.artifact.Name, target)
		t.uploaded()
	}
}

// tracker owns the status of one running batch.
type tracker struct {
	mu       sync.Mutex
	status   models.BatchStatus
	onChange func(models.BatchStatus)
}

func newTracker(batchID string, req models.BatchRequest, now time.Time, onChange func(models.BatchStatus)) *tracker {
	mode := req.Mode
	if mode == "" {
		mode = models.BatchDownload
	}
	return &tracker{
		status: models.BatchStatus{
			BatchID:   batchID,
			Mode:      mode,
			Total:     len(req.ArchiveIDs),
			Jobs:      make(map[string]string),
			Failures:  []models.BatchFailure{},
			CreatedAt: now,
		},
		onChange: onChange,
	}
}

// change applies fn and publishes the result. Publishing happens under the
// lock so observers see snapshots in order.
func (t *tracker) change(fn func(s *models.BatchStatus)) models.BatchStatus {
	t.mu.Lock()
	defer t.mu.Unlock()
	fn(&t.status)
	snapshot := cloneStatus(t.status)
	if t.onChange != nil {
		t.onChange(snapshot)
	}
	return snapshot
}

func (t *tracker) converted(archiveID, jobID string) {
	t.change(func(s *models.BatchStatus) {
		s.Jobs[archiveID] = jobID
		s.Converted++
	})
}

func (t *tracker) uploaded() {
	t.change(func(s *models.BatchStatus) { s.Uploaded++ })
}

func (t *tracker) fail(archiveID, jobID, phase string, err error) {
	t.change(func(s *models.BatchStatus) {
		if jobID != "" {
			s.Jobs[archiveID] = jobID
		}
		s.Failed++
		s.Failures = append(s.Failures, models.BatchFailure{
			ArchiveID: archiveID,
			JobID:     jobID,
			Phase:     phase,
			Error:     err.Error(),
		})
	})
}

func (t *tracker) finish(now time.Time) models.BatchStatus {
	return t.change(func(s *models.BatchStatus) {
		s.Done = true
		s.FinishedAt = now
	})
}

func cloneStatus(s models.BatchStatus) models.BatchStatus {
	c := s
	c.Jobs = maps.Clone(s.Jobs)
	c.Failures = slices.Clone(s.Failures)
	return c
}
