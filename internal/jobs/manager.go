// Package jobs owns conversion jobs: their state machine, the registry
// callers poll, artifact handoff and TTL based reclamation.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/vrsandeep/inkbridge/internal/models"
)

var (
	ErrJobNotFound         = errors.New("job not found")
	ErrJobExists           = errors.New("job already exists")
	ErrArtifactUnavailable = errors.New("artifact is not available")
	ErrNoLiveFrame         = errors.New("no converted frame yet")
)

// Runner executes the conversion pipeline for one job. Run reports
// progress through reporter and returns the artifact on success. On
// failure the runner has already removed the job's workspace.
type Runner interface {
	Preflight() error
	Run(ctx context.Context, archiveID string, settings models.ConversionSettings, reporter models.Reporter) (*Artifact, error)
}

// Notifier receives every job state change, e.g. a websocket hub.
type Notifier interface {
	BroadcastJSON(v any)
}

// Options configure a Manager.
type Options struct {
	// TTL is how long a finished job is kept if nobody collects it.
	TTL    time.Duration
	Policy ProgressPolicy
	// Now is the clock; tests pass a fake one.
	Now func() time.Time
}

// Manager runs conversion jobs and keeps their state.
type Manager struct {
	repo      Repository
	runner    Runner
	notifier  Notifier
	reclaimer *Reclaimer
	opts      Options
	log       *zap.SugaredLogger

	mu        sync.Mutex
	artifacts map[string]*Artifact
	// updateMu keeps notifications in the order updates were applied.
	updateMu  sync.Mutex
	running   sync.WaitGroup
	ctx       context.Context
	cancel    context.CancelFunc
}

// NewManager creates a Manager. notifier may be nil.
func NewManager(repo Repository, runner Runner, notifier Notifier, opts Options, log *zap.SugaredLogger) *Manager {
	if opts.TTL <= 0 {
		opts.TTL = 30 * time.Minute
	}
	if opts.Policy == (ProgressPolicy{}) {
		opts.Policy = DefaultPolicy()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	ctx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		repo:      repo,
		runner:    runner,
		notifier:  notifier,
		opts:      opts,
		log:       log,
		artifacts: make(map[string]*Artifact),
		ctx:       ctx,
		cancel:    cancel,
	}
	m.reclaimer = NewReclaimer(m.reclaim)
	return m
}

// Reclaimer returns the TTL queue; StartReclaimer drives it.
func (m *Manager) Reclaimer() *Reclaimer {
	return m.reclaimer
}

// Start creates a queued job and runs it in the background. The returned
// snapshot is the job as created.
func (m *Manager) Start(archiveID string, settings models.ConversionSettings) (models.ConversionJob, error) {
	job, err := m.create(archiveID)
	if err != nil {
		return models.ConversionJob{}, err
	}
	m.running.Add(1)
	go func() {
		defer m.running.Done()
		m.execute(m.ctx, job.JobID, archiveID, settings)
	}()
	return job, nil
}

// Run creates a job and runs it to the end on the calling goroutine. The
// final snapshot is returned; a failed job also returns its error.
func (m *Manager) Run(ctx context.Context, archiveID string, settings models.ConversionSettings) (models.ConversionJob, error) {
	job, err := m.create(archiveID)
	if err != nil {
		return models.ConversionJob{}, err
	}
	if runErr := m.execute(ctx, job.JobID, archiveID, settings); runErr != nil {
		final, _ := m.repo.Get(job.JobID)
		return final, runErr
	}
	return m.repo.Get(job.JobID)
}

func (m *Manager) create(archiveID string) (models.ConversionJob, error) {
	if archiveID == "" {
		return models.ConversionJob{}, fmt.Errorf("archive id is required")
	}
	if err := m.runner.Preflight(); err != nil {
		return models.ConversionJob{}, err
	}
	now := m.opts.Now()
	job := models.ConversionJob{
		JobID:     uuid.NewString(),
		ArchiveID: archiveID,
		Status:    models.JobQueued,
		Stage:     models.StageQueued,
		Message:   "Queued",
		Pages:     []models.PageStatus{},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := m.repo.Create(job); err != nil {
		return models.ConversionJob{}, err
	}
	m.notify(job)
	return job, nil
}

// execute runs the pipeline for a created job and records the outcome.
func (m *Manager) execute(ctx context.Context, jobID, archiveID string, settings models.ConversionSettings) (err error) {
	m.update(jobID, func(job *models.ConversionJob) {
		markRunning(job, m.opts.Policy, m.opts.Now())
	})

	reporter := models.ReporterFunc(func(e models.Event) {
		m.update(jobID, func(job *models.ConversionJob) {
			apply(job, e, m.opts.Policy, m.opts.Now())
		})
	})

	var artifact *Artifact
	func() {
		defer func() {
			if r := recover(); r != nil {
				m.log.Errorf("Job %s panicked: %v", jobID, r)
				err = fmt.Errorf("job panicked: %v", r)
			}
		}()
		m.log.Infof("Job %s: converting archive %s", jobID, archiveID)
		artifact, err = m.runner.Run(ctx, archiveID, settings, reporter)
	}()

	expires := m.opts.Now().Add(m.opts.TTL)
	if err != nil {
		m.log.Errorf("Job %s failed: %v", jobID, err)
		m.update(jobID, func(job *models.ConversionJob) {
			markFailed(job, err, m.opts.Now())
		})
		m.reclaimer.Schedule(jobID, expires)
		return err
	}

	m.mu.Lock()
	m.artifacts[jobID] = artifact
	m.mu.Unlock()
	m.update(jobID, func(job *models.ConversionJob) {
		markCompleted(job, artifact, m.opts.Now())
	})
	m.reclaimer.Schedule(jobID, expires)
	m.log.Infof("Job %s completed: %s (%d bytes)", jobID, artifact.Name, artifact.Size)
	return nil
}

func (m *Manager) update(jobID string, fn func(job *models.ConversionJob)) {
	m.updateMu.Lock()
	defer m.updateMu.Unlock()
	job, err := m.repo.Update(jobID, fn)
	if err != nil {
		m.log.Debugf("Job %s: dropped update: %v", jobID, err)
		return
	}
	m.notify(job)
}

func (m *Manager) notify(job models.ConversionJob) {
	if m.notifier != nil {
		m.notifier.BroadcastJSON(models.ProgressUpdate{Type: "job", Job: &job})
	}
}

// Snapshot returns the current state of a job.
func (m *Manager) Snapshot(jobID string) (models.ConversionJob, error) {
	return m.repo.Get(jobID)
}

// List returns every known job, oldest first.
func (m *Manager) List() []models.ConversionJob {
	return m.repo.List()
}

// LiveFrame returns the preview file of the latest converted frame and the
// time that frame was accepted.
func (m *Manager) LiveFrame(jobID string) (string, time.Time, error) {
	job, err := m.repo.Get(jobID)
	if err != nil {
		return "", time.Time{}, err
	}
	if job.CurrentPagePath == "" {
		return "", time.Time{}, ErrNoLiveFrame
	}
	return job.CurrentPagePath, job.FrameUpdatedAt, nil
}

// TakeArtifact transfers ownership of a completed job's artifact to the
// caller, who must Dispose it. The TTL is cancelled and the job record is
// removed. A second call returns ErrArtifactUnavailable.
func (m *Manager) TakeArtifact(jobID string) (*Artifact, error) {
	job, err := m.repo.Get(jobID)
	if err != nil {
		return nil, err
	}
	if job.Status != models.JobCompleted {
		return nil, ErrArtifactUnavailable
	}

	m.mu.Lock()
	artifact, ok := m.artifacts[jobID]
	delete(m.artifacts, jobID)
	m.mu.Unlock()
	if !ok || artifact.Disposed() {
		return nil, ErrArtifactUnavailable
	}

	m.reclaimer.Cancel(jobID)
	m.repo.Delete(jobID)
	return artifact, nil
}

// StreamArtifact takes the artifact and opens it. Closing the reader
// disposes the artifact.
func (m *Manager) StreamArtifact(jobID string) (io.ReadCloser, string, int64, error) {
	artifact, err := m.TakeArtifact(jobID)
	if err != nil {
		return nil, "", 0, err
	}
	f, err := artifact.Open()
	if err != nil {
		artifact.Dispose()
		return nil, "", 0, err
	}
	return &disposingReader{File: f, artifact: artifact}, artifact.Name, artifact.Size, nil
}

// reclaim disposes an expired job's artifact and forgets the job.
func (m *Manager) reclaim(jobID string) {
	m.mu.Lock()
	artifact := m.artifacts[jobID]
	delete(m.artifacts, jobID)
	m.mu.Unlock()

	if artifact != nil {
		if err := artifact.Dispose(); err != nil {
			m.log.Warnf("Job %s: failed to dispose artifact: %v", jobID, err)
		}
	}
	m.repo.Delete(jobID)
	m.log.Debugf("Job %s reclaimed", jobID)
}

// Wait blocks until every job started with Start has finished.
func (m *Manager) Wait() {
	m.running.Wait()
}

// Shutdown cancels running jobs, waits for them and disposes every
// artifact still held. Jobs are not persisted.
func (m *Manager) Shutdown() {
	m.cancel()
	m.running.Wait()

	m.mu.Lock()
	artifacts := m.artifacts
	m.artifacts = make(map[string]*Artifact)
	m.mu.Unlock()
	for id, artifact := range artifacts {
		m.reclaimer.Cancel(id)
		artifact.Dispose()
	}
}
