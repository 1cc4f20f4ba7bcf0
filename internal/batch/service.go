package batch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
	"go.uber.org/zap"

	"github.com/vrsandeep/inkbridge/internal/models"
)

var (
	ErrBatchNotFound = errors.New("batch not found")
	errNoUploader    = errors.New("no device configured for uploads")
)

// Notifier receives batch status changes.
type Notifier interface {
	BroadcastJSON(v any)
}

// Service runs batches in the background and keeps their status for
// polling. Finished batches are forgotten after ttl.
type Service struct {
	scheduler *Scheduler
	notifier  Notifier
	statuses  *cache.Cache
	log       *zap.SugaredLogger

	running sync.WaitGroup
	ctx     context.Context
	cancel  context.CancelFunc
}

// NewService creates a Service. notifier may be nil.
func NewService(scheduler *Scheduler, notifier Notifier, ttl time.Duration, log *zap.SugaredLogger) *Service {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Service{
		scheduler: scheduler,
		notifier:  notifier,
		statuses:  cache.New(ttl, ttl),
		log:       log,
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Validate checks a batch request before anything runs.
func (s *Service) Validate(req models.BatchRequest) error {
	if len(req.ArchiveIDs) == 0 {
		return fmt.Errorf("at least one archive id is required")
	}
	for _, id := range req.ArchiveIDs {
		if id == "" {
			return fmt.Errorf("archive ids cannot be empty")
		}
	}
	switch req.Mode {
	case "", models.BatchDownload:
	case models.BatchUpload:
		if s.scheduler.uploader == nil {
			return errNoUploader
		}
	default:
		return fmt.Errorf("unknown batch mode %q", req.Mode)
	}
	if req.Workers < 0 {
		return fmt.Errorf("workers cannot be negative")
	}
	return nil
}

// Start validates req and runs it in the background. The returned status
// is the batch as created.
func (s *Service) Start(req models.BatchRequest) (models.BatchStatus, error) {
	if err := s.Validate(req); err != nil {
		return models.BatchStatus{}, err
	}
	batchID := uuid.NewString()
	initial := newTracker(batchID, req, s.scheduler.now(), nil).status
	s.record(initial)

	s.running.Add(1)
	go func() {
		defer s.running.Done()
		final := s.scheduler.Run(s.ctx, batchID, req, s.record)
		s.log.Infof("Batch %s finished: %d converted, %d uploaded, %d failed", batchID, final.Converted, final.Uploaded, final.Failed)
	}()
	return initial, nil
}

func (s *Service) record(status models.BatchStatus) {
	s.statuses.SetDefault(status.BatchID, status)
	if s.notifier != nil {
		s.notifier.BroadcastJSON(models.ProgressUpdate{Type: "batch", Batch: &status})
	}
}

// Get returns the status of a batch.
func (s *Service) Get(batchID string) (models.BatchStatus, error) {
	v, ok := s.statuses.Get(batchID)
	if !ok {
		return models.BatchStatus{}, ErrBatchNotFound
	}
	return cloneStatus(v.(models.BatchStatus)), nil
}

// Wait blocks until every started batch has finished.
func (s *Service) Wait() {
	s.running.Wait()
}

// Shutdown cancels running batches and waits for them.
func (s *Service) Shutdown() {
	s.cancel()
	s.running.Wait()
}
