package jobs

import (
	"sort"
	"sync"

	"github.com/vrsandeep/inkbridge/internal/models"
)

// Repository stores job snapshots. Implementations must serialize Update
// calls per job so events are applied in the order they are reported.
type Repository interface {
	Create(job models.ConversionJob) error
	Get(id string) (models.ConversionJob, error)
	// Update applies fn to the stored job and returns the result.
	Update(id string, fn func(job *models.ConversionJob)) (models.ConversionJob, error)
	Delete(id string)
	List() []models.ConversionJob
}

// MemoryRepository is a mutex guarded in-memory Repository. Jobs do not
// survive a restart.
type MemoryRepository struct {
	mu   sync.RWMutex
	jobs map[string]*models.ConversionJob
}

// NewMemoryRepository creates an empty repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{jobs: make(map[string]*models.ConversionJob)}
}

func (r *MemoryRepository) Create(job models.ConversionJob) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.jobs[job.JobID]; exists {
		return ErrJobExists
	}
	stored := job.Clone()
	r.jobs[job.JobID] = &stored
	return nil
}

func (r *MemoryRepository) Get(id string) (models.ConversionJob, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	job, ok := r.jobs[id]
	if !ok {
		return models.ConversionJob{}, ErrJobNotFound
	}
	return job.Clone(), nil
}

func (r *MemoryRepository) Update(id string, fn func(job *models.ConversionJob)) (models.ConversionJob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[id]
	if !ok {
		return models.ConversionJob{}, ErrJobNotFound
	}
	fn(job)
	return job.Clone(), nil
}

func (r *MemoryRepository) Delete(id string) {
	r.mu.Lock()
	delete(r.jobs, id)
	r.mu.Unlock()
}

// List returns every job, oldest first.
func (r *MemoryRepository) List() []models.ConversionJob {
	r.mu.RLock()
	out := make([]models.ConversionJob, 0, len(r.jobs))
	for _, job := range r.jobs {
		out = append(out, job.Clone())
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].JobID < out[j].JobID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}
