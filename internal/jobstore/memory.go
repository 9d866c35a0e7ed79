package jobstore

import (
	"context"
	"sync"

	"github.com/banguyen/weathercards/internal/domain"
)

// MemoryStore is an in-process Store used in tests and local runs. It applies
// the same version discipline as the Postgres store.
type MemoryStore struct {
	mu   sync.Mutex
	jobs map[string]*domain.Job
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{jobs: make(map[string]*domain.Job)}
}

func (m *MemoryStore) Create(_ context.Context, job *domain.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.jobs[job.JobID]; ok {
		return domain.ErrJobExists
	}
	stored := cloneJob(job)
	stored.Version = 1
	m.jobs[job.JobID] = stored
	job.Version = 1
	return nil
}

func (m *MemoryStore) Get(_ context.Context, jobID string) (*domain.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	job, ok := m.jobs[jobID]
	if !ok {
		return nil, domain.ErrJobNotFound
	}
	return cloneJob(job), nil
}

func (m *MemoryStore) Update(_ context.Context, job *domain.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored, ok := m.jobs[job.JobID]
	if !ok {
		return domain.ErrJobNotFound
	}
	if stored.Version != job.Version {
		return domain.ErrVersionConflict
	}
	next := cloneJob(job)
	next.Version = stored.Version + 1
	m.jobs[job.JobID] = next
	job.Version = next.Version
	return nil
}
