package service

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned for unknown or already-cleaned-up batch ids.
var ErrNotFound = errors.New("batch not found")

// Store tracks batch jobs with explicit lifecycle: create, update under the
// store's lock, terminal, cleanup.
type Store interface {
	Create(job *Job) error
	Get(id uuid.UUID) (Snapshot, error)
	// Update runs fn on the job while holding the store's lock.
	Update(id uuid.UUID, fn func(*Job)) error
	ListActive() []Snapshot
	// DeleteOlderThan removes terminal jobs completed before cutoff and
	// returns how many were removed. Non-terminal jobs are never touched.
	DeleteOlderThan(cutoff time.Time) int
}

// MemoryStore is a mutex-guarded in-memory Store.
type MemoryStore struct {
	mu   sync.Mutex
	jobs map[uuid.UUID]*Job
}

// NewMemoryStore constructs an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{jobs: make(map[uuid.UUID]*Job)}
}

func (s *MemoryStore) Create(job *Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[job.ID]; ok {
		return errors.New("batch id already exists")
	}
	s.jobs[job.ID] = job
	return nil
}

func (s *MemoryStore) Get(id uuid.UUID) (Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return Snapshot{}, ErrNotFound
	}
	return job.snapshot(), nil
}

func (s *MemoryStore) Update(id uuid.UUID, fn func(*Job)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return ErrNotFound
	}
	fn(job)
	return nil
}

func (s *MemoryStore) ListActive() []Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Snapshot
	for _, job := range s.jobs {
		if !job.Status.Terminal() {
			out = append(out, job.snapshot())
		}
	}
	return out
}

func (s *MemoryStore) DeleteOlderThan(cutoff time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for id, job := range s.jobs {
		if !job.Status.Terminal() {
			continue
		}
		if job.CompletedAt != nil && job.CompletedAt.Before(cutoff) {
			delete(s.jobs, id)
			removed++
		}
	}
	return removed
}

var _ Store = (*MemoryStore)(nil)
