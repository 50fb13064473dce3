// Package jobs wraps pipeline runs as asynchronous jobs with a status state
// machine and a human approve/deny review gate. All job state lives in
// process memory for the life of the process; nothing is ever deleted.
package jobs

import (
	"sync"
	"time"

	"github.com/communityforge/scout/internal/model"
)

// Store is an in-memory job registry. It is created at process start and
// handed to the Manager at construction; it is safe for concurrent use.
type Store struct {
	mu   sync.RWMutex
	jobs map[string]*model.Job
}

// NewStore creates an empty Store.
func NewStore() *Store {
	return &Store{jobs: make(map[string]*model.Job)}
}

// Put registers a new job.
func (s *Store) Put(job model.Job) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored := job
	s.jobs[job.ID] = &stored
}

// Get returns a copy of the job, so callers never observe mid-update state.
func (s *Store) Get(id string) (model.Job, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[id]
	if !ok {
		return model.Job{}, false
	}
	return *job, true
}

// Update applies fn to the stored job under the write lock and returns the
// resulting copy. fn returning an error leaves the job untouched.
func (s *Store) Update(id string, fn func(*model.Job) error) (model.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return model.Job{}, ErrNotFound
	}
	updated := *job
	if err := fn(&updated); err != nil {
		return model.Job{}, err
	}
	updated.UpdatedAt = time.Now().UTC()
	*job = updated
	return updated, nil
}

// Len returns the number of stored jobs.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.jobs)
}
