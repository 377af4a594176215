package jobs

import (
	"context"
	"sync"
)

// Store persists job records and the claims that keep jobs exclusive.
type Store interface {
	Save(ctx context.Context, job Job) error
	Get(ctx context.Context, id string) (Job, error)
	// AcquireTarget claims lockKey for jobID. When another job holds it,
	// the holder's ID is returned with acquired false.
	AcquireTarget(ctx context.Context, lockKey, jobID string) (holder string, acquired bool, err error)
	// ReleaseTarget frees lockKey if jobID still holds it.
	ReleaseTarget(ctx context.Context, lockKey, jobID string) error
	// ClaimIdempotencyKey records key for jobID once. Later claims get the
	// first job's ID with claimed false.
	ClaimIdempotencyKey(ctx context.Context, key, jobID string) (existing string, claimed bool, err error)
	// ReleaseIdempotencyKey frees key if jobID still owns it.
	ReleaseIdempotencyKey(ctx context.Context, key, jobID string) error
}

// MemoryStore is a process-local Store.
type MemoryStore struct {
	mu    sync.Mutex
	jobs  map[string]Job
	locks map[string]string
	keys  map[string]string
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		jobs:  make(map[string]Job),
		locks: make(map[string]string),
		keys:  make(map[string]string),
	}
}

func (s *MemoryStore) Save(ctx context.Context, job Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.ID] = job
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, id string) (Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return Job{}, ErrJobNotFound
	}
	return job, nil
}

func (s *MemoryStore) AcquireTarget(ctx context.Context, lockKey, jobID string) (string, bool, error) {
	return claim(&s.mu, s.locks, lockKey, jobID)
}

func (s *MemoryStore) ReleaseTarget(ctx context.Context, lockKey, jobID string) error {
	release(&s.mu, s.locks, lockKey, jobID)
	return nil
}

func (s *MemoryStore) ClaimIdempotencyKey(ctx context.Context, key, jobID string) (string, bool, error) {
	return claim(&s.mu, s.keys, key, jobID)
}

func (s *MemoryStore) ReleaseIdempotencyKey(ctx context.Context, key, jobID string) error {
	release(&s.mu, s.keys, key, jobID)
	return nil
}

func claim(mu *sync.Mutex, m map[string]string, key, jobID string) (string, bool, error) {
	mu.Lock()
	defer mu.Unlock()
	if holder, ok := m[key]; ok {
		return holder, false, nil
	}
	m[key] = jobID
	return "", true, nil
}

func release(mu *sync.Mutex, m map[string]string, key, jobID string) {
	mu.Lock()
	defer mu.Unlock()
	if m[key] == jobID {
		delete(m, key)
	}
}
