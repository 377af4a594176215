package jobs

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/toozej/smartlists/internal/types"
)

// ProgressFunc reports progress from inside a handler.
type ProgressFunc func(phase string, current, total int)

// Handler runs one job. The returned result is stored even when err is set.
type Handler func(ctx context.Context, job Job, report ProgressFunc) (types.SyncResult, error)

// DefaultMaxActive is how many jobs run at once unless configured.
const DefaultMaxActive = 1

type running struct {
	cancel    context.CancelFunc
	cancelled bool
	subs      []chan Job
}

// Manager enqueues jobs and runs them in background goroutines.
type Manager struct {
	store    Store
	logger   *logrus.Logger
	base     context.Context
	stop     context.CancelFunc
	slots    chan struct{}
	now      func() time.Time
	handlers map[Kind]Handler

	mu      sync.Mutex
	running map[string]*running
	wg      sync.WaitGroup
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithMaxActive bounds how many jobs are active at once. Extra jobs wait.
func WithMaxActive(n int) ManagerOption {
	return func(m *Manager) {
		if n > 0 {
			m.slots = make(chan struct{}, n)
		}
	}
}

// NewManager creates a Manager. Jobs are cancelled when ctx ends.
func NewManager(ctx context.Context, store Store, logger *logrus.Logger, opts ...ManagerOption) *Manager {
	base, stop := context.WithCancel(ctx)
	m := &Manager{
		store:    store,
		logger:   logger,
		base:     base,
		stop:     stop,
		slots:    make(chan struct{}, DefaultMaxActive),
		now:      time.Now,
		handlers: make(map[Kind]Handler),
		running:  make(map[string]*running),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Handle registers the handler for a kind. It must be called before Enqueue.
func (m *Manager) Handle(kind Kind, h Handler) {
	m.handlers[kind] = h
}

func (m *Manager) log(job Job) *logrus.Entry {
	return m.logger.WithFields(logrus.Fields{
		"component": "jobs",
		"job_id":    job.ID,
		"kind":      job.Payload.Kind,
		"target":    job.Payload.Target,
	})
}

// Enqueue schedules p and returns at once. When an unfinished job already
// owns the target, or the idempotency key was used before, that job is
// returned with joined set instead of starting a new one.
func (m *Manager) Enqueue(ctx context.Context, p Payload) (job Job, joined bool, err error) {
	if _, ok := m.handlers[p.Kind]; !ok {
		return Job{}, false, fmt.Errorf("%w: %s", ErrUnknownKind, p.Kind)
	}

	job = Job{
		ID:        uuid.NewString(),
		Payload:   p,
		State:     StateWaiting,
		CreatedAt: m.now().UTC(),
	}

	if p.IdempotencyKey != "" {
		existing, claimed, err := m.store.ClaimIdempotencyKey(ctx, p.IdempotencyKey, job.ID)
		if err != nil {
			return Job{}, false, err
		}
		if !claimed {
			prior, err := m.store.Get(ctx, existing)
			if errors.Is(err, ErrJobNotFound) {
				// the record expired but the claim stands
				prior = Job{ID: existing, Payload: p, State: StateCompleted}
			} else if err != nil {
				return Job{}, false, err
			}
			m.log(prior).WithField("idempotency_key", p.IdempotencyKey).Info("Idempotency key already used")
			return prior, true, nil
		}
	}

	holder, err := m.acquire(ctx, p.LockKey(), job.ID)
	if err != nil || holder != nil {
		if p.IdempotencyKey != "" {
			_ = m.store.ReleaseIdempotencyKey(ctx, p.IdempotencyKey, job.ID)
		}
		if err != nil {
			return Job{}, false, err
		}
		m.log(*holder).Info("Joined job already in progress for target")
		return *holder, true, nil
	}

	if err := m.store.Save(ctx, job); err != nil {
		_ = m.store.ReleaseTarget(ctx, p.LockKey(), job.ID)
		if p.IdempotencyKey != "" {
			_ = m.store.ReleaseIdempotencyKey(ctx, p.IdempotencyKey, job.ID)
		}
		return Job{}, false, err
	}

	jobCtx, cancel := context.WithCancel(m.base)
	m.mu.Lock()
	m.running[job.ID] = &running{cancel: cancel}
	m.mu.Unlock()

	m.wg.Add(1)
	go m.run(jobCtx, job)

	m.log(job).Info("Job enqueued")
	return job, false, nil
}

// acquire takes the target lock for jobID. It returns the holding job when
// another unfinished job has it. Locks left by finished or expired jobs are
// taken over.
func (m *Manager) acquire(ctx context.Context, lockKey, jobID string) (*Job, error) {
	for range 2 {
		holderID, acquired, err := m.store.AcquireTarget(ctx, lockKey, jobID)
		if err != nil {
			return nil, err
		}
		if acquired {
			return nil, nil
		}

		holder, err := m.store.Get(ctx, holderID)
		switch {
		case err == nil && !holder.State.Terminal():
			return &holder, nil
		case err != nil && !errors.Is(err, ErrJobNotFound):
			return nil, err
		}
		if err := m.store.ReleaseTarget(ctx, lockKey, holderID); err != nil {
			return nil, err
		}
	}
	return nil, fmt.Errorf("%w: %s", types.ErrConcurrencyConflict, lockKey)
}

// Lock claims key for the running job jobID until unlock is called. Keys
// name resources that jobs with different targets share, such as one smart
// playlist touched by both a single-playlist sync and a sync of all of them.
// While another unfinished job holds key, in this process or any other on
// the same store, it fails with types.ErrConcurrencyConflict.
func (m *Manager) Lock(ctx context.Context, key, jobID string) (unlock func(), err error) {
	holder, err := m.acquire(ctx, key, jobID)
	if err != nil {
		return nil, err
	}
	if holder != nil && holder.ID != jobID {
		return nil, fmt.Errorf("%w: %s held by job %s", types.ErrConcurrencyConflict, key, holder.ID)
	}

	return func() {
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := m.store.ReleaseTarget(releaseCtx, key, jobID); err != nil {
			m.logger.WithFields(logrus.Fields{
				"component": "jobs",
				"job_id":    jobID,
				"lock":      key,
			}).WithError(err).Warn("Failed to release lock")
		}
	}, nil
}

func (m *Manager) run(ctx context.Context, job Job) {
	defer m.wg.Done()

	select {
	case m.slots <- struct{}{}:
		defer func() { <-m.slots }()
	case <-ctx.Done():
		m.finish(job, types.SyncResult{}, ctx.Err())
		return
	}

	started := m.now().UTC()
	job.State = StateActive
	job.StartedAt = &started
	m.update(job)
	m.log(job).Info("Job started")

	report := func(phase string, current, total int) {
		pct := 0
		if total > 0 {
			pct = min(current*100/total, 100)
		}
		job.Progress = Progress{Phase: phase, Current: current, Total: total, Percentage: pct}
		m.update(job)
	}

	result, err := m.call(ctx, job, report)
	m.finish(job, result, err)
}

// call runs the handler, turning a panic into a failure.
func (m *Manager) call(ctx context.Context, job Job, report ProgressFunc) (result types.SyncResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job handler panicked: %v", r)
		}
	}()
	return m.handlers[job.Payload.Kind](ctx, job, report)
}

func (m *Manager) finish(job Job, result types.SyncResult, err error) {
	m.mu.Lock()
	r := m.running[job.ID]
	cancelled := r != nil && r.cancelled
	m.mu.Unlock()

	finished := m.now().UTC()
	job.FinishedAt = &finished
	if result.Errors == nil {
		result.Errors = []string{}
	}
	job.Result = &result

	switch {
	case cancelled || (err != nil && errors.Is(err, context.Canceled)):
		job.State = StateCancelled
		job.Error = context.Canceled.Error()
	case err != nil:
		job.State = StateFailed
		job.Error = err.Error()
	default:
		job.State = StateCompleted
	}

	// store calls outlive the job's own context
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := m.store.Save(ctx, job); err != nil {
		m.log(job).WithError(err).Error("Failed to save finished job")
	}
	if err := m.store.ReleaseTarget(ctx, job.Payload.LockKey(), job.ID); err != nil {
		m.log(job).WithError(err).Warn("Failed to release target lock")
	}
	if key := job.Payload.IdempotencyKey; key != "" && job.State != StateCompleted {
		if err := m.store.ReleaseIdempotencyKey(ctx, key, job.ID); err != nil {
			m.log(job).WithError(err).Warn("Failed to release idempotency key")
		}
	}

	m.mu.Lock()
	if r != nil {
		r.cancel()
		for _, ch := range r.subs {
			select {
			case ch <- job:
			default:
			}
			close(ch)
		}
		delete(m.running, job.ID)
	}
	m.mu.Unlock()

	entry := m.log(job).WithField("state", job.State)
	if result.TotalTracks > 0 || len(result.Errors) > 0 {
		entry = entry.WithFields(logrus.Fields{
			"total_tracks":   result.TotalTracks,
			"new_tracks":     result.NewTracks,
			"updated_tracks": result.UpdatedTracks,
			"errors":         len(result.Errors),
		})
	}
	if job.State == StateFailed {
		entry.WithField("error", job.Error).Error("Job failed")
	} else {
		entry.Info("Job finished")
	}
}

// update saves an intermediate state and fans it out to subscribers.
func (m *Manager) update(job Job) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := m.store.Save(ctx, job); err != nil {
		m.log(job).WithError(err).Warn("Failed to save job progress")
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if r := m.running[job.ID]; r != nil {
		for _, ch := range r.subs {
			select {
			case ch <- job:
			default:
			}
		}
	}
}

// Get returns the stored state of a job.
func (m *Manager) Get(ctx context.Context, id string) (Job, error) {
	return m.store.Get(ctx, id)
}

// Subscribe returns a channel of state snapshots for a job running in this
// process. Slow readers miss intermediate snapshots. The channel is closed
// when the job finishes, or at once if it is not running here.
func (m *Manager) Subscribe(id string) (<-chan Job, func()) {
	ch := make(chan Job, 16)

	m.mu.Lock()
	defer m.mu.Unlock()
	r := m.running[id]
	if r == nil {
		close(ch)
		return ch, func() {}
	}
	r.subs = append(r.subs, ch)

	unsubscribe := func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		if r := m.running[id]; r != nil {
			for i, c := range r.subs {
				if c == ch {
					r.subs = append(r.subs[:i], r.subs[i+1:]...)
					close(ch)
					break
				}
			}
		}
	}
	return ch, unsubscribe
}

// Wait blocks until the job is terminal or ctx ends. Jobs running in
// another process are polled.
func (m *Manager) Wait(ctx context.Context, id string) (Job, error) {
	ch, unsubscribe := m.Subscribe(id)
	defer unsubscribe()

	poll := time.NewTicker(500 * time.Millisecond)
	defer poll.Stop()

	for {
		job, err := m.store.Get(ctx, id)
		if err != nil {
			return Job{}, err
		}
		if job.State.Terminal() {
			return job, nil
		}

		select {
		case <-ctx.Done():
			return job, ctx.Err()
		case snap, ok := <-ch:
			if !ok {
				ch = nil
				continue
			}
			if snap.State.Terminal() {
				return snap, nil
			}
		case <-poll.C:
		}
	}
}

// Cancel stops a job running in this process. Cancelling a finished job is
// a no-op.
func (m *Manager) Cancel(ctx context.Context, id string) error {
	m.mu.Lock()
	r := m.running[id]
	if r != nil {
		r.cancelled = true
		r.cancel()
	}
	m.mu.Unlock()
	if r != nil {
		return nil
	}

	job, err := m.store.Get(ctx, id)
	if err != nil {
		return err
	}
	if job.State.Terminal() {
		return nil
	}
	return fmt.Errorf("%w: %s", ErrNotRunning, id)
}

// Shutdown cancels every job and waits for them to finish or ctx to end.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.stop()
	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
