// Package scheduler enqueues the periodic library mirror and playlist sync.
package scheduler

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/toozej/smartlists/internal/jobs"
	"github.com/toozej/smartlists/internal/syncer"
)

// Enqueuer accepts jobs and reports when they finish.
type Enqueuer interface {
	Enqueue(ctx context.Context, p jobs.Payload) (jobs.Job, bool, error)
	Wait(ctx context.Context, id string) (jobs.Job, error)
}

// Scheduler triggers a library mirror followed by a sync of every active
// smart playlist on each tick. The sync is enqueued once the mirror has
// finished so it evaluates the refreshed library. A tick still waiting on
// its jobs makes the next one skip.
type Scheduler struct {
	cron     *cron.Cron
	enqueuer Enqueuer
	spec     string
	logger   *logrus.Logger
	ctx      context.Context
	cancel   context.CancelFunc
}

// New creates a Scheduler for a cron spec such as "@every 1h" or "0 3 * * *".
func New(spec string, enqueuer Enqueuer, logger *logrus.Logger) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron:     cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		enqueuer: enqueuer,
		spec:     spec,
		logger:   logger,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start registers the schedule and starts the cron loop.
func (s *Scheduler) Start() error {
	if _, err := s.cron.AddFunc(s.spec, s.Tick); err != nil {
		return fmt.Errorf("failed to parse schedule %q: %w", s.spec, err)
	}
	s.cron.Start()

	s.logger.WithFields(logrus.Fields{
		"component": "scheduler",
		"schedule":  s.spec,
	}).Info("Scheduler started")
	return nil
}

// Stop stops the cron loop. A tick waiting on the mirror gives up without
// enqueuing the sync; jobs already enqueued keep running.
func (s *Scheduler) Stop() {
	s.cancel()
	<-s.cron.Stop().Done()
	s.logger.WithField("component", "scheduler").Info("Scheduler stopped")
}

// Tick runs one round: mirror the library, wait for it, then sync every
// smart playlist. Jobs still running from an earlier round are joined
// rather than duplicated. A failed mirror does not hold back the sync.
func (s *Scheduler) Tick() {
	mirror, ok := s.enqueue(syncer.LibraryPayload(false))
	if ok {
		done, err := s.enqueuer.Wait(s.ctx, mirror.ID)
		if err != nil && s.ctx.Err() != nil {
			s.log(mirror.Payload.Kind).Info("Scheduler stopping, skipping playlist sync")
			return
		}
		if err != nil {
			s.log(mirror.Payload.Kind).WithError(err).Warn("Failed to wait for library mirror")
		} else if done.State != jobs.StateCompleted {
			s.log(mirror.Payload.Kind).WithFields(logrus.Fields{
				"job_id": done.ID,
				"state":  done.State,
			}).Warn("Library mirror did not complete, syncing playlists anyway")
		}
	}
	s.enqueue(syncer.AllPayload(false))
}

func (s *Scheduler) log(kind jobs.Kind) *logrus.Entry {
	return s.logger.WithFields(logrus.Fields{
		"component": "scheduler",
		"operation": "tick",
		"kind":      kind,
	})
}

func (s *Scheduler) enqueue(p jobs.Payload) (jobs.Job, bool) {
	job, joined, err := s.enqueuer.Enqueue(s.ctx, p)
	if err != nil {
		s.log(p.Kind).WithError(err).Error("Failed to enqueue scheduled job")
		return jobs.Job{}, false
	}
	s.log(p.Kind).WithFields(logrus.Fields{
		"job_id": job.ID,
		"joined": joined,
	}).Info("Scheduled job enqueued")
	return job, true
}
