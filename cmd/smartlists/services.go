package cmd

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/toozej/smartlists/internal/jobs"
	"github.com/toozej/smartlists/internal/mirror"
	"github.com/toozej/smartlists/internal/reconcile"
	"github.com/toozej/smartlists/internal/search"
	"github.com/toozej/smartlists/internal/seed"
	"github.com/toozej/smartlists/internal/spotify"
	"github.com/toozej/smartlists/internal/store"
	"github.com/toozej/smartlists/internal/syncer"
	"github.com/toozej/smartlists/pkg/config"
	"github.com/toozej/smartlists/pkg/useragent"
	"github.com/toozej/smartlists/pkg/version"
)

// services bundles everything a command may need. It is shared between the
// sync, mirror, seed and serve commands.
type services struct {
	store    *store.Store
	spotify  *spotify.Service
	jobs     *jobs.Manager
	syncer   *syncer.Syncer
	seeder   *seed.Seeder
	searcher *search.PlaylistSearcher

	closeJobStore func() error
}

// openLibrary opens the configured library database.
func openLibrary(cfg config.DatabaseConfig, logger *log.Logger) (*store.Store, error) {
	path, err := cfg.ResolvedPath()
	if err != nil {
		return nil, fmt.Errorf("failed to resolve database path: %w", err)
	}
	return store.Open(path, logger)
}

// syncerOptions maps configuration onto the sync passes.
func syncerOptions(c config.Config) (syncer.Options, error) {
	sources, err := mirror.ParseSources(c.Sync.MirrorSources)
	if err != nil {
		return syncer.Options{}, fmt.Errorf("failed to parse mirror sources: %w", err)
	}
	return syncer.Options{
		Reconcile: reconcile.Options{
			ChunkSize:   c.Sync.ChunkSize,
			ChunkDelay:  c.Sync.ChunkDelay,
			CallTimeout: c.Sync.CallTimeout,
		},
		Sources: sources,
		Mirror: mirror.Options{
			ForceRefresh:  c.Sync.ForceRefreshPlaylists,
			DetachMissing: c.Sync.DetachMissing,
		},
		EnrichChunkSize: c.Sync.EnrichChunkSize,
		EnrichDelay:     c.Sync.EnrichChunkDelay,
		PublicPlaylists: c.Spotify.PublicPlaylists,
		Concurrency:     c.Sync.MaterializeConcurrency,
		LockRetry:       c.Sync.LockRetry,
	}, nil
}

// newJobStore returns the Redis job store when configured and the in-memory
// store otherwise.
func newJobStore(ctx context.Context, c config.RedisConfig, logger *log.Logger) (jobs.Store, func() error, error) {
	if c.URL == "" {
		logger.Debug("No REDIS_URL configured, keeping jobs in memory")
		return jobs.NewMemoryStore(), func() error { return nil }, nil
	}
	rs, err := jobs.OpenRedisStore(ctx, c.URL, c.KeyPrefix, c.JobTTL)
	if err != nil {
		return nil, nil, err
	}
	logger.WithField("prefix", c.KeyPrefix).Debug("Using Redis job store")
	return rs, rs.Close, nil
}

// initializeAllServices creates and wires all services using configuration.
func initializeAllServices(ctx context.Context, c config.Config) (*services, error) {
	logger := log.StandardLogger()

	lib, err := openLibrary(c.Database, logger)
	if err != nil {
		return nil, err
	}

	opts, err := syncerOptions(c)
	if err != nil {
		_ = lib.Close()
		return nil, err
	}

	jobStore, closeJobStore, err := newJobStore(ctx, c.Redis, logger)
	if err != nil {
		_ = lib.Close()
		return nil, err
	}

	spotifyService := spotify.NewService(c.Spotify, useragent.Client(version.Get().Version), logger)

	s := &services{
		store:         lib,
		spotify:       spotifyService,
		jobs:          jobs.NewManager(ctx, jobStore, logger),
		syncer:        syncer.New(spotifyService, lib, opts, logger),
		seeder:        seed.New(lib, c.Seed.File, logger),
		searcher:      search.NewPlaylistSearcher(lib, logger),
		closeJobStore: closeJobStore,
	}
	s.syncer.Register(s.jobs)
	s.seeder.Register(s.jobs)
	return s, nil
}

// Close stops running jobs and releases every connection.
func (s *services) Close(ctx context.Context) {
	if err := s.jobs.Shutdown(ctx); err != nil {
		log.WithError(err).Warn("Jobs did not stop before shutdown deadline")
	}
	if err := s.closeJobStore(); err != nil {
		log.WithError(err).Warn("Failed to close job store")
	}
	if err := s.store.Close(); err != nil {
		log.WithError(err).Warn("Failed to close library database")
	}
}

// runJob enqueues p, waits for it to finish and returns the final job.
func (s *services) runJob(ctx context.Context, p jobs.Payload) (jobs.Job, error) {
	job, joined, err := s.jobs.Enqueue(ctx, p)
	if err != nil {
		return jobs.Job{}, err
	}
	log.WithFields(log.Fields{
		"job_id": job.ID,
		"kind":   p.Kind,
		"target": p.Target,
		"joined": joined,
	}).Debug("Job enqueued")
	return s.jobs.Wait(ctx, job.ID)
}
