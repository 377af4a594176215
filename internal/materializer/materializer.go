// Package materializer evaluates smart playlists against the library and
// records the result as a pending fingerprint.
package materializer

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/toozej/smartlists/internal/criteria"
	"github.com/toozej/smartlists/internal/evaluator"
	"github.com/toozej/smartlists/internal/fingerprint"
	"github.com/toozej/smartlists/internal/types"
)

// DefaultConcurrency bounds MaterializeAll.
const DefaultConcurrency = 4

// Result is one evaluated playlist.
type Result struct {
	PlaylistID string
	// TrackIDs are internal IDs in playlist order.
	TrackIDs []string
	// ExternalIDs are platform IDs in playlist order. Tracks without one are skipped.
	ExternalIDs []string
	Fingerprint string
}

// Materializer evaluates criteria and stores track counts and pending fingerprints.
type Materializer struct {
	store       types.PlaylistStore
	logger      *logrus.Logger
	now         func() time.Time
	concurrency int
}

// Option configures a Materializer.
type Option func(*Materializer)

// WithClock overrides the time source used for relative date rules.
func WithClock(now func() time.Time) Option {
	return func(m *Materializer) { m.now = now }
}

// WithConcurrency sets how many playlists MaterializeAll evaluates at once.
func WithConcurrency(n int) Option {
	return func(m *Materializer) {
		if n > 0 {
			m.concurrency = n
		}
	}
}

// New creates a Materializer.
func New(store types.PlaylistStore, logger *logrus.Logger, opts ...Option) *Materializer {
	m := &Materializer{
		store:       store,
		logger:      logger,
		now:         time.Now,
		concurrency: DefaultConcurrency,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Evaluate computes a playlist's contents without persisting anything.
func (m *Materializer) Evaluate(p types.SmartPlaylist, lib types.LibraryView) (Result, error) {
	c, err := criteria.Compile(p.Criteria)
	if err != nil {
		return Result{}, fmt.Errorf("failed to compile criteria for playlist %s: %w", p.ID, err)
	}

	tracks, err := evaluator.Select(c, lib, m.now())
	if err != nil {
		return Result{}, fmt.Errorf("failed to evaluate playlist %s: %w", p.ID, err)
	}

	res := Result{
		PlaylistID:  p.ID,
		TrackIDs:    make([]string, 0, len(tracks)),
		ExternalIDs: make([]string, 0, len(tracks)),
	}
	for _, t := range tracks {
		res.TrackIDs = append(res.TrackIDs, t.ID)
		if t.ExternalID != "" {
			res.ExternalIDs = append(res.ExternalIDs, t.ExternalID)
		}
	}
	res.Fingerprint = fingerprint.Fingerprint(res.ExternalIDs)
	return res, nil
}

// Materialize evaluates a playlist and records its track count and pending
// fingerprint. The committed fingerprint is left alone.
func (m *Materializer) Materialize(ctx context.Context, p types.SmartPlaylist, lib types.LibraryView) (Result, error) {
	res, err := m.Evaluate(p, lib)
	if err != nil {
		return Result{}, err
	}

	if err := m.store.UpdateMaterialization(ctx, p.ID, len(res.TrackIDs), res.Fingerprint); err != nil {
		return Result{}, fmt.Errorf("failed to record materialization for playlist %s: %w", p.ID, err)
	}

	m.logger.WithFields(logrus.Fields{
		"component":   "materializer",
		"operation":   "materialize",
		"playlist_id": p.ID,
		"name":        p.Name,
		"track_count": len(res.TrackIDs),
	}).Debug("Smart playlist materialized")

	return res, nil
}

// MaterializeAll evaluates every active playlist against one library snapshot.
// Failures are collected per playlist and do not stop the others.
func (m *Materializer) MaterializeAll(ctx context.Context, lib types.LibraryView) (map[string]Result, map[string]error, error) {
	playlists, err := m.store.ListSmartPlaylists(ctx, true)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to list smart playlists: %w", err)
	}

	results := make([]Result, len(playlists))
	errs := make([]error, len(playlists))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.concurrency)
	for i, p := range playlists {
		g.Go(func() error {
			if gctx.Err() != nil {
				errs[i] = gctx.Err()
				return nil
			}
			results[i], errs[i] = m.Materialize(gctx, p, lib)
			return nil
		})
	}
	_ = g.Wait()

	ok := make(map[string]Result, len(playlists))
	failed := make(map[string]error)
	for i, p := range playlists {
		if errs[i] != nil {
			failed[p.ID] = errs[i]
			m.logger.WithError(errs[i]).WithFields(logrus.Fields{
				"component":   "materializer",
				"operation":   "materialize_all",
				"playlist_id": p.ID,
			}).Warn("Failed to materialize smart playlist")
			continue
		}
		ok[p.ID] = results[i]
	}
	return ok, failed, nil
}
