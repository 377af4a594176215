// Package syncer runs the sync passes: smart playlists outward to the
// platform and remote collections inward to the library.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/toozej/smartlists/internal/aggregate"
	"github.com/toozej/smartlists/internal/enrich"
	"github.com/toozej/smartlists/internal/evaluator"
	"github.com/toozej/smartlists/internal/gate"
	"github.com/toozej/smartlists/internal/materializer"
	"github.com/toozej/smartlists/internal/mirror"
	"github.com/toozej/smartlists/internal/playlist"
	"github.com/toozej/smartlists/internal/reconcile"
	"github.com/toozej/smartlists/internal/tracker"
	"github.com/toozej/smartlists/internal/types"
)

// Progress phases.
const (
	PhaseMaterialize = "materialize"
	PhaseReconcile   = "reconcile"
	PhaseMirror      = "mirror"
	PhaseEnrich      = "enrich"
	PhaseAggregate   = "aggregate"
	PhaseLock        = "lock"
)

// DefaultLockRetry is how often a pass retries a smart playlist another job holds.
const DefaultLockRetry = 2 * time.Second

// Progress reports how far a pass has got within a phase.
type Progress func(phase string, current, total int)

// Remote is the platform surface every pass needs.
type Remote interface {
	playlist.Creator
	reconcile.Editor
	mirror.Remote
	enrich.FeatureSource
	GetPlaylistItemIDs(ctx context.Context, playlistID string) ([]string, error)
}

// Library is the local store surface every pass needs.
type Library interface {
	types.PlaylistStore
	mirror.Library
	enrich.Library
	aggregate.Store
	Snapshot(ctx context.Context) (*evaluator.Snapshot, error)
}

// Locker keeps one pass at a time on a smart playlist across jobs and
// processes. jobs.Manager implements it.
type Locker interface {
	Lock(ctx context.Context, key, holder string) (unlock func(), err error)
}

// Options configures the passes.
type Options struct {
	Reconcile       reconcile.Options
	Sources         []types.MirrorSource
	Mirror          mirror.Options
	EnrichChunkSize int
	EnrichDelay     time.Duration
	// EnrichLimit caps tracks enriched per library pass. Zero means all.
	EnrichLimit     int
	PublicPlaylists bool
	Concurrency     int
	LockRetry       time.Duration
}

// Syncer wires the materializer, reconciler, mirror and aggregates together.
type Syncer struct {
	remote    Remote
	library   Library
	opts      Options
	logger    *logrus.Logger
	now       func() time.Time
	locker    Locker
	mat       *materializer.Materializer
	applier   *reconcile.Applier
	playlists *playlist.PlaylistService
	rollups   *aggregate.Recomputer
}

// New creates a Syncer.
func New(remote Remote, library Library, opts Options, logger *logrus.Logger) *Syncer {
	s := &Syncer{
		remote:  remote,
		library: library,
		opts:    opts,
		logger:  logger,
		now:     time.Now,
	}
	if s.opts.LockRetry <= 0 {
		s.opts.LockRetry = DefaultLockRetry
	}
	s.mat = materializer.New(library, logger, materializer.WithClock(s.clock), materializer.WithConcurrency(opts.Concurrency))
	s.applier = reconcile.NewApplier(remote, opts.Reconcile, logger)
	s.playlists = playlist.NewPlaylistService(remote, library, s.applier, opts.PublicPlaylists, logger)
	s.rollups = aggregate.New(library, logger)
	return s
}

func (s *Syncer) clock() time.Time { return s.now() }

func (s *Syncer) log(operation string) *logrus.Entry {
	return s.logger.WithFields(logrus.Fields{
		"component": "syncer",
		"operation": operation,
	})
}

func report(progress Progress, phase string, current, total int) {
	if progress != nil {
		progress(phase, current, total)
	}
}

// SyncPlaylist brings one smart playlist's external counterpart up to date.
//
// An unchanged fingerprint skips the pass without any external call. The
// committed fingerprint only moves when every chunk was applied. A partial
// failure completes with the chunk errors in the result; a pass where every
// chunk failed, a fatal platform error, or invalid criteria return an error.
func (s *Syncer) SyncPlaylist(ctx context.Context, playlistID string, force bool, progress Progress) (types.SyncResult, error) {
	sp, err := s.library.GetSmartPlaylist(ctx, playlistID)
	if err != nil {
		return emptyResult(), fmt.Errorf("failed to load smart playlist: %w", err)
	}

	snap, err := s.library.Snapshot(ctx)
	if err != nil {
		return emptyResult(), fmt.Errorf("failed to snapshot library: %w", err)
	}

	report(progress, PhaseMaterialize, 0, 1)
	res, err := s.mat.Materialize(ctx, sp, snap)
	if err != nil {
		return emptyResult(), err
	}
	report(progress, PhaseMaterialize, 1, 1)

	tr := tracker.New()
	out, err := s.push(ctx, sp, res, snap, tr, force, progress)
	s.flush(ctx, tr, progress)
	return out, err
}

// SyncAll syncs every active smart playlist against one library snapshot.
// Playlists are evaluated concurrently and pushed one at a time. Failures
// are recorded per playlist; revoked authorization and cancellation stop
// the pass.
func (s *Syncer) SyncAll(ctx context.Context, force bool, progress Progress) (types.SyncResult, error) {
	total := emptyResult()

	active, err := s.library.ListSmartPlaylists(ctx, true)
	if err != nil {
		return total, fmt.Errorf("failed to list smart playlists: %w", err)
	}
	snap, err := s.library.Snapshot(ctx)
	if err != nil {
		return total, fmt.Errorf("failed to snapshot library: %w", err)
	}

	report(progress, PhaseMaterialize, 0, len(active))
	results, failed, err := s.mat.MaterializeAll(ctx, snap)
	if err != nil {
		return total, err
	}
	report(progress, PhaseMaterialize, len(active), len(active))

	tr := tracker.New()
	defer s.flush(ctx, tr, progress)

	var attempted, failures int
	for i, sp := range active {
		if err := ctx.Err(); err != nil {
			return total, err
		}

		if err, ok := failed[sp.ID]; ok {
			attempted++
			failures++
			total.Errors = append(total.Errors, fmt.Sprintf("%s: %v", sp.Name, err))
			continue
		}
		res, ok := results[sp.ID]
		if !ok {
			// created after the listing
			continue
		}

		attempted++
		out, err := s.push(ctx, sp, res, snap, tr, force, nil)
		total.Merge(out)
		if err != nil {
			failures++
			if ctx.Err() != nil || revoked(err) {
				return total, err
			}
			total.Errors = append(total.Errors, fmt.Sprintf("%s: %v", sp.Name, err))
		}
		report(progress, PhaseReconcile, i+1, len(active))
	}

	s.log("sync_all").WithFields(logrus.Fields{
		"playlists": attempted,
		"failed":    failures,
	}).Info("Smart playlist sync pass finished")

	if attempted > 0 && failures == attempted {
		return total, fmt.Errorf("all %d smart playlists failed to sync", attempted)
	}
	return total, nil
}

// push reconciles one materialized playlist with the platform.
func (s *Syncer) push(ctx context.Context, sp types.SmartPlaylist, res materializer.Result, snap *evaluator.Snapshot, tr *tracker.Tracker, force bool, progress Progress) (types.SyncResult, error) {
	log := s.log("sync_playlist").WithFields(logrus.Fields{
		"playlist_id": sp.ID,
		"name":        sp.Name,
	})
	out := emptyResult()
	out.TotalTracks = len(res.ExternalIDs)

	unlock, err := s.lockPlaylist(ctx, sp.ID, progress)
	if err != nil {
		return out, err
	}
	defer unlock()

	// another pass may have created or synced it before we got the lock
	latest, err := s.library.GetSmartPlaylist(ctx, sp.ID)
	if err != nil {
		return out, fmt.Errorf("failed to reload smart playlist %s: %w", sp.ID, err)
	}
	sp.SpotifyPlaylistID = latest.SpotifyPlaylistID
	sp.Fingerprint = latest.Fingerprint

	decision := gate.Evaluate(sp, res.Fingerprint, force)
	if !decision.Sync {
		log.WithField("reason", decision.Reason).Info("Smart playlist unchanged, skipping sync")
		return out, nil
	}
	log.WithField("reason", decision.Reason).Debug("Smart playlist needs sync")

	chunks := func(done, total int) { report(progress, PhaseReconcile, done, total) }

	var applied reconcile.AppliedResult
	if sp.SpotifyPlaylistID == "" {
		ensured, err := s.playlists.Ensure(ctx, &sp, res.ExternalIDs, chunks)
		if err != nil {
			return out, err
		}
		applied = ensured.Applied
	} else {
		current, err := s.remote.GetPlaylistItemIDs(ctx, sp.SpotifyPlaylistID)
		if err != nil {
			return out, fmt.Errorf("failed to read external playlist %s: %w", sp.SpotifyPlaylistID, err)
		}
		diff := reconcile.Reconcile(sp.SpotifyPlaylistID, res.ExternalIDs, current)
		log.WithFields(logrus.Fields{
			"to_add":    len(diff.ToAdd),
			"to_remove": len(diff.ToRemove),
		}).Debug("Computed playlist diff")
		applied = s.applier.Apply(ctx, diff, chunks)
	}

	out.NewTracks = len(applied.Added)
	out.UpdatedTracks = len(applied.Removed)
	out.Errors = append(out.Errors, applied.ErrorStrings()...)
	track(tr, snap, applied.Added, applied.Removed)

	switch {
	case applied.Complete():
		if err := s.library.CommitFingerprint(ctx, sp.ID, res.Fingerprint, s.now().UTC()); err != nil {
			return out, fmt.Errorf("failed to commit fingerprint for %s: %w", sp.ID, err)
		}
		log.WithFields(logrus.Fields{
			"added":   len(applied.Added),
			"removed": len(applied.Removed),
		}).Info("Smart playlist synced")
		return out, nil
	case applied.Cancelled:
		if err := ctx.Err(); err != nil {
			return out, err
		}
		return out, context.Canceled
	case applied.Aborted:
		return out, fmt.Errorf("sync of %s aborted: %w", sp.Name, applied.Err())
	case applied.AllFailed():
		return out, fmt.Errorf("every chunk failed for %s: %w", sp.Name, applied.Err())
	default:
		log.WithField("failed_chunks", len(applied.Errors)).Warn("Smart playlist partially synced, fingerprint not committed")
		return out, nil
	}
}

// lockPlaylist waits until this pass owns the smart playlist. Passes run
// outside a job are not coordinated.
func (s *Syncer) lockPlaylist(ctx context.Context, id string, progress Progress) (func(), error) {
	holder, ok := holderFrom(ctx)
	if s.locker == nil || !ok {
		return func() {}, nil
	}

	key := "playlist:" + id
	for {
		unlock, err := s.locker.Lock(ctx, key, holder)
		if err == nil {
			return unlock, nil
		}
		if !errors.Is(err, types.ErrConcurrencyConflict) {
			return nil, fmt.Errorf("failed to lock smart playlist %s: %w", id, err)
		}

		s.log("lock").WithFields(logrus.Fields{
			"playlist_id": id,
			"job_id":      holder,
		}).Debug("Smart playlist busy in another job, waiting")
		report(progress, PhaseLock, 0, 1)

		timer := time.NewTimer(s.opts.LockRetry)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
}

// MirrorLibrary mirrors every configured source, enriches new tracks with
// audio features, then refreshes aggregates for everything touched.
// Enrichment failures are recorded without failing the pass.
func (s *Syncer) MirrorLibrary(ctx context.Context, force bool, progress Progress) (types.SyncResult, error) {
	tr := tracker.New()
	defer s.flush(ctx, tr, progress)

	m := mirror.New(s.remote, s.library, tr, s.opts.Mirror, s.logger)
	total, err := m.MirrorAll(ctx, s.opts.Sources, force, func(done, n int) {
		report(progress, PhaseMirror, done, n)
	})
	if err != nil {
		return total, err
	}

	report(progress, PhaseEnrich, 0, 1)
	e := enrich.New(s.remote, s.library, tr, s.opts.EnrichChunkSize, s.opts.EnrichDelay, s.logger)
	enriched, err := e.Run(ctx, s.opts.EnrichLimit)
	total.UpdatedTracks += enriched.Enriched
	total.Errors = append(total.Errors, enriched.Errors...)
	if err != nil {
		if ctx.Err() != nil {
			return total, err
		}
		total.Errors = append(total.Errors, fmt.Sprintf("enrichment: %v", err))
	}
	report(progress, PhaseEnrich, 1, 1)

	s.log("mirror_library").WithFields(logrus.Fields{
		"sources":  len(s.opts.Sources),
		"total":    total.TotalTracks,
		"new":      total.NewTracks,
		"updated":  total.UpdatedTracks,
		"enriched": enriched.Enriched,
		"errors":   len(total.Errors),
	}).Info("Library mirror pass finished")
	return total, nil
}

// flush recomputes aggregates for the pass. It runs even when the pass was
// cancelled so rows already written get consistent rollups.
func (s *Syncer) flush(ctx context.Context, tr *tracker.Tracker, progress Progress) {
	summary := tr.Summary()
	if summary.Empty() {
		return
	}
	report(progress, PhaseAggregate, 0, 1)
	if err := s.rollups.Apply(context.WithoutCancel(ctx), summary); err != nil {
		s.log("aggregate").WithError(err).Error("Failed to recompute aggregates")
		return
	}
	tr.Clear()
	report(progress, PhaseAggregate, 1, 1)
}

// track records the library tracks whose playlist membership changed.
func track(tr *tracker.Tracker, snap *evaluator.Snapshot, changed ...[]string) {
	byExternal := make(map[string]types.Track)
	for _, t := range snap.Tracks() {
		if t.ExternalID != "" {
			byExternal[t.ExternalID] = t
		}
	}
	for _, ids := range changed {
		for _, id := range ids {
			t, ok := byExternal[id]
			if !ok {
				continue
			}
			tr.AddTrack(t.ID)
			tr.AddAlbum(t.AlbumID)
			tr.AddArtist(t.ArtistID)
		}
	}
}

// revoked reports whether err means the platform rejected our credentials.
func revoked(err error) bool {
	var fatal *types.FatalExternalError
	if !errors.As(err, &fatal) {
		return false
	}
	return fatal.Status == http.StatusUnauthorized || fatal.Status == 0
}

func emptyResult() types.SyncResult {
	return types.SyncResult{Errors: []string{}}
}
