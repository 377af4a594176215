// Package mirror copies remote collections into the local library.
//
// Each source is gated by an opaque snapshot: the platform's snapshot ID for
// playlists, and a fingerprint of the fetched track IDs for everything else.
package mirror

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/toozej/smartlists/internal/fingerprint"
	"github.com/toozej/smartlists/internal/gate"
	"github.com/toozej/smartlists/internal/reconcile"
	"github.com/toozej/smartlists/internal/tracker"
	"github.com/toozej/smartlists/internal/types"
	"github.com/toozej/smartlists/pkg/config"
)

// Remote reads collections from the platform.
type Remote interface {
	GetPlaylistSnapshotID(ctx context.Context, playlistID string) (string, error)
	GetPlaylistTracks(ctx context.Context, playlistID string) ([]types.RemoteTrack, error)
	GetLikedTracks(ctx context.Context) ([]types.RemoteTrack, error)
	GetAlbumTracks(ctx context.Context, albumID string) ([]types.RemoteTrack, error)
	GetArtistTopTracks(ctx context.Context, artistID string) ([]types.RemoteTrack, error)
}

// Library is the local side of the mirror.
type Library interface {
	GetMirrorSource(ctx context.Context, key string) (types.MirrorSource, error)
	SaveMirrorSource(ctx context.Context, src types.MirrorSource) error
	UpsertRemoteTrack(ctx context.Context, rt types.RemoteTrack, sourceKey string) (types.Track, bool, bool, error)
	SourceExternalIDs(ctx context.Context, sourceKey string) ([]string, error)
	DetachSource(ctx context.Context, sourceKey string, externalIDs []string) (int64, error)
}

// Options controls mirroring.
type Options struct {
	// ForceRefresh re-reads every source regardless of its snapshot.
	ForceRefresh bool
	// DetachMissing removes the source attribution from local tracks the
	// remote no longer lists.
	DetachMissing bool
}

// Mirror performs inbound syncs.
type Mirror struct {
	remote  Remote
	library Library
	tracker *tracker.Tracker
	opts    Options
	logger  *logrus.Logger
	now     func() time.Time
}

// New creates a Mirror. Touched tracks, albums and artists are recorded on tr.
func New(remote Remote, library Library, tr *tracker.Tracker, opts Options, logger *logrus.Logger) *Mirror {
	return &Mirror{
		remote:  remote,
		library: library,
		tracker: tr,
		opts:    opts,
		logger:  logger,
		now:     time.Now,
	}
}

// ParseSources converts configured descriptors into mirror sources.
func ParseSources(specs []string) ([]types.MirrorSource, error) {
	out := make([]types.MirrorSource, 0, len(specs))
	for _, s := range specs {
		kind, id, err := config.ParseSource(s)
		if err != nil {
			return nil, err
		}
		out = append(out, types.MirrorSource{Kind: types.SourceKind(kind), RemoteID: id})
	}
	return out, nil
}

func (m *Mirror) log(src types.MirrorSource) *logrus.Entry {
	return m.logger.WithFields(logrus.Fields{
		"component":  "mirror",
		"operation":  "mirror_source",
		"source_key": src.Key(),
	})
}

// MirrorSource brings one source up to date. Per-track store failures are
// collected in the result; platform failures are returned.
func (m *Mirror) MirrorSource(ctx context.Context, src types.MirrorSource, force bool) (types.SyncResult, error) {
	key := src.Key()
	log := m.log(src)
	force = force || m.opts.ForceRefresh

	stored, err := m.library.GetMirrorSource(ctx, key)
	switch {
	case errors.Is(err, types.ErrNotFound):
		stored = types.MirrorSource{Kind: src.Kind, RemoteID: src.RemoteID}
	case err != nil:
		return types.SyncResult{}, err
	}

	var snapshot string
	if src.Kind == types.SourcePlaylist {
		snapshot, err = m.remote.GetPlaylistSnapshotID(ctx, src.RemoteID)
		if err != nil {
			return types.SyncResult{}, err
		}
		if d := gate.ShouldMirror(stored, snapshot, force); !d.Sync {
			log.WithField("reason", d.Reason).Info("Skipping unchanged source")
			return types.SyncResult{}, nil
		}
	}

	remote, err := m.fetch(ctx, src)
	if err != nil {
		return types.SyncResult{}, err
	}

	remoteIDs := make([]string, 0, len(remote))
	for _, rt := range remote {
		remoteIDs = append(remoteIDs, rt.ExternalID)
	}

	if src.Kind != types.SourcePlaylist {
		snapshot = fingerprint.Fingerprint(remoteIDs)
		if d := gate.ShouldMirror(stored, snapshot, force); !d.Sync {
			log.WithField("reason", d.Reason).Info("Skipping unchanged source")
			return types.SyncResult{TotalTracks: len(remote)}, nil
		}
	}

	res := types.SyncResult{TotalTracks: len(remote), Errors: []string{}}
	for _, rt := range remote {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		t, created, updated, err := m.library.UpsertRemoteTrack(ctx, rt, key)
		if err != nil {
			res.Errors = append(res.Errors, err.Error())
			continue
		}
		if created {
			res.NewTracks++
		} else if updated {
			res.UpdatedTracks++
		}
		if created || updated {
			m.tracker.AddTrack(t.ID)
			m.tracker.AddAlbum(t.AlbumID)
			m.tracker.AddArtist(t.ArtistID)
		}
	}

	if m.opts.DetachMissing {
		if err := m.detachMissing(ctx, key, remoteIDs); err != nil {
			res.Errors = append(res.Errors, err.Error())
		}
	}

	// a partial pass is retried next time by leaving the old snapshot in place
	if len(res.Errors) == 0 {
		now := m.now().UTC()
		stored.SnapshotID = snapshot
		stored.LastMirroredAt = &now
		if err := m.library.SaveMirrorSource(ctx, stored); err != nil {
			res.Errors = append(res.Errors, err.Error())
		}
	}

	log.WithFields(logrus.Fields{
		"total":   res.TotalTracks,
		"new":     res.NewTracks,
		"updated": res.UpdatedTracks,
		"errors":  len(res.Errors),
	}).Info("Mirrored source")

	return res, nil
}

// detachMissing drops the source from local tracks absent at the remote.
// The remote is the desired side here and the local attribution is current.
func (m *Mirror) detachMissing(ctx context.Context, key string, remoteIDs []string) error {
	local, err := m.library.SourceExternalIDs(ctx, key)
	if err != nil {
		return err
	}
	diff := reconcile.Reconcile(key, remoteIDs, local)
	if len(diff.ToRemove) == 0 {
		return nil
	}
	n, err := m.library.DetachSource(ctx, key, diff.ToRemove)
	if err != nil {
		return err
	}
	m.logger.WithFields(logrus.Fields{
		"component":  "mirror",
		"operation":  "detach_missing",
		"source_key": key,
		"detached":   n,
	}).Info("Detached tracks no longer in source")
	return nil
}

func (m *Mirror) fetch(ctx context.Context, src types.MirrorSource) ([]types.RemoteTrack, error) {
	switch src.Kind {
	case types.SourceLikedSongs:
		return m.remote.GetLikedTracks(ctx)
	case types.SourcePlaylist:
		return m.remote.GetPlaylistTracks(ctx, src.RemoteID)
	case types.SourceAlbum:
		return m.remote.GetAlbumTracks(ctx, src.RemoteID)
	case types.SourceArtistTop:
		return m.remote.GetArtistTopTracks(ctx, src.RemoteID)
	default:
		return nil, fmt.Errorf("%w: unknown kind %q", config.ErrInvalidMirrorSource, src.Kind)
	}
}

// MirrorAll mirrors sources in order. A fatal platform error stops the pass
// since it applies to every source; other failures are recorded and the
// next source still runs.
func (m *Mirror) MirrorAll(ctx context.Context, sources []types.MirrorSource, force bool, progress func(done, total int)) (types.SyncResult, error) {
	total := types.SyncResult{Errors: []string{}}
	for i, src := range sources {
		res, err := m.MirrorSource(ctx, src, force)
		total.Merge(res)
		if err != nil {
			if ctx.Err() != nil || types.IsFatal(err) {
				return total, err
			}
			total.Errors = append(total.Errors, fmt.Sprintf("%s: %v", src.Key(), err))
		}
		if progress != nil {
			progress(i+1, len(sources))
		}
	}
	return total, nil
}
