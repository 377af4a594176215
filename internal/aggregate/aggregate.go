// Package aggregate refreshes album and artist rollups for the entities a
// sync pass touched.
package aggregate

import (
	"context"
	"fmt"
	"slices"

	"github.com/sirupsen/logrus"

	"github.com/toozej/smartlists/internal/tracker"
)

// Store recomputes rollups from track rows.
type Store interface {
	AlbumArtistIDsForTracks(ctx context.Context, trackIDs []string) (albumIDs, artistIDs []string, err error)
	RecomputeAlbums(ctx context.Context, albumIDs []string) error
	RecomputeArtists(ctx context.Context, artistIDs []string) error
}

// Recomputer turns a tracker summary into one batch of rollup updates.
type Recomputer struct {
	store  Store
	logger *logrus.Logger
}

// New creates a Recomputer.
func New(store Store, logger *logrus.Logger) *Recomputer {
	return &Recomputer{store: store, logger: logger}
}

// Apply recomputes every album and artist in the summary, plus those of
// the summary's tracks.
func (r *Recomputer) Apply(ctx context.Context, s tracker.Summary) error {
	if s.Empty() {
		return nil
	}

	albums, artists, err := r.store.AlbumArtistIDsForTracks(ctx, s.TrackIDs)
	if err != nil {
		return fmt.Errorf("failed to resolve affected albums and artists: %w", err)
	}
	albums = union(albums, s.AlbumIDs)
	artists = union(artists, s.ArtistIDs)

	if err := r.store.RecomputeAlbums(ctx, albums); err != nil {
		return fmt.Errorf("failed to recompute albums: %w", err)
	}
	if err := r.store.RecomputeArtists(ctx, artists); err != nil {
		return fmt.Errorf("failed to recompute artists: %w", err)
	}

	r.logger.WithFields(logrus.Fields{
		"component": "aggregate",
		"operation": "apply",
		"tracks":    len(s.TrackIDs),
		"albums":    len(albums),
		"artists":   len(artists),
	}).Debug("Recomputed aggregates")
	return nil
}

func union(a, b []string) []string {
	out := slices.Concat(a, b)
	slices.Sort(out)
	return slices.Compact(out)
}
