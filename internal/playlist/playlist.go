// Package playlist owns the external side of a smart playlist: creating it
// on the platform and building its first contents in order.
package playlist

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/toozej/smartlists/internal/reconcile"
	"github.com/toozej/smartlists/internal/types"
)

// DefaultDescription is used when a smart playlist has no description.
const DefaultDescription = "Smart playlist maintained by smartlists"

// Creator creates external playlists.
type Creator interface {
	CreatePlaylist(ctx context.Context, name, description string, public bool) (*types.Playlist, error)
}

// EnsureResult describes what Ensure did.
type EnsureResult struct {
	PlaylistID string
	Created    bool
	// Applied is the initial build. It is empty when the playlist already existed.
	Applied reconcile.AppliedResult
}

// PlaylistService ensures smart playlists have an external counterpart.
type PlaylistService struct {
	spotify Creator
	store   types.PlaylistStore
	applier *reconcile.Applier
	public  bool
	logger  *log.Logger
}

// NewPlaylistService creates a new playlist service
func NewPlaylistService(spotify Creator, store types.PlaylistStore, applier *reconcile.Applier, public bool, logger *log.Logger) *PlaylistService {
	return &PlaylistService{
		spotify: spotify,
		store:   store,
		applier: applier,
		public:  public,
		logger:  logger,
	}
}

// Ensure returns the external playlist ID for p. When p has none yet, the
// playlist is created, its ID is recorded, and desired is added in order.
// p.SpotifyPlaylistID is updated in place.
func (p *PlaylistService) Ensure(ctx context.Context, sp *types.SmartPlaylist, desired []string, progress reconcile.Progress) (EnsureResult, error) {
	if sp.SpotifyPlaylistID != "" {
		return EnsureResult{PlaylistID: sp.SpotifyPlaylistID}, nil
	}

	p.logger.WithFields(log.Fields{
		"component":   "playlist_service",
		"operation":   "create_playlist",
		"playlist_id": sp.ID,
		"name":        sp.Name,
		"track_count": len(desired),
	}).Info("Creating external playlist")

	description := sp.Description
	if description == "" {
		description = DefaultDescription
	}

	created, err := p.spotify.CreatePlaylist(ctx, sp.Name, description, p.public)
	if err != nil {
		p.logger.WithError(err).WithFields(log.Fields{
			"component":   "playlist_service",
			"operation":   "create_playlist",
			"playlist_id": sp.ID,
		}).Error("Failed to create external playlist")
		return EnsureResult{}, fmt.Errorf("failed to create external playlist for %s: %w", sp.ID, err)
	}

	if err := p.store.SetSpotifyPlaylistID(ctx, sp.ID, created.ID); err != nil {
		return EnsureResult{}, fmt.Errorf("failed to record external playlist ID for %s: %w", sp.ID, err)
	}
	sp.SpotifyPlaylistID = created.ID

	applied := p.applier.Apply(ctx, reconcile.Diff{PlaylistID: created.ID, ToAdd: desired}, progress)

	p.logger.WithFields(log.Fields{
		"component":           "playlist_service",
		"operation":           "initial_build",
		"playlist_id":         sp.ID,
		"spotify_playlist_id": created.ID,
		"added":               len(applied.Added),
		"failed_chunks":       len(applied.Errors),
	}).Info("Built new external playlist")

	return EnsureResult{PlaylistID: created.ID, Created: true, Applied: applied}, nil
}
