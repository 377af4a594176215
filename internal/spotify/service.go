package spotify

import (
	"context"
	"errors"
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/toozej/smartlists/internal/types"
	"github.com/toozej/smartlists/pkg/config"
)

var errClientUnavailable = errors.New("spotify client not available")

var _ types.SpotifyService = (*Service)(nil)

// Service implements the types.SpotifyService interface
type Service struct {
	client *Client
	logger *logrus.Logger
}

// NewService creates a new Spotify service that implements types.SpotifyService.
// If the client cannot be created every call fails with a fatal error.
func NewService(cfg config.SpotifyConfig, httpClient *http.Client, logger *logrus.Logger) *Service {
	logger.WithFields(logrus.Fields{
		"client_id":     cfg.ClientID,
		"client_secret": cfg.ClientSecret != "",
		"redirect_url":  cfg.RedirectURL,
	}).Debug("Creating Spotify service with config")

	client, err := NewClient(cfg, httpClient, logger)
	if err != nil {
		logger.WithError(err).Error("Failed to create Spotify client")
		return &Service{logger: logger}
	}

	return &Service{client: client, logger: logger}
}

func (s *Service) log(operation string) *logrus.Entry {
	return s.logger.WithFields(logrus.Fields{
		"component": "spotify_service",
		"operation": operation,
	})
}

func (s *Service) unavailable(op string) error {
	return &types.FatalExternalError{Op: op, Err: errClientUnavailable}
}

// GetAuthURL returns the URL for user authentication
func (s *Service) GetAuthURL() string {
	if s.client == nil {
		return ""
	}
	return s.client.GetAuthURL()
}

// IsAuthenticated returns whether the user is authenticated
func (s *Service) IsAuthenticated() bool {
	if s.client == nil {
		return false
	}
	return s.client.IsAuthenticated()
}

// CompleteAuth completes the authentication process
func (s *Service) CompleteAuth(code, state string) error {
	if s.client == nil {
		return errClientUnavailable
	}
	return s.client.CompleteAuth(code, state)
}

// CreatePlaylist creates a new playlist with the given name and description
func (s *Service) CreatePlaylist(ctx context.Context, name, description string, public bool) (*types.Playlist, error) {
	if s.client == nil {
		return nil, s.unavailable("create_playlist")
	}

	playlist, err := s.client.CreatePlaylist(ctx, name, description, public)
	if err != nil {
		s.log("create_playlist").WithError(err).WithField("playlist_name", name).Error("Failed to create playlist")
		return nil, err
	}

	s.log("create_playlist").WithFields(logrus.Fields{
		"playlist_id":   playlist.ID,
		"playlist_name": playlist.Name,
	}).Info("Successfully created playlist")

	return playlist, nil
}

// AddItemsToPlaylist adds one chunk of tracks to a playlist
func (s *Service) AddItemsToPlaylist(ctx context.Context, playlistID string, trackIDs []string) error {
	if s.client == nil {
		return s.unavailable("add_items")
	}

	if err := s.client.AddItemsToPlaylist(ctx, playlistID, trackIDs); err != nil {
		s.log("add_items").WithError(err).WithFields(logrus.Fields{
			"playlist_id": playlistID,
			"track_count": len(trackIDs),
		}).Error("Failed to add tracks to playlist")
		return err
	}

	s.log("add_items").WithFields(logrus.Fields{
		"playlist_id": playlistID,
		"track_count": len(trackIDs),
	}).Debug("Added tracks to playlist")
	return nil
}

// RemoveItemsFromPlaylist removes one chunk of tracks from a playlist
func (s *Service) RemoveItemsFromPlaylist(ctx context.Context, playlistID string, trackIDs []string) error {
	if s.client == nil {
		return s.unavailable("remove_items")
	}

	if err := s.client.RemoveItemsFromPlaylist(ctx, playlistID, trackIDs); err != nil {
		s.log("remove_items").WithError(err).WithFields(logrus.Fields{
			"playlist_id": playlistID,
			"track_count": len(trackIDs),
		}).Error("Failed to remove tracks from playlist")
		return err
	}

	s.log("remove_items").WithFields(logrus.Fields{
		"playlist_id": playlistID,
		"track_count": len(trackIDs),
	}).Debug("Removed tracks from playlist")
	return nil
}

// GetPlaylistSnapshotID returns a playlist's snapshot ID
func (s *Service) GetPlaylistSnapshotID(ctx context.Context, playlistID string) (string, error) {
	if s.client == nil {
		return "", s.unavailable("get_playlist")
	}
	return s.client.GetPlaylistSnapshotID(ctx, playlistID)
}

// GetPlaylistItemIDs returns the track IDs currently in a playlist
func (s *Service) GetPlaylistItemIDs(ctx context.Context, playlistID string) ([]string, error) {
	if s.client == nil {
		return nil, s.unavailable("get_playlist_items")
	}

	ids, err := s.client.GetPlaylistItemIDs(ctx, playlistID)
	if err != nil {
		s.log("get_playlist_items").WithError(err).WithField("playlist_id", playlistID).Error("Failed to read playlist items")
		return nil, err
	}

	s.log("get_playlist_items").WithFields(logrus.Fields{
		"playlist_id": playlistID,
		"track_count": len(ids),
	}).Debug("Read playlist items")
	return ids, nil
}

// GetPlaylistTracks returns the tracks of any playlist
func (s *Service) GetPlaylistTracks(ctx context.Context, playlistID string) ([]types.RemoteTrack, error) {
	if s.client == nil {
		return nil, s.unavailable("get_playlist_items")
	}
	return s.client.GetPlaylistTracks(ctx, playlistID)
}

// GetLikedTracks returns the user's saved tracks
func (s *Service) GetLikedTracks(ctx context.Context) ([]types.RemoteTrack, error) {
	if s.client == nil {
		return nil, s.unavailable("get_saved_tracks")
	}

	tracks, err := s.client.GetLikedTracks(ctx)
	if err != nil {
		s.log("get_saved_tracks").WithError(err).Error("Failed to read liked songs")
		return nil, err
	}

	s.log("get_saved_tracks").WithField("track_count", len(tracks)).Debug("Read liked songs")
	return tracks, nil
}

// GetAlbumTracks returns an album's tracks
func (s *Service) GetAlbumTracks(ctx context.Context, albumID string) ([]types.RemoteTrack, error) {
	if s.client == nil {
		return nil, s.unavailable("get_album_tracks")
	}
	return s.client.GetAlbumTracks(ctx, albumID)
}

// GetArtistTopTracks returns an artist's top tracks
func (s *Service) GetArtistTopTracks(ctx context.Context, artistID string) ([]types.RemoteTrack, error) {
	if s.client == nil {
		return nil, s.unavailable("get_artist_top_tracks")
	}
	return s.client.GetArtistTopTracks(ctx, artistID)
}

// GetAudioFeatures looks up audio features for one batch of tracks
func (s *Service) GetAudioFeatures(ctx context.Context, trackIDs []string) ([]*types.AudioFeatures, error) {
	if s.client == nil {
		return nil, s.unavailable("get_audio_features")
	}

	features, err := s.client.GetAudioFeatures(ctx, trackIDs)
	if err != nil {
		s.log("get_audio_features").WithError(err).WithField("track_count", len(trackIDs)).Error("Failed to read audio features")
		return nil, err
	}
	return features, nil
}
