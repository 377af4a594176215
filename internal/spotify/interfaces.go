package spotify

import (
	"context"

	"github.com/zmb3/spotify/v2"
)

// spotifyAPI is the subset of *spotify.Client used by Client. Tests provide fakes.
type spotifyAPI interface {
	CurrentUser(ctx context.Context) (*spotify.PrivateUser, error)
	CreatePlaylistForUser(ctx context.Context, userID, playlistName, description string, public bool, collaborative bool) (*spotify.FullPlaylist, error)
	AddTracksToPlaylist(ctx context.Context, playlistID spotify.ID, trackIDs ...spotify.ID) (string, error)
	RemoveTracksFromPlaylist(ctx context.Context, playlistID spotify.ID, trackIDs ...spotify.ID) (string, error)
	GetPlaylist(ctx context.Context, playlistID spotify.ID, opts ...spotify.RequestOption) (*spotify.FullPlaylist, error)
	GetPlaylistItems(ctx context.Context, playlistID spotify.ID, opts ...spotify.RequestOption) (*spotify.PlaylistItemPage, error)
	CurrentUsersTracks(ctx context.Context, opts ...spotify.RequestOption) (*spotify.SavedTrackPage, error)
	GetAlbum(ctx context.Context, id spotify.ID, opts ...spotify.RequestOption) (*spotify.FullAlbum, error)
	GetAlbumTracks(ctx context.Context, id spotify.ID, opts ...spotify.RequestOption) (*spotify.SimpleTrackPage, error)
	GetArtistsTopTracks(ctx context.Context, artistID spotify.ID, country string) ([]spotify.FullTrack, error)
	GetAudioFeatures(ctx context.Context, ids ...spotify.ID) ([]*spotify.AudioFeatures, error)
}

var _ spotifyAPI = (*spotify.Client)(nil)

// Platform limits
const (
	// MaxPageSize is the largest page the read endpoints return.
	MaxPageSize = 50
	// MaxItemsPerWrite is the largest batch a playlist mutation accepts.
	MaxItemsPerWrite = 100
	// MaxFeatureIDs is the largest batch the audio features endpoint accepts.
	MaxFeatureIDs = 100
)
