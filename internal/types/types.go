package types

import (
	"context"
	"fmt"
	"time"

	"github.com/toozej/smartlists/internal/criteria"
)

// SpotifyService defines the interface for Spotify API operations
type SpotifyService interface {
	GetAuthURL() string
	IsAuthenticated() bool
	CompleteAuth(code, state string) error

	CreatePlaylist(ctx context.Context, name, description string, public bool) (*Playlist, error)
	AddItemsToPlaylist(ctx context.Context, playlistID string, trackIDs []string) error
	RemoveItemsFromPlaylist(ctx context.Context, playlistID string, trackIDs []string) error
	GetPlaylistSnapshotID(ctx context.Context, playlistID string) (string, error)
	GetPlaylistItemIDs(ctx context.Context, playlistID string) ([]string, error)

	GetPlaylistTracks(ctx context.Context, playlistID string) ([]RemoteTrack, error)
	GetLikedTracks(ctx context.Context) ([]RemoteTrack, error)
	GetAlbumTracks(ctx context.Context, albumID string) ([]RemoteTrack, error)
	GetArtistTopTracks(ctx context.Context, artistID string) ([]RemoteTrack, error)
	GetAudioFeatures(ctx context.Context, trackIDs []string) ([]*AudioFeatures, error)
}

// LibraryView is a read-only view of the library used for rule evaluation.
type LibraryView interface {
	Tracks() []Track
}

// PlaylistStore persists smart playlists and their materialization state.
type PlaylistStore interface {
	GetSmartPlaylist(ctx context.Context, id string) (SmartPlaylist, error)
	ListSmartPlaylists(ctx context.Context, activeOnly bool) ([]SmartPlaylist, error)
	SaveSmartPlaylist(ctx context.Context, p *SmartPlaylist) error
	UpdateMaterialization(ctx context.Context, id string, trackCount int, pendingFingerprint string) error
	CommitFingerprint(ctx context.Context, id, fingerprint string, syncedAt time.Time) error
	SetSpotifyPlaylistID(ctx context.Context, id, spotifyPlaylistID string) error
}

// Core data models

// Track is one library item.
type Track struct {
	ID          string         `json:"id"`
	ExternalID  string         `json:"external_id"`
	Title       string         `json:"title"`
	Artist      string         `json:"artist"`
	ArtistID    string         `json:"artist_id,omitempty"`
	Album       string         `json:"album"`
	AlbumID     string         `json:"album_id,omitempty"`
	DurationMs  *int           `json:"duration_ms,omitempty"`
	Rating      *float64       `json:"rating,omitempty"`
	PlayCount   int            `json:"play_count"`
	LastPlayed  *time.Time     `json:"last_played,omitempty"`
	DateAdded   *time.Time     `json:"date_added,omitempty"`
	ReleaseDate string         `json:"release_date,omitempty"`
	TagIDs      []string       `json:"tag_ids,omitempty"`
	Sources     []string       `json:"sources,omitempty"`
	Features    *AudioFeatures `json:"features,omitempty"`
}

// HasTag reports whether the track carries the tag with the given ID.
func (t Track) HasTag(tagID string) bool {
	for _, id := range t.TagIDs {
		if id == tagID {
			return true
		}
	}
	return false
}

// String returns a string representation of the track
func (t Track) String() string {
	if t.Album != "" {
		return fmt.Sprintf("%s - %s (%s)", t.Artist, t.Title, t.Album)
	}
	return fmt.Sprintf("%s - %s", t.Artist, t.Title)
}

// Tag is a user label that can be attached to tracks.
type Tag struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Color string `json:"color,omitempty"`
}

// SmartPlaylist is a rule-defined playlist.
type SmartPlaylist struct {
	ID                 string            `json:"id"`
	Name               string            `json:"name"`
	Description        string            `json:"description"`
	Criteria           criteria.Document `json:"criteria"`
	IsActive           bool              `json:"is_active"`
	SpotifyPlaylistID  string            `json:"spotify_playlist_id,omitempty"`
	TrackCount         int               `json:"track_count"`
	Fingerprint        string            `json:"fingerprint,omitempty"`
	PendingFingerprint string            `json:"pending_fingerprint,omitempty"`
	LastSyncedAt       *time.Time        `json:"last_synced_at,omitempty"`
	CreatedAt          time.Time         `json:"created_at"`
	UpdatedAt          time.Time         `json:"updated_at"`
}

// Album holds aggregate fields recomputed after each sync pass.
type Album struct {
	ID              string   `json:"id"`
	Name            string   `json:"name"`
	TrackCount      int      `json:"track_count"`
	RatedCount      int      `json:"rated_count"`
	AverageRating   *float64 `json:"average_rating,omitempty"`
	FeatureCoverage float64  `json:"feature_coverage"`
}

// Artist holds aggregate fields recomputed after each sync pass.
type Artist struct {
	ID              string   `json:"id"`
	Name            string   `json:"name"`
	TrackCount      int      `json:"track_count"`
	RatedCount      int      `json:"rated_count"`
	AverageRating   *float64 `json:"average_rating,omitempty"`
	FeatureCoverage float64  `json:"feature_coverage"`
}

// AudioFeatures is the enrichment vector attached to a track.
type AudioFeatures struct {
	ExternalID       string  `json:"external_id"`
	Danceability     float64 `json:"danceability"`
	Energy           float64 `json:"energy"`
	Valence          float64 `json:"valence"`
	Tempo            float64 `json:"tempo"`
	Acousticness     float64 `json:"acousticness"`
	Instrumentalness float64 `json:"instrumentalness"`
}

// Playlist represents a Spotify playlist
type Playlist struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	URI        string `json:"uri"`
	SnapshotID string `json:"snapshot_id"`
	TrackCount int    `json:"track_count"`
}

// RemoteTrack is a track as returned by the external platform.
type RemoteTrack struct {
	ExternalID  string     `json:"id"`
	Title       string     `json:"name"`
	Artist      string     `json:"artist"`
	ArtistID    string     `json:"artist_id"`
	Album       string     `json:"album"`
	AlbumID     string     `json:"album_id"`
	DurationMs  int        `json:"duration_ms"`
	ReleaseDate string     `json:"release_date"`
	AddedAt     *time.Time `json:"added_at,omitempty"`
}

// Mirror sources

// SourceKind identifies how a track entered the library.
type SourceKind string

const (
	SourceLikedSongs SourceKind = "liked-songs"
	SourceAlbum      SourceKind = "album"
	SourcePlaylist   SourceKind = "playlist"
	SourceArtistTop  SourceKind = "artist-top"
)

// MirrorSource is one remote collection mirrored into the library.
type MirrorSource struct {
	Kind           SourceKind `json:"kind"`
	RemoteID       string     `json:"remote_id,omitempty"`
	SnapshotID     string     `json:"snapshot_id,omitempty"`
	LastMirroredAt *time.Time `json:"last_mirrored_at,omitempty"`
}

// Key is the source descriptor stored on tracks, e.g. "album:4aawyAB9vmqN3uQ7FjRGTy".
func (s MirrorSource) Key() string {
	if s.RemoteID == "" {
		return string(s.Kind)
	}
	return string(s.Kind) + ":" + s.RemoteID
}

// Job results

// SyncResult is the operator-facing terminal result of a sync job.
type SyncResult struct {
	TotalTracks   int      `json:"totalTracks"`
	NewTracks     int      `json:"newTracks"`
	UpdatedTracks int      `json:"updatedTracks"`
	Errors        []string `json:"errors"`
}

// Merge folds another result into r.
func (r *SyncResult) Merge(other SyncResult) {
	r.TotalTracks += other.TotalTracks
	r.NewTracks += other.NewTracks
	r.UpdatedTracks += other.UpdatedTracks
	r.Errors = append(r.Errors, other.Errors...)
}
