package spotify

import (
	"strings"
	"time"

	"github.com/zmb3/spotify/v2"

	"github.com/toozej/smartlists/internal/types"
)

// artistFields joins credited artist names; the first artist is the primary ID.
func artistFields(artists []spotify.SimpleArtist) (name, id string) {
	if len(artists) == 0 {
		return "", ""
	}
	names := make([]string, len(artists))
	for i, a := range artists {
		names[i] = a.Name
	}
	return strings.Join(names, ", "), string(artists[0].ID)
}

func fromFullTrack(t spotify.FullTrack) types.RemoteTrack {
	artist, artistID := artistFields(t.Artists)
	return types.RemoteTrack{
		ExternalID:  string(t.ID),
		Title:       t.Name,
		Artist:      artist,
		ArtistID:    artistID,
		Album:       t.Album.Name,
		AlbumID:     string(t.Album.ID),
		DurationMs:  int(t.Duration),
		ReleaseDate: t.Album.ReleaseDate,
	}
}

func fromSimpleTrack(t spotify.SimpleTrack, album spotify.SimpleAlbum) types.RemoteTrack {
	artist, artistID := artistFields(t.Artists)
	return types.RemoteTrack{
		ExternalID:  string(t.ID),
		Title:       t.Name,
		Artist:      artist,
		ArtistID:    artistID,
		Album:       album.Name,
		AlbumID:     string(album.ID),
		DurationMs:  int(t.Duration),
		ReleaseDate: album.ReleaseDate,
	}
}

func fromAudioFeatures(id string, f *spotify.AudioFeatures) *types.AudioFeatures {
	return &types.AudioFeatures{
		ExternalID:       id,
		Danceability:     float64(f.Danceability),
		Energy:           float64(f.Energy),
		Valence:          float64(f.Valence),
		Tempo:            float64(f.Tempo),
		Acousticness:     float64(f.Acousticness),
		Instrumentalness: float64(f.Instrumentalness),
	}
}

// parseAddedAt reads the platform's added_at timestamp. Unparseable values are nil.
func parseAddedAt(s string) *time.Time {
	if s == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return nil
	}
	t = t.UTC()
	return &t
}
