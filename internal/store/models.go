package store

import (
	"database/sql"
	"time"

	"github.com/toozej/smartlists/internal/types"
)

type trackRow struct {
	ID                string `gorm:"primaryKey"`
	ExternalID        string
	Title             string
	Artist            string
	ArtistID          string
	Album             string
	AlbumID           string
	DurationMs        sql.NullInt64
	Rating            sql.NullFloat64
	PlayCount         sql.NullInt64
	LastPlayedAt      sql.NullTime
	DateAdded         sql.NullTime
	ReleaseDate       string
	Danceability      sql.NullFloat64
	Energy            sql.NullFloat64
	Valence           sql.NullFloat64
	Tempo             sql.NullFloat64
	Acousticness      sql.NullFloat64
	Instrumentalness  sql.NullFloat64
	FeaturesFetchedAt sql.NullTime
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

func (trackRow) TableName() string { return "tracks" }

type tagRow struct {
	ID    string `gorm:"primaryKey"`
	Name  string
	Color string
}

func (tagRow) TableName() string { return "tags" }

type trackTagRow struct {
	TrackID string `gorm:"primaryKey"`
	TagID   string `gorm:"primaryKey"`
}

func (trackTagRow) TableName() string { return "track_tags" }

type trackSourceRow struct {
	TrackID   string `gorm:"primaryKey"`
	SourceKey string `gorm:"primaryKey"`
}

func (trackSourceRow) TableName() string { return "track_sources" }

type playlistRow struct {
	ID                 string `gorm:"primaryKey"`
	Name               string
	Description        string
	Criteria           string
	IsActive           bool
	SpotifyPlaylistID  string
	TrackCount         int
	Fingerprint        string
	PendingFingerprint string
	LastSyncedAt       sql.NullTime
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

func (playlistRow) TableName() string { return "smart_playlists" }

type aggregateRow struct {
	ID              string `gorm:"primaryKey"`
	Name            string
	TrackCount      int
	RatedCount      int
	AverageRating   sql.NullFloat64
	FeatureCoverage float64
}

type albumRow struct{ aggregateRow }

func (albumRow) TableName() string { return "albums" }

type artistRow struct{ aggregateRow }

func (artistRow) TableName() string { return "artists" }

type mirrorSourceRow struct {
	SourceKey      string `gorm:"primaryKey"`
	Kind           string
	RemoteID       string
	SnapshotID     string
	LastMirroredAt sql.NullTime
}

func (mirrorSourceRow) TableName() string { return "mirror_sources" }

func nullInt(v *int) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*v), Valid: true}
}

func nullFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}

func nullTime(v *time.Time) sql.NullTime {
	if v == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: v.UTC(), Valid: true}
}

func intPtr(v sql.NullInt64) *int {
	if !v.Valid {
		return nil
	}
	i := int(v.Int64)
	return &i
}

func floatPtr(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}

func timePtr(v sql.NullTime) *time.Time {
	if !v.Valid {
		return nil
	}
	t := v.Time.UTC()
	return &t
}

func toTrackRow(t *types.Track) trackRow {
	row := trackRow{
		ID:           t.ID,
		ExternalID:   t.ExternalID,
		Title:        t.Title,
		Artist:       t.Artist,
		ArtistID:     t.ArtistID,
		Album:        t.Album,
		AlbumID:      t.AlbumID,
		DurationMs:   nullInt(t.DurationMs),
		Rating:       nullFloat(t.Rating),
		PlayCount:    sql.NullInt64{Int64: int64(t.PlayCount), Valid: true},
		LastPlayedAt: nullTime(t.LastPlayed),
		DateAdded:    nullTime(t.DateAdded),
		ReleaseDate:  t.ReleaseDate,
	}
	if f := t.Features; f != nil {
		row.Danceability = sql.NullFloat64{Float64: f.Danceability, Valid: true}
		row.Energy = sql.NullFloat64{Float64: f.Energy, Valid: true}
		row.Valence = sql.NullFloat64{Float64: f.Valence, Valid: true}
		row.Tempo = sql.NullFloat64{Float64: f.Tempo, Valid: true}
		row.Acousticness = sql.NullFloat64{Float64: f.Acousticness, Valid: true}
		row.Instrumentalness = sql.NullFloat64{Float64: f.Instrumentalness, Valid: true}
		row.FeaturesFetchedAt = sql.NullTime{Time: time.Now().UTC(), Valid: true}
	}
	return row
}

func (r trackRow) toTrack() types.Track {
	t := types.Track{
		ID:          r.ID,
		ExternalID:  r.ExternalID,
		Title:       r.Title,
		Artist:      r.Artist,
		ArtistID:    r.ArtistID,
		Album:       r.Album,
		AlbumID:     r.AlbumID,
		DurationMs:  intPtr(r.DurationMs),
		Rating:      floatPtr(r.Rating),
		PlayCount:   int(r.PlayCount.Int64),
		LastPlayed:  timePtr(r.LastPlayedAt),
		DateAdded:   timePtr(r.DateAdded),
		ReleaseDate: r.ReleaseDate,
	}
	if r.Energy.Valid {
		t.Features = &types.AudioFeatures{
			ExternalID:       r.ExternalID,
			Danceability:     r.Danceability.Float64,
			Energy:           r.Energy.Float64,
			Valence:          r.Valence.Float64,
			Tempo:            r.Tempo.Float64,
			Acousticness:     r.Acousticness.Float64,
			Instrumentalness: r.Instrumentalness.Float64,
		}
	}
	return t
}

func (r aggregateRow) toAlbum() types.Album {
	return types.Album{
		ID:              r.ID,
		Name:            r.Name,
		TrackCount:      r.TrackCount,
		RatedCount:      r.RatedCount,
		AverageRating:   floatPtr(r.AverageRating),
		FeatureCoverage: r.FeatureCoverage,
	}
}

func (r aggregateRow) toArtist() types.Artist {
	return types.Artist{
		ID:              r.ID,
		Name:            r.Name,
		TrackCount:      r.TrackCount,
		RatedCount:      r.RatedCount,
		AverageRating:   floatPtr(r.AverageRating),
		FeatureCoverage: r.FeatureCoverage,
	}
}
