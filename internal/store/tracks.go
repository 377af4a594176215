package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/toozej/smartlists/internal/evaluator"
	"github.com/toozej/smartlists/internal/types"
)

// SaveTrack inserts or replaces a track along with its tags and sources.
// An empty ID is assigned a new one.
func (s *Store) SaveTrack(ctx context.Context, t *types.Track) error {
	if t.ExternalID == "" {
		return fmt.Errorf("failed to save track %q: external id is required", t.Title)
	}
	if t.ID == "" {
		t.ID = uuid.NewString()
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		row := toTrackRow(t)

		var existing trackRow
		err := tx.Select("created_at", "features_fetched_at").Where("id = ?", t.ID).Take(&existing).Error
		switch {
		case err == nil:
			row.CreatedAt = existing.CreatedAt
			if t.Features == nil {
				row.FeaturesFetchedAt = existing.FeaturesFetchedAt
			}
		case errors.Is(err, gorm.ErrRecordNotFound):
		default:
			return fmt.Errorf("failed to load track %s: %w", t.ID, err)
		}

		if err := tx.Save(&row).Error; err != nil {
			return fmt.Errorf("failed to save track %s: %w", t.ID, err)
		}
		if err := replaceLinks(tx, t.ID, t.TagIDs, t.Sources); err != nil {
			return err
		}
		return nil
	})
}

func replaceLinks(tx *gorm.DB, trackID string, tagIDs, sources []string) error {
	if err := tx.Where("track_id = ?", trackID).Delete(&trackTagRow{}).Error; err != nil {
		return fmt.Errorf("failed to clear tags for track %s: %w", trackID, err)
	}
	for _, tagID := range tagIDs {
		if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&trackTagRow{TrackID: trackID, TagID: tagID}).Error; err != nil {
			return fmt.Errorf("failed to tag track %s: %w", trackID, err)
		}
	}
	if err := tx.Where("track_id = ?", trackID).Delete(&trackSourceRow{}).Error; err != nil {
		return fmt.Errorf("failed to clear sources for track %s: %w", trackID, err)
	}
	for _, key := range sources {
		if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&trackSourceRow{TrackID: trackID, SourceKey: key}).Error; err != nil {
			return fmt.Errorf("failed to record source for track %s: %w", trackID, err)
		}
	}
	return nil
}

// ListTracks returns every track with tags and sources attached, ordered by ID.
func (s *Store) ListTracks(ctx context.Context) ([]types.Track, error) {
	db := s.db.WithContext(ctx)

	var rows []trackRow
	if err := db.Order("id").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list tracks: %w", err)
	}

	var tagLinks []trackTagRow
	if err := db.Order("track_id, tag_id").Find(&tagLinks).Error; err != nil {
		return nil, fmt.Errorf("failed to list track tags: %w", err)
	}
	var sourceLinks []trackSourceRow
	if err := db.Order("track_id, source_key").Find(&sourceLinks).Error; err != nil {
		return nil, fmt.Errorf("failed to list track sources: %w", err)
	}

	tags := make(map[string][]string)
	for _, l := range tagLinks {
		tags[l.TrackID] = append(tags[l.TrackID], l.TagID)
	}
	sources := make(map[string][]string)
	for _, l := range sourceLinks {
		sources[l.TrackID] = append(sources[l.TrackID], l.SourceKey)
	}

	tracks := make([]types.Track, len(rows))
	for i, r := range rows {
		tracks[i] = r.toTrack()
		tracks[i].TagIDs = tags[r.ID]
		tracks[i].Sources = sources[r.ID]
	}
	return tracks, nil
}

// Snapshot loads the library into an immutable view for evaluation.
func (s *Store) Snapshot(ctx context.Context) (*evaluator.Snapshot, error) {
	tracks, err := s.ListTracks(ctx)
	if err != nil {
		return nil, err
	}
	return evaluator.NewSnapshot(tracks), nil
}

// GetTrack returns a track by internal ID.
func (s *Store) GetTrack(ctx context.Context, id string) (types.Track, error) {
	return s.getTrack(ctx, "id = ?", id)
}

// GetTrackByExternalID returns a track by platform ID.
func (s *Store) GetTrackByExternalID(ctx context.Context, externalID string) (types.Track, error) {
	return s.getTrack(ctx, "external_id = ?", externalID)
}

func (s *Store) getTrack(ctx context.Context, where string, arg string) (types.Track, error) {
	db := s.db.WithContext(ctx)

	var row trackRow
	if err := db.Where(where, arg).Take(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return types.Track{}, fmt.Errorf("track %s: %w", arg, types.ErrNotFound)
		}
		return types.Track{}, fmt.Errorf("failed to get track %s: %w", arg, err)
	}

	t := row.toTrack()
	if err := db.Model(&trackTagRow{}).Where("track_id = ?", row.ID).Order("tag_id").Pluck("tag_id", &t.TagIDs).Error; err != nil {
		return types.Track{}, fmt.Errorf("failed to load tags for track %s: %w", row.ID, err)
	}
	if err := db.Model(&trackSourceRow{}).Where("track_id = ?", row.ID).Order("source_key").Pluck("source_key", &t.Sources).Error; err != nil {
		return types.Track{}, fmt.Errorf("failed to load sources for track %s: %w", row.ID, err)
	}
	return t, nil
}

// UpsertRemoteTrack records a platform track seen in the given source.
// Local fields (rating, play count, tags) are never touched. It reports
// whether the track was created or had remote metadata change.
func (s *Store) UpsertRemoteTrack(ctx context.Context, rt types.RemoteTrack, sourceKey string) (t types.Track, created, updated bool, err error) {
	if rt.ExternalID == "" {
		return types.Track{}, false, false, fmt.Errorf("failed to upsert remote track %q: external id is required", rt.Title)
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var row trackRow
		lookupErr := tx.Where("external_id = ?", rt.ExternalID).Take(&row).Error
		switch {
		case errors.Is(lookupErr, gorm.ErrRecordNotFound):
			added := time.Now().UTC()
			if rt.AddedAt != nil {
				added = rt.AddedAt.UTC()
			}
			row = trackRow{
				ID:          uuid.NewString(),
				ExternalID:  rt.ExternalID,
				Title:       rt.Title,
				Artist:      rt.Artist,
				ArtistID:    rt.ArtistID,
				Album:       rt.Album,
				AlbumID:     rt.AlbumID,
				DurationMs:  remoteDuration(rt.DurationMs),
				PlayCount:   sql.NullInt64{Valid: true},
				DateAdded:   sql.NullTime{Time: added, Valid: true},
				ReleaseDate: rt.ReleaseDate,
			}
			if err := tx.Create(&row).Error; err != nil {
				return fmt.Errorf("failed to create track %s: %w", rt.ExternalID, err)
			}
			created = true
		case lookupErr != nil:
			return fmt.Errorf("failed to look up track %s: %w", rt.ExternalID, lookupErr)
		default:
			changes := remoteChanges(row, rt)
			if len(changes) > 0 {
				if err := tx.Model(&trackRow{}).Where("id = ?", row.ID).Updates(changes).Error; err != nil {
					return fmt.Errorf("failed to update track %s: %w", rt.ExternalID, err)
				}
				if err := tx.Where("id = ?", row.ID).Take(&row).Error; err != nil {
					return fmt.Errorf("failed to reload track %s: %w", rt.ExternalID, err)
				}
				updated = true
			}
		}

		if sourceKey != "" {
			if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&trackSourceRow{TrackID: row.ID, SourceKey: sourceKey}).Error; err != nil {
				return fmt.Errorf("failed to record source %s for track %s: %w", sourceKey, rt.ExternalID, err)
			}
		}
		t = row.toTrack()
		return nil
	})
	if err != nil {
		return types.Track{}, false, false, err
	}
	return t, created, updated, nil
}

func remoteDuration(ms int) sql.NullInt64 {
	if ms <= 0 {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(ms), Valid: true}
}

func remoteChanges(row trackRow, rt types.RemoteTrack) map[string]any {
	changes := make(map[string]any)
	set := func(column, have, want string) {
		if want != "" && have != want {
			changes[column] = want
		}
	}
	set("title", row.Title, rt.Title)
	set("artist", row.Artist, rt.Artist)
	set("artist_id", row.ArtistID, rt.ArtistID)
	set("album", row.Album, rt.Album)
	set("album_id", row.AlbumID, rt.AlbumID)
	set("release_date", row.ReleaseDate, rt.ReleaseDate)
	if d := remoteDuration(rt.DurationMs); d.Valid && d != row.DurationMs {
		changes["duration_ms"] = d
	}
	if len(changes) > 0 {
		changes["updated_at"] = time.Now().UTC()
	}
	return changes
}

// SourceExternalIDs returns the platform IDs of tracks attributed to a source.
func (s *Store) SourceExternalIDs(ctx context.Context, sourceKey string) ([]string, error) {
	var ids []string
	err := s.db.WithContext(ctx).
		Table("tracks").
		Joins("join track_sources on track_sources.track_id = tracks.id").
		Where("track_sources.source_key = ?", sourceKey).
		Order("tracks.external_id").
		Pluck("tracks.external_id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list tracks for source %s: %w", sourceKey, err)
	}
	return ids, nil
}

// DetachSource removes the source attribution from the given tracks. The
// tracks stay in the library so local ratings and play counts survive.
func (s *Store) DetachSource(ctx context.Context, sourceKey string, externalIDs []string) (int64, error) {
	if len(externalIDs) == 0 {
		return 0, nil
	}
	res := s.db.WithContext(ctx).
		Where("source_key = ? and track_id in (?)", sourceKey,
			s.db.Model(&trackRow{}).Select("id").Where("external_id in ?", externalIDs)).
		Delete(&trackSourceRow{})
	if res.Error != nil {
		return 0, fmt.Errorf("failed to detach %d tracks from source %s: %w", len(externalIDs), sourceKey, res.Error)
	}

	s.logger.WithFields(logrus.Fields{
		"component":  "store",
		"operation":  "detach_source",
		"source_key": sourceKey,
		"detached":   res.RowsAffected,
	}).Debug("Detached tracks from source")

	return res.RowsAffected, nil
}

// SetAudioFeatures stores enrichment vectors by platform ID. Unknown IDs are skipped.
func (s *Store) SetAudioFeatures(ctx context.Context, features []*types.AudioFeatures) ([]string, error) {
	var touched []string
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := time.Now().UTC()
		for _, f := range features {
			if f == nil || f.ExternalID == "" {
				continue
			}
			res := tx.Model(&trackRow{}).Where("external_id = ?", f.ExternalID).Updates(map[string]any{
				"danceability":        f.Danceability,
				"energy":              f.Energy,
				"valence":             f.Valence,
				"tempo":               f.Tempo,
				"acousticness":        f.Acousticness,
				"instrumentalness":    f.Instrumentalness,
				"features_fetched_at": now,
				"updated_at":          now,
			})
			if res.Error != nil {
				return fmt.Errorf("failed to store audio features for %s: %w", f.ExternalID, res.Error)
			}
			if res.RowsAffected > 0 {
				touched = append(touched, f.ExternalID)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return touched, nil
}

// MarkFeaturesMissing records that the platform had no features for these
// tracks so enrichment does not ask again.
func (s *Store) MarkFeaturesMissing(ctx context.Context, externalIDs []string) error {
	if len(externalIDs) == 0 {
		return nil
	}
	err := s.db.WithContext(ctx).Model(&trackRow{}).
		Where("external_id in ?", externalIDs).
		Update("features_fetched_at", time.Now().UTC()).Error
	if err != nil {
		return fmt.Errorf("failed to mark %d tracks as missing features: %w", len(externalIDs), err)
	}
	return nil
}

// TracksMissingFeatures returns platform IDs of tracks never enriched.
// A limit of zero returns all of them.
func (s *Store) TracksMissingFeatures(ctx context.Context, limit int) ([]string, error) {
	q := s.db.WithContext(ctx).Model(&trackRow{}).
		Where("features_fetched_at is null").
		Order("external_id")
	if limit > 0 {
		q = q.Limit(limit)
	}

	var ids []string
	if err := q.Pluck("external_id", &ids).Error; err != nil {
		return nil, fmt.Errorf("failed to list tracks missing features: %w", err)
	}
	return ids, nil
}

// RecordPlay increments the play count and sets the last played time.
func (s *Store) RecordPlay(ctx context.Context, id string, at time.Time) (types.Track, error) {
	res := s.db.WithContext(ctx).Model(&trackRow{}).Where("id = ?", id).Updates(map[string]any{
		"play_count":     gorm.Expr("coalesce(play_count, 0) + 1"),
		"last_played_at": at.UTC(),
		"updated_at":     time.Now().UTC(),
	})
	if res.Error != nil {
		return types.Track{}, fmt.Errorf("failed to record play for track %s: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return types.Track{}, fmt.Errorf("track %s: %w", id, types.ErrNotFound)
	}
	return s.GetTrack(ctx, id)
}

// SetRating sets or clears a track rating. Ratings are 0 to 5 in half steps.
func (s *Store) SetRating(ctx context.Context, id string, rating *float64) (types.Track, error) {
	var value any
	if rating != nil {
		r := *rating
		if math.IsNaN(r) || r < 0 || r > 5 || math.Mod(r*2, 1) != 0 {
			return types.Track{}, fmt.Errorf("invalid rating %v: must be between 0 and 5 in steps of 0.5", r)
		}
		value = r
	}

	res := s.db.WithContext(ctx).Model(&trackRow{}).Where("id = ?", id).Updates(map[string]any{
		"rating":     value,
		"updated_at": time.Now().UTC(),
	})
	if res.Error != nil {
		return types.Track{}, fmt.Errorf("failed to set rating for track %s: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return types.Track{}, fmt.Errorf("track %s: %w", id, types.ErrNotFound)
	}
	return s.GetTrack(ctx, id)
}

// ExternalIDs maps internal track IDs to platform IDs, preserving order.
// IDs without a track are dropped.
func (s *Store) ExternalIDs(ctx context.Context, ids []string) ([]string, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var rows []trackRow
	if err := s.db.WithContext(ctx).Select("id", "external_id").Where("id in ?", ids).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to resolve external ids: %w", err)
	}
	byID := make(map[string]string, len(rows))
	for _, r := range rows {
		byID[r.ID] = r.ExternalID
	}
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if ext, ok := byID[id]; ok {
			out = append(out, ext)
		}
	}
	return slices.Clip(out), nil
}
