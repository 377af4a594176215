package store

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/toozej/smartlists/internal/types"
)

// AlbumArtistIDsForTracks returns the distinct album and artist IDs of the given tracks.
func (s *Store) AlbumArtistIDsForTracks(ctx context.Context, trackIDs []string) (albumIDs, artistIDs []string, err error) {
	if len(trackIDs) == 0 {
		return nil, nil, nil
	}
	db := s.db.WithContext(ctx)

	if err := db.Model(&trackRow{}).Distinct("album_id").
		Where("id in ? and album_id != ''", trackIDs).Order("album_id").
		Pluck("album_id", &albumIDs).Error; err != nil {
		return nil, nil, fmt.Errorf("failed to resolve albums for %d tracks: %w", len(trackIDs), err)
	}
	if err := db.Model(&trackRow{}).Distinct("artist_id").
		Where("id in ? and artist_id != ''", trackIDs).Order("artist_id").
		Pluck("artist_id", &artistIDs).Error; err != nil {
		return nil, nil, fmt.Errorf("failed to resolve artists for %d tracks: %w", len(trackIDs), err)
	}
	return albumIDs, artistIDs, nil
}

// RecomputeAlbums rebuilds the aggregate rows for the given albums from
// their tracks. Albums with no remaining tracks are removed.
func (s *Store) RecomputeAlbums(ctx context.Context, albumIDs []string) error {
	return s.recompute(ctx, albumIDs, "album_id", "album", func(r aggregateRow) any { return &albumRow{r} }, &albumRow{})
}

// RecomputeArtists rebuilds the aggregate rows for the given artists.
func (s *Store) RecomputeArtists(ctx context.Context, artistIDs []string) error {
	return s.recompute(ctx, artistIDs, "artist_id", "artist", func(r aggregateRow) any { return &artistRow{r} }, &artistRow{})
}

func (s *Store) recompute(ctx context.Context, ids []string, idColumn, nameColumn string, wrap func(aggregateRow) any, model any) error {
	if len(ids) == 0 {
		return nil
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var rows []aggregateRow
		err := tx.Model(&trackRow{}).
			Select(idColumn+" as id",
				"max("+nameColumn+") as name",
				"count(*) as track_count",
				"count(rating) as rated_count",
				"avg(rating) as average_rating",
				"cast(count(energy) as real) / count(*) as feature_coverage").
			Where(idColumn+" in ?", ids).
			Group(idColumn).
			Scan(&rows).Error
		if err != nil {
			return fmt.Errorf("failed to aggregate %ss: %w", nameColumn, err)
		}

		seen := make([]string, 0, len(rows))
		for _, r := range rows {
			if err := tx.Clauses(clause.OnConflict{UpdateAll: true}).Create(wrap(r)).Error; err != nil {
				return fmt.Errorf("failed to save %s %s: %w", nameColumn, r.ID, err)
			}
			seen = append(seen, r.ID)
		}

		var gone []string
		for _, id := range ids {
			if !slices.Contains(seen, id) {
				gone = append(gone, id)
			}
		}
		if len(gone) > 0 {
			if err := tx.Where("id in ?", gone).Delete(model).Error; err != nil {
				return fmt.Errorf("failed to remove empty %ss: %w", nameColumn, err)
			}
		}
		return nil
	})
}

// GetAlbum returns an album aggregate.
func (s *Store) GetAlbum(ctx context.Context, id string) (types.Album, error) {
	var row albumRow
	if err := s.db.WithContext(ctx).Where("id = ?", id).Take(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return types.Album{}, fmt.Errorf("album %s: %w", id, types.ErrNotFound)
		}
		return types.Album{}, fmt.Errorf("failed to get album %s: %w", id, err)
	}
	return row.toAlbum(), nil
}

// GetArtist returns an artist aggregate.
func (s *Store) GetArtist(ctx context.Context, id string) (types.Artist, error) {
	var row artistRow
	if err := s.db.WithContext(ctx).Where("id = ?", id).Take(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return types.Artist{}, fmt.Errorf("artist %s: %w", id, types.ErrNotFound)
		}
		return types.Artist{}, fmt.Errorf("failed to get artist %s: %w", id, err)
	}
	return row.toArtist(), nil
}
