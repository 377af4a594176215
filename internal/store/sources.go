package store

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/toozej/smartlists/internal/types"
)

func (r mirrorSourceRow) toMirrorSource() types.MirrorSource {
	return types.MirrorSource{
		Kind:           types.SourceKind(r.Kind),
		RemoteID:       r.RemoteID,
		SnapshotID:     r.SnapshotID,
		LastMirroredAt: timePtr(r.LastMirroredAt),
	}
}

// GetMirrorSource returns the stored state of a mirror source by key.
func (s *Store) GetMirrorSource(ctx context.Context, key string) (types.MirrorSource, error) {
	var row mirrorSourceRow
	if err := s.db.WithContext(ctx).Where("source_key = ?", key).Take(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return types.MirrorSource{}, fmt.Errorf("mirror source %s: %w", key, types.ErrNotFound)
		}
		return types.MirrorSource{}, fmt.Errorf("failed to get mirror source %s: %w", key, err)
	}
	return row.toMirrorSource(), nil
}

// SaveMirrorSource upserts a mirror source's snapshot state.
func (s *Store) SaveMirrorSource(ctx context.Context, src types.MirrorSource) error {
	row := mirrorSourceRow{
		SourceKey:      src.Key(),
		Kind:           string(src.Kind),
		RemoteID:       src.RemoteID,
		SnapshotID:     src.SnapshotID,
		LastMirroredAt: nullTime(src.LastMirroredAt),
	}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{UpdateAll: true}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("failed to save mirror source %s: %w", row.SourceKey, err)
	}
	return nil
}

// ListMirrorSources returns every known mirror source ordered by key.
func (s *Store) ListMirrorSources(ctx context.Context) ([]types.MirrorSource, error) {
	var rows []mirrorSourceRow
	if err := s.db.WithContext(ctx).Order("source_key").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list mirror sources: %w", err)
	}
	out := make([]types.MirrorSource, len(rows))
	for i, r := range rows {
		out[i] = r.toMirrorSource()
	}
	return out, nil
}
