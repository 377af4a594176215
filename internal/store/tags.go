package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/toozej/smartlists/internal/types"
)

// SaveTag inserts or updates a tag. An empty ID is assigned a new one.
// Rules reference tags by ID, so renaming never changes rule results.
func (s *Store) SaveTag(ctx context.Context, tag *types.Tag) error {
	tag.Name = strings.TrimSpace(tag.Name)
	if tag.Name == "" {
		return fmt.Errorf("failed to save tag: name is required")
	}
	if tag.ID == "" {
		tag.ID = uuid.NewString()
	}

	row := tagRow{ID: tag.ID, Name: tag.Name, Color: tag.Color}
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(&row).Error
	if err != nil {
		return fmt.Errorf("failed to save tag %s: %w", tag.Name, err)
	}
	return nil
}

// RenameTag changes a tag's display name.
func (s *Store) RenameTag(ctx context.Context, id, name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("failed to rename tag %s: name is required", id)
	}
	res := s.db.WithContext(ctx).Model(&tagRow{}).Where("id = ?", id).Update("name", name)
	if res.Error != nil {
		return fmt.Errorf("failed to rename tag %s: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("tag %s: %w", id, types.ErrNotFound)
	}
	return nil
}

// DeleteTag removes a tag and detaches it from every track.
func (s *Store) DeleteTag(ctx context.Context, id string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("tag_id = ?", id).Delete(&trackTagRow{}).Error; err != nil {
			return fmt.Errorf("failed to detach tag %s: %w", id, err)
		}
		res := tx.Where("id = ?", id).Delete(&tagRow{})
		if res.Error != nil {
			return fmt.Errorf("failed to delete tag %s: %w", id, res.Error)
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("tag %s: %w", id, types.ErrNotFound)
		}
		return nil
	})
}

// ListTags returns all tags ordered by name.
func (s *Store) ListTags(ctx context.Context) ([]types.Tag, error) {
	var rows []tagRow
	if err := s.db.WithContext(ctx).Order("name, id").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list tags: %w", err)
	}
	tags := make([]types.Tag, len(rows))
	for i, r := range rows {
		tags[i] = types.Tag{ID: r.ID, Name: r.Name, Color: r.Color}
	}
	return tags, nil
}

// FindTagByName looks a tag up case-insensitively.
func (s *Store) FindTagByName(ctx context.Context, name string) (types.Tag, error) {
	var row tagRow
	err := s.db.WithContext(ctx).Where("lower(name) = lower(?)", strings.TrimSpace(name)).Order("id").Take(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return types.Tag{}, fmt.Errorf("tag %q: %w", name, types.ErrNotFound)
		}
		return types.Tag{}, fmt.Errorf("failed to find tag %q: %w", name, err)
	}
	return types.Tag{ID: row.ID, Name: row.Name, Color: row.Color}, nil
}

// TagTrack attaches a tag to a track. Tagging twice is a no-op.
func (s *Store) TagTrack(ctx context.Context, trackID, tagID string) error {
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&trackTagRow{TrackID: trackID, TagID: tagID}).Error
	if err != nil {
		return fmt.Errorf("failed to tag track %s with %s: %w", trackID, tagID, err)
	}
	return nil
}

// UntagTrack detaches a tag from a track.
func (s *Store) UntagTrack(ctx context.Context, trackID, tagID string) error {
	err := s.db.WithContext(ctx).
		Where("track_id = ? and tag_id = ?", trackID, tagID).
		Delete(&trackTagRow{}).Error
	if err != nil {
		return fmt.Errorf("failed to untag track %s from %s: %w", trackID, tagID, err)
	}
	return nil
}
