package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/toozej/smartlists/internal/criteria"
	"github.com/toozej/smartlists/internal/types"
)

var _ types.PlaylistStore = (*Store)(nil)

func (r playlistRow) toSmartPlaylist() (types.SmartPlaylist, error) {
	doc, err := criteria.ParseJSON([]byte(r.Criteria))
	if err != nil {
		return types.SmartPlaylist{}, fmt.Errorf("failed to decode criteria for playlist %s: %w", r.ID, err)
	}
	return types.SmartPlaylist{
		ID:                 r.ID,
		Name:               r.Name,
		Description:        r.Description,
		Criteria:           doc,
		IsActive:           r.IsActive,
		SpotifyPlaylistID:  r.SpotifyPlaylistID,
		TrackCount:         r.TrackCount,
		Fingerprint:        r.Fingerprint,
		PendingFingerprint: r.PendingFingerprint,
		LastSyncedAt:       timePtr(r.LastSyncedAt),
		CreatedAt:          r.CreatedAt,
		UpdatedAt:          r.UpdatedAt,
	}, nil
}

// GetSmartPlaylist returns a smart playlist by ID.
func (s *Store) GetSmartPlaylist(ctx context.Context, id string) (types.SmartPlaylist, error) {
	var row playlistRow
	if err := s.db.WithContext(ctx).Where("id = ?", id).Take(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return types.SmartPlaylist{}, fmt.Errorf("smart playlist %s: %w", id, types.ErrNotFound)
		}
		return types.SmartPlaylist{}, fmt.Errorf("failed to get smart playlist %s: %w", id, err)
	}
	return row.toSmartPlaylist()
}

// FindSmartPlaylistByName looks a playlist up case-insensitively.
func (s *Store) FindSmartPlaylistByName(ctx context.Context, name string) (types.SmartPlaylist, error) {
	var row playlistRow
	err := s.db.WithContext(ctx).Where("lower(name) = lower(?)", strings.TrimSpace(name)).Order("id").Take(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return types.SmartPlaylist{}, fmt.Errorf("smart playlist %q: %w", name, types.ErrNotFound)
		}
		return types.SmartPlaylist{}, fmt.Errorf("failed to find smart playlist %q: %w", name, err)
	}
	return row.toSmartPlaylist()
}

// ListSmartPlaylists returns playlists ordered by name.
func (s *Store) ListSmartPlaylists(ctx context.Context, activeOnly bool) ([]types.SmartPlaylist, error) {
	q := s.db.WithContext(ctx).Order("name, id")
	if activeOnly {
		q = q.Where("is_active = ?", true)
	}

	var rows []playlistRow
	if err := q.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list smart playlists: %w", err)
	}

	out := make([]types.SmartPlaylist, 0, len(rows))
	for _, r := range rows {
		p, err := r.toSmartPlaylist()
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

// SaveSmartPlaylist validates and stores a playlist definition. Sync state
// (fingerprints, external ID, last sync) is left untouched on update.
func (s *Store) SaveSmartPlaylist(ctx context.Context, p *types.SmartPlaylist) error {
	p.Name = strings.TrimSpace(p.Name)
	if p.Name == "" {
		return fmt.Errorf("failed to save smart playlist: name is required")
	}
	if err := criteria.Validate(p.Criteria); err != nil {
		return fmt.Errorf("failed to save smart playlist %s: %w", p.Name, err)
	}
	doc, err := p.Criteria.JSON()
	if err != nil {
		return fmt.Errorf("failed to encode criteria for %s: %w", p.Name, err)
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := time.Now().UTC()
		if p.ID == "" {
			p.ID = uuid.NewString()
		}

		var existing playlistRow
		err := tx.Where("id = ?", p.ID).Take(&existing).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			row := playlistRow{
				ID:                p.ID,
				Name:              p.Name,
				Description:       p.Description,
				Criteria:          doc,
				IsActive:          p.IsActive,
				SpotifyPlaylistID: p.SpotifyPlaylistID,
				CreatedAt:         now,
				UpdatedAt:         now,
			}
			if err := tx.Create(&row).Error; err != nil {
				return fmt.Errorf("failed to create smart playlist %s: %w", p.Name, err)
			}
			p.CreatedAt, p.UpdatedAt = now, now
			return nil
		case err != nil:
			return fmt.Errorf("failed to load smart playlist %s: %w", p.ID, err)
		}

		err = tx.Model(&playlistRow{}).Where("id = ?", p.ID).Updates(map[string]any{
			"name":        p.Name,
			"description": p.Description,
			"criteria":    doc,
			"is_active":   p.IsActive,
			"updated_at":  now,
		}).Error
		if err != nil {
			return fmt.Errorf("failed to update smart playlist %s: %w", p.Name, err)
		}
		p.CreatedAt, p.UpdatedAt = existing.CreatedAt, now
		return nil
	})
}

// DeleteSmartPlaylist removes a playlist definition. The external playlist is kept.
func (s *Store) DeleteSmartPlaylist(ctx context.Context, id string) error {
	res := s.db.WithContext(ctx).Where("id = ?", id).Delete(&playlistRow{})
	if res.Error != nil {
		return fmt.Errorf("failed to delete smart playlist %s: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("smart playlist %s: %w", id, types.ErrNotFound)
	}
	return nil
}

// UpdateMaterialization stores the latest evaluation result. The pending
// fingerprint is promoted only by CommitFingerprint after a full sync.
func (s *Store) UpdateMaterialization(ctx context.Context, id string, trackCount int, pendingFingerprint string) error {
	return s.updatePlaylist(ctx, id, "update materialization", map[string]any{
		"track_count":         trackCount,
		"pending_fingerprint": pendingFingerprint,
	})
}

// CommitFingerprint records a completed sync.
func (s *Store) CommitFingerprint(ctx context.Context, id, fingerprint string, syncedAt time.Time) error {
	return s.updatePlaylist(ctx, id, "commit fingerprint", map[string]any{
		"fingerprint":         fingerprint,
		"pending_fingerprint": "",
		"last_synced_at":      sql.NullTime{Time: syncedAt.UTC(), Valid: true},
	})
}

// SetSpotifyPlaylistID links a smart playlist to its external playlist.
func (s *Store) SetSpotifyPlaylistID(ctx context.Context, id, spotifyPlaylistID string) error {
	return s.updatePlaylist(ctx, id, "set spotify playlist id", map[string]any{
		"spotify_playlist_id": spotifyPlaylistID,
	})
}

func (s *Store) updatePlaylist(ctx context.Context, id, what string, changes map[string]any) error {
	changes["updated_at"] = time.Now().UTC()
	res := s.db.WithContext(ctx).Model(&playlistRow{}).Where("id = ?", id).Updates(changes)
	if res.Error != nil {
		return fmt.Errorf("failed to %s for smart playlist %s: %w", what, id, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("smart playlist %s: %w", id, types.ErrNotFound)
	}
	return nil
}
