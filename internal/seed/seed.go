// Package seed creates the default smart playlists during onboarding.
//
// Definitions come from a TOML file or from the built-in set. Each distinct
// definition set is applied at most once, guarded by a job idempotency key
// derived from its content.
package seed

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
	"github.com/sirupsen/logrus"

	"github.com/toozej/smartlists/internal/criteria"
	"github.com/toozej/smartlists/internal/jobs"
	"github.com/toozej/smartlists/internal/types"
)

// Target is the job target of every seed run.
const Target = "defaults"

// Definition is one default smart playlist.
type Definition struct {
	Name        string            `toml:"name"`
	Description string            `toml:"description"`
	Active      *bool             `toml:"active"`
	Criteria    criteria.Document `toml:"criteria"`
}

// File is the layout of a seed file.
type File struct {
	Playlists []Definition `toml:"playlist"`
}

func intPtr(v int) *int { return &v }

// Builtin returns the definitions used when no seed file is configured.
func Builtin() []Definition {
	return []Definition{
		{
			Name:        "Recently Added",
			Description: "Tracks added in the last 30 days",
			Criteria: criteria.Document{
				Rules:          []criteria.RuleDocument{criteria.Days(criteria.FieldDateAdded, criteria.OpInLast, 30)},
				Logic:          criteria.LogicAnd,
				OrderBy:        criteria.FieldDateAdded,
				OrderDirection: criteria.Descending,
			},
		},
		{
			Name:        "Top Rated",
			Description: "Four stars and up",
			Criteria: criteria.Document{
				Rules:          []criteria.RuleDocument{criteria.Number(criteria.FieldRating, criteria.OpGreaterThan, 3.5)},
				Logic:          criteria.LogicAnd,
				OrderBy:        criteria.FieldRating,
				OrderDirection: criteria.Descending,
				Limit:          intPtr(100),
			},
		},
		{
			Name:        "Heavy Rotation",
			Description: "Most played this month",
			Criteria: criteria.Document{
				Rules: []criteria.RuleDocument{
					criteria.Days(criteria.FieldLastPlayed, criteria.OpInLast, 30),
					criteria.Number(criteria.FieldPlayCount, criteria.OpGreaterThan, 5),
				},
				Logic:          criteria.LogicAnd,
				OrderBy:        criteria.FieldPlayCount,
				OrderDirection: criteria.Descending,
				Limit:          intPtr(50),
			},
		},
		{
			Name:        "Never Played",
			Description: "Tracks waiting for a first listen",
			Criteria: criteria.Document{
				Rules: []criteria.RuleDocument{criteria.Bare(criteria.FieldLastPlayed, criteria.OpIsNull)},
				Logic: criteria.LogicAnd,
			},
		},
		{
			Name:        "Untagged",
			Description: "Tracks without any tag",
			Criteria: criteria.Document{
				Rules: []criteria.RuleDocument{criteria.Bare(criteria.FieldTag, criteria.OpHasNoTags)},
				Logic: criteria.LogicAnd,
			},
		},
	}
}

// Parse decodes and validates a seed file.
func Parse(data []byte) ([]Definition, error) {
	var f File
	md, err := toml.Decode(string(data), &f)
	if err != nil {
		return nil, fmt.Errorf("failed to decode seed file: %w", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("failed to decode seed file: unknown key %s", undecoded[0])
	}

	seen := make(map[string]bool, len(f.Playlists))
	for i, d := range f.Playlists {
		if d.Name == "" {
			return nil, fmt.Errorf("seed playlist %d: name is required", i)
		}
		if seen[d.Name] {
			return nil, fmt.Errorf("seed playlist %q is defined twice", d.Name)
		}
		seen[d.Name] = true
		if err := criteria.Validate(d.Criteria); err != nil {
			return nil, fmt.Errorf("seed playlist %q: %w", d.Name, err)
		}
	}
	return f.Playlists, nil
}

// Encode renders definitions as a seed file.
func Encode(defs []Definition) ([]byte, error) {
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(File{Playlists: defs}); err != nil {
		return nil, fmt.Errorf("failed to encode seed file: %w", err)
	}
	return buf.Bytes(), nil
}

// Key is the idempotency key of a definition set.
func Key(data []byte) string {
	sum := sha256.Sum256(data)
	return "seed:" + hex.EncodeToString(sum[:8])
}

// Store is where seeded playlists are written.
type Store interface {
	FindSmartPlaylistByName(ctx context.Context, name string) (types.SmartPlaylist, error)
	SaveSmartPlaylist(ctx context.Context, p *types.SmartPlaylist) error
}

// Seeder applies a definition set to the store.
type Seeder struct {
	store  Store
	path   string
	logger *logrus.Logger
}

// New creates a Seeder. An empty path uses the built-in definitions.
func New(store Store, path string, logger *logrus.Logger) *Seeder {
	return &Seeder{store: store, path: path, logger: logger}
}

// Load returns the definitions and their idempotency key.
func (s *Seeder) Load() ([]Definition, string, error) {
	if s.path == "" {
		data, err := Encode(Builtin())
		if err != nil {
			return nil, "", err
		}
		return Builtin(), Key(data), nil
	}

	data, err := os.ReadFile(filepath.Clean(s.path))
	if err != nil {
		return nil, "", fmt.Errorf("failed to read seed file %s: %w", s.path, err)
	}
	defs, err := Parse(data)
	if err != nil {
		return nil, "", err
	}
	return defs, Key(data), nil
}

// Apply creates every definition whose name is not taken yet. Existing
// playlists are left as they are. TotalTracks counts definitions and
// NewTracks the playlists created.
func (s *Seeder) Apply(ctx context.Context, defs []Definition) (types.SyncResult, error) {
	res := types.SyncResult{TotalTracks: len(defs), Errors: []string{}}
	log := s.logger.WithFields(logrus.Fields{
		"component": "seed",
		"operation": "apply",
	})

	for _, d := range defs {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		_, err := s.store.FindSmartPlaylistByName(ctx, d.Name)
		if err == nil {
			log.WithField("name", d.Name).Debug("Smart playlist already exists")
			continue
		}
		if !errors.Is(err, types.ErrNotFound) {
			return res, err
		}

		active := true
		if d.Active != nil {
			active = *d.Active
		}
		p := types.SmartPlaylist{
			Name:        d.Name,
			Description: d.Description,
			Criteria:    d.Criteria,
			IsActive:    active,
		}
		if err := s.store.SaveSmartPlaylist(ctx, &p); err != nil {
			res.Errors = append(res.Errors, err.Error())
			continue
		}
		res.NewTracks++
		log.WithFields(logrus.Fields{
			"name":        p.Name,
			"playlist_id": p.ID,
		}).Info("Seeded smart playlist")
	}

	if len(res.Errors) > 0 && res.NewTracks == 0 {
		return res, fmt.Errorf("failed to seed any of %d smart playlists", len(res.Errors))
	}
	return res, nil
}

// Register installs the seed handler on m.
func (s *Seeder) Register(m *jobs.Manager) {
	m.Handle(jobs.KindSeed, func(ctx context.Context, job jobs.Job, report jobs.ProgressFunc) (types.SyncResult, error) {
		defs, _, err := s.Load()
		if err != nil {
			return types.SyncResult{}, err
		}
		report("seed", 0, len(defs))
		res, err := s.Apply(ctx, defs)
		report("seed", len(defs), len(defs))
		return res, err
	})
}

// Enqueue schedules a seed run. A definition set that was already seeded
// returns the earlier job with joined set.
func (s *Seeder) Enqueue(ctx context.Context, m *jobs.Manager) (jobs.Job, bool, error) {
	_, key, err := s.Load()
	if err != nil {
		return jobs.Job{}, false, err
	}
	return m.Enqueue(ctx, jobs.Payload{Kind: jobs.KindSeed, Target: Target, IdempotencyKey: key})
}
