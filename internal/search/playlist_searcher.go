// Package search resolves smart playlists from approximate operator input.
package search

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/sahilm/fuzzy"
	"github.com/sirupsen/logrus"

	"github.com/toozej/smartlists/internal/types"
)

// ErrNoMatch is returned when no smart playlist resembles the query.
var ErrNoMatch = errors.New("no smart playlist matches query")

// ErrAmbiguous is returned when the best match is not confident enough to act on.
var ErrAmbiguous = errors.New("smart playlist query is ambiguous")

// PlaylistLister lists smart playlists.
type PlaylistLister interface {
	ListSmartPlaylists(ctx context.Context, activeOnly bool) ([]types.SmartPlaylist, error)
}

// PlaylistMatch represents a search result with its confidence score
type PlaylistMatch struct {
	Playlist   types.SmartPlaylist `json:"playlist"`
	Query      string              `json:"query"`
	Confidence float64             `json:"confidence"`
}

// IsHighConfidence returns true if the match confidence is at least 0.8
func (m PlaylistMatch) IsHighConfidence() bool {
	return m.Confidence >= 0.8
}

// IsLowConfidence returns true if the match confidence is below 0.5
func (m PlaylistMatch) IsLowConfidence() bool {
	return m.Confidence < 0.5
}

// PlaylistSearcher implements fuzzy lookup of smart playlists by name
type PlaylistSearcher struct {
	store  PlaylistLister
	logger *logrus.Logger
}

// NewPlaylistSearcher creates a new playlist searcher
func NewPlaylistSearcher(store PlaylistLister, logger *logrus.Logger) *PlaylistSearcher {
	return &PlaylistSearcher{
		store:  store,
		logger: logger,
	}
}

type playlistNames []types.SmartPlaylist

func (p playlistNames) String(i int) string { return strings.ToLower(p[i].Name) }
func (p playlistNames) Len() int            { return len(p) }

// Rank returns every playlist that fuzzily matches query, best first.
func (s *PlaylistSearcher) Rank(ctx context.Context, query string) ([]PlaylistMatch, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("playlist query cannot be empty")
	}

	playlists, err := s.store.ListSmartPlaylists(ctx, false)
	if err != nil {
		return nil, fmt.Errorf("failed to list smart playlists: %w", err)
	}

	var out []PlaylistMatch
	for _, m := range fuzzy.FindFrom(strings.ToLower(query), playlistNames(playlists)) {
		p := playlists[m.Index]
		out = append(out, PlaylistMatch{
			Playlist:   p,
			Query:      query,
			Confidence: calculateMatchConfidence(query, p.Name),
		})
	}
	// exact and substring hits that fuzzy scored low still rank by confidence
	sort.SliceStable(out, func(i, j int) bool { return out[i].Confidence > out[j].Confidence })

	s.logger.WithFields(logrus.Fields{
		"component": "playlist_searcher",
		"operation": "rank",
		"query":     query,
		"matches":   len(out),
	}).Debug("Ranked smart playlists")

	return out, nil
}

// Resolve finds the smart playlist an operator meant. An exact ID wins
// outright; otherwise the best name match must be high confidence and
// clearly ahead of the runner-up.
func (s *PlaylistSearcher) Resolve(ctx context.Context, query string) (*PlaylistMatch, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("playlist query cannot be empty")
	}

	playlists, err := s.store.ListSmartPlaylists(ctx, false)
	if err != nil {
		return nil, fmt.Errorf("failed to list smart playlists: %w", err)
	}
	for _, p := range playlists {
		if p.ID == query {
			return &PlaylistMatch{Playlist: p, Query: query, Confidence: 1.0}, nil
		}
	}

	matches, err := s.Rank(ctx, query)
	if err != nil {
		return nil, err
	}
	if len(matches) == 0 {
		return nil, fmt.Errorf("%w: %q", ErrNoMatch, query)
	}

	best := matches[0]
	if !best.IsHighConfidence() || (len(matches) > 1 && matches[1].Confidence == best.Confidence) {
		names := make([]string, 0, len(matches))
		for _, m := range matches {
			names = append(names, m.Playlist.Name)
		}
		return nil, fmt.Errorf("%w: %q could be %s", ErrAmbiguous, query, strings.Join(names, ", "))
	}

	s.logger.WithFields(logrus.Fields{
		"component":   "playlist_searcher",
		"operation":   "resolve",
		"query":       query,
		"playlist_id": best.Playlist.ID,
		"name":        best.Playlist.Name,
		"confidence":  best.Confidence,
	}).Info("Resolved smart playlist")

	return &best, nil
}

// calculateMatchConfidence calculates a confidence score between 0.0 and 1.0
// for how well the found item matches the search query
func calculateMatchConfidence(query, itemName string) float64 {
	normalizedQuery := strings.ToLower(strings.TrimSpace(query))
	normalizedItem := strings.ToLower(strings.TrimSpace(itemName))

	if normalizedQuery == normalizedItem {
		return 1.0
	}

	if strings.Contains(normalizedItem, normalizedQuery) {
		ratio := float64(len(normalizedQuery)) / float64(len(normalizedItem))
		return 0.8 + (ratio * 0.2)
	}

	if strings.Contains(normalizedQuery, normalizedItem) {
		ratio := float64(len(normalizedItem)) / float64(len(normalizedQuery))
		return 0.7 + (ratio * 0.2)
	}

	matches := fuzzy.Find(normalizedQuery, []string{normalizedItem})
	if len(matches) > 0 {
		// fuzzy scores are unbounded; map them onto 0.1..0.7
		fuzzyScore := float64(matches[0].Score)
		maxExpectedScore := float64(len(normalizedQuery) * 2)
		confidence := (fuzzyScore / maxExpectedScore) * 0.7
		return min(max(confidence, 0.1), 0.7)
	}

	return 0.1
}
