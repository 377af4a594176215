// Package tracker accumulates the entities touched during one sync pass.
package tracker

import (
	"slices"
	"sync"
)

// Summary lists the unique IDs recorded since the last Clear.
type Summary struct {
	TrackIDs     []string `json:"trackIds"`
	AlbumIDs     []string `json:"albumIds"`
	ArtistIDs    []string `json:"artistIds"`
	TotalUpdates int      `json:"totalUpdates"`
}

// Empty reports whether nothing was recorded.
func (s Summary) Empty() bool {
	return s.TotalUpdates == 0
}

// Tracker is a set-backed accumulator. Repeated touches count once.
// It is safe for concurrent use.
type Tracker struct {
	mu      sync.Mutex
	tracks  map[string]struct{}
	albums  map[string]struct{}
	artists map[string]struct{}
}

// New returns an empty tracker.
func New() *Tracker {
	t := &Tracker{}
	t.reset()
	return t
}

func (t *Tracker) reset() {
	t.tracks = make(map[string]struct{})
	t.albums = make(map[string]struct{})
	t.artists = make(map[string]struct{})
}

// AddTrack records a touched track. Empty IDs are ignored.
func (t *Tracker) AddTrack(id string) { t.add(t.tracks, id) }

// AddAlbum records a touched album. Empty IDs are ignored.
func (t *Tracker) AddAlbum(id string) { t.add(t.albums, id) }

// AddArtist records a touched artist. Empty IDs are ignored.
func (t *Tracker) AddArtist(id string) { t.add(t.artists, id) }

func (t *Tracker) add(set map[string]struct{}, id string) {
	if id == "" {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	set[id] = struct{}{}
}

// Clear drops everything recorded so far.
func (t *Tracker) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.reset()
}

// Summary returns the recorded IDs, each list sorted.
func (t *Tracker) Summary() Summary {
	t.mu.Lock()
	defer t.mu.Unlock()

	s := Summary{
		TrackIDs:  sortedKeys(t.tracks),
		AlbumIDs:  sortedKeys(t.albums),
		ArtistIDs: sortedKeys(t.artists),
	}
	s.TotalUpdates = len(s.TrackIDs) + len(s.AlbumIDs) + len(s.ArtistIDs)
	return s
}

func sortedKeys(set map[string]struct{}) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
