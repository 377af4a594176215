package cmd

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/toozej/smartlists/internal/search"
	"github.com/toozej/smartlists/internal/types"
)

func TestNewSearchCmd(t *testing.T) {
	cmd := newSearchCmd()

	assert.NotNil(t, cmd)
	assert.Equal(t, "search [query]", cmd.Use)
	assert.Contains(t, cmd.Long, "fuzzy matching")
	assert.Error(t, cmd.Args(cmd, []string{}))
	assert.NoError(t, cmd.Args(cmd, []string{"jazz"}))
}

func TestDisplaySearchResults(t *testing.T) {
	synced := time.Date(2025, 10, 1, 9, 30, 0, 0, time.UTC)
	matches := []search.PlaylistMatch{
		{Playlist: types.SmartPlaylist{ID: "p1", Name: "Late Night Jazz", IsActive: true, LastSyncedAt: &synced}, Confidence: 0.9},
		{Playlist: types.SmartPlaylist{ID: "p2", Name: "Jazz Archive"}, Confidence: 0.85},
	}

	var buf bytes.Buffer
	displaySearchResults(&buf, matches, "jazz")
	out := buf.String()

	assert.Contains(t, out, "Search Results for 'jazz'")
	assert.Contains(t, out, "Found 2 matching smart playlist(s)")
	assert.Contains(t, out, "1. Late Night Jazz (0.90, active)")
	assert.Contains(t, out, "Last synced: Oct 1, 2025 09:30")
	assert.Contains(t, out, "2. Jazz Archive (0.85, inactive)")
	assert.Contains(t, out, "ID: p2")
}
