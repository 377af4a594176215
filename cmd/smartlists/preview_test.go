package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/toozej/smartlists/internal/criteria"
	"github.com/toozej/smartlists/internal/evaluator"
	"github.com/toozej/smartlists/internal/search"
	"github.com/toozej/smartlists/internal/types"
)

const recentFavourites = `
logic: AND
orderBy: rating
orderDirection: desc
limit: 2
rules:
  - field: rating
    operator: greaterThan
    numberValue: 3
  - field: dateAdded
    operator: inLast
    daysValue: 30
`

func float64Ptr(v float64) *float64  { return &v }
func timePtr(v time.Time) *time.Time { return &v }

func previewLibrary(now time.Time) *evaluator.Snapshot {
	return evaluator.NewSnapshot([]types.Track{
		{ID: "t1", Title: "So What", Artist: "Miles Davis", Rating: float64Ptr(5), DateAdded: timePtr(now.AddDate(0, 0, -3))},
		{ID: "t2", Title: "Naima", Artist: "John Coltrane", Rating: float64Ptr(4.5), DateAdded: timePtr(now.AddDate(0, 0, -10))},
		{ID: "t3", Title: "Blue in Green", Artist: "Miles Davis", Rating: float64Ptr(4), DateAdded: timePtr(now.AddDate(0, 0, -20))},
		{ID: "t4", Title: "Old Favourite", Artist: "Bill Evans", Rating: float64Ptr(5), DateAdded: timePtr(now.AddDate(0, -6, 0))},
		{ID: "t5", Title: "Skipped", Artist: "Someone", Rating: float64Ptr(2), DateAdded: timePtr(now.AddDate(0, 0, -1))},
	})
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func TestPreviewFromFile(t *testing.T) {
	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	path := writeFile(t, "recent.yaml", recentFavourites)

	doc, err := previewDocument(context.Background(), nil, path, nil)
	require.NoError(t, err)

	tracks, err := preview(doc, previewLibrary(now), now)
	require.NoError(t, err)
	require.Len(t, tracks, 2)
	assert.Equal(t, "t1", tracks[0].ID)
	assert.Equal(t, "t2", tracks[1].ID)
}

func TestPreviewInvalidCriteria(t *testing.T) {
	doc := criteria.Document{Rules: []criteria.RuleDocument{criteria.Days(criteria.FieldRating, criteria.OpInLast, 3)}}
	_, err := preview(doc, previewLibrary(time.Now()), time.Now())

	var verr *criteria.ValidationError
	assert.ErrorAs(t, err, &verr)
}

func TestPreviewDocument(t *testing.T) {
	lib := setupTestStore(t)
	stored := savePlaylist(t, lib, "Highly Rated")
	searcher := search.NewPlaylistSearcher(lib, quietLogger())
	jsonPath := writeFile(t, "c.json", `{"logic":"OR","rules":[{"field":"tag","operator":"hasNoTags"}]}`)

	tests := []struct {
		name      string
		file      string
		args      []string
		wantLogic criteria.Logic
		wantErr   bool
	}{
		{name: "stored playlist", args: []string{"highly rated"}, wantLogic: stored.Criteria.Logic},
		{name: "json file", file: jsonPath, wantLogic: criteria.LogicOr},
		{name: "both", file: jsonPath, args: []string{"highly rated"}, wantErr: true},
		{name: "neither", wantErr: true},
		{name: "unsupported extension", file: writeFile(t, "c.txt", "{}"), wantErr: true},
		{name: "missing playlist", args: []string{"qqqqqq"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc, err := previewDocument(context.Background(), searcher, tt.file, tt.args)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantLogic, doc.Logic)
			assert.NotEmpty(t, doc.Rules)
		})
	}
}

func TestPrintTracks(t *testing.T) {
	lastPlayed := time.Date(2025, 3, 4, 0, 0, 0, 0, time.UTC)
	tracks := []types.Track{
		{Title: "So What", Artist: "Miles Davis", Album: "Kind of Blue", Rating: float64Ptr(5), PlayCount: 12, LastPlayed: &lastPlayed},
		{Title: "Naima", Artist: "John Coltrane"},
	}

	var buf bytes.Buffer
	printTracks(&buf, tracks)
	out := buf.String()
	assert.Contains(t, out, "2 matching track(s)")
	assert.Contains(t, out, "1. Miles Davis - So What (Kind of Blue)")
	assert.Contains(t, out, "rating 5.0, 12 plays, last played Mar 4, 2025")
	assert.Contains(t, out, "2. John Coltrane - Naima")

	buf.Reset()
	require.NoError(t, printTracksJSON(&buf, tracks))
	var decoded []types.Track
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Len(t, decoded, 2)
}
