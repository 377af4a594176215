package evaluator

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/toozej/smartlists/internal/criteria"
	"github.com/toozej/smartlists/internal/types"
)

var now = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func rating(v float64) *float64 { return &v }
func count(v int) *int          { return &v }
func ago(days int) *time.Time {
	ts := now.Add(-time.Duration(days) * 24 * time.Hour)
	return &ts
}
func day(month time.Month, d int) *time.Time {
	ts := time.Date(2025, month, d, 9, 0, 0, 0, time.UTC)
	return &ts
}

func fixtureLibrary() *Snapshot {
	return NewSnapshot([]types.Track{
		{ID: "t01", Title: "So What", Artist: "Miles Davis", Album: "Kind of Blue", Rating: rating(5), PlayCount: 40, DurationMs: count(562000), LastPlayed: ago(2), DateAdded: day(time.January, 10), TagIDs: []string{"chill"}},
		{ID: "t02", Title: "Blue in Green", Artist: "Miles Davis", Album: "Kind of Blue", Rating: rating(4.5), PlayCount: 12, DurationMs: count(337000), LastPlayed: ago(40), DateAdded: day(time.January, 10), TagIDs: []string{"chill", "late"}},
		{ID: "t03", Title: "Giant Steps", Artist: "John Coltrane", Album: "Giant Steps", Rating: rating(5), PlayCount: 25, DurationMs: count(286000), DateAdded: day(time.February, 1)},
		{ID: "t04", Title: "Naima", Artist: "John Coltrane", Album: "Giant Steps", Rating: rating(3.5), PlayCount: 8, DurationMs: count(261000), LastPlayed: ago(1), DateAdded: day(time.February, 1), TagIDs: []string{"late"}},
		{ID: "t05", Title: "Take Five", Artist: "Dave Brubeck", Album: "Time Out", Rating: rating(4), PlayCount: 30, DurationMs: count(324000), LastPlayed: ago(10), DateAdded: day(time.March, 15)},
		{ID: "t06", Title: "Blue Rondo à la Turk", Artist: "Dave Brubeck", Album: "Time Out", PlayCount: 0, DurationMs: count(404000), DateAdded: day(time.March, 15)},
		{ID: "t07", Title: "Straight, No Chaser", Artist: "Thelonious Monk", Album: "Straight, No Chaser", Rating: rating(5), PlayCount: 3, LastPlayed: ago(100), DateAdded: day(time.April, 20), TagIDs: []string{"chill"}},
		{ID: "t08", Title: "Ruby, My Dear", Artist: "Thelonious Monk", Album: "Monk's Music", Rating: rating(2), PlayCount: 1, DurationMs: count(375000), LastPlayed: ago(200), DateAdded: day(time.May, 25)},
		{ID: "t09", Title: "ÉTUDE", Artist: "Ahmad Jamal", Album: "At the Pershing", Rating: rating(3), PlayCount: 5, DurationMs: count(200000), LastPlayed: ago(5)},
		{ID: "t10", Title: "Poinciana", Artist: "Ahmad Jamal", Album: "At the Pershing", Rating: rating(4), PlayCount: 19, DurationMs: count(486000), LastPlayed: ago(3), DateAdded: day(time.May, 30), TagIDs: []string{"late"}},
	})
}

func limit(v int) *int { return &v }

func TestEvaluateGolden(t *testing.T) {
	lib := fixtureLibrary()

	cases := []struct {
		name string
		doc  criteria.Document
	}{
		{"five-stars", criteria.Document{
			OrderBy: criteria.FieldTitle,
			Rules:   []criteria.RuleDocument{criteria.Number(criteria.FieldRating, criteria.OpEquals, 5)},
		}},
		{"rated-above-3.5", criteria.Document{
			OrderBy: criteria.FieldRating, OrderDirection: criteria.Descending,
			Rules: []criteria.RuleDocument{criteria.Number(criteria.FieldRating, criteria.OpGreaterThan, 3.5)},
		}},
		{"recently-played", criteria.Document{
			OrderBy: criteria.FieldLastPlayed, OrderDirection: criteria.Descending,
			Rules: []criteria.RuleDocument{criteria.Days(criteria.FieldLastPlayed, criteria.OpInLast, 7)},
		}},
		{"not-recently-played", criteria.Document{
			Rules: []criteria.RuleDocument{criteria.Days(criteria.FieldLastPlayed, criteria.OpNotInLast, 30)},
		}},
		{"chill-or-late", criteria.Document{
			Logic:   criteria.LogicOr,
			OrderBy: criteria.FieldPlayCount, OrderDirection: criteria.Descending,
			Limit: limit(3),
			Rules: []criteria.RuleDocument{
				criteria.Text(criteria.FieldTag, criteria.OpHasTag, "chill"),
				criteria.Text(criteria.FieldTag, criteria.OpHasTag, "late"),
			},
		}},
		{"untagged-long", criteria.Document{
			OrderBy: criteria.FieldDuration,
			Rules: []criteria.RuleDocument{
				criteria.Bare(criteria.FieldTag, criteria.OpHasNoTags),
				criteria.Number(criteria.FieldDuration, criteria.OpGreaterThan, 300),
			},
		}},
		{"title-folding", criteria.Document{
			Logic:   criteria.LogicOr,
			OrderBy: criteria.FieldTitle,
			Rules: []criteria.RuleDocument{
				criteria.Text(criteria.FieldTitle, criteria.OpContains, "étude"),
				criteria.Text(criteria.FieldArtist, criteria.OpStartsWith, "miles"),
			},
		}},
		{"missing-duration-or-rating", criteria.Document{
			Logic:   criteria.LogicOr,
			OrderBy: criteria.FieldArtist,
			Rules: []criteria.RuleDocument{
				criteria.Bare(criteria.FieldDuration, criteria.OpIsNull),
				criteria.Bare(criteria.FieldRating, criteria.OpIsNull),
			},
		}},
		{"all-by-date-added", criteria.Document{
			OrderBy: criteria.FieldDateAdded, OrderDirection: criteria.Ascending,
		}},
		{"artist-not-contains", criteria.Document{
			OrderBy: criteria.FieldTitle, OrderDirection: criteria.Descending,
			Limit: limit(2),
			Rules: []criteria.RuleDocument{criteria.Text(criteria.FieldArtist, criteria.OpNotContains, "davis")},
		}},
	}

	var buf bytes.Buffer
	for _, tc := range cases {
		ids, err := EvaluateDocument(tc.doc, lib, now)
		require.NoError(t, err, tc.name)
		fmt.Fprintf(&buf, "%s: %s\n", tc.name, strings.Join(ids, " "))
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, "evaluate", buf.Bytes())
}

func TestEvaluateAndScenario(t *testing.T) {
	doc := criteria.Document{
		Logic: criteria.LogicAnd,
		Rules: []criteria.RuleDocument{criteria.Number(criteria.FieldRating, criteria.OpEquals, 5)},
	}

	ids, err := EvaluateDocument(doc, fixtureLibrary(), now)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"t01", "t03", "t07"}, ids)
	// default order is dateAdded descending
	assert.Equal(t, []string{"t07", "t03", "t01"}, ids)
}

func TestEvaluateRatingGranularity(t *testing.T) {
	lib := NewSnapshot([]types.Track{
		{ID: "a", Rating: rating(4.0)},
		{ID: "b", Rating: rating(3.5)},
		{ID: "c", Rating: rating(3.74)},
	})

	doc := criteria.Document{Rules: []criteria.RuleDocument{criteria.Number(criteria.FieldRating, criteria.OpGreaterThan, 3.5)}}
	ids, err := EvaluateDocument(doc, lib, now)
	require.NoError(t, err)
	// 3.74 rounds to the 3.5 half-star
	assert.Equal(t, []string{"a"}, ids)
}

func TestEvaluateDeterministic(t *testing.T) {
	lib := fixtureLibrary()
	doc := criteria.Document{
		OrderBy: criteria.FieldAlbum,
		Rules:   []criteria.RuleDocument{criteria.Bare(criteria.FieldTitle, criteria.OpIsNotNull)},
	}

	first, err := EvaluateDocument(doc, lib, now)
	require.NoError(t, err)
	second, err := EvaluateDocument(doc, lib, now)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	// albums tie in pairs, IDs break the tie
	assert.Equal(t, []string{"t09", "t10", "t03", "t04", "t01", "t02", "t08", "t07", "t05", "t06"}, first)
}

func TestEvaluateLimitTruncatesAfterSort(t *testing.T) {
	lib := fixtureLibrary()
	full := criteria.Document{OrderBy: criteria.FieldPlayCount, OrderDirection: criteria.Descending}

	all, err := EvaluateDocument(full, lib, now)
	require.NoError(t, err)
	require.Len(t, all, 10)

	for k := 1; k <= 10; k++ {
		limited := full
		limited.Limit = limit(k)

		ids, err := EvaluateDocument(limited, lib, now)
		require.NoError(t, err)
		assert.Len(t, ids, k)
		assert.Equal(t, all[:k], ids)
	}
}

func TestEvaluateNullHandling(t *testing.T) {
	lib := NewSnapshot([]types.Track{
		{ID: "played", Title: "A", LastPlayed: ago(1)},
		{ID: "never", Title: ""},
	})

	tests := []struct {
		name     string
		rule     criteria.RuleDocument
		expected []string
	}{
		{"inLast fails on null", criteria.Days(criteria.FieldLastPlayed, criteria.OpInLast, 30), []string{"played"}},
		{"notInLast passes on null", criteria.Days(criteria.FieldLastPlayed, criteria.OpNotInLast, 30), []string{"never"}},
		{"contains fails on empty", criteria.Text(criteria.FieldTitle, criteria.OpContains, "a"), []string{"played"}},
		{"notEquals passes on empty", criteria.Text(criteria.FieldTitle, criteria.OpNotEquals, "a"), []string{"never"}},
		{"numeric fails on null", criteria.Number(criteria.FieldRating, criteria.OpLessThan, 5), nil},
		{"numeric notEquals passes on null", criteria.Number(criteria.FieldRating, criteria.OpNotEquals, 5), []string{"never", "played"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := criteria.Document{OrderBy: criteria.FieldTitle, Rules: []criteria.RuleDocument{tt.rule}}
			ids, err := EvaluateDocument(doc, lib, now)
			require.NoError(t, err)
			if tt.expected == nil {
				assert.Empty(t, ids)
				return
			}
			assert.ElementsMatch(t, tt.expected, ids)
		})
	}
}

func TestEvaluateNeverPlayedCountsAsZero(t *testing.T) {
	lib := NewSnapshot([]types.Track{
		{ID: "fresh", Title: "Never Played"},
		{ID: "once", Title: "Played Once", PlayCount: 1, LastPlayed: ago(3)},
		{ID: "often", Title: "Played Often", PlayCount: 9, LastPlayed: ago(1)},
	})

	tests := []struct {
		name     string
		rule     criteria.RuleDocument
		expected []string
	}{
		{"equals zero", criteria.Number(criteria.FieldPlayCount, criteria.OpEquals, 0), []string{"fresh"}},
		{"less than", criteria.Number(criteria.FieldPlayCount, criteria.OpLessThan, 3), []string{"fresh", "once"}},
		{"greater than", criteria.Number(criteria.FieldPlayCount, criteria.OpGreaterThan, 0), []string{"once", "often"}},
		{"never null", criteria.Bare(criteria.FieldPlayCount, criteria.OpIsNull), nil},
		{"always present", criteria.Bare(criteria.FieldPlayCount, criteria.OpIsNotNull), []string{"fresh", "once", "often"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := criteria.Document{OrderBy: criteria.FieldTitle, Rules: []criteria.RuleDocument{tt.rule}}
			ids, err := EvaluateDocument(doc, lib, now)
			require.NoError(t, err)
			if tt.expected == nil {
				assert.Empty(t, ids)
				return
			}
			assert.ElementsMatch(t, tt.expected, ids)
		})
	}
}

func TestEvaluateRejectsInvalidCriteria(t *testing.T) {
	handBuilt := criteria.Criteria{
		Rules:   []criteria.Rule{criteria.TextRule{Field: criteria.FieldRating, Op: criteria.OpContains, Value: "5"}},
		Logic:   criteria.LogicAnd,
		OrderBy: criteria.FieldTitle,
	}

	ids, err := Evaluate(handBuilt, fixtureLibrary(), now)
	assert.Nil(t, ids)

	var verr *criteria.ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, 0, verr.Index)
}

func TestEvaluateConcurrentSnapshot(t *testing.T) {
	lib := fixtureLibrary()
	doc := criteria.Document{OrderBy: criteria.FieldTitle}

	want, err := EvaluateDocument(doc, lib, now)
	require.NoError(t, err)

	var wg sync.WaitGroup
	results := make([][]string, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], _ = EvaluateDocument(doc, lib, now)
		}(i)
	}
	wg.Wait()

	for _, got := range results {
		assert.Equal(t, want, got)
	}
}
