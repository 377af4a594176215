// Package evaluator turns criteria into an ordered list of matching tracks.
//
// Evaluation is pure: it reads an immutable library view and the supplied
// clock value, and never performs I/O. Identical inputs always yield the
// same ordered output, which the reconciler relies on for diffing.
package evaluator

import (
	"math"
	"slices"
	"strings"
	"time"

	"github.com/toozej/smartlists/internal/criteria"
	"github.com/toozej/smartlists/internal/types"
	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// Snapshot is an immutable, slice-backed LibraryView. It is safe to share
// between concurrent evaluations.
type Snapshot struct {
	tracks []types.Track
}

// NewSnapshot copies tracks into a new snapshot.
func NewSnapshot(tracks []types.Track) *Snapshot {
	return &Snapshot{tracks: slices.Clone(tracks)}
}

// Tracks returns the snapshot contents. Callers must not modify the result.
func (s *Snapshot) Tracks() []types.Track {
	return s.tracks
}

// Len returns the number of tracks in the snapshot.
func (s *Snapshot) Len() int {
	return len(s.tracks)
}

// Evaluate returns the internal IDs of the tracks matching c, sorted and limited.
func Evaluate(c criteria.Criteria, lib types.LibraryView, now time.Time) ([]string, error) {
	tracks, err := Select(c, lib, now)
	if err != nil {
		return nil, err
	}

	ids := make([]string, len(tracks))
	for i, t := range tracks {
		ids[i] = t.ID
	}
	return ids, nil
}

// EvaluateDocument compiles doc and evaluates it.
func EvaluateDocument(doc criteria.Document, lib types.LibraryView, now time.Time) ([]string, error) {
	c, err := criteria.Compile(doc)
	if err != nil {
		return nil, err
	}
	return Evaluate(c, lib, now)
}

// Select is Evaluate returning the matching track records.
func Select(c criteria.Criteria, lib types.LibraryView, now time.Time) ([]types.Track, error) {
	// Criteria may be built by hand, so re-check them against the vocabulary.
	if err := criteria.Validate(c.Document()); err != nil {
		return nil, err
	}

	match := combine(c.Logic, compileRules(c.Rules, now))

	var entries []entry
	for _, t := range lib.Tracks() {
		if match(&t) {
			entries = append(entries, newEntry(t, c.OrderBy))
		}
	}

	slices.SortStableFunc(entries, comparator(c.OrderBy, c.OrderDirection))

	if c.Limit > 0 && len(entries) > c.Limit {
		entries = entries[:c.Limit]
	}

	out := make([]types.Track, len(entries))
	for i, e := range entries {
		out[i] = e.track
	}
	return out, nil
}

type predicate func(t *types.Track) bool

func combine(logic criteria.Logic, preds []predicate) predicate {
	if len(preds) == 0 {
		return func(*types.Track) bool { return true }
	}
	if logic == criteria.LogicOr {
		return func(t *types.Track) bool {
			for _, p := range preds {
				if p(t) {
					return true
				}
			}
			return false
		}
	}
	return func(t *types.Track) bool {
		for _, p := range preds {
			if !p(t) {
				return false
			}
		}
		return true
	}
}

func compileRules(rules []criteria.Rule, now time.Time) []predicate {
	preds := make([]predicate, 0, len(rules))
	for _, r := range rules {
		preds = append(preds, compileRule(r, now))
	}
	return preds
}

func compileRule(r criteria.Rule, now time.Time) predicate {
	switch r := r.(type) {
	case criteria.TextRule:
		return textPredicate(r)
	case criteria.NumericRule:
		return numericPredicate(r)
	case criteria.RelativeDateRule:
		return datePredicate(r, now)
	case criteria.TagRule:
		return tagPredicate(r)
	case criteria.ExistenceRule:
		return existencePredicate(r)
	}
	return func(*types.Track) bool { return false }
}

func textPredicate(r criteria.TextRule) predicate {
	want := fold(r.Value)

	var positive func(have string) bool
	switch r.Op {
	case criteria.OpContains, criteria.OpNotContains:
		positive = func(have string) bool { return strings.Contains(have, want) }
	case criteria.OpEquals, criteria.OpNotEquals:
		positive = func(have string) bool { return have == want }
	case criteria.OpStartsWith:
		positive = func(have string) bool { return strings.HasPrefix(have, want) }
	case criteria.OpEndsWith:
		positive = func(have string) bool { return strings.HasSuffix(have, want) }
	}

	negated := r.Op == criteria.OpNotContains || r.Op == criteria.OpNotEquals
	return func(t *types.Track) bool {
		have := textValue(t, r.Field)
		if have == "" {
			return negated
		}
		matched := positive(fold(have))
		if negated {
			return !matched
		}
		return matched
	}
}

func numericPredicate(r criteria.NumericRule) predicate {
	want := r.Value
	if r.Field == criteria.FieldRating {
		want = halfStar(want)
	}

	return func(t *types.Track) bool {
		have, ok := numericValue(t, r.Field)
		if !ok {
			return r.Op == criteria.OpNotEquals
		}
		switch r.Op {
		case criteria.OpEquals:
			return have == want
		case criteria.OpNotEquals:
			return have != want
		case criteria.OpGreaterThan:
			return have > want
		case criteria.OpLessThan:
			return have < want
		}
		return false
	}
}

func datePredicate(r criteria.RelativeDateRule, now time.Time) predicate {
	cutoff := now.Add(-time.Duration(r.Days) * 24 * time.Hour)

	return func(t *types.Track) bool {
		ts := dateValue(t, r.Field)
		within := ts != nil && !ts.Before(cutoff)
		if r.Op == criteria.OpNotInLast {
			return !within
		}
		return within
	}
}

func tagPredicate(r criteria.TagRule) predicate {
	switch r.Op {
	case criteria.OpHasTag:
		return func(t *types.Track) bool { return t.HasTag(r.TagID) }
	case criteria.OpNotHasTag:
		return func(t *types.Track) bool { return !t.HasTag(r.TagID) }
	case criteria.OpHasAnyTag:
		return func(t *types.Track) bool { return len(t.TagIDs) > 0 }
	default:
		return func(t *types.Track) bool { return len(t.TagIDs) == 0 }
	}
}

func existencePredicate(r criteria.ExistenceRule) predicate {
	return func(t *types.Track) bool {
		null := isNull(t, r.Field)
		if r.Op == criteria.OpIsNull {
			return null
		}
		return !null
	}
}

func isNull(t *types.Track, f criteria.Field) bool {
	category, _ := criteria.CategoryOf(f)
	switch category {
	case criteria.CategoryText:
		return textValue(t, f) == ""
	case criteria.CategoryNumeric:
		_, ok := numericValue(t, f)
		return !ok
	case criteria.CategoryDate:
		return dateValue(t, f) == nil
	default:
		return len(t.TagIDs) == 0
	}
}

func textValue(t *types.Track, f criteria.Field) string {
	switch f {
	case criteria.FieldTitle:
		return t.Title
	case criteria.FieldArtist:
		return t.Artist
	case criteria.FieldAlbum:
		return t.Album
	}
	return ""
}

// numericValue returns rating in half stars, play count, or duration in whole seconds.
func numericValue(t *types.Track, f criteria.Field) (float64, bool) {
	switch f {
	case criteria.FieldRating:
		if t.Rating == nil {
			return 0, false
		}
		return halfStar(*t.Rating), true
	case criteria.FieldPlayCount:
		return float64(t.PlayCount), true
	case criteria.FieldDuration:
		if t.DurationMs == nil {
			return 0, false
		}
		return math.Round(float64(*t.DurationMs) / 1000), true
	}
	return 0, false
}

func dateValue(t *types.Track, f criteria.Field) *time.Time {
	switch f {
	case criteria.FieldLastPlayed:
		return t.LastPlayed
	case criteria.FieldDateAdded:
		return t.DateAdded
	}
	return nil
}

func halfStar(v float64) float64 {
	return math.Round(v*2) / 2
}

// fold normalizes and case-folds s for caseless comparison. A Caser is not
// safe for concurrent use, so each call builds its own.
func fold(s string) string {
	return cases.Fold().String(norm.NFC.String(s))
}
