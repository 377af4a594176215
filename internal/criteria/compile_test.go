package criteria

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func intPtr(v int) *int { return &v }

func TestCompileDefaults(t *testing.T) {
	c, err := Compile(Document{})
	require.NoError(t, err)

	assert.Equal(t, LogicAnd, c.Logic)
	assert.Equal(t, FieldDateAdded, c.OrderBy)
	assert.Equal(t, Descending, c.OrderDirection)
	assert.Zero(t, c.Limit)
	assert.Empty(t, c.Rules)
}

func TestCompileVariants(t *testing.T) {
	doc := Document{
		Logic:   "or",
		OrderBy: FieldTitle,
		Limit:   intPtr(25),
		Rules: []RuleDocument{
			Text(FieldArtist, OpContains, "Coltrane"),
			Number(FieldRating, OpGreaterThan, 3.5),
			Days(FieldLastPlayed, OpInLast, 30),
			Text(FieldTag, OpHasTag, "tag-1"),
			Bare(FieldTag, OpHasNoTags),
			Bare(FieldDuration, OpIsNull),
		},
	}

	c, err := Compile(doc)
	require.NoError(t, err)

	assert.Equal(t, LogicOr, c.Logic)
	assert.Equal(t, FieldTitle, c.OrderBy)
	assert.Equal(t, Ascending, c.OrderDirection)
	assert.Equal(t, 25, c.Limit)
	require.Len(t, c.Rules, 6)

	assert.Equal(t, TextRule{Field: FieldArtist, Op: OpContains, Value: "Coltrane"}, c.Rules[0])
	assert.Equal(t, NumericRule{Field: FieldRating, Op: OpGreaterThan, Value: 3.5}, c.Rules[1])
	assert.Equal(t, RelativeDateRule{Field: FieldLastPlayed, Op: OpInLast, Days: 30}, c.Rules[2])
	assert.Equal(t, TagRule{Op: OpHasTag, TagID: "tag-1"}, c.Rules[3])
	assert.Equal(t, TagRule{Op: OpHasNoTags}, c.Rules[4])
	assert.Equal(t, ExistenceRule{Field: FieldDuration, Op: OpIsNull}, c.Rules[5])
}

func TestCompileRejectsMalformedRules(t *testing.T) {
	number := 3.0
	text := "x"

	tests := []struct {
		name  string
		rule  RuleDocument
		index int
	}{
		{name: "unknown field", rule: Text("genre", OpEquals, "jazz")},
		{name: "text operator on numeric field", rule: Number(FieldRating, OpContains, 4)},
		{name: "numeric operator on text field", rule: Text(FieldTitle, OpGreaterThan, "a")},
		{name: "date operator on text field", rule: Days(FieldAlbum, OpInLast, 3)},
		{name: "missing text value", rule: Bare(FieldTitle, OpEquals)},
		{name: "empty text value", rule: Text(FieldTitle, OpEquals, "")},
		{name: "wrong slot for numeric", rule: Text(FieldPlayCount, OpEquals, "3")},
		{name: "rating above five", rule: Number(FieldRating, OpEquals, 5.5)},
		{name: "rating off the half-star grid", rule: Number(FieldRating, OpEquals, 3.3)},
		{name: "negative play count", rule: Number(FieldPlayCount, OpLessThan, -1)},
		{name: "zero days", rule: Days(FieldDateAdded, OpInLast, 0)},
		{name: "isNull with value", rule: RuleDocument{Field: FieldRating, Operator: OpIsNull, NumberValue: &number}},
		{name: "hasAnyTag with value", rule: RuleDocument{Field: FieldTag, Operator: OpHasAnyTag, TextValue: &text}},
		{name: "hasTag without tag id", rule: Bare(FieldTag, OpHasTag)},
		{name: "two value slots", rule: RuleDocument{Field: FieldTitle, Operator: OpEquals, TextValue: &text, NumberValue: &number}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := Document{Rules: []RuleDocument{Text(FieldTitle, OpContains, "ok"), tt.rule}}

			_, err := Compile(doc)
			require.Error(t, err)

			var verr *ValidationError
			require.True(t, errors.As(err, &verr))
			assert.Equal(t, 1, verr.Index)
			assert.Equal(t, tt.rule.Field, verr.Field)
		})
	}
}

func TestCompileRejectsMalformedDocument(t *testing.T) {
	tests := []struct {
		name string
		doc  Document
	}{
		{name: "unknown logic", doc: Document{Logic: "XOR"}},
		{name: "order by tag", doc: Document{OrderBy: FieldTag}},
		{name: "order by unknown", doc: Document{OrderBy: "bpm"}},
		{name: "bad direction", doc: Document{OrderDirection: "sideways"}},
		{name: "zero limit", doc: Document{Limit: intPtr(0)}},
		{name: "negative limit", doc: Document{Limit: intPtr(-3)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.doc)
			require.Error(t, err)

			var verr *ValidationError
			require.True(t, errors.As(err, &verr))
			assert.Equal(t, -1, verr.Index)
			assert.Contains(t, verr.Error(), "invalid criteria")
		})
	}
}

func TestDocumentRoundTrip(t *testing.T) {
	doc := Document{
		Logic:          LogicAnd,
		OrderBy:        FieldRating,
		OrderDirection: Descending,
		Limit:          intPtr(10),
		Rules: []RuleDocument{
			Number(FieldRating, OpEquals, 5),
			Text(FieldTag, OpNotHasTag, "tag-9"),
			Bare(FieldTag, OpHasAnyTag),
			Bare(FieldLastPlayed, OpIsNotNull),
		},
	}

	c, err := Compile(doc)
	require.NoError(t, err)

	again, err := Compile(c.Document())
	require.NoError(t, err)
	assert.Equal(t, c, again)
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()

	yamlPath := filepath.Join(dir, "recent.yaml")
	require.NoError(t, os.WriteFile(yamlPath, []byte(`
logic: AND
orderBy: lastPlayed
orderDirection: desc
limit: 50
rules:
  - field: lastPlayed
    operator: inLast
    daysValue: 14
  - field: artist
    operator: startsWith
    textValue: Miles
`), 0600))

	doc, err := LoadFile(yamlPath)
	require.NoError(t, err)
	require.Len(t, doc.Rules, 2)
	assert.Equal(t, FieldLastPlayed, doc.Rules[0].Field)
	require.NotNil(t, doc.Rules[0].DaysValue)
	assert.Equal(t, 14, *doc.Rules[0].DaysValue)
	require.NotNil(t, doc.Limit)
	assert.Equal(t, 50, *doc.Limit)

	jsonPath := filepath.Join(dir, "top.json")
	require.NoError(t, os.WriteFile(jsonPath, []byte(`{"rules":[{"field":"rating","operator":"equals","numberValue":5}]}`), 0600))

	doc, err = LoadFile(jsonPath)
	require.NoError(t, err)
	require.Len(t, doc.Rules, 1)
	assert.Equal(t, 5.0, *doc.Rules[0].NumberValue)

	_, err = LoadFile(filepath.Join(dir, "rules.txt"))
	assert.Error(t, err)
}
