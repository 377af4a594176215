// Package criteria defines the smart playlist rule vocabulary.
//
// A criteria document is authored (or stored) in a loose form with one
// value slot per value kind. Compile checks it against the field and
// operator tables below and produces a Criteria made of typed rules, each
// carrying only the value it needs.
package criteria

// Field names a track attribute a rule can test or a playlist can be ordered by.
type Field string

const (
	FieldTitle      Field = "title"
	FieldArtist     Field = "artist"
	FieldAlbum      Field = "album"
	FieldRating     Field = "rating"
	FieldPlayCount  Field = "playCount"
	FieldDuration   Field = "duration"
	FieldLastPlayed Field = "lastPlayed"
	FieldDateAdded  Field = "dateAdded"
	FieldTag        Field = "tag"
)

// Category groups fields that share an operator set and a value kind.
type Category int

const (
	CategoryText Category = iota + 1
	CategoryNumeric
	CategoryDate
	CategoryTag
)

func (c Category) String() string {
	switch c {
	case CategoryText:
		return "text"
	case CategoryNumeric:
		return "numeric"
	case CategoryDate:
		return "date"
	case CategoryTag:
		return "tag"
	default:
		return "unknown"
	}
}

// Operator is a rule comparison.
type Operator string

const (
	OpContains    Operator = "contains"
	OpNotContains Operator = "notContains"
	OpEquals      Operator = "equals"
	OpNotEquals   Operator = "notEquals"
	OpStartsWith  Operator = "startsWith"
	OpEndsWith    Operator = "endsWith"

	OpGreaterThan Operator = "greaterThan"
	OpLessThan    Operator = "lessThan"

	OpInLast    Operator = "inLast"
	OpNotInLast Operator = "notInLast"

	OpHasTag    Operator = "hasTag"
	OpNotHasTag Operator = "notHasTag"
	OpHasAnyTag Operator = "hasAnyTag"
	OpHasNoTags Operator = "hasNoTags"

	OpIsNull    Operator = "isNull"
	OpIsNotNull Operator = "isNotNull"
)

// Logic combines rule results across the whole document.
type Logic string

const (
	LogicAnd Logic = "AND"
	LogicOr  Logic = "OR"
)

// Direction is a sort direction.
type Direction string

const (
	Ascending  Direction = "asc"
	Descending Direction = "desc"
)

// fieldCategories is the single source of truth for which variant a field compiles to.
var fieldCategories = map[Field]Category{
	FieldTitle:      CategoryText,
	FieldArtist:     CategoryText,
	FieldAlbum:      CategoryText,
	FieldRating:     CategoryNumeric,
	FieldPlayCount:  CategoryNumeric,
	FieldDuration:   CategoryNumeric,
	FieldLastPlayed: CategoryDate,
	FieldDateAdded:  CategoryDate,
	FieldTag:        CategoryTag,
}

var categoryOperators = map[Category]map[Operator]bool{
	CategoryText: {
		OpContains: true, OpNotContains: true, OpEquals: true,
		OpNotEquals: true, OpStartsWith: true, OpEndsWith: true,
	},
	CategoryNumeric: {
		OpEquals: true, OpNotEquals: true, OpGreaterThan: true, OpLessThan: true,
	},
	CategoryDate: {
		OpInLast: true, OpNotInLast: true,
	},
	CategoryTag: {
		OpHasTag: true, OpNotHasTag: true, OpHasAnyTag: true, OpHasNoTags: true,
	},
}

// CategoryOf returns the category of a field and whether the field is known.
func CategoryOf(f Field) (Category, bool) {
	c, ok := fieldCategories[f]
	return c, ok
}

// Allows reports whether op may be used with field f.
func Allows(f Field, op Operator) bool {
	c, ok := fieldCategories[f]
	if !ok {
		return false
	}
	if op == OpIsNull || op == OpIsNotNull {
		return true
	}
	return categoryOperators[c][op]
}

// Sortable reports whether a playlist can be ordered by f.
func Sortable(f Field) bool {
	c, ok := fieldCategories[f]
	return ok && c != CategoryTag
}

// Criteria is a validated rule set ready for evaluation.
type Criteria struct {
	Rules          []Rule
	Logic          Logic
	OrderBy        Field
	OrderDirection Direction
	// Limit caps the result size after sorting. Zero means no limit.
	Limit int
}
