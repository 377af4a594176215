package criteria

// Rule is one predicate of a criteria document. The set of implementations
// is closed: TextRule, NumericRule, RelativeDateRule, TagRule and ExistenceRule.
type Rule interface {
	Header() (Field, Operator)
	rule()
}

// TextRule compares a text field against a string.
type TextRule struct {
	Field Field
	Op    Operator
	Value string
}

// NumericRule compares rating, playCount or duration (seconds) against a number.
type NumericRule struct {
	Field Field
	Op    Operator
	Value float64
}

// RelativeDateRule checks whether a timestamp falls within the last Days days.
type RelativeDateRule struct {
	Field Field
	Op    Operator
	Days  int
}

// TagRule matches on tag IDs. TagID is empty for hasAnyTag and hasNoTags.
type TagRule struct {
	Op    Operator
	TagID string
}

// ExistenceRule checks whether a field has a value.
type ExistenceRule struct {
	Field Field
	Op    Operator
}

func (r TextRule) Header() (Field, Operator)         { return r.Field, r.Op }
func (r NumericRule) Header() (Field, Operator)      { return r.Field, r.Op }
func (r RelativeDateRule) Header() (Field, Operator) { return r.Field, r.Op }
func (r TagRule) Header() (Field, Operator)          { return FieldTag, r.Op }
func (r ExistenceRule) Header() (Field, Operator)    { return r.Field, r.Op }

func (TextRule) rule()         {}
func (NumericRule) rule()      {}
func (RelativeDateRule) rule() {}
func (TagRule) rule()          {}
func (ExistenceRule) rule()    {}
