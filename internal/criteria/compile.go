package criteria

import (
	"fmt"
	"math"
	"strings"
)

// ValidationError reports a malformed criteria document. Index is the
// offending rule position, or -1 for document-level problems.
type ValidationError struct {
	Index    int
	Field    Field
	Operator Operator
	Reason   string
}

func (e *ValidationError) Error() string {
	if e.Index < 0 {
		return "invalid criteria: " + e.Reason
	}
	return fmt.Sprintf("invalid rule %d (%s %s): %s", e.Index, e.Field, e.Operator, e.Reason)
}

func documentError(format string, args ...any) *ValidationError {
	return &ValidationError{Index: -1, Reason: fmt.Sprintf(format, args...)}
}

// Compile validates a document and converts it to typed criteria.
// Any problem is returned as a *ValidationError.
func Compile(doc Document) (Criteria, error) {
	c := Criteria{
		Rules:          make([]Rule, 0, len(doc.Rules)),
		Logic:          LogicAnd,
		OrderBy:        FieldDateAdded,
		OrderDirection: Descending,
	}

	switch Logic(strings.ToUpper(string(doc.Logic))) {
	case "", LogicAnd:
	case LogicOr:
		c.Logic = LogicOr
	default:
		return Criteria{}, documentError("unknown logic %q", doc.Logic)
	}

	if doc.OrderBy != "" {
		if !Sortable(doc.OrderBy) {
			return Criteria{}, documentError("cannot order by %q", doc.OrderBy)
		}
		c.OrderBy = doc.OrderBy
		c.OrderDirection = Ascending
	}

	switch Direction(strings.ToLower(string(doc.OrderDirection))) {
	case "":
	case Ascending:
		c.OrderDirection = Ascending
	case Descending:
		c.OrderDirection = Descending
	default:
		return Criteria{}, documentError("unknown order direction %q", doc.OrderDirection)
	}

	if doc.Limit != nil {
		if *doc.Limit <= 0 {
			return Criteria{}, documentError("limit must be a positive integer, got %d", *doc.Limit)
		}
		c.Limit = *doc.Limit
	}

	for i, rd := range doc.Rules {
		r, err := compileRule(i, rd)
		if err != nil {
			return Criteria{}, err
		}
		c.Rules = append(c.Rules, r)
	}

	return c, nil
}

// Validate reports whether a document compiles.
func Validate(doc Document) error {
	_, err := Compile(doc)
	return err
}

func compileRule(i int, rd RuleDocument) (Rule, error) {
	fail := func(format string, args ...any) error {
		return &ValidationError{Index: i, Field: rd.Field, Operator: rd.Operator, Reason: fmt.Sprintf(format, args...)}
	}

	category, ok := CategoryOf(rd.Field)
	if !ok {
		return nil, fail("unknown field")
	}

	slots := 0
	if rd.TextValue != nil {
		slots++
	}
	if rd.NumberValue != nil {
		slots++
	}
	if rd.DaysValue != nil {
		slots++
	}

	if rd.Operator == OpIsNull || rd.Operator == OpIsNotNull {
		if slots != 0 {
			return nil, fail("operator takes no value")
		}
		return ExistenceRule{Field: rd.Field, Op: rd.Operator}, nil
	}

	if !Allows(rd.Field, rd.Operator) {
		return nil, fail("operator not allowed for %s field", category)
	}
	if slots > 1 {
		return nil, fail("exactly one value slot may be set")
	}

	switch category {
	case CategoryText:
		if rd.TextValue == nil {
			return nil, fail("textValue is required")
		}
		if *rd.TextValue == "" {
			return nil, fail("textValue must not be empty")
		}
		return TextRule{Field: rd.Field, Op: rd.Operator, Value: *rd.TextValue}, nil

	case CategoryNumeric:
		if rd.NumberValue == nil {
			return nil, fail("numberValue is required")
		}
		v := *rd.NumberValue
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fail("numberValue must be finite")
		}
		if v < 0 {
			return nil, fail("numberValue must not be negative")
		}
		if rd.Field == FieldRating {
			if v > 5 {
				return nil, fail("rating must be between 0 and 5")
			}
			if v*2 != math.Trunc(v*2) {
				return nil, fail("rating must be a multiple of 0.5")
			}
		}
		return NumericRule{Field: rd.Field, Op: rd.Operator, Value: v}, nil

	case CategoryDate:
		if rd.DaysValue == nil {
			return nil, fail("daysValue is required")
		}
		if *rd.DaysValue <= 0 {
			return nil, fail("daysValue must be a positive integer")
		}
		return RelativeDateRule{Field: rd.Field, Op: rd.Operator, Days: *rd.DaysValue}, nil

	case CategoryTag:
		switch rd.Operator {
		case OpHasAnyTag, OpHasNoTags:
			if slots != 0 {
				return nil, fail("operator takes no value")
			}
			return TagRule{Op: rd.Operator}, nil
		default:
			if rd.TextValue == nil || *rd.TextValue == "" {
				return nil, fail("textValue must hold a tag ID")
			}
			return TagRule{Op: rd.Operator, TagID: *rd.TextValue}, nil
		}
	}

	return nil, fail("unsupported field")
}
