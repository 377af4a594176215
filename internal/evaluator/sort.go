package evaluator

import (
	"cmp"
	"strings"
	"time"

	"github.com/toozej/smartlists/internal/criteria"
	"github.com/toozej/smartlists/internal/types"
)

// entry is a matched track with its sort key computed once.
type entry struct {
	track types.Track
	null  bool
	text  string
	num   float64
	when  time.Time
}

func newEntry(t types.Track, orderBy criteria.Field) entry {
	e := entry{track: t}

	category, _ := criteria.CategoryOf(orderBy)
	switch category {
	case criteria.CategoryText:
		v := textValue(&t, orderBy)
		e.null = v == ""
		e.text = fold(v)
	case criteria.CategoryNumeric:
		v, ok := numericValue(&t, orderBy)
		e.null = !ok
		e.num = v
	case criteria.CategoryDate:
		v := dateValue(&t, orderBy)
		e.null = v == nil
		if v != nil {
			e.when = *v
		}
	default:
		e.null = true
	}
	return e
}

// comparator orders entries by key in the requested direction. Null keys
// sort last in both directions and ties fall back to internal ID ascending.
func comparator(orderBy criteria.Field, dir criteria.Direction) func(a, b entry) int {
	category, _ := criteria.CategoryOf(orderBy)

	return func(a, b entry) int {
		switch {
		case a.null && !b.null:
			return 1
		case !a.null && b.null:
			return -1
		case !a.null && !b.null:
			var c int
			switch category {
			case criteria.CategoryText:
				c = strings.Compare(a.text, b.text)
			case criteria.CategoryNumeric:
				c = cmp.Compare(a.num, b.num)
			case criteria.CategoryDate:
				c = a.when.Compare(b.when)
			}
			if dir == criteria.Descending {
				c = -c
			}
			if c != 0 {
				return c
			}
		}
		return strings.Compare(a.track.ID, b.track.ID)
	}
}
