package filters

import (
	"time"

	"github.com/Ramsey-B/fern/pkg/query"
)

// CheckValue reports whether a filter value is admissible.
//
// Scalars and times are admissible. Lists are admissible when non-empty and every item
// is admissible. Objects are admissible when non-empty, every key is an allowed operator
// (and, or, gt, gte, lt, lte, not, like, ilike; optionally "$" prefixed) and every value
// is admissible. Anything else is rejected, which keeps arbitrary operator objects out of
// the generated SQL. A missing filter key is the undefined value and never reaches here.
func CheckValue(v any) bool {
	switch v.(type) {
	case time.Time, *time.Time:
		return true
	}
	if query.IsScalar(v) {
		return true
	}

	if items, ok := query.AsSlice(v); ok {
		if len(items) == 0 {
			return false
		}
		for _, item := range items {
			if !CheckValue(item) {
				return false
			}
		}
		return true
	}

	if obj, ok := query.AsObject(v); ok {
		if len(obj) == 0 {
			return false
		}
		for key, val := range obj {
			if _, ok := query.OperatorKey(key); !ok {
				return false
			}
			if !CheckValue(val) {
				return false
			}
		}
		return true
	}

	return false
}
