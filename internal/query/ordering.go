package query

import (
	"github.com/kartikbazzad/xlimdb/internal/document"
)

// rank assigns each JSON kind its position in the total order nulls use as
// the least element, then Bool < Number < String < Array < Object.
func rank(v interface{}) int {
	switch v.(type) {
	case nil:
		return 0
	case bool:
		return 1
	case float64, int, int64:
		return 2
	case string:
		return 3
	case []interface{}:
		return 4
	case *document.Object:
		return 5
	default:
		return 6
	}
}

func toFloat64(v interface{}) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case int:
		return float64(n)
	case int64:
		return float64(n)
	default:
		return 0
	}
}

// Compare ranks two JSON values according to the cross-kind total order:
// null is least, then bool < number < string < array < object, with
// arrays/objects compared by length first and then element-by-element.
// Returns -1, 0, or 1.
func Compare(a, b interface{}) int {
	ra, rb := rank(a), rank(b)
	if ra != rb {
		if ra < rb {
			return -1
		}
		return 1
	}

	switch av := a.(type) {
	case nil:
		return 0
	case bool:
		bv := b.(bool)
		if av == bv {
			return 0
		}
		if !av {
			return -1
		}
		return 1
	case float64, int, int64:
		af, bf := toFloat64(a), toFloat64(b)
		switch {
		case af < bf:
			return -1
		case af > bf:
			return 1
		default:
			return 0
		}
	case string:
		bv := b.(string)
		switch {
		case av < bv:
			return -1
		case av > bv:
			return 1
		default:
			return 0
		}
	case []interface{}:
		bv := b.([]interface{})
		if len(av) != len(bv) {
			if len(av) < len(bv) {
				return -1
			}
			return 1
		}
		for i := range av {
			if c := Compare(av[i], bv[i]); c != 0 {
				return c
			}
		}
		return 0
	case *document.Object:
		bv := b.(*document.Object)
		if av.Len() != bv.Len() {
			if av.Len() < bv.Len() {
				return -1
			}
			return 1
		}
		for _, k := range av.Keys() {
			aval, _ := av.Get(k)
			bval, ok := bv.Get(k)
			if !ok {
				return 1
			}
			if c := Compare(aval, bval); c != 0 {
				return c
			}
		}
		return 0
	}
	return 0
}

// Equal reports whether two JSON values are structurally identical,
// ignoring object field order.
func Equal(a, b interface{}) bool {
	return rank(a) == rank(b) && Compare(a, b) == 0
}
