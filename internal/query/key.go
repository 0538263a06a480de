package query

import (
	"time"
)

// SortKey extracts the plan's sort-key tuple from a document. Datetimes are
// represented as Unix nanoseconds so tuples survive a cursor round-trip
// byte-for-byte. Absent values are nil and order before everything else in
// ascending direction.
func SortKey(doc *Doc, sort []SortField) []any {
	key := make([]any, len(sort))
	for i, field := range sort {
		value, ok := doc.Lookup(field.Queryable)
		if !ok {
			continue
		}
		if ts, isTime := value.(time.Time); isTime {
			key[i] = ts.UnixNano()
		} else {
			key[i] = value
		}
	}
	return key
}

// CompareKeys orders two sort-key tuples under the plan's sort directions.
// Returns a negative value when a sorts before b, positive when after.
func CompareKeys(a, b []any, sort []SortField) int {
	for i := range sort {
		var av, bv any
		if i < len(a) {
			av = a[i]
		}
		if i < len(b) {
			bv = b[i]
		}
		cmp := compareKeyValue(av, bv)
		if cmp == 0 {
			continue
		}
		if sort[i].Descending {
			return -cmp
		}
		return cmp
	}
	return 0
}

// compareKeyValue orders two single key values in their natural ascending
// order. Nil sorts first; mismatched types fall back to a stable ordering so
// comparison never panics on malformed cursors.
func compareKeyValue(a, b any) int {
	if a == nil && b == nil {
		return 0
	}
	if a == nil {
		return -1
	}
	if b == nil {
		return 1
	}

	// Nanosecond timestamps exceed float64's integer range, so integer pairs
	// compare as int64.
	if ai, aok := asInt(a); aok {
		if bi, bok := asInt(b); bok {
			switch {
			case ai < bi:
				return -1
			case ai > bi:
				return 1
			default:
				return 0
			}
		}
	}
	if af, aok := asFloat(a); aok {
		if bf, bok := asFloat(b); bok {
			switch {
			case af < bf:
				return -1
			case af > bf:
				return 1
			default:
				return 0
			}
		}
		return -1
	}
	if _, bok := asFloat(b); bok {
		return 1
	}

	switch av := a.(type) {
	case string:
		bv, ok := b.(string)
		if !ok {
			return -1
		}
		switch {
		case av < bv:
			return -1
		case av > bv:
			return 1
		default:
			return 0
		}
	case bool:
		bv, ok := b.(bool)
		if !ok {
			return 1
		}
		if av == bv {
			return 0
		}
		if !av {
			return -1
		}
		return 1
	}
	return 0
}

// asInt reports integer key values without widening to float64.
func asInt(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int8:
		return int64(n), true
	case int16:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case uint:
		return int64(n), true
	case uint8:
		return int64(n), true
	case uint16:
		return int64(n), true
	case uint32:
		return int64(n), true
	case uint64:
		return int64(n), true
	}
	return 0, false
}

// asFloat widens any numeric key value to float64. Integer sort keys arrive
// as int64 locally and as assorted integer widths after a msgpack round-trip.
func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	}
	return 0, false
}
