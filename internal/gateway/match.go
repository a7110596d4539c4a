package gateway

import (
	"time"
)

// Match reports whether a row satisfies a filter. Used for client-side
// filtering of change-feed events and by the in-memory gateway; the Mongo
// implementation translates the same predicates into query operators.
func Match(filter Filter, row Row) bool {
	for field, cond := range filter {
		value, present := row[field]
		switch c := cond.(type) {
		case InCond:
			if !present {
				return false
			}
			found := false
			for _, v := range c.Values {
				if looseEqual(value, v) {
					found = true
					break
				}
			}
			if !found {
				return false
			}
		case NeCond:
			if present && looseEqual(value, c.Value) {
				return false
			}
		case ExistsCond:
			if present != c.Set {
				return false
			}
		default:
			if !present || !looseEqual(value, cond) {
				return false
			}
		}
	}
	return true
}

// looseEqual compares row values across the representations a row can take
// after a store decode or a feed JSON round-trip.
func looseEqual(a, b any) bool {
	if a == nil || b == nil {
		return a == b
	}
	if ta, ok := a.(time.Time); ok {
		if tb, ok := timeValue(b); ok {
			return ta.Equal(tb)
		}
		return false
	}
	if tb, ok := b.(time.Time); ok {
		if ta, ok := timeValue(a); ok {
			return tb.Equal(ta)
		}
		return false
	}
	if fa, ok := floatValue(a); ok {
		if fb, ok := floatValue(b); ok {
			return fa == fb
		}
	}
	return a == b
}

func timeValue(v any) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t, true
	case string:
		if parsed, err := time.Parse(time.RFC3339Nano, t); err == nil {
			return parsed, true
		}
	}
	return time.Time{}, false
}

func floatValue(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}
