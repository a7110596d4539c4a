package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Row coercion helpers. Gateway rows are weakly typed: values decoded
// straight from the store keep native types, while rows replayed off the
// change feed have been through a JSON round-trip (timestamps become
// RFC3339 strings, numbers become float64). Mapping happens once, here,
// and untyped rows never travel further up.

func rowString(row map[string]any, key string) string {
	if v, ok := row[key].(string); ok {
		return v
	}
	return ""
}

func rowFloat(row map[string]any, key string) float64 {
	switch v := row[key].(type) {
	case float64:
		return v
	case float32:
		return float64(v)
	case int:
		return float64(v)
	case int32:
		return float64(v)
	case int64:
		return float64(v)
	}
	return 0
}

func rowUUID(row map[string]any, key string) (uuid.UUID, error) {
	v, ok := row[key]
	if !ok || v == nil {
		return uuid.Nil, fmt.Errorf("row field %q missing", key)
	}
	s, ok := v.(string)
	if !ok {
		return uuid.Nil, fmt.Errorf("row field %q is not an id", key)
	}
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, fmt.Errorf("row field %q: %w", key, err)
	}
	return id, nil
}

func rowTime(row map[string]any, key string) (time.Time, bool) {
	switch v := row[key].(type) {
	case time.Time:
		return v, true
	case string:
		if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
