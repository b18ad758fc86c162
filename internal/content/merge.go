package content

import (
	"encoding/json"
	"math"
	"time"
)

// Merge returns a fully-populated document built from input, filling every
// missing or mistyped field from the defaults. It accepts decoded JSON
// objects, Documents, or raw JSON bytes; anything else is treated as an empty
// object. Merge is idempotent and the result shares no memory with input.
func Merge(input any) Document {
	return MergeAt(input, time.Now())
}

// MergeAt is Merge with an explicit clock for the updatedAt fallback.
func MergeAt(input any, now time.Time) Document {
	obj := asObject(input)

	doc := Document{
		Version:   CurrentVersion,
		UpdatedAt: Timestamp(now),
		Settings:  defaultSettings(),
	}
	if version, ok := asNumber(obj["version"]); ok {
		doc.Version = version
	}
	if updatedAt, ok := obj["updatedAt"].(string); ok {
		doc.UpdatedAt = updatedAt
	}
	if settings, ok := obj["settings"].(map[string]any); ok {
		for key, value := range settings {
			doc.Settings[key] = cloneValue(value)
		}
	}

	defaults := Default()
	for _, name := range CollectionNames {
		if items, ok := asArray(obj[name]); ok {
			*doc.collection(name) = cloneSlice(items)
			continue
		}
		*doc.collection(name) = defaults.Collection(name)
	}
	return doc
}

func asObject(input any) map[string]any {
	switch typed := input.(type) {
	case map[string]any:
		return typed
	case Document:
		return typed.Map()
	case *Document:
		if typed == nil {
			return map[string]any{}
		}
		return typed.Map()
	case json.RawMessage:
		return decodeObject(typed)
	case []byte:
		return decodeObject(typed)
	case string:
		return decodeObject([]byte(typed))
	}
	return map[string]any{}
}

func decodeObject(raw []byte) map[string]any {
	var obj map[string]any
	if err := json.Unmarshal(raw, &obj); err != nil || obj == nil {
		return map[string]any{}
	}
	return obj
}

// asNumber accepts integral numbers that fit an int. Fractions, infinities
// and out-of-range values are rejected so the caller keeps its default.
func asNumber(value any) (int, bool) {
	switch typed := value.(type) {
	case int:
		return typed, true
	case int64:
		if typed < math.MinInt || typed > math.MaxInt {
			return 0, false
		}
		return int(typed), true
	case float64:
		return floatToInt(typed)
	case json.Number:
		if n, err := typed.Int64(); err == nil {
			return asNumber(n)
		}
		if n, err := typed.Float64(); err == nil {
			return floatToInt(n)
		}
	}
	return 0, false
}

func floatToInt(n float64) (int, bool) {
	if math.IsNaN(n) || math.IsInf(n, 0) || n != math.Trunc(n) {
		return 0, false
	}
	if n < math.MinInt || n >= -math.MinInt {
		return 0, false
	}
	return int(n), true
}

func asArray(value any) ([]any, bool) {
	switch typed := value.(type) {
	case []any:
		if typed == nil {
			return nil, false
		}
		return typed, true
	case []map[string]any:
		if typed == nil {
			return nil, false
		}
		out := make([]any, len(typed))
		for i, item := range typed {
			out[i] = item
		}
		return out, true
	}
	return nil, false
}
