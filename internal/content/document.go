// Package content defines the site content document and the rules that turn
// any partially-formed input into a complete one.
package content

import (
	"bytes"
	"encoding/json"
	"errors"
	"time"
)

// CurrentVersion is the schema tag written into documents that carry none.
const CurrentVersion = 1

// TimestampLayout matches the millisecond ISO-8601 form produced by
// JavaScript's Date.toISOString, which existing stored documents use.
const TimestampLayout = "2006-01-02T15:04:05.000Z"

// CollectionNames lists the seven content collections in document order.
var CollectionNames = []string{"posts", "apps", "videos", "photos", "tracks", "hardware", "textiles"}

var ErrInvalidDocument = errors.New("invalid content document")

// Document is the single synchronized unit of site content. Collection
// entries are kept as decoded JSON values so unknown or malformed entries
// survive a round trip untouched.
type Document struct {
	Version   int            `json:"version"`
	UpdatedAt string         `json:"updatedAt"`
	Settings  map[string]any `json:"settings"`
	Posts     []any          `json:"posts"`
	Apps      []any          `json:"apps"`
	Videos    []any          `json:"videos"`
	Photos    []any          `json:"photos"`
	Tracks    []any          `json:"tracks"`
	Hardware  []any          `json:"hardware"`
	Textiles  []any          `json:"textiles"`
}

// Timestamp formats t the way updatedAt values are stored.
func Timestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}

// Collection returns the named collection, or nil for an unknown name.
func (d *Document) Collection(name string) []any {
	if ptr := d.collection(name); ptr != nil {
		return *ptr
	}
	return nil
}

func (d *Document) collection(name string) *[]any {
	switch name {
	case "posts":
		return &d.Posts
	case "apps":
		return &d.Apps
	case "videos":
		return &d.Videos
	case "photos":
		return &d.Photos
	case "tracks":
		return &d.Tracks
	case "hardware":
		return &d.Hardware
	case "textiles":
		return &d.Textiles
	}
	return nil
}

// Clone returns a deep copy that shares no maps or slices with d.
func (d Document) Clone() Document {
	out := Document{
		Version:   d.Version,
		UpdatedAt: d.UpdatedAt,
		Settings:  cloneMap(d.Settings),
	}
	for _, name := range CollectionNames {
		if src := d.Collection(name); src != nil {
			*out.collection(name) = cloneSlice(src)
		}
	}
	return out
}

// Map returns the document as a generic JSON object. Nil collections are left
// as nil so Merge treats them as absent.
func (d Document) Map() map[string]any {
	out := map[string]any{
		"version":   d.Version,
		"updatedAt": d.UpdatedAt,
	}
	if d.Settings != nil {
		out["settings"] = cloneMap(d.Settings)
	}
	for _, name := range CollectionNames {
		if src := d.Collection(name); src != nil {
			out[name] = cloneSlice(src)
		}
	}
	return out
}

// Encode renders the document as two-space indented JSON with a trailing
// newline, the on-disk form of cms.json.
func Encode(v any) ([]byte, error) {
	var buf bytes.Buffer
	encoder := json.NewEncoder(&buf)
	encoder.SetEscapeHTML(false)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// DuplicateIDs reports, per collection, entry ids that appear more than once.
// Uniqueness is assumed by the site but never enforced on write.
func DuplicateIDs(d Document) map[string][]string {
	result := make(map[string][]string)
	for _, name := range CollectionNames {
		seen := make(map[string]int)
		for _, entry := range d.Collection(name) {
			obj, ok := entry.(map[string]any)
			if !ok {
				continue
			}
			id, ok := obj["id"].(string)
			if !ok || id == "" {
				continue
			}
			seen[id]++
			if seen[id] == 2 {
				result[name] = append(result[name], id)
			}
		}
	}
	return result
}

func cloneValue(value any) any {
	switch typed := value.(type) {
	case map[string]any:
		return cloneMap(typed)
	case []any:
		return cloneSlice(typed)
	case json.RawMessage:
		return append(json.RawMessage(nil), typed...)
	default:
		return value
	}
}

func cloneMap(src map[string]any) map[string]any {
	if src == nil {
		return nil
	}
	out := make(map[string]any, len(src))
	for key, value := range src {
		out[key] = cloneValue(value)
	}
	return out
}

func cloneSlice(src []any) []any {
	if src == nil {
		return nil
	}
	out := make([]any, len(src))
	for i, value := range src {
		out[i] = cloneValue(value)
	}
	return out
}
