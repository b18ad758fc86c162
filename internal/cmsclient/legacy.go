package cmsclient

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"sitecms/internal/content"
	"sitecms/internal/localstore"
)

// legacyKeys maps the per-category storage keys used before the unified
// document existed onto document fields.
var legacyKeys = []struct {
	key   string
	field string
}{
	{key: "site_settings", field: "settings"},
	{key: "literature_posts", field: "posts"},
	{key: "software_apps", field: "apps"},
	{key: "art_videos", field: "videos"},
	{key: "art_photos", field: "photos"},
	{key: "music_tracks", field: "tracks"},
	{key: "hardware_projects", field: "hardware"},
	{key: "textiles_items", field: "textiles"},
}

// LegacyKeys returns the legacy per-category storage keys.
func LegacyKeys() []string {
	keys := make([]string, len(legacyKeys))
	for i, item := range legacyKeys {
		keys[i] = item.key
	}
	return keys
}

// LegacyReader reshapes legacy per-category records into a document. It only
// reads; legacy keys are never written.
type LegacyReader struct {
	storage localstore.Storage
	logger  *zap.Logger
	now     func() time.Time
}

func NewLegacyReader(storage localstore.Storage, logger *zap.Logger) *LegacyReader {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LegacyReader{storage: storage, logger: logger, now: time.Now}
}

// Detect reports whether any legacy key exists. Storage errors count as no.
func (r *LegacyReader) Detect(ctx context.Context) bool {
	for _, item := range legacyKeys {
		_, found, err := r.storage.Get(ctx, item.key)
		if err != nil {
			r.logger.Warn("legacy storage probe failed", zap.String("key", item.key), zap.Error(err))
			return false
		}
		if found {
			return true
		}
	}
	return false
}

// Read returns the legacy-derived document, or nil when no legacy data exists
// or any record cannot be read or decoded.
func (r *LegacyReader) Read(ctx context.Context) *content.Document {
	if !r.Detect(ctx) {
		return nil
	}
	doc, err := r.read(ctx)
	if err != nil {
		r.logger.Warn("legacy storage unreadable", zap.Error(err))
		return nil
	}
	return doc
}

func (r *LegacyReader) read(ctx context.Context) (*content.Document, error) {
	defaults := content.Default()
	assembled := map[string]any{
		"version":   content.CurrentVersion,
		"updatedAt": content.Timestamp(r.now()),
		"settings":  defaults.Settings,
	}
	for _, name := range content.CollectionNames {
		assembled[name] = defaults.Collection(name)
	}

	for _, item := range legacyKeys {
		raw, found, err := r.storage.Get(ctx, item.key)
		if err != nil {
			return nil, err
		}
		if !found || raw == "" {
			continue
		}
		var decoded any
		if err := json.Unmarshal([]byte(raw), &decoded); err != nil {
			return nil, fmt.Errorf("decode %s: %w", item.key, err)
		}
		assembled[item.field] = decoded
	}

	doc := content.Merge(assembled)
	return &doc, nil
}
