package cmsclient

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"sitecms/internal/content"
	"sitecms/internal/localstore"
)

func sampleDocument() map[string]any {
	return map[string]any{
		"version":   2.0,
		"updatedAt": "2026-04-01T10:00:00.000Z",
		"settings":  map[string]any{"showMusicSection": false, "latestSource": "music"},
		"posts": []any{
			map[string]any{"id": "post_1", "type": "post", "title": "Hello", "visibility": "visible"},
		},
		"tracks":   []any{map[string]any{"id": "track_9", "title": "Nine", "file": "nine.mp3", "visibility": "hidden"}},
		"hardware": "oops",
	}
}

func TestCacheRoundTrip(t *testing.T) {
	ctx := context.Background()
	cache := NewCache(localstore.NewMemory(), nil)

	doc := content.Merge(sampleDocument())
	if outcome := cache.Write(ctx, doc); !outcome.OK() {
		t.Fatalf("Write() outcome = %+v", outcome)
	}

	got := cache.Read(ctx)
	if got == nil {
		t.Fatal("Read() returned nil after Write()")
	}
	if diff := cmp.Diff(content.Merge(doc), *got); diff != "" {
		t.Fatalf("cache round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestCacheReadMissingOrCorrupt(t *testing.T) {
	ctx := context.Background()
	storage := localstore.NewMemory()
	cache := NewCache(storage, nil)

	if got := cache.Read(ctx); got != nil {
		t.Fatalf("Read() on empty storage = %+v", got)
	}

	_ = storage.Set(ctx, CacheKey, "{broken")
	if got := cache.Read(ctx); got != nil {
		t.Fatalf("Read() on corrupt snapshot = %+v", got)
	}

	_ = storage.Set(ctx, CacheKey, `{"tracks":"nope","settings":{"custom":true}}`)
	got := cache.Read(ctx)
	if got == nil {
		t.Fatal("Read() returned nil for hand-edited snapshot")
	}
	if diff := cmp.Diff(content.DefaultCollection("tracks"), got.Tracks); diff != "" {
		t.Fatalf("hand-edited snapshot not normalized (-want +got):\n%s", diff)
	}
	if got.Settings["custom"] != true {
		t.Fatalf("custom setting lost: %+v", got.Settings)
	}
}

func TestCacheStorageFailureIsSilent(t *testing.T) {
	ctx := context.Background()
	cache := NewCache(failingStorage{}, nil)

	outcome := cache.Write(ctx, content.Default())
	if outcome.OK() || !errors.Is(outcome.Err, localstore.ErrUnavailable) {
		t.Fatalf("Write() outcome = %+v, want ErrUnavailable", outcome)
	}
	if got := cache.Read(ctx); got != nil {
		t.Fatalf("Read() with failing storage = %+v", got)
	}
}

func TestLegacyReaderNoData(t *testing.T) {
	reader := NewLegacyReader(localstore.NewMemory(), nil)
	if reader.Detect(context.Background()) {
		t.Fatal("Detect() = true on empty storage")
	}
	if got := reader.Read(context.Background()); got != nil {
		t.Fatalf("Read() = %+v, want nil", got)
	}
}

func TestLegacyReaderAssemblesDocument(t *testing.T) {
	ctx := context.Background()
	storage := localstore.NewMemory()
	_ = storage.Set(ctx, "site_settings", `{"showArtNav":false}`)
	_ = storage.Set(ctx, "music_tracks", `[{"id":"track_2","title":"Legacy","visibility":"visible"}]`)
	_ = storage.Set(ctx, "art_photos", "")

	reader := NewLegacyReader(storage, nil)
	now := time.Date(2026, 2, 20, 8, 0, 0, 0, time.UTC)
	reader.now = func() time.Time { return now }

	got := reader.Read(ctx)
	if got == nil {
		t.Fatal("Read() returned nil with legacy data present")
	}
	if got.UpdatedAt != "2026-02-20T08:00:00.000Z" {
		t.Fatalf("updatedAt = %q", got.UpdatedAt)
	}
	if got.Settings["showArtNav"] != false || got.Settings["showArtSection"] != true {
		t.Fatalf("settings not merged with defaults: %+v", got.Settings)
	}
	wantTracks := []any{map[string]any{"id": "track_2", "title": "Legacy", "visibility": "visible"}}
	if diff := cmp.Diff(wantTracks, got.Tracks); diff != "" {
		t.Fatalf("tracks mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(content.DefaultCollection("photos"), got.Photos); diff != "" {
		t.Fatalf("empty legacy record should use defaults (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(content.DefaultCollection("posts"), got.Posts); diff != "" {
		t.Fatalf("absent legacy record should use defaults (-want +got):\n%s", diff)
	}
}

func TestLegacyReaderCorruptRecordYieldsNil(t *testing.T) {
	ctx := context.Background()
	storage := localstore.NewMemory()
	_ = storage.Set(ctx, "literature_posts", `[{"id":"p1"}]`)
	_ = storage.Set(ctx, "software_apps", `not json`)

	if got := NewLegacyReader(storage, nil).Read(ctx); got != nil {
		t.Fatalf("Read() = %+v, want nil", got)
	}
}

func TestLegacyReaderFailingStorage(t *testing.T) {
	if got := NewLegacyReader(failingStorage{}, nil).Read(context.Background()); got != nil {
		t.Fatalf("Read() = %+v, want nil", got)
	}
}

func TestLegacyKeys(t *testing.T) {
	want := []string{
		"site_settings", "literature_posts", "software_apps", "art_videos",
		"art_photos", "music_tracks", "hardware_projects", "textiles_items",
	}
	if diff := cmp.Diff(want, LegacyKeys()); diff != "" {
		t.Fatalf("LegacyKeys() mismatch (-want +got):\n%s", diff)
	}
}
