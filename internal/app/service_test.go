package app

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"sync"
	"testing"
	"time"

	"sitecms/internal/auth"
	"sitecms/internal/content"
	"sitecms/internal/docstore"
)

// fakeStore keeps one document in memory and enforces revisions the way the
// real backends do.
type fakeStore struct {
	mu       sync.Mutex
	raw      []byte
	revision int
	writes   []docstore.WriteRequest
	readErr  error
	writeErr error
}

func newFakeStore(t *testing.T, doc any) *fakeStore {
	t.Helper()
	fs := &fakeStore{}
	if doc != nil {
		raw, err := content.Encode(doc)
		if err != nil {
			t.Fatalf("Encode() error = %v", err)
		}
		fs.raw = raw
		fs.revision = 1
	}
	return fs
}

func (f *fakeStore) rev() string {
	if f.revision == 0 {
		return ""
	}
	return "rev-" + strconv.Itoa(f.revision)
}

func (f *fakeStore) Read(_ context.Context) (docstore.Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.readErr != nil {
		return docstore.Snapshot{}, f.readErr
	}
	if f.raw == nil {
		return docstore.Snapshot{}, docstore.ErrNotFound
	}
	var doc map[string]any
	if err := json.Unmarshal(f.raw, &doc); err != nil {
		return docstore.Snapshot{}, docstore.ErrCorrupt
	}
	return docstore.Snapshot{Content: doc, Raw: f.raw, Revision: f.rev()}, nil
}

func (f *fakeStore) Write(_ context.Context, req docstore.WriteRequest) (docstore.Commit, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.writes = append(f.writes, req)
	if f.writeErr != nil {
		return docstore.Commit{}, f.writeErr
	}
	if req.Revision != f.rev() {
		return docstore.Commit{}, docstore.ErrConflict
	}
	f.raw = req.Content
	f.revision++
	return docstore.Commit{ID: "commit-" + strconv.Itoa(f.revision), Revision: f.rev()}, nil
}

func (f *fakeStore) currentRevision() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.rev()
}

type fakePublisher struct {
	mu    sync.Mutex
	key   string
	body  []byte
	calls int
	err   error
}

func (p *fakePublisher) Publish(_ context.Context, key string, body []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	p.key = key
	p.body = body
	return p.err
}

func newTestService(t *testing.T, fs *fakeStore) *Service {
	t.Helper()
	keys, err := auth.NewAdminKey("secret", "")
	if err != nil {
		t.Fatalf("NewAdminKey() error = %v", err)
	}
	svc := NewService(fs, keys, nil)
	svc.now = func() time.Time { return time.Date(2026, 3, 1, 12, 30, 0, 123456789, time.UTC) }
	return svc
}

func validPayload() map[string]any {
	return content.Default().Map()
}

func TestServiceUpdateStampsAndStoresVerbatim(t *testing.T) {
	fs := newFakeStore(t, validPayload())
	svc := newTestService(t, fs)

	incoming := validPayload()
	incoming["extra"] = map[string]any{"kept": true}
	incoming["updatedAt"] = "1999-01-01T00:00:00.000Z"

	result, err := svc.Update(context.Background(), UpdateInput{CMS: incoming})
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if result.UpdatedAt != "2026-03-01T12:30:00.123Z" {
		t.Fatalf("UpdatedAt = %q", result.UpdatedAt)
	}
	if result.CommitSHA != "commit-2" {
		t.Fatalf("CommitSHA = %q", result.CommitSHA)
	}

	write := fs.writes[0]
	if write.Revision != "rev-1" {
		t.Fatalf("write revision = %q, want rev-1", write.Revision)
	}
	if write.Message != "cms: update 2026-03-01T12:30:00.123Z" {
		t.Fatalf("commit message = %q", write.Message)
	}
	if last := write.Content[len(write.Content)-1]; last != '\n' {
		t.Fatal("stored document must end with a newline")
	}

	var stored map[string]any
	if err := json.Unmarshal(write.Content, &stored); err != nil {
		t.Fatalf("stored content is not JSON: %v", err)
	}
	if stored["updatedAt"] != result.UpdatedAt {
		t.Fatalf("stored updatedAt = %v", stored["updatedAt"])
	}
	if extra, ok := stored["extra"].(map[string]any); !ok || extra["kept"] != true {
		t.Fatalf("unknown key dropped: %+v", stored["extra"])
	}
	if _, ok := incoming["updatedAt"].(string); !ok || incoming["updatedAt"] != "1999-01-01T00:00:00.000Z" {
		t.Fatal("Update() must not mutate the caller's object")
	}
}

func TestServiceUpdateUsesCommitMessage(t *testing.T) {
	fs := newFakeStore(t, validPayload())
	svc := newTestService(t, fs)

	if _, err := svc.Update(context.Background(), UpdateInput{CMS: validPayload(), CommitMessage: "cms: reorder posts"}); err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if fs.writes[0].Message != "cms: reorder posts" {
		t.Fatalf("commit message = %q", fs.writes[0].Message)
	}
}

func TestServiceUpdateFailsWhenDocumentMissing(t *testing.T) {
	fs := newFakeStore(t, nil)
	svc := newTestService(t, fs)

	_, err := svc.Update(context.Background(), UpdateInput{CMS: validPayload()})
	var domainErr *DomainError
	if !errors.As(err, &domainErr) || domainErr.Status != 500 {
		t.Fatalf("Update() error = %v, want 500", err)
	}
	if !errors.Is(err, docstore.ErrNotFound) {
		t.Fatalf("missing-document cause not preserved: %v", err)
	}
	if len(fs.writes) != 0 {
		t.Fatalf("writes = %d, want 0", len(fs.writes))
	}
}

func TestServiceUpdateRejectsInvalidSchema(t *testing.T) {
	fs := newFakeStore(t, validPayload())
	svc := newTestService(t, fs)

	tests := []struct {
		name string
		cms  any
	}{
		{name: "missing", cms: nil},
		{name: "array", cms: []any{}},
		{name: "settings not object", cms: func() any { p := validPayload(); p["settings"] = "x"; return p }()},
		{name: "collection missing", cms: func() any { p := validPayload(); delete(p, "textiles"); return p }()},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Update(context.Background(), UpdateInput{CMS: tc.cms})
			var domainErr *DomainError
			if !errors.As(err, &domainErr) || domainErr.Status != 422 {
				t.Fatalf("Update() error = %v, want 422", err)
			}
		})
	}
	if len(fs.writes) != 0 {
		t.Fatalf("writes = %d, want 0", len(fs.writes))
	}
}

func TestServiceStoreErrorsSurfaceMessage(t *testing.T) {
	fs := newFakeStore(t, validPayload())
	fs.writeErr = errors.New("GitHub write failed (502): bad gateway")
	svc := newTestService(t, fs)

	_, err := svc.Update(context.Background(), UpdateInput{CMS: validPayload()})
	var domainErr *DomainError
	if !errors.As(err, &domainErr) {
		t.Fatalf("Update() error = %v, want DomainError", err)
	}
	if domainErr.Status != 500 || domainErr.Message != "GitHub write failed (502): bad gateway" {
		t.Fatalf("DomainError = %+v", domainErr)
	}
}

func TestServiceConflictIsNotRetried(t *testing.T) {
	fs := newFakeStore(t, validPayload())
	fs.writeErr = docstore.ErrConflict
	svc := newTestService(t, fs)

	_, err := svc.Update(context.Background(), UpdateInput{CMS: validPayload()})
	var domainErr *DomainError
	if !errors.As(err, &domainErr) || domainErr.Code != "CONFLICT" || domainErr.Status != 500 {
		t.Fatalf("Update() error = %v", err)
	}
	if !errors.Is(err, docstore.ErrConflict) {
		t.Fatalf("conflict cause not preserved: %v", err)
	}
	if len(fs.writes) != 1 {
		t.Fatalf("writes = %d, want exactly 1", len(fs.writes))
	}
}

func TestServiceCorruptExistingDocument(t *testing.T) {
	fs := newFakeStore(t, nil)
	fs.raw = []byte("not json")
	fs.revision = 1
	svc := newTestService(t, fs)

	_, err := svc.Update(context.Background(), UpdateInput{CMS: validPayload()})
	var domainErr *DomainError
	if !errors.As(err, &domainErr) || domainErr.Message != docstore.ErrCorrupt.Error() {
		t.Fatalf("Update() error = %v", err)
	}
}

func TestServicePublishesAfterCommit(t *testing.T) {
	fs := newFakeStore(t, validPayload())
	pub := &fakePublisher{}
	svc := newTestService(t, fs).WithPublisher(pub, "data/cms.json")

	if _, err := svc.Update(context.Background(), UpdateInput{CMS: validPayload()}); err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if pub.calls != 1 || pub.key != "data/cms.json" {
		t.Fatalf("publisher calls = %d key = %q", pub.calls, pub.key)
	}
	if string(pub.body) != string(fs.writes[0].Content) {
		t.Fatal("published bytes differ from committed bytes")
	}
}

func TestServicePublishFailureDoesNotFailUpdate(t *testing.T) {
	fs := newFakeStore(t, validPayload())
	pub := &fakePublisher{err: errors.New("bucket gone")}
	svc := newTestService(t, fs).WithPublisher(pub, "data/cms.json")

	if _, err := svc.Update(context.Background(), UpdateInput{CMS: validPayload()}); err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if fs.currentRevision() != "rev-2" {
		t.Fatalf("revision = %q, want rev-2", fs.currentRevision())
	}
}

func TestServiceAuthorize(t *testing.T) {
	svc := newTestService(t, newFakeStore(t, validPayload()))
	if err := svc.Authorize("secret"); err != nil {
		t.Fatalf("Authorize() error = %v", err)
	}
	for _, token := range []string{"", "wrong"} {
		err := svc.Authorize(token)
		var domainErr *DomainError
		if !errors.As(err, &domainErr) || domainErr.Status != 401 {
			t.Fatalf("Authorize(%q) error = %v", token, err)
		}
	}

	unconfigured := NewService(newFakeStore(t, nil), nil, nil)
	if err := unconfigured.Authorize("anything"); err == nil {
		t.Fatal("service without admin key must reject every token")
	}
}
