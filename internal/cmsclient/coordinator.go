// Package cmsclient keeps a site's content document in sync: it serves the
// freshest available copy from memory, the network, the local cache, legacy
// storage or the built-in default, and pushes edits to the edge service.
package cmsclient

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"sitecms/internal/content"
	"sitecms/internal/localstore"
)

const (
	DefaultDocumentURL = "/data/cms.json"
	defaultTimeout     = 15 * time.Second
	flightKey          = "document"
)

// Options configures a Coordinator.
type Options struct {
	// DocumentURL is the canonical read endpoint: the static cms.json or the
	// edge service's GET /cms route.
	DocumentURL string
	// Storage is the persistent local store (cache, migration flag, legacy keys).
	Storage localstore.Storage
	// Session holds the operator credential for the current session only.
	Session    localstore.Storage
	HTTPClient *http.Client
	// Timeout bounds each network request. Zero means 15s.
	Timeout time.Duration
	Logger  *zap.Logger
}

// FetchOptions controls a single Fetch.
type FetchOptions struct {
	// Force skips the legacy and memory shortcuts and always starts a new
	// network request.
	Force bool
}

// Coordinator owns the in-memory copy of the document and the single
// in-flight read. Construct one per process and inject it where needed.
type Coordinator struct {
	documentURL string
	storage     localstore.Storage
	session     localstore.Storage
	httpClient  *http.Client
	timeout     time.Duration
	logger      *zap.Logger
	cache       *Cache
	legacy      *LegacyReader
	now         func() time.Time

	mu     sync.Mutex
	memory *content.Document
	group  singleflight.Group
}

func New(opts Options) *Coordinator {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	storage := opts.Storage
	if storage == nil {
		storage = localstore.NewMemory()
	}
	session := opts.Session
	if session == nil {
		session = localstore.NewMemory()
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	documentURL := strings.TrimSpace(opts.DocumentURL)
	if documentURL == "" {
		documentURL = DefaultDocumentURL
	}
	return &Coordinator{
		documentURL: documentURL,
		storage:     storage,
		session:     session,
		httpClient:  httpClient,
		timeout:     timeout,
		logger:      logger,
		cache:       NewCache(storage, logger),
		legacy:      NewLegacyReader(storage, logger),
		now:         time.Now,
	}
}

// Cache exposes the coordinator's local cache.
func (c *Coordinator) Cache() *Cache {
	return c.cache
}

// Legacy exposes the coordinator's legacy reader.
func (c *Coordinator) Legacy() *LegacyReader {
	return c.legacy
}

// Fetch returns a private copy of the current document. It never fails: when
// the network read fails it falls back to the cache, then legacy storage,
// then the built-in default.
func (c *Coordinator) Fetch(ctx context.Context, opts FetchOptions) content.Document {
	if !opts.Force && !c.Migrated(ctx) {
		if legacy := c.legacy.Read(ctx); legacy != nil {
			c.adopt(*legacy)
			c.cache.Write(ctx, *legacy)
			return legacy.Clone()
		}
	}

	if !opts.Force {
		if doc, ok := c.Snapshot(); ok {
			return doc
		}
	} else {
		c.group.Forget(flightKey)
	}

	flightCtx := context.WithoutCancel(ctx)
	result := c.group.DoChan(flightKey, func() (any, error) {
		return c.load(flightCtx), nil
	})

	select {
	case res := <-result:
		doc := res.Val.(content.Document)
		return doc.Clone()
	case <-ctx.Done():
		c.logger.Debug("fetch abandoned by caller", zap.Error(ctx.Err()))
		return c.fallback(flightCtx)
	}
}

// Snapshot returns a copy of the in-memory document, if any.
func (c *Coordinator) Snapshot() (content.Document, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.memory == nil {
		return content.Document{}, false
	}
	return c.memory.Clone(), true
}

// Reset drops the in-memory document so the next Fetch goes to the network.
func (c *Coordinator) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.memory = nil
}

// Migrated reports whether this site has moved off legacy storage.
func (c *Coordinator) Migrated(ctx context.Context) bool {
	value, _, err := c.storage.Get(ctx, MigrationFlagKey)
	if err != nil {
		c.logger.Warn("migration flag unreadable", zap.Error(err))
		return false
	}
	return value == "1"
}

// MarkMigrated sets the migration flag so legacy records are no longer
// preferred over the remote document.
func (c *Coordinator) MarkMigrated(ctx context.Context) Outcome {
	outcome := Outcome{Op: "write", Key: MigrationFlagKey, Err: c.storage.Set(ctx, MigrationFlagKey, "1")}
	c.cache.report(outcome)
	return outcome
}

func (c *Coordinator) adopt(doc content.Document) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.memory = &doc
}

func (c *Coordinator) load(ctx context.Context) content.Document {
	doc, err := c.fetchRemote(ctx)
	if err == nil {
		c.adopt(doc)
		c.cache.Write(ctx, doc)
		return doc
	}
	c.logger.Warn("document fetch failed, using local fallback",
		zap.String("url", c.documentURL),
		zap.Error(err),
	)
	doc = c.fallback(ctx)
	c.adopt(doc)
	return doc
}

func (c *Coordinator) fallback(ctx context.Context) content.Document {
	if cached := c.cache.Read(ctx); cached != nil {
		return *cached
	}
	if legacy := c.legacy.Read(ctx); legacy != nil {
		return *legacy
	}
	return content.Default()
}

func (c *Coordinator) fetchRemote(ctx context.Context) (content.Document, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.documentURL, nil)
	if err != nil {
		return content.Document{}, fmt.Errorf("build document request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Cache-Control", "no-store")
	req.Header.Set("Pragma", "no-cache")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return content.Document{}, fmt.Errorf("fetch document: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return content.Document{}, fmt.Errorf("failed to fetch document (%d)", resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return content.Document{}, fmt.Errorf("read document body: %w", err)
	}
	var payload any
	if err := json.Unmarshal(body, &payload); err != nil {
		return content.Document{}, fmt.Errorf("decode document body: %w", err)
	}
	return content.Merge(unwrapEnvelope(payload)), nil
}

// unwrapEnvelope accepts the edge service's {ok, cms, sha} response in place
// of a bare document.
func unwrapEnvelope(payload any) any {
	obj, ok := payload.(map[string]any)
	if !ok {
		return payload
	}
	inner, hasCMS := obj["cms"].(map[string]any)
	if okFlag, _ := obj["ok"].(bool); okFlag && hasCMS {
		return inner
	}
	return payload
}

// AdminKey returns the operator credential stored for this session, or ""
// when none is set.
func (c *Coordinator) AdminKey(ctx context.Context) (string, error) {
	value, _, err := c.session.Get(ctx, AdminKeySession)
	if err != nil {
		return "", err
	}
	return value, nil
}

func (c *Coordinator) SetAdminKey(ctx context.Context, value string) error {
	return c.session.Set(ctx, AdminKeySession, value)
}

func (c *Coordinator) ClearAdminKey(ctx context.Context) error {
	return c.session.Remove(ctx, AdminKeySession)
}
