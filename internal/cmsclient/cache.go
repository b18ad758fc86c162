package cmsclient

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"sitecms/internal/content"
	"sitecms/internal/localstore"
)

// Storage keys owned by the client.
const (
	CacheKey         = "cms_data_cache_v1"
	MigrationFlagKey = "cms_migrated_v1"
	AdminKeySession  = "cms_admin_key"
)

// Outcome records the result of a best-effort storage operation. Callers are
// free to ignore it; failures are also reported to the logger.
type Outcome struct {
	Op  string
	Key string
	Err error
}

func (o Outcome) OK() bool {
	return o.Err == nil
}

// Cache keeps a single serialized snapshot of the document in local storage.
type Cache struct {
	storage localstore.Storage
	logger  *zap.Logger
}

func NewCache(storage localstore.Storage, logger *zap.Logger) *Cache {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Cache{storage: storage, logger: logger}
}

// Write stores doc. It never fails from the caller's point of view.
func (c *Cache) Write(ctx context.Context, doc content.Document) Outcome {
	outcome := Outcome{Op: "write", Key: CacheKey}
	raw, err := json.Marshal(doc)
	if err != nil {
		outcome.Err = fmt.Errorf("encode cache snapshot: %w", err)
	} else if err := c.storage.Set(ctx, CacheKey, string(raw)); err != nil {
		outcome.Err = err
	}
	c.report(outcome)
	return outcome
}

// Read returns the cached document passed through Merge, or nil when there is
// no usable snapshot.
func (c *Cache) Read(ctx context.Context) *content.Document {
	raw, found, err := c.storage.Get(ctx, CacheKey)
	if err != nil {
		c.report(Outcome{Op: "read", Key: CacheKey, Err: err})
		return nil
	}
	if !found || raw == "" {
		return nil
	}
	var decoded any
	if err := json.Unmarshal([]byte(raw), &decoded); err != nil {
		c.report(Outcome{Op: "read", Key: CacheKey, Err: fmt.Errorf("decode cache snapshot: %w", err)})
		return nil
	}
	doc := content.Merge(decoded)
	return &doc
}

// Clear drops the snapshot.
func (c *Cache) Clear(ctx context.Context) Outcome {
	outcome := Outcome{Op: "remove", Key: CacheKey, Err: c.storage.Remove(ctx, CacheKey)}
	c.report(outcome)
	return outcome
}

func (c *Cache) report(outcome Outcome) {
	if outcome.OK() {
		return
	}
	c.logger.Warn("local storage operation failed",
		zap.String("op", outcome.Op),
		zap.String("key", outcome.Key),
		zap.Error(outcome.Err),
	)
}
