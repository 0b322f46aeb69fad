// Package cache is the non-authoritative secondary store of §4.1: a
// Badger-backed string cache, used by templates.Store for global_templates
// bodies (schemas are not cached in it), mirroring the donor's own dual-backend storage/factory.go split
// between a source-of-truth store and a supporting KV layer. Losing this
// cache never loses data — callers recompute on a miss.
package cache

import (
	"fmt"
	"time"

	"github.com/timshannon/badgerhold/v4"
)

// SchemaCache stores string values keyed by a caller-supplied key. Its one
// caller, templates.Store, keys raw global template bodies by template kind
// so repeated resolutions skip the database round trip.
type SchemaCache struct {
	store *badgerhold.Store
}

type schemaEntry struct {
	Key       string `badgerholdKey:"Key"`
	Value     string
	CreatedAt time.Time
}

// Open initializes the Badger-backed store at dir. Badger's own GC and
// value-log compaction are left at their defaults; this cache is small and
// entirely rebuildable from the authoritative SQLite store.
func Open(dir string) (*SchemaCache, error) {
	opts := badgerhold.DefaultOptions
	opts.Dir = dir
	opts.ValueDir = dir
	opts.Logger = nil // arbor handles structured logging; Badger's own logger stays quiet
	store, err := badgerhold.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open schema cache at %s: %w", dir, err)
	}
	return &SchemaCache{store: store}, nil
}

func (c *SchemaCache) Close() error {
	return c.store.Close()
}

// Get returns the cached value for key, or ("", false) on a miss.
func (c *SchemaCache) Get(key string) (string, bool) {
	var entry schemaEntry
	err := c.store.Get(key, &entry)
	if err == badgerhold.ErrNotFound {
		return "", false
	}
	if err != nil {
		return "", false
	}
	return entry.Value, true
}

// Put stores value under key, overwriting any prior entry.
func (c *SchemaCache) Put(key, value string) error {
	entry := schemaEntry{Key: key, Value: value, CreatedAt: time.Now()}
	if err := c.store.Upsert(key, &entry); err != nil {
		return fmt.Errorf("cache put %s: %w", key, err)
	}
	return nil
}

// Purge drops every cached entry, used when a template body or schema
// source changes underneath a stable key.
func (c *SchemaCache) Purge() error {
	return c.store.Badger().DropPrefix([]byte(""))
}
