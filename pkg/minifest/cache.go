package minifest

import (
	"context"
	"sync"

	"github.com/packforge/packd/pkg/langpack"
)

// Cache serves minifest documents with their integrity tags, keyed by pack
// identity.
//
// With force=true any cached value for the identity is discarded and rebuilt
// from current pack state before returning; the publication orchestrator does
// this right after persisting a new version so lookups never serve a stale
// descriptor until natural expiry.
type Cache interface {
	GetOrBuild(ctx context.Context, pack *langpack.LangPack, force bool) (doc []byte, etag string, err error)

	// Invalidate drops any cached entry for the identity (used on delete).
	Invalidate(ctx context.Context, uuid string) error
}

type memoryEntry struct {
	doc  []byte
	etag string
}

// MemoryCache is an in-process Cache for tests and single-node deployments.
type MemoryCache struct {
	builder *Builder

	mu      sync.RWMutex
	entries map[string]memoryEntry
}

func NewMemoryCache(builder *Builder) *MemoryCache {
	return &MemoryCache{
		builder: builder,
		entries: make(map[string]memoryEntry),
	}
}

func (c *MemoryCache) GetOrBuild(ctx context.Context, pack *langpack.LangPack, force bool) ([]byte, string, error) {
	if !pack.Active {
		return nil, "", ErrNotAvailable
	}

	if force {
		// Drop the old entry before rebuilding: if the build fails, a stale
		// descriptor must not keep being served for the new pack state.
		c.mu.Lock()
		delete(c.entries, pack.UUID)
		c.mu.Unlock()
	} else {
		c.mu.RLock()
		entry, ok := c.entries[pack.UUID]
		c.mu.RUnlock()
		if ok {
			return entry.doc, entry.etag, nil
		}
	}

	doc, etag, err := c.builder.Build(pack)
	if err != nil {
		return nil, "", err
	}

	c.mu.Lock()
	c.entries[pack.UUID] = memoryEntry{doc: doc, etag: etag}
	c.mu.Unlock()
	return doc, etag, nil
}

func (c *MemoryCache) Invalidate(ctx context.Context, uuid string) error {
	c.mu.Lock()
	delete(c.entries, uuid)
	c.mu.Unlock()
	return nil
}
