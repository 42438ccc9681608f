// ABOUTME: Fingerprint Cache holding serialized and precompressed bodies per resource key
// ABOUTME: Builds run at most once per key; concurrent first requests share one build

package fingerprint

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/singleflight"

	"github.com/2389/hub-gateway/internal/negotiate"
)

// Builder produces the serialized body of a resource
type Builder func(ctx context.Context) ([]byte, error)

// Entry is a cached representation of one resource
type Entry struct {
	Key   string
	Token Token

	bodies map[negotiate.Encoding][]byte
}

// ETag returns the entry's token
func (e *Entry) ETag() string {
	return string(e.Token)
}

// Encoded returns the body in enc, or false when it was not precomputed
func (e *Entry) Encoded(enc negotiate.Encoding) ([]byte, bool) {
	body, ok := e.bodies[enc]
	return body, ok
}

// Body returns the identity body
func (e *Entry) Body() []byte {
	return e.bodies[negotiate.Identity]
}

// Options configures a Cache
type Options struct {
	// MinSize is the smallest body that gets compressed variants
	MinSize int
	Logger  *slog.Logger
}

// Stats reports cache activity
type Stats struct {
	Entries int   `json:"entries"`
	Hits    int64 `json:"hits"`
	Builds  int64 `json:"builds"`
}

// Cache maps resource keys to entries for the lifetime of one snapshot.
// There is no eviction: the key set is bounded by the snapshot.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]*Entry
	group   singleflight.Group

	compressor *negotiate.Compressor
	minSize    int
	logger     *slog.Logger

	hits   atomic.Int64
	builds atomic.Int64
}

// New creates an empty Cache compressing with c
func New(c *negotiate.Compressor, opts Options) *Cache {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Cache{
		entries:    make(map[string]*Entry),
		compressor: c,
		minSize:    opts.MinSize,
		logger:     logger.With("component", "fingerprint"),
	}
}

func (c *Cache) lookup(key string) (*Entry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[key]
	return e, ok
}

// GetOrBuild returns the entry for key, running build if it is not cached.
// build runs at most once per key; concurrent callers wait for it and share
// the result. A failed build is not cached. The caller's context is checked
// before work starts, but the build itself is not cancelled by it.
func (c *Cache) GetOrBuild(ctx context.Context, key string, build Builder) (*Entry, error) {
	if e, ok := c.lookup(key); ok {
		c.hits.Add(1)
		return e, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	v, err, shared := c.group.Do(key, func() (any, error) {
		// A flight that finished before this one started has already stored the entry.
		if e, ok := c.lookup(key); ok {
			return e, nil
		}

		body, err := build(context.WithoutCancel(ctx))
		if err != nil {
			return nil, err
		}
		e, err := c.Build(key, body)
		if err != nil {
			return nil, err
		}

		c.mu.Lock()
		c.entries[key] = e
		c.mu.Unlock()
		c.builds.Add(1)

		c.logger.Debug("built entry", "key", key, "token", e.Token, "size", len(body))
		return e, nil
	})
	if err != nil {
		return nil, err
	}
	if shared {
		c.hits.Add(1)
	}
	return v.(*Entry), nil
}

// Build creates an uncached entry for body.
// Bodies shorter than the minimum size only get the identity encoding.
func (c *Cache) Build(key string, body []byte) (*Entry, error) {
	e := &Entry{
		Key:    key,
		Token:  Fingerprint(body),
		bodies: map[negotiate.Encoding][]byte{negotiate.Identity: body},
	}
	if len(body) < c.minSize {
		return e, nil
	}

	for _, enc := range []negotiate.Encoding{negotiate.Zstd, negotiate.Gzip} {
		encoded, err := c.compressor.Compress(enc, body)
		if err != nil {
			return nil, fmt.Errorf("compressing %s with %s: %w", key, enc, err)
		}
		e.bodies[enc] = encoded
	}
	return e, nil
}

// Stats returns a snapshot of the cache counters
func (c *Cache) Stats() Stats {
	c.mu.RLock()
	n := len(c.entries)
	c.mu.RUnlock()
	return Stats{
		Entries: n,
		Hits:    c.hits.Load(),
		Builds:  c.builds.Load(),
	}
}
