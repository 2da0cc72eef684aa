package manifest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/mizuos/shell/internal/domain/fault"
)

// DefaultFetchTimeout bounds a shared fetch once its callers have gone
const DefaultFetchTimeout = 30 * time.Second

// Cache fetches manifests once per URL. Concurrent loads of the same URL
// share one fetch.
type Cache struct {
	fetcher Fetcher
	logger  *zap.Logger

	mu      sync.RWMutex
	entries map[string]*Manifest
	group   singleflight.Group
}

// NewCache creates a manifest cache on top of fetcher
func NewCache(fetcher Fetcher, logger *zap.Logger) *Cache {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Cache{
		fetcher: fetcher,
		logger:  logger,
		entries: make(map[string]*Manifest),
	}
}

// Load returns the cached manifest for url, fetching and validating it on
// first use. Failures are not cached and are reported as *fault.ManifestError.
func (c *Cache) Load(ctx context.Context, url string) (*Manifest, error) {
	if m, ok := c.Get(url); ok {
		return m, nil
	}

	ch := c.group.DoChan(url, func() (interface{}, error) {
		if m, ok := c.Get(url); ok {
			return m, nil
		}

		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), DefaultFetchTimeout)
		defer cancel()
		data, err := c.fetcher.Fetch(fetchCtx, url)
		if err != nil {
			return nil, &fault.ManifestError{URL: url, Err: err}
		}
		m, err := Parse(data, url)
		if err != nil {
			return nil, &fault.ManifestError{URL: url, Err: err}
		}

		c.Put(url, m)
		c.logger.Debug("Manifest cached", zap.String("url", url), zap.String("app", m.Name))
		return m, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*Manifest), nil
	case <-ctx.Done():
		return nil, &fault.ManifestError{URL: url, Err: fmt.Errorf("fetch: %w", ctx.Err())}
	}
}

// Get returns a cached manifest without fetching
func (c *Cache) Get(url string) (*Manifest, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	m, ok := c.entries[url]
	return m, ok
}

// Put stores a manifest under url
func (c *Cache) Put(url string, m *Manifest) {
	c.mu.Lock()
	c.entries[url] = m
	c.mu.Unlock()
}

// Invalidate drops url from the cache
func (c *Cache) Invalidate(url string) {
	c.mu.Lock()
	delete(c.entries, url)
	c.mu.Unlock()
}

// Len returns the number of cached manifests
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
