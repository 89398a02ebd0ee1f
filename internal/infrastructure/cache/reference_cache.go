// Package cache holds the per-session reference data and its optional shared Redis tier.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/DataProRU/Auto-transfers-accounting/internal/domain/reference"
)

// ErrMiss is returned by a Tier when the key is absent.
var ErrMiss = errors.New("cache miss")

// Loader fetches the reference bundle from the backend.
type Loader interface {
	FormData(ctx context.Context) (reference.Bundle, error)
}

// Tier is a shared byte store consulted before the backend.
type Tier interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// ReferenceCache loads reference data once per session and serves it until invalidated.
//
// Thread Safety: Safe for concurrent use. Concurrent first reads share one load.
type ReferenceCache struct {
	loader  Loader
	catalog reference.Catalog
	tier    Tier
	ttl     time.Duration
	logger  *zap.Logger

	loadMu sync.Mutex

	mu    sync.RWMutex
	scope string
	data  *reference.Data
	gen   uint64
}

// Option configures a ReferenceCache
type Option func(*ReferenceCache)

// WithTier adds a shared tier whose entries live for ttl.
func WithTier(t Tier, ttl time.Duration) Option {
	return func(c *ReferenceCache) {
		c.tier = t
		c.ttl = ttl
	}
}

// WithLogger sets the logger
func WithLogger(l *zap.Logger) Option {
	return func(c *ReferenceCache) {
		c.logger = l
	}
}

// NewReferenceCache creates an empty cache.
func NewReferenceCache(loader Loader, catalog reference.Catalog, opts ...Option) *ReferenceCache {
	c := &ReferenceCache{
		loader:  loader,
		catalog: catalog,
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get returns the reference data of scope (the signed-in username), loading it on
// first use. A different scope discards whatever was cached before.
func (c *ReferenceCache) Get(ctx context.Context, scope string) (*reference.Data, error) {
	if d := c.cached(scope); d != nil {
		return d, nil
	}

	c.loadMu.Lock()
	defer c.loadMu.Unlock()

	if d := c.cached(scope); d != nil {
		return d, nil
	}

	c.mu.RLock()
	gen := c.gen
	c.mu.RUnlock()

	bundle, err := c.fetch(ctx, scope)
	if err != nil {
		return nil, err
	}
	d, err := reference.Load(bundle, c.catalog)
	if err != nil {
		return nil, fmt.Errorf("failed to bind reference data: %w", err)
	}
	for _, name := range d.Unbound {
		c.logger.Warn("backend operation type matches no kind", zap.String("operation", name))
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gen != gen {
		// invalidated while loading
		return d, nil
	}
	c.scope = scope
	c.data = d
	return d, nil
}

// Peek returns the cached data without loading.
func (c *ReferenceCache) Peek() *reference.Data {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.data
}

// Invalidate drops the cached data and the shared entry of the cached scope.
func (c *ReferenceCache) Invalidate(ctx context.Context) {
	c.mu.Lock()
	scope := c.scope
	c.scope = ""
	c.data = nil
	c.gen++
	c.mu.Unlock()

	if c.tier != nil && scope != "" {
		if err := c.tier.Delete(ctx, scope); err != nil {
			c.logger.Warn("failed to drop shared reference entry", zap.String("scope", scope), zap.Error(err))
		}
	}
}

func (c *ReferenceCache) cached(scope string) *reference.Data {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.data != nil && c.scope == scope {
		return c.data
	}
	return nil
}

func (c *ReferenceCache) fetch(ctx context.Context, scope string) (reference.Bundle, error) {
	if c.tier != nil {
		raw, err := c.tier.Get(ctx, scope)
		switch {
		case err == nil:
			var b reference.Bundle
			if jerr := json.Unmarshal(raw, &b); jerr == nil {
				c.logger.Debug("reference data served from shared tier", zap.String("scope", scope))
				return b, nil
			}
			c.logger.Warn("corrupt shared reference entry", zap.String("scope", scope))
			_ = c.tier.Delete(ctx, scope)
		case !errors.Is(err, ErrMiss):
			c.logger.Warn("shared reference tier unavailable", zap.Error(err))
		}
	}

	b, err := c.loader.FormData(ctx)
	if err != nil {
		return reference.Bundle{}, err
	}

	if c.tier != nil {
		raw, err := json.Marshal(b)
		if err == nil {
			err = c.tier.Set(ctx, scope, raw, c.ttl)
		}
		if err != nil {
			c.logger.Warn("failed to share reference data", zap.Error(err))
		}
	}
	return b, nil
}
