package persistence

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/spaceboi21/ai-professor-backend-sub006/platform/apperr"
)

// DialFunc opens a pool for a fully-composed connection string. Injectable
// so tests can substitute a dialer that does not reach a live server.
type DialFunc func(ctx context.Context, connString string) (*pgxpool.Pool, error)

// CacheObserver receives cache hit/miss notifications; wired to prometheus
// counters in production and left nil in most tests.
type CacheObserver interface {
	PoolCacheHit()
	PoolCacheMiss()
}

// TenantPools is the process-wide tenant connection cache: at most one live
// pool per distinct database name. Entries are created lazily on first
// lookup and live until Close; there is no per-tenant eviction.
//
// Concurrent first lookups for the same database name are collapsed through
// singleflight so both callers receive the identical handle.
type TenantPools struct {
	baseURI  string
	dial     DialFunc
	logger   *zap.Logger
	observer CacheObserver

	mu    sync.RWMutex
	pools map[string]*pgxpool.Pool
	group singleflight.Group
}

// TenantPoolsConfig configures the cache.
type TenantPoolsConfig struct {
	// BaseURI is the connection URI without a database path segment.
	BaseURI string
	// Dial defaults to NewPool with the composed connection string.
	Dial DialFunc
	// Observer is optional.
	Observer CacheObserver
}

// NewTenantPools validates the base URI and builds an empty cache.
func NewTenantPools(cfg TenantPoolsConfig, logger *zap.Logger) (*TenantPools, error) {
	if strings.TrimSpace(cfg.BaseURI) == "" {
		return nil, apperr.New(apperr.KindConfiguration, "errors.internal", "base connection URI is required")
	}
	if logger == nil {
		panic("tenant pools require logger")
	}

	dial := cfg.Dial
	if dial == nil {
		dial = func(ctx context.Context, connString string) (*pgxpool.Pool, error) {
			return NewPool(ctx, PoolConfig{ConnString: connString})
		}
	}

	return &TenantPools{
		baseURI:  strings.TrimRight(cfg.BaseURI, "/"),
		dial:     dial,
		logger:   logger,
		observer: cfg.Observer,
		pools:    make(map[string]*pgxpool.Pool),
	}, nil
}

// Get returns the live pool for databaseName, dialing and caching it on
// first use. Dial failures surface to the caller unchanged and leave no
// cache entry behind, so the next lookup retries.
func (p *TenantPools) Get(ctx context.Context, databaseName string) (*pgxpool.Pool, error) {
	name := strings.TrimSpace(databaseName)
	if name == "" {
		return nil, apperr.New(apperr.KindBadRequest, "errors.invalid_request", "database name is required")
	}

	p.mu.RLock()
	pool, ok := p.pools[name]
	p.mu.RUnlock()
	if ok {
		if p.observer != nil {
			p.observer.PoolCacheHit()
		}
		return pool, nil
	}

	v, err, _ := p.group.Do(name, func() (interface{}, error) {
		// Re-check under the flight: a previous flight may have populated
		// the entry between the fast path and here.
		p.mu.RLock()
		existing, ok := p.pools[name]
		p.mu.RUnlock()
		if ok {
			return existing, nil
		}

		if p.observer != nil {
			p.observer.PoolCacheMiss()
		}

		created, dialErr := p.dial(ctx, p.connString(name))
		if dialErr != nil {
			p.logger.Error("tenant database connection failed",
				zap.String("database", name),
				zap.Error(dialErr),
			)
			return nil, dialErr
		}

		p.mu.Lock()
		p.pools[name] = created
		p.mu.Unlock()

		p.logger.Info("tenant database connected", zap.String("database", name))
		return created, nil
	})
	if err != nil {
		return nil, err
	}

	return v.(*pgxpool.Pool), nil
}

// Close tears down every cached pool. Called once on process shutdown.
func (p *TenantPools) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()

	for name, pool := range p.pools {
		pool.Close()
		delete(p.pools, name)
	}
}

// Len reports the number of cached pools.
func (p *TenantPools) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.pools)
}

func (p *TenantPools) connString(databaseName string) string {
	return fmt.Sprintf("%s/%s", p.baseURI, databaseName)
}
