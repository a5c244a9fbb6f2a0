package storage

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"txsentry/internal/domain"
)

const (
	registryVersionKey = "txsentry:automated:version"
	registryKeyPrefix  = "txsentry:automated:v"
	defaultCacheTTL    = 5 * time.Minute
)

type CacheConfig struct {
	Addr string
	TTL  time.Duration
}

// CachedRegistry caches per-address lookups in redis, hits and misses alike. Writes bump
// a version key so every cached answer is dropped at once.
type CachedRegistry struct {
	Registry
	cache *redis.Client
	ttl   time.Duration
}

func NewCachedRegistry(ctx context.Context, base Registry, cfg CacheConfig) (*CachedRegistry, error) {
	if base == nil {
		return nil, errors.New("base registry is required")
	}
	if strings.TrimSpace(cfg.Addr) == "" {
		return &CachedRegistry{Registry: base}, nil
	}
	client := redis.NewClient(&redis.Options{
		Addr: cfg.Addr,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}
	return newCachedRegistry(base, client, cfg.TTL), nil
}

func newCachedRegistry(base Registry, client *redis.Client, ttl time.Duration) *CachedRegistry {
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	return &CachedRegistry{Registry: base, cache: client, ttl: ttl}
}

func (r *CachedRegistry) KnownAutomated(ctx context.Context, addresses []string) (map[string]bool, error) {
	if r.cache == nil || len(addresses) == 0 {
		return r.Registry.KnownAutomated(ctx, addresses)
	}
	version, ok := r.cacheVersion(ctx)
	if !ok {
		return r.Registry.KnownAutomated(ctx, addresses)
	}

	keys := make([]string, len(addresses))
	for i, addr := range addresses {
		keys[i] = registryKey(version, addr)
	}
	cached, err := r.cache.MGet(ctx, keys...).Result()
	if err != nil {
		slog.Warn("registry cache read failed", "err", err)
		return r.Registry.KnownAutomated(ctx, addresses)
	}

	known := make(map[string]bool)
	var misses []string
	for i, value := range cached {
		addr := strings.ToLower(addresses[i])
		switch value {
		case "1":
			known[addr] = true
		case "0":
		default:
			misses = append(misses, addr)
		}
	}
	if len(misses) == 0 {
		return known, nil
	}

	hits, err := r.Registry.KnownAutomated(ctx, misses)
	if err != nil {
		return known, err
	}
	for _, addr := range misses {
		value := "0"
		if hits[addr] {
			known[addr] = true
			value = "1"
		}
		_ = r.cache.Set(ctx, registryKey(version, addr), value, r.ttl).Err()
	}
	return known, nil
}

func (r *CachedRegistry) Upsert(ctx context.Context, label domain.AutomatedLabel) error {
	if err := r.Registry.Upsert(ctx, label); err != nil {
		return err
	}
	r.invalidate(ctx)
	return nil
}

func (r *CachedRegistry) UpsertLabels(ctx context.Context, labels []domain.AutomatedLabel) error {
	if err := r.Registry.UpsertLabels(ctx, labels); err != nil {
		return err
	}
	if len(labels) > 0 {
		r.invalidate(ctx)
	}
	return nil
}

func (r *CachedRegistry) Close() error {
	var cacheErr error
	if r.cache != nil {
		cacheErr = r.cache.Close()
	}
	return errors.Join(r.Registry.Close(), cacheErr)
}

func (r *CachedRegistry) cacheVersion(ctx context.Context) (string, bool) {
	version, err := r.cache.Get(ctx, registryVersionKey).Result()
	if err == nil {
		return version, true
	}
	if errors.Is(err, redis.Nil) {
		return "0", true
	}
	return "", false
}

func (r *CachedRegistry) invalidate(ctx context.Context) {
	if r.cache == nil {
		return
	}
	_ = r.cache.Incr(ctx, registryVersionKey).Err()
}

func registryKey(version, address string) string {
	return registryKeyPrefix + version + ":" + strings.ToLower(address)
}
