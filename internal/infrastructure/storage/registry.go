package storage

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"txsentry/internal/domain"
	"txsentry/internal/infrastructure/mysql"
	"txsentry/internal/infrastructure/sqlite"
)

// Registry is the automated-address store: routers, market makers and bots whose repeated
// trading is expected and must not count as wash trading.
type Registry interface {
	KnownAutomated(ctx context.Context, addresses []string) (map[string]bool, error)
	Upsert(ctx context.Context, label domain.AutomatedLabel) error
	UpsertLabels(ctx context.Context, labels []domain.AutomatedLabel) error
	Ping(ctx context.Context) error
	Close() error
}

type Config struct {
	MySQLDSN   string
	SQLitePath string
	RedisAddr  string
	CacheTTL   time.Duration
}

// Open picks the persistent backend (mysql, then sqlite, then the in-memory seed alone),
// wraps it with the redis cache when configured, and unions the well-known seed on top.
func Open(ctx context.Context, cfg Config) (Registry, error) {
	var (
		base    Registry
		backend string
	)
	switch {
	case strings.TrimSpace(cfg.MySQLDSN) != "":
		repo, err := mysql.NewRepository(cfg.MySQLDSN)
		if err != nil {
			return nil, err
		}
		base, backend = repo, "mysql"
	case strings.TrimSpace(cfg.SQLitePath) != "":
		repo, err := sqlite.NewRepository(cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		base, backend = repo, "sqlite"
	default:
		slog.Info("automated registry backend", "backend", "static")
		return NewStaticRegistry(), nil
	}

	cached, err := NewCachedRegistry(ctx, base, CacheConfig{Addr: cfg.RedisAddr, TTL: cfg.CacheTTL})
	if err != nil {
		_ = base.Close()
		return nil, err
	}
	slog.Info("automated registry backend", "backend", backend, "cache", cfg.RedisAddr != "")
	return &seededRegistry{Registry: cached, seed: NewStaticRegistry()}, nil
}

// seededRegistry answers seed addresses without a lookup and sends the rest to the backend.
type seededRegistry struct {
	Registry
	seed *StaticRegistry
}

func (r *seededRegistry) KnownAutomated(ctx context.Context, addresses []string) (map[string]bool, error) {
	known, _ := r.seed.KnownAutomated(ctx, addresses)
	rest := make([]string, 0, len(addresses))
	for _, addr := range addresses {
		if !known[strings.ToLower(addr)] {
			rest = append(rest, addr)
		}
	}
	if len(rest) == 0 {
		return known, nil
	}
	hits, err := r.Registry.KnownAutomated(ctx, rest)
	for addr, ok := range hits {
		if ok {
			known[addr] = true
		}
	}
	return known, err
}

func (r *seededRegistry) Close() error {
	return errors.Join(r.Registry.Close(), r.seed.Close())
}
