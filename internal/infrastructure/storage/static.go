package storage

import (
	"context"
	"strings"
	"sync"
	"time"

	"txsentry/internal/domain"
)

const seedSource = "seed"

var seedLabels = []domain.AutomatedLabel{
	{Address: "0x7a250d5630b4cf539739df2c5dacb4c659f2488d", Label: "router", Source: seedSource},       // Uniswap V2 router
	{Address: "0xe592427a0aece92de3edee1f18e0157c05861564", Label: "router", Source: seedSource},       // Uniswap V3 router
	{Address: "0x68b3465833fb72a70ecdf485e0e4c7bd8665fc45", Label: "router", Source: seedSource},       // Uniswap V3 router 2
	{Address: "0xd9e1ce17f2641f24ae83637ab66a2cca9c378b9f", Label: "router", Source: seedSource},       // SushiSwap router
	{Address: "0x7d2768de32b0b80b7a3454c06bdac94a69ddc7a9", Label: "lending_pool", Source: seedSource}, // Aave V2
	{Address: "0x87870bca3f3fd6335c3f4ce8392d69350b4fa4e2", Label: "lending_pool", Source: seedSource}, // Aave V3
	{Address: "0x3d9819210a31b4961b30ef54be2aed79b9c9cd3b", Label: "lending_pool", Source: seedSource}, // Compound comptroller
	{Address: "0xba12222222228d8ba445958a75a0704d566bf2c8", Label: "vault", Source: seedSource},        // Balancer vault
	{Address: "0x1111111254eeb25477b68fb85ed929f73a960582", Label: "aggregator", Source: seedSource},   // 1inch v5
}

// StaticRegistry is an in-memory registry preloaded with well-known routers, lending pools
// and aggregators. Upserts live for the life of the process.
type StaticRegistry struct {
	mu     sync.RWMutex
	labels map[string]domain.AutomatedLabel
}

func NewStaticRegistry() *StaticRegistry {
	r := &StaticRegistry{labels: make(map[string]domain.AutomatedLabel, len(seedLabels))}
	for _, label := range seedLabels {
		r.labels[label.Address] = label
	}
	return r
}

func (r *StaticRegistry) KnownAutomated(_ context.Context, addresses []string) (map[string]bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	known := make(map[string]bool)
	for _, addr := range addresses {
		addr = strings.ToLower(addr)
		if _, ok := r.labels[addr]; ok {
			known[addr] = true
		}
	}
	return known, nil
}

func (r *StaticRegistry) Upsert(ctx context.Context, label domain.AutomatedLabel) error {
	return r.UpsertLabels(ctx, []domain.AutomatedLabel{label})
}

func (r *StaticRegistry) UpsertLabels(_ context.Context, labels []domain.AutomatedLabel) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, label := range labels {
		label.Address = strings.ToLower(label.Address)
		if label.UpdatedAt.IsZero() {
			label.UpdatedAt = time.Now().UTC()
		}
		r.labels[label.Address] = label
	}
	return nil
}

func (r *StaticRegistry) Ping(context.Context) error { return nil }

func (r *StaticRegistry) Close() error { return nil }
