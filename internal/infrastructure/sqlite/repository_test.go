package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"txsentry/internal/domain"
)

func newTestRepository(t *testing.T) *Repository {
	t.Helper()
	repo, err := NewRepository(filepath.Join(t.TempDir(), "registry.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })
	return repo
}

func TestUpsertAndLookup(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()
	ts := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, repo.UpsertLabels(ctx, []domain.AutomatedLabel{
		{Address: "0xAAAA000000000000000000000000000000000001", Label: "router", Source: "seed", UpdatedAt: ts},
		{Address: "0xaaaa000000000000000000000000000000000002", Label: "mev_bot", Source: "mev_heuristic", UpdatedAt: ts},
	}))

	known, err := repo.KnownAutomated(ctx, []string{
		"0xaaaa000000000000000000000000000000000001",
		"0xAAAA000000000000000000000000000000000002",
		"0xaaaa000000000000000000000000000000000003",
	})
	require.NoError(t, err)
	assert.Equal(t, map[string]bool{
		"0xaaaa000000000000000000000000000000000001": true,
		"0xaaaa000000000000000000000000000000000002": true,
	}, known)
}

func TestUpsertReplacesLabel(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()
	addr := "0xaaaa000000000000000000000000000000000001"

	require.NoError(t, repo.Upsert(ctx, domain.AutomatedLabel{Address: addr, Label: "mev_bot", Source: "mev_heuristic"}))
	later := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, repo.Upsert(ctx, domain.AutomatedLabel{Address: addr, Label: "market_maker", Source: "manual", UpdatedAt: later}))

	label, ok, err := repo.Label(ctx, addr)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "market_maker", label.Label)
	assert.Equal(t, "manual", label.Source)
	assert.True(t, later.Equal(label.UpdatedAt))

	_, ok, err = repo.Label(ctx, "0xaaaa000000000000000000000000000000000009")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestKnownAutomatedEmpty(t *testing.T) {
	repo := newTestRepository(t)
	known, err := repo.KnownAutomated(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, known)
	assert.NoError(t, repo.Ping(context.Background()))
}
