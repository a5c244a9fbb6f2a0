package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"txsentry/internal/domain"
)

const (
	uniswapV2 = "0x7a250d5630b4cf539739df2c5dacb4c659f2488d"
	botA      = "0xb000000000000000000000000000000000000001"
	botB      = "0xb000000000000000000000000000000000000002"
)

type fakeRegistry struct {
	known   map[string]bool
	lookups [][]string
	upserts []domain.AutomatedLabel
	err     error
	closed  bool
}

func (f *fakeRegistry) KnownAutomated(_ context.Context, addresses []string) (map[string]bool, error) {
	f.lookups = append(f.lookups, append([]string(nil), addresses...))
	if f.err != nil {
		return nil, f.err
	}
	hits := make(map[string]bool)
	for _, addr := range addresses {
		if f.known[addr] {
			hits[addr] = true
		}
	}
	return hits, nil
}

func (f *fakeRegistry) Upsert(ctx context.Context, label domain.AutomatedLabel) error {
	return f.UpsertLabels(ctx, []domain.AutomatedLabel{label})
}

func (f *fakeRegistry) UpsertLabels(_ context.Context, labels []domain.AutomatedLabel) error {
	if f.err != nil {
		return f.err
	}
	f.upserts = append(f.upserts, labels...)
	return nil
}

func (f *fakeRegistry) Ping(context.Context) error { return f.err }

func (f *fakeRegistry) Close() error {
	f.closed = true
	return nil
}

func TestStaticRegistrySeedAndUpsert(t *testing.T) {
	ctx := context.Background()
	reg := NewStaticRegistry()

	known, err := reg.KnownAutomated(ctx, []string{"0x7A250D5630B4CF539739DF2C5DACB4C659F2488D", botA})
	require.NoError(t, err)
	assert.Equal(t, map[string]bool{uniswapV2: true}, known)

	require.NoError(t, reg.Upsert(ctx, domain.AutomatedLabel{Address: "0xB000000000000000000000000000000000000001", Label: "mev_bot"}))
	known, err = reg.KnownAutomated(ctx, []string{botA})
	require.NoError(t, err)
	assert.True(t, known[botA])
}

func TestSeededRegistrySkipsSeedLookups(t *testing.T) {
	base := &fakeRegistry{known: map[string]bool{botA: true}}
	reg := &seededRegistry{Registry: base, seed: NewStaticRegistry()}

	known, err := reg.KnownAutomated(context.Background(), []string{uniswapV2, botA, botB})
	require.NoError(t, err)
	assert.Equal(t, map[string]bool{uniswapV2: true, botA: true}, known)
	require.Len(t, base.lookups, 1)
	assert.Equal(t, []string{botA, botB}, base.lookups[0])

	base.lookups = nil
	known, err = reg.KnownAutomated(context.Background(), []string{uniswapV2})
	require.NoError(t, err)
	assert.True(t, known[uniswapV2])
	assert.Empty(t, base.lookups)

	require.NoError(t, reg.Close())
	assert.True(t, base.closed)
}

func TestSeededRegistryKeepsSeedOnBackendError(t *testing.T) {
	base := &fakeRegistry{err: errors.New("db down")}
	reg := &seededRegistry{Registry: base, seed: NewStaticRegistry()}

	known, err := reg.KnownAutomated(context.Background(), []string{uniswapV2, botA})
	require.Error(t, err)
	assert.Equal(t, map[string]bool{uniswapV2: true}, known)
}

func TestCachedRegistryFillsMisses(t *testing.T) {
	client, mock := redismock.NewClientMock()
	base := &fakeRegistry{known: map[string]bool{botB: true}}
	reg := newCachedRegistry(base, client, time.Minute)
	ctx := context.Background()

	mock.ExpectGet(registryVersionKey).RedisNil()
	mock.ExpectMGet(registryKey("0", botA), registryKey("0", botB)).SetVal([]interface{}{"1", nil})
	mock.ExpectSet(registryKey("0", botB), "1", time.Minute).SetVal("OK")

	known, err := reg.KnownAutomated(ctx, []string{botA, botB})
	require.NoError(t, err)
	assert.Equal(t, map[string]bool{botA: true, botB: true}, known)
	require.Len(t, base.lookups, 1)
	assert.Equal(t, []string{botB}, base.lookups[0])
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCachedRegistryCachesNegativeAnswers(t *testing.T) {
	client, mock := redismock.NewClientMock()
	base := &fakeRegistry{}
	reg := newCachedRegistry(base, client, time.Minute)

	mock.ExpectGet(registryVersionKey).SetVal("4")
	mock.ExpectMGet(registryKey("4", botA)).SetVal([]interface{}{"0"})

	known, err := reg.KnownAutomated(context.Background(), []string{botA})
	require.NoError(t, err)
	assert.Empty(t, known)
	assert.Empty(t, base.lookups)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCachedRegistryUpsertBumpsVersion(t *testing.T) {
	client, mock := redismock.NewClientMock()
	base := &fakeRegistry{}
	reg := newCachedRegistry(base, client, time.Minute)

	mock.ExpectIncr(registryVersionKey).SetVal(1)
	require.NoError(t, reg.UpsertLabels(context.Background(), []domain.AutomatedLabel{{Address: botA, Label: "mev_bot"}}))
	require.Len(t, base.upserts, 1)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCachedRegistryFallsBackWhenCacheUnavailable(t *testing.T) {
	client, mock := redismock.NewClientMock()
	base := &fakeRegistry{known: map[string]bool{botA: true}}
	reg := newCachedRegistry(base, client, time.Minute)

	mock.ExpectGet(registryVersionKey).SetErr(errors.New("connection refused"))

	known, err := reg.KnownAutomated(context.Background(), []string{botA})
	require.NoError(t, err)
	assert.True(t, known[botA])
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestOpenWithoutBackendUsesSeed(t *testing.T) {
	reg, err := Open(context.Background(), Config{})
	require.NoError(t, err)
	known, err := reg.KnownAutomated(context.Background(), []string{uniswapV2})
	require.NoError(t, err)
	assert.True(t, known[uniswapV2])
}

func TestOpenSQLite(t *testing.T) {
	ctx := context.Background()
	reg, err := Open(ctx, Config{SQLitePath: t.TempDir() + "/registry.db"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = reg.Close() })

	require.NoError(t, reg.Upsert(ctx, domain.AutomatedLabel{Address: botA, Label: "mev_bot", Source: "mev_heuristic"}))
	known, err := reg.KnownAutomated(ctx, []string{uniswapV2, botA, botB})
	require.NoError(t, err)
	assert.Equal(t, map[string]bool{uniswapV2: true, botA: true}, known)
	assert.NoError(t, reg.Ping(ctx))
}
