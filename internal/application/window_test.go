package application

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"txsentry/internal/domain"
)

// fakeSource serves pages keyed by cursor. A cursor listed in hang blocks until the
// request context ends.
type fakeSource struct {
	mu       sync.Mutex
	pages    map[string]Page
	hang     map[string]bool
	failOn   map[string]error
	requests []PageRequest
}

func (f *fakeSource) FetchPage(ctx context.Context, req PageRequest) (Page, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.mu.Unlock()

	if f.hang[req.Cursor] {
		<-ctx.Done()
		return Page{}, ctx.Err()
	}
	if err := f.failOn[req.Cursor]; err != nil {
		return Page{}, err
	}
	return f.pages[req.Cursor], nil
}

func threePageSource() *fakeSource {
	return &fakeSource{pages: map[string]Page{
		"":   {Records: []RawRecord{swapRecord(5, 30, 0, "buy"), swapRecord(4, 20, 0, "sell")}, Cursor: "c1"},
		"c1": {Records: []RawRecord{swapRecord(3, 15, 0, "buy"), swapRecord(4, 20, 0, "sell")}, Cursor: "c2"},
		"c2": {Records: []RawRecord{swapRecord(1, 10, 0, "buy"), {TransactionHash: "bad"}}},
	}}
}

func TestFetchWindowWalksAllPages(t *testing.T) {
	src := threePageSource()

	window, err := FetchWindow(context.Background(), src, WindowRequest{Scope: ScopeToken, Address: addrN(50), PageSize: 2, MaxPages: 5}, FetchConfig{Workers: 3})
	require.NoError(t, err)

	assert.False(t, window.Partial)
	assert.Empty(t, window.Note)
	assert.Equal(t, 3, window.PagesFetched)
	assert.Equal(t, 1, window.DroppedRecords)
	require.Len(t, window.Transactions, 4)
	var blocks []uint64
	for _, tx := range window.Transactions {
		blocks = append(blocks, tx.BlockNumber)
	}
	assert.Equal(t, []uint64{10, 15, 20, 30}, blocks)

	require.Len(t, src.requests, 3)
	assert.Equal(t, "c2", src.requests[2].Cursor)
	assert.Equal(t, 2, src.requests[0].Limit)
}

func TestFetchWindowPageCeilingIsPartial(t *testing.T) {
	window, err := FetchWindow(context.Background(), threePageSource(), WindowRequest{Scope: ScopeToken, MaxPages: 2}, FetchConfig{Workers: 2})
	require.NoError(t, err)

	assert.True(t, window.Partial)
	assert.Contains(t, window.Note, "page ceiling")
	assert.Equal(t, 2, window.PagesFetched)
	assert.Len(t, window.Transactions, 3)
}

func TestFetchWindowTimeoutKeepsFetchedPages(t *testing.T) {
	src := threePageSource()
	src.hang = map[string]bool{"c1": true}

	window, err := FetchWindow(context.Background(), src, WindowRequest{Scope: ScopeToken, MaxPages: 5}, FetchConfig{Timeout: 50 * time.Millisecond, Workers: 2})
	require.NoError(t, err)

	assert.True(t, window.Partial)
	assert.Contains(t, window.Note, "timed out")
	assert.Equal(t, 1, window.PagesFetched)
	assert.Len(t, window.Transactions, 2)
}

func TestFetchWindowUpstreamFailureFailsWindow(t *testing.T) {
	src := threePageSource()
	src.failOn = map[string]error{"c1": errors.New("connection reset")}

	_, err := FetchWindow(context.Background(), src, WindowRequest{Scope: ScopeToken, MaxPages: 5}, FetchConfig{Workers: 2})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrUpstreamFetch)

	var upstream *domain.UpstreamError
	require.ErrorAs(t, err, &upstream)
	assert.Equal(t, "transactions", upstream.Provider)
}

func TestFetchWindowKeepsProviderError(t *testing.T) {
	src := threePageSource()
	src.failOn = map[string]error{"": &domain.UpstreamError{Provider: "moralis", Status: 429, Err: errors.New("rate limited")}}

	_, err := FetchWindow(context.Background(), src, WindowRequest{Scope: ScopeToken, MaxPages: 5}, FetchConfig{})
	var upstream *domain.UpstreamError
	require.ErrorAs(t, err, &upstream)
	assert.Equal(t, "moralis", upstream.Provider)
	assert.Equal(t, 429, upstream.Status)
}

func TestFetchWindowCallerCancellation(t *testing.T) {
	src := threePageSource()
	src.hang = map[string]bool{"": true}
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, err := FetchWindow(ctx, src, WindowRequest{Scope: ScopeToken, MaxPages: 5}, FetchConfig{Timeout: time.Minute})
	assert.ErrorIs(t, err, context.Canceled)
}
