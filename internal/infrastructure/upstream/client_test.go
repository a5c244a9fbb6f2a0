package upstream

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"txsentry/internal/domain"
)

func testPolicy() Policy {
	return Policy{
		Name:            "test",
		MaxRetries:      3,
		InitialInterval: time.Millisecond,
		MaxElapsed:      time.Second,
		TripAfter:       2,
		OpenFor:         time.Minute,
	}
}

type payload struct {
	Value string `json:"value"`
}

func TestGetJSONRetriesServerErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		assert.Equal(t, "secret", r.Header.Get("X-API-Key"))
		_, _ = w.Write([]byte(`{"value":"ok"}`))
	}))
	defer srv.Close()

	client := New(testPolicy())
	var out payload
	header := http.Header{}
	header.Set("X-API-Key", "secret")
	require.NoError(t, client.GetJSON(context.Background(), srv.URL, header, &out))
	assert.Equal(t, "ok", out.Value)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestGetJSONDoesNotRetryClientErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		http.Error(w, "bad chain", http.StatusBadRequest)
	}))
	defer srv.Close()

	client := New(testPolicy())
	err := client.GetJSON(context.Background(), srv.URL, nil, &payload{})

	var upstream *domain.UpstreamError
	require.ErrorAs(t, err, &upstream)
	assert.Equal(t, http.StatusBadRequest, upstream.Status)
	assert.Equal(t, "test", upstream.Provider)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))

	// client errors do not count against the circuit
	for range 3 {
		_ = client.GetJSON(context.Background(), srv.URL, nil, &payload{})
	}
	assert.Equal(t, gobreaker.StateClosed, client.breaker.State())
}

func TestGetJSONOpensCircuit(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	policy := testPolicy()
	policy.MaxRetries = 0
	client := New(policy)
	for range 2 {
		err := client.GetJSON(context.Background(), srv.URL, nil, &payload{})
		require.ErrorIs(t, err, domain.ErrUpstreamFetch)
	}

	err := client.GetJSON(context.Background(), srv.URL, nil, &payload{})
	require.ErrorIs(t, err, gobreaker.ErrOpenState)
	require.ErrorIs(t, err, domain.ErrUpstreamFetch)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestGetJSONDecodeFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"value":`))
	}))
	defer srv.Close()

	err := New(testPolicy()).GetJSON(context.Background(), srv.URL, nil, &payload{})
	require.ErrorIs(t, err, domain.ErrUpstreamFetch)
}

func TestGetJSONReturnsContextError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := New(testPolicy()).GetJSON(ctx, srv.URL, nil, &payload{})
	assert.True(t, errors.Is(err, context.Canceled), "got %v", err)
}
