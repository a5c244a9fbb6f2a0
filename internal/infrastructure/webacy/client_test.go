package webacy

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"txsentry/internal/domain"
	"txsentry/internal/threat"
)

const sampleReport = `{
  "count": 3,
  "issues": [
    {"tags": [{"key": "is_proxy", "name": "Proxy"}, {"key": "upgradeable_contract"}]},
    {"tags": [{"key": "unlocked-liquidity"}, {"key": "tornado"}]}
  ],
  "details": {
    "token_risk": {"access_control": true, "buy_tax_percentage": 12.5, "is_trusted": false},
    "lockedLiquidityPercent": 20,
    "creator_percent": 7.5,
    "marketData": {
      "price_change_percentage_7d": -42.1,
      "ath_change_percentage": -93,
      "atl_change_percentage": 310,
      "market_cap_rank": 812,
      "ownershipDistribution": {"percentageHeldByTop10": 64}
    }
  }
}`

func TestRiskFlags(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/addresses/0x00000000000000000000000000000000000000c1", r.URL.Path)
		assert.Equal(t, "eth", r.URL.Query().Get("chain"))
		assert.Equal(t, "key", r.Header.Get("x-api-key"))
		_, _ = w.Write([]byte(sampleReport))
	}))
	defer srv.Close()

	client, err := NewClient(Config{BaseURL: srv.URL, APIKey: "key"})
	require.NoError(t, err)
	flags, err := client.RiskFlags(context.Background(), "eth", "0x00000000000000000000000000000000000000C1")
	require.NoError(t, err)

	assert.Equal(t, threat.RiskFlags{
		AccessControl:      true,
		IsProxy:            true,
		Upgradeable:        true,
		UnlockedLiquidity:  true,
		LockedLiquidityPct: 20,
		CreatorPct:         7.5,
		Top10HolderPct:     64,
		BuyTaxPct:          12.5,
		PriceChange7dPct:   -42.1,
		ATHChangePct:       -93,
		ATLChangePct:       310,
		MarketCapRank:      812,
		Tornado:            true,
	}, flags)
}

func TestRiskFlagsMissingMarketData(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"issues":[],"details":{"marketData":{"market_cap_rank":null}}}`))
	}))
	defer srv.Close()

	client, err := NewClient(Config{BaseURL: srv.URL})
	require.NoError(t, err)
	flags, err := client.RiskFlags(context.Background(), "eth", "0x1")
	require.NoError(t, err)
	assert.Equal(t, threat.UnrankedMarketCap, flags.MarketCapRank)
	assert.False(t, flags.IsProxy)
}

func TestRiskFlagsUpstreamFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	client, err := NewClient(Config{BaseURL: srv.URL})
	require.NoError(t, err)
	_, err = client.RiskFlags(context.Background(), "eth", "0x1")
	require.ErrorIs(t, err, domain.ErrUpstreamFetch)
}
