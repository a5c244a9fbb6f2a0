package webacy

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"txsentry/internal/infrastructure/upstream"
	"txsentry/internal/threat"
)

const providerName = "webacy"

type Config struct {
	BaseURL    string
	APIKey     string
	RateLimit  float64
	MaxRetries int
	Timeout    time.Duration
}

// Client fetches address risk reports from Webacy.
type Client struct {
	baseURL string
	apiKey  string
	http    *upstream.Client
}

func NewClient(cfg Config) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		return nil, errors.New("webacy base url is required")
	}
	return &Client{
		baseURL: base,
		apiKey:  cfg.APIKey,
		http: upstream.New(upstream.Policy{
			Name:       providerName,
			RateLimit:  cfg.RateLimit,
			MaxRetries: cfg.MaxRetries,
			Timeout:    cfg.Timeout,
		}),
	}, nil
}

type addressResponse struct {
	Issues []struct {
		Tags []struct {
			Key string `json:"key"`
		} `json:"tags"`
	} `json:"issues"`
	Details struct {
		TokenRisk struct {
			AccessControl    bool     `json:"access_control"`
			BuyTaxPercentage *float64 `json:"buy_tax_percentage"`
			IsTrusted        bool     `json:"is_trusted"`
		} `json:"token_risk"`
		LockedLiquidityPercent *float64 `json:"lockedLiquidityPercent"`
		CreatorPercent         *float64 `json:"creator_percent"`
		MarketData             struct {
			PriceChange7d         *float64 `json:"price_change_percentage_7d"`
			ATHChange             *float64 `json:"ath_change_percentage"`
			ATLChange             *float64 `json:"atl_change_percentage"`
			MarketCapRank         *float64 `json:"market_cap_rank"`
			OwnershipDistribution struct {
				Top10 *float64 `json:"percentageHeldByTop10"`
			} `json:"ownershipDistribution"`
		} `json:"marketData"`
	} `json:"details"`
}

func (c *Client) RiskFlags(ctx context.Context, chain, address string) (threat.RiskFlags, error) {
	query := url.Values{}
	query.Set("chain", chain)
	endpoint := c.baseURL + "/addresses/" + url.PathEscape(strings.ToLower(address)) + "?" + query.Encode()

	header := http.Header{}
	if c.apiKey != "" {
		header.Set("x-api-key", c.apiKey)
	}
	var resp addressResponse
	if err := c.http.GetJSON(ctx, endpoint, header, &resp); err != nil {
		return threat.RiskFlags{}, err
	}
	return resp.flags(), nil
}

func (r addressResponse) flags() threat.RiskFlags {
	details := r.Details
	flags := threat.RiskFlags{
		AccessControl:      details.TokenRisk.AccessControl,
		Trusted:            details.TokenRisk.IsTrusted,
		BuyTaxPct:          value(details.TokenRisk.BuyTaxPercentage),
		LockedLiquidityPct: value(details.LockedLiquidityPercent),
		CreatorPct:         value(details.CreatorPercent),
		Top10HolderPct:     value(details.MarketData.OwnershipDistribution.Top10),
		PriceChange7dPct:   value(details.MarketData.PriceChange7d),
		ATHChangePct:       value(details.MarketData.ATHChange),
		ATLChangePct:       value(details.MarketData.ATLChange),
		MarketCapRank:      threat.UnrankedMarketCap,
	}
	if rank := value(details.MarketData.MarketCapRank); rank > 0 {
		flags.MarketCapRank = int(rank)
	}
	for _, issue := range r.Issues {
		for _, tag := range issue.Tags {
			switch strings.ToLower(tag.Key) {
			case "is_proxy":
				flags.IsProxy = true
			case "upgradeable_contract":
				flags.Upgradeable = true
			case "unlocked-liquidity", "unlocked_liquidity":
				flags.UnlockedLiquidity = true
			case "transfer_pausable":
				flags.TransferPausable = true
			case "is_blacklisted":
				flags.Blacklisting = true
			case "hacker":
				flags.Hacker = true
			case "drainer":
				flags.Drainer = true
			case "mixers":
				flags.Mixers = true
			case "tornado":
				flags.Tornado = true
			}
		}
	}
	return flags
}

func value(v *float64) float64 {
	if v == nil {
		return 0
	}
	return *v
}
