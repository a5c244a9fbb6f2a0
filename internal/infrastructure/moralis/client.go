package moralis

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"txsentry/internal/application"
	"txsentry/internal/infrastructure/upstream"
)

const (
	providerName = "moralis"
	maxPageSize  = 100
)

type Config struct {
	BaseURL    string
	APIKey     string
	RateLimit  float64
	MaxRetries int
	Timeout    time.Duration
}

// Client reads swap listings from the Moralis deep index.
type Client struct {
	baseURL string
	apiKey  string
	http    *upstream.Client
}

func NewClient(cfg Config) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		return nil, errors.New("moralis base url is required")
	}
	if _, err := url.Parse(base); err != nil {
		return nil, fmt.Errorf("moralis base url: %w", err)
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

type swapsResponse struct {
	Cursor   string                  `json:"cursor"`
	Page     int                     `json:"page"`
	PageSize int                     `json:"page_size"`
	Result   []application.RawRecord `json:"result"`
}

func (c *Client) FetchPage(ctx context.Context, req application.PageRequest) (application.Page, error) {
	path, err := swapsPath(req.Scope, req.Address)
	if err != nil {
		return application.Page{}, err
	}
	query := url.Values{}
	query.Set("chain", req.Chain)
	query.Set("order", "DESC")
	if req.Limit > 0 {
		query.Set("limit", strconv.Itoa(min(req.Limit, maxPageSize)))
	}
	if req.Cursor != "" {
		query.Set("cursor", req.Cursor)
	}

	var resp swapsResponse
	if err := c.http.GetJSON(ctx, c.baseURL+path+"?"+query.Encode(), c.header(), &resp); err != nil {
		return application.Page{}, err
	}
	return application.Page{Records: resp.Result, Cursor: resp.Cursor}, nil
}

type pairStatsResponse struct {
	PairAddress  string `json:"pairAddress"`
	PairLabel    string `json:"pairLabel"`
	ExchangeName string `json:"exchange"`
}

func (c *Client) PairInfo(ctx context.Context, chain, pair string) (application.PairInfo, error) {
	query := url.Values{}
	query.Set("chain", chain)
	var resp pairStatsResponse
	endpoint := c.baseURL + "/pairs/" + url.PathEscape(strings.ToLower(pair)) + "/stats?" + query.Encode()
	if err := c.http.GetJSON(ctx, endpoint, c.header(), &resp); err != nil {
		return application.PairInfo{}, err
	}
	address := resp.PairAddress
	if address == "" {
		address = strings.ToLower(pair)
	}
	return application.PairInfo{Address: address, Label: resp.PairLabel, Exchange: resp.ExchangeName}, nil
}

func (c *Client) header() http.Header {
	header := http.Header{}
	if c.apiKey != "" {
		header.Set("X-API-Key", c.apiKey)
	}
	return header
}

func swapsPath(scope application.Scope, address string) (string, error) {
	if address == "" {
		return "", errors.New("address is required")
	}
	escaped := url.PathEscape(strings.ToLower(address))
	switch scope {
	case application.ScopeToken:
		return "/erc20/" + escaped + "/swaps", nil
	case application.ScopeWallet:
		return "/wallets/" + escaped + "/swaps", nil
	case application.ScopePair:
		return "/pairs/" + escaped + "/swaps", nil
	default:
		return "", fmt.Errorf("unsupported scope %q", scope)
	}
}
