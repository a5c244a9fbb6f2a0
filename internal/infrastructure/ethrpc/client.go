package ethrpc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"txsentry/internal/domain"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

const providerName = "rpc"

type Client struct {
	url        string
	httpClient *http.Client
	idCounter  uint64

	mu    sync.RWMutex
	codes map[string]bool
}

type Config struct {
	URL     string
	Timeout time.Duration
}

func NewClient(cfg Config) (*Client, error) {
	if cfg.URL == "" {
		return nil, errors.New("rpc url is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &Client{
		url:        cfg.URL,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		codes:      make(map[string]bool),
	}, nil
}

func (c *Client) LatestBlockNumber(ctx context.Context) (uint64, error) {
	var result string
	if err := c.call(ctx, "eth_blockNumber", []any{}, &result); err != nil {
		return 0, err
	}
	return hexutil.DecodeUint64(result)
}

// IsContract reports whether the address has deployed code at the latest block. Answers
// are remembered for the life of the client.
func (c *Client) IsContract(ctx context.Context, address string) (bool, error) {
	if !common.IsHexAddress(address) {
		return false, fmt.Errorf("invalid address %q", address)
	}
	key := strings.ToLower(address)
	c.mu.RLock()
	known, ok := c.codes[key]
	c.mu.RUnlock()
	if ok {
		return known, nil
	}

	var code hexutil.Bytes
	if err := c.call(ctx, "eth_getCode", []any{key, "latest"}, &code); err != nil {
		return false, err
	}
	isContract := len(code) > 0

	c.mu.Lock()
	c.codes[key] = isContract
	c.mu.Unlock()
	return isContract, nil
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      uint64 `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      uint64          `json:"id"`
	Result  json.RawMessage `json:"result"`
	Error   *rpcError       `json:"error"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (c *Client) call(ctx context.Context, method string, params []any, result any) error {
	id := atomic.AddUint64(&c.idCounter, 1)
	payload, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		ID:      id,
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &domain.UpstreamError{Provider: providerName, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &domain.UpstreamError{Provider: providerName, Status: resp.StatusCode, Err: fmt.Errorf("%s failed", method)}
	}

	var decoded rpcResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return &domain.UpstreamError{Provider: providerName, Err: fmt.Errorf("decode %s: %w", method, err)}
	}
	if decoded.Error != nil {
		return &domain.UpstreamError{Provider: providerName, Err: fmt.Errorf("rpc error %d: %s", decoded.Error.Code, decoded.Error.Message)}
	}
	if result == nil {
		return nil
	}
	if len(decoded.Result) == 0 {
		return errors.New("rpc result is empty")
	}
	return json.Unmarshal(decoded.Result, result)
}
