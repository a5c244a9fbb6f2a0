package application

import (
	"fmt"
	"slices"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"txsentry/internal/domain"
)

var SupportedChains = []string{"eth", "bsc", "polygon", "avalanche"}

const (
	DefaultChain           = "eth"
	DefaultPageSize        = 100
	DefaultNumTransactions = 100
	DefaultMaxPages        = 5
	DefaultMinSuspicion    = 30
)

// TokenAnomalyRequest drives the wash, price and pump analysis of one token.
type TokenAnomalyRequest struct {
	Chain        string
	TokenAddress string
	Sensitivity  domain.Sensitivity
	Limit        int
	MaxPages     int
}

func (r *TokenAnomalyRequest) Validate() error {
	var err error
	if r.Chain, err = validateChain(r.Chain); err != nil {
		return err
	}
	if r.TokenAddress, err = validateAddress("token_address", r.TokenAddress); err != nil {
		return err
	}
	if r.Sensitivity, err = domain.ParseSensitivity(string(r.Sensitivity)); err != nil {
		return err
	}
	if err := checkRange("limit", r.Limit, 10, 100); err != nil {
		return err
	}
	return checkRange("max_pages", r.MaxPages, 1, 10)
}

// TokenWindowRequest analyses the most recent NumTransactions swaps of a token.
type TokenWindowRequest struct {
	Chain           string
	TokenAddress    string
	NumTransactions int
}

func (r *TokenWindowRequest) Validate() error {
	var err error
	if r.Chain, err = validateChain(r.Chain); err != nil {
		return err
	}
	if r.TokenAddress, err = validateAddress("token_address", r.TokenAddress); err != nil {
		return err
	}
	return checkRange("num_transactions", r.NumTransactions, 10, 500)
}

type WalletRequest struct {
	Chain             string
	WalletAddress     string
	MinSuspicionScore float64
}

func (r *WalletRequest) Validate() error {
	var err error
	if r.Chain, err = validateChain(r.Chain); err != nil {
		return err
	}
	if r.WalletAddress, err = validateAddress("wallet_address", r.WalletAddress); err != nil {
		return err
	}
	if r.MinSuspicionScore < 0 || r.MinSuspicionScore > 100 {
		return &domain.ValidationError{Field: "min_suspicion_score", Message: "must be between 0 and 100"}
	}
	return nil
}

type PairRequest struct {
	Chain           string
	PairAddress     string
	NumTransactions int
}

func (r *PairRequest) Validate() error {
	var err error
	if r.Chain, err = validateChain(r.Chain); err != nil {
		return err
	}
	if r.PairAddress, err = validateAddress("pair_address", r.PairAddress); err != nil {
		return err
	}
	return checkRange("num_transactions", r.NumTransactions, 10, 500)
}

type ThreatRequest struct {
	Chain   string
	Address string
}

func (r *ThreatRequest) Validate() error {
	var err error
	if r.Chain, err = validateChain(r.Chain); err != nil {
		return err
	}
	r.Address, err = validateAddress("address", r.Address)
	return err
}

func validateChain(chain string) (string, error) {
	chain = strings.ToLower(strings.TrimSpace(chain))
	if chain == "" {
		return DefaultChain, nil
	}
	if !slices.Contains(SupportedChains, chain) {
		return "", &domain.ValidationError{Field: "chain", Message: fmt.Sprintf("unsupported chain %q", chain)}
	}
	return chain, nil
}

func validateAddress(field, raw string) (string, error) {
	addr, ok := canonicalAddress(raw)
	if !ok || !strings.HasPrefix(strings.TrimSpace(raw), "0x") {
		return "", &domain.ValidationError{Field: field, Message: "must be a 0x-prefixed 20-byte hex address"}
	}
	if addr == strings.ToLower(common.Address{}.Hex()) {
		return "", &domain.ValidationError{Field: field, Message: "zero address is not analysable"}
	}
	return addr, nil
}

func checkRange(field string, v, lo, hi int) error {
	if v < lo || v > hi {
		return &domain.ValidationError{Field: field, Message: fmt.Sprintf("must be between %d and %d", lo, hi)}
	}
	return nil
}

// pagesFor splits a transaction budget into provider pages.
func pagesFor(numTransactions int) (pageSize, maxPages int) {
	pageSize = min(numTransactions, DefaultPageSize)
	maxPages = (numTransactions + DefaultPageSize - 1) / DefaultPageSize
	return pageSize, max(maxPages, 1)
}
