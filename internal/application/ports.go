package application

import (
	"context"
	"time"

	"txsentry/internal/domain"
	"txsentry/internal/streaming"
	"txsentry/internal/threat"
)

// Scope selects which swap listing a page request walks.
type Scope string

const (
	ScopeToken  Scope = "token"
	ScopeWallet Scope = "wallet"
	ScopePair   Scope = "pair"
)

type PageRequest struct {
	Chain   string
	Scope   Scope
	Address string
	Cursor  string
	Limit   int
}

// Page is one provider page. An empty Cursor means the listing is exhausted.
type Page struct {
	Records []RawRecord
	Cursor  string
}

type TransactionSource interface {
	FetchPage(ctx context.Context, req PageRequest) (Page, error)
}

type PairInfo struct {
	Address  string `json:"address"`
	Label    string `json:"label"`
	Exchange string `json:"exchange"`
}

type PairDescriber interface {
	PairInfo(ctx context.Context, chain, pair string) (PairInfo, error)
}

type PriceSource interface {
	PriceHistory(ctx context.Context, token string, from, to time.Time) ([]domain.PricePoint, error)
	LaunchBlocks(ctx context.Context, tokens []string) (map[string]uint64, error)
}

type RiskIntelSource interface {
	RiskFlags(ctx context.Context, chain, address string) (threat.RiskFlags, error)
}

type AutomatedRegistry interface {
	KnownAutomated(ctx context.Context, addresses []string) (map[string]bool, error)
}

type ContractChecker interface {
	IsContract(ctx context.Context, address string) (bool, error)
}

type ReportPublisher interface {
	PublishReport(ctx context.Context, msg streaming.Message) error
}

type AnalysisObserver interface {
	ObserveFetch(scope Scope, pages int, partial bool, elapsed time.Duration)
	ObserveDetector(name string, elapsed time.Duration)
	ObserveFindings(findings []domain.Finding)
	ObserveAnalysis(endpoint string, err error)
}

type nopObserver struct{}

func (nopObserver) ObserveFetch(Scope, int, bool, time.Duration) {}
func (nopObserver) ObserveDetector(string, time.Duration)        {}
func (nopObserver) ObserveFindings([]domain.Finding)             {}
func (nopObserver) ObserveAnalysis(string, error)                {}
