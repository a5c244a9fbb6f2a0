package domain

import "github.com/shopspring/decimal"

// Wallet pattern tags.
const (
	PatternRoundTrip      = "round_trip"
	PatternSameBlock      = "same_block"
	PatternHighVolume     = "high_volume"
	PatternMEVHeuristic   = "mev_heuristic"
	PatternKnownAutomated = "known_automated"
)

// WalletProfile aggregates one wallet's trading inside a single analysis window.
type WalletProfile struct {
	Address             string          `json:"address"`
	TradeCount          int             `json:"trade_count"`
	RoundTripCount      int             `json:"round_trip_count"`
	SameBlockTradeCount int             `json:"same_block_trade_count"`
	TotalVolumeUSD      decimal.Decimal `json:"total_volume_usd"`
	AvgTradeSizeUSD     decimal.Decimal `json:"avg_trade_size_usd"`
	FirstSeenBlock      uint64          `json:"first_seen_block"`
	LastSeenBlock       uint64          `json:"last_seen_block"`
	IsSuspicious        bool            `json:"is_suspicious"`
	IsLikelyAutomated   bool            `json:"is_likely_automated"`
	Patterns            []string        `json:"patterns"`
}
