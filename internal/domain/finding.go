package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// FindingType names the detector pattern behind a finding.
type FindingType string

const (
	FindingWashTrade      FindingType = "wash_trade"
	FindingPriceSpike     FindingType = "price_spike"
	FindingPumpDump       FindingType = "pump_dump"
	FindingSandwich       FindingType = "sandwich"
	FindingInsiderEntry   FindingType = "insider_entry"
	FindingSnipe          FindingType = "snipe"
	FindingLiquidityEvent FindingType = "liquidity_event"
	FindingDomination     FindingType = "domination"
	FindingCoordinated    FindingType = "coordinated_trading"
)

// Severity is the risk bucket of a score.
type Severity string

const (
	SeverityLow      Severity = "LOW"
	SeverityMedium   Severity = "MEDIUM"
	SeverityHigh     Severity = "HIGH"
	SeverityCritical Severity = "CRITICAL"
)

// Rank orders severities from LOW (0) to CRITICAL (3).
func (s Severity) Rank() int {
	switch s {
	case SeverityCritical:
		return 3
	case SeverityHigh:
		return 2
	case SeverityMedium:
		return 1
	default:
		return 0
	}
}

// SeverityForScore buckets a 0-100 score: <25 LOW, [25,50) MEDIUM, [50,75) HIGH, >=75 CRITICAL.
func SeverityForScore(score float64) Severity {
	switch {
	case score >= 75:
		return SeverityCritical
	case score >= 50:
		return SeverityHigh
	case score >= 25:
		return SeverityMedium
	default:
		return SeverityLow
	}
}

// Finding is one detected anomaly. RiskScore and Severity describe how bad it is,
// Confidence how sure the detector is; the two are never derived from each other.
type Finding struct {
	Type              FindingType     `json:"finding_type"`
	Severity          Severity        `json:"severity"`
	RiskScore         float64         `json:"risk_score"`
	BlockNumber       uint64          `json:"block_number"`
	Timestamp         time.Time       `json:"timestamp"`
	InvolvedAddresses []string        `json:"involved_addresses"`
	USDValueInvolved  decimal.Decimal `json:"usd_value_involved"`
	Confidence        float64         `json:"confidence"`
	Description       string          `json:"description"`
	Evidence          map[string]any  `json:"evidence,omitempty"`
}

// UniqueAddresses keeps the first occurrence of every non-empty address, preserving order.
func UniqueAddresses(addrs ...string) []string {
	seen := make(map[string]struct{}, len(addrs))
	out := make([]string, 0, len(addrs))
	for _, addr := range addrs {
		if addr == "" {
			continue
		}
		if _, ok := seen[addr]; ok {
			continue
		}
		seen[addr] = struct{}{}
		out = append(out, addr)
	}
	return out
}
