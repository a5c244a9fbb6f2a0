package application

import (
	"txsentry/internal/detection"
	"txsentry/internal/domain"
	"txsentry/internal/threat"
)

// Endpoint names, used for analysis IDs, metrics and published reports.
const (
	EndpointTransactionAnomaly    = "transaction_anomaly"
	EndpointSandwichAttack        = "sandwich_attack"
	EndpointInsiderTrading        = "insider_trading"
	EndpointSnipingBot            = "sniping_bot"
	EndpointLiquidityManipulation = "liquidity_manipulation"
	EndpointConcentratedAttack    = "concentrated_attack"
	EndpointPoolDomination        = "pool_domination"
	EndpointTokenThreat           = "token_threat"
)

// ReportMeta is carried by every window-based report. Partial and Note tell callers the
// scan stopped early and must not be read as a complete history.
type ReportMeta struct {
	AnalysisID        string `json:"analysis_id"`
	Chain             string `json:"chain"`
	Address           string `json:"address"`
	TotalTransactions int    `json:"total_transactions"`
	PagesFetched      int    `json:"pages_fetched"`
	DroppedRecords    int    `json:"dropped_records"`
	Partial           bool   `json:"partial"`
	Note              string `json:"note,omitempty"`
	Message           string `json:"message"`
}

type TransactionAnomalyReport struct {
	ReportMeta
	Sensitivity          domain.Sensitivity     `json:"sensitivity"`
	WashTrading          detection.WashResult   `json:"wash_trading"`
	PriceManipulation    detection.PriceResult  `json:"price_manipulation"`
	PumpAndDump          detection.PumpResult   `json:"pump_and_dump"`
	TopSuspiciousWallets []domain.WalletProfile `json:"top_suspicious_wallets"`
	RiskScore            float64                `json:"risk_score"`
	RiskLevel            string                 `json:"risk_level"`
}

type SandwichReport struct {
	ReportMeta
	Sandwich detection.SandwichResult `json:"sandwich"`
}

type InsiderReport struct {
	ReportMeta
	MinSuspicionScore float64                 `json:"min_suspicion_score"`
	Insider           detection.InsiderResult `json:"insider"`
}

type SnipingReport struct {
	ReportMeta
	Sniping detection.SnipingResult `json:"sniping"`
}

// PoolMeta describes the pair a pool report was computed for.
type PoolMeta struct {
	PoolLabel    string `json:"pool_label"`
	ExchangeName string `json:"exchange_name"`
}

type LiquidityReport struct {
	ReportMeta
	PoolMeta
	Liquidity detection.LiquidityResult `json:"liquidity"`
}

type ConcentratedReport struct {
	ReportMeta
	PoolMeta
	Concentrated detection.ConcentratedResult `json:"concentrated"`
}

type DominationReport struct {
	ReportMeta
	PoolMeta
	Domination detection.DominationResult `json:"domination"`
}

type ThreatReport struct {
	AnalysisID string `json:"analysis_id"`
	Chain      string `json:"chain"`
	domain.ThreatAssessment
	Flags   threat.RiskFlags `json:"flags"`
	Message string           `json:"message"`
}
