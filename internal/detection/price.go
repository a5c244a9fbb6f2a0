package detection

import (
	"fmt"
	"math"

	"github.com/shopspring/decimal"

	"txsentry/internal/domain"
)

type PriceResult struct {
	TotalEvents     int              `json:"total_events"`
	HighestSpikePct float64          `json:"highest_spike_pct"`
	Events          []domain.Finding `json:"events"`
	Coordinated     []domain.Finding `json:"coordinated_trading"`
}

// DetectPriceManipulation scans a single observation series for volume-backed spikes.
func DetectPriceManipulation(series []domain.PricePoint, cfg PriceConfig) PriceResult {
	return newPriceResult(spikeEvents(series, cfg, ""), nil)
}

// DetectPriceManipulationInWindow builds one series per pool from the window's trades,
// scans each, and adds blocks with coordinated multi-wallet trading.
func DetectPriceManipulationInWindow(txs []domain.Transaction, cfg PriceConfig) PriceResult {
	var events []domain.Finding
	for _, series := range SeriesByPool(txs) {
		events = append(events, spikeEvents(series.Points, cfg, series.Pool)...)
	}
	sortFindings(events)
	return newPriceResult(events, coordinatedTrading(txs, cfg))
}

func newPriceResult(events, coordinated []domain.Finding) PriceResult {
	if events == nil {
		events = []domain.Finding{}
	}
	if coordinated == nil {
		coordinated = []domain.Finding{}
	}
	result := PriceResult{
		TotalEvents: len(events) + len(coordinated),
		Events:      events,
		Coordinated: coordinated,
	}
	for _, event := range events {
		if magnitude, ok := event.Evidence["magnitude_pct"].(float64); ok {
			result.HighestSpikePct = math.Max(result.HighestSpikePct, math.Abs(magnitude))
		}
	}
	return result
}

func spikeEvents(series []domain.PricePoint, cfg PriceConfig, pool string) []domain.Finding {
	var events []domain.Finding
	window := max(cfg.TrailingWindow, 1)
	for i := 1; i < len(series); i++ {
		prev, cur := series[i-1], series[i]
		if prev.Price <= 0 || cur.Price <= 0 {
			continue
		}
		change := pctChange(prev.Price, cur.Price)
		trailing := make([]float64, 0, window)
		for _, p := range series[max(0, i-window):i] {
			trailing = append(trailing, p.VolumeUSD)
		}
		avg := mean(trailing)
		if avg <= 0 {
			continue
		}
		ratio := cur.VolumeUSD / avg
		if math.Abs(change) <= cfg.SpikeThresholdPct || ratio <= cfg.VolumeMultiplier || cur.VolumeUSD < cfg.MinValueUSD {
			continue
		}

		magnitude := math.Abs(change)
		evidence := map[string]any{
			"magnitude_pct":    change,
			"volume_ratio":     ratio,
			"trailing_avg_usd": avg,
			"price_before":     prev.Price,
			"price_after":      cur.Price,
		}
		if pool != "" {
			evidence["pool"] = pool
		}
		if cur.TxHash != "" {
			evidence["tx_hash"] = cur.TxHash
		}
		events = append(events, domain.Finding{
			Type:              domain.FindingPriceSpike,
			Severity:          spikeSeverity(magnitude),
			RiskScore:         clamp(magnitude, 0, 100),
			BlockNumber:       cur.BlockNumber,
			Timestamp:         cur.Timestamp,
			InvolvedAddresses: domain.UniqueAddresses(cur.Wallet),
			USDValueInvolved:  decimal.NewFromFloat(cur.VolumeUSD),
			Confidence:        clamp(ratio/(2*cfg.VolumeMultiplier), 0, 1),
			Description:       fmt.Sprintf("price moved %.2f%% on %.1fx trailing volume", change, ratio),
			Evidence:          evidence,
		})
	}
	return events
}

func spikeSeverity(magnitudePct float64) domain.Severity {
	switch {
	case magnitudePct > 50:
		return domain.SeverityCritical
	case magnitudePct > 20:
		return domain.SeverityHigh
	case magnitudePct > 10:
		return domain.SeverityMedium
	default:
		return domain.SeverityLow
	}
}

func coordinatedTrading(txs []domain.Transaction, cfg PriceConfig) []domain.Finding {
	var findings []domain.Finding
	for _, block := range GroupByBlock(txs) {
		var wallets []string
		value := decimal.Zero
		for _, tx := range block {
			if !tx.Kind.IsTrade() {
				continue
			}
			wallets = append(wallets, tx.FromAddress)
			value = value.Add(tx.USDValue)
		}
		wallets = domain.UniqueAddresses(wallets...)
		total := value.InexactFloat64()
		if len(wallets) < cfg.CoordinatedMinWallets || total <= cfg.CoordinatedMinValueUSD {
			continue
		}
		risk := clamp(8*float64(len(wallets))+total/2000, 0, 100)
		findings = append(findings, domain.Finding{
			Type:              domain.FindingCoordinated,
			Severity:          domain.SeverityForScore(risk),
			RiskScore:         risk,
			BlockNumber:       block[0].BlockNumber,
			Timestamp:         block[0].Timestamp,
			InvolvedAddresses: wallets,
			USDValueInvolved:  value,
			Confidence:        clamp(float64(len(wallets))/float64(2*max(cfg.CoordinatedMinWallets, 1)), 0, 1),
			Description:       fmt.Sprintf("%d wallets traded $%s in block %d", len(wallets), value.StringFixed(2), block[0].BlockNumber),
			Evidence: map[string]any{
				"num_wallets": len(wallets),
				"total_value": total,
			},
		})
	}
	if findings == nil {
		findings = []domain.Finding{}
	}
	return findings
}
