package detection

import (
	"fmt"
	"maps"
	"slices"
	"time"

	"github.com/shopspring/decimal"

	"txsentry/internal/domain"
)

// Insider flags.
const (
	FlagMassivePrePump = "massive pre-pump entry"
	FlagLargePrePump   = "large pre-pump entry"
	FlagPrePump        = "pre-pump entry"
	FlagFirstTimeEntry = "first-time entry"
	FlagLargeFirst     = "large first position"
	FlagLargePosition  = "large position"
	FlagSignificant    = "significant position"
	FlagOutsized       = "outsized vs history"
	FlagQuickProfit    = "quick profit"
)

type InsiderTrade struct {
	TokenAddress     string          `json:"token_address"`
	TokenSymbol      string          `json:"token_symbol"`
	SuspicionScore   float64         `json:"suspicion_score"`
	EntryPrice       float64         `json:"entry_price"`
	CurrentPrice     float64         `json:"current_price"`
	PriceChangePct   float64         `json:"price_change_percent"`
	PositionValueUSD decimal.Decimal `json:"position_value"`
	TimeSinceEntry   string          `json:"time_since_entry"`
	EntryTxHash      string          `json:"entry_tx_hash"`
	EntryBlock       uint64          `json:"entry_block"`
	Flags            []string        `json:"flags"`
	Finding          domain.Finding  `json:"finding"`
}

type InsiderResult struct {
	SuspiciousTradesCount int            `json:"suspicious_trades_count"`
	SuspiciousTrades      []InsiderTrade `json:"suspicious_trades"`
	PositionsAnalyzed     int            `json:"positions_analyzed"`
}

// DetectInsiderTrading scores every token position the wallet entered. priceHistory maps a
// token address to its observed series; without one the latest priced trade in the window
// stands in for the current price.
func DetectInsiderTrading(walletTxs []domain.Transaction, priceHistory map[string][]domain.PricePoint, cfg InsiderConfig) InsiderResult {
	result := InsiderResult{SuspiciousTrades: []InsiderTrade{}}
	txs := sortedCopy(walletTxs)

	observedAt := time.Time{}
	buysByToken := make(map[string][]domain.Transaction)
	var buyValues []float64
	for _, tx := range txs {
		if tx.Timestamp.After(observedAt) {
			observedAt = tx.Timestamp
		}
		if tx.Kind == domain.KindBuy {
			buysByToken[tokenKey(tx)] = append(buysByToken[tokenKey(tx)], tx)
			buyValues = append(buyValues, tx.USDValue.InexactFloat64())
		}
	}
	for _, series := range priceHistory {
		if n := len(series); n > 0 && series[n-1].Timestamp.After(observedAt) {
			observedAt = series[n-1].Timestamp
		}
	}
	avgBuy := mean(buyValues)

	for _, token := range slices.Sorted(maps.Keys(buysByToken)) {
		buys := buysByToken[token]
		entry := buys[0]
		if !entry.PriceUSD.IsPositive() {
			continue
		}
		result.PositionsAnalyzed++

		current, fromHistory := currentPrice(token, txs, priceHistory)
		if current <= 0 {
			continue
		}
		trade := scoreInsiderEntry(entry, buys, current, observedAt, avgBuy, len(buyValues), cfg)
		trade.Finding.Confidence = 0.6
		if fromHistory {
			trade.Finding.Confidence = 1
		}
		if trade.SuspicionScore >= cfg.MinSuspicionScore {
			result.SuspiciousTrades = append(result.SuspiciousTrades, trade)
		}
	}

	result.SuspiciousTradesCount = len(result.SuspiciousTrades)
	return result
}

func currentPrice(token string, txs []domain.Transaction, priceHistory map[string][]domain.PricePoint) (float64, bool) {
	if series := priceHistory[token]; len(series) > 0 {
		return series[len(series)-1].Price, true
	}
	for i := len(txs) - 1; i >= 0; i-- {
		if tokenKey(txs[i]) == token && txs[i].PriceUSD.IsPositive() {
			return txs[i].PriceUSD.InexactFloat64(), false
		}
	}
	return 0, false
}

func scoreInsiderEntry(entry domain.Transaction, buys []domain.Transaction, current float64, observedAt time.Time, avgBuy float64, buyCount int, cfg InsiderConfig) InsiderTrade {
	entryPrice := entry.PriceUSD.InexactFloat64()
	change := pctChange(entryPrice, current)
	entryValue := entry.USDValue.InexactFloat64()
	elapsed := observedAt.Sub(entry.Timestamp)

	var score float64
	flags := []string{}
	switch {
	case change > 50:
		score += 30
		flags = append(flags, FlagMassivePrePump)
	case change > 30:
		score += 20
		flags = append(flags, FlagLargePrePump)
	case change > 15:
		score += 10
		flags = append(flags, FlagPrePump)
	}
	if entry.Category == domain.CategoryNewPosition {
		score += 15
		flags = append(flags, FlagFirstTimeEntry)
		if entryValue > cfg.SignificantPositionUSD {
			score += 10
			flags = append(flags, FlagLargeFirst)
		}
	}
	switch {
	case entryValue > cfg.LargePositionUSD:
		score += 20
		flags = append(flags, FlagLargePosition)
	case entryValue > cfg.SignificantPositionUSD:
		score += 10
		flags = append(flags, FlagSignificant)
	}
	if buyCount >= cfg.MinHistoryBuys && avgBuy > 0 && entryValue > cfg.OutsizedMultiple*avgBuy {
		score += 10
		flags = append(flags, FlagOutsized)
	}
	if change > 0 && elapsed < cfg.QuickProfitWindow {
		score += 15
		flags = append(flags, FlagQuickProfit)
	}
	score = clamp(score, 0, 100)

	position := sumUSD(buys)
	return InsiderTrade{
		TokenAddress:     tokenKey(entry),
		TokenSymbol:      entry.TokenSymbol,
		SuspicionScore:   score,
		EntryPrice:       entryPrice,
		CurrentPrice:     current,
		PriceChangePct:   change,
		PositionValueUSD: position,
		TimeSinceEntry:   elapsed.String(),
		EntryTxHash:      entry.Hash,
		EntryBlock:       entry.BlockNumber,
		Flags:            flags,
		Finding: domain.Finding{
			Type:              domain.FindingInsiderEntry,
			Severity:          domain.SeverityForScore(score),
			RiskScore:         score,
			BlockNumber:       entry.BlockNumber,
			Timestamp:         entry.Timestamp,
			InvolvedAddresses: domain.UniqueAddresses(entry.FromAddress),
			USDValueInvolved:  position,
			Description: fmt.Sprintf("entered %s at %.6g, now %.6g (%+.1f%%)",
				entry.TokenSymbol, entryPrice, current, change),
			Evidence: map[string]any{
				"entry_tx_hash":        entry.Hash,
				"price_change_percent": change,
				"flags":                flags,
			},
		},
	}
}
