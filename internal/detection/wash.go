package detection

import (
	"fmt"
	"maps"
	"slices"

	"github.com/shopspring/decimal"

	"txsentry/internal/domain"
)

type WashResult struct {
	DetectedCount         int                             `json:"detected_count"`
	TotalSuspiciousVolume decimal.Decimal                 `json:"total_suspicious_volume"`
	Wallets               map[string]domain.WalletProfile `json:"wallets"`
	MEVBotsFiltered       int                             `json:"mev_bots_filtered"`
	Findings              []domain.Finding                `json:"findings"`
	Note                  string                          `json:"note,omitempty"`
}

// DetectWashTrading profiles every trading wallet in the window and flags round-trip and
// same-block churn. Wallets judged automated stay in Wallets but are not counted; the
// suspicious ones among them are tallied in MEVBotsFiltered.
func DetectWashTrading(txs []domain.Transaction, cfg WashConfig) WashResult {
	result := WashResult{
		TotalSuspiciousVolume: decimal.Zero,
		Wallets:               make(map[string]domain.WalletProfile),
		Findings:              []domain.Finding{},
	}

	byWallet := make(map[string][]domain.Transaction)
	for _, tx := range sortedCopy(txs) {
		if !tx.Kind.IsTrade() || tx.FromAddress == "" {
			continue
		}
		byWallet[tx.FromAddress] = append(byWallet[tx.FromAddress], tx)
	}
	if len(byWallet) == 0 {
		result.Note = "no trades in window"
		return result
	}

	for _, addr := range slices.Sorted(maps.Keys(byWallet)) {
		trades := byWallet[addr]
		profile := buildWalletProfile(addr, trades, cfg)
		result.Wallets[addr] = profile

		if !profile.IsSuspicious {
			continue
		}
		if profile.IsLikelyAutomated {
			result.MEVBotsFiltered++
			continue
		}
		result.DetectedCount++
		result.TotalSuspiciousVolume = result.TotalSuspiciousVolume.Add(profile.TotalVolumeUSD)
		result.Findings = append(result.Findings, washFinding(profile, trades[len(trades)-1]))
	}

	result.Note = fmt.Sprintf("filtered %d suspicious wallets as likely automated", result.MEVBotsFiltered)
	return result
}

func buildWalletProfile(addr string, trades []domain.Transaction, cfg WashConfig) domain.WalletProfile {
	volume := sumUSD(trades)
	profile := domain.WalletProfile{
		Address:         addr,
		TradeCount:      len(trades),
		TotalVolumeUSD:  volume,
		AvgTradeSizeUSD: volume.Div(decimal.NewFromInt(int64(len(trades)))),
		FirstSeenBlock:  trades[0].BlockNumber,
		LastSeenBlock:   trades[len(trades)-1].BlockNumber,
		Patterns:        []string{},
	}

	perBlock := make(map[uint64]int)
	for _, tx := range trades {
		perBlock[tx.BlockNumber]++
	}
	for _, n := range perBlock {
		if n > 1 {
			profile.SameBlockTradeCount += n
		}
	}
	profile.RoundTripCount = countRoundTrips(trades, cfg)

	total := volume.InexactFloat64()
	avg := profile.AvgTradeSizeUSD.InexactFloat64()
	mev := profile.SameBlockTradeCount >= cfg.MEVMinSameBlock && avg < cfg.MEVMaxAvgTradeUSD && total < cfg.MEVMaxTotalUSD
	known := cfg.IsKnownAutomated != nil && cfg.IsKnownAutomated(addr)
	profile.IsLikelyAutomated = mev || known

	if profile.TradeCount >= 2 {
		density := float64(2*profile.RoundTripCount) / float64(profile.TradeCount)
		churn := profile.RoundTripCount >= cfg.MinRoundTrips && profile.SameBlockTradeCount > 0
		dense := profile.RoundTripCount > 0 && total >= cfg.MinVolumeUSD && density >= cfg.MinRoundTripDensity
		profile.IsSuspicious = churn || dense
	}

	if profile.RoundTripCount > 0 {
		profile.Patterns = append(profile.Patterns, domain.PatternRoundTrip)
	}
	if profile.SameBlockTradeCount > 0 {
		profile.Patterns = append(profile.Patterns, domain.PatternSameBlock)
	}
	if total >= cfg.MinVolumeUSD {
		profile.Patterns = append(profile.Patterns, domain.PatternHighVolume)
	}
	if mev {
		profile.Patterns = append(profile.Patterns, domain.PatternMEVHeuristic)
	}
	if known {
		profile.Patterns = append(profile.Patterns, domain.PatternKnownAutomated)
	}
	slices.Sort(profile.Patterns)
	return profile
}

// countRoundTrips pairs each trade with the oldest open opposite-direction trade of the
// same token inside the window. Matching is direction agnostic.
func countRoundTrips(trades []domain.Transaction, cfg WashConfig) int {
	type legs map[domain.TxKind][]domain.Transaction
	open := make(map[string]legs)
	count := 0
	for _, tx := range trades {
		token := tokenKey(tx)
		book, ok := open[token]
		if !ok {
			book = make(legs)
			open[token] = book
		}
		opposite := book[tx.Kind.Opposite()]
		for len(opposite) > 0 && tx.Timestamp.Sub(opposite[0].Timestamp) > cfg.Window {
			opposite = opposite[1:]
		}
		if len(opposite) > 0 {
			count++
			book[tx.Kind.Opposite()] = opposite[1:]
			continue
		}
		book[tx.Kind.Opposite()] = opposite
		book[tx.Kind] = append(book[tx.Kind], tx)
	}
	return count
}

func washFinding(profile domain.WalletProfile, last domain.Transaction) domain.Finding {
	volume := profile.TotalVolumeUSD.InexactFloat64()
	risk := clamp(15*float64(profile.RoundTripCount)+5*float64(profile.SameBlockTradeCount)+20*clamp(volume/100000, 0, 1), 0, 100)
	density := float64(2*profile.RoundTripCount) / float64(profile.TradeCount)
	return domain.Finding{
		Type:              domain.FindingWashTrade,
		Severity:          domain.SeverityForScore(risk),
		RiskScore:         risk,
		BlockNumber:       profile.LastSeenBlock,
		Timestamp:         last.Timestamp,
		InvolvedAddresses: []string{profile.Address},
		USDValueInvolved:  profile.TotalVolumeUSD,
		Confidence:        clamp(density, 0, 1),
		Description: fmt.Sprintf("wallet %s made %d round trips and %d same-block trades over %d trades",
			profile.Address, profile.RoundTripCount, profile.SameBlockTradeCount, profile.TradeCount),
		Evidence: map[string]any{
			"round_trips":        profile.RoundTripCount,
			"same_block_trades":  profile.SameBlockTradeCount,
			"trade_count":        profile.TradeCount,
			"round_trip_density": density,
			"avg_trade_size_usd": profile.AvgTradeSizeUSD.InexactFloat64(),
			"first_seen_block":   profile.FirstSeenBlock,
		},
	}
}
