package detection

import (
	"fmt"
	"maps"
	"math"
	"slices"

	"github.com/shopspring/decimal"

	"txsentry/internal/domain"
)

const (
	TradePatternAccumulation = "accumulation"
	TradePatternDistribution = "distribution"
	TradePatternMixed        = "mixed"
)

type Domination struct {
	Address                string          `json:"address"`
	TradeCount             int             `json:"trade_count"`
	VolumeUSD              decimal.Decimal `json:"volume_usd"`
	TxShare                float64         `json:"tx_share"`
	VolumeShare            float64         `json:"volume_share"`
	BuyRatio               float64         `json:"buy_ratio"`
	TradePattern           string          `json:"trade_pattern"`
	Regularity             float64         `json:"regularity"`
	ManipulationLikelihood float64         `json:"manipulation_likelihood"`
	Finding                domain.Finding  `json:"finding"`
}

type DominationResult struct {
	DominantEntities  int             `json:"dominant_entities"`
	Dominations       []Domination    `json:"dominations"`
	TotalTransactions int             `json:"total_transactions"`
	TotalVolumeUSD    decimal.Decimal `json:"total_volume_usd"`
}

// DetectPoolDomination measures each wallet's share of pool transactions and volume.
func DetectPoolDomination(poolTxs []domain.Transaction, cfg DominationConfig) DominationResult {
	txs := sortedCopy(poolTxs)
	result := DominationResult{Dominations: []Domination{}, TotalVolumeUSD: decimal.Zero}

	byWallet := make(map[string][]domain.Transaction)
	for _, tx := range txs {
		if tx.FromAddress == "" {
			continue
		}
		byWallet[tx.FromAddress] = append(byWallet[tx.FromAddress], tx)
		result.TotalTransactions++
		result.TotalVolumeUSD = result.TotalVolumeUSD.Add(tx.USDValue)
	}
	if result.TotalTransactions == 0 {
		return result
	}
	totalVolume := result.TotalVolumeUSD.InexactFloat64()

	for _, wallet := range slices.Sorted(maps.Keys(byWallet)) {
		walletTxs := byWallet[wallet]
		volume := sumUSD(walletTxs)
		d := Domination{
			Address:    wallet,
			TradeCount: len(walletTxs),
			VolumeUSD:  volume,
			TxShare:    float64(len(walletTxs)) / float64(result.TotalTransactions),
		}
		if totalVolume > 0 {
			d.VolumeShare = volume.InexactFloat64() / totalVolume
		}
		if d.TxShare <= cfg.ShareThreshold && d.VolumeShare <= cfg.ShareThreshold {
			continue
		}

		buys, trades := 0, 0
		for _, tx := range walletTxs {
			if tx.Kind.IsTrade() {
				trades++
				if tx.Kind == domain.KindBuy {
					buys++
				}
			}
		}
		if trades > 0 {
			d.BuyRatio = float64(buys) / float64(trades)
		}
		d.TradePattern = tradePattern(d.BuyRatio, trades, cfg)
		d.Regularity = timingRegularity(walletTxs, cfg.RegularityMinTxs)
		share := math.Max(d.TxShare, d.VolumeShare)
		d.ManipulationLikelihood = clamp(cfg.ShareWeight*share+(1-cfg.ShareWeight)*d.Regularity, 0, 1)
		d.Finding = dominationFinding(d, walletTxs)
		result.Dominations = append(result.Dominations, d)
	}

	slices.SortStableFunc(result.Dominations, func(a, b Domination) int {
		sa, sb := math.Max(a.TxShare, a.VolumeShare), math.Max(b.TxShare, b.VolumeShare)
		switch {
		case sa > sb:
			return -1
		case sa < sb:
			return 1
		default:
			return 0
		}
	})
	result.DominantEntities = len(result.Dominations)
	return result
}

func tradePattern(buyRatio float64, trades int, cfg DominationConfig) string {
	switch {
	case trades == 0:
		return TradePatternMixed
	case buyRatio > cfg.AccumulationRatio:
		return TradePatternAccumulation
	case buyRatio < cfg.DistributionRatio:
		return TradePatternDistribution
	default:
		return TradePatternMixed
	}
}

// timingRegularity is 1 minus the coefficient of variation of the block gaps between the
// wallet's transactions. Evenly spaced or single-block bursts score close to 1.
func timingRegularity(txs []domain.Transaction, minTxs int) float64 {
	if len(txs) < max(minTxs, 2) {
		return 0
	}
	gaps := make([]float64, 0, len(txs)-1)
	for i := 1; i < len(txs); i++ {
		gaps = append(gaps, float64(txs[i].BlockNumber-txs[i-1].BlockNumber))
	}
	if mean(gaps) == 0 {
		return 1
	}
	return clamp(1-coefficientOfVariation(gaps), 0, 1)
}

func dominationFinding(d Domination, txs []domain.Transaction) domain.Finding {
	score := math.Max(d.TxShare, d.VolumeShare) * 100
	severity := domain.SeverityMedium
	switch {
	case score > 50:
		severity = domain.SeverityCritical
	case score > 35:
		severity = domain.SeverityHigh
	}
	last := txs[len(txs)-1]
	return domain.Finding{
		Type:              domain.FindingDomination,
		Severity:          severity,
		RiskScore:         score,
		BlockNumber:       last.BlockNumber,
		Timestamp:         last.Timestamp,
		InvolvedAddresses: []string{d.Address},
		USDValueInvolved:  d.VolumeUSD,
		Confidence:        clamp(float64(d.TradeCount)/10, 0.1, 1),
		Description: fmt.Sprintf("%s holds %.1f%% of transactions and %.1f%% of volume (%s)",
			d.Address, d.TxShare*100, d.VolumeShare*100, d.TradePattern),
		Evidence: map[string]any{
			"tx_share":                d.TxShare,
			"volume_share":            d.VolumeShare,
			"regularity":              d.Regularity,
			"manipulation_likelihood": d.ManipulationLikelihood,
		},
	}
}
