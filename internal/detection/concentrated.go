package detection

import (
	"fmt"
	"maps"
	"math"
	"slices"

	"github.com/shopspring/decimal"

	"txsentry/internal/domain"
)

// The price-impact heuristic yields a single blended number; it is reported as risk and the
// confidence axis is held at a neutral constant.
const singleAxisConfidence = 0.5

type ConcentratedResult struct {
	AttacksDetected  int              `json:"attacks_detected"`
	PriceImpacts     []domain.Finding `json:"price_impacts"`
	SnipingClusters  []domain.Finding `json:"sniping_clusters"`
	HighestImpactPct float64          `json:"highest_impact_pct"`
}

// DetectConcentratedAttack finds single trades that move a pool's price hard and blocks
// where several tightly priced buys land together.
func DetectConcentratedAttack(poolTxs []domain.Transaction, cfg ConcentratedConfig) ConcentratedResult {
	result := ConcentratedResult{PriceImpacts: []domain.Finding{}, SnipingClusters: []domain.Finding{}}

	for _, series := range SeriesByPool(poolTxs) {
		for i := 1; i < len(series.Points); i++ {
			prev, cur := series.Points[i-1], series.Points[i]
			impact := math.Abs(pctChange(prev.Price, cur.Price))
			if cur.VolumeUSD <= cfg.MinImpactValueUSD || impact <= cfg.MinImpactPct {
				continue
			}
			risk := clamp(impact*10+cur.VolumeUSD/1000, 0, 100)
			result.HighestImpactPct = math.Max(result.HighestImpactPct, impact)
			result.PriceImpacts = append(result.PriceImpacts, domain.Finding{
				Type:              domain.FindingPriceSpike,
				Severity:          domain.SeverityForScore(risk),
				RiskScore:         risk,
				BlockNumber:       cur.BlockNumber,
				Timestamp:         cur.Timestamp,
				InvolvedAddresses: domain.UniqueAddresses(cur.Wallet),
				USDValueInvolved:  decimal.NewFromFloat(cur.VolumeUSD),
				Confidence:        singleAxisConfidence,
				Description:       fmt.Sprintf("$%.2f trade moved %s by %.2f%%", cur.VolumeUSD, series.Pool, impact),
				Evidence: map[string]any{
					"pattern":          "price_impact",
					"pool":             series.Pool,
					"price_impact_pct": impact,
					"tx_hash":          cur.TxHash,
				},
			})
		}
	}

	for _, block := range GroupByBlock(poolTxs) {
		byPool := make(map[string][]domain.Transaction)
		for _, tx := range block {
			if tx.Kind == domain.KindBuy && tx.PriceUSD.IsPositive() {
				byPool[poolKey(tx)] = append(byPool[poolKey(tx)], tx)
			}
		}
		for _, pool := range slices.Sorted(maps.Keys(byPool)) {
			if finding, ok := snipingCluster(byPool[pool], pool, cfg); ok {
				result.SnipingClusters = append(result.SnipingClusters, finding)
			}
		}
	}

	sortFindings(result.PriceImpacts)
	result.AttacksDetected = len(result.PriceImpacts) + len(result.SnipingClusters)
	return result
}

func snipingCluster(buys []domain.Transaction, pool string, cfg ConcentratedConfig) (domain.Finding, bool) {
	if len(buys) < cfg.ClusterMinBuys {
		return domain.Finding{}, false
	}
	prices := make([]float64, 0, len(buys))
	wallets := make([]string, 0, len(buys))
	for _, tx := range buys {
		prices = append(prices, tx.PriceUSD.InexactFloat64())
		wallets = append(wallets, tx.FromAddress)
	}
	avg := mean(prices)
	var variance float64
	for _, p := range prices {
		variance += (p - avg) * (p - avg)
	}
	variance /= float64(len(prices))
	limit := cfg.ClusterMaxDispersion * avg
	value := sumUSD(buys)
	if variance >= limit*limit || value.InexactFloat64() <= cfg.ClusterMinValueUSD {
		return domain.Finding{}, false
	}
	risk := clamp(25+value.InexactFloat64()/1000, 0, 100)
	return domain.Finding{
		Type:              domain.FindingSnipe,
		Severity:          domain.SeverityForScore(risk),
		RiskScore:         risk,
		BlockNumber:       buys[0].BlockNumber,
		Timestamp:         buys[0].Timestamp,
		InvolvedAddresses: domain.UniqueAddresses(wallets...),
		USDValueInvolved:  value,
		Confidence:        clamp((50+float64(len(buys))*10)/100, 0, 1),
		Description:       fmt.Sprintf("%d buys at near-identical prices in block %d", len(buys), buys[0].BlockNumber),
		Evidence: map[string]any{
			"pattern":        "liquidity_sniping",
			"pool":           pool,
			"buy_count":      len(buys),
			"price_variance": variance,
			"avg_price":      avg,
		},
	}, true
}
