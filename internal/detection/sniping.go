package detection

import (
	"cmp"
	"fmt"
	"slices"
	"time"

	"github.com/shopspring/decimal"

	"txsentry/internal/domain"
)

const (
	ClassBot       = "Bot"
	ClassUncertain = "Uncertain"
	ClassHuman     = "Human"
)

type Snipe struct {
	TokenAddress      string          `json:"token_address"`
	TokenSymbol       string          `json:"token"`
	Amount            decimal.Decimal `json:"amount"`
	USDValue          decimal.Decimal `json:"value_usd"`
	BlockNumber       uint64          `json:"block_number"`
	BlocksAfterLaunch *uint64         `json:"blocks_after_launch,omitempty"`
	TxIndex           uint64          `json:"tx_index"`
	TxHash            string          `json:"tx_hash"`
	Timestamp         time.Time       `json:"timestamp"`
	Successful        bool            `json:"successful"`
}

type SnipingResult struct {
	Classification     string          `json:"classification"`
	Label              string          `json:"label"`
	BotConfidenceScore float64         `json:"bot_confidence_score"`
	TotalSnipes        int             `json:"total_snipes"`
	SuccessfulSnipes   int             `json:"successful_snipes"`
	SuccessRate        float64         `json:"success_rate"`
	TotalVolumeUSD     decimal.Decimal `json:"total_volume_usd"`
	TokensSniped       []string        `json:"tokens_sniped"`
	RecentSnipes       []Snipe         `json:"recent_snipes"`
	Finding            *domain.Finding `json:"finding,omitempty"`
}

// ClassifySnipingBehavior scores how bot-like a wallet's launch buying is. launchBlocks maps
// token address to its first liquidity block; for tokens without one, an opening position
// near the top of a block counts as a snipe.
func ClassifySnipingBehavior(walletTxs []domain.Transaction, launchBlocks map[string]uint64, cfg SnipingConfig) SnipingResult {
	result := SnipingResult{
		Classification: ClassHuman,
		TotalVolumeUSD: decimal.Zero,
		TokensSniped:   []string{},
		RecentSnipes:   []Snipe{},
	}
	txs := sortedCopy(walletTxs)

	var buys []domain.Transaction
	for _, tx := range txs {
		if tx.Kind == domain.KindBuy {
			buys = append(buys, tx)
		}
	}
	if len(buys) < cfg.MinBuys {
		result.Label = snipingLabel(0)
		return result
	}

	var (
		snipes     []Snipe
		gasPrices  []float64
		txIndexes  []float64
		blockDelay []float64
		tokens     = make(map[string]struct{})
	)
	for _, buy := range buys {
		token := tokenKey(buy)
		snipe := Snipe{
			TokenAddress: token,
			TokenSymbol:  buy.TokenSymbol,
			Amount:       buy.Amount,
			USDValue:     buy.USDValue,
			BlockNumber:  buy.BlockNumber,
			TxIndex:      buy.TxIndex,
			TxHash:       buy.Hash,
			Timestamp:    buy.Timestamp,
		}
		if launch, ok := launchBlocks[token]; ok {
			if buy.BlockNumber < launch || buy.BlockNumber-launch > cfg.MaxBlocksAfterLaunch {
				continue
			}
			delay := buy.BlockNumber - launch
			snipe.BlocksAfterLaunch = &delay
			blockDelay = append(blockDelay, float64(delay))
		} else if buy.Category != domain.CategoryNewPosition || buy.TxIndex > cfg.FallbackMaxTxIndex {
			continue
		}
		snipe.Successful = exitedAtProfit(buy, txs)
		snipes = append(snipes, snipe)
		txIndexes = append(txIndexes, float64(buy.TxIndex))
		if buy.GasPrice.IsPositive() {
			gasPrices = append(gasPrices, buy.GasPrice.InexactFloat64())
		}
		if _, ok := tokens[token]; !ok {
			tokens[token] = struct{}{}
			result.TokensSniped = append(result.TokensSniped, token)
		}
		result.TotalVolumeUSD = result.TotalVolumeUSD.Add(buy.USDValue)
	}

	result.TotalSnipes = len(snipes)
	for _, s := range snipes {
		if s.Successful {
			result.SuccessfulSnipes++
		}
	}
	if result.TotalSnipes > 0 {
		result.SuccessRate = float64(result.SuccessfulSnipes) / float64(result.TotalSnipes)
	}

	score := snipeFrequencyScore(len(snipes), len(buys), len(tokens)) +
		snipeLatencyScore(txIndexes, blockDelay) +
		gasConsistencyScore(gasPrices)
	result.BotConfidenceScore = clamp(score, 0, 100)
	result.Classification = snipingClass(result.BotConfidenceScore, cfg)
	result.Label = snipingLabel(result.BotConfidenceScore)

	recent := slices.Clone(snipes)
	slices.SortStableFunc(recent, func(a, b Snipe) int {
		return cmp.Or(cmp.Compare(b.BlockNumber, a.BlockNumber), cmp.Compare(b.TxIndex, a.TxIndex))
	})
	if len(recent) > cfg.RecentLimit {
		recent = recent[:cfg.RecentLimit]
	}
	result.RecentSnipes = recent

	if len(snipes) > 0 && result.BotConfidenceScore >= cfg.HumanCutoff {
		last := snipes[len(snipes)-1]
		result.Finding = &domain.Finding{
			Type:              domain.FindingSnipe,
			Severity:          domain.SeverityForScore(result.BotConfidenceScore),
			RiskScore:         result.BotConfidenceScore,
			BlockNumber:       last.BlockNumber,
			Timestamp:         last.Timestamp,
			InvolvedAddresses: domain.UniqueAddresses(buys[0].FromAddress),
			USDValueInvolved:  result.TotalVolumeUSD,
			Confidence:        clamp(float64(len(snipes))/20, 0.1, 1),
			Description: fmt.Sprintf("%d launch buys across %d tokens, %.0f%% exited at profit",
				len(snipes), len(tokens), result.SuccessRate*100),
			Evidence: map[string]any{
				"classification": result.Classification,
				"avg_tx_index":   mean(txIndexes),
				"gas_price_cv":   coefficientOfVariation(gasPrices),
			},
		}
	}
	return result
}

func exitedAtProfit(buy domain.Transaction, txs []domain.Transaction) bool {
	for _, tx := range txs {
		if tx.Kind != domain.KindSell || tokenKey(tx) != tokenKey(buy) || !buy.Before(tx) {
			continue
		}
		if tx.PriceUSD.GreaterThan(buy.PriceUSD) {
			return true
		}
	}
	return false
}

func snipeFrequencyScore(snipes, buys, tokens int) float64 {
	var score float64
	ratio := float64(snipes) / float64(buys)
	switch {
	case ratio > 0.7:
		score += 30
	case ratio > 0.5:
		score += 20
	}
	switch {
	case tokens > 10:
		score += 15
	case tokens > 5:
		score += 10
	}
	switch {
	case snipes > 20:
		score += 10
	case snipes > 10:
		score += 5
	}
	return score
}

func snipeLatencyScore(txIndexes, blockDelay []float64) float64 {
	if len(txIndexes) == 0 {
		return 0
	}
	var score float64
	switch avg := mean(txIndexes); {
	case avg < 50:
		score += 15
	case avg < 100:
		score += 10
	}
	if len(blockDelay) > 0 && mean(blockDelay) <= 1 {
		score += 10
	}
	return score
}

// gasConsistencyScore rewards near-identical gas bids, a common bot signature.
func gasConsistencyScore(gasPrices []float64) float64 {
	if len(gasPrices) < 3 {
		return 0
	}
	switch cv := coefficientOfVariation(gasPrices); {
	case cv < 0.05:
		return 20
	case cv < 0.15:
		return 10
	default:
		return 0
	}
}

func snipingClass(score float64, cfg SnipingConfig) string {
	switch {
	case score >= cfg.BotCutoff:
		return ClassBot
	case score >= cfg.HumanCutoff:
		return ClassUncertain
	default:
		return ClassHuman
	}
}

func snipingLabel(score float64) string {
	switch {
	case score >= 70:
		return "HIGHLY LIKELY SNIPING BOT"
	case score >= 50:
		return "PROBABLE SNIPING BOT"
	case score >= 30:
		return "POSSIBLE SNIPING BOT"
	default:
		return "UNLIKELY TO BE A BOT"
	}
}
