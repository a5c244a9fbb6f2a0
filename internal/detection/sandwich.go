package detection

import (
	"fmt"
	"maps"
	"slices"

	"github.com/shopspring/decimal"

	"txsentry/internal/domain"
)

var weiPerEther = decimal.New(1, 18)

type SandwichResult struct {
	AttacksDetected int              `json:"attacks_detected"`
	UniqueBlocks    int              `json:"unique_blocks"`
	BlocksScanned   int              `json:"blocks_scanned"`
	Attacks         []domain.Finding `json:"attacks"`
}

// DetectSandwichAttacks walks each block's pools in transaction-index order and pairs an
// attacker's trade with that attacker's next opposite trade when another wallet traded in
// the attacker's direction between them. Every transaction joins at most one attack.
func DetectSandwichAttacks(txs []domain.Transaction, cfg SandwichConfig) SandwichResult {
	result := SandwichResult{Attacks: []domain.Finding{}}
	blocks := make(map[uint64]struct{})

	for _, block := range GroupByBlock(txs) {
		if len(block) < max(cfg.MinBlockTxs, 3) {
			continue
		}
		result.BlocksScanned++
		byPool := make(map[string][]domain.Transaction)
		for _, tx := range block {
			if tx.Kind.IsTrade() && tx.FromAddress != "" {
				byPool[poolKey(tx)] = append(byPool[poolKey(tx)], tx)
			}
		}
		for _, pool := range slices.Sorted(maps.Keys(byPool)) {
			for _, attack := range sandwichesInPool(byPool[pool], pool, cfg) {
				result.Attacks = append(result.Attacks, attack)
				blocks[attack.BlockNumber] = struct{}{}
			}
		}
	}

	result.AttacksDetected = len(result.Attacks)
	result.UniqueBlocks = len(blocks)
	return result
}

func sandwichesInPool(seq []domain.Transaction, pool string, cfg SandwichConfig) []domain.Finding {
	used := make([]bool, len(seq))
	var attacks []domain.Finding
	for i, front := range seq {
		if used[i] {
			continue
		}
		back := -1
		for k := i + 1; k < len(seq); k++ {
			if !used[k] && seq[k].FromAddress == front.FromAddress && seq[k].Kind == front.Kind.Opposite() {
				back = k
				break
			}
		}
		if back < 0 {
			continue
		}
		victim := -1
		for j := i + 1; j < back; j++ {
			if used[j] || seq[j].FromAddress == front.FromAddress || seq[j].Kind != front.Kind {
				continue
			}
			if worsePrice(front, seq[j]) {
				victim = j
				break
			}
		}
		if victim < 0 {
			continue
		}
		used[i], used[victim], used[back] = true, true, true
		attacks = append(attacks, sandwichFinding(front, seq[victim], seq[back], pool, cfg))
	}
	return attacks
}

// worsePrice reports whether the victim executed at a worse price than the front-run.
// Unpriced legs are accepted; the finding's confidence reflects it.
func worsePrice(front, victim domain.Transaction) bool {
	if !front.PriceUSD.IsPositive() || !victim.PriceUSD.IsPositive() {
		return true
	}
	if front.Kind == domain.KindBuy {
		return victim.PriceUSD.GreaterThan(front.PriceUSD)
	}
	return victim.PriceUSD.LessThan(front.PriceUSD)
}

func sandwichFinding(front, victim, back domain.Transaction, pool string, cfg SandwichConfig) domain.Finding {
	gasUSD := decimal.Zero
	if cfg.NativePriceUSD > 0 {
		gasUSD = front.GasCostWei().Add(back.GasCostWei()).Div(weiPerEther).Mul(decimal.NewFromFloat(cfg.NativePriceUSD))
	}
	gross := back.USDValue.Sub(front.USDValue)
	if front.Kind == domain.KindSell {
		gross = front.USDValue.Sub(back.USDValue)
	}
	profit := gross.Sub(gasUSD)
	risk := sandwichRisk(profit.InexactFloat64())

	confidence := 0.5
	priced := front.PriceUSD.IsPositive() && victim.PriceUSD.IsPositive()
	if priced {
		confidence += 0.3
	}
	if front.Amount.IsPositive() && back.Amount.IsPositive() {
		diff := front.Amount.Sub(back.Amount).Abs().Div(front.Amount).InexactFloat64()
		if diff <= 0.1 {
			confidence += 0.2
		}
	}

	impact := 0.0
	if priced {
		impact = pctChange(front.PriceUSD.InexactFloat64(), victim.PriceUSD.InexactFloat64())
	}
	evidence := map[string]any{
		"pool":             pool,
		"pair":             front.PoolLabel,
		"front_run_hash":   front.Hash,
		"victim_hash":      victim.Hash,
		"back_run_hash":    back.Hash,
		"profit_usd":       profit.InexactFloat64(),
		"price_impact_pct": impact,
	}
	if cfg.NativePriceUSD > 0 {
		evidence["gas_cost_usd"] = gasUSD.InexactFloat64()
	} else {
		evidence["gas_ignored"] = true
	}
	return domain.Finding{
		Type:              domain.FindingSandwich,
		Severity:          domain.SeverityForScore(risk),
		RiskScore:         risk,
		BlockNumber:       front.BlockNumber,
		Timestamp:         front.Timestamp,
		InvolvedAddresses: domain.UniqueAddresses(front.FromAddress, victim.FromAddress),
		USDValueInvolved:  victim.USDValue,
		Confidence:        confidence,
		Description: fmt.Sprintf("%s sandwiched %s in block %d for $%s",
			front.FromAddress, victim.FromAddress, front.BlockNumber, profit.StringFixed(2)),
		Evidence: evidence,
	}
}

func sandwichRisk(profitUSD float64) float64 {
	switch {
	case profitUSD >= 10000:
		return 90
	case profitUSD >= 1000:
		return 70
	case profitUSD >= 100:
		return 50
	case profitUSD > 0:
		return 30
	default:
		return 15
	}
}
