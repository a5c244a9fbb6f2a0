package detection

import (
	"fmt"
	"maps"
	"slices"

	"github.com/shopspring/decimal"

	"txsentry/internal/domain"
)

// Liquidity patterns reported in Finding.Evidence["pattern"].
const (
	PatternAddRemoveCycle  = "add_remove_cycle"
	PatternFlashLoanShift  = "flash_loan_shift"
	PatternRugPull         = "rug_pull"
	PatternCoordinatedDump = "coordinated_dump"
)

type LiquidityResult struct {
	ManipulationsDetected int              `json:"manipulations_detected"`
	Manipulations         []domain.Finding `json:"manipulations"`
	PoolLiquidityUSD      float64          `json:"pool_liquidity_usd"`
}

// DetectLiquidityManipulation reports add-then-remove liquidity cycles, liquidity moved in
// the same block as a flash loan, sell-side rug pulls and coordinated dumps.
func DetectLiquidityManipulation(poolTxs []domain.Transaction, cfg LiquidityConfig) LiquidityResult {
	txs := sortedCopy(poolTxs)
	depth := cfg.PoolLiquidityUSD
	if depth <= 0 {
		for _, tx := range txs {
			if tx.Kind == domain.KindAddLiquidity {
				depth += tx.USDValue.InexactFloat64()
			}
		}
	}

	var findings []domain.Finding
	findings = append(findings, liquidityCycles(txs, depth, cfg)...)
	findings = append(findings, flashLoanShifts(txs, depth)...)
	findings = append(findings, rugPulls(txs, cfg)...)
	findings = append(findings, coordinatedDumps(txs, cfg)...)
	sortFindings(findings)
	if findings == nil {
		findings = []domain.Finding{}
	}
	return LiquidityResult{
		ManipulationsDetected: len(findings),
		Manipulations:         findings,
		PoolLiquidityUSD:      depth,
	}
}

func liquidityCycles(txs []domain.Transaction, depth float64, cfg LiquidityConfig) []domain.Finding {
	liquidityWallets := make(map[uint64]map[string]struct{})
	open := make(map[string][]domain.Transaction)
	var findings []domain.Finding
	for _, tx := range txs {
		if tx.Kind != domain.KindAddLiquidity && tx.Kind != domain.KindRemoveLiquidity {
			continue
		}
		if liquidityWallets[tx.BlockNumber] == nil {
			liquidityWallets[tx.BlockNumber] = make(map[string]struct{})
		}
		liquidityWallets[tx.BlockNumber][tx.FromAddress] = struct{}{}
	}
	for _, tx := range txs {
		switch tx.Kind {
		case domain.KindAddLiquidity:
			open[tx.FromAddress] = append(open[tx.FromAddress], tx)
		case domain.KindRemoveLiquidity:
			adds := open[tx.FromAddress]
			for len(adds) > 0 && tx.BlockNumber-adds[0].BlockNumber > cfg.CycleMaxBlocks {
				adds = adds[1:]
			}
			if len(adds) == 0 {
				open[tx.FromAddress] = adds
				continue
			}
			add := adds[0]
			open[tx.FromAddress] = adds[1:]
			removed := tx.USDValue.InexactFloat64()
			if removed < cfg.MinCycleValueUSD {
				continue
			}
			fraction := 1.0
			if depth > 0 {
				fraction = clamp(removed/depth, 0, 1)
			}
			coordinated := len(liquidityWallets[tx.BlockNumber])
			risk := clamp(fraction*100+float64(coordinated-1)*10, 0, 100)
			gap := tx.BlockNumber - add.BlockNumber
			findings = append(findings, domain.Finding{
				Type:              domain.FindingLiquidityEvent,
				Severity:          domain.SeverityForScore(risk),
				RiskScore:         risk,
				BlockNumber:       tx.BlockNumber,
				Timestamp:         tx.Timestamp,
				InvolvedAddresses: sortedWallets(liquidityWallets[tx.BlockNumber], tx.FromAddress),
				USDValueInvolved:  tx.USDValue,
				Confidence:        clamp(1-float64(gap)/float64(cfg.CycleMaxBlocks+1), 0.3, 1),
				Description: fmt.Sprintf("%s added liquidity at block %d and removed $%s %d blocks later",
					tx.FromAddress, add.BlockNumber, tx.USDValue.StringFixed(2), gap),
				Evidence: map[string]any{
					"pattern":             PatternAddRemoveCycle,
					"fraction_moved":      fraction,
					"blocks_held":         gap,
					"coordinated_wallets": coordinated,
					"add_tx_hash":         add.Hash,
					"remove_tx_hash":      tx.Hash,
				},
			})
		}
	}
	return findings
}

func flashLoanShifts(txs []domain.Transaction, depth float64) []domain.Finding {
	var findings []domain.Finding
	for _, block := range GroupByBlock(txs) {
		loans := make(map[string]domain.Transaction)
		for _, tx := range block {
			if tx.Kind == domain.KindFlashLoan {
				if _, ok := loans[tx.FromAddress]; !ok {
					loans[tx.FromAddress] = tx
				}
			}
		}
		for _, wallet := range slices.Sorted(maps.Keys(loans)) {
			moved := decimal.Zero
			var hashes []string
			for _, tx := range block {
				if tx.FromAddress != wallet || (tx.Kind != domain.KindAddLiquidity && tx.Kind != domain.KindRemoveLiquidity) {
					continue
				}
				moved = moved.Add(tx.USDValue)
				hashes = append(hashes, tx.Hash)
			}
			if len(hashes) == 0 {
				continue
			}
			fraction := 1.0
			if depth > 0 {
				fraction = clamp(moved.InexactFloat64()/depth, 0, 1)
			}
			risk := clamp(40+fraction*60, 0, 100)
			loan := loans[wallet]
			findings = append(findings, domain.Finding{
				Type:              domain.FindingLiquidityEvent,
				Severity:          domain.SeverityForScore(risk),
				RiskScore:         risk,
				BlockNumber:       loan.BlockNumber,
				Timestamp:         loan.Timestamp,
				InvolvedAddresses: []string{wallet},
				USDValueInvolved:  moved,
				Confidence:        0.8,
				Description:       fmt.Sprintf("%s moved $%s of liquidity alongside a flash loan", wallet, moved.StringFixed(2)),
				Evidence: map[string]any{
					"pattern":         PatternFlashLoanShift,
					"fraction_moved":  fraction,
					"flash_loan_hash": loan.Hash,
					"liquidity_txs":   hashes,
				},
			})
		}
	}
	return findings
}

func rugPulls(txs []domain.Transaction, cfg LiquidityConfig) []domain.Finding {
	byWallet := make(map[string][]domain.Transaction)
	for _, tx := range txs {
		if tx.Kind.IsTrade() {
			byWallet[tx.FromAddress] = append(byWallet[tx.FromAddress], tx)
		}
	}
	var findings []domain.Finding
	for _, wallet := range slices.Sorted(maps.Keys(byWallet)) {
		trades := byWallet[wallet]
		var sells []domain.Transaction
		for _, tx := range trades {
			if tx.Kind == domain.KindSell {
				sells = append(sells, tx)
			}
		}
		value := sumUSD(sells)
		if len(sells) < cfg.RugMinSells || value.InexactFloat64() <= cfg.RugMinValueUSD {
			continue
		}
		recent := trades[max(0, len(trades)-cfg.RugRecentTxs):]
		recentSells := 0
		for _, tx := range recent {
			if tx.Kind == domain.KindSell {
				recentSells++
			}
		}
		ratio := float64(recentSells) / float64(len(recent))
		if ratio <= cfg.RugSellRatio {
			continue
		}
		risk := clamp(value.InexactFloat64()/1000+ratio*50, 0, 100)
		last := sells[len(sells)-1]
		findings = append(findings, domain.Finding{
			Type:              domain.FindingLiquidityEvent,
			Severity:          domain.SeverityForScore(risk),
			RiskScore:         risk,
			BlockNumber:       last.BlockNumber,
			Timestamp:         last.Timestamp,
			InvolvedAddresses: []string{wallet},
			USDValueInvolved:  value,
			Confidence:        ratio,
			Description:       fmt.Sprintf("%s sold $%s across %d sells", wallet, value.StringFixed(2), len(sells)),
			Evidence: map[string]any{
				"pattern":           PatternRugPull,
				"sell_count":        len(sells),
				"recent_sell_ratio": ratio,
			},
		})
	}
	return findings
}

func coordinatedDumps(txs []domain.Transaction, cfg LiquidityConfig) []domain.Finding {
	var findings []domain.Finding
	for _, block := range GroupByBlock(txs) {
		var sells []domain.Transaction
		var wallets []string
		for _, tx := range block {
			if tx.Kind == domain.KindSell {
				sells = append(sells, tx)
				wallets = append(wallets, tx.FromAddress)
			}
		}
		wallets = domain.UniqueAddresses(wallets...)
		value := sumUSD(sells)
		if len(sells) < cfg.DumpMinSells || len(wallets) < cfg.DumpMinWallets || value.InexactFloat64() <= cfg.DumpMinValueUSD {
			continue
		}
		risk := clamp(float64(len(wallets))*15+value.InexactFloat64()/500, 0, 100)
		findings = append(findings, domain.Finding{
			Type:              domain.FindingLiquidityEvent,
			Severity:          domain.SeverityForScore(risk),
			RiskScore:         risk,
			BlockNumber:       block[0].BlockNumber,
			Timestamp:         block[0].Timestamp,
			InvolvedAddresses: wallets,
			USDValueInvolved:  value,
			Confidence:        clamp(float64(len(wallets))/float64(2*max(cfg.DumpMinWallets, 1)), 0, 1),
			Description:       fmt.Sprintf("%d wallets sold $%s in block %d", len(wallets), value.StringFixed(2), block[0].BlockNumber),
			Evidence: map[string]any{
				"pattern":    PatternCoordinatedDump,
				"sell_count": len(sells),
			},
		})
	}
	return findings
}

// sortedWallets puts first ahead of the remaining wallets in lexical order.
func sortedWallets(set map[string]struct{}, first string) []string {
	rest := make([]string, 0, len(set))
	for _, w := range slices.Sorted(maps.Keys(set)) {
		if w != first {
			rest = append(rest, w)
		}
	}
	return domain.UniqueAddresses(append([]string{first}, rest...)...)
}
