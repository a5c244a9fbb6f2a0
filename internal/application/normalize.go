package application

import (
	"slices"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/shopspring/decimal"

	"txsentry/internal/domain"
)

type method struct {
	name string
	kind domain.TxKind
}

// Selectors the normalizer recognises in call input. A swap selector without a direction
// leaves the kind to the provider's transaction type.
var methodSelectors = map[string]method{
	"0xa9059cbb": {"transfer", domain.KindTransfer},
	"0x23b872dd": {"transferFrom", domain.KindTransfer},
	"0x095ea7b3": {"approve", domain.KindTransfer},
	"0x7ff36ab5": {"swapExactETHForTokens", domain.KindBuy},
	"0xfb3bdb41": {"swapETHForExactTokens", domain.KindBuy},
	"0x18cbafe5": {"swapExactTokensForETH", domain.KindSell},
	"0x4a25d94a": {"swapTokensForExactETH", domain.KindSell},
	"0x38ed1739": {"swapExactTokensForTokens", ""},
	"0x8803dbee": {"swapTokensForExactTokens", ""},
	"0xe8e33700": {"addLiquidity", domain.KindAddLiquidity},
	"0xf305d719": {"addLiquidityETH", domain.KindAddLiquidity},
	"0xbaa2abde": {"removeLiquidity", domain.KindRemoveLiquidity},
	"0x02751cec": {"removeLiquidityETH", domain.KindRemoveLiquidity},
	"0xab9c4b5d": {"flashLoan", domain.KindFlashLoan},
	"0x42b0b77c": {"flashLoanSimple", domain.KindFlashLoan},
	"0x5c38449e": {"flashLoan", domain.KindFlashLoan},
	"0x920f5c84": {"executeOperation", domain.KindFlashLoan},
}

var providerKinds = map[string]domain.TxKind{
	"buy":             domain.KindBuy,
	"sell":            domain.KindSell,
	"addliquidity":    domain.KindAddLiquidity,
	"removeliquidity": domain.KindRemoveLiquidity,
	"transfer":        domain.KindTransfer,
}

var providerCategories = map[string]domain.PositionCategory{
	"newposition":  domain.CategoryNewPosition,
	"accumulation": domain.CategoryAccumulation,
	"partialsell":  domain.CategoryPartialSell,
	"sellall":      domain.CategorySellAll,
}

// Normalize converts provider records into canonical transactions, deduplicated by hash
// and ordered by (block, index). Records missing a required field are dropped and counted.
func Normalize(records []RawRecord) ([]domain.Transaction, int) {
	txs := make([]domain.Transaction, 0, len(records))
	dropped := 0
	for _, rec := range records {
		tx, ok := normalizeRecord(rec)
		if !ok {
			dropped++
			continue
		}
		txs = append(txs, tx)
	}
	merged := mergeTransactions(txs)
	return merged, dropped
}

// mergeTransactions keeps the first record per hash and sorts the result.
func mergeTransactions(txs []domain.Transaction) []domain.Transaction {
	seen := make(map[string]struct{}, len(txs))
	out := make([]domain.Transaction, 0, len(txs))
	for _, tx := range txs {
		if _, ok := seen[tx.Hash]; ok {
			continue
		}
		seen[tx.Hash] = struct{}{}
		out = append(out, tx)
	}
	slices.SortStableFunc(out, func(a, b domain.Transaction) int {
		switch {
		case a.Before(b):
			return -1
		case b.Before(a):
			return 1
		default:
			return 0
		}
	})
	return out
}

func normalizeRecord(rec RawRecord) (domain.Transaction, bool) {
	hash := strings.ToLower(strings.TrimSpace(rec.TransactionHash))
	if raw, err := hexutil.Decode(hash); err != nil || len(raw) != common.HashLength {
		return domain.Transaction{}, false
	}
	if !rec.BlockNumber.IsPositive() || rec.BlockTimestamp.IsZero() || rec.TransactionIndex.IsNegative() {
		return domain.Transaction{}, false
	}
	wallet, ok := canonicalAddress(rec.WalletAddress)
	if !ok {
		return domain.Transaction{}, false
	}

	selector, m, known := classifyInput(rec.Input)
	kind, ok := providerKinds[foldKey(rec.TransactionType)]
	if !ok {
		kind = m.kind
	}
	if kind == "" {
		return domain.Transaction{}, false
	}

	leg := baseLeg(rec, kind)
	amount := rec.BaseTokenAmount.Abs()
	usd := rec.TotalValueUSD.Abs()
	price := rec.BaseTokenPriceUSD
	var tokenAddress, symbol string
	if leg != nil {
		tokenAddress, _ = canonicalAddress(leg.Address)
		symbol = leg.Symbol
		if amount.IsZero() {
			amount = leg.Amount.Abs()
		}
		if usd.IsZero() {
			usd = leg.USDAmount.Abs()
		}
		if !price.IsPositive() {
			price = leg.USDPrice
		}
	}
	if !price.IsPositive() && amount.IsPositive() && usd.IsPositive() {
		price = usd.Div(amount)
	}
	if !price.IsPositive() {
		price = decimal.Zero
	}
	if symbol == "" {
		symbol = rec.BaseToken
	}

	pool, _ := canonicalAddress(rec.PairAddress)
	to, ok := canonicalAddress(rec.ToAddress)
	if !ok {
		to = pool
	}

	methodName := rec.TransactionType
	switch {
	case known:
		methodName = m.name
	case methodName == "" && selector != "":
		methodName = selector
	}

	category, ok := providerCategories[foldKey(rec.SubCategory)]
	if !ok {
		category = domain.CategoryUnknown
	}

	return domain.Transaction{
		Hash:            hash,
		BlockNumber:     uint64(rec.BlockNumber.IntPart()),
		TxIndex:         uint64(rec.TransactionIndex.IntPart()),
		Timestamp:       rec.BlockTimestamp.UTC(),
		FromAddress:     wallet,
		ToAddress:       to,
		TokenAddress:    tokenAddress,
		TokenSymbol:     symbol,
		Amount:          amount,
		USDValue:        usd,
		MethodSignature: methodName,
		GasUsed:         uint64(max(rec.GasUsed.IntPart(), 0)),
		GasPrice:        rec.GasPrice.Abs(),
		Kind:            kind,
		PoolAddress:     pool,
		PoolLabel:       rec.PairLabel,
		PriceUSD:        price,
		Category:        category,
	}, true
}

// classifyInput returns the 4-byte selector of call input and what it is known to do.
func classifyInput(input string) (string, method, bool) {
	input = strings.TrimSpace(input)
	if input == "" || input == "0x" {
		return "", method{}, false
	}
	raw, err := hexutil.Decode(strings.ToLower(input))
	if err != nil || len(raw) < 4 {
		return "", method{}, false
	}
	selector := hexutil.Encode(raw[:4])
	m, ok := methodSelectors[selector]
	return selector, m, ok
}

// baseLeg picks the leg carrying the pool's base token: the bought side of a buy, the sold
// side of a sell, unless the symbols say otherwise.
func baseLeg(rec RawRecord, kind domain.TxKind) *RawToken {
	legs := []*RawToken{rec.Bought, rec.Sold}
	if kind == domain.KindSell {
		legs = []*RawToken{rec.Sold, rec.Bought}
	}
	if rec.BaseToken != "" {
		for _, leg := range legs {
			if leg != nil && strings.EqualFold(leg.Symbol, rec.BaseToken) {
				return leg
			}
		}
	}
	for _, leg := range legs {
		if leg != nil {
			return leg
		}
	}
	return nil
}

func canonicalAddress(raw string) (string, bool) {
	raw = strings.TrimSpace(raw)
	if !common.IsHexAddress(raw) {
		return "", false
	}
	return strings.ToLower(common.HexToAddress(raw).Hex()), true
}

func foldKey(raw string) string {
	return strings.ToLower(strings.ReplaceAll(strings.ReplaceAll(strings.TrimSpace(raw), "_", ""), " ", ""))
}
