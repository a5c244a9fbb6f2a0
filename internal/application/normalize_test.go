package application

import (
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"txsentry/internal/domain"
)

var baseTime = time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

func hashN(n int) string { return fmt.Sprintf("0x%064x", n) }

func addrN(n int) string { return fmt.Sprintf("0x%040x", n) }

func swapRecord(n int, block, index int64, kind string) RawRecord {
	return RawRecord{
		TransactionHash:  hashN(n),
		TransactionIndex: decimal.NewFromInt(index),
		BlockNumber:      decimal.NewFromInt(block),
		BlockTimestamp:   baseTime.Add(time.Duration(block) * 12 * time.Second),
		TransactionType:  kind,
		WalletAddress:    addrN(1),
		PairAddress:      addrN(99),
		PairLabel:        "PEPE/WETH",
		BaseToken:        "PEPE",
		QuoteToken:       "WETH",
		Bought:           &RawToken{Address: addrN(50), Symbol: "PEPE", Amount: decimal.NewFromInt(1000), USDPrice: decimal.RequireFromString("0.5"), USDAmount: decimal.NewFromInt(500)},
		Sold:             &RawToken{Address: addrN(51), Symbol: "WETH", Amount: decimal.RequireFromString("-0.2"), USDPrice: decimal.NewFromInt(2500), USDAmount: decimal.NewFromInt(-500)},
		TotalValueUSD:    decimal.NewFromInt(500),
		SubCategory:      "newPosition",
	}
}

func TestNormalizeDedupesAndOrders(t *testing.T) {
	records := []RawRecord{
		swapRecord(3, 12, 0, "buy"),
		swapRecord(1, 10, 5, "buy"),
		swapRecord(2, 10, 1, "sell"),
		swapRecord(1, 10, 5, "buy"),
	}

	txs, dropped := Normalize(records)

	require.Len(t, txs, 3)
	assert.Equal(t, 0, dropped)
	assert.Equal(t, []string{hashN(2), hashN(1), hashN(3)}, []string{txs[0].Hash, txs[1].Hash, txs[2].Hash})
}

func TestNormalizeDropsIncompleteRecords(t *testing.T) {
	noHash := swapRecord(1, 10, 0, "buy")
	noHash.TransactionHash = ""
	shortHash := swapRecord(2, 10, 0, "buy")
	shortHash.TransactionHash = "0x1234"
	badWallet := swapRecord(3, 10, 0, "buy")
	badWallet.WalletAddress = "not-an-address"
	noBlock := swapRecord(4, 0, 0, "buy")
	noTime := swapRecord(5, 10, 0, "buy")
	noTime.BlockTimestamp = time.Time{}
	noKind := swapRecord(6, 10, 0, "")
	good := swapRecord(7, 10, 0, "buy")

	txs, dropped := Normalize([]RawRecord{noHash, shortHash, badWallet, noBlock, noTime, noKind, good})

	require.Len(t, txs, 1)
	assert.Equal(t, 6, dropped)
	assert.Equal(t, hashN(7), txs[0].Hash)
}

func TestNormalizeBuyFields(t *testing.T) {
	rec := swapRecord(1, 10, 3, "buy")
	rec.WalletAddress = "0xABCDEFabcdefABCDEFabcdefABCDEFabcdefABCD"
	rec.GasUsed = decimal.NewFromInt(150000)
	rec.GasPrice = decimal.NewFromInt(20_000_000_000)

	txs, _ := Normalize([]RawRecord{rec})
	require.Len(t, txs, 1)
	tx := txs[0]

	assert.Equal(t, domain.KindBuy, tx.Kind)
	assert.Equal(t, "0xabcdefabcdefabcdefabcdefabcdefabcdefabcd", tx.FromAddress)
	assert.Equal(t, addrN(50), tx.TokenAddress)
	assert.Equal(t, "PEPE", tx.TokenSymbol)
	assert.True(t, tx.Amount.Equal(decimal.NewFromInt(1000)))
	assert.True(t, tx.USDValue.Equal(decimal.NewFromInt(500)))
	assert.True(t, tx.PriceUSD.Equal(decimal.RequireFromString("0.5")))
	assert.Equal(t, addrN(99), tx.PoolAddress)
	assert.Equal(t, addrN(99), tx.ToAddress)
	assert.Equal(t, "PEPE/WETH", tx.PoolLabel)
	assert.Equal(t, domain.CategoryNewPosition, tx.Category)
	assert.Equal(t, uint64(10), tx.BlockNumber)
	assert.Equal(t, uint64(3), tx.TxIndex)
	assert.Equal(t, uint64(150000), tx.GasUsed)
	assert.Equal(t, "buy", tx.MethodSignature)
}

func TestNormalizeSellUsesSoldLeg(t *testing.T) {
	rec := swapRecord(1, 10, 0, "sell")
	rec.Bought, rec.Sold = rec.Sold, rec.Bought
	rec.TotalValueUSD = decimal.Zero
	rec.SubCategory = "sellAll"

	txs, _ := Normalize([]RawRecord{rec})
	require.Len(t, txs, 1)

	assert.Equal(t, domain.KindSell, txs[0].Kind)
	assert.Equal(t, addrN(50), txs[0].TokenAddress)
	assert.True(t, txs[0].USDValue.Equal(decimal.NewFromInt(500)), "usd falls back to the base leg")
	assert.Equal(t, domain.CategorySellAll, txs[0].Category)
}

func TestNormalizeClassifiesSelectors(t *testing.T) {
	cases := []struct {
		input  string
		kind   domain.TxKind
		method string
	}{
		{"0xe8e33700" + fmt.Sprintf("%064x", 1), domain.KindAddLiquidity, "addLiquidity"},
		{"0x02751CEC", domain.KindRemoveLiquidity, "removeLiquidityETH"},
		{"0x42b0b77c", domain.KindFlashLoan, "flashLoanSimple"},
		{"0xa9059cbb", domain.KindTransfer, "transfer"},
	}
	for _, tc := range cases {
		t.Run(tc.method, func(t *testing.T) {
			rec := swapRecord(1, 10, 0, "")
			rec.Input = tc.input

			txs, dropped := Normalize([]RawRecord{rec})
			require.Len(t, txs, 1)
			assert.Zero(t, dropped)
			assert.Equal(t, tc.kind, txs[0].Kind)
			assert.Equal(t, tc.method, txs[0].MethodSignature)
		})
	}
}

func TestNormalizeProviderKindWinsOverSelector(t *testing.T) {
	rec := swapRecord(1, 10, 0, "sell")
	rec.Input = "0x38ed1739"

	txs, _ := Normalize([]RawRecord{rec})
	require.Len(t, txs, 1)
	assert.Equal(t, domain.KindSell, txs[0].Kind)
	assert.Equal(t, "swapExactTokensForTokens", txs[0].MethodSignature)
}

func TestNormalizeDerivesPriceFromValue(t *testing.T) {
	rec := swapRecord(1, 10, 0, "buy")
	rec.Bought.USDPrice = decimal.Zero

	txs, _ := Normalize([]RawRecord{rec})
	require.Len(t, txs, 1)
	assert.True(t, txs[0].PriceUSD.Equal(decimal.RequireFromString("0.5")), "got %s", txs[0].PriceUSD)
}
