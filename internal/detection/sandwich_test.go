package detection

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"txsentry/internal/domain"
)

func TestDetectSandwichAttack(t *testing.T) {
	front := priced(trade("0xa", "0xattacker", domain.KindBuy, 500, 0, 1000), 1.00)
	victim := priced(trade("0xb", "0xvictim", domain.KindBuy, 500, 1, 5000), 1.05)
	back := priced(trade("0xc", "0xattacker", domain.KindSell, 500, 2, 1080), 1.04)

	result := DetectSandwichAttacks([]domain.Transaction{back, victim, front}, DefaultSandwichConfig())

	require.Equal(t, 1, result.AttacksDetected)
	assert.Equal(t, 1, result.UniqueBlocks)
	attack := result.Attacks[0]
	assert.Equal(t, uint64(500), attack.BlockNumber)
	assert.Equal(t, []string{"0xattacker", "0xvictim"}, attack.InvolvedAddresses)
	assert.Equal(t, "0xb", attack.Evidence["victim_hash"])
	assert.InDelta(t, 80, attack.Evidence["profit_usd"].(float64), 1e-9)
	assert.InDelta(t, 1.0, attack.Confidence, 1e-9)
	assert.Equal(t, true, attack.Evidence["gas_ignored"])
	assert.NotContains(t, attack.Evidence, "gas_cost_usd")
}

func TestDetectSandwichAttackProfitNetOfGas(t *testing.T) {
	gasPrice := decimal.NewFromInt(20_000_000_000)
	front := priced(trade("0xa", "0xattacker", domain.KindBuy, 500, 0, 1000), 1.00)
	front.GasUsed, front.GasPrice = 100000, gasPrice
	victim := priced(trade("0xb", "0xvictim", domain.KindBuy, 500, 1, 5000), 1.05)
	back := priced(trade("0xc", "0xattacker", domain.KindSell, 500, 2, 1080), 1.04)
	back.GasUsed, back.GasPrice = 100000, gasPrice

	cfg := DefaultSandwichConfig()
	cfg.NativePriceUSD = 3000
	result := DetectSandwichAttacks([]domain.Transaction{front, victim, back}, cfg)

	require.Len(t, result.Attacks, 1)
	assert.InDelta(t, 68, result.Attacks[0].Evidence["profit_usd"].(float64), 1e-9)
	assert.InDelta(t, 12, result.Attacks[0].Evidence["gas_cost_usd"].(float64), 1e-9)
	assert.NotContains(t, result.Attacks[0].Evidence, "gas_ignored")
}

func TestDetectSandwichAttackVictimUsedOnce(t *testing.T) {
	txs := []domain.Transaction{
		priced(trade("0x1", "0xa", domain.KindBuy, 700, 0, 1000), 1.00),
		priced(trade("0x2", "0xb", domain.KindBuy, 700, 1, 1000), 1.01),
		priced(trade("0x3", "0xv", domain.KindBuy, 700, 2, 4000), 1.03),
		priced(trade("0x4", "0xb", domain.KindSell, 700, 3, 1020), 1.02),
		priced(trade("0x5", "0xa", domain.KindSell, 700, 4, 1030), 1.02),
	}

	result := DetectSandwichAttacks(txs, DefaultSandwichConfig())

	victims := make(map[string]int)
	for _, attack := range result.Attacks {
		victims[attack.Evidence["victim_hash"].(string)]++
	}
	for hash, n := range victims {
		assert.Equal(t, 1, n, "victim %s counted twice", hash)
	}
	assert.Equal(t, len(result.Attacks), len(victims))
}

func TestDetectSandwichAttackIgnoresSmallBlocksAndBetterPrices(t *testing.T) {
	small := []domain.Transaction{
		priced(trade("0x1", "0xa", domain.KindBuy, 10, 0, 1000), 1.0),
		priced(trade("0x2", "0xa", domain.KindSell, 10, 1, 1100), 1.1),
	}
	better := []domain.Transaction{
		priced(trade("0x3", "0xa", domain.KindBuy, 11, 0, 1000), 1.00),
		priced(trade("0x4", "0xv", domain.KindBuy, 11, 1, 1000), 0.98),
		priced(trade("0x5", "0xa", domain.KindSell, 11, 2, 1000), 1.00),
	}

	assert.Zero(t, DetectSandwichAttacks(small, DefaultSandwichConfig()).AttacksDetected)
	assert.Zero(t, DetectSandwichAttacks(better, DefaultSandwichConfig()).AttacksDetected)
}
