package detection

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"txsentry/internal/domain"
)

func TestDetectPoolDomination(t *testing.T) {
	var txs []domain.Transaction
	for i := 0; i < 6; i++ {
		txs = append(txs, trade(fmt.Sprintf("0xd%d", i), "0xwhale", domain.KindBuy, uint64(10+2*i), 0, 1000))
	}
	for i := 0; i < 4; i++ {
		txs = append(txs, trade(fmt.Sprintf("0xe%d", i), fmt.Sprintf("0xretail%d", i), domain.KindSell, uint64(11+2*i), 0, 100))
	}

	result := DetectPoolDomination(txs, DefaultDominationConfig())

	assert.Equal(t, 10, result.TotalTransactions)
	require.Equal(t, 1, result.DominantEntities)
	d := result.Dominations[0]
	assert.Equal(t, "0xwhale", d.Address)
	assert.InDelta(t, 0.6, d.TxShare, 1e-9)
	assert.InDelta(t, 0.9375, d.VolumeShare, 1e-9)
	assert.Equal(t, TradePatternAccumulation, d.TradePattern)
	assert.InDelta(t, 1, d.Regularity, 1e-9)
	assert.InDelta(t, 0.9625, d.ManipulationLikelihood, 1e-9)
	assert.Equal(t, domain.SeverityCritical, d.Finding.Severity)
}

func TestDetectPoolDominationEvenPool(t *testing.T) {
	var txs []domain.Transaction
	for i := 0; i < 8; i++ {
		txs = append(txs, trade(fmt.Sprintf("0x%d", i), fmt.Sprintf("0xw%d", i), domain.KindBuy, uint64(i), 0, 100))
	}

	result := DetectPoolDomination(txs, DefaultDominationConfig())

	assert.Zero(t, result.DominantEntities)
	assert.Empty(t, result.Dominations)
}

func TestTimingRegularity(t *testing.T) {
	even := []domain.Transaction{
		trade("0x1", "0xw", domain.KindBuy, 10, 0, 1),
		trade("0x2", "0xw", domain.KindBuy, 20, 0, 1),
		trade("0x3", "0xw", domain.KindBuy, 30, 0, 1),
	}
	burst := []domain.Transaction{
		trade("0x1", "0xw", domain.KindBuy, 10, 0, 1),
		trade("0x2", "0xw", domain.KindBuy, 10, 1, 1),
		trade("0x3", "0xw", domain.KindBuy, 10, 2, 1),
	}

	assert.InDelta(t, 1, timingRegularity(even, 3), 1e-9)
	assert.InDelta(t, 1, timingRegularity(burst, 3), 1e-9)
	assert.Zero(t, timingRegularity(even[:2], 3))
}
