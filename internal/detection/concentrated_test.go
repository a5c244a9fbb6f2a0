package detection

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"txsentry/internal/domain"
)

func TestDetectConcentratedAttackPriceImpact(t *testing.T) {
	txs := []domain.Transaction{
		priced(trade("0x1", "0xa", domain.KindBuy, 1, 0, 100), 1.0),
		priced(trade("0x2", "0xwhale", domain.KindBuy, 2, 0, 6000), 1.1),
	}

	result := DetectConcentratedAttack(txs, DefaultConcentratedConfig())

	require.Len(t, result.PriceImpacts, 1)
	impact := result.PriceImpacts[0]
	assert.Equal(t, []string{"0xwhale"}, impact.InvolvedAddresses)
	assert.Equal(t, 100.0, impact.RiskScore)
	assert.Equal(t, singleAxisConfidence, impact.Confidence)
	assert.InDelta(t, 10, result.HighestImpactPct, 1e-6)
	assert.Empty(t, result.SnipingClusters)
	assert.Equal(t, 1, result.AttacksDetected)
}

func TestDetectConcentratedAttackSnipingCluster(t *testing.T) {
	txs := []domain.Transaction{
		priced(trade("0x1", "0xa", domain.KindBuy, 50, 0, 1500), 1.0),
		priced(trade("0x2", "0xb", domain.KindBuy, 50, 1, 1500), 1.01),
		priced(trade("0x3", "0xc", domain.KindBuy, 50, 2, 1500), 1.0),
	}

	result := DetectConcentratedAttack(txs, DefaultConcentratedConfig())

	assert.Empty(t, result.PriceImpacts)
	require.Len(t, result.SnipingClusters, 1)
	cluster := result.SnipingClusters[0]
	assert.Equal(t, domain.FindingSnipe, cluster.Type)
	assert.Equal(t, []string{"0xa", "0xb", "0xc"}, cluster.InvolvedAddresses)
	assert.InDelta(t, 0.8, cluster.Confidence, 1e-9)
	assert.InDelta(t, 29.5, cluster.RiskScore, 1e-9)
}
