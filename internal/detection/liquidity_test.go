package detection

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"txsentry/internal/domain"
)

func TestDetectLiquidityManipulation(t *testing.T) {
	tests := []struct {
		name     string
		txs      []domain.Transaction
		cfg      func(*LiquidityConfig)
		pattern  string
		severity domain.Severity
		risk     float64
	}{
		{
			name: "add then remove",
			txs: []domain.Transaction{
				trade("0x1", "0xlp", domain.KindAddLiquidity, 10, 0, 50000),
				trade("0x2", "0xlp", domain.KindRemoveLiquidity, 12, 0, 45000),
			},
			pattern:  PatternAddRemoveCycle,
			severity: domain.SeverityCritical,
			risk:     90,
		},
		{
			name: "flash loan shift",
			txs: []domain.Transaction{
				trade("0x1", "0xflash", domain.KindFlashLoan, 20, 0, 0),
				trade("0x2", "0xflash", domain.KindAddLiquidity, 20, 1, 10000),
			},
			cfg:      func(c *LiquidityConfig) { c.PoolLiquidityUSD = 100000 },
			pattern:  PatternFlashLoanShift,
			severity: domain.SeverityMedium,
			risk:     46,
		},
		{
			name: "rug pull",
			txs: []domain.Transaction{
				trade("0x1", "0xdev", domain.KindBuy, 1, 0, 1000),
				trade("0x2", "0xdev", domain.KindSell, 2, 0, 5000),
				trade("0x3", "0xdev", domain.KindSell, 3, 0, 5000),
				trade("0x4", "0xdev", domain.KindSell, 4, 0, 5000),
				trade("0x5", "0xdev", domain.KindSell, 5, 0, 5000),
			},
			pattern:  PatternRugPull,
			severity: domain.SeverityHigh,
			risk:     60,
		},
		{
			name: "coordinated dump",
			txs: []domain.Transaction{
				trade("0x1", "0xa", domain.KindSell, 30, 0, 2000),
				trade("0x2", "0xb", domain.KindSell, 30, 1, 2000),
				trade("0x3", "0xc", domain.KindSell, 30, 2, 2000),
			},
			pattern:  PatternCoordinatedDump,
			severity: domain.SeverityHigh,
			risk:     57,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultLiquidityConfig()
			if tt.cfg != nil {
				tt.cfg(&cfg)
			}

			result := DetectLiquidityManipulation(tt.txs, cfg)

			require.Equal(t, 1, result.ManipulationsDetected)
			finding := result.Manipulations[0]
			assert.Equal(t, domain.FindingLiquidityEvent, finding.Type)
			assert.Equal(t, tt.pattern, finding.Evidence["pattern"])
			assert.Equal(t, tt.severity, finding.Severity)
			assert.InDelta(t, tt.risk, finding.RiskScore, 1e-9)
		})
	}
}

func TestDetectLiquidityManipulationQuietPool(t *testing.T) {
	txs := []domain.Transaction{
		trade("0x1", "0xa", domain.KindBuy, 1, 0, 100),
		trade("0x2", "0xb", domain.KindSell, 2, 0, 100),
		trade("0x3", "0xlp", domain.KindAddLiquidity, 3, 0, 20000),
	}

	result := DetectLiquidityManipulation(txs, DefaultLiquidityConfig())

	assert.Zero(t, result.ManipulationsDetected)
	assert.NotNil(t, result.Manipulations)
	assert.Equal(t, 20000.0, result.PoolLiquidityUSD)
}
