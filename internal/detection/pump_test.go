package detection

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"txsentry/internal/domain"
)

func pumpSeries() []domain.PricePoint {
	series := flatSeries(5)
	for i, price := range []float64{1.16, 1.32, 1.48, 1.64, 1.8} {
		series = append(series, point(5+i, price, 300))
	}
	return append(series, point(10, 1.0, 400), point(11, 0.54, 400))
}

func TestDetectPumpAndDumpScheme(t *testing.T) {
	result := DetectPumpAndDump(pumpSeries(), DefaultPumpConfig(domain.SensitivityMedium))

	require.GreaterOrEqual(t, result.NumSchemes, 1)
	require.Len(t, result.HighConfidence, 1)
	scheme := result.HighConfidence[0]
	assert.Equal(t, domain.FindingPumpDump, scheme.Type)
	assert.GreaterOrEqual(t, scheme.Confidence, 0.75)
	assert.InDelta(t, 80, scheme.Evidence["pump_price_increase_pct"].(float64), 0.001)
	assert.InDelta(t, 70, scheme.Evidence["dump_price_decrease_pct"].(float64), 0.001)
	assert.InDelta(t, 75, scheme.RiskScore, 1e-6)
}

func TestDetectPumpAndDumpRequiresDump(t *testing.T) {
	series := pumpSeries()[:10]

	result := DetectPumpAndDump(series, DefaultPumpConfig(domain.SensitivityMedium))

	assert.Zero(t, result.NumSchemes)
	assert.Empty(t, result.HighConfidence)
}

func TestDetectPumpAndDumpRequiresVolume(t *testing.T) {
	series := pumpSeries()
	for i := range series {
		series[i].VolumeUSD = 100
	}

	result := DetectPumpAndDump(series, DefaultPumpConfig(domain.SensitivityMedium))

	assert.Zero(t, result.NumSchemes)
}

func TestDetectPumpAndDumpShortSeries(t *testing.T) {
	result := DetectPumpAndDump([]domain.PricePoint{point(0, 1, 1)}, DefaultPumpConfig(domain.SensitivityHigh))

	assert.Zero(t, result.NumSchemes)
	assert.NotNil(t, result.DetectedSchemes)
}

func withDumpSellers(series []domain.PricePoint, sellers int) []domain.PricePoint {
	for i := range series {
		series[i].Sellers = 1
	}
	series[len(series)-2].Sellers = sellers
	series[len(series)-1].Sellers = sellers
	return series
}

func TestDetectPumpAndDumpGatesOnSellers(t *testing.T) {
	cases := []struct {
		name        string
		sensitivity domain.Sensitivity
		sellers     int
		want        int
	}{
		{"too few sellers for medium", domain.SensitivityMedium, 4, 0},
		{"enough sellers for medium", domain.SensitivityMedium, 5, 1},
		{"high accepts fewer sellers", domain.SensitivityHigh, 3, 1},
		{"low needs more sellers", domain.SensitivityLow, 7, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultPumpConfig(tc.sensitivity)
			cfg.PumpThresholdPct = 50
			cfg.DumpThresholdPct = 30
			cfg.MinInflationPeriods = 3

			result := DetectPumpAndDump(withDumpSellers(pumpSeries(), tc.sellers), cfg)

			assert.Equal(t, tc.want, result.NumSchemes)
			if tc.want > 0 {
				assert.Equal(t, 2*tc.sellers, result.DetectedSchemes[0].Evidence["dump_sellers"])
			}
		})
	}
}

func TestDetectPumpAndDumpIgnoresSellersWhenUntracked(t *testing.T) {
	cfg := DefaultPumpConfig(domain.SensitivityLow)
	cfg.PumpThresholdPct = 50
	cfg.DumpThresholdPct = 30
	cfg.MinInflationPeriods = 3
	cfg.MinSellers = 1000

	result := DetectPumpAndDump(pumpSeries(), cfg)

	assert.Equal(t, 1, result.NumSchemes)
}
