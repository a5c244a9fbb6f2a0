package detection

import (
	"time"

	"txsentry/internal/domain"
)

// WashConfig holds the wash-trading thresholds. IsKnownAutomated may be nil.
type WashConfig struct {
	Window              time.Duration
	MinRoundTrips       int
	MinVolumeUSD        float64
	MinRoundTripDensity float64
	MEVMinSameBlock     int
	MEVMaxAvgTradeUSD   float64
	MEVMaxTotalUSD      float64
	IsKnownAutomated    func(address string) bool
}

// DefaultWashConfig returns the preset for a sensitivity. Low sensitivity widens the
// round-trip window but demands more evidence before flagging.
func DefaultWashConfig(s domain.Sensitivity) WashConfig {
	cfg := WashConfig{
		Window:              60 * time.Minute,
		MinRoundTrips:       3,
		MinVolumeUSD:        1000,
		MinRoundTripDensity: 0.5,
		MEVMinSameBlock:     2,
		MEVMaxAvgTradeUSD:   100,
		MEVMaxTotalUSD:      500,
	}
	switch s {
	case domain.SensitivityLow:
		cfg.Window = 120 * time.Minute
		cfg.MinRoundTrips = 5
		cfg.MinVolumeUSD = 5000
		cfg.MinRoundTripDensity = 0.75
	case domain.SensitivityHigh:
		cfg.Window = 30 * time.Minute
		cfg.MinRoundTrips = 2
		cfg.MinVolumeUSD = 500
		cfg.MinRoundTripDensity = 0.34
	}
	return cfg
}

type PriceConfig struct {
	SpikeThresholdPct      float64
	VolumeMultiplier       float64
	MinValueUSD            float64
	TrailingWindow         int
	CoordinatedMinWallets  int
	CoordinatedMinValueUSD float64
}

func DefaultPriceConfig(s domain.Sensitivity) PriceConfig {
	cfg := PriceConfig{
		SpikeThresholdPct:      15,
		VolumeMultiplier:       10,
		MinValueUSD:            5000,
		TrailingWindow:         20,
		CoordinatedMinWallets:  5,
		CoordinatedMinValueUSD: 10000,
	}
	switch s {
	case domain.SensitivityLow:
		cfg.SpikeThresholdPct = 20
		cfg.VolumeMultiplier = 15
		cfg.MinValueUSD = 10000
	case domain.SensitivityHigh:
		cfg.SpikeThresholdPct = 10
		cfg.VolumeMultiplier = 5
		cfg.MinValueUSD = 1000
	}
	return cfg
}

type PumpConfig struct {
	PumpThresholdPct     float64
	DumpThresholdPct     float64
	MinInflationPeriods  int
	MaxDumpPeriods       int
	TrailingWindow       int
	MinVolumeRise        float64
	DumpVolumeMultiplier float64
	MinSellers           int // sellers summed over the dump periods
	HighConfidencePct    float64
	BucketInterval       time.Duration
}

func DefaultPumpConfig(s domain.Sensitivity) PumpConfig {
	cfg := PumpConfig{
		PumpThresholdPct:     50,
		DumpThresholdPct:     30,
		MinInflationPeriods:  3,
		MaxDumpPeriods:       4,
		TrailingWindow:       5,
		MinVolumeRise:        1.2,
		DumpVolumeMultiplier: 2,
		MinSellers:           10,
		HighConfidencePct:    75,
		BucketInterval:       5 * time.Minute,
	}
	switch s {
	case domain.SensitivityLow:
		cfg.PumpThresholdPct = 70
		cfg.DumpThresholdPct = 40
		cfg.MinInflationPeriods = 4
		cfg.MinSellers = 15
	case domain.SensitivityHigh:
		cfg.PumpThresholdPct = 25
		cfg.DumpThresholdPct = 15
		cfg.MinInflationPeriods = 2
		cfg.MaxDumpPeriods = 6
		cfg.MinSellers = 5
	}
	return cfg
}

// SandwichConfig holds the sandwich thresholds. NativePriceUSD converts gas (wei) to USD;
// zero leaves gas out of the profit.
type SandwichConfig struct {
	MinBlockTxs    int
	NativePriceUSD float64
}

func DefaultSandwichConfig() SandwichConfig {
	return SandwichConfig{MinBlockTxs: 3}
}

type InsiderConfig struct {
	MinSuspicionScore      float64
	QuickProfitWindow      time.Duration
	LargePositionUSD       float64
	SignificantPositionUSD float64
	OutsizedMultiple       float64
	MinHistoryBuys         int
}

func DefaultInsiderConfig() InsiderConfig {
	return InsiderConfig{
		MinSuspicionScore:      30,
		QuickProfitWindow:      24 * time.Hour,
		LargePositionUSD:       50000,
		SignificantPositionUSD: 10000,
		OutsizedMultiple:       3,
		MinHistoryBuys:         3,
	}
}

type SnipingConfig struct {
	MaxBlocksAfterLaunch uint64
	FallbackMaxTxIndex   uint64
	MinBuys              int
	BotCutoff            float64
	HumanCutoff          float64
	RecentLimit          int
}

func DefaultSnipingConfig() SnipingConfig {
	return SnipingConfig{
		MaxBlocksAfterLaunch: 3,
		FallbackMaxTxIndex:   50,
		MinBuys:              5,
		BotCutoff:            70,
		HumanCutoff:          30,
		RecentLimit:          10,
	}
}

// LiquidityConfig holds the liquidity thresholds. PoolLiquidityUSD is the pool depth used to
// size liquidity moves; zero falls back to the liquidity added inside the window.
type LiquidityConfig struct {
	CycleMaxBlocks   uint64
	MinCycleValueUSD float64
	PoolLiquidityUSD float64
	RugMinSells      int
	RugMinValueUSD   float64
	RugSellRatio     float64
	RugRecentTxs     int
	DumpMinSells     int
	DumpMinWallets   int
	DumpMinValueUSD  float64
}

func DefaultLiquidityConfig() LiquidityConfig {
	return LiquidityConfig{
		CycleMaxBlocks:   50,
		MinCycleValueUSD: 1000,
		RugMinSells:      3,
		RugMinValueUSD:   10000,
		RugSellRatio:     0.7,
		RugRecentTxs:     5,
		DumpMinSells:     3,
		DumpMinWallets:   3,
		DumpMinValueUSD:  5000,
	}
}

type DominationConfig struct {
	ShareThreshold    float64
	RegularityMinTxs  int
	ShareWeight       float64
	AccumulationRatio float64
	DistributionRatio float64
}

func DefaultDominationConfig() DominationConfig {
	return DominationConfig{
		ShareThreshold:    0.25,
		RegularityMinTxs:  3,
		ShareWeight:       0.6,
		AccumulationRatio: 0.8,
		DistributionRatio: 0.2,
	}
}

type ConcentratedConfig struct {
	MinImpactValueUSD    float64
	MinImpactPct         float64
	ClusterMinBuys       int
	ClusterMaxDispersion float64
	ClusterMinValueUSD   float64
}

func DefaultConcentratedConfig() ConcentratedConfig {
	return ConcentratedConfig{
		MinImpactValueUSD:    5000,
		MinImpactPct:         5,
		ClusterMinBuys:       3,
		ClusterMaxDispersion: 0.1,
		ClusterMinValueUSD:   3000,
	}
}
