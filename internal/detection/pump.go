package detection

import (
	"fmt"
	"slices"

	"github.com/shopspring/decimal"

	"txsentry/internal/domain"
)

type PumpResult struct {
	NumSchemes      int              `json:"num_schemes"`
	HighConfidence  []domain.Finding `json:"high_confidence"`
	DetectedSchemes []domain.Finding `json:"detected_schemes"`
}

// DetectPumpAndDump looks for a run of rising periods on elevated volume whose peak is
// followed, within MaxDumpPeriods, by a collapse on a volume spike.
func DetectPumpAndDump(series []domain.PricePoint, cfg PumpConfig) PumpResult {
	result := PumpResult{HighConfidence: []domain.Finding{}, DetectedSchemes: []domain.Finding{}}
	minRun := max(cfg.MinInflationPeriods, 1)
	countsSellers := slices.ContainsFunc(series, func(p domain.PricePoint) bool { return p.Sellers > 0 })

	for start := 0; start < len(series)-1; {
		peak := start
		for peak+1 < len(series) && series[peak+1].Price > series[peak].Price {
			peak++
		}
		if peak == start {
			start++
			continue
		}
		next := peak
		if scheme, end, ok := evaluateScheme(series, start, peak, minRun, countsSellers, cfg); ok {
			result.DetectedSchemes = append(result.DetectedSchemes, scheme)
			if scheme.Confidence*100 >= cfg.HighConfidencePct {
				result.HighConfidence = append(result.HighConfidence, scheme)
			}
			next = end
		}
		start = next
	}

	result.NumSchemes = len(result.DetectedSchemes)
	return result
}

// evaluateScheme checks one rising run. Seller counts gate the dump only when the series
// carries them at all.
func evaluateScheme(series []domain.PricePoint, start, peak, minRun int, countsSellers bool, cfg PumpConfig) (domain.Finding, int, bool) {
	base := series[start]
	top := series[peak]
	if peak-start < minRun || base.Price <= 0 {
		return domain.Finding{}, 0, false
	}
	rise := pctChange(base.Price, top.Price)
	if rise < cfg.PumpThresholdPct {
		return domain.Finding{}, 0, false
	}

	baseline := trailingVolume(series, start, cfg.TrailingWindow)
	var inflation []float64
	for _, p := range series[start+1 : peak+1] {
		inflation = append(inflation, p.VolumeUSD)
	}
	pumpVolRatio := volumeRatio(mean(inflation), baseline, cfg)
	if pumpVolRatio < cfg.MinVolumeRise {
		return domain.Finding{}, 0, false
	}

	last := min(peak+max(cfg.MaxDumpPeriods, 1), len(series)-1)
	if last == peak {
		return domain.Finding{}, 0, false
	}
	bottom := peak
	var dumpVolume float64
	sellers := 0
	for i := peak + 1; i <= last; i++ {
		if series[i].Price < series[bottom].Price {
			bottom = i
		}
		if series[i].VolumeUSD > dumpVolume {
			dumpVolume = series[i].VolumeUSD
		}
		sellers += series[i].Sellers
	}
	if bottom == peak {
		return domain.Finding{}, 0, false
	}
	fall := -pctChange(top.Price, series[bottom].Price)
	dumpVolRatio := volumeRatio(dumpVolume, baseline, cfg)
	if fall < cfg.DumpThresholdPct || dumpVolRatio < cfg.DumpVolumeMultiplier {
		return domain.Finding{}, 0, false
	}
	if countsSellers && sellers < cfg.MinSellers {
		return domain.Finding{}, 0, false
	}

	confidence := 35*clamp(rise/(1.5*cfg.PumpThresholdPct), 0, 1) +
		35*clamp(fall/(1.5*cfg.DumpThresholdPct), 0, 1) +
		30*clamp(min(pumpVolRatio, dumpVolRatio)/(1.5*cfg.DumpVolumeMultiplier), 0, 1)
	risk := clamp(0.5*min(rise, 100)+0.5*fall, 0, 100)

	var volume float64
	for _, p := range series[start+1 : bottom+1] {
		volume += p.VolumeUSD
	}
	return domain.Finding{
		Type:              domain.FindingPumpDump,
		Severity:          domain.SeverityForScore(risk),
		RiskScore:         risk,
		BlockNumber:       top.BlockNumber,
		Timestamp:         top.Timestamp,
		InvolvedAddresses: []string{},
		USDValueInvolved:  decimal.NewFromFloat(volume),
		Confidence:        confidence / 100,
		Description:       fmt.Sprintf("price rose %.1f%% over %d periods then fell %.1f%%", rise, peak-start, fall),
		Evidence: map[string]any{
			"pump_price_increase_pct": rise,
			"dump_price_decrease_pct": fall,
			"inflation_periods":       peak - start,
			"dump_periods":            bottom - peak,
			"pump_volume_ratio":       pumpVolRatio,
			"dump_volume_ratio":       dumpVolRatio,
			"dump_sellers":            sellers,
			"confidence_pct":          confidence,
			"pump_start":              base.Timestamp,
			"dump_end":                series[bottom].Timestamp,
		},
	}, bottom, true
}

// trailingVolume averages up to window periods ending at (and including) start.
func trailingVolume(series []domain.PricePoint, start, window int) float64 {
	from := max(0, start-max(window, 1)+1)
	var volumes []float64
	for _, p := range series[from : start+1] {
		volumes = append(volumes, p.VolumeUSD)
	}
	return mean(volumes)
}

// volumeRatio divides by the baseline; an empty baseline with positive volume counts as a
// saturated spike.
func volumeRatio(volume, baseline float64, cfg PumpConfig) float64 {
	if baseline <= 0 {
		if volume > 0 {
			return 1.5 * cfg.DumpVolumeMultiplier
		}
		return 0
	}
	return volume / baseline
}
