package detection

import "txsentry/internal/domain"

// TransactionRisk is the overall score of a token window, combining the wash, price and
// pump detectors.
type TransactionRisk struct {
	Score float64 `json:"risk_score"`
	Level string  `json:"risk_level"`
}

const RiskLevelMinimal = "MINIMAL"

func ScoreTransactionRisk(wash WashResult, price PriceResult, pump PumpResult) TransactionRisk {
	var score float64
	if wash.DetectedCount > 0 {
		volumeFactor := clamp(wash.TotalSuspiciousVolume.InexactFloat64()/100000, 0, 1)
		score += min(float64(wash.DetectedCount)*3, 25) + volumeFactor*10
	}
	if n := len(price.Events); n > 0 {
		score += min(float64(n)*10, 25)
	}
	if n := len(price.Coordinated); n > 0 {
		score += min(float64(n)*2, 10)
	}
	if n := len(pump.HighConfidence); n > 0 {
		score += min(float64(n)*15, 25)
	} else if pump.NumSchemes > 0 {
		score += min(float64(pump.NumSchemes)*5, 10)
	}
	score = clamp(score, 0, 100)

	level := RiskLevelMinimal
	if score > 0 {
		level = string(domain.SeverityForScore(score))
	}
	return TransactionRisk{Score: score, Level: level}
}
