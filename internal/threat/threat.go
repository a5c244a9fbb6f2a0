// Package threat combines per-module risk scores into one assessment for an address.
package threat

import (
	"cmp"
	"errors"
	"fmt"
	"math"
	"slices"

	"txsentry/internal/domain"
)

// Weights maps module name to its share of the overall score.
type Weights map[string]float64

// DefaultWeights sum to 1.0.
func DefaultWeights() Weights {
	return Weights{
		ModuleGovernance:    0.15,
		ModuleLiquidity:     0.20,
		ModuleHolder:        0.15,
		ModuleTokenSecurity: 0.20,
		ModuleMarket:        0.10,
		ModuleFraud:         0.20,
	}
}

const topContributors = 3

// Validate rejects weights that do not sum to 1.
func (w Weights) Validate() error {
	var sum float64
	for name, weight := range w {
		if weight < 0 {
			return fmt.Errorf("weight %s is negative", name)
		}
		sum += weight
	}
	if math.Abs(sum-1) > 1e-9 {
		return errors.New("weights must sum to 1")
	}
	return nil
}

// Assess scores every module from the flags and combines them.
func Assess(address string, flags RiskFlags, weights Weights) domain.ThreatAssessment {
	return Combine(address, []domain.ModuleScore{
		governanceScore(flags),
		liquidityScore(flags),
		holderScore(flags),
		tokenSecurityScore(flags),
		marketScore(flags),
		fraudScore(flags),
	}, weights)
}

// Combine weights module scores into an overall score clamped to [0, 100]. Modules without
// a weight still appear in ModuleScores and TopContributors but add nothing to the total.
func Combine(address string, modules []domain.ModuleScore, weights Weights) domain.ThreatAssessment {
	assessment := domain.ThreatAssessment{
		Address:         address,
		ModuleScores:    make(map[string]domain.ModuleScore, len(modules)),
		TopContributors: []string{},
	}
	var total float64
	for _, m := range modules {
		m.Label = domain.SeverityForScore(m.Score)
		assessment.ModuleScores[m.ModuleName] = m
		total += weights[m.ModuleName] * m.Score
	}
	assessment.OverallScore = round2(bound(total))
	assessment.OverallRiskLevel = domain.SeverityForScore(assessment.OverallScore)

	ranked := make([]domain.ModuleScore, 0, len(assessment.ModuleScores))
	for _, m := range assessment.ModuleScores {
		ranked = append(ranked, m)
	}
	slices.SortFunc(ranked, func(a, b domain.ModuleScore) int {
		if c := cmp.Compare(b.Score, a.Score); c != 0 {
			return c
		}
		return cmp.Compare(a.ModuleName, b.ModuleName)
	})
	for _, m := range ranked[:min(topContributors, len(ranked))] {
		assessment.TopContributors = append(assessment.TopContributors, m.ModuleName)
	}
	return assessment
}
