package domain

// ModuleScore is one named risk module inside a threat assessment.
type ModuleScore struct {
	ModuleName  string   `json:"module_name"`
	Score       float64  `json:"score"`
	Label       Severity `json:"label"`
	Explanation string   `json:"explanation"`
}

// ThreatAssessment is the composite risk result for one address.
type ThreatAssessment struct {
	Address          string                 `json:"address"`
	OverallScore     float64                `json:"overall_score"`
	OverallRiskLevel Severity               `json:"overall_risk_level"`
	ModuleScores     map[string]ModuleScore `json:"module_scores"`
	TopContributors  []string               `json:"top_contributors"`
}
