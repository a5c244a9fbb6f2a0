package threat

import (
	"fmt"
	"math"
	"strings"

	"txsentry/internal/domain"
)

// Module names, also the keys of ThreatAssessment.ModuleScores.
const (
	ModuleGovernance    = "governance"
	ModuleLiquidity     = "liquidity"
	ModuleHolder        = "holder_concentration"
	ModuleTokenSecurity = "token_security"
	ModuleMarket        = "market"
	ModuleFraud         = "fraud"
)

func governanceScore(f RiskFlags) domain.ModuleScore {
	raw := 0.5*boolScore(f.AccessControl) + 0.4*boolScore(f.IsProxy) + 0.3*boolScore(f.Upgradeable)
	var reasons []string
	if f.AccessControl {
		reasons = append(reasons, "ownership is centralized behind access control.")
	}
	if f.IsProxy {
		reasons = append(reasons, "contract sits behind a proxy.")
	}
	if f.Upgradeable {
		reasons = append(reasons, "contract logic is upgradeable.")
	}
	if len(reasons) == 0 {
		reasons = append(reasons, "no governance centralization found.")
	}
	return moduleScore(ModuleGovernance, raw/1.2, strings.Join(reasons, " "))
}

func liquidityScore(f RiskFlags) domain.ModuleScore {
	raw := 0.5*boolScore(f.UnlockedLiquidity) + 0.3*bound(100-f.LockedLiquidityPct) + 0.2*bound(f.CreatorPct)
	explanation := fmt.Sprintf("%.1f%% of liquidity locked, creator holds %.1f%% of the pool.", f.LockedLiquidityPct, f.CreatorPct)
	if f.UnlockedLiquidity {
		explanation = "liquidity is unlocked. " + explanation
	}
	return moduleScore(ModuleLiquidity, raw, explanation)
}

func holderScore(f RiskFlags) domain.ModuleScore {
	return moduleScore(ModuleHolder, bound(f.Top10HolderPct),
		fmt.Sprintf("top 10 holders own %.1f%% of supply.", f.Top10HolderPct))
}

func tokenSecurityScore(f RiskFlags) domain.ModuleScore {
	raw := 0.4*bound(f.BuyTaxPct) + 0.2*boolScore(f.TransferPausable) + 0.3*boolScore(f.Blacklisting) + 0.1*boolScore(!f.Trusted)
	reasons := []string{fmt.Sprintf("buy tax %.1f%%.", f.BuyTaxPct)}
	if f.TransferPausable {
		reasons = append(reasons, "transfers can be paused.")
	}
	if f.Blacklisting {
		reasons = append(reasons, "blacklisting is enabled.")
	}
	if !f.Trusted {
		reasons = append(reasons, "token is not on a trusted list.")
	}
	return moduleScore(ModuleTokenSecurity, raw, strings.Join(reasons, " "))
}

func marketScore(f RiskFlags) domain.ModuleScore {
	rank := f.MarketCapRank
	if rank <= 0 {
		rank = UnrankedMarketCap
	}
	rankScore := bound(float64(rank-1) / 999 * 100)
	raw := 0.4*bound(math.Abs(f.PriceChange7dPct)) + 0.2*bound(math.Abs(f.ATHChangePct)) +
		0.2*bound(math.Abs(f.ATLChangePct)) + 0.2*rankScore
	return moduleScore(ModuleMarket, raw, fmt.Sprintf("7d change %.1f%%, %.1f%% from ATH, %.1f%% from ATL, market cap rank %d.",
		f.PriceChange7dPct, f.ATHChangePct, f.ATLChangePct, rank))
}

func fraudScore(f RiskFlags) domain.ModuleScore {
	raw := (boolScore(f.Hacker) + boolScore(f.Drainer) + boolScore(f.Mixers) + boolScore(f.Tornado)) / 4
	var reasons []string
	if f.Hacker {
		reasons = append(reasons, "flagged as hacker.")
	}
	if f.Drainer {
		reasons = append(reasons, "linked to drainer activity.")
	}
	if f.Mixers {
		reasons = append(reasons, "mixer usage detected.")
	}
	if f.Tornado {
		reasons = append(reasons, "Tornado Cash interaction.")
	}
	if len(reasons) == 0 {
		reasons = append(reasons, "no fraud database hits.")
	}
	return moduleScore(ModuleFraud, raw, strings.Join(reasons, " "))
}

func moduleScore(name string, score float64, explanation string) domain.ModuleScore {
	score = round2(bound(score))
	return domain.ModuleScore{
		ModuleName:  name,
		Score:       score,
		Label:       domain.SeverityForScore(score),
		Explanation: explanation,
	}
}

func boolScore(b bool) float64 {
	if b {
		return 100
	}
	return 0
}

func bound(v float64) float64 {
	return math.Max(0, math.Min(100, v))
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
