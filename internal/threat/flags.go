package threat

// RiskFlags are the risk-intelligence facts known about one address.
type RiskFlags struct {
	AccessControl      bool    `json:"access_control"`
	IsProxy            bool    `json:"is_proxy"`
	Upgradeable        bool    `json:"upgradeable"`
	UnlockedLiquidity  bool    `json:"unlocked_liquidity"`
	LockedLiquidityPct float64 `json:"locked_liquidity_pct"`
	CreatorPct         float64 `json:"creator_pct"`
	Top10HolderPct     float64 `json:"top10_holder_pct"`
	BuyTaxPct          float64 `json:"buy_tax_pct"`
	TransferPausable   bool    `json:"transfer_pausable"`
	Blacklisting       bool    `json:"blacklisting"`
	Trusted            bool    `json:"trusted"`
	PriceChange7dPct   float64 `json:"price_change_7d_pct"`
	ATHChangePct       float64 `json:"ath_change_pct"`
	ATLChangePct       float64 `json:"atl_change_pct"`
	MarketCapRank      int     `json:"market_cap_rank"`
	Hacker             bool    `json:"hacker"`
	Drainer            bool    `json:"drainer"`
	Mixers             bool    `json:"mixers"`
	Tornado            bool    `json:"tornado"`
}

// UnrankedMarketCap is used when the provider has no market-cap rank.
const UnrankedMarketCap = 9999
