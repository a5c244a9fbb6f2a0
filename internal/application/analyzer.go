package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"txsentry/internal/detection"
	"txsentry/internal/domain"
	"txsentry/internal/threat"
)

// ErrNotConfigured is returned when an endpoint needs a provider the service was started without.
var ErrNotConfigured = errors.New("provider not configured")

var analysisNamespace = uuid.MustParse("6f1d8a52-2b0e-4c55-9a43-7d1c2f4e8b90")

// Dependencies are the collaborators of an Analyzer. Only Transactions is required.
type Dependencies struct {
	Transactions TransactionSource
	Pairs        PairDescriber
	Prices       PriceSource
	RiskIntel    RiskIntelSource
	Registry     AutomatedRegistry
	Contracts    ContractChecker
	Publisher    ReportPublisher
	Observer     AnalysisObserver
}

type AnalyzerConfig struct {
	Chain              string
	Fetch              FetchConfig
	DefaultMaxPages    int
	DefaultSensitivity domain.Sensitivity
	NativePriceUSD     float64
	Weights            threat.Weights
}

type Analyzer struct {
	deps   Dependencies
	cfg    AnalyzerConfig
	tracer trace.Tracer
}

func NewAnalyzer(deps Dependencies, cfg AnalyzerConfig) (*Analyzer, error) {
	if deps.Transactions == nil {
		return nil, errors.New("analyzer needs a transaction source")
	}
	if deps.Observer == nil {
		deps.Observer = nopObserver{}
	}
	if cfg.Chain == "" {
		cfg.Chain = DefaultChain
	}
	if cfg.DefaultMaxPages <= 0 {
		cfg.DefaultMaxPages = DefaultMaxPages
	}
	if cfg.DefaultSensitivity == "" {
		cfg.DefaultSensitivity = domain.SensitivityMedium
	}
	if cfg.Fetch.Workers <= 0 {
		cfg.Fetch.Workers = 4
	}
	if cfg.Weights == nil {
		cfg.Weights = threat.DefaultWeights()
	}
	if err := cfg.Weights.Validate(); err != nil {
		return nil, fmt.Errorf("threat weights: %w", err)
	}
	return &Analyzer{deps: deps, cfg: cfg, tracer: otel.Tracer("txsentry/application")}, nil
}

func (a *Analyzer) DefaultChain() string { return a.cfg.Chain }

func (a *Analyzer) DefaultSensitivity() domain.Sensitivity { return a.cfg.DefaultSensitivity }

func (a *Analyzer) DefaultMaxPages() int { return a.cfg.DefaultMaxPages }

// analyze wraps one endpoint run with a span, metrics and the completion log line.
func analyze[T any](ctx context.Context, a *Analyzer, endpoint, address string, fn func(ctx context.Context) (T, error)) (T, error) {
	ctx, span := a.tracer.Start(ctx, "analyze."+endpoint,
		trace.WithAttributes(attribute.String("analysis.endpoint", endpoint), attribute.String("analysis.address", address)))
	defer span.End()

	start := time.Now()
	out, err := fn(ctx)
	a.deps.Observer.ObserveAnalysis(endpoint, err)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		slog.Warn("analysis failed", "endpoint", endpoint, "address", address, "err", err)
		return out, err
	}
	slog.Info("analysis complete", "endpoint", endpoint, "address", address, "duration", time.Since(start))
	return out, nil
}

// AnalyzeToken runs wash trading, price manipulation and pump & dump concurrently over a
// token window and combines them into the transaction risk score.
func (a *Analyzer) AnalyzeToken(ctx context.Context, req TokenAnomalyRequest) (TransactionAnomalyReport, error) {
	if err := req.Validate(); err != nil {
		return TransactionAnomalyReport{}, err
	}
	return analyze(ctx, a, EndpointTransactionAnomaly, req.TokenAddress, func(ctx context.Context) (TransactionAnomalyReport, error) {
		window, err := a.fetch(ctx, WindowRequest{
			Chain: req.Chain, Scope: ScopeToken, Address: req.TokenAddress, PageSize: req.Limit, MaxPages: req.MaxPages,
		})
		if err != nil {
			return TransactionAnomalyReport{}, err
		}
		txs := window.Transactions

		washCfg := detection.DefaultWashConfig(req.Sensitivity)
		washCfg.IsKnownAutomated, err = a.knownAutomated(ctx, txs)
		if err != nil {
			return TransactionAnomalyReport{}, err
		}
		priceCfg := detection.DefaultPriceConfig(req.Sensitivity)
		pumpCfg := detection.DefaultPumpConfig(req.Sensitivity)

		var (
			wash  detection.WashResult
			price detection.PriceResult
			pump  detection.PumpResult
		)
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			wash = timed(a, "wash_trading", func() detection.WashResult { return detection.DetectWashTrading(txs, washCfg) })
			return nil
		})
		g.Go(func() error {
			price = timed(a, "price_manipulation", func() detection.PriceResult {
				return detection.DetectPriceManipulationInWindow(txs, priceCfg)
			})
			return nil
		})
		g.Go(func() error {
			series := a.pumpSeries(gctx, req.TokenAddress, txs, pumpCfg)
			pump = timed(a, "pump_and_dump", func() detection.PumpResult { return detection.DetectPumpAndDump(series, pumpCfg) })
			return nil
		})
		if err := g.Wait(); err != nil {
			return TransactionAnomalyReport{}, err
		}

		risk := detection.ScoreTransactionRisk(wash, price, pump)
		report := TransactionAnomalyReport{
			ReportMeta:           a.meta(EndpointTransactionAnomaly, req.Chain, req.TokenAddress, window),
			Sensitivity:          req.Sensitivity,
			WashTrading:          wash,
			PriceManipulation:    price,
			PumpAndDump:          pump,
			TopSuspiciousWallets: topSuspicious(wash, 5),
			RiskScore:            risk.Score,
			RiskLevel:            risk.Level,
		}
		report.Message = fmt.Sprintf("%d suspicious wallets, %d price events, %d pump & dump schemes; risk %s",
			wash.DetectedCount, price.TotalEvents, pump.NumSchemes, risk.Level)

		findings := slices.Concat(wash.Findings, price.Events, price.Coordinated, pump.DetectedSchemes)
		a.deps.Observer.ObserveFindings(findings)
		a.publishFindings(ctx, report.ReportMeta, EndpointTransactionAnomaly, risk.Score, risk.Level, findings)
		a.publishLabels(ctx, req.Chain, wash)
		return report, nil
	})
}

func (a *Analyzer) Sandwich(ctx context.Context, req TokenWindowRequest) (SandwichReport, error) {
	if err := req.Validate(); err != nil {
		return SandwichReport{}, err
	}
	return analyze(ctx, a, EndpointSandwichAttack, req.TokenAddress, func(ctx context.Context) (SandwichReport, error) {
		window, err := a.fetchRecent(ctx, req.Chain, ScopeToken, req.TokenAddress, req.NumTransactions)
		if err != nil {
			return SandwichReport{}, err
		}
		cfg := detection.DefaultSandwichConfig()
		cfg.NativePriceUSD = a.cfg.NativePriceUSD
		result := timed(a, "sandwich", func() detection.SandwichResult {
			return detection.DetectSandwichAttacks(window.Transactions, cfg)
		})

		report := SandwichReport{
			ReportMeta: a.meta(EndpointSandwichAttack, req.Chain, req.TokenAddress, window),
			Sandwich:   result,
		}
		report.Message = fmt.Sprintf("%d sandwich attacks across %d blocks", result.AttacksDetected, result.UniqueBlocks)
		a.deps.Observer.ObserveFindings(result.Attacks)
		a.publishFindings(ctx, report.ReportMeta, EndpointSandwichAttack, maxRisk(result.Attacks), "", result.Attacks)
		return report, nil
	})
}

func (a *Analyzer) Insider(ctx context.Context, req WalletRequest) (InsiderReport, error) {
	if err := req.Validate(); err != nil {
		return InsiderReport{}, err
	}
	return analyze(ctx, a, EndpointInsiderTrading, req.WalletAddress, func(ctx context.Context) (InsiderReport, error) {
		window, err := a.fetch(ctx, WindowRequest{
			Chain: req.Chain, Scope: ScopeWallet, Address: req.WalletAddress, PageSize: DefaultPageSize, MaxPages: a.cfg.DefaultMaxPages,
		})
		if err != nil {
			return InsiderReport{}, err
		}
		history := a.priceHistories(ctx, window.Transactions)

		cfg := detection.DefaultInsiderConfig()
		cfg.MinSuspicionScore = req.MinSuspicionScore
		result := timed(a, "insider_trading", func() detection.InsiderResult {
			return detection.DetectInsiderTrading(window.Transactions, history, cfg)
		})

		report := InsiderReport{
			ReportMeta:        a.meta(EndpointInsiderTrading, req.Chain, req.WalletAddress, window),
			MinSuspicionScore: req.MinSuspicionScore,
			Insider:           result,
		}
		report.Message = fmt.Sprintf("%d of %d positions scored at or above %.0f",
			result.SuspiciousTradesCount, result.PositionsAnalyzed, req.MinSuspicionScore)

		findings := make([]domain.Finding, 0, len(result.SuspiciousTrades))
		for _, trade := range result.SuspiciousTrades {
			findings = append(findings, trade.Finding)
		}
		a.deps.Observer.ObserveFindings(findings)
		a.publishFindings(ctx, report.ReportMeta, EndpointInsiderTrading, maxRisk(findings), "", findings)
		return report, nil
	})
}

func (a *Analyzer) Sniping(ctx context.Context, req WalletRequest) (SnipingReport, error) {
	if err := req.Validate(); err != nil {
		return SnipingReport{}, err
	}
	return analyze(ctx, a, EndpointSnipingBot, req.WalletAddress, func(ctx context.Context) (SnipingReport, error) {
		window, err := a.fetch(ctx, WindowRequest{
			Chain: req.Chain, Scope: ScopeWallet, Address: req.WalletAddress, PageSize: DefaultPageSize, MaxPages: a.cfg.DefaultMaxPages,
		})
		if err != nil {
			return SnipingReport{}, err
		}
		launches := a.launchBlocks(ctx, window.Transactions)
		result := timed(a, "sniping", func() detection.SnipingResult {
			return detection.ClassifySnipingBehavior(window.Transactions, launches, detection.DefaultSnipingConfig())
		})

		report := SnipingReport{
			ReportMeta: a.meta(EndpointSnipingBot, req.Chain, req.WalletAddress, window),
			Sniping:    result,
		}
		report.Message = fmt.Sprintf("bot confidence %.0f/100 - %s", result.BotConfidenceScore, result.Label)

		var findings []domain.Finding
		if result.Finding != nil {
			findings = append(findings, *result.Finding)
		}
		a.deps.Observer.ObserveFindings(findings)
		a.publishFindings(ctx, report.ReportMeta, EndpointSnipingBot, result.BotConfidenceScore, result.Classification, findings)
		return report, nil
	})
}

func (a *Analyzer) Liquidity(ctx context.Context, req PairRequest) (LiquidityReport, error) {
	if err := req.Validate(); err != nil {
		return LiquidityReport{}, err
	}
	return analyze(ctx, a, EndpointLiquidityManipulation, req.PairAddress, func(ctx context.Context) (LiquidityReport, error) {
		window, pool, err := a.fetchPool(ctx, req)
		if err != nil {
			return LiquidityReport{}, err
		}
		result := timed(a, "liquidity_manipulation", func() detection.LiquidityResult {
			return detection.DetectLiquidityManipulation(window.Transactions, detection.DefaultLiquidityConfig())
		})

		report := LiquidityReport{
			ReportMeta: a.meta(EndpointLiquidityManipulation, req.Chain, req.PairAddress, window),
			PoolMeta:   pool,
			Liquidity:  result,
		}
		if result.ManipulationsDetected == 0 {
			report.Message = "no liquidity manipulation detected"
		} else {
			report.Message = fmt.Sprintf("%d liquidity manipulation events", result.ManipulationsDetected)
		}
		a.deps.Observer.ObserveFindings(result.Manipulations)
		a.publishFindings(ctx, report.ReportMeta, EndpointLiquidityManipulation, maxRisk(result.Manipulations), "", result.Manipulations)
		return report, nil
	})
}

func (a *Analyzer) Concentrated(ctx context.Context, req PairRequest) (ConcentratedReport, error) {
	if err := req.Validate(); err != nil {
		return ConcentratedReport{}, err
	}
	return analyze(ctx, a, EndpointConcentratedAttack, req.PairAddress, func(ctx context.Context) (ConcentratedReport, error) {
		window, pool, err := a.fetchPool(ctx, req)
		if err != nil {
			return ConcentratedReport{}, err
		}
		result := timed(a, "concentrated_attack", func() detection.ConcentratedResult {
			return detection.DetectConcentratedAttack(window.Transactions, detection.DefaultConcentratedConfig())
		})

		report := ConcentratedReport{
			ReportMeta:   a.meta(EndpointConcentratedAttack, req.Chain, req.PairAddress, window),
			PoolMeta:     pool,
			Concentrated: result,
		}
		report.Message = fmt.Sprintf("%d potential attacks", result.AttacksDetected)
		findings := slices.Concat(result.PriceImpacts, result.SnipingClusters)
		a.deps.Observer.ObserveFindings(findings)
		a.publishFindings(ctx, report.ReportMeta, EndpointConcentratedAttack, maxRisk(findings), "", findings)
		return report, nil
	})
}

func (a *Analyzer) Domination(ctx context.Context, req PairRequest) (DominationReport, error) {
	if err := req.Validate(); err != nil {
		return DominationReport{}, err
	}
	return analyze(ctx, a, EndpointPoolDomination, req.PairAddress, func(ctx context.Context) (DominationReport, error) {
		window, pool, err := a.fetchPool(ctx, req)
		if err != nil {
			return DominationReport{}, err
		}
		result := timed(a, "pool_domination", func() detection.DominationResult {
			return detection.DetectPoolDomination(window.Transactions, detection.DefaultDominationConfig())
		})

		report := DominationReport{
			ReportMeta: a.meta(EndpointPoolDomination, req.Chain, req.PairAddress, window),
			PoolMeta:   pool,
			Domination: result,
		}
		report.Message = fmt.Sprintf("%d dominant entities", result.DominantEntities)
		findings := make([]domain.Finding, 0, len(result.Dominations))
		for _, d := range result.Dominations {
			findings = append(findings, d.Finding)
		}
		a.deps.Observer.ObserveFindings(findings)
		a.publishFindings(ctx, report.ReportMeta, EndpointPoolDomination, maxRisk(findings), "", findings)
		return report, nil
	})
}

// TokenThreat assesses an address from risk-intelligence flags. It needs no transaction window.
func (a *Analyzer) TokenThreat(ctx context.Context, req ThreatRequest) (ThreatReport, error) {
	if err := req.Validate(); err != nil {
		return ThreatReport{}, err
	}
	if a.deps.RiskIntel == nil {
		return ThreatReport{}, fmt.Errorf("risk intelligence: %w", ErrNotConfigured)
	}
	return analyze(ctx, a, EndpointTokenThreat, req.Address, func(ctx context.Context) (ThreatReport, error) {
		flags, err := a.deps.RiskIntel.RiskFlags(ctx, req.Chain, req.Address)
		if err != nil {
			return ThreatReport{}, upstreamError("risk_intel", err)
		}
		assessment := timed(a, "threat", func() domain.ThreatAssessment {
			return threat.Assess(req.Address, flags, a.cfg.Weights)
		})
		return ThreatReport{
			AnalysisID:       analysisID(EndpointTokenThreat, req.Chain, req.Address, nil),
			Chain:            req.Chain,
			ThreatAssessment: assessment,
			Flags:            flags,
			Message: fmt.Sprintf("overall risk %.2f (%s), driven by %s",
				assessment.OverallScore, assessment.OverallRiskLevel, strings.Join(assessment.TopContributors, ", ")),
		}, nil
	})
}

func (a *Analyzer) fetch(ctx context.Context, req WindowRequest) (domain.Window, error) {
	ctx, span := a.tracer.Start(ctx, "fetch_window", trace.WithAttributes(
		attribute.String("fetch.scope", string(req.Scope)),
		attribute.Int("fetch.max_pages", req.MaxPages),
	))
	defer span.End()

	start := time.Now()
	window, err := FetchWindow(ctx, a.deps.Transactions, req, a.cfg.Fetch)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return domain.Window{}, err
	}
	a.deps.Observer.ObserveFetch(req.Scope, window.PagesFetched, window.Partial, time.Since(start))
	span.SetAttributes(attribute.Int("fetch.pages", window.PagesFetched), attribute.Bool("fetch.partial", window.Partial))
	if window.Partial {
		slog.Warn("partial window", "scope", req.Scope, "address", req.Address, "pages", window.PagesFetched, "note", window.Note)
	}
	return window, nil
}

// fetchRecent fetches enough pages for n transactions and keeps the latest n.
func (a *Analyzer) fetchRecent(ctx context.Context, chain string, scope Scope, address string, n int) (domain.Window, error) {
	pageSize, maxPages := pagesFor(n)
	window, err := a.fetch(ctx, WindowRequest{Chain: chain, Scope: scope, Address: address, PageSize: pageSize, MaxPages: maxPages})
	if err != nil {
		return domain.Window{}, err
	}
	if len(window.Transactions) > n {
		window.Transactions = window.Transactions[len(window.Transactions)-n:]
	}
	return window, nil
}

func (a *Analyzer) fetchPool(ctx context.Context, req PairRequest) (domain.Window, PoolMeta, error) {
	window, err := a.fetchRecent(ctx, req.Chain, ScopePair, req.PairAddress, req.NumTransactions)
	if err != nil {
		return domain.Window{}, PoolMeta{}, err
	}
	pool := PoolMeta{PoolLabel: "Unknown", ExchangeName: "Unknown"}
	for _, tx := range window.Transactions {
		if tx.PoolLabel != "" {
			pool.PoolLabel = tx.PoolLabel
			break
		}
	}
	if a.deps.Pairs != nil {
		info, err := a.deps.Pairs.PairInfo(ctx, req.Chain, req.PairAddress)
		if err != nil {
			slog.Warn("pair info unavailable", "pair", req.PairAddress, "err", err)
		} else {
			if info.Label != "" {
				pool.PoolLabel = info.Label
			}
			if info.Exchange != "" {
				pool.ExchangeName = info.Exchange
			}
		}
	}
	return window, pool, nil
}

// pumpSeries prefers stored candles over the window's own trades when they cover the window.
func (a *Analyzer) pumpSeries(ctx context.Context, token string, txs []domain.Transaction, cfg detection.PumpConfig) []domain.PricePoint {
	if a.deps.Prices != nil && len(txs) > 0 {
		from, to := txs[0].Timestamp, txs[len(txs)-1].Timestamp
		series, err := a.deps.Prices.PriceHistory(ctx, token, from, to)
		switch {
		case err != nil:
			slog.Warn("price history unavailable", "token", token, "err", err)
		case len(series) >= 2:
			return series
		}
	}
	return detection.BucketSeries(txs, cfg.BucketInterval)
}

func (a *Analyzer) priceHistories(ctx context.Context, txs []domain.Transaction) map[string][]domain.PricePoint {
	out := make(map[string][]domain.PricePoint)
	if a.deps.Prices == nil || len(txs) == 0 {
		return out
	}
	to := txs[len(txs)-1].Timestamp
	for _, token := range boughtTokens(txs) {
		series, err := a.deps.Prices.PriceHistory(ctx, token.address, token.firstBuy, to)
		if err != nil {
			slog.Warn("price history unavailable", "token", token.address, "err", err)
			continue
		}
		if len(series) > 0 {
			out[token.address] = series
		}
	}
	return out
}

func (a *Analyzer) launchBlocks(ctx context.Context, txs []domain.Transaction) map[string]uint64 {
	if a.deps.Prices == nil {
		return nil
	}
	tokens := boughtTokens(txs)
	if len(tokens) == 0 {
		return nil
	}
	addrs := make([]string, 0, len(tokens))
	for _, token := range tokens {
		addrs = append(addrs, token.address)
	}
	launches, err := a.deps.Prices.LaunchBlocks(ctx, addrs)
	if err != nil {
		slog.Warn("launch blocks unavailable", "tokens", len(addrs), "err", err)
		return nil
	}
	return launches
}

type boughtToken struct {
	address  string
	firstBuy time.Time
}

// boughtTokens lists tokens the window buys, in first-buy order.
func boughtTokens(txs []domain.Transaction) []boughtToken {
	seen := make(map[string]struct{})
	var out []boughtToken
	for _, tx := range txs {
		if tx.Kind != domain.KindBuy || tx.TokenAddress == "" {
			continue
		}
		if _, ok := seen[tx.TokenAddress]; ok {
			continue
		}
		seen[tx.TokenAddress] = struct{}{}
		out = append(out, boughtToken{address: tx.TokenAddress, firstBuy: tx.Timestamp})
	}
	return out
}

// meta builds the shared report header. An empty window is not an error: the report comes
// back with zero findings and an insufficient-data note.
func (a *Analyzer) meta(endpoint, chain, address string, window domain.Window) ReportMeta {
	note := window.Note
	if len(window.Transactions) == 0 && note == "" {
		note = fmt.Sprintf("%v: no transactions in window", domain.ErrInsufficientData)
	}
	return ReportMeta{
		AnalysisID:        analysisID(endpoint, chain, address, window.Transactions),
		Chain:             chain,
		Address:           address,
		TotalTransactions: len(window.Transactions),
		PagesFetched:      window.PagesFetched,
		DroppedRecords:    window.DroppedRecords,
		Partial:           window.Partial,
		Note:              note,
	}
}

// analysisID is derived from the request and the window contents, so identical windows
// produce identical reports.
func analysisID(endpoint, chain, address string, txs []domain.Transaction) string {
	var b strings.Builder
	b.WriteString(endpoint)
	b.WriteByte('|')
	b.WriteString(chain)
	b.WriteByte('|')
	b.WriteString(address)
	for _, tx := range txs {
		b.WriteByte('|')
		b.WriteString(tx.Hash)
	}
	return uuid.NewSHA1(analysisNamespace, []byte(b.String())).String()
}

func timed[T any](a *Analyzer, name string, fn func() T) T {
	start := time.Now()
	out := fn()
	a.deps.Observer.ObserveDetector(name, time.Since(start))
	return out
}

func topSuspicious(wash detection.WashResult, n int) []domain.WalletProfile {
	var out []domain.WalletProfile
	for _, profile := range wash.Wallets {
		if profile.IsSuspicious && !profile.IsLikelyAutomated {
			out = append(out, profile)
		}
	}
	slices.SortFunc(out, func(x, y domain.WalletProfile) int {
		if c := y.TotalVolumeUSD.Cmp(x.TotalVolumeUSD); c != 0 {
			return c
		}
		return strings.Compare(x.Address, y.Address)
	})
	if len(out) > n {
		out = out[:n]
	}
	if out == nil {
		out = []domain.WalletProfile{}
	}
	return out
}

func maxRisk(findings []domain.Finding) float64 {
	var score float64
	for _, f := range findings {
		score = max(score, f.RiskScore)
	}
	return score
}
