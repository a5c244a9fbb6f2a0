package application

import (
	"context"
	"log/slog"
	"maps"
	"slices"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"

	"txsentry/internal/detection"
	"txsentry/internal/domain"
	"txsentry/internal/streaming"
)

const (
	LabelMEVBot          = "mev_bot"
	LabelSourceHeuristic = "mev_heuristic"
)

// publishFindings sends one finding report per analysis that found something. Publishing is
// best effort: the HTTP answer never depends on the bus.
func (a *Analyzer) publishFindings(ctx context.Context, meta ReportMeta, endpoint string, score float64, level string, findings []domain.Finding) {
	if a.deps.Publisher == nil || len(findings) == 0 {
		return
	}
	if level == "" {
		level = string(domain.SeverityForScore(score))
	}
	msg := streaming.Message{
		ID:         uuid.NewString(),
		Type:       streaming.MessageTypeFindingReport,
		Chain:      meta.Chain,
		TraceID:    traceID(ctx),
		AnalysisID: meta.AnalysisID,
		Endpoint:   endpoint,
		Address:    meta.Address,
		RiskScore:  score,
		RiskLevel:  level,
		Partial:    meta.Partial,
		Findings:   findings,
		CreatedAt:  time.Now().UTC(),
	}
	if err := a.deps.Publisher.PublishReport(ctx, msg); err != nil {
		slog.Warn("publish findings failed", "endpoint", endpoint, "address", meta.Address, "err", err)
	}
}

// publishLabels suggests registry entries for wallets the MEV heuristic marked and the
// registry does not know yet.
func (a *Analyzer) publishLabels(ctx context.Context, chain string, wash detection.WashResult) {
	if a.deps.Publisher == nil {
		return
	}
	for _, addr := range slices.Sorted(maps.Keys(wash.Wallets)) {
		profile := wash.Wallets[addr]
		if !profile.IsLikelyAutomated || !slices.Contains(profile.Patterns, domain.PatternMEVHeuristic) || slices.Contains(profile.Patterns, domain.PatternKnownAutomated) {
			continue
		}
		msg := streaming.Message{
			ID:        uuid.NewString(),
			Type:      streaming.MessageTypeAutomatedLabel,
			Chain:     chain,
			TraceID:   traceID(ctx),
			Address:   addr,
			Label:     LabelMEVBot,
			Source:    LabelSourceHeuristic,
			CreatedAt: time.Now().UTC(),
		}
		if err := a.deps.Publisher.PublishReport(ctx, msg); err != nil {
			slog.Warn("publish label failed", "address", addr, "err", err)
			return
		}
	}
}

func traceID(ctx context.Context) string {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.HasTraceID() {
		return ""
	}
	return sc.TraceID().String()
}
