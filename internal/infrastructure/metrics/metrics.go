package metrics

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"txsentry/internal/application"
	"txsentry/internal/domain"
)

const namespace = "txsentry"

// Metrics holds the service collectors on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	analyses       *prometheus.CounterVec
	findings       *prometheus.CounterVec
	fetchPages     *prometheus.CounterVec
	partialWindows *prometheus.CounterVec
	fetchDuration  *prometheus.HistogramVec
	detectorTime   *prometheus.HistogramVec
	upstreamErrors *prometheus.CounterVec

	labelMessages *prometheus.CounterVec
	labelErrors   *prometheus.CounterVec
	labelLag      prometheus.Gauge
	labelsStored  prometheus.Counter
}

var _ application.AnalysisObserver = (*Metrics)(nil)

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		analyses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "analyses_total",
			Help:      "Analyses served, by endpoint and outcome.",
		}, []string{"endpoint", "outcome"}),
		findings: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "findings_total",
			Help:      "Findings emitted, by type and severity.",
		}, []string{"type", "severity"}),
		fetchPages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fetch_pages_total",
			Help:      "Provider pages fetched, by scope.",
		}, []string{"scope"}),
		partialWindows: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "partial_windows_total",
			Help:      "Transaction windows that ended before the listing was exhausted.",
		}, []string{"scope"}),
		fetchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "fetch_duration_seconds",
			Help:      "Time to assemble one transaction window.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20, 40},
		}, []string{"scope"}),
		detectorTime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "detector_duration_seconds",
			Help:      "Time spent in one detector run.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 4, 8),
		}, []string{"detector"}),
		upstreamErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "upstream_errors_total",
			Help:      "Analyses failed by a data provider, by provider and status.",
		}, []string{"provider", "status"}),
		labelMessages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "label_messages_total",
			Help:      "Automated-label messages consumed, by topic.",
		}, []string{"topic"}),
		labelErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "label_errors_total",
			Help:      "Label consumer failures, by stage.",
		}, []string{"stage"}),
		labelLag: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "label_lag_seconds",
			Help:      "Age of the last consumed label message.",
		}),
		labelsStored: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "labels_stored_total",
			Help:      "Automated labels written to the registry.",
		}),
	}
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.analyses,
		m.findings,
		m.fetchPages,
		m.partialWindows,
		m.fetchDuration,
		m.detectorTime,
		m.upstreamErrors,
		m.labelMessages,
		m.labelErrors,
		m.labelLag,
		m.labelsStored,
	)
	return m
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) ObserveFetch(scope application.Scope, pages int, partial bool, elapsed time.Duration) {
	label := string(scope)
	m.fetchPages.WithLabelValues(label).Add(float64(pages))
	m.fetchDuration.WithLabelValues(label).Observe(elapsed.Seconds())
	if partial {
		m.partialWindows.WithLabelValues(label).Inc()
	}
}

func (m *Metrics) ObserveDetector(name string, elapsed time.Duration) {
	m.detectorTime.WithLabelValues(name).Observe(elapsed.Seconds())
}

func (m *Metrics) ObserveFindings(findings []domain.Finding) {
	for _, f := range findings {
		m.findings.WithLabelValues(string(f.Type), string(f.Severity)).Inc()
	}
}

func (m *Metrics) ObserveAnalysis(endpoint string, err error) {
	m.analyses.WithLabelValues(endpoint, outcome(err)).Inc()
	var upstream *domain.UpstreamError
	if errors.As(err, &upstream) {
		m.upstreamErrors.WithLabelValues(upstream.Provider, strconv.Itoa(upstream.Status)).Inc()
	}
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, domain.ErrInvalidInput):
		return "invalid"
	case errors.Is(err, domain.ErrUpstreamFetch):
		return "upstream_error"
	default:
		return "error"
	}
}

func (m *Metrics) ObserveLabelMessage(topic string, ts time.Time) {
	m.labelMessages.WithLabelValues(topic).Inc()
	if !ts.IsZero() {
		m.labelLag.Set(time.Since(ts).Seconds())
	}
}

// Stages: fetch, decode, store, commit.
func (m *Metrics) IncLabelError(stage string) {
	m.labelErrors.WithLabelValues(stage).Inc()
}

func (m *Metrics) AddLabelsStored(n int) {
	m.labelsStored.Add(float64(n))
}
