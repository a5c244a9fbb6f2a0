package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"txsentry/internal/application"
	"txsentry/internal/domain"
)

// Analysis is the set of analyses the API serves.
type Analysis interface {
	AnalyzeToken(ctx context.Context, req application.TokenAnomalyRequest) (application.TransactionAnomalyReport, error)
	Sandwich(ctx context.Context, req application.TokenWindowRequest) (application.SandwichReport, error)
	Insider(ctx context.Context, req application.WalletRequest) (application.InsiderReport, error)
	Sniping(ctx context.Context, req application.WalletRequest) (application.SnipingReport, error)
	Liquidity(ctx context.Context, req application.PairRequest) (application.LiquidityReport, error)
	Concentrated(ctx context.Context, req application.PairRequest) (application.ConcentratedReport, error)
	Domination(ctx context.Context, req application.PairRequest) (application.DominationReport, error)
	TokenThreat(ctx context.Context, req application.ThreatRequest) (application.ThreatReport, error)
	DefaultChain() string
	DefaultSensitivity() domain.Sensitivity
	DefaultMaxPages() int
}

type Pinger interface {
	Ping(ctx context.Context) error
}

type BuildInfo struct {
	Version   string
	Commit    string
	BuildTime string
}

type Server struct {
	analysis  Analysis
	registry  Pinger
	metrics   http.Handler
	buildInfo BuildInfo
}

func NewServer(analysis Analysis, registry Pinger, metrics http.Handler, buildInfo BuildInfo) (*Server, error) {
	if analysis == nil {
		return nil, errors.New("http server dependencies must not be nil")
	}
	if metrics == nil {
		metrics = http.NotFoundHandler()
	}
	return &Server{analysis: analysis, registry: registry, metrics: metrics, buildInfo: buildInfo}, nil
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	mux.Handle("GET /metrics", s.metrics)
	mux.HandleFunc("GET /version", s.handleVersion)
	mux.HandleFunc("GET /api/v1/transaction-anomaly", s.handleTransactionAnomaly)
	mux.HandleFunc("GET /api/v1/sandwich-attack", s.handleSandwich)
	mux.HandleFunc("GET /api/v1/insider-trading", s.handleInsider)
	mux.HandleFunc("GET /api/v1/sniping-bot", s.handleSniping)
	mux.HandleFunc("GET /api/v1/liquidity-manipulation", s.handleLiquidity)
	mux.HandleFunc("GET /api/v1/concentrated-attack", s.handleConcentrated)
	mux.HandleFunc("GET /api/v1/pool-domination", s.handleDomination)
	mux.HandleFunc("GET /api/v1/token-threat", s.handleTokenThreat)
	return mux
}

func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	server := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	slog.Info("http server listening", "addr", addr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if s.registry != nil {
		if err := s.registry.Ping(ctx); err != nil {
			respondError(w, http.StatusServiceUnavailable, "registry not ready")
			return
		}
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.buildInfo)
}

func (s *Server) handleTransactionAnomaly(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, err := intParam(q.Get("limit"), "limit", application.DefaultPageSize)
	if err != nil {
		respondFailure(w, err)
		return
	}
	maxPages, err := intParam(q.Get("max_pages"), "max_pages", s.analysis.DefaultMaxPages())
	if err != nil {
		respondFailure(w, err)
		return
	}
	sensitivity := domain.Sensitivity(q.Get("sensitivity"))
	if sensitivity == "" {
		sensitivity = s.analysis.DefaultSensitivity()
	}
	report, err := s.analysis.AnalyzeToken(r.Context(), application.TokenAnomalyRequest{
		Chain:        s.chain(q.Get("chain")),
		TokenAddress: q.Get("token_address"),
		Sensitivity:  sensitivity,
		Limit:        limit,
		MaxPages:     maxPages,
	})
	respond(w, report, err)
}

func (s *Server) handleSandwich(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	n, err := intParam(q.Get("num_transactions"), "num_transactions", application.DefaultNumTransactions)
	if err != nil {
		respondFailure(w, err)
		return
	}
	report, err := s.analysis.Sandwich(r.Context(), application.TokenWindowRequest{
		Chain:           s.chain(q.Get("chain")),
		TokenAddress:    q.Get("token_address"),
		NumTransactions: n,
	})
	respond(w, report, err)
}

func (s *Server) handleInsider(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	minScore, err := floatParam(q.Get("min_suspicion_score"), "min_suspicion_score", application.DefaultMinSuspicion)
	if err != nil {
		respondFailure(w, err)
		return
	}
	report, err := s.analysis.Insider(r.Context(), application.WalletRequest{
		Chain:             s.chain(q.Get("chain")),
		WalletAddress:     q.Get("wallet_address"),
		MinSuspicionScore: minScore,
	})
	respond(w, report, err)
}

func (s *Server) handleSniping(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	report, err := s.analysis.Sniping(r.Context(), application.WalletRequest{
		Chain:         s.chain(q.Get("chain")),
		WalletAddress: q.Get("wallet_address"),
	})
	respond(w, report, err)
}

func (s *Server) handleLiquidity(w http.ResponseWriter, r *http.Request) {
	req, err := s.pairRequest(r)
	if err != nil {
		respondFailure(w, err)
		return
	}
	report, err := s.analysis.Liquidity(r.Context(), req)
	respond(w, report, err)
}

func (s *Server) handleConcentrated(w http.ResponseWriter, r *http.Request) {
	req, err := s.pairRequest(r)
	if err != nil {
		respondFailure(w, err)
		return
	}
	report, err := s.analysis.Concentrated(r.Context(), req)
	respond(w, report, err)
}

func (s *Server) handleDomination(w http.ResponseWriter, r *http.Request) {
	req, err := s.pairRequest(r)
	if err != nil {
		respondFailure(w, err)
		return
	}
	report, err := s.analysis.Domination(r.Context(), req)
	respond(w, report, err)
}

func (s *Server) handleTokenThreat(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	report, err := s.analysis.TokenThreat(r.Context(), application.ThreatRequest{
		Chain:   s.chain(q.Get("chain")),
		Address: q.Get("address"),
	})
	respond(w, report, err)
}

func (s *Server) pairRequest(r *http.Request) (application.PairRequest, error) {
	q := r.URL.Query()
	n, err := intParam(q.Get("num_transactions"), "num_transactions", application.DefaultNumTransactions)
	if err != nil {
		return application.PairRequest{}, err
	}
	return application.PairRequest{
		Chain:           s.chain(q.Get("chain")),
		PairAddress:     q.Get("pair_address"),
		NumTransactions: n,
	}, nil
}

func (s *Server) chain(raw string) string {
	if strings.TrimSpace(raw) == "" {
		return s.analysis.DefaultChain()
	}
	return raw
}

func intParam(raw, field string, fallback int) (int, error) {
	if raw == "" {
		return fallback, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, &domain.ValidationError{Field: field, Message: "must be an integer"}
	}
	return value, nil
}

func floatParam(raw, field string, fallback float64) (float64, error) {
	if raw == "" {
		return fallback, nil
	}
	value, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, &domain.ValidationError{Field: field, Message: "must be a number"}
	}
	return value, nil
}

func respond(w http.ResponseWriter, report any, err error) {
	if err != nil {
		respondFailure(w, err)
		return
	}
	respondJSON(w, http.StatusOK, report)
}

// respondFailure maps analysis errors onto status codes.
func respondFailure(w http.ResponseWriter, err error) {
	var validation *domain.ValidationError
	var upstream *domain.UpstreamError
	switch {
	case errors.As(err, &validation):
		respondJSON(w, http.StatusBadRequest, map[string]string{"error": validation.Error(), "field": validation.Field})
	case errors.As(err, &upstream):
		respondError(w, http.StatusBadGateway, fmt.Sprintf("upstream %s unavailable", upstream.Provider))
	case errors.Is(err, application.ErrNotConfigured):
		respondError(w, http.StatusServiceUnavailable, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		respondError(w, http.StatusGatewayTimeout, "analysis timed out")
	case errors.Is(err, context.Canceled):
		respondError(w, http.StatusServiceUnavailable, "request cancelled")
	default:
		slog.Error("analysis error", "err", err)
		respondError(w, http.StatusInternalServerError, "analysis failed")
	}
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
