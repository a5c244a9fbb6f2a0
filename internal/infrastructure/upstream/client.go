package upstream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"txsentry/internal/domain"
)

const maxErrorBody = 512

// Policy is the request policy shared by the data providers.
type Policy struct {
	Name            string
	RateLimit       float64
	MaxRetries      int
	Timeout         time.Duration
	InitialInterval time.Duration
	MaxElapsed      time.Duration
	TripAfter       uint32
	OpenFor         time.Duration
}

func (p Policy) withDefaults() Policy {
	if p.Timeout <= 0 {
		p.Timeout = 15 * time.Second
	}
	if p.MaxRetries < 0 {
		p.MaxRetries = 0
	}
	if p.InitialInterval <= 0 {
		p.InitialInterval = 250 * time.Millisecond
	}
	if p.MaxElapsed <= 0 {
		p.MaxElapsed = 30 * time.Second
	}
	if p.TripAfter == 0 {
		p.TripAfter = 5
	}
	if p.OpenFor <= 0 {
		p.OpenFor = 30 * time.Second
	}
	return p
}

// Client issues JSON GET requests behind a rate limiter, retries 429 and 5xx answers with
// exponential backoff, and stops calling a provider that keeps failing.
type Client struct {
	policy  Policy
	http    *http.Client
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker
}

func New(policy Policy) *Client {
	policy = policy.withDefaults()
	var limiter *rate.Limiter
	if policy.RateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(policy.RateLimit), 1)
	}
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        policy.Name,
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     policy.OpenFor,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= policy.TripAfter
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			slog.Warn("provider circuit changed", "provider", name, "from", from.String(), "to", to.String())
		},
		IsSuccessful: countsAsSuccess,
	})
	return &Client{
		policy:  policy,
		http:    &http.Client{Timeout: policy.Timeout},
		limiter: limiter,
		breaker: breaker,
	}
}

func (c *Client) Name() string {
	return c.policy.Name
}

// GetJSON fetches url and decodes the body into out. Failures come back as
// *domain.UpstreamError unless the context ended first.
func (c *Client) GetJSON(ctx context.Context, url string, header http.Header, out any) error {
	ctx, span := otel.Tracer("txsentry/upstream").Start(ctx, c.policy.Name+".get", trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()

	_, err := c.breaker.Execute(func() (any, error) {
		return nil, c.getWithRetry(ctx, url, header, out)
	})
	if err == nil {
		return nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		err = &domain.UpstreamError{Provider: c.policy.Name, Err: err}
	}
	var upstream *domain.UpstreamError
	if errors.As(err, &upstream) {
		span.SetAttributes(attribute.Int("http.status_code", upstream.Status))
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}

func (c *Client) getWithRetry(ctx context.Context, url string, header http.Header, out any) error {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = c.policy.InitialInterval
	policy.MaxElapsedTime = c.policy.MaxElapsed
	b := backoff.WithContext(backoff.WithMaxRetries(policy, uint64(c.policy.MaxRetries)), ctx)

	attempt := 0
	operation := func() error {
		attempt++
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return backoff.Permanent(err)
			}
		}
		return c.get(ctx, url, header, out)
	}
	notify := func(err error, wait time.Duration) {
		slog.Warn("provider request retrying", "provider", c.policy.Name, "attempt", attempt, "backoff", wait, "err", err)
	}
	return backoff.RetryNotify(operation, b, notify)
}

func (c *Client) get(ctx context.Context, url string, header http.Header, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return backoff.Permanent(err)
	}
	for key, values := range header {
		for _, value := range values {
			req.Header.Add(key, value)
		}
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return backoff.Permanent(ctx.Err())
		}
		return &domain.UpstreamError{Provider: c.policy.Name, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		upstreamErr := &domain.UpstreamError{
			Provider: c.policy.Name,
			Status:   resp.StatusCode,
			Err:      fmt.Errorf("unexpected response: %s", body),
		}
		if retryable(resp.StatusCode) {
			return upstreamErr
		}
		return backoff.Permanent(upstreamErr)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return backoff.Permanent(&domain.UpstreamError{Provider: c.policy.Name, Status: resp.StatusCode, Err: fmt.Errorf("decode response: %w", err)})
	}
	return nil
}

func retryable(status int) bool {
	return status == http.StatusTooManyRequests || status >= 500
}

// countsAsSuccess keeps client mistakes and cancellations from opening the circuit.
func countsAsSuccess(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var upstream *domain.UpstreamError
	if errors.As(err, &upstream) && upstream.Status >= 400 && upstream.Status < 500 {
		return upstream.Status != http.StatusTooManyRequests
	}
	return false
}
