package application

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"txsentry/internal/domain"
)

// WindowRequest bounds one window fetch. PageSize is the provider page limit.
type WindowRequest struct {
	Chain    string
	Scope    Scope
	Address  string
	PageSize int
	MaxPages int
}

type FetchConfig struct {
	Timeout time.Duration
	Workers int
}

type fetchedPage struct {
	seq  int
	page Page
}

type normalizedPage struct {
	txs     []domain.Transaction
	dropped int
}

// FetchWindow walks the provider cursor up to MaxPages and normalizes pages concurrently.
// A timeout or the page ceiling keeps what was fetched and marks the window partial; any
// other provider failure fails the whole window.
func FetchWindow(ctx context.Context, source TransactionSource, req WindowRequest, cfg FetchConfig) (domain.Window, error) {
	if req.MaxPages <= 0 {
		req.MaxPages = 1
	}
	workers := max(cfg.Workers, 1)

	fetchCtx := ctx
	cancel := context.CancelFunc(func() {})
	if cfg.Timeout > 0 {
		fetchCtx, cancel = context.WithTimeout(ctx, cfg.Timeout)
	}
	defer cancel()

	g, gctx := errgroup.WithContext(fetchCtx)
	pages := make(chan fetchedPage, workers)

	var (
		mu         sync.Mutex
		normalized = make(map[int]normalizedPage)
		fetched    int
		timedOut   bool
		cursorLeft bool
	)

	g.Go(func() error {
		defer close(pages)
		cursor := ""
		for seq := 0; seq < req.MaxPages; seq++ {
			page, err := source.FetchPage(gctx, PageRequest{
				Chain:   req.Chain,
				Scope:   req.Scope,
				Address: req.Address,
				Cursor:  cursor,
				Limit:   req.PageSize,
			})
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				if fetchCtx.Err() != nil {
					timedOut = true
					return nil
				}
				return upstreamError("transactions", err)
			}
			select {
			case pages <- fetchedPage{seq: seq, page: page}:
			case <-gctx.Done():
				if ctx.Err() == nil && fetchCtx.Err() != nil {
					timedOut = true
					return nil
				}
				return gctx.Err()
			}
			fetched++
			cursor = page.Cursor
			if cursor == "" {
				return nil
			}
		}
		cursorLeft = true
		return nil
	})

	for range workers {
		g.Go(func() error {
			for p := range pages {
				txs, dropped := Normalize(p.page.Records)
				mu.Lock()
				normalized[p.seq] = normalizedPage{txs: txs, dropped: dropped}
				mu.Unlock()
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return domain.Window{}, err
	}

	window := domain.Window{PagesFetched: fetched}
	var all []domain.Transaction
	for seq := range fetched {
		page := normalized[seq]
		all = append(all, page.txs...)
		window.DroppedRecords += page.dropped
	}
	window.Transactions = mergeTransactions(all)

	switch {
	case timedOut:
		window.Partial = true
		window.Note = fmt.Sprintf("fetch timed out after %s with %d pages; results are partial", cfg.Timeout, fetched)
	case cursorLeft:
		window.Partial = true
		window.Note = fmt.Sprintf("stopped at the %d page ceiling; more transactions are available", req.MaxPages)
	}
	return window, nil
}

func upstreamError(provider string, err error) error {
	var upstream *domain.UpstreamError
	if errors.As(err, &upstream) {
		return err
	}
	return &domain.UpstreamError{Provider: provider, Err: err}
}
