package application

import (
	"context"
	"log/slog"
	"maps"
	"slices"
	"sync"

	"golang.org/x/sync/errgroup"

	"txsentry/internal/domain"
)

const contractCheckConcurrency = 4

// knownAutomated builds the wash-trading exclusion predicate for one window: registry hits,
// plus unregistered contracts that traded more than once inside a single block. Lookup
// failures only narrow the predicate; cancellation aborts.
func (a *Analyzer) knownAutomated(ctx context.Context, txs []domain.Transaction) (func(string) bool, error) {
	known := make(map[string]bool)
	wallets, repeaters := tradingWallets(txs)
	if len(wallets) == 0 {
		return func(string) bool { return false }, nil
	}

	if a.deps.Registry != nil {
		hits, err := a.deps.Registry.KnownAutomated(ctx, wallets)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			slog.Warn("automated registry lookup failed", "wallets", len(wallets), "err", err)
		}
		for addr, ok := range hits {
			if ok {
				known[addr] = true
			}
		}
	}

	if a.deps.Contracts != nil {
		var mu sync.Mutex
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(contractCheckConcurrency)
		pending := slices.DeleteFunc(repeaters, func(addr string) bool { return known[addr] })
		for _, addr := range pending {
			g.Go(func() error {
				isContract, err := a.deps.Contracts.IsContract(gctx, addr)
				if err != nil {
					slog.Warn("contract check failed", "address", addr, "err", err)
					return nil
				}
				if isContract {
					mu.Lock()
					known[addr] = true
					mu.Unlock()
				}
				return nil
			})
		}
		_ = g.Wait()
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
	}

	return func(addr string) bool { return known[addr] }, nil
}

// tradingWallets returns every trading wallet and, separately, those with two or more trades
// in one block. Both are sorted.
func tradingWallets(txs []domain.Transaction) ([]string, []string) {
	type blockKey struct {
		wallet string
		block  uint64
	}
	perBlock := make(map[blockKey]int)
	wallets := make(map[string]struct{})
	repeat := make(map[string]struct{})
	for _, tx := range txs {
		if !tx.Kind.IsTrade() || tx.FromAddress == "" {
			continue
		}
		wallets[tx.FromAddress] = struct{}{}
		key := blockKey{tx.FromAddress, tx.BlockNumber}
		perBlock[key]++
		if perBlock[key] == 2 {
			repeat[tx.FromAddress] = struct{}{}
		}
	}
	return slices.Sorted(maps.Keys(wallets)), slices.Sorted(maps.Keys(repeat))
}
