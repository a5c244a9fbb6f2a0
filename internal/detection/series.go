package detection

import (
	"cmp"
	"maps"
	"math"
	"slices"
	"time"

	"github.com/shopspring/decimal"

	"txsentry/internal/domain"
)

// PoolSeries is the execution-price series of one pool inside a window.
type PoolSeries struct {
	Pool   string              `json:"pool"`
	Label  string              `json:"label,omitempty"`
	Points []domain.PricePoint `json:"points"`
}

// SeriesByPool turns priced trades into one series per pool, ordered by pool address.
func SeriesByPool(txs []domain.Transaction) []PoolSeries {
	byPool := make(map[string]*PoolSeries)
	for _, tx := range sortedCopy(txs) {
		if !tx.Kind.IsTrade() || !tx.PriceUSD.IsPositive() {
			continue
		}
		key := poolKey(tx)
		series, ok := byPool[key]
		if !ok {
			series = &PoolSeries{Pool: key, Label: tx.PoolLabel}
			byPool[key] = series
		}
		point := domain.PricePoint{
			Timestamp:   tx.Timestamp,
			BlockNumber: tx.BlockNumber,
			Price:       tx.PriceUSD.InexactFloat64(),
			VolumeUSD:   tx.USDValue.InexactFloat64(),
			Wallet:      tx.FromAddress,
			TxHash:      tx.Hash,
		}
		if tx.Kind == domain.KindSell {
			point.Sellers = 1
		}
		series.Points = append(series.Points, point)
	}
	out := make([]PoolSeries, 0, len(byPool))
	for _, key := range slices.Sorted(maps.Keys(byPool)) {
		out = append(out, *byPool[key])
	}
	return out
}

// BucketSeries aggregates priced trades into fixed intervals: closing price, summed volume
// and distinct sellers per bucket. A non-positive interval keeps one point per trade.
func BucketSeries(txs []domain.Transaction, interval time.Duration) []domain.PricePoint {
	type bucket struct {
		point   domain.PricePoint
		sellers map[string]struct{}
	}
	var (
		order   []time.Time
		buckets = make(map[time.Time]*bucket)
		points  []domain.PricePoint
	)
	for _, tx := range sortedCopy(txs) {
		if !tx.Kind.IsTrade() || !tx.PriceUSD.IsPositive() {
			continue
		}
		if interval <= 0 {
			point := domain.PricePoint{
				Timestamp:   tx.Timestamp,
				BlockNumber: tx.BlockNumber,
				Price:       tx.PriceUSD.InexactFloat64(),
				VolumeUSD:   tx.USDValue.InexactFloat64(),
				TxHash:      tx.Hash,
			}
			if tx.Kind == domain.KindSell {
				point.Sellers = 1
			}
			points = append(points, point)
			continue
		}
		key := tx.Timestamp.UTC().Truncate(interval)
		b, ok := buckets[key]
		if !ok {
			b = &bucket{point: domain.PricePoint{Timestamp: key}, sellers: make(map[string]struct{})}
			buckets[key] = b
			order = append(order, key)
		}
		b.point.BlockNumber = tx.BlockNumber
		b.point.Price = tx.PriceUSD.InexactFloat64()
		b.point.VolumeUSD += tx.USDValue.InexactFloat64()
		if tx.Kind == domain.KindSell {
			b.sellers[tx.FromAddress] = struct{}{}
		}
	}
	if interval <= 0 {
		return points
	}
	slices.SortFunc(order, func(a, b time.Time) int { return a.Compare(b) })
	points = make([]domain.PricePoint, 0, len(order))
	for _, key := range order {
		b := buckets[key]
		b.point.Sellers = len(b.sellers)
		points = append(points, b.point)
	}
	return points
}

// GroupByBlock splits a window into per-block slices in ascending block order.
func GroupByBlock(txs []domain.Transaction) [][]domain.Transaction {
	var groups [][]domain.Transaction
	for _, tx := range sortedCopy(txs) {
		if n := len(groups); n > 0 && groups[n-1][0].BlockNumber == tx.BlockNumber {
			groups[n-1] = append(groups[n-1], tx)
			continue
		}
		groups = append(groups, []domain.Transaction{tx})
	}
	return groups
}

func sortedCopy(txs []domain.Transaction) []domain.Transaction {
	out := slices.Clone(txs)
	slices.SortStableFunc(out, func(a, b domain.Transaction) int {
		switch {
		case a.Before(b):
			return -1
		case b.Before(a):
			return 1
		default:
			return 0
		}
	})
	return out
}

func poolKey(tx domain.Transaction) string {
	if tx.PoolAddress != "" {
		return tx.PoolAddress
	}
	return tx.TokenAddress
}

func tokenKey(tx domain.Transaction) string {
	if tx.TokenAddress != "" {
		return tx.TokenAddress
	}
	return tx.PoolAddress
}

func sumUSD(txs []domain.Transaction) decimal.Decimal {
	total := decimal.Zero
	for _, tx := range txs {
		total = total.Add(tx.USDValue)
	}
	return total
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

func pctChange(from, to float64) float64 {
	if from == 0 {
		return 0
	}
	return (to - from) / from * 100
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var total float64
	for _, v := range values {
		total += v
	}
	return total / float64(len(values))
}

// coefficientOfVariation returns stddev/mean, or 0 when the mean is zero.
func coefficientOfVariation(values []float64) float64 {
	m := mean(values)
	if m == 0 {
		return 0
	}
	var sq float64
	for _, v := range values {
		sq += (v - m) * (v - m)
	}
	return math.Sqrt(sq/float64(len(values))) / m
}

func sortFindings(findings []domain.Finding) {
	slices.SortStableFunc(findings, func(a, b domain.Finding) int {
		return cmp.Or(
			cmp.Compare(a.BlockNumber, b.BlockNumber),
			cmp.Compare(string(a.Type), string(b.Type)),
			slices.Compare(a.InvolvedAddresses, b.InvolvedAddresses),
		)
	})
}
