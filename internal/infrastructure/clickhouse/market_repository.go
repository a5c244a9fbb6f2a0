package clickhouse

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"txsentry/internal/domain"

	"github.com/ClickHouse/clickhouse-go/v2"
)

// MarketRepository reads token price candles and launch blocks collected by the market feed.
type MarketRepository struct {
	db *sql.DB
}

func NewMarketRepository(dsn string) (*MarketRepository, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, errors.New("clickhouse dsn is required")
	}
	options, err := clickhouse.ParseDSN(dsn)
	if err != nil {
		return nil, err
	}
	db := clickhouse.OpenDB(options)
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := createSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return newMarketRepository(db), nil
}

func newMarketRepository(db *sql.DB) *MarketRepository {
	return &MarketRepository{db: db}
}

func createSchema(db *sql.DB) error {
	schema := []string{
		`CREATE TABLE IF NOT EXISTS token_candles (
			token String,
			bucket DateTime64(3, 'UTC'),
			block_number UInt64,
			close Float64,
			volume_usd Float64,
			sellers UInt32
		) ENGINE = ReplacingMergeTree
		ORDER BY (token, bucket)`,
		`CREATE TABLE IF NOT EXISTS token_launches (
			token String,
			launch_block UInt64
		) ENGINE = ReplacingMergeTree
		ORDER BY token`,
	}
	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// PriceHistory returns the candles of one token inside [from, to], oldest first.
func (r *MarketRepository) PriceHistory(ctx context.Context, token string, from, to time.Time) ([]domain.PricePoint, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	rows, err := r.db.QueryContext(ctx, `SELECT bucket, block_number, close, volume_usd, sellers
		FROM token_candles FINAL
		WHERE token = ? AND bucket >= ? AND bucket <= ?
		ORDER BY bucket`,
		strings.ToLower(token), from.UTC(), to.UTC(),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	points := make([]domain.PricePoint, 0)
	for rows.Next() {
		var (
			point   domain.PricePoint
			sellers uint32
		)
		if err := rows.Scan(&point.Timestamp, &point.BlockNumber, &point.Price, &point.VolumeUSD, &sellers); err != nil {
			return nil, err
		}
		if point.Price <= 0 {
			continue
		}
		point.Timestamp = point.Timestamp.UTC()
		point.Sellers = int(sellers)
		points = append(points, point)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return points, nil
}

// LaunchBlocks returns the first trading block per token. Unknown tokens are absent.
func (r *MarketRepository) LaunchBlocks(ctx context.Context, tokens []string) (map[string]uint64, error) {
	launches := make(map[string]uint64, len(tokens))
	if len(tokens) == 0 {
		return launches, nil
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	args := make([]any, 0, len(tokens))
	for _, token := range tokens {
		args = append(args, strings.ToLower(token))
	}
	query := `SELECT token, min(launch_block) FROM token_launches WHERE token IN (?` +
		strings.Repeat(", ?", len(tokens)-1) + `) GROUP BY token`
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			token string
			block uint64
		)
		if err := rows.Scan(&token, &block); err != nil {
			return nil, err
		}
		if block > 0 {
			launches[token] = block
		}
	}
	return launches, rows.Err()
}

func (r *MarketRepository) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return r.db.PingContext(ctx)
}

func (r *MarketRepository) Close() error {
	return r.db.Close()
}
