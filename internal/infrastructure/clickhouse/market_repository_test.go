package clickhouse

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPriceHistorySkipsEmptyCandles(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	repo := newMarketRepository(db)

	from := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	to := from.Add(2 * time.Hour)
	rows := sqlmock.NewRows([]string{"bucket", "block_number", "close", "volume_usd", "sellers"}).
		AddRow(from, uint64(100), 1.5, 2000.0, uint32(3)).
		AddRow(from.Add(time.Hour), uint64(110), 0.0, 0.0, uint32(0)).
		AddRow(to, uint64(120), 1.8, 500.0, uint32(1))
	mock.ExpectQuery("FROM token_candles").
		WithArgs("0xabc0000000000000000000000000000000000001", from, to).
		WillReturnRows(rows)

	points, err := repo.PriceHistory(context.Background(), "0xABC0000000000000000000000000000000000001", from, to)
	require.NoError(t, err)
	require.Len(t, points, 2)
	assert.Equal(t, 1.5, points[0].Price)
	assert.Equal(t, 3, points[0].Sellers)
	assert.Equal(t, uint64(120), points[1].BlockNumber)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLaunchBlocks(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	repo := newMarketRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("WHERE token IN (?, ?) GROUP BY token")).
		WithArgs("0xa", "0xb").
		WillReturnRows(sqlmock.NewRows([]string{"token", "launch_block"}).AddRow("0xa", uint64(18000000)))

	launches, err := repo.LaunchBlocks(context.Background(), []string{"0xA", "0xb"})
	require.NoError(t, err)
	assert.Equal(t, map[string]uint64{"0xa": 18000000}, launches)
	require.NoError(t, mock.ExpectationsWereMet())

	empty, err := repo.LaunchBlocks(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, empty)
}
