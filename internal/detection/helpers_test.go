package detection

import (
	"time"

	"github.com/shopspring/decimal"

	"txsentry/internal/domain"
)

var epoch = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func blockTime(block uint64) time.Time {
	return epoch.Add(time.Duration(block) * 12 * time.Second)
}

func trade(hash, wallet string, kind domain.TxKind, block, index uint64, usd float64) domain.Transaction {
	return domain.Transaction{
		Hash:         hash,
		BlockNumber:  block,
		TxIndex:      index,
		Timestamp:    blockTime(block),
		FromAddress:  wallet,
		ToAddress:    "0xpool",
		TokenAddress: "0xtoken",
		TokenSymbol:  "TKN",
		Amount:       decimal.NewFromInt(1000),
		USDValue:     decimal.NewFromFloat(usd),
		GasPrice:     decimal.Zero,
		Kind:         kind,
		PoolAddress:  "0xpool",
		PriceUSD:     decimal.NewFromInt(1),
		Category:     domain.CategoryUnknown,
	}
}

func priced(tx domain.Transaction, price float64) domain.Transaction {
	tx.PriceUSD = decimal.NewFromFloat(price)
	return tx
}

func onToken(tx domain.Transaction, token string) domain.Transaction {
	tx.TokenAddress = token
	tx.PoolAddress = "pool-" + token
	tx.TokenSymbol = token
	return tx
}

func point(i int, price, volume float64) domain.PricePoint {
	return domain.PricePoint{
		Timestamp:   epoch.Add(time.Duration(i) * time.Minute),
		BlockNumber: uint64(100 + i),
		Price:       price,
		VolumeUSD:   volume,
	}
}
