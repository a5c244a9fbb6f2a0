package application

import (
	"time"

	"github.com/shopspring/decimal"
)

// RawToken is one leg of a provider swap record.
type RawToken struct {
	Address   string          `json:"address"`
	Name      string          `json:"name"`
	Symbol    string          `json:"symbol"`
	Amount    decimal.Decimal `json:"amount"`
	USDPrice  decimal.Decimal `json:"usdPrice"`
	USDAmount decimal.Decimal `json:"usdAmount"`
}

// RawRecord is a swap, liquidity or call record as the transaction provider returns it.
// Numeric fields are decimals because the provider sends them either as JSON numbers or
// as strings depending on the endpoint.
type RawRecord struct {
	TransactionHash   string          `json:"transactionHash"`
	TransactionIndex  decimal.Decimal `json:"transactionIndex"`
	BlockNumber       decimal.Decimal `json:"blockNumber"`
	BlockTimestamp    time.Time       `json:"blockTimestamp"`
	TransactionType   string          `json:"transactionType"`
	SubCategory       string          `json:"subCategory"`
	WalletAddress     string          `json:"walletAddress"`
	ToAddress         string          `json:"toAddress"`
	PairAddress       string          `json:"pairAddress"`
	PairLabel         string          `json:"pairLabel"`
	ExchangeName      string          `json:"exchangeName"`
	BaseToken         string          `json:"baseToken"`
	QuoteToken        string          `json:"quoteToken"`
	Bought            *RawToken       `json:"bought"`
	Sold              *RawToken       `json:"sold"`
	BaseQuotePrice    decimal.Decimal `json:"baseQuotePrice"`
	TotalValueUSD     decimal.Decimal `json:"totalValueUsd"`
	BaseTokenAmount   decimal.Decimal `json:"baseTokenAmount"`
	BaseTokenPriceUSD decimal.Decimal `json:"baseTokenPriceUsd"`
	Input             string          `json:"input"`
	GasUsed           decimal.Decimal `json:"receiptGasUsed"`
	GasPrice          decimal.Decimal `json:"gasPrice"`
}
