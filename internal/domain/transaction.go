package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// TxKind classifies what a transaction did from the trader's point of view.
type TxKind string

const (
	KindBuy             TxKind = "buy"
	KindSell            TxKind = "sell"
	KindAddLiquidity    TxKind = "add_liquidity"
	KindRemoveLiquidity TxKind = "remove_liquidity"
	KindFlashLoan       TxKind = "flash_loan"
	KindTransfer        TxKind = "transfer"
)

// IsTrade reports whether the kind is a swap leg.
func (k TxKind) IsTrade() bool {
	return k == KindBuy || k == KindSell
}

// Opposite returns the other swap direction, or the kind itself for non-trades.
func (k TxKind) Opposite() TxKind {
	switch k {
	case KindBuy:
		return KindSell
	case KindSell:
		return KindBuy
	default:
		return k
	}
}

// PositionCategory is the provider's tag describing how a trade changed the wallet position.
type PositionCategory string

const (
	CategoryNewPosition  PositionCategory = "new_position"
	CategoryAccumulation PositionCategory = "accumulation"
	CategoryPartialSell  PositionCategory = "partial_sell"
	CategorySellAll      PositionCategory = "sell_all"
	CategoryUnknown      PositionCategory = "unknown"
)

// Transaction is one canonical on-chain transfer, swap or call inside an analysis window.
type Transaction struct {
	Hash            string           `json:"hash"`
	BlockNumber     uint64           `json:"block_number"`
	TxIndex         uint64           `json:"tx_index"`
	Timestamp       time.Time        `json:"timestamp"`
	FromAddress     string           `json:"from_address"`
	ToAddress       string           `json:"to_address"`
	TokenAddress    string           `json:"token_address"`
	TokenSymbol     string           `json:"token_symbol"`
	Amount          decimal.Decimal  `json:"amount"`
	USDValue        decimal.Decimal  `json:"usd_value"`
	MethodSignature string           `json:"method_signature,omitempty"`
	GasUsed         uint64           `json:"gas_used"`
	GasPrice        decimal.Decimal  `json:"gas_price"`
	Kind            TxKind           `json:"kind"`
	PoolAddress     string           `json:"pool_address,omitempty"`
	PoolLabel       string           `json:"pool_label,omitempty"`
	PriceUSD        decimal.Decimal  `json:"price_usd"`
	Category        PositionCategory `json:"category"`
}

// Before orders transactions by block, then by position inside the block.
func (t Transaction) Before(other Transaction) bool {
	if t.BlockNumber != other.BlockNumber {
		return t.BlockNumber < other.BlockNumber
	}
	if t.TxIndex != other.TxIndex {
		return t.TxIndex < other.TxIndex
	}
	return t.Hash < other.Hash
}

// GasCostWei returns gas_used * gas_price.
func (t Transaction) GasCostWei() decimal.Decimal {
	return t.GasPrice.Mul(decimal.NewFromInt(int64(t.GasUsed)))
}
