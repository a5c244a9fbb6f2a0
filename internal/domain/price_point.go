package domain

import "time"

// PricePoint is one observation of a token price series.
type PricePoint struct {
	Timestamp   time.Time `json:"timestamp"`
	BlockNumber uint64    `json:"block_number,omitempty"`
	Price       float64   `json:"price"`
	VolumeUSD   float64   `json:"volume_usd"`
	Sellers     int       `json:"sellers,omitempty"`
	Wallet      string    `json:"wallet,omitempty"`
	TxHash      string    `json:"tx_hash,omitempty"`
}
