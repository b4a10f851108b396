package models

import (
	"time"
)

// Trade sides as they come out of the fill decoder.
const (
	SideBuy  = "buy"
	SideSell = "sell"
	SideSwap = "swap"
)

// Counterparty roles in a fill.
const (
	RoleMaker = "maker"
	RoleTaker = "taker"
)

// TradeRecord represents one decoded exchange fill attributed to a
// monitored trader. The transaction hash is the deduplication key: a
// record is persisted exactly once per hash, no matter how often live
// scanning or backfill revisits the block.
type TradeRecord struct {
	ID           int64     `json:"id" db:"id"`
	TxHash       string    `json:"tx_hash" db:"tx_hash"`
	BlockNumber  uint64    `json:"block_number" db:"block_number"`
	Timestamp    int64     `json:"timestamp" db:"timestamp"`
	Address      string    `json:"address" db:"address"`
	Role         string    `json:"role" db:"role"`
	Counterparty string    `json:"counterparty" db:"counterparty"`
	OrderHash    string    `json:"order_hash" db:"order_hash"`
	TokenID      string    `json:"token_id" db:"token_id"`
	MakerAssetID string    `json:"maker_asset_id" db:"maker_asset_id"`
	TakerAssetID string    `json:"taker_asset_id" db:"taker_asset_id"`
	Side         string    `json:"side" db:"side"`
	Quantity     float64   `json:"quantity" db:"quantity"`
	Price        *float64  `json:"price,omitempty" db:"price"`
	Fee          float64   `json:"fee" db:"fee"`
	GasUsed      string    `json:"gas_used" db:"gas_used"`
	GasPrice     string    `json:"gas_price" db:"gas_price"`
	CaptureDelay int64     `json:"capture_delay_seconds" db:"capture_delay_seconds"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
}

// PricedValue returns the quote-currency notional of the fill, zero when
// the fill carries no price (swaps).
func (t *TradeRecord) PricedValue() float64 {
	if t.Price == nil {
		return 0
	}
	return t.Quantity * *t.Price
}

// IsBuy reports whether the monitored trader acquired the outcome token.
func (t *TradeRecord) IsBuy() bool {
	return t.Side == SideBuy
}

// IsSell reports whether the monitored trader disposed of the outcome token.
func (t *TradeRecord) IsSell() bool {
	return t.Side == SideSell
}

// TradeFilter for querying persisted trades
type TradeFilter struct {
	Address   *string `json:"address,omitempty"`
	TokenID   *string `json:"token_id,omitempty"`
	Side      *string `json:"side,omitempty"`
	FromBlock *uint64 `json:"from_block,omitempty"`
	ToBlock   *uint64 `json:"to_block,omitempty"`
	Limit     int     `json:"limit,omitempty"`
	Offset    int     `json:"offset,omitempty"`
}
