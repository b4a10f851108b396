package models

import (
	"time"
)

// Position lifecycle states.
const (
	PositionActive      = "active"
	PositionClosed      = "closed"
	PositionSettledWin  = "settled_win"
	PositionSettledLoss = "settled_loss"
)

// Settlement classifications attached when a closing sell looks like a
// market resolution payout rather than an ordinary exit.
const (
	SettlementWin  = "win"
	SettlementLoss = "loss"
)

// Position is the running ledger state for one (trader, outcome token)
// pair. Quantities are outcome tokens, prices and values are USDC.
// RealizedPnL accrues on sells against the average buy price and is
// never recomputed retroactively; replaying the same trade twice would
// corrupt it, which is why trade application is gated on first-time
// persistence.
type Position struct {
	ID              int64      `json:"id" db:"id"`
	Address         string     `json:"address" db:"address"`
	TokenID         string     `json:"token_id" db:"token_id"`
	MarketID        string     `json:"market_id,omitempty" db:"market_id"`
	CurrentQuantity float64    `json:"current_quantity" db:"current_quantity"`
	TotalBought     float64    `json:"total_bought" db:"total_bought"`
	TotalSold       float64    `json:"total_sold" db:"total_sold"`
	AvgBuyPrice     float64    `json:"avg_buy_price" db:"avg_buy_price"`
	TotalBuyValue   float64    `json:"total_buy_value" db:"total_buy_value"`
	TotalSellValue  float64    `json:"total_sell_value" db:"total_sell_value"`
	RealizedPnL     float64    `json:"realized_pnl" db:"realized_pnl"`
	FirstTradeAt    time.Time  `json:"first_trade_at" db:"first_trade_at"`
	LastTradeAt     time.Time  `json:"last_trade_at" db:"last_trade_at"`
	Status          string     `json:"status" db:"status"`
	SettledAt       *time.Time `json:"settled_at,omitempty" db:"settled_at"`
	SettlementPrice *float64   `json:"settlement_price,omitempty" db:"settlement_price"`
	SettlementType  *string    `json:"settlement_type,omitempty" db:"settlement_type"`
	IsComplete      *bool      `json:"is_complete,omitempty" db:"is_complete"`
	BackfillTried   bool       `json:"backfill_attempted" db:"backfill_attempted"`
	BackfillDate    *time.Time `json:"backfill_date,omitempty" db:"backfill_date"`
	CreatedAt       time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at" db:"updated_at"`
}

// IsOpen reports whether the position still holds inventory.
func (p *Position) IsOpen() bool {
	return p.Status == PositionActive
}

// IsSettled reports whether the position ended in a market resolution.
func (p *Position) IsSettled() bool {
	return p.Status == PositionSettledWin || p.Status == PositionSettledLoss
}

// HasMissingBuys reports whether the sell totals cannot be explained by
// the recorded buys, the signal that earlier history predates monitoring.
func (p *Position) HasMissingBuys() bool {
	if p.TotalSold > p.TotalBought+0.01 {
		return true
	}
	return p.TotalBought == 0 && p.TotalSold > 0
}

// PositionFilter for querying the position ledger
type PositionFilter struct {
	Address *string `json:"address,omitempty"`
	TokenID *string `json:"token_id,omitempty"`
	Status  *string `json:"status,omitempty"`
	Active  *bool   `json:"active,omitempty"`
	Limit   int     `json:"limit,omitempty"`
	Offset  int     `json:"offset,omitempty"`
}
