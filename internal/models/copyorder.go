package models

import (
	"time"
)

// Copy order lifecycle states.
const (
	CopyOrderPending  = "pending"
	CopyOrderExecuted = "executed"
	CopyOrderFailed   = "failed"
	CopyOrderSkipped  = "skipped"
)

// CopyOrder records the intent to mirror a monitored trader's fill.
// Execution against an order book happens outside this service; the row
// tracks the handoff and its eventual outcome.
type CopyOrder struct {
	ID             string     `json:"id" db:"id"`
	OriginalTxHash string     `json:"original_tx_hash" db:"original_tx_hash"`
	Address        string     `json:"address" db:"address"`
	TokenID        string     `json:"token_id" db:"token_id"`
	Side           string     `json:"side" db:"side"`
	Quantity       float64    `json:"quantity" db:"quantity"`
	Price          float64    `json:"price" db:"price"`
	OrderID        *string    `json:"order_id,omitempty" db:"order_id"`
	Status         string     `json:"status" db:"status"`
	ErrorMessage   *string    `json:"error_message,omitempty" db:"error_message"`
	CreatedAt      time.Time  `json:"created_at" db:"created_at"`
	ExecutedAt     *time.Time `json:"executed_at,omitempty" db:"executed_at"`
}
