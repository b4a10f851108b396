package models

import (
	"time"
)

// Market is Gamma API metadata for one Polymarket market, cached locally
// so positions and trades can be labeled without a network round trip.
type Market struct {
	ID        string     `json:"id" db:"id"`
	Question  string     `json:"question" db:"question"`
	Slug      string     `json:"slug" db:"slug"`
	Category  string     `json:"category,omitempty" db:"category"`
	EndDate   *time.Time `json:"end_date,omitempty" db:"end_date"`
	Active    bool       `json:"active" db:"active"`
	Closed    bool       `json:"closed" db:"closed"`
	Volume    float64    `json:"volume" db:"volume"`
	Liquidity float64    `json:"liquidity" db:"liquidity"`
	FetchedAt time.Time  `json:"fetched_at" db:"fetched_at"`
	UpdatedAt time.Time  `json:"updated_at" db:"updated_at"`
}

// TokenOutcome maps one CTF token id to its outcome label within a market.
// Token ids arrive from the chain in hex and from Gamma in decimal; the
// hex form is stored so the mapping joins against trade rows directly.
type TokenOutcome struct {
	TokenID   string    `json:"token_id" db:"token_id"`
	MarketID  string    `json:"market_id" db:"market_id"`
	Outcome   string    `json:"outcome" db:"outcome"`
	Price     float64   `json:"price" db:"price"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}
