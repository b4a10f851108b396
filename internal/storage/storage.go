// File: internal/storage/storage.go
package storage

import (
	"context"
	"time"

	"github.com/smartdevs17/polymarket-trade-monitor/internal/models"
)

// Storage defines the interface for trade and position persistence.
// SaveTrade reports whether the row was actually inserted: the tx hash
// is unique, so a false return means the trade was seen before and must
// not be applied to the ledger again.
type Storage interface {
	// Connection management
	Connect() error
	Close() error
	Ping() error
	Migrate() error

	// Trade operations
	SaveTrade(ctx context.Context, trade *models.TradeRecord) (bool, error)
	HasTrade(ctx context.Context, txHash string) (bool, error)
	GetTrades(ctx context.Context, filter models.TradeFilter) ([]*models.TradeRecord, error)
	GetTradesByAddress(ctx context.Context, address string, limit int) ([]*models.TradeRecord, error)
	GetTradeCount(ctx context.Context, filter models.TradeFilter) (int64, error)
	GetHighestBlock(ctx context.Context) (uint64, error)

	// Position operations
	GetPosition(ctx context.Context, address, tokenID string) (*models.Position, error)
	UpsertPosition(ctx context.Context, position *models.Position) error
	GetPositions(ctx context.Context, filter models.PositionFilter) ([]*models.Position, error)
	GetActivePositions(ctx context.Context) ([]*models.Position, error)
	GetIncompletePositions(ctx context.Context) ([]*models.Position, error)
	MarkPositionBackfill(ctx context.Context, address, tokenID string, complete bool) error

	// Market metadata operations
	SaveMarket(ctx context.Context, market *models.Market) error
	GetMarketByToken(ctx context.Context, tokenID string) (*models.Market, error)
	SaveTokenOutcome(ctx context.Context, outcome *models.TokenOutcome) error

	// Copy order operations
	SaveCopyOrder(ctx context.Context, order *models.CopyOrder) error
	UpdateCopyOrderStatus(ctx context.Context, id, status string, orderID, errorMessage *string) error
	GetCopyOrders(ctx context.Context, status *string, limit int) ([]*models.CopyOrder, error)

	// Scan state operations
	GetState(key string) (string, error)
	SetState(key, value string) error
	GetLastScannedBlock() (uint64, error)
	SetLastScannedBlock(blockNumber uint64) error

	// Statistics and monitoring
	GetStorageStats() (*StorageStats, error)
}

// State keys used by the scanner and backfill.
const (
	StateLastScannedBlock = "last_scanned_block"
	StateBackfillDone     = "backfill_done"
)

// StorageStats provides storage statistics
type StorageStats struct {
	TotalTrades      int64      `json:"total_trades"`
	TotalPositions   int64      `json:"total_positions"`
	ActivePositions  int64      `json:"active_positions"`
	TotalMarkets     int64      `json:"total_markets"`
	TotalCopyOrders  int64      `json:"total_copy_orders"`
	TotalRealizedPnL float64    `json:"total_realized_pnl"`
	OldestTrade      *time.Time `json:"oldest_trade,omitempty"`
	LatestTrade      *time.Time `json:"latest_trade,omitempty"`
	DatabaseSize     int64      `json:"database_size_bytes"`
	LatestBlock      uint64     `json:"latest_scanned_block"`
}

// StorageConfig holds storage configuration
type StorageConfig struct {
	Type             string        `json:"type"`
	ConnectionString string        `json:"connection_string"`
	MaxConnections   int           `json:"max_connections"`
	MaxIdleTime      time.Duration `json:"max_idle_time"`
}
