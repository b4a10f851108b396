// File: internal/storage/sqlite.go
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"

	"github.com/smartdevs17/polymarket-trade-monitor/internal/metrics"
	"github.com/smartdevs17/polymarket-trade-monitor/internal/models"
	"github.com/smartdevs17/polymarket-trade-monitor/pkg/utils"
)

// SQLiteStorage implements Storage interface using SQLite
type SQLiteStorage struct {
	db         *sql.DB
	config     *StorageConfig
	logger     *logrus.Logger
	migrations []*Migration

	metricsManager *metrics.Manager
}

// NewSQLiteStorage creates a new SQLite storage instance
func NewSQLiteStorage(config *StorageConfig) *SQLiteStorage {
	return &SQLiteStorage{
		config:     config,
		logger:     utils.GetLogger(),
		migrations: GetSQLiteMigrations(),
	}
}

// SetMetricsManager attaches a metrics manager for operation recording
func (s *SQLiteStorage) SetMetricsManager(m *metrics.Manager) {
	s.metricsManager = m
}

// Connect establishes database connection
func (s *SQLiteStorage) Connect() error {
	// Ensure directory exists
	dir := filepath.Dir(s.config.ConnectionString)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return utils.NewAppError(utils.ErrCodeDatabase, "Failed to create database directory", err.Error())
		}
	}

	db, err := sql.Open("sqlite", s.config.ConnectionString)
	if err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to open SQLite database", err.Error())
	}

	// Configure connection pool
	db.SetMaxOpenConns(s.config.MaxConnections)
	db.SetMaxIdleConns(s.config.MaxConnections / 2)
	db.SetConnMaxLifetime(s.config.MaxIdleTime)

	// Enable WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to enable WAL mode", err.Error())
	}

	// Enable foreign keys
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to enable foreign keys", err.Error())
	}

	s.db = db
	s.logger.WithField("path", s.config.ConnectionString).Info("SQLite database connected")

	return nil
}

// Close closes the database connection
func (s *SQLiteStorage) Close() error {
	if s.db != nil {
		err := s.db.Close()
		s.db = nil
		s.logger.Info("SQLite database connection closed")
		return err
	}
	return nil
}

// Ping checks database connectivity
func (s *SQLiteStorage) Ping() error {
	if s.db == nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Database not connected", "")
	}
	return s.db.Ping()
}

// Migrate runs database migrations
func (s *SQLiteStorage) Migrate() error {
	if s.db == nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Database not connected", "")
	}

	s.logger.Info("Starting database migrations")

	for _, migration := range s.migrations {
		s.logger.WithFields(logrus.Fields{
			"version":     migration.Version,
			"description": migration.Description,
		}).Info("Applying migration")

		if _, err := s.db.Exec(migration.SQL); err != nil {
			return utils.NewAppError(utils.ErrCodeDatabase,
				fmt.Sprintf("Migration %s failed", migration.Version),
				err.Error())
		}
	}

	s.logger.Info("Database migrations completed")
	return nil
}

func (s *SQLiteStorage) recordOperation(operation, table string, err error, start time.Time) {
	if s.metricsManager == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	s.metricsManager.GetPrometheusMetrics().RecordDatabaseOperation(operation, table, status, time.Since(start))
}

// SaveTrade inserts a trade, ignoring rows whose tx hash is already
// stored. The returned bool reports whether a new row was written.
func (s *SQLiteStorage) SaveTrade(ctx context.Context, trade *models.TradeRecord) (bool, error) {
	start := time.Now()

	query := `
		INSERT OR IGNORE INTO trades
		(tx_hash, block_number, timestamp, address, role, counterparty, order_hash,
		 token_id, maker_asset_id, taker_asset_id, side, quantity, price, fee,
		 gas_used, gas_price, capture_delay_seconds)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	result, err := s.db.ExecContext(ctx, query,
		strings.ToLower(trade.TxHash), trade.BlockNumber, trade.Timestamp,
		strings.ToLower(trade.Address), trade.Role, strings.ToLower(trade.Counterparty),
		trade.OrderHash, trade.TokenID, trade.MakerAssetID, trade.TakerAssetID,
		trade.Side, trade.Quantity, trade.Price, trade.Fee,
		trade.GasUsed, trade.GasPrice, trade.CaptureDelay)

	s.recordOperation("insert", "trades", err, start)
	if err != nil {
		return false, utils.NewAppError(utils.ErrCodeDatabase, "Failed to save trade", err.Error())
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, utils.NewAppError(utils.ErrCodeDatabase, "Failed to read insert result", err.Error())
	}

	return rows > 0, nil
}

// HasTrade reports whether a trade with the given tx hash is stored
func (s *SQLiteStorage) HasTrade(ctx context.Context, txHash string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx,
		"SELECT 1 FROM trades WHERE tx_hash = ?", strings.ToLower(txHash)).Scan(&one)
	if err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, utils.NewAppError(utils.ErrCodeDatabase, "Failed to check trade", err.Error())
	}
	return true, nil
}

const tradeColumns = `id, tx_hash, block_number, timestamp, address, role, counterparty,
	order_hash, token_id, maker_asset_id, taker_asset_id, side, quantity, price, fee,
	gas_used, gas_price, capture_delay_seconds, created_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanTrade(row rowScanner) (*models.TradeRecord, error) {
	var trade models.TradeRecord
	var counterparty, orderHash, makerAsset, takerAsset, gasUsed, gasPrice sql.NullString
	var price sql.NullFloat64

	err := row.Scan(&trade.ID, &trade.TxHash, &trade.BlockNumber, &trade.Timestamp,
		&trade.Address, &trade.Role, &counterparty, &orderHash, &trade.TokenID,
		&makerAsset, &takerAsset, &trade.Side, &trade.Quantity, &price, &trade.Fee,
		&gasUsed, &gasPrice, &trade.CaptureDelay, &trade.CreatedAt)
	if err != nil {
		return nil, err
	}

	trade.Counterparty = counterparty.String
	trade.OrderHash = orderHash.String
	trade.MakerAssetID = makerAsset.String
	trade.TakerAssetID = takerAsset.String
	trade.GasUsed = gasUsed.String
	trade.GasPrice = gasPrice.String
	if price.Valid {
		trade.Price = &price.Float64
	}

	return &trade, nil
}

func buildTradeWhere(filter models.TradeFilter, placeholder func(int) string) (string, []interface{}) {
	clause := " WHERE 1=1"
	args := []interface{}{}
	argIndex := 1

	if filter.Address != nil {
		clause += fmt.Sprintf(" AND address = %s", placeholder(argIndex))
		args = append(args, strings.ToLower(*filter.Address))
		argIndex++
	}
	if filter.TokenID != nil {
		clause += fmt.Sprintf(" AND token_id = %s", placeholder(argIndex))
		args = append(args, *filter.TokenID)
		argIndex++
	}
	if filter.Side != nil {
		clause += fmt.Sprintf(" AND side = %s", placeholder(argIndex))
		args = append(args, *filter.Side)
		argIndex++
	}
	if filter.FromBlock != nil {
		clause += fmt.Sprintf(" AND block_number >= %s", placeholder(argIndex))
		args = append(args, *filter.FromBlock)
		argIndex++
	}
	if filter.ToBlock != nil {
		clause += fmt.Sprintf(" AND block_number <= %s", placeholder(argIndex))
		args = append(args, *filter.ToBlock)
		argIndex++
	}

	return clause, args
}

func sqlitePlaceholder(int) string { return "?" }

// GetTrades retrieves trades based on filter
func (s *SQLiteStorage) GetTrades(ctx context.Context, filter models.TradeFilter) ([]*models.TradeRecord, error) {
	clause, args := buildTradeWhere(filter, sqlitePlaceholder)
	query := "SELECT " + tradeColumns + " FROM trades" + clause + " ORDER BY block_number DESC, id DESC"

	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}
	if filter.Offset > 0 {
		query += fmt.Sprintf(" OFFSET %d", filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to query trades", err.Error())
	}
	defer rows.Close()

	var trades []*models.TradeRecord
	for rows.Next() {
		trade, err := scanTrade(rows)
		if err != nil {
			return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to scan trade", err.Error())
		}
		trades = append(trades, trade)
	}

	return trades, rows.Err()
}

// GetTradesByAddress retrieves the most recent trades for one trader
func (s *SQLiteStorage) GetTradesByAddress(ctx context.Context, address string, limit int) ([]*models.TradeRecord, error) {
	return s.GetTrades(ctx, models.TradeFilter{Address: &address, Limit: limit})
}

// GetTradeCount returns the number of trades matching the filter
func (s *SQLiteStorage) GetTradeCount(ctx context.Context, filter models.TradeFilter) (int64, error) {
	clause, args := buildTradeWhere(filter, sqlitePlaceholder)

	var count int64
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM trades"+clause, args...).Scan(&count)
	if err != nil {
		return 0, utils.NewAppError(utils.ErrCodeDatabase, "Failed to count trades", err.Error())
	}
	return count, nil
}

// GetHighestBlock returns the highest block number among stored trades
func (s *SQLiteStorage) GetHighestBlock(ctx context.Context) (uint64, error) {
	var block uint64
	err := s.db.QueryRowContext(ctx, "SELECT COALESCE(MAX(block_number), 0) FROM trades").Scan(&block)
	if err != nil {
		return 0, utils.NewAppError(utils.ErrCodeDatabase, "Failed to get highest block", err.Error())
	}
	return block, nil
}

const positionColumns = `id, address, token_id, market_id, current_quantity, total_bought,
	total_sold, avg_buy_price, total_buy_value, total_sell_value, realized_pnl,
	first_trade_at, last_trade_at, status, settled_at, settlement_price, settlement_type,
	is_complete, backfill_attempted, backfill_date, created_at, updated_at`

func scanPosition(row rowScanner) (*models.Position, error) {
	var pos models.Position
	var marketID, settlementType sql.NullString
	var settledAt, backfillDate sql.NullTime
	var settlementPrice sql.NullFloat64
	var isComplete sql.NullBool

	err := row.Scan(&pos.ID, &pos.Address, &pos.TokenID, &marketID, &pos.CurrentQuantity,
		&pos.TotalBought, &pos.TotalSold, &pos.AvgBuyPrice, &pos.TotalBuyValue,
		&pos.TotalSellValue, &pos.RealizedPnL, &pos.FirstTradeAt, &pos.LastTradeAt,
		&pos.Status, &settledAt, &settlementPrice, &settlementType, &isComplete,
		&pos.BackfillTried, &backfillDate, &pos.CreatedAt, &pos.UpdatedAt)
	if err != nil {
		return nil, err
	}

	pos.MarketID = marketID.String
	if settledAt.Valid {
		pos.SettledAt = &settledAt.Time
	}
	if settlementPrice.Valid {
		pos.SettlementPrice = &settlementPrice.Float64
	}
	if settlementType.Valid {
		pos.SettlementType = &settlementType.String
	}
	if isComplete.Valid {
		pos.IsComplete = &isComplete.Bool
	}
	if backfillDate.Valid {
		pos.BackfillDate = &backfillDate.Time
	}

	return &pos, nil
}

// GetPosition retrieves one position by trader address and token id
func (s *SQLiteStorage) GetPosition(ctx context.Context, address, tokenID string) (*models.Position, error) {
	query := "SELECT " + positionColumns + " FROM positions WHERE address = ? AND token_id = ?"

	pos, err := scanPosition(s.db.QueryRowContext(ctx, query, strings.ToLower(address), tokenID))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to get position", err.Error())
	}
	return pos, nil
}

// UpsertPosition inserts or updates a position keyed on (address, token_id)
func (s *SQLiteStorage) UpsertPosition(ctx context.Context, position *models.Position) error {
	start := time.Now()

	var marketID interface{}
	if position.MarketID != "" {
		marketID = position.MarketID
	}

	query := `
		INSERT INTO positions
		(address, token_id, market_id, current_quantity, total_bought, total_sold,
		 avg_buy_price, total_buy_value, total_sell_value, realized_pnl,
		 first_trade_at, last_trade_at, status, settled_at, settlement_price,
		 settlement_type, is_complete, backfill_attempted, backfill_date, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(address, token_id) DO UPDATE SET
			market_id = EXCLUDED.market_id,
			current_quantity = EXCLUDED.current_quantity,
			total_bought = EXCLUDED.total_bought,
			total_sold = EXCLUDED.total_sold,
			avg_buy_price = EXCLUDED.avg_buy_price,
			total_buy_value = EXCLUDED.total_buy_value,
			total_sell_value = EXCLUDED.total_sell_value,
			realized_pnl = EXCLUDED.realized_pnl,
			first_trade_at = EXCLUDED.first_trade_at,
			last_trade_at = EXCLUDED.last_trade_at,
			status = EXCLUDED.status,
			settled_at = EXCLUDED.settled_at,
			settlement_price = EXCLUDED.settlement_price,
			settlement_type = EXCLUDED.settlement_type,
			is_complete = EXCLUDED.is_complete,
			backfill_attempted = EXCLUDED.backfill_attempted,
			backfill_date = EXCLUDED.backfill_date,
			updated_at = CURRENT_TIMESTAMP
	`

	_, err := s.db.ExecContext(ctx, query,
		strings.ToLower(position.Address), position.TokenID, marketID,
		position.CurrentQuantity, position.TotalBought, position.TotalSold,
		position.AvgBuyPrice, position.TotalBuyValue, position.TotalSellValue,
		position.RealizedPnL, position.FirstTradeAt, position.LastTradeAt,
		position.Status, position.SettledAt, position.SettlementPrice,
		position.SettlementType, position.IsComplete, position.BackfillTried,
		position.BackfillDate)

	s.recordOperation("upsert", "positions", err, start)
	if err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to upsert position", err.Error())
	}
	return nil
}

// GetPositions retrieves positions based on filter
func (s *SQLiteStorage) GetPositions(ctx context.Context, filter models.PositionFilter) ([]*models.Position, error) {
	query := "SELECT " + positionColumns + " FROM positions WHERE 1=1"
	args := []interface{}{}

	if filter.Address != nil {
		query += " AND address = ?"
		args = append(args, strings.ToLower(*filter.Address))
	}
	if filter.TokenID != nil {
		query += " AND token_id = ?"
		args = append(args, *filter.TokenID)
	}
	if filter.Status != nil {
		query += " AND status = ?"
		args = append(args, *filter.Status)
	}
	if filter.Active != nil {
		if *filter.Active {
			query += " AND status = 'active'"
		} else {
			query += " AND status != 'active'"
		}
	}

	query += " ORDER BY last_trade_at DESC"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}
	if filter.Offset > 0 {
		query += fmt.Sprintf(" OFFSET %d", filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to query positions", err.Error())
	}
	defer rows.Close()

	var positions []*models.Position
	for rows.Next() {
		pos, err := scanPosition(rows)
		if err != nil {
			return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to scan position", err.Error())
		}
		positions = append(positions, pos)
	}

	return positions, rows.Err()
}

// GetActivePositions retrieves all positions still holding inventory
func (s *SQLiteStorage) GetActivePositions(ctx context.Context) ([]*models.Position, error) {
	active := true
	return s.GetPositions(ctx, models.PositionFilter{Active: &active})
}

// GetIncompletePositions retrieves positions whose sells exceed recorded
// buys, skipping positions already resolved or attempted by backfill
func (s *SQLiteStorage) GetIncompletePositions(ctx context.Context) ([]*models.Position, error) {
	query := "SELECT " + positionColumns + ` FROM positions
		WHERE (total_sold > total_bought + 0.01 OR (total_bought = 0 AND total_sold > 0))
		  AND (is_complete IS NULL OR is_complete = FALSE)
		  AND backfill_attempted = FALSE
		ORDER BY first_trade_at ASC`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to query incomplete positions", err.Error())
	}
	defer rows.Close()

	var positions []*models.Position
	for rows.Next() {
		pos, err := scanPosition(rows)
		if err != nil {
			return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to scan position", err.Error())
		}
		positions = append(positions, pos)
	}

	return positions, rows.Err()
}

// MarkPositionBackfill records a backfill attempt outcome for a position
func (s *SQLiteStorage) MarkPositionBackfill(ctx context.Context, address, tokenID string, complete bool) error {
	query := `
		UPDATE positions
		SET backfill_attempted = TRUE, is_complete = ?, backfill_date = CURRENT_TIMESTAMP,
		    updated_at = CURRENT_TIMESTAMP
		WHERE address = ? AND token_id = ?
	`
	_, err := s.db.ExecContext(ctx, query, complete, strings.ToLower(address), tokenID)
	if err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to mark position backfill", err.Error())
	}
	return nil
}

// SaveMarket saves market metadata
func (s *SQLiteStorage) SaveMarket(ctx context.Context, market *models.Market) error {
	start := time.Now()

	query := `
		INSERT OR REPLACE INTO markets
		(id, question, slug, category, end_date, active, closed, volume, liquidity, fetched_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
	`

	_, err := s.db.ExecContext(ctx, query,
		market.ID, market.Question, market.Slug, market.Category, market.EndDate,
		market.Active, market.Closed, market.Volume, market.Liquidity, market.FetchedAt)

	s.recordOperation("upsert", "markets", err, start)
	if err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to save market", err.Error())
	}
	return nil
}

// GetMarketByToken retrieves the market a CTF token belongs to
func (s *SQLiteStorage) GetMarketByToken(ctx context.Context, tokenID string) (*models.Market, error) {
	query := `
		SELECT m.id, m.question, m.slug, m.category, m.end_date, m.active, m.closed,
		       m.volume, m.liquidity, m.fetched_at, m.updated_at
		FROM markets m
		JOIN token_outcomes t ON t.market_id = m.id
		WHERE t.token_id = ?
	`

	var market models.Market
	var slug, category sql.NullString
	var endDate sql.NullTime

	err := s.db.QueryRowContext(ctx, query, tokenID).Scan(
		&market.ID, &market.Question, &slug, &category, &endDate,
		&market.Active, &market.Closed, &market.Volume, &market.Liquidity,
		&market.FetchedAt, &market.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to get market", err.Error())
	}

	market.Slug = slug.String
	market.Category = category.String
	if endDate.Valid {
		market.EndDate = &endDate.Time
	}

	return &market, nil
}

// SaveTokenOutcome saves a token to outcome mapping
func (s *SQLiteStorage) SaveTokenOutcome(ctx context.Context, outcome *models.TokenOutcome) error {
	query := `
		INSERT OR REPLACE INTO token_outcomes (token_id, market_id, outcome, price, updated_at)
		VALUES (?, ?, ?, ?, CURRENT_TIMESTAMP)
	`
	_, err := s.db.ExecContext(ctx, query,
		outcome.TokenID, outcome.MarketID, outcome.Outcome, outcome.Price)
	if err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to save token outcome", err.Error())
	}
	return nil
}

// SaveCopyOrder saves a copy order record
func (s *SQLiteStorage) SaveCopyOrder(ctx context.Context, order *models.CopyOrder) error {
	start := time.Now()

	query := `
		INSERT INTO copy_orders
		(id, original_tx_hash, address, token_id, side, quantity, price, order_id, status, error_message)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		order.ID, strings.ToLower(order.OriginalTxHash), strings.ToLower(order.Address),
		order.TokenID, order.Side, order.Quantity, order.Price,
		order.OrderID, order.Status, order.ErrorMessage)

	s.recordOperation("insert", "copy_orders", err, start)
	if err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to save copy order", err.Error())
	}
	return nil
}

// UpdateCopyOrderStatus updates a copy order's status and outcome fields
func (s *SQLiteStorage) UpdateCopyOrderStatus(ctx context.Context, id, status string, orderID, errorMessage *string) error {
	query := "UPDATE copy_orders SET status = ?"
	args := []interface{}{status}

	if orderID != nil {
		query += ", order_id = ?"
		args = append(args, *orderID)
	}
	if errorMessage != nil {
		query += ", error_message = ?"
		args = append(args, *errorMessage)
	}
	if status == models.CopyOrderExecuted {
		query += ", executed_at = CURRENT_TIMESTAMP"
	}

	query += " WHERE id = ?"
	args = append(args, id)

	_, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to update copy order", err.Error())
	}
	return nil
}

// GetCopyOrders retrieves copy orders, optionally filtered by status
func (s *SQLiteStorage) GetCopyOrders(ctx context.Context, status *string, limit int) ([]*models.CopyOrder, error) {
	query := `
		SELECT id, original_tx_hash, address, token_id, side, quantity, price,
		       order_id, status, error_message, created_at, executed_at
		FROM copy_orders WHERE 1=1
	`
	args := []interface{}{}

	if status != nil {
		query += " AND status = ?"
		args = append(args, *status)
	}

	query += " ORDER BY created_at DESC"
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to query copy orders", err.Error())
	}
	defer rows.Close()

	var orders []*models.CopyOrder
	for rows.Next() {
		var order models.CopyOrder
		var orderID, errorMessage sql.NullString
		var executedAt sql.NullTime

		err := rows.Scan(&order.ID, &order.OriginalTxHash, &order.Address, &order.TokenID,
			&order.Side, &order.Quantity, &order.Price, &orderID, &order.Status,
			&errorMessage, &order.CreatedAt, &executedAt)
		if err != nil {
			return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to scan copy order", err.Error())
		}

		if orderID.Valid {
			order.OrderID = &orderID.String
		}
		if errorMessage.Valid {
			order.ErrorMessage = &errorMessage.String
		}
		if executedAt.Valid {
			order.ExecutedAt = &executedAt.Time
		}

		orders = append(orders, &order)
	}

	return orders, rows.Err()
}

// GetState retrieves a system state value by key
func (s *SQLiteStorage) GetState(key string) (string, error) {
	var value string
	err := s.db.QueryRow("SELECT value FROM system_state WHERE key = ?", key).Scan(&value)
	if err != nil {
		if err == sql.ErrNoRows {
			return "", nil
		}
		return "", utils.NewAppError(utils.ErrCodeDatabase, "Failed to get state", err.Error())
	}
	return value, nil
}

// SetState stores a system state value by key
func (s *SQLiteStorage) SetState(key, value string) error {
	query := `
		INSERT INTO system_state (key, value, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(key) DO UPDATE SET value = EXCLUDED.value, updated_at = CURRENT_TIMESTAMP
	`
	_, err := s.db.Exec(query, key, value)
	if err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to set state", err.Error())
	}
	return nil
}

// GetLastScannedBlock returns the persisted scan cursor
func (s *SQLiteStorage) GetLastScannedBlock() (uint64, error) {
	value, err := s.GetState(StateLastScannedBlock)
	if err != nil {
		return 0, err
	}
	if value == "" {
		return 0, nil
	}

	block, err := strconv.ParseUint(value, 10, 64)
	if err != nil {
		return 0, utils.NewAppError(utils.ErrCodeDatabase, "Invalid scan cursor value", value)
	}
	return block, nil
}

// SetLastScannedBlock persists the scan cursor
func (s *SQLiteStorage) SetLastScannedBlock(blockNumber uint64) error {
	return s.SetState(StateLastScannedBlock, strconv.FormatUint(blockNumber, 10))
}

// GetStorageStats returns storage statistics
func (s *SQLiteStorage) GetStorageStats() (*StorageStats, error) {
	stats := &StorageStats{}

	if err := s.db.QueryRow("SELECT COUNT(*) FROM trades").Scan(&stats.TotalTrades); err != nil {
		return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to count trades", err.Error())
	}
	if err := s.db.QueryRow("SELECT COUNT(*) FROM positions").Scan(&stats.TotalPositions); err != nil {
		return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to count positions", err.Error())
	}
	if err := s.db.QueryRow("SELECT COUNT(*) FROM positions WHERE status = 'active'").Scan(&stats.ActivePositions); err != nil {
		return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to count active positions", err.Error())
	}
	if err := s.db.QueryRow("SELECT COUNT(*) FROM markets").Scan(&stats.TotalMarkets); err != nil {
		return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to count markets", err.Error())
	}
	if err := s.db.QueryRow("SELECT COUNT(*) FROM copy_orders").Scan(&stats.TotalCopyOrders); err != nil {
		return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to count copy orders", err.Error())
	}
	if err := s.db.QueryRow("SELECT COALESCE(SUM(realized_pnl), 0) FROM positions").Scan(&stats.TotalRealizedPnL); err != nil {
		return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to sum realized pnl", err.Error())
	}

	var oldest, latest sql.NullInt64
	if err := s.db.QueryRow("SELECT MIN(timestamp), MAX(timestamp) FROM trades").Scan(&oldest, &latest); err == nil {
		if oldest.Valid {
			t := time.Unix(oldest.Int64, 0).UTC()
			stats.OldestTrade = &t
		}
		if latest.Valid {
			t := time.Unix(latest.Int64, 0).UTC()
			stats.LatestTrade = &t
		}
	}

	var pageCount, pageSize int64
	if err := s.db.QueryRow("PRAGMA page_count").Scan(&pageCount); err == nil {
		if err := s.db.QueryRow("PRAGMA page_size").Scan(&pageSize); err == nil {
			stats.DatabaseSize = pageCount * pageSize
		}
	}

	if block, err := s.GetLastScannedBlock(); err == nil {
		stats.LatestBlock = block
	}

	return stats, nil
}
