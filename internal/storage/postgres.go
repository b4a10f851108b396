// File: internal/storage/postgres.go
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "github.com/lib/pq"
	"github.com/sirupsen/logrus"

	"github.com/smartdevs17/polymarket-trade-monitor/internal/metrics"
	"github.com/smartdevs17/polymarket-trade-monitor/internal/models"
	"github.com/smartdevs17/polymarket-trade-monitor/pkg/utils"
)

// PostgreSQLStorage implements Storage interface using PostgreSQL
type PostgreSQLStorage struct {
	db         *sql.DB
	config     *StorageConfig
	logger     *logrus.Logger
	migrations []*Migration

	metricsManager *metrics.Manager
}

// NewPostgreSQLStorage creates a new PostgreSQL storage instance
func NewPostgreSQLStorage(config *StorageConfig) *PostgreSQLStorage {
	return &PostgreSQLStorage{
		config:     config,
		logger:     utils.GetLogger(),
		migrations: GetPostgresMigrations(),
	}
}

// SetMetricsManager attaches a metrics manager for operation recording
func (p *PostgreSQLStorage) SetMetricsManager(m *metrics.Manager) {
	p.metricsManager = m
}

// Connect establishes database connection
func (p *PostgreSQLStorage) Connect() error {
	db, err := sql.Open("postgres", p.config.ConnectionString)
	if err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to open PostgreSQL database", err.Error())
	}

	// Configure connection pool
	db.SetMaxOpenConns(p.config.MaxConnections)
	db.SetMaxIdleConns(p.config.MaxConnections / 2)
	db.SetConnMaxLifetime(p.config.MaxIdleTime)

	if err := db.Ping(); err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to ping PostgreSQL database", err.Error())
	}

	p.db = db
	p.logger.Info("PostgreSQL database connected")

	return nil
}

// Close closes the database connection
func (p *PostgreSQLStorage) Close() error {
	if p.db != nil {
		err := p.db.Close()
		p.db = nil
		p.logger.Info("PostgreSQL database connection closed")
		return err
	}
	return nil
}

// Ping checks database connectivity
func (p *PostgreSQLStorage) Ping() error {
	if p.db == nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Database not connected", "")
	}
	return p.db.Ping()
}

// Migrate runs database migrations
func (p *PostgreSQLStorage) Migrate() error {
	if p.db == nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Database not connected", "")
	}

	p.logger.Info("Starting PostgreSQL database migrations")

	for _, migration := range p.migrations {
		p.logger.WithFields(logrus.Fields{
			"version":     migration.Version,
			"description": migration.Description,
		}).Info("Applying migration")

		if _, err := p.db.Exec(migration.SQL); err != nil {
			return utils.NewAppError(utils.ErrCodeDatabase,
				fmt.Sprintf("Migration %s failed", migration.Version),
				err.Error())
		}
	}

	p.logger.Info("PostgreSQL database migrations completed")
	return nil
}

func (p *PostgreSQLStorage) recordOperation(operation, table string, err error, start time.Time) {
	if p.metricsManager == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	p.metricsManager.GetPrometheusMetrics().RecordDatabaseOperation(operation, table, status, time.Since(start))
}

// SaveTrade inserts a trade, ignoring rows whose tx hash is already
// stored. The returned bool reports whether a new row was written.
func (p *PostgreSQLStorage) SaveTrade(ctx context.Context, trade *models.TradeRecord) (bool, error) {
	start := time.Now()

	query := `
		INSERT INTO trades
		(tx_hash, block_number, timestamp, address, role, counterparty, order_hash,
		 token_id, maker_asset_id, taker_asset_id, side, quantity, price, fee,
		 gas_used, gas_price, capture_delay_seconds)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
		ON CONFLICT (tx_hash) DO NOTHING
	`

	result, err := p.db.ExecContext(ctx, query,
		strings.ToLower(trade.TxHash), trade.BlockNumber, trade.Timestamp,
		strings.ToLower(trade.Address), trade.Role, strings.ToLower(trade.Counterparty),
		trade.OrderHash, trade.TokenID, trade.MakerAssetID, trade.TakerAssetID,
		trade.Side, trade.Quantity, trade.Price, trade.Fee,
		trade.GasUsed, trade.GasPrice, trade.CaptureDelay)

	p.recordOperation("insert", "trades", err, start)
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
func (p *PostgreSQLStorage) HasTrade(ctx context.Context, txHash string) (bool, error) {
	var one int
	err := p.db.QueryRowContext(ctx,
		"SELECT 1 FROM trades WHERE tx_hash = $1", strings.ToLower(txHash)).Scan(&one)
	if err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, utils.NewAppError(utils.ErrCodeDatabase, "Failed to check trade", err.Error())
	}
	return true, nil
}

func postgresPlaceholder(i int) string { return fmt.Sprintf("$%d", i) }

// GetTrades retrieves trades based on filter
func (p *PostgreSQLStorage) GetTrades(ctx context.Context, filter models.TradeFilter) ([]*models.TradeRecord, error) {
	clause, args := buildTradeWhere(filter, postgresPlaceholder)
	query := "SELECT " + tradeColumns + " FROM trades" + clause + " ORDER BY block_number DESC, id DESC"

	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}
	if filter.Offset > 0 {
		query += fmt.Sprintf(" OFFSET %d", filter.Offset)
	}

	rows, err := p.db.QueryContext(ctx, query, args...)
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
func (p *PostgreSQLStorage) GetTradesByAddress(ctx context.Context, address string, limit int) ([]*models.TradeRecord, error) {
	return p.GetTrades(ctx, models.TradeFilter{Address: &address, Limit: limit})
}

// GetTradeCount returns the number of trades matching the filter
func (p *PostgreSQLStorage) GetTradeCount(ctx context.Context, filter models.TradeFilter) (int64, error) {
	clause, args := buildTradeWhere(filter, postgresPlaceholder)

	var count int64
	err := p.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM trades"+clause, args...).Scan(&count)
	if err != nil {
		return 0, utils.NewAppError(utils.ErrCodeDatabase, "Failed to count trades", err.Error())
	}
	return count, nil
}

// GetHighestBlock returns the highest block number among stored trades
func (p *PostgreSQLStorage) GetHighestBlock(ctx context.Context) (uint64, error) {
	var block uint64
	err := p.db.QueryRowContext(ctx, "SELECT COALESCE(MAX(block_number), 0) FROM trades").Scan(&block)
	if err != nil {
		return 0, utils.NewAppError(utils.ErrCodeDatabase, "Failed to get highest block", err.Error())
	}
	return block, nil
}

// GetPosition retrieves one position by trader address and token id
func (p *PostgreSQLStorage) GetPosition(ctx context.Context, address, tokenID string) (*models.Position, error) {
	query := "SELECT " + positionColumns + " FROM positions WHERE address = $1 AND token_id = $2"

	pos, err := scanPosition(p.db.QueryRowContext(ctx, query, strings.ToLower(address), tokenID))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to get position", err.Error())
	}
	return pos, nil
}

// UpsertPosition inserts or updates a position keyed on (address, token_id)
func (p *PostgreSQLStorage) UpsertPosition(ctx context.Context, position *models.Position) error {
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
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, NOW())
		ON CONFLICT (address, token_id) DO UPDATE SET
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
			updated_at = NOW()
	`

	_, err := p.db.ExecContext(ctx, query,
		strings.ToLower(position.Address), position.TokenID, marketID,
		position.CurrentQuantity, position.TotalBought, position.TotalSold,
		position.AvgBuyPrice, position.TotalBuyValue, position.TotalSellValue,
		position.RealizedPnL, position.FirstTradeAt, position.LastTradeAt,
		position.Status, position.SettledAt, position.SettlementPrice,
		position.SettlementType, position.IsComplete, position.BackfillTried,
		position.BackfillDate)

	p.recordOperation("upsert", "positions", err, start)
	if err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to upsert position", err.Error())
	}
	return nil
}

// GetPositions retrieves positions based on filter
func (p *PostgreSQLStorage) GetPositions(ctx context.Context, filter models.PositionFilter) ([]*models.Position, error) {
	query := "SELECT " + positionColumns + " FROM positions WHERE 1=1"
	args := []interface{}{}
	argIndex := 1

	if filter.Address != nil {
		query += fmt.Sprintf(" AND address = $%d", argIndex)
		args = append(args, strings.ToLower(*filter.Address))
		argIndex++
	}
	if filter.TokenID != nil {
		query += fmt.Sprintf(" AND token_id = $%d", argIndex)
		args = append(args, *filter.TokenID)
		argIndex++
	}
	if filter.Status != nil {
		query += fmt.Sprintf(" AND status = $%d", argIndex)
		args = append(args, *filter.Status)
		argIndex++
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

	rows, err := p.db.QueryContext(ctx, query, args...)
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
func (p *PostgreSQLStorage) GetActivePositions(ctx context.Context) ([]*models.Position, error) {
	active := true
	return p.GetPositions(ctx, models.PositionFilter{Active: &active})
}

// GetIncompletePositions retrieves positions whose sells exceed recorded
// buys, skipping positions already resolved or attempted by backfill
func (p *PostgreSQLStorage) GetIncompletePositions(ctx context.Context) ([]*models.Position, error) {
	query := "SELECT " + positionColumns + ` FROM positions
		WHERE (total_sold > total_bought + 0.01 OR (total_bought = 0 AND total_sold > 0))
		  AND (is_complete IS NULL OR is_complete = FALSE)
		  AND backfill_attempted = FALSE
		ORDER BY first_trade_at ASC`

	rows, err := p.db.QueryContext(ctx, query)
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
func (p *PostgreSQLStorage) MarkPositionBackfill(ctx context.Context, address, tokenID string, complete bool) error {
	query := `
		UPDATE positions
		SET backfill_attempted = TRUE, is_complete = $1, backfill_date = NOW(), updated_at = NOW()
		WHERE address = $2 AND token_id = $3
	`
	_, err := p.db.ExecContext(ctx, query, complete, strings.ToLower(address), tokenID)
	if err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to mark position backfill", err.Error())
	}
	return nil
}

// SaveMarket saves market metadata
func (p *PostgreSQLStorage) SaveMarket(ctx context.Context, market *models.Market) error {
	start := time.Now()

	query := `
		INSERT INTO markets
		(id, question, slug, category, end_date, active, closed, volume, liquidity, fetched_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NOW())
		ON CONFLICT (id) DO UPDATE SET
			question = EXCLUDED.question,
			slug = EXCLUDED.slug,
			category = EXCLUDED.category,
			end_date = EXCLUDED.end_date,
			active = EXCLUDED.active,
			closed = EXCLUDED.closed,
			volume = EXCLUDED.volume,
			liquidity = EXCLUDED.liquidity,
			fetched_at = EXCLUDED.fetched_at,
			updated_at = NOW()
	`

	_, err := p.db.ExecContext(ctx, query,
		market.ID, market.Question, market.Slug, market.Category, market.EndDate,
		market.Active, market.Closed, market.Volume, market.Liquidity, market.FetchedAt)

	p.recordOperation("upsert", "markets", err, start)
	if err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to save market", err.Error())
	}
	return nil
}

// GetMarketByToken retrieves the market a CTF token belongs to
func (p *PostgreSQLStorage) GetMarketByToken(ctx context.Context, tokenID string) (*models.Market, error) {
	query := `
		SELECT m.id, m.question, m.slug, m.category, m.end_date, m.active, m.closed,
		       m.volume, m.liquidity, m.fetched_at, m.updated_at
		FROM markets m
		JOIN token_outcomes t ON t.market_id = m.id
		WHERE t.token_id = $1
	`

	var market models.Market
	var slug, category sql.NullString
	var endDate sql.NullTime

	err := p.db.QueryRowContext(ctx, query, tokenID).Scan(
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
func (p *PostgreSQLStorage) SaveTokenOutcome(ctx context.Context, outcome *models.TokenOutcome) error {
	query := `
		INSERT INTO token_outcomes (token_id, market_id, outcome, price, updated_at)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (token_id) DO UPDATE SET
			market_id = EXCLUDED.market_id,
			outcome = EXCLUDED.outcome,
			price = EXCLUDED.price,
			updated_at = NOW()
	`
	_, err := p.db.ExecContext(ctx, query,
		outcome.TokenID, outcome.MarketID, outcome.Outcome, outcome.Price)
	if err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to save token outcome", err.Error())
	}
	return nil
}

// SaveCopyOrder saves a copy order record
func (p *PostgreSQLStorage) SaveCopyOrder(ctx context.Context, order *models.CopyOrder) error {
	start := time.Now()

	query := `
		INSERT INTO copy_orders
		(id, original_tx_hash, address, token_id, side, quantity, price, order_id, status, error_message)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	_, err := p.db.ExecContext(ctx, query,
		order.ID, strings.ToLower(order.OriginalTxHash), strings.ToLower(order.Address),
		order.TokenID, order.Side, order.Quantity, order.Price,
		order.OrderID, order.Status, order.ErrorMessage)

	p.recordOperation("insert", "copy_orders", err, start)
	if err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to save copy order", err.Error())
	}
	return nil
}

// UpdateCopyOrderStatus updates a copy order's status and outcome fields
func (p *PostgreSQLStorage) UpdateCopyOrderStatus(ctx context.Context, id, status string, orderID, errorMessage *string) error {
	query := "UPDATE copy_orders SET status = $1"
	args := []interface{}{status}
	argIndex := 2

	if orderID != nil {
		query += fmt.Sprintf(", order_id = $%d", argIndex)
		args = append(args, *orderID)
		argIndex++
	}
	if errorMessage != nil {
		query += fmt.Sprintf(", error_message = $%d", argIndex)
		args = append(args, *errorMessage)
		argIndex++
	}
	if status == models.CopyOrderExecuted {
		query += ", executed_at = NOW()"
	}

	query += fmt.Sprintf(" WHERE id = $%d", argIndex)
	args = append(args, id)

	_, err := p.db.ExecContext(ctx, query, args...)
	if err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to update copy order", err.Error())
	}
	return nil
}

// GetCopyOrders retrieves copy orders, optionally filtered by status
func (p *PostgreSQLStorage) GetCopyOrders(ctx context.Context, status *string, limit int) ([]*models.CopyOrder, error) {
	query := `
		SELECT id, original_tx_hash, address, token_id, side, quantity, price,
		       order_id, status, error_message, created_at, executed_at
		FROM copy_orders WHERE 1=1
	`
	args := []interface{}{}

	if status != nil {
		query += " AND status = $1"
		args = append(args, *status)
	}

	query += " ORDER BY created_at DESC"
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}

	rows, err := p.db.QueryContext(ctx, query, args...)
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
func (p *PostgreSQLStorage) GetState(key string) (string, error) {
	var value string
	err := p.db.QueryRow("SELECT value FROM system_state WHERE key = $1", key).Scan(&value)
	if err != nil {
		if err == sql.ErrNoRows {
			return "", nil
		}
		return "", utils.NewAppError(utils.ErrCodeDatabase, "Failed to get state", err.Error())
	}
	return value, nil
}

// SetState stores a system state value by key
func (p *PostgreSQLStorage) SetState(key, value string) error {
	query := `
		INSERT INTO system_state (key, value, updated_at) VALUES ($1, $2, NOW())
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = NOW()
	`
	_, err := p.db.Exec(query, key, value)
	if err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to set state", err.Error())
	}
	return nil
}

// GetLastScannedBlock returns the persisted scan cursor
func (p *PostgreSQLStorage) GetLastScannedBlock() (uint64, error) {
	value, err := p.GetState(StateLastScannedBlock)
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
func (p *PostgreSQLStorage) SetLastScannedBlock(blockNumber uint64) error {
	return p.SetState(StateLastScannedBlock, strconv.FormatUint(blockNumber, 10))
}

// GetStorageStats returns storage statistics
func (p *PostgreSQLStorage) GetStorageStats() (*StorageStats, error) {
	stats := &StorageStats{}

	if err := p.db.QueryRow("SELECT COUNT(*) FROM trades").Scan(&stats.TotalTrades); err != nil {
		return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to count trades", err.Error())
	}
	if err := p.db.QueryRow("SELECT COUNT(*) FROM positions").Scan(&stats.TotalPositions); err != nil {
		return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to count positions", err.Error())
	}
	if err := p.db.QueryRow("SELECT COUNT(*) FROM positions WHERE status = 'active'").Scan(&stats.ActivePositions); err != nil {
		return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to count active positions", err.Error())
	}
	if err := p.db.QueryRow("SELECT COUNT(*) FROM markets").Scan(&stats.TotalMarkets); err != nil {
		return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to count markets", err.Error())
	}
	if err := p.db.QueryRow("SELECT COUNT(*) FROM copy_orders").Scan(&stats.TotalCopyOrders); err != nil {
		return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to count copy orders", err.Error())
	}
	if err := p.db.QueryRow("SELECT COALESCE(SUM(realized_pnl), 0) FROM positions").Scan(&stats.TotalRealizedPnL); err != nil {
		return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to sum realized pnl", err.Error())
	}

	var oldest, latest sql.NullInt64
	if err := p.db.QueryRow("SELECT MIN(timestamp), MAX(timestamp) FROM trades").Scan(&oldest, &latest); err == nil {
		if oldest.Valid {
			t := time.Unix(oldest.Int64, 0).UTC()
			stats.OldestTrade = &t
		}
		if latest.Valid {
			t := time.Unix(latest.Int64, 0).UTC()
			stats.LatestTrade = &t
		}
	}

	if err := p.db.QueryRow("SELECT pg_database_size(current_database())").Scan(&stats.DatabaseSize); err != nil {
		p.logger.WithError(err).Debug("Failed to read database size")
	}

	if block, err := p.GetLastScannedBlock(); err == nil {
		stats.LatestBlock = block
	}

	return stats, nil
}
