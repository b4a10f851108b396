// File: internal/ledger/ledger.go
package ledger

import (
	"context"
	"math"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/smartdevs17/polymarket-trade-monitor/internal/config"
	"github.com/smartdevs17/polymarket-trade-monitor/internal/metrics"
	"github.com/smartdevs17/polymarket-trade-monitor/internal/models"
	"github.com/smartdevs17/polymarket-trade-monitor/internal/storage"
	"github.com/smartdevs17/polymarket-trade-monitor/pkg/utils"
)

// Ledger maintains per-(trader, token) positions with cost-basis
// accounting. Application is not commutative and not idempotent, so the
// unique tx_hash insert is the gate: Record only applies a trade the
// first time its transaction hash is persisted, which holds across
// restarts and across live/backfill overlap.
type Ledger struct {
	storage        storage.Storage
	config         *config.LedgerConfig
	logger         *logrus.Logger
	validator      *TradeValidator
	metricsManager *metrics.Manager
}

// Settlement describes a detected market resolution payout.
type Settlement struct {
	Type   string  `json:"type"`
	Price  float64 `json:"price"`
	Status string  `json:"status"`
}

// NewLedger creates a new position ledger
func NewLedger(store storage.Storage, cfg *config.LedgerConfig) *Ledger {
	return &Ledger{
		storage:   store,
		config:    cfg,
		logger:    utils.GetLogger(),
		validator: NewTradeValidator(),
	}
}

// SetMetricsManager wires the metrics manager.
func (l *Ledger) SetMetricsManager(mm *metrics.Manager) {
	l.metricsManager = mm
}

// Validate screens a trade and returns an error describing every failed
// check, nil when the trade is applicable.
func (l *Ledger) Validate(trade *models.TradeRecord) error {
	result := l.validator.Validate(trade)
	if !result.Valid {
		return utils.NewAppError(utils.ErrCodeValidation, "Trade validation failed", result.ErrorMessages())
	}
	return nil
}

// Record validates, persists and applies one trade. It returns true only
// when the trade was newly persisted and its position updated; a trade
// whose transaction hash is already in storage is a no-op.
func (l *Ledger) Record(ctx context.Context, trade *models.TradeRecord) (bool, error) {
	result := l.validator.Validate(trade)
	if !result.Valid {
		l.logger.WithFields(logrus.Fields{
			"tx_hash":  trade.TxHash,
			"side":     trade.Side,
			"price":    trade.Price,
			"quantity": trade.Quantity,
			"errors":   result.ErrorMessages(),
		}).Warn("Rejected implausible trade")
		if l.metricsManager != nil {
			l.metricsManager.GetPrometheusMetrics().RecordTradeRejected(result.Reason())
		}
		return false, nil
	}
	for _, warning := range result.Warnings {
		l.logger.WithField("tx_hash", trade.TxHash).Warn(warning)
	}

	inserted, err := l.storage.SaveTrade(ctx, trade)
	if err != nil {
		return false, err
	}
	if !inserted {
		l.logger.WithField("tx_hash", trade.TxHash).Debug("Trade already recorded, skipping ledger application")
		return false, nil
	}

	if _, err := l.Apply(ctx, trade); err != nil {
		// The trade row stays; positions can be rebuilt from trades.
		return false, err
	}
	return true, nil
}

// Apply folds one buy or sell into its position and persists the result.
// Callers must guarantee first-time application (see Record).
func (l *Ledger) Apply(ctx context.Context, trade *models.TradeRecord) (*models.Position, error) {
	if trade.Price == nil {
		return nil, utils.NewAppError(utils.ErrCodeValidation, "Trade has no price", trade.TxHash)
	}
	if !trade.IsBuy() && !trade.IsSell() {
		return nil, utils.NewAppError(utils.ErrCodeValidation, "Trade side is not ledger-applicable", trade.Side)
	}
	price := *trade.Price
	tradeTime := time.Unix(trade.Timestamp, 0).UTC()

	position, err := l.storage.GetPosition(ctx, trade.Address, trade.TokenID)
	if err != nil {
		return nil, err
	}
	if position == nil {
		position = &models.Position{
			Address:      trade.Address,
			TokenID:      trade.TokenID,
			FirstTradeAt: tradeTime,
			Status:       models.PositionActive,
		}
	}

	switch trade.Side {
	case models.SideBuy:
		position.CurrentQuantity += trade.Quantity
		position.TotalBought += trade.Quantity
		position.TotalBuyValue += trade.Quantity * price
		if position.TotalBought > 0 {
			position.AvgBuyPrice = position.TotalBuyValue / position.TotalBought
		}
	case models.SideSell:
		position.CurrentQuantity -= trade.Quantity
		position.TotalSold += trade.Quantity
		position.TotalSellValue += trade.Quantity * price
		// PnL needs a cost basis; sells against unseen buys accrue none
		// until backfill recovers the missing history.
		if position.AvgBuyPrice > 0 {
			position.RealizedPnL += trade.Quantity * (price - position.AvgBuyPrice)
		}
	}

	position.LastTradeAt = tradeTime

	// Float dust within the close epsilon snaps to exactly zero. A
	// genuinely negative quantity stays negative; it is the backfill
	// reconciler's signal, not dust.
	if math.Abs(position.CurrentQuantity) <= l.config.CloseEpsilon {
		position.CurrentQuantity = 0
		position.Status = models.PositionClosed
	} else {
		position.Status = models.PositionActive
	}

	if settlement := l.CheckSettlement(trade); settlement != nil {
		position.Status = settlement.Status
		position.SettledAt = &tradeTime
		position.SettlementPrice = &settlement.Price
		settlementType := settlement.Type
		position.SettlementType = &settlementType

		l.logger.WithFields(logrus.Fields{
			"address":          trade.Address,
			"token_id":         trade.TokenID,
			"settlement":       settlement.Type,
			"settlement_price": settlement.Price,
			"sell_price":       price,
		}).Info("Position settled")
		if l.metricsManager != nil {
			l.metricsManager.GetPrometheusMetrics().RecordSettlement(settlement.Type)
		}
	}

	if position.MarketID == "" {
		if market, err := l.storage.GetMarketByToken(ctx, trade.TokenID); err == nil && market != nil {
			position.MarketID = market.ID
		}
	}

	if err := l.storage.UpsertPosition(ctx, position); err != nil {
		return nil, err
	}

	if l.metricsManager != nil {
		l.metricsManager.GetPrometheusMetrics().RecordTradeApplied()
	}

	l.logger.WithFields(logrus.Fields{
		"address":      trade.Address,
		"token_id":     trade.TokenID,
		"side":         trade.Side,
		"quantity":     position.CurrentQuantity,
		"avg_buy":      position.AvgBuyPrice,
		"realized_pnl": position.RealizedPnL,
		"status":       position.Status,
	}).Debug("Position updated")

	return position, nil
}

// CheckSettlement classifies a sell near the probability bounds as a
// market resolution. This is a price heuristic, not an oracle read: a
// legitimately priced near-certain exit is indistinguishable from a
// settlement payout here.
func (l *Ledger) CheckSettlement(trade *models.TradeRecord) *Settlement {
	if !trade.IsSell() || trade.Price == nil {
		return nil
	}

	price := *trade.Price
	switch {
	case price >= l.config.SettleWinThreshold:
		return &Settlement{
			Type:   models.SettlementWin,
			Price:  1.0,
			Status: models.PositionSettledWin,
		}
	case price <= l.config.SettleLossThreshold:
		return &Settlement{
			Type:   models.SettlementLoss,
			Price:  0.0,
			Status: models.PositionSettledLoss,
		}
	}
	return nil
}
