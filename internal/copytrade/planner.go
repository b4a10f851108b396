// File: internal/copytrade/planner.go
package copytrade

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/smartdevs17/polymarket-trade-monitor/internal/config"
	"github.com/smartdevs17/polymarket-trade-monitor/internal/models"
	"github.com/smartdevs17/polymarket-trade-monitor/internal/storage"
	"github.com/smartdevs17/polymarket-trade-monitor/pkg/utils"
)

// Exchange-side order floors. The CLOB rejects orders under five shares
// or under one dollar of notional, so any intent below these would be
// unfillable by the executor.
const (
	MinOrderShares   = 5.0
	MinOrderNotional = 1.0

	// MaxCopyAge is the oldest capture delay still worth mirroring. A
	// fill seen later than this has almost certainly moved the book.
	MaxCopyAge = 5 * time.Minute
)

// Planner turns monitored fills into copy-order intents. It sizes and
// records the intent rows; submitting them to an order book is the
// external executor's job.
type Planner struct {
	storage storage.Storage
	config  *config.CopyTradeConfig
	logger  *logrus.Logger
}

// NewPlanner creates a copy-order planner backed by the given storage.
func NewPlanner(store storage.Storage, cfg *config.CopyTradeConfig) *Planner {
	return &Planner{
		storage: store,
		config:  cfg,
		logger:  utils.GetLogger(),
	}
}

// PlanTrade records the intent to mirror a monitored trade. Stale or
// unpriced fills produce a skipped row with the reason; everything else
// produces a pending row sized by the configured factor and floors.
// Returns nil without error when copy trading is disabled.
func (p *Planner) PlanTrade(ctx context.Context, trade *models.TradeRecord) (*models.CopyOrder, error) {
	if p.config == nil || !p.config.Enabled {
		return nil, nil
	}
	if trade.Side != models.SideBuy && trade.Side != models.SideSell {
		return nil, nil
	}

	order := &models.CopyOrder{
		ID:             uuid.New().String(),
		OriginalTxHash: trade.TxHash,
		Address:        trade.Address,
		TokenID:        trade.TokenID,
		Side:           trade.Side,
		Status:         models.CopyOrderPending,
		CreatedAt:      time.Now().UTC(),
	}

	if trade.Price == nil {
		return p.skip(ctx, order, "original fill has no price")
	}
	order.Price = *trade.Price

	if age := time.Duration(trade.CaptureDelay) * time.Second; age > MaxCopyAge {
		return p.skip(ctx, order, fmt.Sprintf("fill captured %s after block, too stale to mirror", age))
	}

	quantity, reason := p.sizeOrder(trade.Quantity, order.Price)
	if reason != "" {
		return p.skip(ctx, order, reason)
	}
	order.Quantity = quantity

	if err := p.storage.SaveCopyOrder(ctx, order); err != nil {
		return nil, err
	}

	p.logger.WithFields(logrus.Fields{
		"order_id": order.ID,
		"tx_hash":  trade.TxHash,
		"token_id": trade.TokenID,
		"side":     order.Side,
		"quantity": order.Quantity,
		"price":    order.Price,
		"notional": order.Quantity * order.Price,
	}).Info("Copy order planned")

	return order, nil
}

// sizeOrder scales the original quantity and lifts it over the exchange
// floors. Shares lifted for the notional floor round up whole, matching
// how the book quotes size. Returns a non-empty reason when no quantity
// can satisfy both the floors and the notional cap.
func (p *Planner) sizeOrder(originalQty, price float64) (float64, string) {
	factor := p.config.SizeFactor
	if factor <= 0 {
		factor = 1.0
	}

	quantity := originalQty * factor
	if quantity < MinOrderShares {
		quantity = MinOrderShares
	}
	if quantity*price < MinOrderNotional {
		quantity = math.Ceil(MinOrderNotional / price)
	}

	if p.config.MaxNotional > 0 && quantity*price > p.config.MaxNotional {
		quantity = p.config.MaxNotional / price
		if quantity < MinOrderShares || quantity*price < MinOrderNotional {
			return 0, fmt.Sprintf("notional cap %.2f is below the minimum order at price %.4f", p.config.MaxNotional, price)
		}
	}

	return quantity, ""
}

// skip records the intent with a skipped status and the reason it was
// not sized. Skip rows keep the audit trail complete without handing the
// executor anything unfillable.
func (p *Planner) skip(ctx context.Context, order *models.CopyOrder, reason string) (*models.CopyOrder, error) {
	order.Status = models.CopyOrderSkipped
	order.ErrorMessage = &reason

	if err := p.storage.SaveCopyOrder(ctx, order); err != nil {
		return nil, err
	}

	p.logger.WithFields(logrus.Fields{
		"tx_hash":  order.OriginalTxHash,
		"token_id": order.TokenID,
		"side":     order.Side,
		"reason":   reason,
	}).Debug("Copy order skipped")

	return order, nil
}
