// File: internal/backfill/reconciler.go
package backfill

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/smartdevs17/polymarket-trade-monitor/internal/config"
	"github.com/smartdevs17/polymarket-trade-monitor/internal/connection"
	"github.com/smartdevs17/polymarket-trade-monitor/internal/metrics"
	"github.com/smartdevs17/polymarket-trade-monitor/internal/models"
	"github.com/smartdevs17/polymarket-trade-monitor/internal/monitor"
	"github.com/smartdevs17/polymarket-trade-monitor/internal/storage"
	"github.com/smartdevs17/polymarket-trade-monitor/pkg/utils"
)

// Polygon block-time constants. Backfill windows are estimated from
// timestamps, so these are approximations; the unique tx_hash column
// absorbs any overlap with already-recorded history.
const (
	blocksPerDay    = 43200
	secondsPerBlock = 2
)

// Reconciler repairs positions whose recorded sells exceed recorded
// buys by re-scanning the chain immediately before their first known
// trade. The search never reaches further back than the configured
// lookback; positions with older history are flagged incomplete and
// never retried.
type Reconciler struct {
	scanner *monitor.WindowScanner
	client  *connection.PolygonClient
	storage storage.Storage
	config  *config.BackfillConfig
	logger  *logrus.Logger

	metricsManager *metrics.Manager
}

// NewReconciler creates a reconciler that re-scans history through the
// given scanner, so recovered trades flow through the same decode,
// validate, and ledger path as live ones.
func NewReconciler(scanner *monitor.WindowScanner, client *connection.PolygonClient, store storage.Storage, cfg *config.BackfillConfig) *Reconciler {
	return &Reconciler{
		scanner: scanner,
		client:  client,
		storage: store,
		config:  cfg,
		logger:  utils.GetLogger(),
	}
}

// SetMetricsManager wires the metrics manager.
func (r *Reconciler) SetMetricsManager(mm *metrics.Manager) {
	r.metricsManager = mm
}

// FindIncomplete returns positions eligible for reconciliation: sells
// exceed buys, not already resolved, not already attempted.
func (r *Reconciler) FindIncomplete(ctx context.Context) ([]*models.Position, error) {
	return r.storage.GetIncompletePositions(ctx)
}

// Reconcile re-scans the lookback window that precedes the position's
// first recorded trade. Returns whether missing history was found and
// how many trades were recovered. A position whose first trade is
// already older than the lookback is flagged without a single chain
// query.
func (r *Reconciler) Reconcile(ctx context.Context, position *models.Position) (bool, int, error) {
	fields := logrus.Fields{
		"address":  position.Address,
		"token_id": position.TokenID,
	}

	sinceFirst := time.Since(position.FirstTradeAt)
	lookback := time.Duration(r.config.LookbackDays) * 24 * time.Hour

	if sinceFirst > lookback {
		if err := r.storage.MarkPositionBackfill(ctx, position.Address, position.TokenID, false); err != nil {
			return false, 0, err
		}
		r.logger.WithFields(fields).WithField("first_trade_age", sinceFirst.Round(time.Hour).String()).
			Info("Position history exceeds lookback bound, flagged incomplete")
		return false, 0, nil
	}

	head, err := r.client.BlockNumber(ctx)
	if err != nil {
		return false, 0, err
	}

	// Estimate the block of the first recorded trade from its age.
	blocksSinceFirst := uint64(sinceFirst.Seconds()) / secondsPerBlock
	firstTradeBlock := uint64(0)
	if blocksSinceFirst < head {
		firstTradeBlock = head - blocksSinceFirst
	}

	windowBlocks := uint64(r.config.LookbackDays) * blocksPerDay
	fromBlock := uint64(0)
	if firstTradeBlock > windowBlocks {
		fromBlock = firstTradeBlock - windowBlocks
	}
	toBlock := firstTradeBlock

	r.logger.WithFields(fields).WithFields(logrus.Fields{
		"from_block":   fromBlock,
		"to_block":     toBlock,
		"total_bought": position.TotalBought,
		"total_sold":   position.TotalSold,
	}).Info("Searching history for missing trades")

	batch := r.config.BatchSize
	if batch == 0 {
		batch = 100
	}
	if maxRange := r.client.MaxBlockRange(); batch > maxRange {
		batch = maxRange
	}

	tradesFound := 0
	for from := fromBlock; from <= toBlock; {
		to := from + batch - 1
		if to > toBlock {
			to = toBlock
		}

		found, err := r.scanner.ScanRange(ctx, from, to)
		if err != nil {
			if ctx.Err() != nil {
				return false, tradesFound, ctx.Err()
			}
			// A failed batch leaves a gap the incomplete flag still
			// covers; skip it rather than abort the whole position.
			r.logger.WithError(err).WithFields(logrus.Fields{
				"from_block": from,
				"to_block":   to,
			}).Warn("Backfill batch query failed, skipping range")
		} else {
			tradesFound += found
		}

		if to == toBlock {
			break
		}
		from = to + 1

		select {
		case <-ctx.Done():
			return false, tradesFound, ctx.Err()
		case <-time.After(r.config.BatchDelay):
		}
	}

	repaired := tradesFound > 0
	if err := r.storage.MarkPositionBackfill(ctx, position.Address, position.TokenID, repaired); err != nil {
		return repaired, tradesFound, err
	}

	r.logger.WithFields(fields).WithFields(logrus.Fields{
		"trades_found": tradesFound,
		"repaired":     repaired,
	}).Info("Position reconciliation finished")

	return repaired, tradesFound, nil
}

// Run reconciles every incomplete position sequentially. It is invoked
// at startup before live scanning begins, so repairs never race live
// ledger updates for the same position.
func (r *Reconciler) Run(ctx context.Context) error {
	if !r.config.Enabled {
		r.logger.Debug("Backfill disabled, skipping reconciliation")
		return nil
	}

	positions, err := r.FindIncomplete(ctx)
	if err != nil {
		return err
	}
	if len(positions) == 0 {
		r.logger.Info("No incomplete positions to reconcile")
		r.markCompleted()
		return nil
	}

	r.logger.WithField("count", len(positions)).Info("Reconciling incomplete positions")

	repairedCount := 0
	totalTrades := 0
	for i, position := range positions {
		start := time.Now()

		repaired, found, err := r.Reconcile(ctx, position)
		if err != nil {
			if ctx.Err() != nil {
				return err
			}
			r.recordRun("error", time.Since(start))
			r.logger.WithError(err).WithFields(logrus.Fields{
				"address":  position.Address,
				"token_id": position.TokenID,
			}).Warn("Position reconciliation failed")
			continue
		}

		status := "incomplete"
		if repaired {
			status = "repaired"
			repairedCount++
		}
		r.recordRun(status, time.Since(start))
		if found > 0 {
			r.recordRecovered(found)
		}
		totalTrades += found

		if i < len(positions)-1 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(r.config.PositionDelay):
			}
		}
	}

	r.logger.WithFields(logrus.Fields{
		"positions":        len(positions),
		"repaired":         repairedCount,
		"trades_recovered": totalTrades,
	}).Info("Backfill reconciliation complete")

	r.markCompleted()
	return nil
}

// markCompleted records when a reconciliation pass last finished, for
// the status command and operators.
func (r *Reconciler) markCompleted() {
	if err := r.storage.SetState(storage.StateBackfillDone, time.Now().UTC().Format(time.RFC3339)); err != nil {
		r.logger.WithError(err).Warn("Failed to record backfill completion time")
	}
}

func (r *Reconciler) recordRun(status string, duration time.Duration) {
	if r.metricsManager != nil {
		r.metricsManager.GetPrometheusMetrics().RecordBackfillRun(status, duration)
	}
}

func (r *Reconciler) recordRecovered(count int) {
	if r.metricsManager != nil {
		r.metricsManager.GetPrometheusMetrics().RecordBackfillTradesRecovered(count)
	}
}
