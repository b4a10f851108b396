// File: internal/monitor/scanner.go
package monitor

import (
	"context"
	"math/big"
	"strconv"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/sirupsen/logrus"
	"github.com/smartdevs17/polymarket-trade-monitor/internal/config"
	"github.com/smartdevs17/polymarket-trade-monitor/internal/connection"
	"github.com/smartdevs17/polymarket-trade-monitor/internal/copytrade"
	"github.com/smartdevs17/polymarket-trade-monitor/internal/ledger"
	"github.com/smartdevs17/polymarket-trade-monitor/internal/metadata"
	"github.com/smartdevs17/polymarket-trade-monitor/internal/metrics"
	"github.com/smartdevs17/polymarket-trade-monitor/internal/models"
	"github.com/smartdevs17/polymarket-trade-monitor/pkg/utils"
)

// WindowScanner sweeps one block window for OrderFilled logs involving
// monitored traders. A window costs exactly two log queries no matter how
// many traders are monitored: one sweep filtered client-side on the maker
// topic, one on the taker topic. Callers bound the window to the active
// endpoint's maximum block range.
type WindowScanner struct {
	client  *connection.PolygonClient
	ledger  *ledger.Ledger
	decoder *EventDecoder
	filter  *AddressFilter
	config  *config.MonitorConfig
	logger  *logrus.Logger

	metadata       *metadata.Manager
	planner        *copytrade.Planner
	metricsManager *metrics.Manager

	// Transactions already handled in this process. The durable dedup
	// boundary is the unique tx_hash column; this set just saves the
	// transaction and receipt fetches on revisited windows.
	mu        sync.Mutex
	processed map[string]struct{}
}

// NewWindowScanner creates a scanner over the given trader filter.
func NewWindowScanner(client *connection.PolygonClient, ldgr *ledger.Ledger, filter *AddressFilter, cfg *config.MonitorConfig) *WindowScanner {
	return &WindowScanner{
		client:    client,
		ledger:    ldgr,
		decoder:   NewEventDecoder(),
		filter:    filter,
		config:    cfg,
		logger:    utils.GetLogger(),
		processed: make(map[string]struct{}),
	}
}

// SetMetadataManager wires the advisory market metadata fetcher.
func (ws *WindowScanner) SetMetadataManager(mm *metadata.Manager) {
	ws.metadata = mm
}

// SetPlanner wires the copy-order planner.
func (ws *WindowScanner) SetPlanner(p *copytrade.Planner) {
	ws.planner = p
}

// SetMetricsManager wires the metrics manager.
func (ws *WindowScanner) SetMetricsManager(mm *metrics.Manager) {
	ws.metricsManager = mm
}

// ScanRange scans [fromBlock, toBlock] and returns the number of newly
// persisted trades. The window always completes both role sweeps unless a
// query fails; per-log failures are logged and skipped so one bad log never
// stalls the window.
func (ws *WindowScanner) ScanRange(ctx context.Context, fromBlock, toBlock uint64) (int, error) {
	tradesFound := 0

	query := ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(fromBlock),
		ToBlock:   new(big.Int).SetUint64(toBlock),
		Addresses: ExchangeContracts,
		Topics:    [][]common.Hash{{OrderFilledTopic}},
	}

	makerLogs, err := ws.client.FilterLogs(ctx, query)
	if err != nil {
		return tradesFound, err
	}
	for _, lg := range makerLogs {
		if maker, ok := ws.filter.MatchMaker(lg); ok {
			if ws.processLog(ctx, lg, maker, models.RoleMaker) {
				tradesFound++
			}
		}
	}
	ws.logger.WithFields(logrus.Fields{
		"from_block": fromBlock,
		"to_block":   toBlock,
		"logs":       len(makerLogs),
		"matched":    tradesFound,
	}).Debug("Maker sweep completed")

	// Pause between the role sweeps so cheap providers don't throttle us.
	select {
	case <-ctx.Done():
		return tradesFound, ctx.Err()
	case <-time.After(ws.config.RequestDelay):
	}

	takerLogs, err := ws.client.FilterLogs(ctx, query)
	if err != nil {
		return tradesFound, err
	}
	for _, lg := range takerLogs {
		if taker, ok := ws.filter.MatchTaker(lg); ok {
			if ws.processLog(ctx, lg, taker, models.RoleTaker) {
				tradesFound++
			}
		}
	}
	ws.logger.WithFields(logrus.Fields{
		"from_block": fromBlock,
		"to_block":   toBlock,
		"logs":       len(takerLogs),
		"matched":    tradesFound,
	}).Debug("Taker sweep completed")

	return tradesFound, nil
}

// processLog enriches, decodes and records one matched log. Returns true
// only when a new trade was persisted and applied to the ledger.
func (ws *WindowScanner) processLog(ctx context.Context, lg types.Log, trader common.Address, role string) bool {
	txHash := lg.TxHash.Hex()

	if ws.alreadyProcessed(txHash) {
		ws.logger.WithField("tx_hash", txHash).Debug("Skipping already processed transaction")
		return false
	}

	tx, _, err := ws.client.TransactionByHash(ctx, lg.TxHash)
	if err != nil {
		ws.logger.WithError(err).WithField("tx_hash", txHash).Warn("Failed to fetch transaction for fill")
		return false
	}

	receipt, err := ws.client.TransactionReceipt(ctx, lg.TxHash)
	if err != nil {
		ws.logger.WithError(err).WithField("tx_hash", txHash).Warn("Failed to fetch receipt for fill")
		return false
	}

	fill, err := ws.decoder.DecodeOrderFilled(lg)
	if err != nil {
		ws.logger.WithError(err).WithField("tx_hash", txHash).Warn("Failed to decode OrderFilled log")
		ws.recordRejected("decode_error")
		return false
	}
	if ws.metricsManager != nil {
		ws.metricsManager.GetPrometheusMetrics().RecordTradeDecoded(contractLabel(lg.Address), fill.Side)
	}

	header, err := ws.client.HeaderByNumber(ctx, new(big.Int).SetUint64(lg.BlockNumber))
	if err != nil {
		ws.logger.WithError(err).WithField("block", lg.BlockNumber).Warn("Failed to fetch block header for fill")
		return false
	}

	rec := BuildTradeRecord(fill, trader, role)
	rec.Timestamp = int64(header.Time)
	rec.CaptureDelay = time.Now().Unix() - rec.Timestamp
	rec.GasUsed = strconv.FormatUint(receipt.GasUsed, 10)
	rec.GasPrice = tx.GasPrice().String()

	applied, err := ws.ledger.Record(ctx, rec)
	if err != nil {
		ws.logger.WithError(err).WithField("tx_hash", txHash).Warn("Failed to record trade")
		return false
	}
	if !applied {
		// Rejected by validation or already in storage; the ledger logged why.
		return false
	}

	ws.markProcessed(txHash)

	price := "n/a"
	if rec.Price != nil {
		price = strconv.FormatFloat(*rec.Price, 'f', 6, 64)
	}
	ws.logger.WithFields(logrus.Fields{
		"block":         rec.BlockNumber,
		"tx_hash":       rec.TxHash,
		"address":       rec.Address,
		"role":          rec.Role,
		"side":          rec.Side,
		"price":         price,
		"quantity":      rec.Quantity,
		"notional":      rec.PricedValue(),
		"capture_delay": rec.CaptureDelay,
		"freshness":     classifyDelay(rec.CaptureDelay),
	}).Info("Trade detected")

	if ws.metricsManager != nil {
		prom := ws.metricsManager.GetPrometheusMetrics()
		prom.RecordTradePersisted(rec.Side)
		prom.RecordTradeCaptureDelay(time.Duration(rec.CaptureDelay) * time.Second)
	}

	if ws.metadata != nil && rec.TokenID != "" {
		if _, err := ws.metadata.EnsureMarket(ctx, rec.TokenID); err != nil {
			ws.logger.WithError(err).WithField("token_id", rec.TokenID).Warn("Market metadata fetch failed")
		}
	}

	if ws.planner != nil {
		if _, err := ws.planner.PlanTrade(ctx, rec); err != nil {
			ws.logger.WithError(err).WithField("tx_hash", rec.TxHash).Warn("Copy order planning failed")
		}
	}

	return true
}

// ProcessedCount returns how many transactions this scanner has handled.
func (ws *WindowScanner) ProcessedCount() int {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	return len(ws.processed)
}

func (ws *WindowScanner) alreadyProcessed(txHash string) bool {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	_, ok := ws.processed[txHash]
	return ok
}

func (ws *WindowScanner) markProcessed(txHash string) {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	ws.processed[txHash] = struct{}{}
}

func (ws *WindowScanner) recordRejected(reason string) {
	if ws.metricsManager != nil {
		ws.metricsManager.GetPrometheusMetrics().RecordTradeRejected(reason)
	}
}

// classifyDelay buckets the gap between block time and capture time.
func classifyDelay(seconds int64) string {
	switch {
	case seconds > 3600:
		return "historical"
	case seconds > 300:
		return "delayed"
	case seconds > 60:
		return "slow"
	default:
		return "real_time"
	}
}
