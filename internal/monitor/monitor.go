// File: internal/monitor/monitor.go
package monitor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/smartdevs17/polymarket-trade-monitor/internal/config"
	"github.com/smartdevs17/polymarket-trade-monitor/internal/connection"
	"github.com/smartdevs17/polymarket-trade-monitor/internal/ledger"
	"github.com/smartdevs17/polymarket-trade-monitor/internal/metrics"
	"github.com/smartdevs17/polymarket-trade-monitor/internal/storage"
	"github.com/smartdevs17/polymarket-trade-monitor/pkg/utils"
)

// Polygon averages a two second block, so an hour is roughly 1800 blocks.
// Window math is approximate on purpose; the dedup key absorbs overlap.
const blocksPerHour = 1800

// Monitor defines the trade monitor interface
type Monitor interface {
	// Lifecycle management
	Start(ctx context.Context) error
	Stop() error
	IsRunning() bool

	// Statistics and monitoring
	GetStats() *MonitorStats
	GetHealth() *HealthStatus
}

// TradeMonitor implements the Monitor interface. A single worker drives
// the poll loop; windows are scanned strictly in block order so ledger
// application never runs out of order.
type TradeMonitor struct {
	// Dependencies
	client         *connection.PolygonClient
	storage        storage.Storage
	config         *config.MonitorConfig
	logger         *logrus.Logger
	metricsManager *metrics.Manager

	// Components
	scanner *WindowScanner
	filter  *AddressFilter

	// State management
	mu       sync.RWMutex
	running  bool
	nextFrom uint64
	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	// Statistics
	stats *MonitorStats
}

// MonitorStats provides monitoring statistics
type MonitorStats struct {
	StartTime          time.Time     `json:"start_time"`
	Uptime             time.Duration `json:"uptime"`
	IsRunning          bool          `json:"is_running"`
	StartBlock         uint64        `json:"start_block"`
	LastScannedBlock   uint64        `json:"last_scanned_block"`
	LatestChainBlock   uint64        `json:"latest_chain_block"`
	BlocksBehind       uint64        `json:"blocks_behind"`
	WindowsScanned     uint64        `json:"windows_scanned"`
	BlocksScanned      uint64        `json:"blocks_scanned"`
	TradesRecorded     uint64        `json:"trades_recorded"`
	AddressesMonitored int           `json:"addresses_monitored"`
	ConsecutiveErrors  int           `json:"consecutive_errors"`
	ErrorCount         uint64        `json:"error_count"`
	LastError          *string       `json:"last_error,omitempty"`
	LastErrorTime      *time.Time    `json:"last_error_time,omitempty"`
	LastScanTime       time.Time     `json:"last_scan_time"`
}

// HealthStatus provides health information
type HealthStatus struct {
	Healthy           bool      `json:"healthy"`
	ConnectionHealthy bool      `json:"connection_healthy"`
	BlocksBehind      uint64    `json:"blocks_behind"`
	LastScanTime      time.Time `json:"last_scan_time"`
	Issues            []string  `json:"issues,omitempty"`
}

// NewTradeMonitor creates a new trade monitor over the configured traders.
func NewTradeMonitor(
	client *connection.PolygonClient,
	store storage.Storage,
	ldgr *ledger.Ledger,
	cfg *config.MonitorConfig,
) (*TradeMonitor, error) {

	filter, err := NewAddressFilter(cfg.Addresses)
	if err != nil {
		return nil, err
	}

	monitor := &TradeMonitor{
		client:   client,
		storage:  store,
		config:   cfg,
		logger:   utils.GetLogger(),
		filter:   filter,
		stopChan: make(chan struct{}),
		stats: &MonitorStats{
			StartTime:          time.Now(),
			AddressesMonitored: filter.Count(),
		},
	}
	monitor.scanner = NewWindowScanner(client, ldgr, filter, cfg)

	return monitor, nil
}

// Scanner exposes the window scanner so backfill jobs can reuse it.
func (tm *TradeMonitor) Scanner() *WindowScanner {
	return tm.scanner
}

// SetMetricsManager wires the metrics manager into the monitor and scanner.
func (tm *TradeMonitor) SetMetricsManager(mm *metrics.Manager) {
	tm.metricsManager = mm
	tm.scanner.SetMetricsManager(mm)
	if mm != nil {
		mm.GetPrometheusMetrics().UpdateAddressesMonitored(tm.filter.Count())
	}
}

// Start resolves the starting block and launches the poll loop.
func (tm *TradeMonitor) Start(ctx context.Context) error {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	if tm.running {
		return utils.NewAppError(utils.ErrCodeInternal, "Monitor already running", "")
	}

	head, err := tm.client.BlockNumber(ctx)
	if err != nil {
		return utils.NewAppError(utils.ErrCodeConnection, "Failed to fetch chain head", err.Error())
	}

	startBlock, err := tm.resolveStartBlock(head)
	if err != nil {
		return err
	}

	tm.nextFrom = startBlock
	tm.running = true
	tm.stats.StartTime = time.Now()
	tm.stats.IsRunning = true
	tm.stats.StartBlock = startBlock
	tm.stats.LatestChainBlock = head

	tm.wg.Add(1)
	go tm.monitorLoop(ctx)

	tm.logger.WithFields(logrus.Fields{
		"addresses":     tm.filter.Count(),
		"start_block":   startBlock,
		"current_block": head,
		"poll_interval": tm.config.PollInterval,
		"batch_size":    tm.config.BatchSize,
	}).Info("Trade monitor started")

	return nil
}

// resolveStartBlock picks where scanning begins. Rolling-window mode
// discards anything older than the window; otherwise the persisted cursor
// wins, falling back to the chain head on a fresh database.
func (tm *TradeMonitor) resolveStartBlock(head uint64) (uint64, error) {
	if tm.config.RollingWindow {
		windowBlocks := uint64(tm.config.WindowHours) * blocksPerHour
		start := uint64(0)
		if head > windowBlocks {
			start = head - windowBlocks
		}
		tm.logger.WithFields(logrus.Fields{
			"window_hours":  tm.config.WindowHours,
			"window_blocks": windowBlocks,
			"current_block": head,
			"start_block":   start,
		}).Info("Rolling window mode")
		return start, nil
	}

	cursor, err := tm.storage.GetLastScannedBlock()
	if err != nil {
		return 0, utils.NewAppError(utils.ErrCodeDatabase, "Failed to load scan cursor", err.Error())
	}
	if cursor > 0 {
		tm.logger.WithField("cursor", cursor).Info("Resuming from persisted cursor")
		return cursor + 1, nil
	}

	tm.logger.WithField("current_block", head).Info("No scan history, starting at chain head")
	return head, nil
}

// Stop signals the loop and waits for the in-flight window to finish.
func (tm *TradeMonitor) Stop() error {
	tm.mu.Lock()
	if !tm.running {
		tm.mu.Unlock()
		return nil
	}
	tm.running = false
	tm.stats.IsRunning = false
	tm.mu.Unlock()

	tm.logger.Info("Stopping trade monitor")
	tm.stopOnce.Do(func() {
		close(tm.stopChan)
	})
	tm.wg.Wait()
	tm.logger.Info("Trade monitor stopped")
	return nil
}

// IsRunning returns whether the monitor is running
func (tm *TradeMonitor) IsRunning() bool {
	tm.mu.RLock()
	defer tm.mu.RUnlock()
	return tm.running
}

// monitorLoop is the main polling loop. The stop signal is only observed
// between windows, never mid-window, so the cursor always lands on a fully
// completed batch.
func (tm *TradeMonitor) monitorLoop(ctx context.Context) {
	defer tm.wg.Done()

	consecutive := 0

	for {
		select {
		case <-ctx.Done():
			tm.logger.Info("Monitor loop stopped by context")
			return
		case <-tm.stopChan:
			tm.logger.Info("Monitor loop stopped by stop signal")
			return
		default:
		}

		caughtUp, err := tm.scanOnce(ctx)
		if err != nil {
			if ctx.Err() != nil {
				tm.logger.Info("Monitor loop stopped by context")
				return
			}
			consecutive++
			tm.recordError(err, consecutive)

			if consecutive >= tm.config.MaxConsecutiveErrors {
				tm.logger.WithFields(logrus.Fields{
					"consecutive": consecutive,
					"max":         tm.config.MaxConsecutiveErrors,
				}).Error("Too many consecutive scan failures, stopping monitor")
				tm.markStopped()
				return
			}

			// Failed windows are retried unadvanced after a longer pause.
			if !tm.pause(ctx, 2*tm.config.PollInterval) {
				return
			}
			continue
		}

		consecutive = 0
		tm.setConsecutiveErrors(0)

		if caughtUp {
			if !tm.pause(ctx, tm.config.PollInterval) {
				return
			}
		}
	}
}

// scanOnce processes at most one window and reports whether the loop has
// caught up with the chain head.
func (tm *TradeMonitor) scanOnce(ctx context.Context) (bool, error) {
	head, err := tm.client.BlockNumber(ctx)
	if err != nil {
		return false, err
	}

	tm.mu.Lock()
	next := tm.nextFrom
	tm.stats.LatestChainBlock = head
	if head >= next {
		tm.stats.BlocksBehind = head - next + 1
	} else {
		tm.stats.BlocksBehind = 0
	}
	behind := tm.stats.BlocksBehind
	tm.mu.Unlock()

	if tm.metricsManager != nil {
		tm.metricsManager.GetPrometheusMetrics().UpdateBlocksBehind(behind)
	}

	if behind == 0 {
		return true, nil
	}

	batch := tm.config.BatchSize
	if maxRange := tm.client.MaxBlockRange(); maxRange < batch {
		batch = maxRange
	}
	if behind < batch {
		batch = behind
	}

	fromBlock := next
	toBlock := fromBlock + batch - 1

	tm.logger.WithFields(logrus.Fields{
		"from_block": fromBlock,
		"to_block":   toBlock,
		"batch":      batch,
		"behind":     behind,
	}).Debug("Scanning window")

	start := time.Now()
	found, err := tm.scanner.ScanRange(ctx, fromBlock, toBlock)
	duration := time.Since(start)

	if err != nil {
		if tm.metricsManager != nil {
			tm.metricsManager.GetPrometheusMetrics().RecordScanWindow("error", duration)
		}
		return false, err
	}

	// The cursor advances to toBlock even when the window held no trades;
	// forward progress must never depend on matches.
	if err := tm.storage.SetLastScannedBlock(toBlock); err != nil {
		tm.logger.WithError(err).WithField("block", toBlock).Warn("Failed to persist scan cursor")
	}

	tm.mu.Lock()
	tm.nextFrom = toBlock + 1
	tm.stats.LastScannedBlock = toBlock
	tm.stats.WindowsScanned++
	tm.stats.BlocksScanned += batch
	tm.stats.TradesRecorded += uint64(found)
	tm.stats.LastScanTime = time.Now()
	tm.mu.Unlock()

	if found > 0 {
		tm.logger.WithFields(logrus.Fields{
			"from_block": fromBlock,
			"to_block":   toBlock,
			"trades":     found,
		}).Info("Trades found in window")
	}

	if tm.metricsManager != nil {
		prom := tm.metricsManager.GetPrometheusMetrics()
		prom.RecordScanWindow("success", duration)
		prom.RecordBlocksScanned(batch)
		prom.UpdateLatestScannedBlock(toBlock)
	}

	return toBlock >= head, nil
}

// pause sleeps for d unless the loop is asked to stop first. Returns false
// when the loop should exit.
func (tm *TradeMonitor) pause(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-tm.stopChan:
		return false
	case <-time.After(d):
		return true
	}
}

// markStopped flips the running state from inside the loop after a fatal
// failure. Stop() remains safe to call afterwards.
func (tm *TradeMonitor) markStopped() {
	tm.mu.Lock()
	tm.running = false
	tm.stats.IsRunning = false
	tm.mu.Unlock()
	tm.stopOnce.Do(func() {
		close(tm.stopChan)
	})
}

func (tm *TradeMonitor) recordError(err error, consecutive int) {
	msg := err.Error()
	now := time.Now()

	tm.mu.Lock()
	tm.stats.ErrorCount++
	tm.stats.ConsecutiveErrors = consecutive
	tm.stats.LastError = &msg
	tm.stats.LastErrorTime = &now
	tm.mu.Unlock()

	tm.logger.WithError(err).WithFields(logrus.Fields{
		"consecutive": consecutive,
		"max":         tm.config.MaxConsecutiveErrors,
	}).Error("Scan iteration failed")
}

func (tm *TradeMonitor) setConsecutiveErrors(n int) {
	tm.mu.Lock()
	tm.stats.ConsecutiveErrors = n
	tm.mu.Unlock()
}

// GetStats returns a snapshot of monitor statistics.
func (tm *TradeMonitor) GetStats() *MonitorStats {
	tm.mu.RLock()
	defer tm.mu.RUnlock()

	stats := *tm.stats
	stats.Uptime = time.Since(stats.StartTime)
	return &stats
}

// GetHealth reports monitor health for the API surface.
func (tm *TradeMonitor) GetHealth() *HealthStatus {
	stats := tm.GetStats()
	connectionHealthy := tm.client.Manager().IsConnected()

	issues := []string{}
	if !stats.IsRunning {
		issues = append(issues, "monitor not running")
	}
	if !connectionHealthy {
		issues = append(issues, "node connection unhealthy")
	}
	if stats.ConsecutiveErrors > 0 {
		issues = append(issues, fmt.Sprintf("%d consecutive scan failures", stats.ConsecutiveErrors))
	}

	return &HealthStatus{
		Healthy:           len(issues) == 0,
		ConnectionHealthy: connectionHealthy,
		BlocksBehind:      stats.BlocksBehind,
		LastScanTime:      stats.LastScanTime,
		Issues:            issues,
	}
}
