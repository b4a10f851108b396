package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PrometheusMetrics contains all Prometheus metrics for the trade monitor
type PrometheusMetrics struct {
	// Trade pipeline metrics
	TradesDecodedTotal   *prometheus.CounterVec
	TradesRejectedTotal  *prometheus.CounterVec
	TradesPersistedTotal *prometheus.CounterVec
	TradeCaptureDelay    prometheus.Histogram

	// Scan metrics
	BlocksScannedTotal prometheus.Counter
	ScanWindowsTotal   *prometheus.CounterVec
	ScanDuration       prometheus.Histogram
	LatestScannedBlock prometheus.Gauge
	BlocksBehind       prometheus.Gauge

	// Connection and error metrics
	ConnectionErrorsTotal   *prometheus.CounterVec
	RPCRequestsTotal        *prometheus.CounterVec
	RPCRequestDuration      *prometheus.HistogramVec
	EndpointRotationsTotal  prometheus.Counter
	RateLimitHitsTotal      *prometheus.CounterVec

	// Ledger metrics
	PositionsByStatus  *prometheus.GaugeVec
	RealizedPnLTotal   prometheus.Gauge
	SettlementsTotal   *prometheus.CounterVec
	TradesAppliedTotal prometheus.Counter

	// Backfill metrics
	BackfillRunsTotal       *prometheus.CounterVec
	BackfillTradesRecovered prometheus.Counter
	BackfillDuration        prometheus.Histogram

	// Metadata metrics
	MetadataFetchesTotal *prometheus.CounterVec

	// Storage metrics
	DatabaseOperationsTotal   *prometheus.CounterVec
	DatabaseOperationDuration *prometheus.HistogramVec
	DatabaseConnections       prometheus.Gauge

	// API metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Application health metrics
	ApplicationUptime  prometheus.Gauge
	ComponentHealth    *prometheus.GaugeVec
	MemoryUsage        prometheus.Gauge
	GoroutineCount     prometheus.Gauge
	AddressesMonitored prometheus.Gauge
}

// NewPrometheusMetrics creates and registers all Prometheus metrics
func NewPrometheusMetrics() *PrometheusMetrics {
	return &PrometheusMetrics{
		// Trade pipeline metrics
		TradesDecodedTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "polymon_trades_decoded_total",
				Help: "Total number of OrderFilled events decoded",
			},
			[]string{"contract", "side"},
		),

		TradesRejectedTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "polymon_trades_rejected_total",
				Help: "Total number of trades rejected by validation",
			},
			[]string{"reason"},
		),

		TradesPersistedTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "polymon_trades_persisted_total",
				Help: "Total number of trades persisted to storage",
			},
			[]string{"side"},
		),

		TradeCaptureDelay: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "polymon_trade_capture_delay_seconds",
				Help:    "Delay between block timestamp and trade capture",
				Buckets: []float64{1, 2, 5, 10, 30, 60, 300, 900},
			},
		),

		// Scan metrics
		BlocksScannedTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "polymon_blocks_scanned_total",
				Help: "Total number of blocks scanned for fills",
			},
		),

		ScanWindowsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "polymon_scan_windows_total",
				Help: "Total number of scan windows executed",
			},
			[]string{"status"},
		),

		ScanDuration: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "polymon_scan_duration_seconds",
				Help:    "Time spent scanning one block window",
				Buckets: prometheus.DefBuckets,
			},
		),

		LatestScannedBlock: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "polymon_latest_scanned_block",
				Help: "Latest Polygon block number scanned",
			},
		),

		BlocksBehind: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "polymon_blocks_behind",
				Help: "Number of blocks behind the chain head",
			},
		),

		// Connection and error metrics
		ConnectionErrorsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "polymon_connection_errors_total",
				Help: "Total number of connection errors to RPC endpoints",
			},
			[]string{"endpoint", "error_type"},
		),

		RPCRequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "polymon_rpc_requests_total",
				Help: "Total number of RPC requests made to Polygon endpoints",
			},
			[]string{"endpoint", "method", "status"},
		),

		RPCRequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "polymon_rpc_request_duration_seconds",
				Help:    "Duration of RPC requests to Polygon endpoints",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"endpoint", "method"},
		),

		EndpointRotationsTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "polymon_endpoint_rotations_total",
				Help: "Total number of RPC endpoint rotations",
			},
		),

		RateLimitHitsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "polymon_rate_limit_hits_total",
				Help: "Total number of rate limit responses from RPC endpoints",
			},
			[]string{"endpoint"},
		),

		// Ledger metrics
		PositionsByStatus: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "polymon_positions",
				Help: "Number of tracked positions by status",
			},
			[]string{"status"},
		),

		RealizedPnLTotal: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "polymon_realized_pnl_usdc",
				Help: "Total realized profit and loss across all positions in USDC",
			},
		),

		SettlementsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "polymon_settlements_total",
				Help: "Total number of positions classified as settled",
			},
			[]string{"type"},
		),

		TradesAppliedTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "polymon_trades_applied_total",
				Help: "Total number of trades applied to the position ledger",
			},
		),

		// Backfill metrics
		BackfillRunsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "polymon_backfill_runs_total",
				Help: "Total number of position backfill attempts",
			},
			[]string{"status"},
		),

		BackfillTradesRecovered: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "polymon_backfill_trades_recovered_total",
				Help: "Total number of historical trades recovered by backfill",
			},
		),

		BackfillDuration: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "polymon_backfill_duration_seconds",
				Help:    "Time spent backfilling one position",
				Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 120},
			},
		),

		// Metadata metrics
		MetadataFetchesTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "polymon_metadata_fetches_total",
				Help: "Total number of Gamma API metadata fetches",
			},
			[]string{"status"},
		),

		// Storage metrics
		DatabaseOperationsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "polymon_database_operations_total",
				Help: "Total number of database operations",
			},
			[]string{"operation", "table", "status"},
		),

		DatabaseOperationDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "polymon_database_operation_duration_seconds",
				Help:    "Duration of database operations",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation", "table"},
		),

		DatabaseConnections: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "polymon_database_connections",
				Help: "Number of active database connections",
			},
		),

		// API metrics
		HTTPRequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "polymon_http_requests_total",
				Help: "Total number of HTTP requests received",
			},
			[]string{"method", "path", "status"},
		),

		HTTPRequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "polymon_http_request_duration_seconds",
				Help:    "Duration of HTTP requests",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),

		// Application health metrics
		ApplicationUptime: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "polymon_application_uptime_seconds",
				Help: "Application uptime in seconds",
			},
		),

		ComponentHealth: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "polymon_component_health",
				Help: "Health status of application components (1=healthy, 0=unhealthy)",
			},
			[]string{"component"},
		),

		MemoryUsage: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "polymon_memory_usage_bytes",
				Help: "Current memory usage in bytes",
			},
		),

		GoroutineCount: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "polymon_goroutines",
				Help: "Number of running goroutines",
			},
		),

		AddressesMonitored: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "polymon_addresses_monitored",
				Help: "Number of trader addresses currently being monitored",
			},
		),
	}
}

// RecordTradeDecoded records a decoded fill event
func (m *PrometheusMetrics) RecordTradeDecoded(contract, side string) {
	m.TradesDecodedTotal.WithLabelValues(contract, side).Inc()
}

// RecordTradeRejected records a trade rejected by validation
func (m *PrometheusMetrics) RecordTradeRejected(reason string) {
	m.TradesRejectedTotal.WithLabelValues(reason).Inc()
}

// RecordTradePersisted records a trade persisted to storage
func (m *PrometheusMetrics) RecordTradePersisted(side string) {
	m.TradesPersistedTotal.WithLabelValues(side).Inc()
}

// RecordTradeCaptureDelay records the block-to-capture latency of a trade
func (m *PrometheusMetrics) RecordTradeCaptureDelay(delay time.Duration) {
	m.TradeCaptureDelay.Observe(delay.Seconds())
}

// RecordBlocksScanned records a number of scanned blocks
func (m *PrometheusMetrics) RecordBlocksScanned(count uint64) {
	m.BlocksScannedTotal.Add(float64(count))
}

// RecordScanWindow records a completed scan window
func (m *PrometheusMetrics) RecordScanWindow(status string, duration time.Duration) {
	m.ScanWindowsTotal.WithLabelValues(status).Inc()
	m.ScanDuration.Observe(duration.Seconds())
}

// UpdateLatestScannedBlock updates the latest scanned block metric
func (m *PrometheusMetrics) UpdateLatestScannedBlock(blockNumber uint64) {
	m.LatestScannedBlock.Set(float64(blockNumber))
}

// UpdateBlocksBehind updates the blocks behind metric
func (m *PrometheusMetrics) UpdateBlocksBehind(behind uint64) {
	m.BlocksBehind.Set(float64(behind))
}

// RecordConnectionError records a connection error
func (m *PrometheusMetrics) RecordConnectionError(endpoint, errorType string) {
	m.ConnectionErrorsTotal.WithLabelValues(endpoint, errorType).Inc()
}

// RecordRPCRequest records an RPC request
func (m *PrometheusMetrics) RecordRPCRequest(endpoint, method, status string, duration time.Duration) {
	m.RPCRequestsTotal.WithLabelValues(endpoint, method, status).Inc()
	m.RPCRequestDuration.WithLabelValues(endpoint, method).Observe(duration.Seconds())
}

// RecordEndpointRotation records a switch to another RPC endpoint
func (m *PrometheusMetrics) RecordEndpointRotation() {
	m.EndpointRotationsTotal.Inc()
}

// RecordRateLimitHit records a rate limit response from an endpoint
func (m *PrometheusMetrics) RecordRateLimitHit(endpoint string) {
	m.RateLimitHitsTotal.WithLabelValues(endpoint).Inc()
}

// UpdatePositionCount updates the number of positions in a status
func (m *PrometheusMetrics) UpdatePositionCount(status string, count int) {
	m.PositionsByStatus.WithLabelValues(status).Set(float64(count))
}

// UpdateRealizedPnL updates the total realized PnL metric
func (m *PrometheusMetrics) UpdateRealizedPnL(pnl float64) {
	m.RealizedPnLTotal.Set(pnl)
}

// RecordSettlement records a position settlement classification
func (m *PrometheusMetrics) RecordSettlement(settlementType string) {
	m.SettlementsTotal.WithLabelValues(settlementType).Inc()
}

// RecordTradeApplied records a trade applied to the ledger
func (m *PrometheusMetrics) RecordTradeApplied() {
	m.TradesAppliedTotal.Inc()
}

// RecordBackfillRun records a position backfill attempt
func (m *PrometheusMetrics) RecordBackfillRun(status string, duration time.Duration) {
	m.BackfillRunsTotal.WithLabelValues(status).Inc()
	m.BackfillDuration.Observe(duration.Seconds())
}

// RecordBackfillTradesRecovered records trades recovered by backfill
func (m *PrometheusMetrics) RecordBackfillTradesRecovered(count int) {
	m.BackfillTradesRecovered.Add(float64(count))
}

// RecordMetadataFetch records a Gamma API fetch
func (m *PrometheusMetrics) RecordMetadataFetch(status string) {
	m.MetadataFetchesTotal.WithLabelValues(status).Inc()
}

// RecordDatabaseOperation records a database operation
func (m *PrometheusMetrics) RecordDatabaseOperation(operation, table, status string, duration time.Duration) {
	m.DatabaseOperationsTotal.WithLabelValues(operation, table, status).Inc()
	m.DatabaseOperationDuration.WithLabelValues(operation, table).Observe(duration.Seconds())
}

// UpdateDatabaseConnections updates the database connections metric
func (m *PrometheusMetrics) UpdateDatabaseConnections(count int) {
	m.DatabaseConnections.Set(float64(count))
}

// RecordHTTPRequest records an HTTP request
func (m *PrometheusMetrics) RecordHTTPRequest(method, path, status string, duration time.Duration) {
	m.HTTPRequestsTotal.WithLabelValues(method, path, status).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// UpdateApplicationUptime updates the application uptime metric
func (m *PrometheusMetrics) UpdateApplicationUptime(startTime time.Time) {
	m.ApplicationUptime.Set(time.Since(startTime).Seconds())
}

// UpdateComponentHealth updates the health status of a component
func (m *PrometheusMetrics) UpdateComponentHealth(component string, healthy bool) {
	value := 0.0
	if healthy {
		value = 1.0
	}
	m.ComponentHealth.WithLabelValues(component).Set(value)
}

// UpdateMemoryUsage updates the memory usage metric
func (m *PrometheusMetrics) UpdateMemoryUsage(bytes uint64) {
	m.MemoryUsage.Set(float64(bytes))
}

// UpdateGoroutineCount updates the goroutine count metric
func (m *PrometheusMetrics) UpdateGoroutineCount(count int) {
	m.GoroutineCount.Set(float64(count))
}

// UpdateAddressesMonitored updates the number of monitored addresses
func (m *PrometheusMetrics) UpdateAddressesMonitored(count int) {
	m.AddressesMonitored.Set(float64(count))
}
