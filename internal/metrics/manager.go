package metrics

import (
	"runtime"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/smartdevs17/polymarket-trade-monitor/internal/models"
	"github.com/smartdevs17/polymarket-trade-monitor/pkg/utils"
)

// Manager handles all application metrics
type Manager struct {
	prometheus *PrometheusMetrics
	logger     *logrus.Entry
	startTime  time.Time
}

// NewManager creates a new metrics manager
func NewManager() *Manager {
	return &Manager{
		prometheus: NewPrometheusMetrics(),
		logger:     utils.ComponentLogger("metrics"),
		startTime:  time.Now(),
	}
}

// GetPrometheusMetrics returns the Prometheus metrics instance
func (m *Manager) GetPrometheusMetrics() *PrometheusMetrics {
	return m.prometheus
}

// UpdateSystemMetrics updates system-level metrics like memory and goroutines
func (m *Manager) UpdateSystemMetrics() {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	m.prometheus.UpdateMemoryUsage(memStats.Alloc)
	m.prometheus.UpdateGoroutineCount(runtime.NumGoroutine())
	m.prometheus.UpdateApplicationUptime(m.startTime)
}

// UpdateLedgerMetrics refreshes the position gauges from the current
// ledger state. Statuses absent from the slice are reset to zero so a
// position moving from active to settled does not leave a stale gauge.
func (m *Manager) UpdateLedgerMetrics(positions []*models.Position) {
	counts := map[string]int{
		models.PositionActive:      0,
		models.PositionClosed:      0,
		models.PositionSettledWin:  0,
		models.PositionSettledLoss: 0,
	}
	totalPnL := 0.0
	for _, p := range positions {
		counts[p.Status]++
		totalPnL += p.RealizedPnL
	}
	for status, count := range counts {
		m.prometheus.UpdatePositionCount(status, count)
	}
	m.prometheus.UpdateRealizedPnL(totalPnL)
}
