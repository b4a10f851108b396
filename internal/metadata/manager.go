// File: internal/metadata/manager.go
package metadata

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/smartdevs17/polymarket-trade-monitor/internal/config"
	"github.com/smartdevs17/polymarket-trade-monitor/internal/metrics"
	"github.com/smartdevs17/polymarket-trade-monitor/internal/models"
	"github.com/smartdevs17/polymarket-trade-monitor/internal/storage"
	"github.com/smartdevs17/polymarket-trade-monitor/pkg/utils"
)

// missRetryInterval is how long a token that Gamma does not know stays
// in the negative cache before another lookup is allowed. Unlisted
// tokens trade repeatedly; without this every fill re-queries the API.
const missRetryInterval = 10 * time.Minute

// Manager caches Gamma market metadata in storage. EnsureMarket is the
// single entry point: cache-first lookup, fetch on miss, persist the
// market and every token outcome it lists. Metadata is advisory and a
// failed fetch never blocks trade ingestion.
type Manager struct {
	client  *GammaClient
	storage storage.Storage
	config  *config.MetadataConfig
	logger  *logrus.Logger

	metricsManager *metrics.Manager

	mu     sync.Mutex
	misses map[string]time.Time
}

// NewManager creates a metadata manager over the given client and storage.
func NewManager(client *GammaClient, store storage.Storage, cfg *config.MetadataConfig) *Manager {
	return &Manager{
		client:  client,
		storage: store,
		config:  cfg,
		logger:  utils.GetLogger(),
		misses:  make(map[string]time.Time),
	}
}

// SetMetricsManager wires the metrics manager.
func (m *Manager) SetMetricsManager(mm *metrics.Manager) {
	m.metricsManager = mm
}

// EnsureMarket returns the market a token belongs to, fetching and
// caching it from Gamma when storage has no mapping yet. Returns nil
// without error when metadata is disabled or no market lists the token.
func (m *Manager) EnsureMarket(ctx context.Context, tokenID string) (*models.Market, error) {
	if m.config != nil && !m.config.Enabled {
		return nil, nil
	}

	cached, err := m.storage.GetMarketByToken(ctx, tokenID)
	if err != nil {
		return nil, err
	}
	if cached != nil {
		m.recordFetch("cache_hit")
		return cached, nil
	}

	if m.recentMiss(tokenID) {
		return nil, nil
	}

	detail, err := m.client.GetMarketByToken(ctx, tokenID)
	if err != nil {
		m.recordFetch("error")
		return nil, err
	}
	if detail == nil {
		m.markMiss(tokenID)
		m.recordFetch("miss")
		m.logger.WithField("token_id", tokenID).Debug("No Gamma market lists this token")
		return nil, nil
	}

	if err := m.storage.SaveMarket(ctx, detail.Market); err != nil {
		m.recordFetch("error")
		return nil, err
	}
	for _, outcome := range detail.Outcomes {
		if err := m.storage.SaveTokenOutcome(ctx, outcome); err != nil {
			m.logger.WithError(err).WithFields(logrus.Fields{
				"market_id": detail.Market.ID,
				"token_id":  outcome.TokenID,
			}).Warn("Failed to save token outcome mapping")
		}
	}

	m.recordFetch("success")
	m.logger.WithFields(logrus.Fields{
		"market_id": detail.Market.ID,
		"question":  truncateText(detail.Market.Question, 50),
		"outcomes":  len(detail.Outcomes),
	}).Info("Market metadata cached")

	return detail.Market, nil
}

// recentMiss reports whether the token failed a lookup inside the retry
// interval. Expired entries are pruned on the way through.
func (m *Manager) recentMiss(tokenID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	at, ok := m.misses[tokenID]
	if !ok {
		return false
	}
	if time.Since(at) > missRetryInterval {
		delete(m.misses, tokenID)
		return false
	}
	return true
}

func (m *Manager) markMiss(tokenID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.misses[tokenID] = time.Now()
}

func (m *Manager) recordFetch(status string) {
	if m.metricsManager != nil {
		m.metricsManager.GetPrometheusMetrics().RecordMetadataFetch(status)
	}
}
