package connection

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/sirupsen/logrus"

	"github.com/smartdevs17/polymarket-trade-monitor/internal/config"
	"github.com/smartdevs17/polymarket-trade-monitor/internal/metrics"
	"github.com/smartdevs17/polymarket-trade-monitor/pkg/utils"
)

// Manager defines the connection manager interface
type Manager interface {
	Connect(ctx context.Context) error
	Close() error
	IsConnected() bool
	Execute(ctx context.Context, method string, fn func(*ethclient.Client) error) error
	MaxBlockRange() uint64
	CurrentEndpoint() string
	EndpointCount() int
	HealthCheck() error
	Stats() ConnectionStats
	SetMetricsManager(m *metrics.Manager)
}

// ConnectionStats holds connection statistics
type ConnectionStats struct {
	TotalRequests   uint64    `json:"total_requests"`
	FailedRequests  uint64    `json:"failed_requests"`
	RateLimitHits   uint64    `json:"rate_limit_hits"`
	Rotations       uint64    `json:"rotations"`
	Reconnects      uint64    `json:"reconnects"`
	CurrentURL      string    `json:"current_url"`
	LastConnectedAt time.Time `json:"last_connected_at"`
	LastHealthCheck time.Time `json:"last_health_check"`
	IsHealthy       bool      `json:"is_healthy"`
	ChainID         uint64    `json:"chain_id"`
	LatestBlock     uint64    `json:"latest_block"`
}

// retryAction is the failover decision taken after a failed RPC call.
type retryAction int

const (
	// actionRetrySame retries on the current endpoint after a short delay.
	actionRetrySame retryAction = iota
	// actionSwitchPrimary reconnects to the primary endpoint. Taken when a
	// fallback endpoint rate limits; the primary has the highest quota.
	actionSwitchPrimary
	// actionCooldown waits out a rate limit on the primary endpoint with a
	// tripled delay before retrying there.
	actionCooldown
)

// EndpointManager implements Manager over a rotating endpoint pool
type EndpointManager struct {
	config         *config.RPCConfig
	pool           *EndpointPool
	client         *ethclient.Client
	mu             sync.RWMutex
	logger         *logrus.Logger
	stats          ConnectionStats
	metricsManager *metrics.Manager
}

// NewEndpointManager creates a new endpoint manager
func NewEndpointManager(cfg *config.RPCConfig) (*EndpointManager, error) {
	pool, err := NewEndpointPool(cfg)
	if err != nil {
		return nil, err
	}

	endpoint, _ := pool.Current()
	return &EndpointManager{
		config: cfg,
		pool:   pool,
		logger: utils.GetLogger(),
		stats: ConnectionStats{
			CurrentURL: endpoint.URL,
		},
	}, nil
}

// SetMetricsManager attaches a metrics manager for request recording
func (em *EndpointManager) SetMetricsManager(m *metrics.Manager) {
	em.metricsManager = m
}

// Connect establishes the initial connection, rotating through all
// endpoints until one answers
func (em *EndpointManager) Connect(ctx context.Context) error {
	em.mu.Lock()
	defer em.mu.Unlock()
	return em.connectLocked(ctx)
}

func (em *EndpointManager) connectLocked(ctx context.Context) error {
	if em.client != nil {
		em.client.Close()
		em.client = nil
	}

	for i := 0; i < em.pool.Size(); i++ {
		endpoint, _ := em.pool.Current()
		display := MaskEndpoint(endpoint.URL)
		em.logger.WithField("endpoint", display).Info("Attempting RPC connection")

		client, err := em.dialWithTimeout(ctx, endpoint.URL)
		if err == nil {
			var chainID uint64
			chainID, err = em.quickCheck(ctx, client)
			if err == nil {
				em.client = client
				em.stats.CurrentURL = endpoint.URL
				em.stats.ChainID = chainID
				em.stats.LastConnectedAt = time.Now()
				em.stats.IsHealthy = true
				em.logger.WithFields(logrus.Fields{
					"endpoint": display,
					"chain_id": chainID,
				}).Info("Connected to RPC endpoint")
				return nil
			}
			client.Close()
		}

		em.stats.FailedRequests++
		if em.metricsManager != nil {
			em.metricsManager.GetPrometheusMetrics().RecordConnectionError(display, "connect_failed")
		}
		em.logger.WithField("endpoint", display).WithError(err).Warn("RPC connection failed")

		em.pool.Rotate()
	}

	em.stats.IsHealthy = false
	return utils.NewAppError(utils.ErrCodeConnection, "Failed to connect to any RPC endpoint",
		"All endpoints exhausted")
}

// reconnect drops the current client and connects at the pool cursor
func (em *EndpointManager) reconnect(ctx context.Context) error {
	em.mu.Lock()
	defer em.mu.Unlock()

	if em.client != nil {
		em.client.Close()
		em.client = nil
	}
	em.stats.Reconnects++

	return em.connectLocked(ctx)
}

// dialWithTimeout creates a connection with timeout
func (em *EndpointManager) dialWithTimeout(ctx context.Context, url string) (*ethclient.Client, error) {
	dialCtx, cancel := context.WithTimeout(ctx, em.config.RequestTimeout)
	defer cancel()

	return ethclient.DialContext(dialCtx, url)
}

// quickCheck verifies a fresh connection answers with its chain id
func (em *EndpointManager) quickCheck(ctx context.Context, client *ethclient.Client) (uint64, error) {
	checkCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	chainID, err := client.ChainID(checkCtx)
	if err != nil {
		return 0, err
	}
	return chainID.Uint64(), nil
}

func (em *EndpointManager) ensureClient(ctx context.Context) (*ethclient.Client, error) {
	em.mu.RLock()
	client := em.client
	em.mu.RUnlock()

	if client != nil {
		return client, nil
	}

	if err := em.Connect(ctx); err != nil {
		return nil, err
	}

	em.mu.RLock()
	client = em.client
	em.mu.RUnlock()
	return client, nil
}

// isRateLimitError reports whether an RPC error is a rate limit response
func isRateLimitError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "429") ||
		strings.Contains(msg, "Too many requests") ||
		strings.Contains(strings.ToLower(msg), "rate limit")
}

// classify decides the failover action for a failed call
func (em *EndpointManager) classify(err error) retryAction {
	if !isRateLimitError(err) {
		return actionRetrySame
	}
	if em.pool.IsPrimary() {
		return actionCooldown
	}
	return actionSwitchPrimary
}

// Execute runs fn with retry and failover. Failed attempts on the
// current endpoint are retried up to MaxRetries times; a rate limited
// fallback endpoint is abandoned for the primary immediately, and a
// rate limited primary is retried after a tripled delay. Only when all
// attempts are spent does the manager rotate to the next endpoint, for
// exactly one final try.
func (em *EndpointManager) Execute(ctx context.Context, method string, fn func(*ethclient.Client) error) error {
	var lastErr error

	for attempt := 0; attempt < em.config.MaxRetries; attempt++ {
		client, err := em.ensureClient(ctx)
		if err != nil {
			lastErr = err
			if attempt < em.config.MaxRetries-1 {
				if werr := em.wait(ctx, em.config.RetryDelay); werr != nil {
					return werr
				}
			}
			continue
		}

		start := time.Now()
		err = fn(client)
		em.recordRequest(method, err, start)
		if err == nil {
			return nil
		}
		lastErr = err

		switch em.classify(err) {
		case actionSwitchPrimary:
			em.noteRateLimit()
			em.logger.WithFields(logrus.Fields{
				"attempt": attempt + 1,
				"method":  method,
			}).Warn("Rate limit on fallback endpoint, switching back to primary")

			em.pool.SwitchToPrimary()
			if cerr := em.reconnect(ctx); cerr != nil {
				lastErr = cerr
			}
			if werr := em.wait(ctx, em.config.RetryDelay); werr != nil {
				return werr
			}

		case actionCooldown:
			em.noteRateLimit()
			em.logger.WithFields(logrus.Fields{
				"attempt": attempt + 1,
				"method":  method,
			}).Warn("Rate limit on primary endpoint, cooling down")

			if werr := em.wait(ctx, 3*em.config.RetryDelay); werr != nil {
				return werr
			}

		default:
			em.logger.WithError(err).WithFields(logrus.Fields{
				"attempt": attempt + 1,
				"method":  method,
			}).Warn("RPC call failed")

			if attempt < em.config.MaxRetries-1 {
				if werr := em.wait(ctx, em.config.RetryDelay); werr != nil {
					return werr
				}
			}
		}
	}

	// All retries spent on the current endpoint. Rotate once and give
	// the next endpoint a single chance before surfacing the error.
	if em.pool.Size() > 1 {
		endpoint := em.pool.Rotate()
		em.noteRotation()
		em.logger.WithField("endpoint", MaskEndpoint(endpoint.URL)).Warn("All retries failed, trying next RPC endpoint")

		if err := em.reconnect(ctx); err != nil {
			lastErr = err
		} else if client, err := em.ensureClient(ctx); err != nil {
			lastErr = err
		} else {
			start := time.Now()
			err = fn(client)
			em.recordRequest(method, err, start)
			if err == nil {
				em.logger.Info("Executed on fallback RPC endpoint")
				return nil
			}
			lastErr = err
			em.logger.WithError(err).Error("Fallback endpoint also failed")
		}
	}

	return lastErr
}

func (em *EndpointManager) wait(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}

func (em *EndpointManager) recordRequest(method string, err error, start time.Time) {
	em.mu.Lock()
	em.stats.TotalRequests++
	if err != nil {
		em.stats.FailedRequests++
	}
	endpoint := em.stats.CurrentURL
	em.mu.Unlock()

	if em.metricsManager != nil {
		status := "success"
		if err != nil {
			status = "error"
		}
		em.metricsManager.GetPrometheusMetrics().RecordRPCRequest(MaskEndpoint(endpoint), method, status, time.Since(start))
	}
}

func (em *EndpointManager) noteRateLimit() {
	em.mu.Lock()
	em.stats.RateLimitHits++
	endpoint := em.stats.CurrentURL
	em.mu.Unlock()

	if em.metricsManager != nil {
		em.metricsManager.GetPrometheusMetrics().RecordRateLimitHit(MaskEndpoint(endpoint))
	}
}

func (em *EndpointManager) noteRotation() {
	em.mu.Lock()
	em.stats.Rotations++
	em.mu.Unlock()

	if em.metricsManager != nil {
		em.metricsManager.GetPrometheusMetrics().RecordEndpointRotation()
	}
}

// MaxBlockRange returns the eth_getLogs span limit of the current endpoint
func (em *EndpointManager) MaxBlockRange() uint64 {
	endpoint, _ := em.pool.Current()
	return endpoint.MaxBlockRange
}

// CurrentEndpoint returns the URL the cursor points at
func (em *EndpointManager) CurrentEndpoint() string {
	endpoint, _ := em.pool.Current()
	return endpoint.URL
}

// EndpointCount returns the number of configured endpoints
func (em *EndpointManager) EndpointCount() int {
	return em.pool.Size()
}

// HealthCheck verifies the connection and refreshes chain stats
func (em *EndpointManager) HealthCheck() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	client, err := em.ensureClient(ctx)
	if err != nil {
		em.setHealthy(false)
		return err
	}

	blockNumber, err := client.BlockNumber(ctx)
	if err != nil {
		em.setHealthy(false)
		return utils.NewAppError(utils.ErrCodeConnection, "Failed to get latest block", err.Error())
	}

	em.mu.Lock()
	em.stats.LatestBlock = blockNumber
	em.stats.LastHealthCheck = time.Now()
	em.stats.IsHealthy = true
	em.mu.Unlock()

	return nil
}

func (em *EndpointManager) setHealthy(healthy bool) {
	em.mu.Lock()
	em.stats.IsHealthy = healthy
	em.mu.Unlock()
}

// IsConnected returns whether the manager holds a live client
func (em *EndpointManager) IsConnected() bool {
	em.mu.RLock()
	defer em.mu.RUnlock()
	return em.client != nil && em.stats.IsHealthy
}

// Close closes the connection
func (em *EndpointManager) Close() error {
	em.mu.Lock()
	defer em.mu.Unlock()

	if em.client != nil {
		em.client.Close()
		em.client = nil
	}

	em.stats.IsHealthy = false
	em.logger.Info("Connection manager closed")
	return nil
}

// Stats returns connection statistics
func (em *EndpointManager) Stats() ConnectionStats {
	em.mu.RLock()
	defer em.mu.RUnlock()
	return em.stats
}
