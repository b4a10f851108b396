package connection

import (
	"os"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/smartdevs17/polymarket-trade-monitor/internal/config"
	"github.com/smartdevs17/polymarket-trade-monitor/pkg/utils"
)

// Endpoint is one RPC endpoint with its eth_getLogs span limit.
type Endpoint struct {
	URL           string `json:"url"`
	MaxBlockRange uint64 `json:"max_block_range"`
}

// EndpointPool holds the ordered endpoint list and the rotation cursor.
// Index 0 is the primary endpoint; rate limit recovery always returns
// there rather than cycling onward.
type EndpointPool struct {
	endpoints []Endpoint
	current   int
	mu        sync.RWMutex
	logger    *logrus.Logger
}

// NewEndpointPool builds a pool from configuration, expanding endpoint
// placeholders and assigning per-endpoint block range limits by index.
func NewEndpointPool(cfg *config.RPCConfig) (*EndpointPool, error) {
	urls := ExpandEndpoints(cfg.Endpoints)
	if len(urls) == 0 {
		return nil, utils.NewAppError(utils.ErrCodeConfiguration, "No valid RPC endpoints available", "")
	}

	endpoints := make([]Endpoint, len(urls))
	for i, u := range urls {
		endpoints[i] = Endpoint{URL: u, MaxBlockRange: cfg.BlockRangeFor(i)}
	}

	return &EndpointPool{
		endpoints: endpoints,
		logger:    utils.GetLogger(),
	}, nil
}

// Current returns the endpoint the cursor points at and its index
func (ep *EndpointPool) Current() (Endpoint, int) {
	ep.mu.RLock()
	defer ep.mu.RUnlock()
	return ep.endpoints[ep.current], ep.current
}

// Size returns the number of endpoints in the pool
func (ep *EndpointPool) Size() int {
	ep.mu.RLock()
	defer ep.mu.RUnlock()
	return len(ep.endpoints)
}

// IsPrimary reports whether the cursor is on the primary endpoint
func (ep *EndpointPool) IsPrimary() bool {
	ep.mu.RLock()
	defer ep.mu.RUnlock()
	return ep.current == 0
}

// SwitchToPrimary moves the cursor back to the primary endpoint
func (ep *EndpointPool) SwitchToPrimary() Endpoint {
	ep.mu.Lock()
	defer ep.mu.Unlock()
	ep.current = 0
	return ep.endpoints[0]
}

// Rotate advances the cursor to the next endpoint, wrapping around
func (ep *EndpointPool) Rotate() Endpoint {
	ep.mu.Lock()
	defer ep.mu.Unlock()

	ep.current = (ep.current + 1) % len(ep.endpoints)
	ep.logger.WithFields(logrus.Fields{
		"index": ep.current + 1,
		"total": len(ep.endpoints),
	}).Info("Rotating to next RPC endpoint")
	return ep.endpoints[ep.current]
}

// All returns a copy of the endpoint list
func (ep *EndpointPool) All() []Endpoint {
	ep.mu.RLock()
	defer ep.mu.RUnlock()

	out := make([]Endpoint, len(ep.endpoints))
	copy(out, ep.endpoints)
	return out
}

// ExpandEndpoints resolves endpoint placeholders. The literal "infura"
// expands to the Polygon Infura URL built from INFURA_API_KEY and is
// skipped with a warning when the key is not set.
func ExpandEndpoints(endpoints []string) []string {
	var processed []string
	for _, endpoint := range endpoints {
		if strings.EqualFold(endpoint, "infura") {
			apiKey := os.Getenv("INFURA_API_KEY")
			if apiKey == "" {
				utils.GetLogger().Warn("INFURA_API_KEY not set, skipping Infura endpoint")
				continue
			}
			processed = append(processed, "https://polygon-mainnet.infura.io/v3/"+apiKey)
			continue
		}
		processed = append(processed, endpoint)
	}
	return processed
}

// MaskEndpoint hides API keys embedded in endpoint URLs for logging
func MaskEndpoint(url string) string {
	if strings.Contains(url, "infura.io/v3/") {
		parts := strings.SplitN(url, "/v3/", 2)
		if len(parts) == 2 {
			suffix := parts[1]
			if len(suffix) > 4 {
				suffix = suffix[len(suffix)-4:]
			}
			return parts[0] + "/v3/***" + suffix
		}
	}
	return url
}
