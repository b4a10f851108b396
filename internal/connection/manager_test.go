// File: internal/connection/manager_test.go
package connection

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/smartdevs17/polymarket-trade-monitor/internal/config"
	"github.com/smartdevs17/polymarket-trade-monitor/pkg/utils"
)

type rpcCall struct {
	JSONRPC string            `json:"jsonrpc"`
	ID      json.RawMessage   `json:"id"`
	Method  string            `json:"method"`
	Params  []json.RawMessage `json:"params"`
}

func decodeRPCCall(r *http.Request) rpcCall {
	var call rpcCall
	_ = json.NewDecoder(r.Body).Decode(&call)
	return call
}

// writeRPCResult writes a JSON-RPC response; result must be raw JSON.
func writeRPCResult(w http.ResponseWriter, id json.RawMessage, result string) {
	w.Header().Set("Content-Type", "application/json")
	fmt.Fprintf(w, `{"jsonrpc":"2.0","id":%s,"result":%s}`, id, result)
}

func writeRPCError(w http.ResponseWriter, id json.RawMessage, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	fmt.Fprintf(w, `{"jsonrpc":"2.0","id":%s,"error":{"code":%d,"message":%q}}`, id, code, message)
}

func testRPCConfig(endpoints ...string) *config.RPCConfig {
	return &config.RPCConfig{
		Endpoints:         endpoints,
		RequestTimeout:    5 * time.Second,
		MaxRetries:        3,
		RetryDelay:        5 * time.Millisecond,
		MaxBlockRanges:    []uint64{100, 50},
		DefaultBlockRange: 25,
	}
}

func fetchBlockNumber(t *testing.T, manager *EndpointManager) (uint64, error) {
	t.Helper()
	var blockNumber uint64
	err := manager.Execute(context.Background(), "eth_blockNumber", func(client *ethclient.Client) error {
		var err error
		blockNumber, err = client.BlockNumber(context.Background())
		return err
	})
	return blockNumber, err
}

func TestEndpointManagerConnect(t *testing.T) {
	utils.InitLogger("error", "text", "stdout", "")

	var chainIDCalls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		call := decodeRPCCall(r)
		switch call.Method {
		case "eth_chainId":
			chainIDCalls.Add(1)
			writeRPCResult(w, call.ID, `"0x89"`)
		case "eth_blockNumber":
			writeRPCResult(w, call.ID, `"0x31a53e0"`)
		default:
			writeRPCError(w, call.ID, -32601, "method not found")
		}
	}))
	defer server.Close()

	manager, err := NewEndpointManager(testRPCConfig(server.URL))
	if err != nil {
		t.Fatalf("Failed to create endpoint manager: %v", err)
	}
	defer manager.Close()

	if err := manager.Connect(context.Background()); err != nil {
		t.Fatalf("Failed to connect: %v", err)
	}

	if !manager.IsConnected() {
		t.Error("Manager should report connected")
	}
	if got := chainIDCalls.Load(); got != 1 {
		t.Errorf("Expected 1 chain id handshake, got %d", got)
	}
	if manager.MaxBlockRange() != 100 {
		t.Errorf("Expected primary block range 100, got %d", manager.MaxBlockRange())
	}

	stats := manager.Stats()
	if stats.ChainID != 137 {
		t.Errorf("Expected Polygon chain id 137, got %d", stats.ChainID)
	}
	if stats.CurrentURL != server.URL {
		t.Errorf("Expected current URL %s, got %s", server.URL, stats.CurrentURL)
	}

	if err := manager.HealthCheck(); err != nil {
		t.Fatalf("Health check failed: %v", err)
	}
	stats = manager.Stats()
	if stats.LatestBlock != 0x31a53e0 {
		t.Errorf("Expected latest block %d, got %d", uint64(0x31a53e0), stats.LatestBlock)
	}
	if stats.LastHealthCheck.IsZero() {
		t.Error("Expected health check timestamp to be recorded")
	}

	t.Logf("✓ Connected with chain id %d, head block %d", stats.ChainID, stats.LatestBlock)
}

func TestConnectRotatesPastDeadEndpoint(t *testing.T) {
	utils.InitLogger("error", "text", "stdout", "")

	dead := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	deadURL := dead.URL
	dead.Close()

	alive := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		call := decodeRPCCall(r)
		writeRPCResult(w, call.ID, `"0x89"`)
	}))
	defer alive.Close()

	manager, err := NewEndpointManager(testRPCConfig(deadURL, alive.URL))
	if err != nil {
		t.Fatalf("Failed to create endpoint manager: %v", err)
	}
	defer manager.Close()

	if err := manager.Connect(context.Background()); err != nil {
		t.Fatalf("Connect should succeed on the fallback endpoint: %v", err)
	}

	if manager.CurrentEndpoint() != alive.URL {
		t.Errorf("Expected cursor on fallback %s, got %s", alive.URL, manager.CurrentEndpoint())
	}
	if manager.MaxBlockRange() != 50 {
		t.Errorf("Expected fallback block range 50, got %d", manager.MaxBlockRange())
	}
	if stats := manager.Stats(); stats.FailedRequests == 0 {
		t.Error("Expected the dead endpoint to be counted as a failure")
	}

	t.Logf("✓ Connect rotated past the dead primary endpoint")
}

func TestExecuteRetriesTransientError(t *testing.T) {
	utils.InitLogger("error", "text", "stdout", "")

	var blockCalls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		call := decodeRPCCall(r)
		switch call.Method {
		case "eth_chainId":
			writeRPCResult(w, call.ID, `"0x89"`)
		case "eth_blockNumber":
			if blockCalls.Add(1) == 1 {
				http.Error(w, "internal error", http.StatusInternalServerError)
				return
			}
			writeRPCResult(w, call.ID, `"0xc8"`)
		}
	}))
	defer server.Close()

	manager, err := NewEndpointManager(testRPCConfig(server.URL))
	if err != nil {
		t.Fatalf("Failed to create endpoint manager: %v", err)
	}
	defer manager.Close()

	if err := manager.Connect(context.Background()); err != nil {
		t.Fatalf("Failed to connect: %v", err)
	}

	blockNumber, err := fetchBlockNumber(t, manager)
	if err != nil {
		t.Fatalf("Execute should recover from a transient error: %v", err)
	}
	if blockNumber != 200 {
		t.Errorf("Expected block number 200, got %d", blockNumber)
	}
	if got := blockCalls.Load(); got != 2 {
		t.Errorf("Expected 2 attempts, got %d", got)
	}

	stats := manager.Stats()
	if stats.TotalRequests != 2 || stats.FailedRequests != 1 {
		t.Errorf("Expected 2 requests with 1 failure, got %d/%d",
			stats.TotalRequests, stats.FailedRequests)
	}

	t.Logf("✓ Transient error retried on the same endpoint")
}

func TestExecuteFallbackRateLimitSwitchesToPrimary(t *testing.T) {
	utils.InitLogger("error", "text", "stdout", "")

	var primaryHealthy atomic.Bool
	var primaryBlockCalls, fallbackBlockCalls atomic.Int32

	primary := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		call := decodeRPCCall(r)
		switch call.Method {
		case "eth_chainId":
			if !primaryHealthy.Load() {
				http.Error(w, "down", http.StatusServiceUnavailable)
				return
			}
			writeRPCResult(w, call.ID, `"0x89"`)
		case "eth_blockNumber":
			primaryBlockCalls.Add(1)
			writeRPCResult(w, call.ID, `"0x12d"`)
		}
	}))
	defer primary.Close()

	fallback := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		call := decodeRPCCall(r)
		switch call.Method {
		case "eth_chainId":
			writeRPCResult(w, call.ID, `"0x89"`)
		case "eth_blockNumber":
			fallbackBlockCalls.Add(1)
			http.Error(w, "Too Many Requests", http.StatusTooManyRequests)
		}
	}))
	defer fallback.Close()

	manager, err := NewEndpointManager(testRPCConfig(primary.URL, fallback.URL))
	if err != nil {
		t.Fatalf("Failed to create endpoint manager: %v", err)
	}
	defer manager.Close()

	// Primary is down at startup, so the connect loop lands on the fallback
	if err := manager.Connect(context.Background()); err != nil {
		t.Fatalf("Failed to connect: %v", err)
	}
	if manager.CurrentEndpoint() != fallback.URL {
		t.Fatalf("Expected cursor on fallback, got %s", manager.CurrentEndpoint())
	}

	primaryHealthy.Store(true)

	blockNumber, err := fetchBlockNumber(t, manager)
	if err != nil {
		t.Fatalf("Execute should recover on the primary: %v", err)
	}
	if blockNumber != 301 {
		t.Errorf("Expected block number 301 from the primary, got %d", blockNumber)
	}
	if fallbackBlockCalls.Load() != 1 {
		t.Errorf("Expected 1 rate limited call on the fallback, got %d", fallbackBlockCalls.Load())
	}
	if primaryBlockCalls.Load() != 1 {
		t.Errorf("Expected 1 call on the recovered primary, got %d", primaryBlockCalls.Load())
	}
	if manager.CurrentEndpoint() != primary.URL {
		t.Errorf("Expected cursor back on primary, got %s", manager.CurrentEndpoint())
	}
	if stats := manager.Stats(); stats.RateLimitHits != 1 {
		t.Errorf("Expected 1 rate limit hit, got %d", stats.RateLimitHits)
	}

	t.Logf("✓ Rate limited fallback abandoned for the recovered primary")
}

func TestExecutePrimaryRateLimitCoolsDown(t *testing.T) {
	utils.InitLogger("error", "text", "stdout", "")

	var blockCalls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		call := decodeRPCCall(r)
		switch call.Method {
		case "eth_chainId":
			writeRPCResult(w, call.ID, `"0x89"`)
		case "eth_blockNumber":
			if blockCalls.Add(1) <= 2 {
				writeRPCError(w, call.ID, -32005, "Too many requests")
				return
			}
			writeRPCResult(w, call.ID, `"0x1f4"`)
		}
	}))
	defer server.Close()

	manager, err := NewEndpointManager(testRPCConfig(server.URL))
	if err != nil {
		t.Fatalf("Failed to create endpoint manager: %v", err)
	}
	defer manager.Close()

	if err := manager.Connect(context.Background()); err != nil {
		t.Fatalf("Failed to connect: %v", err)
	}

	start := time.Now()
	blockNumber, err := fetchBlockNumber(t, manager)
	elapsed := time.Since(start)

	if err != nil {
		t.Fatalf("Execute should outlast the rate limit: %v", err)
	}
	if blockNumber != 500 {
		t.Errorf("Expected block number 500, got %d", blockNumber)
	}
	if got := blockCalls.Load(); got != 3 {
		t.Errorf("Expected 3 attempts, got %d", got)
	}

	stats := manager.Stats()
	if stats.RateLimitHits != 2 {
		t.Errorf("Expected 2 rate limit hits, got %d", stats.RateLimitHits)
	}
	if stats.Rotations != 0 {
		t.Errorf("A rate limited primary should not rotate, got %d rotations", stats.Rotations)
	}

	// Two cooldowns at triple the retry delay
	if minimum := 2 * 3 * 5 * time.Millisecond; elapsed < minimum {
		t.Errorf("Expected at least %v of cooldown, finished in %v", minimum, elapsed)
	}

	t.Logf("✓ Primary rate limit waited out in %v", elapsed)
}

func TestExecuteRotatesAfterRetriesExhausted(t *testing.T) {
	utils.InitLogger("error", "text", "stdout", "")

	var primaryBlockCalls, fallbackBlockCalls atomic.Int32

	primary := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		call := decodeRPCCall(r)
		switch call.Method {
		case "eth_chainId":
			writeRPCResult(w, call.ID, `"0x89"`)
		case "eth_blockNumber":
			primaryBlockCalls.Add(1)
			http.Error(w, "internal error", http.StatusInternalServerError)
		}
	}))
	defer primary.Close()

	fallback := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		call := decodeRPCCall(r)
		switch call.Method {
		case "eth_chainId":
			writeRPCResult(w, call.ID, `"0x89"`)
		case "eth_blockNumber":
			fallbackBlockCalls.Add(1)
			writeRPCResult(w, call.ID, `"0xc8"`)
		}
	}))
	defer fallback.Close()

	cfg := testRPCConfig(primary.URL, fallback.URL)
	cfg.MaxRetries = 2

	manager, err := NewEndpointManager(cfg)
	if err != nil {
		t.Fatalf("Failed to create endpoint manager: %v", err)
	}
	defer manager.Close()

	if err := manager.Connect(context.Background()); err != nil {
		t.Fatalf("Failed to connect: %v", err)
	}

	blockNumber, err := fetchBlockNumber(t, manager)
	if err != nil {
		t.Fatalf("Execute should succeed on the fallback: %v", err)
	}
	if blockNumber != 200 {
		t.Errorf("Expected block number 200 from the fallback, got %d", blockNumber)
	}
	if primaryBlockCalls.Load() != 2 {
		t.Errorf("Expected 2 failed attempts on the primary, got %d", primaryBlockCalls.Load())
	}
	if fallbackBlockCalls.Load() != 1 {
		t.Errorf("Expected the single post-rotation call on the fallback, got %d", fallbackBlockCalls.Load())
	}

	stats := manager.Stats()
	if stats.Rotations != 1 {
		t.Errorf("Expected 1 rotation, got %d", stats.Rotations)
	}
	if manager.CurrentEndpoint() != fallback.URL {
		t.Errorf("Expected cursor on fallback, got %s", manager.CurrentEndpoint())
	}
	if manager.MaxBlockRange() != 50 {
		t.Errorf("Expected fallback block range 50, got %d", manager.MaxBlockRange())
	}

	t.Logf("✓ Exhausted retries rotated to the fallback endpoint")
}

func TestExecuteSurfacesErrorWhenAllFail(t *testing.T) {
	utils.InitLogger("error", "text", "stdout", "")

	var blockCalls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		call := decodeRPCCall(r)
		switch call.Method {
		case "eth_chainId":
			writeRPCResult(w, call.ID, `"0x89"`)
		case "eth_blockNumber":
			blockCalls.Add(1)
			http.Error(w, "internal error", http.StatusInternalServerError)
		}
	}))
	defer server.Close()

	cfg := testRPCConfig(server.URL)
	cfg.MaxRetries = 2

	manager, err := NewEndpointManager(cfg)
	if err != nil {
		t.Fatalf("Failed to create endpoint manager: %v", err)
	}
	defer manager.Close()

	if err := manager.Connect(context.Background()); err != nil {
		t.Fatalf("Failed to connect: %v", err)
	}

	if _, err := fetchBlockNumber(t, manager); err == nil {
		t.Fatal("Execute should surface the error when every attempt fails")
	}
	// Single endpoint pool has nowhere to rotate
	if got := blockCalls.Load(); got != 2 {
		t.Errorf("Expected exactly 2 attempts, got %d", got)
	}
	if stats := manager.Stats(); stats.Rotations != 0 {
		t.Errorf("Expected no rotations, got %d", stats.Rotations)
	}

	t.Logf("✓ Exhausted single-endpoint pool surfaced the last error")
}

func TestIsRateLimitError(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"HTTP Status", errors.New("429 Too Many Requests: slow down"), true},
		{"Provider Message", errors.New("Too many requests"), true},
		{"Lowercase Phrase", errors.New("provider rate limit exceeded"), true},
		{"Mixed Case Phrase", errors.New("Rate Limit hit, retry later"), true},
		{"Ordinary Failure", errors.New("connection refused"), false},
		{"Nil", nil, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := isRateLimitError(tc.err); got != tc.want {
				t.Errorf("isRateLimitError(%v) = %t, want %t", tc.err, got, tc.want)
			}
		})
	}

	t.Logf("✓ Rate limit error classification verified")
}

func TestExpandEndpoints(t *testing.T) {
	utils.InitLogger("error", "text", "stdout", "")

	t.Setenv("INFURA_API_KEY", "")
	urls := ExpandEndpoints([]string{"https://polygon-rpc.com", "infura"})
	if len(urls) != 1 || urls[0] != "https://polygon-rpc.com" {
		t.Errorf("Expected the infura placeholder to be skipped, got %v", urls)
	}

	t.Setenv("INFURA_API_KEY", "deadbeefcafe")
	urls = ExpandEndpoints([]string{"infura", "https://polygon-rpc.com"})
	if len(urls) != 2 {
		t.Fatalf("Expected 2 endpoints, got %d", len(urls))
	}
	if urls[0] != "https://polygon-mainnet.infura.io/v3/deadbeefcafe" {
		t.Errorf("Unexpected infura expansion: %s", urls[0])
	}

	if masked := MaskEndpoint(urls[0]); masked != "https://polygon-mainnet.infura.io/v3/***cafe" {
		t.Errorf("Unexpected masked endpoint: %s", masked)
	}
	if masked := MaskEndpoint("https://polygon-rpc.com"); masked != "https://polygon-rpc.com" {
		t.Errorf("Keyless endpoint should be unchanged, got %s", masked)
	}

	t.Logf("✓ Endpoint expansion and masking verified")
}
