// File: internal/backfill/reconciler_test.go
package backfill

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"math/big"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/smartdevs17/polymarket-trade-monitor/internal/config"
	"github.com/smartdevs17/polymarket-trade-monitor/internal/connection"
	"github.com/smartdevs17/polymarket-trade-monitor/internal/ledger"
	"github.com/smartdevs17/polymarket-trade-monitor/internal/models"
	"github.com/smartdevs17/polymarket-trade-monitor/internal/monitor"
	"github.com/smartdevs17/polymarket-trade-monitor/internal/storage"
	"github.com/smartdevs17/polymarket-trade-monitor/pkg/utils"
)

var (
	backfillTrader      = common.HexToAddress("0x7777777777777777777777777777777777777777")
	backfillCounterpart = common.HexToAddress("0x8888888888888888888888888888888888888888")
	backfillToken       = big.NewInt(777000222)

	emptyBloom = "0x" + strings.Repeat("0", 512)
	zeroWord   = "0x" + strings.Repeat("0", 64)
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

func writeRPCResult(w http.ResponseWriter, id json.RawMessage, result string) {
	w.Header().Set("Content-Type", "application/json")
	fmt.Fprintf(w, `{"jsonrpc":"2.0","id":%s,"result":%s}`, id, result)
}

func hexToUint(s string) uint64 {
	n, _ := strconv.ParseUint(strings.TrimPrefix(s, "0x"), 16, 64)
	return n
}

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func usdc(amount float64) *big.Int {
	return big.NewInt(int64(amount * 1e6))
}

func paddedTopic(addr common.Address) string {
	return common.BytesToHash(common.LeftPadBytes(addr.Bytes(), 32)).Hex()
}

// chainFill is one OrderFilled log the fake node returns for queries
// whose window covers its block.
type chainFill struct {
	block uint64
	json  string
}

func buyFillJSON(maker, taker common.Address, token *big.Int, tokens, quote float64, block uint64, txHash string) chainFill {
	data := make([]byte, 0, 160)
	for _, word := range []*big.Int{token, big.NewInt(0), usdc(tokens), usdc(quote), big.NewInt(0)} {
		data = append(data, common.LeftPadBytes(word.Bytes(), 32)...)
	}
	topics := fmt.Sprintf(`[%q,"0xabab000000000000000000000000000000000000000000000000000000000001",%q,%q]`,
		monitor.OrderFilledTopic.Hex(), paddedTopic(maker), paddedTopic(taker))
	body := fmt.Sprintf(`{"address":%q,"topics":%s,"data":%q,"blockNumber":"0x%x","transactionHash":%q,"transactionIndex":"0x0","blockHash":"0x%064x","logIndex":"0x0","removed":false}`,
		strings.ToLower(monitor.CTFExchange.Hex()), topics, "0x"+common.Bytes2Hex(data), block, txHash, block)
	return chainFill{block: block, json: body}
}

// historyChain serves the archive the reconciler searches. Unlike the
// live-scan fixtures, log queries are filtered by block range, so a fill
// only appears in the window that actually covers it.
type historyChain struct {
	mu               sync.Mutex
	head             uint64
	blockTime        int64
	fills            []chainFill
	blockNumberCalls int
	getLogsCalls     int
	windows          [][2]uint64
}

func newHistoryChain(head uint64, fills ...chainFill) *historyChain {
	return &historyChain{
		head:      head,
		blockTime: time.Now().Unix() - 45,
		fills:     fills,
	}
}

func (hc *historyChain) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		call := decodeRPCCall(r)
		switch call.Method {
		case "eth_chainId":
			writeRPCResult(w, call.ID, `"0x89"`)

		case "eth_blockNumber":
			hc.mu.Lock()
			hc.blockNumberCalls++
			head := hc.head
			hc.mu.Unlock()
			writeRPCResult(w, call.ID, fmt.Sprintf(`"0x%x"`, head))

		case "eth_getLogs":
			var arg struct {
				FromBlock string `json:"fromBlock"`
				ToBlock   string `json:"toBlock"`
			}
			if len(call.Params) > 0 {
				_ = json.Unmarshal(call.Params[0], &arg)
			}
			from, to := hexToUint(arg.FromBlock), hexToUint(arg.ToBlock)

			hc.mu.Lock()
			hc.getLogsCalls++
			hc.windows = append(hc.windows, [2]uint64{from, to})
			matched := make([]string, 0, len(hc.fills))
			for _, fill := range hc.fills {
				if fill.block >= from && fill.block <= to {
					matched = append(matched, fill.json)
				}
			}
			hc.mu.Unlock()
			writeRPCResult(w, call.ID, "["+strings.Join(matched, ",")+"]")

		case "eth_getTransactionByHash":
			var hash string
			if len(call.Params) > 0 {
				_ = json.Unmarshal(call.Params[0], &hash)
			}
			writeRPCResult(w, call.ID, fmt.Sprintf(
				`{"hash":%q,"type":"0x0","nonce":"0x1","gasPrice":"0x6fc23ac00","gas":"0x33450","to":%q,"value":"0x0","input":"0x","v":"0x136","r":"0x1","s":"0x1"}`,
				hash, strings.ToLower(monitor.CTFExchange.Hex())))

		case "eth_getTransactionReceipt":
			var hash string
			if len(call.Params) > 0 {
				_ = json.Unmarshal(call.Params[0], &hash)
			}
			writeRPCResult(w, call.ID, fmt.Sprintf(
				`{"transactionHash":%q,"type":"0x0","status":"0x1","cumulativeGasUsed":"0x1a2b4","gasUsed":"0x1a2b4","logsBloom":%q,"logs":[],"blockNumber":"0x100","transactionIndex":"0x0"}`,
				hash, emptyBloom))

		case "eth_getBlockByNumber":
			var number string
			if len(call.Params) > 0 {
				_ = json.Unmarshal(call.Params[0], &number)
			}
			hc.mu.Lock()
			ts := hc.blockTime
			hc.mu.Unlock()
			writeRPCResult(w, call.ID, fmt.Sprintf(
				`{"parentHash":%q,"sha3Uncles":%q,"miner":"0x%s","stateRoot":%q,"transactionsRoot":%q,"receiptsRoot":%q,"logsBloom":%q,"difficulty":"0x7","number":%q,"gasLimit":"0x1c9c380","gasUsed":"0xa2b40","timestamp":"0x%x","extraData":"0x","mixHash":%q,"nonce":"0x0000000000000000","baseFeePerGas":"0x3b9aca00"}`,
				zeroWord, zeroWord, strings.Repeat("0", 40), zeroWord, zeroWord, zeroWord,
				emptyBloom, number, ts, zeroWord))

		default:
			w.Header().Set("Content-Type", "application/json")
			fmt.Fprintf(w, `{"jsonrpc":"2.0","id":%s,"error":{"code":-32601,"message":"method not found"}}`, call.ID)
		}
	}
}

func (hc *historyChain) logQueries() int {
	hc.mu.Lock()
	defer hc.mu.Unlock()
	return hc.getLogsCalls
}

func (hc *historyChain) headQueries() int {
	hc.mu.Lock()
	defer hc.mu.Unlock()
	return hc.blockNumberCalls
}

func (hc *historyChain) windowAt(i int) [2]uint64 {
	hc.mu.Lock()
	defer hc.mu.Unlock()
	if i < 0 || i >= len(hc.windows) {
		return [2]uint64{}
	}
	return hc.windows[i]
}

func (hc *historyChain) lastWindow() [2]uint64 {
	hc.mu.Lock()
	defer hc.mu.Unlock()
	if len(hc.windows) == 0 {
		return [2]uint64{}
	}
	return hc.windows[len(hc.windows)-1]
}

func backfillTestConfig() *config.BackfillConfig {
	return &config.BackfillConfig{
		Enabled:       true,
		LookbackDays:  1,
		BatchSize:     100,
		BatchDelay:    time.Millisecond,
		PositionDelay: time.Millisecond,
	}
}

func newReconcilerHarness(t *testing.T, chain *historyChain, cfg *config.BackfillConfig) (*Reconciler, *ledger.Ledger, storage.Storage) {
	t.Helper()

	utils.InitLogger("error", "text", "stdout", "")

	storageCfg := &config.StorageConfig{
		Type:             "sqlite",
		ConnectionString: filepath.Join(t.TempDir(), "backfill_test.db"),
		MaxConnections:   5,
		MaxIdleTime:      time.Minute,
	}
	store, err := storage.NewStorage(storageCfg)
	if err != nil {
		t.Fatalf("Failed to create storage: %v", err)
	}
	if err := store.Connect(); err != nil {
		t.Fatalf("Failed to connect storage: %v", err)
	}
	if err := store.Migrate(); err != nil {
		t.Fatalf("Failed to migrate storage: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	server := httptest.NewServer(chain.handler())
	t.Cleanup(server.Close)

	manager, err := connection.NewEndpointManager(&config.RPCConfig{
		Endpoints:         []string{server.URL},
		RequestTimeout:    5 * time.Second,
		MaxRetries:        2,
		RetryDelay:        2 * time.Millisecond,
		MaxBlockRanges:    []uint64{100},
		DefaultBlockRange: 100,
	})
	if err != nil {
		t.Fatalf("Failed to create endpoint manager: %v", err)
	}
	if err := manager.Connect(context.Background()); err != nil {
		t.Fatalf("Failed to connect: %v", err)
	}
	t.Cleanup(func() { manager.Close() })
	client := connection.NewPolygonClient(manager)

	ldgr := ledger.NewLedger(store, &config.LedgerConfig{
		SettleWinThreshold:  0.95,
		SettleLossThreshold: 0.05,
		CloseEpsilon:        0.0001,
	})

	filter, err := monitor.NewAddressFilter([]string{backfillTrader.Hex()})
	if err != nil {
		t.Fatalf("Failed to create address filter: %v", err)
	}
	scanner := monitor.NewWindowScanner(client, ldgr, filter, &config.MonitorConfig{
		Addresses:    []string{backfillTrader.Hex()},
		RequestDelay: time.Millisecond,
		BatchSize:    100,
	})

	return NewReconciler(scanner, client, store, cfg), ldgr, store
}

var sellSeq int

// seedOrphanSell records a sell with no buy history, leaving the position
// negative and eligible for reconciliation.
func seedOrphanSell(t *testing.T, ldgr *ledger.Ledger, tokenID string, age time.Duration) {
	t.Helper()

	sellSeq++
	price := 0.6
	trade := &models.TradeRecord{
		TxHash:      fmt.Sprintf("0x%063x9", sellSeq),
		BlockNumber: 21900,
		Timestamp:   time.Now().Add(-age).Unix(),
		Address:     utils.NormalizeAddress(backfillTrader.Hex()),
		Role:        models.RoleMaker,
		TokenID:     tokenID,
		Side:        models.SideSell,
		Quantity:    50,
		Price:       &price,
	}
	applied, err := ldgr.Record(context.Background(), trade)
	if err != nil {
		t.Fatalf("Failed to seed orphan sell: %v", err)
	}
	if !applied {
		t.Fatal("Seed sell was not applied")
	}
}

func TestReconcilerFlagsStalePosition(t *testing.T) {
	chain := newHistoryChain(22000)
	rec, ldgr, store := newReconcilerHarness(t, chain, backfillTestConfig())
	ctx := context.Background()

	tokenID := utils.FormatTokenID(backfillToken)
	// First trade 30 hours ago against a one-day lookback.
	seedOrphanSell(t, ldgr, tokenID, 30*time.Hour)

	incomplete, err := rec.FindIncomplete(ctx)
	if err != nil {
		t.Fatalf("Failed to find incomplete positions: %v", err)
	}
	if len(incomplete) != 1 {
		t.Fatalf("Expected 1 incomplete position, got %d", len(incomplete))
	}
	if !incomplete[0].HasMissingBuys() {
		t.Error("Candidate should be flagged as missing buys")
	}

	repaired, found, err := rec.Reconcile(ctx, incomplete[0])
	if err != nil {
		t.Fatalf("Failed to reconcile: %v", err)
	}
	if repaired || found != 0 {
		t.Errorf("Stale position should not be repaired, got %v/%d", repaired, found)
	}

	// The lookback bound was checked before any chain access.
	if chain.logQueries() != 0 {
		t.Errorf("Expected 0 log queries, got %d", chain.logQueries())
	}
	if chain.headQueries() != 0 {
		t.Errorf("Expected 0 head queries, got %d", chain.headQueries())
	}

	position, err := store.GetPosition(ctx, backfillTrader.Hex(), tokenID)
	if err != nil {
		t.Fatalf("Failed to load position: %v", err)
	}
	if !position.BackfillTried {
		t.Error("Position should be marked as attempted")
	}
	if position.IsComplete == nil || *position.IsComplete {
		t.Errorf("Position should be flagged incomplete, got %v", position.IsComplete)
	}
	if position.BackfillDate == nil {
		t.Error("Backfill date should be set")
	}

	// Flagged positions never come back as candidates.
	incomplete, err = rec.FindIncomplete(ctx)
	if err != nil {
		t.Fatalf("Failed to re-query incomplete positions: %v", err)
	}
	if len(incomplete) != 0 {
		t.Errorf("Expected no remaining candidates, got %d", len(incomplete))
	}

	t.Logf("✓ Stale position flagged incomplete without touching the chain")
}

func TestReconcilerRecoversMissingBuys(t *testing.T) {
	// The missing buy sits at block 250, inside the lookback window that
	// precedes the orphan sell's estimated block.
	missingBuy := buyFillJSON(backfillTrader, backfillCounterpart, backfillToken, 100, 40, 250,
		"0xffff000000000000000000000000000000000000000000000000000000000001")
	chain := newHistoryChain(22000, missingBuy)

	rec, ldgr, store := newReconcilerHarness(t, chain, backfillTestConfig())
	ctx := context.Background()

	tokenID := utils.FormatTokenID(backfillToken)
	// Sell 50 recorded 12 hours ago; at two-second blocks the estimate
	// lands near block 400 on a chain at height 22000.
	seedOrphanSell(t, ldgr, tokenID, 12*time.Hour)

	incomplete, err := rec.FindIncomplete(ctx)
	if err != nil {
		t.Fatalf("Failed to find incomplete positions: %v", err)
	}
	if len(incomplete) != 1 {
		t.Fatalf("Expected 1 incomplete position, got %d", len(incomplete))
	}

	repaired, found, err := rec.Reconcile(ctx, incomplete[0])
	if err != nil {
		t.Fatalf("Failed to reconcile: %v", err)
	}
	if !repaired {
		t.Error("Expected position to be repaired")
	}
	if found != 1 {
		t.Errorf("Expected 1 recovered trade, got %d", found)
	}

	// The search covered [0, ~firstTradeBlock] in batched windows.
	if chain.windowAt(0) != [2]uint64{0, 99} {
		t.Errorf("Expected first window [0, 99], got %v", chain.windowAt(0))
	}
	last := chain.lastWindow()
	if last[1] < 350 || last[1] > 410 {
		t.Errorf("Expected search to end near block 400, got %v", last)
	}

	ok, err := store.HasTrade(ctx, "0xffff000000000000000000000000000000000000000000000000000000000001")
	if err != nil {
		t.Fatalf("Failed to check recovered trade: %v", err)
	}
	if !ok {
		t.Error("Recovered buy should be persisted")
	}

	position, err := store.GetPosition(ctx, backfillTrader.Hex(), tokenID)
	if err != nil {
		t.Fatalf("Failed to load position: %v", err)
	}
	if !almostEqual(position.TotalBought, 100) {
		t.Errorf("Expected total bought 100, got %f", position.TotalBought)
	}
	if !almostEqual(position.CurrentQuantity, 50) {
		t.Errorf("Expected quantity 50 after recovery, got %f", position.CurrentQuantity)
	}
	if !almostEqual(position.AvgBuyPrice, 0.4) {
		t.Errorf("Expected avg buy price 0.4, got %f", position.AvgBuyPrice)
	}
	if position.HasMissingBuys() {
		t.Error("Recovered position should no longer be missing buys")
	}
	if !position.BackfillTried {
		t.Error("Position should be marked as attempted")
	}
	if position.IsComplete == nil || !*position.IsComplete {
		t.Errorf("Position should be marked complete, got %v", position.IsComplete)
	}

	t.Logf("✓ Recovered %d trade from window [%d, %d], balance now %f",
		found, chain.windowAt(0)[0], last[1], position.CurrentQuantity)
}

func TestReconcilerRunProcessesAllCandidates(t *testing.T) {
	missingBuy := buyFillJSON(backfillTrader, backfillCounterpart, backfillToken, 100, 40, 250,
		"0xffff000000000000000000000000000000000000000000000000000000000002")
	chain := newHistoryChain(22000, missingBuy)

	cfg := backfillTestConfig()
	cfg.Enabled = false
	rec, ldgr, store := newReconcilerHarness(t, chain, cfg)
	ctx := context.Background()

	recoverable := utils.FormatTokenID(backfillToken)
	stale := utils.FormatTokenID(big.NewInt(888000333))
	seedOrphanSell(t, ldgr, recoverable, 12*time.Hour)
	seedOrphanSell(t, ldgr, stale, 30*time.Hour)

	// Disabled runs touch nothing.
	if err := rec.Run(ctx); err != nil {
		t.Fatalf("Disabled run failed: %v", err)
	}
	incomplete, _ := rec.FindIncomplete(ctx)
	if len(incomplete) != 2 {
		t.Fatalf("Disabled run should leave candidates untouched, got %d", len(incomplete))
	}
	if chain.logQueries() != 0 {
		t.Errorf("Disabled run should not query the chain, got %d", chain.logQueries())
	}

	cfg.Enabled = true
	if err := rec.Run(ctx); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	incomplete, err := rec.FindIncomplete(ctx)
	if err != nil {
		t.Fatalf("Failed to re-query incomplete positions: %v", err)
	}
	if len(incomplete) != 0 {
		t.Errorf("Expected all candidates handled, got %d remaining", len(incomplete))
	}

	repaired, err := store.GetPosition(ctx, backfillTrader.Hex(), recoverable)
	if err != nil {
		t.Fatalf("Failed to load repaired position: %v", err)
	}
	if repaired.IsComplete == nil || !*repaired.IsComplete {
		t.Errorf("Recoverable position should be complete, got %v", repaired.IsComplete)
	}
	if !almostEqual(repaired.CurrentQuantity, 50) {
		t.Errorf("Expected recovered balance 50, got %f", repaired.CurrentQuantity)
	}

	flagged, err := store.GetPosition(ctx, backfillTrader.Hex(), stale)
	if err != nil {
		t.Fatalf("Failed to load stale position: %v", err)
	}
	if !flagged.BackfillTried {
		t.Error("Stale position should be marked as attempted")
	}
	if flagged.IsComplete == nil || *flagged.IsComplete {
		t.Errorf("Stale position should stay incomplete, got %v", flagged.IsComplete)
	}

	completedAt, err := store.GetState(storage.StateBackfillDone)
	if err != nil {
		t.Fatalf("Failed to read completion marker: %v", err)
	}
	if completedAt == "" {
		t.Error("Expected a completion timestamp after an enabled run")
	}

	t.Logf("✓ Run repaired one position and flagged one as incomplete")
}
