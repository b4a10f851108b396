// File: internal/metadata/manager_test.go
package metadata

import (
	"context"
	"net/http"
	"path/filepath"
	"testing"
	"time"

	"github.com/smartdevs17/polymarket-trade-monitor/internal/config"
	"github.com/smartdevs17/polymarket-trade-monitor/internal/storage"
)

func newMetaStore(t *testing.T) storage.Storage {
	t.Helper()
	store, err := storage.NewStorage(&config.StorageConfig{
		Type:             "sqlite",
		ConnectionString: filepath.Join(t.TempDir(), "metadata_test.db"),
		MaxConnections:   5,
		MaxIdleTime:      time.Minute,
	})
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
	return store
}

func TestManagerCachesFetchedMarket(t *testing.T) {
	ctx := context.Background()
	store := newMetaStore(t)
	stub := &gammaStub{queue: []stubResponse{{http.StatusOK, marketBody()}}}
	client := newGammaClient(stub, t)
	mgr := NewManager(client, store, &config.MetadataConfig{Enabled: true})

	yesToken := hexToken(t, yesDecimal)
	noToken := hexToken(t, noDecimal)

	market, err := mgr.EnsureMarket(ctx, yesToken)
	if err != nil {
		t.Fatalf("Failed to ensure market: %v", err)
	}
	if market == nil || market.ID != "501234" {
		t.Fatal("Expected fetched market")
	}
	if stub.callCount() != 1 {
		t.Fatalf("Expected 1 Gamma request, got %d", stub.callCount())
	}

	// The fetch persisted both token legs; either resolves from storage.
	cached, err := store.GetMarketByToken(ctx, yesToken)
	if err != nil || cached == nil {
		t.Fatalf("Expected yes token mapping in storage: %v", err)
	}
	cached, err = store.GetMarketByToken(ctx, noToken)
	if err != nil || cached == nil {
		t.Fatalf("Expected no token mapping in storage: %v", err)
	}
	if cached.ID != "501234" {
		t.Errorf("Unexpected market for no token: %s", cached.ID)
	}

	// Repeat lookups hit the cache, not the API.
	if _, err := mgr.EnsureMarket(ctx, yesToken); err != nil {
		t.Fatalf("Cached lookup failed: %v", err)
	}
	if _, err := mgr.EnsureMarket(ctx, noToken); err != nil {
		t.Fatalf("Sibling token lookup failed: %v", err)
	}
	if stub.callCount() != 1 {
		t.Errorf("Expected no further Gamma requests, got %d", stub.callCount())
	}

	t.Logf("✓ Market cached after one fetch, both token legs resolve locally")
}

func TestManagerNegativeCache(t *testing.T) {
	ctx := context.Background()
	store := newMetaStore(t)
	stub := &gammaStub{}
	client := newGammaClient(stub, t)
	mgr := NewManager(client, store, &config.MetadataConfig{Enabled: true})

	token := hexToken(t, yesDecimal)

	market, err := mgr.EnsureMarket(ctx, token)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if market != nil {
		t.Error("Expected nil market for unlisted token")
	}
	if stub.callCount() != 1 {
		t.Fatalf("Expected 1 Gamma request, got %d", stub.callCount())
	}

	// The miss is remembered; the next fill does not re-query.
	if _, err := mgr.EnsureMarket(ctx, token); err != nil {
		t.Fatalf("Unexpected error on repeat: %v", err)
	}
	if stub.callCount() != 1 {
		t.Errorf("Expected miss to be cached, got %d requests", stub.callCount())
	}

	// A different token is its own lookup.
	if _, err := mgr.EnsureMarket(ctx, hexToken(t, noDecimal)); err != nil {
		t.Fatalf("Unexpected error for second token: %v", err)
	}
	if stub.callCount() != 2 {
		t.Errorf("Expected 2 requests after new token, got %d", stub.callCount())
	}

	t.Logf("✓ Unlisted tokens are negative-cached")
}

func TestManagerDisabled(t *testing.T) {
	ctx := context.Background()
	store := newMetaStore(t)
	stub := &gammaStub{}
	client := newGammaClient(stub, t)
	mgr := NewManager(client, store, &config.MetadataConfig{Enabled: false})

	market, err := mgr.EnsureMarket(ctx, hexToken(t, yesDecimal))
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if market != nil {
		t.Error("Expected nil market when metadata is disabled")
	}
	if stub.callCount() != 0 {
		t.Errorf("Disabled manager should not call Gamma, got %d requests", stub.callCount())
	}

	t.Logf("✓ Disabled manager is a no-op")
}
