// File: internal/ledger/validator_test.go
package ledger

import (
	"strings"
	"testing"

	"github.com/smartdevs17/polymarket-trade-monitor/internal/models"
)

func validTrade() *models.TradeRecord {
	price := 0.45
	return &models.TradeRecord{
		TxHash:      "0xtest000000000000000000000000000000000000000000000000000000000001",
		BlockNumber: 52000000,
		Address:     "0x1111111111111111111111111111111111111111",
		TokenID:     "0xabc123",
		Side:        models.SideBuy,
		Quantity:    100,
		Price:       &price,
	}
}

func TestValidatorAcceptsPlausibleTrade(t *testing.T) {
	validator := NewTradeValidator()

	result := validator.Validate(validTrade())
	if !result.Valid {
		t.Fatalf("Expected valid trade, got errors: %s", result.ErrorMessages())
	}
	if result.Reason() != "" {
		t.Errorf("Expected empty reason for valid trade, got %s", result.Reason())
	}
	if len(result.Warnings) != 0 {
		t.Errorf("Expected no warnings, got %v", result.Warnings)
	}

	t.Logf("✓ Plausible trade accepted")
}

func TestValidatorRejectsMissingPrice(t *testing.T) {
	validator := NewTradeValidator()

	trade := validTrade()
	trade.Price = nil

	result := validator.Validate(trade)
	if result.Valid {
		t.Fatal("Expected rejection for missing price")
	}
	if result.Reason() != "price" {
		t.Errorf("Expected reason price, got %s", result.Reason())
	}
	if !strings.Contains(result.ErrorMessages(), "no quote-currency leg") {
		t.Errorf("Unexpected message: %s", result.ErrorMessages())
	}

	t.Logf("✓ Unpriced trade rejected: %s", result.ErrorMessages())
}

func TestValidatorPriceBounds(t *testing.T) {
	validator := NewTradeValidator()

	cases := []struct {
		name  string
		price float64
		valid bool
		warns bool
	}{
		{"Zero", 0, false, false},
		{"Negative", -0.1, false, false},
		{"Above Ceiling", 1.2, false, false},
		{"At Ceiling", 1.0, true, false},
		{"Below Soft Floor", 0.00005, true, true},
		{"Normal", 0.45, true, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			trade := validTrade()
			price := tc.price
			trade.Price = &price

			result := validator.Validate(trade)
			if result.Valid != tc.valid {
				t.Errorf("Price %f: expected valid=%v, got %v (%s)",
					tc.price, tc.valid, result.Valid, result.ErrorMessages())
			}
			if tc.warns && len(result.Warnings) == 0 {
				t.Errorf("Price %f: expected a warning", tc.price)
			}
			if !tc.warns && len(result.Warnings) != 0 {
				t.Errorf("Price %f: unexpected warnings %v", tc.price, result.Warnings)
			}
		})
	}

	t.Logf("✓ Price bounds enforced")
}

func TestValidatorQuantityBounds(t *testing.T) {
	validator := NewTradeValidator()

	cases := []struct {
		name     string
		quantity float64
		valid    bool
		warns    bool
	}{
		{"Zero", 0, false, false},
		{"Negative", -5, false, false},
		{"Above Ceiling", 1000001, false, false},
		{"At Ceiling", 1000000, true, false},
		{"Below Soft Floor", 0.0000005, true, true},
		{"Normal", 100, true, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			trade := validTrade()
			trade.Quantity = tc.quantity

			result := validator.Validate(trade)
			if result.Valid != tc.valid {
				t.Errorf("Quantity %f: expected valid=%v, got %v (%s)",
					tc.quantity, tc.valid, result.Valid, result.ErrorMessages())
			}
			if tc.warns && len(result.Warnings) == 0 {
				t.Errorf("Quantity %f: expected a warning", tc.quantity)
			}
		})
	}

	t.Logf("✓ Quantity bounds enforced")
}

func TestValidatorRequiredFields(t *testing.T) {
	validator := NewTradeValidator()

	t.Run("Missing Token ID", func(t *testing.T) {
		trade := validTrade()
		trade.TokenID = ""

		result := validator.Validate(trade)
		if result.Valid {
			t.Fatal("Expected rejection for missing token id")
		}
		if result.Reason() != "token_id" {
			t.Errorf("Expected reason token_id, got %s", result.Reason())
		}
	})

	t.Run("Swap Side", func(t *testing.T) {
		trade := validTrade()
		trade.Side = models.SideSwap

		result := validator.Validate(trade)
		if result.Valid {
			t.Fatal("Expected rejection for swap side")
		}
		if result.Reason() != "side" {
			t.Errorf("Expected reason side, got %s", result.Reason())
		}
	})

	t.Run("Empty Side", func(t *testing.T) {
		trade := validTrade()
		trade.Side = ""

		result := validator.Validate(trade)
		if result.Valid {
			t.Fatal("Expected rejection for empty side")
		}
	})

	t.Logf("✓ Required fields enforced")
}

func TestValidatorCollectsAllFailures(t *testing.T) {
	validator := NewTradeValidator()

	trade := validTrade()
	trade.Price = nil
	trade.Quantity = -1
	trade.TokenID = ""

	result := validator.Validate(trade)
	if result.Valid {
		t.Fatal("Expected rejection")
	}
	if len(result.Errors) != 3 {
		t.Errorf("Expected 3 errors, got %d: %s", len(result.Errors), result.ErrorMessages())
	}
	// The first failed check labels the rejection for metrics.
	if result.Reason() != "price" {
		t.Errorf("Expected reason price, got %s", result.Reason())
	}
	if !strings.Contains(result.ErrorMessages(), "; ") {
		t.Errorf("Expected joined messages, got %s", result.ErrorMessages())
	}

	t.Logf("✓ All failures collected: %s", result.ErrorMessages())
}
