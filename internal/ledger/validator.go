// File: internal/ledger/validator.go
package ledger

import (
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/smartdevs17/polymarket-trade-monitor/internal/models"
	"github.com/smartdevs17/polymarket-trade-monitor/pkg/utils"
)

// Plausibility bounds for decoded trades. Prices are probabilities,
// amounts are outcome-token units after fixed-point scaling. Breaching a
// hard bound rejects the trade; drifting below a soft floor only warns.
const (
	MaxReasonablePrice  = 1.0
	MinReasonablePrice  = 0.0001
	MaxReasonableAmount = 1000000.0
	MinReasonableAmount = 0.000001
)

// TradeValidator screens decoded trades before they touch storage or the
// ledger. A rejected trade is never persisted and never applied.
type TradeValidator struct {
	logger *logrus.Logger
}

// ValidationError represents a single failed check
type ValidationError struct {
	Field   string      `json:"field"`
	Message string      `json:"message"`
	Value   interface{} `json:"value,omitempty"`
}

// ValidationResult contains validation results
type ValidationResult struct {
	Valid    bool               `json:"valid"`
	Errors   []*ValidationError `json:"errors,omitempty"`
	Warnings []string           `json:"warnings,omitempty"`
}

// Reason labels the primary rejection cause for metrics. Empty when valid.
func (vr *ValidationResult) Reason() string {
	if vr.Valid || len(vr.Errors) == 0 {
		return ""
	}
	return vr.Errors[0].Field
}

// ErrorMessages joins all failures into one string for logging.
func (vr *ValidationResult) ErrorMessages() string {
	msgs := make([]string, 0, len(vr.Errors))
	for _, e := range vr.Errors {
		msgs = append(msgs, fmt.Sprintf("%s: %s", e.Field, e.Message))
	}
	return strings.Join(msgs, "; ")
}

// NewTradeValidator creates a new trade validator
func NewTradeValidator() *TradeValidator {
	return &TradeValidator{
		logger: utils.GetLogger(),
	}
}

// Validate runs all plausibility checks on a decoded trade.
func (tv *TradeValidator) Validate(trade *models.TradeRecord) *ValidationResult {
	result := &ValidationResult{
		Valid:  true,
		Errors: []*ValidationError{},
	}

	tv.validatePrice(trade, result)
	tv.validateQuantity(trade, result)
	tv.validateRequiredFields(trade, result)

	result.Valid = len(result.Errors) == 0
	return result
}

// validatePrice requires a price in (0, MaxReasonablePrice]. Swaps and
// zero-divisor fills carry no price and land here.
func (tv *TradeValidator) validatePrice(trade *models.TradeRecord, result *ValidationResult) {
	if trade.Price == nil {
		result.Errors = append(result.Errors, &ValidationError{
			Field:   "price",
			Message: "Price is missing; fill has no quote-currency leg",
		})
		return
	}

	price := *trade.Price
	switch {
	case price <= 0:
		result.Errors = append(result.Errors, &ValidationError{
			Field:   "price",
			Message: "Price must be positive",
			Value:   price,
		})
	case price > MaxReasonablePrice:
		result.Errors = append(result.Errors, &ValidationError{
			Field:   "price",
			Message: fmt.Sprintf("Price exceeds probability ceiling %.1f", MaxReasonablePrice),
			Value:   price,
		})
	case price < MinReasonablePrice:
		result.Warnings = append(result.Warnings,
			fmt.Sprintf("Unusually low price %.6f (min expected %.4f)", price, MinReasonablePrice))
	}
}

// validateQuantity requires a quantity in (0, MaxReasonableAmount].
func (tv *TradeValidator) validateQuantity(trade *models.TradeRecord, result *ValidationResult) {
	quantity := trade.Quantity
	switch {
	case quantity <= 0:
		result.Errors = append(result.Errors, &ValidationError{
			Field:   "quantity",
			Message: "Quantity must be positive",
			Value:   quantity,
		})
	case quantity > MaxReasonableAmount:
		result.Errors = append(result.Errors, &ValidationError{
			Field:   "quantity",
			Message: fmt.Sprintf("Quantity exceeds sanity ceiling %.0f", MaxReasonableAmount),
			Value:   quantity,
		})
	case quantity < MinReasonableAmount:
		result.Warnings = append(result.Warnings,
			fmt.Sprintf("Unusually small quantity %.6f (min expected %.6f)", quantity, MinReasonableAmount))
	}
}

// validateRequiredFields checks the identity fields the ledger keys on.
func (tv *TradeValidator) validateRequiredFields(trade *models.TradeRecord, result *ValidationResult) {
	if trade.TokenID == "" {
		result.Errors = append(result.Errors, &ValidationError{
			Field:   "token_id",
			Message: "Token id is required",
		})
	}

	switch trade.Side {
	case models.SideBuy, models.SideSell:
	case "":
		result.Errors = append(result.Errors, &ValidationError{
			Field:   "side",
			Message: "Side is required",
		})
	default:
		result.Errors = append(result.Errors, &ValidationError{
			Field:   "side",
			Message: "Side is not ledger-applicable",
			Value:   trade.Side,
		})
	}
}
