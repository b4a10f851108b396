// File: internal/monitor/decoder.go
package monitor

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/sirupsen/logrus"
	"github.com/smartdevs17/polymarket-trade-monitor/internal/models"
	"github.com/smartdevs17/polymarket-trade-monitor/pkg/utils"
)

// OrderFilledSignature is the topic hash of
// OrderFilled(bytes32 orderHash, address maker, address taker,
// uint256 makerAssetId, uint256 takerAssetId, uint256 makerAmountFilled,
// uint256 takerAmountFilled, uint256 fee).
const OrderFilledSignature = "0xd0a08e8c493f9c94f29311604c9de1b4e8c8d4c06bd0c789af57f2d65bfec0f6"

// Both exchange deployments emit the same OrderFilled layout and both must
// be watched; neg-risk markets fill through their own exchange contract.
var (
	CTFExchange     = common.HexToAddress("0x4bFb41d5B3570DeFd03C39a9A4D8dE6Bd8B8982E")
	NegRiskExchange = common.HexToAddress("0xC5d563A36AE78145C45a50134d48A1215220f80a")

	ExchangeContracts = []common.Address{CTFExchange, NegRiskExchange}

	OrderFilledTopic = common.HexToHash(OrderFilledSignature)
)

// USDC and outcome tokens both carry six fractional digits.
const assetScale = 1e6

// Minimum ABI payload: makerAssetId, takerAssetId, makerAmountFilled,
// takerAmountFilled, fee. 32 bytes each.
const orderFilledDataLen = 5 * 32

// EventDecoder turns raw OrderFilled logs into fill events. Decoding is
// pure; malformed logs produce a decode error and never partial data.
type EventDecoder struct {
	logger *logrus.Logger
}

// NewEventDecoder creates a new event decoder
func NewEventDecoder() *EventDecoder {
	return &EventDecoder{
		logger: utils.GetLogger(),
	}
}

// DecodeOrderFilled decodes a single OrderFilled log.
//
// The zero asset id marks the USDC leg. Whichever side carries it fixes the
// trade direction, the traded token and the price (USDC per outcome token):
//   - zero on the maker side: outcome tokens sold for USDC
//   - zero on the taker side: outcome tokens bought with USDC
//   - zero on neither side: a direct token-for-token swap, no derivable price
//
// A zero filled amount on the divisor leg yields a nil price, not an error.
func (ed *EventDecoder) DecodeOrderFilled(log types.Log) (*models.FillEvent, error) {
	if len(log.Topics) < 4 {
		return nil, utils.NewAppError(utils.ErrCodeDecode, "OrderFilled log has too few topics",
			fmt.Sprintf("got %d topics, want 4 (tx %s)", len(log.Topics), log.TxHash.Hex()))
	}
	if len(log.Data) < orderFilledDataLen {
		return nil, utils.NewAppError(utils.ErrCodeDecode, "OrderFilled data truncated",
			fmt.Sprintf("got %d bytes, want %d (tx %s)", len(log.Data), orderFilledDataLen, log.TxHash.Hex()))
	}

	fill := &models.FillEvent{
		TxHash:       log.TxHash,
		BlockNumber:  log.BlockNumber,
		LogIndex:     log.Index,
		Contract:     log.Address,
		OrderHash:    log.Topics[1],
		Maker:        utils.TopicToAddress(log.Topics[2]),
		Taker:        utils.TopicToAddress(log.Topics[3]),
		MakerAssetID: new(big.Int).SetBytes(log.Data[0:32]),
		TakerAssetID: new(big.Int).SetBytes(log.Data[32:64]),
		MakerAmount:  new(big.Int).SetBytes(log.Data[64:96]),
		TakerAmount:  new(big.Int).SetBytes(log.Data[96:128]),
		Fee:          new(big.Int).SetBytes(log.Data[128:160]),
	}

	makerAmount := scaleAmount(fill.MakerAmount)
	takerAmount := scaleAmount(fill.TakerAmount)

	switch {
	case fill.MakerAssetID.Sign() == 0:
		// USDC on the maker leg: outcome tokens sold for USDC.
		fill.Side = models.SideSell
		fill.TokenID = tokenIDString(fill.TakerAssetID)
		fill.Quantity = takerAmount
		fill.Price = quotePrice(makerAmount, takerAmount)

	case fill.TakerAssetID.Sign() == 0:
		// USDC on the taker leg: outcome tokens bought with USDC.
		fill.Side = models.SideBuy
		fill.TokenID = tokenIDString(fill.MakerAssetID)
		fill.Quantity = makerAmount
		fill.Price = quotePrice(takerAmount, makerAmount)

	default:
		fill.Side = models.SideSwap
		fill.TokenID = tokenIDString(fill.MakerAssetID)
		fill.Quantity = makerAmount
	}

	return fill, nil
}

// BuildTradeRecord attributes a decoded fill to one monitored trader.
// Block timestamp, gas and capture delay are filled in by the scanner once
// the owning transaction has been fetched.
func BuildTradeRecord(fill *models.FillEvent, monitored common.Address, role string) *models.TradeRecord {
	counterparty := fill.Taker
	if role == models.RoleTaker {
		counterparty = fill.Maker
	}

	return &models.TradeRecord{
		TxHash:       fill.TxHash.Hex(),
		BlockNumber:  fill.BlockNumber,
		Address:      utils.NormalizeAddress(monitored.Hex()),
		Role:         role,
		Counterparty: utils.NormalizeAddress(counterparty.Hex()),
		OrderHash:    fill.OrderHash.Hex(),
		TokenID:      fill.TokenID,
		MakerAssetID: fill.MakerAssetID.String(),
		TakerAssetID: fill.TakerAssetID.String(),
		Side:         fill.Side,
		Quantity:     fill.Quantity,
		Price:        fill.Price,
		Fee:          scaleAmount(fill.Fee),
	}
}

// quotePrice returns usdc/tokens, nil when the token leg filled zero.
func quotePrice(usdc, tokens float64) *float64 {
	if tokens <= 0 {
		return nil
	}
	p := usdc / tokens
	return &p
}

// scaleAmount converts a raw fixed-point amount to token units.
func scaleAmount(raw *big.Int) float64 {
	f, _ := new(big.Float).Quo(new(big.Float).SetInt(raw), big.NewFloat(assetScale)).Float64()
	return f
}

// tokenIDString renders an outcome-token id, empty for the degenerate zero
// id so downstream validation rejects the fill.
func tokenIDString(id *big.Int) string {
	if id.Sign() == 0 {
		return ""
	}
	return utils.FormatTokenID(id)
}

// contractLabel names an exchange contract for logs and metrics.
func contractLabel(addr common.Address) string {
	switch addr {
	case CTFExchange:
		return "ctf_exchange"
	case NegRiskExchange:
		return "neg_risk_exchange"
	default:
		return "unknown"
	}
}
