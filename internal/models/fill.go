package models

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// FillEvent is one decoded OrderFilled log, before attribution to a
// monitored trader. Amounts are raw base units (6 decimals both legs);
// the derived Side, Quantity and Price carry the normalized view.
//
// Exactly one of the asset ids is zero for a priced fill: the zero id is
// the USDC leg and the non-zero id is the outcome token. When neither is
// zero the fill is a token-for-token swap and Price is nil.
type FillEvent struct {
	TxHash          common.Hash    `json:"tx_hash"`
	BlockNumber     uint64         `json:"block_number"`
	LogIndex        uint           `json:"log_index"`
	Contract        common.Address `json:"contract"`
	OrderHash       common.Hash    `json:"order_hash"`
	Maker           common.Address `json:"maker"`
	Taker           common.Address `json:"taker"`
	MakerAssetID    *big.Int       `json:"maker_asset_id"`
	TakerAssetID    *big.Int       `json:"taker_asset_id"`
	MakerAmount     *big.Int       `json:"maker_amount_filled"`
	TakerAmount     *big.Int       `json:"taker_amount_filled"`
	Fee             *big.Int       `json:"fee"`
	Side            string         `json:"side"`
	TokenID         string         `json:"token_id"`
	Quantity        float64        `json:"quantity"`
	Price           *float64       `json:"price,omitempty"`
}

// Involves reports whether addr appears on either side of the fill.
func (f *FillEvent) Involves(addr common.Address) bool {
	return f.Maker == addr || f.Taker == addr
}

// RoleOf returns the side addr played in the fill, empty when uninvolved.
func (f *FillEvent) RoleOf(addr common.Address) string {
	switch addr {
	case f.Maker:
		return RoleMaker
	case f.Taker:
		return RoleTaker
	default:
		return ""
	}
}
