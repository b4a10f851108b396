// File: internal/monitor/filter.go
package monitor

import (
	"fmt"
	"sort"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/sirupsen/logrus"
	"github.com/smartdevs17/polymarket-trade-monitor/pkg/utils"
)

// AddressFilter matches OrderFilled logs against the monitored trader set.
// The log queries leave the maker and taker topic slots open, so every
// fill on the exchanges comes back and the filter decides client-side
// which ones belong to a monitored trader.
type AddressFilter struct {
	monitored map[common.Address]struct{}
	logger    *logrus.Logger
}

// NewAddressFilter builds a filter from configured trader addresses.
func NewAddressFilter(addresses []string) (*AddressFilter, error) {
	if len(addresses) == 0 {
		return nil, utils.NewAppError(utils.ErrCodeValidation, "No addresses to monitor", "")
	}

	monitored := make(map[common.Address]struct{}, len(addresses))
	for _, addr := range addresses {
		if !utils.IsValidAddress(addr) {
			return nil, utils.NewAppError(utils.ErrCodeValidation, "Invalid monitored address", addr)
		}
		monitored[common.HexToAddress(addr)] = struct{}{}
	}

	return &AddressFilter{
		monitored: monitored,
		logger:    utils.GetLogger(),
	}, nil
}

// Contains reports whether addr is monitored.
func (af *AddressFilter) Contains(addr common.Address) bool {
	_, ok := af.monitored[addr]
	return ok
}

// MatchMaker extracts the maker from topic slot 2 and reports whether it
// is a monitored trader.
func (af *AddressFilter) MatchMaker(log types.Log) (common.Address, bool) {
	if len(log.Topics) < 3 {
		return common.Address{}, false
	}
	maker := utils.TopicToAddress(log.Topics[2])
	return maker, af.Contains(maker)
}

// MatchTaker extracts the taker from topic slot 3 and reports whether it
// is a monitored trader.
func (af *AddressFilter) MatchTaker(log types.Log) (common.Address, bool) {
	if len(log.Topics) < 4 {
		return common.Address{}, false
	}
	taker := utils.TopicToAddress(log.Topics[3])
	return taker, af.Contains(taker)
}

// Addresses returns the monitored set in a stable order.
func (af *AddressFilter) Addresses() []string {
	addrs := make([]string, 0, len(af.monitored))
	for addr := range af.monitored {
		addrs = append(addrs, utils.NormalizeAddress(addr.Hex()))
	}
	sort.Strings(addrs)
	return addrs
}

// Count returns the number of monitored traders.
func (af *AddressFilter) Count() int {
	return len(af.monitored)
}

// String summarizes the filter for startup logging.
func (af *AddressFilter) String() string {
	return fmt.Sprintf("AddressFilter(%d traders)", len(af.monitored))
}
