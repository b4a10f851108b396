package connection

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/sirupsen/logrus"

	"github.com/smartdevs17/polymarket-trade-monitor/pkg/utils"
)

// PolygonClient wraps the endpoint manager with typed RPC helpers.
// Every call goes through the manager's retry and failover path.
type PolygonClient struct {
	manager Manager
	logger  *logrus.Logger
}

// NewPolygonClient creates a new Polygon client wrapper
func NewPolygonClient(manager Manager) *PolygonClient {
	return &PolygonClient{
		manager: manager,
		logger:  utils.GetLogger(),
	}
}

// Manager returns the underlying connection manager
func (pc *PolygonClient) Manager() Manager {
	return pc.manager
}

// MaxBlockRange returns the getLogs span limit of the current endpoint
func (pc *PolygonClient) MaxBlockRange() uint64 {
	return pc.manager.MaxBlockRange()
}

// BlockNumber returns the latest block number with retry
func (pc *PolygonClient) BlockNumber(ctx context.Context) (uint64, error) {
	var blockNumber uint64
	err := pc.manager.Execute(ctx, "eth_blockNumber", func(client *ethclient.Client) error {
		n, err := client.BlockNumber(ctx)
		if err != nil {
			return err
		}
		blockNumber = n
		return nil
	})
	if err != nil {
		return 0, utils.NewAppError(utils.ErrCodeBlockchain, "Failed to get latest block number", err.Error())
	}
	return blockNumber, nil
}

// ChainID returns the chain id with retry
func (pc *PolygonClient) ChainID(ctx context.Context) (uint64, error) {
	var chainID uint64
	err := pc.manager.Execute(ctx, "eth_chainId", func(client *ethclient.Client) error {
		id, err := client.ChainID(ctx)
		if err != nil {
			return err
		}
		chainID = id.Uint64()
		return nil
	})
	if err != nil {
		return 0, utils.NewAppError(utils.ErrCodeBlockchain, "Failed to get chain id", err.Error())
	}
	return chainID, nil
}

// FilterLogs runs an eth_getLogs query with retry
func (pc *PolygonClient) FilterLogs(ctx context.Context, query ethereum.FilterQuery) ([]types.Log, error) {
	var logs []types.Log
	err := pc.manager.Execute(ctx, "eth_getLogs", func(client *ethclient.Client) error {
		result, err := client.FilterLogs(ctx, query)
		if err != nil {
			return err
		}
		logs = result
		return nil
	})
	if err != nil {
		pc.logger.WithError(err).WithFields(logrus.Fields{
			"from_block": query.FromBlock,
			"to_block":   query.ToBlock,
		}).Error("Failed to filter logs")
		return nil, utils.NewAppError(utils.ErrCodeBlockchain, "Failed to filter logs", err.Error())
	}
	return logs, nil
}

// HeaderByNumber returns a block header with retry, nil number for latest
func (pc *PolygonClient) HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error) {
	var header *types.Header
	err := pc.manager.Execute(ctx, "eth_getBlockByNumber", func(client *ethclient.Client) error {
		h, err := client.HeaderByNumber(ctx, number)
		if err != nil {
			return err
		}
		header = h
		return nil
	})
	if err != nil {
		return nil, utils.NewAppError(utils.ErrCodeBlockchain, "Failed to get block header", err.Error())
	}
	return header, nil
}

// TransactionByHash returns a transaction with retry
func (pc *PolygonClient) TransactionByHash(ctx context.Context, hash common.Hash) (*types.Transaction, bool, error) {
	var tx *types.Transaction
	var pending bool
	err := pc.manager.Execute(ctx, "eth_getTransactionByHash", func(client *ethclient.Client) error {
		t, p, err := client.TransactionByHash(ctx, hash)
		if err != nil {
			return err
		}
		tx = t
		pending = p
		return nil
	})
	if err != nil {
		return nil, false, utils.NewAppError(utils.ErrCodeBlockchain, "Failed to get transaction", err.Error())
	}
	return tx, pending, nil
}

// TransactionReceipt returns a transaction receipt with retry
func (pc *PolygonClient) TransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	var receipt *types.Receipt
	err := pc.manager.Execute(ctx, "eth_getTransactionReceipt", func(client *ethclient.Client) error {
		r, err := client.TransactionReceipt(ctx, hash)
		if err != nil {
			return err
		}
		receipt = r
		return nil
	})
	if err != nil {
		return nil, utils.NewAppError(utils.ErrCodeBlockchain, "Failed to get transaction receipt", err.Error())
	}
	return receipt, nil
}
