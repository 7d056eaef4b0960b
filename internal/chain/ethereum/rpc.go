package ethereum

import (
	"context"
	"math/big"

	geth "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/pkg/errors"
)

// RPCClient Ethereum RPC 客户端
type RPCClient struct {
	endpoint string
	rpc      *rpc.Client
	eth      *ethclient.Client
}

// NewRPCClient 创建 Ethereum RPC 客户端（HTTP 端点不会立即建立连接）
func NewRPCClient(ctx context.Context, endpoint string) (*RPCClient, error) {
	client, err := rpc.DialContext(ctx, endpoint)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to dial rpc endpoint %s", endpoint)
	}

	return &RPCClient{
		endpoint: endpoint,
		rpc:      client,
		eth:      ethclient.NewClient(client),
	}, nil
}

// Endpoint 返回 RPC 地址
func (c *RPCClient) Endpoint() string {
	return c.endpoint
}

// GetBalance 查询余额
func (c *RPCClient) GetBalance(ctx context.Context, address string) (*big.Int, error) {
	if !common.IsHexAddress(address) {
		return nil, errors.Errorf("invalid address %q", address)
	}
	balance, err := c.eth.BalanceAt(ctx, common.HexToAddress(address), nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to call eth_getBalance")
	}
	return balance, nil
}

// GetTransactionCount 获取 pending 交易计数（用于 nonce）
func (c *RPCClient) GetTransactionCount(ctx context.Context, address string) (uint64, error) {
	if !common.IsHexAddress(address) {
		return 0, errors.Errorf("invalid address %q", address)
	}
	nonce, err := c.eth.PendingNonceAt(ctx, common.HexToAddress(address))
	if err != nil {
		return 0, errors.Wrap(err, "failed to call eth_getTransactionCount")
	}
	return nonce, nil
}

// GetGasPrice 获取当前 gas price
func (c *RPCClient) GetGasPrice(ctx context.Context) (*big.Int, error) {
	gasPrice, err := c.eth.SuggestGasPrice(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to call eth_gasPrice")
	}
	return gasPrice, nil
}

// EstimateGas 估算 gas limit
func (c *RPCClient) EstimateGas(ctx context.Context, msg geth.CallMsg) (uint64, error) {
	gas, err := c.eth.EstimateGas(ctx, msg)
	if err != nil {
		return 0, errors.Wrap(err, "failed to call eth_estimateGas")
	}
	return gas, nil
}

// SendRawTransaction 广播交易
func (c *RPCClient) SendRawTransaction(ctx context.Context, rawTx string) (string, error) {
	var txHash common.Hash
	if err := c.rpc.CallContext(ctx, &txHash, "eth_sendRawTransaction", rawTx); err != nil {
		return "", errors.Wrap(err, "failed to call eth_sendRawTransaction")
	}
	return txHash.Hex(), nil
}

// Close 关闭底层连接
func (c *RPCClient) Close() {
	c.rpc.Close()
}
