package chain

import (
	"context"
	"math/big"

	"github.com/SafeMPC/card-bridge/internal/chain/ethereum"
	"github.com/btcsuite/btcd/btcec/v2"
	geth "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/pkg/errors"
)

// EthereumAdapter 实现 EVM 链基础能力
type EthereumAdapter struct {
	chainID   *big.Int
	rpcClient *ethereum.RPCClient
}

// NewEthereumAdapter 创建以太坊适配器，rpcClient 可以为空
func NewEthereumAdapter(chainID *big.Int, rpcClient *ethereum.RPCClient) *EthereumAdapter {
	if chainID == nil {
		chainID = big.NewInt(1) // mainnet
	}

	return &EthereumAdapter{
		chainID:   chainID,
		rpcClient: rpcClient,
	}
}

// ChainID 返回 EIP-155 链 ID
func (a *EthereumAdapter) ChainID() *big.Int {
	return new(big.Int).Set(a.chainID)
}

// GetBalance 查询余额
func (a *EthereumAdapter) GetBalance(ctx context.Context, address string) (*big.Int, error) {
	if a.rpcClient == nil {
		return nil, errors.New("RPC client not configured")
	}
	return a.rpcClient.GetBalance(ctx, address)
}

// GetTransactionCount 获取交易计数（用于 nonce）
func (a *EthereumAdapter) GetTransactionCount(ctx context.Context, address string) (uint64, error) {
	if a.rpcClient == nil {
		return 0, errors.New("RPC client not configured")
	}
	return a.rpcClient.GetTransactionCount(ctx, address)
}

// GetGasPrice 获取当前 gas price
func (a *EthereumAdapter) GetGasPrice(ctx context.Context) (*big.Int, error) {
	if a.rpcClient == nil {
		return nil, errors.New("RPC client not configured")
	}
	return a.rpcClient.GetGasPrice(ctx)
}

// EstimateGas 估算 gas limit
func (a *EthereumAdapter) EstimateGas(ctx context.Context, msg geth.CallMsg) (uint64, error) {
	if a.rpcClient == nil {
		return 0, errors.New("RPC client not configured")
	}
	return a.rpcClient.EstimateGas(ctx, msg)
}

// BroadcastTransaction 广播交易
func (a *EthereumAdapter) BroadcastTransaction(ctx context.Context, rawTx string) (string, error) {
	if a.rpcClient == nil {
		return "", errors.New("RPC client not configured")
	}
	return a.rpcClient.SendRawTransaction(ctx, rawTx)
}

// GenerateAddress 通过 Keccak256(pubKey[1:]) 生成地址
func (a *EthereumAdapter) GenerateAddress(pubKey []byte) (common.Address, error) {
	return AddressFromPublicKey(pubKey)
}

// AddressFromPublicKey 支持 65 字节未压缩和 33 字节压缩公钥
func AddressFromPublicKey(pubKey []byte) (common.Address, error) {
	if len(pubKey) == 0 {
		return common.Address{}, errors.New("public key is required")
	}
	var uncompressed64 []byte
	switch {
	case len(pubKey) == 65 && pubKey[0] == 0x04:
		uncompressed64 = pubKey[1:]
	case len(pubKey) == 33 && (pubKey[0] == 0x02 || pubKey[0] == 0x03):
		key, err := btcec.ParsePubKey(pubKey)
		if err != nil {
			return common.Address{}, errors.Wrap(err, "failed to parse compressed secp256k1 pubkey")
		}
		u := key.SerializeUncompressed() // 65 bytes, 0x04 | X | Y
		uncompressed64 = u[1:]
	default:
		return common.Address{}, errors.Errorf("unsupported public key format: len=%d", len(pubKey))
	}
	hash := crypto.Keccak256(uncompressed64)
	return common.BytesToAddress(hash[12:]), nil
}

// BuildTxRequest 构建 legacy 交易所需字段
type BuildTxRequest struct {
	Nonce    uint64
	GasPrice *big.Int
	GasLimit uint64
	To       *common.Address
	Value    *big.Int
	Data     []byte
}

// Transaction 待签名的 legacy 交易
type Transaction struct {
	Tx          *types.Transaction
	SigningHash common.Hash
}

func (a *EthereumAdapter) signer() types.Signer {
	return types.NewEIP155Signer(a.chainID)
}

// BuildTransaction 构建 legacy 交易并计算 EIP-155 签名哈希
func (a *EthereumAdapter) BuildTransaction(req *BuildTxRequest) (*Transaction, error) {
	if req == nil {
		return nil, errors.New("build request is nil")
	}
	if req.Value == nil {
		return nil, errors.New("value is required")
	}
	if req.GasPrice == nil {
		return nil, errors.New("gas price is required")
	}

	tx := types.NewTx(&types.LegacyTx{
		Nonce:    req.Nonce,
		GasPrice: req.GasPrice,
		Gas:      req.GasLimit,
		To:       req.To,
		Value:    req.Value,
		Data:     req.Data,
	})

	return &Transaction{
		Tx:          tx,
		SigningHash: a.signer().Hash(tx),
	}, nil
}

// EncodeSignedTransaction 写入签名字段并返回 RLP 编码的原始交易
//
// sig 为 r||s||recid 格式，recid 取值 0 或 1。
func (a *EthereumAdapter) EncodeSignedTransaction(tx *Transaction, sig []byte) (string, common.Hash, error) {
	signed, err := tx.Tx.WithSignature(a.signer(), sig)
	if err != nil {
		return "", common.Hash{}, errors.Wrap(err, "failed to attach signature")
	}
	raw, err := signed.MarshalBinary()
	if err != nil {
		return "", common.Hash{}, errors.Wrap(err, "failed to encode signed transaction")
	}
	return hexutil.Encode(raw), signed.Hash(), nil
}
