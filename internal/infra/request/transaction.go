package request

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"

	"github.com/SafeMPC/card-bridge/internal/chain"
	"github.com/SafeMPC/card-bridge/internal/infra/signature"
	"github.com/SafeMPC/card-bridge/internal/infra/signing"
	"github.com/SafeMPC/card-bridge/internal/types"
	geth "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// NodeBackend 交易适配器需要的链节点能力
type NodeBackend interface {
	GetTransactionCount(ctx context.Context, address string) (uint64, error)
	GetGasPrice(ctx context.Context) (*big.Int, error)
	EstimateGas(ctx context.Context, msg geth.CallMsg) (uint64, error)
	BroadcastTransaction(ctx context.Context, rawTx string) (string, error)
}

var _ NodeBackend = (*chain.EthereumAdapter)(nil)

// BackendResolver 返回链对应的节点
type BackendResolver func(c *chain.Chain) NodeBackend

func defaultBackend(c *chain.Chain) NodeBackend {
	return c.Adapter
}

// txArgs eth_sendTransaction / eth_signTransaction 的交易对象
type txArgs struct {
	From                 *common.Address `json:"from"`
	To                   *common.Address `json:"to"`
	Type                 *hexutil.Uint64 `json:"type"`
	Nonce                *hexutil.Uint64 `json:"nonce"`
	GasPrice             *hexutil.Big    `json:"gasPrice"`
	Gas                  *hexutil.Uint64 `json:"gas"`
	GasLimit             *hexutil.Uint64 `json:"gasLimit"`
	Value                *hexutil.Big    `json:"value"`
	Data                 *hexutil.Bytes  `json:"data"`
	Input                *hexutil.Bytes  `json:"input"`
	MaxFeePerGas         *hexutil.Big    `json:"maxFeePerGas"`
	MaxPriorityFeePerGas *hexutil.Big    `json:"maxPriorityFeePerGas"`
	AccessList           json.RawMessage `json:"accessList"`
}

func (a *txArgs) data() []byte {
	if a.Input != nil {
		return *a.Input
	}
	if a.Data != nil {
		return *a.Data
	}
	return nil
}

func (a *txArgs) gas() *hexutil.Uint64 {
	if a.Gas != nil {
		return a.Gas
	}
	return a.GasLimit
}

// validate 只接受 legacy 交易
func (a *txArgs) validate() error {
	if a.Type != nil && uint64(*a.Type) != ethtypes.LegacyTxType {
		return types.ErrUnsupportedRequest(fmt.Sprintf("transaction type %#x not supported", uint64(*a.Type)))
	}
	if a.MaxFeePerGas != nil || a.MaxPriorityFeePerGas != nil || len(a.AccessList) > 0 {
		return types.ErrUnsupportedRequest("only legacy transactions are supported")
	}
	if a.To == nil {
		return types.ErrUnsupportedRequest("field to is required")
	}
	if a.Value == nil {
		return types.ErrUnsupportedRequest("field value is required")
	}
	return nil
}

// TransactionAdapter 构建 legacy 交易；send 为 true 时签名后广播
type TransactionAdapter struct {
	send     bool
	backends BackendResolver
}

// NewTransactionAdapter 创建交易适配器，backends 为 nil 时使用链的 RPC
func NewTransactionAdapter(send bool, backends BackendResolver) *TransactionAdapter {
	if backends == nil {
		backends = defaultBackend
	}
	return &TransactionAdapter{send: send, backends: backends}
}

func (a *TransactionAdapter) Kind() signing.Kind {
	if a.send {
		return signing.KindSendTransaction
	}
	return signing.KindSignTransaction
}

func (a *TransactionAdapter) Prepare(ctx context.Context, call *Call) (*Prepared, error) {
	if err := requireChain(call); err != nil {
		return nil, err
	}

	var params []txArgs
	if err := json.Unmarshal(call.Params, &params); err != nil || len(params) == 0 {
		return nil, types.ErrUnsupportedRequest("params must contain a transaction object")
	}
	args := params[0]
	if err := args.validate(); err != nil {
		return nil, err
	}
	if args.From != nil && *args.From != call.Account {
		return nil, types.ErrUnsupportedRequest("requested account is not valid")
	}

	backend := a.backends(call.Chain)
	build, err := a.resolve(ctx, backend, call.Account, &args)
	if err != nil {
		return nil, err
	}

	tx, err := call.Chain.Adapter.BuildTransaction(build)
	if err != nil {
		return nil, errors.Wrap(err, "failed to build transaction")
	}

	display, err := json.Marshal(tx.Tx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to render transaction")
	}

	log.Debug().
		Int64("request_id", call.ID).
		Str("chain", call.Chain.ID()).
		Uint64("nonce", build.Nonce).
		Str("gas_price", build.GasPrice.String()).
		Uint64("gas_limit", build.GasLimit).
		Str("signing_hash", tx.SigningHash.Hex()).
		Msg("Built legacy transaction")

	req := newRequest(call, a.Kind(), tx.SigningHash.Bytes(), string(display))

	return &Prepared{
		Request:  req,
		Finalize: a.finalizer(call.Chain, backend, tx),
	}, nil
}

// resolve 补齐缺省的 nonce、gasPrice、gasLimit
func (a *TransactionAdapter) resolve(ctx context.Context, backend NodeBackend, from common.Address, args *txArgs) (*chain.BuildTxRequest, error) {
	build := &chain.BuildTxRequest{
		To:    args.To,
		Value: args.Value.ToInt(),
		Data:  args.data(),
	}

	if args.Nonce != nil {
		build.Nonce = uint64(*args.Nonce)
	} else {
		nonce, err := backend.GetTransactionCount(ctx, from.Hex())
		if err != nil {
			return nil, errors.Wrap(err, "failed to resolve nonce")
		}
		build.Nonce = nonce
	}

	if args.GasPrice != nil {
		build.GasPrice = args.GasPrice.ToInt()
	} else {
		gasPrice, err := backend.GetGasPrice(ctx)
		if err != nil {
			return nil, errors.Wrap(err, "failed to resolve gas price")
		}
		build.GasPrice = gasPrice
	}

	if gas := args.gas(); gas != nil {
		build.GasLimit = uint64(*gas)
	} else {
		limit, err := backend.EstimateGas(ctx, geth.CallMsg{
			From:     from,
			To:       build.To,
			GasPrice: build.GasPrice,
			Value:    build.Value,
			Data:     build.Data,
		})
		if err != nil {
			return nil, errors.Wrap(err, "failed to estimate gas")
		}
		build.GasLimit = limit
	}

	return build, nil
}

func (a *TransactionAdapter) finalizer(c *chain.Chain, backend NodeBackend, tx *chain.Transaction) signing.Finalizer {
	if !a.send {
		return hexFinalizer
	}

	return func(ctx context.Context, sig *signature.Normalized) (interface{}, error) {
		recoveryID := sig.V - 27
		if recoveryID > 1 {
			return nil, types.ErrRecoveryFailure(fmt.Sprintf("recovery id %d cannot be encoded in a transaction", recoveryID))
		}

		raw, hash, err := c.Adapter.EncodeSignedTransaction(tx, sig.RecoveryBytes())
		if err != nil {
			return nil, err
		}

		txHash, err := backend.BroadcastTransaction(ctx, raw)
		if err != nil {
			return nil, errors.Wrap(err, "failed to broadcast transaction")
		}

		log.Info().
			Str("chain", c.ID()).
			Str("tx_hash", txHash).
			Str("local_hash", hash.Hex()).
			Msg("Transaction broadcast")

		return txHash, nil
	}
}
