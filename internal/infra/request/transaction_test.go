package request_test

import (
	"context"
	"math/big"
	"testing"

	"github.com/SafeMPC/card-bridge/internal/chain"
	"github.com/SafeMPC/card-bridge/internal/infra/request"
	"github.com/SafeMPC/card-bridge/internal/infra/signing"
	"github.com/SafeMPC/card-bridge/internal/types"
	geth "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockBackend struct {
	mock.Mock
}

func (m *mockBackend) GetTransactionCount(ctx context.Context, address string) (uint64, error) {
	args := m.Called(ctx, address)
	return args.Get(0).(uint64), args.Error(1)
}

func (m *mockBackend) GetGasPrice(ctx context.Context) (*big.Int, error) {
	args := m.Called(ctx)
	return args.Get(0).(*big.Int), args.Error(1)
}

func (m *mockBackend) EstimateGas(ctx context.Context, msg geth.CallMsg) (uint64, error) {
	args := m.Called(ctx, msg)
	return args.Get(0).(uint64), args.Error(1)
}

func (m *mockBackend) BroadcastTransaction(ctx context.Context, rawTx string) (string, error) {
	args := m.Called(ctx, rawTx)
	return args.String(0), args.Error(1)
}

func resolverFor(backend request.NodeBackend) request.BackendResolver {
	return func(*chain.Chain) request.NodeBackend { return backend }
}

var (
	recipient = common.HexToAddress("0x3535353535353535353535353535353535353535")
	gasPrice  = big.NewInt(20_000_000_000)
	oneEther  = big.NewInt(1_000_000_000_000_000_000)
	callData  = []byte{0xa9, 0x05, 0x9c, 0xbb}
)

func TestSendTransactionResolvesGasFromNode(t *testing.T) {
	key, address := testKey(t)
	backend := &mockBackend{}
	backend.On("GetTransactionCount", mock.Anything, address.Hex()).Return(uint64(9), nil).Once()
	backend.On("GetGasPrice", mock.Anything).Return(gasPrice, nil).Once()
	backend.On("EstimateGas", mock.Anything, mock.MatchedBy(func(msg geth.CallMsg) bool {
		return msg.From == address && *msg.To == recipient && msg.Value.Cmp(oneEther) == 0 &&
			msg.GasPrice.Cmp(gasPrice) == 0
	})).Return(uint64(21_000), nil).Once()

	adapter := request.NewTransactionAdapter(true, resolverFor(backend))
	prepared, err := adapter.Prepare(t.Context(), &request.Call{
		ID:     11,
		Method: chain.MethodSendTransaction,
		Params: params(t, map[string]string{
			"from":  address.Hex(),
			"to":    recipient.Hex(),
			"value": hexutil.EncodeBig(oneEther),
			"data":  hexutil.Encode(callData),
		}),
		Chain:   goerli(),
		Account: address,
	})
	require.NoError(t, err)
	assert.Equal(t, signing.KindSendTransaction, prepared.Request.Kind)

	// 手工按 EIP-155 重新编码相同字段
	encoded, err := rlp.EncodeToBytes([]interface{}{
		uint64(9), gasPrice, uint64(21_000), recipient, oneEther, callData,
		big.NewInt(5), uint(0), uint(0),
	})
	require.NoError(t, err)
	assert.Equal(t, crypto.Keccak256(encoded), prepared.Request.BytesToSign)

	sig := sign(t, key, prepared.Request.BytesToSign)

	var broadcast *ethtypes.Transaction
	backend.On("BroadcastTransaction", mock.Anything, mock.MatchedBy(func(raw string) bool {
		b, err := hexutil.Decode(raw)
		if err != nil {
			return false
		}
		broadcast = new(ethtypes.Transaction)
		return broadcast.UnmarshalBinary(b) == nil
	})).Return("0xfeed", nil).Once()

	result, err := prepared.Finalize(t.Context(), sig)
	require.NoError(t, err)
	assert.Equal(t, "0xfeed", result)
	backend.AssertExpectations(t)

	require.NotNil(t, broadcast)
	assert.Equal(t, uint8(ethtypes.LegacyTxType), broadcast.Type())
	assert.Equal(t, uint64(9), broadcast.Nonce())
	assert.Equal(t, uint64(21_000), broadcast.Gas())
	assert.Equal(t, callData, broadcast.Data())

	sender, err := ethtypes.Sender(ethtypes.NewEIP155Signer(big.NewInt(5)), broadcast)
	require.NoError(t, err)
	assert.Equal(t, address, sender)
}

func TestSignTransactionReturnsSignatureHex(t *testing.T) {
	key, address := testKey(t)
	backend := &mockBackend{}

	adapter := request.NewTransactionAdapter(false, resolverFor(backend))
	prepared, err := adapter.Prepare(t.Context(), &request.Call{
		Method: chain.MethodSignTransaction,
		Params: params(t, map[string]string{
			"to":       recipient.Hex(),
			"value":    "0x0",
			"nonce":    "0x1",
			"gasPrice": hexutil.EncodeBig(gasPrice),
			"gasLimit": "0x5208",
		}),
		Chain:   goerli(),
		Account: address,
	})
	require.NoError(t, err)
	assert.Equal(t, signing.KindSignTransaction, prepared.Request.Kind)

	sig := sign(t, key, prepared.Request.BytesToSign)
	result, err := prepared.Finalize(t.Context(), sig)
	require.NoError(t, err)
	assert.Equal(t, sig.Hex(), result)

	// 所有字段都已给出，不访问节点
	backend.AssertNotCalled(t, "GetTransactionCount", mock.Anything, mock.Anything)
	backend.AssertNotCalled(t, "GetGasPrice", mock.Anything)
	backend.AssertNotCalled(t, "EstimateGas", mock.Anything, mock.Anything)
}

func TestTransactionAdapterRejects(t *testing.T) {
	_, address := testKey(t)
	adapter := request.NewTransactionAdapter(true, resolverFor(&mockBackend{}))

	tests := []struct {
		name string
		tx   map[string]string
	}{
		{"eip-1559 type", map[string]string{"to": recipient.Hex(), "value": "0x1", "type": "0x2"}},
		{"fee market fields", map[string]string{"to": recipient.Hex(), "value": "0x1", "maxFeePerGas": "0x1"}},
		{"missing to", map[string]string{"value": "0x1"}},
		{"missing value", map[string]string{"to": recipient.Hex()}},
		{"other sender", map[string]string{"to": recipient.Hex(), "value": "0x1", "from": recipient.Hex()}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := adapter.Prepare(t.Context(), &request.Call{
				Method:  chain.MethodSendTransaction,
				Params:  params(t, tt.tx),
				Chain:   goerli(),
				Account: address,
			})
			assert.True(t, types.IsKind(err, types.ErrorKindUnsupportedRequest), "got %v", err)
		})
	}

	_, err := adapter.Prepare(t.Context(), &request.Call{
		Method:  chain.MethodSendTransaction,
		Params:  params(t, map[string]string{"to": recipient.Hex(), "value": "0x1"}),
		Account: address,
	})
	assert.True(t, types.IsKind(err, types.ErrorKindUnsupportedRequest), "chain is required")
}

func TestSendTransactionBroadcastFailure(t *testing.T) {
	key, address := testKey(t)
	backend := &mockBackend{}
	backend.On("BroadcastTransaction", mock.Anything, mock.Anything).Return("", assert.AnError)

	adapter := request.NewTransactionAdapter(true, resolverFor(backend))
	prepared, err := adapter.Prepare(t.Context(), &request.Call{
		Method: chain.MethodSendTransaction,
		Params: params(t, map[string]string{
			"to": recipient.Hex(), "value": "0x1", "nonce": "0x0", "gasPrice": "0x1", "gas": "0x5208",
		}),
		Chain:   goerli(),
		Account: address,
	})
	require.NoError(t, err)

	_, err = prepared.Finalize(t.Context(), sign(t, key, prepared.Request.BytesToSign))
	assert.ErrorIs(t, err, assert.AnError)
}
