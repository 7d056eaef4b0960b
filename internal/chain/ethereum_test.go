package chain_test

import (
	"math/big"
	"testing"

	"github.com/SafeMPC/card-bridge/internal/chain"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testPrivateKeyHex = "4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"

func TestAddressFromPublicKey(t *testing.T) {
	key, err := crypto.HexToECDSA(testPrivateKeyHex)
	require.NoError(t, err)
	want := crypto.PubkeyToAddress(key.PublicKey)

	uncompressed, err := chain.AddressFromPublicKey(crypto.FromECDSAPub(&key.PublicKey))
	require.NoError(t, err)
	assert.Equal(t, want, uncompressed)

	compressed, err := chain.AddressFromPublicKey(crypto.CompressPubkey(&key.PublicKey))
	require.NoError(t, err)
	assert.Equal(t, want, compressed)

	_, err = chain.AddressFromPublicKey(nil)
	assert.Error(t, err)
	_, err = chain.AddressFromPublicKey([]byte{0x04, 0x01})
	assert.Error(t, err)
}

func TestBuildTransactionSigningHash(t *testing.T) {
	adapter := chain.NewEthereumAdapter(big.NewInt(5), nil)
	to := common.HexToAddress("0x3535353535353535353535353535353535353535")

	req := &chain.BuildTxRequest{
		Nonce:    9,
		GasPrice: big.NewInt(20_000_000_000),
		GasLimit: 21000,
		To:       &to,
		Value:    big.NewInt(1_000_000_000_000_000_000),
		Data:     []byte{0xde, 0xad},
	}
	tx, err := adapter.BuildTransaction(req)
	require.NoError(t, err)

	// EIP-155 签名负载：nonce, gasPrice, gas, to, value, data, chainID, 0, 0
	raw, err := rlp.EncodeToBytes([]interface{}{
		req.Nonce, req.GasPrice, req.GasLimit, req.To, req.Value, req.Data, big.NewInt(5), uint(0), uint(0),
	})
	require.NoError(t, err)
	assert.Equal(t, crypto.Keccak256Hash(raw), tx.SigningHash)

	_, err = adapter.BuildTransaction(&chain.BuildTxRequest{GasPrice: big.NewInt(1)})
	assert.Error(t, err)
	_, err = adapter.BuildTransaction(nil)
	assert.Error(t, err)
}

func TestEncodeSignedTransaction(t *testing.T) {
	key, err := crypto.HexToECDSA(testPrivateKeyHex)
	require.NoError(t, err)

	adapter := chain.NewEthereumAdapter(big.NewInt(1), nil)
	to := common.HexToAddress("0x3535353535353535353535353535353535353535")
	tx, err := adapter.BuildTransaction(&chain.BuildTxRequest{
		Nonce:    0,
		GasPrice: big.NewInt(1),
		GasLimit: 21000,
		To:       &to,
		Value:    big.NewInt(10),
	})
	require.NoError(t, err)

	sig, err := crypto.Sign(tx.SigningHash.Bytes(), key)
	require.NoError(t, err)

	rawHex, hash, err := adapter.EncodeSignedTransaction(tx, sig)
	require.NoError(t, err)

	raw, err := hexutil.Decode(rawHex)
	require.NoError(t, err)

	var decoded types.Transaction
	require.NoError(t, decoded.UnmarshalBinary(raw))
	assert.Equal(t, hash, decoded.Hash())
	assert.Equal(t, uint8(types.LegacyTxType), decoded.Type())

	sender, err := types.Sender(types.NewEIP155Signer(big.NewInt(1)), &decoded)
	require.NoError(t, err)
	assert.Equal(t, crypto.PubkeyToAddress(key.PublicKey), sender)
}
