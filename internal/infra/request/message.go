package request

import (
	"context"
	"strings"
	"unicode/utf8"

	"github.com/SafeMPC/card-bridge/internal/chain"
	"github.com/SafeMPC/card-bridge/internal/infra/signature"
	"github.com/SafeMPC/card-bridge/internal/infra/signing"
	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// MessageAdapter personal_sign 与 eth_sign
type MessageAdapter struct{}

func (MessageAdapter) Kind() signing.Kind {
	return signing.KindPersonalMessage
}

// Prepare personal_sign 参数为 [message, account]，eth_sign 为 [account, message]
func (a MessageAdapter) Prepare(_ context.Context, call *Call) (*Prepared, error) {
	params, err := stringParams(call.Params, 2)
	if err != nil {
		return nil, err
	}

	kind := signing.KindPersonalMessage
	message, account := params[0], params[1]
	if call.Method == chain.MethodSign {
		kind = signing.KindLegacyMessage
		account, message = params[0], params[1]
	}

	if err := checkAccount(account, call.Account); err != nil {
		return nil, err
	}

	payload := decodeMessage(message)

	return &Prepared{
		Request:  newRequest(call, kind, MessageDigest(payload), displayMessage(payload)),
		Finalize: hexFinalizer,
	}, nil
}

// MessageDigest 32 字节的载荷直接签名，其余加 EIP-191 前缀后哈希
func MessageDigest(payload []byte) []byte {
	if len(payload) == 32 {
		return append([]byte{}, payload...)
	}
	return accounts.TextHash(payload)
}

// decodeMessage 偶数长度的十六进制（0x 前缀可选）按字节解码，否则按 UTF-8 文本处理
func decodeMessage(message string) []byte {
	raw := strings.TrimPrefix(strings.TrimPrefix(message, "0x"), "0X")
	if raw == "" {
		return []byte(message)
	}
	if b, err := hexutil.Decode("0x" + raw); err == nil {
		return b
	}
	return []byte(message)
}

func displayMessage(payload []byte) string {
	if utf8.Valid(payload) {
		return string(payload)
	}
	return hexutil.Encode(payload)
}

func hexFinalizer(_ context.Context, sig *signature.Normalized) (interface{}, error) {
	return sig.Hex(), nil
}
