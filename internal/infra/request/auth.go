package request

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/SafeMPC/card-bridge/internal/infra/signature"
	"github.com/SafeMPC/card-bridge/internal/infra/signing"
	"github.com/SafeMPC/card-bridge/internal/types"
	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/pkg/errors"
)

const (
	// SignatureTypeEIP191 CACAO 签名类型
	SignatureTypeEIP191 = "eip191"

	issuerPrefix = "did:pkh:eip155:1:"
)

// AuthPayload 认证请求的载荷参数
type AuthPayload struct {
	Type      string   `json:"type"`
	ChainID   string   `json:"chainId"`
	Domain    string   `json:"domain"`
	Aud       string   `json:"aud"`
	Version   string   `json:"version"`
	Nonce     string   `json:"nonce"`
	Iat       string   `json:"iat"`
	Nbf       string   `json:"nbf,omitempty"`
	Exp       string   `json:"exp,omitempty"`
	Statement string   `json:"statement,omitempty"`
	RequestID string   `json:"requestId,omitempty"`
	Resources []string `json:"resources,omitempty"`
}

// CacaoSignature 认证响应中的签名
type CacaoSignature struct {
	T string `json:"t"`
	S string `json:"s"`
	M string `json:"m,omitempty"`
}

// AuthResult 认证响应
type AuthResult struct {
	Issuer    string         `json:"iss"`
	Signature CacaoSignature `json:"signature"`
}

// Issuer 返回地址对应的 did:pkh 签发者
func Issuer(address common.Address) string {
	return issuerPrefix + address.Hex()
}

// FormatMessage 按 EIP-4361 格式化认证消息
func FormatMessage(p *AuthPayload, issuer string) (string, error) {
	if !strings.HasPrefix(issuer, issuerPrefix) {
		return "", types.ErrUnsupportedRequest(fmt.Sprintf("unsupported issuer %q", issuer))
	}
	if p.Domain == "" || p.Aud == "" || p.Nonce == "" || p.Iat == "" {
		return "", types.ErrUnsupportedRequest("auth payload requires domain, aud, nonce and iat")
	}
	address := strings.TrimPrefix(issuer, issuerPrefix)
	version := p.Version
	if version == "" {
		version = "1"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s wants you to sign in with your Ethereum account:\n%s\n", p.Domain, address)
	if p.Statement != "" {
		fmt.Fprintf(&b, "\n%s\n", p.Statement)
	}
	fmt.Fprintf(&b, "\nURI: %s\nVersion: %s\nChain ID: 1\nNonce: %s\nIssued At: %s", p.Aud, version, p.Nonce, p.Iat)
	if p.Exp != "" {
		fmt.Fprintf(&b, "\nExpiration Time: %s", p.Exp)
	}
	if p.Nbf != "" {
		fmt.Fprintf(&b, "\nNot Before: %s", p.Nbf)
	}
	if p.RequestID != "" {
		fmt.Fprintf(&b, "\nRequest ID: %s", p.RequestID)
	}
	if len(p.Resources) > 0 {
		b.WriteString("\nResources:")
		for _, r := range p.Resources {
			fmt.Fprintf(&b, "\n- %s", r)
		}
	}
	return b.String(), nil
}

// AuthAdapter 认证请求：签名 EIP-4361 消息并在返回前本地复核
type AuthAdapter struct{}

func (AuthAdapter) Kind() signing.Kind {
	return signing.KindAuthMessage
}

// Prepare 参数为载荷对象本身，或 [载荷对象]
func (a AuthAdapter) Prepare(_ context.Context, call *Call) (*Prepared, error) {
	payload, err := parseAuthPayload(call.Params)
	if err != nil {
		return nil, err
	}

	issuer := Issuer(call.Account)
	message, err := FormatMessage(payload, issuer)
	if err != nil {
		return nil, err
	}

	hash := accounts.TextHash([]byte(message))
	req := newRequest(call, signing.KindAuthMessage, hash, message)
	req.RejectCode = signing.CodeAuthRejected

	return &Prepared{
		Request: req,
		Finalize: func(_ context.Context, sig *signature.Normalized) (interface{}, error) {
			if err := VerifyPersonalSignature(call.Account, []byte(message), sig); err != nil {
				return nil, err
			}
			return &AuthResult{
				Issuer: issuer,
				Signature: CacaoSignature{
					T: SignatureTypeEIP191,
					S: sig.Hex(),
					M: message,
				},
			}, nil
		},
	}, nil
}

func parseAuthPayload(raw json.RawMessage) (*AuthPayload, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var list []json.RawMessage
		if err := json.Unmarshal(trimmed, &list); err != nil || len(list) == 0 {
			return nil, types.ErrUnsupportedRequest("invalid auth params")
		}
		trimmed = list[0]
	}

	var payload AuthPayload
	if err := json.Unmarshal(trimmed, &payload); err != nil {
		return nil, types.ErrUnsupportedRequest("invalid auth payload: " + err.Error())
	}
	return &payload, nil
}

// VerifyPersonalSignature 复核 EIP-191 签名确实来自 expected
func VerifyPersonalSignature(expected common.Address, message []byte, sig *signature.Normalized) error {
	hash := accounts.TextHash(message)
	raw := sig.RecoveryBytes()

	pub, err := crypto.SigToPub(hash, raw)
	if err != nil {
		return types.ErrRecoveryFailure("signature does not recover: " + err.Error())
	}
	if crypto.PubkeyToAddress(*pub) != expected {
		return types.ErrRecoveryFailure("signature redundancy check has failed")
	}
	if !crypto.VerifySignature(crypto.FromECDSAPub(pub), hash, raw[:64]) {
		return errors.WithStack(types.ErrRecoveryFailure("signature verification failed"))
	}
	return nil
}
