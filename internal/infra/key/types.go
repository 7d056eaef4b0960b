package key

import (
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// IssuerPrefix 认证请求中 issuer 的 DID 前缀
const IssuerPrefix = "did:pkh:eip155:1:"

// AccountIdentity 从卡片读取的账户身份
type AccountIdentity struct {
	KeyHandle        byte
	PublicKey        []byte
	Address          common.Address
	SigCounter       uint32
	GlobalSigCounter uint32
	ReadAt           time.Time
}

// PublicKeyHex 返回 0x 前缀的公钥
func (a *AccountIdentity) PublicKeyHex() string {
	return hexutil.Encode(a.PublicKey)
}

// Issuer 返回 did:pkh 格式的签发者
func (a *AccountIdentity) Issuer() string {
	return IssuerPrefix + a.Address.Hex()
}

// CAIP10 返回指定链上的账户标识，例如 eip155:1:0xabc...
func (a *AccountIdentity) CAIP10(chainID string) string {
	return fmt.Sprintf("%s:%s", chainID, a.Address.Hex())
}

// PINChange 设置或修改 PIN 的结果
type PINChange struct {
	PUK []byte
}
