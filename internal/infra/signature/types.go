package signature

import (
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// 以太坊 v 值的偏移量
const recoveryIDOffset = 27

// Normalized 归一化后的卡片签名
//
// R、S 恒为 32 字节大端，S 为低 S；V 取值 27..30。
type Normalized struct {
	R                [32]byte
	S                [32]byte
	V                byte
	SigCounter       uint32
	GlobalSigCounter uint32
}

// Bytes 返回 65 字节的 r||s||v
func (n *Normalized) Bytes() []byte {
	out := make([]byte, 65)
	copy(out[:32], n.R[:])
	copy(out[32:64], n.S[:])
	out[64] = n.V
	return out
}

// RecoveryBytes 返回 go-ethereum 使用的 r||s||recid 形式（recid 为 0..3）
func (n *Normalized) RecoveryBytes() []byte {
	out := n.Bytes()
	out[64] = n.V - recoveryIDOffset
	return out
}

// Hex 返回 0x 前缀的 r||s||v
func (n *Normalized) Hex() string {
	return hexutil.Encode(n.Bytes())
}
