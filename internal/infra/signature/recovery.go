package signature

import (
	"github.com/SafeMPC/card-bridge/internal/types"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// 单个曲线点恢复只有 0..3 四个有意义的候选
const maxRecoveryCandidates = 4

// ResolveRecoveryID 依次尝试候选 recovery id，返回第一个能恢复出 expected 地址的 v（id+27）
func ResolveRecoveryID(r, s [32]byte, hash []byte, expected common.Address) (byte, error) {
	if len(hash) != 32 {
		return 0, types.ErrRecoveryFailure("message hash must be 32 bytes")
	}

	compact := make([]byte, 65)
	copy(compact[1:33], r[:])
	copy(compact[33:], s[:])

	for id := byte(0); id < maxRecoveryCandidates; id++ {
		compact[0] = recoveryIDOffset + id

		pub, _, err := ecdsa.RecoverCompact(compact, hash)
		if err != nil {
			continue
		}

		if crypto.PubkeyToAddress(*pub.ToECDSA()) == expected {
			return recoveryIDOffset + id, nil
		}
	}

	return 0, types.ErrRecoveryFailure("no recovery id matches " + expected.Hex())
}

// Normalize 解码 DER 并计算 v，生成完整的归一化签名
func Normalize(der []byte, hash []byte, expected common.Address, sigCounter, globalSigCounter uint32) (*Normalized, error) {
	r, s, err := Decode(der)
	if err != nil {
		return nil, err
	}

	v, err := ResolveRecoveryID(r, s, hash, expected)
	if err != nil {
		return nil, err
	}

	return &Normalized{
		R:                r,
		S:                s,
		V:                v,
		SigCounter:       sigCounter,
		GlobalSigCounter: globalSigCounter,
	}, nil
}
