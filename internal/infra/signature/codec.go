package signature

import (
	"github.com/SafeMPC/card-bridge/internal/types"
)

const (
	derSequenceTag = 0x30
	derIntegerTag  = 0x02
	componentSize  = 32
)

// Decode 将卡片返回的 DER ECDSA 签名解码为定长 r、s
//
// 长度超过 32 字节的分量丢弃前导字节，不足 32 字节的左侧补零。
// S 的首字节最高位被置位时视为可延展签名，直接拒绝。
func Decode(der []byte) (r [32]byte, s [32]byte, err error) {
	if len(der) < 8 {
		return r, s, types.ErrMalformedSignature("signature too short")
	}
	if der[0] != derSequenceTag {
		return r, s, types.ErrMalformedSignature("missing sequence tag")
	}

	offset := 2
	if der[1]&0x80 != 0 {
		// 长格式长度字节，第一个分量后移一个字节
		offset = 3
	}

	next, err := readComponent(der, offset, &r)
	if err != nil {
		return r, s, err
	}
	if _, err := readComponent(der, next, &s); err != nil {
		return r, s, err
	}

	if s[0]&0x80 != 0 {
		return r, s, types.ErrMalformedSignature("malleable")
	}

	return r, s, nil
}

// readComponent 读取一个 INTEGER 分量到 out，返回下一个分量的偏移量
func readComponent(der []byte, offset int, out *[32]byte) (int, error) {
	if offset+2 > len(der) {
		return 0, types.ErrMalformedSignature("truncated component header")
	}
	if der[offset] != derIntegerTag {
		return 0, types.ErrMalformedSignature("missing integer tag")
	}

	length := int(der[offset+1])
	if length == 0 || length&0x80 != 0 {
		return 0, types.ErrMalformedSignature("invalid component length")
	}

	start := offset + 2
	end := start + length
	if end > len(der) {
		return 0, types.ErrMalformedSignature("component exceeds signature")
	}

	value := der[start:end]
	switch {
	case length > componentSize:
		copy(out[:], value[length-componentSize:])
	case length < componentSize:
		copy(out[componentSize-length:], value)
	default:
		copy(out[:], value)
	}

	return end, nil
}
