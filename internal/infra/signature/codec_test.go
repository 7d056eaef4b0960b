package signature_test

import (
	"bytes"
	"testing"

	"github.com/SafeMPC/card-bridge/internal/infra/signature"
	"github.com/SafeMPC/card-bridge/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// component 生成长度为 length 的 INTEGER 内容，以及解码后应得到的 32 字节值
func component(length int, fill byte) (raw []byte, want [32]byte) {
	switch {
	case length > 32:
		raw = append(bytes.Repeat([]byte{0x00}, length-32), bytes.Repeat([]byte{fill}, 32)...)
		copy(want[:], bytes.Repeat([]byte{fill}, 32))
	default:
		raw = bytes.Repeat([]byte{fill}, length)
		copy(want[32-length:], raw)
	}
	return raw, want
}

func encodeDER(r, s []byte, longForm bool) []byte {
	body := []byte{0x02, byte(len(r))}
	body = append(body, r...)
	body = append(body, 0x02, byte(len(s)))
	body = append(body, s...)

	out := []byte{0x30}
	if longForm {
		out = append(out, 0x81)
	}
	out = append(out, byte(len(body)))
	return append(out, body...)
}

func TestDecodeComponentLengths(t *testing.T) {
	for rLen := 28; rLen <= 34; rLen++ {
		for sLen := 28; sLen <= 34; sLen++ {
			rRaw, wantR := component(rLen, 0x5a)
			sRaw, wantS := component(sLen, 0x3c)

			r, s, err := signature.Decode(encodeDER(rRaw, sRaw, false))
			require.NoError(t, err, "r=%d s=%d", rLen, sLen)
			assert.Len(t, r, 32)
			assert.Len(t, s, 32)
			assert.Equal(t, wantR, r, "r=%d s=%d", rLen, sLen)
			assert.Equal(t, wantS, s, "r=%d s=%d", rLen, sLen)
		}
	}
}

func TestDecodeLongFormLength(t *testing.T) {
	rRaw, wantR := component(33, 0x7f)
	sRaw, wantS := component(32, 0x11)

	r, s, err := signature.Decode(encodeDER(rRaw, sRaw, true))
	require.NoError(t, err)
	assert.Equal(t, wantR, r)
	assert.Equal(t, wantS, s)
}

func TestDecodeRejectsHighS(t *testing.T) {
	rRaw, _ := component(32, 0x22)
	for _, first := range []byte{0x80, 0x9f, 0xff} {
		sRaw := bytes.Repeat([]byte{0x01}, 32)
		sRaw[0] = first

		_, _, err := signature.Decode(encodeDER(rRaw, sRaw, false))
		require.Error(t, err)
		assert.True(t, types.IsKind(err, types.ErrorKindMalformedSignature))
		assert.Contains(t, err.Error(), "malleable")
	}

	// 33 字节的 S 截掉前导零后仍是高 S
	sRaw := append([]byte{0x00}, bytes.Repeat([]byte{0xf0}, 32)...)
	_, _, err := signature.Decode(encodeDER(rRaw, sRaw, false))
	assert.True(t, types.IsKind(err, types.ErrorKindMalformedSignature))
}

func TestDecodeMalformed(t *testing.T) {
	rRaw, _ := component(32, 0x22)
	sRaw, _ := component(32, 0x33)
	valid := encodeDER(rRaw, sRaw, false)

	tests := []struct {
		name string
		der  []byte
	}{
		{"empty", nil},
		{"too short", []byte{0x30, 0x02, 0x02, 0x00}},
		{"wrong sequence tag", append([]byte{0x31}, valid[1:]...)},
		{"wrong integer tag", append([]byte{0x30, valid[1], 0x03}, valid[3:]...)},
		{"truncated", valid[:len(valid)-5]},
		{"zero length component", encodeDER([]byte{}, sRaw, false)},
		{"missing s", append([]byte{0x30, 0x22, 0x02, 0x20}, rRaw...)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := signature.Decode(tt.der)
			require.Error(t, err)
			assert.Equal(t, types.ErrorKindMalformedSignature, types.KindOf(err))
		})
	}
}
