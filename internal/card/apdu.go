package card

import (
	"bytes"
	"encoding/binary"

	"github.com/pkg/errors"
)

// command 发送给卡片的命令 APDU
type command struct {
	Cla, Ins, P1, P2 uint8
	Data             []byte
	Le               uint8
	// withLe 为 false 时不写 Le 字节（case 3 命令）
	withLe bool
}

func (c command) serialize() ([]byte, error) {
	if len(c.Data) > 0xff {
		return nil, errors.Errorf("command data too long: %d", len(c.Data))
	}

	buf := new(bytes.Buffer)
	if err := binary.Write(buf, binary.BigEndian, []uint8{c.Cla, c.Ins, c.P1, c.P2}); err != nil {
		return nil, err
	}
	if len(c.Data) > 0 {
		buf.WriteByte(uint8(len(c.Data)))
		buf.Write(c.Data)
	}
	if c.withLe || len(c.Data) == 0 {
		buf.WriteByte(c.Le)
	}
	return buf.Bytes(), nil
}

// response 卡片返回的响应 APDU
type response struct {
	Data []byte
	SW   uint16
}

func parseResponse(raw []byte) (*response, error) {
	if len(raw) < 2 {
		return nil, errors.Errorf("can not parse response: payload too short (%d < 2)", len(raw))
	}
	return &response{
		Data: raw[:len(raw)-2],
		SW:   binary.BigEndian.Uint16(raw[len(raw)-2:]),
	}, nil
}
