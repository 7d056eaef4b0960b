package card

import (
	"context"
	"sync"
	"time"

	"github.com/SafeMPC/card-bridge/internal/types"
	pcsc "github.com/gballet/go-libpcsclite"
	"github.com/pkg/errors"
)

// DefaultTransceiveTimeout 单条 APDU 的最长等待时间
const DefaultTransceiveTimeout = 30 * time.Second

// Conn 读卡器上一张已连接的卡
type Conn interface {
	Transmit(data []byte) ([]byte, error)
	Disconnect() error
}

// ReaderContext PC/SC 上下文
type ReaderContext interface {
	ListReaders() ([]string, error)
	Connect(reader string) (Conn, error)
	Release() error
}

type pcscContext struct {
	client *pcsc.Client
}

// NewPCSCContext 连接 pcscd 守护进程
func NewPCSCContext(daemonPath string) (ReaderContext, error) {
	if daemonPath == "" {
		daemonPath = pcsc.PCSCDSockName
	}
	client, err := pcsc.EstablishContext(daemonPath, pcsc.ScopeSystem)
	if err != nil {
		return nil, errors.Wrap(err, "failed to establish pcsc context")
	}
	return &pcscContext{client: client}, nil
}

func (p *pcscContext) ListReaders() ([]string, error) {
	return p.client.ListReaders()
}

func (p *pcscContext) Connect(reader string) (Conn, error) {
	card, err := p.client.Connect(reader, pcsc.ShareShared, pcsc.ProtocolAny)
	if err != nil {
		return nil, err
	}
	return &pcscCard{card: card}, nil
}

func (p *pcscContext) Release() error {
	return p.client.ReleaseContext()
}

type pcscCard struct {
	card *pcsc.Card
}

func (c *pcscCard) Transmit(data []byte) ([]byte, error) {
	resp, _, err := c.card.Transmit(data)
	return resp, err
}

func (c *pcscCard) Disconnect() error {
	return c.card.Disconnect(pcsc.LeaveCard)
}

// ReaderTransceiver 绑定一个读卡器，首次交换时才建立连接
type ReaderTransceiver struct {
	mu      sync.Mutex
	ctx     ReaderContext
	reader  string
	conn    Conn
	timeout time.Duration
}

var _ Transceiver = (*ReaderTransceiver)(nil)

type transmitResult struct {
	data []byte
	err  error
}

func newReaderTransceiver(ctx ReaderContext, reader string, c Conn, timeout time.Duration) *ReaderTransceiver {
	if timeout <= 0 {
		timeout = DefaultTransceiveTimeout
	}
	return &ReaderTransceiver{ctx: ctx, reader: reader, conn: c, timeout: timeout}
}

// Transceive 发送一条 APDU，超时或断开时返回卡片通信错误
func (t *ReaderTransceiver) Transceive(ctx context.Context, cmd []byte) ([]byte, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.conn == nil {
		c, err := t.ctx.Connect(t.reader)
		if err != nil {
			return nil, types.ErrCardCommunication(err, "failed to connect to card")
		}
		t.conn = c
	}

	done := make(chan transmitResult, 1)
	c := t.conn
	go func() {
		data, err := c.Transmit(cmd)
		done <- transmitResult{data: data, err: err}
	}()

	timer := time.NewTimer(t.timeout)
	defer timer.Stop()

	select {
	case res := <-done:
		if res.err != nil {
			t.dropLocked()
			return nil, types.ErrCardCommunication(res.err, "card disconnected")
		}
		return res.data, nil
	case <-timer.C:
		t.abandonLocked(done)
		return nil, types.ErrCardCommunication(context.DeadlineExceeded, "card transceive timed out")
	case <-ctx.Done():
		t.abandonLocked(done)
		return nil, types.ErrCardCommunication(ctx.Err(), "card transceive cancelled")
	}
}

// abandonLocked 放弃仍在进行的 Transmit。pcsclite 的 Disconnect 与 Transmit 共用一把锁，
// 所以只有在 Transmit 返回之后才断开连接
func (t *ReaderTransceiver) abandonLocked(done <-chan transmitResult) {
	c := t.conn
	t.conn = nil
	if c == nil {
		return
	}
	go func() {
		<-done
		_ = c.Disconnect()
	}()
}

// Close 断开与卡片的连接
func (t *ReaderTransceiver) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.dropLocked()
	return nil
}

func (t *ReaderTransceiver) dropLocked() {
	if t.conn != nil {
		_ = t.conn.Disconnect()
		t.conn = nil
	}
}

// ping 检查卡片是否仍在读卡器上，不会重新建立连接
func (t *ReaderTransceiver) ping() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.conn == nil {
		return errors.New("card not connected")
	}
	cmd, err := command{Cla: cla, Ins: insSelect, P1: 0x04, P2: 0x00, Data: appletAID, withLe: true}.serialize()
	if err != nil {
		return err
	}
	raw, err := t.conn.Transmit(cmd)
	if err != nil {
		return err
	}
	resp, err := parseResponse(raw)
	if err != nil {
		return err
	}
	return statusError(resp.SW)
}
