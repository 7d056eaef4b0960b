package pairing

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/SafeMPC/card-bridge/internal/infra/signing"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

const defaultWriteTimeout = 10 * time.Second

// Peer 一条 websocket 连接，既是消息来源也是响应出口
type Peer struct {
	ID string

	conn         *websocket.Conn
	writeMu      sync.Mutex
	writeTimeout time.Duration
	limiter      *rate.Limiter // nil 时不限速
}

var _ signing.ResponseSink = (*Peer)(nil)

// NewPeer 包装已升级的连接
func NewPeer(conn *websocket.Conn, writeTimeout time.Duration) *Peer {
	if writeTimeout <= 0 {
		writeTimeout = defaultWriteTimeout
	}
	return &Peer{
		ID:           uuid.NewString(),
		conn:         conn,
		writeTimeout: writeTimeout,
	}
}

// WithRateLimit 限制对端每秒的请求数，超出的请求直接以 -32005 拒绝
func (p *Peer) WithRateLimit(perSecond float64, burst int) *Peer {
	if perSecond > 0 {
		if burst < 1 {
			burst = 1
		}
		p.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
	}
	return p
}

// Approve 实现 signing.ResponseSink
func (p *Peer) Approve(_ context.Context, id int64, result interface{}) error {
	return p.write(NewResult(id, result))
}

// Reject 实现 signing.ResponseSink
func (p *Peer) Reject(_ context.Context, id int64, code int, message string) error {
	return p.write(NewError(id, code, message))
}

func (p *Peer) write(msg *Message) error {
	p.writeMu.Lock()
	defer p.writeMu.Unlock()

	if err := p.conn.SetWriteDeadline(time.Now().Add(p.writeTimeout)); err != nil {
		return errors.Wrap(err, "failed to set write deadline")
	}
	if err := p.conn.WriteJSON(msg); err != nil {
		return errors.Wrap(err, "failed to write message")
	}
	return nil
}

// Serve 读取消息直到连接关闭或 ctx 结束。退出时取消绑定到该对端的待签请求并清理会话
func (p *Peer) Serve(ctx context.Context, d *Dispatcher) error {
	logger := log.With().Str("peer_id", p.ID).Logger()
	logger.Info().Msg("Pairing peer connected")

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		<-ctx.Done()
		_ = p.conn.Close()
	}()

	defer func() {
		if d.bridge.CancelFor(context.Background(), p, "peer disconnected") {
			logger.Info().Msg("Cancelled pending request of disconnected peer")
		}
		dropped := d.sessions.DropPeer(p)
		logger.Info().Int("sessions", dropped).Msg("Pairing peer disconnected")
	}()

	for {
		_, data, err := p.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) && ctx.Err() == nil {
				return errors.Wrap(err, "failed to read message")
			}
			return nil
		}

		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			if err := p.write(NewError(0, CodeParseError, "parse error")); err != nil {
				return err
			}
			continue
		}

		logger.Debug().Int64("id", msg.ID).Str("method", msg.Method).Msg("Pairing message received")

		if p.limiter != nil && !p.limiter.Allow() {
			logger.Warn().Int64("id", msg.ID).Str("method", msg.Method).Msg("Pairing peer rate limited")
			if err := p.write(NewError(msg.ID, CodeLimitExceeded, "request limit exceeded")); err != nil {
				return err
			}
			continue
		}

		if err := d.Handle(ctx, p, &msg); err != nil {
			logger.Warn().Err(err).Int64("id", msg.ID).Msg("Failed to respond to peer")
		}
	}
}
