package signing

import (
	"context"
	"sync"
	"time"

	"github.com/SafeMPC/card-bridge/internal/card"
	"github.com/SafeMPC/card-bridge/internal/config"
	"github.com/SafeMPC/card-bridge/internal/metrics"
	"github.com/SafeMPC/card-bridge/internal/types"
	"github.com/dropbox/godropbox/time2"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// State 签名桥状态
type State string

const (
	StateIdle        State = "idle"
	StateAwaitingTap State = "awaiting_tap"
	StateProcessing  State = "processing"
)

// Status 状态快照
type Status struct {
	State   State
	Request *SigningRequest
}

// Bridge 把一个远端请求绑定到下一次刷卡
//
// pending 槽由 mu 保护。刷卡处理期间持有锁，新请求和取消都会等待流水线结束。
type Bridge struct {
	mu      sync.Mutex
	pending *PendingTap

	statusMu sync.RWMutex
	status   Status

	signer           Signer
	idle             IdleHandler
	prompt           Prompt
	observers        []Observer
	rejectSuperseded bool

	clock   time2.Clock
	metrics *metrics.Service
}

// NewBridge 创建签名桥
func NewBridge(cfg config.Bridge, signer Signer, clock time2.Clock, m *metrics.Service) *Bridge {
	return &Bridge{
		status:           Status{State: StateIdle},
		signer:           signer,
		prompt:           LogPrompt{},
		rejectSuperseded: cfg.RejectSuperseded,
		clock:            clock,
		metrics:          m,
	}
}

// SetIdleHandler 设置空闲刷卡处理
func (b *Bridge) SetIdleHandler(h IdleHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.idle = h
}

// SetPrompt 设置刷卡提示
func (b *Bridge) SetPrompt(p Prompt) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.prompt = p
}

// AddObserver 注册签名成功回调
func (b *Bridge) AddObserver(o Observer) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.observers = append(b.observers, o)
}

// Status 返回当前状态
func (b *Bridge) Status() Status {
	b.statusMu.RLock()
	defer b.statusMu.RUnlock()
	return b.status
}

func (b *Bridge) setStatus(state State, req *SigningRequest) {
	b.statusMu.Lock()
	b.status = Status{State: state, Request: req}
	b.statusMu.Unlock()

	if state == StateIdle {
		b.metrics.PendingRequests.Set(0)
	} else {
		b.metrics.PendingRequests.Set(1)
	}
}

// RequestSignature 安装新的待签请求，替换掉尚未刷卡的旧请求
func (b *Bridge) RequestSignature(ctx context.Context, tap *PendingTap) error {
	if tap == nil || tap.Request == nil {
		return errors.New("signing request is required")
	}
	if tap.Sink == nil || tap.Finalize == nil {
		return errors.New("response sink and finalizer are required")
	}
	if len(tap.Request.BytesToSign) != 32 {
		return errors.Errorf("bytes to sign must be 32 bytes, got %d", len(tap.Request.BytesToSign))
	}

	b.mu.Lock()
	previous := b.pending
	b.pending = tap
	prompt := b.prompt
	b.setStatus(StateAwaitingTap, tap.Request)
	b.mu.Unlock()

	if previous != nil {
		b.metrics.Superseded.Inc()
		prompt.Dismiss(previous.Request)

		log.Warn().
			Int64("superseded_id", previous.Request.ID).
			Str("superseded_trace_id", previous.Request.TraceID).
			Int64("request_id", tap.Request.ID).
			Bool("reject_superseded", b.rejectSuperseded).
			Msg("Pending signing request superseded")

		if b.rejectSuperseded {
			b.reject(ctx, previous, "superseded")
		}
	}

	log.Info().
		Int64("request_id", tap.Request.ID).
		Str("trace_id", tap.Request.TraceID).
		Str("kind", tap.Request.Kind.String()).
		Str("method", tap.Request.Method).
		Msg("Signing request waiting for card tap")

	prompt.Show(tap.Request)
	return nil
}

// HandleTap 处理一次刷卡。没有待签请求时执行空闲处理并返回 nil
func (b *Bridge) HandleTap(ctx context.Context, c card.Card) *Outcome {
	b.mu.Lock()
	defer b.mu.Unlock()

	pending := b.pending
	if pending == nil {
		b.runIdle(ctx, c)
		return nil
	}

	b.setStatus(StateProcessing, pending.Request)
	defer b.resetLocked(pending)

	start := b.clock.Now()
	outcome := b.run(ctx, c, pending)
	b.metrics.TapDuration.Observe(b.clock.Now().Sub(start).Seconds())

	b.report(ctx, pending, outcome)
	return outcome
}

// Cancel 在刷卡前取消当前请求并通知远端，没有待签请求时返回 false
func (b *Bridge) Cancel(ctx context.Context, reason string) bool {
	return b.cancelIf(ctx, reason, func(*PendingTap) bool { return true })
}

// CancelFor 只取消绑定到 sink 的请求，用于连接断开
func (b *Bridge) CancelFor(ctx context.Context, sink ResponseSink, reason string) bool {
	return b.cancelIf(ctx, reason, func(p *PendingTap) bool { return p.Sink == sink })
}

// CancelRequest 只在当前待签请求的 ID 匹配时取消
func (b *Bridge) CancelRequest(ctx context.Context, id int64, reason string) bool {
	return b.cancelIf(ctx, reason, func(p *PendingTap) bool { return p.Request.ID == id })
}

func (b *Bridge) cancelIf(ctx context.Context, reason string, match func(*PendingTap) bool) bool {
	b.mu.Lock()
	pending := b.pending
	if pending == nil || !match(pending) {
		b.mu.Unlock()
		return false
	}
	b.resetLocked(pending)
	b.mu.Unlock()

	log.Info().
		Int64("request_id", pending.Request.ID).
		Str("trace_id", pending.Request.TraceID).
		Str("reason", reason).
		Msg("Signing request cancelled")

	b.reject(ctx, pending, reason)
	return true
}

func (b *Bridge) resetLocked(p *PendingTap) {
	if b.pending == p {
		b.pending = nil
	}
	b.prompt.Dismiss(p.Request)
	b.setStatus(StateIdle, nil)
}

func (b *Bridge) reject(ctx context.Context, p *PendingTap, reason string) {
	b.metrics.Outcomes.WithLabelValues(p.Request.Kind.String(), string(OutcomeRejected)).Inc()
	if err := p.Sink.Reject(ctx, p.Request.ID, p.Request.rejectCode(), reason); err != nil {
		log.Warn().Err(err).Int64("request_id", p.Request.ID).Msg("Failed to deliver rejection")
	}
}

// run 执行签名流水线，panic 也转换为 Failed
func (b *Bridge) run(ctx context.Context, c card.Card, p *PendingTap) (outcome *Outcome) {
	defer func() {
		if r := recover(); r != nil {
			outcome = &Outcome{Status: OutcomeFailed, Err: errors.Errorf("signing pipeline panicked: %v", r)}
		}
	}()

	sig, signer, err := b.signer.Sign(ctx, c, p.Request)
	if err != nil {
		return &Outcome{Status: OutcomeFailed, Err: err}
	}

	result, err := p.Finalize(ctx, sig)
	if err != nil {
		return &Outcome{Status: OutcomeFailed, Signature: sig, Signer: signer, Err: err}
	}

	return &Outcome{Status: OutcomeSigned, Signature: sig, Signer: signer, Result: result}
}

func (b *Bridge) report(ctx context.Context, p *PendingTap, outcome *Outcome) {
	req := p.Request
	b.metrics.Outcomes.WithLabelValues(req.Kind.String(), string(outcome.Status)).Inc()

	if outcome.Status != OutcomeSigned {
		outcome.Reason = outcome.Err.Error()
		log.Error().
			Err(outcome.Err).
			Int64("request_id", req.ID).
			Str("trace_id", req.TraceID).
			Str("error_kind", string(types.KindOf(outcome.Err))).
			Msg("Card signing failed")

		if err := p.Sink.Reject(ctx, req.ID, req.rejectCode(), outcome.Reason); err != nil {
			log.Warn().Err(err).Int64("request_id", req.ID).Msg("Failed to deliver rejection")
		}
		return
	}

	log.Info().
		Int64("request_id", req.ID).
		Str("trace_id", req.TraceID).
		Str("signer", outcome.Signer.Hex()).
		Uint8("v", outcome.Signature.V).
		Uint32("sig_counter", outcome.Signature.SigCounter).
		Uint32("global_sig_counter", outcome.Signature.GlobalSigCounter).
		Msg("Card signature produced")

	if err := p.Sink.Approve(ctx, req.ID, outcome.Result); err != nil {
		log.Warn().Err(err).Int64("request_id", req.ID).Msg("Failed to deliver approval")
	}

	for _, o := range b.observers {
		o.Signed(ctx, req, outcome)
	}
}

func (b *Bridge) runIdle(ctx context.Context, c card.Card) {
	if b.idle == nil {
		return
	}

	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("Idle card handler panicked")
		}
	}()

	if err := b.idle(ctx, c); err != nil {
		log.Warn().Err(err).Msg("Idle card read failed")
	}
}

// Waiting 返回当前请求已等待刷卡的时间
func (b *Bridge) Waiting() time.Duration {
	status := b.Status()
	if status.Request == nil {
		return 0
	}
	return b.clock.Now().Sub(status.Request.CreatedAt)
}
