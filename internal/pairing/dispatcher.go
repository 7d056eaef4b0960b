package pairing

import (
	"context"
	"encoding/json"

	"github.com/SafeMPC/card-bridge/internal/chain"
	"github.com/SafeMPC/card-bridge/internal/infra/key"
	"github.com/SafeMPC/card-bridge/internal/infra/request"
	"github.com/SafeMPC/card-bridge/internal/infra/signing"
	"github.com/SafeMPC/card-bridge/internal/metrics"
	"github.com/SafeMPC/card-bridge/internal/types"
	"github.com/rs/zerolog/log"
)

// Dispatcher 把对端消息路由到会话管理、请求适配器和签名桥
type Dispatcher struct {
	sessions *SessionManager
	chains   *chain.Registry
	factory  *request.Factory
	bridge   *signing.Bridge
	keys     *key.Service
	metrics  *metrics.Service
}

// NewDispatcher 创建分发器
func NewDispatcher(
	sessions *SessionManager,
	chains *chain.Registry,
	factory *request.Factory,
	bridge *signing.Bridge,
	keys *key.Service,
	m *metrics.Service,
) *Dispatcher {
	return &Dispatcher{
		sessions: sessions,
		chains:   chains,
		factory:  factory,
		bridge:   bridge,
		keys:     keys,
		metrics:  m,
	}
}

// Handle 处理一条消息。返回的错误只表示响应无法送达
func (d *Dispatcher) Handle(ctx context.Context, sink signing.ResponseSink, msg *Message) error {
	if msg.IsResponse() {
		log.Debug().Int64("id", msg.ID).Msg("Ignoring response from peer")
		return nil
	}

	d.metrics.SessionRequests.WithLabelValues(msg.Method).Inc()

	switch msg.Method {
	case MethodSessionPropose:
		var params ProposeParams
		if err := json.Unmarshal(msg.Params, &params); err != nil {
			return sink.Reject(ctx, msg.ID, CodeInvalidRequest, "invalid session proposal")
		}
		return d.sessions.Propose(ctx, sink, msg.ID, &params)

	case MethodSessionRequest:
		return d.sessionRequest(ctx, sink, msg)

	case MethodAuthRequest:
		return d.authRequest(ctx, sink, msg)

	case MethodSessionDelete:
		var params SessionDeleteParams
		if err := json.Unmarshal(msg.Params, &params); err != nil {
			return sink.Reject(ctx, msg.ID, CodeInvalidRequest, "invalid session delete")
		}
		deleted := d.sessions.Delete(sink, params.Topic)
		d.bridge.CancelFor(ctx, sink, "session deleted")
		log.Info().Str("topic", params.Topic).Bool("deleted", deleted).Str("reason", params.Reason.Message).Msg("Session deleted by peer")
		return sink.Approve(ctx, msg.ID, true)

	case MethodSessionPing:
		return sink.Approve(ctx, msg.ID, true)

	default:
		return sink.Reject(ctx, msg.ID, CodeMethodNotFound, "method not found: "+msg.Method)
	}
}

func (d *Dispatcher) sessionRequest(ctx context.Context, sink signing.ResponseSink, msg *Message) error {
	var params SessionRequestParams
	if err := json.Unmarshal(msg.Params, &params); err != nil {
		return sink.Reject(ctx, msg.ID, CodeInvalidRequest, "invalid session request")
	}

	session, err := d.sessions.Lookup(sink, params.Topic)
	if err != nil {
		return sink.Reject(ctx, msg.ID, CodeUnauthorizedTopic, err.Error())
	}

	c, ok := d.chains.Get(params.ChainID)
	if !ok || !session.HasChain(params.ChainID) {
		return d.rejectRequest(ctx, sink, msg.ID, types.ErrUnsupportedRequest("chain "+params.ChainID+" is not supported"))
	}

	return d.install(ctx, sink, &request.Call{
		ID:     msg.ID,
		Method: params.Request.Method,
		Params: params.Request.Params,
		Chain:  c,
	})
}

func (d *Dispatcher) authRequest(ctx context.Context, sink signing.ResponseSink, msg *Message) error {
	var params AuthRequestParams
	if err := json.Unmarshal(msg.Params, &params); err != nil || len(params.PayloadParams) == 0 {
		return sink.Reject(ctx, msg.ID, signing.CodeAuthRejected, "invalid auth request")
	}

	return d.install(ctx, sink, &request.Call{
		ID:     msg.ID,
		Method: request.MethodAuthRequest,
		Params: params.PayloadParams,
	})
}

// install 准备请求并交给签名桥；准备失败时在安装前拒绝
func (d *Dispatcher) install(ctx context.Context, sink signing.ResponseSink, call *request.Call) error {
	identity, ok := d.keys.Current()
	if !ok {
		return d.rejectCall(ctx, sink, call, types.ErrUnsupportedRequest("no card account available, tap the card first"))
	}
	call.Account = identity.Address

	prepared, err := d.factory.Prepare(ctx, call)
	if err != nil {
		return d.rejectCall(ctx, sink, call, err)
	}

	if err := d.bridge.RequestSignature(ctx, prepared.PendingTap(sink)); err != nil {
		return d.rejectCall(ctx, sink, call, err)
	}
	return nil
}

func (d *Dispatcher) rejectCall(ctx context.Context, sink signing.ResponseSink, call *request.Call, err error) error {
	if call.Method == request.MethodAuthRequest {
		log.Warn().Err(err).Int64("request_id", call.ID).Msg("Rejecting auth request")
		return sink.Reject(ctx, call.ID, signing.CodeAuthRejected, err.Error())
	}
	return d.rejectRequest(ctx, sink, call.ID, err)
}

func (d *Dispatcher) rejectRequest(ctx context.Context, sink signing.ResponseSink, id int64, err error) error {
	log.Warn().
		Err(err).
		Int64("request_id", id).
		Str("error_kind", string(types.KindOf(err))).
		Msg("Rejecting session request")
	return sink.Reject(ctx, id, signing.CodeUserRejected, err.Error())
}
