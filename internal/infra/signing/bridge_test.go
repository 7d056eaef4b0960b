package signing_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/SafeMPC/card-bridge/internal/card"
	"github.com/SafeMPC/card-bridge/internal/card/cardtest"
	"github.com/SafeMPC/card-bridge/internal/config"
	"github.com/SafeMPC/card-bridge/internal/infra/signature"
	"github.com/SafeMPC/card-bridge/internal/infra/signing"
	"github.com/SafeMPC/card-bridge/internal/metrics"
	"github.com/SafeMPC/card-bridge/internal/types"
	"github.com/dropbox/godropbox/time2"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type rejection struct {
	ID      int64
	Code    int
	Message string
}

// recordingSink 记录所有响应
type recordingSink struct {
	mu       sync.Mutex
	approved map[int64]interface{}
	rejected []rejection
}

func newRecordingSink() *recordingSink {
	return &recordingSink{approved: map[int64]interface{}{}}
}

func (s *recordingSink) Approve(_ context.Context, id int64, result interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.approved[id] = result
	return nil
}

func (s *recordingSink) Reject(_ context.Context, id int64, code int, message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rejected = append(s.rejected, rejection{ID: id, Code: code, Message: message})
	return nil
}

func (s *recordingSink) responses() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.approved) + len(s.rejected)
}

func newBridge(t *testing.T, cfg config.Bridge) (*signing.Bridge, *metrics.Service) {
	t.Helper()
	m, err := metrics.New()
	require.NoError(t, err)
	signer := signing.NewCardSigner(config.Card{KeyHandle: 1})
	return signing.NewBridge(cfg, signer, time2.DefaultClock, m), m
}

func hexFinalizer(calls *int) signing.Finalizer {
	return func(_ context.Context, sig *signature.Normalized) (interface{}, error) {
		if calls != nil {
			*calls++
		}
		return sig.Hex(), nil
	}
}

func newTap(id int64, message string, sink signing.ResponseSink, calls *int) *signing.PendingTap {
	return &signing.PendingTap{
		Request:  signing.NewSigningRequest(id, signing.KindPersonalMessage, "personal_sign", crypto.Keccak256([]byte(message)), message),
		Finalize: hexFinalizer(calls),
		Sink:     sink,
	}
}

func TestBridgeSignsOnTap(t *testing.T) {
	bridge, m := newBridge(t, config.Bridge{})
	fake := cardtest.NewDefault()
	sink := newRecordingSink()

	tap := newTap(1, "hello", sink, nil)
	require.NoError(t, bridge.RequestSignature(t.Context(), tap))
	assert.Equal(t, signing.StateAwaitingTap, bridge.Status().State)
	assert.Equal(t, float64(1), testutil.ToFloat64(m.PendingRequests))

	outcome := bridge.HandleTap(t.Context(), fake)
	require.NotNil(t, outcome)
	require.Equal(t, signing.OutcomeSigned, outcome.Status, "err: %v", outcome.Err)
	assert.Equal(t, fake.Address(1), outcome.Signer)
	assert.Equal(t, uint32(1), outcome.Signature.SigCounter)

	pub, err := crypto.SigToPub(tap.Request.BytesToSign, outcome.Signature.RecoveryBytes())
	require.NoError(t, err)
	assert.Equal(t, fake.Address(1), crypto.PubkeyToAddress(*pub))

	assert.Equal(t, outcome.Signature.Hex(), sink.approved[1])
	assert.Empty(t, sink.rejected)
	assert.Equal(t, signing.StateIdle, bridge.Status().State)
	assert.Equal(t, float64(0), testutil.ToFloat64(m.PendingRequests))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.Outcomes.WithLabelValues("personal_message", "signed")))
}

func TestBridgeSupersededRequestIsDropped(t *testing.T) {
	bridge, m := newBridge(t, config.Bridge{})
	fake := cardtest.NewDefault()
	sinkA, sinkB := newRecordingSink(), newRecordingSink()
	var callsA, callsB int

	require.NoError(t, bridge.RequestSignature(t.Context(), newTap(1, "A", sinkA, &callsA)))
	require.NoError(t, bridge.RequestSignature(t.Context(), newTap(2, "B", sinkB, &callsB)))
	assert.Equal(t, int64(2), bridge.Status().Request.ID)

	outcome := bridge.HandleTap(t.Context(), fake)
	require.Equal(t, signing.OutcomeSigned, outcome.Status)

	assert.Equal(t, 0, callsA)
	assert.Equal(t, 1, callsB)
	assert.Equal(t, 0, sinkA.responses())
	assert.Contains(t, sinkB.approved, int64(2))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.Superseded))

	// 第二次刷卡不会再触发 A
	assert.Nil(t, bridge.HandleTap(t.Context(), fake))
	assert.Equal(t, 0, sinkA.responses())
}

func TestBridgeRejectSuperseded(t *testing.T) {
	bridge, _ := newBridge(t, config.Bridge{RejectSuperseded: true})
	sinkA, sinkB := newRecordingSink(), newRecordingSink()

	require.NoError(t, bridge.RequestSignature(t.Context(), newTap(1, "A", sinkA, nil)))
	require.NoError(t, bridge.RequestSignature(t.Context(), newTap(2, "B", sinkB, nil)))

	require.Len(t, sinkA.rejected, 1)
	assert.Equal(t, rejection{ID: 1, Code: signing.CodeUserRejected, Message: "superseded"}, sinkA.rejected[0])
	assert.Equal(t, 0, sinkB.responses())
}

func TestBridgeCancelBeforeTap(t *testing.T) {
	bridge, _ := newBridge(t, config.Bridge{})
	sink := newRecordingSink()
	var idleTaps int
	bridge.SetIdleHandler(func(context.Context, card.Card) error {
		idleTaps++
		return nil
	})

	var calls int
	require.NoError(t, bridge.RequestSignature(t.Context(), newTap(7, "cancel me", sink, &calls)))
	assert.True(t, bridge.Cancel(t.Context(), "user rejected"))
	assert.False(t, bridge.Cancel(t.Context(), "user rejected"))

	require.Len(t, sink.rejected, 1)
	assert.Equal(t, int64(7), sink.rejected[0].ID)
	assert.Equal(t, signing.CodeUserRejected, sink.rejected[0].Code)
	assert.Equal(t, signing.StateIdle, bridge.Status().State)

	assert.Nil(t, bridge.HandleTap(t.Context(), cardtest.NewDefault()))
	assert.Equal(t, 1, idleTaps)
	assert.Equal(t, 0, calls)
}

func TestBridgeCancelForSink(t *testing.T) {
	bridge, _ := newBridge(t, config.Bridge{})
	sink, other := newRecordingSink(), newRecordingSink()

	require.NoError(t, bridge.RequestSignature(t.Context(), newTap(1, "A", sink, nil)))
	assert.False(t, bridge.CancelFor(t.Context(), other, "disconnected"))
	assert.Equal(t, signing.StateAwaitingTap, bridge.Status().State)

	assert.True(t, bridge.CancelFor(t.Context(), sink, "disconnected"))
	assert.Len(t, sink.rejected, 1)
	assert.Equal(t, 0, other.responses())
}

func TestBridgeCancelRequestByID(t *testing.T) {
	bridge, _ := newBridge(t, config.Bridge{})
	sink := newRecordingSink()

	require.NoError(t, bridge.RequestSignature(t.Context(), newTap(3, "A", sink, nil)))
	assert.False(t, bridge.CancelRequest(t.Context(), 4, "stale"))
	assert.Equal(t, 0, sink.responses())

	assert.True(t, bridge.CancelRequest(t.Context(), 3, "user rejected"))
	require.Len(t, sink.rejected, 1)
	assert.Equal(t, "user rejected", sink.rejected[0].Message)
}

func TestBridgeFailureResetsToIdle(t *testing.T) {
	tests := []struct {
		name string
		card func() *cardtest.Card
		kind types.ErrorKind
	}{
		{
			name: "malleable signature",
			card: func() *cardtest.Card {
				c := cardtest.NewDefault()
				c.HighS = true
				return c
			},
			kind: types.ErrorKindMalformedSignature,
		},
		{
			name: "card communication",
			card: func() *cardtest.Card {
				c := cardtest.NewDefault()
				c.Err = types.ErrCardCommunication(context.DeadlineExceeded, "card transceive timed out")
				return c
			},
			kind: types.ErrorKindCardCommunication,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bridge, m := newBridge(t, config.Bridge{})
			sink := newRecordingSink()

			require.NoError(t, bridge.RequestSignature(t.Context(), newTap(3, "fail", sink, nil)))
			outcome := bridge.HandleTap(t.Context(), tt.card())

			require.Equal(t, signing.OutcomeFailed, outcome.Status)
			assert.Equal(t, tt.kind, types.KindOf(outcome.Err))
			require.Len(t, sink.rejected, 1)
			assert.Equal(t, signing.CodeUserRejected, sink.rejected[0].Code)
			assert.Empty(t, sink.approved)
			assert.Equal(t, signing.StateIdle, bridge.Status().State)
			assert.Equal(t, float64(1), testutil.ToFloat64(m.Outcomes.WithLabelValues("personal_message", "failed")))

			// 失败后可以继续处理新请求
			require.NoError(t, bridge.RequestSignature(t.Context(), newTap(4, "retry", sink, nil)))
			outcome = bridge.HandleTap(t.Context(), cardtest.NewDefault())
			assert.Equal(t, signing.OutcomeSigned, outcome.Status)
		})
	}
}

func TestBridgeWrongAccountIsRecoveryFailure(t *testing.T) {
	bridge, _ := newBridge(t, config.Bridge{})
	sink := newRecordingSink()

	tap := newTap(5, "wrong card", sink, nil)
	tap.Request.Account = common.HexToAddress("0x000000000000000000000000000000000000dEaD")
	require.NoError(t, bridge.RequestSignature(t.Context(), tap))

	outcome := bridge.HandleTap(t.Context(), cardtest.NewDefault())
	require.Equal(t, signing.OutcomeFailed, outcome.Status)
	assert.Equal(t, types.ErrorKindRecoveryFailure, types.KindOf(outcome.Err))
	assert.Len(t, sink.rejected, 1)
}

func TestBridgePanicResetsToIdle(t *testing.T) {
	bridge, _ := newBridge(t, config.Bridge{})
	sink := newRecordingSink()
	fake := cardtest.NewDefault()
	fake.OnSign = func() { panic("reader exploded") }

	require.NoError(t, bridge.RequestSignature(t.Context(), newTap(9, "panic", sink, nil)))
	outcome := bridge.HandleTap(t.Context(), fake)

	require.Equal(t, signing.OutcomeFailed, outcome.Status)
	assert.Contains(t, outcome.Err.Error(), "reader exploded")
	assert.Len(t, sink.rejected, 1)
	assert.Equal(t, signing.StateIdle, bridge.Status().State)
}

func TestBridgeFinalizerErrorIsReported(t *testing.T) {
	bridge, _ := newBridge(t, config.Bridge{})
	sink := newRecordingSink()

	tap := newTap(11, "finalize", sink, nil)
	tap.Request.RejectCode = signing.CodeAuthRejected
	tap.Finalize = func(context.Context, *signature.Normalized) (interface{}, error) {
		return nil, types.ErrUnsupportedRequest("broadcast refused")
	}
	require.NoError(t, bridge.RequestSignature(t.Context(), tap))

	outcome := bridge.HandleTap(t.Context(), cardtest.NewDefault())
	require.Equal(t, signing.OutcomeFailed, outcome.Status)
	require.Len(t, sink.rejected, 1)
	assert.Equal(t, signing.CodeAuthRejected, sink.rejected[0].Code)
	assert.Contains(t, sink.rejected[0].Message, "broadcast refused")
}

func TestBridgeRequestDuringTapWaitsForPipeline(t *testing.T) {
	bridge, _ := newBridge(t, config.Bridge{})
	sinkA, sinkB := newRecordingSink(), newRecordingSink()

	entered := make(chan struct{})
	release := make(chan struct{})
	fake := cardtest.NewDefault()
	fake.OnSign = func() {
		close(entered)
		<-release
	}

	require.NoError(t, bridge.RequestSignature(t.Context(), newTap(1, "A", sinkA, nil)))

	done := make(chan *signing.Outcome)
	go func() {
		done <- bridge.HandleTap(context.Background(), fake)
	}()
	<-entered
	assert.Equal(t, signing.StateProcessing, bridge.Status().State)

	installed := make(chan struct{})
	go func() {
		_ = bridge.RequestSignature(context.Background(), newTap(2, "B", sinkB, nil))
		close(installed)
	}()

	select {
	case <-installed:
		t.Fatal("request installed while tap pipeline was running")
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	outcome := <-done
	<-installed

	assert.Equal(t, signing.OutcomeSigned, outcome.Status)
	assert.Contains(t, sinkA.approved, int64(1))
	status := bridge.Status()
	assert.Equal(t, signing.StateAwaitingTap, status.State)
	assert.Equal(t, int64(2), status.Request.ID)
}

func TestRequestSignatureValidation(t *testing.T) {
	bridge, _ := newBridge(t, config.Bridge{})
	sink := newRecordingSink()

	assert.Error(t, bridge.RequestSignature(t.Context(), nil))

	tap := newTap(1, "x", nil, nil)
	assert.Error(t, bridge.RequestSignature(t.Context(), tap))

	tap = newTap(1, "x", sink, nil)
	tap.Request.BytesToSign = []byte{0x01}
	assert.Error(t, bridge.RequestSignature(t.Context(), tap))

	assert.Equal(t, signing.StateIdle, bridge.Status().State)
}
