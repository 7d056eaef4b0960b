package storage

import (
	"context"

	"github.com/SafeMPC/card-bridge/internal/infra/signing"
	"github.com/SafeMPC/card-bridge/internal/metrics"
	"github.com/dropbox/godropbox/time2"
	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog/log"
)

// CounterLedger 记录每次成功签名的卡片计数器，计数器未递增时只告警不拦截
type CounterLedger struct {
	store   CounterStore
	clock   time2.Clock
	metrics *metrics.Service
}

var _ signing.Observer = (*CounterLedger)(nil)

// NewCounterLedger 创建计数器账本
func NewCounterLedger(store CounterStore, clock time2.Clock, m *metrics.Service) *CounterLedger {
	return &CounterLedger{store: store, clock: clock, metrics: m}
}

// Signed 实现 signing.Observer
func (l *CounterLedger) Signed(ctx context.Context, req *signing.SigningRequest, outcome *signing.Outcome) {
	if outcome == nil || outcome.Signature == nil {
		return
	}
	sig := outcome.Signature

	logger := log.With().
		Int64("request_id", req.ID).
		Str("address", outcome.Signer.Hex()).
		Uint32("sig_counter", sig.SigCounter).
		Uint32("global_sig_counter", sig.GlobalSigCounter).
		Logger()

	previous, ok, err := l.store.Get(ctx, outcome.Signer)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to read counter ledger")
		return
	}

	if ok && (sig.SigCounter <= previous.SigCounter || sig.GlobalSigCounter <= previous.GlobalSigCounter) {
		logger.Warn().
			Uint32("previous_sig_counter", previous.SigCounter).
			Uint32("previous_global_sig_counter", previous.GlobalSigCounter).
			Msg("Card signature counter did not increase")
		if l.metrics != nil {
			l.metrics.CounterRegressions.Inc()
		}
	}

	record := &CounterRecord{
		Address:          outcome.Signer,
		SigCounter:       sig.SigCounter,
		GlobalSigCounter: sig.GlobalSigCounter,
		UpdatedAt:        l.clock.Now(),
	}
	if err := l.store.Put(ctx, record); err != nil {
		logger.Error().Err(err).Msg("Failed to write counter ledger")
	}
}

// Lookup 读取账户的最新计数器
func (l *CounterLedger) Lookup(ctx context.Context, address common.Address) (*CounterRecord, bool, error) {
	return l.store.Get(ctx, address)
}
