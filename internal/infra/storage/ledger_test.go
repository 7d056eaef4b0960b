package storage_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/SafeMPC/card-bridge/internal/infra/signature"
	"github.com/SafeMPC/card-bridge/internal/infra/signing"
	"github.com/SafeMPC/card-bridge/internal/infra/storage"
	"github.com/SafeMPC/card-bridge/internal/metrics"
	"github.com/dropbox/godropbox/time2"
	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testAddress = common.HexToAddress("0x2c7536E3605D9C16a7a3D7b1898e529396a65c23")

func outcome(sig, global uint32) *signing.Outcome {
	return &signing.Outcome{
		Status:    signing.OutcomeSigned,
		Signer:    testAddress,
		Signature: &signature.Normalized{V: 27, SigCounter: sig, GlobalSigCounter: global},
	}
}

func TestCounterLedger(t *testing.T) {
	m, err := metrics.New()
	require.NoError(t, err)
	clock := time2.NewMockClock(time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC))
	ledger := storage.NewCounterLedger(storage.NewMemoryCounterStore(), clock, m)
	req := &signing.SigningRequest{ID: 1, Account: testAddress}

	ctx := t.Context()
	ledger.Signed(ctx, req, outcome(1, 10))
	ledger.Signed(ctx, req, outcome(2, 11))
	assert.Equal(t, float64(0), testutil.ToFloat64(m.CounterRegressions))

	record, ok, err := ledger.Lookup(ctx, testAddress)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, uint32(2), record.SigCounter)
	assert.Equal(t, uint32(11), record.GlobalSigCounter)
	assert.Equal(t, clock.Now(), record.UpdatedAt)

	// 计数器回退只告警，仍然记录
	ledger.Signed(ctx, req, outcome(2, 12))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.CounterRegressions))

	record, _, err = ledger.Lookup(ctx, testAddress)
	require.NoError(t, err)
	assert.Equal(t, uint32(12), record.GlobalSigCounter)
}

func TestCounterLedgerIgnoresUnsigned(t *testing.T) {
	store := storage.NewMemoryCounterStore()
	ledger := storage.NewCounterLedger(store, time2.DefaultClock, nil)

	ledger.Signed(t.Context(), &signing.SigningRequest{}, &signing.Outcome{Status: signing.OutcomeFailed})

	_, ok, err := store.Get(t.Context(), testAddress)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedisCounterStore(t *testing.T) {
	addr := os.Getenv("CARD_BRIDGE_TEST_REDIS")
	if addr == "" {
		t.Skip("CARD_BRIDGE_TEST_REDIS not set")
	}

	client := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { _ = client.Close() })

	prefix := "card-bridge-test:" + uuid.NewString() + ":"
	store := storage.NewRedisCounterStore(client, prefix)
	ctx := context.Background()
	t.Cleanup(func() { client.Del(ctx, prefix+testAddress.Hex()) })

	_, ok, err := store.Get(ctx, testAddress)
	require.NoError(t, err)
	assert.False(t, ok)

	updated := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, store.Put(ctx, &storage.CounterRecord{
		Address:          testAddress,
		SigCounter:       3,
		GlobalSigCounter: 42,
		UpdatedAt:        updated,
	}))

	record, ok, err := store.Get(ctx, testAddress)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, uint32(3), record.SigCounter)
	assert.Equal(t, uint32(42), record.GlobalSigCounter)
	assert.True(t, updated.Equal(record.UpdatedAt))
}
