package key_test

import (
	"testing"
	"time"

	"github.com/SafeMPC/card-bridge/internal/card/cardtest"
	"github.com/SafeMPC/card-bridge/internal/config"
	"github.com/SafeMPC/card-bridge/internal/infra/key"
	"github.com/SafeMPC/card-bridge/internal/types"
	"github.com/dropbox/godropbox/time2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newService() (*key.Service, *time2.MockClock) {
	clock := time2.NewMockClock(time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC))
	return key.NewService(config.Card{KeyHandle: 1}, clock), clock
}

func TestRefresh(t *testing.T) {
	svc, clock := newService()
	fake := cardtest.NewDefault()

	_, ok := svc.Current()
	assert.False(t, ok)

	identity, err := svc.Refresh(t.Context(), fake)
	require.NoError(t, err)
	assert.Equal(t, fake.Address(1), identity.Address)
	assert.Len(t, identity.PublicKey, 65)
	assert.Equal(t, clock.Now(), identity.ReadAt)
	assert.Equal(t, "did:pkh:eip155:1:"+fake.Address(1).Hex(), identity.Issuer())
	assert.Equal(t, "eip155:5:"+fake.Address(1).Hex(), identity.CAIP10("eip155:5"))

	current, ok := svc.Current()
	require.True(t, ok)
	assert.Equal(t, identity.Address, current.Address)
}

func TestRefreshCreatesMissingKey(t *testing.T) {
	svc := key.NewService(config.Card{KeyHandle: 4}, time2.DefaultClock)

	identity, err := svc.Refresh(t.Context(), cardtest.NewDefault())
	require.NoError(t, err)
	assert.Equal(t, byte(4), identity.KeyHandle)
}

func TestPINLifecycle(t *testing.T) {
	svc, _ := newService()
	fake := cardtest.NewDefault()

	_, err := svc.SetPIN(t.Context(), fake, "")
	assert.Error(t, err)

	set, err := svc.SetPIN(t.Context(), fake, "1234")
	require.NoError(t, err)
	assert.Len(t, set.PUK, 8)

	_, err = svc.ChangePIN(t.Context(), fake, "9999", "5678")
	assert.True(t, types.IsKind(err, types.ErrorKindInvalidCredential))

	changed, err := svc.ChangePIN(t.Context(), fake, "1234", "5678")
	require.NoError(t, err)

	err = svc.UnlockPIN(t.Context(), fake, []byte{0, 0, 0, 0, 0, 0, 0, 0})
	assert.True(t, types.IsKind(err, types.ErrorKindInvalidCredential))
	require.NoError(t, svc.UnlockPIN(t.Context(), fake, changed.PUK))
}

func TestGenerateFromSeed(t *testing.T) {
	svc, _ := newService()
	fake := cardtest.NewDefault()

	require.NoError(t, svc.GenerateFromSeed(t.Context(), fake, []byte("00112233445566778899AABBCCDDEEFF"), ""))

	seeded := key.NewService(config.Card{KeyHandle: 0}, time2.DefaultClock)
	identity, err := seeded.Refresh(t.Context(), fake)
	require.NoError(t, err)
	assert.Equal(t, fake.Address(0), identity.Address)
}
