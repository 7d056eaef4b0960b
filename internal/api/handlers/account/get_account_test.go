package account_test

import (
	"context"
	"net/http"
	"testing"

	"github.com/SafeMPC/card-bridge/internal/api"
	"github.com/SafeMPC/card-bridge/internal/api/httperrors"
	"github.com/SafeMPC/card-bridge/internal/card/cardtest"
	"github.com/SafeMPC/card-bridge/internal/infra/signature"
	"github.com/SafeMPC/card-bridge/internal/infra/signing"
	"github.com/SafeMPC/card-bridge/internal/test"
	"github.com/SafeMPC/card-bridge/internal/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type nopSink struct{}

func (nopSink) Approve(context.Context, int64, interface{}) error { return nil }
func (nopSink) Reject(context.Context, int64, int, string) error  { return nil }

func TestGetAccountBeforeTap(t *testing.T) {
	test.WithTestServer(t, func(s *api.Server) {
		res := test.PerformRequest(t, s, "GET", "/api/v1/account", nil, nil)
		test.RequireHTTPError(t, res, httperrors.ErrConflictNoAccount)
	})
}

func TestGetAccountAfterIdleTap(t *testing.T) {
	test.WithTestServer(t, func(s *api.Server) {
		fake := cardtest.NewDefault()

		// 没有待签请求时刷卡只读取账户
		assert.Nil(t, s.Bridge.HandleTap(t.Context(), fake))

		res := test.PerformRequest(t, s, "GET", "/api/v1/account", nil, nil)
		require.Equal(t, http.StatusOK, res.Result().StatusCode)

		var response types.AccountResponse
		test.ParseResponseBody(t, res, &response)
		address := fake.Address(1).Hex()
		assert.Equal(t, address, *response.Address)
		assert.Equal(t, "did:pkh:eip155:1:"+address, response.Issuer)
		assert.Equal(t, int64(1), response.KeyHandle)
		assert.Equal(t, []string{"eip155:1:" + address, "eip155:5:" + address}, response.Accounts)
		assert.Nil(t, response.Ledger)
	})
}

func TestGetAccountIncludesLedger(t *testing.T) {
	test.WithTestServer(t, func(s *api.Server) {
		fake := cardtest.NewDefault()
		_, err := s.Keys.Refresh(t.Context(), fake)
		require.NoError(t, err)

		require.NoError(t, s.Bridge.RequestSignature(t.Context(), &signing.PendingTap{
			Request: signing.NewSigningRequest(1, signing.KindPersonalMessage, "personal_sign", crypto.Keccak256([]byte("ledger")), "ledger"),
			Sink:    nopSink{},
			Finalize: func(_ context.Context, sig *signature.Normalized) (interface{}, error) {
				return sig.Hex(), nil
			},
		}))
		outcome := s.Bridge.HandleTap(t.Context(), fake)
		require.Equal(t, signing.OutcomeSigned, outcome.Status)

		res := test.PerformRequest(t, s, "GET", "/api/v1/account", nil, nil)
		require.Equal(t, http.StatusOK, res.Result().StatusCode)

		var response types.AccountResponse
		test.ParseResponseBody(t, res, &response)
		require.NotNil(t, response.Ledger)
		assert.Equal(t, int64(outcome.Signature.SigCounter), response.Ledger.SigCounter)
		assert.Equal(t, int64(outcome.Signature.GlobalSigCounter), response.Ledger.GlobalSigCounter)
	})
}
