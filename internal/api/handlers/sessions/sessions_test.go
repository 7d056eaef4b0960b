package sessions_test

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"testing"

	"github.com/SafeMPC/card-bridge/internal/api"
	"github.com/SafeMPC/card-bridge/internal/api/httperrors"
	"github.com/SafeMPC/card-bridge/internal/card/cardtest"
	"github.com/SafeMPC/card-bridge/internal/pairing"
	"github.com/SafeMPC/card-bridge/internal/test"
	"github.com/SafeMPC/card-bridge/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSink struct {
	mu       sync.Mutex
	approved map[int64]interface{}
	rejected map[int64]int
}

func newRecordingSink() *recordingSink {
	return &recordingSink{approved: map[int64]interface{}{}, rejected: map[int64]int{}}
}

func (s *recordingSink) Approve(_ context.Context, id int64, result interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.approved[id] = result
	return nil
}

func (s *recordingSink) Reject(_ context.Context, id int64, code int, _ string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rejected[id] = code
	return nil
}

func proposal(name string, chains ...string) *pairing.ProposeParams {
	return &pairing.ProposeParams{
		Proposer: pairing.Proposer{Metadata: pairing.Metadata{Name: name, URL: "https://" + name + ".example"}},
		RequiredNamespaces: map[string]pairing.ProposalNamespace{
			"eip155": {Chains: chains},
		},
	}
}

func withManualApproval(t *testing.T, closure func(s *api.Server)) {
	t.Helper()
	cfg := test.TestConfig()
	cfg.Pairing.AutoApproveSessions = false
	test.WithTestServerConfigurable(t, cfg, closure)
}

func TestGetSessionsEmpty(t *testing.T) {
	test.WithTestServer(t, func(s *api.Server) {
		res := test.PerformRequest(t, s, "GET", "/api/v1/sessions", nil, nil)
		require.Equal(t, http.StatusOK, res.Result().StatusCode)

		var response types.SessionsResponse
		test.ParseResponseBody(t, res, &response)
		assert.Empty(t, response.Sessions)
		assert.Empty(t, response.Proposals)
	})
}

func TestApproveProposal(t *testing.T) {
	withManualApproval(t, func(s *api.Server) {
		_, err := s.Keys.Refresh(t.Context(), cardtest.NewDefault())
		require.NoError(t, err)

		sink := newRecordingSink()
		require.NoError(t, s.Sessions.Propose(t.Context(), sink, 11, proposal("uniswap", "eip155:1")))
		assert.Empty(t, sink.approved)

		res := test.PerformRequest(t, s, "GET", "/api/v1/sessions", nil, nil)
		var listed types.SessionsResponse
		test.ParseResponseBody(t, res, &listed)
		require.Len(t, listed.Proposals, 1)
		assert.Equal(t, int64(11), listed.Proposals[0].ID)
		assert.Equal(t, "uniswap", listed.Proposals[0].Peer.Name)

		res = test.PerformRequest(t, s, "POST", "/api/v1/sessions/proposals/11/approve", nil, nil)
		require.Equal(t, http.StatusOK, res.Result().StatusCode)

		var session types.SessionSummary
		test.ParseResponseBody(t, res, &session)
		assert.NotEmpty(t, session.Topic)
		assert.Equal(t, []string{"eip155:1"}, session.Chains)
		require.Contains(t, sink.approved, int64(11))

		res = test.PerformRequest(t, s, "GET", "/api/v1/sessions", nil, nil)
		test.ParseResponseBody(t, res, &listed)
		assert.Empty(t, listed.Proposals)
		require.Len(t, listed.Sessions, 1)
		assert.Equal(t, session.Topic, listed.Sessions[0].Topic)

		res = test.PerformRequest(t, s, "POST", "/api/v1/sessions/proposals/11/approve", nil, nil)
		test.RequireHTTPError(t, res, httperrors.ErrNotFoundProposal)
	})
}

func TestApproveProposalWithoutAccount(t *testing.T) {
	withManualApproval(t, func(s *api.Server) {
		sink := newRecordingSink()
		require.NoError(t, s.Sessions.Propose(t.Context(), sink, 12, proposal("opensea", "eip155:5")))

		res := test.PerformRequest(t, s, "POST", "/api/v1/sessions/proposals/12/approve", nil, nil)
		test.RequireHTTPError(t, res, httperrors.ErrConflictNoAccount)
		assert.Equal(t, pairing.CodeUnsupported, sink.rejected[12])
	})
}

func TestRejectProposal(t *testing.T) {
	withManualApproval(t, func(s *api.Server) {
		sink := newRecordingSink()
		require.NoError(t, s.Sessions.Propose(t.Context(), sink, 13, proposal("phishing", "eip155:1")))

		res := test.PerformRequest(t, s, "POST", "/api/v1/sessions/proposals/13/reject", test.GenericPayload{"reason": "unknown dapp"}, nil)
		require.Equal(t, http.StatusNoContent, res.Result().StatusCode)
		assert.Equal(t, pairing.CodeUnsupported, sink.rejected[13])
		assert.Empty(t, s.Sessions.Proposals())

		res = test.PerformRequest(t, s, "POST", "/api/v1/sessions/proposals/13/reject", nil, nil)
		test.RequireHTTPError(t, res, httperrors.ErrNotFoundProposal)
	})
}

func TestProposalInvalidID(t *testing.T) {
	test.WithTestServer(t, func(s *api.Server) {
		res := test.PerformRequest(t, s, "POST", "/api/v1/sessions/proposals/abc/approve", nil, nil)
		require.Equal(t, http.StatusBadRequest, res.Result().StatusCode)
	})
}

func TestDeleteSession(t *testing.T) {
	test.WithTestServer(t, func(s *api.Server) {
		_, err := s.Keys.Refresh(t.Context(), cardtest.NewDefault())
		require.NoError(t, err)

		sink := newRecordingSink()
		require.NoError(t, s.Sessions.Propose(t.Context(), sink, 1, proposal("uniswap", "eip155:1")))
		sessions := s.Sessions.Sessions()
		require.Len(t, sessions, 1)
		topic := sessions[0].Topic

		res := test.PerformRequest(t, s, "DELETE", fmt.Sprintf("/api/v1/sessions/%s", topic), nil, nil)
		require.Equal(t, http.StatusNoContent, res.Result().StatusCode)
		assert.Empty(t, s.Sessions.Sessions())

		_, err = s.Sessions.Lookup(sink, topic)
		assert.Error(t, err)

		res = test.PerformRequest(t, s, "DELETE", fmt.Sprintf("/api/v1/sessions/%s", topic), nil, nil)
		test.RequireHTTPError(t, res, httperrors.ErrNotFoundSession)
	})
}
