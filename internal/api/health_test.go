package api_test

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/SafeMPC/card-bridge/internal/api"
	"github.com/SafeMPC/card-bridge/internal/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHealthRoutes(t *testing.T) {
	test.WithTestServer(t, func(s *api.Server) {
		for _, path := range []string{"/health", "/health/live", "/health/ready", "/ping"} {
			res := test.PerformRequest(t, s, "GET", path, nil, nil)
			assert.Equal(t, http.StatusOK, res.Result().StatusCode, path)
		}
	})
}

func TestHealthDetailed(t *testing.T) {
	test.WithTestServer(t, func(s *api.Server) {
		res := test.PerformRequest(t, s, "GET", "/health/detailed", nil, nil)
		require.Equal(t, http.StatusOK, res.Result().StatusCode)

		var body struct {
			Status     string                     `json:"status"`
			Components map[string]json.RawMessage `json:"components"`
		}
		test.ParseResponseBody(t, res, &body)

		assert.Equal(t, "ok", body.Status)
		assert.JSONEq(t, `{"status":"disabled"}`, string(body.Components["card_reader"]))
		assert.JSONEq(t, `{"status":"disabled"}`, string(body.Components["redis"]))
		assert.JSONEq(t, `["eip155:1","eip155:5"]`, string(body.Components["chains"]))
	})
}

func TestReadinessRequiresCardWatcher(t *testing.T) {
	cfg := test.TestConfig()
	test.WithTestServerConfigurable(t, cfg, func(s *api.Server) {
		// 读卡器启用但 watcher 没有启动
		s.Config.Card.Enabled = true

		res := test.PerformRequest(t, s, "GET", "/health/ready", nil, nil)
		assert.Equal(t, http.StatusServiceUnavailable, res.Result().StatusCode)

		res = test.PerformRequest(t, s, "GET", "/health", nil, nil)
		var body map[string]interface{}
		test.ParseResponseBody(t, res, &body)
		assert.Equal(t, "degraded", body["status"])
	})
}

func TestMetricsEndpoint(t *testing.T) {
	test.WithTestServer(t, func(s *api.Server) {
		test.PerformRequest(t, s, "GET", "/api/v1/bridge/status", nil, nil)

		res := test.PerformRequest(t, s, "GET", "/-/metrics", nil, nil)
		require.Equal(t, http.StatusOK, res.Result().StatusCode)
		assert.Contains(t, res.Body.String(), "card_bridge_pending_requests")
		assert.Contains(t, res.Body.String(), "card_bridge_http_requests_total")
	})
}
