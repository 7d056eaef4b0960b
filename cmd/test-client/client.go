package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/SafeMPC/card-bridge/internal/types"
)

// TestClient 管理接口的 HTTP 客户端
type TestClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewTestClient 创建新的测试客户端
func NewTestClient(baseURL string) *TestClient {
	return &TestClient{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Account 读取卡片账户，卡片还没被刷过时返回错误
func (c *TestClient) Account(ctx context.Context) (*types.AccountResponse, error) {
	var account types.AccountResponse
	if err := c.get(ctx, "/api/v1/account", &account); err != nil {
		return nil, err
	}
	return &account, nil
}

// Status 读取签名桥状态
func (c *TestClient) Status(ctx context.Context) (*types.BridgeStatusResponse, error) {
	var status types.BridgeStatusResponse
	if err := c.get(ctx, "/api/v1/bridge/status", &status); err != nil {
		return nil, err
	}
	return &status, nil
}

func (c *TestClient) get(ctx context.Context, path string, result interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(body))
	}

	if err := json.Unmarshal(body, result); err != nil {
		return fmt.Errorf("failed to unmarshal response: %w", err)
	}
	return nil
}
