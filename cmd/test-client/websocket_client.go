package main

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/SafeMPC/card-bridge/internal/pairing"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// response 对端收到的 JSON-RPC 响应
type response struct {
	ID     int64             `json:"id"`
	Result json.RawMessage   `json:"result"`
	Error  *pairing.RPCError `json:"error"`
}

// DAppClient 模拟 dApp 的配对连接
type DAppClient struct {
	conn   *websocket.Conn
	url    string
	nextID atomic.Int64
	topic  string
}

// NewDAppClient 创建新的 dApp 客户端
func NewDAppClient(wsURL string) *DAppClient {
	c := &DAppClient{url: wsURL}
	c.nextID.Store(time.Now().UnixMilli())
	return c
}

// Connect 连接到配对 websocket
func (c *DAppClient) Connect(ctx context.Context) error {
	url := c.url + "/pairing/ws"
	log.Debug().Str("url", url).Msg("Connecting to pairing websocket...")

	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}

	conn, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return fmt.Errorf("failed to connect to pairing websocket: %w", err)
	}

	c.conn = conn
	log.Info().Msg("Pairing websocket connected")
	return nil
}

// Close 关闭连接
func (c *DAppClient) Close() error {
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

// Call 发送请求并等待同 ID 的响应，签名请求要等到卡片被刷
func (c *DAppClient) Call(ctx context.Context, method string, params interface{}, timeout time.Duration) (json.RawMessage, error) {
	if c.conn == nil {
		return nil, fmt.Errorf("websocket not connected")
	}

	raw, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal params: %w", err)
	}

	id := c.nextID.Add(1)
	msg := &pairing.Message{JSONRPC: pairing.JSONRPCVersion, ID: id, Method: method, Params: raw}

	_ = c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	if err := c.conn.WriteJSON(msg); err != nil {
		return nil, fmt.Errorf("failed to send message: %w", err)
	}
	log.Debug().Int64("id", id).Str("method", method).Msg("Request sent")

	deadline := time.Now().Add(timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	_ = c.conn.SetReadDeadline(deadline)

	for {
		var resp response
		if err := c.conn.ReadJSON(&resp); err != nil {
			return nil, fmt.Errorf("failed to read response: %w", err)
		}
		if resp.ID != id {
			log.Warn().Int64("id", resp.ID).Msg("Ignoring response for another request")
			continue
		}
		if resp.Error != nil {
			return nil, resp.Error
		}
		return resp.Result, nil
	}
}

// Pair 发起会话提议并记下 topic
func (c *DAppClient) Pair(ctx context.Context, chains []string) (*pairing.ProposeResult, error) {
	params := pairing.ProposeParams{
		Proposer: pairing.Proposer{Metadata: pairing.Metadata{
			Name:        "card-bridge test client",
			Description: "dApp simulator",
			URL:         "http://localhost",
		}},
		RequiredNamespaces: map[string]pairing.ProposalNamespace{
			"eip155": {Chains: chains},
		},
	}

	raw, err := c.Call(ctx, pairing.MethodSessionPropose, params, 5*time.Minute)
	if err != nil {
		return nil, err
	}

	var result pairing.ProposeResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("failed to parse proposal result: %w", err)
	}
	c.topic = result.Topic
	return &result, nil
}

// Request 在已配对的会话上发送签名请求
func (c *DAppClient) Request(ctx context.Context, chainID string, method string, params interface{}, timeout time.Duration) (json.RawMessage, error) {
	if c.topic == "" {
		return nil, fmt.Errorf("not paired")
	}
	return c.Call(ctx, pairing.MethodSessionRequest, map[string]interface{}{
		"topic":   c.topic,
		"chainId": chainID,
		"request": map[string]interface{}{
			"method": method,
			"params": params,
		},
	}, timeout)
}
