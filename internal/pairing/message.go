// Package pairing 实现钱包配对协议：会话提议、签名请求分发、认证请求，以及 websocket 对端
package pairing

import (
	"encoding/json"
	"fmt"

	"github.com/SafeMPC/card-bridge/internal/infra/request"
)

// JSONRPCVersion 协议版本
const JSONRPCVersion = "2.0"

// 协议方法
const (
	MethodSessionPropose = "wc_sessionPropose"
	MethodSessionRequest = "wc_sessionRequest"
	MethodSessionDelete  = "wc_sessionDelete"
	MethodSessionPing    = "wc_sessionPing"
	MethodAuthRequest    = request.MethodAuthRequest
)

// 错误码
const (
	CodeParseError        = -32700
	CodeInvalidRequest    = -32600
	CodeMethodNotFound    = -32601
	CodeLimitExceeded     = -32005
	CodeUnauthorizedTopic = 3001
	CodeUnsupported       = 5000
)

// Message JSON-RPC 请求或响应
type Message struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      int64           `json:"id"`
	Method  string          `json:"method,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
	Result  interface{}     `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

// RPCError JSON-RPC 错误
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("%d: %s", e.Code, e.Message)
}

// NewResult 创建成功响应
func NewResult(id int64, result interface{}) *Message {
	return &Message{JSONRPC: JSONRPCVersion, ID: id, Result: result}
}

// NewError 创建错误响应
func NewError(id int64, code int, message string) *Message {
	return &Message{JSONRPC: JSONRPCVersion, ID: id, Error: &RPCError{Code: code, Message: message}}
}

// IsResponse 判断是否为响应
func (m *Message) IsResponse() bool {
	return m.Method == "" && (m.Result != nil || m.Error != nil)
}

// Metadata 对端应用信息
type Metadata struct {
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	URL         string   `json:"url,omitempty"`
	Icons       []string `json:"icons,omitempty"`
}

// Proposer 会话提议方
type Proposer struct {
	PublicKey string   `json:"publicKey,omitempty"`
	Metadata  Metadata `json:"metadata"`
}

// ProposalNamespace 提议中的命名空间要求
type ProposalNamespace struct {
	Chains  []string `json:"chains"`
	Methods []string `json:"methods,omitempty"`
	Events  []string `json:"events,omitempty"`
}

// SessionNamespace 批准后的命名空间
type SessionNamespace struct {
	Accounts []string `json:"accounts"`
	Methods  []string `json:"methods"`
	Events   []string `json:"events"`
}

// ProposeParams wc_sessionPropose 参数
type ProposeParams struct {
	Proposer           Proposer                     `json:"proposer"`
	RequiredNamespaces map[string]ProposalNamespace `json:"requiredNamespaces"`
}

// ProposeResult 会话批准结果
type ProposeResult struct {
	Topic      string                      `json:"topic"`
	Namespaces map[string]SessionNamespace `json:"namespaces"`
}

// SessionRequestParams wc_sessionRequest 参数
type SessionRequestParams struct {
	Topic   string `json:"topic"`
	ChainID string `json:"chainId"`
	Request struct {
		Method string          `json:"method"`
		Params json.RawMessage `json:"params"`
	} `json:"request"`
}

// AuthRequestParams wc_authRequest 参数
type AuthRequestParams struct {
	PayloadParams json.RawMessage `json:"payloadParams"`
}

// SessionDeleteParams wc_sessionDelete 参数
type SessionDeleteParams struct {
	Topic  string `json:"topic"`
	Reason struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"reason"`
}
