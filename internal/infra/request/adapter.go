// Package request 把远端请求转换为待签摘要，并把归一化签名转换回远端期望的结果
package request

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/SafeMPC/card-bridge/internal/chain"
	"github.com/SafeMPC/card-bridge/internal/infra/signing"
	"github.com/SafeMPC/card-bridge/internal/types"
	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
)

// MethodAuthRequest 认证请求使用的伪方法名
const MethodAuthRequest = "wc_authRequest"

// Call 一次远端调用
type Call struct {
	ID      int64
	Method  string
	Params  json.RawMessage
	Chain   *chain.Chain   // 认证请求可以为空
	Account common.Address // 当前卡片账户
}

// Prepared 可以交给签名桥的请求
type Prepared struct {
	Request  *signing.SigningRequest
	Finalize signing.Finalizer
}

// PendingTap 绑定响应出口
func (p *Prepared) PendingTap(sink signing.ResponseSink) *signing.PendingTap {
	return &signing.PendingTap{
		Request:  p.Request,
		Finalize: p.Finalize,
		Sink:     sink,
	}
}

// Adapter 每种请求类型一个实现
type Adapter interface {
	Kind() signing.Kind
	Prepare(ctx context.Context, call *Call) (*Prepared, error)
}

func newRequest(call *Call, kind signing.Kind, digest []byte, display string) *signing.SigningRequest {
	req := signing.NewSigningRequest(call.ID, kind, call.Method, digest, display)
	req.Account = call.Account
	if call.Chain != nil {
		req.ChainID = call.Chain.ID()
	}
	return req
}

// stringParams 解析字符串数组参数
func stringParams(raw json.RawMessage, want int) ([]string, error) {
	var params []json.RawMessage
	if err := json.Unmarshal(raw, &params); err != nil {
		return nil, types.ErrUnsupportedRequest("params must be an array")
	}
	if len(params) < want {
		return nil, types.ErrUnsupportedRequest(fmt.Sprintf("expected %d params, got %d", want, len(params)))
	}

	out := make([]string, want)
	for i := 0; i < want; i++ {
		if err := json.Unmarshal(params[i], &out[i]); err != nil {
			// 对象参数保留原始 JSON
			out[i] = string(params[i])
		}
	}
	return out, nil
}

// checkAccount 校验请求中的账户与卡片账户一致
func checkAccount(requested string, account common.Address) error {
	if !common.IsHexAddress(requested) {
		return types.ErrUnsupportedRequest(fmt.Sprintf("invalid account %q", requested))
	}
	if common.HexToAddress(requested) != account {
		return types.ErrUnsupportedRequest("requested account is not valid")
	}
	return nil
}

func requireChain(call *Call) error {
	if call.Chain == nil {
		return types.ErrUnsupportedRequest(fmt.Sprintf("method %s requires a chain", call.Method))
	}
	return nil
}

// Factory 按方法名选择适配器
type Factory struct {
	adapters map[string]Adapter
}

// NewFactory 注册全部内置适配器，backends 为 nil 时交易适配器使用链自身的 RPC
func NewFactory(backends BackendResolver) *Factory {
	message := &MessageAdapter{}
	typed := &TypedDataAdapter{}

	return &Factory{
		adapters: map[string]Adapter{
			chain.MethodPersonalSign:    message,
			chain.MethodSign:            message,
			chain.MethodSignTypedData:   typed,
			chain.MethodSignTypedDataV4: typed,
			chain.MethodSendTransaction: NewTransactionAdapter(true, backends),
			chain.MethodSignTransaction: NewTransactionAdapter(false, backends),
			MethodAuthRequest:           &AuthAdapter{},
		},
	}
}

// ForMethod 返回方法对应的适配器
func (f *Factory) ForMethod(method string) (Adapter, error) {
	adapter, ok := f.adapters[method]
	if !ok {
		return nil, types.ErrUnsupportedRequest(fmt.Sprintf("unknown method %s", method))
	}
	return adapter, nil
}

// Prepare 选择适配器并准备请求
func (f *Factory) Prepare(ctx context.Context, call *Call) (*Prepared, error) {
	if call == nil {
		return nil, errors.New("call is nil")
	}
	adapter, err := f.ForMethod(call.Method)
	if err != nil {
		return nil, err
	}
	return adapter.Prepare(ctx, call)
}

// Methods 返回已注册的方法
func (f *Factory) Methods() []string {
	methods := make([]string, 0, len(f.adapters))
	for m := range f.adapters {
		if !strings.HasPrefix(m, "wc_") {
			methods = append(methods, m)
		}
	}
	return methods
}
