package signing

import (
	"context"
	"fmt"
	"time"

	"github.com/SafeMPC/card-bridge/internal/card"
	"github.com/SafeMPC/card-bridge/internal/infra/signature"
	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
)

// 远端协议的拒绝码
const (
	CodeUserRejected = 4001
	CodeAuthRejected = 12001
)

// Kind 签名请求类型
type Kind int

const (
	KindPersonalMessage Kind = iota + 1
	KindLegacyMessage
	KindTypedData
	KindSendTransaction
	KindSignTransaction
	KindAuthMessage
)

func (k Kind) String() string {
	switch k {
	case KindPersonalMessage:
		return "personal_message"
	case KindLegacyMessage:
		return "legacy_message"
	case KindTypedData:
		return "typed_data"
	case KindSendTransaction:
		return "send_transaction"
	case KindSignTransaction:
		return "sign_transaction"
	case KindAuthMessage:
		return "auth_message"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// SigningRequest 等待刷卡签名的请求，创建后不再修改
type SigningRequest struct {
	ID          int64 // 远端请求 ID
	TraceID     string
	Kind        Kind
	Method      string
	BytesToSign []byte // 32 字节摘要
	DisplayText string
	ChainID     string         // CAIP-2，可以为空
	Account     common.Address // 为空时使用卡片自身地址
	RejectCode  int            // 为 0 时使用 CodeUserRejected
	CreatedAt   time.Time
}

// NewSigningRequest 创建签名请求并分配 TraceID
func NewSigningRequest(id int64, kind Kind, method string, bytesToSign []byte, displayText string) *SigningRequest {
	return &SigningRequest{
		ID:          id,
		TraceID:     uuid.NewString(),
		Kind:        kind,
		Method:      method,
		BytesToSign: bytesToSign,
		DisplayText: displayText,
		CreatedAt:   time.Now(),
	}
}

func (r *SigningRequest) rejectCode() int {
	if r.RejectCode != 0 {
		return r.RejectCode
	}
	return CodeUserRejected
}

// OutcomeStatus 签名结果状态
type OutcomeStatus string

const (
	OutcomeSigned   OutcomeStatus = "signed"
	OutcomeRejected OutcomeStatus = "rejected"
	OutcomeFailed   OutcomeStatus = "failed"
)

// Outcome 一次请求的最终结果
type Outcome struct {
	Status    OutcomeStatus
	Signature *signature.Normalized
	Signer    common.Address
	Result    interface{} // 返回给远端的结果
	Reason    string
	Err       error
}

// ResponseSink 远端协议的响应出口
type ResponseSink interface {
	Approve(ctx context.Context, id int64, result interface{}) error
	Reject(ctx context.Context, id int64, code int, message string) error
}

// Prompt 提示用户刷卡
type Prompt interface {
	Show(req *SigningRequest)
	Dismiss(req *SigningRequest)
}

// Finalizer 把归一化签名转换为远端期望的结果
type Finalizer func(ctx context.Context, sig *signature.Normalized) (interface{}, error)

// Signer 刷卡后执行的签名流水线
type Signer interface {
	Sign(ctx context.Context, c card.Card, req *SigningRequest) (*signature.Normalized, common.Address, error)
}

// IdleHandler 没有待签请求时的刷卡处理
type IdleHandler func(ctx context.Context, c card.Card) error

// Observer 签名成功后的回调
type Observer interface {
	Signed(ctx context.Context, req *SigningRequest, outcome *Outcome)
}

// PendingTap 绑定到下一次刷卡的请求
type PendingTap struct {
	Request  *SigningRequest
	Finalize Finalizer
	Sink     ResponseSink
}
