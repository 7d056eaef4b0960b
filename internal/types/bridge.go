package types

import (
	"context"

	"github.com/go-openapi/errors"
	"github.com/go-openapi/strfmt"
	"github.com/go-openapi/swag"
	"github.com/go-openapi/validate"
)

// PendingRequestSummary 等待刷卡的请求
type PendingRequestSummary struct {
	ID          int64           `json:"id"`
	TraceID     string          `json:"trace_id"`
	Kind        string          `json:"kind"`
	Method      string          `json:"method"`
	ChainID     string          `json:"chain_id,omitempty"`
	Account     string          `json:"account,omitempty"`
	DisplayText string          `json:"display_text"`
	CreatedAt   strfmt.DateTime `json:"created_at"`
	WaitingMs   int64           `json:"waiting_ms"`
}

// BridgeStatusResponse 签名桥状态
type BridgeStatusResponse struct {
	// Required: true
	// Enum: [idle awaiting_tap processing]
	State *string `json:"state"`

	Request *PendingRequestSummary `json:"request,omitempty"`
}

// Validate validates BridgeStatusResponse
func (m *BridgeStatusResponse) Validate(formats strfmt.Registry) error {
	var res []error

	if err := validate.Required("state", "body", m.State); err != nil {
		res = append(res, err)
	} else if err := validate.Enum("state", "body", *m.State, []interface{}{"idle", "awaiting_tap", "processing"}); err != nil {
		res = append(res, err)
	}

	if len(res) > 0 {
		return errors.CompositeValidationError(res...)
	}
	return nil
}

// ContextValidate validates BridgeStatusResponse based on context it is used
func (m *BridgeStatusResponse) ContextValidate(ctx context.Context, formats strfmt.Registry) error {
	return nil
}

// MarshalBinary interface implementation
func (m *BridgeStatusResponse) MarshalBinary() ([]byte, error) {
	if m == nil {
		return nil, nil
	}
	return swag.WriteJSON(m)
}

// PostCancelPayload 在刷卡前拒绝当前请求
type PostCancelPayload struct {
	// 只在当前请求 ID 匹配时取消，为空时取消任意请求
	RequestID *int64 `json:"request_id,omitempty"`

	// Max Length: 256
	Reason string `json:"reason,omitempty"`
}

// Validate validates PostCancelPayload
func (m *PostCancelPayload) Validate(formats strfmt.Registry) error {
	var res []error

	if err := validate.MaxLength("reason", "body", m.Reason, 256); err != nil {
		res = append(res, err)
	}

	if len(res) > 0 {
		return errors.CompositeValidationError(res...)
	}
	return nil
}

// ContextValidate validates PostCancelPayload based on context it is used
func (m *PostCancelPayload) ContextValidate(ctx context.Context, formats strfmt.Registry) error {
	return nil
}

// PostCancelResponse 取消结果
type PostCancelResponse struct {
	// Required: true
	Cancelled *bool `json:"cancelled"`

	RequestID int64 `json:"request_id,omitempty"`
}

// Validate validates PostCancelResponse
func (m *PostCancelResponse) Validate(formats strfmt.Registry) error {
	if err := validate.Required("cancelled", "body", m.Cancelled); err != nil {
		return errors.CompositeValidationError(err)
	}
	return nil
}

// ContextValidate validates PostCancelResponse based on context it is used
func (m *PostCancelResponse) ContextValidate(ctx context.Context, formats strfmt.Registry) error {
	return nil
}
