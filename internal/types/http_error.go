package types

import (
	"context"

	"github.com/go-openapi/errors"
	"github.com/go-openapi/strfmt"
	"github.com/go-openapi/swag"
	"github.com/go-openapi/validate"
)

// PublicHTTPErrorType 对外公开的错误类型
type PublicHTTPErrorType string

const (
	PublicHTTPErrorTypeGeneric            PublicHTTPErrorType = "generic"
	PublicHTTPErrorTypeNoPendingRequest   PublicHTTPErrorType = "NO_PENDING_REQUEST"
	PublicHTTPErrorTypeNoAccount          PublicHTTPErrorType = "NO_ACCOUNT"
	PublicHTTPErrorTypeProposalNotFound   PublicHTTPErrorType = "PROPOSAL_NOT_FOUND"
	PublicHTTPErrorTypeSessionNotFound    PublicHTTPErrorType = "SESSION_NOT_FOUND"
	PublicHTTPErrorTypeInvalidBodyContent PublicHTTPErrorType = "INVALID_BODY_CONTENT"
)

// PublicHTTPError 统一的 HTTP 错误响应
type PublicHTTPError struct {
	// HTTP 状态码
	// Required: true
	Code *int64 `json:"status"`

	// 附加信息，只在非生产环境返回
	Detail string `json:"detail,omitempty"`

	// 简短描述
	// Required: true
	Title *string `json:"title"`

	// 错误类型
	// Required: true
	Type *string `json:"type"`
}

// Validate validates this public HTTP error
func (m *PublicHTTPError) Validate(formats strfmt.Registry) error {
	var res []error

	if err := validate.Required("status", "body", m.Code); err != nil {
		res = append(res, err)
	}
	if err := validate.Required("title", "body", m.Title); err != nil {
		res = append(res, err)
	}
	if err := validate.Required("type", "body", m.Type); err != nil {
		res = append(res, err)
	}

	if len(res) > 0 {
		return errors.CompositeValidationError(res...)
	}
	return nil
}

// ContextValidate validates this public HTTP error based on context it is used
func (m *PublicHTTPError) ContextValidate(ctx context.Context, formats strfmt.Registry) error {
	return nil
}

// MarshalBinary interface implementation
func (m *PublicHTTPError) MarshalBinary() ([]byte, error) {
	if m == nil {
		return nil, nil
	}
	return swag.WriteJSON(m)
}

// UnmarshalBinary interface implementation
func (m *PublicHTTPError) UnmarshalBinary(b []byte) error {
	var res PublicHTTPError
	if err := swag.ReadJSON(b, &res); err != nil {
		return err
	}
	*m = res
	return nil
}

// HTTPValidationErrorDetail 单个字段的校验错误
type HTTPValidationErrorDetail struct {
	Error *string `json:"error"`
	In    *string `json:"in"`
	Key   *string `json:"key"`
}

// HTTPValidationError 请求体校验失败
type HTTPValidationError struct {
	PublicHTTPError

	ValidationErrors []*HTTPValidationErrorDetail `json:"validationErrors"`
}
