package types

import (
	"context"
	"strconv"

	"github.com/go-openapi/errors"
	"github.com/go-openapi/strfmt"
	"github.com/go-openapi/validate"
)

// PeerMetadata dApp 自报的元数据
type PeerMetadata struct {
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	URL         string   `json:"url,omitempty"`
	Icons       []string `json:"icons,omitempty"`
}

// SessionSummary 已批准的会话
type SessionSummary struct {
	Topic     strfmt.UUID     `json:"topic"`
	Peer      *PeerMetadata   `json:"peer"`
	Chains    []string        `json:"chains"`
	Accounts  []string        `json:"accounts"`
	Methods   []string        `json:"methods"`
	CreatedAt strfmt.DateTime `json:"created_at"`
}

// ProposalSummary 等待批准的提议
type ProposalSummary struct {
	ID         int64           `json:"id"`
	Peer       *PeerMetadata   `json:"peer"`
	Chains     []string        `json:"chains"`
	ReceivedAt strfmt.DateTime `json:"received_at"`
}

// SessionsResponse 会话与提议列表
type SessionsResponse struct {
	// Required: true
	Sessions []*SessionSummary `json:"sessions"`

	// Required: true
	Proposals []*ProposalSummary `json:"proposals"`
}

// Validate validates SessionsResponse
func (m *SessionsResponse) Validate(formats strfmt.Registry) error {
	var res []error

	if err := validate.Required("sessions", "body", m.Sessions); err != nil {
		res = append(res, err)
	}
	if err := validate.Required("proposals", "body", m.Proposals); err != nil {
		res = append(res, err)
	}
	for i, s := range m.Sessions {
		if s == nil {
			continue
		}
		if err := validate.FormatOf("sessions."+strconv.Itoa(i)+".topic", "body", "uuid", s.Topic.String(), formats); err != nil {
			res = append(res, err)
		}
	}

	if len(res) > 0 {
		return errors.CompositeValidationError(res...)
	}
	return nil
}

// ContextValidate validates SessionsResponse based on context it is used
func (m *SessionsResponse) ContextValidate(ctx context.Context, formats strfmt.Registry) error {
	return nil
}

// PostProposalDecisionPayload 拒绝提议时的原因
type PostProposalDecisionPayload struct {
	// Max Length: 256
	Reason string `json:"reason,omitempty"`
}

// Validate validates PostProposalDecisionPayload
func (m *PostProposalDecisionPayload) Validate(formats strfmt.Registry) error {
	if err := validate.MaxLength("reason", "body", m.Reason, 256); err != nil {
		return errors.CompositeValidationError(err)
	}
	return nil
}

// ContextValidate validates PostProposalDecisionPayload based on context it is used
func (m *PostProposalDecisionPayload) ContextValidate(ctx context.Context, formats strfmt.Registry) error {
	return nil
}
