package types

import (
	"context"

	"github.com/go-openapi/errors"
	"github.com/go-openapi/strfmt"
	"github.com/go-openapi/validate"
)

// CounterLedgerEntry 账本中最近一次签名的计数器
type CounterLedgerEntry struct {
	SigCounter       int64           `json:"sig_counter"`
	GlobalSigCounter int64           `json:"global_sig_counter"`
	UpdatedAt        strfmt.DateTime `json:"updated_at"`
}

// AccountResponse 当前卡片账户
type AccountResponse struct {
	// Required: true
	// Pattern: ^0x[0-9a-fA-F]{40}$
	Address *string `json:"address"`

	// Required: true
	PublicKey *string `json:"public_key"`

	KeyHandle        int64           `json:"key_handle"`
	Issuer           string          `json:"issuer"`
	SigCounter       int64           `json:"sig_counter"`
	GlobalSigCounter int64           `json:"global_sig_counter"`
	ReadAt           strfmt.DateTime `json:"read_at"`

	// 每条已配置链上的 CAIP-10 账户
	Accounts []string `json:"accounts"`

	Ledger *CounterLedgerEntry `json:"ledger,omitempty"`
}

// Validate validates AccountResponse
func (m *AccountResponse) Validate(formats strfmt.Registry) error {
	var res []error

	if err := validate.Required("address", "body", m.Address); err != nil {
		res = append(res, err)
	} else if err := validate.Pattern("address", "body", *m.Address, `^0x[0-9a-fA-F]{40}$`); err != nil {
		res = append(res, err)
	}
	if err := validate.Required("public_key", "body", m.PublicKey); err != nil {
		res = append(res, err)
	}

	if len(res) > 0 {
		return errors.CompositeValidationError(res...)
	}
	return nil
}

// ContextValidate validates AccountResponse based on context it is used
func (m *AccountResponse) ContextValidate(ctx context.Context, formats strfmt.Registry) error {
	return nil
}
