package request

import (
	"context"
	"encoding/json"

	"github.com/SafeMPC/card-bridge/internal/infra/signing"
	"github.com/SafeMPC/card-bridge/internal/types"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
)

// TypedDataAdapter eth_signTypedData 与 eth_signTypedData_v4，参数为 [account, typedData]
type TypedDataAdapter struct{}

func (TypedDataAdapter) Kind() signing.Kind {
	return signing.KindTypedData
}

func (a TypedDataAdapter) Prepare(_ context.Context, call *Call) (*Prepared, error) {
	params, err := stringParams(call.Params, 2)
	if err != nil {
		return nil, err
	}
	if err := checkAccount(params[0], call.Account); err != nil {
		return nil, err
	}

	var typedData apitypes.TypedData
	if err := json.Unmarshal([]byte(params[1]), &typedData); err != nil {
		return nil, types.ErrUnsupportedRequest("invalid typed data: " + err.Error())
	}

	digest, _, err := apitypes.TypedDataAndHash(typedData)
	if err != nil {
		return nil, types.ErrUnsupportedRequest("failed to hash typed data: " + err.Error())
	}

	return &Prepared{
		Request:  newRequest(call, signing.KindTypedData, digest, params[1]),
		Finalize: hexFinalizer,
	}, nil
}
