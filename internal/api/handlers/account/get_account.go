package account

import (
	"net/http"

	"github.com/SafeMPC/card-bridge/internal/api"
	"github.com/SafeMPC/card-bridge/internal/api/httperrors"
	"github.com/SafeMPC/card-bridge/internal/types"
	"github.com/SafeMPC/card-bridge/internal/util"
	"github.com/go-openapi/strfmt"
	"github.com/go-openapi/swag"
	"github.com/labstack/echo/v4"
)

func GetAccountRoute(s *api.Server) *echo.Route {
	return s.Router.APIV1.GET("/account", getAccountHandler(s))
}

// getAccountHandler 返回最近一次刷卡读到的账户，以及账本里的计数器
func getAccountHandler(s *api.Server) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		log := util.LogFromContext(ctx)

		identity, ok := s.Keys.Current()
		if !ok {
			return httperrors.ErrConflictNoAccount
		}

		chains := s.Chains.IDs()
		accounts := make([]string, 0, len(chains))
		for _, id := range chains {
			accounts = append(accounts, identity.CAIP10(id))
		}

		response := &types.AccountResponse{
			Address:          swag.String(identity.Address.Hex()),
			PublicKey:        swag.String(identity.PublicKeyHex()),
			KeyHandle:        int64(identity.KeyHandle),
			Issuer:           identity.Issuer(),
			SigCounter:       int64(identity.SigCounter),
			GlobalSigCounter: int64(identity.GlobalSigCounter),
			ReadAt:           strfmt.DateTime(identity.ReadAt),
			Accounts:         accounts,
		}

		record, found, err := s.Ledger.Lookup(ctx, identity.Address)
		if err != nil {
			// 账本不可用不影响账户查询
			log.Warn().Err(err).Str("address", identity.Address.Hex()).Msg("Failed to read counter ledger")
		} else if found {
			response.Ledger = &types.CounterLedgerEntry{
				SigCounter:       int64(record.SigCounter),
				GlobalSigCounter: int64(record.GlobalSigCounter),
				UpdatedAt:        strfmt.DateTime(record.UpdatedAt),
			}
		}

		return util.ValidateAndReturn(c, http.StatusOK, response)
	}
}
