package bridge

import (
	"net/http"

	"github.com/SafeMPC/card-bridge/internal/api"
	"github.com/SafeMPC/card-bridge/internal/types"
	"github.com/SafeMPC/card-bridge/internal/util"
	"github.com/ethereum/go-ethereum/common"
	"github.com/go-openapi/strfmt"
	"github.com/go-openapi/swag"
	"github.com/labstack/echo/v4"
)

func GetStatusRoute(s *api.Server) *echo.Route {
	return s.Router.APIV1.GET("/bridge/status", getStatusHandler(s))
}

func getStatusHandler(s *api.Server) echo.HandlerFunc {
	return func(c echo.Context) error {
		status := s.Bridge.Status()

		response := &types.BridgeStatusResponse{
			State: swag.String(string(status.State)),
		}

		if req := status.Request; req != nil {
			summary := &types.PendingRequestSummary{
				ID:          req.ID,
				TraceID:     req.TraceID,
				Kind:        req.Kind.String(),
				Method:      req.Method,
				ChainID:     req.ChainID,
				DisplayText: req.DisplayText,
				CreatedAt:   strfmt.DateTime(req.CreatedAt),
				WaitingMs:   s.Bridge.Waiting().Milliseconds(),
			}
			if req.Account != (common.Address{}) {
				summary.Account = req.Account.Hex()
			}
			response.Request = summary
		}

		return util.ValidateAndReturn(c, http.StatusOK, response)
	}
}
