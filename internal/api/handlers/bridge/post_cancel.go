package bridge

import (
	"net/http"

	"github.com/SafeMPC/card-bridge/internal/api"
	"github.com/SafeMPC/card-bridge/internal/api/httperrors"
	"github.com/SafeMPC/card-bridge/internal/types"
	"github.com/SafeMPC/card-bridge/internal/util"
	"github.com/go-openapi/swag"
	"github.com/labstack/echo/v4"
)

const defaultCancelReason = "Rejected by user"

func PostCancelRoute(s *api.Server) *echo.Route {
	return s.Router.APIV1.POST("/bridge/cancel", postCancelHandler(s))
}

// postCancelHandler 在刷卡前拒绝当前请求，远端收到 4001 或 12001
func postCancelHandler(s *api.Server) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		log := util.LogFromContext(ctx)

		var body types.PostCancelPayload
		if err := util.BindAndValidateBody(c, &body); err != nil {
			return err
		}

		reason := body.Reason
		if reason == "" {
			reason = defaultCancelReason
		}

		pending := s.Bridge.Status().Request

		var cancelled bool
		if body.RequestID != nil {
			cancelled = s.Bridge.CancelRequest(ctx, *body.RequestID, reason)
		} else {
			cancelled = s.Bridge.Cancel(ctx, reason)
		}

		if !cancelled {
			log.Debug().Msg("No pending request to cancel")
			return httperrors.ErrNotFoundNoPendingRequest
		}

		response := &types.PostCancelResponse{
			Cancelled: swag.Bool(true),
		}
		if body.RequestID != nil {
			response.RequestID = *body.RequestID
		} else if pending != nil {
			response.RequestID = pending.ID
		}

		return util.ValidateAndReturn(c, http.StatusOK, response)
	}
}
