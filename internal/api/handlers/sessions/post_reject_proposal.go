package sessions

import (
	"net/http"

	"github.com/SafeMPC/card-bridge/internal/api"
	"github.com/SafeMPC/card-bridge/internal/api/httperrors"
	"github.com/SafeMPC/card-bridge/internal/pairing"
	"github.com/SafeMPC/card-bridge/internal/types"
	"github.com/SafeMPC/card-bridge/internal/util"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
)

func PostRejectProposalRoute(s *api.Server) *echo.Route {
	return s.Router.APIV1.POST("/sessions/proposals/:id/reject", postRejectProposalHandler(s))
}

func postRejectProposalHandler(s *api.Server) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()

		id, err := proposalID(c)
		if err != nil {
			return err
		}

		var body types.PostProposalDecisionPayload
		if err := util.BindAndValidateBody(c, &body); err != nil {
			return err
		}

		if err := s.Sessions.RejectProposal(ctx, id, body.Reason); err != nil {
			if errors.Is(err, pairing.ErrProposalNotFound) {
				return httperrors.ErrNotFoundProposal
			}
			// 提议已移除，只是拒绝没能送达对端
			util.LogFromContext(ctx).Warn().Err(err).Int64("proposal_id", id).Msg("Failed to deliver proposal rejection")
		}

		return c.NoContent(http.StatusNoContent)
	}
}
