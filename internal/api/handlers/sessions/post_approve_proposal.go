package sessions

import (
	"net/http"
	"strconv"

	"github.com/SafeMPC/card-bridge/internal/api"
	"github.com/SafeMPC/card-bridge/internal/api/httperrors"
	"github.com/SafeMPC/card-bridge/internal/pairing"
	"github.com/SafeMPC/card-bridge/internal/types"
	"github.com/SafeMPC/card-bridge/internal/util"
	"github.com/go-openapi/strfmt"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
)

func PostApproveProposalRoute(s *api.Server) *echo.Route {
	return s.Router.APIV1.POST("/sessions/proposals/:id/approve", postApproveProposalHandler(s))
}

func postApproveProposalHandler(s *api.Server) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		log := util.LogFromContext(ctx)

		id, err := proposalID(c)
		if err != nil {
			return err
		}

		session, err := s.Sessions.ApproveProposal(ctx, id)
		switch {
		case errors.Is(err, pairing.ErrProposalNotFound):
			return httperrors.ErrNotFoundProposal
		case errors.Is(err, pairing.ErrNoAccount):
			return httperrors.ErrConflictNoAccount
		case err != nil:
			log.Error().Err(err).Int64("proposal_id", id).Msg("Failed to approve session proposal")
			return err
		}

		response := &types.SessionSummary{
			Topic:     strfmt.UUID(session.Topic),
			Peer:      peerMetadata(session.Peer),
			Chains:    session.Chains,
			Accounts:  session.Accounts,
			Methods:   session.Methods,
			CreatedAt: strfmt.DateTime(session.CreatedAt),
		}

		return c.JSON(http.StatusOK, response)
	}
}

func proposalID(c echo.Context) (int64, error) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return 0, httperrors.NewHTTPErrorWithDetail(http.StatusBadRequest, types.PublicHTTPErrorTypeGeneric, "Invalid proposal id", err.Error())
	}
	return id, nil
}
