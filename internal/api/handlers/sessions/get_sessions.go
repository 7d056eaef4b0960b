package sessions

import (
	"net/http"

	"github.com/SafeMPC/card-bridge/internal/api"
	"github.com/SafeMPC/card-bridge/internal/pairing"
	"github.com/SafeMPC/card-bridge/internal/types"
	"github.com/SafeMPC/card-bridge/internal/util"
	"github.com/go-openapi/strfmt"
	"github.com/labstack/echo/v4"
)

func GetSessionsRoute(s *api.Server) *echo.Route {
	return s.Router.APIV1.GET("/sessions", getSessionsHandler(s))
}

func getSessionsHandler(s *api.Server) echo.HandlerFunc {
	return func(c echo.Context) error {
		sessions := s.Sessions.Sessions()
		proposals := s.Sessions.Proposals()

		response := &types.SessionsResponse{
			Sessions:  make([]*types.SessionSummary, 0, len(sessions)),
			Proposals: make([]*types.ProposalSummary, 0, len(proposals)),
		}

		for _, session := range sessions {
			response.Sessions = append(response.Sessions, &types.SessionSummary{
				Topic:     strfmt.UUID(session.Topic),
				Peer:      peerMetadata(session.Peer),
				Chains:    session.Chains,
				Accounts:  session.Accounts,
				Methods:   session.Methods,
				CreatedAt: strfmt.DateTime(session.CreatedAt),
			})
		}

		for _, proposal := range proposals {
			response.Proposals = append(response.Proposals, &types.ProposalSummary{
				ID:         proposal.ID,
				Peer:       peerMetadata(proposal.Proposer.Metadata),
				Chains:     proposal.Chains,
				ReceivedAt: strfmt.DateTime(proposal.ReceivedAt),
			})
		}

		return util.ValidateAndReturn(c, http.StatusOK, response)
	}
}

func peerMetadata(m pairing.Metadata) *types.PeerMetadata {
	return &types.PeerMetadata{
		Name:        m.Name,
		Description: m.Description,
		URL:         m.URL,
		Icons:       m.Icons,
	}
}
