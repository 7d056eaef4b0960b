package handlers

import (
	"github.com/SafeMPC/card-bridge/internal/api"
	"github.com/SafeMPC/card-bridge/internal/api/handlers/account"
	"github.com/SafeMPC/card-bridge/internal/api/handlers/bridge"
	"github.com/SafeMPC/card-bridge/internal/api/handlers/sessions"
	"github.com/SafeMPC/card-bridge/internal/api/handlers/ws"
	"github.com/labstack/echo/v4"
)

func AttachAllRoutes(s *api.Server) {
	s.Router.Routes = []*echo.Route{
		account.GetAccountRoute(s),
		bridge.GetStatusRoute(s),
		bridge.PostCancelRoute(s),
		sessions.DeleteSessionRoute(s),
		sessions.GetSessionsRoute(s),
		sessions.PostApproveProposalRoute(s),
		sessions.PostRejectProposalRoute(s),
		ws.GetPairingWebSocketRoute(s),
	}
}
