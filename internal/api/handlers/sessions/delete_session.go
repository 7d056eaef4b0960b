package sessions

import (
	"net/http"

	"github.com/SafeMPC/card-bridge/internal/api"
	"github.com/SafeMPC/card-bridge/internal/api/httperrors"
	"github.com/labstack/echo/v4"
)

func DeleteSessionRoute(s *api.Server) *echo.Route {
	return s.Router.APIV1.DELETE("/sessions/:topic", deleteSessionHandler(s))
}

// deleteSessionHandler 本地断开会话，对端之后的请求会收到 3001
func deleteSessionHandler(s *api.Server) echo.HandlerFunc {
	return func(c echo.Context) error {
		session, ok := s.Sessions.Remove(c.Param("topic"))
		if !ok {
			return httperrors.ErrNotFoundSession
		}
		s.Bridge.CancelFor(c.Request().Context(), session.Sink(), "session deleted")
		return c.NoContent(http.StatusNoContent)
	}
}
