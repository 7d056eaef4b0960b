package ws

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/SafeMPC/card-bridge/internal/api"
	"github.com/SafeMPC/card-bridge/internal/pairing"
	"github.com/SafeMPC/card-bridge/internal/util"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
)

func GetPairingWebSocketRoute(s *api.Server) *echo.Route {
	upgrader := &websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     originChecker(s.Config.Pairing.AllowedOrigins),
	}
	return s.Router.Pairing.GET("/ws", getPairingWebSocketHandler(s, upgrader))
}

// getPairingWebSocketHandler 升级为 websocket，每条连接是一个配对对端
func getPairingWebSocketHandler(s *api.Server, upgrader *websocket.Upgrader) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		log := util.LogFromContext(ctx)

		conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
		if err != nil {
			// Upgrade 已经写出了错误响应
			log.Debug().Err(err).Str("origin", c.Request().Header.Get("Origin")).Msg("Websocket upgrade refused")
			return nil
		}

		peer := pairing.NewPeer(conn, s.Config.Pairing.WriteTimeout).
			WithRateLimit(s.Config.Pairing.MessagesPerSecond, s.Config.Pairing.MessageBurst)
		if err := peer.Serve(ctx, s.Dispatcher); err != nil {
			log.Warn().Err(err).Str("peer_id", peer.ID).Msg("Pairing connection closed with error")
		}
		return nil
	}
}

// originChecker 没有 Origin 的本地客户端总是允许，浏览器来源必须同源或在白名单内
func originChecker(allowed []string) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}

		u, err := url.Parse(origin)
		if err != nil {
			return false
		}
		if strings.EqualFold(u.Host, r.Host) {
			return true
		}

		for _, a := range allowed {
			if a == "*" || strings.EqualFold(strings.TrimSuffix(a, "/"), origin) {
				return true
			}
		}
		return false
	}
}
