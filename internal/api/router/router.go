package router

import (
	"github.com/SafeMPC/card-bridge/internal/api"
	"github.com/SafeMPC/card-bridge/internal/api/handlers"
	"github.com/SafeMPC/card-bridge/internal/api/httperrors"
	"github.com/SafeMPC/card-bridge/internal/api/middleware"
	"github.com/labstack/echo-contrib/echoprometheus"
	"github.com/labstack/echo/v4"
	echoMiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog/log"
)

func Init(s *api.Server) {
	s.Echo = echo.New()

	s.Echo.Debug = false
	s.Echo.HideBanner = true
	s.Echo.HidePort = true
	s.Echo.Logger.SetOutput(&echoLogWriter{})

	s.Echo.HTTPErrorHandler = httperrors.HTTPErrorHandler

	s.Echo.Pre(echoMiddleware.RemoveTrailingSlash())

	s.Echo.Use(echoMiddleware.Recover())
	s.Echo.Use(echoMiddleware.RequestID())
	s.Echo.Use(middleware.LoggerWithConfig(middleware.LoggerConfig{
		Skipper:     echoMiddleware.DefaultSkipper,
		Level:       middleware.DefaultLoggerConfig.Level,
		LogRequests: s.Config.Management.EnableRequestLogging,
	}))
	s.Echo.Use(echoprometheus.NewMiddlewareWithConfig(echoprometheus.MiddlewareConfig{
		Namespace:  "card_bridge",
		Subsystem:  "http",
		Registerer: s.Metrics.Registry,
		Skipper: func(c echo.Context) bool {
			// websocket 连接会一直占用直方图
			return c.Path() == "/pairing/ws"
		},
	}))

	s.Router = &api.Router{
		Routes: nil,
		Root:   s.Echo.Group(""),
		// 本机管理接口，只应监听 localhost
		Management: s.Echo.Group("/-"),
		APIV1:      s.Echo.Group("/api/v1"),
		Pairing:    s.Echo.Group("/pairing"),
	}

	s.Router.Management.GET("/metrics", echoprometheus.NewHandlerWithConfig(echoprometheus.HandlerConfig{
		Gatherer: s.Metrics.Registry,
	}))
	s.Health.RegisterRoutes(s.Router.Root)

	handlers.AttachAllRoutes(s)

	log.Debug().Int("routes", len(s.Router.Routes)).Msg("Routes attached")
}

// echoLogWriter 把 echo 自身的日志转给 zerolog
type echoLogWriter struct{}

func (echoLogWriter) Write(p []byte) (int, error) {
	log.Debug().Str("component", "echo").Msg(string(p))
	return len(p), nil
}
