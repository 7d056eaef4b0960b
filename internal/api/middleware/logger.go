package middleware

import (
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type LoggerConfig struct {
	Skipper middleware.Skipper
	Level   zerolog.Level
	// LogRequests 为 false 时只把 logger 放进上下文，不记录访问日志
	LogRequests bool
}

var DefaultLoggerConfig = LoggerConfig{
	Skipper:     middleware.DefaultSkipper,
	Level:       zerolog.DebugLevel,
	LogRequests: false,
}

func Logger() echo.MiddlewareFunc {
	return LoggerWithConfig(DefaultLoggerConfig)
}

// LoggerWithConfig 为每个请求创建带 request id 的子 logger 并放入请求上下文
func LoggerWithConfig(config LoggerConfig) echo.MiddlewareFunc {
	if config.Skipper == nil {
		config.Skipper = DefaultLoggerConfig.Skipper
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if config.Skipper(c) {
				return next(c)
			}

			req := c.Request()
			res := c.Response()

			id := req.Header.Get(echo.HeaderXRequestID)
			if id == "" {
				id = res.Header().Get(echo.HeaderXRequestID)
			}

			l := log.With().Str("id", id).Logger()
			c.SetRequest(req.WithContext(l.WithContext(req.Context())))

			start := time.Now()
			err := next(c)
			if err != nil {
				c.Error(err)
			}

			if config.LogRequests {
				l.WithLevel(config.Level).
					Str("method", req.Method).
					Str("uri", req.RequestURI).
					Str("remote_ip", c.RealIP()).
					Int("status", res.Status).
					Int64("bytes_out", res.Size).
					Dur("duration", time.Since(start)).
					Msg("Request")
			}

			return nil
		}
	}
}
