package api

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"
)

const healthProbeTimeout = 2 * time.Second

// HealthChecker 健康检查器
type HealthChecker struct {
	server  *Server
	started time.Time

	mu       sync.Mutex
	lastPing time.Time
}

// NewHealthChecker 创建健康检查器
func NewHealthChecker(s *Server) *HealthChecker {
	now := s.Clock.Now()
	return &HealthChecker{
		server:   s,
		started:  now,
		lastPing: now,
	}
}

// RegisterRoutes 注册健康检查路由
func (h *HealthChecker) RegisterRoutes(g *echo.Group) {
	g.GET("/health", h.healthCheck)
	g.GET("/health/live", h.livenessCheck)
	g.GET("/health/ready", h.readinessCheck)
	g.GET("/health/detailed", h.detailedHealthCheck)
	g.GET("/ping", h.ping)
}

func (h *HealthChecker) now() time.Time {
	return h.server.Clock.Now()
}

// healthCheck 基础健康检查
func (h *HealthChecker) healthCheck(c echo.Context) error {
	status := map[string]interface{}{
		"status":    "ok",
		"timestamp": h.now().Format(time.RFC3339),
		"uptime":    h.now().Sub(h.started).String(),
		"bridge":    string(h.server.Bridge.Status().State),
	}

	if h.server.Watcher == nil && h.server.Config.Card.Enabled {
		status["status"] = "degraded"
	}

	return c.JSON(http.StatusOK, status)
}

// livenessCheck 存活检查
func (h *HealthChecker) livenessCheck(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]interface{}{
		"status":    "alive",
		"timestamp": h.now().Format(time.RFC3339),
	})
}

// readinessCheck 就绪检查，Redis 配置后必须可达
func (h *HealthChecker) readinessCheck(c echo.Context) error {
	status := "ready"
	httpStatus := http.StatusOK

	if !h.server.Ready() {
		status = "not_ready"
		httpStatus = http.StatusServiceUnavailable
	} else if err := h.pingRedis(c.Request().Context()); err != nil {
		log.Warn().Err(err).Msg("Readiness check failed, redis unreachable")
		status = "not_ready"
		httpStatus = http.StatusServiceUnavailable
	}

	return c.JSON(httpStatus, map[string]interface{}{
		"status":    status,
		"timestamp": h.now().Format(time.RFC3339),
	})
}

// detailedHealthCheck 详细健康检查
func (h *HealthChecker) detailedHealthCheck(c echo.Context) error {
	h.mu.Lock()
	lastPing := h.lastPing
	h.mu.Unlock()

	health := map[string]interface{}{
		"status":    "ok",
		"timestamp": h.now().Format(time.RFC3339),
		"uptime":    h.now().Sub(h.started).String(),
		"last_ping": lastPing.Format(time.RFC3339),
	}

	components := map[string]interface{}{}

	switch {
	case h.server.Watcher != nil:
		ws := h.server.Watcher.Status()
		reader := map[string]interface{}{
			"status":  "healthy",
			"readers": ws.Readers,
			"cards":   ws.Cards,
		}
		if !ws.LastPoll.IsZero() {
			reader["last_poll"] = ws.LastPoll.Format(time.RFC3339)
		}
		if ws.LastErr != nil {
			reader["status"] = "unhealthy"
			reader["error"] = ws.LastErr.Error()
			health["status"] = "degraded"
		}
		components["card_reader"] = reader
	case h.server.Config.Card.Enabled:
		components["card_reader"] = map[string]interface{}{"status": "unhealthy", "error": "card watcher not started"}
		health["status"] = "degraded"
	default:
		components["card_reader"] = map[string]interface{}{"status": "disabled"}
	}

	if h.server.Redis == nil {
		components["redis"] = map[string]interface{}{"status": "disabled"}
	} else if err := h.pingRedis(c.Request().Context()); err != nil {
		components["redis"] = map[string]interface{}{"status": "unhealthy", "error": err.Error()}
		health["status"] = "degraded"
	} else {
		components["redis"] = map[string]interface{}{"status": "healthy"}
	}

	bridge := h.server.Bridge.Status()
	components["bridge"] = map[string]interface{}{
		"state":      string(bridge.State),
		"waiting_ms": h.server.Bridge.Waiting().Milliseconds(),
	}
	components["chains"] = h.server.Chains.IDs()
	components["sessions"] = len(h.server.Sessions.Sessions())

	health["components"] = components

	return c.JSON(http.StatusOK, health)
}

// ping Ping检查
func (h *HealthChecker) ping(c echo.Context) error {
	now := h.now()
	h.mu.Lock()
	h.lastPing = now
	h.mu.Unlock()

	return c.JSON(http.StatusOK, map[string]interface{}{
		"message":   "pong",
		"timestamp": now.Format(time.RFC3339),
	})
}

func (h *HealthChecker) pingRedis(ctx context.Context) error {
	if h.server.Redis == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, healthProbeTimeout)
	defer cancel()
	return h.server.Redis.Ping(ctx).Err()
}
