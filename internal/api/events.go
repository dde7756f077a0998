package api

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/lalith-99/crmhub/internal/events"
	"github.com/lalith-99/crmhub/internal/middleware"
	"go.uber.org/zap"
)

type EventHandler struct {
	hub    *events.Hub
	logger *zap.Logger
}

func NewEventHandler(hub *events.Hub, logger *zap.Logger) *EventHandler {
	return &EventHandler{hub: hub, logger: logger}
}

// Stream handles GET /api/events. The connection only receives
// invalidation events for the caller's tenant and company; super admins
// receive all of them.
func (h *EventHandler) Stream(c *gin.Context) {
	p := middleware.GetPrincipal(c)
	sub := events.Subscriber{UserID: p.User.ID}
	if !p.IsSuperAdmin() {
		sub.TenantID = p.User.TenantID
		sub.CompanyID = p.User.CompanyID
	}

	// Upgrade writes its own error response on failure.
	if err := h.hub.Serve(c.Writer, c.Request, sub); err != nil {
		h.logger.Debug("event stream upgrade failed", zap.Error(err))
	}
	c.Abort()
}

// HealthHandler reports liveness and, when a check is configured, store
// reachability.
type HealthHandler struct {
	check  func(ctx context.Context) error
	logger *zap.Logger
}

func NewHealthHandler(check func(ctx context.Context) error, logger *zap.Logger) *HealthHandler {
	return &HealthHandler{check: check, logger: logger}
}

func (h *HealthHandler) Health(c *gin.Context) {
	if h.check != nil {
		if err := h.check(c.Request.Context()); err != nil {
			h.logger.Warn("health check failed", zap.Error(err))
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
