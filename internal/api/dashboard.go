package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/lalith-99/crmhub/internal/middleware"
	"github.com/lalith-99/crmhub/internal/service"
	"go.uber.org/zap"
)

type DashboardHandler struct {
	dashboard *service.DashboardService
	roles     *service.RoleService
	logger    *zap.Logger
}

func NewDashboardHandler(dashboard *service.DashboardService, roles *service.RoleService, logger *zap.Logger) *DashboardHandler {
	return &DashboardHandler{dashboard: dashboard, roles: roles, logger: logger}
}

// Stats handles GET /api/dashboard/stats. Super admins may narrow it
// with ?tenant= and ?company=.
func (h *DashboardHandler) Stats(c *gin.Context) {
	q, err := parseQuery(c)
	if err != nil {
		fail(c, err)
		return
	}
	stats, err := h.dashboard.Stats(c.Request.Context(), middleware.GetPrincipal(c), q)
	if err != nil {
		fail(c, err)
		return
	}
	respond(c, http.StatusOK, stats)
}

// Roles handles GET /api/roles.
func (h *DashboardHandler) Roles(c *gin.Context) {
	roles, err := h.roles.List(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	respond(c, http.StatusOK, roles)
}
