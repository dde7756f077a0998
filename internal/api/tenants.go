package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/lalith-99/crmhub/internal/middleware"
	"github.com/lalith-99/crmhub/internal/models"
	"github.com/lalith-99/crmhub/internal/service"
	"go.uber.org/zap"
)

// TenantHandler serves the caller's own tenant and the super-admin
// tenant console.
type TenantHandler struct {
	tenants   *service.TenantService
	companies *service.CompanyService
	logger    *zap.Logger
}

func NewTenantHandler(tenants *service.TenantService, companies *service.CompanyService, logger *zap.Logger) *TenantHandler {
	return &TenantHandler{tenants: tenants, companies: companies, logger: logger}
}

type settingsRequest struct {
	models.CompanySettings
	// Company is required from super admins, ignored otherwise.
	Company *uuid.UUID `json:"company"`
}

type statusRequest struct {
	Status models.TenantStatus `json:"status" binding:"required"`
}

// Current handles GET /api/tenant.
func (h *TenantHandler) Current(c *gin.Context) {
	t, err := h.tenants.Current(c.Request.Context(), middleware.GetPrincipal(c), middleware.GetResolution(c))
	if err != nil {
		fail(c, err)
		return
	}
	respond(c, http.StatusOK, t)
}

// UpdateSettings handles PUT /api/tenant/settings: the caller's company
// settings.
func (h *TenantHandler) UpdateSettings(c *gin.Context) {
	var req settingsRequest
	if !bind(c, &req) {
		return
	}
	company, err := h.companies.UpdateSettings(c.Request.Context(), middleware.GetPrincipal(c), req.Company, req.CompanySettings)
	if err != nil {
		fail(c, err)
		return
	}
	respond(c, http.StatusOK, company)
}

// List handles GET /api/super-admin/tenants.
func (h *TenantHandler) List(c *gin.Context) {
	q, err := parseQuery(c)
	if err != nil {
		fail(c, err)
		return
	}
	page, err := h.tenants.List(c.Request.Context(), q)
	if err != nil {
		fail(c, err)
		return
	}
	respondPage(c, page)
}

// Create handles POST /api/super-admin/tenants.
func (h *TenantHandler) Create(c *gin.Context) {
	var in service.TenantInput
	if !bind(c, &in) {
		return
	}
	out, err := h.tenants.Create(c.Request.Context(), middleware.GetPrincipal(c), in)
	if err != nil {
		if out != nil {
			h.logger.Warn("tenant provisioning incomplete",
				zap.String("tenant_id", out.Tenant.ID.String()),
				zap.Error(err),
			)
		}
		fail(c, err)
		return
	}
	respond(c, http.StatusCreated, out)
}

func (h *TenantHandler) Get(c *gin.Context) {
	id, ok := idParam(c, "tenant")
	if !ok {
		return
	}
	t, err := h.tenants.Get(c.Request.Context(), id)
	if err != nil {
		fail(c, err)
		return
	}
	respond(c, http.StatusOK, t)
}

func (h *TenantHandler) Update(c *gin.Context) {
	id, ok := idParam(c, "tenant")
	if !ok {
		return
	}
	var in service.TenantInput
	if !bind(c, &in) {
		return
	}
	t, err := h.tenants.Update(c.Request.Context(), id, in)
	if err != nil {
		fail(c, err)
		return
	}
	respond(c, http.StatusOK, t)
}

// SetStatus handles PUT /api/super-admin/tenants/:id/status.
func (h *TenantHandler) SetStatus(c *gin.Context) {
	id, ok := idParam(c, "tenant")
	if !ok {
		return
	}
	var req statusRequest
	if !bind(c, &req) {
		return
	}
	t, err := h.tenants.SetStatus(c.Request.Context(), id, req.Status)
	if err != nil {
		fail(c, err)
		return
	}
	respond(c, http.StatusOK, t)
}

// Delete cancels the tenant.
func (h *TenantHandler) Delete(c *gin.Context) {
	id, ok := idParam(c, "tenant")
	if !ok {
		return
	}
	if err := h.tenants.Delete(c.Request.Context(), id); err != nil {
		fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Stats handles GET /api/super-admin/stats.
func (h *TenantHandler) Stats(c *gin.Context) {
	stats, err := h.tenants.Stats(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	respond(c, http.StatusOK, stats)
}
