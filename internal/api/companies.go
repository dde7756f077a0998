package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/lalith-99/crmhub/internal/middleware"
	"github.com/lalith-99/crmhub/internal/service"
	"go.uber.org/zap"
)

type CompanyHandler struct {
	svc    *service.CompanyService
	logger *zap.Logger
}

func NewCompanyHandler(svc *service.CompanyService, logger *zap.Logger) *CompanyHandler {
	return &CompanyHandler{svc: svc, logger: logger}
}

func (h *CompanyHandler) List(c *gin.Context) {
	q, err := parseQuery(c)
	if err != nil {
		fail(c, err)
		return
	}
	page, err := h.svc.List(c.Request.Context(), middleware.GetPrincipal(c), q)
	if err != nil {
		fail(c, err)
		return
	}
	respondPage(c, page)
}

func (h *CompanyHandler) Create(c *gin.Context) {
	var in service.CompanyInput
	if !bind(c, &in) {
		return
	}
	company, err := h.svc.Create(c.Request.Context(), middleware.GetPrincipal(c), in)
	if err != nil {
		fail(c, err)
		return
	}
	respond(c, http.StatusCreated, company)
}

func (h *CompanyHandler) Get(c *gin.Context) {
	id, ok := idParam(c, "company")
	if !ok {
		return
	}
	company, err := h.svc.Get(c.Request.Context(), middleware.GetPrincipal(c), id)
	if err != nil {
		fail(c, err)
		return
	}
	respond(c, http.StatusOK, company)
}

func (h *CompanyHandler) Update(c *gin.Context) {
	id, ok := idParam(c, "company")
	if !ok {
		return
	}
	var in service.CompanyInput
	if !bind(c, &in) {
		return
	}
	company, err := h.svc.Update(c.Request.Context(), middleware.GetPrincipal(c), id, in)
	if err != nil {
		fail(c, err)
		return
	}
	respond(c, http.StatusOK, company)
}

// Delete deactivates the company; see CompanyService.Delete.
func (h *CompanyHandler) Delete(c *gin.Context) {
	id, ok := idParam(c, "company")
	if !ok {
		return
	}
	if err := h.svc.Delete(c.Request.Context(), middleware.GetPrincipal(c), id); err != nil {
		fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
