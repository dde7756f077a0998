package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/lalith-99/crmhub/internal/middleware"
	"github.com/lalith-99/crmhub/internal/service"
	"go.uber.org/zap"
)

type LeadHandler struct {
	svc    *service.LeadService
	logger *zap.Logger
}

func NewLeadHandler(svc *service.LeadService, logger *zap.Logger) *LeadHandler {
	return &LeadHandler{svc: svc, logger: logger}
}

func (h *LeadHandler) List(c *gin.Context) {
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

func (h *LeadHandler) Create(c *gin.Context) {
	var in service.LeadInput
	if !bind(c, &in) {
		return
	}
	lead, err := h.svc.Create(c.Request.Context(), middleware.GetPrincipal(c), in)
	if err != nil {
		fail(c, err)
		return
	}
	respond(c, http.StatusCreated, lead)
}

func (h *LeadHandler) Get(c *gin.Context) {
	id, ok := idParam(c, "lead")
	if !ok {
		return
	}
	lead, err := h.svc.Get(c.Request.Context(), middleware.GetPrincipal(c), id)
	if err != nil {
		fail(c, err)
		return
	}
	respond(c, http.StatusOK, lead)
}

func (h *LeadHandler) Update(c *gin.Context) {
	id, ok := idParam(c, "lead")
	if !ok {
		return
	}
	var in service.LeadInput
	if !bind(c, &in) {
		return
	}
	lead, err := h.svc.Update(c.Request.Context(), middleware.GetPrincipal(c), id, in)
	if err != nil {
		fail(c, err)
		return
	}
	respond(c, http.StatusOK, lead)
}

func (h *LeadHandler) Delete(c *gin.Context) {
	id, ok := idParam(c, "lead")
	if !ok {
		return
	}
	if err := h.svc.Delete(c.Request.Context(), middleware.GetPrincipal(c), id); err != nil {
		fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Convert handles POST /api/leads/:id/convert. A second conversion of
// the same lead answers 409 already_converted.
func (h *LeadHandler) Convert(c *gin.Context) {
	id, ok := idParam(c, "lead")
	if !ok {
		return
	}
	conv, err := h.svc.Convert(c.Request.Context(), middleware.GetPrincipal(c), id)
	if err != nil {
		fail(c, err)
		return
	}
	respond(c, http.StatusOK, conv)
}

func (h *LeadHandler) AddNote(c *gin.Context) {
	id, ok := idParam(c, "lead")
	if !ok {
		return
	}
	var in service.NoteInput
	if !bind(c, &in) {
		return
	}
	lead, err := h.svc.AddNote(c.Request.Context(), middleware.GetPrincipal(c), id, in)
	if err != nil {
		fail(c, err)
		return
	}
	respond(c, http.StatusCreated, lead)
}

func (h *LeadHandler) AddActivity(c *gin.Context) {
	id, ok := idParam(c, "lead")
	if !ok {
		return
	}
	var in service.ActivityInput
	if !bind(c, &in) {
		return
	}
	lead, err := h.svc.AddActivity(c.Request.Context(), middleware.GetPrincipal(c), id, in)
	if err != nil {
		fail(c, err)
		return
	}
	respond(c, http.StatusCreated, lead)
}
