package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/lalith-99/crmhub/internal/middleware"
	"github.com/lalith-99/crmhub/internal/service"
	"go.uber.org/zap"
)

type UserHandler struct {
	svc    *service.UserService
	logger *zap.Logger
}

func NewUserHandler(svc *service.UserService, logger *zap.Logger) *UserHandler {
	return &UserHandler{svc: svc, logger: logger}
}

// List handles GET /api/users.
func (h *UserHandler) List(c *gin.Context) {
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

// Create handles POST /api/users.
func (h *UserHandler) Create(c *gin.Context) {
	var in service.UserInput
	if !bind(c, &in) {
		return
	}
	u, err := h.svc.Create(c.Request.Context(), middleware.GetPrincipal(c), in)
	if err != nil {
		fail(c, err)
		return
	}
	respond(c, http.StatusCreated, u)
}

// Get handles GET /api/users/:id.
func (h *UserHandler) Get(c *gin.Context) {
	id, ok := idParam(c, "user")
	if !ok {
		return
	}
	u, err := h.svc.Get(c.Request.Context(), middleware.GetPrincipal(c), id)
	if err != nil {
		fail(c, err)
		return
	}
	respond(c, http.StatusOK, u)
}

// Update handles PUT /api/users/:id.
func (h *UserHandler) Update(c *gin.Context) {
	id, ok := idParam(c, "user")
	if !ok {
		return
	}
	var in service.UserInput
	if !bind(c, &in) {
		return
	}
	u, err := h.svc.Update(c.Request.Context(), middleware.GetPrincipal(c), id, in)
	if err != nil {
		fail(c, err)
		return
	}
	respond(c, http.StatusOK, u)
}

// Delete handles DELETE /api/users/:id.
func (h *UserHandler) Delete(c *gin.Context) {
	id, ok := idParam(c, "user")
	if !ok {
		return
	}
	if err := h.svc.Delete(c.Request.Context(), middleware.GetPrincipal(c), id); err != nil {
		fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
