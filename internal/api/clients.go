package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/lalith-99/crmhub/internal/middleware"
	"github.com/lalith-99/crmhub/internal/service"
	"go.uber.org/zap"
)

type ClientHandler struct {
	svc    *service.ClientService
	logger *zap.Logger
}

func NewClientHandler(svc *service.ClientService, logger *zap.Logger) *ClientHandler {
	return &ClientHandler{svc: svc, logger: logger}
}

func (h *ClientHandler) List(c *gin.Context) {
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

func (h *ClientHandler) Create(c *gin.Context) {
	var in service.ClientInput
	if !bind(c, &in) {
		return
	}
	client, err := h.svc.Create(c.Request.Context(), middleware.GetPrincipal(c), in)
	if err != nil {
		fail(c, err)
		return
	}
	respond(c, http.StatusCreated, client)
}

func (h *ClientHandler) Get(c *gin.Context) {
	id, ok := idParam(c, "client")
	if !ok {
		return
	}
	client, err := h.svc.Get(c.Request.Context(), middleware.GetPrincipal(c), id)
	if err != nil {
		fail(c, err)
		return
	}
	respond(c, http.StatusOK, client)
}

func (h *ClientHandler) Update(c *gin.Context) {
	id, ok := idParam(c, "client")
	if !ok {
		return
	}
	var in service.ClientInput
	if !bind(c, &in) {
		return
	}
	client, err := h.svc.Update(c.Request.Context(), middleware.GetPrincipal(c), id, in)
	if err != nil {
		fail(c, err)
		return
	}
	respond(c, http.StatusOK, client)
}

func (h *ClientHandler) Delete(c *gin.Context) {
	id, ok := idParam(c, "client")
	if !ok {
		return
	}
	if err := h.svc.Delete(c.Request.Context(), middleware.GetPrincipal(c), id); err != nil {
		fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// AddNote handles POST /api/clients/:id/notes and returns the client.
func (h *ClientHandler) AddNote(c *gin.Context) {
	id, ok := idParam(c, "client")
	if !ok {
		return
	}
	var in service.NoteInput
	if !bind(c, &in) {
		return
	}
	client, err := h.svc.AddNote(c.Request.Context(), middleware.GetPrincipal(c), id, in)
	if err != nil {
		fail(c, err)
		return
	}
	respond(c, http.StatusCreated, client)
}
