// Package api holds the HTTP handlers. Each handler binds the request,
// calls one service operation with the caller's Principal and renders
// the result in the envelope from pkg/envelope. Failures are recorded
// with c.Error and rendered by middleware.Errors.
package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/lalith-99/crmhub/internal/apperr"
	"github.com/lalith-99/crmhub/internal/middleware"
	"github.com/lalith-99/crmhub/internal/service"
	"github.com/lalith-99/crmhub/pkg/envelope"
)

func respond[T any](c *gin.Context, status int, data T) {
	c.JSON(status, envelope.Single[T]{Data: data})
}

func respondPage[T any](c *gin.Context, page *service.Page[T]) {
	c.JSON(http.StatusOK, envelope.NewList(page.Items, page.Total, page.Page, page.Limit))
}

func fail(c *gin.Context, err error) {
	middleware.Abort(c, err)
}

// bind decodes the JSON body into dst. On failure the error has been
// recorded and the handler should return.
func bind(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		fail(c, err)
		return false
	}
	return true
}

// idParam parses :id. A malformed id names nothing, so it is NotFound.
func idParam(c *gin.Context, what string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		fail(c, apperr.NotFound(what))
		return uuid.Nil, false
	}
	return id, true
}

type listQuery struct {
	Search     string `form:"search" binding:"max=200"`
	Status     string `form:"status"`
	Priority   string `form:"priority"`
	Role       string `form:"role"`
	IsActive   *bool  `form:"isActive"`
	AssignedTo string `form:"assignedTo" binding:"omitempty,uuid"`
	Company    string `form:"company" binding:"omitempty,uuid"`
	Tenant     string `form:"tenant" binding:"omitempty,uuid"`
}

// parseQuery reads the shared list parameters. page must be within
// 1..MaxPage and limit within 1..MaxLimit; out-of-range values are
// rejected rather than clamped.
func parseQuery(c *gin.Context) (service.Query, error) {
	var lq listQuery
	if err := c.ShouldBindQuery(&lq); err != nil {
		var ve validator.ValidationErrors
		if errors.As(err, &ve) {
			return service.Query{}, err
		}
		return service.Query{}, apperr.Field("query", "contains a malformed value")
	}

	q := service.Query{
		Search:     lq.Search,
		Status:     lq.Status,
		Priority:   lq.Priority,
		Role:       lq.Role,
		IsActive:   lq.IsActive,
		AssignedTo: optionalID(lq.AssignedTo),
		Company:    optionalID(lq.Company),
		Tenant:     optionalID(lq.Tenant),
		Page:       1,
		Limit:      service.DefaultLimit,
	}

	fields := map[string][]string{}
	if raw, ok := c.GetQuery("page"); ok {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > service.MaxPage {
			fields["page"] = append(fields["page"], "must be between 1 and "+strconv.Itoa(service.MaxPage))
		}
		q.Page = n
	}
	if raw, ok := c.GetQuery("limit"); ok {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > service.MaxLimit {
			fields["limit"] = append(fields["limit"], "must be between 1 and "+strconv.Itoa(service.MaxLimit))
		}
		q.Limit = n
	}
	if len(fields) > 0 {
		return service.Query{}, apperr.Validation(fields)
	}
	return q, nil
}

func optionalID(raw string) *uuid.UUID {
	if raw == "" {
		return nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return nil
	}
	return &id
}
