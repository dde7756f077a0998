package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/lalith-99/crmhub/internal/apperr"
	"github.com/lalith-99/crmhub/internal/auth"
	"github.com/lalith-99/crmhub/internal/authz"
	"github.com/lalith-99/crmhub/internal/models"
	"github.com/lalith-99/crmhub/internal/repository/memory"
	"github.com/lalith-99/crmhub/internal/tenancy"
	"github.com/lalith-99/crmhub/pkg/envelope"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fixture struct {
	router *gin.Engine
	token  string
}

// newFixture wires Tenant → Authenticate → Require the way the server
// does, with a sales rep of tenant "acme".
func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	logger := zap.NewNop()
	store := memory.New()

	tenant, err := store.Tenants.Create(ctx, &models.Tenant{Subdomain: "acme", Name: "Acme", Plan: models.PlanStarter, Status: models.TenantActive})
	require.NoError(t, err)
	company, err := store.Companies.Create(ctx, &models.Company{TenantID: tenant.ID, Name: "Acme", MaxUsers: 5, IsActive: true})
	require.NoError(t, err)
	hash, err := auth.HashPassword("correct-horse")
	require.NoError(t, err)
	_, err = store.Users.Create(ctx, &models.User{
		TenantID: &tenant.ID, CompanyID: &company.ID, Role: models.RoleSalesRep,
		Name: "Sam", Email: "sam@acme.test", PasswordHash: hash, IsActive: true,
	})
	require.NoError(t, err)

	policy := tenancy.Policy{}
	resolver := tenancy.NewResolver(store.Tenants, nil, false, logger)
	sessions := auth.NewService(store, policy, "test-secret", time.Hour, logger)
	gate, err := authz.NewGate(ctx, store.Roles, logger)
	require.NoError(t, err)

	res, err := resolver.Resolve(ctx, "acme.crm.test", "")
	require.NoError(t, err)
	session, err := sessions.Authenticate(ctx, auth.Credentials{Email: "sam@acme.test", Password: "correct-horse"}, res)
	require.NoError(t, err)

	r := gin.New()
	r.Use(Errors(logger), Recovery(logger))
	api := r.Group("/api", Tenant(resolver), Authenticate(sessions, policy))
	ok := func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"data": GetPrincipal(c).User.Email}) }
	api.GET("/clients", Require(gate, authz.Permission(models.PermViewClients)), ok)
	api.DELETE("/clients/:id", Require(gate, authz.Permission(models.PermDeleteClients)), ok)
	api.GET("/super-admin/stats", Require(gate, authz.SuperAdmin()), ok)
	r.GET("/panic", func(*gin.Context) { panic("boom") })
	r.GET("/broken", func(c *gin.Context) { Abort(c, errors.New("db exploded")) })

	return &fixture{router: r, token: session.Token}
}

func (f *fixture) do(method, host, path, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	req.Host = host
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func jsonBody(s string) io.Reader { return strings.NewReader(s) }

func decodeError(t *testing.T, w *httptest.ResponseRecorder) envelope.ErrorDetail {
	t.Helper()
	var body envelope.Error
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body.Error
}

func TestAuthenticatedRequestPasses(t *testing.T) {
	f := newFixture(t)
	w := f.do(http.MethodGet, "acme.crm.test", "/api/clients", f.token)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"data":"sam@acme.test"}`, w.Body.String())
}

func TestChainFailures(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name   string
		method string
		host   string
		path   string
		token  string
		status int
		code   string
	}{
		{"unknown subdomain", http.MethodGet, "globex.crm.test", "/api/clients", f.token, http.StatusNotFound, string(apperr.KindTenantNotFound)},
		{"missing token", http.MethodGet, "acme.crm.test", "/api/clients", "", http.StatusUnauthorized, string(apperr.KindSessionInvalid)},
		{"garbage token", http.MethodGet, "acme.crm.test", "/api/clients", "nope", http.StatusUnauthorized, string(apperr.KindSessionInvalid)},
		{"no tenant on real host", http.MethodGet, "crm.test", "/api/clients", f.token, http.StatusBadRequest, string(apperr.KindTenantRequired)},
		{"missing permission", http.MethodDelete, "acme.crm.test", "/api/clients/1", f.token, http.StatusForbidden, string(apperr.KindForbidden)},
		{"super admin only", http.MethodGet, "acme.crm.test", "/api/super-admin/stats", f.token, http.StatusForbidden, string(apperr.KindForbidden)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := f.do(tt.method, tt.host, tt.path, tt.token)
			assert.Equal(t, tt.status, w.Code)
			assert.Equal(t, tt.code, decodeError(t, w).Code)
		})
	}
}

func TestServerErrorsAreGeneric(t *testing.T) {
	f := newFixture(t)

	w := f.do(http.MethodGet, "localhost", "/broken", "")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	detail := decodeError(t, w)
	assert.Equal(t, string(apperr.KindServer), detail.Code)
	assert.NotContains(t, detail.Message, "exploded")

	w = f.do(http.MethodGet, "localhost", "/panic", "")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, string(apperr.KindServer), decodeError(t, w).Code)
}

func TestRateLimit(t *testing.T) {
	limit, err := RateLimit("2-M", nil, zap.NewNop())
	require.NoError(t, err)

	r := gin.New()
	r.Use(Errors(zap.NewNop()))
	r.POST("/login", limit, func(c *gin.Context) { c.Status(http.StatusNoContent) })

	for i := range 2 {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/login", nil))
		assert.Equal(t, http.StatusNoContent, w.Code, "request %d", i)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/login", nil))
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, string(apperr.KindRateLimited), decodeError(t, w).Code)

	_, err = RateLimit("lots", nil, zap.NewNop())
	assert.Error(t, err)
}

func TestTimeout(t *testing.T) {
	r := gin.New()
	r.Use(Errors(zap.NewNop()), Timeout(10*time.Millisecond))
	r.GET("/slow", func(c *gin.Context) {
		<-c.Request.Context().Done()
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/slow", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestClassifyBindingErrors(t *testing.T) {
	type body struct {
		Email string `json:"email" binding:"required,email"`
	}
	r := gin.New()
	r.Use(Errors(zap.NewNop()))
	r.POST("/", func(c *gin.Context) {
		var b body
		if err := c.ShouldBindJSON(&b); err != nil {
			Abort(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/", jsonBody(`{"email":"nope"}`))
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	detail := decodeError(t, w)
	assert.Equal(t, string(apperr.KindValidation), detail.Code)
	assert.Equal(t, []string{"must be a valid email address"}, detail.Fields["email"])

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/", jsonBody(`{"email":`)))
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Contains(t, decodeError(t, w).Fields, "body")
}
