package api

import (
	"context"
	"slices"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/lalith-99/crmhub/internal/auth"
	"github.com/lalith-99/crmhub/internal/authz"
	"github.com/lalith-99/crmhub/internal/events"
	"github.com/lalith-99/crmhub/internal/middleware"
	"github.com/lalith-99/crmhub/internal/models"
	"github.com/lalith-99/crmhub/internal/observ"
	"github.com/lalith-99/crmhub/internal/service"
	"github.com/lalith-99/crmhub/internal/tenancy"
	"go.uber.org/zap"
)

// RouterDeps is everything the HTTP layer is wired from.
type RouterDeps struct {
	Services *service.Services
	Sessions *auth.Service
	Policy   tenancy.Policy
	Resolver *tenancy.Resolver
	Gate     *authz.Gate
	Hub      *events.Hub
	Logger   *zap.Logger

	CORSOrigins    []string
	RequestTimeout time.Duration
	// LoginLimit guards POST /api/auth/login. Nil disables it.
	LoginLimit gin.HandlerFunc
	// Health is an optional readiness probe for GET /health.
	Health func(ctx context.Context) error
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.Config{
		AllowMethods:  []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Authorization", tenancy.HeaderSubdomain, observ.RequestIDHeader},
		ExposeHeaders: []string{observ.RequestIDHeader},
		MaxAge:        12 * time.Hour,
	}
	if len(origins) == 0 || slices.Contains(origins, "*") {
		cfg.AllowAllOrigins = true
		return cfg
	}
	cfg.AllowOrigins = origins
	cfg.AllowCredentials = true
	return cfg
}

// NewRouter builds the gin engine. Every /api route runs Tenant first;
// everything except login then runs Authenticate and a per-route
// permission requirement.
func NewRouter(d RouterDeps) *gin.Engine {
	r := gin.New()
	r.Use(
		observ.RequestLogger(d.Logger),
		middleware.Errors(d.Logger),
		middleware.Recovery(d.Logger),
		cors.New(corsConfig(d.CORSOrigins)),
	)

	health := NewHealthHandler(d.Health, d.Logger)
	r.GET("/health", health.Health)

	authH := NewAuthHandler(d.Sessions, d.Logger)
	users := NewUserHandler(d.Services.Users, d.Logger)
	companies := NewCompanyHandler(d.Services.Companies, d.Logger)
	clients := NewClientHandler(d.Services.Clients, d.Logger)
	leads := NewLeadHandler(d.Services.Leads, d.Logger)
	tenants := NewTenantHandler(d.Services.Tenants, d.Services.Companies, d.Logger)
	dashboard := NewDashboardHandler(d.Services.Dashboard, d.Services.Roles, d.Logger)

	api := r.Group("/api", middleware.Timeout(d.RequestTimeout), middleware.Tenant(d.Resolver))

	login := []gin.HandlerFunc{authH.Login}
	if d.LoginLimit != nil {
		login = append([]gin.HandlerFunc{d.LoginLimit}, login...)
	}
	api.POST("/auth/login", login...)

	authed := api.Group("", middleware.Authenticate(d.Sessions, d.Policy))
	perm := func(p string) gin.HandlerFunc { return middleware.Require(d.Gate, authz.Permission(p)) }

	authed.GET("/auth/me", authH.Me)
	authed.PUT("/auth/password", authH.ChangePassword)

	authed.GET("/users", perm(models.PermViewUsers), users.List)
	authed.POST("/users", perm(models.PermCreateUsers), users.Create)
	authed.GET("/users/:id", perm(models.PermViewUsers), users.Get)
	authed.PUT("/users/:id", perm(models.PermUpdateUsers), users.Update)
	authed.DELETE("/users/:id", perm(models.PermDeleteUsers), users.Delete)

	authed.GET("/companies", perm(models.PermViewCompanies), companies.List)
	authed.POST("/companies", perm(models.PermCreateCompanies), companies.Create)
	authed.GET("/companies/:id", perm(models.PermViewCompanies), companies.Get)
	authed.PUT("/companies/:id", perm(models.PermUpdateCompanies), companies.Update)
	authed.DELETE("/companies/:id", perm(models.PermDeleteCompanies), companies.Delete)

	authed.GET("/clients", perm(models.PermViewClients), clients.List)
	authed.POST("/clients", perm(models.PermCreateClients), clients.Create)
	authed.GET("/clients/:id", perm(models.PermViewClients), clients.Get)
	authed.PUT("/clients/:id", perm(models.PermUpdateClients), clients.Update)
	authed.DELETE("/clients/:id", perm(models.PermDeleteClients), clients.Delete)
	authed.POST("/clients/:id/notes", perm(models.PermUpdateClients), clients.AddNote)

	authed.GET("/leads", perm(models.PermViewLeads), leads.List)
	authed.POST("/leads", perm(models.PermCreateLeads), leads.Create)
	authed.GET("/leads/:id", perm(models.PermViewLeads), leads.Get)
	authed.PUT("/leads/:id", perm(models.PermUpdateLeads), leads.Update)
	authed.DELETE("/leads/:id", perm(models.PermDeleteLeads), leads.Delete)
	authed.POST("/leads/:id/convert", perm(models.PermConvertLeads), leads.Convert)
	authed.POST("/leads/:id/notes", perm(models.PermUpdateLeads), leads.AddNote)
	authed.POST("/leads/:id/activities", perm(models.PermUpdateLeads), leads.AddActivity)

	authed.GET("/tenant", tenants.Current)
	authed.PUT("/tenant/settings", perm(models.PermManageSettings), tenants.UpdateSettings)

	authed.GET("/roles", perm(models.PermViewRoles), dashboard.Roles)
	authed.GET("/dashboard/stats", perm(models.PermViewDashboard), dashboard.Stats)

	super := authed.Group("/super-admin", middleware.Require(d.Gate, authz.SuperAdmin()))
	super.GET("/tenants", tenants.List)
	super.POST("/tenants", tenants.Create)
	super.GET("/tenants/:id", tenants.Get)
	super.PUT("/tenants/:id", tenants.Update)
	super.DELETE("/tenants/:id", tenants.Delete)
	super.PUT("/tenants/:id/status", tenants.SetStatus)
	super.GET("/stats", tenants.Stats)

	if d.Hub != nil {
		stream := NewEventHandler(d.Hub, d.Logger)
		authed.GET("/events", stream.Stream)
	}

	return r
}
