package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/lalith-99/crmhub/internal/auth"
	"github.com/lalith-99/crmhub/internal/middleware"
	"github.com/lalith-99/crmhub/internal/models"
	"go.uber.org/zap"
)

// AuthHandler serves login and the caller's own account. Login is the
// only /api route that runs without Authenticate.
type AuthHandler struct {
	sessions *auth.Service
	logger   *zap.Logger
}

func NewAuthHandler(sessions *auth.Service, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{sessions: sessions, logger: logger}
}

type loginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type changePasswordRequest struct {
	CurrentPassword string `json:"currentPassword" binding:"required"`
	NewPassword     string `json:"newPassword" binding:"required,max=128"`
}

// Me is the caller as the client sees it: user, role and the
// permissions that drive route guarding.
type Me struct {
	User        *models.User `json:"user"`
	Role        *models.Role `json:"role"`
	Permissions []string     `json:"permissions"`
}

type sessionResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
	Me
}

func meOf(p *auth.Principal) Me {
	perms := []string{}
	if p.Role != nil {
		perms = append(perms, p.Role.Permissions...)
	}
	return Me{User: p.User, Role: p.Role, Permissions: perms}
}

// Login handles POST /api/auth/login. Every credential failure renders
// the same InvalidCredentials message.
func (h *AuthHandler) Login(c *gin.Context) {
	var req loginRequest
	if !bind(c, &req) {
		return
	}

	session, err := h.sessions.Authenticate(c.Request.Context(),
		auth.Credentials{Email: req.Email, Password: req.Password},
		middleware.GetResolution(c),
	)
	if err != nil {
		fail(c, err)
		return
	}

	respond(c, http.StatusOK, sessionResponse{
		Token:     session.Token,
		ExpiresAt: session.ExpiresAt,
		Me:        meOf(session.Principal),
	})
}

// Me handles GET /api/auth/me.
func (h *AuthHandler) Me(c *gin.Context) {
	respond(c, http.StatusOK, meOf(middleware.GetPrincipal(c)))
}

// ChangePassword handles PUT /api/auth/password.
func (h *AuthHandler) ChangePassword(c *gin.Context) {
	var req changePasswordRequest
	if !bind(c, &req) {
		return
	}

	p := middleware.GetPrincipal(c)
	if err := h.sessions.ChangePassword(c.Request.Context(), p, req.CurrentPassword, req.NewPassword); err != nil {
		fail(c, err)
		return
	}

	h.logger.Info("password changed", zap.String("user_id", p.User.ID.String()))
	c.Status(http.StatusNoContent)
}
