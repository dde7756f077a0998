package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lalith-99/crmhub/internal/apperr"
	"github.com/lalith-99/crmhub/internal/models"
	"github.com/lalith-99/crmhub/internal/repository"
	"github.com/lalith-99/crmhub/internal/tenancy"
	"go.uber.org/zap"
)

type Credentials struct {
	Email    string
	Password string
}

// Principal is the authenticated caller, rebuilt from the store on every
// request.
type Principal struct {
	User *models.User
	Role *models.Role
}

func (p *Principal) Can(permission string) bool {
	return p != nil && p.Role != nil && p.Role.Has(permission)
}

func (p *Principal) IsSuperAdmin() bool {
	return p != nil && p.User.IsSuperAdmin()
}

// Session is what a successful login hands back.
type Session struct {
	Token     string
	ExpiresAt time.Time
	Principal *Principal
}

type Service struct {
	users     repository.UserRepository
	roles     repository.RoleRepository
	companies repository.CompanyRepository
	tenants   repository.TenantRepository
	policy    tenancy.Policy
	secret    string
	ttl       time.Duration
	logger    *zap.Logger

	now func() time.Time
}

func NewService(store *repository.Store, policy tenancy.Policy, secret string, ttl time.Duration, logger *zap.Logger) *Service {
	return &Service{
		users:     store.Users,
		roles:     store.Roles,
		companies: store.Companies,
		tenants:   store.Tenants,
		policy:    policy,
		secret:    secret,
		ttl:       ttl,
		logger:    logger,
		now:       time.Now,
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Authenticate checks credentials under the request's tenant resolution
// and issues a token. Unknown email and wrong password produce the same
// error.
func (s *Service) Authenticate(ctx context.Context, creds Credentials, res *tenancy.Resolution) (*Session, error) {
	email := normalizeEmail(creds.Email)
	if email == "" || creds.Password == "" {
		return nil, apperr.ErrInvalidCredentials
	}

	user, err := s.findLoginUser(ctx, email, res)
	if err != nil {
		return nil, apperr.Internal(fmt.Errorf("find login user: %w", err))
	}
	if user == nil {
		burnCompare(creds.Password)
		return nil, apperr.ErrInvalidCredentials
	}
	if !CheckPassword(user.PasswordHash, creds.Password) {
		return nil, apperr.ErrInvalidCredentials
	}

	if err := s.checkActive(ctx, user); err != nil {
		return nil, err
	}
	if err := s.policy.Require(res, user); err != nil {
		return nil, err
	}

	role, err := s.role(ctx, user.Role)
	if err != nil {
		return nil, err
	}

	now := s.now()
	if err := s.users.TouchLastLogin(ctx, user.ID, now); err != nil {
		s.logger.Warn("failed to record last login", zap.String("user_id", user.ID.String()), zap.Error(err))
	} else {
		user.LastLogin = &now
	}

	tenantID := uuid.Nil
	if user.TenantID != nil {
		tenantID = *user.TenantID
	}
	token, err := GenerateToken(user.ID, tenantID, s.secret, s.ttl, now)
	if err != nil {
		return nil, apperr.Internal(err)
	}

	s.logger.Info("user logged in",
		zap.String("user_id", user.ID.String()),
		zap.String("role", string(user.Role)),
	)

	return &Session{
		Token:     token,
		ExpiresAt: now.Add(s.ttl),
		Principal: &Principal{User: user, Role: role},
	}, nil
}

// findLoginUser picks the lookup by resolution: inside a tenant by
// (tenant, email); otherwise super admins first, then on local hosts a
// user whose email is unique across all tenants.
func (s *Service) findLoginUser(ctx context.Context, email string, res *tenancy.Resolution) (*models.User, error) {
	if tenantID := res.TenantID(); tenantID != nil {
		user, err := s.users.FindByEmail(ctx, *tenantID, email)
		if err != nil || user != nil {
			return user, err
		}
		return s.users.FindSuperAdminByEmail(ctx, email)
	}

	user, err := s.users.FindSuperAdminByEmail(ctx, email)
	if err != nil || user != nil {
		return user, err
	}
	if res == nil || !res.Local {
		return nil, nil
	}

	matches, err := s.users.FindAllByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if len(matches) != 1 {
		return nil, nil
	}
	return &matches[0], nil
}

// checkActive rejects inactive users, users of inactive companies, and
// users of tenants that are not operational.
func (s *Service) checkActive(ctx context.Context, user *models.User) error {
	if !user.IsActive {
		return apperr.ErrAccountInactive
	}
	if user.TenantID != nil {
		t, err := s.tenants.GetByID(ctx, *user.TenantID)
		if err != nil {
			return apperr.Internal(fmt.Errorf("load tenant: %w", err))
		}
		if t == nil || !t.Operational() {
			return apperr.ErrAccountInactive
		}
	}
	if user.CompanyID != nil {
		c, err := s.companies.GetByID(ctx, repository.Scope{}, *user.CompanyID)
		if err != nil {
			return apperr.Internal(fmt.Errorf("load company: %w", err))
		}
		if c == nil || !c.IsActive {
			return apperr.ErrAccountInactive
		}
	}
	return nil
}

func (s *Service) role(ctx context.Context, name models.RoleName) (*models.Role, error) {
	role, err := s.roles.GetByName(ctx, name)
	if err != nil {
		return nil, apperr.Internal(fmt.Errorf("load role: %w", err))
	}
	if role == nil {
		return nil, apperr.Internal(fmt.Errorf("role %q is not seeded", name))
	}
	return role, nil
}

// ResolveSession verifies a bearer token and reloads its user, so role
// and status changes take effect without re-login.
func (s *Service) ResolveSession(ctx context.Context, token string) (*Principal, error) {
	claims, err := ParseToken(token, s.secret)
	if err != nil {
		if errors.Is(err, ErrTokenExpired) {
			return nil, apperr.ErrSessionExpired
		}
		return nil, apperr.ErrSessionInvalid
	}

	user, err := s.users.GetByID(ctx, repository.Scope{}, claims.UserID)
	if err != nil {
		return nil, apperr.Internal(fmt.Errorf("load session user: %w", err))
	}
	if user == nil {
		return nil, apperr.ErrSessionInvalid
	}

	tenantID := uuid.Nil
	if user.TenantID != nil {
		tenantID = *user.TenantID
	}
	if tenantID != claims.TenantID {
		return nil, apperr.ErrSessionInvalid
	}

	if err := s.checkActive(ctx, user); err != nil {
		return nil, err
	}

	role, err := s.role(ctx, user.Role)
	if err != nil {
		return nil, err
	}
	return &Principal{User: user, Role: role}, nil
}

// ChangePassword replaces the caller's password after verifying the
// current one.
func (s *Service) ChangePassword(ctx context.Context, p *Principal, current, next string) error {
	if !CheckPassword(p.User.PasswordHash, current) {
		return apperr.Field("currentPassword", "current password is incorrect")
	}
	if len(next) < MinPasswordLength {
		return apperr.Field("newPassword", fmt.Sprintf("must be at least %d characters", MinPasswordLength))
	}

	hash, err := HashPassword(next)
	if err != nil {
		return apperr.Internal(err)
	}
	if err := s.users.UpdatePassword(ctx, p.User.ID, hash); err != nil {
		return apperr.Internal(fmt.Errorf("update password: %w", err))
	}
	p.User.PasswordHash = hash
	return nil
}
