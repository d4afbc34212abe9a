package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/AtRiskMedia/splittest-go/internal/domain/entities/splittest"
	"github.com/AtRiskMedia/splittest-go/internal/domain/repositories"
	"github.com/AtRiskMedia/splittest-go/internal/infrastructure/observability/logging"
	"github.com/AtRiskMedia/splittest-go/internal/infrastructure/security"
	"github.com/AtRiskMedia/splittest-go/internal/infrastructure/tenant"
)

var ErrInvalidCredentials = errors.New("invalid credentials")

// AuthResult holds authentication result data
type AuthResult struct {
	Token     string    `json:"token"`
	UserID    int64     `json:"userId"`
	Staff     bool      `json:"staff"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// AuthService handles account login and token resolution
type AuthService struct {
	tokenTTL time.Duration
	logger   *logging.ChanneledLogger
}

// NewAuthService creates a new authentication service
func NewAuthService(tokenTTL time.Duration, logger *logging.ChanneledLogger) *AuthService {
	return &AuthService{tokenTTL: tokenTTL, logger: logger}
}

// Login checks a username and password and issues a signed token.
func (a *AuthService) Login(ctx context.Context, tenantCtx *tenant.Context, username, password string) (*AuthResult, error) {
	account, err := tenantCtx.UserRepo().FindByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		return nil, fmt.Errorf("failed to load user: %w", err)
	}
	if account == nil || !security.CheckPassword(account.PasswordHash, password) {
		a.logger.Auth().Warn("Login rejected", "tenantId", tenantCtx.TenantID, "username", username)
		return nil, ErrInvalidCredentials
	}

	token, err := security.IssueToken(account.ID, account.IsStaff, tenantCtx.Config.JWTSecret, a.tokenTTL)
	if err != nil {
		return nil, fmt.Errorf("token generation failed: %w", err)
	}

	a.logger.Auth().Info("Login succeeded", "tenantId", tenantCtx.TenantID, "userId", account.ID, "staff", account.IsStaff)
	return &AuthResult{
		Token:     token,
		UserID:    account.ID,
		Staff:     account.IsStaff,
		ExpiresAt: time.Now().Add(a.tokenTTL).UTC(),
	}, nil
}

// CreateUser stores an account with a bcrypt password hash.
func (a *AuthService) CreateUser(ctx context.Context, tenantCtx *tenant.Context, username, password string, staff bool) (*repositories.User, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return nil, splittest.ErrNameRequired
	}
	hash, err := security.HashPassword(password)
	if err != nil {
		return nil, err
	}

	account := &repositories.User{Username: username, PasswordHash: hash, IsStaff: staff}
	if err := tenantCtx.UserRepo().Store(ctx, account); err != nil {
		return nil, err
	}
	a.logger.Auth().Info("User created", "tenantId", tenantCtx.TenantID, "userId", account.ID, "staff", staff)
	return account, nil
}

// Authenticate resolves a bearer or cookie token for the tenant. A token
// whose account no longer exists resolves to Anonymous, and the staff flag
// is taken from the stored account rather than the claims.
func (a *AuthService) Authenticate(ctx context.Context, tenantCtx *tenant.Context, token string) splittest.User {
	if tenantCtx.Config == nil {
		return splittest.Anonymous{}
	}
	authed, ok := security.UserFromToken(token, tenantCtx.Config.JWTSecret).(splittest.Authenticated)
	if !ok {
		return splittest.Anonymous{}
	}

	account, err := tenantCtx.UserRepo().FindByID(ctx, authed.ID)
	if err != nil {
		a.logger.Auth().Error("Token user lookup failed", "tenantId", tenantCtx.TenantID, "userId", authed.ID, "error", err)
		return splittest.Anonymous{}
	}
	if account == nil {
		a.logger.Auth().Warn("Token for unknown user", "tenantId", tenantCtx.TenantID, "userId", authed.ID)
		return splittest.Anonymous{}
	}
	return splittest.Authenticated{ID: account.ID, Staff: account.IsStaff}
}
