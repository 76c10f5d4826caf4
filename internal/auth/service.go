package auth

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"golang.org/x/crypto/bcrypt"

	"github.com/sentinel-ops/sentinel/internal/rbac"
	"github.com/sentinel-ops/sentinel/internal/shared"
)

// MinPasswordLength is the shortest password accepted by Register.
const MinPasswordLength = 8

// LoginInput carries credentials. Identifier accepts a username or an email.
type LoginInput struct {
	Identifier string `json:"identifier"`
	Email      string `json:"email"`
	Username   string `json:"username"`
	Password   string `json:"password"`
}

func (in LoginInput) identifier() string {
	for _, v := range []string{in.Identifier, in.Username, in.Email} {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

// LoginResult is returned on successful authentication.
type LoginResult struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
	User      User      `json:"user"`
}

// RegisterInput describes a new account.
type RegisterInput struct {
	Username string    `json:"username" validate:"required,alphanum,min=3,max=32"`
	Email    string    `json:"email" validate:"required,email,max=254"`
	Name     string    `json:"name" validate:"required,max=120"`
	Password string    `json:"password" validate:"required"`
	Role     rbac.Role `json:"role" validate:"omitempty,oneof=admin base_commander logistics_officer"`
	BaseID   string    `json:"baseId" validate:"max=64"`
}

// Service wraps authentication business rules.
type Service struct {
	repo      Repository
	bases     BaseChecker
	tokens    *TokenIssuer
	validator *validator.Validate
	logger    *slog.Logger
}

// NewService constructs a new Service.
func NewService(repo Repository, bases BaseChecker, tokens *TokenIssuer, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, bases: bases, tokens: tokens, validator: shared.NewValidator(), logger: logger}
}

// Tokens exposes the issuer used to sign login tokens.
func (s *Service) Tokens() *TokenIssuer {
	return s.tokens
}

// Authenticate validates credentials and returns the account.
func (s *Service) Authenticate(ctx context.Context, identifier, password string) (*User, error) {
	if identifier == "" || password == "" {
		return nil, shared.ErrInvalidCredentials
	}
	user, err := s.repo.FindByIdentifier(ctx, identifier)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil, shared.ErrInvalidCredentials
		}
		return nil, err
	}
	if !user.IsActive {
		return nil, shared.ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, shared.ErrInvalidCredentials
	}
	return user, nil
}

// Login authenticates and issues a bearer token.
func (s *Service) Login(ctx context.Context, in LoginInput) (LoginResult, error) {
	user, err := s.Authenticate(ctx, in.identifier(), in.Password)
	if err != nil {
		return LoginResult{}, err
	}
	token, expires, err := s.tokens.Issue(*user)
	if err != nil {
		return LoginResult{}, err
	}
	s.logger.Info("user login", slog.String("user", user.Username), slog.String("role", string(user.Role)))
	return LoginResult{Token: token, ExpiresAt: expires, User: *user}, nil
}

// Register creates a new non-admin account. Anonymous callers may only create
// logistics officers; an actor holding canManageUsers may also create base
// commanders.
func (s *Service) Register(ctx context.Context, actor *rbac.Principal, in RegisterInput) (*User, error) {
	in.Username = strings.TrimSpace(in.Username)
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	in.Name = strings.TrimSpace(in.Name)
	in.BaseID = strings.TrimSpace(in.BaseID)
	if in.Role == "" {
		in.Role = rbac.RoleLogisticsOfficer
	}
	if err := shared.ValidateStruct(s.validator, in); err != nil {
		return nil, err
	}
	if len(in.Password) < MinPasswordLength {
		return nil, shared.NewValidationError("Password must be at least %d characters.", MinPasswordLength)
	}
	switch in.Role {
	case rbac.RoleAdmin:
		return nil, shared.NewValidationError("Administrator accounts cannot be registered.")
	case rbac.RoleBaseCommander:
		if actor == nil || !actor.Can(rbac.PermManageUsers) {
			return nil, shared.ErrForbidden
		}
		if in.BaseID == "" {
			return nil, shared.NewValidationError("A base is required for base commanders.")
		}
	}
	if in.BaseID != "" && s.bases != nil {
		ok, err := s.bases.BaseExists(ctx, in.BaseID)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, shared.NewValidationError("Unknown base %q.", in.BaseID)
		}
	}
	hash, err := HashPassword(in.Password)
	if err != nil {
		return nil, err
	}
	user, err := s.repo.Create(ctx, User{
		Username:     in.Username,
		Email:        in.Email,
		Name:         in.Name,
		Role:         in.Role,
		BaseID:       in.BaseID,
		PasswordHash: hash,
		IsActive:     true,
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("user registered", slog.String("user", user.Username), slog.String("role", string(user.Role)))
	return user, nil
}

// Me returns the stored account behind principal. Deactivated accounts are
// refused even while their token is still valid.
func (s *Service) Me(ctx context.Context, p rbac.Principal) (*User, error) {
	user, err := s.repo.FindByID(ctx, p.ID)
	if err != nil {
		return nil, err
	}
	if !user.IsActive {
		return nil, ErrAccountInactive
	}
	return user, nil
}

// Active reports whether account id exists and is enabled.
func (s *Service) Active(ctx context.Context, id int64) (bool, error) {
	user, err := s.repo.FindByID(ctx, id)
	switch {
	case errors.Is(err, shared.ErrNotFound):
		return false, nil
	case err != nil:
		return false, err
	}
	return user.IsActive, nil
}

// ListUsers returns every account. Requires canManageUsers.
func (s *Service) ListUsers(ctx context.Context, p rbac.Principal) ([]User, error) {
	if !p.Can(rbac.PermManageUsers) {
		return nil, shared.ErrForbidden
	}
	return s.repo.List(ctx)
}

// SetActive enables or disables a non-seed account. Requires canManageUsers.
func (s *Service) SetActive(ctx context.Context, p rbac.Principal, id int64, active bool) error {
	if !p.Can(rbac.PermManageUsers) {
		return shared.ErrForbidden
	}
	if id == p.ID {
		return shared.NewValidationError("You cannot change your own account status.")
	}
	return s.repo.SetActive(ctx, id, active)
}

// HashPassword hashes a password with the default bcrypt cost.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	return string(hash), err
}
