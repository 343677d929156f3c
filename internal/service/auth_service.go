package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/pwannenmacher/ConfReview/internal/access"
	"github.com/pwannenmacher/ConfReview/internal/auth"
	"github.com/pwannenmacher/ConfReview/internal/models"
	"github.com/pwannenmacher/ConfReview/internal/repository"
	"github.com/pwannenmacher/ConfReview/pkg/validator"
)

// RegisterInput is the signup payload
type RegisterInput struct {
	Username  string `json:"username" validate:"required,username"`
	Password  string `json:"password" validate:"required,min=8"`
	Role      string `json:"role" validate:"required"`
	FirstName string `json:"first_name" validate:"max=100"`
	LastName  string `json:"last_name" validate:"max=100"`
}

// AuthResult is an issued credential and the identity it carries
type AuthResult struct {
	Token     string        `json:"token"`
	ExpiresAt time.Time     `json:"expires_at"`
	UserID    string        `json:"user_id"`
	Username  string        `json:"username,omitempty"`
	Roles     []models.Role `json:"roles"`
}

// AuthService handles signup, login, visitor sessions and logout
type AuthService struct {
	users  repository.UserRepository
	tokens *auth.Service
	opts   Options
}

// NewAuthService creates a new authentication service
func NewAuthService(users repository.UserRepository, tokens *auth.Service, opts Options) *AuthService {
	return &AuthService{
		users:  users,
		tokens: tokens,
		opts:   opts.withDefaults(),
	}
}

// Register creates a user holding the single requested role
func (s *AuthService) Register(ctx context.Context, in RegisterInput) (*models.User, error) {
	in.Username = validator.SanitizeString(in.Username)
	in.FirstName = validator.SanitizeText(in.FirstName)
	in.LastName = validator.SanitizeText(in.LastName)

	if err := validator.ValidateStruct(&in); err != nil {
		return nil, NewInvalidInputError(err.Error())
	}

	role, ok := models.ParseRole(in.Role)
	if !ok {
		return nil, NewInvalidInputError(fmt.Sprintf("role must be one of %q, %q or %q", models.RoleAuthor, models.RolePCChair, models.RolePCMember))
	}

	// Check if user already exists
	if _, err := s.users.GetByUsername(ctx, in.Username); err == nil {
		return nil, NewConflictError(fmt.Sprintf("username %q is already taken", in.Username))
	} else if !errors.Is(err, repository.ErrNotFound) {
		return nil, NewInternalError(err)
	}

	// Hash the password
	passwordHash, err := s.tokens.HashPassword(in.Password)
	if err != nil {
		return nil, NewInternalError(err)
	}

	now := s.opts.Now()
	user := &models.User{
		ID:           s.opts.NewID(),
		Username:     in.Username,
		PasswordHash: passwordHash,
		FirstName:    in.FirstName,
		LastName:     in.LastName,
		Roles:        []models.Role{role},
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	// The unique index settles races between concurrent signups
	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, NewConflictError(fmt.Sprintf("username %q is already taken", in.Username))
		}
		return nil, NewInternalError(err)
	}

	s.opts.Logger.Info("User registered", "user_id", user.ID, "role", role)
	return user, nil
}

// Authenticate verifies credentials and issues a token
func (s *AuthService) Authenticate(ctx context.Context, username, password string) (*AuthResult, error) {
	user, err := s.users.GetByUsername(ctx, validator.SanitizeString(username))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, NewUnauthenticatedError("invalid credentials")
		}
		return nil, NewInternalError(err)
	}

	if err := s.tokens.VerifyPassword(user.PasswordHash, password); err != nil {
		return nil, NewUnauthenticatedError("invalid credentials")
	}

	return s.issue(&access.Identity{
		UserID:     user.ID,
		Username:   user.Username,
		Roles:      access.NewRoleSet(user.Roles...),
		Generation: user.TokenGeneration,
	})
}

// ConnectAsVisitor mints a fresh anonymous identity. Nothing is stored.
func (s *AuthService) ConnectAsVisitor(ctx context.Context) (*AuthResult, error) {
	return s.issue(&access.Identity{
		UserID:  s.opts.NewID(),
		Roles:   access.NewRoleSet(models.RoleVisitor),
		Visitor: true,
	})
}

func (s *AuthService) issue(id *access.Identity) (*AuthResult, error) {
	issuedAt := s.opts.Now()
	token, err := s.tokens.GenerateToken(id)
	if err != nil {
		return nil, NewInternalError(err)
	}
	return &AuthResult{
		Token:     token,
		ExpiresAt: issuedAt.Add(s.tokens.Expiration()),
		UserID:    id.UserID,
		Username:  id.Username,
		Roles:     id.Roles.Roles(),
	}, nil
}

// Logout revokes every token issued to the user so far by moving the user
// to a new token generation. Visitor tokens have nothing to revoke and
// simply expire.
func (s *AuthService) Logout(ctx context.Context, id *access.Identity) error {
	if id == nil {
		return NewUnauthenticatedError("authentication required")
	}
	if id.Visitor {
		return nil
	}

	user, err := s.users.GetByID(ctx, id.UserID)
	if err != nil {
		return storeError(err, "user")
	}

	now := s.opts.Now()
	user.LoggedOutAt = &now
	user.TokenGeneration++
	user.UpdatedAt = now
	if err := s.users.Update(ctx, user); err != nil {
		return storeError(err, "user")
	}

	s.opts.Logger.Info("User logged out", "user_id", user.ID)
	return nil
}

// Profile returns the caller's account. Visitors have none.
func (s *AuthService) Profile(ctx context.Context, id *access.Identity) (*models.User, error) {
	if id == nil {
		return nil, NewUnauthenticatedError("authentication required")
	}
	if id.Visitor {
		return nil, NewNotFoundError("visitors have no profile")
	}

	user, err := s.users.GetByID(ctx, id.UserID)
	if err != nil {
		return nil, storeError(err, "user")
	}
	return user, nil
}

// Identify validates a token and checks it against logout revocation.
// Every failure is Unauthenticated with a message naming the cause.
func (s *AuthService) Identify(ctx context.Context, token string) (*access.Identity, error) {
	claims, err := s.tokens.ValidateToken(token)
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrMissingToken):
			return nil, &ServiceError{Kind: ErrorUnauthenticated, Message: "missing token", Err: err}
		case errors.Is(err, auth.ErrExpiredToken):
			return nil, &ServiceError{Kind: ErrorUnauthenticated, Message: "token has expired", Err: err}
		default:
			return nil, &ServiceError{Kind: ErrorUnauthenticated, Message: "malformed token", Err: err}
		}
	}

	if claims.Visitor {
		return claims.Identity(), nil
	}

	user, err := s.users.GetByID(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, NewUnauthenticatedError("account no longer exists")
		}
		return nil, NewInternalError(err)
	}

	if claims.Generation < user.TokenGeneration {
		s.opts.Logger.Debug("Rejected revoked token", slog.String("user_id", user.ID))
		return nil, NewUnauthenticatedError("token has been revoked")
	}

	return &access.Identity{
		UserID:     user.ID,
		Username:   user.Username,
		Roles:      access.NewRoleSet(user.Roles...),
		Generation: user.TokenGeneration,
	}, nil
}
