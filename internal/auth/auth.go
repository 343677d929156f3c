package auth

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/pwannenmacher/ConfReview/internal/access"
	"github.com/pwannenmacher/ConfReview/internal/config"
	"github.com/pwannenmacher/ConfReview/internal/models"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrMissingToken   = errors.New("missing token")
	ErrMalformedToken = errors.New("malformed token")
	ErrExpiredToken   = errors.New("token has expired")
)

// Claims represents the claims in a JWT token
type Claims struct {
	Username string        `json:"username,omitempty"`
	Roles    []models.Role `json:"roles"`
	Visitor  bool          `json:"visitor,omitempty"`
	// Generation must match the user's current token generation
	Generation int64 `json:"gen,omitempty"`
	jwt.RegisteredClaims
}

// Identity converts the claims into the caller identity
func (c *Claims) Identity() *access.Identity {
	return &access.Identity{
		UserID:     c.Subject,
		Username:   c.Username,
		Roles:      access.NewRoleSet(c.Roles...),
		Visitor:    c.Visitor,
		Generation: c.Generation,
	}
}

// Service handles password hashing and token issuance
type Service struct {
	secret     []byte
	expiration time.Duration
	issuer     string
	now        func() time.Time
}

// NewService creates a new authentication service
func NewService(cfg *config.JWTConfig) *Service {
	return &Service{
		secret:     []byte(cfg.Secret),
		expiration: cfg.Expiration,
		issuer:     cfg.Issuer,
		now:        time.Now,
	}
}

// WithClock replaces the time source, used by tests
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Expiration returns the validity of issued tokens
func (s *Service) Expiration() time.Duration {
	return s.expiration
}

// HashPassword hashes a password using bcrypt
func (s *Service) HashPassword(password string) (string, error) {
	hashedBytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hashedBytes), nil
}

// VerifyPassword verifies a password against a hash
func (s *Service) VerifyPassword(hashedPassword, password string) error {
	return bcrypt.CompareHashAndPassword([]byte(hashedPassword), []byte(password))
}

// GenerateToken issues a signed token for the identity
func (s *Service) GenerateToken(id *access.Identity) (string, error) {
	return s.generateTokenWithExpiration(id, s.expiration)
}

func (s *Service) generateTokenWithExpiration(id *access.Identity, expiration time.Duration) (string, error) {
	jti, err := GenerateRandomToken(16)
	if err != nil {
		return "", fmt.Errorf("failed to generate JTI: %w", err)
	}

	now := s.now()
	claims := Claims{
		Username:   id.Username,
		Roles:      id.Roles.Roles(),
		Visitor:    id.Visitor,
		Generation: id.Generation,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        jti,
			Subject:   id.UserID,
			Issuer:    s.issuer,
			ExpiresAt: jwt.NewNumericDate(now.Add(expiration)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}

	return tokenString, nil
}

// ValidateToken validates a token and returns its claims. Failures are one
// of ErrMissingToken, ErrMalformedToken or ErrExpiredToken.
func (s *Service) ValidateToken(tokenString string) (*Claims, error) {
	if strings.TrimSpace(tokenString) == "" {
		return nil, ErrMissingToken
	}

	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
	)

	claims := &Claims{}
	token, err := parser.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return s.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, fmt.Errorf("%w: %v", ErrMalformedToken, err)
	}

	if !token.Valid || claims.Subject == "" {
		return nil, ErrMalformedToken
	}

	return claims, nil
}

// ParseBearer extracts the token from an Authorization header value
func ParseBearer(header string) (string, error) {
	if header == "" {
		return "", ErrMissingToken
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || strings.TrimSpace(parts[1]) == "" {
		return "", fmt.Errorf("%w: invalid authorization header format", ErrMalformedToken)
	}
	return strings.TrimSpace(parts[1]), nil
}

// GenerateRandomToken generates a URL-safe random token
func GenerateRandomToken(length int) (string, error) {
	bytes := make([]byte, length)
	if _, err := rand.Read(bytes); err != nil {
		return "", fmt.Errorf("failed to generate random token: %w", err)
	}
	return base64.URLEncoding.EncodeToString(bytes), nil
}
