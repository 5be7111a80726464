// Package auth registers and authenticates storefront accounts and issues
// HS256 bearer tokens.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/R3E-Network/storefront/internal/app/core/service"
	"github.com/R3E-Network/storefront/internal/app/domain/user"
	"github.com/R3E-Network/storefront/internal/app/storage"
	"github.com/R3E-Network/storefront/pkg/logger"
)

const minPasswordLength = 8

// Config controls token issuance and password hashing.
type Config struct {
	Secret     []byte
	Issuer     string
	TokenTTL   time.Duration
	BcryptCost int
}

// Claims is the token payload.
type Claims struct {
	UserID string    `json:"uid"`
	Email  string    `json:"email,omitempty"`
	Role   user.Role `json:"role"`
	jwt.RegisteredClaims
}

// Session is the result of a successful register or login.
type Session struct {
	User      user.User `json:"user"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Service manages accounts and tokens.
type Service struct {
	users storage.UserStore
	cfg   Config
	log   *logger.Logger
	now   func() time.Time
}

// New constructs an auth service.
func New(users storage.UserStore, cfg Config, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("auth")
	}
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = 24 * time.Hour
	}
	if cfg.BcryptCost == 0 {
		cfg.BcryptCost = bcrypt.DefaultCost
	}
	if cfg.Issuer == "" {
		cfg.Issuer = "storefront"
	}
	return &Service{users: users, cfg: cfg, log: log, now: time.Now}
}

// WithClock overrides the time source used for token timestamps.
func (s *Service) WithClock(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

func normalizeEmail(raw string) (string, error) {
	email := strings.ToLower(strings.TrimSpace(raw))
	if email == "" {
		return "", service.RequiredError("email")
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", service.NewValidationError("email", "is not a valid address")
	}
	return email, nil
}

// Register creates a customer account and returns a session for it.
func (s *Service) Register(ctx context.Context, email, password, name string) (Session, error) {
	u, err := s.CreateAccount(ctx, email, password, name, user.RoleCustomer)
	if err != nil {
		return Session{}, err
	}
	return s.session(u)
}

// CreateAccount stores a new account with the given role.
func (s *Service) CreateAccount(ctx context.Context, email, password, name string, role user.Role) (user.User, error) {
	email, err := normalizeEmail(email)
	if err != nil {
		return user.User{}, err
	}
	if len(password) < minPasswordLength {
		return user.User{}, service.NewValidationError("password", fmt.Sprintf("must be at least %d characters", minPasswordLength))
	}
	if role != user.RoleCustomer && role != user.RoleAdmin {
		return user.User{}, service.NewValidationError("role", "must be customer or admin")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cfg.BcryptCost)
	if err != nil {
		return user.User{}, fmt.Errorf("hash password: %w", err)
	}

	u, err := s.users.CreateUser(ctx, user.User{
		Email:        email,
		Name:         strings.TrimSpace(name),
		PasswordHash: string(hash),
		Role:         role,
		Active:       true,
	})
	if err != nil {
		return user.User{}, err
	}
	s.log.WithField("user_id", u.ID).WithField("role", u.Role).Info("account created")
	return u, nil
}

// Login verifies credentials. Unknown emails and wrong passwords produce the
// same unauthorized error.
func (s *Service) Login(ctx context.Context, email, password string) (Session, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	u, err := s.users.GetUserByEmail(ctx, email)
	if err != nil {
		if service.IsNotFound(err) {
			return Session{}, fmt.Errorf("invalid credentials: %w", service.ErrUnauthorized)
		}
		return Session{}, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		s.log.WithField("user_id", u.ID).Debug("password mismatch")
		return Session{}, fmt.Errorf("invalid credentials: %w", service.ErrUnauthorized)
	}
	if !u.Active {
		return Session{}, fmt.Errorf("account disabled: %w", service.ErrForbidden)
	}
	return s.session(u)
}

// Me returns the account behind a verified token.
func (s *Service) Me(ctx context.Context, userID string) (user.User, error) {
	u, err := s.users.GetUser(ctx, userID)
	if err != nil {
		return user.User{}, err
	}
	if !u.Active {
		return user.User{}, fmt.Errorf("account disabled: %w", service.ErrForbidden)
	}
	return u, nil
}

func (s *Service) session(u user.User) (Session, error) {
	token, expires, err := s.IssueToken(u)
	if err != nil {
		return Session{}, err
	}
	return Session{User: u, Token: token, ExpiresAt: expires}, nil
}

// IssueToken signs a token for u.
func (s *Service) IssueToken(u user.User) (string, time.Time, error) {
	if len(s.cfg.Secret) == 0 {
		return "", time.Time{}, errors.New("token secret is not configured")
	}
	now := s.now().UTC()
	expires := now.Add(s.cfg.TokenTTL)
	claims := Claims{
		UserID: u.ID,
		Email:  u.Email,
		Role:   u.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.cfg.Issuer,
			Subject:   u.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.cfg.Secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, expires, nil
}

// VerifyToken validates signature, issuer and expiry and returns the claims.
func (s *Service) VerifyToken(raw string) (*Claims, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, fmt.Errorf("missing token: %w", service.ErrUnauthorized)
	}
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return s.cfg.Secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(s.cfg.Issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return nil, fmt.Errorf("invalid token: %v: %w", err, service.ErrUnauthorized)
	}
	if claims.UserID == "" {
		return nil, fmt.Errorf("token has no subject: %w", service.ErrUnauthorized)
	}
	return claims, nil
}
