package auth

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/R3E-Network/storefront/internal/app/core/service"
	"github.com/R3E-Network/storefront/internal/app/domain/user"
	"github.com/R3E-Network/storefront/internal/app/storage/memory"
	"github.com/R3E-Network/storefront/pkg/logger"
)

var secret = []byte("0123456789abcdef0123456789abcdef")

func newTestService(t *testing.T) (*Service, *memory.Store) {
	t.Helper()
	store := memory.New()
	svc := New(store, Config{Secret: secret, Issuer: "storefront-test", TokenTTL: time.Hour, BcryptCost: bcrypt.MinCost},
		logger.New(logger.LoggingConfig{Output: "discard"}))
	return svc, store
}

func TestRegisterAndLogin(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	session, err := svc.Register(ctx, " Ada@Example.com ", "correct horse", "Ada")
	require.NoError(t, err)
	assert.Equal(t, "ada@example.com", session.User.Email)
	assert.Equal(t, user.RoleCustomer, session.User.Role)
	assert.NotEqual(t, "correct horse", session.User.PasswordHash)

	claims, err := svc.VerifyToken(session.Token)
	require.NoError(t, err)
	assert.Equal(t, session.User.ID, claims.UserID)
	assert.Equal(t, user.RoleCustomer, claims.Role)

	login, err := svc.Login(ctx, "ADA@example.com", "correct horse")
	require.NoError(t, err)
	assert.Equal(t, session.User.ID, login.User.ID)

	_, err = svc.Login(ctx, "ada@example.com", "wrong password")
	assert.True(t, service.IsUnauthorized(err))
	_, err = svc.Login(ctx, "nobody@example.com", "correct horse")
	assert.True(t, service.IsUnauthorized(err))
}

func TestRegisterValidation(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Register(ctx, "not-an-email", "correct horse", "")
	assert.True(t, service.IsValidationError(err))
	_, err = svc.Register(ctx, "ada@example.com", "short", "")
	assert.True(t, service.IsValidationError(err))

	_, err = svc.Register(ctx, "ada@example.com", "correct horse", "")
	require.NoError(t, err)
	_, err = svc.Register(ctx, "ada@example.com", "correct horse", "")
	assert.True(t, service.IsConflict(err))
}

func TestDisabledAccountCannotLogin(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()

	session, err := svc.Register(ctx, "ada@example.com", "correct horse", "Ada")
	require.NoError(t, err)
	u := session.User
	u.Active = false
	_, err = store.UpdateUser(ctx, u)
	require.NoError(t, err)

	_, err = svc.Login(ctx, "ada@example.com", "correct horse")
	assert.True(t, service.IsForbidden(err))
	_, err = svc.Me(ctx, u.ID)
	assert.True(t, service.IsForbidden(err))
}

func TestVerifyTokenRejectsExpiredAndForeignTokens(t *testing.T) {
	svc, _ := newTestService(t)
	issued := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	svc.WithClock(func() time.Time { return issued })

	token, _, err := svc.IssueToken(user.User{ID: "u1", Role: user.RoleAdmin})
	require.NoError(t, err)

	_, err = svc.VerifyToken(token)
	require.NoError(t, err)

	svc.WithClock(func() time.Time { return issued.Add(2 * time.Hour) })
	_, err = svc.VerifyToken(token)
	assert.True(t, service.IsUnauthorized(err), "expired")

	svc.WithClock(func() time.Time { return issued })
	other := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		UserID: "u1",
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "someone-else",
			ExpiresAt: jwt.NewNumericDate(issued.Add(time.Hour)),
		},
	})
	foreign, err := other.SignedString(secret)
	require.NoError(t, err)
	_, err = svc.VerifyToken(foreign)
	assert.True(t, service.IsUnauthorized(err), "wrong issuer")

	_, err = svc.VerifyToken(token + "x")
	assert.True(t, service.IsUnauthorized(err), "bad signature")

	_, err = svc.VerifyToken("")
	assert.True(t, service.IsUnauthorized(err))
}
