package postgres

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/R3E-Network/storefront/internal/app/domain/user"
)

const userColumns = `id, email, name, password_hash, role, active, created_at, updated_at`

func (s *Store) CreateUser(ctx context.Context, u user.User) (user.User, error) {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	u.Email = strings.ToLower(strings.TrimSpace(u.Email))
	now := time.Now().UTC()
	u.CreatedAt = now
	u.UpdatedAt = now

	_, err := s.q.ExecContext(ctx, `
		INSERT INTO users (id, email, name, password_hash, role, active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, u.ID, u.Email, u.Name, u.PasswordHash, u.Role, u.Active, u.CreatedAt, u.UpdatedAt)
	if err != nil {
		return user.User{}, mapError(err, "user", u.Email)
	}
	return u, nil
}

func (s *Store) UpdateUser(ctx context.Context, u user.User) (user.User, error) {
	u.UpdatedAt = time.Now().UTC()
	err := sqlx.GetContext(ctx, s.q, &u, `
		UPDATE users
		SET name = $2, password_hash = $3, role = $4, active = $5, updated_at = $6
		WHERE id = $1
		RETURNING `+userColumns,
		u.ID, u.Name, u.PasswordHash, u.Role, u.Active, u.UpdatedAt)
	if err != nil {
		return user.User{}, mapError(err, "user", u.ID)
	}
	return u, nil
}

func (s *Store) GetUser(ctx context.Context, id string) (user.User, error) {
	var u user.User
	if err := sqlx.GetContext(ctx, s.q, &u, `SELECT `+userColumns+` FROM users WHERE id = $1`, id); err != nil {
		return user.User{}, mapError(err, "user", id)
	}
	return u, nil
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (user.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	var u user.User
	if err := sqlx.GetContext(ctx, s.q, &u, `SELECT `+userColumns+` FROM users WHERE email = $1`, email); err != nil {
		return user.User{}, mapError(err, "user", email)
	}
	return u, nil
}

func (s *Store) ListUsers(ctx context.Context) ([]user.User, error) {
	users := []user.User{}
	if err := sqlx.SelectContext(ctx, s.q, &users, `SELECT `+userColumns+` FROM users ORDER BY created_at`); err != nil {
		return nil, mapError(err, "users", "")
	}
	return users, nil
}
