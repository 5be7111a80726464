// Package users is the admin view over storefront accounts.
package users

import (
	"context"

	domain "github.com/R3E-Network/storefront/internal/app/domain/user"
	"github.com/R3E-Network/storefront/internal/app/storage"
	"github.com/R3E-Network/storefront/pkg/logger"
)

type Service struct {
	store storage.UserStore
	log   *logger.Logger
}

func New(store storage.UserStore, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("users")
	}
	return &Service{store: store, log: log}
}

func (s *Service) List(ctx context.Context) ([]domain.User, error) {
	return s.store.ListUsers(ctx)
}

// SetActive enables or disables an account. Inactive accounts cannot log in
// and receive no reminder emails.
func (s *Service) SetActive(ctx context.Context, id string, active bool) (domain.User, error) {
	u, err := s.store.GetUser(ctx, id)
	if err != nil {
		return domain.User{}, err
	}
	if u.Active == active {
		return u, nil
	}
	u.Active = active
	updated, err := s.store.UpdateUser(ctx, u)
	if err != nil {
		return domain.User{}, err
	}
	s.log.WithField("user_id", id).WithField("active", active).Info("user activation changed")
	return updated, nil
}
