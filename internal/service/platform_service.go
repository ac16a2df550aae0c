package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/maheshrc27/publishflow/internal/models"
	"github.com/maheshrc27/publishflow/internal/publisher"
	"github.com/maheshrc27/publishflow/internal/repository"
)

type PlatformService interface {
	List(ctx context.Context, userID int64) ([]*models.LinkedAccount, error)
	SetActive(ctx context.Context, userID, accountID int64, active bool) error
}

type platformService struct {
	sa repository.SocialAccountRepository
	au repository.AccountUserRepository
}

func NewPlatformService(sa repository.SocialAccountRepository, au repository.AccountUserRepository) PlatformService {
	return &platformService{
		sa: sa,
		au: au,
	}
}

func (s *platformService) List(ctx context.Context, userID int64) ([]*models.LinkedAccount, error) {
	var err error

	if userID == 0 {
		err = errors.New("UserID is not valid")
		slog.Info(err.Error())
		return nil, err
	}

	accounts, err := s.sa.ListLinkedByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("error getting social accounts: %w", err)
	}

	return accounts, nil
}

// SetActive switches the caller's own link to an account. Other users of
// the same account are not affected.
func (s *platformService) SetActive(ctx context.Context, userID, accountID int64, active bool) error {
	found, err := s.au.SetActive(ctx, accountID, userID, active)
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("account %d: %w", accountID, publisher.ErrNotFound)
	}

	slog.Info("account link updated", "user_id", userID, "account_id", accountID, "is_active", active)
	return nil
}
