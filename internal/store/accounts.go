package store

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"tokengate/internal/errs"
	"tokengate/internal/model"
)

func (s *Store) AccountByUsername(ctx context.Context, username string) (*model.Account, error) {
	var account model.Account
	err := s.db.WithContext(ctx).Where("username = ?", username).First(&account).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errs.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &account, nil
}

func (s *Store) AccountByID(ctx context.Context, id uint) (*model.Account, error) {
	var account model.Account
	err := s.db.WithContext(ctx).First(&account, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errs.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &account, nil
}

// EnsureAdminAccount seeds the initial admin login when no accounts exist.
// Returns true when the account was created.
func (s *Store) EnsureAdminAccount(ctx context.Context, username, password string) (bool, error) {
	var count int64
	if err := s.db.WithContext(ctx).Model(&model.Account{}).Count(&count).Error; err != nil {
		return false, err
	}
	if count > 0 {
		return false, nil
	}
	admin := model.Account{Username: username, Password: password, Role: "admin"}
	if err := s.db.WithContext(ctx).Create(&admin).Error; err != nil {
		return false, err
	}
	return true, nil
}
