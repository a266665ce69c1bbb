package store

import (
	"context"

	"gorm.io/gorm"

	"tokengate/internal/errs"
	"tokengate/internal/model"
)

// HolderBound reports whether the user already has a binding for either
// address form on this server.
func (s *Store) HolderBound(ctx context.Context, externalServerID, userID, address, ethAddress string) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&model.Holder{}).
		Where("external_server_id = ? AND user_id = ?", externalServerID, userID).
		Where("address = ? OR eth_address = ?", address, ethAddress).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (s *Store) HoldersByExternalServerID(ctx context.Context, externalServerID string) ([]model.Holder, error) {
	var holders []model.Holder
	if err := s.db.WithContext(ctx).Where("external_server_id = ?", externalServerID).Find(&holders).Error; err != nil {
		return nil, err
	}
	return holders, nil
}

func (s *Store) HoldersByServerAndUser(ctx context.Context, externalServerID, userID string) ([]model.Holder, error) {
	var holders []model.Holder
	err := s.db.WithContext(ctx).
		Where("external_server_id = ? AND user_id = ?", externalServerID, userID).
		Find(&holders).Error
	if err != nil {
		return nil, err
	}
	return holders, nil
}

// BindHolder persists an identity binding and consumes its nonce as one
// unit. The delete observes its own row count so a concurrent consumption
// of the same value cannot succeed twice.
func (s *Store) BindHolder(ctx context.Context, holder *model.Holder, nonceID uint) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(holder).Error; err != nil {
			return err
		}
		res := tx.Unscoped().Where("id = ?", nonceID).Delete(&model.Nonce{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected != 1 {
			return errs.ErrInvalidNonce
		}
		return nil
	})
}
