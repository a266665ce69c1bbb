package store

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"tokengate/internal/errs"
	"tokengate/internal/model"
)

func (s *Store) RoleByExternalID(ctx context.Context, externalID string) (*model.Role, error) {
	var role model.Role
	err := s.db.WithContext(ctx).Where("external_id = ?", externalID).First(&role).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errs.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &role, nil
}

func (s *Store) RolesByExternalServerID(ctx context.Context, externalServerID string) ([]model.Role, error) {
	var roles []model.Role
	if err := s.db.WithContext(ctx).Where("external_server_id = ?", externalServerID).Find(&roles).Error; err != nil {
		return nil, err
	}
	return roles, nil
}

func (s *Store) CreateRole(ctx context.Context, role *model.Role) error {
	return s.db.WithContext(ctx).Create(role).Error
}

func (s *Store) SaveRole(ctx context.Context, role *model.Role) error {
	return s.db.WithContext(ctx).Save(role).Error
}

// DeleteRoleByExternalID removes a role configuration permanently.
func (s *Store) DeleteRoleByExternalID(ctx context.Context, externalID string) error {
	return s.db.WithContext(ctx).Unscoped().Where("external_id = ?", externalID).Delete(&model.Role{}).Error
}
