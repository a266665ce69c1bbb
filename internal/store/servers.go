package store

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"tokengate/internal/errs"
	"tokengate/internal/model"
)

func (s *Store) ServerConfigs(ctx context.Context) ([]model.ServerConfig, error) {
	var configs []model.ServerConfig
	if err := s.db.WithContext(ctx).Find(&configs).Error; err != nil {
		return nil, err
	}
	return configs, nil
}

func (s *Store) ServerConfigByExternalID(ctx context.Context, externalID string) (*model.ServerConfig, error) {
	var cfg model.ServerConfig
	err := s.db.WithContext(ctx).Where("external_id = ?", externalID).First(&cfg).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errs.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &cfg, nil
}

// EnsureServerConfig returns the config for a server, creating an empty one
// on first contact.
func (s *Store) EnsureServerConfig(ctx context.Context, externalID string) (*model.ServerConfig, error) {
	cfg, err := s.ServerConfigByExternalID(ctx, externalID)
	if err == nil {
		return cfg, nil
	}
	if !errors.Is(err, errs.ErrNotFound) {
		return nil, err
	}
	created := model.ServerConfig{ExternalID: externalID}
	if err := s.db.WithContext(ctx).Create(&created).Error; err != nil {
		return nil, err
	}
	return &created, nil
}

func (s *Store) SaveServerConfig(ctx context.Context, cfg *model.ServerConfig) error {
	return s.db.WithContext(ctx).Save(cfg).Error
}
