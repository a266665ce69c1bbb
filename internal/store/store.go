// Package store owns all persistence for server configs, roles, nonces,
// holders and admin accounts, backed by gorm.
package store

import (
	"gorm.io/gorm"

	"tokengate/internal/model"
)

type Store struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// Migrate creates or updates the four domain tables plus admin accounts.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&model.ServerConfig{},
		&model.Role{},
		&model.Nonce{},
		&model.Holder{},
		&model.Account{},
	)
}
