package model

import (
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// Account is an administrator login for the config API.
type Account struct {
	gorm.Model
	Username     string `gorm:"uniqueIndex;not null" json:"username"`
	Password     string `gorm:"not null" json:"-"`
	TokenVersion int64  `gorm:"default:1" json:"-"`
	Role         string `gorm:"default:'admin'" json:"role"`
}

func HashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	return string(bytes), err
}

func (a *Account) BeforeCreate(tx *gorm.DB) (err error) {
	if a.Password != "" {
		a.Password, err = HashPassword(a.Password)
	}
	return
}
