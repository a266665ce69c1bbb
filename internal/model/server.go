package model

import "gorm.io/gorm"

// ServerConfig is the per-community configuration row (servers table).
// One is created lazily the first time the bot sees a server.
type ServerConfig struct {
	gorm.Model
	ExternalID      string `gorm:"uniqueIndex;not null" json:"external_id"`
	ContractAddress string `json:"contract_address"`
	DisableDMs      bool   `json:"disable_dms"`
}
