package model

import "gorm.io/gorm"

// Holder binds a platform user to a wallet address within one server. A user
// may bind multiple addresses; the (server, user, address) combination is
// unique.
type Holder struct {
	gorm.Model
	// Address is the address as submitted (hex or bech32).
	Address string `gorm:"uniqueIndex:idx_holder_binding;not null" json:"address"`
	// EthAddress is the hex-style form used for ledger lookups. Equal to
	// Address for hex submissions, derived for bech32 ones.
	EthAddress       string `gorm:"index;not null" json:"eth_address"`
	UserID           string `gorm:"uniqueIndex:idx_holder_binding;not null" json:"user_id"`
	ExternalServerID string `gorm:"uniqueIndex:idx_holder_binding;not null" json:"external_server_id"`
}
