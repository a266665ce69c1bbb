package model

import "gorm.io/gorm"

// Nonce is a single-use signing challenge. Only the latest nonce issued for
// an address is valid; a consumed nonce is deleted in the same transaction
// as the consumer's write.
type Nonce struct {
	gorm.Model
	Address string `gorm:"index;not null" json:"address"`
	Value   int64  `gorm:"uniqueIndex;not null" json:"nonce"`
}
