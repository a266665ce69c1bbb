package model

import (
	"strconv"
	"strings"

	"gorm.io/gorm"
)

// Role maps one platform role to the conditions that gate it. All conditions
// are optional; a role with none configured entitles nobody.
type Role struct {
	gorm.Model
	ExternalID       string `gorm:"uniqueIndex;not null" json:"external_id"`
	ServerID         uint   `json:"server_id"`
	ExternalServerID string `gorm:"index" json:"external_server_id"`

	// TokenID gates on exact ownership of one token.
	TokenID string `json:"token_id"`
	// MinBalance gates on holding at least this many tokens (decimal string).
	MinBalance string `json:"min_balance"`
	// MetaCondition is a boolean expression evaluated against the token's
	// metadata document.
	MetaCondition string `json:"meta_condition"`
	// RegistryID gates on identity-registry membership, encoded as
	// "version,organization,activationFlag".
	RegistryID string `json:"registry_id"`
}

// HasTokenID reports whether a non-negative token id condition is set.
func (r *Role) HasTokenID() bool {
	n, err := strconv.Atoi(r.TokenID)
	return err == nil && n >= 0
}

// MinBalanceValue returns the minimum-balance condition, or 0 if unset or
// not positive.
func (r *Role) MinBalanceValue() float64 {
	v, err := strconv.ParseFloat(r.MinBalance, 64)
	if err != nil || v <= 0 {
		return 0
	}
	return v
}

// RegistryCondition is the decoded form of Role.RegistryID.
type RegistryCondition struct {
	Version       string
	Organization  string
	RequireActive bool
}

// RegistryCondition decodes the RegistryID field. The second return is false
// when no registry condition is configured or the encoding is malformed.
func (r *Role) RegistryCondition() (RegistryCondition, bool) {
	if r.RegistryID == "" {
		return RegistryCondition{}, false
	}
	parts := strings.Split(r.RegistryID, ",")
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" {
		return RegistryCondition{}, false
	}
	return RegistryCondition{
		Version:       strings.TrimSpace(parts[0]),
		Organization:  strings.TrimSpace(parts[1]),
		RequireActive: strings.TrimSpace(parts[2]) == "true",
	}, true
}
