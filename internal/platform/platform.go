// Package platform abstracts the community platform: member listings, role
// mutations and direct messages.
package platform

// Member is one platform member with their currently assigned role ids.
type Member struct {
	UserID  string
	RoleIDs []string
}

// Client is the platform surface the reconciliation engine consumes. Role
// mutations return errs.ErrPermissionDenied when the platform refuses the
// change.
type Client interface {
	GuildName(guildID string) (string, error)
	RoleNames(guildID string) (map[string]string, error)
	Members(guildID string) ([]Member, error)
	MemberRoles(guildID, userID string) ([]string, error)
	GrantRole(guildID, userID, roleID string) error
	RevokeRole(guildID, userID, roleID string) error
	DMUser(userID, content string) error
	DMOwner(guildID, content string) error
}
