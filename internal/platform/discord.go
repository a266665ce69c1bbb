package platform

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/bwmarrin/discordgo"

	"tokengate/internal/errs"
)

const membersPageSize = 1000

// Discord adapts a discordgo session to the Client interface.
type Discord struct {
	session *discordgo.Session
}

var _ Client = (*Discord)(nil)

func NewDiscord(session *discordgo.Session) *Discord {
	return &Discord{session: session}
}

func (d *Discord) guild(guildID string) (*discordgo.Guild, error) {
	if g, err := d.session.State.Guild(guildID); err == nil {
		return g, nil
	}
	return d.session.Guild(guildID)
}

func (d *Discord) GuildName(guildID string) (string, error) {
	g, err := d.guild(guildID)
	if err != nil {
		return "", fmt.Errorf("fetch guild %s: %w", guildID, err)
	}
	return g.Name, nil
}

func (d *Discord) RoleNames(guildID string) (map[string]string, error) {
	roles, err := d.session.GuildRoles(guildID)
	if err != nil {
		return nil, fmt.Errorf("fetch roles for guild %s: %w", guildID, err)
	}
	names := make(map[string]string, len(roles))
	for _, r := range roles {
		names[r.ID] = r.Name
	}
	return names, nil
}

func (d *Discord) Members(guildID string) ([]Member, error) {
	var members []Member
	after := ""
	for {
		page, err := d.session.GuildMembers(guildID, after, membersPageSize)
		if err != nil {
			return nil, fmt.Errorf("fetch members for guild %s: %w", guildID, err)
		}
		for _, m := range page {
			members = append(members, Member{UserID: m.User.ID, RoleIDs: m.Roles})
			after = m.User.ID
		}
		if len(page) < membersPageSize {
			return members, nil
		}
	}
}

func (d *Discord) MemberRoles(guildID, userID string) ([]string, error) {
	m, err := d.session.GuildMember(guildID, userID)
	if err != nil {
		return nil, fmt.Errorf("fetch member %s in guild %s: %w", userID, guildID, err)
	}
	return m.Roles, nil
}

func (d *Discord) GrantRole(guildID, userID, roleID string) error {
	return translateRoleError(d.session.GuildMemberRoleAdd(guildID, userID, roleID))
}

func (d *Discord) RevokeRole(guildID, userID, roleID string) error {
	return translateRoleError(d.session.GuildMemberRoleRemove(guildID, userID, roleID))
}

func (d *Discord) DMUser(userID, content string) error {
	ch, err := d.session.UserChannelCreate(userID)
	if err != nil {
		return fmt.Errorf("open DM channel for %s: %w", userID, err)
	}
	if _, err := d.session.ChannelMessageSend(ch.ID, content); err != nil {
		return fmt.Errorf("send DM to %s: %w", userID, err)
	}
	return nil
}

func (d *Discord) DMOwner(guildID, content string) error {
	g, err := d.guild(guildID)
	if err != nil {
		return fmt.Errorf("fetch guild %s: %w", guildID, err)
	}
	return d.DMUser(g.OwnerID, content)
}

// translateRoleError maps the platform's forbidden response to the shared
// permission sentinel so callers can collect unmanageable roles.
func translateRoleError(err error) error {
	if err == nil {
		return nil
	}
	var rest *discordgo.RESTError
	if errors.As(err, &rest) && rest.Response != nil && rest.Response.StatusCode == http.StatusForbidden {
		return fmt.Errorf("%w: %v", errs.ErrPermissionDenied, err)
	}
	return err
}
