package bot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/bwmarrin/discordgo"

	"tokengate/internal/errs"
	"tokengate/internal/model"
)

var adminPermissions int64 = discordgo.PermissionAdministrator | discordgo.PermissionManageRoles

var roleConditionOptions = []*discordgo.ApplicationCommandOption{
	{
		Type:        discordgo.ApplicationCommandOptionRole,
		Name:        "role",
		Description: "The role",
		Required:    true,
	},
	{
		Type:        discordgo.ApplicationCommandOptionInteger,
		Name:        "token-id",
		Description: "The token ID required (negative to remove)",
	},
	{
		Type:        discordgo.ApplicationCommandOptionNumber,
		Name:        "min-balance",
		Description: "The min balance of the token required (negative to remove)",
	},
	{
		Type:        discordgo.ApplicationCommandOptionString,
		Name:        "meta-condition",
		Description: `The dynamic meta condition of the token required ("null" to remove)`,
	},
	{
		Type:        discordgo.ApplicationCommandOptionString,
		Name:        "registry-id",
		Description: `The registry condition "version,organization,activationFlag" ("null" to remove)`,
	},
}

var commands = []*discordgo.ApplicationCommand{
	{
		Name:                     "role",
		Description:              "Server role management commands",
		DefaultMemberPermissions: &adminPermissions,
		Options: []*discordgo.ApplicationCommandOption{
			{
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Name:        "list",
				Description: "Lists all the roles that are configured for the server",
			},
			{
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Name:        "get",
				Description: "Gets the role configuration",
				Options:     roleConditionOptions[:1],
			},
			{
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Name:        "add",
				Description: "Adds a role configuration to the server configuration",
				Options:     roleConditionOptions,
			},
			{
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Name:        "update",
				Description: "Updates the configuration for a role",
				Options:     roleConditionOptions,
			},
			{
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Name:        "remove",
				Description: "Removes a role configuration from the server configuration",
				Options:     roleConditionOptions[:1],
			},
		},
	},
	{
		Name:                     "server",
		Description:              "Server configuration commands",
		DefaultMemberPermissions: &adminPermissions,
		Options: []*discordgo.ApplicationCommandOption{
			{
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Name:        "get",
				Description: "Shows the server configuration",
			},
			{
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Name:        "set-contract",
				Description: "Sets the ledger contract address for the server",
				Options: []*discordgo.ApplicationCommandOption{
					{
						Type:        discordgo.ApplicationCommandOptionString,
						Name:        "contract",
						Description: `The contract address ("null" to use the default contract)`,
						Required:    true,
					},
				},
			},
			{
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Name:        "toggle-dms",
				Description: "Toggles private notifications for role changes",
			},
		},
	},
	{
		Name:        "help",
		Description: "Shows how to configure token-gated roles",
	},
}

func (h *Handler) onInteraction(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if i.Type != discordgo.InteractionApplicationCommand {
		return
	}

	data := i.ApplicationCommandData()
	switch data.Name {
	case "role":
		h.handleRole(s, i, data)
	case "server":
		h.handleServer(s, i, data)
	case "help":
		h.reply(s, i, helpText)
	}
}

func (h *Handler) reply(s *discordgo.Session, i *discordgo.InteractionCreate, content string) {
	err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Content: content,
			Flags:   discordgo.MessageFlagsEphemeral,
		},
	})
	if err != nil {
		h.log.Errorw("failed to respond to interaction", "error", err)
	}
}

func optionMap(opts []*discordgo.ApplicationCommandInteractionDataOption) map[string]*discordgo.ApplicationCommandInteractionDataOption {
	m := make(map[string]*discordgo.ApplicationCommandInteractionDataOption, len(opts))
	for _, o := range opts {
		m[o.Name] = o
	}
	return m
}

func (h *Handler) handleRole(s *discordgo.Session, i *discordgo.InteractionCreate, data discordgo.ApplicationCommandInteractionData) {
	if len(data.Options) == 0 || i.GuildID == "" {
		h.reply(s, i, "No server configuration found")
		return
	}
	sub := data.Options[0]
	opts := optionMap(sub.Options)
	ctx := context.Background()

	switch sub.Name {
	case "list":
		roles, err := h.store.RolesByExternalServerID(ctx, i.GuildID)
		if err != nil {
			h.log.Errorw("error fetching role list", "serverId", i.GuildID, "error", err)
			h.reply(s, i, "There was an error while fetching the role list")
			return
		}
		if len(roles) == 0 {
			h.reply(s, i, "No roles are configured")
			return
		}
		names, err := s.GuildRoles(i.GuildID)
		if err != nil {
			h.reply(s, i, "There was an error while fetching the role list")
			return
		}
		nameByID := make(map[string]string, len(names))
		for _, r := range names {
			nameByID[r.ID] = r.Name
		}
		items := make([]string, 0, len(roles))
		for _, r := range roles {
			items = append(items, fmt.Sprintf("%s (%s)", nameByID[r.ExternalID], r.ExternalID))
		}
		h.reply(s, i, formatList("The following roles are configured:", items))

	case "get":
		role := opts["role"].RoleValue(s, i.GuildID)
		cfg, err := h.store.RoleByExternalID(ctx, role.ID)
		if errors.Is(err, errs.ErrNotFound) {
			h.reply(s, i, "No role configuration found")
			return
		}
		if err != nil {
			h.log.Errorw("error fetching role configuration", "roleId", role.ID, "error", err)
			h.reply(s, i, "There was an error while fetching the role configuration")
			return
		}
		h.reply(s, i, formatList(fmt.Sprintf("Role %q is configured as follows:", role.Name), []string{
			"Token ID: " + cfg.TokenID,
			"Min Balance: " + cfg.MinBalance,
			"Meta Condition: " + cfg.MetaCondition,
			"Registry ID: " + cfg.RegistryID,
		}))

	case "add":
		role := opts["role"].RoleValue(s, i.GuildID)
		if _, err := h.store.RoleByExternalID(ctx, role.ID); err == nil {
			h.reply(s, i, "Role configuration is already added")
			return
		} else if !errors.Is(err, errs.ErrNotFound) {
			h.reply(s, i, "There was an error while adding the role configuration")
			return
		}

		cfg, err := h.store.EnsureServerConfig(ctx, i.GuildID)
		if err != nil {
			h.log.Errorw("error adding role", "serverId", i.GuildID, "roleId", role.ID, "error", err)
			h.reply(s, i, "There was an error while adding the role configuration")
			return
		}

		newRole := model.Role{
			ExternalID:       role.ID,
			ServerID:         cfg.ID,
			ExternalServerID: i.GuildID,
		}
		applyConditionOptions(&newRole, opts)

		if err := h.store.CreateRole(ctx, &newRole); err != nil {
			h.log.Errorw("error adding role", "serverId", i.GuildID, "roleId", role.ID, "error", err)
			h.reply(s, i, "There was an error while adding the role configuration")
			return
		}
		h.log.Infow("added role", "serverId", i.GuildID, "roleId", role.ID, "roleName", role.Name)
		h.reply(s, i, fmt.Sprintf("Role configuration %q added", role.Name))
		h.reconcileRoleAsync(i.GuildID, newRole, false)

	case "update":
		role := opts["role"].RoleValue(s, i.GuildID)
		cfg, err := h.store.RoleByExternalID(ctx, role.ID)
		if errors.Is(err, errs.ErrNotFound) {
			h.reply(s, i, "No role configuration found")
			return
		}
		if err != nil {
			h.reply(s, i, "There was an error while updating the role configuration")
			return
		}

		applyConditionOptions(cfg, opts)
		if err := h.store.SaveRole(ctx, cfg); err != nil {
			h.log.Errorw("error updating role", "roleId", role.ID, "error", err)
			h.reply(s, i, "There was an error while updating the role configuration")
			return
		}
		h.log.Infow("updated role", "serverId", i.GuildID, "roleId", role.ID)
		h.reply(s, i, fmt.Sprintf("Role configuration %q updated", role.Name))
		h.reconcileRoleAsync(i.GuildID, *cfg, false)

	case "remove":
		role := opts["role"].RoleValue(s, i.GuildID)
		cfg, err := h.store.RoleByExternalID(ctx, role.ID)
		if errors.Is(err, errs.ErrNotFound) {
			h.reply(s, i, "No role configuration found")
			return
		}
		if err != nil {
			h.reply(s, i, "There was an error while removing the role configuration")
			return
		}
		if err := h.store.DeleteRoleByExternalID(ctx, role.ID); err != nil {
			h.log.Errorw("error removing role", "roleId", role.ID, "error", err)
			h.reply(s, i, "There was an error while removing the role configuration")
			return
		}
		h.log.Infow("removed role", "serverId", i.GuildID, "roleId", role.ID, "roleName", role.Name)
		h.reply(s, i, fmt.Sprintf("Role configuration %q removed", role.Name))
		h.reconcileRoleAsync(i.GuildID, *cfg, true)
	}
}

func (h *Handler) handleServer(s *discordgo.Session, i *discordgo.InteractionCreate, data discordgo.ApplicationCommandInteractionData) {
	if len(data.Options) == 0 || i.GuildID == "" {
		h.reply(s, i, "No server configuration found")
		return
	}
	sub := data.Options[0]
	opts := optionMap(sub.Options)
	ctx := context.Background()

	cfg, err := h.store.EnsureServerConfig(ctx, i.GuildID)
	if err != nil {
		h.log.Errorw("error loading server config", "serverId", i.GuildID, "error", err)
		h.reply(s, i, "There was an error while loading the server configuration")
		return
	}

	switch sub.Name {
	case "get":
		contract := cfg.ContractAddress
		if contract == "" {
			contract = "(default)"
		}
		h.reply(s, i, formatList("The server is configured as follows:", []string{
			"Contract Address: " + contract,
			"Private Notifications Disabled: " + strconv.FormatBool(cfg.DisableDMs),
		}))

	case "set-contract":
		contract := opts["contract"].StringValue()
		if strings.EqualFold(contract, "null") {
			contract = ""
		}
		cfg.ContractAddress = contract
		if err := h.store.SaveServerConfig(ctx, cfg); err != nil {
			h.reply(s, i, "There was an error while updating the server configuration")
			return
		}
		h.log.Infow("updated server contract", "serverId", i.GuildID, "contract", contract)
		h.reply(s, i, "Server contract address updated")

	case "toggle-dms":
		cfg.DisableDMs = !cfg.DisableDMs
		if err := h.store.SaveServerConfig(ctx, cfg); err != nil {
			h.reply(s, i, "There was an error while updating the server configuration")
			return
		}
		h.reply(s, i, "Private notifications disabled: "+strconv.FormatBool(cfg.DisableDMs))
	}
}

// reconcileRoleAsync runs the targeted pass after the interaction reply;
// the gateway requires a response within seconds while a pass can take
// much longer.
func (h *Handler) reconcileRoleAsync(serverID string, role model.Role, deleted bool) {
	go func() {
		if err := h.engine.ReconcileRole(context.Background(), serverID, role, deleted); err != nil {
			h.log.Errorw("failed to reconcile role", "serverId", serverID, "roleId", role.ExternalID, "error", err)
		}
	}()
}

// applyConditionOptions maps the shared condition options onto a role.
// Negative numbers and the literal "null" clear a condition.
func applyConditionOptions(role *model.Role, opts map[string]*discordgo.ApplicationCommandInteractionDataOption) {
	if opt, ok := opts["token-id"]; ok {
		if v := opt.IntValue(); v < 0 {
			role.TokenID = ""
		} else {
			role.TokenID = strconv.FormatInt(v, 10)
		}
	}
	if opt, ok := opts["min-balance"]; ok {
		if v := opt.FloatValue(); v <= 0 {
			role.MinBalance = ""
		} else {
			role.MinBalance = strconv.FormatFloat(v, 'f', -1, 64)
		}
	}
	if opt, ok := opts["meta-condition"]; ok {
		role.MetaCondition = nullable(opt.StringValue())
	}
	if opt, ok := opts["registry-id"]; ok {
		role.RegistryID = nullable(opt.StringValue())
	}
}

func nullable(v string) string {
	if strings.EqualFold(v, "null") {
		return ""
	}
	return v
}

func formatList(title string, items []string) string {
	lines := make([]string, 0, len(items)+1)
	if title != "" {
		lines = append(lines, title)
	}
	for _, item := range items {
		lines = append(lines, "• "+item)
	}
	return strings.Join(lines, "\n")
}

const helpText = `Token-gated role configuration:

` + "`/role add`" + ` binds a platform role to entitlement conditions:
• token-id: the exact token the user must own
• min-balance: the minimum token balance the user must hold
• meta-condition: a boolean expression over the token metadata (e.g. attributes.tier == "gold")
• registry-id: an identity-registry condition "version,organization,activationFlag"

` + "`/role update`" + ` changes conditions, ` + "`/role remove`" + ` revokes the role from all members.
` + "`/server set-contract`" + ` points the server at its ledger contract.
Users bind wallets through the authorize page; roles refresh automatically every minute.`
