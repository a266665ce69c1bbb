// Package reconcile diffs the roles a bound user should have against the
// roles they hold and applies the difference, member by member.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"tokengate/internal/errs"
	"tokengate/internal/events"
	"tokengate/internal/model"
	"tokengate/internal/platform"
)

// Store is the persistence surface the engine reads. All role/server/holder
// data is fetched fresh at the start of each pass.
type Store interface {
	ServerConfigs(ctx context.Context) ([]model.ServerConfig, error)
	EnsureServerConfig(ctx context.Context, externalID string) (*model.ServerConfig, error)
	RolesByExternalServerID(ctx context.Context, externalServerID string) ([]model.Role, error)
	HoldersByExternalServerID(ctx context.Context, externalServerID string) ([]model.Holder, error)
	HoldersByServerAndUser(ctx context.Context, externalServerID, userID string) ([]model.Holder, error)
}

// Entitler evaluates one role's conditions against an identity's addresses.
type Entitler interface {
	Entitled(ctx context.Context, role model.Role, contract string, holders []model.Holder, deleted bool) (bool, error)
}

type Engine struct {
	store    Store
	platform platform.Client
	entitler Entitler
	hub      *events.Hub
	log      *zap.SugaredLogger
}

func NewEngine(store Store, client platform.Client, entitler Entitler, hub *events.Hub, log *zap.SugaredLogger) *Engine {
	return &Engine{store: store, platform: client, entitler: entitler, hub: hub, log: log}
}

// reconcileMember applies grants and revokes for one member against a role
// set. A permission-denied mutation is collected and reported to the server
// owner; any other failure aborts the remaining roles for this member.
func (e *Engine) reconcileMember(
	ctx context.Context,
	serverID string,
	cfg *model.ServerConfig,
	roles []model.Role,
	roleNames map[string]string,
	member platform.Member,
	holders []model.Holder,
	deleted bool,
) error {
	current := make(map[string]bool, len(member.RoleIDs))
	for _, id := range member.RoleIDs {
		current[id] = true
	}

	var granted, revoked, unmanageable []string

	for _, role := range roles {
		name := roleNames[role.ExternalID]
		if name == "" {
			name = role.ExternalID
		}

		entitled, err := e.entitler.Entitled(ctx, role, cfg.ContractAddress, holders, deleted)
		if err != nil {
			return fmt.Errorf("evaluate role %s for user %s: %w", role.ExternalID, member.UserID, err)
		}

		switch {
		case current[role.ExternalID] && !entitled:
			e.log.Infow("removing role from user", "serverId", serverID, "userId", member.UserID, "role", role.ExternalID)
			if err := e.platform.RevokeRole(serverID, member.UserID, role.ExternalID); err != nil {
				if errors.Is(err, errs.ErrPermissionDenied) {
					unmanageable = append(unmanageable, name)
					continue
				}
				return fmt.Errorf("revoke role %s from user %s: %w", role.ExternalID, member.UserID, err)
			}
			revoked = append(revoked, name)
			rolesRevoked.Inc()
			e.hub.Publish(events.Event{Type: events.TypeRoleRevoked, ServerID: serverID, UserID: member.UserID, Role: name})

		case !current[role.ExternalID] && entitled:
			e.log.Infow("adding role to user", "serverId", serverID, "userId", member.UserID, "role", role.ExternalID)
			if err := e.platform.GrantRole(serverID, member.UserID, role.ExternalID); err != nil {
				if errors.Is(err, errs.ErrPermissionDenied) {
					unmanageable = append(unmanageable, name)
					continue
				}
				return fmt.Errorf("grant role %s to user %s: %w", role.ExternalID, member.UserID, err)
			}
			granted = append(granted, name)
			rolesGranted.Inc()
			e.hub.Publish(events.Event{Type: events.TypeRoleGranted, ServerID: serverID, UserID: member.UserID, Role: name})
		}
	}

	guildName, err := e.platform.GuildName(serverID)
	if err != nil {
		guildName = serverID
	}

	if len(unmanageable) > 0 {
		title := fmt.Sprintf("The following roles are not manageable by the bot on server %q:", guildName)
		if err := e.platform.DMOwner(serverID, bulletList(title, unmanageable)); err != nil {
			e.log.Errorw("failed to notify server owner", "serverId", serverID, "error", err)
		}
	}

	if (len(granted) > 0 || len(revoked) > 0) && !cfg.DisableDMs {
		if err := e.platform.DMUser(member.UserID, changeSummary(guildName, serverID, granted, revoked)); err != nil {
			e.log.Errorw("failed to notify member", "serverId", serverID, "userId", member.UserID, "error", err)
		}
	}

	return nil
}

// changeSummary is the single DM sent to a member whose roles changed.
func changeSummary(guildName, serverID string, granted, revoked []string) string {
	parts := []string{fmt.Sprintf("For server: %s (%s)", guildName, serverID)}
	if len(granted) > 0 {
		parts = append(parts, bulletList("You have been added to the following roles:", granted))
	}
	if len(revoked) > 0 {
		parts = append(parts, bulletList("You have been removed from the following roles:", revoked))
	}
	return strings.Join(parts, "\n")
}

// reconcileRoles runs the per-member algorithm for every bound member of a
// server against the given role set. One member's failure is logged and
// does not stop the others.
func (e *Engine) reconcileRoles(ctx context.Context, serverID string, roles []model.Role, deleted bool) error {
	cfg, err := e.store.EnsureServerConfig(ctx, serverID)
	if err != nil {
		return fmt.Errorf("load server config %s: %w", serverID, err)
	}

	holders, err := e.store.HoldersByExternalServerID(ctx, serverID)
	if err != nil {
		return fmt.Errorf("load holders for server %s: %w", serverID, err)
	}
	holdersByUser := make(map[string][]model.Holder)
	for _, h := range holders {
		holdersByUser[h.UserID] = append(holdersByUser[h.UserID], h)
	}

	members, err := e.platform.Members(serverID)
	if err != nil {
		return fmt.Errorf("list members of server %s: %w", serverID, err)
	}
	roleNames, err := e.platform.RoleNames(serverID)
	if err != nil {
		return fmt.Errorf("list roles of server %s: %w", serverID, err)
	}

	for _, member := range members {
		userHolders := holdersByUser[member.UserID]
		if len(userHolders) == 0 {
			continue
		}
		if err := e.reconcileMember(ctx, serverID, cfg, roles, roleNames, member, userHolders, deleted); err != nil {
			memberErrors.Inc()
			e.log.Errorw("failed to reconcile member", "serverId", serverID, "userId", member.UserID, "error", err)
			e.hub.Publish(events.Event{Type: events.TypeMemberError, ServerID: serverID, UserID: member.UserID, Message: err.Error()})
		}
	}

	passes.Inc()
	e.hub.Publish(events.Event{Type: events.TypePassCompleted, ServerID: serverID})
	return nil
}

// ReconcileServer reruns every configured role of a server for all bound
// members.
func (e *Engine) ReconcileServer(ctx context.Context, serverID string) error {
	e.log.Infow("verifying users for server", "serverId", serverID)
	roles, err := e.store.RolesByExternalServerID(ctx, serverID)
	if err != nil {
		return fmt.Errorf("load roles for server %s: %w", serverID, err)
	}
	if err := e.reconcileRoles(ctx, serverID, roles, false); err != nil {
		return err
	}
	e.log.Infow("finished verifying users for server", "serverId", serverID)
	return nil
}

// ReconcileRole reruns a single role for all bound members of its server.
// deleted forces non-entitlement so removal of a role configuration revokes
// it everywhere regardless of chain state.
func (e *Engine) ReconcileRole(ctx context.Context, serverID string, role model.Role, deleted bool) error {
	e.log.Infow("verifying users for role", "serverId", serverID, "role", role.ExternalID, "deleted", deleted)
	if err := e.reconcileRoles(ctx, serverID, []model.Role{role}, deleted); err != nil {
		return err
	}
	e.log.Infow("finished verifying users for role", "serverId", serverID, "role", role.ExternalID)
	return nil
}

// ReconcileUser reruns every configured role of a server for one member,
// immediately after an identity binding.
func (e *Engine) ReconcileUser(ctx context.Context, serverID, userID string) error {
	e.log.Infow("on user authorized", "serverId", serverID, "userId", userID)

	cfg, err := e.store.EnsureServerConfig(ctx, serverID)
	if err != nil {
		return fmt.Errorf("load server config %s: %w", serverID, err)
	}
	roles, err := e.store.RolesByExternalServerID(ctx, serverID)
	if err != nil {
		return fmt.Errorf("load roles for server %s: %w", serverID, err)
	}
	holders, err := e.store.HoldersByServerAndUser(ctx, serverID, userID)
	if err != nil {
		return fmt.Errorf("load holders for user %s: %w", userID, err)
	}
	memberRoles, err := e.platform.MemberRoles(serverID, userID)
	if err != nil {
		return fmt.Errorf("fetch member %s: %w", userID, err)
	}
	roleNames, err := e.platform.RoleNames(serverID)
	if err != nil {
		return fmt.Errorf("list roles of server %s: %w", serverID, err)
	}

	member := platform.Member{UserID: userID, RoleIDs: memberRoles}
	if err := e.reconcileMember(ctx, serverID, cfg, roles, roleNames, member, holders, false); err != nil {
		memberErrors.Inc()
		return err
	}

	e.log.Infow("finished on user authorized", "serverId", serverID, "userId", userID)
	return nil
}

// ReconcileAll runs a full pass over every known server. A failing server is
// logged and does not stop the pass.
func (e *Engine) ReconcileAll(ctx context.Context) {
	e.log.Info("verifying all users")

	configs, err := e.store.ServerConfigs(ctx)
	if err != nil {
		e.log.Errorw("failed to list server configs", "error", err)
		return
	}
	for _, cfg := range configs {
		if err := e.ReconcileServer(ctx, cfg.ExternalID); err != nil {
			e.log.Errorw("failed to reconcile server", "serverId", cfg.ExternalID, "error", err)
		}
	}

	e.log.Info("finished verifying all users")
}
