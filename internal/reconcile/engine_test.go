package reconcile

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"tokengate/internal/errs"
	"tokengate/internal/events"
	"tokengate/internal/model"
	"tokengate/internal/platform"
)

type fakeStore struct {
	configs map[string]*model.ServerConfig
	roles   map[string][]model.Role
	holders map[string][]model.Holder
}

var _ Store = (*fakeStore)(nil)

func (f *fakeStore) ServerConfigs(_ context.Context) ([]model.ServerConfig, error) {
	var out []model.ServerConfig
	for _, c := range f.configs {
		out = append(out, *c)
	}
	return out, nil
}

func (f *fakeStore) EnsureServerConfig(_ context.Context, externalID string) (*model.ServerConfig, error) {
	if c, ok := f.configs[externalID]; ok {
		return c, nil
	}
	c := &model.ServerConfig{ExternalID: externalID}
	if f.configs == nil {
		f.configs = map[string]*model.ServerConfig{}
	}
	f.configs[externalID] = c
	return c, nil
}

func (f *fakeStore) RolesByExternalServerID(_ context.Context, externalServerID string) ([]model.Role, error) {
	return f.roles[externalServerID], nil
}

func (f *fakeStore) HoldersByExternalServerID(_ context.Context, externalServerID string) ([]model.Holder, error) {
	return f.holders[externalServerID], nil
}

func (f *fakeStore) HoldersByServerAndUser(_ context.Context, externalServerID, userID string) ([]model.Holder, error) {
	var out []model.Holder
	for _, h := range f.holders[externalServerID] {
		if h.UserID == userID {
			out = append(out, h)
		}
	}
	return out, nil
}

type fakePlatform struct {
	guildName   string
	roleNames   map[string]string
	members     []platform.Member
	memberRoles map[string][]string

	denyRoles map[string]bool

	grants   []string // "user/role"
	revokes  []string
	userDMs  map[string][]string
	ownerDMs []string
}

var _ platform.Client = (*fakePlatform)(nil)

func (f *fakePlatform) GuildName(string) (string, error) { return f.guildName, nil }

func (f *fakePlatform) RoleNames(string) (map[string]string, error) { return f.roleNames, nil }

func (f *fakePlatform) Members(string) ([]platform.Member, error) { return f.members, nil }

func (f *fakePlatform) MemberRoles(_, userID string) ([]string, error) {
	return f.memberRoles[userID], nil
}

func (f *fakePlatform) GrantRole(_, userID, roleID string) error {
	if f.denyRoles[roleID] {
		return fmt.Errorf("%w: missing permissions", errs.ErrPermissionDenied)
	}
	f.grants = append(f.grants, userID+"/"+roleID)
	return nil
}

func (f *fakePlatform) RevokeRole(_, userID, roleID string) error {
	if f.denyRoles[roleID] {
		return fmt.Errorf("%w: missing permissions", errs.ErrPermissionDenied)
	}
	f.revokes = append(f.revokes, userID+"/"+roleID)
	return nil
}

func (f *fakePlatform) DMUser(userID, content string) error {
	if f.userDMs == nil {
		f.userDMs = map[string][]string{}
	}
	f.userDMs[userID] = append(f.userDMs[userID], content)
	return nil
}

func (f *fakePlatform) DMOwner(_, content string) error {
	f.ownerDMs = append(f.ownerDMs, content)
	return nil
}

type fakeEntitler struct {
	// entitled keys are "user/role".
	entitled map[string]bool
	errFor   map[string]error
}

var _ Entitler = (*fakeEntitler)(nil)

func (f *fakeEntitler) Entitled(_ context.Context, role model.Role, _ string, holders []model.Holder, deleted bool) (bool, error) {
	if deleted {
		return false, nil
	}
	user := ""
	if len(holders) > 0 {
		user = holders[0].UserID
	}
	key := user + "/" + role.ExternalID
	if err := f.errFor[key]; err != nil {
		return false, err
	}
	return f.entitled[key], nil
}

func newTestEngine(store *fakeStore, client *fakePlatform, entitler *fakeEntitler) *Engine {
	return NewEngine(store, client, entitler, events.NewHub(), zap.NewNop().Sugar())
}

func TestReconcileServerGrantsAndRevokes(t *testing.T) {
	store := &fakeStore{
		configs: map[string]*model.ServerConfig{"srv": {ExternalID: "srv"}},
		roles: map[string][]model.Role{"srv": {
			{ExternalID: "r1"},
			{ExternalID: "r2"},
			{ExternalID: "r3"},
		}},
		holders: map[string][]model.Holder{"srv": {
			{UserID: "alice", Address: "0xa1", EthAddress: "0xa1", ExternalServerID: "srv"},
		}},
	}
	client := &fakePlatform{
		guildName: "Test Guild",
		roleNames: map[string]string{"r1": "Gold", "r2": "Silver", "r3": "Bronze"},
		members: []platform.Member{
			{UserID: "alice", RoleIDs: []string{"r2", "r3"}},
			{UserID: "bob"}, // no binding, skipped
		},
	}
	entitler := &fakeEntitler{entitled: map[string]bool{
		"alice/r1": true,  // not possessed -> grant
		"alice/r3": true,  // possessed -> no-op
		// alice/r2 false   // possessed -> revoke
	}}
	e := newTestEngine(store, client, entitler)

	require.NoError(t, e.ReconcileServer(context.Background(), "srv"))

	assert.Equal(t, []string{"alice/r1"}, client.grants)
	assert.Equal(t, []string{"alice/r2"}, client.revokes)

	require.Len(t, client.userDMs["alice"], 1)
	dm := client.userDMs["alice"][0]
	assert.Contains(t, dm, "For server: Test Guild (srv)")
	assert.Contains(t, dm, "You have been added to the following roles:\n• Gold")
	assert.Contains(t, dm, "You have been removed from the following roles:\n• Silver")
	assert.Empty(t, client.userDMs["bob"])
}

func TestReconcileMemberPermissionDeniedAggregated(t *testing.T) {
	store := &fakeStore{
		configs: map[string]*model.ServerConfig{"srv": {ExternalID: "srv"}},
		roles: map[string][]model.Role{"srv": {
			{ExternalID: "locked1"},
			{ExternalID: "locked2"},
			{ExternalID: "open"},
		}},
		holders: map[string][]model.Holder{"srv": {
			{UserID: "alice", EthAddress: "0xa1"},
		}},
	}
	client := &fakePlatform{
		guildName: "Test Guild",
		roleNames: map[string]string{"locked1": "Locked One", "locked2": "Locked Two", "open": "Open"},
		members:   []platform.Member{{UserID: "alice", RoleIDs: []string{"locked1", "locked2"}}},
		denyRoles: map[string]bool{"locked1": true, "locked2": true},
	}
	entitler := &fakeEntitler{entitled: map[string]bool{"alice/open": true}}
	e := newTestEngine(store, client, entitler)

	require.NoError(t, e.ReconcileServer(context.Background(), "srv"))

	// The unmanageable revokes did not block the remaining grant.
	assert.Equal(t, []string{"alice/open"}, client.grants)

	// One aggregated owner report for both unmanageable roles.
	require.Len(t, client.ownerDMs, 1)
	assert.Contains(t, client.ownerDMs[0], `not manageable by the bot on server "Test Guild"`)
	assert.Contains(t, client.ownerDMs[0], "• Locked One")
	assert.Contains(t, client.ownerDMs[0], "• Locked Two")
}

func TestReconcileRoleDeletedForcesRevocation(t *testing.T) {
	store := &fakeStore{
		configs: map[string]*model.ServerConfig{"srv": {ExternalID: "srv"}},
		holders: map[string][]model.Holder{"srv": {
			{UserID: "alice", EthAddress: "0xa1"},
			{UserID: "bob", EthAddress: "0xb1"},
		}},
	}
	client := &fakePlatform{
		guildName: "Test Guild",
		roleNames: map[string]string{"r1": "Gold"},
		members: []platform.Member{
			{UserID: "alice", RoleIDs: []string{"r1"}},
			{UserID: "bob", RoleIDs: []string{"r1"}},
		},
	}
	// The entitler would grant; deletion must win without consulting it.
	entitler := &fakeEntitler{entitled: map[string]bool{"alice/r1": true, "bob/r1": true}}
	e := newTestEngine(store, client, entitler)

	role := model.Role{ExternalID: "r1", ExternalServerID: "srv"}
	require.NoError(t, e.ReconcileRole(context.Background(), "srv", role, true))

	assert.ElementsMatch(t, []string{"alice/r1", "bob/r1"}, client.revokes)
	assert.Empty(t, client.grants)
}

func TestReconcileServerMemberFailureIsIsolated(t *testing.T) {
	store := &fakeStore{
		configs: map[string]*model.ServerConfig{"srv": {ExternalID: "srv"}},
		roles:   map[string][]model.Role{"srv": {{ExternalID: "r1"}}},
		holders: map[string][]model.Holder{"srv": {
			{UserID: "alice", EthAddress: "0xa1"},
			{UserID: "bob", EthAddress: "0xb1"},
		}},
	}
	client := &fakePlatform{
		guildName: "Test Guild",
		roleNames: map[string]string{"r1": "Gold"},
		members: []platform.Member{
			{UserID: "alice"},
			{UserID: "bob"},
		},
	}
	entitler := &fakeEntitler{
		entitled: map[string]bool{"bob/r1": true},
		errFor:   map[string]error{"alice/r1": errors.New("rpc down")},
	}
	e := newTestEngine(store, client, entitler)

	require.NoError(t, e.ReconcileServer(context.Background(), "srv"))
	assert.Equal(t, []string{"bob/r1"}, client.grants, "bob is processed despite alice's failure")
}

func TestReconcileUserRespectsDisabledDMs(t *testing.T) {
	store := &fakeStore{
		configs: map[string]*model.ServerConfig{"srv": {ExternalID: "srv", DisableDMs: true}},
		roles:   map[string][]model.Role{"srv": {{ExternalID: "r1"}}},
		holders: map[string][]model.Holder{"srv": {{UserID: "alice", EthAddress: "0xa1"}}},
	}
	client := &fakePlatform{
		guildName:   "Test Guild",
		roleNames:   map[string]string{"r1": "Gold"},
		memberRoles: map[string][]string{"alice": nil},
	}
	entitler := &fakeEntitler{entitled: map[string]bool{"alice/r1": true}}
	e := newTestEngine(store, client, entitler)

	require.NoError(t, e.ReconcileUser(context.Background(), "srv", "alice"))
	assert.Equal(t, []string{"alice/r1"}, client.grants)
	assert.Empty(t, client.userDMs, "private notifications are disabled for this server")
}

func TestBulletList(t *testing.T) {
	out := bulletList("Title:", []string{"a", "b"})
	assert.Equal(t, "Title:\n• a\n• b", out)
	assert.Equal(t, "• a", bulletList("", []string{"a"}))
	assert.False(t, strings.Contains(bulletList("T", nil), "•"))
}
