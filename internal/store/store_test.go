package store

import (
	"context"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"tokengate/internal/errs"
	"tokengate/internal/model"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, Migrate(db))

	return New(db)
}

func TestIssueNonceReplacesPrior(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	first, err := st.IssueNonce(ctx, "0xabc")
	require.NoError(t, err)

	second, err := st.IssueNonce(ctx, "0xabc")
	require.NoError(t, err)

	// Only the latest challenge resolves.
	_, err = st.NonceByValue(ctx, first, "0xabc")
	assert.ErrorIs(t, err, errs.ErrInvalidNonce)

	nonce, err := st.NonceByValue(ctx, second, "0xabc")
	require.NoError(t, err)
	assert.Equal(t, second, nonce.Value)
}

func TestNonceByValueAddressMismatch(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	value, err := st.IssueNonce(ctx, "0xabc")
	require.NoError(t, err)

	_, err = st.NonceByValue(ctx, value, "0xother")
	assert.ErrorIs(t, err, errs.ErrInvalidNonce)
}

func TestNoncesPerAddressIndependent(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	a, err := st.IssueNonce(ctx, "0xaaa")
	require.NoError(t, err)
	b, err := st.IssueNonce(ctx, "0xbbb")
	require.NoError(t, err)

	_, err = st.NonceByValue(ctx, a, "0xaaa")
	assert.NoError(t, err)
	_, err = st.NonceByValue(ctx, b, "0xbbb")
	assert.NoError(t, err)
}

func TestBindHolderConsumesNonce(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	value, err := st.IssueNonce(ctx, "0xabc")
	require.NoError(t, err)
	nonce, err := st.NonceByValue(ctx, value, "0xabc")
	require.NoError(t, err)

	holder := &model.Holder{
		Address:          "0xabc",
		EthAddress:       "0xabc",
		UserID:           "user-1",
		ExternalServerID: "guild-1",
	}
	require.NoError(t, st.BindHolder(ctx, holder, nonce.ID))

	_, err = st.NonceByValue(ctx, value, "0xabc")
	assert.ErrorIs(t, err, errs.ErrInvalidNonce)

	bound, err := st.HolderBound(ctx, "guild-1", "user-1", "0xabc", "0xabc")
	require.NoError(t, err)
	assert.True(t, bound)
}

func TestBindHolderReplayFails(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	value, err := st.IssueNonce(ctx, "0xabc")
	require.NoError(t, err)
	nonce, err := st.NonceByValue(ctx, value, "0xabc")
	require.NoError(t, err)

	first := &model.Holder{Address: "0xabc", EthAddress: "0xabc", UserID: "user-1", ExternalServerID: "guild-1"}
	require.NoError(t, st.BindHolder(ctx, first, nonce.ID))

	// Replaying the consumed nonce must fail and must not create a binding.
	replay := &model.Holder{Address: "0xdef", EthAddress: "0xdef", UserID: "user-2", ExternalServerID: "guild-1"}
	err = st.BindHolder(ctx, replay, nonce.ID)
	assert.ErrorIs(t, err, errs.ErrInvalidNonce)

	bound, err := st.HolderBound(ctx, "guild-1", "user-2", "0xdef", "0xdef")
	require.NoError(t, err)
	assert.False(t, bound)
}

func TestHolderBoundMatchesEitherAddressForm(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	holder := &model.Holder{
		Address:          "rebus1qqqsyqcyq5rqwzqf3953cc",
		EthAddress:       "0x0000000000000000000000000000000000000001",
		UserID:           "user-1",
		ExternalServerID: "guild-1",
	}
	value, err := st.IssueNonce(ctx, holder.Address)
	require.NoError(t, err)
	nonce, err := st.NonceByValue(ctx, value, holder.Address)
	require.NoError(t, err)
	require.NoError(t, st.BindHolder(ctx, holder, nonce.ID))

	bound, err := st.HolderBound(ctx, "guild-1", "user-1", "other", holder.EthAddress)
	require.NoError(t, err)
	assert.True(t, bound)

	bound, err = st.HolderBound(ctx, "guild-1", "user-1", holder.Address, "other")
	require.NoError(t, err)
	assert.True(t, bound)

	// Same address on another server is a distinct binding scope.
	bound, err = st.HolderBound(ctx, "guild-2", "user-1", holder.Address, holder.EthAddress)
	require.NoError(t, err)
	assert.False(t, bound)
}

func TestRoleLifecycle(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	cfg, err := st.EnsureServerConfig(ctx, "guild-1")
	require.NoError(t, err)

	role := &model.Role{
		ExternalID:       "role-1",
		ServerID:         cfg.ID,
		ExternalServerID: "guild-1",
		TokenID:          "42",
	}
	require.NoError(t, st.CreateRole(ctx, role))

	got, err := st.RoleByExternalID(ctx, "role-1")
	require.NoError(t, err)
	assert.Equal(t, "42", got.TokenID)

	got.MinBalance = "5"
	require.NoError(t, st.SaveRole(ctx, got))

	roles, err := st.RolesByExternalServerID(ctx, "guild-1")
	require.NoError(t, err)
	require.Len(t, roles, 1)
	assert.Equal(t, "5", roles[0].MinBalance)

	require.NoError(t, st.DeleteRoleByExternalID(ctx, "role-1"))
	_, err = st.RoleByExternalID(ctx, "role-1")
	assert.ErrorIs(t, err, errs.ErrNotFound)
}

func TestEnsureServerConfigIdempotent(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	first, err := st.EnsureServerConfig(ctx, "guild-1")
	require.NoError(t, err)
	second, err := st.EnsureServerConfig(ctx, "guild-1")
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	configs, err := st.ServerConfigs(ctx)
	require.NoError(t, err)
	assert.Len(t, configs, 1)
}

func TestEnsureAdminAccountSeedsOnce(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	created, err := st.EnsureAdminAccount(ctx, "admin", "admin123")
	require.NoError(t, err)
	assert.True(t, created)

	created, err = st.EnsureAdminAccount(ctx, "admin", "admin123")
	require.NoError(t, err)
	assert.False(t, created)

	account, err := st.AccountByUsername(ctx, "admin")
	require.NoError(t, err)
	assert.NotEqual(t, "admin123", account.Password, "password must be stored hashed")
}
