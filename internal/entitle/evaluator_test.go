package entitle

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"tokengate/internal/model"
	"tokengate/internal/registry"
)

type fakeLedger struct {
	abiCalls   int
	abiErr     error
	owner      string
	ownerErr   error
	balances   map[string]*big.Int
	balanceErr error
	uri        string
	uriCalls   int
	meta       map[string]any
	metaErr    error
}

var _ Ledger = (*fakeLedger)(nil)

func (f *fakeLedger) ABI(_ context.Context, _ string) (string, error) {
	f.abiCalls++
	return "[]", f.abiErr
}

func (f *fakeLedger) OwnerOf(_ context.Context, _, _, _ string) (string, error) {
	return f.owner, f.ownerErr
}

func (f *fakeLedger) BalanceOf(_ context.Context, _, _, address string) (*big.Int, error) {
	if f.balanceErr != nil {
		return nil, f.balanceErr
	}
	if b, ok := f.balances[address]; ok {
		return b, nil
	}
	return big.NewInt(0), nil
}

func (f *fakeLedger) TokenURI(_ context.Context, _, _, _ string) (string, error) {
	f.uriCalls++
	return f.uri, nil
}

func (f *fakeLedger) FetchMetadata(_ context.Context, _ string) (map[string]any, error) {
	return f.meta, f.metaErr
}

type fakeRegistry struct {
	records map[string]registry.Record
	err     error
}

var _ Registry = (*fakeRegistry)(nil)

func (f *fakeRegistry) Record(_ context.Context, _, _, address string) (registry.Record, error) {
	if f.err != nil {
		return registry.Record{}, f.err
	}
	return f.records[address], nil
}

func holders(ethAddrs ...string) []model.Holder {
	out := make([]model.Holder, 0, len(ethAddrs))
	for _, a := range ethAddrs {
		out = append(out, model.Holder{Address: a, EthAddress: a})
	}
	return out
}

func newEvaluator(ledger *fakeLedger, reg *fakeRegistry) *Evaluator {
	if reg == nil {
		reg = &fakeRegistry{}
	}
	return New(ledger, reg, zap.NewNop().Sugar())
}

func TestEntitledTokenOwner(t *testing.T) {
	ledger := &fakeLedger{owner: "0xAbC0000000000000000000000000000000000001"}
	e := newEvaluator(ledger, nil)

	role := model.Role{TokenID: "7"}

	ok, err := e.Entitled(context.Background(), role, "", holders("0xabc0000000000000000000000000000000000001"), false)
	require.NoError(t, err)
	assert.True(t, ok, "owner match is case-insensitive")

	ok, err = e.Entitled(context.Background(), role, "", holders("0x0000000000000000000000000000000000000002"), false)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestEntitledMinBalanceBoundary(t *testing.T) {
	ledger := &fakeLedger{balances: map[string]*big.Int{
		"0xa1": big.NewInt(5),
		"0xa2": big.NewInt(4),
	}}
	e := newEvaluator(ledger, nil)

	role := model.Role{MinBalance: "5"}

	ok, err := e.Entitled(context.Background(), role, "", holders("0xa1"), false)
	require.NoError(t, err)
	assert.True(t, ok, "balance exactly at the threshold qualifies")

	ok, err = e.Entitled(context.Background(), role, "", holders("0xa2"), false)
	require.NoError(t, err)
	assert.False(t, ok, "balance below the threshold does not qualify")
}

func TestEntitledMinBalanceOverridesTokenOwner(t *testing.T) {
	ledger := &fakeLedger{
		owner:    "0xa1",
		balances: map[string]*big.Int{"0xa1": big.NewInt(10)},
	}
	e := newEvaluator(ledger, nil)

	// Owner matches but the balance condition takes over and fails.
	role := model.Role{TokenID: "7", MinBalance: "100"}
	ok, err := e.Entitled(context.Background(), role, "", holders("0xa1"), false)
	require.NoError(t, err)
	assert.False(t, ok)

	// And the other way around: owner mismatch, balance qualifies.
	role = model.Role{TokenID: "7", MinBalance: "10"}
	ok, err = e.Entitled(context.Background(), role, "", holders("0xa1"), false)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestEntitledMetaCondition(t *testing.T) {
	ledger := &fakeLedger{
		uri: "https://meta.example/7",
		meta: map[string]any{
			"attributes": map[string]any{"tier": "gold", "rank": 9},
		},
	}
	e := newEvaluator(ledger, nil)

	role := model.Role{TokenID: "7", MetaCondition: `attributes.tier == "gold"`}
	ok, err := e.Entitled(context.Background(), role, "", holders("0xa1"), false)
	require.NoError(t, err)
	assert.True(t, ok)

	role.MetaCondition = `attributes.rank > 100`
	ok, err = e.Entitled(context.Background(), role, "", holders("0xa1"), false)
	require.NoError(t, err)
	assert.False(t, ok)

	// Referencing a missing field is "not entitled", not an error.
	role.MetaCondition = `missing.field == 1`
	ok, err = e.Entitled(context.Background(), role, "", holders("0xa1"), false)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestEntitledRegistryMembership(t *testing.T) {
	reg := &fakeRegistry{records: map[string]registry.Record{
		"rebus1active":   {Exists: true, Active: true},
		"rebus1inactive": {Exists: true, Active: false},
	}}
	e := newEvaluator(&fakeLedger{}, reg)

	role := model.Role{RegistryID: "v1,someorg,true"}

	ok, err := e.Entitled(context.Background(), role, "", []model.Holder{{Address: "rebus1active"}}, false)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = e.Entitled(context.Background(), role, "", []model.Holder{{Address: "rebus1inactive"}}, false)
	require.NoError(t, err)
	assert.False(t, ok, "inactive record fails when activation is required")

	role.RegistryID = "v1,someorg,false"
	ok, err = e.Entitled(context.Background(), role, "", []model.Holder{{Address: "rebus1inactive"}}, false)
	require.NoError(t, err)
	assert.True(t, ok, "inactive record qualifies when activation is not required")

	ok, err = e.Entitled(context.Background(), role, "", []model.Holder{{Address: "rebus1unknown"}}, false)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestEntitledDeletedShortCircuits(t *testing.T) {
	ledger := &fakeLedger{owner: "0xa1"}
	e := newEvaluator(ledger, nil)

	role := model.Role{TokenID: "7"}
	ok, err := e.Entitled(context.Background(), role, "", holders("0xa1"), true)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Zero(t, ledger.abiCalls, "deleted roles must not hit the ledger")
}

func TestEntitledNoConditions(t *testing.T) {
	e := newEvaluator(&fakeLedger{}, nil)
	ok, err := e.Entitled(context.Background(), model.Role{}, "", holders("0xa1"), false)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestEntitledExternalFailurePropagates(t *testing.T) {
	boom := errors.New("rpc down")
	ledger := &fakeLedger{ownerErr: boom}
	e := newEvaluator(ledger, nil)

	_, err := e.Entitled(context.Background(), model.Role{TokenID: "7"}, "", holders("0xa1"), false)
	assert.ErrorIs(t, err, boom)
}

func TestContractABICached(t *testing.T) {
	ledger := &fakeLedger{owner: "0xa1"}
	e := newEvaluator(ledger, nil)

	role := model.Role{TokenID: "7"}
	for i := 0; i < 3; i++ {
		_, err := e.Entitled(context.Background(), role, "0xc0ffee", holders("0xa1"), false)
		require.NoError(t, err)
	}
	assert.Equal(t, 1, ledger.abiCalls, "ABI is fetched once inside the freshness window")
}

func TestTokenMetaCached(t *testing.T) {
	ledger := &fakeLedger{
		uri:  "https://meta.example/7",
		meta: map[string]any{"tier": "gold"},
	}
	e := newEvaluator(ledger, nil)

	role := model.Role{TokenID: "7", MetaCondition: `tier == "gold"`}
	for i := 0; i < 3; i++ {
		ok, err := e.Entitled(context.Background(), role, "", holders("0xa1"), false)
		require.NoError(t, err)
		assert.True(t, ok)
	}
	assert.Equal(t, 1, ledger.uriCalls, "metadata is fetched once inside the freshness window")
}
