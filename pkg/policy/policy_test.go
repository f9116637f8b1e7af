package policy

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/vaultwarren/pkg/barrier"
	"github.com/cuemby/vaultwarren/pkg/crypto"
	"github.com/cuemby/vaultwarren/pkg/storage"
	"github.com/cuemby/vaultwarren/pkg/vaulterr"
)

func newStore(t *testing.T) *Store {
	t.Helper()
	b := barrier.New(storage.NewMemoryBackend())
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	b.Unseal(key)
	return New(b)
}

func TestPutAndGetRoundtrip(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	p := Policy{Name: "dev", Rules: []Rule{{Path: "secret/data/dev/*", Capabilities: []Capability{Read, List}}}}
	require.NoError(t, s.Put(ctx, p))

	got, err := s.Get(ctx, "dev")
	require.NoError(t, err)
	assert.Equal(t, "dev", got.Name)
	require.Len(t, got.Rules, 1)
	assert.Len(t, got.Rules[0].Capabilities, 2)
}

func TestGetNonexistentReturnsNotFound(t *testing.T) {
	s := newStore(t)
	_, err := s.Get(context.Background(), "nonexistent")
	assert.True(t, vaulterr.Is(err, vaulterr.NotFound))
}

func TestDeleteRemovesPolicy(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, Policy{Name: "temp", Rules: []Rule{{Path: "secret/*", Capabilities: []Capability{Read}}}}))
	require.NoError(t, s.Delete(ctx, "temp"))

	_, err := s.Get(ctx, "temp")
	assert.True(t, vaulterr.Is(err, vaulterr.NotFound))
}

func TestPutEmptyRulesRejected(t *testing.T) {
	s := newStore(t)
	err := s.Put(context.Background(), Policy{Name: "empty"})
	assert.True(t, vaulterr.Is(err, vaulterr.InvalidRequest))
}

func TestGetRootReturnsBuiltin(t *testing.T) {
	s := newStore(t)
	root, err := s.Get(context.Background(), "root")
	require.NoError(t, err)
	assert.Equal(t, "root", root.Name)
	require.Len(t, root.Rules, 1)
	assert.Equal(t, "**", root.Rules[0].Path)
	assert.Contains(t, root.Rules[0].Capabilities, Sudo)
}

func TestGetDefaultReturnsBuiltin(t *testing.T) {
	s := newStore(t)
	def, err := s.Get(context.Background(), "default")
	require.NoError(t, err)
	assert.Len(t, def.Rules, 2)
}

func TestCannotModifyBuiltinPolicies(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	err := s.Put(ctx, Policy{Name: "root", Rules: []Rule{{Path: "**", Capabilities: []Capability{Read}}}})
	assert.True(t, vaulterr.Is(err, vaulterr.BuiltIn))

	err = s.Put(ctx, Policy{Name: "default", Rules: []Rule{{Path: "**", Capabilities: []Capability{Read}}}})
	assert.True(t, vaulterr.Is(err, vaulterr.BuiltIn))
}

func TestCannotDeleteBuiltinPolicies(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	assert.True(t, vaulterr.Is(s.Delete(ctx, "root"), vaulterr.BuiltIn))
	assert.True(t, vaulterr.Is(s.Delete(ctx, "default"), vaulterr.BuiltIn))
}

func TestListIncludesBuiltinsAndCustom(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, Policy{Name: "custom", Rules: []Rule{{Path: "secret/*", Capabilities: []Capability{Read}}}}))

	names, err := s.List(ctx)
	require.NoError(t, err)
	assert.Contains(t, names, "root")
	assert.Contains(t, names, "default")
	assert.Contains(t, names, "custom")
}

func TestCheckExactPathGrantsAccess(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, Policy{Name: "exact", Rules: []Rule{{Path: "secret/data/prod/db-password", Capabilities: []Capability{Read}}}}))

	err := s.Check(ctx, []string{"exact"}, "secret/data/prod/db-password", Read)
	assert.NoError(t, err)
}

func TestCheckExactPathDeniesWrongCapability(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, Policy{Name: "readonly", Rules: []Rule{{Path: "secret/data/prod/db-password", Capabilities: []Capability{Read}}}}))

	err := s.Check(ctx, []string{"readonly"}, "secret/data/prod/db-password", Delete)
	assert.True(t, vaulterr.Is(err, vaulterr.Denied))
}

func TestCheckStarGlobMatchesOneLevel(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, Policy{Name: "dev", Rules: []Rule{{Path: "secret/data/dev/*", Capabilities: []Capability{Read, Create}}}}))

	err := s.Check(ctx, []string{"dev"}, "secret/data/dev/api-key", Read)
	assert.NoError(t, err)

	// "*" matches exactly one segment — a deeper path should not match.
	err = s.Check(ctx, []string{"dev"}, "secret/data/dev/nested/api-key", Read)
	assert.True(t, vaulterr.Is(err, vaulterr.Denied))
}

func TestCheckDoubleStarGlobMatchesRecursively(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, Policy{Name: "admin", Rules: []Rule{{Path: "secret/**", Capabilities: []Capability{Read, Create, Delete}}}}))

	err := s.Check(ctx, []string{"admin"}, "secret/data/prod/nested/deep/key", Read)
	assert.NoError(t, err)
}

func TestDenyOverridesGrantInSamePolicy(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, Policy{
		Name: "mixed",
		Rules: []Rule{
			{Path: "secret/**", Capabilities: []Capability{Read}},
			{Path: "secret/data/prod/*", Capabilities: []Capability{Deny}},
		},
	}))

	err := s.Check(ctx, []string{"mixed"}, "secret/data/prod/db-password", Read)
	assert.True(t, vaulterr.Is(err, vaulterr.Denied))
}

func TestDenyOverridesGrantAcrossPolicies(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, Policy{Name: "grant-all", Rules: []Rule{{Path: "secret/**", Capabilities: []Capability{Read, Create}}}}))
	require.NoError(t, s.Put(ctx, Policy{Name: "deny-prod", Rules: []Rule{{Path: "secret/data/prod/*", Capabilities: []Capability{Deny}}}}))

	err := s.Check(ctx, []string{"grant-all", "deny-prod"}, "secret/data/prod/api-key", Read)
	assert.True(t, vaulterr.Is(err, vaulterr.Denied))
}

func TestMultiplePoliciesUnionCapabilities(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, Policy{Name: "reader", Rules: []Rule{{Path: "secret/data/shared/*", Capabilities: []Capability{Read}}}}))
	require.NoError(t, s.Put(ctx, Policy{Name: "writer", Rules: []Rule{{Path: "secret/data/shared/*", Capabilities: []Capability{Create}}}}))

	names := []string{"reader", "writer"}
	assert.NoError(t, s.Check(ctx, names, "secret/data/shared/key", Read))
	assert.NoError(t, s.Check(ctx, names, "secret/data/shared/key", Create))
	assert.True(t, vaulterr.Is(s.Check(ctx, names, "secret/data/shared/key", Delete), vaulterr.Denied))
}

func TestRootPolicyGrantsAllCapabilities(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	for _, cap := range []Capability{Read, List, Create, Update, Delete, Sudo} {
		err := s.Check(ctx, []string{"root"}, "any/arbitrary/path/here", cap)
		assert.NoError(t, err, "root should grant %s", cap)
	}
}

func TestNonexistentPolicyNameIsSkipped(t *testing.T) {
	s := newStore(t)
	err := s.Check(context.Background(), []string{"ghost"}, "secret/data/anything", Read)
	assert.True(t, vaulterr.Is(err, vaulterr.Denied))
}

func TestEmptyPolicyListDeniesAccess(t *testing.T) {
	s := newStore(t)
	err := s.Check(context.Background(), nil, "secret/data/anything", Read)
	assert.True(t, vaulterr.Is(err, vaulterr.Denied))
}
