package token

import (
	"context"
	"testing"
	"time"

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

func TestCreateAndLookup(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	tok, secret, err := s.Create(ctx, CreateParams{Policies: []string{"default"}, DisplayName: "svc-a"})
	require.NoError(t, err)
	assert.NotEmpty(t, secret)
	assert.Equal(t, Accessor(secret), tok.Accessor)

	got, err := s.Lookup(ctx, secret)
	require.NoError(t, err)
	assert.Equal(t, tok.Accessor, got.Accessor)
	assert.Equal(t, []string{"default"}, got.Policies)
}

func TestLookupUnknownSecretDenied(t *testing.T) {
	s := newStore(t)
	_, err := s.Lookup(context.Background(), "not-a-real-secret")
	assert.True(t, vaulterr.Is(err, vaulterr.Denied))
}

func TestLookupExpiredTokenDenied(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	_, secret, err := s.Create(ctx, CreateParams{Policies: []string{"default"}, TTL: -time.Second})
	require.NoError(t, err)

	_, err = s.Lookup(ctx, secret)
	assert.True(t, vaulterr.Is(err, vaulterr.Denied))
}

func TestCreateWithParentRecordsLineage(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	_, parentSecret, err := s.Create(ctx, CreateParams{Policies: []string{"default"}})
	require.NoError(t, err)

	child, _, err := s.Create(ctx, CreateParams{Policies: []string{"default"}, Parent: parentSecret})
	require.NoError(t, err)
	assert.Equal(t, Accessor(parentSecret), child.ParentAccessor)
}

func TestRevokeCascadesToChildren(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	_, parentSecret, err := s.Create(ctx, CreateParams{Policies: []string{"default"}})
	require.NoError(t, err)
	_, childSecret, err := s.Create(ctx, CreateParams{Policies: []string{"default"}, Parent: parentSecret})
	require.NoError(t, err)

	require.NoError(t, s.Revoke(ctx, parentSecret))

	_, err = s.Lookup(ctx, parentSecret)
	assert.True(t, vaulterr.Is(err, vaulterr.Denied))
	_, err = s.Lookup(ctx, childSecret)
	assert.True(t, vaulterr.Is(err, vaulterr.Denied))
}

func TestRevokeUnknownSecretFails(t *testing.T) {
	s := newStore(t)
	err := s.Revoke(context.Background(), "nonexistent")
	assert.True(t, vaulterr.Is(err, vaulterr.Denied))
}

func TestRenewRequiresRenewableFlag(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	_, secret, err := s.Create(ctx, CreateParams{Policies: []string{"default"}, TTL: time.Minute})
	require.NoError(t, err)

	_, err = s.Renew(ctx, secret)
	assert.True(t, vaulterr.Is(err, vaulterr.InvalidRequest))
}

func TestRenewExtendsExpiry(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	tok, secret, err := s.Create(ctx, CreateParams{Policies: []string{"default"}, TTL: time.Minute, Renewable: true})
	require.NoError(t, err)
	originalExpiry := *tok.ExpiresAt

	time.Sleep(time.Millisecond)
	renewed, err := s.Renew(ctx, secret)
	require.NoError(t, err)
	assert.True(t, renewed.ExpiresAt.After(originalExpiry) || renewed.ExpiresAt.Equal(originalExpiry))
}

func TestIssueRootTokenGrantsRootPolicy(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	require.NoError(t, s.IssueRootToken(ctx, "a-fixed-root-secret"))

	tok, err := s.Lookup(ctx, "a-fixed-root-secret")
	require.NoError(t, err)
	assert.Equal(t, []string{"root"}, tok.Policies)
}
