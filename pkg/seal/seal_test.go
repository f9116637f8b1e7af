package seal

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/vaultwarren/pkg/barrier"
	"github.com/cuemby/vaultwarren/pkg/storage"
	"github.com/cuemby/vaultwarren/pkg/vaulterr"
)

type fakeIssuer struct {
	issued []string
	fail   bool
}

func (f *fakeIssuer) IssueRootToken(ctx context.Context, tokenID string) error {
	if f.fail {
		return assertErr
	}
	f.issued = append(f.issued, tokenID)
	return nil
}

var assertErr = &vaulterr.Error{Kind: vaulterr.Internal, Message: "issuer failed"}

func newManager() (*Manager, *fakeIssuer) {
	b := barrier.New(storage.NewMemoryBackend())
	issuer := &fakeIssuer{}
	return New(b, issuer), issuer
}

func TestInitRejectsBadConfig(t *testing.T) {
	m, _ := newManager()
	ctx := context.Background()

	_, err := m.Init(ctx, Config{Shares: 0, Threshold: 2})
	assert.True(t, vaulterr.Is(err, vaulterr.InvalidConfig))

	_, err = m.Init(ctx, Config{Shares: 5, Threshold: 1})
	assert.True(t, vaulterr.Is(err, vaulterr.InvalidConfig))

	_, err = m.Init(ctx, Config{Shares: 3, Threshold: 5})
	assert.True(t, vaulterr.Is(err, vaulterr.InvalidConfig))
}

func TestInitProducesSharesAndRootToken(t *testing.T) {
	m, issuer := newManager()
	ctx := context.Background()

	result, err := m.Init(ctx, Config{Shares: 5, Threshold: 3})
	require.NoError(t, err)
	assert.Len(t, result.UnsealShares, 5)
	assert.NotEmpty(t, result.RootToken)
	require.Len(t, issuer.issued, 1)
	assert.Equal(t, result.RootToken, issuer.issued[0])
}

func TestInitTwiceFails(t *testing.T) {
	m, _ := newManager()
	ctx := context.Background()

	_, err := m.Init(ctx, Config{Shares: 3, Threshold: 2})
	require.NoError(t, err)

	_, err = m.Init(ctx, Config{Shares: 3, Threshold: 2})
	assert.True(t, vaulterr.Is(err, vaulterr.AlreadyInitialized))
}

func TestInitLeavesVaultSealed(t *testing.T) {
	m, _ := newManager()
	ctx := context.Background()

	_, err := m.Init(ctx, Config{Shares: 3, Threshold: 2})
	require.NoError(t, err)

	status, err := m.Status(ctx)
	require.NoError(t, err)
	assert.True(t, status.Sealed)
	assert.True(t, status.Initialized)
}

func TestSubmitUnsealShareBelowThresholdReportsProgress(t *testing.T) {
	m, _ := newManager()
	ctx := context.Background()

	result, err := m.Init(ctx, Config{Shares: 5, Threshold: 3})
	require.NoError(t, err)

	progress, err := m.SubmitUnsealShare(ctx, result.UnsealShares[0])
	require.NoError(t, err)
	require.NotNil(t, progress)
	assert.Equal(t, 1, progress.Submitted)
	assert.Equal(t, 3, progress.Threshold)

	status, _ := m.Status(ctx)
	assert.True(t, status.Sealed)
}

func TestSubmitUnsealShareAtThresholdUnsealsVault(t *testing.T) {
	m, _ := newManager()
	ctx := context.Background()

	result, err := m.Init(ctx, Config{Shares: 5, Threshold: 3})
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		_, err := m.SubmitUnsealShare(ctx, result.UnsealShares[i])
		require.NoError(t, err)
	}
	progress, err := m.SubmitUnsealShare(ctx, result.UnsealShares[2])
	require.NoError(t, err)
	assert.Nil(t, progress)

	status, err := m.Status(ctx)
	require.NoError(t, err)
	assert.False(t, status.Sealed)
}

func TestSubmitUnsealShareRejectsInvalidBase64(t *testing.T) {
	m, _ := newManager()
	ctx := context.Background()

	_, err := m.Init(ctx, Config{Shares: 3, Threshold: 2})
	require.NoError(t, err)

	_, err = m.SubmitUnsealShare(ctx, "not-valid-base64!!!")
	assert.True(t, vaulterr.Is(err, vaulterr.InvalidShare))
}

func TestSubmitUnsealShareWhenAlreadyUnsealedFails(t *testing.T) {
	m, _ := newManager()
	ctx := context.Background()

	result, err := m.Init(ctx, Config{Shares: 3, Threshold: 2})
	require.NoError(t, err)
	for i := 0; i < 2; i++ {
		_, err := m.SubmitUnsealShare(ctx, result.UnsealShares[i])
		require.NoError(t, err)
	}

	_, err = m.SubmitUnsealShare(ctx, result.UnsealShares[2])
	assert.True(t, vaulterr.Is(err, vaulterr.AlreadyUnsealed))
}

func TestSealRequiresUnsealedVault(t *testing.T) {
	m, _ := newManager()
	ctx := context.Background()

	_, err := m.Init(ctx, Config{Shares: 3, Threshold: 2})
	require.NoError(t, err)

	err = m.Seal()
	assert.True(t, vaulterr.Is(err, vaulterr.AlreadySealed))
}

func TestSealThenUnsealRoundtrips(t *testing.T) {
	m, _ := newManager()
	ctx := context.Background()

	result, err := m.Init(ctx, Config{Shares: 3, Threshold: 2})
	require.NoError(t, err)
	for i := 0; i < 2; i++ {
		_, err := m.SubmitUnsealShare(ctx, result.UnsealShares[i])
		require.NoError(t, err)
	}

	require.NoError(t, m.Seal())

	status, err := m.Status(ctx)
	require.NoError(t, err)
	assert.True(t, status.Sealed)

	for i := 0; i < 2; i++ {
		_, err := m.SubmitUnsealShare(ctx, result.UnsealShares[i])
		require.NoError(t, err)
	}
	status, err = m.Status(ctx)
	require.NoError(t, err)
	assert.False(t, status.Sealed)
}

func TestStatusBeforeInitReportsUninitialized(t *testing.T) {
	m, _ := newManager()
	status, err := m.Status(context.Background())
	require.NoError(t, err)
	assert.False(t, status.Initialized)
	assert.True(t, status.Sealed)
}
