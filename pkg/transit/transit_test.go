package transit

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

func newEngine(t *testing.T) *Engine {
	t.Helper()
	b := barrier.New(storage.NewMemoryBackend())
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	b.Unseal(key)
	return New(b, "transit/default/")
}

func TestCreateKeyThenEncryptDecryptRoundtrip(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()

	require.NoError(t, e.CreateKey(ctx, "orders"))

	ct, err := e.Encrypt(ctx, "orders", []byte("order-42"))
	require.NoError(t, err)
	assert.Contains(t, ct, "vault:v1:")

	pt, err := e.Decrypt(ctx, "orders", ct)
	require.NoError(t, err)
	assert.Equal(t, "order-42", string(pt))
}

func TestCreateKeyTwiceConflicts(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()
	require.NoError(t, e.CreateKey(ctx, "orders"))

	err := e.CreateKey(ctx, "orders")
	assert.True(t, vaulterr.Is(err, vaulterr.Conflict))
}

func TestEncryptUnknownKeyFails(t *testing.T) {
	e := newEngine(t)
	_, err := e.Encrypt(context.Background(), "ghost", []byte("x"))
	assert.True(t, vaulterr.Is(err, vaulterr.NotFound))
}

func TestRotateKeyIncrementsVersionAndOldCiphertextStillDecrypts(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()
	require.NoError(t, e.CreateKey(ctx, "orders"))

	ctV1, err := e.Encrypt(ctx, "orders", []byte("v1-data"))
	require.NoError(t, err)

	v, err := e.RotateKey(ctx, "orders")
	require.NoError(t, err)
	assert.Equal(t, uint32(2), v)

	ctV2, err := e.Encrypt(ctx, "orders", []byte("v2-data"))
	require.NoError(t, err)
	assert.Contains(t, ctV2, "vault:v2:")

	pt1, err := e.Decrypt(ctx, "orders", ctV1)
	require.NoError(t, err)
	assert.Equal(t, "v1-data", string(pt1))
}

func TestDecryptBelowMinVersionRejected(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()
	require.NoError(t, e.CreateKey(ctx, "orders"))

	ctV1, err := e.Encrypt(ctx, "orders", []byte("v1-data"))
	require.NoError(t, err)

	_, err = e.RotateKey(ctx, "orders")
	require.NoError(t, err)

	key, err := e.loadKey(ctx, "orders")
	require.NoError(t, err)
	key.MinDecryptionVersion = 2
	require.NoError(t, e.saveKey(ctx, key))

	_, err = e.Decrypt(ctx, "orders", ctV1)
	assert.True(t, vaulterr.Is(err, vaulterr.InvalidRequest))
}

func TestRewrapProducesNewVersionSamePlaintext(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()
	require.NoError(t, e.CreateKey(ctx, "orders"))

	ctV1, err := e.Encrypt(ctx, "orders", []byte("secret"))
	require.NoError(t, err)
	_, err = e.RotateKey(ctx, "orders")
	require.NoError(t, err)

	rewrapped, err := e.Rewrap(ctx, "orders", ctV1)
	require.NoError(t, err)
	assert.Contains(t, rewrapped, "vault:v2:")

	pt, err := e.Decrypt(ctx, "orders", rewrapped)
	require.NoError(t, err)
	assert.Equal(t, "secret", string(pt))
}

func TestGenerateDataKeyReturnsPlaintextAndWrapped(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()
	require.NoError(t, e.CreateKey(ctx, "orders"))

	dk, err := e.GenerateDataKey(ctx, "orders")
	require.NoError(t, err)
	assert.NotEmpty(t, dk.Plaintext)
	assert.Contains(t, dk.Ciphertext, "vault:v1:")
}

func TestListKeysReturnsCreatedKeys(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()
	require.NoError(t, e.CreateKey(ctx, "a"))
	require.NoError(t, e.CreateKey(ctx, "b"))

	names, err := e.ListKeys(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a", "b"}, names)
}

func TestDecryptMalformedCiphertextRejected(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()
	require.NoError(t, e.CreateKey(ctx, "orders"))

	_, err := e.Decrypt(ctx, "orders", "not-the-right-format")
	assert.True(t, vaulterr.Is(err, vaulterr.InvalidRequest))
}
