// Package barrier implements the encryption barrier: the single choke
// point every byte passes through on its way to or from the storage
// backend. The storage layer only ever sees ciphertext.
//
// When sealed, the barrier rejects every encrypted operation with
// vaulterr.Sealed; the raw primitives (PutRaw, GetRaw) and
// Snapshot/Restore bypass encryption and work in either state.
// Unsealing supplies the root key; sealing wipes it from memory.
package barrier

import (
	"context"
	"sort"
	"sync"

	"github.com/cuemby/vaultwarren/pkg/crypto"
	"github.com/cuemby/vaultwarren/pkg/log"
	"github.com/cuemby/vaultwarren/pkg/metrics"
	"github.com/cuemby/vaultwarren/pkg/storage"
	"github.com/cuemby/vaultwarren/pkg/vaulterr"
)

// Barrier wraps a storage.Backend, transparently encrypting every value
// that crosses it. The root key lives only in process memory while
// unsealed, guarded by a read/write lock so reads never block each other
// and an unseal/seal never races a read.
type Barrier struct {
	storage storage.Backend

	mu  sync.RWMutex
	key *crypto.Key // nil when sealed
}

// New wraps storage in a sealed Barrier.
func New(backend storage.Backend) *Barrier {
	return &Barrier{storage: backend}
}

// Unseal installs the root key, making all read/write operations succeed.
func (b *Barrier) Unseal(key crypto.Key) {
	b.mu.Lock()
	defer b.mu.Unlock()
	k := key
	b.key = &k
}

// Seal zeroizes the root key and rejects all subsequent operations until
// the next Unseal.
func (b *Barrier) Seal() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.key != nil {
		b.key.Zero()
		b.key = nil
	}
}

// IsUnsealed reports whether the barrier currently holds a root key.
func (b *Barrier) IsUnsealed() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.key != nil
}

// rootKey returns a copy of the current root key, or vaulterr.Sealed if
// none is installed. The lock is released before any storage I/O —
// callers never hold it across an await-equivalent.
func (b *Barrier) rootKey() (crypto.Key, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.key == nil {
		return crypto.Key{}, vaulterr.New(vaulterr.Sealed, "vault is sealed")
	}
	return *b.key, nil
}

// Get reads key, decrypting its stored value. Returns (nil, nil) if key
// does not exist.
func (b *Barrier) Get(ctx context.Context, key string) ([]byte, error) {
	timer := metrics.NewTimer()
	defer timer.ObserveDurationVec(metrics.BarrierOpDuration, "get")

	root, err := b.rootKey()
	if err != nil {
		metrics.BarrierOpsTotal.WithLabelValues("get", "sealed").Inc()
		return nil, err
	}

	encrypted, err := b.storage.Get(ctx, key)
	if err != nil {
		metrics.BarrierOpsTotal.WithLabelValues("get", "storage_error").Inc()
		return nil, vaulterr.Wrap(vaulterr.Storage, err, "barrier: storage get")
	}
	if encrypted == nil {
		metrics.BarrierOpsTotal.WithLabelValues("get", "not_found").Inc()
		return nil, nil
	}

	plaintext, err := crypto.Decrypt(root, encrypted)
	if err != nil {
		metrics.BarrierOpsTotal.WithLabelValues("get", "crypto_error").Inc()
		return nil, vaulterr.Wrap(vaulterr.Crypto, err, "barrier: decrypt")
	}

	metrics.BarrierOpsTotal.WithLabelValues("get", "ok").Inc()
	return plaintext, nil
}

// Put encrypts value and writes it at key.
func (b *Barrier) Put(ctx context.Context, key string, value []byte) error {
	timer := metrics.NewTimer()
	defer timer.ObserveDurationVec(metrics.BarrierOpDuration, "put")

	root, err := b.rootKey()
	if err != nil {
		metrics.BarrierOpsTotal.WithLabelValues("put", "sealed").Inc()
		return err
	}

	ciphertext, err := crypto.Encrypt(root, value)
	if err != nil {
		metrics.BarrierOpsTotal.WithLabelValues("put", "crypto_error").Inc()
		return vaulterr.Wrap(vaulterr.Crypto, err, "barrier: encrypt")
	}

	if err := b.storage.Put(ctx, key, ciphertext); err != nil {
		metrics.BarrierOpsTotal.WithLabelValues("put", "storage_error").Inc()
		return vaulterr.Wrap(vaulterr.Storage, err, "barrier: storage put")
	}

	metrics.BarrierOpsTotal.WithLabelValues("put", "ok").Inc()
	return nil
}

// Delete removes key. It is not an error if key does not exist.
func (b *Barrier) Delete(ctx context.Context, key string) error {
	if _, err := b.rootKey(); err != nil {
		return err
	}
	if err := b.storage.Delete(ctx, key); err != nil {
		return vaulterr.Wrap(vaulterr.Storage, err, "barrier: storage delete")
	}
	return nil
}

// List returns every key with the given prefix. Keys are not encrypted,
// so this needs no index beyond the storage backend's own.
func (b *Barrier) List(ctx context.Context, prefix string) ([]string, error) {
	if _, err := b.rootKey(); err != nil {
		return nil, err
	}
	keys, err := b.storage.List(ctx, prefix)
	if err != nil {
		return nil, vaulterr.Wrap(vaulterr.Storage, err, "barrier: storage list")
	}
	sort.Strings(keys)
	return keys, nil
}

// Exists reports whether key is present.
func (b *Barrier) Exists(ctx context.Context, key string) (bool, error) {
	if _, err := b.rootKey(); err != nil {
		return false, err
	}
	ok, err := b.storage.Exists(ctx, key)
	if err != nil {
		return false, vaulterr.Wrap(vaulterr.Storage, err, "barrier: storage exists")
	}
	return ok, nil
}

// PutRaw writes value at key without encryption. Used only for the two
// bootstrap entries that must be readable before the barrier is unsealed:
// the encrypted root key and the seal configuration.
func (b *Barrier) PutRaw(ctx context.Context, key string, value []byte) error {
	if err := b.storage.Put(ctx, key, value); err != nil {
		return vaulterr.Wrap(vaulterr.Storage, err, "barrier: storage put_raw")
	}
	return nil
}

// GetRaw reads key without decryption. See PutRaw.
func (b *Barrier) GetRaw(ctx context.Context, key string) ([]byte, error) {
	v, err := b.storage.Get(ctx, key)
	if err != nil {
		return nil, vaulterr.Wrap(vaulterr.Storage, err, "barrier: storage get_raw")
	}
	return v, nil
}

// Snapshot dumps every stored key and its raw ciphertext, for the backup
// endpoint. No decryption happens here — a snapshot is only ever useful
// restored into a vault unsealed with the same root key.
func (b *Barrier) Snapshot(ctx context.Context) (map[string][]byte, error) {
	keys, err := b.storage.List(ctx, "")
	if err != nil {
		return nil, vaulterr.Wrap(vaulterr.Storage, err, "barrier: storage list for snapshot")
	}

	out := make(map[string][]byte, len(keys))
	for _, k := range keys {
		v, err := b.storage.Get(ctx, k)
		if err != nil {
			return nil, vaulterr.Wrap(vaulterr.Storage, err, "barrier: storage get for snapshot")
		}
		out[k] = v
	}
	return out, nil
}

// Restore writes a snapshot produced by Snapshot back into storage
// verbatim. It does not touch the root key slot — the vault must still be
// unsealed (or re-initialized) with a key matching the restored data.
func (b *Barrier) Restore(ctx context.Context, snapshot map[string][]byte) error {
	for k, v := range snapshot {
		if err := b.storage.Put(ctx, k, v); err != nil {
			return vaulterr.Wrap(vaulterr.Storage, err, "barrier: storage put during restore")
		}
	}
	return nil
}

// Close releases the underlying storage backend. Callers should Seal
// before Close so key material does not outlive the barrier.
func (b *Barrier) Close() error {
	log.Debug("barrier closing")
	return b.storage.Close()
}
