// Package seal implements the vault's initialization and unseal lifecycle:
// generating the root and unseal keys, splitting the unseal key into
// Shamir shares, and reconstructing it from operator-submitted shares.
package seal

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/hashicorp/vault/shamir"

	"github.com/cuemby/vaultwarren/pkg/barrier"
	"github.com/cuemby/vaultwarren/pkg/crypto"
	"github.com/cuemby/vaultwarren/pkg/log"
	"github.com/cuemby/vaultwarren/pkg/metrics"
	"github.com/cuemby/vaultwarren/pkg/vaulterr"
)

const (
	// RootKeyPath is the barrier key holding the root key, encrypted under
	// the unseal key, written via PutRaw.
	RootKeyPath = "sys/seal/root_key"

	// ConfigPath is the barrier key holding the seal configuration
	// (shares/threshold), written via PutRaw as non-sensitive metadata.
	ConfigPath = "sys/seal/config"

	minShares    = 1
	maxShares    = 10
	minThreshold = 2
)

// Config describes how the unseal key is split.
type Config struct {
	Shares    int `json:"shares"`
	Threshold int `json:"threshold"`
}

func (c Config) validate() error {
	if c.Shares < minShares || c.Shares > maxShares {
		return vaulterr.Newf(vaulterr.InvalidConfig, "shares must be between %d and %d, got %d", minShares, maxShares, c.Shares)
	}
	if c.Threshold < minThreshold {
		return vaulterr.Newf(vaulterr.InvalidConfig, "threshold must be at least %d, got %d", minThreshold, c.Threshold)
	}
	if c.Threshold > c.Shares {
		return vaulterr.Newf(vaulterr.InvalidConfig, "threshold (%d) cannot exceed shares (%d)", c.Threshold, c.Shares)
	}
	return nil
}

// InitResult is returned once, at initialization time. The unseal shares
// must be distributed to operators and the root token recorded; neither
// is ever recoverable from the vault afterward.
type InitResult struct {
	UnsealShares []string `json:"unseal_shares"`
	RootToken    string   `json:"root_token"`
}

// UnsealProgress reports how many shares have been submitted toward the
// configured threshold during an in-progress unseal.
type UnsealProgress struct {
	Threshold int `json:"threshold"`
	Submitted int `json:"submitted"`
}

// Status summarizes the current seal state for the sys/seal-status route.
type Status struct {
	Initialized bool `json:"initialized"`
	Sealed      bool `json:"sealed"`
	Threshold   int  `json:"threshold,omitempty"`
	Shares      int  `json:"shares,omitempty"`
	Progress    int  `json:"progress,omitempty"`
}

// RootTokenIssuer persists the root token record the moment init() has a
// root key in hand. The seal package depends on this interface rather than
// importing the token package directly, avoiding a seal<->token import
// cycle (the token store itself lives behind the barrier this package
// unseals).
type RootTokenIssuer interface {
	IssueRootToken(ctx context.Context, tokenID string) error
}

// Manager owns the seal/unseal state machine for a single barrier.
type Manager struct {
	barrier *barrier.Barrier
	issuer  RootTokenIssuer

	mu      sync.Mutex
	pending [][]byte
}

// New returns a Manager wrapping barrier. issuer is invoked during init()
// to durably record the freshly-minted root token.
func New(b *barrier.Barrier, issuer RootTokenIssuer) *Manager {
	return &Manager{barrier: b, issuer: issuer}
}

// Init generates the root and unseal keys, splits the unseal key into
// Shamir shares, persists the encrypted root key and seal config, mints
// and persists a root token, then leaves the vault sealed.
//
// Persisting the root token requires a write through the barrier, which
// only accepts writes while unsealed — so Init performs a brief internal
// unseal/write/reseal around that single operation. The root key and
// unseal key never leave this function; the unseal key is never stored at
// all, only split into shares.
func (m *Manager) Init(ctx context.Context, cfg Config) (*InitResult, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	if initialized, err := m.isInitialized(ctx); err != nil {
		return nil, err
	} else if initialized {
		return nil, vaulterr.New(vaulterr.AlreadyInitialized, "vault is already initialized")
	}

	rootKey, err := crypto.GenerateKey()
	if err != nil {
		return nil, vaulterr.Wrap(vaulterr.Crypto, err, "generate root key")
	}
	unsealKey, err := crypto.GenerateKey()
	if err != nil {
		return nil, vaulterr.Wrap(vaulterr.Crypto, err, "generate unseal key")
	}
	defer unsealKey.Zero()

	encryptedRoot, err := crypto.Encrypt(unsealKey, rootKey[:])
	if err != nil {
		return nil, vaulterr.Wrap(vaulterr.Crypto, err, "encrypt root key")
	}

	shareBytes, err := shamir.Split(unsealKey[:], cfg.Shares, cfg.Threshold)
	if err != nil {
		return nil, vaulterr.Wrap(vaulterr.Crypto, err, "split unseal key")
	}
	shares := make([]string, len(shareBytes))
	for i, s := range shareBytes {
		shares[i] = base64.StdEncoding.EncodeToString(s)
	}

	if err := m.barrier.PutRaw(ctx, RootKeyPath, encryptedRoot); err != nil {
		return nil, err
	}

	configJSON, err := json.Marshal(cfg)
	if err != nil {
		return nil, vaulterr.Wrap(vaulterr.Internal, err, "marshal seal config")
	}
	if err := m.barrier.PutRaw(ctx, ConfigPath, configJSON); err != nil {
		return nil, err
	}

	rootToken := uuid.New().String()

	// Temporarily unseal to persist the root token record, then reseal so
	// Init leaves the vault in the same sealed state a fresh process would
	// observe after restart.
	m.barrier.Unseal(rootKey)
	issueErr := m.issuer.IssueRootToken(ctx, rootToken)
	m.barrier.Seal()
	if issueErr != nil {
		return nil, vaulterr.Wrap(vaulterr.Internal, issueErr, "persist root token")
	}

	metrics.Initialized.Set(1)
	metrics.Sealed.Set(1)
	log.Info("vault initialized")

	return &InitResult{UnsealShares: shares, RootToken: rootToken}, nil
}

// SubmitUnsealShare accumulates one Shamir share. Once the configured
// threshold is reached it reconstructs the unseal key, decrypts the root
// key, and unseals the barrier. Invalid shares (malformed base64) are
// rejected without being added to the pending buffer.
func (m *Manager) SubmitUnsealShare(ctx context.Context, shareB64 string) (*UnsealProgress, error) {
	cfg, err := m.loadConfig(ctx)
	if err != nil {
		return nil, err
	}
	if m.barrier.IsUnsealed() {
		return nil, vaulterr.New(vaulterr.AlreadyUnsealed, "vault is already unsealed")
	}

	share, err := base64.StdEncoding.DecodeString(shareB64)
	if err != nil {
		return nil, vaulterr.Wrap(vaulterr.InvalidShare, err, "share is not valid base64")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.pending = append(m.pending, share)
	if len(m.pending) < cfg.Threshold {
		metrics.UnsealProgress.Set(float64(len(m.pending)))
		return &UnsealProgress{Threshold: cfg.Threshold, Submitted: len(m.pending)}, nil
	}

	submitted := m.pending
	m.pending = nil

	unsealKey, err := shamir.Combine(submitted)
	if err != nil {
		return nil, vaulterr.Wrap(vaulterr.RecoveryFailed, err, "reconstruct unseal key from shares")
	}
	defer zero(unsealKey)

	var key crypto.Key
	if len(unsealKey) != crypto.KeySize {
		return nil, vaulterr.Newf(vaulterr.RecoveryFailed, "reconstructed key has unexpected length %d", len(unsealKey))
	}
	copy(key[:], unsealKey)

	encryptedRoot, err := m.barrier.GetRaw(ctx, RootKeyPath)
	if err != nil {
		return nil, err
	}
	if encryptedRoot == nil {
		return nil, vaulterr.New(vaulterr.NotInitialized, "no root key stored")
	}

	rootKeyBytes, err := crypto.Decrypt(key, encryptedRoot)
	if err != nil {
		return nil, vaulterr.Wrap(vaulterr.RootKeyDecryption, err, "decrypt root key with reconstructed unseal key")
	}
	defer zero(rootKeyBytes)

	var rootKey crypto.Key
	copy(rootKey[:], rootKeyBytes)

	m.barrier.Unseal(rootKey)
	metrics.Sealed.Set(0)
	metrics.UnsealProgress.Set(0)
	log.Info("vault unsealed")

	return nil, nil
}

// Seal re-seals an already-unsealed vault, clearing any in-progress
// unseal submission. Unlike the original reference, this is not idempotent:
// sealing an already-sealed vault is an error, matching the spec's state
// machine (every other transition is equally strict).
func (m *Manager) Seal() error {
	if !m.barrier.IsUnsealed() {
		return vaulterr.New(vaulterr.AlreadySealed, "vault is already sealed")
	}
	m.mu.Lock()
	m.pending = nil
	m.mu.Unlock()

	m.barrier.Seal()
	metrics.Sealed.Set(1)
	metrics.UnsealProgress.Set(0)
	log.Info("vault sealed")
	return nil
}

// Status reports the current initialized/sealed state and, while an
// unseal is in progress, how many shares have been submitted.
func (m *Manager) Status(ctx context.Context) (*Status, error) {
	initialized, err := m.isInitialized(ctx)
	if err != nil {
		return nil, err
	}
	if !initialized {
		return &Status{Initialized: false, Sealed: true}, nil
	}

	cfg, err := m.loadConfig(ctx)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	progress := len(m.pending)
	m.mu.Unlock()

	return &Status{
		Initialized: true,
		Sealed:      !m.barrier.IsUnsealed(),
		Threshold:   cfg.Threshold,
		Shares:      cfg.Shares,
		Progress:    progress,
	}, nil
}

func (m *Manager) isInitialized(ctx context.Context) (bool, error) {
	v, err := m.barrier.GetRaw(ctx, RootKeyPath)
	if err != nil {
		return false, err
	}
	return v != nil, nil
}

func (m *Manager) loadConfig(ctx context.Context) (Config, error) {
	data, err := m.barrier.GetRaw(ctx, ConfigPath)
	if err != nil {
		return Config{}, err
	}
	if data == nil {
		return Config{}, vaulterr.New(vaulterr.NotInitialized, "vault has not been initialized")
	}
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return Config{}, vaulterr.Wrap(vaulterr.Internal, err, fmt.Sprintf("unmarshal seal config at %s", ConfigPath))
	}
	return cfg, nil
}

func zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
