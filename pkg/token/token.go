// Package token implements the vault's token store: the credential every
// request authenticates with. Tokens are opaque 128-bit random secrets;
// only a SHA-256 hash of the secret is ever written to storage, so a
// storage-backend compromise does not expose usable credentials.
package token

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/cuemby/vaultwarren/pkg/barrier"
	"github.com/cuemby/vaultwarren/pkg/log"
	"github.com/cuemby/vaultwarren/pkg/vaulterr"
)

const (
	secretBytes = 16 // 128 bits

	entryPrefix    = "sys/tokens/"
	childrenPrefix = "sys/token/children/"
)

// Token is the metadata record associated with a secret. The raw secret
// itself is never stored; Accessor is its SHA-256 hash, hex-encoded, and
// safe to log or return in list responses.
type Token struct {
	Accessor       string            `json:"accessor"`
	Policies       []string          `json:"policies"`
	DisplayName    string            `json:"display_name"`
	TTL            time.Duration     `json:"ttl"`
	Renewable      bool              `json:"renewable"`
	ParentAccessor string            `json:"parent_accessor,omitempty"`
	Metadata       map[string]string `json:"metadata,omitempty"`
	CreatedAt      time.Time         `json:"created_at"`
	ExpiresAt      *time.Time        `json:"expires_at,omitempty"`
}

func (t *Token) expired(now time.Time) bool {
	return t.ExpiresAt != nil && now.After(*t.ExpiresAt)
}

// CreateParams describes a new token to mint.
type CreateParams struct {
	Policies    []string
	DisplayName string
	TTL         time.Duration
	Renewable   bool
	Parent      string // raw secret of the parent token, for lineage; empty for a root/orphan token
	Metadata    map[string]string
}

// Store persists Token records behind a barrier, hashing secrets before
// they ever touch storage.
type Store struct {
	barrier *barrier.Barrier
}

// New returns a Store backed by b.
func New(b *barrier.Barrier) *Store {
	return &Store{barrier: b}
}

// GenerateSecret returns a fresh 128-bit random token secret, hex-encoded.
func GenerateSecret() (string, error) {
	buf := make([]byte, secretBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", vaulterr.Wrap(vaulterr.Crypto, err, "generate token secret")
	}
	return hex.EncodeToString(buf), nil
}

// Accessor returns the storage-safe hash of a raw secret.
func Accessor(secret string) string {
	sum := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(sum[:])
}

// Create mints a new token secret and persists its metadata.
func (s *Store) Create(ctx context.Context, params CreateParams) (*Token, string, error) {
	secret, err := GenerateSecret()
	if err != nil {
		return nil, "", err
	}
	tok, err := s.createWithSecret(ctx, secret, params)
	if err != nil {
		return nil, "", err
	}
	return tok, secret, nil
}

// CreateWithSecret persists metadata for a caller-supplied secret. This
// exists solely for the initialization path, where the root token's value
// is returned to the operator before the token store has a chance to
// generate it independently, so the two must agree.
func (s *Store) CreateWithSecret(ctx context.Context, secret string, params CreateParams) (*Token, error) {
	return s.createWithSecret(ctx, secret, params)
}

// IssueRootToken satisfies seal.RootTokenIssuer, minting the vault's
// first token with the built-in root policy.
func (s *Store) IssueRootToken(ctx context.Context, tokenID string) error {
	_, err := s.CreateWithSecret(ctx, tokenID, CreateParams{
		Policies:    []string{"root"},
		DisplayName: "root",
		Renewable:   false,
	})
	return err
}

func (s *Store) createWithSecret(ctx context.Context, secret string, params CreateParams) (*Token, error) {
	accessor := Accessor(secret)
	now := time.Now()

	tok := &Token{
		Accessor:    accessor,
		Policies:    params.Policies,
		DisplayName: params.DisplayName,
		TTL:         params.TTL,
		Renewable:   params.Renewable,
		Metadata:    params.Metadata,
		CreatedAt:   now,
	}
	if params.TTL > 0 {
		exp := now.Add(params.TTL)
		tok.ExpiresAt = &exp
	}

	if params.Parent != "" {
		parent, err := s.Lookup(ctx, params.Parent)
		if err != nil {
			return nil, err
		}
		tok.ParentAccessor = parent.Accessor
	}

	if err := s.put(ctx, tok); err != nil {
		return nil, err
	}

	if tok.ParentAccessor != "" {
		childKey := childrenPrefix + tok.ParentAccessor + "/" + accessor
		if err := s.barrier.Put(ctx, childKey, nil); err != nil {
			return nil, err
		}
	}

	log.WithTokenID(accessor).Info().Msg("token created")
	return tok, nil
}

// Lookup resolves a raw secret to its Token record, returning
// vaulterr.Denied if the secret is unknown or has expired. Denied rather
// than NotFound: an invalid credential must not be distinguishable from
// a valid-but-unauthorized one at this layer.
func (s *Store) Lookup(ctx context.Context, secret string) (*Token, error) {
	accessor := Accessor(secret)
	tok, err := s.lookupByAccessor(ctx, accessor)
	if err != nil {
		return nil, err
	}
	if tok.expired(time.Now()) {
		return nil, vaulterr.New(vaulterr.Denied, "token has expired")
	}
	return tok, nil
}

func (s *Store) lookupByAccessor(ctx context.Context, accessor string) (*Token, error) {
	data, err := s.barrier.Get(ctx, entryPrefix+accessor)
	if err != nil {
		return nil, err
	}
	if data == nil {
		return nil, vaulterr.New(vaulterr.Denied, "unknown token")
	}
	var tok Token
	if err := json.Unmarshal(data, &tok); err != nil {
		return nil, vaulterr.Wrap(vaulterr.Internal, err, "unmarshal token entry")
	}
	return &tok, nil
}

func (s *Store) put(ctx context.Context, tok *Token) error {
	data, err := json.Marshal(tok)
	if err != nil {
		return vaulterr.Wrap(vaulterr.Internal, err, "marshal token entry")
	}
	return s.barrier.Put(ctx, entryPrefix+tok.Accessor, data)
}

// Revoke deletes the token identified by secret and, recursively, every
// token issued beneath it in the parent/child lineage.
func (s *Store) Revoke(ctx context.Context, secret string) error {
	accessor := Accessor(secret)
	if _, err := s.lookupByAccessor(ctx, accessor); err != nil {
		return err
	}
	return s.revokeAccessor(ctx, accessor)
}

func (s *Store) revokeAccessor(ctx context.Context, accessor string) error {
	childKeys, err := s.barrier.List(ctx, childrenPrefix+accessor+"/")
	if err != nil {
		return err
	}
	for _, key := range childKeys {
		childAccessor := key[len(childrenPrefix+accessor+"/"):]
		if err := s.revokeAccessor(ctx, childAccessor); err != nil {
			return err
		}
		if err := s.barrier.Delete(ctx, key); err != nil {
			return err
		}
	}

	tok, err := s.lookupByAccessor(ctx, accessor)
	if err == nil && tok.ParentAccessor != "" {
		_ = s.barrier.Delete(ctx, childrenPrefix+tok.ParentAccessor+"/"+accessor)
	}

	if err := s.barrier.Delete(ctx, entryPrefix+accessor); err != nil {
		return err
	}
	log.WithTokenID(accessor).Info().Msg("token revoked")
	return nil
}

// Renew extends an existing token's expiry by its own TTL, failing with
// vaulterr.InvalidRequest if the token was not created as renewable.
func (s *Store) Renew(ctx context.Context, secret string) (*Token, error) {
	accessor := Accessor(secret)
	tok, err := s.lookupByAccessor(ctx, accessor)
	if err != nil {
		return nil, err
	}
	if !tok.Renewable {
		return nil, vaulterr.New(vaulterr.InvalidRequest, "token is not renewable")
	}
	if tok.TTL <= 0 {
		return nil, vaulterr.New(vaulterr.InvalidRequest, "token has no TTL to renew")
	}
	exp := time.Now().Add(tok.TTL)
	tok.ExpiresAt = &exp
	if err := s.put(ctx, tok); err != nil {
		return nil, err
	}
	return tok, nil
}
