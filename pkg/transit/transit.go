// Package transit implements encryption-as-a-service: callers submit
// plaintext and get back ciphertext (and vice versa) without ever holding
// the encryption key themselves. Keys are named, versioned, and rotatable.
package transit

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/cuemby/vaultwarren/pkg/barrier"
	vcrypto "github.com/cuemby/vaultwarren/pkg/crypto"
	"github.com/cuemby/vaultwarren/pkg/engine"
	"github.com/cuemby/vaultwarren/pkg/metrics"
	"github.com/cuemby/vaultwarren/pkg/vaulterr"
)

// wireFormat prefixes every ciphertext this engine produces, e.g.
// "vault:v3:<base64>".
const wireFormat = "vault"

type keyVersion struct {
	KeyMaterial []byte    `json:"key_material"`
	CreatedAt   time.Time `json:"created_at"`
}

type namedKey struct {
	Name                 string                `json:"name"`
	Versions             map[uint32]keyVersion `json:"versions"`
	LatestVersion        uint32                `json:"latest_version"`
	MinDecryptionVersion uint32                `json:"min_decryption_version"`
	SupportsEncryption   bool                  `json:"supports_encryption"`
	SupportsDecryption   bool                  `json:"supports_decryption"`
	CreatedAt            time.Time             `json:"created_at"`
}

// KeyInfo is the public view of a named key, omitting key material.
type KeyInfo struct {
	Name                 string    `json:"name"`
	LatestVersion        uint32    `json:"latest_version"`
	MinDecryptionVersion uint32    `json:"min_decryption_version"`
	SupportsEncryption   bool      `json:"supports_encryption"`
	SupportsDecryption   bool      `json:"supports_decryption"`
	VersionCount         uint32    `json:"version_count"`
	CreatedAt            time.Time `json:"created_at"`
}

// DataKeyResponse is returned by GenerateDataKey.
type DataKeyResponse struct {
	Plaintext  string `json:"plaintext"`
	Ciphertext string `json:"ciphertext"`
}

// Engine is the transit secrets engine.
type Engine struct {
	barrier *barrier.Barrier
	mount   string
}

// New returns a transit engine mounted at mount, backed by b.
func New(b *barrier.Barrier, mount string) *Engine {
	return &Engine{barrier: b, mount: mount}
}

func (e *Engine) Type() string { return "transit" }

// Revoke is a no-op: transit keys are long-lived encryption-as-a-service
// material, not per-use dynamic credentials, so transit never issues a
// lease for Revoke to tear down.
func (e *Engine) Revoke(ctx context.Context, data map[string]any) error { return nil }

func (e *Engine) keyPath(name string) string {
	return e.mount + "keys/" + name
}

// Handle dispatches the generic engine.Request surface: writes go to
// handleWrite (create, encrypt, decrypt, rewrap, rotate, datakey), reads
// to handleRead (key info), and lists to ListKeys.
func (e *Engine) Handle(ctx context.Context, req engine.Request) (*engine.Response, error) {
	timer := metrics.NewTimer()
	var outcome string
	defer func() {
		timer.ObserveDurationVec(metrics.EngineRequestDuration, e.mount, "transit", string(req.Operation))
		metrics.EngineRequestsTotal.WithLabelValues(e.mount, "transit", string(req.Operation), outcome).Inc()
	}()

	var resp *engine.Response
	var err error
	switch req.Operation {
	case engine.OpWrite:
		resp, err = e.handleWrite(ctx, req)
	case engine.OpRead:
		resp, err = e.handleRead(ctx, req)
	case engine.OpList:
		var names []string
		names, err = e.ListKeys(ctx)
		if err == nil {
			resp = &engine.Response{Data: map[string]any{"keys": names}}
		}
	default:
		err = vaulterr.Newf(vaulterr.InvalidRequest, "transit: unsupported operation %q", req.Operation)
	}

	if err != nil {
		outcome = "error"
	} else {
		outcome = "ok"
	}
	return resp, err
}

// handleWrite interprets req.Path as "keys/<name>" (create),
// "encrypt/<name>" / "decrypt/<name>" / "rewrap/<name>" (wire operations),
// "rotate/<name>" or "datakey/<name>", matching the path-routed shape the
// rest of the vault's mounts use.
func (e *Engine) handleWrite(ctx context.Context, req engine.Request) (*engine.Response, error) {
	segment, name, ok := strings.Cut(req.Path, "/")
	if !ok {
		return nil, vaulterr.Newf(vaulterr.InvalidRequest, "transit: path %q missing key name", req.Path)
	}

	switch segment {
	case "keys":
		if err := e.CreateKey(ctx, name); err != nil {
			return nil, err
		}
		return &engine.Response{}, nil
	case "encrypt":
		plaintext, _ := req.Data["plaintext"].(string)
		raw, err := base64.StdEncoding.DecodeString(plaintext)
		if err != nil {
			return nil, vaulterr.Wrap(vaulterr.InvalidRequest, err, "transit: plaintext must be base64")
		}
		ct, err := e.Encrypt(ctx, name, raw)
		if err != nil {
			return nil, err
		}
		return &engine.Response{Data: map[string]any{"ciphertext": ct}}, nil
	case "decrypt":
		ciphertext, _ := req.Data["ciphertext"].(string)
		plaintext, err := e.Decrypt(ctx, name, ciphertext)
		if err != nil {
			return nil, err
		}
		return &engine.Response{Data: map[string]any{"plaintext": base64.StdEncoding.EncodeToString(plaintext)}}, nil
	case "rewrap":
		ciphertext, _ := req.Data["ciphertext"].(string)
		rewrapped, err := e.Rewrap(ctx, name, ciphertext)
		if err != nil {
			return nil, err
		}
		return &engine.Response{Data: map[string]any{"ciphertext": rewrapped}}, nil
	case "rotate":
		v, err := e.RotateKey(ctx, name)
		if err != nil {
			return nil, err
		}
		return &engine.Response{Data: map[string]any{"version": v}}, nil
	case "datakey":
		dk, err := e.GenerateDataKey(ctx, name)
		if err != nil {
			return nil, err
		}
		return &engine.Response{Data: map[string]any{"plaintext": dk.Plaintext, "ciphertext": dk.Ciphertext}}, nil
	default:
		return nil, vaulterr.Newf(vaulterr.InvalidRequest, "transit: unknown operation %q", segment)
	}
}

func (e *Engine) handleRead(ctx context.Context, req engine.Request) (*engine.Response, error) {
	segment, name, ok := strings.Cut(req.Path, "/")
	if !ok || segment != "keys" {
		return nil, vaulterr.Newf(vaulterr.InvalidRequest, "transit: path %q is not a key lookup", req.Path)
	}
	info, err := e.KeyInfo(ctx, name)
	if err != nil {
		return nil, err
	}
	data, err := structToMap(info)
	if err != nil {
		return nil, err
	}
	return &engine.Response{Data: data}, nil
}

func structToMap(v any) (map[string]any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, vaulterr.Wrap(vaulterr.Internal, err, "transit: marshal response")
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, vaulterr.Wrap(vaulterr.Internal, err, "transit: unmarshal response")
	}
	return m, nil
}

// CreateKey creates a new named key at version 1.
func (e *Engine) CreateKey(ctx context.Context, name string) error {
	existing, err := e.barrier.Get(ctx, e.keyPath(name))
	if err != nil {
		return err
	}
	if existing != nil {
		return vaulterr.Newf(vaulterr.Conflict, "transit key %q already exists", name)
	}

	material, err := vcrypto.GenerateKey()
	if err != nil {
		return vaulterr.Wrap(vaulterr.Crypto, err, "transit: generate key material")
	}
	now := time.Now()

	key := namedKey{
		Name:                 name,
		Versions:             map[uint32]keyVersion{1: {KeyMaterial: material[:], CreatedAt: now}},
		LatestVersion:        1,
		MinDecryptionVersion: 1,
		SupportsEncryption:   true,
		SupportsDecryption:   true,
		CreatedAt:            now,
	}
	return e.saveKey(ctx, &key)
}

// RotateKey adds a new key version and returns its version number.
func (e *Engine) RotateKey(ctx context.Context, name string) (uint32, error) {
	key, err := e.loadKey(ctx, name)
	if err != nil {
		return 0, err
	}

	material, err := vcrypto.GenerateKey()
	if err != nil {
		return 0, vaulterr.Wrap(vaulterr.Crypto, err, "transit: generate key material")
	}
	newVersion := key.LatestVersion + 1
	key.Versions[newVersion] = keyVersion{KeyMaterial: material[:], CreatedAt: time.Now()}
	key.LatestVersion = newVersion

	if err := e.saveKey(ctx, key); err != nil {
		return 0, err
	}
	return newVersion, nil
}

// Encrypt encrypts plaintext under the latest version of the named key,
// returning ciphertext in "vault:v{N}:{base64}" form.
func (e *Engine) Encrypt(ctx context.Context, name string, plaintext []byte) (string, error) {
	key, err := e.loadKey(ctx, name)
	if err != nil {
		return "", err
	}
	if !key.SupportsEncryption {
		return "", vaulterr.Newf(vaulterr.InvalidRequest, "transit key %q does not support encryption", name)
	}

	kv, ok := key.Versions[key.LatestVersion]
	if !ok {
		return "", vaulterr.Newf(vaulterr.Internal, "transit: version %d missing for %q", key.LatestVersion, name)
	}

	encKey, err := materialToKey(kv.KeyMaterial)
	if err != nil {
		return "", err
	}
	ciphertext, err := vcrypto.Encrypt(encKey, plaintext)
	if err != nil {
		return "", vaulterr.Wrap(vaulterr.Crypto, err, "transit: encrypt")
	}

	return fmt.Sprintf("%s:v%d:%s", wireFormat, key.LatestVersion, base64.StdEncoding.EncodeToString(ciphertext)), nil
}

// Decrypt reverses Encrypt, rejecting ciphertext below the key's
// min_decryption_version.
func (e *Engine) Decrypt(ctx context.Context, name, ciphertext string) ([]byte, error) {
	key, err := e.loadKey(ctx, name)
	if err != nil {
		return nil, err
	}
	if !key.SupportsDecryption {
		return nil, vaulterr.Newf(vaulterr.InvalidRequest, "transit key %q does not support decryption", name)
	}

	version, raw, err := parseCiphertext(ciphertext)
	if err != nil {
		return nil, err
	}
	if version < key.MinDecryptionVersion {
		return nil, vaulterr.Newf(vaulterr.InvalidRequest, "ciphertext version %d is below minimum decryption version %d", version, key.MinDecryptionVersion)
	}

	kv, ok := key.Versions[version]
	if !ok {
		return nil, vaulterr.Newf(vaulterr.NotFound, "%s/v%d not found", name, version)
	}

	encKey, err := materialToKey(kv.KeyMaterial)
	if err != nil {
		return nil, err
	}
	plaintext, err := vcrypto.Decrypt(encKey, raw)
	if err != nil {
		return nil, vaulterr.Wrap(vaulterr.Crypto, err, "transit: decrypt")
	}
	return plaintext, nil
}

// Rewrap re-encrypts ciphertext under the latest key version without
// exposing plaintext to the caller.
func (e *Engine) Rewrap(ctx context.Context, name, ciphertext string) (string, error) {
	plaintext, err := e.Decrypt(ctx, name, ciphertext)
	if err != nil {
		return "", err
	}
	return e.Encrypt(ctx, name, plaintext)
}

// GenerateDataKey returns a fresh symmetric key both in the clear and
// wrapped under the named transit key, the "envelope encryption" pattern:
// callers encrypt bulk data with the plaintext key locally and discard it,
// keeping only the wrapped form.
func (e *Engine) GenerateDataKey(ctx context.Context, name string) (*DataKeyResponse, error) {
	dataKey, err := vcrypto.GenerateKey()
	if err != nil {
		return nil, vaulterr.Wrap(vaulterr.Crypto, err, "transit: generate data key")
	}
	wrapped, err := e.Encrypt(ctx, name, dataKey[:])
	if err != nil {
		return nil, err
	}
	return &DataKeyResponse{
		Plaintext:  base64.StdEncoding.EncodeToString(dataKey[:]),
		Ciphertext: wrapped,
	}, nil
}

// ListKeys returns every transit key name under this mount.
func (e *Engine) ListKeys(ctx context.Context) ([]string, error) {
	prefix := e.mount + "keys/"
	keys, err := e.barrier.List(ctx, prefix)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(keys))
	for _, k := range keys {
		if rel, ok := strings.CutPrefix(k, prefix); ok {
			names = append(names, rel)
		}
	}
	return names, nil
}

// KeyInfo returns public metadata about a named key.
func (e *Engine) KeyInfo(ctx context.Context, name string) (*KeyInfo, error) {
	key, err := e.loadKey(ctx, name)
	if err != nil {
		return nil, err
	}
	return &KeyInfo{
		Name:                 key.Name,
		LatestVersion:        key.LatestVersion,
		MinDecryptionVersion: key.MinDecryptionVersion,
		SupportsEncryption:   key.SupportsEncryption,
		SupportsDecryption:   key.SupportsDecryption,
		VersionCount:         uint32(len(key.Versions)),
		CreatedAt:            key.CreatedAt,
	}, nil
}

func (e *Engine) loadKey(ctx context.Context, name string) (*namedKey, error) {
	data, err := e.barrier.Get(ctx, e.keyPath(name))
	if err != nil {
		return nil, err
	}
	if data == nil {
		return nil, vaulterr.Newf(vaulterr.NotFound, "transit key %q not found", name)
	}
	var key namedKey
	if err := json.Unmarshal(data, &key); err != nil {
		return nil, vaulterr.Wrap(vaulterr.Internal, err, "transit: unmarshal key")
	}
	return &key, nil
}

func (e *Engine) saveKey(ctx context.Context, key *namedKey) error {
	data, err := json.Marshal(key)
	if err != nil {
		return vaulterr.Wrap(vaulterr.Internal, err, "transit: marshal key")
	}
	return e.barrier.Put(ctx, e.keyPath(key.Name), data)
}

func materialToKey(material []byte) (vcrypto.Key, error) {
	if len(material) != vcrypto.KeySize {
		return vcrypto.Key{}, vaulterr.Newf(vaulterr.Internal, "transit: key material is %d bytes, want %d", len(material), vcrypto.KeySize)
	}
	var key vcrypto.Key
	copy(key[:], material)
	return key, nil
}

// parseCiphertext parses "vault:v{N}:{base64}" into its version and raw bytes.
func parseCiphertext(ct string) (uint32, []byte, error) {
	parts := strings.SplitN(ct, ":", 3)
	if len(parts) != 3 || parts[0] != wireFormat {
		return 0, nil, vaulterr.New(vaulterr.InvalidRequest, "invalid ciphertext format, expected vault:v{N}:{base64}")
	}

	versionStr, ok := strings.CutPrefix(parts[1], "v")
	if !ok {
		return 0, nil, vaulterr.New(vaulterr.InvalidRequest, "invalid version prefix, expected 'v{N}'")
	}
	version, err := strconv.ParseUint(versionStr, 10, 32)
	if err != nil {
		return 0, nil, vaulterr.Newf(vaulterr.InvalidRequest, "invalid version number: %s", versionStr)
	}

	raw, err := base64.StdEncoding.DecodeString(parts[2])
	if err != nil {
		return 0, nil, vaulterr.Wrap(vaulterr.InvalidRequest, err, "invalid base64 ciphertext")
	}

	return uint32(version), raw, nil
}
