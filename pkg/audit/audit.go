// Package audit fans request entries out to one or more registered audit
// backends before a response leaves the server, and fails the request
// closed if every backend rejects the write.
package audit

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"time"

	"golang.org/x/crypto/hkdf"

	"github.com/cuemby/vaultwarren/pkg/log"
	"github.com/cuemby/vaultwarren/pkg/metrics"
	"github.com/cuemby/vaultwarren/pkg/vaulterr"
)

// Entry is a single audited request, written after the operation
// completes but before its response is returned to the caller.
type Entry struct {
	Time       time.Time      `json:"time"`
	Operation  string         `json:"operation"`
	Path       string         `json:"path"`
	Mount      string         `json:"mount,omitempty"`
	ActorHash  string         `json:"actor_hash,omitempty"`
	Request    map[string]any `json:"request,omitempty"`
	StatusCode int            `json:"status_code"`
	Error      string         `json:"error,omitempty"`
}

// Backend persists audit entries somewhere durable: a file, syslog, a
// remote log sink. Write must be safe for concurrent use.
type Backend interface {
	Name() string
	Write(ctx context.Context, entry *Entry) error
}

// Manager fans entries out to every registered backend and redacts
// sensitive values before an entry is ever handed to a backend.
type Manager struct {
	backends  []Backend
	redactKey []byte
}

// New derives a process-wide HMAC key via HKDF-SHA256 over fresh random
// entropy and returns a Manager fanning out to backends. Deriving the key
// through HKDF rather than using raw random bytes directly keeps the door
// open for a future seed (e.g. from the root key) without changing the
// redaction code path.
func New(backends ...Backend) (*Manager, error) {
	seed := make([]byte, 32)
	if _, err := io.ReadFull(rand.Reader, seed); err != nil {
		return nil, vaulterr.Wrap(vaulterr.Internal, err, "generate audit key seed")
	}

	key := make([]byte, 32)
	kdf := hkdf.New(sha256.New, seed, nil, []byte("vault-audit-hmac"))
	if _, err := io.ReadFull(kdf, key); err != nil {
		return nil, vaulterr.Wrap(vaulterr.Internal, err, "derive audit redaction key")
	}

	return &Manager{backends: backends, redactKey: key}, nil
}

// Redact returns the hex HMAC-SHA256 of value under the manager's
// process-wide key, so audit entries never carry raw secrets or tokens.
func (m *Manager) Redact(value string) string {
	mac := hmac.New(sha256.New, m.redactKey)
	mac.Write([]byte(value))
	return hex.EncodeToString(mac.Sum(nil))
}

// Log writes entry to every registered backend. If at least one backend
// succeeds, Log returns nil and failing backends are only logged as
// warnings. If every backend fails (or none are registered), Log returns
// an error and the caller must fail the originating request closed.
func (m *Manager) Log(ctx context.Context, entry *Entry) error {
	if len(m.backends) == 0 {
		return vaulterr.New(vaulterr.Internal, "audit: no backends registered")
	}

	logger := log.WithComponent("audit")
	var succeeded int
	for _, b := range m.backends {
		if err := b.Write(ctx, entry); err != nil {
			metrics.AuditEventsTotal.WithLabelValues(b.Name(), "failure").Inc()
			logger.Warn().Str("backend", b.Name()).Err(err).Msg("audit backend write failed")
			continue
		}
		metrics.AuditEventsTotal.WithLabelValues(b.Name(), "success").Inc()
		succeeded++
	}

	if succeeded == 0 {
		metrics.AuditBackendFailuresTotal.Inc()
		return vaulterr.New(vaulterr.Internal, "audit: all backends failed, request failed closed")
	}
	return nil
}

// RedactedRequest returns a shallow copy of data in which every string
// value is replaced by its HMAC under the manager's key and every other
// value by the name of its Go type, so KV payloads and token secrets
// never reach a backend in the clear.
func (m *Manager) RedactedRequest(data map[string]any) map[string]any {
	if data == nil {
		return nil
	}
	out := make(map[string]any, len(data))
	for k, v := range data {
		if s, ok := v.(string); ok {
			out[k] = m.Redact(s)
			continue
		}
		out[k] = fmt.Sprintf("%T", v)
	}
	return out
}
