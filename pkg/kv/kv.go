// Package kv implements the KV v2 secrets engine: versioned key-value
// storage with soft-delete and automatic pruning of old versions.
package kv

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/cuemby/vaultwarren/pkg/barrier"
	"github.com/cuemby/vaultwarren/pkg/engine"
	"github.com/cuemby/vaultwarren/pkg/metrics"
	"github.com/cuemby/vaultwarren/pkg/vaulterr"
)

// defaultMaxVersions is the version-history depth applied to every newly
// created secret. Zero disables pruning entirely, matching the envelope's
// documented semantics for an unset limit.
const defaultMaxVersions = 0

// Engine is the KV v2 secrets engine.
type Engine struct {
	barrier *barrier.Barrier
	mount   string // mount prefix, e.g. "kv/default/"
}

// New returns a KV v2 engine mounted at mount, backed by b. mount must end
// in "/".
func New(b *barrier.Barrier, mount string) *Engine {
	return &Engine{barrier: b, mount: mount}
}

func (e *Engine) Type() string { return "kv-v2" }

// Revoke is a no-op: KV secrets are static values, not dynamic
// credentials, so KV never issues a lease for Revoke to tear down.
func (e *Engine) Revoke(ctx context.Context, data map[string]any) error { return nil }

type version struct {
	Data      map[string]any `json:"data"`
	CreatedAt time.Time      `json:"created_at"`
	DeletedAt *time.Time     `json:"deleted_at,omitempty"`
}

type secret struct {
	Versions       map[uint32]version `json:"versions"`
	CurrentVersion uint32              `json:"current_version"`
	MaxVersions    uint32              `json:"max_versions"`
}

// Metadata describes a secret's version history without its data.
type Metadata struct {
	CurrentVersion uint32    `json:"current_version"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
	VersionCount   uint32    `json:"version_count"`
	MaxVersions    uint32    `json:"max_versions"`
}

// Handle dispatches req to the matching KV operation.
func (e *Engine) Handle(ctx context.Context, req engine.Request) (*engine.Response, error) {
	timer := metrics.NewTimer()
	var outcome string
	defer func() {
		timer.ObserveDurationVec(metrics.EngineRequestDuration, e.mount, "kv-v2", string(req.Operation))
		metrics.EngineRequestsTotal.WithLabelValues(e.mount, "kv-v2", string(req.Operation), outcome).Inc()
	}()

	var resp *engine.Response
	var err error
	switch req.Operation {
	case engine.OpRead:
		resp, err = e.read(ctx, req.Path)
	case engine.OpWrite:
		resp, err = e.write(ctx, req.Path, req.Data)
	case engine.OpDelete:
		resp, err = e.delete(ctx, req.Path)
	case engine.OpList:
		resp, err = e.list(ctx, req.Path)
	default:
		err = vaulterr.Newf(vaulterr.InvalidRequest, "kv: unsupported operation %q", req.Operation)
	}

	if err != nil {
		outcome = "error"
	} else {
		outcome = "ok"
	}
	return resp, err
}

func (e *Engine) dataKey(path string) string {
	return e.mount + "data/" + path
}

func (e *Engine) loadSecret(ctx context.Context, path string) (*secret, error) {
	data, err := e.barrier.Get(ctx, e.dataKey(path))
	if err != nil {
		return nil, err
	}
	if data == nil {
		return nil, nil
	}
	var s secret
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, vaulterr.Wrap(vaulterr.Internal, err, "kv: unmarshal secret")
	}
	return &s, nil
}

func (e *Engine) saveSecret(ctx context.Context, path string, s *secret) error {
	data, err := json.Marshal(s)
	if err != nil {
		return vaulterr.Wrap(vaulterr.Internal, err, "kv: marshal secret")
	}
	return e.barrier.Put(ctx, e.dataKey(path), data)
}

func (e *Engine) read(ctx context.Context, path string) (*engine.Response, error) {
	s, err := e.loadSecret(ctx, path)
	if err != nil {
		return nil, err
	}
	if s == nil {
		return nil, vaulterr.Newf(vaulterr.NotFound, "secret %q not found", path)
	}

	v, ok := s.Versions[s.CurrentVersion]
	if !ok {
		return nil, vaulterr.Newf(vaulterr.Internal, "kv: version %d missing for %q", s.CurrentVersion, path)
	}
	if v.DeletedAt != nil {
		return nil, vaulterr.Newf(vaulterr.NotFound, "secret %q not found", path)
	}

	return &engine.Response{
		Data: map[string]any{
			"data": v.Data,
			"metadata": map[string]any{
				"version":      s.CurrentVersion,
				"created_time": v.CreatedAt.UTC().Format(time.RFC3339),
			},
		},
	}, nil
}

// write stores a new version of data. MaxVersions on the envelope is
// fixed at defaultMaxVersions for now; there is no way for a caller to
// override it per secret since req.Data is the secret payload itself,
// not a place to smuggle engine options.
func (e *Engine) write(ctx context.Context, path string, data map[string]any) (*engine.Response, error) {
	s, err := e.loadSecret(ctx, path)
	if err != nil {
		return nil, err
	}
	if s == nil {
		s = &secret{Versions: map[uint32]version{}, MaxVersions: defaultMaxVersions}
	}

	s.CurrentVersion++
	now := time.Now()
	s.Versions[s.CurrentVersion] = version{Data: data, CreatedAt: now}

	if s.MaxVersions > 0 {
		for uint32(len(s.Versions)) > s.MaxVersions {
			var oldest uint32
			first := true
			for v := range s.Versions {
				if first || v < oldest {
					oldest = v
					first = false
				}
			}
			delete(s.Versions, oldest)
		}
	}

	if err := e.saveSecret(ctx, path, s); err != nil {
		return nil, err
	}

	return &engine.Response{
		Data: map[string]any{
			"version":      s.CurrentVersion,
			"created_time": now.UTC().Format(time.RFC3339),
		},
	}, nil
}

func (e *Engine) delete(ctx context.Context, path string) (*engine.Response, error) {
	s, err := e.loadSecret(ctx, path)
	if err != nil {
		return nil, err
	}
	if s == nil {
		return nil, vaulterr.Newf(vaulterr.NotFound, "secret %q not found", path)
	}

	if v, ok := s.Versions[s.CurrentVersion]; ok {
		now := time.Now()
		v.DeletedAt = &now
		s.Versions[s.CurrentVersion] = v
	}

	if err := e.saveSecret(ctx, path, s); err != nil {
		return nil, err
	}
	return &engine.Response{}, nil
}

func (e *Engine) list(ctx context.Context, path string) (*engine.Response, error) {
	prefix := e.dataKey(path)
	keys, err := e.barrier.List(ctx, prefix)
	if err != nil {
		return nil, err
	}

	relative := make([]string, 0, len(keys))
	for _, k := range keys {
		if rel, ok := strings.CutPrefix(k, prefix); ok {
			relative = append(relative, rel)
		}
	}

	return &engine.Response{Data: map[string]any{"keys": relative}}, nil
}

// Metadata returns the version history summary for a secret without its
// data, or vaulterr.NotFound if it does not exist.
func (e *Engine) Metadata(ctx context.Context, path string) (*Metadata, error) {
	s, err := e.loadSecret(ctx, path)
	if err != nil {
		return nil, err
	}
	if s == nil {
		return nil, vaulterr.Newf(vaulterr.NotFound, "secret %q not found", path)
	}

	var created, updated time.Time
	first := true
	for _, v := range s.Versions {
		if first {
			created, updated = v.CreatedAt, v.CreatedAt
			first = false
			continue
		}
		if v.CreatedAt.Before(created) {
			created = v.CreatedAt
		}
		if v.CreatedAt.After(updated) {
			updated = v.CreatedAt
		}
	}
	if first {
		created, updated = time.Now(), time.Now()
	}

	return &Metadata{
		CurrentVersion: s.CurrentVersion,
		CreatedAt:      created,
		UpdatedAt:      updated,
		VersionCount:   uint32(len(s.Versions)),
		MaxVersions:    s.MaxVersions,
	}, nil
}
