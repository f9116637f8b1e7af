// Package lease implements leased dynamic credentials: time-bounded
// grants issued by a secrets engine, tracked centrally so they can be
// renewed, revoked, or reaped once expired.
package lease

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/cuemby/vaultwarren/pkg/barrier"
	"github.com/cuemby/vaultwarren/pkg/engine"
	"github.com/cuemby/vaultwarren/pkg/log"
	"github.com/cuemby/vaultwarren/pkg/metrics"
	"github.com/cuemby/vaultwarren/pkg/vaulterr"
)

// Resolver locates the secrets engine mounted at a given mount prefix, so
// Revoke can invoke the engine-specific revocation hook before it drops a
// lease record. pkg/mount.Table implements this.
type Resolver interface {
	EngineAt(mount string) (engine.Engine, error)
}

const leasePrefix = "sys/leases/"

// Lease is a time-bounded grant issued for a path under some mount.
// Data carries whatever the issuing engine needs to revoke the
// underlying credential (e.g. a generated database username).
type Lease struct {
	ID                  string         `json:"id"`
	Mount               string         `json:"mount"`
	Path                string         `json:"path"`
	Data                map[string]any `json:"data,omitempty"`
	IssuedAt            time.Time      `json:"issued_at"`
	ExpiresAt           time.Time      `json:"expires_at"`
	Renewable           bool           `json:"renewable"`
	TTL                 time.Duration  `json:"ttl"`
	MaxTTL              time.Duration  `json:"max_ttl"`
	ParentTokenAccessor string         `json:"parent_token_accessor,omitempty"`
}

func (l *Lease) expired(now time.Time) bool {
	return now.After(l.ExpiresAt)
}

// CreateParams describes a lease to mint.
type CreateParams struct {
	Mount               string
	Path                string
	Data                map[string]any
	TTL                 time.Duration
	MaxTTL              time.Duration
	Renewable           bool
	ParentTokenAccessor string
}

// Manager tracks every outstanding lease behind the barrier.
type Manager struct {
	barrier  *barrier.Barrier
	resolver Resolver
}

// New returns a Manager backed by b. resolver locates the engine whose
// revocation hook Revoke must call before a lease record is dropped; it
// may be nil, in which case Revoke only removes the tracking record (the
// behavior tests relying on in-memory-only lease bookkeeping expect).
func New(b *barrier.Barrier, resolver Resolver) *Manager {
	return &Manager{barrier: b, resolver: resolver}
}

// Create mints a new lease and persists it.
func (m *Manager) Create(ctx context.Context, params CreateParams) (*Lease, error) {
	now := time.Now()
	lease := &Lease{
		ID:                  uuid.New().String(),
		Mount:               params.Mount,
		Path:                params.Path,
		Data:                params.Data,
		IssuedAt:            now,
		ExpiresAt:           now.Add(params.TTL),
		Renewable:           params.Renewable,
		TTL:                 params.TTL,
		MaxTTL:              params.MaxTTL,
		ParentTokenAccessor: params.ParentTokenAccessor,
	}

	if err := m.put(ctx, lease); err != nil {
		return nil, err
	}
	metrics.LeasesActive.Inc()
	log.WithLeaseID(lease.ID).Info().Msg("lease created")
	return lease, nil
}

// Get looks up a lease by ID.
func (m *Manager) Get(ctx context.Context, id string) (*Lease, error) {
	data, err := m.barrier.Get(ctx, leasePrefix+id)
	if err != nil {
		return nil, err
	}
	if data == nil {
		return nil, vaulterr.Newf(vaulterr.NotFound, "lease %q not found", id)
	}
	var l Lease
	if err := json.Unmarshal(data, &l); err != nil {
		return nil, vaulterr.Wrap(vaulterr.Internal, err, "unmarshal lease")
	}
	return &l, nil
}

// Renew extends a renewable lease's expiry by its original TTL, capped at
// IssuedAt+MaxTTL when MaxTTL is set.
func (m *Manager) Renew(ctx context.Context, id string) (*Lease, error) {
	lease, err := m.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !lease.Renewable {
		return nil, vaulterr.Newf(vaulterr.InvalidRequest, "lease %q is not renewable", id)
	}

	newExpiry := time.Now().Add(lease.TTL)
	if lease.MaxTTL > 0 {
		ceiling := lease.IssuedAt.Add(lease.MaxTTL)
		if newExpiry.After(ceiling) {
			newExpiry = ceiling
		}
	}
	lease.ExpiresAt = newExpiry

	if err := m.put(ctx, lease); err != nil {
		return nil, err
	}
	return lease, nil
}

// Revoke invokes the owning engine's revocation hook for the lease's
// underlying credential, then removes the lease record. It is not an
// error if the lease is already gone — revocation is idempotent so a
// racing expiry-worker tick and an operator-initiated revoke never
// conflict.
func (m *Manager) Revoke(ctx context.Context, id string) error {
	data, err := m.barrier.Get(ctx, leasePrefix+id)
	if err != nil {
		return err
	}
	if data == nil {
		return nil
	}
	var l Lease
	if err := json.Unmarshal(data, &l); err != nil {
		return vaulterr.Wrap(vaulterr.Internal, err, "unmarshal lease")
	}

	if err := m.revokeCredential(ctx, &l); err != nil {
		return err
	}

	if err := m.barrier.Delete(ctx, leasePrefix+id); err != nil {
		return err
	}
	metrics.LeasesActive.Dec()
	log.WithLeaseID(id).Info().Msg("lease revoked")
	return nil
}

// revokeCredential calls the engine-specific revocation hook for l's
// mount, per the lease manager's documented responsibility. A mount that
// no longer exists (unmounted since the lease was issued) has nothing
// left to revoke at the engine level, so it is not treated as an error.
func (m *Manager) revokeCredential(ctx context.Context, l *Lease) error {
	if m.resolver == nil {
		return nil
	}
	eng, err := m.resolver.EngineAt(l.Mount)
	if err != nil {
		return nil
	}
	return eng.Revoke(ctx, l.Data)
}

// FindExpired returns every lease whose expiry has passed.
func (m *Manager) FindExpired(ctx context.Context) ([]*Lease, error) {
	keys, err := m.barrier.List(ctx, leasePrefix)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	var expired []*Lease
	for _, key := range keys {
		data, err := m.barrier.Get(ctx, key)
		if err != nil {
			return nil, err
		}
		if data == nil {
			continue // revoked between List and Get
		}
		var l Lease
		if err := json.Unmarshal(data, &l); err != nil {
			return nil, vaulterr.Wrap(vaulterr.Internal, err, "unmarshal lease")
		}
		if l.expired(now) {
			expired = append(expired, &l)
		}
	}
	return expired, nil
}

// RevokeByParentToken revokes every lease issued under the given parent
// token accessor, invoked when that token is revoked so its dynamic
// credentials do not outlive it.
func (m *Manager) RevokeByParentToken(ctx context.Context, parentAccessor string) error {
	keys, err := m.barrier.List(ctx, leasePrefix)
	if err != nil {
		return err
	}
	for _, key := range keys {
		data, err := m.barrier.Get(ctx, key)
		if err != nil {
			return err
		}
		if data == nil {
			continue
		}
		var l Lease
		if err := json.Unmarshal(data, &l); err != nil {
			return vaulterr.Wrap(vaulterr.Internal, err, "unmarshal lease")
		}
		if l.ParentTokenAccessor == parentAccessor {
			if err := m.Revoke(ctx, l.ID); err != nil {
				return err
			}
		}
	}
	return nil
}

func (m *Manager) put(ctx context.Context, l *Lease) error {
	data, err := json.Marshal(l)
	if err != nil {
		return vaulterr.Wrap(vaulterr.Internal, err, "marshal lease")
	}
	return m.barrier.Put(ctx, leasePrefix+l.ID, data)
}
