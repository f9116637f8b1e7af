// Package core wires every component — barrier, seal, token, policy,
// mount table, lease manager, audit manager — into the request pipeline
// described by the rest of this module: resolve token, check policy,
// dispatch to the mounted engine, write an audit entry, return the
// response.
package core

import (
	"context"
	"time"

	"github.com/cuemby/vaultwarren/pkg/audit"
	"github.com/cuemby/vaultwarren/pkg/barrier"
	"github.com/cuemby/vaultwarren/pkg/engine"
	"github.com/cuemby/vaultwarren/pkg/lease"
	"github.com/cuemby/vaultwarren/pkg/log"
	"github.com/cuemby/vaultwarren/pkg/mount"
	"github.com/cuemby/vaultwarren/pkg/policy"
	"github.com/cuemby/vaultwarren/pkg/seal"
	"github.com/cuemby/vaultwarren/pkg/token"
	"github.com/cuemby/vaultwarren/pkg/vaulterr"
)

// Core holds every long-lived component of a single vault instance.
type Core struct {
	Barrier  *barrier.Barrier
	Seal     *seal.Manager
	Tokens   *token.Store
	Policies *policy.Store
	Mounts   *mount.Table
	Leases   *lease.Manager
	Audit    *audit.Manager
}

// New constructs every component over a single barrier and audit
// manager. The token store doubles as the seal manager's RootTokenIssuer,
// matching how init() persists the first token through a transient
// unseal (see pkg/seal).
func New(b *barrier.Barrier, auditManager *audit.Manager) *Core {
	tokens := token.New(b)
	mounts := mount.New(b)
	return &Core{
		Barrier:  b,
		Seal:     seal.New(b, tokens),
		Tokens:   tokens,
		Policies: policy.New(b),
		Mounts:   mounts,
		Leases:   lease.New(b, mounts),
		Audit:    auditManager,
	}
}

// LoadMounts restores the mount table's engine instances from storage.
// Call this once after every successful unseal.
func (c *Core) LoadMounts(ctx context.Context) error {
	return c.Mounts.Load(ctx)
}

// capabilityFor maps an engine.Operation to the policy capability it
// requires, so callers never have to keep the two vocabularies in sync
// by hand.
func capabilityFor(op engine.Operation) policy.Capability {
	switch op {
	case engine.OpRead:
		return policy.Read
	case engine.OpWrite:
		return policy.Update
	case engine.OpDelete:
		return policy.Delete
	case engine.OpList:
		return policy.List
	default:
		return policy.Deny
	}
}

// Request is a single authenticated call into the vault, as a transport
// layer would construct it from an inbound HTTP request.
type Request struct {
	Token     string
	Operation engine.Operation
	Path      string // full path including mount prefix, e.g. "kv/default/app/password"
	Data      map[string]any
}

// Handle runs a request through the full pipeline: resolve the token,
// check policy, dispatch to the mounted engine, write an audit entry
// before returning. If every audit backend fails, the request fails
// closed and the engine's response is discarded even though it already
// happened — the caller never observes an unaudited success.
func (c *Core) Handle(ctx context.Context, req Request) (*engine.Response, error) {
	if !c.Barrier.IsUnsealed() {
		return nil, vaulterr.New(vaulterr.Sealed, "vault is sealed")
	}

	entry := &audit.Entry{
		Time:      time.Now(),
		Operation: string(req.Operation),
		Path:      req.Path,
		Request:   c.Audit.RedactedRequest(req.Data),
	}

	resp, err := c.handle(ctx, req, entry)

	entry.StatusCode = statusCodeFor(err)
	if err != nil {
		entry.Error = err.Error()
	}
	if auditErr := c.Audit.Log(ctx, entry); auditErr != nil {
		log.WithComponent("core").Error().Err(auditErr).Str("path", req.Path).
			Msg("request failed closed: audit write failed")
		return nil, auditErr
	}

	return resp, err
}

func (c *Core) handle(ctx context.Context, req Request, entry *audit.Entry) (*engine.Response, error) {
	tok, err := c.Tokens.Lookup(ctx, req.Token)
	if err != nil {
		return nil, err
	}
	entry.ActorHash = tok.Accessor

	if err := c.Policies.Check(ctx, tok.Policies, req.Path, capabilityFor(req.Operation)); err != nil {
		return nil, err
	}

	eng, relPath, err := c.Mounts.Route(req.Path)
	if err != nil {
		return nil, err
	}
	entry.Mount = req.Path[:len(req.Path)-len(relPath)]

	resp, err := eng.Handle(ctx, engine.Request{
		Operation: req.Operation,
		Path:      relPath,
		Data:      req.Data,
	})
	if err != nil {
		return nil, err
	}

	if resp.LeaseID == "" && resp.LeaseDuration > 0 {
		l, err := c.Leases.Create(ctx, lease.CreateParams{
			Mount:               entry.Mount,
			Path:                relPath,
			Data:                resp.Data,
			TTL:                 time.Duration(resp.LeaseDuration) * time.Second,
			Renewable:           resp.Renewable,
			ParentTokenAccessor: tok.Accessor,
		})
		if err != nil {
			return nil, err
		}
		resp.LeaseID = l.ID
	}

	return resp, nil
}

// RevokeToken revokes a token and every lease it parented, so dynamic
// credentials never outlive the identity that checked them out.
func (c *Core) RevokeToken(ctx context.Context, secret string) error {
	accessor := token.Accessor(secret)
	if err := c.Leases.RevokeByParentToken(ctx, accessor); err != nil {
		return err
	}
	return c.Tokens.Revoke(ctx, secret)
}

// StatusCode maps a vaulterr.Kind to the HTTP status code the transport
// layer should respond with, so every endpoint handler reports failures
// consistently without re-deriving this table itself.
func StatusCode(err error) int {
	return statusCodeFor(err)
}

func statusCodeFor(err error) int {
	if err == nil {
		return 200
	}
	switch vaulterr.KindOf(err) {
	case vaulterr.Denied:
		return 403
	case vaulterr.NotFound:
		return 404
	case vaulterr.Sealed:
		return 503
	case vaulterr.NotInitialized:
		return 501
	case vaulterr.InvalidRequest, vaulterr.InvalidConfig, vaulterr.InvalidShare:
		return 400
	case vaulterr.Conflict, vaulterr.AlreadyInitialized, vaulterr.AlreadySealed, vaulterr.AlreadyUnsealed:
		return 409
	default:
		return 500
	}
}
