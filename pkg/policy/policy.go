// Package policy implements path-based access control: named documents
// mapping path patterns to capabilities, evaluated against the set of
// policies attached to a token.
package policy

import (
	"context"
	"encoding/json"
	"sort"
	"strings"

	"github.com/cuemby/vaultwarren/pkg/barrier"
	"github.com/cuemby/vaultwarren/pkg/log"
	"github.com/cuemby/vaultwarren/pkg/metrics"
	"github.com/cuemby/vaultwarren/pkg/vaulterr"
)

const policyPrefix = "sys/policies/"

// Capability is a single permission a policy rule can grant.
type Capability string

const (
	Read   Capability = "read"
	List   Capability = "list"
	Create Capability = "create"
	Update Capability = "update"
	Delete Capability = "delete"
	Sudo   Capability = "sudo"
	// Deny, when present on a matching rule, overrides every grant for
	// that path regardless of which policy or rule supplied it.
	Deny Capability = "deny"
)

// Rule grants a set of capabilities on paths matching Path.
type Rule struct {
	Path         string       `json:"path"`
	Capabilities []Capability `json:"capabilities"`
}

func (r Rule) has(cap Capability) bool {
	for _, c := range r.Capabilities {
		if c == cap {
			return true
		}
	}
	return false
}

// Policy is a named collection of rules.
type Policy struct {
	Name  string `json:"name"`
	Rules []Rule `json:"rules"`
}

const (
	RootPolicyName    = "root"
	DefaultPolicyName = "default"
)

func isBuiltIn(name string) bool {
	return name == RootPolicyName || name == DefaultPolicyName
}

// rootPolicy grants every capability on every path. It is attached to the
// root token minted at initialization.
func rootPolicy() Policy {
	return Policy{
		Name: RootPolicyName,
		Rules: []Rule{
			{
				Path:         "**",
				Capabilities: []Capability{Read, List, Create, Update, Delete, Sudo},
			},
		},
	}
}

// defaultPolicy grants every token self-management of its own identity.
func defaultPolicy() Policy {
	return Policy{
		Name: DefaultPolicyName,
		Rules: []Rule{
			{Path: "auth/token/lookup-self", Capabilities: []Capability{Read}},
			{Path: "auth/token/renew-self", Capabilities: []Capability{Update}},
		},
	}
}

// Store manages policy CRUD and evaluation, backed by the barrier.
type Store struct {
	barrier *barrier.Barrier
}

// New returns a Store backed by b.
func New(b *barrier.Barrier) *Store {
	return &Store{barrier: b}
}

// Put writes or replaces a policy. The built-in root and default policies
// cannot be modified.
func (s *Store) Put(ctx context.Context, p Policy) error {
	if isBuiltIn(p.Name) {
		return vaulterr.Newf(vaulterr.BuiltIn, "cannot modify built-in policy %q", p.Name)
	}
	if len(p.Rules) == 0 {
		return vaulterr.New(vaulterr.InvalidRequest, "policy must have at least one rule")
	}

	data, err := json.Marshal(p)
	if err != nil {
		return vaulterr.Wrap(vaulterr.Internal, err, "marshal policy")
	}
	if err := s.barrier.Put(ctx, policyPrefix+p.Name, data); err != nil {
		return err
	}
	log.WithComponent("policy").Info().Str("name", p.Name).Int("rules", len(p.Rules)).Msg("policy written")
	return nil
}

// Get returns the policy named name. root and default are served from
// built-in definitions without a storage lookup.
func (s *Store) Get(ctx context.Context, name string) (Policy, error) {
	switch name {
	case RootPolicyName:
		return rootPolicy(), nil
	case DefaultPolicyName:
		return defaultPolicy(), nil
	}

	data, err := s.barrier.Get(ctx, policyPrefix+name)
	if err != nil {
		return Policy{}, err
	}
	if data == nil {
		return Policy{}, vaulterr.Newf(vaulterr.NotFound, "policy %q not found", name)
	}
	var p Policy
	if err := json.Unmarshal(data, &p); err != nil {
		return Policy{}, vaulterr.Wrap(vaulterr.Internal, err, "unmarshal policy")
	}
	return p, nil
}

// Delete removes a policy. The built-in root and default policies cannot
// be deleted.
func (s *Store) Delete(ctx context.Context, name string) error {
	if isBuiltIn(name) {
		return vaulterr.Newf(vaulterr.BuiltIn, "cannot delete built-in policy %q", name)
	}
	if err := s.barrier.Delete(ctx, policyPrefix+name); err != nil {
		return err
	}
	log.WithComponent("policy").Info().Str("name", name).Msg("policy deleted")
	return nil
}

// List returns every policy name, always including root and default.
func (s *Store) List(ctx context.Context) ([]string, error) {
	keys, err := s.barrier.List(ctx, policyPrefix)
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(keys)+2)
	seen := map[string]bool{}
	for _, k := range keys {
		name := strings.TrimPrefix(k, policyPrefix)
		names = append(names, name)
		seen[name] = true
	}
	if !seen[RootPolicyName] {
		names = append(names, RootPolicyName)
	}
	if !seen[DefaultPolicyName] {
		names = append(names, DefaultPolicyName)
	}
	sort.Strings(names)
	return names, nil
}

// Check reports whether the union of the named policies grants capability
// on path. A deny rule matching path in any policy overrides every grant,
// including grants from other policies in the same request.
func (s *Store) Check(ctx context.Context, policyNames []string, path string, capability Capability) error {
	granted := false

	for _, name := range policyNames {
		p, err := s.Get(ctx, name)
		if vaulterr.Is(err, vaulterr.NotFound) {
			continue
		}
		if err != nil {
			return err
		}

		for _, rule := range p.Rules {
			if !pathMatches(rule.Path, path) {
				continue
			}
			if rule.has(Deny) {
				metrics.PolicyChecksTotal.WithLabelValues("denied").Inc()
				return vaulterr.Newf(vaulterr.Denied, "path %q denied by policy %q", path, name)
			}
			if rule.has(capability) {
				granted = true
			}
		}
	}

	if !granted {
		metrics.PolicyChecksTotal.WithLabelValues("denied").Inc()
		return vaulterr.Newf(vaulterr.Denied, "no policy grants %q on %q", capability, path)
	}
	metrics.PolicyChecksTotal.WithLabelValues("granted").Inc()
	return nil
}

// pathMatches reports whether pattern matches path, where pattern may
// contain "*" (matches exactly one path segment) and "**" (matches zero
// or more trailing segments).
func pathMatches(pattern, path string) bool {
	if pattern == path {
		return true
	}

	patSegs := strings.Split(pattern, "/")
	pathSegs := strings.Split(path, "/")

	for i, seg := range patSegs {
		if seg == "**" {
			return true // matches the remainder, including zero segments
		}
		if i >= len(pathSegs) {
			return false
		}
		if seg == "*" {
			continue
		}
		if seg != pathSegs[i] {
			return false
		}
	}

	// Pattern exhausted without a trailing "**": only matches if path had
	// exactly as many segments.
	return len(patSegs) == len(pathSegs)
}
