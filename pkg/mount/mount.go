// Package mount implements the mount table: the map from a path prefix to
// the secrets engine instance that serves requests beneath it. The table
// itself is persisted through the barrier; engine instances are held in
// an in-memory cache that Load fills from the persisted table and Mount
// and Unmount keep current.
package mount

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"sync"

	"github.com/cuemby/vaultwarren/pkg/barrier"
	"github.com/cuemby/vaultwarren/pkg/engine"
	"github.com/cuemby/vaultwarren/pkg/kv"
	"github.com/cuemby/vaultwarren/pkg/log"
	"github.com/cuemby/vaultwarren/pkg/transit"
	"github.com/cuemby/vaultwarren/pkg/vaulterr"
)

const tableKey = "sys/mounts"

// Types of engine a path can be mounted as.
const (
	TypeKV      = "kv-v2"
	TypeTransit = "transit"
)

// Entry describes a single mount point.
type Entry struct {
	Path string `json:"path"`
	Type string `json:"type"`
}

// Table maps mount paths to live engine instances. Reads take the shared
// lock; mounting or unmounting takes the exclusive lock, matching the
// barrier's own root-key locking discipline so the read path never blocks
// behind storage I/O for an unrelated mount.
type Table struct {
	mu      sync.RWMutex
	barrier *barrier.Barrier
	engines map[string]engine.Engine
}

// New returns an empty table backed by b. Call Load after unsealing to
// restore previously persisted mounts.
func New(b *barrier.Barrier) *Table {
	return &Table{barrier: b, engines: make(map[string]engine.Engine)}
}

// Load reads the persisted mount table and instantiates an engine for
// each entry. It is safe to call more than once; existing instances are
// replaced.
func (t *Table) Load(ctx context.Context) error {
	entries, err := t.list(ctx)
	if err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	for _, e := range entries {
		eng, err := t.instantiate(e)
		if err != nil {
			return err
		}
		t.engines[e.Path] = eng
	}
	return nil
}

// Mount registers a new engine instance at path and persists the entry.
func (t *Table) Mount(ctx context.Context, path, engineType string) error {
	path = normalize(path)

	entries, err := t.list(ctx)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if e.Path == path {
			return vaulterr.Newf(vaulterr.Conflict, "mount %q already exists", path)
		}
	}

	entry := Entry{Path: path, Type: engineType}
	eng, err := t.instantiate(entry)
	if err != nil {
		return err
	}

	entries = append(entries, entry)
	if err := t.save(ctx, entries); err != nil {
		return err
	}

	t.mu.Lock()
	t.engines[path] = eng
	t.mu.Unlock()

	log.WithMount(path).Info().Str("type", engineType).Msg("mount registered")
	return nil
}

// Unmount removes a mount point and its persisted entry. The underlying
// secret data is not scrubbed — that is an operator-driven storage wipe,
// not a mount-table operation.
func (t *Table) Unmount(ctx context.Context, path string) error {
	path = normalize(path)

	entries, err := t.list(ctx)
	if err != nil {
		return err
	}

	kept := entries[:0]
	found := false
	for _, e := range entries {
		if e.Path == path {
			found = true
			continue
		}
		kept = append(kept, e)
	}
	if !found {
		return vaulterr.Newf(vaulterr.NotFound, "mount %q not found", path)
	}

	if err := t.save(ctx, kept); err != nil {
		return err
	}

	t.mu.Lock()
	delete(t.engines, path)
	t.mu.Unlock()

	log.WithMount(path).Info().Msg("mount removed")
	return nil
}

// List returns every registered mount entry, sorted by path.
func (t *Table) List(ctx context.Context) ([]Entry, error) {
	entries, err := t.list(ctx)
	if err != nil {
		return nil, err
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Path < entries[j].Path })
	return entries, nil
}

// Route resolves the full path (e.g. "kv/default/app/password") to
// the engine mounted at its prefix, plus the remainder of the path
// relative to that mount for the engine to interpret.
func (t *Table) Route(fullPath string) (engine.Engine, string, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var best string
	for mountPath := range t.engines {
		if !strings.HasPrefix(fullPath, mountPath) {
			continue
		}
		if len(mountPath) > len(best) {
			best = mountPath
		}
	}
	if best == "" {
		return nil, "", vaulterr.Newf(vaulterr.NotFound, "no mount serves path %q", fullPath)
	}
	return t.engines[best], strings.TrimPrefix(fullPath, best), nil
}

// EngineAt returns the engine instance mounted at the exact prefix
// mountPath (e.g. "db/default/"), for callers that already know the
// mount a record belongs to rather than a full path to route. Used by
// the lease manager to find the engine-specific revocation hook.
func (t *Table) EngineAt(mountPath string) (engine.Engine, error) {
	mountPath = normalize(mountPath)

	t.mu.RLock()
	defer t.mu.RUnlock()

	eng, ok := t.engines[mountPath]
	if !ok {
		return nil, vaulterr.Newf(vaulterr.NotFound, "no mount at %q", mountPath)
	}
	return eng, nil
}

func (t *Table) instantiate(e Entry) (engine.Engine, error) {
	switch e.Type {
	case TypeKV:
		return kv.New(t.barrier, e.Path), nil
	case TypeTransit:
		return transit.New(t.barrier, e.Path), nil
	default:
		return nil, vaulterr.Newf(vaulterr.InvalidRequest, "unknown engine type %q", e.Type)
	}
}

func (t *Table) list(ctx context.Context) ([]Entry, error) {
	data, err := t.barrier.Get(ctx, tableKey)
	if err != nil {
		return nil, err
	}
	if data == nil {
		return nil, nil
	}
	var entries []Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, vaulterr.Wrap(vaulterr.Internal, err, "unmarshal mount table")
	}
	return entries, nil
}

func (t *Table) save(ctx context.Context, entries []Entry) error {
	data, err := json.Marshal(entries)
	if err != nil {
		return vaulterr.Wrap(vaulterr.Internal, err, "marshal mount table")
	}
	return t.barrier.Put(ctx, tableKey, data)
}

// normalize ensures path ends in exactly one trailing slash, the
// convention kv.New and transit.New expect for their mount prefix.
func normalize(path string) string {
	path = strings.TrimSuffix(path, "/")
	return path + "/"
}
