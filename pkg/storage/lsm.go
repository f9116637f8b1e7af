package storage

import (
	"bytes"
	"context"
	"path/filepath"

	"github.com/cockroachdb/pebble"
)

// LSMBackend implements Backend on top of a Pebble LSM-tree, selected via
// STORAGE_BACKEND=lsm. It trades BoltDB's single-writer B-tree for
// higher write throughput on spinning or network-attached disks, at the
// cost of background compaction.
type LSMBackend struct {
	db *pebble.DB
}

// NewLSMBackend opens (creating if necessary) a Pebble store under dataDir.
func NewLSMBackend(dataDir string) (*LSMBackend, error) {
	db, err := pebble.Open(filepath.Join(dataDir, "vault-lsm"), &pebble.Options{})
	if err != nil {
		return nil, err
	}
	return &LSMBackend{db: db}, nil
}

func (l *LSMBackend) Get(_ context.Context, key string) ([]byte, error) {
	v, closer, err := l.db.Get([]byte(key))
	if err == pebble.ErrNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	out := make([]byte, len(v))
	copy(out, v)
	closer.Close()
	return out, nil
}

func (l *LSMBackend) Put(_ context.Context, key string, value []byte) error {
	return l.db.Set([]byte(key), value, pebble.Sync)
}

func (l *LSMBackend) Delete(_ context.Context, key string) error {
	return l.db.Delete([]byte(key), pebble.Sync)
}

func (l *LSMBackend) List(_ context.Context, prefix string) ([]string, error) {
	iter, err := l.db.NewIter(&pebble.IterOptions{
		LowerBound: []byte(prefix),
		UpperBound: prefixUpperBound([]byte(prefix)),
	})
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	var keys []string
	for iter.First(); iter.Valid(); iter.Next() {
		keys = append(keys, string(bytes.Clone(iter.Key())))
	}
	return keys, iter.Error()
}

func (l *LSMBackend) Exists(ctx context.Context, key string) (bool, error) {
	v, err := l.Get(ctx, key)
	return v != nil, err
}

func (l *LSMBackend) Close() error {
	return l.db.Close()
}

// prefixUpperBound computes the smallest key greater than every key with
// the given prefix, for use as a Pebble iterator's exclusive upper bound.
func prefixUpperBound(prefix []byte) []byte {
	upper := bytes.Clone(prefix)
	for i := len(upper) - 1; i >= 0; i-- {
		upper[i]++
		if upper[i] != 0 {
			return upper[:i+1]
		}
	}
	return nil // prefix is all 0xff bytes; unbounded
}
