package storage

import (
	"context"
	"testing"
)

func TestMemoryBackendRoundtrip(t *testing.T) {
	b := NewMemoryBackend()
	ctx := context.Background()

	v, err := b.Get(ctx, "missing")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if v != nil {
		t.Fatalf("Get() on missing key = %v, want nil", v)
	}

	if err := b.Put(ctx, "a", []byte("1")); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	v, err = b.Get(ctx, "a")
	if err != nil || string(v) != "1" {
		t.Fatalf("Get() = %v, %v, want \"1\", nil", string(v), err)
	}

	exists, err := b.Exists(ctx, "a")
	if err != nil || !exists {
		t.Fatalf("Exists() = %v, %v, want true, nil", exists, err)
	}

	if err := b.Delete(ctx, "a"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	exists, _ = b.Exists(ctx, "a")
	if exists {
		t.Fatal("Exists() after Delete() = true, want false")
	}
}

func TestMemoryBackendList(t *testing.T) {
	b := NewMemoryBackend()
	ctx := context.Background()

	_ = b.Put(ctx, "kv/data/a", []byte("1"))
	_ = b.Put(ctx, "kv/data/b", []byte("2"))
	_ = b.Put(ctx, "sys/config", []byte("3"))

	keys, err := b.List(ctx, "kv/data/")
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(keys) != 2 || keys[0] != "kv/data/a" || keys[1] != "kv/data/b" {
		t.Fatalf("List() = %v, want [kv/data/a kv/data/b]", keys)
	}
}

func TestMemoryBackendPutOverwritesCopy(t *testing.T) {
	b := NewMemoryBackend()
	ctx := context.Background()

	buf := []byte("original")
	_ = b.Put(ctx, "k", buf)
	buf[0] = 'X' // mutate caller's slice after Put

	v, _ := b.Get(ctx, "k")
	if string(v) != "original" {
		t.Fatalf("backend aliased caller's buffer: got %q", v)
	}
}
