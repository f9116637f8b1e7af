package audit

import (
	"context"
	"encoding/json"
	"os"
	"sync"

	"github.com/cuemby/vaultwarren/pkg/vaulterr"
)

// FileBackend appends newline-delimited JSON entries to a file opened in
// append mode, serializing writes with a mutex since os.File offers no
// atomicity guarantee for concurrent appends across goroutines.
type FileBackend struct {
	mu   sync.Mutex
	file *os.File
}

// NewFileBackend opens (creating if necessary) path for append-only writes.
func NewFileBackend(path string) (*FileBackend, error) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return nil, vaulterr.Wrap(vaulterr.Internal, err, "open audit log")
	}
	return &FileBackend{file: f}, nil
}

// Name identifies this backend in metrics and warning logs.
func (b *FileBackend) Name() string { return "file" }

// Write appends entry as a single JSON line.
func (b *FileBackend) Write(_ context.Context, entry *Entry) error {
	line, err := json.Marshal(entry)
	if err != nil {
		return vaulterr.Wrap(vaulterr.Internal, err, "marshal audit entry")
	}
	line = append(line, '\n')

	b.mu.Lock()
	defer b.mu.Unlock()
	if _, err := b.file.Write(line); err != nil {
		return vaulterr.Wrap(vaulterr.Internal, err, "write audit entry")
	}
	return nil
}

// Close closes the underlying file.
func (b *FileBackend) Close() error {
	return b.file.Close()
}
