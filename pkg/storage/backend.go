package storage

import "fmt"

// Open constructs a Backend for the given STORAGE_BACKEND kind. path is a
// filesystem directory for memory/btree/lsm, or a libpq DSN for sql.
func Open(kind, path string) (Backend, error) {
	switch kind {
	case "", "memory":
		return NewMemoryBackend(), nil
	case "btree":
		return NewBoltBackend(path)
	case "lsm":
		return NewLSMBackend(path)
	case "sql":
		return NewSQLBackend(path)
	default:
		return nil, fmt.Errorf("storage: unknown backend %q (want memory, btree, lsm, or sql)", kind)
	}
}
