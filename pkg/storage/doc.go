/*
Package storage defines the opaque byte-oriented backend contract that
sits below the barrier, plus four concrete implementations selected via
STORAGE_BACKEND.

The storage layer never sees plaintext. The barrier encrypts every value
before it reaches Put and decrypts every value Get returns; backends only
ever store and retrieve ciphertext (and the two bootstrap entries written
through put_raw). Keys are left unencrypted so List can do prefix
matching without a secondary index.

# Architecture

	┌──────────────────── STORAGE BACKENDS ─────────────────────┐
	│                                                             │
	│              Backend interface (this package)              │
	│   Get / Put / Delete / List / Exists / Close               │
	│                                                             │
	│  ┌───────────┐ ┌───────────┐ ┌───────────┐ ┌────────────┐ │
	│  │  memory   │ │   btree   │ │    lsm    │ │    sql     │ │
	│  │ map+mutex │ │  bbolt    │ │  pebble   │ │ postgres   │ │
	│  │ (default) │ │ (on-disk) │ │ (pebble)  │ │ (lib/pq)   │ │
	│  └───────────┘ └───────────┘ └───────────┘ └────────────┘ │
	│                                                             │
	└─────────────────────────────────────────────────────────────┘

STORAGE_BACKEND selects one of memory, btree, lsm, or sql. STORAGE_PATH is
a filesystem directory for memory/btree/lsm and a libpq connection string
for sql.

The btree backend keeps BoltDB's single-bucket-per-concern style but
collapses to one bucket, since the barrier — not the backend — is
responsible for all higher-level structure (mount prefixes, versioning).
*/
package storage
