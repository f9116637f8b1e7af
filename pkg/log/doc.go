/*
Package log provides structured logging for the vault using zerolog.

The log package wraps the zerolog library to provide JSON-structured logging
with component-specific loggers, configurable log levels, and helper
functions for common logging patterns. All logs include timestamps and
support filtering by severity level for production debugging.

# Architecture

	┌──────────────────── LOGGING SYSTEM ──────────────────────┐
	│                                                            │
	│  ┌────────────────────────────────────────────┐          │
	│  │            Global Logger                    │          │
	│  │  - Zerolog instance                         │          │
	│  │  - Initialized via log.Init()               │          │
	│  │  - Thread-safe for concurrent use           │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │           Configuration                     │          │
	│  │  - Level: debug/info/warn/error             │          │
	│  │  - Format: JSON or console (human)          │          │
	│  │  - Output: stdout, file, or custom writer   │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │         Context Loggers                     │          │
	│  │  - WithComponent("barrier")                 │          │
	│  │  - WithMount("kv/default/")                 │          │
	│  │  - WithTokenID(token.ID)                    │          │
	│  │  - WithLeaseID(lease.ID)                    │          │
	│  │  - WithRequestID(req.ID)                    │          │
	│  └──────────────────────────────────────────────┘          │
	│                                                            │
	└────────────────────────────────────────────────────────────┘

# Log Levels

Debug: detailed internal state, verbose, LOG_LEVEL=debug only.
Info: lifecycle events — init, unseal, mount, lease issued.
Warn: degraded but recoverable — a lease-scan tick exhausted its retries.
Error: operation failed — storage write error, audit backend unreachable.
Fatal: process cannot continue — reserved for startup failures.

Token IDs are never logged in full; WithTokenID is intended for the
token's opaque accessor or a truncated display form, never the raw secret.
*/
package log
