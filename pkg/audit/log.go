package audit

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/cuemby/vaultwarren/pkg/log"
)

// LogBackend writes audit entries through the process's structured
// logger. It is always available, so a server with no file (or other)
// backend configured still has somewhere to fail open to.
type LogBackend struct {
	logger zerolog.Logger
}

// NewLogBackend returns a Backend that writes entries as structured log
// lines under the "audit" component.
func NewLogBackend() *LogBackend {
	return &LogBackend{logger: log.WithComponent("audit")}
}

func (b *LogBackend) Name() string { return "log" }

func (b *LogBackend) Write(ctx context.Context, entry *Entry) error {
	b.logger.Info().
		Str("operation", entry.Operation).
		Str("path", entry.Path).
		Str("mount", entry.Mount).
		Str("actor_hash", entry.ActorHash).
		Int("status_code", entry.StatusCode).
		Str("error", entry.Error).
		Msg("audit")
	return nil
}
