package service

import (
	"context"
	"log/slog"

	"github.com/neobackupapp/neobackup-server/internal/registry"
	"github.com/neobackupapp/neobackup-server/internal/sse"
)

// ChangeSource publishes committed registry changes.
type ChangeSource interface {
	Subscribe(ctx context.Context) <-chan registry.Change
}

// Emitter broadcasts server-sent events.
type Emitter interface {
	Emit(sse.Event)
}

// RelayRegistryChanges emits a registry.changed event for every committed
// registry change until ctx is done. Run it in a goroutine.
func RelayRegistryChanges(ctx context.Context, src ChangeSource, events Emitter, logger *slog.Logger) {
	n := 0
	for c := range src.Subscribe(ctx) {
		events.Emit(sse.NewRegistryChangedEvent(c.Version, c.Packages, c.All))
		n++
	}
	logger.Debug("registry relay stopped", slog.Int("relayed", n))
}
