package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/neobackupapp/neobackup-server/internal/domain"
	"github.com/neobackupapp/neobackup-server/internal/logger"
	"github.com/neobackupapp/neobackup-server/internal/registry"
	"github.com/neobackupapp/neobackup-server/internal/sse"
)

type recordingEmitter struct {
	mu     sync.Mutex
	events []sse.Event
}

func (r *recordingEmitter) Emit(e sse.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recordingEmitter) types() []sse.EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]sse.EventType, len(r.events))
	for i, e := range r.events {
		out[i] = e.Type
	}
	return out
}

func TestRelayRegistryChanges(t *testing.T) {
	reg := registry.New(logger.Discard())
	events := &recordingEmitter{}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go RelayRegistryChanges(ctx, reg, events, logger.Discard())

	require.Eventually(t, func() bool {
		reg.Put(domain.BackupRecord{PackageName: "com.a.app", BackupDate: testNow})
		return len(events.types()) > 0
	}, 5*time.Second, 20*time.Millisecond)

	assert.Equal(t, sse.EventRegistryChanged, events.types()[0])
}
