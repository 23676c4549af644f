package watcher

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/neobackupapp/neobackup-server/internal/logger"
)

func TestOptions_Defaults(t *testing.T) {
	opts := Options{}
	opts.setDefaults()

	assert.True(t, opts.IgnoreHidden)
	assert.Equal(t, 2*time.Second, opts.Debounce)
	assert.Contains(t, opts.IgnorePatterns, "*.tmp")
}

func TestOptions_ExplicitEmptyPatterns(t *testing.T) {
	opts := Options{IgnorePatterns: []string{}, Debounce: time.Second}
	opts.setDefaults()

	assert.False(t, opts.IgnoreHidden)
	assert.Equal(t, time.Second, opts.Debounce)
	assert.False(t, opts.shouldIgnore(".hidden"))
}

func TestOptions_ShouldIgnore(t *testing.T) {
	opts := Options{}
	opts.setDefaults()

	tests := []struct {
		path   string
		expect bool
	}{
		{".", false},
		{"com.app/2026-01-01-00-00-00.000.properties", false},
		{"com.app/2026-01-01-00-00-00.000.properties.tmp", true},
		{".trash/com.app", true},
		{"com.app/.partial", true},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.expect, opts.shouldIgnore(tt.path))
		})
	}
}

func TestWatcher_DebouncesChanges(t *testing.T) {
	root := t.TempDir()
	w, err := New(root, logger.Discard(), Options{Debounce: 100 * time.Millisecond})
	require.NoError(t, err)
	defer w.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var calls atomic.Int32
	go func() { _ = w.Run(ctx, func() { calls.Add(1) }) }()

	pkgDir := filepath.Join(root, "com.app")
	require.NoError(t, os.MkdirAll(pkgDir, 0o755))
	for i := range 3 {
		name := filepath.Join(pkgDir, "f"+string(rune('a'+i))+".properties")
		require.NoError(t, os.WriteFile(name, []byte("{}"), 0o644))
	}

	assert.Eventually(t, func() bool { return calls.Load() >= 1 }, 3*time.Second, 20*time.Millisecond)
	time.Sleep(300 * time.Millisecond)
	assert.LessOrEqual(t, calls.Load(), int32(2))
}

func TestWatcher_IgnoredFilesDoNotTrigger(t *testing.T) {
	root := t.TempDir()
	w, err := New(root, logger.Discard(), Options{Debounce: 50 * time.Millisecond})
	require.NoError(t, err)
	defer w.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var calls atomic.Int32
	go func() { _ = w.Run(ctx, func() { calls.Add(1) }) }()

	require.NoError(t, os.WriteFile(filepath.Join(root, "x.tmp"), []byte("x"), 0o644))
	time.Sleep(250 * time.Millisecond)
	assert.Zero(t, calls.Load())
}

func TestNew_MissingRoot(t *testing.T) {
	_, err := New(filepath.Join(t.TempDir(), "missing"), logger.Discard(), Options{})
	assert.Error(t, err)
}
