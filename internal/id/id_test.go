package id

import (
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerate_Uniqueness(t *testing.T) {
	ids := make(map[string]bool)
	count := 1000

	for i := 0; i < count; i++ {
		id, err := Generate(PrefixWorkUnit)
		require.NoError(t, err)
		assert.False(t, ids[id], "ID should be unique: %s", id)
		ids[id] = true
	}

	assert.Len(t, ids, count)
}

func TestGenerate_Format(t *testing.T) {
	for _, prefix := range []string{PrefixWorkUnit, PrefixExport, PrefixToken, "custom"} {
		t.Run(prefix, func(t *testing.T) {
			id, err := Generate(prefix)
			require.NoError(t, err)
			assert.True(t, strings.HasPrefix(id, prefix+"-"))
			// 21 character nanoid after the prefix and hyphen
			assert.Len(t, id, len(prefix)+1+21)
		})
	}
}

func TestMustGenerate(t *testing.T) {
	assert.NotPanics(t, func() {
		assert.True(t, strings.HasPrefix(MustGenerate("x"), "x-"))
	})
}

func TestNewRunID(t *testing.T) {
	a, b := NewRunID(), NewRunID()
	assert.NotEqual(t, a, b)
	_, err := uuid.Parse(a)
	assert.NoError(t, err)
}

func TestNextNotificationID_UniqueUnderConcurrency(t *testing.T) {
	var (
		mu   sync.Mutex
		seen = make(map[int]bool)
		wg   sync.WaitGroup
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				n := NextNotificationID()
				mu.Lock()
				seen[n] = true
				mu.Unlock()
				assert.Positive(t, n)
			}
		}()
	}
	wg.Wait()
	assert.Len(t, seen, 800)
}
