package store

import (
	"fmt"
	"sync"
	"time"
)

// Key layout:
//
//	batch:<name>                            BatchResult JSON
//	batchtime:<completed unix nano>:<name>  name, ordered by completion
//	rec:<package>                           []BackupRecord JSON
const (
	batchPrefix     = "batch:"
	batchTimePrefix = "batchtime:"
	recordPrefix    = "rec:"
)

// keyPool provides reusable byte slices for building database keys.
var keyPool = sync.Pool{
	New: func() any {
		return make([]byte, 0, 256)
	},
}

// buildKey constructs a database key from prefix and suffix using a pooled buffer.
// The returned slice is valid until releaseKey is called.
func buildKey(prefix, suffix string) []byte {
	buf, _ := keyPool.Get().([]byte)
	buf = buf[:0]
	buf = append(buf, prefix...)
	buf = append(buf, suffix...)
	return buf
}

// releaseKey returns a key buffer to the pool for reuse.
// After calling this, the key slice must not be used.
func releaseKey(key []byte) {
	// Oversized buffers are left to the GC.
	if cap(key) <= 512 {
		keyPool.Put(key[:0]) //nolint:staticcheck // slice header is small
	}
}

// batchTimeKey orders batches by completion time. Zero padding keeps the
// lexicographic order equal to the numeric one.
func batchTimeKey(completed time.Time, name string) string {
	return fmt.Sprintf("%s%020d:%s", batchTimePrefix, completed.UnixNano(), name)
}
