// Package id generates identifiers for work units, runs and notifications.
package id

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	gonanoid "github.com/matoous/go-nanoid/v2"
)

// Prefixes used across the scheduler.
const (
	PrefixWorkUnit = "wu"
	PrefixExport   = "exp"
	PrefixToken    = "tok"
)

// Generate creates a prefixed NanoID, e.g. "wu-V1StGXR8_Z5jdHi6B-myT".
func Generate(prefix string) (string, error) {
	id, err := gonanoid.New()
	if err != nil {
		return "", fmt.Errorf("generate nanoid: %w", err)
	}
	return prefix + "-" + id, nil
}

// MustGenerate is like Generate but panics if ID generation fails.
func MustGenerate(prefix string) string {
	id, err := Generate(prefix)
	if err != nil {
		panic(fmt.Sprintf("failed to generate ID: %v", err))
	}
	return id
}

// NewRunID returns a random UUID identifying one trigger attempt.
func NewRunID() string {
	return uuid.NewString()
}

var notificationSeq atomic.Int32

func init() {
	notificationSeq.Store(int32(time.Now().Unix() & 0x3fffffff))
}

// NextNotificationID returns a process-unique positive notification id.
func NextNotificationID() int {
	n := notificationSeq.Add(1)
	if n < 0 {
		n &= 0x3fffffff
	}
	return int(n)
}
