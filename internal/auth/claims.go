package auth

import (
	"slices"
	"time"
)

// Scope grants access to a group of operations.
type Scope string

// Token scopes.
const (
	// ScopeRead allows listing schedules, backups and batches.
	ScopeRead Scope = "read"
	// ScopeWrite allows editing schedules, blocklists, extras and backups.
	ScopeWrite Scope = "write"
	// ScopeCommands allows the command endpoints.
	ScopeCommands Scope = "commands"
	// ScopeDebug allows the crash command.
	ScopeDebug Scope = "debug"
)

// AllScopes lists every scope except debug.
var AllScopes = []Scope{ScopeRead, ScopeWrite, ScopeCommands}

// ParseScope validates a scope name.
func ParseScope(s string) (Scope, bool) {
	sc := Scope(s)
	return sc, slices.Contains(AllScopes, sc) || sc == ScopeDebug
}

// Claims represents the claims stored in a PASETO access token.
// These are encrypted in v4.local tokens, so they're not readable without the key.
type Claims struct {
	Client string  `json:"client"`
	Scopes []Scope `json:"scopes"`

	// Standard PASETO claims
	Issuer     string    `json:"iss"`
	Subject    string    `json:"sub"`
	Audience   string    `json:"aud"`
	Expiration time.Time `json:"exp"`
	NotBefore  time.Time `json:"nbf"`
	IssuedAt   time.Time `json:"iat"`
	TokenID    string    `json:"jti"`
}

// Has reports whether the token grants scope.
func (c *Claims) Has(scope Scope) bool {
	return slices.Contains(c.Scopes, scope)
}
