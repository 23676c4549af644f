package store

import (
	"encoding/base64"
	"fmt"
)

// Page size limits.
const (
	DefaultPageSize = 50
	MaxPageSize     = 500
)

// PaginationParams contains pagination request parameters.
type PaginationParams struct {
	Limit  int    // Items per page, DefaultPageSize when unset, capped at MaxPageSize
	Cursor string // Opaque cursor for the next page, empty for the first page
}

// PaginatedResult contains one page of items.
type PaginatedResult[T any] struct {
	Items      []T    `json:"items"`
	NextCursor string `json:"next_cursor,omitempty"` // Empty if no more pages
	HasMore    bool   `json:"has_more"`
}

// Validate clamps the limit into range.
func (p *PaginationParams) Validate() {
	if p.Limit <= 0 {
		p.Limit = DefaultPageSize
	}
	if p.Limit > MaxPageSize {
		p.Limit = MaxPageSize
	}
}

// EncodeCursor creates an opaque cursor from the last key of a page.
func EncodeCursor(key string) string {
	if key == "" {
		return ""
	}
	return base64.RawURLEncoding.EncodeToString([]byte(key))
}

// DecodeCursor decodes a cursor back to a key.
func DecodeCursor(cursor string) (string, error) {
	if cursor == "" {
		return "", nil
	}

	decoded, err := base64.RawURLEncoding.DecodeString(cursor)
	if err != nil {
		return "", fmt.Errorf("invalid cursor: %w", ErrInvalidInput)
	}

	return string(decoded), nil
}
