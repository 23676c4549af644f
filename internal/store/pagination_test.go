package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPaginationParams_Validate(t *testing.T) {
	tests := []struct {
		name          string
		input         PaginationParams
		expectedLimit int
	}{
		{"valid parameters", PaginationParams{Limit: 20}, 20},
		{"zero limit uses default", PaginationParams{}, DefaultPageSize},
		{"negative limit uses default", PaginationParams{Limit: -10}, DefaultPageSize},
		{"limit is capped", PaginationParams{Limit: 5000}, MaxPageSize},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			params := tt.input
			params.Validate()
			assert.Equal(t, tt.expectedLimit, params.Limit)
		})
	}
}

func TestCursor_RoundTrip(t *testing.T) {
	for _, key := range []string{
		"batchtime:00000001760000000000000:Nightly @ 2026-10-19 09:00:00",
		"rec:com.example.app",
	} {
		t.Run(key, func(t *testing.T) {
			decoded, err := DecodeCursor(EncodeCursor(key))
			require.NoError(t, err)
			assert.Equal(t, key, decoded)
		})
	}
}

func TestDecodeCursor(t *testing.T) {
	got, err := DecodeCursor("")
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.Empty(t, EncodeCursor(""))

	_, err = DecodeCursor("not-valid-base64!!!")
	assert.ErrorIs(t, err, ErrInvalidInput)
}
