package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeTag(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		// Basic normalization
		{"lowercase", "MESSENGERS", "messengers"},
		{"spaces to dashes", "work apps", "work-apps"},
		{"underscores to dashes", "work_apps", "work-apps"},
		{"already normalized", "work-apps", "work-apps"},

		// Whitespace handling
		{"trim whitespace", "  games  ", "games"},
		{"multiple spaces", "work   apps", "work-apps"},
		{"tabs and spaces", "work\t apps", "work-apps"},

		// Unicode
		{"accents folded", "Café Tools", "cafe-tools"},
		{"emoji removal", "🎮 Games!", "games"},
		{"slash", "root/system", "root-system"},

		// Dash handling
		{"multiple dashes", "work--apps", "work-apps"},
		{"mixed dashes", "--work--apps--", "work-apps"},

		// Edge cases
		{"empty string", "", ""},
		{"only spaces", "   ", ""},
		{"only special chars", "!@#$%", ""},
		{"numbers allowed", "top10", "top10"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, NormalizeTag(tt.input))
		})
	}
}

func TestNormalizeTags(t *testing.T) {
	got := NormalizeTags([]string{"Games", "games", " ", "Work Apps", "!!"})
	assert.Equal(t, []string{"games", "work-apps"}, got)
	assert.Empty(t, NormalizeTags(nil))
}

func TestSortByLabel(t *testing.T) {
	labels := []string{"zoom", "Écrivain", "editor", "Alpha"}
	SortByLabel(labels, func(s string) string { return s })
	assert.Equal(t, []string{"Alpha", "Écrivain", "editor", "zoom"}, labels)
}
