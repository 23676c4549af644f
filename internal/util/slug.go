// Package util provides small text helpers shared by services.
package util

import (
	"regexp"
	"slices"
	"strings"
	"unicode"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"
)

var (
	// Matches spaces, underscores, and slashes (for replacement with dashes).
	wordSeparatorRe = regexp.MustCompile(`[\s_/]+`)
	// Matches non-alphanumeric characters (except dashes).
	nonAlphanumericRe = regexp.MustCompile(`[^a-z0-9-]`)
	// Matches multiple consecutive dashes.
	multipleDashRe = regexp.MustCompile(`-+`)
)

// NormalizeTag converts user input to a canonical custom tag.
// Tags are compared by this form when a schedule filters by tag.
//
// Normalization rules:
//  1. Decompose accented characters and drop non-ASCII runes
//  2. Trim whitespace and lowercase
//  3. Replace spaces, underscores and slashes with dashes
//  4. Remove non-alphanumeric characters (except dashes)
//  5. Collapse and trim dashes
//
// Examples:
//
//	"Messengers"     → "messengers"
//	"work_apps"      → "work-apps"
//	"Café Tools"     → "cafe-tools"
//	"  --Games!-- "  → "games"
func NormalizeTag(input string) string {
	s := norm.NFKD.String(input)
	s = strings.Map(func(r rune) rune {
		if r > unicode.MaxASCII {
			return -1
		}
		return r
	}, s)

	s = strings.ToLower(strings.TrimSpace(s))
	s = wordSeparatorRe.ReplaceAllString(s, "-")
	s = nonAlphanumericRe.ReplaceAllString(s, "")
	s = multipleDashRe.ReplaceAllString(s, "-")

	return strings.Trim(s, "-")
}

// NormalizeTags normalizes, dedupes and sorts a tag list. Tags that
// normalize to nothing are dropped.
func NormalizeTags(input []string) []string {
	out := make([]string, 0, len(input))
	for _, t := range input {
		if slug := NormalizeTag(t); slug != "" {
			out = append(out, slug)
		}
	}
	slices.Sort(out)
	return slices.Compact(out)
}

// SortByLabel sorts items by a human label using Unicode collation, so
// "Écrivain" sorts next to "Editor" rather than after "Zoom". Ties keep
// their order.
func SortByLabel[T any](items []T, label func(T) string) {
	c := collate.New(language.Und, collate.IgnoreCase, collate.Loose)
	slices.SortStableFunc(items, func(a, b T) int {
		return c.CompareString(label(a), label(b))
	})
}
