// Package selector decides which installed packages a schedule run targets.
//
// Select is pure: identical inputs always produce an identical, identically
// ordered result. An empty result is a valid outcome, not an error.
package selector

import (
	"slices"

	"github.com/neobackupapp/neobackup-server/internal/domain"
)

// CategoryFilter is the caller-supplied predicate for the main and special
// filters. A nil filter accepts every package.
type CategoryFilter func(domain.Package) bool

// Select returns the package names a run of schedule should process, sorted
// by package name.
//
//  1. effective block-list = global block-list + schedule block-list
//  2. allow-list set: candidates = allow-list ∩ installed
//     otherwise:     candidates = installed filtered by the category filter
//  3. drop blocked packages
//  4. tags set: keep packages carrying at least one tag that exists in extras;
//     tags unknown to every package are ignored
func Select(
	installed []domain.Package,
	schedule *domain.Schedule,
	extras map[string]domain.AppExtras,
	globalBlocklist []string,
	filter CategoryFilter,
) []string {
	blocked := make(map[string]struct{}, len(globalBlocklist)+len(schedule.BlockList))
	for _, name := range globalBlocklist {
		blocked[name] = struct{}{}
	}
	for _, name := range schedule.BlockList {
		blocked[name] = struct{}{}
	}

	var candidates []domain.Package
	if len(schedule.CustomList) > 0 {
		allowed := make(map[string]struct{}, len(schedule.CustomList))
		for _, name := range schedule.CustomList {
			allowed[name] = struct{}{}
		}
		for _, p := range installed {
			if _, ok := allowed[p.Name]; ok {
				candidates = append(candidates, p)
			}
		}
	} else {
		for _, p := range installed {
			if filter == nil || filter(p) {
				candidates = append(candidates, p)
			}
		}
	}

	tags := effectiveTags(schedule.TagsList, extras)

	seen := make(map[string]struct{}, len(candidates))
	out := make([]string, 0, len(candidates))
	for _, p := range candidates {
		if _, ok := blocked[p.Name]; ok {
			continue
		}
		if _, ok := seen[p.Name]; ok {
			continue
		}
		if len(tags) > 0 && !hasAnyTag(extras[p.Name], tags) {
			continue
		}
		seen[p.Name] = struct{}{}
		out = append(out, p.Name)
	}

	slices.Sort(out)
	return out
}

// effectiveTags restricts wanted to tags that appear on at least one package.
func effectiveTags(wanted []string, extras map[string]domain.AppExtras) map[string]struct{} {
	if len(wanted) == 0 {
		return nil
	}
	known := make(map[string]struct{})
	for _, e := range extras {
		for _, tag := range e.CustomTags {
			known[tag] = struct{}{}
		}
	}
	out := make(map[string]struct{}, len(wanted))
	for _, tag := range wanted {
		if _, ok := known[tag]; ok {
			out[tag] = struct{}{}
		}
	}
	return out
}

func hasAnyTag(e domain.AppExtras, tags map[string]struct{}) bool {
	for _, tag := range e.CustomTags {
		if _, ok := tags[tag]; ok {
			return true
		}
	}
	return false
}
