package domain

import (
	"fmt"
	"strings"
)

// Mode is a bitmask of the data categories a backup or restore touches.
type Mode int

// Data categories.
const (
	ModeUnset     Mode = 0
	ModeDataOBB   Mode = 0b0000001
	ModeDataExt   Mode = 0b0000010
	ModeDataDE    Mode = 0b0000100
	ModeData      Mode = 0b0001000
	ModeAPK       Mode = 0b0010000
	ModeDataMedia Mode = 0b1000000

	ModeAll = ModeAPK | ModeData | ModeDataDE | ModeDataExt | ModeDataOBB | ModeDataMedia
)

// modeOrder is the order categories are processed and printed in.
var modeOrder = []struct {
	mode Mode
	name string
}{
	{ModeAPK, "apk"},
	{ModeData, "data"},
	{ModeDataDE, "device-protected"},
	{ModeDataExt, "external"},
	{ModeDataOBB, "obb"},
	{ModeDataMedia, "media"},
}

// Has reports whether every bit of other is set.
func (m Mode) Has(other Mode) bool {
	return other != 0 && m&other == other
}

// Valid reports whether m is non-empty and has no unknown bits.
func (m Mode) Valid() bool {
	return m != ModeUnset && m&^ModeAll == 0
}

// Modes splits m into its single-category components.
func (m Mode) Modes() []Mode {
	out := make([]Mode, 0, len(modeOrder))
	for _, c := range modeOrder {
		if m.Has(c.mode) {
			out = append(out, c.mode)
		}
	}
	return out
}

func (m Mode) String() string {
	if m == ModeUnset {
		return "unset"
	}
	names := make([]string, 0, len(modeOrder))
	for _, c := range modeOrder {
		if m.Has(c.mode) {
			names = append(names, c.name)
		}
	}
	return strings.Join(names, ",")
}

// ParseMode builds a mode from category names such as "apk" or "data".
// "all" selects every category.
func ParseMode(names []string) (Mode, error) {
	var m Mode
	for _, n := range names {
		n = strings.ToLower(strings.TrimSpace(n))
		if n == "all" {
			m |= ModeAll
			continue
		}
		found := false
		for _, c := range modeOrder {
			if c.name == n {
				m |= c.mode
				found = true
				break
			}
		}
		if !found {
			return ModeUnset, fmt.Errorf("unknown backup category %q", n)
		}
	}
	return m, nil
}

// Main filter bits select which package classes a schedule considers.
const (
	MainFilterSpecial = 0b001
	MainFilterUser    = 0b010
	MainFilterSystem  = 0b100
	MainFilterDefault = MainFilterSystem | MainFilterUser | MainFilterSpecial
)

// Special filter values. Zero always means "do not filter".
const (
	InstalledAll = iota
	InstalledOnly
	InstalledNot
)

const (
	LaunchableAll = iota
	LaunchableOnly
	LaunchableNot
)

const (
	UpdatedAll = iota
	UpdatedOnly
	UpdatedNew // packages without any backup
	UpdatedNot
)

const (
	EnabledAll = iota
	EnabledOnly
	EnabledDisabled
)

const (
	LatestAll    = iota
	LatestOld    // newest backup older than the configured age
	LatestRecent // newest backup younger than the age, or no backup at all
)

// SpecialFilter narrows the candidate set by package state.
type SpecialFilter struct {
	Installed  int `json:"installed"`
	Launchable int `json:"launchable"`
	Updated    int `json:"updated"`
	Enabled    int `json:"enabled"`
	Latest     int `json:"latest"`
}
