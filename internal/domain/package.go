package domain

// Package describes an installed (or previously installed) package as reported
// by the device inventory.
type Package struct {
	Name         string `json:"name" yaml:"name"`
	Label        string `json:"label" yaml:"label"`
	IsSystem     bool   `json:"is_system" yaml:"system"`
	IsSpecial    bool   `json:"is_special" yaml:"special"`
	IsInstalled  bool   `json:"is_installed" yaml:"installed"`
	IsDisabled   bool   `json:"is_disabled" yaml:"disabled"`
	IsLaunchable bool   `json:"is_launchable" yaml:"launchable"`
	IsUpdated    bool   `json:"is_updated" yaml:"updated"`
	VersionCode  int64  `json:"version_code" yaml:"version_code"`
	VersionName  string `json:"version_name" yaml:"version_name"`
}

// DisplayLabel falls back to the package name when no label is known.
func (p Package) DisplayLabel() string {
	if p.Label == "" {
		return p.Name
	}
	return p.Label
}

// AppExtras carries user annotations for a package.
type AppExtras struct {
	PackageName string   `json:"package_name"`
	CustomTags  []string `json:"custom_tags"`
	Note        string   `json:"note,omitempty"`
}

// GlobalBlocklistID is the blocklist shared by every schedule.
const GlobalBlocklistID int64 = -1
