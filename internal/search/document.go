// Package search provides full-text search over backed-up packages using
// Bleve. One document per package carries its label, tags, note and a
// summary of its backups.
package search

import (
	"github.com/neobackupapp/neobackup-server/internal/domain"
)

// Kind is the main-filter category of a package.
type Kind string

// Package kinds.
const (
	KindUser    Kind = "user"
	KindSystem  Kind = "system"
	KindSpecial Kind = "special"
)

// KindOf maps a package to its category.
func KindOf(p domain.Package) Kind {
	switch {
	case p.IsSpecial:
		return KindSpecial
	case p.IsSystem:
		return KindSystem
	default:
		return KindUser
	}
}

// SearchDocument is the document structure for the Bleve index.
// ID is the package name.
type SearchDocument struct {
	ID    string `json:"id"`
	Kind  Kind   `json:"kind"`
	Label string `json:"label"`

	// Name splits the package name on dots for matching, e.g. "com example app".
	Name string `json:"name"`

	Tags        []string `json:"tags,omitempty"`
	Note        string   `json:"note,omitempty"`
	VersionName string   `json:"version_name,omitempty"`
	Categories  []string `json:"categories,omitempty"` // data categories of the latest backup

	Installed    bool  `json:"installed"`
	BackupCount  int   `json:"backup_count"`
	TotalSize    int64 `json:"total_size"`
	LatestBackup int64 `json:"latest_backup,omitempty"` // Unix millis
}

// ToMap converts the document to a map with lowercase field names.
// This ensures field names match the Bleve index mapping.
func (d *SearchDocument) ToMap() map[string]any {
	m := map[string]any{
		"id":           d.ID,
		"kind":         string(d.Kind),
		"label":        d.Label,
		"name":         d.Name,
		"installed":    boolKeyword(d.Installed),
		"backup_count": d.BackupCount,
		"total_size":   d.TotalSize,
	}

	if len(d.Tags) > 0 {
		m["tags"] = d.Tags
	}
	if d.Note != "" {
		m["note"] = d.Note
	}
	if d.VersionName != "" {
		m["version_name"] = d.VersionName
	}
	if len(d.Categories) > 0 {
		m["categories"] = d.Categories
	}
	if d.LatestBackup > 0 {
		m["latest_backup"] = d.LatestBackup
	}

	return m
}

func boolKeyword(b bool) string {
	if b {
		return "true"
	}
	return "false"
}

// PackageToSearchDocument builds the document of one package. pkg may be
// the zero value for packages that are no longer installed; extras may be nil.
func PackageToSearchDocument(name string, pkg domain.Package, records []domain.BackupRecord, extras *domain.AppExtras) *SearchDocument {
	doc := &SearchDocument{
		ID:          name,
		Kind:        KindOf(pkg),
		Label:       pkg.Label,
		Name:        splitName(name),
		Installed:   pkg.IsInstalled,
		VersionName: pkg.VersionName,
		BackupCount: len(records),
	}

	for _, r := range records {
		doc.TotalSize += r.Size
	}
	if latest, ok := domain.Latest(records); ok {
		doc.LatestBackup = latest.BackupDate.UnixMilli()
		if doc.Label == "" {
			doc.Label = latest.PackageLabel
		}
		if doc.VersionName == "" {
			doc.VersionName = latest.VersionName
		}
		for _, m := range latest.Mode().Modes() {
			doc.Categories = append(doc.Categories, m.String())
		}
	}
	if doc.Label == "" {
		doc.Label = name
	}

	if extras != nil {
		doc.Tags = extras.CustomTags
		doc.Note = extras.Note
	}

	return doc
}

func splitName(name string) string {
	b := []byte(name)
	for i, c := range b {
		if c == '.' || c == '_' {
			b[i] = ' '
		}
	}
	return string(b)
}
