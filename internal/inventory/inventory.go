// Package inventory loads the device package list from a YAML file.
//
//	packages:
//	  - name: org.example.notes
//	    label: Notes
//	    launchable: true
//	  - name: com.android.providers.contacts
//	    system: true
//	    special: true
package inventory

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"slices"
	"strings"
	"sync/atomic"

	"gopkg.in/yaml.v3"

	"github.com/neobackupapp/neobackup-server/internal/domain"
)

type file struct {
	Packages []entry `yaml:"packages"`
}

// entry mirrors domain.Package but lets installed default to true.
type entry struct {
	Name        string `yaml:"name"`
	Label       string `yaml:"label"`
	System      bool   `yaml:"system"`
	Special     bool   `yaml:"special"`
	Installed   *bool  `yaml:"installed"`
	Disabled    bool   `yaml:"disabled"`
	Launchable  bool   `yaml:"launchable"`
	Updated     bool   `yaml:"updated"`
	VersionCode int64  `yaml:"version_code"`
	VersionName string `yaml:"version_name"`
}

func (e entry) pkg() domain.Package {
	installed := true
	if e.Installed != nil {
		installed = *e.Installed
	}
	return domain.Package{
		Name:         strings.TrimSpace(e.Name),
		Label:        e.Label,
		IsSystem:     e.System,
		IsSpecial:    e.Special,
		IsInstalled:  installed,
		IsDisabled:   e.Disabled,
		IsLaunchable: e.Launchable,
		IsUpdated:    e.Updated,
		VersionCode:  e.VersionCode,
		VersionName:  e.VersionName,
	}
}

// Parse decodes an inventory document. Entries without a name are dropped and
// later duplicates replace earlier ones. The result is sorted by name.
func Parse(data []byte) ([]domain.Package, error) {
	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse inventory: %w", err)
	}

	byName := make(map[string]domain.Package, len(f.Packages))
	for _, e := range f.Packages {
		p := e.pkg()
		if p.Name == "" {
			continue
		}
		byName[p.Name] = p
	}

	out := make([]domain.Package, 0, len(byName))
	for _, p := range byName {
		out = append(out, p)
	}
	slices.SortFunc(out, func(a, b domain.Package) int { return strings.Compare(a.Name, b.Name) })
	return out, nil
}

// Marshal renders packages in the inventory file format.
func Marshal(pkgs []domain.Package) ([]byte, error) {
	f := file{Packages: make([]entry, 0, len(pkgs))}
	for _, p := range pkgs {
		installed := p.IsInstalled
		f.Packages = append(f.Packages, entry{
			Name:        p.Name,
			Label:       p.Label,
			System:      p.IsSystem,
			Special:     p.IsSpecial,
			Installed:   &installed,
			Disabled:    p.IsDisabled,
			Launchable:  p.IsLaunchable,
			Updated:     p.IsUpdated,
			VersionCode: p.VersionCode,
			VersionName: p.VersionName,
		})
	}
	return yaml.Marshal(f)
}

type snapshot struct {
	list   []domain.Package
	byName map[string]domain.Package
}

// Source serves the current inventory. Reload swaps it atomically.
type Source struct {
	path   string
	logger *slog.Logger
	snap   atomic.Pointer[snapshot]
}

// NewSource creates a Source for path and loads it. A missing file yields an
// empty inventory.
func NewSource(path string, logger *slog.Logger) (*Source, error) {
	s := &Source{path: path, logger: logger}
	s.set(nil)
	if err := s.Reload(); err != nil {
		return nil, err
	}
	return s, nil
}

// NewStatic creates a Source over a fixed package list.
func NewStatic(pkgs []domain.Package, logger *slog.Logger) *Source {
	s := &Source{logger: logger}
	s.set(pkgs)
	return s
}

// Path returns the inventory file path.
func (s *Source) Path() string {
	return s.path
}

// Reload rereads the file.
func (s *Source) Reload() error {
	if s.path == "" {
		return nil
	}
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			s.logger.Warn("inventory file not found, no packages installed", slog.String("path", s.path))
			s.set(nil)
			return nil
		}
		return fmt.Errorf("read inventory: %w", err)
	}
	pkgs, err := Parse(data)
	if err != nil {
		return err
	}
	s.set(pkgs)
	s.logger.Info("inventory loaded", slog.String("path", s.path), slog.Int("packages", len(pkgs)))
	return nil
}

func (s *Source) set(pkgs []domain.Package) {
	snap := &snapshot{list: pkgs, byName: make(map[string]domain.Package, len(pkgs))}
	for _, p := range pkgs {
		snap.byName[p.Name] = p
	}
	s.snap.Store(snap)
}

// Packages returns a copy of every known package.
func (s *Source) Packages() []domain.Package {
	return slices.Clone(s.snap.Load().list)
}

// Lookup returns a package by name.
func (s *Source) Lookup(name string) (domain.Package, bool) {
	p, ok := s.snap.Load().byName[name]
	return p, ok
}
