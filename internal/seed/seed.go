// Package seed imports schedules from a YAML file into an empty database.
//
//	blocklist:
//	  - com.facebook.katana
//	schedules:
//	  - name: Nightly apps
//	    enabled: true
//	    time: "02:30"
//	    interval: 1
//	    mode: [apk, data]
//	    filter: [user]
//	    special:
//	      launchable: only
//	      latest: old
//	    tags: [messengers]
package seed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/neobackupapp/neobackup-server/internal/domain"
)

// Target receives the seeded schedules.
type Target interface {
	CountSchedules(ctx context.Context) (int, error)
	CreateSchedule(ctx context.Context, s *domain.Schedule) (*domain.Schedule, error)
	SetBlocklist(ctx context.Context, listID int64, pkgs []string) ([]string, error)
}

// File is the decoded seed document.
type File struct {
	Blocklist []string   `yaml:"blocklist"`
	Schedules []Schedule `yaml:"schedules"`
}

// Schedule is one seeded schedule. Omitted fields take the defaults of a
// newly created schedule.
type Schedule struct {
	Name       string   `yaml:"name"`
	Enabled    bool     `yaml:"enabled"`
	Time       string   `yaml:"time"`
	Interval   int      `yaml:"interval"`
	Mode       []string `yaml:"mode"`
	Filter     []string `yaml:"filter"`
	Special    Special  `yaml:"special"`
	CustomList []string `yaml:"custom_list"`
	BlockList  []string `yaml:"block_list"`
	Tags       []string `yaml:"tags"`
}

// Special holds the special filters by name; empty means no filtering.
type Special struct {
	Installed  string `yaml:"installed"`  // only, not
	Launchable string `yaml:"launchable"` // only, not
	Updated    string `yaml:"updated"`    // only, new, not
	Enabled    string `yaml:"enabled"`    // only, disabled
	Latest     string `yaml:"latest"`     // old, recent
}

// Parse decodes a seed document.
func Parse(data []byte) (*File, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse seed: %w", err)
	}
	return &f, nil
}

// ToDomain converts a seeded schedule.
func (s Schedule) ToDomain() (*domain.Schedule, error) {
	out := domain.NewSchedule(strings.TrimSpace(s.Name))
	out.Enabled = s.Enabled
	out.CustomList = s.CustomList
	out.BlockList = s.BlockList
	out.TagsList = s.Tags

	if s.Time != "" {
		h, m, err := domain.ParseTimeOfDay(s.Time)
		if err != nil {
			return nil, err
		}
		out.TimeHour, out.TimeMinute = h, m
	}
	if s.Interval != 0 {
		out.Interval = s.Interval
	}
	if len(s.Mode) > 0 {
		mode, err := domain.ParseMode(s.Mode)
		if err != nil {
			return nil, err
		}
		out.Mode = mode
	}
	if len(s.Filter) > 0 {
		filter, err := parseFilter(s.Filter)
		if err != nil {
			return nil, err
		}
		out.Filter = filter
	}

	var err error
	sf := &out.SpecialFilter
	if sf.Installed, err = lookup("installed", s.Special.Installed, map[string]int{"only": domain.InstalledOnly, "not": domain.InstalledNot}); err != nil {
		return nil, err
	}
	if sf.Launchable, err = lookup("launchable", s.Special.Launchable, map[string]int{"only": domain.LaunchableOnly, "not": domain.LaunchableNot}); err != nil {
		return nil, err
	}
	if sf.Updated, err = lookup("updated", s.Special.Updated, map[string]int{"only": domain.UpdatedOnly, "new": domain.UpdatedNew, "not": domain.UpdatedNot}); err != nil {
		return nil, err
	}
	if sf.Enabled, err = lookup("enabled", s.Special.Enabled, map[string]int{"only": domain.EnabledOnly, "disabled": domain.EnabledDisabled}); err != nil {
		return nil, err
	}
	if sf.Latest, err = lookup("latest", s.Special.Latest, map[string]int{"old": domain.LatestOld, "recent": domain.LatestRecent}); err != nil {
		return nil, err
	}
	return out, nil
}

func parseFilter(names []string) (int, error) {
	var f int
	for _, n := range names {
		switch strings.ToLower(strings.TrimSpace(n)) {
		case "user":
			f |= domain.MainFilterUser
		case "system":
			f |= domain.MainFilterSystem
		case "special":
			f |= domain.MainFilterSpecial
		case "all":
			f |= domain.MainFilterDefault
		default:
			return 0, fmt.Errorf("unknown package filter %q", n)
		}
	}
	return f, nil
}

func lookup(field, v string, values map[string]int) (int, error) {
	v = strings.ToLower(strings.TrimSpace(v))
	if v == "" || v == "all" {
		return 0, nil
	}
	n, ok := values[v]
	if !ok {
		return 0, fmt.Errorf("unknown %s filter %q", field, v)
	}
	return n, nil
}

// Apply imports f when the target has no schedules yet. It reports how many
// schedules were created.
func Apply(ctx context.Context, f *File, target Target, logger *slog.Logger) (int, error) {
	n, err := target.CountSchedules(ctx)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		logger.Debug("schedules present, seed skipped", slog.Int("schedules", n))
		return 0, nil
	}

	var errs []error
	created := 0
	for i, s := range f.Schedules {
		sched, err := s.ToDomain()
		if err != nil {
			errs = append(errs, fmt.Errorf("schedule %d (%s): %w", i, s.Name, err))
			continue
		}
		if _, err := target.CreateSchedule(ctx, sched); err != nil {
			errs = append(errs, fmt.Errorf("schedule %d (%s): %w", i, s.Name, err))
			continue
		}
		created++
	}
	if len(f.Blocklist) > 0 {
		if _, err := target.SetBlocklist(ctx, domain.GlobalBlocklistID, f.Blocklist); err != nil {
			errs = append(errs, fmt.Errorf("global blocklist: %w", err))
		}
	}

	logger.Info("schedules seeded", slog.Int("created", created), slog.Int("failed", len(errs)))
	return created, errors.Join(errs...)
}

// ApplyFile reads path and applies it. A missing file is not an error.
func ApplyFile(ctx context.Context, path string, target Target, logger *slog.Logger) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, nil
		}
		return 0, fmt.Errorf("read seed: %w", err)
	}
	f, err := Parse(data)
	if err != nil {
		return 0, err
	}
	return Apply(ctx, f, target, logger)
}
