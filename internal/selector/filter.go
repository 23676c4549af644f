package selector

import (
	"time"

	"github.com/neobackupapp/neobackup-server/internal/domain"
)

// LatestLookup returns the newest backup of a package.
type LatestLookup func(pkg string) (domain.BackupRecord, bool)

// Criteria configures DefaultCategoryFilter.
type Criteria struct {
	MainFilter    int
	Special       domain.SpecialFilter
	Now           time.Time
	OldBackupDays int
	Latest        LatestLookup
}

// CriteriaFor builds Criteria from a schedule.
func CriteriaFor(s *domain.Schedule, now time.Time, oldBackupDays int, latest LatestLookup) Criteria {
	return Criteria{
		MainFilter:    s.Filter,
		Special:       s.SpecialFilter,
		Now:           now,
		OldBackupDays: oldBackupDays,
		Latest:        latest,
	}
}

// DefaultCategoryFilter implements the main (system/user/special) and special
// (installed/launchable/updated/enabled/latest backup age) filters.
func DefaultCategoryFilter(c Criteria) CategoryFilter {
	latest := c.Latest
	if latest == nil {
		latest = func(string) (domain.BackupRecord, bool) { return domain.BackupRecord{}, false }
	}
	maxAge := time.Duration(c.OldBackupDays) * 24 * time.Hour

	return func(p domain.Package) bool {
		if !matchesMain(c.MainFilter, p) {
			return false
		}

		switch c.Special.Installed {
		case domain.InstalledOnly:
			if !p.IsInstalled {
				return false
			}
		case domain.InstalledNot:
			if p.IsInstalled {
				return false
			}
		}

		switch c.Special.Launchable {
		case domain.LaunchableOnly:
			if !p.IsLaunchable {
				return false
			}
		case domain.LaunchableNot:
			if p.IsLaunchable {
				return false
			}
		}

		switch c.Special.Enabled {
		case domain.EnabledOnly:
			if p.IsDisabled {
				return false
			}
		case domain.EnabledDisabled:
			if !p.IsDisabled {
				return false
			}
		}

		newest, hasBackup := latest(p.Name)

		switch c.Special.Updated {
		case domain.UpdatedOnly:
			if !p.IsUpdated {
				return false
			}
		case domain.UpdatedNew:
			if hasBackup {
				return false
			}
		case domain.UpdatedNot:
			if p.IsUpdated {
				return false
			}
		}

		switch c.Special.Latest {
		case domain.LatestOld:
			if !hasBackup || c.Now.Sub(newest.BackupDate) < maxAge {
				return false
			}
		case domain.LatestRecent:
			if hasBackup && c.Now.Sub(newest.BackupDate) >= maxAge {
				return false
			}
		}

		return true
	}
}

func matchesMain(filter int, p domain.Package) bool {
	if filter&domain.MainFilterSystem != 0 && p.IsSystem && !p.IsSpecial {
		return true
	}
	if filter&domain.MainFilterUser != 0 && !p.IsSystem {
		return true
	}
	if filter&domain.MainFilterSpecial != 0 && p.IsSpecial {
		return true
	}
	return false
}
