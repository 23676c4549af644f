package domain

import (
	"slices"
	"time"
)

// BackupDateLayout is used in properties file names and record keys.
const BackupDateLayout = "2006-01-02-15-04-05.000"

// BackupRecord is the metadata of one backup of one package.
// (PackageName, BackupDate) identifies it.
type BackupRecord struct {
	PackageName             string    `json:"package_name"`
	PackageLabel            string    `json:"package_label"`
	BackupDate              time.Time `json:"backup_date"`
	Size                    int64     `json:"size"`
	HasAPK                  bool      `json:"has_apk"`
	HasAppData              bool      `json:"has_app_data"`
	HasDevicesProtectedData bool      `json:"has_devices_protected_data"`
	HasExternalData         bool      `json:"has_external_data"`
	HasOBBData              bool      `json:"has_obb_data"`
	HasMediaData            bool      `json:"has_media_data"`
	Persistent              bool      `json:"persistent"`
	VersionCode             int64     `json:"version_code"`
	VersionName             string    `json:"version_name"`
}

// Key returns the stable identity of the record.
func (b BackupRecord) Key() string {
	return b.PackageName + "@" + b.BackupDate.UTC().Format(BackupDateLayout)
}

// Mode returns the categories present in the backup.
func (b BackupRecord) Mode() Mode {
	var m Mode
	if b.HasAPK {
		m |= ModeAPK
	}
	if b.HasAppData {
		m |= ModeData
	}
	if b.HasDevicesProtectedData {
		m |= ModeDataDE
	}
	if b.HasExternalData {
		m |= ModeDataExt
	}
	if b.HasOBBData {
		m |= ModeDataOBB
	}
	if b.HasMediaData {
		m |= ModeDataMedia
	}
	return m
}

// SortNewestFirst orders records by BackupDate descending.
func SortNewestFirst(records []BackupRecord) {
	slices.SortStableFunc(records, func(a, b BackupRecord) int {
		return b.BackupDate.Compare(a.BackupDate)
	})
}

// Latest returns the newest record, or false when records is empty.
func Latest(records []BackupRecord) (BackupRecord, bool) {
	if len(records) == 0 {
		return BackupRecord{}, false
	}
	latest := records[0]
	for _, r := range records[1:] {
		if r.BackupDate.After(latest.BackupDate) {
			latest = r
		}
	}
	return latest, true
}

// GroupByPackage groups records by package name.
func GroupByPackage(records []BackupRecord) map[string][]BackupRecord {
	out := make(map[string][]BackupRecord)
	for _, r := range records {
		out[r.PackageName] = append(out[r.PackageName], r)
	}
	return out
}
