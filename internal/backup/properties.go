package backup

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/neobackupapp/neobackup-server/internal/domain"
)

// FormatVersion is the properties format version. Increment major on breaking changes.
const FormatVersion = "1.0"

// PropertiesExt is the suffix of properties files.
const PropertiesExt = ".properties"

// Properties is the JSON document stored next to every backup.
type Properties struct {
	Version   string    `json:"version"`
	CreatedAt time.Time `json:"created_at"`

	PackageName  string    `json:"package_name"`
	PackageLabel string    `json:"package_label"`
	BackupDate   time.Time `json:"backup_date"`
	VersionCode  int64     `json:"version_code"`
	VersionName  string    `json:"version_name"`
	Size         int64     `json:"size"`
	Persistent   bool      `json:"persistent"`

	// What's included
	HasAPK                  bool `json:"has_apk"`
	HasAppData              bool `json:"has_app_data"`
	HasDevicesProtectedData bool `json:"has_devices_protected_data"`
	HasExternalData         bool `json:"has_external_data"`
	HasOBBData              bool `json:"has_obb_data"`
	HasMediaData            bool `json:"has_media_data"`
}

// PropertiesFrom converts a record to its on-disk form.
func PropertiesFrom(rec domain.BackupRecord) Properties {
	return Properties{
		Version:                 FormatVersion,
		CreatedAt:               time.Now().UTC(),
		PackageName:             rec.PackageName,
		PackageLabel:            rec.PackageLabel,
		BackupDate:              rec.BackupDate.UTC(),
		VersionCode:             rec.VersionCode,
		VersionName:             rec.VersionName,
		Size:                    rec.Size,
		Persistent:              rec.Persistent,
		HasAPK:                  rec.HasAPK,
		HasAppData:              rec.HasAppData,
		HasDevicesProtectedData: rec.HasDevicesProtectedData,
		HasExternalData:         rec.HasExternalData,
		HasOBBData:              rec.HasOBBData,
		HasMediaData:            rec.HasMediaData,
	}
}

// Record converts the on-disk form back to a registry record.
func (p Properties) Record() domain.BackupRecord {
	return domain.BackupRecord{
		PackageName:             p.PackageName,
		PackageLabel:            p.PackageLabel,
		BackupDate:              p.BackupDate,
		Size:                    p.Size,
		HasAPK:                  p.HasAPK,
		HasAppData:              p.HasAppData,
		HasDevicesProtectedData: p.HasDevicesProtectedData,
		HasExternalData:         p.HasExternalData,
		HasOBBData:              p.HasOBBData,
		HasMediaData:            p.HasMediaData,
		Persistent:              p.Persistent,
		VersionCode:             p.VersionCode,
		VersionName:             p.VersionName,
	}
}

// DecodeProperties parses and validates a properties document.
func DecodeProperties(data []byte) (Properties, error) {
	var p Properties
	if err := json.Unmarshal(data, &p); err != nil {
		return Properties{}, fmt.Errorf("%w: %w", ErrInvalidProperties, err)
	}
	major, _, _ := strings.Cut(p.Version, ".")
	wantMajor, _, _ := strings.Cut(FormatVersion, ".")
	if major != wantMajor {
		return Properties{}, fmt.Errorf("%w: %q", ErrVersionMismatch, p.Version)
	}
	if p.PackageName == "" || p.BackupDate.IsZero() {
		return Properties{}, fmt.Errorf("%w: package name and backup date are required", ErrInvalidProperties)
	}
	return p, nil
}

// EncodeProperties renders a properties document.
func EncodeProperties(p Properties) ([]byte, error) {
	return json.MarshalIndent(p, "", "  ")
}
