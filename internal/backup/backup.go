package backup

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/neobackupapp/neobackup-server/internal/domain"
)

// Dir is the backup root.
type Dir struct {
	root   string
	logger *slog.Logger
}

// NewDir creates a Dir rooted at root. The directory is not created.
func NewDir(root string, logger *slog.Logger) *Dir {
	return &Dir{root: root, logger: logger}
}

// Root returns the backup root path.
func (d *Dir) Root() string {
	return d.root
}

// Check reports whether the root exists and is a directory.
func (d *Dir) Check() error {
	info, err := os.Stat(d.root)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrRootUnavailable, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%w: %s is not a directory", ErrRootUnavailable, d.root)
	}
	return nil
}

// PackageDir returns the directory holding a package's backups.
func (d *Dir) PackageDir(pkg string) string {
	return filepath.Join(d.root, pkg)
}

// PropertiesPath returns the properties file of a record.
func (d *Dir) PropertiesPath(rec domain.BackupRecord) string {
	return filepath.Join(d.root, rec.PackageName, stamp(rec)+PropertiesExt)
}

// DataDir returns the archive directory of a record.
func (d *Dir) DataDir(rec domain.BackupRecord) string {
	return filepath.Join(d.root, rec.PackageName, stamp(rec))
}

// Write stores the properties of rec and returns the file path.
func (d *Dir) Write(rec domain.BackupRecord) (string, error) {
	if err := ValidPackageName(rec.PackageName); err != nil {
		return "", err
	}
	if err := d.Check(); err != nil {
		return "", err
	}

	dir := d.PackageDir(rec.PackageName)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create package dir: %w", err)
	}

	data, err := EncodeProperties(PropertiesFrom(rec))
	if err != nil {
		return "", fmt.Errorf("encode properties: %w", err)
	}

	path := d.PropertiesPath(rec)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return "", fmt.Errorf("write properties: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return "", fmt.Errorf("rename properties: %w", err)
	}
	return path, nil
}

// Read parses one properties file.
func (d *Dir) Read(path string) (domain.BackupRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return domain.BackupRecord{}, ErrBackupNotFound
		}
		return domain.BackupRecord{}, err
	}
	p, err := DecodeProperties(data)
	if err != nil {
		return domain.BackupRecord{}, fmt.Errorf("%s: %w", path, err)
	}
	return p.Record(), nil
}

// Delete removes the properties file and archive directory of rec.
func (d *Dir) Delete(rec domain.BackupRecord) error {
	if err := ValidPackageName(rec.PackageName); err != nil {
		return err
	}
	path := d.PropertiesPath(rec)
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return ErrBackupNotFound
		}
		return err
	}
	if err := os.RemoveAll(d.DataDir(rec)); err != nil {
		return fmt.Errorf("remove backup data: %w", err)
	}
	if err := os.Remove(path); err != nil {
		return fmt.Errorf("remove properties: %w", err)
	}

	// Drop the package directory once it is empty.
	if entries, err := os.ReadDir(d.PackageDir(rec.PackageName)); err == nil && len(entries) == 0 {
		_ = os.Remove(d.PackageDir(rec.PackageName))
	}
	return nil
}

// Packages lists the package directories under the root.
func (d *Dir) Packages() ([]string, error) {
	entries, err := os.ReadDir(d.root)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRootUnavailable, err)
	}

	var pkgs []string
	for _, entry := range entries {
		if !entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		pkgs = append(pkgs, entry.Name())
	}
	sort.Strings(pkgs)
	return pkgs, nil
}

// ListPackage reads every properties file of a package, newest first.
// Malformed files are skipped and returned as errors alongside the records.
func (d *Dir) ListPackage(pkg string) ([]domain.BackupRecord, error) {
	entries, err := os.ReadDir(d.PackageDir(pkg))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var (
		records []domain.BackupRecord
		errs    []error
	)
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), PropertiesExt) {
			continue
		}
		rec, err := d.Read(filepath.Join(d.PackageDir(pkg), entry.Name()))
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if rec.PackageName != pkg {
			d.logger.Warn("properties package mismatch",
				slog.String("dir", pkg),
				slog.String("package", rec.PackageName),
				slog.String("file", entry.Name()),
			)
			rec.PackageName = pkg
		}
		records = append(records, rec)
	}
	domain.SortNewestFirst(records)
	return records, errors.Join(errs...)
}

// ValidPackageName rejects names that would escape the backup root.
func ValidPackageName(pkg string) error {
	if pkg == "" || pkg == "." || pkg == ".." ||
		strings.ContainsAny(pkg, `/\`) || strings.HasPrefix(pkg, ".") {
		return fmt.Errorf("invalid package name %q", pkg)
	}
	return nil
}

func stamp(rec domain.BackupRecord) string {
	return rec.BackupDate.UTC().Format(domain.BackupDateLayout)
}
