package backup_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/neobackupapp/neobackup-server/internal/backup"
	"github.com/neobackupapp/neobackup-server/internal/domain"
	"github.com/neobackupapp/neobackup-server/internal/logger"
)

func testDir(t *testing.T) *backup.Dir {
	t.Helper()
	return backup.NewDir(t.TempDir(), logger.Discard())
}

func record(pkg string, at time.Time) domain.BackupRecord {
	return domain.BackupRecord{
		PackageName:  pkg,
		PackageLabel: "Label " + pkg,
		BackupDate:   at.UTC(),
		HasAPK:       true,
		HasAppData:   true,
		VersionCode:  42,
		VersionName:  "4.2",
		Size:         1024,
	}
}

func TestWriteReadRoundTrip(t *testing.T) {
	d := testDir(t)
	at := time.Date(2026, 3, 1, 9, 0, 0, 123_000_000, time.UTC)
	rec := record("com.example", at)

	path, err := d.Write(rec)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(d.Root(), "com.example", "2026-03-01-09-00-00.123.properties"), path)

	got, err := d.Read(path)
	require.NoError(t, err)
	assert.Equal(t, rec, got)
}

func TestListPackage_NewestFirstAndSkipsGarbage(t *testing.T) {
	d := testDir(t)
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	for i := range 3 {
		_, err := d.Write(record("com.example", base.Add(time.Duration(i)*time.Hour)))
		require.NoError(t, err)
	}
	garbage := filepath.Join(d.PackageDir("com.example"), "broken.properties")
	require.NoError(t, os.WriteFile(garbage, []byte("{nope"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(d.PackageDir("com.example"), "notes.txt"), []byte("x"), 0o644))

	records, err := d.ListPackage("com.example")
	assert.ErrorIs(t, err, backup.ErrInvalidProperties)
	require.Len(t, records, 3)
	assert.True(t, records[0].BackupDate.After(records[1].BackupDate))
	assert.True(t, records[1].BackupDate.After(records[2].BackupDate))

	none, err := d.ListPackage("com.absent")
	assert.NoError(t, err)
	assert.Empty(t, none)
}

func TestDelete(t *testing.T) {
	d := testDir(t)
	rec := record("com.example", time.Now())
	_, err := d.Write(rec)
	require.NoError(t, err)
	require.NoError(t, os.MkdirAll(d.DataDir(rec), 0o755))

	require.NoError(t, d.Delete(rec))

	_, err = os.Stat(d.PackageDir("com.example"))
	assert.True(t, os.IsNotExist(err), "empty package dir is removed")
	assert.True(t, errors.Is(d.Delete(rec), backup.ErrBackupNotFound))
}

func TestPackagesAndCheck(t *testing.T) {
	d := testDir(t)
	require.NoError(t, d.Check())
	_, err := d.Write(record("com.b", time.Now()))
	require.NoError(t, err)
	_, err = d.Write(record("com.a", time.Now()))
	require.NoError(t, err)
	require.NoError(t, os.MkdirAll(filepath.Join(d.Root(), ".trash"), 0o755))

	pkgs, err := d.Packages()
	require.NoError(t, err)
	assert.Equal(t, []string{"com.a", "com.b"}, pkgs)

	missing := backup.NewDir(filepath.Join(d.Root(), "nope"), logger.Discard())
	assert.ErrorIs(t, missing.Check(), backup.ErrRootUnavailable)
	_, err = missing.Packages()
	assert.ErrorIs(t, err, backup.ErrRootUnavailable)
}

func TestValidPackageName(t *testing.T) {
	for _, bad := range []string{"", ".", "..", "../etc", "a/b", `a\b`, ".hidden"} {
		assert.Error(t, backup.ValidPackageName(bad), bad)
	}
	assert.NoError(t, backup.ValidPackageName("com.example.app"))

	_, err := testDir(t).Write(record("../escape", time.Now()))
	assert.Error(t, err)
}

func TestDecodeProperties_VersionMismatch(t *testing.T) {
	_, err := backup.DecodeProperties([]byte(`{"version":"2.0","package_name":"a","backup_date":"2026-01-01T00:00:00Z"}`))
	assert.ErrorIs(t, err, backup.ErrVersionMismatch)

	_, err = backup.DecodeProperties([]byte(`{"version":"1.3"}`))
	assert.ErrorIs(t, err, backup.ErrInvalidProperties)
}
