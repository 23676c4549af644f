package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	return &Config{
		App:       AppConfig{Environment: "development", DataDir: "/data"},
		Logger:    LoggerConfig{Level: "info"},
		Backup:    BackupConfig{Root: "/backups", NumRevisions: 2},
		Scheduler: SchedulerConfig{Workers: 2},
	}
}

func TestValidate_ValidConfig(t *testing.T) {
	assert.NoError(t, validConfig().Validate())
}

func TestValidate_AllEnvironments(t *testing.T) {
	tests := []struct {
		env   string
		valid bool
	}{
		{"development", true},
		{"staging", true},
		{"production", true},
		{"test", false},
		{"", false},
		{"DEVELOPMENT", false},
	}

	for _, tt := range tests {
		t.Run(tt.env, func(t *testing.T) {
			cfg := validConfig()
			cfg.App.Environment = tt.env
			if tt.valid {
				assert.NoError(t, cfg.Validate())
			} else {
				assert.Error(t, cfg.Validate())
			}
		})
	}
}

func TestValidate_Ranges(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero workers", func(c *Config) { c.Scheduler.Workers = 0 }},
		{"negative revisions", func(c *Config) { c.Backup.NumRevisions = -1 }},
		{"negative fake dups", func(c *Config) { c.Scheduler.FakeScheduleDups = -2 }},
		{"bad log level", func(c *Config) { c.Logger.Level = "loud" }},
		{"empty backup root", func(c *Config) { c.Backup.Root = "" }},
		{"empty data dir", func(c *Config) { c.App.DataDir = "" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestLoad_FlagsOverrideEnv(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("WORKERS", "5")
	t.Setenv("BACKUP_ROOT", filepath.Join(dir, "env-root"))

	cfg, err := Load([]string{
		"-env-file", filepath.Join(dir, "missing.env"),
		"-data-dir", dir,
		"-backup-root", filepath.Join(dir, "flag-root"),
		"-timezone", "UTC",
	})
	require.NoError(t, err)

	assert.Equal(t, 5, cfg.Scheduler.Workers)
	assert.Equal(t, filepath.Join(dir, "flag-root"), cfg.Backup.Root)
	assert.Equal(t, filepath.Join(dir, "inventory.yaml"), cfg.Backup.InventoryFile)
	assert.Equal(t, time.UTC, cfg.Scheduler.Location)
	assert.Equal(t, 15*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, 2, cfg.Backup.NumRevisions)
}

func TestLoad_EnvFile(t *testing.T) {
	dir := t.TempDir()
	envPath := filepath.Join(dir, ".env")
	content := "# scheduler\nFAKE_SCHEDULE_DUPS=3\nSERVER_PORT=\"9090\"\n"
	require.NoError(t, os.WriteFile(envPath, []byte(content), 0o600))

	// Cleared so the file value applies, and restored afterwards.
	t.Setenv("FAKE_SCHEDULE_DUPS", "")
	t.Setenv("SERVER_PORT", "")

	cfg, err := Load([]string{"-env-file", envPath, "-data-dir", dir, "-backup-root", dir})
	require.NoError(t, err)

	assert.Equal(t, 3, cfg.Scheduler.FakeScheduleDups)
	assert.Equal(t, "9090", cfg.Server.Port)
}

func TestLoad_InvalidDuration(t *testing.T) {
	dir := t.TempDir()
	_, err := Load([]string{"-env-file", filepath.Join(dir, "none"), "-data-dir", dir, "-read-timeout", "soon"})
	assert.Error(t, err)
}

func TestExpandPath(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)

	got, err := expandPath("~/backups", "")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, "backups"), got)

	got, err = expandPath("", "/default")
	require.NoError(t, err)
	assert.Equal(t, "/default", got)

	got, err = expandPath("rel/dir", "")
	require.NoError(t, err)
	assert.True(t, filepath.IsAbs(got))
}

func TestGetBoolConfigValue(t *testing.T) {
	t.Setenv("SOME_BOOL", "YES")
	assert.True(t, getBoolConfigValue("", "SOME_BOOL", false))
	assert.False(t, getBoolConfigValue("no", "SOME_BOOL", true))
	assert.True(t, getBoolConfigValue("", "UNSET_BOOL_FOR_TEST", true))
}

func TestSplitList(t *testing.T) {
	assert.Equal(t, []string{"*"}, splitList("*"))
	assert.Equal(t, []string{"http://a", "http://b"}, splitList(" http://a, ,http://b ,"))
	assert.Nil(t, splitList(""))
}
