// Package config loads scheduler configuration from flags, environment variables and .env files.
package config

import (
	"bufio"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Config holds the application configuration.
type Config struct {
	App       AppConfig
	Logger    LoggerConfig
	Server    ServerConfig
	Backup    BackupConfig
	Scheduler SchedulerConfig
	Auth      AuthConfig
	Discovery DiscoveryConfig
	RateLimit RateLimitConfig
}

// AppConfig holds application-level configuration.
type AppConfig struct {
	Environment string
	// DataDir holds the schedule database, registry store, search index and exports.
	DataDir string
}

// LoggerConfig holds logging configuration.
type LoggerConfig struct {
	Level string
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port                string
	ReadTimeout         time.Duration
	WriteTimeout        time.Duration
	IdleTimeout         time.Duration
	EnableDebugCommands bool // exposes the crash command
	CORSOrigins         []string
}

// BackupConfig describes the backup location and housekeeping policy.
type BackupConfig struct {
	Root          string
	InventoryFile string // YAML list of installed packages
	SeedFile      string // optional YAML schedules imported into an empty database
	// NumRevisions is how many backups to keep per package. 0 keeps everything.
	NumRevisions                 int
	SkipPersistentInHousekeeping bool
	OldBackupDays                int
	RescanDebounce               time.Duration
	WatchRoot                    bool
}

// SchedulerConfig holds dispatcher and worker pool settings.
type SchedulerConfig struct {
	Workers int
	// FakeScheduleDups fires N extra trigger events per physical trigger (debug).
	FakeScheduleDups int
	// FakeScheduleMinutes replaces the daily cadence with an N-minute cadence (debug).
	FakeScheduleMinutes int
	Location            *time.Location
}

// AuthConfig holds command token configuration.
type AuthConfig struct {
	Required bool
	KeyPath  string
	TokenTTL time.Duration
}

// DiscoveryConfig holds LAN advertisement settings.
type DiscoveryConfig struct {
	MDNSEnabled bool
	Name        string
}

// RateLimitConfig bounds command traffic per client.
type RateLimitConfig struct {
	CommandsPerMinute int
	Burst             int
}

// LoadConfig loads configuration from the process arguments.
func LoadConfig() (*Config, error) {
	return Load(os.Args[1:])
}

// Load builds a Config with precedence:
// 1. Command-line flags.
// 2. Environment variables.
// 3. .env file.
// 4. Defaults.
func Load(args []string) (*Config, error) {
	fs := flag.NewFlagSet("neobackup", flag.ContinueOnError)

	env := fs.String("env", "", "Environment (development, staging, production)")
	logLevel := fs.String("log-level", "", "Log level (debug, info, warn, error)")
	dataDir := fs.String("data-dir", "", "Directory for databases, index and exports")
	envFile := fs.String("env-file", ".env", "Path to .env file")

	port := fs.String("port", "", "Server port (default: 8080)")
	readTimeout := fs.String("read-timeout", "", "HTTP read timeout (default: 15s)")
	writeTimeout := fs.String("write-timeout", "", "HTTP write timeout (default: 15s)")
	idleTimeout := fs.String("idle-timeout", "", "HTTP idle timeout (default: 60s)")
	debugCommands := fs.String("debug-commands", "", "Enable debug-only commands")

	backupRoot := fs.String("backup-root", "", "Backup location")
	inventory := fs.String("inventory", "", "Installed package inventory (YAML)")
	seed := fs.String("seed", "", "Schedule seed file (YAML)")
	revisions := fs.String("revisions", "", "Backup revisions kept per package (0 = all)")
	watch := fs.String("watch", "", "Watch the backup root for changes")

	workers := fs.String("workers", "", "Concurrent work units (default: 2)")
	fakeDups := fs.String("fake-schedule-dups", "", "Extra trigger events per trigger (debug)")
	fakeMinutes := fs.String("fake-schedule-minutes", "", "Minute cadence instead of days (debug)")
	timezone := fs.String("timezone", "", "Schedule time zone (default: Local)")

	authRequired := fs.String("auth", "", "Require bearer tokens for commands")
	mdnsEnabled := fs.String("mdns", "", "Advertise via mDNS (default: true)")

	if err := fs.Parse(args); err != nil {
		return nil, fmt.Errorf("parse flags: %w", err)
	}

	_ = loadEnvFile(*envFile)

	cfg := &Config{
		App: AppConfig{
			Environment: getConfigValue(*env, "ENV", "development"),
			DataDir:     getConfigValue(*dataDir, "DATA_DIR", ""),
		},
		Logger: LoggerConfig{
			Level: getConfigValue(*logLevel, "LOG_LEVEL", "info"),
		},
		Server: ServerConfig{
			Port:                getConfigValue(*port, "SERVER_PORT", "8080"),
			EnableDebugCommands: getBoolConfigValue(*debugCommands, "DEBUG_COMMANDS", false),
			CORSOrigins:         splitList(getConfigValue("", "CORS_ORIGINS", "*")),
		},
		Backup: BackupConfig{
			Root:                         getConfigValue(*backupRoot, "BACKUP_ROOT", ""),
			InventoryFile:                getConfigValue(*inventory, "INVENTORY_FILE", ""),
			SeedFile:                     getConfigValue(*seed, "SEED_FILE", ""),
			NumRevisions:                 getIntConfigValue(*revisions, "NUM_BACKUP_REVISIONS", 2),
			SkipPersistentInHousekeeping: getBoolConfigValue("", "HOUSEKEEPING_SKIP_PERSISTENT", true),
			OldBackupDays:                getIntConfigValue("", "OLD_BACKUP_DAYS", 7),
			WatchRoot:                    getBoolConfigValue(*watch, "WATCH_BACKUP_ROOT", true),
		},
		Scheduler: SchedulerConfig{
			Workers:             getIntConfigValue(*workers, "WORKERS", 2),
			FakeScheduleDups:    getIntConfigValue(*fakeDups, "FAKE_SCHEDULE_DUPS", 0),
			FakeScheduleMinutes: getIntConfigValue(*fakeMinutes, "FAKE_SCHEDULE_MINUTES", 0),
		},
		Auth: AuthConfig{
			Required: getBoolConfigValue(*authRequired, "AUTH_REQUIRED", false),
			KeyPath:  getConfigValue("", "AUTH_KEY_PATH", ""),
		},
		Discovery: DiscoveryConfig{
			MDNSEnabled: getBoolConfigValue(*mdnsEnabled, "MDNS_ENABLED", true),
			Name:        getConfigValue("", "MDNS_NAME", "NeoBackup Scheduler"),
		},
		RateLimit: RateLimitConfig{
			CommandsPerMinute: getIntConfigValue("", "COMMANDS_PER_MINUTE", 30),
			Burst:             getIntConfigValue("", "COMMANDS_BURST", 10),
		},
	}

	durations := []struct {
		flagValue, envKey, def string
		dst                    *time.Duration
	}{
		{*readTimeout, "SERVER_READ_TIMEOUT", "15s", &cfg.Server.ReadTimeout},
		{*writeTimeout, "SERVER_WRITE_TIMEOUT", "15s", &cfg.Server.WriteTimeout},
		{*idleTimeout, "SERVER_IDLE_TIMEOUT", "60s", &cfg.Server.IdleTimeout},
		{"", "RESCAN_DEBOUNCE", "2s", &cfg.Backup.RescanDebounce},
		{"", "TOKEN_TTL", "720h", &cfg.Auth.TokenTTL},
	}
	for _, d := range durations {
		raw := getConfigValue(d.flagValue, d.envKey, d.def)
		parsed, err := time.ParseDuration(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid %s %q: %w", strings.ToLower(d.envKey), raw, err)
		}
		*d.dst = parsed
	}

	tz := getConfigValue(*timezone, "TZ_NAME", "Local")
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %q: %w", tz, err)
	}
	cfg.Scheduler.Location = loc

	if err := cfg.expandPaths(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks that all config values are present and in range.
func (c *Config) Validate() error {
	validEnvs := map[string]bool{
		"development": true,
		"staging":     true,
		"production":  true,
	}
	if !validEnvs[c.App.Environment] {
		return fmt.Errorf("invalid environment: %q (must be development, staging, or production)", c.App.Environment)
	}

	validLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLevels[strings.ToLower(c.Logger.Level)] {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", c.Logger.Level)
	}

	if c.App.DataDir == "" {
		return errors.New("data directory cannot be empty after expansion")
	}
	if c.Backup.Root == "" {
		return errors.New("backup root cannot be empty after expansion")
	}
	if c.Scheduler.Workers < 1 {
		return fmt.Errorf("workers must be at least 1, got %d", c.Scheduler.Workers)
	}
	if c.Backup.NumRevisions < 0 {
		return fmt.Errorf("revisions cannot be negative, got %d", c.Backup.NumRevisions)
	}
	if c.Scheduler.FakeScheduleDups < 0 || c.Scheduler.FakeScheduleMinutes < 0 {
		return errors.New("fake schedule settings cannot be negative")
	}

	return nil
}

// splitList parses a comma separated list, dropping empty items.
func splitList(raw string) []string {
	var out []string
	for item := range strings.SplitSeq(raw, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// IsProduction reports whether the app runs in production.
func (c *Config) IsProduction() bool {
	return c.App.Environment == "production"
}

func (c *Config) expandPaths() error {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("failed to get home directory: %w", err)
	}

	if c.App.DataDir, err = expandPath(c.App.DataDir, filepath.Join(homeDir, "NeoBackup", "data")); err != nil {
		return fmt.Errorf("invalid data dir: %w", err)
	}
	if c.Backup.Root, err = expandPath(c.Backup.Root, filepath.Join(homeDir, "NeoBackup", "backups")); err != nil {
		return fmt.Errorf("invalid backup root: %w", err)
	}
	if c.Backup.InventoryFile, err = expandPath(c.Backup.InventoryFile, filepath.Join(c.App.DataDir, "inventory.yaml")); err != nil {
		return fmt.Errorf("invalid inventory file: %w", err)
	}
	if c.Backup.SeedFile, err = expandPath(c.Backup.SeedFile, ""); err != nil {
		return fmt.Errorf("invalid seed file: %w", err)
	}
	if c.Auth.KeyPath, err = expandPath(c.Auth.KeyPath, filepath.Join(c.App.DataDir, "auth.key")); err != nil {
		return fmt.Errorf("invalid auth key path: %w", err)
	}
	return nil
}

// expandPath expands ~ and makes the path absolute.
// An empty path resolves to defaultPath.
func expandPath(path, defaultPath string) (string, error) {
	if path == "" {
		return defaultPath, nil
	}

	if strings.HasPrefix(path, "~/") {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		path = filepath.Join(homeDir, path[2:])
	}

	if !filepath.IsAbs(path) {
		absPath, err := filepath.Abs(path)
		if err != nil {
			return "", fmt.Errorf("failed to get absolute path: %w", err)
		}
		path = absPath
	}

	return filepath.Clean(path), nil
}

// getConfigValue returns the first non-empty value from flag, env var, or default.
func getConfigValue(flagValue, envKey, defaultValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if envValue := os.Getenv(envKey); envValue != "" {
		return envValue
	}
	return defaultValue
}

// getBoolConfigValue accepts "true", "1" and "yes" (case-insensitive) as true.
func getBoolConfigValue(flagValue, envKey string, defaultValue bool) bool {
	strValue := getConfigValue(flagValue, envKey, "")
	if strValue == "" {
		return defaultValue
	}
	strValue = strings.ToLower(strValue)
	return strValue == "true" || strValue == "1" || strValue == "yes"
}

func getIntConfigValue(flagValue, envKey string, defaultValue int) int {
	strValue := getConfigValue(flagValue, envKey, "")
	if strValue == "" {
		return defaultValue
	}
	var result int
	if _, err := fmt.Sscanf(strValue, "%d", &result); err != nil {
		return defaultValue
	}
	return result
}

// loadEnvFile loads KEY=value lines from a .env file. Variables already set
// in the environment win.
func loadEnvFile(path string) error {
	file, err := os.Open(path) //#nosec G304 -- Config file path from user input is expected
	if err != nil {
		return err
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		key, value, ok := strings.Cut(line, "=")
		if !ok {
			return fmt.Errorf("invalid format at line %d: %s", lineNum, line)
		}
		key = strings.TrimSpace(key)
		value = strings.Trim(strings.TrimSpace(value), `"'`)

		if os.Getenv(key) == "" {
			if err := os.Setenv(key, value); err != nil {
				return fmt.Errorf("failed to set env var %s: %w", key, err)
			}
		}
	}

	return scanner.Err()
}
