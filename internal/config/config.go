package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config represents the complete devcrew configuration
type Config struct {
	Paths    PathsConfig    `mapstructure:"paths"`
	Cache    CacheConfig    `mapstructure:"cache"`
	Backup   BackupConfig   `mapstructure:"backup"`
	Team     TeamConfig     `mapstructure:"team"`
	Diagnose DiagnoseConfig `mapstructure:"diagnose"`
	Errors   ErrorsConfig   `mapstructure:"errors"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// PathsConfig controls where devcrew stores data
type PathsConfig struct {
	// DataDir is the root for cache, backups, reports and logs.
	// Relative paths resolve against the project root (default: ".devcrew").
	DataDir string `mapstructure:"data_dir"`
}

// CacheConfig controls the analysis cache
type CacheConfig struct {
	// Dir overrides the cache directory (default: "<data_dir>/cache")
	Dir string `mapstructure:"dir"`
	// TTLDays is the age after which an entry is treated as a miss and deleted (default: 30)
	TTLDays int `mapstructure:"ttl_days"`
	// Backend selects the entry store: "file" or "badger" (default: "file")
	Backend string `mapstructure:"backend"`
	// MemoryEntries is the size of the in-process LRU tier, 0 disables it (default: 128)
	MemoryEntries int `mapstructure:"memory_entries"`
	// Compress stores entry blobs zstd-compressed (default: true)
	Compress bool `mapstructure:"compress"`
	// ExcludeDirs are directory names skipped when hashing a project
	ExcludeDirs []string `mapstructure:"exclude_dirs"`
}

// BackupConfig controls backup archives
type BackupConfig struct {
	// Dir overrides the backup directory (default: "<data_dir>/backups")
	Dir string `mapstructure:"dir"`
	// MaxRecords caps the backup_info.json history (default: 20)
	MaxRecords int `mapstructure:"max_records"`
	// RetentionDays is the age after which archives are pruned (default: 30)
	RetentionDays int `mapstructure:"retention_days"`
}

// TeamConfig controls the team simulation
type TeamConfig struct {
	// MaxIterations bounds decompose/execute/vote rounds (default: 3)
	MaxIterations int `mapstructure:"max_iterations"`
	// TaskDelayMs is the simulated work time per task (default: 500)
	TaskDelayMs int `mapstructure:"task_delay_ms"`
	// RequiredApprovals is the number of approving roles needed (default: 3)
	RequiredApprovals int `mapstructure:"required_approvals"`
	// MandatoryRole must approve for a vote to pass (default: "tester")
	MandatoryRole string `mapstructure:"mandatory_role"`
}

// DiagnoseConfig controls self-diagnosis
type DiagnoseConfig struct {
	// ReportDir overrides the report directory (default: "<data_dir>/reports")
	ReportDir string `mapstructure:"report_dir"`
	// Formats lists the report formats to write: "md", "json", "yaml"
	Formats []string `mapstructure:"formats"`
	// RequiredDirs are directories the folder check expects to exist
	RequiredDirs []string `mapstructure:"required_dirs"`
	// CoverageFile is the coverage profile to read (default: "coverage.out")
	CoverageFile string `mapstructure:"coverage_file"`
	// MinCoverage is the statement coverage percentage needed to pass (default: 60)
	MinCoverage float64 `mapstructure:"min_coverage"`
}

// ErrorsConfig controls the error handler
type ErrorsConfig struct {
	// LogFile overrides the JSON-lines error log (default: "<data_dir>/logs/errors.jsonl")
	LogFile string `mapstructure:"log_file"`
	// MaxRetries bounds retries of retryable errors (default: 3)
	MaxRetries int `mapstructure:"max_retries"`
	// RetryDelayMs is the delay between retries (default: 1000)
	RetryDelayMs int `mapstructure:"retry_delay_ms"`
	// DedupWindowSeconds suppresses identical errors within the window, 0 disables (default: 60)
	DedupWindowSeconds int `mapstructure:"dedup_window_seconds"`
}

// LoggingConfig controls debug logging behavior
type LoggingConfig struct {
	// Enabled controls whether debug logging is written (default: true)
	Enabled bool `mapstructure:"enabled"`
	// Level is the log level: "debug", "info", "warn", "error" (default: "info")
	Level string `mapstructure:"level"`
	// MaxSizeMB is the maximum log file size in megabytes before rotation (default: 10)
	MaxSizeMB int `mapstructure:"max_size_mb"`
	// MaxBackups is the number of rotated log files to keep (default: 3)
	MaxBackups int `mapstructure:"max_backups"`
	// Compress gzips rotated log files (default: false)
	Compress bool `mapstructure:"compress"`
}

// Default returns a Config with sensible default values
func Default() *Config {
	return &Config{
		Paths: PathsConfig{
			DataDir: ".devcrew",
		},
		Cache: CacheConfig{
			TTLDays:       30,
			Backend:       "file",
			MemoryEntries: 128,
			Compress:      true,
			ExcludeDirs:   []string{".git", "node_modules", "__pycache__"},
		},
		Backup: BackupConfig{
			MaxRecords:    20,
			RetentionDays: 30,
		},
		Team: TeamConfig{
			MaxIterations:     3,
			TaskDelayMs:       500,
			RequiredApprovals: 3,
			MandatoryRole:     "tester",
		},
		Diagnose: DiagnoseConfig{
			Formats:      []string{"md", "json"},
			RequiredDirs: []string{"internal", "cmd"},
			CoverageFile: "coverage.out",
			MinCoverage:  60,
		},
		Errors: ErrorsConfig{
			MaxRetries:         3,
			RetryDelayMs:       1000,
			DedupWindowSeconds: 60,
		},
		Logging: LoggingConfig{
			Enabled:    true,
			Level:      "info",
			MaxSizeMB:  10,
			MaxBackups: 3,
		},
	}
}

// TTL returns the cache TTL as a time.Duration
func (c *CacheConfig) TTL() time.Duration {
	return time.Duration(c.TTLDays) * 24 * time.Hour
}

// Retention returns the backup retention as a time.Duration
func (c *BackupConfig) Retention() time.Duration {
	return time.Duration(c.RetentionDays) * 24 * time.Hour
}

// TaskDelay returns the simulated task duration
func (c *TeamConfig) TaskDelay() time.Duration {
	return time.Duration(c.TaskDelayMs) * time.Millisecond
}

// RetryDelay returns the delay between retries
func (c *ErrorsConfig) RetryDelay() time.Duration {
	return time.Duration(c.RetryDelayMs) * time.Millisecond
}

// DedupWindow returns the duplicate suppression window (0 means disabled)
func (c *ErrorsConfig) DedupWindow() time.Duration {
	return time.Duration(c.DedupWindowSeconds) * time.Second
}

// ResolveDataDir returns the absolute data directory for a project root.
// Supports ~ for home directory expansion.
func (p *PathsConfig) ResolveDataDir(root string) string {
	return resolve(root, p.DataDir, ".devcrew")
}

// CacheDir returns the resolved cache directory.
func (c *Config) CacheDir(root string) string {
	if c.Cache.Dir != "" {
		return resolve(root, c.Cache.Dir, "")
	}
	return filepath.Join(c.Paths.ResolveDataDir(root), "cache")
}

// BackupDir returns the resolved backup directory.
func (c *Config) BackupDir(root string) string {
	if c.Backup.Dir != "" {
		return resolve(root, c.Backup.Dir, "")
	}
	return filepath.Join(c.Paths.ResolveDataDir(root), "backups")
}

// ReportDir returns the resolved diagnosis report directory.
func (c *Config) ReportDir(root string) string {
	if c.Diagnose.ReportDir != "" {
		return resolve(root, c.Diagnose.ReportDir, "")
	}
	return filepath.Join(c.Paths.ResolveDataDir(root), "reports")
}

// LogDir returns the directory that holds debug.log and its rotations.
func (c *Config) LogDir(root string) string {
	return filepath.Join(c.Paths.ResolveDataDir(root), "logs")
}

// ErrorLogFile returns the resolved JSON-lines error log path.
func (c *Config) ErrorLogFile(root string) string {
	if c.Errors.LogFile != "" {
		return resolve(root, c.Errors.LogFile, "")
	}
	return filepath.Join(c.LogDir(root), "errors.jsonl")
}

func resolve(root, path, fallback string) string {
	if path == "" {
		path = fallback
	}
	if strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			path = filepath.Join(home, path[2:])
		}
	}
	if filepath.IsAbs(path) {
		return filepath.Clean(path)
	}
	return filepath.Join(root, path)
}

// SetDefaults registers default values with viper
func SetDefaults() {
	defaults := Default()

	viper.SetDefault("paths.data_dir", defaults.Paths.DataDir)

	viper.SetDefault("cache.dir", defaults.Cache.Dir)
	viper.SetDefault("cache.ttl_days", defaults.Cache.TTLDays)
	viper.SetDefault("cache.backend", defaults.Cache.Backend)
	viper.SetDefault("cache.memory_entries", defaults.Cache.MemoryEntries)
	viper.SetDefault("cache.compress", defaults.Cache.Compress)
	viper.SetDefault("cache.exclude_dirs", defaults.Cache.ExcludeDirs)

	viper.SetDefault("backup.dir", defaults.Backup.Dir)
	viper.SetDefault("backup.max_records", defaults.Backup.MaxRecords)
	viper.SetDefault("backup.retention_days", defaults.Backup.RetentionDays)

	viper.SetDefault("team.max_iterations", defaults.Team.MaxIterations)
	viper.SetDefault("team.task_delay_ms", defaults.Team.TaskDelayMs)
	viper.SetDefault("team.required_approvals", defaults.Team.RequiredApprovals)
	viper.SetDefault("team.mandatory_role", defaults.Team.MandatoryRole)

	viper.SetDefault("diagnose.report_dir", defaults.Diagnose.ReportDir)
	viper.SetDefault("diagnose.formats", defaults.Diagnose.Formats)
	viper.SetDefault("diagnose.required_dirs", defaults.Diagnose.RequiredDirs)
	viper.SetDefault("diagnose.coverage_file", defaults.Diagnose.CoverageFile)
	viper.SetDefault("diagnose.min_coverage", defaults.Diagnose.MinCoverage)

	viper.SetDefault("errors.log_file", defaults.Errors.LogFile)
	viper.SetDefault("errors.max_retries", defaults.Errors.MaxRetries)
	viper.SetDefault("errors.retry_delay_ms", defaults.Errors.RetryDelayMs)
	viper.SetDefault("errors.dedup_window_seconds", defaults.Errors.DedupWindowSeconds)

	viper.SetDefault("logging.enabled", defaults.Logging.Enabled)
	viper.SetDefault("logging.level", defaults.Logging.Level)
	viper.SetDefault("logging.max_size_mb", defaults.Logging.MaxSizeMB)
	viper.SetDefault("logging.max_backups", defaults.Logging.MaxBackups)
	viper.SetDefault("logging.compress", defaults.Logging.Compress)
}

// Load reads the configuration from viper into a Config struct and validates it
func Load() (*Config, error) {
	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, ValidationErrors(errs)
	}

	return &cfg, nil
}

// Get returns the current configuration, falling back to defaults if the
// loaded configuration is invalid.
func Get() *Config {
	cfg, err := Load()
	if err != nil {
		return Default()
	}
	return cfg
}

// ConfigDir returns the path to the user's config directory
func ConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "devcrew")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".devcrew"
	}
	return filepath.Join(home, ".config", "devcrew")
}

// ConfigFile returns the path to the config file
func ConfigFile() string {
	return filepath.Join(ConfigDir(), "config.yaml")
}
