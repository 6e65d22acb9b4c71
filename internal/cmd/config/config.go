// Package config provides CLI commands for managing devcrew configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	appconfig "github.com/Iron-Ham/devcrew/internal/config"
	"github.com/Iron-Ham/devcrew/internal/ui"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "View or modify devcrew configuration",
	Long: `View or modify devcrew configuration.

Settings are read from the config file, then overridden by DEVCREW_*
environment variables (e.g. DEVCREW_CACHE_TTL_DAYS for cache.ttl_days).`,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the effective configuration as YAML",
	Args:  cobra.NoArgs,
	RunE:  runConfigShow,
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check the configuration for invalid values",
	Args:  cobra.NoArgs,
	RunE:  runConfigValidate,
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Long: `Set a configuration value in the user's config file.

Keys use dot notation, e.g.:
  devcrew config set cache.ttl_days 14
  devcrew config set cache.backend badger
  devcrew config set team.mandatory_role reviewer
  devcrew config set diagnose.formats md,json,yaml

Run 'devcrew config show' to list every key. The value is validated
before the file is written.`,
	Args: cobra.ExactArgs(2),
	RunE: runConfigSet,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a default config file",
	Long:  `Create a default config file at ~/.config/devcrew/config.yaml with all available options.`,
	Args:  cobra.NoArgs,
	RunE:  runConfigInit,
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Show the config file path",
	Args:  cobra.NoArgs,
	RunE:  runConfigPath,
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configValidateCmd)
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configPathCmd)
}

// Register adds all config-related commands to the given parent command.
// This is the main entry point for integrating the config subpackage with
// the root command.
func Register(parent *cobra.Command) {
	parent.AddCommand(configCmd)
}

// settings returns the configuration keys viper knows about, without the
// flags bound at the root.
func settings() map[string]any {
	all := viper.AllSettings()
	delete(all, "config")
	return all
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	w := cmd.OutOrStdout()

	if used := viper.ConfigFileUsed(); used != "" {
		fmt.Fprintf(w, "# Config file: %s\n", used)
	} else {
		fmt.Fprintln(w, "# Config file: (none - using defaults)")
	}

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(settings()); err != nil {
		return fmt.Errorf("failed to render configuration: %w", err)
	}
	return enc.Close()
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	w := cmd.OutOrStdout()
	if _, err := appconfig.Load(); err != nil {
		fmt.Fprintln(w, ui.Error.Render("Configuration is invalid:"))
		fmt.Fprintln(w, err)
		return fmt.Errorf("invalid configuration")
	}
	fmt.Fprintln(w, ui.Success.Render("Configuration is valid."))
	return nil
}

func runConfigSet(cmd *cobra.Command, args []string) error {
	key := strings.ToLower(args[0])
	value := args[1]

	if !slices.Contains(viper.AllKeys(), key) || key == "config" {
		return fmt.Errorf("unknown configuration key: %s\nRun 'devcrew config show' to see valid keys", key)
	}

	typedValue, err := parseValue(key, viper.Get(key), value)
	if err != nil {
		return err
	}

	previous := viper.Get(key)
	viper.Set(key, typedValue)
	if _, err := appconfig.Load(); err != nil {
		viper.Set(key, previous)
		return fmt.Errorf("invalid value for %s: %w", key, err)
	}

	// Ensure config directory exists
	configDir := appconfig.ConfigDir()
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	configFile := viper.ConfigFileUsed()
	if configFile == "" {
		configFile = appconfig.ConfigFile()
	}
	if err := viper.WriteConfigAs(configFile); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "Set %s = %v\n", key, typedValue)
	fmt.Fprintf(w, "Config saved to %s\n", configFile)
	return nil
}

// parseValue converts value to the type of the key's current setting.
func parseValue(key string, current any, value string) (any, error) {
	switch current.(type) {
	case bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return nil, fmt.Errorf("invalid value for %s: expected true or false", key)
		}
		return b, nil
	case int:
		n, err := strconv.Atoi(value)
		if err != nil {
			return nil, fmt.Errorf("invalid value for %s: expected integer", key)
		}
		return n, nil
	case float64:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid value for %s: expected number", key)
		}
		return f, nil
	case []string, []any:
		if value == "" {
			return []string{}, nil
		}
		parts := strings.Split(value, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		return parts, nil
	default:
		return value, nil
	}
}

const defaultConfigContent = `# devcrew configuration

# Where devcrew keeps its data, relative to the project root
paths:
  data_dir: .devcrew

# Analysis cache
cache:
  # Entries older than this are misses and are removed by cleanup
  ttl_days: 30
  # Entry store: file or badger
  backend: file
  # In-process LRU size, 0 disables it
  memory_entries: 128
  # zstd-compress entry blobs (file backend)
  compress: true
  # Directory names skipped when hashing the project
  exclude_dirs: [.git, node_modules, __pycache__]

# Zip backups
backup:
  # Records kept in backup_info.json; older archives are deleted
  max_records: 20
  # Backups older than this are pruned
  retention_days: 30

# Team simulation
team:
  max_iterations: 3
  # Simulated work time per task
  task_delay_ms: 500
  # Approving roles needed for a vote to pass
  required_approvals: 3
  # This role must approve: planner, developer, tester or reviewer
  mandatory_role: tester

# Self-diagnosis
diagnose:
  # Report formats: md, json, yaml
  formats: [md, json]
  required_dirs: [internal, cmd]
  coverage_file: coverage.out
  min_coverage: 60

# Error handler
errors:
  max_retries: 3
  retry_delay_ms: 1000
  # Identical errors within this window are recorded once, 0 disables
  dedup_window_seconds: 60

# Debug logging (<data_dir>/logs/debug.log)
logging:
  enabled: true
  # debug, info, warn or error
  level: info
  max_size_mb: 10
  max_backups: 3
  compress: false
`

func runConfigInit(cmd *cobra.Command, args []string) error {
	configDir := appconfig.ConfigDir()
	configFile := appconfig.ConfigFile()

	// Check if config file already exists
	if _, err := os.Stat(configFile); err == nil {
		return fmt.Errorf("config file already exists at %s\nUse 'devcrew config set' to modify values", configFile)
	}

	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(configFile, []byte(defaultConfigContent), 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "Created config file at %s\n", configFile)
	fmt.Fprintln(w, "Edit this file to customize devcrew's behavior.")
	return nil
}

func runConfigPath(cmd *cobra.Command, args []string) error {
	w := cmd.OutOrStdout()
	configFile := appconfig.ConfigFile()

	if viper.ConfigFileUsed() != "" {
		fmt.Fprintf(w, "Active config: %s\n", viper.ConfigFileUsed())
	} else {
		fmt.Fprintf(w, "Default path: %s (not created)\n", configFile)
	}

	// Also show config search paths
	fmt.Fprintln(w, "\nSearch paths:")
	fmt.Fprintf(w, "  1. %s\n", filepath.Join(appconfig.ConfigDir(), "config.yaml"))
	fmt.Fprintf(w, "  2. ./config.yaml (current directory)\n")
	fmt.Fprintln(w, "\nEnvironment variables: DEVCREW_* (e.g., DEVCREW_CACHE_TTL_DAYS)")
	return nil
}
