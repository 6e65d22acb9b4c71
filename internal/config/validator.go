package config

import (
	"fmt"
	"slices"
	"strings"
)

// ValidationError represents a single validation failure
type ValidationError struct {
	Field   string // The config field path (e.g., "cache.ttl_days")
	Value   any    // The invalid value
	Message string // Human-readable error description
}

// Error implements the error interface for ValidationError
func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s (got: %v)", e.Field, e.Message, e.Value)
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

// Error implements the error interface for ValidationErrors
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	if len(e) == 1 {
		return e[0].Error()
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d validation errors:\n", len(e)))
	for i, err := range e {
		sb.WriteString(fmt.Sprintf("  %d. %s\n", i+1, err.Error()))
	}
	return sb.String()
}

// ValidLogLevels returns the list of valid log levels
func ValidLogLevels() []string {
	return []string{"debug", "info", "warn", "error"}
}

// ValidCacheBackends returns the list of valid cache backends
func ValidCacheBackends() []string {
	return []string{"file", "badger"}
}

// ValidReportFormats returns the list of valid diagnosis report formats
func ValidReportFormats() []string {
	return []string{"md", "json", "yaml"}
}

// ValidRoles returns the team roles that can be made mandatory
func ValidRoles() []string {
	return []string{"planner", "developer", "tester", "reviewer"}
}

// Validate checks the Config for invalid values and returns all validation errors found
func (c *Config) Validate() []ValidationError {
	var errors []ValidationError

	errors = append(errors, c.validateCache()...)
	errors = append(errors, c.validateBackup()...)
	errors = append(errors, c.validateTeam()...)
	errors = append(errors, c.validateDiagnose()...)
	errors = append(errors, c.validateErrors()...)
	errors = append(errors, c.validateLogging()...)

	return errors
}

func (c *Config) validateCache() []ValidationError {
	var errors []ValidationError

	if c.Cache.TTLDays <= 0 {
		errors = append(errors, ValidationError{
			Field:   "cache.ttl_days",
			Value:   c.Cache.TTLDays,
			Message: "must be positive",
		})
	}
	if c.Cache.Backend != "" && !slices.Contains(ValidCacheBackends(), c.Cache.Backend) {
		errors = append(errors, ValidationError{
			Field:   "cache.backend",
			Value:   c.Cache.Backend,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidCacheBackends(), ", ")),
		})
	}
	if c.Cache.MemoryEntries < 0 {
		errors = append(errors, ValidationError{
			Field:   "cache.memory_entries",
			Value:   c.Cache.MemoryEntries,
			Message: "must be non-negative",
		})
	}

	return errors
}

func (c *Config) validateBackup() []ValidationError {
	var errors []ValidationError

	if c.Backup.MaxRecords < 1 {
		errors = append(errors, ValidationError{
			Field:   "backup.max_records",
			Value:   c.Backup.MaxRecords,
			Message: "must be at least 1",
		})
	}
	if c.Backup.RetentionDays < 0 {
		errors = append(errors, ValidationError{
			Field:   "backup.retention_days",
			Value:   c.Backup.RetentionDays,
			Message: "must be non-negative",
		})
	}

	return errors
}

func (c *Config) validateTeam() []ValidationError {
	var errors []ValidationError

	if c.Team.MaxIterations < 1 {
		errors = append(errors, ValidationError{
			Field:   "team.max_iterations",
			Value:   c.Team.MaxIterations,
			Message: "must be at least 1",
		})
	}
	if c.Team.TaskDelayMs < 0 {
		errors = append(errors, ValidationError{
			Field:   "team.task_delay_ms",
			Value:   c.Team.TaskDelayMs,
			Message: "must be non-negative",
		})
	}
	if c.Team.RequiredApprovals < 1 || c.Team.RequiredApprovals > len(ValidRoles()) {
		errors = append(errors, ValidationError{
			Field:   "team.required_approvals",
			Value:   c.Team.RequiredApprovals,
			Message: fmt.Sprintf("must be between 1 and %d", len(ValidRoles())),
		})
	}
	if c.Team.MandatoryRole != "" && !slices.Contains(ValidRoles(), c.Team.MandatoryRole) {
		errors = append(errors, ValidationError{
			Field:   "team.mandatory_role",
			Value:   c.Team.MandatoryRole,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidRoles(), ", ")),
		})
	}

	return errors
}

func (c *Config) validateDiagnose() []ValidationError {
	var errors []ValidationError

	for _, f := range c.Diagnose.Formats {
		if !slices.Contains(ValidReportFormats(), f) {
			errors = append(errors, ValidationError{
				Field:   "diagnose.formats",
				Value:   f,
				Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidReportFormats(), ", ")),
			})
		}
	}
	if c.Diagnose.MinCoverage < 0 || c.Diagnose.MinCoverage > 100 {
		errors = append(errors, ValidationError{
			Field:   "diagnose.min_coverage",
			Value:   c.Diagnose.MinCoverage,
			Message: "must be between 0 and 100",
		})
	}

	return errors
}

func (c *Config) validateErrors() []ValidationError {
	var errors []ValidationError

	if c.Errors.MaxRetries < 0 {
		errors = append(errors, ValidationError{
			Field:   "errors.max_retries",
			Value:   c.Errors.MaxRetries,
			Message: "must be non-negative",
		})
	}
	if c.Errors.RetryDelayMs < 0 {
		errors = append(errors, ValidationError{
			Field:   "errors.retry_delay_ms",
			Value:   c.Errors.RetryDelayMs,
			Message: "must be non-negative",
		})
	}
	if c.Errors.DedupWindowSeconds < 0 {
		errors = append(errors, ValidationError{
			Field:   "errors.dedup_window_seconds",
			Value:   c.Errors.DedupWindowSeconds,
			Message: "must be non-negative",
		})
	}

	return errors
}

func (c *Config) validateLogging() []ValidationError {
	var errors []ValidationError

	if c.Logging.Level != "" && !slices.Contains(ValidLogLevels(), c.Logging.Level) {
		errors = append(errors, ValidationError{
			Field:   "logging.level",
			Value:   c.Logging.Level,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidLogLevels(), ", ")),
		})
	}

	if c.Logging.MaxSizeMB <= 0 {
		errors = append(errors, ValidationError{
			Field:   "logging.max_size_mb",
			Value:   c.Logging.MaxSizeMB,
			Message: "must be positive",
		})
	}

	const maxLogSizeMB = 1000
	if c.Logging.MaxSizeMB > maxLogSizeMB {
		errors = append(errors, ValidationError{
			Field:   "logging.max_size_mb",
			Value:   c.Logging.MaxSizeMB,
			Message: fmt.Sprintf("exceeds maximum of %dMB", maxLogSizeMB),
		})
	}

	if c.Logging.MaxBackups < 0 {
		errors = append(errors, ValidationError{
			Field:   "logging.max_backups",
			Value:   c.Logging.MaxBackups,
			Message: "must be non-negative",
		})
	}

	return errors
}
