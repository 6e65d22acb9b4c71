package config

import (
	"strings"
	"testing"
)

func TestValidationError_Error(t *testing.T) {
	err := ValidationError{Field: "cache.ttl_days", Value: 0, Message: "must be positive"}
	want := "cache.ttl_days: must be positive (got: 0)"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
}

func TestValidationErrors_Error(t *testing.T) {
	if ValidationErrors(nil).Error() != "" {
		t.Error("empty ValidationErrors should render as empty string")
	}

	errs := ValidationErrors{
		{Field: "a", Value: 1, Message: "bad"},
		{Field: "b", Value: 2, Message: "worse"},
	}
	got := errs.Error()
	if !strings.HasPrefix(got, "2 validation errors:") {
		t.Errorf("Error() = %q", got)
	}
	if !strings.Contains(got, "1. a: bad (got: 1)") || !strings.Contains(got, "2. b: worse (got: 2)") {
		t.Errorf("Error() = %q", got)
	}
}

func TestConfig_Validate_DefaultConfig(t *testing.T) {
	if errs := Default().Validate(); len(errs) != 0 {
		t.Errorf("default config should be valid, got %v", errs)
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"ttl zero", func(c *Config) { c.Cache.TTLDays = 0 }, "cache.ttl_days"},
		{"unknown backend", func(c *Config) { c.Cache.Backend = "redis" }, "cache.backend"},
		{"negative memory entries", func(c *Config) { c.Cache.MemoryEntries = -1 }, "cache.memory_entries"},
		{"no backup records", func(c *Config) { c.Backup.MaxRecords = 0 }, "backup.max_records"},
		{"negative retention", func(c *Config) { c.Backup.RetentionDays = -1 }, "backup.retention_days"},
		{"zero iterations", func(c *Config) { c.Team.MaxIterations = 0 }, "team.max_iterations"},
		{"negative delay", func(c *Config) { c.Team.TaskDelayMs = -5 }, "team.task_delay_ms"},
		{"too many approvals", func(c *Config) { c.Team.RequiredApprovals = 5 }, "team.required_approvals"},
		{"unknown mandatory role", func(c *Config) { c.Team.MandatoryRole = "manager" }, "team.mandatory_role"},
		{"unknown report format", func(c *Config) { c.Diagnose.Formats = []string{"md", "pdf"} }, "diagnose.formats"},
		{"coverage over 100", func(c *Config) { c.Diagnose.MinCoverage = 101 }, "diagnose.min_coverage"},
		{"negative retries", func(c *Config) { c.Errors.MaxRetries = -1 }, "errors.max_retries"},
		{"negative dedup", func(c *Config) { c.Errors.DedupWindowSeconds = -1 }, "errors.dedup_window_seconds"},
		{"bad log level", func(c *Config) { c.Logging.Level = "trace" }, "logging.level"},
		{"huge log", func(c *Config) { c.Logging.MaxSizeMB = 5000 }, "logging.max_size_mb"},
		{"negative log backups", func(c *Config) { c.Logging.MaxBackups = -1 }, "logging.max_backups"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)

			errs := cfg.Validate()
			if len(errs) != 1 {
				t.Fatalf("got %d errors, want 1: %v", len(errs), errs)
			}
			if errs[0].Field != tt.field {
				t.Errorf("Field = %q, want %q", errs[0].Field, tt.field)
			}
		})
	}
}

func TestConfig_Validate_CollectsAll(t *testing.T) {
	cfg := Default()
	cfg.Cache.TTLDays = 0
	cfg.Team.MaxIterations = 0
	cfg.Logging.Level = "loud"

	if errs := cfg.Validate(); len(errs) != 3 {
		t.Errorf("got %d errors, want 3: %v", len(errs), errs)
	}
}
