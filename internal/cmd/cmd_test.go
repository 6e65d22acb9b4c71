package cmd

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/Iron-Ham/devcrew/internal/testutil"
)

// resetFlags restores every flag in the command tree to its default so one
// test's flags do not leak into the next.
func resetFlags(c *cobra.Command) {
	reset := func(f *pflag.Flag) {
		if sv, ok := f.Value.(pflag.SliceValue); ok {
			_ = sv.Replace(nil)
		} else {
			_ = f.Value.Set(f.DefValue)
		}
		f.Changed = false
	}
	c.Flags().VisitAll(reset)
	c.PersistentFlags().VisitAll(reset)
	for _, sub := range c.Commands() {
		resetFlags(sub)
	}
}

// executeCommand runs the root command with args and returns captured output
func executeCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()
	viper.Reset()
	resetFlags(rootCmd)

	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)
	rootCmd.SetIn(strings.NewReader(""))
	rootCmd.SetArgs(args)
	err := Execute()
	return buf.String(), err
}

// setupProject creates a small Go project and isolates the user config.
func setupProject(t *testing.T) string {
	t.Helper()
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("DEVCREW_TEAM_TASK_DELAY_MS", "0")
	return testutil.SetupProject(t, testutil.GoProject)
}

func TestRootCommand(t *testing.T) {
	if rootCmd.Use != "devcrew" {
		t.Errorf("rootCmd.Use = %q, want %q", rootCmd.Use, "devcrew")
	}

	expectedCmds := []string{"team", "diagnose", "analyze", "cache", "backup", "cleanup", "errors", "metrics", "config"}
	cmdMap := make(map[string]bool)
	for _, cmd := range rootCmd.Commands() {
		cmdMap[cmd.Name()] = true
	}
	for _, expected := range expectedCmds {
		if !cmdMap[expected] {
			t.Errorf("expected subcommand %q not found", expected)
		}
	}
}

func TestTeamCommand(t *testing.T) {
	dir := setupProject(t)

	out, err := executeCommand(t, "--project", dir, "team", "add", "dark", "mode")
	if err != nil {
		t.Fatalf("team command failed: %v\n%s", err, out)
	}
	if !strings.Contains(out, "add dark mode") {
		t.Errorf("output missing objective:\n%s", out)
	}
	if !strings.Contains(out, "Iteration 1") {
		t.Errorf("output missing iteration line:\n%s", out)
	}
}

func TestRootCommand_ObjectiveShortcut(t *testing.T) {
	dir := setupProject(t)

	out, err := executeCommand(t, "--project", dir, "fix", "login", "bug")
	if err != nil {
		t.Fatalf("shortcut failed: %v\n%s", err, out)
	}
	if !strings.Contains(out, "fix login bug") {
		t.Errorf("output missing objective:\n%s", out)
	}
}

func TestTeamCommand_JSON(t *testing.T) {
	dir := setupProject(t)

	out, err := executeCommand(t, "--project", dir, "team", "--json", "write", "docs")
	if err != nil {
		t.Fatalf("team --json failed: %v\n%s", err, out)
	}
	var outcome struct {
		Objective  string `json:"objective"`
		Success    bool   `json:"success"`
		Iterations int    `json:"iterations"`
	}
	if err := json.Unmarshal([]byte(out), &outcome); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, out)
	}
	if outcome.Objective != "write docs" {
		t.Errorf("objective = %q, want %q", outcome.Objective, "write docs")
	}
	if !outcome.Success || outcome.Iterations != 1 {
		t.Errorf("outcome = %+v, want success on iteration 1", outcome)
	}
}

func TestTeamCommand_RequiresObjective(t *testing.T) {
	dir := setupProject(t)

	if _, err := executeCommand(t, "--project", dir, "team"); err == nil {
		t.Error("expected error without an objective")
	}
}

func TestProjectFlag_Invalid(t *testing.T) {
	setupProject(t)
	missing := filepath.Join(t.TempDir(), "missing")

	if _, err := executeCommand(t, "--project", missing, "analyze"); err == nil {
		t.Error("expected error for a missing project directory")
	}
}

func analyzeJSON(t *testing.T, dir string, extra ...string) map[string]any {
	t.Helper()
	args := append([]string{"--project", dir, "analyze"}, extra...)
	out, err := executeCommand(t, args...)
	if err != nil {
		t.Fatalf("analyze failed: %v\n%s", err, out)
	}
	var result map[string]any
	if err := json.Unmarshal([]byte(out), &result); err != nil {
		t.Fatalf("analyze output is not JSON: %v\n%s", err, out)
	}
	return result
}

func TestAnalyzeCommand_CachesResult(t *testing.T) {
	dir := setupProject(t)

	first := analyzeJSON(t, dir)
	if first["analysis_mode"] != "full" {
		t.Errorf("first run analysis_mode = %v, want full", first["analysis_mode"])
	}
	if first["cache_hit"] != false {
		t.Errorf("first run cache_hit = %v, want false", first["cache_hit"])
	}

	second := analyzeJSON(t, dir)
	if second["analysis_mode"] != "cached" {
		t.Errorf("second run analysis_mode = %v, want cached", second["analysis_mode"])
	}
	if second["cache_hit"] != true {
		t.Errorf("second run cache_hit = %v, want true", second["cache_hit"])
	}

	forced := analyzeJSON(t, dir, "--force-refresh")
	if forced["analysis_mode"] != "full" {
		t.Errorf("forced run analysis_mode = %v, want full", forced["analysis_mode"])
	}
}

func TestAnalyzeCommand_BadParam(t *testing.T) {
	dir := setupProject(t)

	if _, err := executeCommand(t, "--project", dir, "analyze", "--param", "noequals"); err == nil {
		t.Error("expected error for malformed --param")
	}
}

func TestCacheCommands(t *testing.T) {
	dir := setupProject(t)
	analyzeJSON(t, dir)

	stats := func() int {
		t.Helper()
		out, err := executeCommand(t, "--project", dir, "cache", "stats", "--json")
		if err != nil {
			t.Fatalf("cache stats failed: %v\n%s", err, out)
		}
		var s struct {
			Entries int `json:"entries"`
		}
		if err := json.Unmarshal([]byte(out), &s); err != nil {
			t.Fatalf("stats output is not JSON: %v\n%s", err, out)
		}
		return s.Entries
	}

	if n := stats(); n != 1 {
		t.Errorf("entries after analyze = %d, want 1", n)
	}

	out, err := executeCommand(t, "--project", dir, "cache", "prune")
	if err != nil {
		t.Fatalf("cache prune failed: %v", err)
	}
	if !strings.Contains(out, "Removed 0 cache entries") {
		t.Errorf("prune output = %q", out)
	}

	out, err = executeCommand(t, "--project", dir, "cache", "clear")
	if err != nil {
		t.Fatalf("cache clear failed: %v", err)
	}
	if !strings.Contains(out, "Cache cleared.") {
		t.Errorf("clear output = %q", out)
	}
	if n := stats(); n != 0 {
		t.Errorf("entries after clear = %d, want 0", n)
	}
}

func TestBackupCommands(t *testing.T) {
	dir := setupProject(t)

	out, err := executeCommand(t, "--project", dir, "backup", "create", "-m", "before refactor")
	if err != nil {
		t.Fatalf("backup create failed: %v\n%s", err, out)
	}
	if !strings.Contains(out, "Backup created.") {
		t.Errorf("create output = %q", out)
	}

	out, err = executeCommand(t, "--project", dir, "backup", "list", "--json")
	if err != nil {
		t.Fatalf("backup list failed: %v\n%s", err, out)
	}
	var records []struct {
		ID          string `json:"id"`
		BackupType  string `json:"backup_type"`
		Description string `json:"description"`
	}
	if err := json.Unmarshal([]byte(out), &records); err != nil {
		t.Fatalf("list output is not JSON: %v\n%s", err, out)
	}
	if len(records) != 1 {
		t.Fatalf("got %d records, want 1", len(records))
	}
	if records[0].BackupType != "full" || records[0].Description != "before refactor" {
		t.Errorf("record = %+v", records[0])
	}

	dest := t.TempDir()
	out, err = executeCommand(t, "--project", dir, "backup", "restore", records[0].ID, "--dest", dest)
	if err != nil {
		t.Fatalf("backup restore failed: %v\n%s", err, out)
	}
	want := testutil.ReadFile(t, dir, "internal/greet/greet.go")
	if got := testutil.ReadFile(t, dest, "internal/greet/greet.go"); got != want {
		t.Errorf("restored greet.go = %q, want %q", got, want)
	}
}

func TestBackupRestore_UnknownIDIsRecorded(t *testing.T) {
	dir := setupProject(t)

	if _, err := executeCommand(t, "--project", dir, "backup", "restore", "nope"); err == nil {
		t.Fatal("expected error restoring an unknown backup")
	}

	out, err := executeCommand(t, "--project", dir, "errors", "summary", "--json")
	if err != nil {
		t.Fatalf("errors summary failed: %v\n%s", err, out)
	}
	var sum struct {
		Total      int            `json:"total"`
		ByCategory map[string]int `json:"by_category"`
	}
	if err := json.Unmarshal([]byte(out), &sum); err != nil {
		t.Fatalf("summary output is not JSON: %v\n%s", err, out)
	}
	if sum.Total != 1 {
		t.Errorf("total = %d, want 1 (recorded once)", sum.Total)
	}
	if sum.ByCategory["file"] != 1 {
		t.Errorf("by_category = %v, want file: 1", sum.ByCategory)
	}
}

func TestErrorsSummary_Empty(t *testing.T) {
	dir := setupProject(t)

	out, err := executeCommand(t, "--project", dir, "errors", "summary")
	if err != nil {
		t.Fatalf("errors summary failed: %v\n%s", err, out)
	}
	if !strings.Contains(out, "No errors recorded.") {
		t.Errorf("output = %q", out)
	}
}

func TestCleanupCommand_NothingToDo(t *testing.T) {
	dir := setupProject(t)

	out, err := executeCommand(t, "--project", dir, "cleanup", "--dry-run")
	if err != nil {
		t.Fatalf("cleanup failed: %v\n%s", err, out)
	}
	if !strings.Contains(out, "Nothing to clean up") {
		t.Errorf("output = %q", out)
	}
}

func TestDiagnoseCommand(t *testing.T) {
	dir := setupProject(t)

	out, err := executeCommand(t, "--project", dir, "diagnose", "--no-write")
	if err != nil {
		t.Fatalf("diagnose failed: %v\n%s", err, out)
	}
	if !strings.Contains(out, "Test inventory") {
		t.Errorf("output missing test inventory step:\n%s", out)
	}
}

func TestDiagnoseCommand_UnknownFormat(t *testing.T) {
	dir := setupProject(t)

	if _, err := executeCommand(t, "--project", dir, "diagnose", "--format", "pdf"); err == nil {
		t.Error("expected error for an unknown report format")
	}
}

func TestMetricsCommand(t *testing.T) {
	dir := setupProject(t)

	out, err := executeCommand(t, "--project", dir, "metrics")
	if err != nil {
		t.Fatalf("metrics failed: %v\n%s", err, out)
	}
	if !strings.Contains(out, "devcrew_backup_created_total") {
		t.Errorf("metrics output missing backup counter:\n%s", out)
	}
}

func TestMetricsOutFlag(t *testing.T) {
	dir := setupProject(t)
	path := filepath.Join(t.TempDir(), "metrics", "team.prom")

	if _, err := executeCommand(t, "--project", dir, "--metrics-out", path, "team", "ship", "it"); err != nil {
		t.Fatalf("team failed: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("metrics file not written: %v", err)
	}
	if !strings.Contains(string(data), `devcrew_team_votes_total{outcome="approved"} 1`) {
		t.Errorf("metrics file missing approved vote:\n%s", data)
	}
}

func TestConfigCommands(t *testing.T) {
	setupProject(t)

	out, err := executeCommand(t, "config", "show")
	if err != nil {
		t.Fatalf("config show failed: %v", err)
	}
	if !strings.Contains(out, "ttl_days: 30") {
		t.Errorf("config show missing cache TTL:\n%s", out)
	}

	out, err = executeCommand(t, "config", "validate")
	if err != nil {
		t.Fatalf("config validate failed: %v\n%s", err, out)
	}
	if !strings.Contains(out, "Configuration is valid.") {
		t.Errorf("validate output = %q", out)
	}

	t.Setenv("DEVCREW_CACHE_BACKEND", "redis")
	if _, err := executeCommand(t, "config", "validate"); err == nil {
		t.Error("expected validate to reject an unknown cache backend")
	}
}

func TestParseParams(t *testing.T) {
	params, err := parseParams([]string{"depth=2", "path=internal/cache", "empty="})
	if err != nil {
		t.Fatalf("parseParams failed: %v", err)
	}
	want := map[string]any{"depth": "2", "path": "internal/cache", "empty": ""}
	if len(params) != len(want) {
		t.Fatalf("got %d params, want %d", len(params), len(want))
	}
	for k, v := range want {
		if params[k] != v {
			t.Errorf("params[%q] = %v, want %v", k, params[k], v)
		}
	}

	for _, bad := range []string{"noequals", "=value"} {
		if _, err := parseParams([]string{bad}); err == nil {
			t.Errorf("parseParams(%q) should fail", bad)
		}
	}
}
