package diagnose

import (
	"context"
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"

	"golang.org/x/mod/modfile"
	"golang.org/x/tools/cover"
)

// Check is one diagnosis step.
type Check interface {
	// Name is the stable identifier used in reports and prompts.
	Name() string
	// Title is the human-readable step name.
	Title() string
	// Run inspects the project at root. Problems are reported through the
	// returned StepResult, never as a Go error.
	Run(ctx context.Context, root string) StepResult
}

func result(c Check, status Status, msg string, details map[string]any) StepResult {
	return StepResult{Name: c.Name(), Title: c.Title(), Status: status, Message: msg, Details: details}
}

// maxListed bounds the number of offending items copied into details.
const maxListed = 10

func truncateList(items []string) []string {
	if len(items) <= maxListed {
		return items
	}
	out := append([]string(nil), items[:maxListed]...)
	return append(out, fmt.Sprintf("... and %d more", len(items)-maxListed))
}

// FoldersCheck verifies that required directories exist.
type FoldersCheck struct {
	Required []string
}

func (FoldersCheck) Name() string  { return StepFolders }
func (FoldersCheck) Title() string { return "Folder structure" }

// Run implements Check.
func (c FoldersCheck) Run(_ context.Context, root string) StepResult {
	if len(c.Required) == 0 {
		return result(c, StatusSkip, "no required directories configured", nil)
	}
	var present, missing []string
	for _, dir := range c.Required {
		info, err := os.Stat(filepath.Join(root, dir))
		if err == nil && info.IsDir() {
			present = append(present, dir)
		} else {
			missing = append(missing, dir)
		}
	}
	details := map[string]any{"required": c.Required, "present": present}
	if len(missing) > 0 {
		details["missing"] = missing
		return result(c, StatusFail, fmt.Sprintf("missing %d of %d required directories: %s",
			len(missing), len(c.Required), strings.Join(missing, ", ")), details)
	}
	return result(c, StatusPass, fmt.Sprintf("all %d required directories present", len(c.Required)), details)
}

// ImportsCheck parses every Go source file. A file that does not parse
// cannot be imported, so each failure is reported as an import error.
type ImportsCheck struct{}

func (ImportsCheck) Name() string  { return StepImports }
func (ImportsCheck) Title() string { return "Source parsing and imports" }

// Run implements Check.
func (c ImportsCheck) Run(ctx context.Context, root string) StepResult {
	fset := token.NewFileSet()
	files := 0
	imports := make(map[string]struct{})
	var failures []string

	err := walkGoFiles(ctx, root, func(path, rel string) error {
		files++
		f, err := parser.ParseFile(fset, path, nil, parser.SkipObjectResolution)
		if err != nil {
			failures = append(failures, fmt.Sprintf("%s: %v", rel, firstLine(err.Error())))
			return nil
		}
		for _, imp := range f.Imports {
			imports[strings.Trim(imp.Path.Value, `"`)] = struct{}{}
		}
		return nil
	})
	if err != nil {
		return result(c, StatusFail, "failed to scan sources: "+err.Error(), nil)
	}
	if files == 0 {
		return result(c, StatusSkip, "no Go files found", nil)
	}

	details := map[string]any{"files": files, "unique_imports": len(imports)}
	if len(failures) > 0 {
		details["errors"] = truncateList(failures)
		return result(c, StatusFail, fmt.Sprintf("%d of %d files failed to parse", len(failures), files), details)
	}
	return result(c, StatusPass, fmt.Sprintf("%d files parsed", files), details)
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

// CoverageCheck reads a coverage profile written by "go test -coverprofile"
// and compares total statement coverage against a minimum.
type CoverageCheck struct {
	// Profile is the profile path, relative to root unless absolute.
	Profile string
	// Min is the minimum coverage percentage.
	Min float64
}

func (CoverageCheck) Name() string  { return StepCoverage }
func (CoverageCheck) Title() string { return "Test coverage" }

// Run implements Check.
func (c CoverageCheck) Run(_ context.Context, root string) StepResult {
	path := c.Profile
	if path == "" {
		path = "coverage.out"
	}
	if !filepath.IsAbs(path) {
		path = filepath.Join(root, path)
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return result(c, StatusSkip, "no coverage profile at "+path+"; run go test -coverprofile", nil)
	}

	profiles, err := cover.ParseProfiles(path)
	if err != nil {
		return result(c, StatusFail, "failed to parse coverage profile: "+err.Error(), nil)
	}

	var total, covered int64
	var weakest []string
	for _, p := range profiles {
		var pt, pc int64
		for _, b := range p.Blocks {
			pt += int64(b.NumStmt)
			if b.Count > 0 {
				pc += int64(b.NumStmt)
			}
		}
		total += pt
		covered += pc
		if pt > 0 && percent(pc, pt) < c.Min {
			weakest = append(weakest, fmt.Sprintf("%s (%.1f%%)", p.FileName, percent(pc, pt)))
		}
	}
	if total == 0 {
		return result(c, StatusSkip, "coverage profile has no statements", nil)
	}

	pct := percent(covered, total)
	details := map[string]any{
		"profile":    path,
		"files":      len(profiles),
		"statements": total,
		"covered":    covered,
		"percent":    roundTo(pct, 1),
		"minimum":    c.Min,
	}
	sort.Strings(weakest)
	if len(weakest) > 0 {
		details["below_minimum"] = truncateList(weakest)
	}

	if pct < c.Min {
		return result(c, StatusFail, fmt.Sprintf("coverage %.1f%% is below the %.1f%% minimum", pct, c.Min), details)
	}
	return result(c, StatusPass, fmt.Sprintf("coverage %.1f%%", pct), details)
}

func percent(part, whole int64) float64 {
	if whole == 0 {
		return 0
	}
	return float64(part) * 100 / float64(whole)
}

func roundTo(v float64, places int) float64 {
	p := 1.0
	for i := 0; i < places; i++ {
		p *= 10
	}
	return float64(int64(v*p+0.5)) / p
}

// DependenciesCheck parses go.mod and summarizes the requirements.
type DependenciesCheck struct{}

func (DependenciesCheck) Name() string  { return StepDependencies }
func (DependenciesCheck) Title() string { return "Dependencies" }

// Run implements Check.
func (c DependenciesCheck) Run(_ context.Context, root string) StepResult {
	path := filepath.Join(root, "go.mod")
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return result(c, StatusFail, "go.mod not found", nil)
		}
		return result(c, StatusFail, "failed to read go.mod: "+err.Error(), nil)
	}

	f, err := modfile.Parse(path, data, nil)
	if err != nil {
		return result(c, StatusFail, "go.mod does not parse: "+firstLine(err.Error()), nil)
	}
	if f.Module == nil {
		return result(c, StatusFail, "go.mod has no module directive", nil)
	}

	var direct, indirect int
	for _, r := range f.Require {
		if r.Indirect {
			indirect++
		} else {
			direct++
		}
	}
	details := map[string]any{
		"module":   f.Module.Mod.Path,
		"direct":   direct,
		"indirect": indirect,
	}
	if f.Go != nil {
		details["go"] = f.Go.Version
	}

	var localReplaces []string
	for _, r := range f.Replace {
		if r.New.Version == "" {
			localReplaces = append(localReplaces, r.Old.Path+" => "+r.New.Path)
		}
	}
	if len(f.Replace) > 0 {
		details["replaces"] = len(f.Replace)
	}

	msg := fmt.Sprintf("%s: %d direct, %d indirect requirements", f.Module.Mod.Path, direct, indirect)
	if len(localReplaces) > 0 {
		details["local_replaces"] = localReplaces
		return result(c, StatusWarn, msg+"; local replace directives present", details)
	}
	return result(c, StatusPass, msg, details)
}

// MemoryCheck snapshots the runtime's memory statistics.
type MemoryCheck struct {
	// MaxHeapMB warns when the live heap exceeds it. Zero disables the limit.
	MaxHeapMB float64
}

func (MemoryCheck) Name() string  { return StepMemory }
func (MemoryCheck) Title() string { return "Memory" }

// Run implements Check.
func (c MemoryCheck) Run(_ context.Context, _ string) StepResult {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)

	heapMB := float64(ms.HeapAlloc) / (1 << 20)
	details := map[string]any{
		"heap_alloc_mb": roundTo(heapMB, 2),
		"sys_mb":        roundTo(float64(ms.Sys)/(1<<20), 2),
		"num_gc":        ms.NumGC,
		"goroutines":    runtime.NumGoroutine(),
	}
	msg := fmt.Sprintf("heap %.2f MB, %d goroutines", heapMB, runtime.NumGoroutine())
	if c.MaxHeapMB > 0 && heapMB > c.MaxHeapMB {
		return result(c, StatusWarn, msg+fmt.Sprintf(" exceeds %.0f MB", c.MaxHeapMB), details)
	}
	return result(c, StatusPass, msg, details)
}

// TestsCheck counts test files and test functions.
type TestsCheck struct{}

func (TestsCheck) Name() string  { return StepTests }
func (TestsCheck) Title() string { return "Test inventory" }

// Run implements Check.
func (c TestsCheck) Run(ctx context.Context, root string) StepResult {
	fset := token.NewFileSet()
	var testFiles, testFuncs, benchmarks, fuzz int
	packages := make(map[string]bool) // dir -> has tests

	err := walkGoFiles(ctx, root, func(path, rel string) error {
		dir := filepath.ToSlash(filepath.Dir(rel))
		isTest := strings.HasSuffix(rel, "_test.go")
		packages[dir] = packages[dir] || isTest
		if !isTest {
			return nil
		}
		testFiles++
		f, err := parser.ParseFile(fset, path, nil, parser.SkipObjectResolution)
		if err != nil {
			return nil
		}
		for _, decl := range f.Decls {
			name := funcName(decl)
			switch {
			case strings.HasPrefix(name, "Test"):
				testFuncs++
			case strings.HasPrefix(name, "Benchmark"):
				benchmarks++
			case strings.HasPrefix(name, "Fuzz"):
				fuzz++
			}
		}
		return nil
	})
	if err != nil {
		return result(c, StatusFail, "failed to scan tests: "+err.Error(), nil)
	}

	var untested []string
	for dir, has := range packages {
		if !has {
			untested = append(untested, dir)
		}
	}
	sort.Strings(untested)

	details := map[string]any{
		"test_files": testFiles,
		"tests":      testFuncs,
		"benchmarks": benchmarks,
		"fuzz":       fuzz,
		"packages":   len(packages),
	}
	if len(untested) > 0 {
		details["untested_packages"] = truncateList(untested)
	}

	if testFuncs == 0 {
		return result(c, StatusFail, "no tests found", details)
	}
	msg := fmt.Sprintf("%d tests in %d files", testFuncs, testFiles)
	if len(untested) > 0 {
		return result(c, StatusWarn, msg+fmt.Sprintf("; %d packages without tests", len(untested)), details)
	}
	return result(c, StatusPass, msg, details)
}

// funcName returns the name of a top-level function with a single
// parameter, the shape of test, benchmark and fuzz functions.
func funcName(decl ast.Decl) string {
	fn, ok := decl.(*ast.FuncDecl)
	if !ok || fn.Recv != nil || fn.Type.Params == nil || len(fn.Type.Params.List) != 1 {
		return ""
	}
	return fn.Name.Name
}

// DefaultChecks returns the six steps with the given settings.
func DefaultChecks(requiredDirs []string, coverageProfile string, minCoverage float64) []Check {
	return []Check{
		FoldersCheck{Required: requiredDirs},
		ImportsCheck{},
		CoverageCheck{Profile: coverageProfile, Min: minCoverage},
		DependenciesCheck{},
		MemoryCheck{},
		TestsCheck{},
	}
}
