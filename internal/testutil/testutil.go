// Package testutil provides project fixtures for devcrew tests.
package testutil

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

// VueProject is a minimal Vue.js project layout.
var VueProject = map[string]string{
	"package.json":           `{"name":"demo-app","dependencies":{"vue":"^3.4.0"}}`,
	"src/main.js":            "import { createApp } from 'vue'\n",
	"src/App.vue":            "<template><div id=\"app\"/></template>\n",
	"src/components/Nav.vue": "<template><nav/></template>\n",
	"node_modules/vue/x.js":  "// vendored\n",
}

// GoProject is a small Go module with a command and one tested package.
var GoProject = map[string]string{
	"go.mod":                       "module example.com/demo\n\ngo 1.25\n\nrequire github.com/google/uuid v1.6.0\n",
	"cmd/demo/main.go":             "package main\n\nimport \"example.com/demo/internal/greet\"\n\nfunc main() { println(greet.Hello()) }\n",
	"internal/greet/greet.go":      "package greet\n\nfunc Hello() string { return \"hello\" }\n",
	"internal/greet/greet_test.go": "package greet\n\nimport \"testing\"\n\nfunc TestHello(t *testing.T) {\n\tif Hello() != \"hello\" {\n\t\tt.Fatal(\"bad greeting\")\n\t}\n}\n",
}

// SetupProject creates a temporary project directory containing files.
// The directory is removed when the test completes.
func SetupProject(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	WriteFiles(t, dir, files)
	return dir
}

// WriteFiles writes each relative path in files under dir, creating parent
// directories as needed.
func WriteFiles(t *testing.T, dir string, files map[string]string) {
	t.Helper()
	for path, content := range files {
		full := filepath.Join(dir, filepath.FromSlash(path))
		if err := os.MkdirAll(filepath.Dir(full), 0755); err != nil {
			t.Fatalf("failed to create directory for %s: %v", path, err)
		}
		if err := os.WriteFile(full, []byte(content), 0644); err != nil {
			t.Fatalf("failed to write %s: %v", path, err)
		}
	}
}

// Age sets the modification time of path to d in the past.
func Age(t *testing.T, path string, d time.Duration) {
	t.Helper()
	mtime := time.Now().Add(-d)
	if err := os.Chtimes(path, mtime, mtime); err != nil {
		t.Fatalf("failed to age %s: %v", path, err)
	}
}

// ReadFile returns the contents of a file relative to dir.
func ReadFile(t *testing.T, dir, path string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(dir, filepath.FromSlash(path)))
	if err != nil {
		t.Fatalf("failed to read %s: %v", path, err)
	}
	return string(data)
}
