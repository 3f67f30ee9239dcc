package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/0xmhha/folder-search/pkg/filelock"
)

// testEnv writes a config file pointing at a fresh work dir and returns
// its path along with a small tree to search.
func testEnv(t *testing.T) (configPath, tree string) {
	t.Helper()

	base := t.TempDir()
	tree = filepath.Join(base, "tree")
	for _, dir := range []string{"alpha", "alpha/beta", "gamma", "gamma/alpine"} {
		if err := os.MkdirAll(filepath.Join(tree, dir), 0o755); err != nil {
			t.Fatalf("failed to create %s: %v", dir, err)
		}
	}

	configPath = filepath.Join(base, "folder-search.yaml")
	content := "work_dir: " + filepath.Join(base, "work") + `
watch:
  enabled: false
display:
  color_enabled: false
logging:
  level: error
  output: stderr
`
	if err := os.WriteFile(configPath, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return configPath, tree
}

// runCommand executes the CLI with args and returns its standard output.
func runCommand(t *testing.T, configPath string, args ...string) (string, error) {
	t.Helper()

	cmd := newRootCommand()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(append([]string{"--config", configPath}, args...))

	err := cmd.Execute()
	return out.String(), err
}

func mustRun(t *testing.T, configPath string, args ...string) string {
	t.Helper()

	out, err := runCommand(t, configPath, args...)
	if err != nil {
		t.Fatalf("%s: unexpected error: %v", strings.Join(args, " "), err)
	}
	return out
}

// TestRootsLifecycle tests adding, listing, disabling and removing a root.
func TestRootsLifecycle(t *testing.T) {
	configPath, tree := testEnv(t)

	out := mustRun(t, configPath, "roots", "add", tree, "--name", "work")
	if !strings.Contains(out, "Added") {
		t.Errorf("add output = %q, want Added", out)
	}
	if !strings.Contains(out, "5 directories") {
		t.Errorf("add output = %q, want the scan summary", out)
	}

	if _, err := runCommand(t, configPath, "roots", "add", tree); err == nil {
		t.Error("adding a root twice should fail")
	}

	out = mustRun(t, configPath, "roots", "list", "--format", "json")
	var roots []map[string]interface{}
	if err := json.Unmarshal([]byte(out), &roots); err != nil {
		t.Fatalf("roots list is not JSON: %v\n%s", err, out)
	}
	if len(roots) != 1 {
		t.Fatalf("len(roots) = %d, want 1", len(roots))
	}
	if roots[0]["name"] != "work" {
		t.Errorf("name = %v, want work", roots[0]["name"])
	}
	if roots[0]["cataloged"] != true {
		t.Errorf("cataloged = %v, want true", roots[0]["cataloged"])
	}

	mustRun(t, configPath, "roots", "disable", tree)
	out = mustRun(t, configPath, "roots", "list", "--format", "simple")
	if !strings.Contains(out, "disabled") {
		t.Errorf("list after disable = %q, want disabled", out)
	}

	mustRun(t, configPath, "roots", "enable", tree)
	mustRun(t, configPath, "roots", "remove", tree)
	out = mustRun(t, configPath, "roots", "list")
	if !strings.Contains(out, "No data") {
		t.Errorf("list after remove = %q, want No data", out)
	}

	if _, err := runCommand(t, configPath, "roots", "remove", tree); err == nil {
		t.Error("removing an unknown root should fail")
	}
}

// TestSearchCommand tests searching through the CLI.
func TestSearchCommand(t *testing.T) {
	configPath, tree := testEnv(t)
	mustRun(t, configPath, "roots", "add", tree)

	tests := []struct {
		name      string
		args      []string
		wantPaths []string
		wantMode  string
	}{
		{
			name:      "prefix",
			args:      []string{"search", "alp"},
			wantPaths: []string{"alpha", filepath.Join("gamma", "alpine")},
			wantMode:  "prefix",
		},
		{
			name:      "contains",
			args:      []string{"search", "--contains", "pin"},
			wantPaths: []string{filepath.Join("gamma", "alpine")},
			wantMode:  "contains",
		},
		{
			name:      "limited",
			args:      []string{"search", "-n", "1", "alp"},
			wantPaths: []string{"alpha"},
			wantMode:  "prefix",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := mustRun(t, configPath, append(tt.args, "--format", "json")...)

			var got struct {
				Mode    string `json:"mode"`
				Results []struct {
					RelPath string `json:"rel_path"`
				} `json:"results"`
				Final struct {
					ModeUsed string `json:"mode_used"`
				} `json:"final"`
			}
			if err := json.Unmarshal([]byte(out), &got); err != nil {
				t.Fatalf("search output is not JSON: %v\n%s", err, out)
			}

			if got.Mode != tt.wantMode {
				t.Errorf("mode = %q, want %q", got.Mode, tt.wantMode)
			}
			if got.Final.ModeUsed != "catalog" {
				t.Errorf("mode_used = %q, want catalog", got.Final.ModeUsed)
			}
			if len(got.Results) != len(tt.wantPaths) {
				t.Fatalf("results = %v, want %v", got.Results, tt.wantPaths)
			}
			for i, want := range tt.wantPaths {
				if got.Results[i].RelPath != want {
					t.Errorf("results[%d] = %q, want %q", i, got.Results[i].RelPath, want)
				}
			}
		})
	}
}

// TestHistoryCommand tests that searches are recorded unless silent.
func TestHistoryCommand(t *testing.T) {
	configPath, tree := testEnv(t)
	mustRun(t, configPath, "roots", "add", tree)

	mustRun(t, configPath, "search", "alpha")
	mustRun(t, configPath, "search", "--silent", "gamma")
	mustRun(t, configPath, "search", "beta")

	out := mustRun(t, configPath, "history", "--format", "simple")
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 2 {
		t.Fatalf("history = %q, want 2 records", out)
	}
	if !strings.Contains(lines[0], `"beta"`) || !strings.Contains(lines[1], `"alpha"`) {
		t.Errorf("history = %q, want newest first", out)
	}

	out = mustRun(t, configPath, "history", "-n", "1", "--format", "simple")
	if n := len(strings.Split(strings.TrimSpace(out), "\n")); n != 1 {
		t.Errorf("limited history has %d lines, want 1", n)
	}

	mustRun(t, configPath, "history", "clear")
	out = mustRun(t, configPath, "history", "--format", "json")
	if strings.TrimSpace(out) != "[]" {
		t.Errorf("history after clear = %q, want []", out)
	}
}

// TestConfigCommand tests config show and path.
func TestConfigCommand(t *testing.T) {
	configPath, _ := testEnv(t)

	out := mustRun(t, configPath, "config", "show")
	if !strings.Contains(out, "# Source: "+configPath) {
		t.Errorf("config show = %q, want source line", out)
	}
	if !strings.Contains(out, "enabled: false") {
		t.Errorf("config show = %q, want the file's watch setting", out)
	}

	out = mustRun(t, configPath, "config", "show", "--output", "json")
	var cfg map[string]interface{}
	if err := json.Unmarshal([]byte(out), &cfg); err != nil {
		t.Fatalf("config show json is not JSON: %v\n%s", err, out)
	}

	if _, err := runCommand(t, configPath, "config", "show", "--output", "toml"); err == nil {
		t.Error("unknown config format should fail")
	}

	out = mustRun(t, configPath, "config", "path")
	if strings.TrimSpace(out) != configPath {
		t.Errorf("config path = %q, want %q", out, configPath)
	}
}

// TestUnknownFormat tests that an invalid output format is rejected.
func TestUnknownFormat(t *testing.T) {
	configPath, _ := testEnv(t)

	if _, err := runCommand(t, configPath, "roots", "list", "--format", "xml"); err == nil {
		t.Error("expected error for unknown format")
	}
}

// TestWatchRefusesSecondInstance tests that watch fails while another
// process holds the watch lock.
func TestWatchRefusesSecondInstance(t *testing.T) {
	configPath, _ := testEnv(t)

	workDir := filepath.Join(filepath.Dir(configPath), "work")
	if err := os.MkdirAll(workDir, 0o755); err != nil {
		t.Fatalf("failed to create work dir: %v", err)
	}
	held := filelock.NewFileLock(filepath.Join(workDir, watchLockName))
	if err := held.Lock(); err != nil {
		t.Fatalf("failed to hold lock: %v", err)
	}
	defer held.Unlock()

	_, err := runCommand(t, configPath, "watch")
	if !errors.Is(err, errWatchRunning) {
		t.Errorf("watch error = %v, want errWatchRunning", err)
	}
}
