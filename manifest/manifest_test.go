package manifest

import (
	"os"
	"path/filepath"
	"testing"
)

func writeManifest(t *testing.T, dir, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, "ember.toml"), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, `
[project]
name = "demo"
version = "0.1.0"

[source]
entry = "app.em"
dirs = ["lib", "vendor"]

[limits]
max-call-depth = 64
max-steps = 100000
`)

	m, err := Load(dir)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if m.Project.Name != "demo" || m.Project.Version != "0.1.0" {
		t.Errorf("project = %+v", m.Project)
	}
	if m.Source.Entry != "app.em" {
		t.Errorf("entry = %q", m.Source.Entry)
	}
	if len(m.Source.Dirs) != 2 {
		t.Errorf("dirs = %v", m.Source.Dirs)
	}
	if m.Limits.MaxCallDepth != 64 || m.Limits.MaxSteps != 100000 {
		t.Errorf("limits = %+v", m.Limits)
	}
}

func TestLoadDefaults(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, `
[project]
name = "demo"
`)

	m, err := Load(dir)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if len(m.Source.Dirs) != 1 || m.Source.Dirs[0] != "src" {
		t.Errorf("default dirs = %v", m.Source.Dirs)
	}
	if m.Source.Entry != "main.em" {
		t.Errorf("default entry = %q", m.Source.Entry)
	}
}

func TestLoadMissing(t *testing.T) {
	if _, err := Load(t.TempDir()); err == nil {
		t.Error("expected error for missing manifest")
	}
}

func TestFindAndLoadWalksUp(t *testing.T) {
	root := t.TempDir()
	writeManifest(t, root, `[project]
name = "walker"`)
	nested := filepath.Join(root, "a", "b")
	if err := os.MkdirAll(nested, 0o755); err != nil {
		t.Fatal(err)
	}

	m, err := FindAndLoad(nested)
	if err != nil {
		t.Fatalf("find failed: %v", err)
	}
	if m == nil || m.Project.Name != "walker" {
		t.Fatalf("manifest = %+v", m)
	}
}

func TestFindAndLoadNotFound(t *testing.T) {
	m, err := FindAndLoad(t.TempDir())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m != nil {
		t.Errorf("expected nil manifest, got %+v", m)
	}
}

func TestVMConfig(t *testing.T) {
	tests := []struct {
		name   string
		limits Limits
		depth  int
		steps  int
		stack  int
	}{
		{"zero keeps defaults", Limits{}, 1000, 0, 10000},
		{"explicit values", Limits{MaxCallDepth: 5, MaxSteps: 99, MaxStackSize: 7}, 5, 99, 7},
		{"negative disables", Limits{MaxCallDepth: -1, MaxStackSize: -1}, 0, 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := &Manifest{Limits: tt.limits}
			cfg := m.VMConfig()
			if cfg.MaxCallDepth != tt.depth || cfg.MaxSteps != tt.steps || cfg.MaxStackSize != tt.stack {
				t.Errorf("config = %+v", cfg)
			}
		})
	}
}
