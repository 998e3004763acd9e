package cmd

import (
	"os"
	"path/filepath"
	"testing"
)

func TestResolveMigrationsDir(t *testing.T) {
	tests := []struct {
		name   string
		flag   string
		env    string
		hasDir bool
		want   string
	}{
		{"flag wins", "/opt/flag", "/opt/env", true, "/opt/flag"},
		{"env over cwd", "", "/opt/env", true, "/opt/env"},
		{"cwd migrations", "", "", true, "migrations"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			t.Chdir(dir)
			if tt.hasDir {
				if err := os.Mkdir(filepath.Join(dir, "migrations"), 0o755); err != nil {
					t.Fatal(err)
				}
			}
			t.Setenv("MODBOT_MIGRATIONS_DIR", tt.env)
			old := migrationsDir
			migrationsDir = tt.flag
			t.Cleanup(func() { migrationsDir = old })

			if got := resolveMigrationsDir(); got != tt.want {
				t.Errorf("resolveMigrationsDir() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestResolveMigrationsDir_FallsBackToBinaryDir(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("MODBOT_MIGRATIONS_DIR", "")
	exe, err := os.Executable()
	if err != nil {
		t.Skip(err)
	}
	want := filepath.Join(filepath.Dir(exe), "migrations")
	if got := resolveMigrationsDir(); got != want {
		t.Errorf("resolveMigrationsDir() = %q, want %q", got, want)
	}
}

func TestMigrateCmd_Subcommands(t *testing.T) {
	want := map[string]bool{"up": true, "down": true, "version": true, "force": true}
	for _, c := range migrateCmd().Commands() {
		if !want[c.Name()] {
			t.Errorf("unexpected subcommand %q", c.Name())
		}
		delete(want, c.Name())
	}
	for name := range want {
		t.Errorf("missing subcommand %q", name)
	}
}
