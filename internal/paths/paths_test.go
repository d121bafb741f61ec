package paths

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestBaseDirDefault(t *testing.T) {
	t.Setenv(HomeEnv, "")
	home, _ := os.UserHomeDir()
	if got, want := BaseDir(), filepath.Join(home, ".clinic"); got != want {
		t.Errorf("BaseDir() = %q, want %q", got, want)
	}
}

func TestBaseDirOverride(t *testing.T) {
	dir := t.TempDir()
	t.Setenv(HomeEnv, dir)
	if got := BaseDir(); got != dir {
		t.Errorf("BaseDir() = %q, want %q", got, dir)
	}
	if got := DefaultDBPath(); got != filepath.Join(dir, "data", "clinic.db") {
		t.Errorf("DefaultDBPath() = %q", got)
	}
}

func TestSocketAndLogPaths(t *testing.T) {
	t.Setenv(HomeEnv, "/srv/clinic")
	if got := SocketPath(); got != "/srv/clinic/clinicd.sock" {
		t.Errorf("SocketPath() = %q", got)
	}
	if got := LogPath(); !strings.HasSuffix(got, filepath.Join("logs", "clinicd.log")) {
		t.Errorf("LogPath() = %q, want suffix logs/clinicd.log", got)
	}
}

func TestResolveDBPath(t *testing.T) {
	home := t.TempDir()
	t.Setenv(HomeEnv, home)

	legacy := filepath.Join(t.TempDir(), "legacy.db")
	missing := filepath.Join(t.TempDir(), "missing.db")
	if err := os.WriteFile(legacy, nil, 0600); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name     string
		override string
		legacy   string
		want     string
	}{
		{"override wins", "/tmp/explicit.db", legacy, "/tmp/explicit.db"},
		{"legacy when present", "", legacy, legacy},
		{"default when legacy missing", "", missing, DefaultDBPath()},
		{"default when no legacy", "", "", DefaultDBPath()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ResolveDBPath(tt.override, tt.legacy); got != tt.want {
				t.Errorf("ResolveDBPath(%q, %q) = %q, want %q", tt.override, tt.legacy, got, tt.want)
			}
		})
	}
}

func TestResolveDBPathIgnoresLegacyDirectory(t *testing.T) {
	t.Setenv(HomeEnv, t.TempDir())
	dir := t.TempDir()
	if got := ResolveDBPath("", dir); got != DefaultDBPath() {
		t.Errorf("ResolveDBPath with directory legacy = %q, want default", got)
	}
}

func TestEnsureDir(t *testing.T) {
	home := filepath.Join(t.TempDir(), "clinic")
	t.Setenv(HomeEnv, home)

	if err := EnsureDir(); err != nil {
		t.Fatalf("EnsureDir() error = %v", err)
	}
	for _, d := range []string{home, DataDir(), LogDir()} {
		info, err := os.Stat(d)
		if err != nil {
			t.Fatalf("%s not created: %v", d, err)
		}
		if perm := info.Mode().Perm(); perm != 0700 {
			t.Errorf("%s permission = %o, want 0700", d, perm)
		}
	}
}
