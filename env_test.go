package tether

import (
	"path/filepath"
	"testing"
)

func TestLoadEnv(t *testing.T) {
	t.Setenv("TETHER_ENV", "production")
	t.Setenv("TETHER_FORCE_CHANNEL", "true")
	t.Setenv("TETHER_CHANNEL_FD", "3")
	t.Setenv("TETHER_LOG_FORMAT", "json")

	e, err := LoadEnv()
	if err != nil {
		t.Fatalf("LoadEnv failed: %v", err)
	}
	if !e.Production() {
		t.Error("expected production")
	}
	if !e.ForceChannel || e.ChannelFD != 3 || e.LogFormat != "json" {
		t.Errorf("unexpected env: %+v", e)
	}
	if !e.ChannelAllowed() {
		t.Error("expected forced channel to be allowed in production")
	}
}

func TestLoadEnv_Defaults(t *testing.T) {
	t.Setenv("TETHER_ENV", "")
	e, err := LoadEnv()
	if err != nil {
		t.Fatalf("LoadEnv failed: %v", err)
	}
	if e.Production() {
		t.Error("expected non-production by default")
	}
	if e.LogFormat != "text" {
		t.Errorf("expected text log format, got %q", e.LogFormat)
	}
}

func TestLoadEnv_BadValue(t *testing.T) {
	t.Setenv("TETHER_CHANNEL_FD", "three")
	if _, err := LoadEnv(); err == nil {
		t.Error("expected parse error")
	}
}

func TestEnv_ChannelAllowed(t *testing.T) {
	if !(Env{Mode: "development"}).ChannelAllowed() {
		t.Error("expected channel in development")
	}
	if (Env{Mode: "PRODUCTION"}).ChannelAllowed() {
		t.Error("expected production to disable the channel")
	}
}

func TestConfigFile(t *testing.T) {
	if got := ConfigFile(Env{Mode: "production"}); got != ".tether-config.json" {
		t.Errorf("unexpected production name %q", got)
	}
	if got := ConfigFile(Env{Mode: "test"}); got != ".tether-config.dev.json" {
		t.Errorf("unexpected dev name %q", got)
	}
	if got := LockFile(Env{Mode: "production"}); got != ".tether-config.lock" {
		t.Errorf("unexpected production lock %q", got)
	}
	if got := LockFile(Env{}); got != ".tether-config.dev.lock" {
		t.Errorf("unexpected dev lock %q", got)
	}
}

func TestCurrentConfigFile_FollowsEnvironment(t *testing.T) {
	t.Setenv("TETHER_ENV", "production")
	if got := CurrentConfigFile(); got != ".tether-config.json" {
		t.Errorf("expected production name, got %q", got)
	}
	t.Setenv("TETHER_ENV", "development")
	if got := CurrentConfigFile(); got != ".tether-config.dev.json" {
		t.Errorf("expected dev name, got %q", got)
	}
}

func TestRelPath(t *testing.T) {
	root := filepath.FromSlash("/work/app")
	tests := []struct {
		in   string
		want string
	}{
		{"", ""},
		{filepath.FromSlash("/work/app/dist"), "dist"},
		{filepath.FromSlash("/work/app/src/img/a.png"), "src/img/a.png"},
		{"dist/./js", "dist/js"},
		{filepath.FromSlash("/elsewhere/out"), "/elsewhere/out"},
	}
	for _, tt := range tests {
		if got := relPath(root, tt.in); got != tt.want {
			t.Errorf("relPath(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestAbsPath(t *testing.T) {
	root := filepath.FromSlash("/work/app")
	if got := absPath(root, "dist/a.json"); got != filepath.Join(root, "dist", "a.json") {
		t.Errorf("unexpected abs path %q", got)
	}
	abs := filepath.FromSlash("/tmp/a.json")
	if got := absPath(root, abs); got != abs {
		t.Errorf("expected absolute path unchanged, got %q", got)
	}
}
