package tether

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/caarlos0/env/v11"
)

// Well-known names shared by producer and consumer.
const (
	// ConfigBaseName is the record file name without suffixes.
	ConfigBaseName = ".tether-config"

	// DefaultAssetsFile is the assets file name written next to the build output.
	DefaultAssetsFile = "tether-assets.json"

	// ChannelName identifies record messages on the event channel.
	ChannelName = "tether.config"

	// DevMarkerEnv is set to "true" in consumers that installed a dev record.
	DevMarkerEnv = "TETHER_DEV"

	// ChannelFDEnv carries the inherited event channel descriptor to a child.
	ChannelFDEnv = "TETHER_CHANNEL_FD"
)

// Env is the process environment that influences file names and transport.
type Env struct {
	// Mode is "production" or anything else.
	Mode string `env:"TETHER_ENV" envDefault:"development"`

	// ForceChannel keeps the event channel active even in production.
	ForceChannel bool `env:"TETHER_FORCE_CHANNEL"`

	// ChannelFD is the descriptor of an inherited event channel, 0 if none.
	ChannelFD int `env:"TETHER_CHANNEL_FD"`

	// Dev mirrors the dev marker a consumer sets for the rest of the process.
	Dev bool `env:"TETHER_DEV"`

	// LogFormat selects "text" or "json" logging.
	LogFormat string `env:"TETHER_LOG_FORMAT" envDefault:"text"`

	// Debug enables debug logging.
	Debug bool `env:"TETHER_DEBUG"`
}

// LoadEnv reads Env from the process environment.
func LoadEnv() (Env, error) {
	var e Env
	if err := env.Parse(&e); err != nil {
		return Env{}, fmt.Errorf("failed to parse environment: %w", err)
	}
	return e, nil
}

// Production reports whether the environment is production.
func (e Env) Production() bool {
	return strings.EqualFold(e.Mode, "production")
}

// ChannelAllowed reports whether the event channel fast path may be used.
func (e Env) ChannelAllowed() bool {
	return !e.Production() || e.ForceChannel
}

// ConfigFile returns the record file name for the environment. Production and
// non-production builds use different names so they never collide.
func ConfigFile(e Env) string {
	if e.Production() {
		return ConfigBaseName + ".json"
	}
	return ConfigBaseName + ".dev.json"
}

// LockFile returns the lock marker name paired with ConfigFile.
func LockFile(e Env) string {
	return strings.TrimSuffix(ConfigFile(e), ".json") + ".lock"
}

// CurrentConfigFile re-reads the process environment and returns the record
// file name it implies right now.
func CurrentConfigFile() string {
	e, err := LoadEnv()
	if err != nil {
		return ConfigFile(Env{})
	}
	return ConfigFile(e)
}

// relPath makes p relative to root and slash separated. Paths outside root
// are returned slash separated but otherwise unchanged.
func relPath(root, p string) string {
	if p == "" {
		return ""
	}
	if !filepath.IsAbs(p) {
		return filepath.ToSlash(filepath.Clean(p))
	}
	rel, err := filepath.Rel(root, p)
	if err != nil || strings.HasPrefix(rel, "..") {
		return filepath.ToSlash(p)
	}
	return filepath.ToSlash(rel)
}

// absPath resolves a stored path against root.
func absPath(root, p string) string {
	p = filepath.FromSlash(p)
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(root, p)
}
