// Package config loads the tool's runtime configuration and resolves its
// data paths.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	toml "github.com/pelletier/go-toml/v2"

	"agent-switcher/internal/targets"
)

// Config is the optional config.toml under the tool's root directory.
type Config struct {
	// Verbose enables debug logging by default.
	Verbose bool `toml:"verbose"`
	// Targets overrides built-in target application paths per provider.
	Targets map[string]targets.Overrides `toml:"targets"`
}

// Paths locates everything the tool persists.
type Paths struct {
	// RootDir holds config.toml, account stores, fingerprints, instances.
	RootDir string
	// TrashDir receives deleted instance directories.
	TrashDir string
}

// ResolvePaths picks the tool root. AGENT_SWITCHER_HOME overrides the
// platform default of <user config dir>/agent-switcher.
func ResolvePaths() (Paths, error) {
	root := os.Getenv("AGENT_SWITCHER_HOME")
	if root == "" {
		base, err := os.UserConfigDir()
		if err != nil {
			return Paths{}, fmt.Errorf("resolve config dir: %w", err)
		}
		root = filepath.Join(base, "agent-switcher")
	}
	return Paths{
		RootDir:  root,
		TrashDir: filepath.Join(root, "trash"),
	}, nil
}

// Load reads config.toml under paths.RootDir. A missing file yields the
// zero config.
func Load(paths Paths) (Config, error) {
	var cfg Config
	raw, err := os.ReadFile(filepath.Join(paths.RootDir, "config.toml"))
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, err
	}
	if err := toml.Unmarshal(raw, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config.toml: %w", err)
	}
	return cfg, nil
}

// TargetOverrides returns the override block for a provider, or nil.
func (c Config) TargetOverrides(provider string) *targets.Overrides {
	if ov, ok := c.Targets[provider]; ok {
		return &ov
	}
	return nil
}
