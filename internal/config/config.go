// Package config loads and merges the two-file TOML configuration
// described in spec §6: a global file, then a project file layered on
// top of it.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/pelletier/go-toml/v2"

	"github.com/safe-pkgs/safe-pkgs/internal/types"
)

// Defaults mirror the original engine's thresholds.
const (
	DefaultMinVersionAgeDays       = 7
	DefaultMinWeeklyDownloads      = 50
	DefaultWarnMajorVersionsBehind = 2
	DefaultWarnMinorVersionsBehind = 3
	DefaultWarnAgeDays             = 365
	DefaultCacheTTLMinutes         = 30
)

var defaultMaxRisk = types.SeverityMedium

// Config is the fully merged, validated configuration.
type Config struct {
	Allowlist          Allowlist
	Denylist           Denylist
	Staleness          Staleness
	Checks             Checks
	Cache              Cache
	MaxRisk            types.Severity
	MinVersionAgeDays  int64
	MinWeeklyDownloads uint64
}

// Allowlist holds package rules in "name" or "name@version" form.
type Allowlist struct {
	Packages []string
}

// Denylist holds package and publisher rules.
type Denylist struct {
	Packages   []string
	Publishers []string
}

// Staleness mirrors checks.StalenessPolicy with the config-file names.
type Staleness struct {
	IgnoreFor               []string
	WarnMajorVersionsBehind uint64
	WarnMinorVersionsBehind uint64
	WarnAgeDays             int64
}

// Checks holds global and per-registry check-disable lists.
type Checks struct {
	Disable  []string
	Registry map[string][]string
}

// Cache holds the decision cache's TTL.
type Cache struct {
	TTLMinutes uint64
}

// Default returns the configuration that applies when no config files
// are present.
func Default() Config {
	return Config{
		MinVersionAgeDays:  DefaultMinVersionAgeDays,
		MinWeeklyDownloads: DefaultMinWeeklyDownloads,
		MaxRisk:            defaultMaxRisk,
		Staleness: Staleness{
			WarnMajorVersionsBehind: DefaultWarnMajorVersionsBehind,
			WarnMinorVersionsBehind: DefaultWarnMinorVersionsBehind,
			WarnAgeDays:             DefaultWarnAgeDays,
		},
		Cache: Cache{TTLMinutes: DefaultCacheTTLMinutes},
	}
}

// Load resolves the global and project config paths (honoring the
// SAFE_PKGS_CONFIG_GLOBAL_PATH / SAFE_PKGS_CONFIG_PROJECT_PATH
// overrides) and merges them over the defaults, project last.
func Load() (Config, error) {
	return LoadFromPaths(globalConfigPath(), projectConfigPath())
}

// LoadFromPaths merges config at the given paths (either may be empty,
// meaning "skip") over the defaults. Project is merged after global.
func LoadFromPaths(globalPath, projectPath string) (Config, error) {
	cfg := Default()
	for _, path := range []string{globalPath, projectPath} {
		if path == "" {
			continue
		}
		if err := mergeFromPath(&cfg, path); err != nil {
			return Config{}, err
		}
	}
	return cfg, nil
}

func mergeFromPath(cfg *Config, path string) error {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("stat config file %s: %w", path, err)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file %s: %w", path, err)
	}

	var overlay overlay
	if err := toml.Unmarshal(raw, &overlay); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	applyOverlay(cfg, overlay)
	return nil
}

func globalConfigPath() string {
	if explicit := os.Getenv("SAFE_PKGS_CONFIG_GLOBAL_PATH"); explicit != "" {
		return explicit
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "safe-pkgs", "config.toml")
}

func projectConfigPath() string {
	if explicit := os.Getenv("SAFE_PKGS_CONFIG_PROJECT_PATH"); explicit != "" {
		return explicit
	}
	cwd, err := os.Getwd()
	if err != nil {
		return ""
	}
	return filepath.Join(cwd, ".safe-pkgs.toml")
}
