package config

import "github.com/safe-pkgs/safe-pkgs/internal/types"

// overlay is the wire shape for one config file. Every field is a
// pointer/slice so "absent" and "explicitly empty" stay distinguishable
// where the merge rule cares (scalars overlay scalars; lists append).
type overlay struct {
	MinVersionAgeDays  *int64            `toml:"min_version_age_days"`
	MinWeeklyDownloads *uint64           `toml:"min_weekly_downloads"`
	MaxRisk            *string           `toml:"max_risk"`
	Allowlist          *allowlistOverlay `toml:"allowlist"`
	Denylist           *denylistOverlay  `toml:"denylist"`
	Staleness          *stalenessOverlay `toml:"staleness"`
	Checks             *checksOverlay    `toml:"checks"`
	Cache              *cacheOverlay     `toml:"cache"`
}

type allowlistOverlay struct {
	Packages []string `toml:"packages"`
}

type denylistOverlay struct {
	Packages   []string `toml:"packages"`
	Publishers []string `toml:"publishers"`
}

type stalenessOverlay struct {
	WarnMajorVersionsBehind *uint64  `toml:"warn_major_versions_behind"`
	WarnMinorVersionsBehind *uint64  `toml:"warn_minor_versions_behind"`
	WarnAgeDays             *int64   `toml:"warn_age_days"`
	IgnoreFor               []string `toml:"ignore_for"`
}

type checksOverlay struct {
	Disable  []string                         `toml:"disable"`
	Registry map[string]registryChecksOverlay `toml:"registry"`
}

type registryChecksOverlay struct {
	Disable []string `toml:"disable"`
}

type cacheOverlay struct {
	TTLMinutes *uint64 `toml:"ttl_minutes"`
}

// applyOverlay merges one parsed file's overlay into cfg: numeric
// thresholds are scalar-overridden (with zero/negative reverting to
// the default), list fields are append-unique (spec §6).
func applyOverlay(cfg *Config, o overlay) {
	if o.MinVersionAgeDays != nil {
		cfg.MinVersionAgeDays = sanitizePositiveI64(*o.MinVersionAgeDays, DefaultMinVersionAgeDays)
	}
	if o.MinWeeklyDownloads != nil {
		cfg.MinWeeklyDownloads = sanitizePositiveU64(*o.MinWeeklyDownloads, DefaultMinWeeklyDownloads)
	}
	if o.MaxRisk != nil {
		if parsed, err := types.ParseSeverity(*o.MaxRisk); err == nil {
			cfg.MaxRisk = parsed
		}
	}
	if o.Allowlist != nil {
		appendUnique(&cfg.Allowlist.Packages, o.Allowlist.Packages)
	}
	if o.Denylist != nil {
		appendUnique(&cfg.Denylist.Packages, o.Denylist.Packages)
		appendUnique(&cfg.Denylist.Publishers, o.Denylist.Publishers)
	}
	if o.Staleness != nil {
		if o.Staleness.WarnMajorVersionsBehind != nil {
			cfg.Staleness.WarnMajorVersionsBehind = sanitizePositiveU64(*o.Staleness.WarnMajorVersionsBehind, DefaultWarnMajorVersionsBehind)
		}
		if o.Staleness.WarnMinorVersionsBehind != nil {
			cfg.Staleness.WarnMinorVersionsBehind = sanitizePositiveU64(*o.Staleness.WarnMinorVersionsBehind, DefaultWarnMinorVersionsBehind)
		}
		if o.Staleness.WarnAgeDays != nil {
			cfg.Staleness.WarnAgeDays = sanitizePositiveI64(*o.Staleness.WarnAgeDays, DefaultWarnAgeDays)
		}
		appendUnique(&cfg.Staleness.IgnoreFor, o.Staleness.IgnoreFor)
	}
	if o.Checks != nil {
		appendUnique(&cfg.Checks.Disable, o.Checks.Disable)
		if len(o.Checks.Registry) > 0 {
			if cfg.Checks.Registry == nil {
				cfg.Checks.Registry = make(map[string][]string, len(o.Checks.Registry))
			}
			for key, reg := range o.Checks.Registry {
				existing := cfg.Checks.Registry[key]
				appendUnique(&existing, reg.Disable)
				cfg.Checks.Registry[key] = existing
			}
		}
	}
	if o.Cache != nil && o.Cache.TTLMinutes != nil {
		cfg.Cache.TTLMinutes = sanitizePositiveU64(*o.Cache.TTLMinutes, DefaultCacheTTLMinutes)
	}
}

func appendUnique(target *[]string, values []string) {
	for _, value := range values {
		found := false
		for _, existing := range *target {
			if existing == value {
				found = true
				break
			}
		}
		if !found {
			*target = append(*target, value)
		}
	}
}

func sanitizePositiveU64(value, fallback uint64) uint64 {
	if value == 0 {
		return fallback
	}
	return value
}

func sanitizePositiveI64(value, fallback int64) int64 {
	if value <= 0 {
		return fallback
	}
	return value
}
