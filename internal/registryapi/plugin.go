package registryapi

import (
	"context"

	"github.com/safe-pkgs/safe-pkgs/internal/types"
)

// Plugin is the uniform contract every registry adapter presents to
// the pipeline (spec §4.1).
type Plugin interface {
	// Ecosystem is the OSV ecosystem tag: "npm", "crates.io", "PyPI".
	Ecosystem() string

	FetchPackage(ctx context.Context, name string) (*types.PackageRecord, error)
	FetchWeeklyDownloads(ctx context.Context, name string) (*uint64, error)
	FetchPopularNames(ctx context.Context, limit int) ([]string, error)
	FetchAdvisories(ctx context.Context, name, version string) ([]types.PackageAdvisory, error)

	// PrefetchWeeklyDownloads fills the plugin's internal memo. Callers
	// (the lockfile auditor) only log a warning on failure.
	PrefetchWeeklyDownloads(ctx context.Context, names []string) error

	// LockfileParser returns the registry's lockfile parser, or nil if
	// this registry has none.
	LockfileParser() LockfileParser
}
