// Package checks implements the seven package-safety checks that the
// pipeline runs against a resolved (or unresolved) package.
package checks

import (
	"context"

	"github.com/safe-pkgs/safe-pkgs/internal/types"
)

// Descriptor is the static metadata the catalog and pipeline use to
// decide whether a check is active for a given evaluation.
type Descriptor struct {
	ID                   string
	Description          string
	Priority             uint16
	AlwaysEnabled        bool
	RunsOnMissingPackage bool
	RunsOnMissingVersion bool
	NeedsWeeklyDownloads bool
	NeedsAdvisories      bool
}

// Check is one package-safety rule. Run must be pure given its
// execution context: no side effects beyond the findings it returns.
type Check interface {
	Descriptor() Descriptor
	Run(ctx context.Context, execCtx *CheckExecutionContext) ([]types.CheckFinding, error)
}

// LookupState records what the pipeline managed to resolve before
// running checks, used to gate runs_on_missing_* descriptors.
type LookupState int

const (
	// LookupReady means both the package record and the requested
	// version resolved.
	LookupReady LookupState = iota
	// LookupMissingPackage means fetch_package found nothing.
	LookupMissingPackage
	// LookupMissingVersion means the package exists but the requested
	// version did not resolve against it.
	LookupMissingVersion
)

// StalenessPolicy configures the staleness check's thresholds (spec
// §4.2.3).
type StalenessPolicy struct {
	IgnoreFor               []string
	WarnAgeDays             int64
	WarnMajorVersionsBehind uint64
	WarnMinorVersionsBehind uint64
}

// Policy bundles the config-driven thresholds every check may consult.
// The pipeline builds one of these per evaluation from the merged
// config.
type Policy struct {
	Staleness          StalenessPolicy
	MinVersionAgeDays  int64
	MinWeeklyDownloads uint64
}

// FetchPopularNames is the shape of a registry plugin's popular-name
// lookup, injected so the typosquat check never imports registryapi
// directly (it only needs this one method).
type FetchPopularNames func(ctx context.Context, limit int) ([]string, error)

// CheckExecutionContext carries everything a check's Run may need.
// Fields the pipeline could not resolve are left at their zero value;
// a check's descriptor is what decides whether it runs at all given
// the gaps.
type CheckExecutionContext struct {
	Package           *types.PackageRecord
	ResolvedVersion   *types.PackageVersion
	Advisories        []types.PackageAdvisory
	FetchPopularNames FetchPopularNames
	Policy            Policy
	WeeklyDownloads   *uint64
	PackageName       string
	RequestedVersion  string
}
