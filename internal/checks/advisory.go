package checks

import (
	"context"
	"fmt"
	"strings"

	"github.com/Masterminds/semver/v3"

	"github.com/safe-pkgs/safe-pkgs/internal/types"
)

// AdvisoryCheck flags known vulnerabilities and, where possible,
// suggests the smallest fixed version to upgrade to (spec §4.2.7).
type AdvisoryCheck struct{}

func (AdvisoryCheck) Descriptor() Descriptor {
	return Descriptor{
		ID:              "advisory",
		Description:     "Flags vulnerability advisories and suggests fixed versions when known.",
		Priority:        100,
		NeedsAdvisories: true,
	}
}

func (AdvisoryCheck) Run(_ context.Context, execCtx *CheckExecutionContext) ([]types.CheckFinding, error) {
	if execCtx.Package == nil || execCtx.ResolvedVersion == nil || len(execCtx.Advisories) == 0 {
		return nil, nil
	}

	identifiers := advisoryIdentifiers(execCtx.Advisories)

	var fixedCandidates []string
	for _, advisory := range execCtx.Advisories {
		for _, fixed := range advisory.FixedVersions {
			if isVersionNewer(fixed, execCtx.ResolvedVersion.Version) {
				fixedCandidates = append(fixedCandidates, fixed)
			}
		}
	}

	var reason string
	if best, ok := bestFixedVersion(fixedCandidates); ok {
		reason = fmt.Sprintf("%s@%s is affected by %s; known CVEs are fixed in newer version %s (latest is %s)",
			execCtx.PackageName, execCtx.ResolvedVersion.Version, identifiers, best, execCtx.Package.Latest)
	} else {
		reason = fmt.Sprintf("%s@%s is affected by %s", execCtx.PackageName, execCtx.ResolvedVersion.Version, identifiers)
	}

	return []types.CheckFinding{{Severity: types.SeverityHigh, Reason: reason}}, nil
}

// advisoryIdentifiers picks up to three human-readable advisory
// identifiers, preferring CVE aliases over the raw advisory id.
func advisoryIdentifiers(advisories []types.PackageAdvisory) string {
	var identifiers []string
	for _, advisory := range advisories {
		var aliases []string
		for _, alias := range advisory.Aliases {
			if strings.HasPrefix(alias, "CVE-") {
				aliases = append(aliases, alias)
			}
		}
		if len(aliases) == 0 {
			identifiers = append(identifiers, advisory.ID)
		} else {
			identifiers = append(identifiers, aliases...)
		}
		if len(identifiers) >= 3 {
			break
		}
	}
	if len(identifiers) > 3 {
		identifiers = identifiers[:3]
	}
	if len(identifiers) == 0 {
		return "OSV advisory"
	}
	return strings.Join(identifiers, ", ")
}

func isVersionNewer(candidate, baseline string) bool {
	candidateSemver, errC := semver.NewVersion(candidate)
	baselineSemver, errB := semver.NewVersion(baseline)
	if errC == nil && errB == nil {
		return candidateSemver.GreaterThan(baselineSemver)
	}
	return candidate > baseline
}

// bestFixedVersion picks the smallest upgrade among candidates, semver
// aware when possible, falling back to lexicographic ordering.
func bestFixedVersion(candidates []string) (string, bool) {
	if len(candidates) == 0 {
		return "", false
	}
	best := candidates[0]
	for _, candidate := range candidates[1:] {
		if isLess(candidate, best) {
			best = candidate
		}
	}
	return best, true
}

func isLess(a, b string) bool {
	aSemver, errA := semver.NewVersion(a)
	bSemver, errB := semver.NewVersion(b)
	if errA == nil && errB == nil {
		return aSemver.LessThan(bSemver)
	}
	return a < b
}
