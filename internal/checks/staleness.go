package checks

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/Masterminds/semver/v3"

	"github.com/safe-pkgs/safe-pkgs/internal/types"
)

// StalenessCheck flags deprecated versions and versions that have
// fallen far behind latest, governed by StalenessPolicy (spec §4.2.3).
type StalenessCheck struct {
	Now func() time.Time
}

func (StalenessCheck) Descriptor() Descriptor {
	return Descriptor{
		ID:          "staleness",
		Description: "Flags deprecated or stale package versions based on age and semver distance.",
		Priority:    100,
	}
}

func (c StalenessCheck) Run(_ context.Context, execCtx *CheckExecutionContext) ([]types.CheckFinding, error) {
	if execCtx.Package == nil || execCtx.ResolvedVersion == nil {
		return nil, nil
	}

	now := time.Now
	if c.Now != nil {
		now = c.Now
	}

	var findings []types.CheckFinding
	policy := execCtx.Policy.Staleness
	requested := execCtx.ResolvedVersion
	ignored := isIgnored(execCtx.PackageName, requested.Version, policy)

	if requested.Deprecated {
		findings = append(findings, types.CheckFinding{
			Severity: types.SeverityHigh,
			Reason:   fmt.Sprintf("%s@%s is marked deprecated", execCtx.PackageName, requested.Version),
		})
	}

	if !ignored && requested.Published != nil {
		ageDays := int64(now().Sub(*requested.Published).Hours() / 24)
		if ageDays >= policy.WarnAgeDays {
			findings = append(findings, types.CheckFinding{
				Severity: types.SeverityLow,
				Reason: fmt.Sprintf("%s@%s is %d day(s) old (>= %d days)",
					execCtx.PackageName, requested.Version, ageDays, policy.WarnAgeDays),
			})
		}
	}

	if ignored {
		return findings, nil
	}

	requestedSemver, err := semver.NewVersion(requested.Version)
	if err != nil {
		return findings, nil
	}
	latestSemver, err := semver.NewVersion(execCtx.Package.Latest)
	if err != nil {
		return findings, nil
	}
	if latestSemver.Compare(requestedSemver) <= 0 {
		return findings, nil
	}

	majorGap := saturatingSub(latestSemver.Major(), requestedSemver.Major())
	var minorGap uint64
	if latestSemver.Major() == requestedSemver.Major() {
		minorGap = saturatingSub(latestSemver.Minor(), requestedSemver.Minor())
	}

	switch {
	case majorGap >= policy.WarnMajorVersionsBehind:
		findings = append(findings, types.CheckFinding{
			Severity: types.SeverityMedium,
			Reason: fmt.Sprintf("%s@%s is %d major version(s) behind latest (%s)",
				execCtx.PackageName, requested.Version, majorGap, execCtx.Package.Latest),
		})
	case majorGap >= 1 || minorGap >= policy.WarnMinorVersionsBehind:
		findings = append(findings, types.CheckFinding{
			Severity: types.SeverityLow,
			Reason: fmt.Sprintf("%s@%s is behind latest (%s)",
				execCtx.PackageName, requested.Version, execCtx.Package.Latest),
		})
	}

	return findings, nil
}

func saturatingSub(a, b uint64) uint64 {
	if b >= a {
		return 0
	}
	return a - b
}

// isIgnored matches StalenessPolicy.IgnoreFor rules: a bare package
// name, an exact "name@version", or a "name@MAJOR.x" major-version
// wildcard.
func isIgnored(packageName, version string, policy StalenessPolicy) bool {
	for _, rule := range policy.IgnoreFor {
		if rule == packageName {
			return true
		}

		idx := strings.LastIndex(rule, "@")
		if idx <= 0 {
			continue
		}
		ruleName, ruleVersion := rule[:idx], rule[idx+1:]
		if ruleName != packageName {
			continue
		}
		if ruleVersion == version {
			return true
		}

		majorPrefix, ok := strings.CutSuffix(ruleVersion, ".x")
		if !ok {
			continue
		}
		ruleMajor, err := strconv.ParseUint(majorPrefix, 10, 64)
		if err != nil {
			continue
		}
		parsedVersion, err := semver.NewVersion(version)
		if err != nil {
			continue
		}
		if parsedVersion.Major() == ruleMajor {
			return true
		}
	}
	return false
}
