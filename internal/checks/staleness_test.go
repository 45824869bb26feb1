package checks

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/safe-pkgs/safe-pkgs/internal/types"
)

func defaultStalenessPolicy() StalenessPolicy {
	return StalenessPolicy{
		WarnMajorVersionsBehind: 2,
		WarnMinorVersionsBehind: 3,
		WarnAgeDays:             365,
	}
}

func TestStalenessCheck_MajorGapIsMedium(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	published := now.Add(-100 * 24 * time.Hour)
	check := StalenessCheck{Now: fixedNow(now)}

	findings, err := check.Run(context.Background(), &CheckExecutionContext{
		PackageName:     "demo",
		Package:         &types.PackageRecord{Name: "demo", Latest: "3.0.0"},
		ResolvedVersion: &types.PackageVersion{Version: "1.0.0", Published: &published},
		Policy:          Policy{Staleness: defaultStalenessPolicy()},
	})
	assert.NoError(t, err)
	assert.Condition(t, func() bool {
		for _, f := range findings {
			if f.Severity == types.SeverityMedium {
				return true
			}
		}
		return false
	})
}

func TestStalenessCheck_IgnoreForMajorWildcardSuppressesGap(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	published := now.Add(-1000 * 24 * time.Hour)
	check := StalenessCheck{Now: fixedNow(now)}

	policy := defaultStalenessPolicy()
	policy.IgnoreFor = []string{"demo@1.x"}

	findings, err := check.Run(context.Background(), &CheckExecutionContext{
		PackageName:     "demo",
		Package:         &types.PackageRecord{Name: "demo", Latest: "3.0.0"},
		ResolvedVersion: &types.PackageVersion{Version: "1.0.0", Published: &published},
		Policy:          Policy{Staleness: policy},
	})
	assert.NoError(t, err)
	for _, f := range findings {
		assert.NotContains(t, f.Reason, "behind latest")
	}
}

func TestStalenessCheck_Deprecated(t *testing.T) {
	check := StalenessCheck{}
	findings, err := check.Run(context.Background(), &CheckExecutionContext{
		PackageName:     "demo",
		Package:         &types.PackageRecord{Name: "demo", Latest: "1.0.0"},
		ResolvedVersion: &types.PackageVersion{Version: "1.0.0", Deprecated: true},
		Policy:          Policy{Staleness: defaultStalenessPolicy()},
	})
	assert.NoError(t, err)
	assert.Len(t, findings, 1)
	assert.Equal(t, types.SeverityHigh, findings[0].Severity)
	assert.Contains(t, findings[0].Reason, "deprecated")
}
