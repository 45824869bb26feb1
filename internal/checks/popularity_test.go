package checks

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/safe-pkgs/safe-pkgs/internal/types"
)

func versionPublished(daysAgo int, now time.Time) *types.PackageVersion {
	published := now.Add(-time.Duration(daysAgo) * 24 * time.Hour)
	return &types.PackageVersion{Version: "0.1.0", Published: &published}
}

func TestPopularityCheck_LowDownloadsYoungPackageIsHigh(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	downloads := uint64(10)
	check := PopularityCheck{Now: fixedNow(now)}

	findings, err := check.Run(context.Background(), &CheckExecutionContext{
		PackageName:     "new-lib",
		ResolvedVersion: versionPublished(3, now),
		WeeklyDownloads: &downloads,
		Policy:          Policy{MinWeeklyDownloads: 50},
	})
	assert.NoError(t, err)
	assert.Len(t, findings, 1)
	assert.Equal(t, types.SeverityHigh, findings[0].Severity)
}

func TestPopularityCheck_HighDownloadsHasNoFinding(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	downloads := uint64(5000)
	check := PopularityCheck{Now: fixedNow(now)}

	findings, err := check.Run(context.Background(), &CheckExecutionContext{
		ResolvedVersion: versionPublished(3, now),
		WeeklyDownloads: &downloads,
		Policy:          Policy{MinWeeklyDownloads: 50},
	})
	assert.NoError(t, err)
	assert.Empty(t, findings)
}

func TestPopularityCheck_OldPackageHasNoFindingEvenIfDownloadsLow(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	downloads := uint64(10)
	check := PopularityCheck{Now: fixedNow(now)}

	findings, err := check.Run(context.Background(), &CheckExecutionContext{
		ResolvedVersion: versionPublished(180, now),
		WeeklyDownloads: &downloads,
		Policy:          Policy{MinWeeklyDownloads: 50},
	})
	assert.NoError(t, err)
	assert.Empty(t, findings)
}

func TestPopularityCheck_MissingDownloadsOrPublishDateHasNoFinding(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	check := PopularityCheck{Now: fixedNow(now)}

	findings, err := check.Run(context.Background(), &CheckExecutionContext{
		ResolvedVersion: versionPublished(3, now),
		Policy:          Policy{MinWeeklyDownloads: 50},
	})
	assert.NoError(t, err)
	assert.Empty(t, findings)

	downloads := uint64(10)
	findings, err = check.Run(context.Background(), &CheckExecutionContext{
		ResolvedVersion: &types.PackageVersion{Version: "0.1.0"},
		WeeklyDownloads: &downloads,
		Policy:          Policy{MinWeeklyDownloads: 50},
	})
	assert.NoError(t, err)
	assert.Empty(t, findings)
}
