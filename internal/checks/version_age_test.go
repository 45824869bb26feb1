package checks

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/safe-pkgs/safe-pkgs/internal/types"
)

func fixedNow(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestVersionAgeCheck_TooYoung(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	published := now.Add(-2 * 24 * time.Hour)
	check := VersionAgeCheck{Now: fixedNow(now)}

	findings, err := check.Run(context.Background(), &CheckExecutionContext{
		PackageName:     "demo",
		ResolvedVersion: &types.PackageVersion{Version: "0.1.0", Published: &published},
		Policy:          Policy{MinVersionAgeDays: 14},
	})
	assert.NoError(t, err)
	assert.Len(t, findings, 1)
	assert.Equal(t, types.SeverityHigh, findings[0].Severity)
}

func TestVersionAgeCheck_OldEnough(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	published := now.Add(-30 * 24 * time.Hour)
	check := VersionAgeCheck{Now: fixedNow(now)}

	findings, err := check.Run(context.Background(), &CheckExecutionContext{
		ResolvedVersion: &types.PackageVersion{Version: "0.1.0", Published: &published},
		Policy:          Policy{MinVersionAgeDays: 14},
	})
	assert.NoError(t, err)
	assert.Empty(t, findings)
}

func TestVersionAgeCheck_NoPublishDate(t *testing.T) {
	findings, err := VersionAgeCheck{}.Run(context.Background(), &CheckExecutionContext{
		ResolvedVersion: &types.PackageVersion{Version: "0.1.0"},
		Policy:          Policy{MinVersionAgeDays: 14},
	})
	assert.NoError(t, err)
	assert.Empty(t, findings)
}
