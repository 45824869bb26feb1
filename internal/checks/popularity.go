package checks

import (
	"context"
	"fmt"
	"time"

	"github.com/safe-pkgs/safe-pkgs/internal/types"
)

const youngPackageAgeDays = 30

// PopularityCheck flags very new packages that have not yet earned
// adoption (spec §4.2.4).
type PopularityCheck struct {
	Now func() time.Time
}

func (PopularityCheck) Descriptor() Descriptor {
	return Descriptor{
		ID:                   "popularity",
		Description:          "Flags very new packages with low adoption based on weekly downloads.",
		Priority:             100,
		NeedsWeeklyDownloads: true,
	}
}

func (c PopularityCheck) Run(_ context.Context, execCtx *CheckExecutionContext) ([]types.CheckFinding, error) {
	if execCtx.ResolvedVersion == nil || execCtx.ResolvedVersion.Published == nil || execCtx.WeeklyDownloads == nil {
		return nil, nil
	}

	now := time.Now
	if c.Now != nil {
		now = c.Now
	}

	downloads := *execCtx.WeeklyDownloads
	ageDays := int64(now().Sub(*execCtx.ResolvedVersion.Published).Hours() / 24)

	if downloads >= execCtx.Policy.MinWeeklyDownloads || ageDays > youngPackageAgeDays {
		return nil, nil
	}

	return []types.CheckFinding{{
		Severity: types.SeverityHigh,
		Reason: fmt.Sprintf("%s@%s has low adoption (%d weekly downloads) and is only %d day(s) old",
			execCtx.PackageName, execCtx.ResolvedVersion.Version, downloads, ageDays),
	}}, nil
}
