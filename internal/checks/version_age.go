package checks

import (
	"context"
	"fmt"
	"time"

	"github.com/safe-pkgs/safe-pkgs/internal/types"
)

// VersionAgeCheck flags versions published too recently to have
// earned any track record (spec §4.2.2).
type VersionAgeCheck struct {
	// Now is overridable in tests; nil means time.Now.
	Now func() time.Time
}

func (VersionAgeCheck) Descriptor() Descriptor {
	return Descriptor{
		ID:          "version_age",
		Description: "Flags versions published more recently than the configured minimum age.",
		Priority:    100,
	}
}

func (c VersionAgeCheck) Run(_ context.Context, execCtx *CheckExecutionContext) ([]types.CheckFinding, error) {
	if execCtx.ResolvedVersion == nil || execCtx.ResolvedVersion.Published == nil {
		return nil, nil
	}

	now := time.Now
	if c.Now != nil {
		now = c.Now
	}

	ageDays := int64(now().Sub(*execCtx.ResolvedVersion.Published).Hours() / 24)
	if ageDays < execCtx.Policy.MinVersionAgeDays {
		return []types.CheckFinding{{
			Severity: types.SeverityHigh,
			Reason: fmt.Sprintf("%s@%s was published %d day(s) ago (< %d day minimum)",
				execCtx.PackageName, execCtx.ResolvedVersion.Version, ageDays, execCtx.Policy.MinVersionAgeDays),
		}}, nil
	}
	return nil, nil
}
