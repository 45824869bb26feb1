package checks

import (
	"context"
	"fmt"

	"github.com/safe-pkgs/safe-pkgs/internal/types"
)

// ExistenceCheck flags packages and versions that don't exist upstream
// — the primary defense against hallucinated or slopsquatted names
// (spec §4.2.1).
type ExistenceCheck struct{}

func (ExistenceCheck) Descriptor() Descriptor {
	return Descriptor{
		ID:                   "existence",
		Description:          "Flags packages or versions that do not exist in the registry.",
		Priority:             0,
		AlwaysEnabled:        true,
		RunsOnMissingPackage: true,
		RunsOnMissingVersion: true,
	}
}

func (ExistenceCheck) Run(_ context.Context, execCtx *CheckExecutionContext) ([]types.CheckFinding, error) {
	if execCtx.Package == nil {
		return []types.CheckFinding{{
			Severity: types.SeverityCritical,
			Reason:   fmt.Sprintf("%s does not exist (possible hallucination / slopsquatting)", execCtx.PackageName),
		}}, nil
	}
	if execCtx.ResolvedVersion == nil {
		return []types.CheckFinding{{
			Severity: types.SeverityCritical,
			Reason:   fmt.Sprintf("%s@%s does not exist (possible hallucinated version)", execCtx.PackageName, execCtx.RequestedVersion),
		}}, nil
	}
	return nil, nil
}
