package checks

import (
	"context"
	"fmt"
	"strings"

	"github.com/safe-pkgs/safe-pkgs/internal/types"
)

// installScriptSignatures are the lowercased substrings that mark an
// install hook as suspicious (spec §4.2.5).
var installScriptSignatures = []string{
	"curl ",
	"wget ",
	"http://",
	"https://",
	"invoke-webrequest",
	"powershell",
	"base64",
	"eval(",
	"bash -c",
	"sh -c",
	"certutil",
}

// InstallScriptCheck flags lifecycle scripts that download or execute
// remote content (spec §4.2.5).
type InstallScriptCheck struct{}

func (InstallScriptCheck) Descriptor() Descriptor {
	return Descriptor{
		ID:          "install_script",
		Description: "Flags install/lifecycle scripts that fetch or execute remote content.",
		Priority:    100,
	}
}

func (InstallScriptCheck) Run(_ context.Context, execCtx *CheckExecutionContext) ([]types.CheckFinding, error) {
	if execCtx.ResolvedVersion == nil {
		return nil, nil
	}

	for _, script := range execCtx.ResolvedVersion.InstallScripts {
		lowered := strings.ToLower(script)
		for _, signature := range installScriptSignatures {
			if strings.Contains(lowered, signature) {
				return []types.CheckFinding{{
					Severity: types.SeverityHigh,
					Reason: fmt.Sprintf("%s@%s has a suspicious install hook: %s",
						execCtx.PackageName, execCtx.ResolvedVersion.Version, script),
				}}, nil
			}
		}
	}
	return nil, nil
}
