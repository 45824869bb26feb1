package cargo

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeCargoFile(t *testing.T, name, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func TestParser_CargoLockIncludesOnlyCratesIOPackages(t *testing.T) {
	path := writeCargoFile(t, "Cargo.lock", `
version = 3

[[package]]
name = "serde"
version = "1.0.210"
source = "registry+https://github.com/rust-lang/crates.io-index"

[[package]]
name = "custom-registry-pkg"
version = "0.1.0"
source = "registry+https://custom.example/index"

[[package]]
name = "git-only"
version = "0.2.0"
source = "git+https://example.com/repo#deadbeef"

[[package]]
name = "local-workspace"
version = "0.1.0"
`)

	specs, err := Parser{}.ParseDependencies(path)
	require.NoError(t, err)
	require.Len(t, specs, 1)
	assert.Equal(t, "serde", specs[0].Name)
	require.NotNil(t, specs[0].Version)
	assert.Equal(t, "1.0.210", *specs[0].Version)
}

func TestParser_CargoManifestParsesSupportedSections(t *testing.T) {
	path := writeCargoFile(t, "Cargo.toml", `
[package]
name = "demo"
version = "0.1.0"

[dependencies]
serde = "1.0.210"
renamed = { package = "regex", version = "=1.10.6" }
local_dep = { path = "../local" }
git_dep = { git = "https://example.com/repo.git" }
workspace_dep = { workspace = true }
private_dep = { version = "1.0.0", registry = "private" }
cc = "^1.0"

[dev-dependencies]
tempfile = { version = "=3.12.0" }

[target.'cfg(unix)'.dependencies]
libc = "0.2.155"

[workspace.dependencies]
tracing = "0.1.40"
`)

	specs, err := Parser{}.ParseDependencies(path)
	require.NoError(t, err)

	byName := make(map[string]*string)
	for _, s := range specs {
		byName[s.Name] = s.Version
	}

	require.Contains(t, byName, "serde")
	assert.Equal(t, "1.0.210", *byName["serde"])
	require.Contains(t, byName, "regex")
	assert.Equal(t, "1.10.6", *byName["regex"])
	require.Contains(t, byName, "tempfile")
	assert.Equal(t, "3.12.0", *byName["tempfile"])
	require.Contains(t, byName, "libc")
	assert.Equal(t, "0.2.155", *byName["libc"])
	require.Contains(t, byName, "tracing")
	assert.Equal(t, "0.1.40", *byName["tracing"])

	assert.Nil(t, byName["cc"])
	assert.NotContains(t, byName, "local_dep")
	assert.NotContains(t, byName, "git_dep")
	assert.NotContains(t, byName, "workspace_dep")
	assert.NotContains(t, byName, "private_dep")
}

func TestNormalizeCargoManifestVersion_KeepsExactPinsOnly(t *testing.T) {
	v := normalizeCargoManifestVersion("=1.2.3")
	require.NotNil(t, v)
	assert.Equal(t, "1.2.3", *v)

	v = normalizeCargoManifestVersion("1.2.3")
	require.NotNil(t, v)
	assert.Equal(t, "1.2.3", *v)

	assert.Nil(t, normalizeCargoManifestVersion("^1.2"))
	assert.Nil(t, normalizeCargoManifestVersion("~1.2"))
	assert.Nil(t, normalizeCargoManifestVersion("*"))
}
