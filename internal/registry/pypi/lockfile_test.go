package pypi

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writePyFile(t *testing.T, name, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func TestParseRequirementsFile_SupportsExactPinsAndSkipsNonDeps(t *testing.T) {
	path := writePyFile(t, "requirements.txt",
		"requests==2.31.0\nurllib3>=2.0\nrich[markdown]==13.7.1\n# comment\n-r other.txt\n")

	specs, err := Parser{}.ParseDependencies(path)
	require.NoError(t, err)
	require.Len(t, specs, 3)

	byName := make(map[string]*string)
	for _, s := range specs {
		byName[s.Name] = s.Version
	}
	require.NotNil(t, byName["requests"])
	assert.Equal(t, "2.31.0", *byName["requests"])
	require.NotNil(t, byName["rich"])
	assert.Equal(t, "13.7.1", *byName["rich"])
	assert.Nil(t, byName["urllib3"])
}

func TestParsePyprojectManifest_ReadsProjectAndPoetrySections(t *testing.T) {
	path := writePyFile(t, "pyproject.toml", `
[project]
dependencies = [
  "requests==2.31.0",
  "urllib3>=2.0"
]

[project.optional-dependencies]
dev = ["pytest==8.2.0", "ruff>=0.5.0"]

[tool.poetry.dependencies]
python = "^3.11"
httpx = "==0.27.0"
rich = { version = "=13.7.1" }
click = "^8.0"

[tool.poetry.group.docs.dependencies]
mkdocs = "1.6.0"
`)

	specs, err := Parser{}.ParseDependencies(path)
	require.NoError(t, err)

	byName := make(map[string]*string)
	for _, s := range specs {
		byName[s.Name] = s.Version
	}

	require.NotNil(t, byName["requests"])
	assert.Equal(t, "2.31.0", *byName["requests"])
	assert.Nil(t, byName["urllib3"])
	require.NotNil(t, byName["pytest"])
	assert.Equal(t, "8.2.0", *byName["pytest"])
	require.NotNil(t, byName["httpx"])
	assert.Equal(t, "0.27.0", *byName["httpx"])
	require.NotNil(t, byName["rich"])
	assert.Equal(t, "13.7.1", *byName["rich"])
	assert.Nil(t, byName["click"])
	require.NotNil(t, byName["mkdocs"])
	assert.Equal(t, "1.6.0", *byName["mkdocs"])
	_, hasPython := byName["python"]
	assert.False(t, hasPython)
}

func TestParsePythonRequirementLine_SupportsCommonForms(t *testing.T) {
	pinned, ok := parsePythonRequirementLine("requests==2.31.0")
	require.True(t, ok)
	assert.Equal(t, "requests", pinned.Name)
	require.NotNil(t, pinned.Version)
	assert.Equal(t, "2.31.0", *pinned.Version)

	dotted, ok := parsePythonRequirementLine("zope.interface==6.4.0")
	require.True(t, ok)
	assert.Equal(t, "zope-interface", dotted.Name)
	assert.Equal(t, "6.4.0", *dotted.Version)

	ranged, ok := parsePythonRequirementLine("urllib3>=2.0")
	require.True(t, ok)
	assert.Equal(t, "urllib3", ranged.Name)
	assert.Nil(t, ranged.Version)

	direct, ok := parsePythonRequirementLine("demo @ https://example.com/demo.whl")
	require.True(t, ok)
	assert.Equal(t, "demo", direct.Name)
	assert.Nil(t, direct.Version)

	_, ok = parsePythonRequirementLine("# comment")
	assert.False(t, ok)
	_, ok = parsePythonRequirementLine("-r other.txt")
	assert.False(t, ok)
}

func TestNormalizeVersionHelpers(t *testing.T) {
	v := normalizePythonExactVersion("2.31.0,>=2")
	require.NotNil(t, v)
	assert.Equal(t, "2.31.0", *v)
	assert.Nil(t, normalizePythonExactVersion("2.*"))

	v = normalizePoetryExactVersion("==1.2.3")
	require.NotNil(t, v)
	assert.Equal(t, "1.2.3", *v)
	v = normalizePoetryExactVersion("1.2.3")
	require.NotNil(t, v)
	assert.Equal(t, "1.2.3", *v)
	assert.Nil(t, normalizePoetryExactVersion("^1.2"))
	assert.Nil(t, normalizePoetryExactVersion("*"))
}

func TestUnsupportedFilenameRejected(t *testing.T) {
	path := writePyFile(t, "poetry.lock", "[]")
	_, err := Parser{}.ParseDependencies(path)
	assert.Error(t, err)
}
