package registryapi

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/safe-pkgs/safe-pkgs/internal/types"
)

type fakeParser struct{ names []string }

func (p fakeParser) SupportedFilenames() []string { return p.names }
func (fakeParser) ParseDependencies(string) ([]types.DependencySpec, error) {
	return nil, nil
}

func TestResolveInput_RejectsMissingPath(t *testing.T) {
	_, err := ResolveInput(fakeParser{names: []string{"package.json"}}, filepath.Join(t.TempDir(), "missing.json"))
	assert.ErrorIs(t, err, ErrInputPathDoesNotExist)
}

func TestResolveInput_AcceptsSupportedFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "package.json")
	require.NoError(t, os.WriteFile(path, []byte("{}"), 0o644))

	resolved, err := ResolveInput(fakeParser{names: []string{"package.json"}}, path)
	require.NoError(t, err)
	assert.Equal(t, path, resolved)
}

func TestResolveInput_RejectsUnsupportedFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "unknown.txt")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))

	_, err := ResolveInput(fakeParser{names: []string{"package.json"}}, path)
	assert.ErrorIs(t, err, ErrUnsupportedFile)
}

func TestResolveInput_SearchesDirectoryForSupportedFile(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "Cargo.toml")
	require.NoError(t, os.WriteFile(target, []byte(""), 0o644))

	resolved, err := ResolveInput(fakeParser{names: []string{"Cargo.lock", "Cargo.toml"}}, dir)
	require.NoError(t, err)
	assert.Equal(t, target, resolved)
}

func TestResolveInput_DirectoryWithNoSupportedFile(t *testing.T) {
	dir := t.TempDir()
	_, err := ResolveInput(fakeParser{names: []string{"Cargo.toml"}}, dir)
	assert.ErrorIs(t, err, ErrNoSupportedDependencyFile)
}
