package registryapi

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/safe-pkgs/safe-pkgs/internal/types"
)

// LockfileParser resolves and parses one ecosystem's dependency files
// (spec §4.1).
type LockfileParser interface {
	// SupportedFilenames lists the filenames this parser recognizes,
	// in the order they should be searched for inside a directory.
	SupportedFilenames() []string

	// ParseDependencies reads path and yields deduplicated specs, pinned
	// versions winning over unpinned ones for the same name.
	ParseDependencies(path string) ([]types.DependencySpec, error)
}

// Lockfile resolution errors (spec §7).
var (
	ErrInputPathDoesNotExist     = errors.New("input path does not exist")
	ErrInvalidInputPath          = errors.New("invalid input path")
	ErrUnsupportedFile           = errors.New("unsupported dependency file")
	ErrNoSupportedDependencyFile = errors.New("no supported dependency file found")
)

// ResolveInput implements spec §4.1's resolve_input: a file path must
// name one of parser's supported filenames; a directory (or the
// current directory, when path is empty) is searched for the first
// supported filename present.
func ResolveInput(parser LockfileParser, path string) (string, error) {
	if path == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return "", fmt.Errorf("resolve current directory: %w", err)
		}
		path = cwd
	}

	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("%w: %s", ErrInputPathDoesNotExist, path)
		}
		return "", fmt.Errorf("%w: %s: %v", ErrInvalidInputPath, path, err)
	}

	if info.Mode().IsRegular() {
		name := filepath.Base(path)
		for _, supported := range parser.SupportedFilenames() {
			if name == supported {
				return path, nil
			}
		}
		return "", fmt.Errorf("%w: %s", ErrUnsupportedFile, name)
	}

	if !info.IsDir() {
		return "", fmt.Errorf("%w: %s", ErrInvalidInputPath, path)
	}

	for _, name := range parser.SupportedFilenames() {
		candidate := filepath.Join(path, name)
		if fi, err := os.Stat(candidate); err == nil && fi.Mode().IsRegular() {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("%w: in %s", ErrNoSupportedDependencyFile, path)
}
