package npm

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/safe-pkgs/safe-pkgs/internal/registryapi"
	"github.com/safe-pkgs/safe-pkgs/internal/types"
)

// Parser reads npm's package-lock.json (preferred, lockfileVersion 2/3
// "packages" shape plus the legacy "dependencies" shape) or, when no
// lock is present, falls back to package.json's declared ranges —
// those yield DependencySpecs with Version == nil.
type Parser struct{}

func (Parser) SupportedFilenames() []string {
	return []string{"package-lock.json", "package.json"}
}

type lockfileDocument struct {
	Packages     map[string]lockPackageEntry    `json:"packages"`
	Dependencies map[string]lockDependencyEntry `json:"dependencies"`
}

type lockPackageEntry struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

type lockDependencyEntry struct {
	Version string `json:"version"`
}

type manifestDocument struct {
	Dependencies    map[string]string `json:"dependencies"`
	DevDependencies map[string]string `json:"devDependencies"`
}

func (Parser) ParseDependencies(path string) ([]types.DependencySpec, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	var specs []types.DependencySpec
	if filepath.Base(path) == "package-lock.json" {
		var doc lockfileDocument
		if err := json.Unmarshal(raw, &doc); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
		for pkgPath, entry := range doc.Packages {
			if pkgPath == "" || entry.Version == "" {
				continue
			}
			name := entry.Name
			if name == "" {
				name = nameFromPackagePath(pkgPath)
			}
			if spec, ok := exactSpec(name, entry.Version); ok {
				specs = append(specs, spec)
			}
		}
		for name, entry := range doc.Dependencies {
			if entry.Version == "" {
				continue
			}
			if spec, ok := exactSpec(name, entry.Version); ok {
				specs = append(specs, spec)
			}
		}
	} else {
		var doc manifestDocument
		if err := json.Unmarshal(raw, &doc); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
		specs = append(specs, manifestSpecs(doc.Dependencies)...)
		specs = append(specs, manifestSpecs(doc.DevDependencies)...)
	}

	return registryapi.MergeDependencySpecDuplicates(specs), nil
}

func exactSpec(name, version string) (types.DependencySpec, bool) {
	normalized, ok := registryapi.NormalizeNPMName(name)
	if !ok {
		return types.DependencySpec{}, false
	}
	v := version
	return types.DependencySpec{Name: normalized, Version: &v}, true
}

func manifestSpecs(deps map[string]string) []types.DependencySpec {
	var out []types.DependencySpec
	for name, rangeSpec := range deps {
		normalized, ok := registryapi.NormalizeNPMName(name)
		if !ok {
			continue
		}
		spec := types.DependencySpec{Name: normalized}
		if registryapi.IsExactVersion(rangeSpec) {
			v := rangeSpec
			spec.Version = &v
		}
		out = append(out, spec)
	}
	return out
}

// nameFromPackagePath recovers a package name from a package-lock.json
// "packages" key, which is a node_modules path (possibly nested for
// transitive deps, possibly scoped).
func nameFromPackagePath(pkgPath string) string {
	rest := pkgPath
	if idx := strings.LastIndex(pkgPath, "node_modules/"); idx != -1 {
		rest = pkgPath[idx+len("node_modules/"):]
	}
	segments := strings.Split(rest, "/")
	if len(segments) == 0 {
		return rest
	}
	if strings.HasPrefix(segments[0], "@") && len(segments) > 1 {
		return segments[0] + "/" + segments[1]
	}
	return segments[0]
}
