package cargo

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"

	"github.com/safe-pkgs/safe-pkgs/internal/registryapi"
	"github.com/safe-pkgs/safe-pkgs/internal/types"
)

// Parser reads Cargo.lock (crates.io-sourced packages only) or, when
// no lock is present, Cargo.toml's dependency tables.
type Parser struct{}

func (Parser) SupportedFilenames() []string {
	return []string{"Cargo.lock", "Cargo.toml"}
}

func (Parser) ParseDependencies(path string) ([]types.DependencySpec, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	var root map[string]any
	if err := toml.Unmarshal(raw, &root); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	var specs []types.DependencySpec
	if filepath.Base(path) == "Cargo.lock" {
		specs = parseCargoLock(root)
	} else {
		specs = parseCargoManifest(root)
	}
	return registryapi.MergeDependencySpecDuplicates(specs), nil
}

func parseCargoLock(root map[string]any) []types.DependencySpec {
	packages, _ := root["package"].([]any)

	var specs []types.DependencySpec
	for _, item := range packages {
		table, ok := item.(map[string]any)
		if !ok {
			continue
		}
		rawName, _ := table["name"].(string)
		name, ok := registryapi.NormalizeCargoName(rawName)
		if !ok {
			continue
		}
		source, _ := table["source"].(string)
		if !isCratesIOSource(source) {
			continue
		}

		spec := types.DependencySpec{Name: name}
		if rawVersion, ok := table["version"].(string); ok {
			if version, ok := normalizeCargoExactVersion(rawVersion); ok {
				spec.Version = &version
			}
		}
		specs = append(specs, spec)
	}
	return specs
}

func parseCargoManifest(root map[string]any) []types.DependencySpec {
	var specs []types.DependencySpec

	specs = append(specs, parseDependencySection(root["dependencies"])...)
	specs = append(specs, parseDependencySection(root["dev-dependencies"])...)
	specs = append(specs, parseDependencySection(root["build-dependencies"])...)

	if workspace, ok := asTable(root["workspace"]); ok {
		specs = append(specs, parseDependencySection(workspace["dependencies"])...)
	}

	if targets, ok := asTable(root["target"]); ok {
		for _, targetValue := range targets {
			target, ok := asTable(targetValue)
			if !ok {
				continue
			}
			specs = append(specs, parseDependencySection(target["dependencies"])...)
			specs = append(specs, parseDependencySection(target["dev-dependencies"])...)
			specs = append(specs, parseDependencySection(target["build-dependencies"])...)
		}
	}

	return specs
}

func parseDependencySection(section any) []types.DependencySpec {
	table, ok := asTable(section)
	if !ok {
		return nil
	}

	var specs []types.DependencySpec
	for declaredName, value := range table {
		spec, ok := parseManifestDependency(declaredName, value)
		if ok {
			specs = append(specs, spec)
		}
	}
	return specs
}

func parseManifestDependency(declaredName string, value any) (types.DependencySpec, bool) {
	switch v := value.(type) {
	case string:
		name, ok := registryapi.NormalizeCargoName(declaredName)
		if !ok {
			return types.DependencySpec{}, false
		}
		return types.DependencySpec{Name: name, Version: normalizeCargoManifestVersion(v)}, true
	case map[string]any:
		if !manifestDependencyIsSupportedRegistry(v) {
			return types.DependencySpec{}, false
		}
		candidateName := declaredName
		if pkg, ok := v["package"].(string); ok {
			candidateName = pkg
		}
		name, ok := registryapi.NormalizeCargoName(candidateName)
		if !ok {
			return types.DependencySpec{}, false
		}
		var version *string
		if raw, ok := v["version"].(string); ok {
			version = normalizeCargoManifestVersion(raw)
		}
		return types.DependencySpec{Name: name, Version: version}, true
	default:
		return types.DependencySpec{}, false
	}
}

// manifestDependencyIsSupportedRegistry rejects path/git dependencies,
// workspace-inherited dependencies, and dependencies pinned to a
// registry other than crates.io.
func manifestDependencyIsSupportedRegistry(entries map[string]any) bool {
	if _, ok := entries["path"]; ok {
		return false
	}
	if _, ok := entries["git"]; ok {
		return false
	}
	if inherited, ok := entries["workspace"].(bool); ok && inherited {
		return false
	}
	if registry, ok := entries["registry"].(string); ok {
		return strings.EqualFold(registry, "crates-io")
	}
	return true
}

func normalizeCargoExactVersion(raw string) (string, bool) {
	candidate := strings.TrimSpace(raw)
	if candidate == "" || strings.Contains(candidate, " ") {
		return "", false
	}
	return candidate, true
}

// normalizeCargoManifestVersion keeps only exact pins: an optional
// leading "=" is stripped, then any range/caret/tilde/wildcard
// character rejects the value entirely.
func normalizeCargoManifestVersion(raw string) *string {
	candidate := strings.TrimSpace(raw)
	if candidate == "" || candidate == "*" {
		return nil
	}
	exact := strings.TrimSpace(strings.TrimPrefix(candidate, "="))
	if exact == "" {
		return nil
	}
	for _, ch := range []string{"*", " ", "^", "~", "<", ">", ",", "|"} {
		if strings.Contains(exact, ch) {
			return nil
		}
	}
	return &exact
}

func isCratesIOSource(raw string) bool {
	value := strings.TrimSpace(raw)
	if value == "" {
		return false
	}
	return strings.HasPrefix(value, "registry+") &&
		(strings.Contains(value, "crates.io") || strings.Contains(value, "index.crates.io"))
}

func asTable(value any) (map[string]any, bool) {
	table, ok := value.(map[string]any)
	return table, ok
}
