package pypi

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"

	"github.com/safe-pkgs/safe-pkgs/internal/registryapi"
	"github.com/safe-pkgs/safe-pkgs/internal/types"
)

// Parser reads requirements.txt (PEP 508 requirement lines) or
// pyproject.toml's PEP 621 "project" table plus Poetry's
// "tool.poetry" tables.
type Parser struct{}

func (Parser) SupportedFilenames() []string {
	return []string{"requirements.txt", "pyproject.toml"}
}

func (Parser) ParseDependencies(path string) ([]types.DependencySpec, error) {
	switch filepath.Base(path) {
	case "requirements.txt":
		return parseRequirementsFile(path)
	case "pyproject.toml":
		return parsePyprojectManifest(path)
	default:
		return nil, fmt.Errorf("unsupported dependency file: %s", filepath.Base(path))
	}
}

func parseRequirementsFile(path string) ([]types.DependencySpec, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	defer f.Close()

	var specs []types.DependencySpec
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		if spec, ok := parsePythonRequirementLine(scanner.Text()); ok {
			specs = append(specs, spec)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	return registryapi.MergeDependencySpecDuplicates(specs), nil
}

func parsePyprojectManifest(path string) ([]types.DependencySpec, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	var root map[string]any
	if err := toml.Unmarshal(raw, &root); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	var specs []types.DependencySpec

	if project, ok := asTable(root["project"]); ok {
		if deps, ok := project["dependencies"].([]any); ok {
			for _, item := range deps {
				if raw, ok := item.(string); ok {
					if spec, ok := parsePythonRequirementLine(raw); ok {
						specs = append(specs, spec)
					}
				}
			}
		}
		if optional, ok := asTable(project["optional-dependencies"]); ok {
			for _, groupValue := range optional {
				items, ok := groupValue.([]any)
				if !ok {
					continue
				}
				for _, item := range items {
					if raw, ok := item.(string); ok {
						if spec, ok := parsePythonRequirementLine(raw); ok {
							specs = append(specs, spec)
						}
					}
				}
			}
		}
	}

	if tool, ok := asTable(root["tool"]); ok {
		if poetry, ok := asTable(tool["poetry"]); ok {
			if deps, ok := asTable(poetry["dependencies"]); ok {
				specs = append(specs, parsePoetryDependenciesTable(deps)...)
			}
			if groups, ok := asTable(poetry["group"]); ok {
				for _, groupValue := range groups {
					group, ok := asTable(groupValue)
					if !ok {
						continue
					}
					if deps, ok := asTable(group["dependencies"]); ok {
						specs = append(specs, parsePoetryDependenciesTable(deps)...)
					}
				}
			}
		}
	}

	return registryapi.MergeDependencySpecDuplicates(specs), nil
}

func parsePoetryDependenciesTable(table map[string]any) []types.DependencySpec {
	var specs []types.DependencySpec
	for name, value := range table {
		if strings.EqualFold(name, "python") {
			continue
		}
		normalized, ok := registryapi.NormalizePyPIName(stripExtras(name))
		if !ok {
			continue
		}

		var version *string
		switch v := value.(type) {
		case string:
			version = normalizePoetryExactVersion(v)
		case map[string]any:
			if raw, ok := v["version"].(string); ok {
				version = normalizePoetryExactVersion(raw)
			}
		}

		specs = append(specs, types.DependencySpec{Name: normalized, Version: version})
	}
	return specs
}

var requirementOperators = []string{"===", "==", "~=", ">=", "<=", "!=", "<", ">"}

// parsePythonRequirementLine parses one PEP 508 requirement line:
// strips comments and environment markers, recognizes direct URL
// references ("name @ url") and every comparison operator, and keeps
// an exact version only for "==" / "===".
func parsePythonRequirementLine(line string) (types.DependencySpec, bool) {
	candidate := strings.TrimSpace(line)
	if candidate == "" || strings.HasPrefix(candidate, "#") {
		return types.DependencySpec{}, false
	}

	if before, _, ok := strings.Cut(candidate, ";"); ok {
		candidate = strings.TrimSpace(before)
	}
	if idx := strings.Index(candidate, "#"); idx >= 0 {
		candidate = strings.TrimSpace(candidate[:idx])
	}

	if candidate == "" || strings.HasPrefix(candidate, "-") {
		return types.DependencySpec{}, false
	}

	if namePart, _, ok := strings.Cut(candidate, " @ "); ok {
		name, ok := registryapi.NormalizePyPIName(stripExtras(namePart))
		if !ok {
			return types.DependencySpec{}, false
		}
		return types.DependencySpec{Name: name}, true
	}

	for _, op := range requirementOperators {
		if idx := strings.Index(candidate, op); idx >= 0 {
			name, ok := registryapi.NormalizePyPIName(stripExtras(strings.TrimSpace(candidate[:idx])))
			if !ok {
				return types.DependencySpec{}, false
			}
			spec := types.DependencySpec{Name: name}
			if op == "==" || op == "===" {
				if version := normalizePythonExactVersion(candidate[idx+len(op):]); version != nil {
					spec.Version = version
				}
			}
			return spec, true
		}
	}

	name, ok := registryapi.NormalizePyPIName(stripExtras(candidate))
	if !ok {
		return types.DependencySpec{}, false
	}
	return types.DependencySpec{Name: name}, true
}

// stripExtras drops a trailing "[extra1,extra2]" qualifier.
func stripExtras(raw string) string {
	if idx := strings.Index(raw, "["); idx >= 0 {
		return strings.TrimSpace(raw[:idx])
	}
	return strings.TrimSpace(raw)
}

func normalizePythonExactVersion(raw string) *string {
	candidate := strings.TrimSpace(raw)
	if idx := strings.Index(candidate, ","); idx >= 0 {
		candidate = candidate[:idx]
	}
	candidate = strings.TrimSpace(candidate)
	if candidate == "" {
		return nil
	}
	for _, ch := range []string{"*", " ", ";", "<", ">", "~", "!", "^"} {
		if strings.Contains(candidate, ch) {
			return nil
		}
	}
	return &candidate
}

func normalizePoetryExactVersion(raw string) *string {
	candidate := strings.TrimSpace(raw)
	if candidate == "" || candidate == "*" {
		return nil
	}
	if rest, ok := strings.CutPrefix(candidate, "=="); ok {
		return normalizePythonExactVersion(rest)
	}
	if rest, ok := strings.CutPrefix(candidate, "="); ok {
		return normalizePythonExactVersion(rest)
	}
	for _, ch := range []string{",", "|", "<", ">", "~", "!", "^", "*"} {
		if strings.Contains(candidate, ch) {
			return nil
		}
	}
	return &candidate
}

func asTable(value any) (map[string]any, bool) {
	table, ok := value.(map[string]any)
	return table, ok
}
