package registryapi

import (
	"regexp"
	"strings"

	"github.com/safe-pkgs/safe-pkgs/internal/types"
)

// HasPathTraversal rejects names carrying directory-traversal
// characters, a rule every ecosystem's normalization must apply
// (spec §4.1.b).
func HasPathTraversal(name string) bool {
	return strings.Contains(name, "..") || strings.ContainsAny(name, "/\\")
}

// NormalizeNPMName preserves a single "@scope/name" shape and rejects
// path traversal. npm names are otherwise used verbatim (the registry
// itself is case-sensitive).
func NormalizeNPMName(name string) (string, bool) {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return "", false
	}
	if strings.Contains(trimmed, "..") || strings.Contains(trimmed, "\\") {
		return "", false
	}
	if strings.HasPrefix(trimmed, "@") {
		parts := strings.SplitN(trimmed[1:], "/", 2)
		if len(parts) != 2 || parts[0] == "" || parts[1] == "" || strings.Contains(parts[1], "/") {
			return "", false
		}
		return "@" + parts[0] + "/" + parts[1], true
	}
	if HasPathTraversal(trimmed) {
		return "", false
	}
	return trimmed, true
}

var pep503Runs = regexp.MustCompile(`[-_.]+`)
var pep503Charset = regexp.MustCompile(`^[A-Za-z0-9._-]+$`)

// NormalizePyPIName applies PEP 503 normalization: lowercase, collapse
// runs of -_. into a single "-". Names outside the PEP 503 charset
// (alphanumerics, '.', '_', '-') are rejected.
func NormalizePyPIName(name string) (string, bool) {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" || HasPathTraversal(trimmed) || !pep503Charset.MatchString(trimmed) {
		return "", false
	}
	lowered := strings.ToLower(trimmed)
	return pep503Runs.ReplaceAllString(lowered, "-"), true
}

var cargoNamePattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// NormalizeCargoName requires the Cargo crate-name charset.
func NormalizeCargoName(name string) (string, bool) {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" || HasPathTraversal(trimmed) || !cargoNamePattern.MatchString(trimmed) {
		return "", false
	}
	return trimmed, true
}

// IsExactVersion reports whether a manifest/lockfile version specifier
// is an exact pin rather than a range. Range/caret/tilde/wildcard
// specifiers all yield false, per spec §4.1.
func IsExactVersion(spec string) bool {
	trimmed := strings.TrimSpace(spec)
	if trimmed == "" {
		return false
	}
	for _, r := range []string{"^", "~", ">", "<", "=", "*", "x", "X", " "} {
		if strings.Contains(trimmed, r) {
			return false
		}
	}
	return true
}

// MergeDependencySpecDuplicates merges duplicate names so a pinned
// version wins over an unpinned one, preserving first-seen order.
func MergeDependencySpecDuplicates(specs []types.DependencySpec) []types.DependencySpec {
	byName := make(map[string]int, len(specs))
	var out []types.DependencySpec
	for _, s := range specs {
		if idx, ok := byName[s.Name]; ok {
			if out[idx].Version == nil && s.Version != nil {
				out[idx].Version = s.Version
			}
			continue
		}
		byName[s.Name] = len(out)
		out = append(out, s)
	}
	return out
}
