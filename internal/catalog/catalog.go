// Package catalog wires the fixed set of registry plugins and checks
// together and answers "does registry R support check C" (spec §4.7).
package catalog

import (
	"sort"

	"github.com/safe-pkgs/safe-pkgs/internal/checks"
	"github.com/safe-pkgs/safe-pkgs/internal/registryapi"
)

// SupportPolicy describes which checks a registry supports: either
// every registered check, or every registered check except a named
// exclusion list (e.g. install_script is meaningless for a registry
// with no lifecycle hooks).
type SupportPolicy struct {
	Except map[string]bool
	All    bool
}

// AllChecks is the policy every registry starts from before any
// exclusions are layered on.
func AllChecks() SupportPolicy {
	return SupportPolicy{All: true}
}

// AllExcept builds a policy that supports every registered check
// except the named ids.
func AllExcept(ids ...string) SupportPolicy {
	except := make(map[string]bool, len(ids))
	for _, id := range ids {
		except[id] = true
	}
	return SupportPolicy{Except: except}
}

// Supports reports whether the policy admits the given check id.
func (p SupportPolicy) Supports(checkID string) bool {
	return !p.Except[checkID]
}

// entry pairs a registry's plugin with its support policy.
type entry struct {
	plugin registryapi.Plugin
	policy SupportPolicy
}

// Catalog is the fixed, startup-built set of registry plugins. It is
// never mutated after New returns.
type Catalog struct {
	entries map[string]entry
	keys    []string
	checks  []checks.Check
}

// Definition binds one registry key to its plugin and support policy.
type Definition struct {
	Key    string
	Plugin registryapi.Plugin
	Policy SupportPolicy
}

// New builds the catalog from a fixed list of definitions and the
// full set of registered checks. Definitions are kept in the order
// given; RegisteredKeys() returns that same order.
func New(definitions []Definition, allChecks []checks.Check) *Catalog {
	c := &Catalog{
		entries: make(map[string]entry, len(definitions)),
		checks:  allChecks,
	}
	for _, d := range definitions {
		c.entries[d.Key] = entry{plugin: d.Plugin, policy: d.Policy}
		c.keys = append(c.keys, d.Key)
	}
	return c
}

// RegisteredKeys returns the registry keys in declaration order.
func (c *Catalog) RegisteredKeys() []string {
	return append([]string(nil), c.keys...)
}

// PackagePlugin returns the plugin registered under key, or false if
// no such registry exists.
func (c *Catalog) PackagePlugin(key string) (registryapi.Plugin, bool) {
	e, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	return e.plugin, true
}

// LockfilePlugin returns the plugin registered under key, requiring it
// to also expose a non-nil lockfile parser.
func (c *Catalog) LockfilePlugin(key string) (registryapi.Plugin, bool) {
	plugin, ok := c.PackagePlugin(key)
	if !ok || plugin.LockfileParser() == nil {
		return nil, false
	}
	return plugin, true
}

// FirstPackageKey returns the first registered registry key, used as
// the check_package default (spec §6).
func (c *Catalog) FirstPackageKey() (string, bool) {
	if len(c.keys) == 0 {
		return "", false
	}
	return c.keys[0], true
}

// FirstLockfileKey returns the first registered registry key whose
// plugin has a lockfile parser.
func (c *Catalog) FirstLockfileKey() (string, bool) {
	for _, key := range c.keys {
		if _, ok := c.LockfilePlugin(key); ok {
			return key, true
		}
	}
	return "", false
}

// Checks returns every registered check.
func (c *Catalog) Checks() []checks.Check {
	return c.checks
}

// SupportsCheck reports whether registry key supports the given check
// id. Unknown registries support nothing.
func (c *Catalog) SupportsCheck(key, checkID string) bool {
	e, ok := c.entries[key]
	if !ok {
		return false
	}
	return e.policy.Supports(checkID)
}

// SupportRow is one (registry, check, supported) triple surfaced by
// the support-map CLI command.
type SupportRow struct {
	Registry  string
	CheckID   string
	Supported bool
}

// CheckSupportRows builds the full registry x check matrix, registries
// in declaration order and checks sorted by id within each registry.
func (c *Catalog) CheckSupportRows() []SupportRow {
	sortedChecks := append([]checks.Check(nil), c.checks...)
	sort.Slice(sortedChecks, func(i, j int) bool {
		return sortedChecks[i].Descriptor().ID < sortedChecks[j].Descriptor().ID
	})

	var rows []SupportRow
	for _, key := range c.keys {
		for _, check := range sortedChecks {
			id := check.Descriptor().ID
			rows = append(rows, SupportRow{Registry: key, CheckID: id, Supported: c.SupportsCheck(key, id)})
		}
	}
	return rows
}
