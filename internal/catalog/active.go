package catalog

import (
	"sort"

	"github.com/safe-pkgs/safe-pkgs/internal/checks"
)

// ActiveChecks implements spec §4.3.6: a check is active iff it is
// registered, it is supported by the registry, it is either
// always_enabled or not disabled by the global/per-registry disable
// lists, and its runs_on_missing_* descriptor matches state. The
// result is sorted by priority ascending.
func (c *Catalog) ActiveChecks(registryKey string, globalDisable, registryDisable []string, state checks.LookupState) []checks.Check {
	disabled := make(map[string]bool, len(globalDisable)+len(registryDisable))
	for _, id := range globalDisable {
		disabled[id] = true
	}
	for _, id := range registryDisable {
		disabled[id] = true
	}

	var active []checks.Check
	for _, check := range c.checks {
		descriptor := check.Descriptor()
		if !c.SupportsCheck(registryKey, descriptor.ID) {
			continue
		}
		if !descriptor.AlwaysEnabled && disabled[descriptor.ID] {
			continue
		}
		if !stateMatches(descriptor, state) {
			continue
		}
		active = append(active, check)
	}

	sort.SliceStable(active, func(i, j int) bool {
		return active[i].Descriptor().Priority < active[j].Descriptor().Priority
	})
	return active
}

func stateMatches(descriptor checks.Descriptor, state checks.LookupState) bool {
	switch state {
	case checks.LookupMissingPackage:
		return descriptor.RunsOnMissingPackage
	case checks.LookupMissingVersion:
		return descriptor.RunsOnMissingVersion
	default:
		return true
	}
}
