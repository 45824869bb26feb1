package checks

// All returns a fresh instance of every registered check, in no
// particular order — the catalog sorts active checks by priority at
// evaluation time.
func All() []Check {
	return []Check{
		ExistenceCheck{},
		VersionAgeCheck{},
		StalenessCheck{},
		PopularityCheck{},
		InstallScriptCheck{},
		TyposquatCheck{},
		AdvisoryCheck{},
	}
}

// NeedsWeeklyDownloads reports whether any check in the set requires
// weekly-download data, the same aggregate computed per-evaluation in
// the pipeline (spec §4.3.7) and once per audit by the lockfile
// auditor before it decides whether to bulk-prefetch.
func NeedsWeeklyDownloads(active []Check) bool {
	for _, c := range active {
		if c.Descriptor().NeedsWeeklyDownloads {
			return true
		}
	}
	return false
}
