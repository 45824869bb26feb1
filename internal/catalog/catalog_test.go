package catalog

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/safe-pkgs/safe-pkgs/internal/checks"
	"github.com/safe-pkgs/safe-pkgs/internal/registryapi"
	"github.com/safe-pkgs/safe-pkgs/internal/types"
)

type fakePlugin struct {
	ecosystem string
	lockfile  registryapi.LockfileParser
}

func (p *fakePlugin) Ecosystem() string { return p.ecosystem }
func (p *fakePlugin) FetchPackage(context.Context, string) (*types.PackageRecord, error) {
	return nil, nil
}
func (p *fakePlugin) FetchWeeklyDownloads(context.Context, string) (*uint64, error) { return nil, nil }
func (p *fakePlugin) FetchPopularNames(context.Context, int) ([]string, error)      { return nil, nil }
func (p *fakePlugin) FetchAdvisories(context.Context, string, string) ([]types.PackageAdvisory, error) {
	return nil, nil
}
func (p *fakePlugin) PrefetchWeeklyDownloads(context.Context, []string) error { return nil }
func (p *fakePlugin) LockfileParser() registryapi.LockfileParser             { return p.lockfile }

type fakeLockfileParser struct{}

func (fakeLockfileParser) SupportedFilenames() []string { return []string{"fake.lock"} }
func (fakeLockfileParser) ParseDependencies(string) ([]types.DependencySpec, error) {
	return nil, nil
}

func TestCatalog_PluginLookup(t *testing.T) {
	npm := &fakePlugin{ecosystem: "npm", lockfile: fakeLockfileParser{}}
	pypi := &fakePlugin{ecosystem: "PyPI"}

	cat := New([]Definition{
		{Key: "npm", Plugin: npm, Policy: AllChecks()},
		{Key: "pypi", Plugin: pypi, Policy: AllExcept("install_script")},
	}, checks.All())

	assert.Equal(t, []string{"npm", "pypi"}, cat.RegisteredKeys())

	plugin, ok := cat.PackagePlugin("npm")
	assert.True(t, ok)
	assert.Same(t, npm, plugin)

	_, ok = cat.LockfilePlugin("pypi")
	assert.False(t, ok)

	lockfilePlugin, ok := cat.LockfilePlugin("npm")
	assert.True(t, ok)
	assert.Same(t, npm, lockfilePlugin)

	key, ok := cat.FirstLockfileKey()
	assert.True(t, ok)
	assert.Equal(t, "npm", key)
}

func TestCatalog_SupportsCheckRespectsExclusions(t *testing.T) {
	cat := New([]Definition{
		{Key: "pypi", Plugin: &fakePlugin{ecosystem: "PyPI"}, Policy: AllExcept("install_script")},
	}, checks.All())

	assert.False(t, cat.SupportsCheck("pypi", "install_script"))
	assert.True(t, cat.SupportsCheck("pypi", "existence"))
	assert.False(t, cat.SupportsCheck("unknown", "existence"))
}

func TestCatalog_ActiveChecksFiltersDisabledAndUnsupported(t *testing.T) {
	cat := New([]Definition{
		{Key: "pypi", Plugin: &fakePlugin{ecosystem: "PyPI"}, Policy: AllExcept("install_script")},
	}, checks.All())

	active := cat.ActiveChecks("pypi", []string{"typosquat"}, nil, checks.LookupReady)

	ids := make(map[string]bool)
	for _, c := range active {
		ids[c.Descriptor().ID] = true
	}
	assert.True(t, ids["existence"])
	assert.False(t, ids["install_script"], "excluded by registry policy")
	assert.False(t, ids["typosquat"], "disabled globally")
}

func TestCatalog_ActiveChecksAlwaysEnabledIgnoresDisable(t *testing.T) {
	cat := New([]Definition{
		{Key: "npm", Plugin: &fakePlugin{ecosystem: "npm"}, Policy: AllChecks()},
	}, checks.All())

	active := cat.ActiveChecks("npm", []string{"existence"}, nil, checks.LookupMissingPackage)
	assert.Len(t, active, 1)
	assert.Equal(t, "existence", active[0].Descriptor().ID)
}

func TestCatalog_CheckSupportRows(t *testing.T) {
	cat := New([]Definition{
		{Key: "npm", Plugin: &fakePlugin{ecosystem: "npm"}, Policy: AllChecks()},
	}, checks.All())

	rows := cat.CheckSupportRows()
	assert.Len(t, rows, len(checks.All()))
	for _, row := range rows {
		assert.Equal(t, "npm", row.Registry)
		assert.True(t, row.Supported)
	}
}
