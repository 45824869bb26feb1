package registryapi

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/safe-pkgs/safe-pkgs/internal/types"
)

func TestNormalizeNPMName(t *testing.T) {
	name, ok := NormalizeNPMName("left-pad")
	assert.True(t, ok)
	assert.Equal(t, "left-pad", name)

	scoped, ok := NormalizeNPMName("@types/node")
	assert.True(t, ok)
	assert.Equal(t, "@types/node", scoped)

	_, ok = NormalizeNPMName("@types")
	assert.False(t, ok)
	_, ok = NormalizeNPMName("../../etc/passwd")
	assert.False(t, ok)
	_, ok = NormalizeNPMName("")
	assert.False(t, ok)
}

func TestNormalizePyPIName(t *testing.T) {
	name, ok := NormalizePyPIName("Zope.Interface")
	assert.True(t, ok)
	assert.Equal(t, "zope-interface", name)

	name, ok = NormalizePyPIName("Foo__Bar.-Baz")
	assert.True(t, ok)
	assert.Equal(t, "foo-bar-baz", name)

	_, ok = NormalizePyPIName("bad name!")
	assert.False(t, ok)
	_, ok = NormalizePyPIName("../escape")
	assert.False(t, ok)
}

func TestNormalizeCargoName(t *testing.T) {
	name, ok := NormalizeCargoName("serde_json")
	assert.True(t, ok)
	assert.Equal(t, "serde_json", name)

	_, ok = NormalizeCargoName("bad/name")
	assert.False(t, ok)
	_, ok = NormalizeCargoName("bad name")
	assert.False(t, ok)
}

func TestIsExactVersion(t *testing.T) {
	assert.True(t, IsExactVersion("1.2.3"))
	assert.False(t, IsExactVersion("^1.2.3"))
	assert.False(t, IsExactVersion("~1.2.3"))
	assert.False(t, IsExactVersion(">=1.2.3"))
	assert.False(t, IsExactVersion("1.2.*"))
	assert.False(t, IsExactVersion(""))
}

func TestMergeDependencySpecDuplicates_PinnedWinsOverUnpinned(t *testing.T) {
	pinned := "1.2.3"
	specs := []types.DependencySpec{
		{Name: "a", Version: nil},
		{Name: "b", Version: &pinned},
		{Name: "a", Version: &pinned},
	}

	merged := MergeDependencySpecDuplicates(specs)
	require := map[string]*string{}
	for _, s := range merged {
		require[s.Name] = s.Version
	}

	assert.Len(t, merged, 2)
	assert.Equal(t, "a", merged[0].Name)
	if assert.NotNil(t, require["a"]) {
		assert.Equal(t, pinned, *require["a"])
	}
}
