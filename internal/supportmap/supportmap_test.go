package supportmap

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/safe-pkgs/safe-pkgs/internal/catalog"
	"github.com/safe-pkgs/safe-pkgs/internal/checks"
)

func TestRender_PlainOutputListsEveryRegistryAndCheck(t *testing.T) {
	rows := []catalog.SupportRow{
		{Registry: "npm", CheckID: "install_script", Supported: true},
		{Registry: "npm", CheckID: "popularity", Supported: true},
		{Registry: "cargo", CheckID: "install_script", Supported: false},
		{Registry: "cargo", CheckID: "popularity", Supported: true},
	}
	descriptors := []checks.Descriptor{
		{ID: "install_script", Description: "flags risky install-time hooks", NeedsWeeklyDownloads: false},
		{ID: "popularity", Description: "flags unpopular packages", NeedsWeeklyDownloads: true},
	}

	var buf bytes.Buffer
	Render(&buf, rows, descriptors, []string{"npm", "cargo"}, false)
	out := buf.String()

	assert.Contains(t, out, "Registry Coverage")
	assert.Contains(t, out, "npm")
	assert.Contains(t, out, "cargo")
	assert.Contains(t, out, "yes")
	assert.Contains(t, out, "no")
	assert.Contains(t, out, "unsupported: install_script")
	assert.NotContains(t, out, "\033[")
}

func TestRender_ColorOutputAddsAnsiCodes(t *testing.T) {
	rows := []catalog.SupportRow{{Registry: "npm", CheckID: "existence", Supported: true}}
	descriptors := []checks.Descriptor{{ID: "existence", Description: "checks existence"}}

	var buf bytes.Buffer
	Render(&buf, rows, descriptors, []string{"npm"}, true)
	assert.Contains(t, buf.String(), "\033[")
}

func TestRender_NoRegistriesPrintsPlaceholder(t *testing.T) {
	var buf bytes.Buffer
	Render(&buf, nil, nil, nil, false)
	assert.Contains(t, buf.String(), "no registries configured")
}
