package auditlog

import (
	"bufio"
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/safe-pkgs/safe-pkgs/internal/types"
)

func TestLogger_AppendsOneLinePerRecord(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "audit.log")
	logger, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = logger.Close() })

	requested := "1.0.0"
	require.NoError(t, logger.Log(PackageDecision("check_package", "left-pad", &requested, "npm", true, types.SeverityLow, []string{"ok"}, nil, false)))
	require.NoError(t, logger.Log(PackageDecision("check_package", "left-pad", &requested, "npm", true, types.SeverityLow, []string{"ok"}, nil, true)))

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	scanner := bufio.NewScanner(bytes.NewReader(data))
	var lines []string
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	require.Len(t, lines, 2)

	var first Record
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &first))
	assert.Equal(t, "left-pad", first.Package)
	assert.False(t, first.Cached)

	var second Record
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &second))
	assert.True(t, second.Cached)
}
