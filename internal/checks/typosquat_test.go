package checks

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/safe-pkgs/safe-pkgs/internal/types"
)

func fakePopularNames(names ...string) FetchPopularNames {
	return func(ctx context.Context, limit int) ([]string, error) {
		if limit < len(names) {
			return names[:limit], nil
		}
		return names, nil
	}
}

func TestTyposquatCheck_LowDownloadCloseNameIsFlagged(t *testing.T) {
	downloads := uint64(10)
	findings, err := TyposquatCheck{}.Run(context.Background(), &CheckExecutionContext{
		PackageName:       "raect",
		WeeklyDownloads:   &downloads,
		FetchPopularNames: fakePopularNames("react", "lodash"),
	})
	assert.NoError(t, err)
	assert.Len(t, findings, 1)
	assert.Equal(t, types.SeverityHigh, findings[0].Severity)
	assert.Contains(t, findings[0].Reason, "react")
}

func TestTyposquatCheck_HighDownloadPackageIsNotFlagged(t *testing.T) {
	downloads := uint64(1000)
	findings, err := TyposquatCheck{}.Run(context.Background(), &CheckExecutionContext{
		PackageName:       "raect",
		WeeklyDownloads:   &downloads,
		FetchPopularNames: fakePopularNames("react", "lodash"),
	})
	assert.NoError(t, err)
	assert.Empty(t, findings)
}

func TestTyposquatCheck_ExactMatchIsNotFlagged(t *testing.T) {
	downloads := uint64(10)
	findings, err := TyposquatCheck{}.Run(context.Background(), &CheckExecutionContext{
		PackageName:       "react",
		WeeklyDownloads:   &downloads,
		FetchPopularNames: fakePopularNames("react", "lodash"),
	})
	assert.NoError(t, err)
	assert.Empty(t, findings)
}

func TestBoundedLevenshtein_RespectsLimit(t *testing.T) {
	distance, ok := boundedLevenshtein("react", "raect", 2)
	assert.True(t, ok)
	assert.Equal(t, 2, distance)

	_, ok = boundedLevenshtein("react", "qwerty", 2)
	assert.False(t, ok)
}

func TestTyposquatCheck_TieKeepsFirstSeen(t *testing.T) {
	downloads := uint64(10)
	findings, err := TyposquatCheck{}.Run(context.Background(), &CheckExecutionContext{
		PackageName:       "reacn",
		WeeklyDownloads:   &downloads,
		FetchPopularNames: fakePopularNames("react", "reack"),
	})
	assert.NoError(t, err)
	assert.Len(t, findings, 1)
	assert.Contains(t, findings[0].Reason, "react")
}
