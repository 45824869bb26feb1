package checks

import (
	"context"
	"fmt"

	"github.com/safe-pkgs/safe-pkgs/internal/types"
)

const (
	popularSampleSize           = 5000
	obscureWeeklyDownloadsFloor = 50
	typoDistanceLimit           = 2
)

// TyposquatCheck flags low-adoption names that sit within a couple of
// edits of a popular package name (spec §4.2.6).
type TyposquatCheck struct{}

func (TyposquatCheck) Descriptor() Descriptor {
	return Descriptor{
		ID:                   "typosquat",
		Description:          "Flags low-adoption package names that are close to popular package names.",
		Priority:             100,
		NeedsWeeklyDownloads: true,
	}
}

func (TyposquatCheck) Run(ctx context.Context, execCtx *CheckExecutionContext) ([]types.CheckFinding, error) {
	var downloads uint64
	if execCtx.WeeklyDownloads != nil {
		downloads = *execCtx.WeeklyDownloads
	}
	if downloads >= obscureWeeklyDownloadsFloor {
		return nil, nil
	}
	if execCtx.FetchPopularNames == nil {
		return nil, nil
	}

	popular, err := execCtx.FetchPopularNames(ctx, popularSampleSize)
	if err != nil {
		return nil, err
	}

	for _, candidate := range popular {
		if candidate == execCtx.PackageName {
			return nil, nil
		}
	}

	var closestCandidate string
	closestDistance := -1
	for _, candidate := range popular {
		distance, ok := boundedLevenshtein(execCtx.PackageName, candidate, typoDistanceLimit)
		if !ok || distance == 0 {
			continue
		}
		if closestDistance == -1 || distance < closestDistance {
			closestDistance = distance
			closestCandidate = candidate
		}
	}

	if closestDistance == -1 {
		return nil, nil
	}

	return []types.CheckFinding{{
		Severity: types.SeverityHigh,
		Reason: fmt.Sprintf("%s is %d edit(s) away from popular package %s and has low adoption (%d weekly downloads)",
			execCtx.PackageName, closestDistance, closestCandidate, downloads),
	}}, nil
}

// boundedLevenshtein computes the edit distance between a and b,
// bailing out early once it provably exceeds maxDistance. Uses the
// standard two-rolling-row DP; the early row-min check keeps a single
// pass from running to completion on wildly dissimilar strings.
func boundedLevenshtein(a, b string, maxDistance int) (int, bool) {
	aRunes := []rune(a)
	bRunes := []rune(b)
	aLen, bLen := len(aRunes), len(bRunes)

	if abs(aLen-bLen) > maxDistance {
		return 0, false
	}

	previous := make([]int, bLen+1)
	current := make([]int, bLen+1)
	for j := range previous {
		previous[j] = j
	}

	for i := 1; i <= aLen; i++ {
		current[0] = i
		rowMin := current[0]

		for j := 1; j <= bLen; j++ {
			substitutionCost := 0
			if aRunes[i-1] != bRunes[j-1] {
				substitutionCost = 1
			}
			deletion := previous[j] + 1
			insertion := current[j-1] + 1
			substitution := previous[j-1] + substitutionCost
			current[j] = min3(deletion, insertion, substitution)
			if current[j] < rowMin {
				rowMin = current[j]
			}
		}

		if rowMin > maxDistance {
			return 0, false
		}
		previous, current = current, previous
	}

	distance := previous[bLen]
	return distance, distance <= maxDistance
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}

func min3(a, b, c int) int {
	m := a
	if b < m {
		m = b
	}
	if c < m {
		m = c
	}
	return m
}
