// Package supportmap renders the registry x check support matrix
// built by catalog.CheckSupportRows as the terminal-friendly report
// printed by the support-map CLI command (spec §6).
package supportmap

import (
	"fmt"
	"io"
	"math"
	"os"
	"sort"
	"strings"

	"github.com/safe-pkgs/safe-pkgs/internal/catalog"
	"github.com/safe-pkgs/safe-pkgs/internal/checks"
)

// UseColor reports whether ANSI output should be used: suppressed by
// NO_COLOR (any value) or TERM=dumb.
func UseColor() bool {
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	if os.Getenv("TERM") == "dumb" {
		return false
	}
	return true
}

// RenderCatalog renders a catalog's full support map directly, sparing
// callers from extracting rows/descriptors/keys themselves.
func RenderCatalog(w io.Writer, cat *catalog.Catalog, color bool) {
	checkList := cat.Checks()
	descriptors := make([]checks.Descriptor, len(checkList))
	for i, c := range checkList {
		descriptors[i] = c.Descriptor()
	}
	Render(w, cat.CheckSupportRows(), descriptors, cat.RegisteredKeys(), color)
}

// Render writes the full support-map report to w: a registry coverage
// summary followed by a per-check table with supported/unsupported
// flags for every registry.
func Render(w io.Writer, rows []catalog.SupportRow, descriptors []checks.Descriptor, registryKeys []string, color bool) {
	sortedDescriptors := append([]checks.Descriptor(nil), descriptors...)
	sort.Slice(sortedDescriptors, func(i, j int) bool { return sortedDescriptors[i].ID < sortedDescriptors[j].ID })

	supported := make(map[[2]string]bool, len(rows))
	for _, row := range rows {
		supported[[2]string{row.Registry, row.CheckID}] = row.Supported
	}

	fmt.Fprintln(w, style("safe-pkgs support map", "1;36", color))
	fmt.Fprintf(w, "checks: %d | registries: %d\n", len(sortedDescriptors), len(registryKeys))
	fmt.Fprintf(w, "legend: flags [W,A] where W=needs weekly downloads, A=needs advisories; %s=supported, %s=unsupported\n",
		style("yes", "32", color), style("no", "31", color))
	fmt.Fprintln(w)

	if len(registryKeys) == 0 {
		fmt.Fprintln(w, "no registries configured")
		return
	}

	fmt.Fprintln(w, style("Registry Coverage", "1;36", color))
	for _, registryKey := range registryKeys {
		supportedCount := 0
		for _, descriptor := range sortedDescriptors {
			if supported[[2]string{registryKey, descriptor.ID}] {
				supportedCount++
			}
		}
		total := len(sortedDescriptors)
		percent := 100
		if total > 0 {
			percent = int(math.Round(float64(supportedCount) / float64(total) * 100))
		}
		coverage := fmt.Sprintf("%d/%d (%d%%)", supportedCount, total, percent)
		coverageColor := "33"
		if supportedCount == total {
			coverageColor = "32"
		}
		fmt.Fprintf(w, "  %-10s %s\n", style(registryKey, "1", color), style(coverage, coverageColor, color))

		var unsupported []string
		for _, descriptor := range sortedDescriptors {
			if !supported[[2]string{registryKey, descriptor.ID}] {
				unsupported = append(unsupported, descriptor.ID)
			}
		}
		if len(unsupported) > 0 {
			fmt.Fprintf(w, "    unsupported: %s\n", style(strings.Join(unsupported, ", "), "31", color))
		}
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, style("Checks", "1;36", color))

	checkColWidth := len("check")
	for _, descriptor := range sortedDescriptors {
		if len(descriptor.ID) > checkColWidth {
			checkColWidth = len(descriptor.ID)
		}
	}
	const flagsColWidth = 5
	registryColWidths := make(map[string]int, len(registryKeys))
	for _, key := range registryKeys {
		width := len(key)
		if width < 3 {
			width = 3
		}
		registryColWidths[key] = width
	}

	header := fmt.Sprintf("%-*s  %-*s", checkColWidth, "check", flagsColWidth, "flags")
	for _, key := range registryKeys {
		header += "  " + pad(key, registryColWidths[key])
	}
	header += "  description"
	fmt.Fprintln(w, style(header, "1;36", color))
	fmt.Fprintln(w, strings.Repeat("-", len(header)))

	for _, descriptor := range sortedDescriptors {
		allSupported := true
		for _, key := range registryKeys {
			if !supported[[2]string{key, descriptor.ID}] {
				allSupported = false
				break
			}
		}
		checkColor := "1;33"
		if allSupported {
			checkColor = "1"
		}

		line := style(pad(descriptor.ID, checkColWidth), checkColor, color)
		line += "  " + flagsCell(descriptor, flagsColWidth, color)
		for _, key := range registryKeys {
			line += "  " + supportCell(supported[[2]string{key, descriptor.ID}], registryColWidths[key], color)
		}
		line += "  " + descriptor.Description
		fmt.Fprintln(w, line)
	}
}

func flagsCell(descriptor checks.Descriptor, width int, color bool) string {
	weekly := "-"
	if descriptor.NeedsWeeklyDownloads {
		weekly = "W"
	}
	advisories := "-"
	if descriptor.NeedsAdvisories {
		advisories = "A"
	}
	raw := pad(weekly+advisories, width)
	if !color {
		return raw
	}

	var b strings.Builder
	for _, ch := range raw {
		switch ch {
		case 'W', 'A':
			b.WriteString(style(string(ch), "33", color))
		case '-':
			b.WriteString(style("-", "2", color))
		default:
			b.WriteRune(ch)
		}
	}
	return b.String()
}

func supportCell(isSupported bool, width int, color bool) string {
	label := "no"
	ansi := "31"
	if isSupported {
		label = "yes"
		ansi = "32"
	}
	return style(pad(label, width), ansi, color)
}

func pad(s string, width int) string {
	if len(s) >= width {
		return s
	}
	return s + strings.Repeat(" ", width-len(s))
}

func style(value, ansiCode string, color bool) string {
	if !color {
		return value
	}
	return "\033[" + ansiCode + "m" + value + "\033[0m"
}
