// Package difftext renders a line-oriented diff between two file
// versions in process, for comparisons that do not come out of git
// (e.g. a committed version against edited working-tree content).
package difftext

import (
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"
)

// Unified renders a minimal line diff between two contents using
// "-"/"+"/" " prefixes. It is not a full unified-diff with hunk
// headers; the analyzer consumes it as plain change text.
func Unified(before, after string) string {
	if before == after {
		return ""
	}

	dmp := diffmatchpatch.New()
	beforeChars, afterChars, lines := dmp.DiffLinesToChars(before, after)
	diffs := dmp.DiffMain(beforeChars, afterChars, false)
	diffs = dmp.DiffCharsToLines(diffs, lines)

	var builder strings.Builder
	for _, d := range diffs {
		prefix := " "
		switch d.Type {
		case diffmatchpatch.DiffDelete:
			prefix = "-"
		case diffmatchpatch.DiffInsert:
			prefix = "+"
		}
		for _, line := range splitKeepNonEmpty(d.Text) {
			builder.WriteString(prefix)
			builder.WriteString(line)
			builder.WriteByte('\n')
		}
	}
	return builder.String()
}

// ChangedLineCounts returns how many lines were added and removed
// between two contents.
func ChangedLineCounts(before, after string) (added, removed int) {
	for _, line := range strings.Split(Unified(before, after), "\n") {
		switch {
		case strings.HasPrefix(line, "+"):
			added++
		case strings.HasPrefix(line, "-"):
			removed++
		}
	}
	return added, removed
}

func splitKeepNonEmpty(text string) []string {
	parts := strings.Split(strings.TrimRight(text, "\n"), "\n")
	if len(parts) == 1 && parts[0] == "" {
		return nil
	}
	return parts
}
