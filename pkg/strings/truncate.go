package strings

import (
	"strings"
)

// DefaultDescriptionMaxLen is the column width the CLI tables use for
// free-text cells (the last-error column of `tools list`).
const DefaultDescriptionMaxLen = 60

// minTruncateLen keeps room for at least one character plus "...".
const minTruncateLen = 4

// TruncateDescription collapses s onto a single line and truncates it
// to at most maxLen runes, appending "..." when anything was cut.
// Newlines and runs of whitespace become single spaces so a multi-line
// error message stays inside its table cell.
func TruncateDescription(s string, maxLen int) string {
	if maxLen < minTruncateLen {
		maxLen = minTruncateLen
	}

	s = strings.Join(strings.Fields(s), " ")

	runes := []rune(s)
	if len(runes) > maxLen {
		return string(runes[:maxLen-3]) + "..."
	}
	return s
}
