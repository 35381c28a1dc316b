package reconcile

import (
	"strings"
	"time"
)

func delimiter(at time.Time) string {
	return "\n--- " + at.UTC().Format(time.RFC3339) + " ---\n"
}

// MergeNotes merges incoming into existing without ever dropping text.
// Duplicates and supersets are detected so that repeated syncs converge.
func MergeNotes(existing, incoming string, at time.Time) string {
	switch {
	case strings.TrimSpace(incoming) == "":
		return existing
	case strings.TrimSpace(existing) == "":
		return incoming
	case strings.Contains(existing, incoming):
		return existing
	case strings.Contains(incoming, existing):
		return incoming
	}
	return existing + delimiter(at) + incoming
}

// AppendEntry always appends entry after a timestamped delimiter.
func AppendEntry(existing, entry string, at time.Time) string {
	if strings.TrimSpace(existing) == "" {
		return entry
	}
	return existing + delimiter(at) + entry
}
