package store

import (
	"regexp"
	"strings"
)

// columnSep matches the padding between tabwriter-aligned columns.
var columnSep = regexp.MustCompile(`\s{2,}`)

// ParseList converts `api-vault list` output into summaries.
//
// The first line is a header and is discarded. Each remaining line is split
// on runs of two or more whitespace characters; rows with fewer than three
// columns are skipped and extra columns are ignored. Empty output, or output
// without any data line, yields an empty slice.
func ParseList(raw string) []CredentialSummary {
	rows, _ := parseList(raw)
	return rows
}

// parseList is ParseList that also reports how many rows were skipped.
func parseList(raw string) (rows []CredentialSummary, skipped int) {
	rows = []CredentialSummary{}

	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return rows, 0
	}
	lines := strings.Split(strings.ReplaceAll(trimmed, "\r\n", "\n"), "\n")
	if len(lines) < 2 {
		return rows, 0
	}

	for _, line := range lines[1:] {
		cols := columnSep.Split(strings.TrimSpace(line), -1)
		if len(cols) < 3 {
			skipped++
			continue
		}
		rows = append(rows, CredentialSummary{
			Name:    cols[0],
			Kind:    cols[1],
			Created: cols[2],
		})
	}
	return rows, skipped
}
