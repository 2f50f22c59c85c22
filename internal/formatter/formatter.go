// Package formatter renders match records as text or JSON.
//
// Text output is compact and meant for reading inside an assistant's
// context window:
//
//	Found 2 matches (showing first 2 of 5):
//
//	src/app.js:10
//	console.log("hi");
//
//	src/app.js:20-22
//	function f() {
//	  return 1;
//	}
//
// JSON output is canonical: object keys sorted, two-space indentation,
// no HTML escaping. Two renderings of the same records are byte-for-byte
// identical.
package formatter

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"unicode"

	"github.com/dshills/ast-grep-mcp/pkg/types"
)

// NoMatches is the text rendering of an empty result set
const NoMatches = "No matches found"

// Format selects the output representation
type Format string

const (
	Text Format = "text"
	JSON Format = "json"
)

// ParseFormat validates an output_format value; empty selects Text
func ParseFormat(s string) (Format, error) {
	switch Format(s) {
	case "", Text:
		return Text, nil
	case JSON:
		return JSON, nil
	}
	return "", fmt.Errorf("invalid output format %q: must be %q or %q", s, Text, JSON)
}

// Truncate returns the first limit records and the original count.
// limit <= 0 means unlimited. The input slice is never modified.
func Truncate(records []types.MatchRecord, limit int) ([]types.MatchRecord, int) {
	total := len(records)
	if limit <= 0 || total <= limit {
		return records, total
	}
	return records[:limit:limit], total
}

// Summary returns the header line for shown out of total matches
func Summary(shown, total int) string {
	if shown < total {
		return fmt.Sprintf("Found %d matches (showing first %d of %d):", shown, shown, total)
	}
	return fmt.Sprintf("Found %d matches:", shown)
}

// FormatText renders each record as a location header followed by its
// source text. Blocks are separated by a blank line.
func FormatText(records []types.MatchRecord) string {
	if len(records) == 0 {
		return NoMatches
	}

	blocks := make([]string, 0, len(records))
	for _, rec := range records {
		start := rec.StartLine() + 1
		end := rec.EndLine() + 1

		header := fmt.Sprintf("%s:%d", rec.File(), start)
		if start != end {
			header = fmt.Sprintf("%s:%d-%d", rec.File(), start, end)
		}
		blocks = append(blocks, header+"\n"+strings.TrimRightFunc(rec.Text(), unicode.IsSpace))
	}
	return strings.Join(blocks, "\n\n")
}

// RenderText truncates records to limit and renders the summary and blocks
func RenderText(records []types.MatchRecord, limit int) string {
	if len(records) == 0 {
		return NoMatches
	}
	shown, total := Truncate(records, limit)
	return Summary(len(shown), total) + "\n\n" + FormatText(shown)
}

// FormatJSON renders records as a canonical JSON array
func FormatJSON(records []types.MatchRecord) ([]byte, error) {
	if records == nil {
		records = []types.MatchRecord{}
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(records); err != nil {
		return nil, fmt.Errorf("failed to encode matches: %w", err)
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}
