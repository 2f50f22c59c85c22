package types

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"strconv"
)

// snippetLen bounds the output excerpt carried by a DecodeError
const snippetLen = 64

// MatchRecord is one structural match as reported by ast-grep.
// It must be treated as read-only once decoded.
type MatchRecord map[string]any

// File returns the path of the file containing the match.
func (m MatchRecord) File() string {
	s, _ := m["file"].(string)
	return s
}

// Text returns the matched source text.
func (m MatchRecord) Text() string {
	s, _ := m["text"].(string)
	return s
}

// StartLine returns the 0-based line where the match starts.
func (m MatchRecord) StartLine() int {
	return m.rangeLine("start")
}

// EndLine returns the 0-based line where the match ends.
func (m MatchRecord) EndLine() int {
	return m.rangeLine("end")
}

func (m MatchRecord) rangeLine(edge string) int {
	r, ok := m["range"].(map[string]any)
	if !ok {
		return 0
	}
	pos, ok := r[edge].(map[string]any)
	if !ok {
		return 0
	}
	return toInt(pos["line"])
}

// toInt converts a decoded JSON number to int, returning 0 for anything else
func toInt(v any) int {
	switch n := v.(type) {
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return int(i)
		}
		if f, err := n.Float64(); err == nil && !math.IsNaN(f) {
			return int(f)
		}
	case float64:
		return int(n)
	case int:
		return n
	case int64:
		return int(n)
	case string:
		if i, err := strconv.Atoi(n); err == nil {
			return i
		}
	}
	return 0
}

// DecodeMatches parses ast-grep JSON output into match records.
// Empty or whitespace-only input yields an empty slice.
func DecodeMatches(data []byte) ([]MatchRecord, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return []MatchRecord{}, nil
	}
	if trimmed[0] != '[' {
		if !json.Valid(trimmed) {
			return nil, newDecodeError(fmt.Errorf("invalid JSON: %w", ErrNotArray), trimmed)
		}
		return nil, newDecodeError(ErrNotArray, trimmed)
	}

	dec := json.NewDecoder(bytes.NewReader(trimmed))
	dec.UseNumber()

	var elems []any
	if err := dec.Decode(&elems); err != nil {
		return nil, newDecodeError(err, trimmed)
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, newDecodeError(ErrTrailingContent, trimmed)
	}

	records := make([]MatchRecord, 0, len(elems))
	for i, elem := range elems {
		obj, ok := elem.(map[string]any)
		if !ok {
			return nil, newDecodeError(fmt.Errorf("element %d: %w", i, ErrNotObject), trimmed)
		}
		records = append(records, MatchRecord(obj))
	}
	return records, nil
}

func newDecodeError(err error, data []byte) *DecodeError {
	snippet := data
	if len(snippet) > snippetLen {
		snippet = snippet[:snippetLen]
	}
	return &DecodeError{Err: err, Snippet: string(snippet)}
}
