package types

import (
	"errors"
	"fmt"
)

// Decoding errors
var (
	ErrNotArray        = errors.New("output is not a JSON array")
	ErrNotObject       = errors.New("array element is not a JSON object")
	ErrTrailingContent = errors.New("unexpected content after JSON array")
)

// DecodeError reports engine output that could not be decoded into match records.
type DecodeError struct {
	Err     error
	Snippet string // leading part of the offending output
}

func (e *DecodeError) Error() string {
	if e.Snippet == "" {
		return fmt.Sprintf("failed to decode ast-grep output: %v", e.Err)
	}
	return fmt.Sprintf("failed to decode ast-grep output: %v (output starts with %q)", e.Err, e.Snippet)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}
