package mcp

import (
	"fmt"
)

// MCP error codes
const (
	ErrorCodeInvalidParams = -32602 // Invalid method parameters
	ErrorCodeInternalError = -32603 // Internal JSON-RPC error
	ErrorCodeNoMatch       = -32001 // Rule executed but matched nothing
)

// NoMatchHint is appended to NoMatchError messages
const NoMatchHint = "Try adding `stopBy: end` to your inside/has rule."

// MCPError represents an MCP protocol error
type MCPError struct {
	Code    int
	Message string
	Data    interface{}
}

func (e *MCPError) Error() string {
	return fmt.Sprintf("MCP error %d: %s", e.Code, e.Message)
}

// newMCPError creates a properly formatted MCP error
func newMCPError(code int, message string, data interface{}) error {
	return &MCPError{
		Code:    code,
		Message: message,
		Data:    data,
	}
}

// invalidParam reports a malformed or missing argument
func invalidParam(param, reason string) error {
	return newMCPError(ErrorCodeInvalidParams, fmt.Sprintf("invalid %s: %s", param, reason), map[string]interface{}{
		"param":  param,
		"reason": reason,
	})
}

// NoMatchError is returned by test_match_code_rule when the rule ran
// successfully but matched nothing.
type NoMatchError struct{}

func (e *NoMatchError) Error() string {
	return "No matches found for the given code and rule. " + NoMatchHint
}
