// Package astgrep builds ast-grep command lines and runs them.
//
// The client knows the two operating modes of the engine, "run" (search by
// a single structural pattern) and "scan" (apply YAML rules), and the
// argument shapes the server uses with them. Execution is delegated to a
// runner.Runner; its errors are returned unchanged.
package astgrep

import (
	"context"

	"github.com/dshills/ast-grep-mcp/internal/runner"
)

// DefaultBinary is the executable name looked up on PATH
const DefaultBinary = "ast-grep"

// Mode is an ast-grep subcommand
type Mode string

const (
	ModeRun  Mode = "run"  // search by a structural pattern
	ModeScan Mode = "scan" // apply YAML rules
)

// Client invokes the ast-grep executable
type Client struct {
	Binary     string // defaults to DefaultBinary
	ConfigPath string // passed as --config when set
	Runner     runner.Runner
}

// NewClient creates a client; an empty binary selects DefaultBinary
func NewClient(binary, configPath string, r runner.Runner) *Client {
	if binary == "" {
		binary = DefaultBinary
	}
	return &Client{Binary: binary, ConfigPath: configPath, Runner: r}
}

// Invocation assembles the full command for mode and its arguments.
// Order: mode, [--config <path>], extraArgs.
func (c *Client) Invocation(mode Mode, extraArgs []string, stdin string) runner.Invocation {
	binary := c.Binary
	if binary == "" {
		binary = DefaultBinary
	}

	args := make([]string, 0, len(extraArgs)+3)
	args = append(args, string(mode))
	if c.ConfigPath != "" {
		args = append(args, "--config", c.ConfigPath)
	}
	args = append(args, extraArgs...)

	return runner.Invocation{Name: binary, Args: args, Stdin: stdin}
}

// Invoke runs ast-grep in the given mode
func (c *Client) Invoke(ctx context.Context, mode Mode, extraArgs []string, stdin string) (*runner.Outcome, error) {
	return c.Runner.Run(ctx, c.Invocation(mode, extraArgs, stdin))
}

// DumpArgs returns run-mode arguments that print the parsed form of code
// to stderr instead of searching.
func DumpArgs(code, language, format string) []string {
	return []string{"--pattern", code, "--lang", language, "--debug-query=" + format}
}

// TestRuleArgs returns scan-mode arguments applying an inline rule to stdin
func TestRuleArgs(rule string) []string {
	return []string{"--inline-rules", rule, "--json", "--stdin"}
}

// FindArgs returns run-mode arguments searching folder for pattern.
// The language flag is omitted when language is empty so the engine
// infers it from file extensions.
func FindArgs(pattern, language, folder string) []string {
	args := []string{"--pattern", pattern}
	if language != "" {
		args = append(args, "--lang", language)
	}
	return append(args, "--json", folder)
}

// RuleArgs returns scan-mode arguments applying an inline rule to folder
func RuleArgs(rule, folder string) []string {
	return []string{"--inline-rules", rule, "--json", folder}
}
