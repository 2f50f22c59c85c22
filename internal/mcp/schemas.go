package mcp

import (
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
)

// Tool names
const (
	ToolDumpSyntaxTree    = "dump_syntax_tree"
	ToolTestMatchCodeRule = "test_match_code_rule"
	ToolFindCode          = "find_code"
	ToolFindCodeByRule    = "find_code_by_rule"
)

// dumpFormats are the accepted --debug-query values
var dumpFormats = []string{"pattern", "cst", "ast"}

func languageDescription(languages []string) string {
	return fmt.Sprintf("The language of the code. Supported: %s", strings.Join(languages, ", "))
}

// dumpSyntaxTreeTool returns the tool definition for dump_syntax_tree
func dumpSyntaxTreeTool(languages []string) mcp.Tool {
	return mcp.NewTool(ToolDumpSyntaxTree,
		mcp.WithDescription("Dump the syntax structure of code or of an ast-grep pattern. "+
			"Use it to discover node kinds and tree shape while writing or debugging a rule. "+
			"format=cst shows the concrete syntax tree of target code, format=ast the abstract tree, "+
			"format=pattern how ast-grep interprets a pattern. "+
			"Runs: ast-grep run --pattern <code> --lang <language> --debug-query=<format>"),
		mcp.WithString("code",
			mcp.Required(),
			mcp.Description("The code to inspect")),
		mcp.WithString("language",
			mcp.Required(),
			mcp.Description(languageDescription(languages))),
		mcp.WithString("format",
			mcp.Description("Syntax tree format: pattern, cst or ast"),
			mcp.Enum(dumpFormats...),
			mcp.DefaultString("cst")),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
	)
}

// testMatchCodeRuleTool returns the tool definition for test_match_code_rule
func testMatchCodeRuleTool() mcp.Tool {
	return mcp.NewTool(ToolTestMatchCodeRule,
		mcp.WithDescription("Test a code snippet against an ast-grep YAML rule before running the rule on a project. "+
			"Returns the matches as JSON, or an error when the rule matches nothing. "+
			"Runs: ast-grep scan --inline-rules <yaml> --json --stdin"),
		mcp.WithString("code",
			mcp.Required(),
			mcp.Description("The code to test against the rule")),
		mcp.WithString("yaml",
			mcp.Required(),
			mcp.Description("The ast-grep YAML rule; must include id, language and rule fields")),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
	)
}

// findCodeTool returns the tool definition for find_code
func findCodeTool(languages []string) mcp.Tool {
	return mcp.NewTool(ToolFindCode,
		mcp.WithDescription("Find code in a project folder matching an ast-grep pattern. "+
			"Patterns suit single-node searches; use find_code_by_rule for relational or composite conditions. "+
			"Text output lists file:line headers followed by the matched code; json output returns the full match records. "+
			"Runs: ast-grep run --pattern <pattern> [--lang <language>] --json <project_folder>"),
		mcp.WithString("project_folder",
			mcp.Required(),
			mcp.Description("Absolute path to the project folder to search")),
		mcp.WithString("pattern",
			mcp.Required(),
			mcp.Description("The ast-grep pattern, e.g. 'console.log($$$ARGS)'")),
		mcp.WithString("language",
			mcp.Description(languageDescription(languages)+". Inferred from file extensions when omitted")),
		mcp.WithNumber("max_results",
			mcp.Description("Maximum number of matches to return; 0 returns all"),
			mcp.DefaultNumber(0),
			mcp.Min(0)),
		mcp.WithString("output_format",
			mcp.Description("'text' for compact file:line output, 'json' for full match records"),
			mcp.Enum("text", "json"),
			mcp.DefaultString("text")),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
	)
}

// findCodeByRuleTool returns the tool definition for find_code_by_rule
func findCodeByRuleTool() mcp.Tool {
	return mcp.NewTool(ToolFindCodeByRule,
		mcp.WithDescription("Find code in a project folder using an ast-grep YAML rule. "+
			"Rules support relational (inside, has, follows, precedes) and composite (all, any, not) conditions. "+
			"When using inside/has, add `stopBy: end` so the whole tree is searched. "+
			"Runs: ast-grep scan --inline-rules <yaml> --json <project_folder>"),
		mcp.WithString("project_folder",
			mcp.Required(),
			mcp.Description("Absolute path to the project folder to search")),
		mcp.WithString("yaml",
			mcp.Required(),
			mcp.Description("The ast-grep YAML rule; must include id, language and rule fields")),
		mcp.WithNumber("max_results",
			mcp.Description("Maximum number of matches to return; 0 returns all"),
			mcp.DefaultNumber(0),
			mcp.Min(0)),
		mcp.WithString("output_format",
			mcp.Description("'text' for compact file:line output, 'json' for full match records"),
			mcp.Enum("text", "json"),
			mcp.DefaultString("text")),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
	)
}
