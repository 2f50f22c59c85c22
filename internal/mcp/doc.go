// Package mcp implements the Model Context Protocol (MCP) server for ast-grep.
//
// The MCP server exposes four tools to AI coding assistants:
//   - dump_syntax_tree: Show the syntax tree of code or of a pattern
//   - test_match_code_rule: Check a YAML rule against a code snippet
//   - find_code: Search a project folder with an ast-grep pattern
//   - find_code_by_rule: Search a project folder with a YAML rule
//
// Every tool call runs the ast-grep command line tool once; nothing is
// cached between calls and failed runs are not retried.
//
// # Protocol Overview
//
// MCP is a JSON-RPC 2.0 protocol, served over stdio by default:
//
//	Client → Server: {"method": "tools/call", "params": {...}}
//	Server → Client: {"result": {"content": [...], "isError": false}}
//
// The streamable HTTP transport serves the same protocol on /mcp.
//
// # Tool: dump_syntax_tree
//
//	Request:
//	{
//	  "name": "dump_syntax_tree",
//	  "arguments": {
//	    "code": "x = 1",
//	    "language": "python",
//	    "format": "cst"
//	  }
//	}
//
// The response is a single text block holding ast-grep's diagnostic dump.
//
// # Tool: test_match_code_rule
//
//	Request:
//	{
//	  "name": "test_match_code_rule",
//	  "arguments": {
//	    "code": "def f(): pass",
//	    "yaml": "id: f\nlanguage: python\nrule:\n  kind: function_definition"
//	  }
//	}
//
// Matches are returned as JSON. A rule that matches nothing is reported as
// an error whose message suggests adding `stopBy: end` to relational rules.
//
// # Tool: find_code
//
//	Request:
//	{
//	  "name": "find_code",
//	  "arguments": {
//	    "project_folder": "/path/to/project",
//	    "pattern": "console.log($$$)",
//	    "language": "javascript",
//	    "max_results": 10,
//	    "output_format": "text"
//	  }
//	}
//
//	Response (text):
//	Found 1 matches:
//
//	src/app.js:10
//	console.log("hi");
//
// # Tool: find_code_by_rule
//
// Same as find_code, with a "yaml" rule in place of "pattern" and "language".
// With output_format "json" the response carries the match records both as
// text and as an application/json resource. The result's _meta reports
// shown, total and truncated; a cut result also ends with the summary line
// used by text output.
//
// # MCP Client Configuration
//
//	{
//	  "mcpServers": {
//	    "ast-grep": {
//	      "command": "/usr/local/bin/ast-grep-mcp",
//	      "args": ["--config", "/path/to/sgconfig.yml"]
//	    }
//	  }
//	}
//
// # Error Handling
//
// Failures never abort the session. They come back as tool results with
// isError set and a message describing the problem:
//
//	{
//	  "content": [{"type": "text", "text": "MCP error -32602: invalid pattern: parameter is required"}],
//	  "isError": true
//	}
//
// Error codes:
//   - -32602: Invalid params (missing or malformed arguments)
//   - -32603: Internal error
//   - -32001: Rule matched nothing (test_match_code_rule)
//
// Process failures (missing executable, nonzero exit, timeout) and
// undecodable ast-grep output are reported with the runner's message.
//
// # Logging
//
// The server logs to stderr with zap; stdout is reserved for the protocol.
// Each tool call logs its name, match count and duration.
package mcp
