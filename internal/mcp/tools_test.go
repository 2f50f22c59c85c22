package mcp

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"sync"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/dshills/ast-grep-mcp/internal/config"
	"github.com/dshills/ast-grep-mcp/internal/runner"
	"github.com/dshills/ast-grep-mcp/internal/storage"
)

// fakeRunner records invocations instead of spawning processes
type fakeRunner struct {
	mu    sync.Mutex
	calls []runner.Invocation
	reply func(inv runner.Invocation) (*runner.Outcome, error)
}

func (f *fakeRunner) Run(ctx context.Context, inv runner.Invocation) (*runner.Outcome, error) {
	f.mu.Lock()
	f.calls = append(f.calls, inv)
	f.mu.Unlock()
	if f.reply == nil {
		return &runner.Outcome{}, nil
	}
	return f.reply(inv)
}

func (f *fakeRunner) spawns() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func (f *fakeRunner) last(t *testing.T) runner.Invocation {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	require.NotEmpty(t, f.calls)
	return f.calls[len(f.calls)-1]
}

func stdout(s string) func(runner.Invocation) (*runner.Outcome, error) {
	return func(runner.Invocation) (*runner.Outcome, error) {
		return &runner.Outcome{Stdout: s}, nil
	}
}

func newTestServer(t *testing.T, cfg *config.Config, reply func(runner.Invocation) (*runner.Outcome, error)) (*Server, *fakeRunner) {
	t.Helper()
	fake := &fakeRunner{reply: reply}
	s, err := NewServer(cfg, zaptest.NewLogger(t), WithRunner(fake))
	require.NoError(t, err)
	t.Cleanup(s.Close)
	return s, fake
}

func callTool(t *testing.T, s *Server, name string, args map[string]any) *mcp.CallToolResult {
	t.Helper()
	tool := s.mcp.GetTool(name)
	require.NotNil(t, tool, "tool %s not registered", name)

	req := mcp.CallToolRequest{}
	req.Params.Name = name
	req.Params.Arguments = args

	result, err := tool.Handler(context.Background(), req)
	require.NoError(t, err, "handlers never return transport errors")
	require.NotNil(t, result)
	return result
}

func resultText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	require.NotEmpty(t, result.Content)
	text, ok := mcp.AsTextContent(result.Content[0])
	require.True(t, ok, "first content block is %T", result.Content[0])
	return text.Text
}

// matchJSON renders n ast-grep matches, each in its own file, one line long
func matchJSON(n int) string {
	parts := make([]string, n)
	for i := range parts {
		parts[i] = fmt.Sprintf(`{"text":"match%d()","file":"src/f%d.py","range":{"start":{"line":%d,"column":0},"end":{"line":%d,"column":8}},"language":"Python"}`, i, i, i, i)
	}
	return "[" + strings.Join(parts, ",") + "]"
}

func TestFindCode_TextOutput(t *testing.T) {
	folder := t.TempDir()
	out := `[{"text":"console.log(\"hi\");","file":"file.js","range":{"start":{"line":9,"column":0},"end":{"line":9,"column":18}}}]`
	s, fake := newTestServer(t, nil, stdout(out))

	result := callTool(t, s, ToolFindCode, map[string]any{
		"project_folder": folder,
		"pattern":        "console.log($$$)",
		"language":       "javascript",
	})

	assert.False(t, result.IsError)
	assert.Equal(t, "Found 1 matches:\n\nfile.js:10\nconsole.log(\"hi\");", resultText(t, result))

	inv := fake.last(t)
	assert.Equal(t, "ast-grep", inv.Name)
	assert.Equal(t, []string{"run", "--pattern", "console.log($$$)", "--lang", "javascript", "--json", folder}, inv.Args)
	assert.Empty(t, inv.Stdin)
}

func TestFindCode_NoMatches(t *testing.T) {
	s, _ := newTestServer(t, nil, stdout(""))

	result := callTool(t, s, ToolFindCode, map[string]any{
		"project_folder": t.TempDir(),
		"pattern":        "foo()",
		"max_results":    float64(5),
	})
	assert.False(t, result.IsError)
	assert.Equal(t, "No matches found", resultText(t, result))
}

func TestFindCode_WithoutLanguage(t *testing.T) {
	folder := t.TempDir()
	s, fake := newTestServer(t, nil, stdout("[]"))

	callTool(t, s, ToolFindCode, map[string]any{
		"project_folder": folder,
		"pattern":        "foo()",
		"language":       "",
	})
	assert.Equal(t, []string{"run", "--pattern", "foo()", "--json", folder}, fake.last(t).Args)
}

func TestFindCode_ConfigPath(t *testing.T) {
	folder := t.TempDir()
	s, fake := newTestServer(t, &config.Config{ConfigPath: "/etc/sgconfig.yml", Binary: "sg"}, stdout("[]"))

	callTool(t, s, ToolFindCode, map[string]any{"project_folder": folder, "pattern": "foo()"})

	inv := fake.last(t)
	assert.Equal(t, "sg", inv.Name)
	assert.Equal(t, []string{"run", "--config", "/etc/sgconfig.yml", "--pattern", "foo()", "--json", folder}, inv.Args)
}

func TestFindCode_JSONOutput(t *testing.T) {
	s, _ := newTestServer(t, nil, stdout(matchJSON(3)))

	result := callTool(t, s, ToolFindCode, map[string]any{
		"project_folder": t.TempDir(),
		"pattern":        "match$N()",
		"output_format":  "json",
		"max_results":    float64(2),
	})
	require.False(t, result.IsError)
	require.Len(t, result.Content, 3)

	text := resultText(t, result)
	assert.True(t, strings.HasPrefix(text, "[\n  {\n    \"file\": \"src/f0.py\""), text)
	assert.Contains(t, text, `"language": "Python"`)
	assert.NotContains(t, text, "src/f2.py")

	res, ok := mcp.AsEmbeddedResource(result.Content[1])
	require.True(t, ok)
	blob, ok := mcp.AsBlobResourceContents(res.Resource)
	require.True(t, ok)
	assert.Equal(t, "application/json", blob.MIMEType)
	assert.Equal(t, MatchesURI, blob.URI)

	decoded, err := base64.StdEncoding.DecodeString(blob.Blob)
	require.NoError(t, err)
	assert.Equal(t, text, string(decoded))

	summary, ok := mcp.AsTextContent(result.Content[2])
	require.True(t, ok)
	assert.Equal(t, "Found 2 matches (showing first 2 of 3):", summary.Text)

	require.NotNil(t, result.Meta)
	assert.Equal(t, 2, result.Meta.AdditionalFields["shown"])
	assert.Equal(t, 3, result.Meta.AdditionalFields["total"])
	assert.Equal(t, true, result.Meta.AdditionalFields["truncated"])
}

func TestFindCodeByRule_JSONOutputComplete(t *testing.T) {
	s, _ := newTestServer(t, nil, stdout(matchJSON(2)))

	result := callTool(t, s, ToolFindCodeByRule, map[string]any{
		"project_folder": t.TempDir(),
		"yaml":           "id: r",
		"output_format":  "json",
	})
	require.False(t, result.IsError)
	assert.Len(t, result.Content, 2, "no summary block when nothing was cut")

	require.NotNil(t, result.Meta)
	assert.Equal(t, 2, result.Meta.AdditionalFields["total"])
	assert.Equal(t, false, result.Meta.AdditionalFields["truncated"])
}

func TestFindCodeByRule_Truncated(t *testing.T) {
	folder := t.TempDir()
	rule := "id: r\nlanguage: python\nrule:\n  pattern: match$N()"
	s, fake := newTestServer(t, nil, stdout(matchJSON(3)))

	result := callTool(t, s, ToolFindCodeByRule, map[string]any{
		"project_folder": folder,
		"yaml":           rule,
		"max_results":    float64(1),
	})
	require.False(t, result.IsError)

	text := resultText(t, result)
	assert.Equal(t, "Found 1 matches (showing first 1 of 3):\n\nsrc/f0.py:1\nmatch0()", text)

	assert.Equal(t, []string{"scan", "--inline-rules", rule, "--json", folder}, fake.last(t).Args)
}

func TestTestMatchCodeRule(t *testing.T) {
	rule := "id: f\nlanguage: python\nrule:\n  kind: function_definition"

	t.Run("matches", func(t *testing.T) {
		s, fake := newTestServer(t, nil, stdout(matchJSON(1)))

		result := callTool(t, s, ToolTestMatchCodeRule, map[string]any{
			"code": "def f(): pass",
			"yaml": rule,
		})
		require.False(t, result.IsError)
		assert.Contains(t, resultText(t, result), `"file": "src/f0.py"`)

		inv := fake.last(t)
		assert.Equal(t, []string{"scan", "--inline-rules", rule, "--json", "--stdin"}, inv.Args)
		assert.Equal(t, "def f(): pass", inv.Stdin)
	})

	t.Run("no match", func(t *testing.T) {
		s, fake := newTestServer(t, nil, stdout(""))

		result := callTool(t, s, ToolTestMatchCodeRule, map[string]any{
			"code": "def f(): pass",
			"yaml": "id: x\nlanguage: python\nrule:\n  pattern: never_matches()",
		})
		assert.True(t, result.IsError)
		assert.Contains(t, resultText(t, result), "stopBy: end")
		assert.Equal(t, 1, fake.spawns())
	})
}

func TestDumpSyntaxTree(t *testing.T) {
	t.Run("reads diagnostic stream", func(t *testing.T) {
		s, fake := newTestServer(t, nil, func(runner.Invocation) (*runner.Outcome, error) {
			return &runner.Outcome{
				Stdout: "normal output",
				Stderr: "\nDebug AST:\nmodule (0,0)-(0,5)\n  expression_statement (0,0)-(0,5)\n\n",
			}, nil
		})

		result := callTool(t, s, ToolDumpSyntaxTree, map[string]any{
			"code":     "x = 1",
			"language": "python",
			"format":   "ast",
		})
		require.False(t, result.IsError)
		assert.Equal(t, "Debug AST:\nmodule (0,0)-(0,5)\n  expression_statement (0,0)-(0,5)", resultText(t, result))
		assert.Equal(t, []string{"run", "--pattern", "x = 1", "--lang", "python", "--debug-query=ast"}, fake.last(t).Args)
	})

	t.Run("falls back to stdout", func(t *testing.T) {
		s, _ := newTestServer(t, nil, func(runner.Invocation) (*runner.Outcome, error) {
			return &runner.Outcome{Stdout: " tree \n", Stderr: "  \n"}, nil
		})
		result := callTool(t, s, ToolDumpSyntaxTree, map[string]any{"code": "x", "language": "python"})
		assert.Equal(t, "tree", resultText(t, result))
	})

	t.Run("default format is cst", func(t *testing.T) {
		s, fake := newTestServer(t, nil, nil)
		callTool(t, s, ToolDumpSyntaxTree, map[string]any{"code": "x", "language": "go"})
		assert.Contains(t, fake.last(t).Args, "--debug-query=cst")
	})
}

func TestValidation_NoProcessSpawned(t *testing.T) {
	folder := t.TempDir()

	tests := []struct {
		name    string
		tool    string
		args    map[string]any
		wantMsg string
	}{
		{"find_code missing pattern", ToolFindCode, map[string]any{"project_folder": folder}, "pattern"},
		{"find_code empty pattern", ToolFindCode, map[string]any{"project_folder": folder, "pattern": ""}, "pattern"},
		{"find_code missing folder", ToolFindCode, map[string]any{"pattern": "x"}, "project_folder"},
		{"find_code folder does not exist", ToolFindCode, map[string]any{"project_folder": folder + "/missing", "pattern": "x"}, "does not exist"},
		{"find_code pattern not a string", ToolFindCode, map[string]any{"project_folder": folder, "pattern": 42.0}, "expected a string"},
		{"find_code bad output format", ToolFindCode, map[string]any{"project_folder": folder, "pattern": "x", "output_format": "xml"}, "output_format"},
		{"find_code negative max", ToolFindCode, map[string]any{"project_folder": folder, "pattern": "x", "max_results": -1.0}, "must not be negative"},
		{"find_code fractional max", ToolFindCode, map[string]any{"project_folder": folder, "pattern": "x", "max_results": 1.5}, "expected an integer"},
		{"find_code max wrong type", ToolFindCode, map[string]any{"project_folder": folder, "pattern": "x", "max_results": true}, "expected an integer"},
		{"find_code_by_rule missing yaml", ToolFindCodeByRule, map[string]any{"project_folder": folder}, "yaml"},
		{"test_match_code_rule missing code", ToolTestMatchCodeRule, map[string]any{"yaml": "id: x"}, "code"},
		{"test_match_code_rule blank yaml", ToolTestMatchCodeRule, map[string]any{"code": "x", "yaml": "  "}, "yaml"},
		{"dump_syntax_tree missing language", ToolDumpSyntaxTree, map[string]any{"code": "x"}, "language"},
		{"dump_syntax_tree bad format", ToolDumpSyntaxTree, map[string]any{"code": "x", "language": "go", "format": "json"}, "format"},
		{"no arguments", ToolFindCode, nil, "project_folder"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, fake := newTestServer(t, nil, stdout("[]"))

			result := callTool(t, s, tt.tool, tt.args)
			assert.True(t, result.IsError)
			text := resultText(t, result)
			assert.Contains(t, text, tt.wantMsg)
			assert.Contains(t, text, fmt.Sprint(ErrorCodeInvalidParams))
			assert.Equal(t, 0, fake.spawns(), "no process may be spawned on invalid params")
		})
	}
}

func TestMaxResults_Coercion(t *testing.T) {
	tests := []struct {
		name string
		val  any
		want int
	}{
		{"absent", nil, 0},
		{"float", float64(3), 3},
		{"int", 4, 4},
		{"numeric string", "2", 2},
		{"empty string", "", 0},
		{"zero", float64(0), 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args := map[string]any{}
			if tt.val != nil {
				args["max_results"] = tt.val
			}
			got, err := optionalNonNegativeInt(args, "max_results", 0)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestProcessFailures_BecomeErrorResults(t *testing.T) {
	folder := t.TempDir()

	tests := []struct {
		name    string
		reply   func(runner.Invocation) (*runner.Outcome, error)
		wantMsg string
	}{
		{
			name: "nonzero exit",
			reply: func(runner.Invocation) (*runner.Outcome, error) {
				return nil, &runner.ExitError{Name: "ast-grep", Code: 2, Stderr: "Cannot parse rule"}
			},
			wantMsg: "exit code 2: Cannot parse rule",
		},
		{
			name: "missing executable",
			reply: func(runner.Invocation) (*runner.Outcome, error) {
				return nil, &runner.StartError{Name: "ast-grep", Err: exec.ErrNotFound}
			},
			wantMsg: "not found",
		},
		{
			name:    "undecodable output",
			reply:   stdout(`{"error": "unexpected"}`),
			wantMsg: "failed to decode",
		},
		{
			name: "interrupted",
			reply: func(runner.Invocation) (*runner.Outcome, error) {
				return nil, fmt.Errorf("ast-grep interrupted: %w", context.Canceled)
			},
			wantMsg: "interrupted",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, fake := newTestServer(t, nil, tt.reply)

			for _, tool := range []string{ToolFindCode, ToolFindCodeByRule} {
				result := callTool(t, s, tool, map[string]any{
					"project_folder": folder,
					"pattern":        "x",
					"yaml":           "id: x",
				})
				assert.True(t, result.IsError)
				assert.Len(t, result.Content, 1)
				assert.Contains(t, resultText(t, result), tt.wantMsg)
			}
			assert.Equal(t, 2, fake.spawns(), "failures are not retried")
		})
	}
}

func TestConcurrentCalls(t *testing.T) {
	folder := t.TempDir()
	s, fake := newTestServer(t, nil, func(inv runner.Invocation) (*runner.Outcome, error) {
		// Echo the pattern back as the match text
		pattern := inv.Args[2]
		return &runner.Outcome{Stdout: fmt.Sprintf(`[{"file":"a.go","text":%q}]`, pattern)}, nil
	})

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			pattern := fmt.Sprintf("call%d()", i)
			result := callTool(t, s, ToolFindCode, map[string]any{"project_folder": folder, "pattern": pattern})
			assert.Equal(t, "Found 1 matches:\n\na.go:1\n"+pattern, resultText(t, result))
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 16, fake.spawns())
}

func TestHistoryRecording(t *testing.T) {
	history, err := storage.NewSQLiteStorage(":memory:")
	require.NoError(t, err)

	folder := t.TempDir()
	fake := &fakeRunner{reply: stdout(matchJSON(3))}
	s, err := NewServer(nil, zaptest.NewLogger(t), WithRunner(fake), WithHistory(history))
	require.NoError(t, err)
	defer s.Close()

	callTool(t, s, ToolFindCode, map[string]any{
		"project_folder": folder,
		"pattern":        strings.Repeat("p", 500),
		"max_results":    float64(1),
	})
	callTool(t, s, ToolFindCode, map[string]any{"project_folder": folder})

	list, err := history.ListInvocations(context.Background(), storage.ListFilter{})
	require.NoError(t, err)
	require.Len(t, list, 2)

	failed, ok := list[0], list[1]
	if failed.Success {
		failed, ok = ok, failed
	}
	assert.True(t, ok.Success)
	assert.Equal(t, ToolFindCode, ok.Tool)
	assert.Equal(t, 3, ok.MatchCount, "match count is recorded before truncation")
	assert.Less(t, len(ok.Arguments), 400, "long arguments are shortened")

	assert.False(t, failed.Success)
	assert.Contains(t, failed.ErrorMessage, "pattern")
}

func TestToolError(t *testing.T) {
	result := toolError(errors.New("boom"))
	assert.True(t, result.IsError)
	require.Len(t, result.Content, 1)
	text, ok := mcp.AsTextContent(result.Content[0])
	require.True(t, ok)
	assert.Equal(t, "boom", text.Text)
}

func TestSummarizeArgs(t *testing.T) {
	assert.Equal(t, "{}", summarizeArgs(nil))
	assert.Equal(t, `{"max_results":2,"pattern":"x"}`, summarizeArgs(map[string]any{"pattern": "x", "max_results": 2}))

	long := summarizeArgs(map[string]any{"yaml": strings.Repeat("a", 1000)})
	assert.Contains(t, long, strings.Repeat("a", maxRecordedArgLen)+"...")
	assert.NotContains(t, long, strings.Repeat("a", maxRecordedArgLen+1))
}
