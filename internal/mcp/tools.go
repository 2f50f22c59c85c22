package mcp

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/dshills/ast-grep-mcp/internal/astgrep"
	"github.com/dshills/ast-grep-mcp/internal/formatter"
	"github.com/dshills/ast-grep-mcp/internal/storage"
	"github.com/dshills/ast-grep-mcp/pkg/types"
)

// MatchesURI identifies the JSON resource attached to json-format results
const MatchesURI = "ast-grep://matches"

// maxRecordedArgLen bounds argument values stored in the history
const maxRecordedArgLen = 200

// toolHandler implements one tool. It returns the result or an error, and
// the number of matches found before truncation.
type toolHandler func(ctx context.Context, args map[string]any) (*mcp.CallToolResult, int, error)

// handle wraps h with the error boundary shared by all tools: every
// failure becomes an error-flagged result, nothing reaches the transport.
func (s *Server) handle(name string, h toolHandler) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		start := time.Now()
		args := request.GetArguments()
		callID := uuid.NewString()
		s.logger.Debug("Tool call started", zap.String("tool", name), zap.String("call_id", callID))

		result, matches, err := h(ctx, args)
		if err == nil && result == nil {
			err = newMCPError(ErrorCodeInternalError, "tool produced no result", nil)
		}
		if err != nil {
			result = toolError(err)
		}
		duration := time.Since(start)

		fields := []zap.Field{
			zap.String("tool", name),
			zap.String("call_id", callID),
			zap.Int("matches", matches),
			zap.Duration("duration", duration),
		}
		if err != nil {
			s.logger.Info("Tool call failed", append(fields, zap.Error(err))...)
		} else {
			s.logger.Info("Tool call", fields...)
		}

		s.record(ctx, name, args, matches, err, duration)
		return result, nil
	}
}

// toolError converts err into an error-flagged result
func toolError(err error) *mcp.CallToolResult {
	return mcp.NewToolResultError(err.Error())
}

// record stores the call in the history, when enabled
func (s *Server) record(ctx context.Context, name string, args map[string]any, matches int, callErr error, duration time.Duration) {
	if s.history == nil {
		return
	}

	inv := &storage.Invocation{
		Tool:       name,
		Arguments:  summarizeArgs(args),
		Success:    callErr == nil,
		MatchCount: matches,
		Duration:   duration,
	}
	if callErr != nil {
		inv.ErrorMessage = callErr.Error()
	}

	// Record even when the client went away mid-call
	if err := s.history.RecordInvocation(context.WithoutCancel(ctx), inv); err != nil {
		s.logger.Warn("Failed to record invocation", zap.String("tool", name), zap.Error(err))
	}
}

// summarizeArgs renders args as JSON with long string values shortened
func summarizeArgs(args map[string]any) string {
	short := make(map[string]any, len(args))
	for k, v := range args {
		if str, ok := v.(string); ok && len(str) > maxRecordedArgLen {
			v = str[:maxRecordedArgLen] + "..."
		}
		short[k] = v
	}
	data, err := json.Marshal(short)
	if err != nil {
		return "{}"
	}
	return string(data)
}

// handleDumpSyntaxTree handles the dump_syntax_tree tool invocation
func (s *Server) handleDumpSyntaxTree(ctx context.Context, args map[string]any) (*mcp.CallToolResult, int, error) {
	code, err := requireString(args, "code")
	if err != nil {
		return nil, 0, err
	}
	language, err := requireString(args, "language")
	if err != nil {
		return nil, 0, err
	}
	format, err := optionalEnum(args, "format", "cst", dumpFormats)
	if err != nil {
		return nil, 0, err
	}

	out, err := s.client.Invoke(ctx, astgrep.ModeRun, astgrep.DumpArgs(code, language, format), "")
	if err != nil {
		return nil, 0, err
	}

	// The dump is written to stderr
	dump := strings.TrimSpace(out.Stderr)
	if dump == "" {
		dump = strings.TrimSpace(out.Stdout)
	}
	return mcp.NewToolResultText(dump), 0, nil
}

// handleTestMatchCodeRule handles the test_match_code_rule tool invocation
func (s *Server) handleTestMatchCodeRule(ctx context.Context, args map[string]any) (*mcp.CallToolResult, int, error) {
	code, err := requireString(args, "code")
	if err != nil {
		return nil, 0, err
	}
	rule, err := requireString(args, "yaml")
	if err != nil {
		return nil, 0, err
	}

	out, err := s.client.Invoke(ctx, astgrep.ModeScan, astgrep.TestRuleArgs(rule), code)
	if err != nil {
		return nil, 0, err
	}

	records, err := types.DecodeMatches([]byte(out.Stdout))
	if err != nil {
		return nil, 0, err
	}
	if len(records) == 0 {
		return nil, 0, &NoMatchError{}
	}

	result, err := jsonResult(records, len(records))
	return result, len(records), err
}

// handleFindCode handles the find_code tool invocation
func (s *Server) handleFindCode(ctx context.Context, args map[string]any) (*mcp.CallToolResult, int, error) {
	folder, err := requireFolder(args)
	if err != nil {
		return nil, 0, err
	}
	pattern, err := requireString(args, "pattern")
	if err != nil {
		return nil, 0, err
	}
	language, err := optionalString(args, "language", "")
	if err != nil {
		return nil, 0, err
	}
	maxResults, format, err := outputOptions(args)
	if err != nil {
		return nil, 0, err
	}

	out, err := s.client.Invoke(ctx, astgrep.ModeRun, astgrep.FindArgs(pattern, language, folder), "")
	if err != nil {
		return nil, 0, err
	}
	return render(out.Stdout, maxResults, format)
}

// handleFindCodeByRule handles the find_code_by_rule tool invocation
func (s *Server) handleFindCodeByRule(ctx context.Context, args map[string]any) (*mcp.CallToolResult, int, error) {
	folder, err := requireFolder(args)
	if err != nil {
		return nil, 0, err
	}
	rule, err := requireString(args, "yaml")
	if err != nil {
		return nil, 0, err
	}
	maxResults, format, err := outputOptions(args)
	if err != nil {
		return nil, 0, err
	}

	out, err := s.client.Invoke(ctx, astgrep.ModeScan, astgrep.RuleArgs(rule, folder), "")
	if err != nil {
		return nil, 0, err
	}
	return render(out.Stdout, maxResults, format)
}

// render decodes engine output and renders it in the requested format
func render(stdout string, maxResults int, format formatter.Format) (*mcp.CallToolResult, int, error) {
	records, err := types.DecodeMatches([]byte(stdout))
	if err != nil {
		return nil, 0, err
	}

	if format == formatter.JSON {
		shown, total := formatter.Truncate(records, maxResults)
		result, err := jsonResult(shown, total)
		return result, total, err
	}
	return mcp.NewToolResultText(formatter.RenderText(records, maxResults)), len(records), nil
}

// jsonResult returns records as canonical JSON text plus an application/json
// resource. total is the match count before truncation; it is reported in
// _meta, and in a trailing summary block when records were cut.
func jsonResult(records []types.MatchRecord, total int) (*mcp.CallToolResult, error) {
	data, err := formatter.FormatJSON(records)
	if err != nil {
		return nil, err
	}
	result := mcp.NewToolResultResource(string(data), mcp.BlobResourceContents{
		URI:      MatchesURI,
		MIMEType: "application/json",
		Blob:     base64.StdEncoding.EncodeToString(data),
	})

	truncated := len(records) < total
	result.Meta = mcp.NewMetaFromMap(map[string]any{
		"shown":     len(records),
		"total":     total,
		"truncated": truncated,
	})
	if truncated {
		result.Content = append(result.Content, mcp.NewTextContent(formatter.Summary(len(records), total)))
	}
	return result, nil
}

// Parameter helpers

// requireString extracts a non-empty string parameter
func requireString(args map[string]any, key string) (string, error) {
	val, ok := args[key]
	if !ok || val == nil {
		return "", invalidParam(key, "parameter is required")
	}
	str, ok := val.(string)
	if !ok {
		return "", invalidParam(key, fmt.Sprintf("expected a string, got %T", val))
	}
	if strings.TrimSpace(str) == "" {
		return "", invalidParam(key, "parameter is required and cannot be empty")
	}
	return str, nil
}

// optionalString extracts a string parameter; absent, null or empty yields defaultValue
func optionalString(args map[string]any, key, defaultValue string) (string, error) {
	val, ok := args[key]
	if !ok || val == nil {
		return defaultValue, nil
	}
	str, ok := val.(string)
	if !ok {
		return "", invalidParam(key, fmt.Sprintf("expected a string, got %T", val))
	}
	if str == "" {
		return defaultValue, nil
	}
	return str, nil
}

// optionalEnum extracts a string parameter restricted to allowed values
func optionalEnum(args map[string]any, key, defaultValue string, allowed []string) (string, error) {
	str, err := optionalString(args, key, defaultValue)
	if err != nil {
		return "", err
	}
	for _, a := range allowed {
		if str == a {
			return str, nil
		}
	}
	return "", newMCPError(ErrorCodeInvalidParams, fmt.Sprintf("invalid %s: %q is not one of %s", key, str, strings.Join(allowed, ", ")), map[string]interface{}{
		"param":   key,
		"value":   str,
		"allowed": allowed,
	})
}

// optionalNonNegativeInt extracts an integer parameter >= 0.
// JSON numbers arrive as float64; numeric strings are accepted too.
func optionalNonNegativeInt(args map[string]any, key string, defaultValue int) (int, error) {
	val, ok := args[key]
	if !ok || val == nil {
		return defaultValue, nil
	}

	var n int
	switch v := val.(type) {
	case float64:
		if v != math.Trunc(v) || math.IsInf(v, 0) || v > math.MaxInt32 || v < math.MinInt32 {
			return 0, invalidParam(key, fmt.Sprintf("expected an integer, got %v", v))
		}
		n = int(v)
	case int:
		n = v
	case int64:
		n = int(v)
	case json.Number:
		i, err := v.Int64()
		if err != nil {
			return 0, invalidParam(key, fmt.Sprintf("expected an integer, got %s", v))
		}
		n = int(i)
	case string:
		if strings.TrimSpace(v) == "" {
			return defaultValue, nil
		}
		i, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return 0, invalidParam(key, fmt.Sprintf("expected an integer, got %q", v))
		}
		n = i
	default:
		return 0, invalidParam(key, fmt.Sprintf("expected an integer, got %T", val))
	}

	if n < 0 {
		return 0, invalidParam(key, fmt.Sprintf("must not be negative, got %d", n))
	}
	return n, nil
}

// requireFolder extracts project_folder and checks that it exists
func requireFolder(args map[string]any) (string, error) {
	folder, err := requireString(args, "project_folder")
	if err != nil {
		return "", err
	}
	if _, err := os.Stat(folder); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", invalidParam("project_folder", "path does not exist")
		}
		return "", invalidParam("project_folder", "path is not accessible")
	}
	return folder, nil
}

// outputOptions extracts max_results and output_format
func outputOptions(args map[string]any) (int, formatter.Format, error) {
	maxResults, err := optionalNonNegativeInt(args, "max_results", 0)
	if err != nil {
		return 0, "", err
	}
	raw, err := optionalEnum(args, "output_format", string(formatter.Text),
		[]string{string(formatter.Text), string(formatter.JSON)})
	if err != nil {
		return 0, "", err
	}
	format, err := formatter.ParseFormat(raw)
	if err != nil {
		return 0, "", invalidParam("output_format", err.Error())
	}
	return maxResults, format, nil
}
