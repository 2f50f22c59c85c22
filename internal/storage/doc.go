// Package storage provides SQLite-based persistence for the tool invocation history.
//
// History is optional. When a database path is configured, the MCP server
// records one row per dispatched tool call so that operators can see which
// searches assistants ran, how long they took and why they failed:
//
//	ast-grep-mcp --history-db ~/.ast-grep-mcp/history.db
//	ast-grep-mcp history --history-db ~/.ast-grep-mcp/history.db --failed
//
// # Database Schema
//
// Tables:
//   - schema_version: Applied migrations (semantic versions)
//   - invocations: Tool name, summarised arguments, outcome, match count,
//     duration and timestamp of each call
//
// Timestamps and durations are stored as integer milliseconds so both
// drivers read them back identically.
//
// # Basic Usage
//
//	db, err := storage.NewSQLiteStorage("history.db")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer db.Close()
//
//	err = db.RecordInvocation(ctx, &storage.Invocation{
//	    Tool:       "find_code",
//	    Arguments:  `{"pattern":"console.log($$$)"}`,
//	    Success:    true,
//	    MatchCount: 3,
//	    Duration:   120 * time.Millisecond,
//	})
//
//	recent, err := db.ListInvocations(ctx, storage.ListFilter{Tool: "find_code", Limit: 10})
//
// # Migrations
//
// Migrations are ordered by semantic version (github.com/Masterminds/semver)
// and applied on open; RollbackMigration reverts the newest one.
//
// # Build Tags
//
// The storage package supports two build configurations:
//
// Pure Go Build (default):
//
//   - Uses modernc.org/sqlite driver
//
//   - No C compiler needed
//
//     CGO_ENABLED=0 go build ./...
//
// CGO Build (sqlite_cgo tag):
//
//   - Uses github.com/mattn/go-sqlite3 driver
//
//   - Requires C compiler
//
//     CGO_ENABLED=1 go build -tags "sqlite_cgo" ./...
package storage
