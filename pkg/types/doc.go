// Package types provides shared type definitions for the ast-grep MCP server.
//
// The central type is MatchRecord, one structural match reported by the
// ast-grep engine. Records are semi-structured: the engine's field set
// varies by language and rule, so a record is kept as the decoded JSON
// object and only the fields the server needs are read through accessors.
//
// # Decoding
//
// ast-grep prints a JSON array when invoked with --json:
//
//	[
//	  {
//	    "text": "console.log(\"hi\");",
//	    "file": "src/app.js",
//	    "range": {
//	      "byteOffset": {"start": 120, "end": 138},
//	      "start": {"line": 9, "column": 2},
//	      "end": {"line": 9, "column": 20}
//	    },
//	    "language": "JavaScript",
//	    "metaVariables": {...}
//	  }
//	]
//
// DecodeMatches turns that output into an ordered slice of records:
//
//	records, err := types.DecodeMatches([]byte(outcome.Stdout))
//	if err != nil {
//	    var decErr *types.DecodeError
//	    if errors.As(err, &decErr) {
//	        // output was not a JSON array of objects
//	    }
//	}
//
// Empty output decodes to an empty slice; ast-grep prints nothing when a
// scan finds no matches.
//
// # Accessors
//
// Accessors never fail. Missing or mistyped fields yield defaults:
//
//	rec.File()      // "" when absent
//	rec.StartLine() // range.start.line, 0-based, 0 when absent
//	rec.EndLine()   // range.end.line, 0-based, 0 when absent
//	rec.Text()      // "" when absent
//
// Numbers are kept as json.Number so that re-encoding a record reproduces
// the engine's values exactly.
package types
