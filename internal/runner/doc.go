// Package runner executes external commands and captures their output.
//
// The runner is the only place in the server where concurrency is
// mandatory. A child process writing more than a pipe buffer's worth of
// output to stdout or stderr blocks until someone reads it, so both
// streams are drained by independent goroutines while the process runs.
// The goroutines, and the optional stdin writer, are joined with an
// errgroup before the process is reaped:
//
//	         ┌──────────── stdin writer ──────────┐
//	Start ───┼──────────── stdout reader ─────────┼── g.Wait ── cmd.Wait
//	         └──────────── stderr reader ─────────┘
//
// # Basic Usage
//
//	r := &runner.ExecRunner{Logger: logger}
//	out, err := r.Run(ctx, runner.Invocation{
//	    Name:  "ast-grep",
//	    Args:  []string{"scan", "--inline-rules", rule, "--json", "--stdin"},
//	    Stdin: code,
//	})
//
// # Errors
//
//   - *StartError: the executable is missing or could not be launched
//   - *ExitError: the process exited with a nonzero status
//   - *TimeoutError: ExecRunner.Timeout elapsed and the process was killed
//
// A canceled context kills the child and returns the context error.
// Output captured before a kill is discarded. Exit status zero is the
// only success signal; nothing is retried.
package runner
