package runner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Invocation describes a single external command execution
type Invocation struct {
	Name  string   // executable name or path
	Args  []string // arguments, in order
	Stdin string   // piped to the child when non-empty
}

// String renders the invocation as a shell-like command line for logs
func (inv Invocation) String() string {
	parts := make([]string, 0, len(inv.Args)+1)
	parts = append(parts, inv.Name)
	for _, arg := range inv.Args {
		if arg == "" || strings.ContainsAny(arg, " \t\n\"'") {
			arg = strconv.Quote(arg)
		}
		parts = append(parts, arg)
	}
	return strings.Join(parts, " ")
}

// waitDelay bounds how long output pipes stay open after the process was
// killed. Descendants outside the process group may still hold them.
const waitDelay = 500 * time.Millisecond

// Outcome is the captured result of a successful invocation
type Outcome struct {
	Stdout   string
	Stderr   string
	ExitCode int
	Duration time.Duration
}

// Runner executes invocations
type Runner interface {
	Run(ctx context.Context, inv Invocation) (*Outcome, error)
}

// Func adapts a function to the Runner interface
type Func func(ctx context.Context, inv Invocation) (*Outcome, error)

// Run calls f(ctx, inv)
func (f Func) Run(ctx context.Context, inv Invocation) (*Outcome, error) {
	return f(ctx, inv)
}

// ExecRunner runs invocations as child processes via os/exec
type ExecRunner struct {
	// Timeout bounds each invocation. Zero means no limit.
	Timeout time.Duration
	// Logger receives debug lines for every invocation. Nil disables logging.
	Logger *zap.Logger
}

// NewExecRunner creates an ExecRunner
func NewExecRunner(timeout time.Duration, logger *zap.Logger) *ExecRunner {
	return &ExecRunner{Timeout: timeout, Logger: logger}
}

// Run executes inv and blocks until the process has exited and both of its
// output streams have been drained.
func (r *ExecRunner) Run(ctx context.Context, inv Invocation) (*Outcome, error) {
	logger := r.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	runCtx := ctx
	if r.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, r.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(runCtx, inv.Name, inv.Args...)
	configureKill(cmd)
	cmd.WaitDelay = waitDelay

	var stdin io.WriteCloser
	var err error
	if inv.Stdin != "" {
		if stdin, err = cmd.StdinPipe(); err != nil {
			return nil, &StartError{Name: inv.Name, Err: fmt.Errorf("stdin pipe: %w", err)}
		}
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, &StartError{Name: inv.Name, Err: fmt.Errorf("stdout pipe: %w", err)}
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, &StartError{Name: inv.Name, Err: fmt.Errorf("stderr pipe: %w", err)}
	}

	logger.Debug("Running command",
		zap.String("command", inv.String()),
		zap.Int("stdin_bytes", len(inv.Stdin)))

	start := time.Now()
	if err := cmd.Start(); err != nil {
		return nil, &StartError{Name: inv.Name, Err: err}
	}

	// Once the context is done, unblock the pumps even if some process
	// still holds the other end of a pipe
	stopClosing := context.AfterFunc(runCtx, func() {
		time.AfterFunc(waitDelay, func() {
			if stdin != nil {
				_ = stdin.Close()
			}
			_ = stdout.Close()
			_ = stderr.Close()
		})
	})

	var outBuf, errBuf bytes.Buffer
	var g errgroup.Group

	if stdin != nil {
		g.Go(func() error {
			// A child that exits without reading its input closes the pipe
			// early; that is not an error of the invocation itself.
			if _, werr := io.WriteString(stdin, inv.Stdin); werr != nil {
				logger.Debug("Stdin write interrupted", zap.String("command", inv.Name), zap.Error(werr))
			}
			if cerr := stdin.Close(); cerr != nil && !errors.Is(cerr, io.ErrClosedPipe) {
				logger.Debug("Stdin close failed", zap.String("command", inv.Name), zap.Error(cerr))
			}
			return nil
		})
	}
	g.Go(func() error {
		_, err := io.Copy(&outBuf, stdout)
		return err
	})
	g.Go(func() error {
		_, err := io.Copy(&errBuf, stderr)
		return err
	})

	// All reads must complete before Wait closes the pipes
	readErr := g.Wait()
	stopClosing()
	waitErr := cmd.Wait()
	duration := time.Since(start)

	if ctx.Err() != nil {
		logger.Debug("Command interrupted", zap.String("command", inv.Name), zap.Duration("duration", duration))
		return nil, fmt.Errorf("%s interrupted: %w", inv.Name, ctx.Err())
	}
	if runCtx.Err() != nil {
		logger.Debug("Command timed out", zap.String("command", inv.Name), zap.Duration("timeout", r.Timeout))
		return nil, &TimeoutError{Name: inv.Name, Timeout: r.Timeout}
	}

	if waitErr != nil {
		var exitErr *exec.ExitError
		if errors.As(waitErr, &exitErr) {
			msg := strings.TrimSpace(errBuf.String())
			if msg == "" {
				msg = NoErrorOutput
			}
			logger.Debug("Command failed",
				zap.String("command", inv.Name),
				zap.Int("exit_code", exitErr.ExitCode()),
				zap.Duration("duration", duration))
			return nil, &ExitError{Name: inv.Name, Code: exitErr.ExitCode(), Stderr: msg}
		}
		return nil, fmt.Errorf("failed waiting for %s: %w", inv.Name, waitErr)
	}
	if readErr != nil {
		return nil, fmt.Errorf("failed reading output of %s: %w", inv.Name, readErr)
	}

	logger.Debug("Command finished",
		zap.String("command", inv.Name),
		zap.Int("stdout_bytes", outBuf.Len()),
		zap.Int("stderr_bytes", errBuf.Len()),
		zap.Duration("duration", duration))

	return &Outcome{
		Stdout:   outBuf.String(),
		Stderr:   errBuf.String(),
		ExitCode: 0,
		Duration: duration,
	}, nil
}
