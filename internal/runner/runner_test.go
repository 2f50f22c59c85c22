package runner

import (
	"context"
	"errors"
	"os/exec"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func requireShell(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("requires a POSIX shell")
	}
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
}

func shell(script string) Invocation {
	return Invocation{Name: "sh", Args: []string{"-c", script}}
}

func TestExecRunner_CapturesBothStreams(t *testing.T) {
	requireShell(t)
	r := &ExecRunner{Logger: zaptest.NewLogger(t)}

	out, err := r.Run(context.Background(), shell("echo out; echo err >&2"))
	require.NoError(t, err)
	assert.Equal(t, "out\n", out.Stdout)
	assert.Equal(t, "err\n", out.Stderr)
	assert.Equal(t, 0, out.ExitCode)
	assert.Greater(t, out.Duration, time.Duration(0))
}

func TestExecRunner_PipesStdin(t *testing.T) {
	requireShell(t)
	r := &ExecRunner{}

	inv := Invocation{Name: "cat", Stdin: "def f(): pass\n"}
	out, err := r.Run(context.Background(), inv)
	require.NoError(t, err)
	assert.Equal(t, "def f(): pass\n", out.Stdout)
}

func TestExecRunner_StdinIgnoredByChild(t *testing.T) {
	requireShell(t)
	r := &ExecRunner{}

	inv := shell("echo done")
	inv.Stdin = strings.Repeat("x", 1<<20)
	out, err := r.Run(context.Background(), inv)
	require.NoError(t, err)
	assert.Equal(t, "done\n", out.Stdout)
}

func TestExecRunner_LargeOutputDoesNotDeadlock(t *testing.T) {
	requireShell(t)
	r := &ExecRunner{Timeout: 30 * time.Second}

	// Well beyond a typical 64 KiB pipe buffer, stderr written first
	const size = 1 << 20
	script := "yes e | head -c 1048576 >&2; yes o | head -c 1048576"
	out, err := r.Run(context.Background(), shell(script))
	require.NoError(t, err)
	assert.Len(t, out.Stdout, size)
	assert.Len(t, out.Stderr, size)
}

func TestExecRunner_NonzeroExit(t *testing.T) {
	requireShell(t)
	r := &ExecRunner{}

	tests := []struct {
		name       string
		script     string
		wantCode   int
		wantStderr string
	}{
		{"with stderr", "echo '  pattern error  ' >&2; exit 3", 3, "pattern error"},
		{"without stderr", "echo partial; exit 1", 1, NoErrorOutput},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := r.Run(context.Background(), shell(tt.script))
			require.Error(t, err)
			assert.Nil(t, out)

			var exitErr *ExitError
			require.True(t, errors.As(err, &exitErr), "expected ExitError, got %T", err)
			assert.Equal(t, tt.wantCode, exitErr.Code)
			assert.Equal(t, tt.wantStderr, exitErr.Stderr)
			assert.Contains(t, err.Error(), "exit code")
		})
	}
}

func TestExecRunner_MissingExecutable(t *testing.T) {
	r := &ExecRunner{}

	_, err := r.Run(context.Background(), Invocation{Name: "definitely-not-a-real-binary-8f3a"})
	require.Error(t, err)

	var startErr *StartError
	require.True(t, errors.As(err, &startErr), "expected StartError, got %T", err)
	assert.ErrorIs(t, err, exec.ErrNotFound)
	assert.Contains(t, err.Error(), "not found")
}

func TestExecRunner_Timeout(t *testing.T) {
	requireShell(t)
	r := &ExecRunner{Timeout: 100 * time.Millisecond}

	start := time.Now()
	_, err := r.Run(context.Background(), Invocation{Name: "sleep", Args: []string{"5"}})
	require.Error(t, err)
	assert.Less(t, time.Since(start), 4*time.Second)

	var timeoutErr *TimeoutError
	require.True(t, errors.As(err, &timeoutErr), "expected TimeoutError, got %T", err)
	assert.Equal(t, 100*time.Millisecond, timeoutErr.Timeout)
}

func TestExecRunner_TimeoutKillsDescendants(t *testing.T) {
	requireShell(t)
	r := &ExecRunner{Timeout: 200 * time.Millisecond, Logger: zaptest.NewLogger(t)}

	// sleep runs as a child of sh and inherits its stdout and stderr
	start := time.Now()
	_, err := r.Run(context.Background(), shell("sleep 3; echo x"))
	elapsed := time.Since(start)

	var timeoutErr *TimeoutError
	require.True(t, errors.As(err, &timeoutErr), "expected TimeoutError, got %v", err)
	assert.Less(t, elapsed, 2*time.Second, "run must not wait for the grandchild")
}

func TestExecRunner_CancelWithPendingStdin(t *testing.T) {
	requireShell(t)
	r := &ExecRunner{}

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	// The child never reads stdin, so the writer blocks once the pipe is full
	start := time.Now()
	_, err := r.Run(ctx, Invocation{
		Name:  "sh",
		Args:  []string{"-c", "sleep 3"},
		Stdin: strings.Repeat("x", 4<<20),
	})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestExecRunner_ContextCanceled(t *testing.T) {
	requireShell(t)
	r := &ExecRunner{}

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	_, err := r.Run(ctx, Invocation{Name: "sleep", Args: []string{"5"}})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	var timeoutErr *TimeoutError
	assert.False(t, errors.As(err, &timeoutErr))
}

func TestInvocation_String(t *testing.T) {
	inv := Invocation{
		Name: "ast-grep",
		Args: []string{"run", "--pattern", "console.log($$$)", "--lang", "javascript", "--json", "/tmp/my project"},
	}
	assert.Equal(t, `ast-grep run --pattern console.log($$$) --lang javascript --json "/tmp/my project"`, inv.String())
}

func TestFunc_ImplementsRunner(t *testing.T) {
	var calls int
	var r Runner = Func(func(ctx context.Context, inv Invocation) (*Outcome, error) {
		calls++
		return &Outcome{Stdout: inv.Name}, nil
	})

	out, err := r.Run(context.Background(), Invocation{Name: "fake"})
	require.NoError(t, err)
	assert.Equal(t, "fake", out.Stdout)
	assert.Equal(t, 1, calls)
}
