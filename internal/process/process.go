// Package process runs external commands with a hard timeout and capped
// output capture. It is the only place the server spawns child processes.
package process

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"syscall"
	"time"
)

const (
	// maxOutputBytes caps stdout/stderr so a chatty child cannot exhaust memory.
	maxOutputBytes = 1 << 20 // 1 MB

	defaultTimeout = 10 * time.Second
)

var (
	// ErrTimeout is returned (wrapped) when a command outlives its timeout.
	ErrTimeout = errors.New("command timed out")

	// ErrOutputTooLarge is returned (wrapped) when stdout or stderr exceeds
	// the capture limit. Partial output is never returned as a result.
	ErrOutputTooLarge = errors.New("command output exceeds limit")
)

// Runner executes a single command to completion.
type Runner interface {
	Run(ctx context.Context, req Request) (*Result, error)
}

// Request describes one invocation.
type Request struct {
	// Path is the executable to run.
	Path string

	// Args are passed to the executable (argv[1:]).
	Args []string

	// Env is merged on top of the inherited parent environment.
	Env map[string]string

	// Timeout overrides the runner default. Zero = use default.
	Timeout time.Duration
}

// Result captures the outcome of a finished command.
// A nonzero ExitCode is a result, not an error.
type Result struct {
	Stdout   string
	Stderr   string
	ExitCode int
	Duration time.Duration
}

// ExecRunner runs commands as OS processes.
//
//   - The child runs in its own process group (Setpgid).
//   - The whole group is killed on timeout or cancellation.
//   - The parent environment is inherited; Request.Env is layered on top.
//   - stdout/stderr are capped at 1 MB each; exceeding the cap fails the run.
type ExecRunner struct {
	defaultTimeout time.Duration
	logger         *slog.Logger
}

// NewExecRunner creates a runner. A zero timeout selects the 10s default.
func NewExecRunner(timeout time.Duration, logger *slog.Logger) *ExecRunner {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &ExecRunner{defaultTimeout: timeout, logger: logger}
}

// Timeout returns the default timeout applied to requests without one.
func (r *ExecRunner) Timeout() time.Duration { return r.defaultTimeout }

// Run executes req and waits for it to exit.
func (r *ExecRunner) Run(ctx context.Context, req Request) (*Result, error) {
	if req.Path == "" {
		return nil, fmt.Errorf("empty command path")
	}

	timeout := req.Timeout
	if timeout <= 0 {
		timeout = r.defaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, req.Path, req.Args...)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	// Negative PID = kill the entire process group, so grandchildren
	// holding the output pipes do not keep Wait blocked.
	cmd.Cancel = func() error {
		if cmd.Process == nil {
			return nil
		}
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}
	cmd.WaitDelay = time.Second

	cmd.Env = buildEnv(os.Environ(), req.Env)

	var stdoutBuf, stderrBuf bytes.Buffer
	stdout := &limitedWriter{w: &stdoutBuf, remaining: maxOutputBytes}
	stderr := &limitedWriter{w: &stderrBuf, remaining: maxOutputBytes}
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	r.logger.DebugContext(ctx, "process executing",
		slog.String("path", req.Path),
		slog.Any("args", req.Args),
		slog.Duration("timeout", timeout),
	)

	start := time.Now()
	runErr := cmd.Run()
	duration := time.Since(start)

	exitCode := 0
	if runErr != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			r.logger.WarnContext(ctx, "process timed out",
				slog.String("path", req.Path),
				slog.Duration("timeout", timeout),
			)
			return nil, fmt.Errorf("%w after %s", ErrTimeout, timeout)
		}
		if ctx.Err() != nil {
			return nil, fmt.Errorf("command canceled: %w", ctx.Err())
		}

		var exitErr *exec.ExitError
		if errors.As(runErr, &exitErr) {
			exitCode = exitErr.ExitCode()
		} else {
			return nil, fmt.Errorf("running %s: %w", req.Path, runErr)
		}
	}

	if stdout.overflow || stderr.overflow {
		r.logger.WarnContext(ctx, "process output exceeded limit",
			slog.String("path", req.Path),
			slog.Bool("stdout", stdout.overflow),
			slog.Bool("stderr", stderr.overflow),
		)
		return nil, fmt.Errorf("%w of %d bytes", ErrOutputTooLarge, maxOutputBytes)
	}

	r.logger.DebugContext(ctx, "process completed",
		slog.Int("exit_code", exitCode),
		slog.Duration("duration", duration),
		slog.Int("stdout_bytes", stdoutBuf.Len()),
		slog.Int("stderr_bytes", stderrBuf.Len()),
	)

	return &Result{
		Stdout:   stdoutBuf.String(),
		Stderr:   stderrBuf.String(),
		ExitCode: exitCode,
		Duration: duration,
	}, nil
}

// buildEnv layers extra on top of base, dropping any base entry that
// extra overrides so the child sees exactly one value per key.
func buildEnv(base []string, extra map[string]string) []string {
	env := make([]string, 0, len(base)+len(extra))
	for _, kv := range base {
		key, _, _ := strings.Cut(kv, "=")
		if _, override := extra[key]; override {
			continue
		}
		env = append(env, kv)
	}
	for k, v := range extra {
		env = append(env, k+"="+v)
	}
	return env
}

// limitedWriter stops storing after a byte limit and records that it did.
// Excess data is drained rather than rejected so the child is never blocked
// on a full pipe.
type limitedWriter struct {
	w         io.Writer
	remaining int
	overflow  bool
}

func (lw *limitedWriter) Write(p []byte) (int, error) {
	n := len(p)
	if len(p) > lw.remaining {
		lw.overflow = true
		p = p[:lw.remaining]
	}
	if len(p) == 0 {
		return n, nil
	}
	written, err := lw.w.Write(p)
	lw.remaining -= written
	if err != nil {
		return written, err
	}
	return n, nil
}
