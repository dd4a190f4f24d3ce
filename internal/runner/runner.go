// Package runner executes external build and test commands with a
// wall-clock limit and captures their combined output.
package runner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"time"
)

// ErrEmptyCommand is returned when Run is called without a program.
var ErrEmptyCommand = errors.New("empty command")

// ExitNotStarted is reported when the program could not be launched.
const ExitNotStarted = 127

// ExitTimedOut is reported when the command was killed at its deadline.
const ExitTimedOut = -1

// waitDelay bounds how long Run waits for inherited pipes after a kill.
const waitDelay = 2 * time.Second

// Result holds the outcome of one command.
type Result struct {
	Output   string        `json:"output"`
	ExitCode int           `json:"exit_code"`
	TimedOut bool          `json:"timed_out"`
	Duration time.Duration `json:"duration"`
}

// Runner runs commands with a fixed timeout.
type Runner struct {
	timeout time.Duration
	logger  *slog.Logger
}

// New creates a Runner. A non-positive timeout disables the limit.
func New(timeout time.Duration, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{timeout: timeout, logger: logger}
}

// Timeout returns the configured limit.
func (r *Runner) Timeout() time.Duration {
	return r.timeout
}

// Run executes argv and returns its combined stdout and stderr.
// Commands that fail to start report ExitNotStarted with the error text as
// output. Commands exceeding the timeout are killed and report ExitTimedOut.
func (r *Runner) Run(ctx context.Context, argv []string) (Result, error) {
	if len(argv) == 0 || argv[0] == "" {
		return Result{}, ErrEmptyCommand
	}
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	runCtx := ctx
	if r.timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	var buf bytes.Buffer
	cmd := exec.CommandContext(runCtx, argv[0], argv[1:]...)
	cmd.Stdout = &buf
	cmd.Stderr = &buf
	cmd.WaitDelay = waitDelay
	isolate(cmd)

	start := time.Now()
	r.logger.Debug("running command", "argv", argv, "timeout", r.timeout)

	if err := cmd.Start(); err != nil {
		r.logger.Warn("command failed to start", "program", argv[0], "error", err)
		return Result{
			Output:   err.Error(),
			ExitCode: ExitNotStarted,
			Duration: time.Since(start),
		}, nil
	}

	waitErr := cmd.Wait()
	res := Result{
		Output:   buf.String(),
		Duration: time.Since(start),
	}

	switch {
	case errors.Is(runCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil:
		res.TimedOut = true
		res.ExitCode = ExitTimedOut
		if res.Output != "" && res.Output[len(res.Output)-1] != '\n' {
			res.Output += "\n"
		}
		res.Output += fmt.Sprintf("command did not complete: timed out after %s", r.timeout)
		r.logger.Warn("command timed out", "program", argv[0], "timeout", r.timeout)
	case ctx.Err() != nil:
		return res, ctx.Err()
	case waitErr != nil:
		var exitErr *exec.ExitError
		if !errors.As(waitErr, &exitErr) {
			return res, fmt.Errorf("wait for %s: %w", argv[0], waitErr)
		}
		res.ExitCode = exitErr.ExitCode()
	}

	r.logger.Debug("command finished", "program", argv[0], "exit_code", res.ExitCode, "duration", res.Duration)
	return res, nil
}
