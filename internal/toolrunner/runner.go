// Package toolrunner invokes external calibration tools as argument lists,
// without a shell, with per-invocation timeouts and log capture.
package toolrunner

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"slices"
	"strings"
	"time"

	"github.com/tphakala/uvotredux/internal/errors"
	"github.com/tphakala/uvotredux/internal/logger"
)

// DefaultTimeout bounds a single tool invocation. Zero disables the bound.
const DefaultTimeout = 2 * time.Hour

// maxCapturedOutput caps output kept in errors when no log file is used
const maxCapturedOutput = 4096

// waitDelay is how long Wait blocks for output pipes after the process is killed
const waitDelay = 5 * time.Second

var (
	// ErrToolNotFound means the executable could not be resolved
	ErrToolNotFound = errors.NewStd("tool not found")
	// ErrToolFailed means the tool exited with a non-zero status
	ErrToolFailed = errors.NewStd("tool failed")
	// ErrToolTimeout means the invocation exceeded its timeout
	ErrToolTimeout = errors.NewStd("tool timed out")
)

// Invocation describes one tool run
type Invocation struct {
	Name    string   // tool name, resolved through ExecRunner.Paths or PATH
	Args    []string // passed verbatim, no shell interpretation
	Dir     string   // working directory, empty for the current one
	LogPath string   // combined stdout and stderr, truncated per run
	Env     []string // KEY=VALUE pairs added to the inherited environment
}

// String renders the invocation as it would be typed in a shell
func (inv Invocation) String() string {
	return strings.Join(append([]string{inv.Name}, inv.Args...), " ")
}

// Result describes a finished invocation
type Result struct {
	ExitCode int
	Duration time.Duration
	Output   []byte // captured output when no LogPath was set, truncated
}

// Runner runs external tools
type Runner interface {
	Run(ctx context.Context, inv Invocation) (Result, error)
}

// Observer receives the outcome of every invocation. status is one of
// "success", "failed", "timeout", "not_found" or "cancelled".
type Observer interface {
	RecordToolInvocation(tool, status string, duration time.Duration)
}

// ExecRunner runs tools with os/exec
type ExecRunner struct {
	Paths    map[string]string // optional executable path per tool name
	Timeout  time.Duration     // per invocation, 0 disables
	Env      []string          // extra environment for every invocation
	Observer Observer
}

// NewExecRunner returns a runner with the given executable overrides and timeout
func NewExecRunner(paths map[string]string, timeout time.Duration) *ExecRunner {
	return &ExecRunner{
		Paths:   paths,
		Timeout: timeout,
		// HEASoft tools prompt for missing parameters unless told not to
		Env: []string{"HEADASNOQUERY=1"},
	}
}

// Resolve returns the executable path for a tool name
func (r *ExecRunner) Resolve(name string) (string, error) {
	candidate := name
	if p, ok := r.Paths[name]; ok && p != "" {
		candidate = p
	}

	path, err := exec.LookPath(candidate)
	if err != nil {
		return "", errors.New(fmt.Errorf("%w: %s: %w", ErrToolNotFound, name, err)).
			Component("toolrunner").
			Category(errors.CategoryNotFound).
			Context("tool", name).
			Build()
	}
	return path, nil
}

// Run executes inv and waits for it to finish
func (r *ExecRunner) Run(ctx context.Context, inv Invocation) (Result, error) {
	log := GetLogger().WithContext(ctx).With(logger.String("tool", inv.Name))

	path, err := r.Resolve(inv.Name)
	if err != nil {
		r.observe(inv.Name, "not_found", 0)
		return Result{ExitCode: -1}, err
	}

	runCtx := ctx
	if r.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, r.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(runCtx, path, inv.Args...) //nolint:gosec // tool paths come from configuration
	cmd.Dir = inv.Dir
	cmd.Env = slices.Concat(os.Environ(), r.Env, inv.Env)
	setProcessGroup(cmd)
	cmd.WaitDelay = waitDelay

	var captured bytes.Buffer
	var out io.Writer = &captured
	if inv.LogPath != "" {
		logFile, err := os.Create(inv.LogPath)
		if err != nil {
			return Result{ExitCode: -1}, errors.New(err).
				Component("toolrunner").
				Category(errors.CategoryFileIO).
				FileContext(inv.LogPath).
				Context("tool", inv.Name).
				Build()
		}
		defer logFile.Close()
		out = logFile
	}
	cmd.Stdout = out
	cmd.Stderr = out

	log.Info("Executing command", logger.String("command", inv.String()))
	start := time.Now()
	runErr := cmd.Run()
	duration := time.Since(start)

	result := Result{Duration: duration, ExitCode: exitCode(cmd, runErr)}
	if inv.LogPath == "" {
		result.Output = tail(captured.Bytes(), maxCapturedOutput)
	}

	if runErr == nil {
		r.observe(inv.Name, "success", duration)
		log.Debug("Command finished", logger.Duration("duration", duration))
		return result, nil
	}

	switch {
	case ctx.Err() != nil:
		r.observe(inv.Name, "cancelled", duration)
		return result, errors.New(fmt.Errorf("%s interrupted: %w", inv.Name, ctx.Err())).
			Component("toolrunner").
			Category(errors.CategoryCancellation).
			Context("tool", inv.Name).
			Build()

	case runCtx.Err() != nil:
		r.observe(inv.Name, "timeout", duration)
		return result, errors.New(fmt.Errorf("%w: %s after %s", ErrToolTimeout, inv.Name, r.Timeout)).
			Component("toolrunner").
			Category(errors.CategoryTimeout).
			Timing("tool_run", duration).
			Context("tool", inv.Name).
			Build()

	default:
		r.observe(inv.Name, "failed", duration)
		msg := fmt.Errorf("%w: %s exited with status %d: %w", ErrToolFailed, inv.Name, result.ExitCode, runErr)
		if len(result.Output) > 0 {
			msg = fmt.Errorf("%w, output: %s", msg, strings.TrimSpace(string(result.Output)))
		}
		b := errors.New(msg).
			Component("toolrunner").
			Category(errors.CategoryCommandExecution).
			ToolContext(inv.Name, result.ExitCode)
		if inv.LogPath != "" {
			b = b.Context("log_path", inv.LogPath)
		}
		return result, b.Build()
	}
}

func (r *ExecRunner) observe(tool, status string, d time.Duration) {
	if r.Observer != nil {
		r.Observer.RecordToolInvocation(tool, status, d)
	}
}

func exitCode(cmd *exec.Cmd, err error) int {
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	if err != nil || cmd.ProcessState == nil {
		return -1
	}
	return cmd.ProcessState.ExitCode()
}

func tail(b []byte, n int) []byte {
	if len(b) <= n {
		return slices.Clone(b)
	}
	return slices.Clone(b[len(b)-n:])
}
