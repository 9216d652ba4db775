// Package runner invokes external processes with captured output.
//
// Checkout and deploy both shell out to external tools. Everything that
// spawns a process goes through the Runner interface so tests can substitute
// a fake without touching the host.
package runner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/kballard/go-shellquote"
)

// Spec describes a single process invocation.
//
// Env is the complete environment for the process; the host environment is
// never inherited implicitly. An empty Env means the process runs with no
// environment at all.
type Spec struct {
	Argv []string
	Dir  string
	Env  []string
}

// Result is the structured outcome of a finished process.
type Result struct {
	ExitCode int
	Stdout   []byte
	Stderr   []byte
	Duration time.Duration
}

// OK reports whether the process exited with status zero.
func (r *Result) OK() bool {
	return r.ExitCode == 0
}

// Handle tracks a process that was started without waiting for it.
type Handle interface {
	// Wait blocks until the process exits and returns its result.
	Wait() (*Result, error)
}

// Runner executes external processes.
type Runner interface {
	// Run starts the process and waits for it to finish.
	Run(ctx context.Context, spec Spec) (*Result, error)

	// Start launches the process and returns without waiting. Used by
	// detached deploys, where the caller gives up result visibility.
	Start(ctx context.Context, spec Spec) (Handle, error)
}

// ExecRunner runs processes via os/exec.
type ExecRunner struct{}

// Run executes the spec and waits for completion. A non-zero exit status is
// returned as an error alongside the captured result.
func (ExecRunner) Run(ctx context.Context, spec Spec) (*Result, error) {
	h, err := ExecRunner{}.Start(ctx, spec)
	if err != nil {
		return nil, err
	}
	return h.Wait()
}

// Start launches the spec without waiting.
func (ExecRunner) Start(ctx context.Context, spec Spec) (Handle, error) {
	if len(spec.Argv) == 0 {
		return nil, errors.New("empty command")
	}

	cmd := exec.CommandContext(ctx, spec.Argv[0], spec.Argv[1:]...)
	cmd.Dir = spec.Dir
	cmd.Env = spec.Env

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("starting %s: %w", spec.Argv[0], err)
	}

	return &execHandle{cmd: cmd, stdout: &stdout, stderr: &stderr, started: start}, nil
}

type execHandle struct {
	cmd     *exec.Cmd
	stdout  *bytes.Buffer
	stderr  *bytes.Buffer
	started time.Time
}

func (h *execHandle) Wait() (*Result, error) {
	waitErr := h.cmd.Wait()

	result := &Result{
		Stdout:   h.stdout.Bytes(),
		Stderr:   h.stderr.Bytes(),
		Duration: time.Since(h.started),
	}
	if h.cmd.ProcessState != nil {
		result.ExitCode = h.cmd.ProcessState.ExitCode()
	}

	if waitErr != nil {
		return result, fmt.Errorf("command failed: %w", waitErr)
	}
	return result, nil
}

// ParseCommand splits a shell-quoted command string into argv parts.
//
// Example: `docker compose up -d "my service"` ->
// ["docker", "compose", "up", "-d", "my service"].
func ParseCommand(cmdStr string) ([]string, error) {
	parts, err := shellquote.Split(cmdStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse command string: %w", err)
	}
	if len(parts) == 0 {
		return nil, errors.New("empty command string")
	}
	return parts, nil
}

// FormatCommand renders argv as a readable shell-quoted string for logging.
// Callers must not format commands that carry secret arguments.
func FormatCommand(argv []string) string {
	if len(argv) == 0 {
		return "<empty command>"
	}
	return shellquote.Join(argv...)
}

// Redact replaces every occurrence of the given secrets in output with a
// fixed marker. Process output from checkout and deploy may echo credentials
// and is always redacted before logging.
func Redact(output []byte, secrets []string) []byte {
	redacted := string(output)
	for _, secret := range secrets {
		if secret == "" {
			continue
		}
		redacted = strings.ReplaceAll(redacted, secret, "***REDACTED***")
	}
	return []byte(redacted)
}
