// Package deploy invokes the external deployment command against a
// checked-out tree.
package deploy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"gfc/internal/runner"
)

// Deploy processes run with a restricted PATH so ambient host tooling and
// credentials are not reachable.
const restrictedPath = "PATH=/usr/local/bin:/usr/bin:/bin"

// Disposition says what the deployer actually did.
type Disposition int

const (
	// Ran means the deploy command executed and exited zero.
	Ran Disposition = iota

	// Skipped means deploys are administratively disabled; nothing ran and
	// the build still counts as a success. This mode exists to validate the
	// checkout and filter pipeline without mutating the target system.
	Skipped

	// Detached means the deploy command was launched without waiting.
	// The caller never learns the result and the admission slot does not
	// cover the detached phase; that tradeoff buys immunity to
	// request-timeout failures on long deploys.
	Detached
)

// Deployer runs the configured deployment command.
type Deployer struct {
	// Argv is the parsed deploy command. Required unless Disabled.
	Argv []string

	// Token is handed to the command as DEPLOY_TOKEN. Never logged.
	Token string

	Disabled bool
	Detach   bool

	Runner runner.Runner
	Logger *slog.Logger

	// Secrets are redacted from any logged process output.
	Secrets []string

	detached sync.WaitGroup
}

// Run deploys the tree in dir. home is the isolated HOME for the process;
// cleanup removes the build workspace and, in detach mode, ownership of it
// passes to the supervisor goroutine that waits out the detached process.
func (d *Deployer) Run(ctx context.Context, dir, home string, cleanup func()) (Disposition, error) {
	if d.Disabled {
		d.Logger.Info("deploy disabled, skipping", "dir", dir)
		return Skipped, nil
	}
	if len(d.Argv) == 0 {
		return Ran, errors.New("deploy: no deploy command configured")
	}

	spec := runner.Spec{
		Argv: d.Argv,
		Dir:  dir,
		Env:  d.deployEnv(home),
	}

	if d.Detach {
		// Detached processes must outlive the request that admitted them,
		// so they are not tied to the caller's context.
		handle, err := d.Runner.Start(context.Background(), spec)
		if err != nil {
			return Detached, fmt.Errorf("deploy: starting detached command: %w", err)
		}
		d.Logger.Info("deploy detached", "dir", dir)

		d.detached.Add(1)
		go func() {
			defer d.detached.Done()
			defer cleanup()
			result, err := handle.Wait()
			d.logResult(result, err)
		}()
		return Detached, nil
	}

	result, err := d.Runner.Run(ctx, spec)
	if err != nil || !result.OK() {
		if result == nil {
			result = &runner.Result{ExitCode: -1}
		}
		d.Logger.Error("deploy command failed",
			"exit_code", result.ExitCode,
			"stdout", string(runner.Redact(result.Stdout, d.Secrets)),
			"stderr", string(runner.Redact(result.Stderr, d.Secrets)))
		return Ran, fmt.Errorf("deploy: command exited with code %d", result.ExitCode)
	}

	d.Logger.Info("deploy succeeded", "duration_ms", result.Duration.Milliseconds())
	return Ran, nil
}

// WaitDetached blocks until all detached deploys have been supervised to
// completion. Used on shutdown and in tests.
func (d *Deployer) WaitDetached() {
	d.detached.Wait()
}

func (d *Deployer) logResult(result *runner.Result, err error) {
	if err != nil || (result != nil && !result.OK()) {
		code := -1
		var stdout, stderr []byte
		if result != nil {
			code = result.ExitCode
			stdout = result.Stdout
			stderr = result.Stderr
		}
		d.Logger.Error("detached deploy failed",
			"exit_code", code,
			"stdout", string(runner.Redact(stdout, d.Secrets)),
			"stderr", string(runner.Redact(stderr, d.Secrets)))
		return
	}
	d.Logger.Info("detached deploy finished", "duration_ms", result.Duration.Milliseconds())
}

// deployEnv is the minimal, explicitly constructed environment for the
// deploy command. The host environment is never inherited.
func (d *Deployer) deployEnv(home string) []string {
	env := []string{
		restrictedPath,
		"HOME=" + home,
	}
	if d.Token != "" {
		env = append(env, "DEPLOY_TOKEN="+d.Token)
	}
	return env
}
