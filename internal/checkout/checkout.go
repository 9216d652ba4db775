// Package checkout fetches exactly one commit into an empty directory over
// an authenticated transport.
package checkout

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"gfc/internal/runner"
)

// Git invocations never see the host environment. PATH is restricted to the
// standard tool directories and prompting is disabled so a misconfigured
// remote fails instead of hanging.
const restrictedPath = "PATH=/usr/local/bin:/usr/bin:/bin"

// Checkout performs single-commit fetches.
type Checkout struct {
	Runner runner.Runner
	SSH    *SSHMaterial
	Logger *slog.Logger

	// Secrets are redacted from any logged process output.
	Secrets []string
}

// Fetch initializes a repository in dir, adds url as its sole remote, fetches
// exactly the commit sha at depth one, and checks it out into the working
// tree.
//
// Fetching by SHA requires the remote to allow arbitrary reachable commits
// (uploadpack.allowReachableSHA1InWant or equivalent); that is a documented
// server-side precondition, not verified here.
//
// home is the isolated HOME for the git processes. Any missing argument or
// non-zero exit aborts the whole build.
func (c *Checkout) Fetch(ctx context.Context, dir, home, url, sha string) error {
	if dir == "" {
		return errors.New("checkout: working directory is required")
	}
	if home == "" {
		return errors.New("checkout: isolated home directory is required")
	}
	if url == "" {
		return errors.New("checkout: repository URL is required")
	}
	if sha == "" {
		return errors.New("checkout: commit SHA is required")
	}

	steps := []struct {
		name string
		argv []string
	}{
		{"init", []string{"git", "init", "--quiet"}},
		{"remote_add", []string{"git", "remote", "add", "origin", url}},
		{"fetch", []string{"git", "fetch", "--quiet", "--depth", "1", "origin", sha}},
		{"checkout", []string{"git", "checkout", "--quiet", "FETCH_HEAD"}},
	}

	env := c.gitEnv(home)
	for _, step := range steps {
		result, err := c.Runner.Run(ctx, runner.Spec{Argv: step.argv, Dir: dir, Env: env})
		if err != nil || !result.OK() {
			if result == nil {
				result = &runner.Result{ExitCode: -1}
			}
			// Process output may carry credentials: redact it, log it, and
			// keep it out of the returned error entirely.
			c.Logger.Error("checkout step failed",
				"step", step.name,
				"exit_code", result.ExitCode,
				"stdout", string(runner.Redact(result.Stdout, c.Secrets)),
				"stderr", string(runner.Redact(result.Stderr, c.Secrets)))
			return fmt.Errorf("checkout: git %s exited with code %d", step.name, result.ExitCode)
		}
	}

	return nil
}

// gitEnv builds the minimal environment for a git invocation: isolated HOME,
// restricted PATH, no interactive prompts, no global or system git config,
// and an ssh command pinned to the configured identity and known hosts.
func (c *Checkout) gitEnv(home string) []string {
	env := []string{
		restrictedPath,
		"HOME=" + home,
		"GIT_TERMINAL_PROMPT=0",
		"GIT_CONFIG_GLOBAL=/dev/null",
		"GIT_CONFIG_SYSTEM=/dev/null",
	}
	if sshCmd := c.SSH.GitSSHCommand(); sshCmd != "" {
		env = append(env, "GIT_SSH_COMMAND="+sshCmd)
	}
	return env
}
