// Package build orchestrates one admitted webhook event: checkout, per-repo
// config inspection, and deploy, inside a disposable working directory.
package build

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"gfc/internal/checkout"
	"gfc/internal/deploy"
	"gfc/internal/event"
	"gfc/internal/repoconfig"
)

// Status classifies the outcome of one build.
type Status int

const (
	Success Status = iota
	CheckoutFailed
	DeployFailed
	SkippedDeploy
	ConfigError
)

// String names the status for logs and the journal.
func (s Status) String() string {
	switch s {
	case Success:
		return "success"
	case CheckoutFailed:
		return "checkout_failed"
	case DeployFailed:
		return "deploy_failed"
	case SkippedDeploy:
		return "skipped_deploy"
	case ConfigError:
		return "config_error"
	default:
		return "unknown"
	}
}

// OK reports whether the status counts as a successful build.
func (s Status) OK() bool {
	return s == Success || s == SkippedDeploy
}

// Outcome is produced exactly once per admitted build and mapped to an HTTP
// response at the server boundary.
type Outcome struct {
	Status  Status
	Message string
}

// Builder sequences the build pipeline.
type Builder struct {
	Checkout       *checkout.Checkout
	Deployer       *deploy.Deployer
	ConfigFileName string
	Logger         *slog.Logger
}

// Run executes checkout, config inspection, and deploy for the event, in
// strict order. The first failure aborts the remaining steps.
//
// The working directory is removed on every exit path. A detached deploy is
// the one exception: removal is deferred to the supervisor goroutine that
// waits out the detached process, never skipped.
func (b *Builder) Run(ctx context.Context, ev *event.Event) Outcome {
	if ev.RepoURL == "" || ev.Commit == "" {
		return Outcome{Status: ConfigError, Message: "build requires a repository URL and a commit SHA"}
	}

	logger := b.Logger.With("repo", ev.RepoURL, "commit", ev.Commit, "delivery", ev.Delivery)

	root, err := os.MkdirTemp("", "gfc-build-")
	if err != nil {
		logger.Error("creating build workspace failed", "error", err)
		return Outcome{Status: ConfigError, Message: "could not allocate build workspace"}
	}

	cleanup := func() { os.RemoveAll(root) }
	detached := false
	defer func() {
		if !detached {
			cleanup()
		}
	}()

	srcDir := filepath.Join(root, "src")
	homeDir := filepath.Join(root, "home")
	for _, dir := range []string{srcDir, homeDir} {
		if err := os.Mkdir(dir, 0o700); err != nil {
			logger.Error("preparing build workspace failed", "error", err)
			return Outcome{Status: ConfigError, Message: "could not allocate build workspace"}
		}
	}

	logger.Info("build started")

	if err := b.Checkout.Fetch(ctx, srcDir, homeDir, ev.RepoURL, ev.Commit); err != nil {
		logger.Error("build failed at checkout", "error", err)
		return Outcome{Status: CheckoutFailed, Message: "checkout failed"}
	}

	repoconfig.Inspect(srcDir, b.ConfigFileName, logger)

	disposition, err := b.Deployer.Run(ctx, srcDir, homeDir, cleanup)
	if err != nil {
		logger.Error("build failed at deploy", "error", err)
		return Outcome{Status: DeployFailed, Message: "deploy failed"}
	}

	switch disposition {
	case deploy.Skipped:
		logger.Info("build finished, deploy skipped")
		return Outcome{Status: SkippedDeploy, Message: fmt.Sprintf("checked out %s, deploy disabled", ev.Commit)}
	case deploy.Detached:
		detached = true
		logger.Info("build finished, deploy detached")
		return Outcome{Status: Success, Message: fmt.Sprintf("deploy of %s detached", ev.Commit)}
	default:
		logger.Info("build finished")
		return Outcome{Status: Success, Message: fmt.Sprintf("deployed %s", ev.Commit)}
	}
}
