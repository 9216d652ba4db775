package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"gfc/internal/admission"
	"gfc/internal/build"
	"gfc/internal/checkout"
	"gfc/internal/config"
	"gfc/internal/deploy"
	"gfc/internal/journal"
	"gfc/internal/runner"
	"gfc/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the webhook dispatcher",
	Long: `Start the HTTP server that receives push webhooks and dispatches builds.

All configuration is read from GFC_* environment variables, once, at startup;
run "gfc env" for the full list.`,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}))

	ssh, err := checkout.WriteSSHMaterial(cfg.SSHKey, cfg.KnownHosts)
	if err != nil {
		return fmt.Errorf("writing ssh material: %w", err)
	}
	defer ssh.Cleanup()

	if cfg.SSHFingerprint != "" {
		logger.Info("using ssh key", "fingerprint", cfg.SSHFingerprint)
	}

	j, err := journal.Open()
	if err != nil {
		return fmt.Errorf("opening build journal: %w", err)
	}

	secrets := cfg.Secrets()
	exec := runner.ExecRunner{}
	builder := &build.Builder{
		Checkout: &checkout.Checkout{
			Runner:  exec,
			SSH:     ssh,
			Logger:  logger,
			Secrets: secrets,
		},
		Deployer: &deploy.Deployer{
			Argv:     cfg.DeployCommand,
			Token:    cfg.DeployToken,
			Disabled: cfg.NoDeploy,
			Detach:   cfg.DetachDeploy,
			Runner:   exec,
			Logger:   logger,
			Secrets:  secrets,
		},
		ConfigFileName: cfg.RepoConfigName,
		Logger:         logger,
	}

	srv := server.New(cfg, builder, j, admission.NewGate(cfg.MaxBuilds), logger)
	defer srv.Close()

	logger.Info("starting gfc",
		"port", cfg.Port,
		"deploy_ref", cfg.DeployRef,
		"max_builds", cfg.MaxBuilds,
		"use_ssh", cfg.UseSSH,
		"no_deploy", cfg.NoDeploy,
		"detach_deploy", cfg.DetachDeploy)

	if err := srv.Start(cfg.Port); err != nil {
		return fmt.Errorf("server failed: %w", err)
	}
	return nil
}
