// Package config loads the process configuration from the environment, once,
// at startup.
package config

import (
	"encoding/base64"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/spf13/viper"

	"gfc/internal/runner"
	"gfc/internal/security"
)

// envPrefix is prepended to every recognized variable: GFC_PORT and so on.
const envPrefix = "GFC"

// Config is the validated, immutable process configuration.
type Config struct {
	// Port is the HTTP listening port.
	Port int

	// RepoPattern is the repository allow-pattern, compiled for a
	// whole-string match.
	RepoPattern *regexp.Regexp

	// UseSSH selects repository.ssh_url over repository.clone_url.
	UseSSH bool

	// DeployRef is the single ref that triggers builds.
	DeployRef string

	// RepoConfigName is the per-repository config file name.
	RepoConfigName string

	// WebhookSecret is the shared HMAC secret. Required outside dev mode.
	WebhookSecret string

	// SSHKey is the decoded private key material, may be empty.
	SSHKey []byte

	// SSHFingerprint is informational only, echoed at startup.
	SSHFingerprint string

	// KnownHosts is the decoded pinned host-key material, may be empty.
	KnownHosts []byte

	// DeployToken is handed to the deploy command. May be empty.
	DeployToken string

	// DeployCommand is the parsed deploy command argv.
	DeployCommand []string

	// MaxBuilds caps concurrent builds.
	MaxBuilds int

	NoDeploy     bool
	DetachDeploy bool

	LogLevel slog.Level

	// DevMode bypasses signature authentication. It can only be enabled
	// through this explicit startup flag and is loudly logged by the server.
	DevMode bool
}

// Option documents one recognized environment variable for `gfc env`.
type Option struct {
	Env         string
	Default     string
	Description string
}

// Options lists every recognized variable, in display order.
func Options() []Option {
	return []Option{
		{"GFC_PORT", "8080", "HTTP listening port"},
		{"GFC_REPO_PATTERN", ".*", "regular expression a repository URL must fully match"},
		{"GFC_USE_SSH", "true", "consume repository.ssh_url (true) or repository.clone_url (false)"},
		{"GFC_DEPLOY_REF", "refs/heads/main", "the single ref that triggers a build"},
		{"GFC_REPO_CONFIG", "gfc.yaml", "per-repository config file name in the checked-out tree"},
		{"GFC_WEBHOOK_SECRET", "", "shared webhook HMAC secret, required outside dev mode"},
		{"GFC_SSH_KEY", "", "base64-encoded SSH private key for fetching"},
		{"GFC_SSH_FINGERPRINT", "", "informational fingerprint of the SSH key"},
		{"GFC_KNOWN_HOSTS", "", "base64-encoded pinned known_hosts used as the sole trust source"},
		{"GFC_DEPLOY_TOKEN", "", "token handed to the deploy command as DEPLOY_TOKEN"},
		{"GFC_DEPLOY_COMMAND", "", "deploy command line, required unless GFC_NO_DEPLOY"},
		{"GFC_MAX_BUILDS", "2", "maximum concurrent builds"},
		{"GFC_NO_DEPLOY", "false", "check out but skip the deploy step"},
		{"GFC_DETACH_DEPLOY", "false", "launch the deploy command without waiting for it"},
		{"GFC_LOG_LEVEL", "info", "minimum log severity: debug, info, warn, error"},
		{"GFC_DEV_MODE", "false", "bypass signature authentication, local testing only"},
	}
}

// Load reads and validates the configuration. Invalid required fields fail
// fast with a descriptive error.
func Load() (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.AutomaticEnv()

	v.SetDefault("port", 8080)
	v.SetDefault("repo_pattern", ".*")
	v.SetDefault("use_ssh", true)
	v.SetDefault("deploy_ref", "refs/heads/main")
	v.SetDefault("repo_config", "gfc.yaml")
	v.SetDefault("webhook_secret", "")
	v.SetDefault("ssh_key", "")
	v.SetDefault("ssh_fingerprint", "")
	v.SetDefault("known_hosts", "")
	v.SetDefault("deploy_token", "")
	v.SetDefault("deploy_command", "")
	v.SetDefault("max_builds", 2)
	v.SetDefault("no_deploy", false)
	v.SetDefault("detach_deploy", false)
	v.SetDefault("log_level", "info")
	v.SetDefault("dev_mode", false)

	cfg := &Config{
		Port:           v.GetInt("port"),
		UseSSH:         v.GetBool("use_ssh"),
		DeployRef:      v.GetString("deploy_ref"),
		RepoConfigName: v.GetString("repo_config"),
		WebhookSecret:  v.GetString("webhook_secret"),
		SSHFingerprint: v.GetString("ssh_fingerprint"),
		DeployToken:    v.GetString("deploy_token"),
		MaxBuilds:      v.GetInt("max_builds"),
		NoDeploy:       v.GetBool("no_deploy"),
		DetachDeploy:   v.GetBool("detach_deploy"),
		DevMode:        v.GetBool("dev_mode"),
	}

	if cfg.Port < 1 || cfg.Port > 65535 {
		return nil, fmt.Errorf("GFC_PORT must be between 1 and 65535, got %d", cfg.Port)
	}
	if cfg.MaxBuilds < 1 {
		return nil, fmt.Errorf("GFC_MAX_BUILDS must be at least 1, got %d", cfg.MaxBuilds)
	}

	pattern := v.GetString("repo_pattern")
	re, err := regexp.Compile(`\A(?:` + pattern + `)\z`)
	if err != nil {
		return nil, fmt.Errorf("GFC_REPO_PATTERN is not a valid regular expression: %w", err)
	}
	cfg.RepoPattern = re

	if cfg.SSHKey, err = decodeBase64("GFC_SSH_KEY", v.GetString("ssh_key")); err != nil {
		return nil, err
	}
	if cfg.KnownHosts, err = decodeBase64("GFC_KNOWN_HOSTS", v.GetString("known_hosts")); err != nil {
		return nil, err
	}

	if cfg.LogLevel, err = parseLevel(v.GetString("log_level")); err != nil {
		return nil, err
	}

	if cfg.WebhookSecret == "" {
		if !cfg.DevMode {
			return nil, fmt.Errorf("GFC_WEBHOOK_SECRET is required unless GFC_DEV_MODE is set")
		}
	} else if err := security.ValidateSecret(cfg.WebhookSecret); err != nil {
		return nil, fmt.Errorf("GFC_WEBHOOK_SECRET: %w", err)
	}

	if deployCmd := v.GetString("deploy_command"); deployCmd != "" {
		if cfg.DeployCommand, err = runner.ParseCommand(deployCmd); err != nil {
			return nil, fmt.Errorf("GFC_DEPLOY_COMMAND: %w", err)
		}
	} else if !cfg.NoDeploy {
		return nil, fmt.Errorf("GFC_DEPLOY_COMMAND is required unless GFC_NO_DEPLOY is set")
	}

	return cfg, nil
}

// Secrets returns the values that must never appear in logged process
// output.
func (c *Config) Secrets() []string {
	var secrets []string
	for _, s := range []string{c.WebhookSecret, c.DeployToken, string(c.SSHKey)} {
		if s != "" {
			secrets = append(secrets, s)
		}
	}
	return secrets
}

func decodeBase64(name, value string) ([]byte, error) {
	if value == "" {
		return nil, nil
	}
	decoded, err := base64.StdEncoding.DecodeString(strings.TrimSpace(value))
	if err != nil {
		return nil, fmt.Errorf("%s is not valid base64: %w", name, err)
	}
	return decoded, nil
}

func parseLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("GFC_LOG_LEVEL must be one of debug, info, warn, error; got %q", level)
	}
}
