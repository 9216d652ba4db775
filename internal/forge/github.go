// Package forge automates webhook and deploy-key registration on
// GitHub-hosted repositories.
package forge

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/go-github/v57/github"
	"golang.org/x/oauth2"
)

// Client wraps an authenticated GitHub API client.
type Client struct {
	gh *github.Client
}

// NewClient builds a client from a personal access token.
func NewClient(ctx context.Context, token string) (*Client, error) {
	if token == "" {
		return nil, fmt.Errorf("a GitHub token is required")
	}
	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
	return &Client{gh: github.NewClient(oauth2.NewClient(ctx, ts))}, nil
}

func splitOwnerRepo(ownerRepo string) (string, string, error) {
	parts := strings.Split(ownerRepo, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid owner/repo: %q", ownerRepo)
	}
	return parts[0], parts[1], nil
}

// EnsureWebhook creates a push webhook pointing at hookURL, signed with
// secret, unless one for that URL already exists.
func (c *Client) EnsureWebhook(ctx context.Context, ownerRepo, hookURL, secret string) error {
	owner, repo, err := splitOwnerRepo(ownerRepo)
	if err != nil {
		return err
	}

	hooks, _, err := c.gh.Repositories.ListHooks(ctx, owner, repo, nil)
	if err != nil {
		return fmt.Errorf("listing webhooks: %w", err)
	}
	for _, hook := range hooks {
		if hook.Config == nil {
			continue
		}
		if url, ok := hook.Config["url"].(string); ok && url == hookURL {
			return nil
		}
	}

	hook := &github.Hook{
		Events: []string{"push"},
		Active: github.Bool(true),
		Config: map[string]interface{}{
			"url":          hookURL,
			"content_type": "json",
			"secret":       secret,
			"insecure_ssl": "0",
		},
	}
	if _, _, err := c.gh.Repositories.CreateHook(ctx, owner, repo, hook); err != nil {
		return fmt.Errorf("creating webhook: %w", err)
	}
	return nil
}

// EnsureDeployKey uploads a read-only deploy key unless the same public key
// is already present.
func (c *Client) EnsureDeployKey(ctx context.Context, ownerRepo, title, publicKey string) error {
	owner, repo, err := splitOwnerRepo(ownerRepo)
	if err != nil {
		return err
	}

	publicKey = strings.TrimSpace(publicKey)

	keys, _, err := c.gh.Repositories.ListKeys(ctx, owner, repo, nil)
	if err != nil {
		return fmt.Errorf("listing deploy keys: %w", err)
	}
	for _, key := range keys {
		if key.Key != nil && strings.TrimSpace(*key.Key) == publicKey {
			return nil
		}
	}

	keyReq := &github.Key{
		Title:    github.String(title),
		Key:      github.String(publicKey),
		ReadOnly: github.Bool(true),
	}
	if _, _, err := c.gh.Repositories.CreateKey(ctx, owner, repo, keyReq); err != nil {
		// The API rejects a key that is in use elsewhere; treat as present.
		if strings.Contains(err.Error(), "key is already in use") {
			return nil
		}
		return fmt.Errorf("creating deploy key: %w", err)
	}
	return nil
}
