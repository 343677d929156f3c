package vault

import (
	"context"
	"errors"
	"fmt"

	"github.com/hashicorp/vault/api"
	"github.com/pwannenmacher/ConfReview/internal/config"
)

var ErrSecretNotFound = errors.New("secret not found in vault")

// Client wraps the HashiCorp Vault API for reading KV v2 secrets
type Client struct {
	client *api.Client
	mount  string
	path   string
	key    string
}

// NewClient creates a new Vault client
func NewClient(cfg *config.VaultConfig) (*Client, error) {
	apiCfg := api.DefaultConfig()
	apiCfg.Address = cfg.Address
	if cfg.Timeout > 0 {
		apiCfg.Timeout = cfg.Timeout
	}

	client, err := api.NewClient(apiCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create vault client: %w", err)
	}

	client.SetToken(cfg.Token)

	return &Client{
		client: client,
		mount:  cfg.Mount,
		path:   cfg.Path,
		key:    cfg.SecretKey,
	}, nil
}

// JWTSecret reads the token signing secret from the configured KV v2 path
func (c *Client) JWTSecret(ctx context.Context) (string, error) {
	secret, err := c.client.KVv2(c.mount).Get(ctx, c.path)
	if err != nil {
		if errors.Is(err, api.ErrSecretNotFound) {
			return "", fmt.Errorf("%s/%s: %w", c.mount, c.path, ErrSecretNotFound)
		}
		return "", fmt.Errorf("failed to read %s/%s: %w", c.mount, c.path, err)
	}

	value, ok := secret.Data[c.key].(string)
	if !ok || value == "" {
		return "", fmt.Errorf("%s/%s key %q: %w", c.mount, c.path, c.key, ErrSecretNotFound)
	}
	return value, nil
}

// StoreJWTSecret writes the token signing secret, used to bootstrap a fresh vault
func (c *Client) StoreJWTSecret(ctx context.Context, value string) error {
	_, err := c.client.KVv2(c.mount).Put(ctx, c.path, map[string]interface{}{c.key: value})
	if err != nil {
		return fmt.Errorf("failed to write %s/%s: %w", c.mount, c.path, err)
	}
	return nil
}

// ResolveJWTSecret fills cfg.JWT.Secret from vault when vault is enabled.
// With vault disabled the environment value is kept.
func ResolveJWTSecret(ctx context.Context, cfg *config.Config) error {
	if !cfg.Vault.Enabled {
		return nil
	}

	client, err := NewClient(&cfg.Vault)
	if err != nil {
		return err
	}

	secret, err := client.JWTSecret(ctx)
	if err != nil {
		return err
	}
	cfg.JWT.Secret = secret
	return nil
}
