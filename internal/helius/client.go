// Package helius talks to the upstream webhook provider's REST API.
package helius

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/webhook-indexer/internal/config"
	"github.com/webhook-indexer/internal/errors"
	"github.com/webhook-indexer/internal/types"
)

// WebhookConfig is the provider-side watch configuration for one
// subscription.
type WebhookConfig struct {
	WebhookID        string   `json:"webhookID,omitempty"`
	TransactionTypes []string `json:"transactionTypes"`
	AccountAddresses []string `json:"accountAddresses"`
}

// Client edits webhook subscriptions. Two independent credential sets exist,
// selected by cluster.
type Client struct {
	baseURL string
	mainnet config.HeliusClusterConfig
	devnet  config.HeliusClusterConfig
	client  *http.Client
}

// NewClient creates a new provider client
func NewClient(cfg *config.HeliusConfig) *Client {
	return &Client{
		baseURL: cfg.BaseURL,
		mainnet: cfg.Mainnet,
		devnet:  cfg.Devnet,
		client:  &http.Client{Timeout: cfg.Timeout},
	}
}

func (c *Client) credentials(cluster types.Cluster) config.HeliusClusterConfig {
	if cluster == types.ClusterDevnet {
		return c.devnet
	}
	return c.mainnet
}

func (c *Client) endpoint(creds config.HeliusClusterConfig) string {
	return fmt.Sprintf("%s/%s?api-key=%s", c.baseURL, creds.WebhookID, url.QueryEscape(creds.APIKey))
}

// GetWebhook reads the current provider-side watch configuration for the
// cluster's subscription.
func (c *Client) GetWebhook(ctx context.Context, cluster types.Cluster) (*WebhookConfig, error) {
	creds := c.credentials(cluster)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint(creds), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build webhook request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, errors.NewTransientError("webhook read failed", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.NewTransientError("failed to read webhook response", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, errors.NewProviderRejectedError(resp.StatusCode, string(body))
	}

	var webhook WebhookConfig
	if err := json.Unmarshal(body, &webhook); err != nil {
		return nil, fmt.Errorf("failed to parse webhook response: %w", err)
	}

	return &webhook, nil
}

// EditWebhook replaces the provider-side watch configuration for the
// cluster's subscription. A non-success status is a rejection; the caller
// must leave local state untouched.
func (c *Client) EditWebhook(ctx context.Context, cluster types.Cluster, webhook *WebhookConfig) error {
	creds := c.credentials(cluster)

	payload, err := json.Marshal(webhook)
	if err != nil {
		return fmt.Errorf("failed to marshal webhook config: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, c.endpoint(creds), bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to build webhook request: %w", err)
	}
	req.Header.Set("Authorization", creds.AuthSecret)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return errors.NewTransientError("webhook update failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		return errors.NewProviderRejectedError(resp.StatusCode, string(body))
	}

	return nil
}
