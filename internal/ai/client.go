// Package ai handles communication with OpenRouter-compatible chat
// completion APIs: request construction, the streaming protocol and the
// model catalog.
package ai

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/batu-chat/batu/internal/config"
)

// ErrNoCatalog is returned by Models when the provider cannot list models.
var ErrNoCatalog = errors.New("provider does not expose a model catalog")

// Client builds chat requests and hands them to a provider.
type Client struct {
	provider StreamingProvider
}

// NewClient creates a client that talks to the endpoint in cfg over
// httpClient (nil for a default client).
func NewClient(cfg *config.Config, httpClient *http.Client, logger *slog.Logger) *Client {
	return NewClientWithProvider(NewOpenRouterProvider(Options{
		APIKey:     cfg.APIKey,
		BaseURL:    cfg.BaseURL,
		SiteURL:    cfg.SiteURL,
		SiteName:   cfg.SiteName,
		HTTPClient: httpClient,
		Logger:     logger,
	}))
}

// NewClientWithProvider creates a client backed by an arbitrary provider.
func NewClientWithProvider(p StreamingProvider) *Client {
	return &Client{provider: p}
}

// ChatStream sends prompt with the trailing window of history as context
// and streams the reply. See StreamingProvider for the channel contract.
func (c *Client) ChatStream(ctx context.Context, model string, history []Message, prompt string) <-chan StreamDelta {
	return c.provider.CompleteStream(ctx, BuildRequest(model, history, prompt))
}

// Models returns the provider's model catalog.
func (c *Client) Models(ctx context.Context) ([]Model, error) {
	lister, ok := c.provider.(ModelLister)
	if !ok {
		return nil, ErrNoCatalog
	}
	return lister.ListModels(ctx)
}
