package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

const (
	defaultBaseURL = "https://openrouter.ai/api/v1"
	modelsTimeout  = 30 * time.Second
	maxErrorBody   = 64 * 1024
)

// Options configures an OpenRouterProvider.
type Options struct {
	APIKey  string
	BaseURL string
	// SiteURL and SiteName are sent as HTTP-Referer and X-Title for
	// OpenRouter's app attribution.
	SiteURL  string
	SiteName string
	// HTTPClient defaults to a client without an overall timeout;
	// streams are bounded by their context instead.
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// OpenRouterProvider implements StreamingProvider and ModelLister for the
// OpenRouter API or any compatible endpoint.
type OpenRouterProvider struct {
	apiKey     string
	baseURL    string
	siteURL    string
	siteName   string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewOpenRouterProvider creates a provider from opts.
func NewOpenRouterProvider(opts Options) *OpenRouterProvider {
	baseURL := strings.TrimSuffix(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &OpenRouterProvider{
		apiKey:     strings.TrimSpace(opts.APIKey),
		baseURL:    baseURL,
		siteURL:    opts.SiteURL,
		siteName:   opts.SiteName,
		httpClient: httpClient,
		logger:     logger.With("component", "openrouter"),
	}
}

// IsConfigured reports whether an API key is set.
func (o *OpenRouterProvider) IsConfigured() bool {
	return o.apiKey != ""
}

// BaseURL returns the API root requests are sent to.
func (o *OpenRouterProvider) BaseURL() string {
	return o.baseURL
}

func (o *OpenRouterProvider) setHeaders(req *http.Request) {
	if o.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+o.apiKey)
	}
	if o.siteURL != "" {
		req.Header.Set("HTTP-Referer", o.siteURL)
	}
	if o.siteName != "" {
		req.Header.Set("X-Title", o.siteName)
	}
}

// CompleteStream posts req to /chat/completions and streams the reply.
func (o *OpenRouterProvider) CompleteStream(ctx context.Context, req ChatRequest) <-chan StreamDelta {
	ch := make(chan StreamDelta)
	go func() {
		defer close(ch)
		start := time.Now()
		state, err := o.stream(ctx, req, ch)
		if err != nil {
			o.logger.Warn("stream failed", "model", req.Model, "error", err)
		} else {
			o.logger.Debug("stream finished", "model", req.Model, "state", state, "elapsed", time.Since(start))
		}
		ch <- StreamDelta{Done: true, State: state, Err: err}
	}()
	return ch
}

// stream drives Connecting -> Streaming -> terminal and returns the
// terminal state.
func (o *OpenRouterProvider) stream(ctx context.Context, req ChatRequest, ch chan<- StreamDelta) (State, error) {
	if !o.IsConfigured() {
		return StateFailed, ErrNotConfigured
	}

	body, err := json.Marshal(req)
	if err != nil {
		return StateFailed, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return StateFailed, fmt.Errorf("failed to create request: %w", err)
	}
	o.setHeaders(httpReq)
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")

	o.logger.Debug("opening stream", "model", req.Model, "messages", len(req.Messages))
	resp, err := o.httpClient.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return StateCancelled, nil
		}
		return StateFailed, fmt.Errorf("could not reach %s: %w", o.baseURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return StateFailed, newAPIError(resp.StatusCode, resp.Status, data)
	}
	if resp.Body == http.NoBody || resp.ContentLength == 0 {
		return StateFailed, ErrEmptyBody
	}

	select {
	case ch <- StreamDelta{State: StateStreaming}:
	case <-ctx.Done():
		return StateCancelled, nil
	}

	return Consume(ctx, resp.Body, ch)
}
