package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
)

// freeNameHints are substrings that mark a model as free when the API
// does not report pricing.
var freeNameHints = []string{
	"openrouter/auto", "free", "gemma", "mistral", "llama", "qwen",
	"mixtral", "openhermes", "phi-3", "smollm",
}

// Model is one entry of the model catalog.
type Model struct {
	ID            string
	Name          string
	ContextLength int
	Free          bool
}

// ListModels fetches the model catalog, sorted by ID. The API key is
// sent when configured but is not required.
func (o *OpenRouterProvider) ListModels(ctx context.Context) ([]Model, error) {
	ctx, cancel := context.WithTimeout(ctx, modelsTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, o.baseURL+"/models", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	o.setHeaders(req)

	resp, err := o.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("could not reach %s: %w", o.baseURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, newAPIError(resp.StatusCode, resp.Status, data)
	}

	var body modelsResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("failed to parse models: %w", err)
	}

	models := make([]Model, 0, len(body.Data))
	for _, d := range body.Data {
		if strings.TrimSpace(d.ID) == "" {
			continue
		}
		free := IsFreeByName(d.ID)
		if !free {
			if d.Pricing == nil {
				free = true
			} else {
				free = isZeroPrice(d.Pricing.Prompt) && isZeroPrice(d.Pricing.Completion)
			}
		}
		models = append(models, Model{
			ID:            d.ID,
			Name:          d.Name,
			ContextLength: d.ContextLength,
			Free:          free,
		})
	}
	sort.Slice(models, func(i, j int) bool { return models[i].ID < models[j].ID })

	o.logger.Debug("models loaded", "count", len(models))
	return models, nil
}

// isZeroPrice treats an absent, null or "0" price as free.
func isZeroPrice(raw json.RawMessage) bool {
	if len(raw) == 0 || string(raw) == "null" {
		return true
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return false
	}
	return strings.TrimSpace(s) == "0"
}

// IsFreeByName applies the name heuristic used when pricing is missing or
// misleading.
func IsFreeByName(id string) bool {
	lower := strings.ToLower(id)
	for _, hint := range freeNameHints {
		if strings.Contains(lower, hint) {
			return true
		}
	}
	return false
}

// FilterModels returns the models whose ID contains query
// (case-insensitive), optionally restricted to free ones. Order is kept.
func FilterModels(models []Model, query string, freeOnly bool) []Model {
	q := strings.ToLower(strings.TrimSpace(query))
	var out []Model
	for _, m := range models {
		if freeOnly && !m.Free {
			continue
		}
		if q != "" && !strings.Contains(strings.ToLower(m.ID), q) {
			continue
		}
		out = append(out, m)
	}
	return out
}
