package ai

import (
	"context"
	"fmt"
	"net/http"
	"testing"
)

const catalogJSON = `{"data":[
  {"id":"openai/gpt-4o","name":"GPT-4o","context_length":128000,"pricing":{"prompt":"0.0000025","completion":"0.00001"}},
  {"id":"deepseek/deepseek-r1:free","name":"R1 (free)","pricing":{"prompt":"0.0000001","completion":"0.0000001"}},
  {"id":"anthropic/claude-3-haiku","name":"Haiku","pricing":{"prompt":"0","completion":"0"}},
  {"id":"cohere/command","name":"Command"},
  {"id":"x/nulls","name":"Nulls","pricing":{"prompt":null,"completion":null}},
  {"id":"x/half","name":"Half","pricing":{"prompt":"0","completion":"0.00002"}},
  {"id":"  ","name":"blank"}
]}`

func TestListModels(t *testing.T) {
	var auth string
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/models" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		auth = r.Header.Get("Authorization")
		fmt.Fprint(w, catalogJSON)
	})

	models, err := p.ListModels(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if auth != "Bearer sk-or-test" {
		t.Errorf("expected auth header, got %q", auth)
	}
	if len(models) != 6 {
		t.Fatalf("expected 6 models (blank id skipped), got %d", len(models))
	}
	for i := 1; i < len(models); i++ {
		if models[i-1].ID > models[i].ID {
			t.Errorf("models not sorted: %s > %s", models[i-1].ID, models[i].ID)
		}
	}

	free := map[string]bool{}
	for _, m := range models {
		free[m.ID] = m.Free
	}
	want := map[string]bool{
		"openai/gpt-4o":             false,
		"deepseek/deepseek-r1:free": true,
		"anthropic/claude-3-haiku":  true,
		"cohere/command":            true,
		"x/nulls":                   true,
		"x/half":                    false,
	}
	for id, w := range want {
		if free[id] != w {
			t.Errorf("%s: free=%v, want %v", id, free[id], w)
		}
	}
}

func TestListModels_Error(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		fmt.Fprint(w, `{"error":{"code":429,"message":"slow down"}}`)
	})
	if _, err := p.ListModels(context.Background()); err == nil {
		t.Fatal("expected error")
	}
}

func TestIsFreeByName(t *testing.T) {
	tests := map[string]bool{
		"openrouter/auto":                     true,
		"google/gemma-2-9b-it":                true,
		"meta-llama/Llama-3-8b":               true,
		"mistralai/Mixtral-8x7b":              true,
		"qwen/qwen-2-7b":                      true,
		"microsoft/phi-3-mini":                true,
		"huggingface/SmolLM-135M":             true,
		"teknium/OpenHermes-2.5":              true,
		"openai/gpt-4o":                       false,
		"anthropic/claude-3.5-sonnet":         false,
		"deepseek/deepseek-chat-v3-0324:free": true,
	}
	for id, want := range tests {
		if got := IsFreeByName(id); got != want {
			t.Errorf("IsFreeByName(%q) = %v, want %v", id, got, want)
		}
	}
}

func TestFilterModels(t *testing.T) {
	models := []Model{
		{ID: "anthropic/claude-3-haiku"},
		{ID: "google/gemma-2-9b-it", Free: true},
		{ID: "meta-llama/llama-3-8b", Free: true},
		{ID: "openai/gpt-4o"},
	}

	if got := FilterModels(models, "", false); len(got) != 4 {
		t.Errorf("empty query should keep all, got %d", len(got))
	}
	if got := FilterModels(models, "", true); len(got) != 2 {
		t.Errorf("expected 2 free models, got %d", len(got))
	}
	got := FilterModels(models, "  LLAMA ", false)
	if len(got) != 1 || got[0].ID != "meta-llama/llama-3-8b" {
		t.Errorf("unexpected filter result: %+v", got)
	}
	if got := FilterModels(models, "gpt", true); len(got) != 0 {
		t.Errorf("gpt-4o is not free, got %+v", got)
	}
}
