package ai

import (
	"context"
	"fmt"
	"strings"
	"testing"
)

// --- Mock providers ---

// mockStreamProvider emits canned tokens and records the last request.
type mockStreamProvider struct {
	tokens    []string
	streamErr error

	calls   int
	lastReq ChatRequest
}

func (m *mockStreamProvider) CompleteStream(_ context.Context, req ChatRequest) <-chan StreamDelta {
	m.calls++
	m.lastReq = req
	ch := make(chan StreamDelta)
	go func() {
		defer close(ch)
		ch <- StreamDelta{State: StateStreaming}
		for _, tok := range m.tokens {
			ch <- StreamDelta{Token: tok}
		}
		if m.streamErr != nil {
			ch <- StreamDelta{Done: true, State: StateFailed, Err: m.streamErr}
			return
		}
		ch <- StreamDelta{Done: true, State: StateSucceeded}
	}()
	return ch
}

// mockCatalogProvider also implements ModelLister.
type mockCatalogProvider struct {
	mockStreamProvider
	models []Model
}

func (m *mockCatalogProvider) ListModels(context.Context) ([]Model, error) {
	return m.models, nil
}

// collectStream reads all tokens from a stream channel and returns the
// concatenated result and the terminal state.
func collectStream(ch <-chan StreamDelta) (string, State, error) {
	var sb strings.Builder
	state := StateIdle
	var err error
	for delta := range ch {
		sb.WriteString(delta.Token)
		if delta.Done {
			state = delta.State
			err = delta.Err
		}
	}
	return sb.String(), state, err
}

// --- BuildRequest tests ---

func TestBuildRequest_AppendsPrompt(t *testing.T) {
	history := []Message{
		{Role: RoleUser, Content: "hi"},
		{Role: RoleAssistant, Content: "hello!"},
	}
	req := BuildRequest("openrouter/auto", history, "how are you?")

	if req.Model != "openrouter/auto" {
		t.Errorf("unexpected model: %s", req.Model)
	}
	if !req.Stream {
		t.Error("stream flag must be set")
	}
	if len(req.Messages) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(req.Messages))
	}
	last := req.Messages[2]
	if last.Role != RoleUser || last.Content != "how are you?" {
		t.Errorf("expected new user prompt last, got %+v", last)
	}
	if req.Messages[1].Role != RoleAssistant {
		t.Errorf("history order not preserved: %+v", req.Messages)
	}
}

func TestBuildRequest_CapsHistory(t *testing.T) {
	for _, n := range []int{0, 1, 39, 40, 41, 100} {
		t.Run(fmt.Sprintf("history=%d", n), func(t *testing.T) {
			history := make([]Message, n)
			for i := range history {
				history[i] = Message{Role: RoleUser, Content: fmt.Sprintf("msg-%d", i)}
			}

			req := BuildRequest("m", history, "prompt")

			want := n
			if want > HistoryWindow {
				want = HistoryWindow
			}
			if len(req.Messages) != want+1 {
				t.Fatalf("expected %d messages, got %d", want+1, len(req.Messages))
			}
			if want > 0 {
				first := req.Messages[0].Content
				if first != fmt.Sprintf("msg-%d", n-want) {
					t.Errorf("expected trailing window to start at msg-%d, got %s", n-want, first)
				}
				if req.Messages[want-1].Content != fmt.Sprintf("msg-%d", n-1) {
					t.Errorf("expected most recent history entry before prompt")
				}
			}
		})
	}
}

func TestBuildRequest_ForwardsUnknownModel(t *testing.T) {
	req := BuildRequest("not a real/model id!!", nil, "x")
	if req.Model != "not a real/model id!!" {
		t.Errorf("model id must be forwarded as-is, got %q", req.Model)
	}
}

// --- Client tests ---

func TestChatStream(t *testing.T) {
	mock := &mockStreamProvider{tokens: []string{"He", "llo"}}
	client := NewClientWithProvider(mock)

	history := []Message{{Role: RoleUser, Content: "earlier"}}
	ch := client.ChatStream(context.Background(), "openrouter/auto", history, "say hello")
	result, state, err := collectStream(ch)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != "Hello" {
		t.Errorf("expected 'Hello', got %q", result)
	}
	if state != StateSucceeded {
		t.Errorf("expected succeeded, got %s", state)
	}
	if mock.calls != 1 {
		t.Errorf("expected 1 call, got %d", mock.calls)
	}
	if len(mock.lastReq.Messages) != 2 || mock.lastReq.Messages[1].Content != "say hello" {
		t.Errorf("unexpected request messages: %+v", mock.lastReq.Messages)
	}
}

func TestChatStream_CapsHistory(t *testing.T) {
	mock := &mockStreamProvider{tokens: []string{"ok"}}
	client := NewClientWithProvider(mock)

	history := make([]Message, 60)
	for i := range history {
		history[i] = Message{Role: RoleUser, Content: "x"}
	}
	_, _, err := collectStream(client.ChatStream(context.Background(), "m", history, "p"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(mock.lastReq.Messages) != HistoryWindow+1 {
		t.Errorf("expected %d messages, got %d", HistoryWindow+1, len(mock.lastReq.Messages))
	}
}

func TestChatStream_Error(t *testing.T) {
	mock := &mockStreamProvider{tokens: []string{"partial"}, streamErr: fmt.Errorf("stream broke")}
	client := NewClientWithProvider(mock)

	result, state, err := collectStream(client.ChatStream(context.Background(), "m", nil, "p"))
	if err == nil {
		t.Fatal("expected error")
	}
	if state != StateFailed {
		t.Errorf("expected failed, got %s", state)
	}
	if result != "partial" {
		t.Errorf("expected partial content, got %q", result)
	}
}

func TestModels_NoCatalog(t *testing.T) {
	client := NewClientWithProvider(&mockStreamProvider{})
	if _, err := client.Models(context.Background()); err != ErrNoCatalog {
		t.Errorf("expected ErrNoCatalog, got %v", err)
	}
}

func TestModels_Catalog(t *testing.T) {
	client := NewClientWithProvider(&mockCatalogProvider{models: []Model{{ID: "a"}, {ID: "b"}}})
	models, err := client.Models(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(models) != 2 {
		t.Errorf("expected 2 models, got %d", len(models))
	}
}
