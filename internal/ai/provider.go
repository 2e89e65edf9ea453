package ai

import "context"

// Message roles understood by chat-completion endpoints.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is a provider-agnostic chat message.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// StreamingProvider is the interface any chat backend must implement.
type StreamingProvider interface {
	// CompleteStream sends req and returns a channel that emits deltas as
	// they arrive. The last value always has Done set and carries the
	// terminal State; the channel is closed right after it.
	CompleteStream(ctx context.Context, req ChatRequest) <-chan StreamDelta
}

// ModelLister is implemented by providers that can enumerate models.
type ModelLister interface {
	ListModels(ctx context.Context) ([]Model, error)
}
