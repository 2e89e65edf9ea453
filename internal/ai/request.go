package ai

// HistoryWindow is how many prior messages are sent as context. Older
// messages are dropped, not summarized.
const HistoryWindow = 40

// BuildRequest assembles a streaming chat request from the trailing
// HistoryWindow messages of history followed by prompt as a new user
// message. The model id is forwarded as-is; an unknown model surfaces only
// through the remote error response.
func BuildRequest(model string, history []Message, prompt string) ChatRequest {
	trimmed := history
	if len(trimmed) > HistoryWindow {
		trimmed = trimmed[len(trimmed)-HistoryWindow:]
	}

	messages := make([]Message, 0, len(trimmed)+1)
	for _, m := range trimmed {
		messages = append(messages, Message{Role: m.Role, Content: m.Content})
	}
	messages = append(messages, Message{Role: RoleUser, Content: prompt})

	return ChatRequest{
		Model:    model,
		Stream:   true,
		Messages: messages,
	}
}
