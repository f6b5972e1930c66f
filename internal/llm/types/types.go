package types

// Message represents a message in a conversation
type Message struct {
	Role    string `json:"role"`    // user, assistant, system
	Content string `json:"content"` // message text
}

// CompletionRequest represents a request to complete text
type CompletionRequest struct {
	Model       string    `json:"model"`       // concrete model name picked by the router
	Messages    []Message `json:"messages"`    // system prompt followed by the assembled prompt
	Temperature float64   `json:"temperature"` // 0 for deterministic diagnoses
	JSONMode    bool      `json:"json_mode"`   // ask the provider for a JSON object reply
}

// CompletionResponse represents a completion response
type CompletionResponse struct {
	Content string     `json:"content"` // generated text
	Model   string     `json:"model"`   // model that served the request
	Usage   TokenUsage `json:"usage"`   // provider-reported token usage
}

// TokenUsage is the provider's own accounting. The copilot records its own
// whitespace token counts; these are kept for logs only.
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// NewChat builds a two-message conversation of a system and a user prompt.
func NewChat(system, user string) []Message {
	msgs := make([]Message, 0, 2)
	if system != "" {
		msgs = append(msgs, Message{Role: "system", Content: system})
	}
	return append(msgs, Message{Role: "user", Content: user})
}
