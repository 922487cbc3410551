// Package llm wraps the chat-completion provider used for fact extraction.
package llm

// Message is one chat turn.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Response holds the model output and token usage.
type Response struct {
	Content     string `json:"content"`
	TotalTokens int    `json:"totalTokens"`
}

// Options tunes a single chat call.
type Options struct {
	Temperature float64
	JSONMode    bool
}

// Client is the narrow chat-completion contract. JSONMode asks the provider
// to return strict JSON.
type Client interface {
	Chat(messages []Message, opts Options) (*Response, error)
}
