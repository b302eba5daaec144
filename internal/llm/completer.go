package llm

import "context"

// Message roles understood by Completer implementations.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is a single chat message.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Request is a single chat completion request.
type Request struct {
	Messages    []Message
	Temperature float64
	MaxTokens   int
}

// Completer defines the interface contract for hosted text completion services.
type Completer interface {
	Complete(ctx context.Context, req Request) (string, error)
	ModelName() string
}
