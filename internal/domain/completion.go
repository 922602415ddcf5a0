package domain

import "context"

// Chat message roles as the completion provider sees them.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is a single chat message handed to the completion provider.
type Message struct {
	Role    string
	Content string
}

// CompletionRequest is an ordered message sequence for one completion call.
type CompletionRequest struct {
	Messages []Message
}

// CompletionResult carries the generated answer and token usage.
type CompletionResult struct {
	Text             string
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// Completer is the language-model contract. The pipeline hands it an
// assembled prompt and treats the returned text as opaque.
type Completer interface {
	Complete(ctx context.Context, req CompletionRequest) (CompletionResult, error)
}
