package interfaces

import "context"

// Message represents a single message in a model conversation.
// Role is one of "system", "user", or "assistant".
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ContentRequest is a provider-agnostic content generation request.
type ContentRequest struct {
	Messages          []Message
	Model             string
	Temperature       float32
	MaxTokens         int
	SystemInstruction string
}

// ContentResponse is a provider-agnostic content generation response.
type ContentResponse struct {
	Text     string
	Provider string
	Model    string
}

// AIProvider generates text completions. The returned text is untrusted
// free text: callers asking for JSON must run it through output recovery.
type AIProvider interface {
	GenerateContent(ctx context.Context, request *ContentRequest) (*ContentResponse, error)
	Close() error
}
