// Package llm integrates with an OpenAI-compatible text generation provider.
package llm

import "context"

// Message is one chat message sent to the provider.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Provider generates a completion for an ordered list of chat messages.
type Provider interface {
	Generate(ctx context.Context, messages []Message) (string, error)
}
