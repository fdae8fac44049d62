package ai

import (
	"context"
)

// LLMProvider defines the contract for a chat-completion style language backend.
// Both the extraction and narration stages talk to the backend through it, so
// the provider (OpenAI, Gemini) can be swapped by configuration.
type LLMProvider interface {
	// Complete sends a system role plus a templated user message and returns
	// the generated free text.
	Complete(ctx context.Context, prompt Prompt) (string, error)
}
