package ai

import (
	"context"

	"go.uber.org/zap"

	"transitguide/internal/envelope"
)

// Narrator renders an intent-plus-itinerary payload as a friendly article.
type Narrator struct {
	llm  LLMProvider
	opts Prompt
	log  *zap.Logger
}

// NewNarrator returns a Narrator using deterministic sampling.
func NewNarrator(llm LLMProvider, log *zap.Logger) *Narrator {
	return &Narrator{
		llm: llm,
		opts: Prompt{
			System:      narrationSystemPrompt,
			Temperature: 0,
			MaxTokens:   1024,
			Seed:        6,
		},
		log: log,
	}
}

// Narrate generates the article for combined.
func (n *Narrator) Narrate(ctx context.Context, combined string) envelope.Envelope[string] {
	prompt := n.opts
	prompt.User = buildNarrationPrompt(combined)

	text, err := n.llm.Complete(ctx, prompt)
	if err != nil {
		n.log.Warn("narration backend failed", zap.Error(err))
		return envelope.Fail[string](err.Error(), envelope.KindNarrationFailed)
	}
	return envelope.OK(text)
}
