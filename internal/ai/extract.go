package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"transitguide/internal/envelope"
)

// AmbiguousMessage is the failure text for a query without a usable origin or destination.
const AmbiguousMessage = "origin or destination is not correct"

// Extractor turns a free-text query into an Intent.
type Extractor struct {
	llm  LLMProvider
	opts Prompt
	log  *zap.Logger
}

// NewExtractor returns an Extractor using the fixed extraction sampling settings.
func NewExtractor(llm LLMProvider, log *zap.Logger) *Extractor {
	return &Extractor{
		llm: llm,
		opts: Prompt{
			System:      extractionSystemPrompt,
			Temperature: 0.2,
			MaxTokens:   500,
			Seed:        6,
		},
		log: log,
	}
}

// Extract asks the language backend for origin, destination and preference.
func (e *Extractor) Extract(ctx context.Context, text string) envelope.Envelope[Intent] {
	prompt := e.opts
	prompt.User = buildExtractionPrompt(text)

	raw, err := e.llm.Complete(ctx, prompt)
	if err != nil {
		e.log.Warn("extraction backend failed", zap.Error(err))
		return envelope.Fail[Intent](err.Error(), envelope.KindExtractionBackend)
	}

	if strings.Contains(raw, ExtractionFailureToken) {
		e.log.Info("extraction found no origin or destination", zap.String("raw", raw))
		return envelope.Fail[Intent](AmbiguousMessage, envelope.KindExtractionAmbiguous)
	}

	intent, err := parseIntent(raw)
	if err != nil {
		e.log.Warn("extraction output unparsable", zap.String("raw", raw), zap.Error(err))
		return envelope.Fail[Intent](err.Error(), envelope.KindExtractionBackend)
	}
	if intent.Origin == "" || intent.Destination == "" {
		return envelope.Fail[Intent](AmbiguousMessage, envelope.KindExtractionAmbiguous)
	}

	return envelope.OK(intent)
}

func parseIntent(raw string) (Intent, error) {
	clean := cleanJSONString(raw)

	var intent Intent
	if err := json.Unmarshal([]byte(clean), &intent); err != nil {
		return Intent{}, fmt.Errorf("failed to parse JSON response: %w. Raw: %s", err, clean)
	}
	intent.Origin = strings.TrimSpace(intent.Origin)
	intent.Destination = strings.TrimSpace(intent.Destination)
	intent.PreferenceText = strings.TrimSpace(intent.PreferenceText)
	intent.Raw = clean
	return intent, nil
}

// cleanJSONString removes markdown code blocks if present (e.g. ```json ... ```)
func cleanJSONString(input string) string {
	input = strings.TrimSpace(input)
	input = strings.TrimPrefix(input, "```json")
	input = strings.TrimPrefix(input, "```")
	input = strings.TrimSuffix(input, "```")
	return strings.TrimSpace(input)
}
