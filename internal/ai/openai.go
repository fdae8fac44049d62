package ai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

const defaultOpenAIModel = openai.ChatModelGPT3_5Turbo

// OpenAIProvider implements LLMProvider against the OpenAI chat completions endpoint.
type OpenAIProvider struct {
	apiKey  string
	model   string
	baseURL string
	client  openai.Client
}

// NewOpenAIProvider returns a provider for the given API key. An empty model
// selects gpt-3.5-turbo.
func NewOpenAIProvider(apiKey, model string) *OpenAIProvider {
	if model == "" {
		model = defaultOpenAIModel
	}
	p := &OpenAIProvider{apiKey: apiKey, model: model}
	p.client = p.newClient()
	return p
}

// SetBaseURL points the provider at a different API root (e.g. "http://host/v1/").
func (p *OpenAIProvider) SetBaseURL(url string) {
	p.baseURL = url
	p.client = p.newClient()
}

func (p *OpenAIProvider) newClient() openai.Client {
	opts := []option.RequestOption{
		option.WithAPIKey(p.apiKey),
		// One attempt per stage; a failed call becomes a user-facing message.
		option.WithMaxRetries(0),
		// 30s guards against stalled connections; the request context still wins when shorter.
		option.WithHTTPClient(&http.Client{Timeout: 30 * time.Second}),
	}
	if p.baseURL != "" {
		opts = append(opts, option.WithBaseURL(p.baseURL))
	}
	return openai.NewClient(opts...)
}

// Complete sends prompt to the chat completions endpoint and returns the trimmed reply text.
func (p *OpenAIProvider) Complete(ctx context.Context, prompt Prompt) (string, error) {
	model := p.model
	if prompt.Model != "" {
		model = prompt.Model
	}

	messages := make([]openai.ChatCompletionMessageParamUnion, 0, 2)
	if prompt.System != "" {
		messages = append(messages, openai.SystemMessage(prompt.System))
	}
	messages = append(messages, openai.UserMessage(prompt.User))

	params := openai.ChatCompletionNewParams{
		Model:       model,
		Messages:    messages,
		Temperature: openai.Float(float64(prompt.Temperature)),
	}
	if prompt.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(prompt.MaxTokens))
	}
	if prompt.Seed != 0 {
		params.Seed = openai.Int(int64(prompt.Seed))
	}

	resp, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		var apiErr *openai.Error
		if errors.As(err, &apiErr) {
			if apiErr.Message != "" {
				return "", fmt.Errorf("openai: api error: %s", apiErr.Message)
			}
			return "", fmt.Errorf("openai: unexpected status %d", apiErr.StatusCode)
		}
		return "", fmt.Errorf("openai: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("openai: %w", ErrEmptyCompletion)
	}

	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	if content == "" {
		return "", fmt.Errorf("openai: %w", ErrEmptyCompletion)
	}
	return content, nil
}
