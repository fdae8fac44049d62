// README: AI package tests (providers, extraction, narration, preference mapping).
package ai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/generative-ai-go/genai"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"pgregory.net/rapid"

	"transitguide/internal/envelope"
)

// stubProvider is a test double for LLMProvider.
type stubProvider struct {
	reply string
	err   error

	calls int
	last  Prompt
}

func (s *stubProvider) Complete(_ context.Context, p Prompt) (string, error) {
	s.calls++
	s.last = p
	return s.reply, s.err
}

// sentChat is the subset of the chat completions request the tests inspect.
type sentChat struct {
	Model    string `json:"model"`
	Messages []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"messages"`
	Temperature *float64 `json:"temperature"`
	MaxTokens   int      `json:"max_tokens"`
	Seed        int      `json:"seed"`
}

func writeJSON(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(body))
}

func TestOpenAIProviderComplete(t *testing.T) {
	var got sentChat
	var path string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		if r.Header.Get("Authorization") != "Bearer test-key" {
			writeJSON(w, http.StatusUnauthorized, `{"error":{"message":"bad key"}}`)
			return
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		writeJSON(w, http.StatusOK, `{"id":"c1","object":"chat.completion","choices":[{"index":0,"finish_reason":"stop","message":{"role":"assistant","content":"  你好  "}}]}`)
	}))
	defer ts.Close()

	p := NewOpenAIProvider("test-key", "")
	p.SetBaseURL(ts.URL + "/v1/")

	out, err := p.Complete(context.Background(), Prompt{
		System:      "sys",
		User:        "hi",
		Temperature: 0.2,
		MaxTokens:   500,
		Seed:        6,
	})
	require.NoError(t, err)
	require.Equal(t, "你好", out)

	require.Equal(t, "/v1/chat/completions", path)
	require.Equal(t, defaultOpenAIModel, got.Model)
	require.Len(t, got.Messages, 2)
	require.Equal(t, "system", got.Messages[0].Role)
	require.Equal(t, "sys", got.Messages[0].Content)
	require.Equal(t, "user", got.Messages[1].Role)
	require.Equal(t, "hi", got.Messages[1].Content)
	require.NotNil(t, got.Temperature)
	require.InDelta(t, 0.2, *got.Temperature, 1e-6)
	require.Equal(t, 500, got.MaxTokens)
	require.Equal(t, 6, got.Seed)
}

func TestOpenAIProviderSendsZeroTemperature(t *testing.T) {
	var got sentChat
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&got)
		writeJSON(w, http.StatusOK, `{"choices":[{"message":{"role":"assistant","content":"ok"}}]}`)
	}))
	defer ts.Close()

	p := NewOpenAIProvider("k", "gpt-4o-mini")
	p.SetBaseURL(ts.URL + "/v1/")

	_, err := p.Complete(context.Background(), Prompt{User: "x", Temperature: 0})
	require.NoError(t, err)
	require.Equal(t, "gpt-4o-mini", got.Model)
	require.NotNil(t, got.Temperature)
	require.Zero(t, *got.Temperature)
}

func TestOpenAIProviderErrors(t *testing.T) {
	var calls int
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		switch {
		case strings.HasPrefix(r.URL.Path, "/api-error/"):
			writeJSON(w, http.StatusTooManyRequests, `{"error":{"message":"rate limited","type":"requests"}}`)
		case strings.HasPrefix(r.URL.Path, "/empty/"):
			writeJSON(w, http.StatusOK, `{"choices":[]}`)
		default:
			w.Header().Set("Content-Type", "text/html")
			w.WriteHeader(http.StatusBadGateway)
			_, _ = w.Write([]byte(`<html>oops</html>`))
		}
	}))
	defer ts.Close()

	p := NewOpenAIProvider("k", "gpt-4o-mini")

	p.SetBaseURL(ts.URL + "/api-error/")
	_, err := p.Complete(context.Background(), Prompt{User: "x"})
	require.ErrorContains(t, err, "openai: api error: rate limited")
	// No automatic retry on 429.
	require.Equal(t, 1, calls)

	p.SetBaseURL(ts.URL + "/empty/")
	_, err = p.Complete(context.Background(), Prompt{User: "x"})
	require.ErrorIs(t, err, ErrEmptyCompletion)

	p.SetBaseURL(ts.URL + "/html/")
	_, err = p.Complete(context.Background(), Prompt{User: "x"})
	require.Error(t, err)
	require.ErrorContains(t, err, "openai:")
}

func TestGeminiResponseText(t *testing.T) {
	_, err := responseText(&genai.GenerateContentResponse{})
	require.ErrorIs(t, err, ErrEmptyCompletion)

	resp := &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content: &genai.Content{Parts: []genai.Part{genai.Text("第一段"), genai.Text("  "), genai.Text("第二段")}},
		}},
	}
	out, err := responseText(resp)
	require.NoError(t, err)
	require.Equal(t, "第一段\n第二段", out)
}

func TestExtractSuccess(t *testing.T) {
	llm := &stubProvider{reply: "```json\n{\"origin\": \"板橋車站\", \"destination\": \"台北市政府\", \"preference\": \"省時間\"}\n```"}
	e := NewExtractor(llm, zap.NewNop())

	res := e.Extract(context.Background(), "從板橋車站到台北市政府，我想省時間")
	require.True(t, res.OK)
	require.Equal(t, "板橋車站", res.Data.Origin)
	require.Equal(t, "台北市政府", res.Data.Destination)
	require.Equal(t, "省時間", res.Data.PreferenceText)
	require.Equal(t, PreferenceFastOrNone, res.Data.Preference())
	require.True(t, strings.HasPrefix(res.Data.Raw, "{"))

	require.Equal(t, 1, llm.calls)
	require.Contains(t, llm.last.User, "從板橋車站到台北市政府，我想省時間")
	require.Equal(t, extractionSystemPrompt, llm.last.System)
	require.Equal(t, 500, llm.last.MaxTokens)
	require.Equal(t, 6, llm.last.Seed)
}

func TestExtractSentinel(t *testing.T) {
	e := NewExtractor(&stubProvider{reply: `"error"`}, zap.NewNop())
	res := e.Extract(context.Background(), "你好")
	require.True(t, res.Is(envelope.KindExtractionAmbiguous))
	require.Equal(t, AmbiguousMessage, res.Message)
}

func TestExtractMissingEndpoint(t *testing.T) {
	e := NewExtractor(&stubProvider{reply: `{"origin":"","destination":"台北101","preference":"無"}`}, zap.NewNop())
	res := e.Extract(context.Background(), "去台北101")
	require.True(t, res.Is(envelope.KindExtractionAmbiguous))
}

func TestExtractBackendError(t *testing.T) {
	e := NewExtractor(&stubProvider{err: errors.New("openai: do request: connection refused")}, zap.NewNop())
	res := e.Extract(context.Background(), "從A到B")
	require.True(t, res.Is(envelope.KindExtractionBackend))
	require.Equal(t, "openai: do request: connection refused", res.Message)
}

func TestExtractUnparsable(t *testing.T) {
	e := NewExtractor(&stubProvider{reply: "我不知道"}, zap.NewNop())
	res := e.Extract(context.Background(), "從A到B")
	require.True(t, res.Is(envelope.KindExtractionBackend))
	require.Contains(t, res.Message, "failed to parse JSON response")
}

func TestNarrate(t *testing.T) {
	llm := &stubProvider{reply: "嗨！準備出發囉"}
	n := NewNarrator(llm, zap.NewNop())

	res := n.Narrate(context.Background(), `{"origin":"A"}{"routes":[]}`)
	require.True(t, res.OK)
	require.Equal(t, "嗨！準備出發囉", res.Data)
	require.Contains(t, llm.last.User, `{"origin":"A"}{"routes":[]}`)
	require.Contains(t, llm.last.User, "MRT is 捷運")
	require.Equal(t, float32(0), llm.last.Temperature)
	require.Equal(t, 1024, llm.last.MaxTokens)

	failing := NewNarrator(&stubProvider{err: ErrEmptyCompletion}, zap.NewNop())
	res = failing.Narrate(context.Background(), "{}")
	require.True(t, res.Is(envelope.KindNarrationFailed))
	require.Equal(t, ErrEmptyCompletion.Error(), res.Message)
}

func TestPreferenceMapping(t *testing.T) {
	require.Equal(t, 0, ParsePreference("省錢").Code())
	require.Equal(t, 1, ParsePreference("省時間").Code())
	require.Equal(t, 1, ParsePreference("無").Code())
	require.Equal(t, 1, ParsePreference("").Code())

	rapid.Check(t, func(t *rapid.T) {
		s := rapid.String().Draw(t, "preference")
		code := ParsePreference(s).Code()
		want := 1
		if s == CheapestToken {
			want = 0
		}
		if code != want {
			t.Fatalf("ParsePreference(%q).Code() = %d, want %d", s, code, want)
		}
	})
}
