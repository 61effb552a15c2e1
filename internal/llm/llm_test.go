package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/comigor/prompt-optimizer/internal/chat"
	"github.com/comigor/prompt-optimizer/internal/config"
	"github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/require"
)

// fakeUpstream serves an OpenAI-compatible SSE stream of the given deltas.
func fakeUpstream(t *testing.T, deltas []string, seen *openai.ChatCompletionRequest) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/chat/completions", r.URL.Path)
		require.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		if seen != nil {
			require.NoError(t, json.NewDecoder(r.Body).Decode(seen))
		}

		w.Header().Set("Content-Type", "text/event-stream")
		for i, d := range deltas {
			chunk := openai.ChatCompletionStreamResponse{
				ID:     fmt.Sprintf("chunk-%d", i),
				Object: "chat.completion.chunk",
				Choices: []openai.ChatCompletionStreamChoice{{
					Index: 0,
					Delta: openai.ChatCompletionStreamChoiceDelta{Content: d},
				}},
			}
			raw, err := json.Marshal(chunk)
			require.NoError(t, err)
			fmt.Fprintf(w, "data: %s\n\n", raw)
			w.(http.Flusher).Flush()
		}
		io.WriteString(w, "data: [DONE]\n\n")
	}))
}

func newTestOpenAI(url string, temperature float32) *OpenAI {
	cfg := config.LLMConfig{BaseURL: url, APIKey: "test-key", Model: "mistralai/mistral-7b-instruct", Temperature: temperature}
	return NewOpenAI(NewClient(cfg), cfg)
}

func collect(t *testing.T, s Stream) []string {
	t.Helper()
	defer s.Close()
	var out []string
	for {
		f, err := s.Recv()
		if errors.Is(err, io.EOF) {
			return out
		}
		require.NoError(t, err)
		out = append(out, f)
	}
}

func TestOpenAIStreamCompletion_Fragments(t *testing.T) {
	deltas := []string{"Rewrite", "", " this", " prompt ✓"}
	var seen openai.ChatCompletionRequest
	srv := fakeUpstream(t, deltas, &seen)
	defer srv.Close()

	o := newTestOpenAI(srv.URL, 0)
	s, err := o.StreamCompletion(context.Background(), []chat.Message{
		{Role: chat.RoleSystem, Content: "sys"},
		{Role: chat.RoleUser, Content: "make it better"},
	})
	require.NoError(t, err)

	require.Equal(t, deltas, collect(t, s))
	require.True(t, seen.Stream)
	require.Equal(t, "mistralai/mistral-7b-instruct", seen.Model)
	require.Zero(t, seen.Temperature)
	require.Len(t, seen.Messages, 2)
	require.Equal(t, openai.ChatMessageRoleSystem, seen.Messages[0].Role)
	require.Equal(t, "make it better", seen.Messages[1].Content)
}

func TestOpenAIStreamCompletion_Temperature(t *testing.T) {
	var seen openai.ChatCompletionRequest
	srv := fakeUpstream(t, []string{"ok"}, &seen)
	defer srv.Close()

	s, err := newTestOpenAI(srv.URL, 0.7).StreamCompletion(context.Background(), []chat.Message{{Role: chat.RoleUser, Content: "x"}})
	require.NoError(t, err)
	require.Equal(t, []string{"ok"}, collect(t, s))
	require.InDelta(t, 0.7, seen.Temperature, 1e-6)
}

func TestOpenAIStreamCompletion_StartFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		io.WriteString(w, `{"error":{"message":"invalid api key","type":"auth_error"}}`)
	}))
	defer srv.Close()

	_, err := newTestOpenAI(srv.URL, 0).StreamCompletion(context.Background(), []chat.Message{{Role: chat.RoleUser, Content: "x"}})
	require.Error(t, err)

	var apiErr *openai.APIError
	require.True(t, errors.As(err, &apiErr))
	require.Equal(t, http.StatusUnauthorized, apiErr.HTTPStatusCode)
	require.True(t, strings.Contains(err.Error(), "open completion stream"))
}

func TestOpenAIStreamCompletion_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := newTestOpenAI(url, 0).StreamCompletion(context.Background(), []chat.Message{{Role: chat.RoleUser, Content: "x"}})
	require.Error(t, err)
}
