package llm

import (
	"context"

	"github.com/comigor/prompt-optimizer/internal/chat"
	"github.com/sashabaranov/go-openai"
)

// Stream yields completion text fragments in the order the provider produced
// them. Recv returns io.EOF once the provider signals the end of the stream.
// A fragment may be empty. Streams are single-use and cannot be restarted.
type Stream interface {
	Recv() (string, error)
	Close() error
}

// Provider opens a streaming completion for a message list. A non-nil error
// means the call failed before any fragment was produced.
type Provider interface {
	StreamCompletion(ctx context.Context, messages []chat.Message) (Stream, error)
}

// ChatStreamer is the subset of openai.Client used by OpenAI; it is easy to mock in tests.
type ChatStreamer interface {
	CreateChatCompletionStream(ctx context.Context, req openai.ChatCompletionRequest) (*openai.ChatCompletionStream, error)
}
