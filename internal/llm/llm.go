package llm

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/comigor/prompt-optimizer/internal/chat"
	"github.com/comigor/prompt-optimizer/internal/config"
	"github.com/comigor/prompt-optimizer/internal/logger"
	"github.com/sashabaranov/go-openai"
)

// NewClient creates a new OpenAI client
func NewClient(cfg config.LLMConfig) *openai.Client {
	config := openai.DefaultConfig(cfg.APIKey)
	config.BaseURL = cfg.BaseURL

	return openai.NewClientWithConfig(config)
}

// OpenAI streams chat completions from any OpenAI-compatible endpoint
// (OpenRouter by default) with a fixed model and temperature.
type OpenAI struct {
	client      ChatStreamer
	model       string
	temperature float32
	logger      *slog.Logger
}

// NewOpenAI wraps client with the model and sampling settings from cfg.
func NewOpenAI(client ChatStreamer, cfg config.LLMConfig) *OpenAI {
	return &OpenAI{
		client:      client,
		model:       cfg.Model,
		temperature: cfg.Temperature,
		logger:      logger.Module("llm"),
	}
}

// StreamCompletion implements Provider.
func (o *OpenAI) StreamCompletion(ctx context.Context, messages []chat.Message) (Stream, error) {
	req := openai.ChatCompletionRequest{
		Model:       o.model,
		Messages:    toOpenAIMessages(messages),
		Temperature: o.temperature,
		Stream:      true,
	}
	o.logger.Debug("opening completion stream", "model", o.model, "messages", len(messages))

	stream, err := o.client.CreateChatCompletionStream(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("open completion stream: %w", err)
	}
	return &openAIStream{stream: stream}, nil
}

func toOpenAIMessages(messages []chat.Message) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(messages))
	for _, m := range messages {
		out = append(out, openai.ChatCompletionMessage{
			Role:    string(m.Role),
			Content: m.Content,
		})
	}
	return out
}

type openAIStream struct {
	stream *openai.ChatCompletionStream
}

// Recv returns the delta content of the next chunk. Chunks without choices
// (usage or keep-alive chunks) come back as empty fragments.
func (s *openAIStream) Recv() (string, error) {
	resp, err := s.stream.Recv()
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", nil
	}
	return resp.Choices[0].Delta.Content, nil
}

func (s *openAIStream) Close() error {
	return s.stream.Close()
}
