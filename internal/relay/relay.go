// Package relay bridges an upstream streaming completion to a plain byte
// stream that a browser fetch reader can consume.
package relay

import (
	"context"
	"errors"
	"fmt"

	"github.com/comigor/prompt-optimizer/internal/chat"
	"github.com/comigor/prompt-optimizer/internal/config"
	"github.com/comigor/prompt-optimizer/internal/llm"
)

var (
	// ErrInvalidRequest marks failures caused by the caller's input.
	ErrInvalidRequest = errors.New("invalid request")
	// ErrNoMessages is returned when the request carries an empty message list.
	ErrNoMessages = fmt.Errorf("%w: no messages", ErrInvalidRequest)
)

// Optimizer prepends the optimization instruction to a conversation and opens
// the upstream stream. It never retries.
type Optimizer struct {
	provider     llm.Provider
	systemPrompt string
}

// NewOptimizer creates an Optimizer using the system prompt from cfg,
// falling back to config.DefaultSystemPrompt.
func NewOptimizer(provider llm.Provider, cfg config.LLMConfig) *Optimizer {
	prompt := cfg.SystemPrompt
	if prompt == "" {
		prompt = config.DefaultSystemPrompt
	}
	return &Optimizer{provider: provider, systemPrompt: prompt}
}

// Optimize validates messages and opens a completion stream for
// [system instruction, messages...].
func (o *Optimizer) Optimize(ctx context.Context, messages []chat.Message) (llm.Stream, error) {
	if len(messages) == 0 {
		return nil, ErrNoMessages
	}
	if err := chat.Validate(messages); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}

	upstream := make([]chat.Message, 0, len(messages)+1)
	upstream = append(upstream, chat.Message{Role: chat.RoleSystem, Content: o.systemPrompt})
	upstream = append(upstream, messages...)

	return o.provider.StreamCompletion(ctx, upstream)
}
