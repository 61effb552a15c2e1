// Package llmtest provides a deterministic llm.Provider for tests.
package llmtest

import (
	"context"
	"io"
	"sync"

	"github.com/comigor/prompt-optimizer/internal/chat"
	"github.com/comigor/prompt-optimizer/internal/llm"
)

// Provider replays a fixed list of fragments.
//
// If Step is non-nil every Recv waits for a value on Step (or for the
// request context to end) before returning the next fragment, so tests can
// drive the stream one fragment at a time.
type Provider struct {
	Fragments []string
	StartErr  error // returned by StreamCompletion
	StreamErr error // returned by Recv after the last fragment instead of io.EOF
	Step      chan struct{}

	mu    sync.Mutex
	calls [][]chat.Message
}

var _ llm.Provider = (*Provider)(nil)

// StreamCompletion implements llm.Provider.
func (p *Provider) StreamCompletion(ctx context.Context, messages []chat.Message) (llm.Stream, error) {
	p.mu.Lock()
	p.calls = append(p.calls, append([]chat.Message(nil), messages...))
	p.mu.Unlock()

	if p.StartErr != nil {
		return nil, p.StartErr
	}
	return &stream{ctx: ctx, p: p}, nil
}

// Calls returns the message lists received so far.
func (p *Provider) Calls() [][]chat.Message {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([][]chat.Message(nil), p.calls...)
}

type stream struct {
	ctx    context.Context
	p      *Provider
	next   int
	closed bool
}

func (s *stream) Recv() (string, error) {
	if s.closed {
		return "", io.ErrClosedPipe
	}
	if s.p.Step != nil {
		select {
		case <-s.p.Step:
		case <-s.ctx.Done():
			return "", s.ctx.Err()
		}
	} else if err := s.ctx.Err(); err != nil {
		return "", err
	}
	if s.next >= len(s.p.Fragments) {
		if s.p.StreamErr != nil {
			return "", s.p.StreamErr
		}
		return "", io.EOF
	}
	f := s.p.Fragments[s.next]
	s.next++
	return f, nil
}

func (s *stream) Close() error {
	s.closed = true
	return nil
}
