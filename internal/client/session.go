// Package client consumes the relay's byte stream: it sends the conversation,
// decodes the response incrementally and renders the growing answer.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"github.com/qmuntal/stateless"

	"github.com/comigor/prompt-optimizer/internal/chat"
	"github.com/comigor/prompt-optimizer/internal/logger"
)

// TurnState is the state of the current request/response turn.
type TurnState string

const (
	StateIdle      TurnState = "Idle"
	StateSending   TurnState = "Sending"
	StateStreaming TurnState = "Streaming"
	StateComplete  TurnState = "Complete"
	StateAborted   TurnState = "Aborted"
	StateFailed    TurnState = "Failed"
)

type turnTrigger string

const (
	triggerSubmit   turnTrigger = "Submit"
	triggerHeaders  turnTrigger = "HeadersReceived"
	triggerFinished turnTrigger = "StreamFinished"
	triggerAbort    turnTrigger = "Abort"
	triggerFail     turnTrigger = "Fail"
)

var (
	ErrEmptyInput     = errors.New("client: input is empty")
	ErrTurnInProgress = errors.New("client: a turn is already in progress")

	errAborted = errors.New("client: turn aborted")
)

const (
	msgNoStream    = "No stream"
	readBufferSize = 4096
	maxErrorBody   = 64 << 10
)

// TurnError is a failure the user should see.
type TurnError struct {
	StatusCode int // zero when no response was received
	Message    string
	Err        error
}

func (e *TurnError) Error() string { return e.Message }

func (e *TurnError) Unwrap() error { return e.Err }

// Option configures a Session.
type Option func(*Session)

// WithHTTPClient sets the HTTP client used for requests.
func WithHTTPClient(c *http.Client) Option {
	return func(s *Session) { s.httpClient = c }
}

// WithRenderer sets the callback invoked with the accumulated answer after
// every arrival that produced text. It runs on the Submit goroutine and may
// call Cancel.
func WithRenderer(fn func(partial string)) Option {
	return func(s *Session) { s.render = fn }
}

// Session holds one conversation and runs at most one turn at a time.
type Session struct {
	endpoint   string
	httpClient *http.Client
	render     func(string)
	logger     *slog.Logger

	mu      sync.Mutex
	fsm     *stateless.StateMachine
	history chat.Conversation
	pending string
	errMsg  string

	// cancel and aborting belong to the turn in flight. The turn stays in
	// Sending/Streaming, and so keeps rejecting Submit, until its own Submit
	// call has unwound and fired the final transition.
	cancel   context.CancelFunc
	aborting bool
}

// New creates a Session posting to endpoint, e.g. http://localhost:8080/api/optimize.
func New(endpoint string, opts ...Option) *Session {
	s := &Session{
		endpoint:   endpoint,
		httpClient: http.DefaultClient,
		render:     func(string) {},
		logger:     logger.Module("client"),
		fsm:        newTurnMachine(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// newTurnMachine builds the per-turn state machine:
//
//	Idle|Complete|Aborted|Failed --Submit--> Sending
//	Sending   --HeadersReceived--> Streaming
//	Streaming --StreamFinished---> Complete
//	Sending|Streaming --Abort--> Aborted, --Fail--> Failed
func newTurnMachine() *stateless.StateMachine {
	fsm := stateless.NewStateMachine(StateIdle)
	for _, st := range []TurnState{StateIdle, StateComplete, StateAborted, StateFailed} {
		fsm.Configure(st).Permit(triggerSubmit, StateSending)
	}
	fsm.Configure(StateSending).
		Permit(triggerHeaders, StateStreaming).
		Permit(triggerAbort, StateAborted).
		Permit(triggerFail, StateFailed)
	fsm.Configure(StateStreaming).
		Permit(triggerFinished, StateComplete).
		Permit(triggerAbort, StateAborted).
		Permit(triggerFail, StateFailed)
	return fsm
}

// Submit sends history plus input as a new user message and blocks until the
// turn ends. On success both messages join the history. An aborted turn
// returns nil and leaves the history untouched; a failed one returns a
// *TurnError whose message is also available from Err.
func (s *Session) Submit(ctx context.Context, input string) error {
	if strings.TrimSpace(input) == "" {
		return ErrEmptyInput
	}
	user := chat.Message{Role: chat.RoleUser, Content: input}

	s.mu.Lock()
	if err := s.fsm.Fire(triggerSubmit); err != nil {
		s.mu.Unlock()
		return ErrTurnInProgress
	}
	turnCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.pending = ""
	s.errMsg = ""
	outgoing := s.history.With(user)
	s.mu.Unlock()
	defer cancel()

	err := s.stream(turnCtx, outgoing)

	s.mu.Lock()
	defer s.mu.Unlock()
	aborted := s.aborting || (err != nil && errors.Is(turnCtx.Err(), context.Canceled))
	s.cancel = nil
	s.aborting = false

	if aborted {
		// Cancel, or the caller's context was cancelled. Either way not an error.
		s.fire(triggerAbort)
		s.logger.Debug("turn aborted", "received", len(s.pending))
		return nil
	}
	if err != nil {
		var turnErr *TurnError
		if !errors.As(err, &turnErr) {
			turnErr = &TurnError{Message: err.Error(), Err: err}
		}
		s.errMsg = turnErr.Message
		s.fire(triggerFail)
		s.logger.Warn("turn failed", "status", turnErr.StatusCode, "error", turnErr.Message)
		return turnErr
	}

	s.history = outgoing.With(chat.Message{Role: chat.RoleAssistant, Content: s.pending})
	s.fire(triggerFinished)
	return nil
}

// Cancel aborts the in-flight turn, if any. The abort is not an error: Err
// stays empty and no render starts after the abort point. The turn reaches
// Aborted once its Submit returns; until then a new Submit is rejected with
// ErrTurnInProgress.
func (s *Session) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel == nil || s.aborting {
		return
	}
	s.aborting = true
	s.cancel()
}

func (s *Session) stream(ctx context.Context, messages []chat.Message) error {
	body, err := json.Marshal(chat.Request{Messages: messages})
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &TurnError{StatusCode: resp.StatusCode, Message: errorMessage(resp)}
	}
	if resp.Body == nil || resp.Body == http.NoBody {
		return &TurnError{StatusCode: resp.StatusCode, Message: msgNoStream}
	}

	s.mu.Lock()
	if s.aborting {
		s.mu.Unlock()
		return errAborted
	}
	err = s.fsm.Fire(triggerHeaders)
	s.mu.Unlock()
	if err != nil {
		return fmt.Errorf("enter streaming: %w", err)
	}

	dec := newTextDecoder()
	buf := make([]byte, readBufferSize)
	for {
		n, readErr := resp.Body.Read(buf)
		if n > 0 {
			text, err := dec.Decode(buf[:n], false)
			if err != nil {
				return fmt.Errorf("decode stream: %w", err)
			}
			if err := s.accumulate(text); err != nil {
				return err
			}
		}
		if errors.Is(readErr, io.EOF) {
			break
		}
		if readErr != nil {
			return readErr
		}
	}

	tail, err := dec.Decode(nil, true)
	if err != nil {
		return fmt.Errorf("decode stream: %w", err)
	}
	return s.accumulate(tail)
}

// accumulate appends text to the pending answer and renders it. The update
// is dropped once an abort has been requested.
func (s *Session) accumulate(text string) error {
	if text == "" {
		return nil
	}
	s.mu.Lock()
	if s.aborting {
		s.mu.Unlock()
		return errAborted
	}
	s.pending += text
	partial := s.pending
	s.mu.Unlock()

	s.render(partial)
	return nil
}

func errorMessage(resp *http.Response) string {
	var payload chat.ErrorResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxErrorBody)).Decode(&payload); err == nil && payload.Error != "" {
		return payload.Error
	}
	return fmt.Sprintf("Server error: %d", resp.StatusCode)
}

func (s *Session) state() TurnState {
	return s.fsm.MustState().(TurnState)
}

func (s *Session) fire(t turnTrigger) {
	if err := s.fsm.Fire(t); err != nil {
		s.logger.Error("invalid turn transition", "state", s.state(), "trigger", t, "error", err)
	}
}

// State returns the state of the current or last turn.
func (s *Session) State() TurnState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state()
}

// History returns a copy of the committed conversation.
func (s *Session) History() []chat.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]chat.Message(nil), s.history...)
}

// Pending returns the answer accumulated so far in the current or last turn.
func (s *Session) Pending() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending
}

// Err returns the visible error of the last turn, or "" if there is none.
func (s *Session) Err() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.errMsg
}
