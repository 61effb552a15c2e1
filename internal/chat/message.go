// Package chat defines the conversation model shared by the relay and its consumers.
package chat

import "fmt"

// Role identifies the author of a Message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleSystem, RoleUser, RoleAssistant:
		return true
	}
	return false
}

// Message is a single conversational turn. Messages are values and never
// change after creation.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Request is the body accepted by the relay endpoint.
type Request struct {
	Messages []Message `json:"messages"`
}

// ErrorResponse is the body returned by the relay on failure.
type ErrorResponse struct {
	Error string `json:"error"`
}

// Validate checks that every message carries a known role.
func Validate(msgs []Message) error {
	for i, m := range msgs {
		if !m.Role.Valid() {
			return fmt.Errorf("message %d: unknown role %q", i, m.Role)
		}
	}
	return nil
}

// Conversation is an ordered message history, oldest first.
type Conversation []Message

// With returns a new conversation with msg appended. The receiver is not modified.
func (c Conversation) With(msg Message) Conversation {
	out := make(Conversation, 0, len(c)+1)
	out = append(out, c...)
	return append(out, msg)
}
