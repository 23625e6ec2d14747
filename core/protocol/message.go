// Package protocol defines the conversation message model shared by the
// pipeline, the oracle clients, and the session store.
package protocol

// Role identifies the sender of a conversation message. The set is closed:
// every place that renders or filters history switches exhaustively over
// these three values.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is a single turn in a conversation. Messages are immutable once
// appended; history order is conversation order and is exactly the prompt
// context sent to the completion oracle.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// NewMessage creates a Message with the given role and content.
func NewMessage(role Role, content string) Message {
	return Message{Role: role, Content: content}
}

// AppendUser returns history with a user turn appended.
func AppendUser(history []Message, text string) []Message {
	return append(history, NewMessage(RoleUser, text))
}

// AppendAssistant returns history with an assistant turn appended.
func AppendAssistant(history []Message, text string) []Message {
	return append(history, NewMessage(RoleAssistant, text))
}

// ReplaceSystem swaps the system turn at index 0 in place. Histories always
// carry their current persona at index 0; persona changes replace it rather
// than appending a second system turn.
func ReplaceSystem(history []Message, text string) {
	if len(history) == 0 {
		return
	}
	history[0] = NewMessage(RoleSystem, text)
}

// Transcript returns the externally visible projection of history: user and
// assistant turns in order, system turns excluded. The persisted record and
// any rendered view consume this shape.
func Transcript(history []Message) []Message {
	out := make([]Message, 0, len(history))
	for _, msg := range history {
		switch msg.Role {
		case RoleSystem:
			// persona text never leaves the process
		case RoleUser, RoleAssistant:
			out = append(out, msg)
		}
	}
	return out
}
