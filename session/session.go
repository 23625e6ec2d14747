// Package session defines the per-participant conversation state that the
// turn pipeline advances and the store persists.
package session

import (
	"crypto/rand"
	"math/big"

	"github.com/google/uuid"
	"github.com/rapport-labs/rapport/core/protocol"
)

// CodeLength is the number of digits in a participant code.
const CodeLength = 8

// Session is the full in-memory state of one participant's conversation.
//
// A Session is not safe for concurrent use. The pipeline serializes turns
// per participant; nothing else may mutate a Session while a turn is in
// flight.
type Session struct {
	// ID uniquely identifies this process-lifetime run of the session.
	// Distinct from ParticipantCode, which survives across runs.
	ID string

	// ParticipantCode is the stable opaque identifier the store keys on.
	ParticipantCode string

	// History is the ordered conversation, index 0 always the current
	// System turn. It is the literal prompt context for the completion
	// oracle.
	History []protocol.Message

	// Level is the persona escalation stage, in [0, MaxLevel]. It only
	// increases for the life of the session, except via Reset.
	Level int

	// AffinityTotal is the accumulated score. Non-decreasing except via
	// Reset.
	AffinityTotal int

	// LastScore is the most recent turn's clamped score contribution.
	// Observability only; transitions depend on AffinityTotal.
	LastScore int
}

// New creates a fresh Session with a newly assigned participant code and the
// given level-0 persona as its single System turn.
func New(persona0 string) *Session {
	return WithCode(NewParticipantCode(), persona0)
}

// WithCode creates a fresh Session bound to an existing participant code.
func WithCode(code, persona0 string) *Session {
	return &Session{
		ID:              uuid.Must(uuid.NewV7()).String(),
		ParticipantCode: code,
		History:         []protocol.Message{protocol.NewMessage(protocol.RoleSystem, persona0)},
	}
}

// Reset returns the session to its initial state: level 0, zero affinity,
// and a history holding exactly one fresh System turn. The participant code
// and run ID are kept.
func (s *Session) Reset(persona0 string) {
	s.History = []protocol.Message{protocol.NewMessage(protocol.RoleSystem, persona0)}
	s.Level = 0
	s.AffinityTotal = 0
	s.LastScore = 0
}

// Messages returns a defensive copy of the conversation history.
func (s *Session) Messages() []protocol.Message {
	copied := make([]protocol.Message, len(s.History))
	copy(copied, s.History)
	return copied
}

// Transcript returns the externally visible history: user and assistant
// turns only, in order. This is the shape handed to the store.
func (s *Session) Transcript() []protocol.Message {
	return protocol.Transcript(s.History)
}

// NewParticipantCode returns a random fixed-length digit string. Codes are
// drawn from crypto/rand so accidental collisions across participants are
// negligible at study scale; the store still merges rather than truncates
// if two sessions ever share a code.
func NewParticipantCode() string {
	digits := make([]byte, CodeLength)
	for i := range digits {
		n, err := rand.Int(rand.Reader, big.NewInt(10))
		if err != nil {
			// crypto/rand only fails when the platform source is broken;
			// fall back to a uuid-derived digit rather than a fixed value.
			digits[i] = '0' + uuid.New()[0]%10
			continue
		}
		digits[i] = '0' + byte(n.Int64())
	}
	return string(digits)
}
