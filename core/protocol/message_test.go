package protocol_test

import (
	"encoding/json"
	"testing"

	"github.com/rapport-labs/rapport/core/protocol"
)

func TestNewMessage(t *testing.T) {
	msg := protocol.NewMessage(protocol.RoleUser, "hello")

	if msg.Role != protocol.RoleUser {
		t.Errorf("got role %q, want %q", msg.Role, protocol.RoleUser)
	}
	if msg.Content != "hello" {
		t.Errorf("got content %q, want %q", msg.Content, "hello")
	}
}

func TestAppend_Order(t *testing.T) {
	history := []protocol.Message{protocol.NewMessage(protocol.RoleSystem, "persona")}
	history = protocol.AppendUser(history, "hi")
	history = protocol.AppendAssistant(history, "hey there")
	history = protocol.AppendUser(history, "how are you")

	wantRoles := []protocol.Role{
		protocol.RoleSystem,
		protocol.RoleUser,
		protocol.RoleAssistant,
		protocol.RoleUser,
	}
	if len(history) != len(wantRoles) {
		t.Fatalf("got %d messages, want %d", len(history), len(wantRoles))
	}
	for i, role := range wantRoles {
		if history[i].Role != role {
			t.Errorf("message %d: got role %q, want %q", i, history[i].Role, role)
		}
	}
}

func TestReplaceSystem(t *testing.T) {
	history := []protocol.Message{protocol.NewMessage(protocol.RoleSystem, "old persona")}
	history = protocol.AppendUser(history, "hi")

	protocol.ReplaceSystem(history, "new persona")

	if len(history) != 2 {
		t.Fatalf("got %d messages, want 2", len(history))
	}
	if history[0].Role != protocol.RoleSystem {
		t.Errorf("got role %q, want %q", history[0].Role, protocol.RoleSystem)
	}
	if history[0].Content != "new persona" {
		t.Errorf("got content %q, want %q", history[0].Content, "new persona")
	}
	if history[1].Content != "hi" {
		t.Errorf("user turn was disturbed: got %q", history[1].Content)
	}
}

func TestReplaceSystem_EmptyHistory(t *testing.T) {
	var history []protocol.Message
	protocol.ReplaceSystem(history, "persona") // must not panic
}

func TestTranscript_ExcludesSystem(t *testing.T) {
	history := []protocol.Message{
		protocol.NewMessage(protocol.RoleSystem, "persona"),
		protocol.NewMessage(protocol.RoleUser, "hi"),
		protocol.NewMessage(protocol.RoleAssistant, "hey"),
	}

	transcript := protocol.Transcript(history)

	if len(transcript) != 2 {
		t.Fatalf("got %d messages, want 2", len(transcript))
	}
	if transcript[0].Role != protocol.RoleUser || transcript[1].Role != protocol.RoleAssistant {
		t.Errorf("got roles %q/%q, want user/assistant", transcript[0].Role, transcript[1].Role)
	}
}

func TestMessage_JSONRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		msg  protocol.Message
	}{
		{"user", protocol.NewMessage(protocol.RoleUser, "안녕하세요")},
		{"assistant", protocol.NewMessage(protocol.RoleAssistant, "hello back")},
		{"system", protocol.NewMessage(protocol.RoleSystem, "you are warm")},
		{"empty content", protocol.NewMessage(protocol.RoleUser, "")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := json.Marshal(tt.msg)
			if err != nil {
				t.Fatalf("marshal: %v", err)
			}

			var got protocol.Message
			if err := json.Unmarshal(data, &got); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			if got != tt.msg {
				t.Errorf("round trip changed message: got %+v, want %+v", got, tt.msg)
			}
		})
	}
}
