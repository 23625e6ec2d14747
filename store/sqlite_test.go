package store_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/rapport-labs/rapport/store"
)

func newSQLiteStore(t *testing.T) store.Store {
	t.Helper()
	s, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "conversations.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSQLiteStore_AppendAndLoad(t *testing.T) {
	s := newSQLiteStore(t)
	ctx := context.Background()

	if err := s.Append(ctx, "12345678", transcript("hi", "hey"), false); err != nil {
		t.Fatalf("Append: %v", err)
	}

	rec, err := s.Load(ctx, "12345678")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if rec.MessageCount != 2 || len(rec.Conversation) != 2 {
		t.Errorf("got count=%d entries=%d, want 2/2", rec.MessageCount, len(rec.Conversation))
	}
	if rec.Conversation[0].Content != "hi" {
		t.Errorf("got first entry %q, want %q", rec.Conversation[0].Content, "hi")
	}
	if rec.ConversationEnd != nil {
		t.Error("conversation end set on unended record")
	}
}

func TestSQLiteStore_PreservesConversationStart(t *testing.T) {
	s := newSQLiteStore(t)
	ctx := context.Background()

	if err := s.Append(ctx, "12345678", transcript("hi", "hey"), false); err != nil {
		t.Fatal(err)
	}
	first, err := s.Load(ctx, "12345678")
	if err != nil {
		t.Fatal(err)
	}

	if err := s.Append(ctx, "12345678", transcript("hi", "hey", "more", "ok"), true); err != nil {
		t.Fatal(err)
	}
	second, err := s.Load(ctx, "12345678")
	if err != nil {
		t.Fatal(err)
	}

	if !second.ConversationStart.Equal(first.ConversationStart) {
		t.Errorf("conversation start changed: %v -> %v", first.ConversationStart, second.ConversationStart)
	}
	if second.ConversationEnd == nil {
		t.Error("conversation end not set after ended append")
	}
	if second.MessageCount != 4 {
		t.Errorf("got count %d, want 4", second.MessageCount)
	}
}

func TestSQLiteStore_LoadNotFound(t *testing.T) {
	s := newSQLiteStore(t)

	if _, err := s.Load(context.Background(), "00000000"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("got %v, want ErrNotFound", err)
	}
}

func TestSQLiteStore_Stats(t *testing.T) {
	s := newSQLiteStore(t)
	ctx := context.Background()

	if err := s.Append(ctx, "11111111", transcript("a", "b"), false); err != nil {
		t.Fatal(err)
	}
	if err := s.Append(ctx, "22222222", transcript("a", "b", "c", "d"), false); err != nil {
		t.Fatal(err)
	}
	// Re-append for an existing participant must not double-count.
	if err := s.Append(ctx, "11111111", transcript("a", "b"), true); err != nil {
		t.Fatal(err)
	}

	stats, err := s.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.Participants != 2 {
		t.Errorf("got %d participants, want 2", stats.Participants)
	}
	if stats.Messages != 6 {
		t.Errorf("got %d messages, want 6", stats.Messages)
	}
}

func TestSQLiteStore_ConcurrentSameParticipant(t *testing.T) {
	s := newSQLiteStore(t)
	ctx := context.Background()

	if err := s.Append(ctx, "12345678", transcript("hi", "hey"), false); err != nil {
		t.Fatal(err)
	}
	start, err := s.Load(ctx, "12345678")
	if err != nil {
		t.Fatal(err)
	}

	done := make(chan error, 4)
	for i := 0; i < 4; i++ {
		go func() {
			var err error
			for j := 0; j < 5 && err == nil; j++ {
				err = s.Append(ctx, "12345678", transcript("hi", "hey", "again", "yes"), false)
			}
			done <- err
		}()
	}
	for i := 0; i < 4; i++ {
		if err := <-done; err != nil {
			t.Fatalf("concurrent Append: %v", err)
		}
	}

	rec, err := s.Load(ctx, "12345678")
	if err != nil {
		t.Fatal(err)
	}
	if !rec.ConversationStart.Equal(start.ConversationStart) {
		t.Errorf("lost update on conversation start: %v -> %v",
			start.ConversationStart, rec.ConversationStart)
	}
}
