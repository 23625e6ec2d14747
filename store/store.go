// Package store persists one durable conversation record per participant.
// Writes are merge-on-write: the first persist fixes the conversation start
// timestamp and later persists never lose it, so retrying an append is safe.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rapport-labs/rapport/core/protocol"
)

// Sentinel errors for store operations.
var (
	ErrNotFound   = errors.New("store: record not found")
	ErrLoadFailed = errors.New("store: load failed")
	ErrSaveFailed = errors.New("store: save failed")
	ErrBadCode    = errors.New("store: invalid participant code")
)

// TranscriptEntry is one persisted conversation turn. Only user and
// assistant turns are persisted; system turns never leave the process.
type TranscriptEntry struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// Record is the durable per-participant document.
type Record struct {
	ParticipantCode   string            `json:"participant_code"`
	ConversationStart time.Time         `json:"conversation_start"`
	ConversationEnd   *time.Time        `json:"conversation_end,omitempty"`
	LastUpdated       time.Time         `json:"last_updated"`
	MessageCount      int               `json:"message_count"`
	Conversation      []TranscriptEntry `json:"conversation"`
}

// Stats aggregates over all persisted records.
type Stats struct {
	Participants int
	Messages     int
}

// Store is the durable session log. Implementations serialize writes per
// participant and must be safe for concurrent use across participants.
type Store interface {
	// Append persists the full transcript for a participant, preserving
	// the original conversation start (and any previously set end) from an
	// existing record. ended marks the conversation finished.
	Append(ctx context.Context, code string, transcript []protocol.Message, ended bool) error
	// Load returns the persisted record for one participant, or
	// ErrNotFound.
	Load(ctx context.Context, code string) (*Record, error)
	// Stats aggregates participant and message counts, skipping records
	// that cannot be read.
	Stats(ctx context.Context) (Stats, error)
	// Close releases the backing resources.
	Close() error
}

// Backend names for Config.Backend.
const (
	BackendFile   = "file"
	BackendSQLite = "sqlite"
)

// Config holds store initialization parameters.
type Config struct {
	// Backend selects the storage engine: "file" (default) keeps one JSON
	// document per participant, "sqlite" keeps all records in one
	// database file.
	Backend string `json:"backend,omitempty"`
	// Path is the root directory (file backend) or database file path
	// (sqlite backend).
	Path string `json:"path,omitempty"`
}

// DefaultConfig returns the default store configuration.
func DefaultConfig() Config {
	return Config{Backend: BackendFile, Path: "conversations"}
}

// Merge applies non-zero values from source into c.
func (c *Config) Merge(source *Config) {
	if source.Backend != "" {
		c.Backend = source.Backend
	}
	if source.Path != "" {
		c.Path = source.Path
	}
}

// New creates a Store from configuration.
func New(cfg Config) (Store, error) {
	switch cfg.Backend {
	case "", BackendFile:
		return NewFileStore(cfg.Path)
	case BackendSQLite:
		return NewSQLiteStore(cfg.Path)
	default:
		return nil, fmt.Errorf("store: unknown backend %q", cfg.Backend)
	}
}

// merge builds the record to persist from the previous record (nil when the
// participant has no record yet), the current transcript, and the write
// time. Both backends funnel through here so the idempotency rules live in
// one place:
//
//   - ConversationStart is fixed by the first persist.
//   - ConversationEnd is set once when ended and never cleared afterwards.
//   - LastUpdated, MessageCount, and the transcript are always overwritten.
//   - Entries already persisted keep their original timestamps; entries new
//     in this write are stamped with now.
func merge(existing *Record, code string, transcript []protocol.Message, ended bool, now time.Time) *Record {
	rec := &Record{
		ParticipantCode:   code,
		ConversationStart: now,
		LastUpdated:       now,
		MessageCount:      len(transcript),
		Conversation:      make([]TranscriptEntry, len(transcript)),
	}

	if existing != nil {
		if !existing.ConversationStart.IsZero() {
			rec.ConversationStart = existing.ConversationStart
		}
		rec.ConversationEnd = existing.ConversationEnd
	}
	if ended && rec.ConversationEnd == nil {
		end := now
		rec.ConversationEnd = &end
	}

	for i, msg := range transcript {
		entry := TranscriptEntry{Role: string(msg.Role), Content: msg.Content, Timestamp: now}
		if existing != nil && i < len(existing.Conversation) &&
			existing.Conversation[i].Role == entry.Role &&
			existing.Conversation[i].Content == entry.Content {
			entry.Timestamp = existing.Conversation[i].Timestamp
		}
		rec.Conversation[i] = entry
	}

	return rec
}

// validCode rejects codes that are empty or could escape the storage
// namespace. Participant codes are digit strings in practice; anything
// path-like is refused outright.
func validCode(code string) error {
	if code == "" {
		return fmt.Errorf("%w: empty", ErrBadCode)
	}
	for _, r := range code {
		switch r {
		case '/', '\\', '.', 0:
			return fmt.Errorf("%w: %q", ErrBadCode, code)
		}
	}
	return nil
}
