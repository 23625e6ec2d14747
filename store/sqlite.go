package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/rapport-labs/rapport/core/protocol"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS conversations (
	participant_code   TEXT PRIMARY KEY,
	conversation_start TEXT NOT NULL,
	conversation_end   TEXT,
	last_updated       TEXT NOT NULL,
	message_count      INTEGER NOT NULL,
	conversation       TEXT NOT NULL
);
`

// sqliteStore keeps all participant records in one SQLite database. The
// read-merge-write cycle runs inside a transaction on a single shared
// connection, so concurrent writers to the same participant cannot
// interleave and lose the original start timestamp.
type sqliteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) the database at path and ensures the
// schema exists.
func NewSQLiteStore(path string) (Store, error) {
	if path == "" {
		path = "conversations.db"
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("%w: open: %v", ErrLoadFailed, err)
	}

	// SQLite allows one writer at a time; a single shared connection lets
	// database/sql serialize callers instead of them fighting for the
	// write lock.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("%w: pragma: %v", ErrLoadFailed, err)
		}
	}

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: schema: %v", ErrLoadFailed, err)
	}

	return &sqliteStore{db: db}, nil
}

func (s *sqliteStore) Append(ctx context.Context, code string, transcript []protocol.Message, ended bool) error {
	if err := validCode(code); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrSaveFailed, code, err)
	}
	defer tx.Rollback()

	existing, err := scanRecord(tx.QueryRowContext(ctx,
		`SELECT participant_code, conversation_start, conversation_end, last_updated, message_count, conversation
		 FROM conversations WHERE participant_code = ?`, code))
	if err != nil && !errors.Is(err, ErrNotFound) {
		// Corrupt row: replace it rather than wedging every persist.
		existing = nil
	}

	rec := merge(existing, code, transcript, ended, time.Now().UTC())

	conversation, err := json.Marshal(rec.Conversation)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrSaveFailed, code, err)
	}

	var end any
	if rec.ConversationEnd != nil {
		end = rec.ConversationEnd.Format(time.RFC3339Nano)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO conversations
			(participant_code, conversation_start, conversation_end, last_updated, message_count, conversation)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(participant_code) DO UPDATE SET
			conversation_end = excluded.conversation_end,
			last_updated     = excluded.last_updated,
			message_count    = excluded.message_count,
			conversation     = excluded.conversation`,
		code,
		rec.ConversationStart.Format(time.RFC3339Nano),
		end,
		rec.LastUpdated.Format(time.RFC3339Nano),
		rec.MessageCount,
		string(conversation),
	)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrSaveFailed, code, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrSaveFailed, code, err)
	}
	return nil
}

func (s *sqliteStore) Load(ctx context.Context, code string) (*Record, error) {
	if err := validCode(code); err != nil {
		return nil, err
	}

	return scanRecord(s.db.QueryRowContext(ctx,
		`SELECT participant_code, conversation_start, conversation_end, last_updated, message_count, conversation
		 FROM conversations WHERE participant_code = ?`, code))
}

func (s *sqliteStore) Stats(ctx context.Context) (Stats, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT message_count FROM conversations`)
	if err != nil {
		return Stats{}, fmt.Errorf("%w: %v", ErrLoadFailed, err)
	}
	defer rows.Close()

	var stats Stats
	for rows.Next() {
		var count int
		if err := rows.Scan(&count); err != nil {
			continue // unreadable row: skip, don't fail the aggregate
		}
		stats.Participants++
		stats.Messages += count
	}
	if err := rows.Err(); err != nil {
		return Stats{}, fmt.Errorf("%w: %v", ErrLoadFailed, err)
	}
	return stats, nil
}

func (s *sqliteStore) Close() error {
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*Record, error) {
	var (
		rec          Record
		start        string
		end          sql.NullString
		updated      string
		conversation string
	)

	err := row.Scan(&rec.ParticipantCode, &start, &end, &updated, &rec.MessageCount, &conversation)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w", ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLoadFailed, err)
	}

	if rec.ConversationStart, err = time.Parse(time.RFC3339Nano, start); err != nil {
		return nil, fmt.Errorf("%w: start timestamp: %v", ErrLoadFailed, err)
	}
	if rec.LastUpdated, err = time.Parse(time.RFC3339Nano, updated); err != nil {
		return nil, fmt.Errorf("%w: updated timestamp: %v", ErrLoadFailed, err)
	}
	if end.Valid {
		t, err := time.Parse(time.RFC3339Nano, end.String)
		if err != nil {
			return nil, fmt.Errorf("%w: end timestamp: %v", ErrLoadFailed, err)
		}
		rec.ConversationEnd = &t
	}
	if err := json.Unmarshal([]byte(conversation), &rec.Conversation); err != nil {
		return nil, fmt.Errorf("%w: transcript: %v", ErrLoadFailed, err)
	}
	return &rec, nil
}
