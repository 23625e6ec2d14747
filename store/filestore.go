package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rapport-labs/rapport/core/protocol"
)

// fileStore keeps one pretty-printed JSON document per participant under a
// root directory. Writes go through a temp file and rename so a crash never
// leaves a half-written record, and a per-participant lock serializes the
// read-merge-write cycle.
type fileStore struct {
	root string

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewFileStore creates a Store rooted at dir, creating it if needed.
func NewFileStore(dir string) (Store, error) {
	if dir == "" {
		dir = DefaultConfig().Path
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSaveFailed, err)
	}
	return &fileStore{root: dir, locks: make(map[string]*sync.Mutex)}, nil
}

// lockFor returns the mutex serializing writes for one participant. Entries
// are retained for the life of the store; the map is bounded by the number
// of distinct participants seen, small at study scale.
func (s *fileStore) lockFor(code string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[code]
	if !ok {
		l = &sync.Mutex{}
		s.locks[code] = l
	}
	return l
}

func (s *fileStore) path(code string) string {
	return filepath.Join(s.root, "participant_"+code+".json")
}

func (s *fileStore) Append(ctx context.Context, code string, transcript []protocol.Message, ended bool) error {
	if err := validCode(code); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	l := s.lockFor(code)
	l.Lock()
	defer l.Unlock()

	// An unreadable record is treated as absent: the fresh write replaces
	// it instead of blocking every future persist.
	existing, _ := s.read(code)

	rec := merge(existing, code, transcript, ended, time.Now().UTC())
	return s.write(rec)
}

func (s *fileStore) Load(ctx context.Context, code string) (*Record, error) {
	if err := validCode(code); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	l := s.lockFor(code)
	l.Lock()
	defer l.Unlock()
	return s.read(code)
}

func (s *fileStore) Stats(ctx context.Context) (Stats, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return Stats{}, fmt.Errorf("%w: %v", ErrLoadFailed, err)
	}

	var stats Stats
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return Stats{}, err
		}
		name := entry.Name()
		if entry.IsDir() || !strings.HasPrefix(name, "participant_") || !strings.HasSuffix(name, ".json") {
			continue
		}

		data, err := os.ReadFile(filepath.Join(s.root, name))
		if err != nil {
			continue // unreadable record: skip, don't fail the aggregate
		}
		var rec Record
		if err := json.Unmarshal(data, &rec); err != nil {
			continue // partially written or corrupt: skip
		}

		stats.Participants++
		stats.Messages += rec.MessageCount
	}
	return stats, nil
}

func (s *fileStore) Close() error {
	return nil
}

func (s *fileStore) read(code string) (*Record, error) {
	data, err := os.ReadFile(s.path(code))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, code)
		}
		return nil, fmt.Errorf("%w: %s: %v", ErrLoadFailed, code, err)
	}

	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrLoadFailed, code, err)
	}
	return &rec, nil
}

func (s *fileStore) write(rec *Record) error {
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrSaveFailed, rec.ParticipantCode, err)
	}

	tmp, err := os.CreateTemp(s.root, ".tmp-*")
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrSaveFailed, rec.ParticipantCode, err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("%w: %s: %v", ErrSaveFailed, rec.ParticipantCode, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("%w: %s: %v", ErrSaveFailed, rec.ParticipantCode, err)
	}

	if err := os.Rename(tmpName, s.path(rec.ParticipantCode)); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("%w: %s: %v", ErrSaveFailed, rec.ParticipantCode, err)
	}
	return nil
}
