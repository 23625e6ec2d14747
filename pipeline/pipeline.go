// Package pipeline orchestrates one conversational turn: ingest the user
// turn, call the completion oracle, record the reply, score the exchange,
// update affinity, swap the persona on level-up, and persist.
//
// The pipeline initializes from configuration via New, creating all
// subsystems internally. Functional options allow overrides of any
// subsystem.
//
//	p, err := pipeline.New(&cfg)
//	sess, err := p.StartSession(ctx)
//	result, err := p.Turn(ctx, sess, "hello there")
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/rapport-labs/rapport/affinity"
	"github.com/rapport-labs/rapport/core/protocol"
	"github.com/rapport-labs/rapport/observability"
	"github.com/rapport-labs/rapport/oracle"
	"github.com/rapport-labs/rapport/persona"
	"github.com/rapport-labs/rapport/session"
	"github.com/rapport-labs/rapport/store"
)

// TurnResult holds the outcome of one completed turn.
type TurnResult struct {
	Reply     string // Assistant reply text.
	Score     int    // Clamped score contribution of this turn.
	Level     int    // Session level after the turn.
	LeveledUp bool   // Whether this turn crossed a threshold.

	// PersistErr is non-nil when the turn completed but could not be
	// persisted. In-memory state has still advanced; the next persist
	// retries with the full transcript. Callers surface this to the
	// operator, not to the participant.
	PersistErr error
}

// Option configures a Pipeline after config-driven initialization.
type Option func(*Pipeline)

// WithCompleter overrides the config-created completion oracle.
func WithCompleter(c oracle.Completer) Option {
	return func(p *Pipeline) { p.completer = c }
}

// WithScorer overrides the config-created scoring oracle.
func WithScorer(s oracle.Scorer) Option {
	return func(p *Pipeline) { p.scorer = s }
}

// WithStore overrides the config-created session store.
func WithStore(s store.Store) Option {
	return func(p *Pipeline) { p.store = s }
}

// WithPersonaTable overrides the config-created persona table.
func WithPersonaTable(t *persona.Table) Option {
	return func(p *Pipeline) { p.personas = t }
}

// WithObserver overrides the default SlogObserver.
func WithObserver(o observability.Observer) Option {
	return func(p *Pipeline) { p.observer = o }
}

// Pipeline drives sessions through the turn state machine. Turns for the
// same participant are serialized; turns for different participants run
// fully in parallel.
type Pipeline struct {
	completer    oracle.Completer
	scorer       oracle.Scorer
	personas     *persona.Table
	engine       *affinity.Engine
	store        store.Store
	observer     observability.Observer
	gen          oracle.GenParams
	defaultScore int

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// New creates a Pipeline from configuration. Configuration problems such as
// a non-ascending threshold ladder, or a persona pack whose level count does
// not match the thresholds, fail here before any session starts.
func New(cfg *Config, opts ...Option) (*Pipeline, error) {
	personas := persona.Default()
	affinityCfg := cfg.Affinity

	if cfg.PersonaPack != "" {
		pack, err := persona.LoadPack(cfg.PersonaPack)
		if err != nil {
			return nil, fmt.Errorf("failed to load persona pack: %w", err)
		}
		personas, err = pack.Table()
		if err != nil {
			return nil, fmt.Errorf("failed to build persona table: %w", err)
		}
		affinityCfg.Thresholds = pack.Thresholds
	}

	engine, err := affinity.New(affinityCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create affinity engine: %w", err)
	}

	st, err := store.New(cfg.Store)
	if err != nil {
		return nil, fmt.Errorf("failed to create session store: %w", err)
	}

	client := oracle.NewOpenAI(cfg.Oracle)

	score := cfg.DefaultScore
	if score == 0 {
		score = defaultScore
	}

	p := &Pipeline{
		completer:    client,
		scorer:       client,
		personas:     personas,
		engine:       engine,
		store:        st,
		observer:     observability.NewSlogObserver(slog.Default()),
		gen:          cfg.Generation,
		defaultScore: score,
		locks:        make(map[string]*sync.Mutex),
	}

	for _, opt := range opts {
		opt(p)
	}

	if p.personas.MaxLevel() != p.engine.MaxLevel() {
		return nil, fmt.Errorf("persona table has %d levels but thresholds define %d",
			p.personas.MaxLevel()+1, p.engine.MaxLevel()+1)
	}

	return p, nil
}

// Personas returns the pipeline's persona table for runtime edits.
func (p *Pipeline) Personas() *persona.Table {
	return p.personas
}

// StartSession creates a fresh session with a newly assigned participant
// code at level 0.
func (p *Pipeline) StartSession(ctx context.Context) (*session.Session, error) {
	persona0, err := p.personas.Build(0)
	if err != nil {
		return nil, err
	}

	s := session.New(persona0)
	p.emit(ctx, EventSessionStart, observability.LevelInfo, "pipeline.StartSession", map[string]any{
		"participant": s.ParticipantCode,
	})
	return s, nil
}

// ResumeSession creates a session bound to an existing participant code.
// When a persisted record exists, its transcript is replayed into the new
// history after a fresh level-0 System turn, so the completion oracle keeps
// conversational continuity; level and affinity restart at zero because the
// persisted record does not carry them. An unknown code starts a fresh
// session under that code.
func (p *Pipeline) ResumeSession(ctx context.Context, code string) (*session.Session, error) {
	persona0, err := p.personas.Build(0)
	if err != nil {
		return nil, err
	}

	s := session.WithCode(code, persona0)

	rec, err := p.store.Load(ctx, code)
	switch {
	case err == nil:
		for _, entry := range rec.Conversation {
			s.History = append(s.History, protocol.Message{
				Role:    protocol.Role(entry.Role),
				Content: entry.Content,
			})
		}
		p.emit(ctx, EventSessionResume, observability.LevelInfo, "pipeline.ResumeSession", map[string]any{
			"participant": code,
			"replayed":    len(rec.Conversation),
		})
	case isNotFound(err):
		p.emit(ctx, EventSessionStart, observability.LevelInfo, "pipeline.ResumeSession", map[string]any{
			"participant": code,
		})
	default:
		return nil, err
	}

	return s, nil
}

// Turn processes one conversational turn. On completion the session has
// advanced, the persona matches the (possibly new) level, and the transcript
// has been handed to the store. A completion-oracle failure aborts the turn
// with oracle.ErrUnavailable and nothing is persisted; the caller should ask
// the participant to retry the same input.
func (p *Pipeline) Turn(ctx context.Context, s *session.Session, userText string) (*TurnResult, error) {
	l := p.lockFor(s.ParticipantCode)
	l.Lock()
	defer l.Unlock()

	p.emit(ctx, EventTurnStart, observability.LevelDebug, "pipeline.Turn", map[string]any{
		"participant": s.ParticipantCode,
		"level":       s.Level,
	})

	// Re-sync the persona. The table is editable at runtime, and an edit to
	// the session's current level must reach the prompt context on the next
	// turn, not wait for a level-up.
	if text, err := p.personas.Build(s.Level); err == nil && len(s.History) > 0 && s.History[0].Content != text {
		protocol.ReplaceSystem(s.History, text)
	}

	// Ingest. A retry after a failed generation resubmits the same text;
	// the pending user turn is already in history and is not duplicated.
	last := len(s.History) - 1
	if last < 0 || s.History[last].Role != protocol.RoleUser || s.History[last].Content != userText {
		s.History = protocol.AppendUser(s.History, userText)
	}

	// Generate. Failure aborts the turn before the assistant turn exists;
	// no partial state is persisted.
	reply, err := p.completer.Complete(ctx, s.Messages(), p.gen)
	if err != nil {
		p.emit(ctx, EventOracleError, observability.LevelError, "pipeline.Turn", map[string]any{
			"participant": s.ParticipantCode,
			"error":       err.Error(),
		})
		return nil, err
	}

	s.History = protocol.AppendAssistant(s.History, reply)

	// Evaluate. Scoring failures never block conversation: any error,
	// parse or transport, falls back to the default score.
	raw, err := p.scorer.Score(ctx, userText, reply)
	if err != nil {
		raw = p.defaultScore
		p.emit(ctx, EventScoreDefault, observability.LevelWarn, "pipeline.Turn", map[string]any{
			"participant": s.ParticipantCode,
			"default":     p.defaultScore,
			"error":       err.Error(),
		})
	}

	leveledUp := p.engine.Apply(s, raw)

	if leveledUp {
		text, err := p.personas.Build(s.Level)
		if err != nil {
			// Unreachable when New validated the table against the
			// thresholds; keep the previous persona rather than
			// corrupting history.
			p.emit(ctx, EventOracleError, observability.LevelError, "pipeline.Turn", map[string]any{
				"participant": s.ParticipantCode,
				"error":       err.Error(),
			})
		} else {
			protocol.ReplaceSystem(s.History, text)
		}
		p.emit(ctx, EventLevelUp, observability.LevelInfo, "pipeline.Turn", map[string]any{
			"participant": s.ParticipantCode,
			"level":       s.Level,
			"affinity":    s.AffinityTotal,
		})
	}

	result := &TurnResult{
		Reply:     reply,
		Score:     s.LastScore,
		Level:     s.Level,
		LeveledUp: leveledUp,
	}

	// Persist. Best-effort: in-memory state keeps advancing and the next
	// turn rewrites the full transcript, but the failure is surfaced.
	if err := p.store.Append(ctx, s.ParticipantCode, s.Transcript(), false); err != nil {
		result.PersistErr = err
		p.emit(ctx, EventPersistError, observability.LevelError, "pipeline.Turn", map[string]any{
			"participant": s.ParticipantCode,
			"error":       err.Error(),
		})
	}

	p.emit(ctx, EventTurnComplete, observability.LevelInfo, "pipeline.Turn", map[string]any{
		"participant": s.ParticipantCode,
		"level":       s.Level,
		"affinity":    s.AffinityTotal,
		"score":       s.LastScore,
		"leveled_up":  leveledUp,
	})

	return result, nil
}

// EndSession marks the participant's conversation finished with a final
// persist. The session remains readable but should receive no further turns.
func (p *Pipeline) EndSession(ctx context.Context, s *session.Session) error {
	l := p.lockFor(s.ParticipantCode)
	l.Lock()
	defer l.Unlock()

	err := p.store.Append(ctx, s.ParticipantCode, s.Transcript(), true)
	p.emit(ctx, EventSessionEnd, observability.LevelInfo, "pipeline.EndSession", map[string]any{
		"participant": s.ParticipantCode,
		"level":       s.Level,
		"affinity":    s.AffinityTotal,
	})
	return err
}

// ResetSession performs the final persist for the current conversation and
// returns the session to level 0 with zero affinity and a single fresh
// System turn.
func (p *Pipeline) ResetSession(ctx context.Context, s *session.Session) error {
	l := p.lockFor(s.ParticipantCode)
	l.Lock()
	defer l.Unlock()

	persistErr := p.store.Append(ctx, s.ParticipantCode, s.Transcript(), true)

	persona0, err := p.personas.Build(0)
	if err != nil {
		return err
	}
	s.Reset(persona0)

	p.emit(ctx, EventSessionReset, observability.LevelInfo, "pipeline.ResetSession", map[string]any{
		"participant": s.ParticipantCode,
	})
	return persistErr
}

// Stats aggregates participant and message counts over all persisted
// records.
func (p *Pipeline) Stats(ctx context.Context) (store.Stats, error) {
	return p.store.Stats(ctx)
}

// Close releases the store's backing resources.
func (p *Pipeline) Close() error {
	return p.store.Close()
}

// lockFor returns the mutex serializing turns for one participant. Entries
// are retained for the life of the process: releasing one while another
// goroutine still holds a reference would hand out two locks for the same
// code, and the map is bounded by the number of distinct participants seen.
func (p *Pipeline) lockFor(code string) *sync.Mutex {
	p.mu.Lock()
	defer p.mu.Unlock()
	l, ok := p.locks[code]
	if !ok {
		l = &sync.Mutex{}
		p.locks[code] = l
	}
	return l
}

func (p *Pipeline) emit(ctx context.Context, typ observability.EventType, level observability.Level, source string, data map[string]any) {
	p.observer.OnEvent(ctx, observability.Event{
		Type:      typ,
		Level:     level,
		Timestamp: time.Now(),
		Source:    source,
		Data:      data,
	})
}

func isNotFound(err error) bool {
	return errors.Is(err, store.ErrNotFound)
}
