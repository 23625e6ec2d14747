package pipeline

import "github.com/rapport-labs/rapport/observability"

// Pipeline event types emitted during turn processing.
const (
	EventTurnStart     observability.EventType = "turn.start"
	EventTurnComplete  observability.EventType = "turn.complete"
	EventOracleError   observability.EventType = "oracle.error"
	EventScoreDefault  observability.EventType = "oracle.score.default"
	EventLevelUp       observability.EventType = "session.levelup"
	EventPersistError  observability.EventType = "persist.error"
	EventSessionStart  observability.EventType = "session.start"
	EventSessionResume observability.EventType = "session.resume"
	EventSessionEnd    observability.EventType = "session.end"
	EventSessionReset  observability.EventType = "session.reset"
)
