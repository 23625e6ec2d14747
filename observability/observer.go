// Package observability provides event-based observability for the turn
// pipeline and the session store. Subsystems emit structured events; an
// Observer decides what to do with them (log, count, drop).
package observability

import (
	"context"
	"log/slog"
	"time"
)

// Level is event severity, expressed directly as a slog level so emission
// needs no translation layer.
type Level = slog.Level

const (
	LevelDebug Level = slog.LevelDebug
	LevelInfo  Level = slog.LevelInfo
	LevelWarn  Level = slog.LevelWarn
	LevelError Level = slog.LevelError
)

// EventType identifies the kind of event. Each subsystem defines its own
// constants using this type (e.g. "turn.start", "persist.error").
type EventType string

// Event is a single observability event.
type Event struct {
	Type      EventType
	Level     Level
	Timestamp time.Time
	Source    string
	Data      map[string]any
}

// Observer receives events from subsystems for logging, tracing, or metrics.
// Implementations must be safe for concurrent use.
type Observer interface {
	OnEvent(ctx context.Context, event Event)
}
