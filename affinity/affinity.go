// Package affinity accumulates per-turn warmth scores and decides when the
// persona climbs to the next level.
package affinity

import (
	"errors"
	"fmt"

	"github.com/rapport-labs/rapport/session"
)

// Default score bounds and thresholds, matching the reference study
// configuration: scores clamp into [0,4] and the cumulative total crosses
// 5/10/15/20 to reach levels 1 through 4.
const (
	DefaultScoreMin = 0
	DefaultScoreMax = 4
)

// DefaultThresholds returns the reference cumulative thresholds.
func DefaultThresholds() []int {
	return []int{5, 10, 15, 20}
}

// ErrThresholds is returned when a threshold configuration is empty or not
// strictly ascending. Rejected at construction time so a malformed ladder is
// never discovered mid-session.
var ErrThresholds = errors.New("affinity: thresholds must be strictly ascending")

// ErrScoreRange is returned when ScoreMin exceeds ScoreMax.
var ErrScoreRange = errors.New("affinity: score range inverted")

// Config holds affinity engine parameters.
type Config struct {
	ScoreMin   int   `json:"score_min"`
	ScoreMax   int   `json:"score_max"`
	Thresholds []int `json:"thresholds,omitempty"`
}

// DefaultConfig returns the reference configuration.
func DefaultConfig() Config {
	return Config{
		ScoreMin:   DefaultScoreMin,
		ScoreMax:   DefaultScoreMax,
		Thresholds: DefaultThresholds(),
	}
}

// Merge applies non-zero values from source into c.
func (c *Config) Merge(source *Config) {
	if source.ScoreMin != 0 {
		c.ScoreMin = source.ScoreMin
	}
	if source.ScoreMax != 0 {
		c.ScoreMax = source.ScoreMax
	}
	if len(source.Thresholds) > 0 {
		c.Thresholds = source.Thresholds
	}
}

// Engine clamps raw oracle scores, accumulates them, and evaluates level
// transitions. Engines are immutable after construction and safe for
// concurrent use across sessions.
type Engine struct {
	scoreMin   int
	scoreMax   int
	thresholds []int
}

// New validates the configuration and builds an Engine. Thresholds must be
// non-empty and strictly ascending; thresholds[i] is the cumulative total
// required to move from level i to i+1, so MaxLevel == len(thresholds).
func New(cfg Config) (*Engine, error) {
	if cfg.ScoreMin > cfg.ScoreMax {
		return nil, fmt.Errorf("%w: [%d, %d]", ErrScoreRange, cfg.ScoreMin, cfg.ScoreMax)
	}
	if len(cfg.Thresholds) == 0 {
		return nil, fmt.Errorf("%w: none configured", ErrThresholds)
	}
	for i := 1; i < len(cfg.Thresholds); i++ {
		if cfg.Thresholds[i] <= cfg.Thresholds[i-1] {
			return nil, fmt.Errorf("%w: %v", ErrThresholds, cfg.Thresholds)
		}
	}

	thresholds := make([]int, len(cfg.Thresholds))
	copy(thresholds, cfg.Thresholds)
	return &Engine{
		scoreMin:   cfg.ScoreMin,
		scoreMax:   cfg.ScoreMax,
		thresholds: thresholds,
	}, nil
}

// MaxLevel returns the highest reachable level.
func (e *Engine) MaxLevel() int {
	return len(e.thresholds)
}

// Clamp maps a raw oracle score into the configured closed range. The
// scoring boundary already substitutes a default for unparseable output;
// this guards the numeric range so a negative score can never drain the
// total.
func (e *Engine) Clamp(raw int) int {
	if raw < e.scoreMin {
		return e.scoreMin
	}
	if raw > e.scoreMax {
		return e.scoreMax
	}
	return raw
}

// Apply adds the clamped score to the session's running total, records it as
// the last score, and promotes the session by at most one level when the
// cumulative total crosses the current threshold. Returns whether a level-up
// occurred.
//
// A single large score can satisfy several thresholds at once; promotion is
// still exactly one level per call, so the escalation plays out over
// subsequent turns instead of skipping stages.
func (e *Engine) Apply(s *session.Session, raw int) bool {
	score := e.Clamp(raw)
	s.AffinityTotal += score
	s.LastScore = score

	if s.Level < e.MaxLevel() && s.AffinityTotal >= e.thresholds[s.Level] {
		s.Level++
		return true
	}
	return false
}
