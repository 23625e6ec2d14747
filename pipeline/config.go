package pipeline

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/rapport-labs/rapport/affinity"
	"github.com/rapport-labs/rapport/oracle"
	"github.com/rapport-labs/rapport/store"
)

const defaultScore = 1

// Config holds initialization parameters for all pipeline subsystems. Each
// section delegates to that subsystem's config-driven constructor.
type Config struct {
	Oracle     oracle.Config    `json:"oracle"`
	Affinity   affinity.Config  `json:"affinity"`
	Store      store.Config     `json:"store"`
	Generation oracle.GenParams `json:"generation"`

	// PersonaPack is an optional path to a YAML persona pack. When set it
	// supplies both the prompt ladder and the thresholds; when empty the
	// built-in defaults apply.
	PersonaPack string `json:"persona_pack,omitempty"`

	// DefaultScore substitutes for the scoring oracle's answer when its
	// output cannot be parsed. Conversation is never blocked by a scoring
	// failure. Merge treats zero as unset, so a zero default score cannot
	// be expressed through a config file.
	DefaultScore int `json:"default_score,omitempty"`
}

// DefaultConfig returns a Config with the reference defaults for all
// subsystems.
func DefaultConfig() Config {
	return Config{
		Oracle:       oracle.DefaultConfig(),
		Affinity:     affinity.DefaultConfig(),
		Store:        store.DefaultConfig(),
		Generation:   oracle.DefaultGenParams(),
		DefaultScore: defaultScore,
	}
}

// Merge applies non-zero values from source into c, delegating to each
// subsystem's Merge method. Zero values are indistinguishable from unset
// fields, so a config file cannot force a field back to zero; the defaults
// keep all merged fields nonzero.
func (c *Config) Merge(source *Config) {
	c.Oracle.Merge(&source.Oracle)
	c.Affinity.Merge(&source.Affinity)
	c.Store.Merge(&source.Store)

	if source.Generation.Temperature > 0 {
		c.Generation.Temperature = source.Generation.Temperature
	}
	if source.Generation.TopP > 0 {
		c.Generation.TopP = source.Generation.TopP
	}
	if source.Generation.MaxTokens > 0 {
		c.Generation.MaxTokens = source.Generation.MaxTokens
	}

	if source.PersonaPack != "" {
		c.PersonaPack = source.PersonaPack
	}
	if source.DefaultScore != 0 {
		c.DefaultScore = source.DefaultScore
	}
}

// LoadConfig reads a JSON config file, merges it over the defaults, and
// returns the resulting Config.
func LoadConfig(filename string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var loaded Config
	if err := json.Unmarshal(data, &loaded); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.Merge(&loaded)
	return &cfg, nil
}
