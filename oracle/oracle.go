// Package oracle defines the two remote collaborators of the turn pipeline:
// the completion oracle that writes the assistant's reply and the scoring
// oracle that rates the warmth of an exchange. Both are opaque, fallible
// calls; the pipeline owns all fallback policy.
package oracle

import (
	"context"
	"errors"
	"time"

	"github.com/rapport-labs/rapport/core/protocol"
)

// ErrUnavailable is returned when an oracle call fails or times out. A
// completion failure aborts the whole turn; callers surface it as "please
// retry the same input".
var ErrUnavailable = errors.New("oracle: unavailable")

// ErrScoreParse is returned when the scoring oracle replies with text that
// contains no integer. Non-fatal: the pipeline substitutes the configured
// default score and the turn completes.
var ErrScoreParse = errors.New("oracle: unparseable score")

// GenParams are the generation parameters passed through to the completion
// oracle unchanged. Zero values mean "let the provider decide"; because
// config merge treats zero as unset, an explicit zero cannot override a
// nonzero default.
type GenParams struct {
	Temperature float64 `json:"temperature,omitempty"`
	TopP        float64 `json:"top_p,omitempty"`
	MaxTokens   int64   `json:"max_tokens,omitempty"`
}

// DefaultGenParams returns the reference generation parameters.
func DefaultGenParams() GenParams {
	return GenParams{Temperature: 0.9, TopP: 0.95, MaxTokens: 1024}
}

// Completer produces the assistant's reply for a conversation history. The
// persona (system turn) is sent first regardless of where the caller stored
// it. Implementations must be safe for concurrent use.
type Completer interface {
	Complete(ctx context.Context, history []protocol.Message, params GenParams) (string, error)
}

// Scorer rates one exchange and returns an integer affinity delta. The user
// utterance is always included; this implementation also passes the
// assistant reply for context. Implementations must be safe for concurrent
// use.
type Scorer interface {
	Score(ctx context.Context, userText, assistantText string) (int, error)
}

const (
	defaultModel        = "gpt-4o"
	defaultScoringModel = "gpt-4o-mini"
	defaultTimeout      = 30 * time.Second
)

// Config configures the OpenAI-compatible oracle client.
type Config struct {
	// APIKey is the bearer token for the API. Usually supplied via
	// environment rather than the config file.
	APIKey string `json:"api_key,omitempty"`

	// BaseURL overrides the API endpoint. Useful for Azure OpenAI, local
	// models, or any other compatible endpoint. Defaults to the public
	// OpenAI endpoint when empty.
	BaseURL string `json:"base_url,omitempty"`

	// Model is the chat model used for completions. Defaults to gpt-4o.
	Model string `json:"model,omitempty"`

	// ScoringModel is the chat model used for affinity scoring. Defaults
	// to gpt-4o-mini; scoring is a one-integer task and does not need the
	// conversation model.
	ScoringModel string `json:"scoring_model,omitempty"`

	// TimeoutSeconds bounds each oracle call. A call that exceeds it fails
	// the turn rather than hanging. Defaults to 30.
	TimeoutSeconds int `json:"timeout_seconds,omitempty"`
}

// DefaultConfig returns the default oracle configuration.
func DefaultConfig() Config {
	return Config{
		Model:          defaultModel,
		ScoringModel:   defaultScoringModel,
		TimeoutSeconds: int(defaultTimeout / time.Second),
	}
}

// Merge applies non-zero values from source into c. Zero values read as
// unset and leave the target untouched.
func (c *Config) Merge(source *Config) {
	if source.APIKey != "" {
		c.APIKey = source.APIKey
	}
	if source.BaseURL != "" {
		c.BaseURL = source.BaseURL
	}
	if source.Model != "" {
		c.Model = source.Model
	}
	if source.ScoringModel != "" {
		c.ScoringModel = source.ScoringModel
	}
	if source.TimeoutSeconds > 0 {
		c.TimeoutSeconds = source.TimeoutSeconds
	}
}

// Timeout returns the configured per-call timeout as a duration.
func (c *Config) Timeout() time.Duration {
	if c.TimeoutSeconds <= 0 {
		return defaultTimeout
	}
	return time.Duration(c.TimeoutSeconds) * time.Second
}
