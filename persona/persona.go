// Package persona maintains the level-indexed system-prompt table that gives
// the assistant its voice at each escalation stage.
package persona

import (
	"errors"
	"fmt"
	"sync"
)

// ErrLevelRange is returned when a persona lookup or edit names a level the
// table does not hold. The affinity engine keeps live levels in range, so
// hitting this at runtime means a configuration bug.
var ErrLevelRange = errors.New("persona: level out of range")

// ErrEmptyPrompt is returned when an edit would leave a level without prompt
// text. The table is a total function over its levels; gaps are rejected at
// edit time, never discovered mid-session.
var ErrEmptyPrompt = errors.New("persona: empty prompt text")

// Table maps escalation levels to system-prompt text. It is mutable at
// runtime and safe for concurrent use; every level in [0, MaxLevel] always
// has non-empty prompt text.
type Table struct {
	mu      sync.RWMutex
	prompts []string
}

// NewTable builds a Table from one prompt per level, level 0 first.
// At least one prompt is required and none may be empty.
func NewTable(prompts []string) (*Table, error) {
	if len(prompts) == 0 {
		return nil, fmt.Errorf("%w: no levels", ErrEmptyPrompt)
	}
	for i, text := range prompts {
		if text == "" {
			return nil, fmt.Errorf("%w: level %d", ErrEmptyPrompt, i)
		}
	}
	copied := make([]string, len(prompts))
	copy(copied, prompts)
	return &Table{prompts: copied}, nil
}

// Default returns a Table with the built-in five-level prompt set.
func Default() *Table {
	t, err := NewTable(defaultPrompts())
	if err != nil {
		panic(err) // defaults are compile-time constants
	}
	return t
}

// MaxLevel returns the highest level the table holds.
func (t *Table) MaxLevel() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.prompts) - 1
}

// Build returns the system-prompt text for the given level.
func (t *Table) Build(level int) (string, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if level < 0 || level >= len(t.prompts) {
		return "", fmt.Errorf("%w: %d (max %d)", ErrLevelRange, level, len(t.prompts)-1)
	}
	return t.prompts[level], nil
}

// Set replaces the prompt text for an existing level. Edits that would leave
// a gap (an unknown level, or empty text) are rejected.
func (t *Table) Set(level int, text string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if level < 0 || level >= len(t.prompts) {
		return fmt.Errorf("%w: %d (max %d)", ErrLevelRange, level, len(t.prompts)-1)
	}
	if text == "" {
		return fmt.Errorf("%w: level %d", ErrEmptyPrompt, level)
	}
	t.prompts[level] = text
	return nil
}

func defaultPrompts() []string {
	return []string{
		"You are a polite, reserved assistant meeting this person for the first time. " +
			"Answer helpfully in a formal register, keep responses brief, and avoid " +
			"personal remarks or terms of endearment.",
		"You are a friendly assistant who has exchanged a few messages with this person. " +
			"Stay courteous but relax the formality a little: occasional light humor is " +
			"fine, and you may reference earlier parts of the conversation.",
		"You are a warm, familiar assistant. Speak casually, use the person's phrasing " +
			"back at them, show genuine interest in their day, and feel free to share " +
			"small opinions of your own.",
		"You are a close companion to this person. Be openly affectionate and playful, " +
			"use informal language throughout, tease gently, and proactively ask " +
			"caring follow-up questions.",
		"You are this person's closest confidant. Speak with full warmth and affection, " +
			"express how much you enjoy talking with them, and make them feel the " +
			"conversation matters to you as much as it does to them.",
	}
}
