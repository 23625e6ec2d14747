package persona

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Pack is a persona pack file: the full prompt ladder plus the cumulative
// affinity thresholds that pace the climb. Packs are YAML so operators can
// edit them without a rebuild:
//
//	levels:
//	  - "You are a polite, reserved assistant..."
//	  - "You are a friendly assistant..."
//	thresholds: [5, 10, 15, 20]
type Pack struct {
	Levels     []string `yaml:"levels"`
	Thresholds []int    `yaml:"thresholds"`
}

// LoadPack reads and validates a persona pack from a YAML file. Prompt text
// is validated here; threshold ordering is the affinity engine's concern and
// is validated when the engine is built from the pack.
func LoadPack(path string) (*Pack, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("persona: read pack: %w", err)
	}

	var pack Pack
	if err := yaml.Unmarshal(data, &pack); err != nil {
		return nil, fmt.Errorf("persona: parse pack: %w", err)
	}

	if len(pack.Levels) == 0 {
		return nil, fmt.Errorf("%w: pack has no levels", ErrEmptyPrompt)
	}
	for i, text := range pack.Levels {
		if text == "" {
			return nil, fmt.Errorf("%w: pack level %d", ErrEmptyPrompt, i)
		}
	}
	if len(pack.Thresholds) != len(pack.Levels)-1 {
		return nil, fmt.Errorf("persona: pack has %d levels but %d thresholds, want %d",
			len(pack.Levels), len(pack.Thresholds), len(pack.Levels)-1)
	}

	return &pack, nil
}

// Table builds a persona Table from the pack's prompt ladder.
func (p *Pack) Table() (*Table, error) {
	return NewTable(p.Levels)
}
